package main

import (
	"context"
	"flag"
	"net/http"
	"os"
	"time"

	"github.com/grafana/pyroscope-go"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"github.com/yanun0323/logs"
	"github.com/yanun0323/pkg/sys"

	"main/internal/audit"
	"main/internal/broker"
	"main/internal/bus"
	"main/internal/engine"
	"main/internal/feed"
	"main/internal/ledger"
	"main/internal/obs"
	"main/internal/ops"
	"main/internal/schema"
	"main/pkg/conn"
)

func main() {
	_ = godotenv.Load() // best-effort

	configPath := flag.String("config", "", "Path to JSON config")
	configReload := flag.Duration("config-reload-interval", 2*time.Second, "Config reload interval (0=disable)")
	auditDir := flag.String("audit-dir", "testdata/audit", "Audit log directory")
	recoverEnabled := flag.Bool("recover", false, "Rebuild the ledger from the audit log before trading")
	metricsAddr := flag.String("metrics-addr", ":9091", "Prometheus /metrics listen address (empty=disable)")
	pyroscopeAddr := flag.String("pyroscope-addr", "", "Pyroscope server address (empty=disable)")
	redisAddr := flag.String("redis-addr", "", "Redis address for the latest-tick cache (empty=disable)")
	pgConn := flag.String("pg-conn", "", "Postgres connection string for the audit store (empty=disable)")
	feedMode := flag.String("feed", "sim", "Tick source: sim or exchange")
	feedURL := flag.String("feed-url", "", "Exchange websocket URL (feed=exchange)")
	feedInterval := flag.Duration("feed-interval", 10*time.Millisecond, "Sim tick interval")
	flag.Parse()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	loaded, err := loadConfig(*configPath)
	if err != nil {
		logs.Errorf("config load failed, err: %+v", err)
		os.Exit(1)
	}
	runtime := ops.NewRuntime(loaded)
	if *configPath != "" && *configReload > 0 {
		go ops.Watch(ctx, *configPath, *configReload, runtime.Update)
	}

	if *pyroscopeAddr != "" {
		profiler, err := pyroscope.Start(pyroscope.Config{
			ApplicationName: "decision-engine",
			ServerAddress:   *pyroscopeAddr,
			Tags: map[string]string{
				"env": "local",
			},
			ProfileTypes: []pyroscope.ProfileType{
				pyroscope.ProfileCPU,
				pyroscope.ProfileAllocObjects,
				pyroscope.ProfileAllocSpace,
				pyroscope.ProfileInuseObjects,
				pyroscope.ProfileInuseSpace,
			},
		})
		if err != nil {
			logs.Errorf("pyroscope start failed, err: %+v", err)
			os.Exit(1)
		}
		defer func() { _ = profiler.Stop() }()
	}

	led := ledger.New()
	if *recoverEnabled {
		if err := recoverLedger(ctx, led, *auditDir); err != nil {
			logs.Errorf("ledger recovery failed, err: %+v", err)
			os.Exit(1)
		}
	}

	metrics := obs.NewMetrics()
	auditQ := bus.NewQueue(4096)

	writer, err := audit.NewWriter(audit.DefaultConfig(*auditDir))
	if err != nil {
		logs.Errorf("audit writer init failed, err: %+v", err)
		os.Exit(1)
	}
	if err := writer.Start(ctx); err != nil {
		logs.Errorf("audit writer start failed, err: %+v", err)
		os.Exit(1)
	}

	var store *audit.Store
	if *pgConn != "" {
		pg, err := conn.New(conn.Option{ConnString: *pgConn})
		if err != nil {
			logs.Errorf("postgres connect failed, err: %+v", err)
			os.Exit(1)
		}
		defer pg.Close()
		store, err = audit.NewStore(pg.DB(), 256)
		if err != nil {
			logs.Errorf("audit store init failed, err: %+v", err)
			os.Exit(1)
		}
	}

	sink := audit.NewSink(auditQ, writer, store, metrics)
	go sink.Run(ctx)

	sim := broker.NewSim(broker.SimConfig{})
	eng, err := engine.New(engine.Config{}, runtime, led, sim, auditQ, metrics)
	if err != nil {
		logs.Errorf("engine init failed, err: %+v", err)
		os.Exit(1)
	}

	var cache *feed.TickCache
	if *redisAddr != "" {
		client := redis.NewClient(&redis.Options{Addr: *redisAddr})
		cache = feed.NewTickCache(client, 2*time.Minute)
	}

	emit := makeEmit(ctx, eng, cache)
	source, err := buildSource(ctx, *feedMode, *feedURL, *feedInterval, runtime.Load().Registry)
	if err != nil {
		logs.Errorf("feed init failed, err: %+v", err)
		os.Exit(1)
	}
	go func() {
		if err := source.Run(ctx, emit); err != nil && ctx.Err() == nil {
			logs.Errorf("feed stopped, err: %+v", err)
			cancel()
		}
	}()

	if *feedMode == "sim" {
		go autoFill(ctx, sim)
		go syntheticSignals(ctx, eng, runtime)
	}

	if *metricsAddr != "" {
		go serveOps(*metricsAddr, eng, metrics)
	}

	go eng.Run(ctx)
	logs.Infof("engine started: instruments=%d strategies=%d", loaded.Registry.Count(), len(loaded.Strategies))

	select {
	case <-sys.Shutdown():
	case <-ctx.Done():
	}
	cancel()
	source.Close()
	auditQ.Close()
	if err := writer.Close(); err != nil {
		logs.Errorf("audit writer close failed, err: %+v", err)
	}
	snap := metrics.Snapshot()
	logs.Infof("shutdown: events=%v verdicts=%v drops=%d decision=%+v submit=%+v",
		snap.EventCounts, snap.VerdictCounts, snap.QueueDrops, snap.DecisionLatency, snap.SubmitLatency)
}

func loadConfig(path string) (ops.Loaded, error) {
	if path == "" {
		return defaultLoaded()
	}
	return ops.Load(path)
}

func defaultLoaded() (ops.Loaded, error) {
	scale := schema.ScaleSpec{PriceScale: 8, QuantityScale: 8, NotionalScale: 8, FeeScale: 8}
	cfg := ops.FileConfig{
		Registry: ops.RegistryConfig{
			Instruments: []ops.InstrumentConfig{{Name: "TEST-USD", Scale: scale}},
		},
		Risk: ops.RiskConfig{
			Version:              1,
			MaxPortfolioNotional: 10_000_000_000_000,
			MaxDailyLoss:         100_000_000_000,
			PerInstrument: []ops.InstrumentRiskConfig{{
				Instrument:  "TEST-USD",
				MaxPosition: 100_000_000_000,
				MaxNotional: 5_000_000_000_000,
			}},
		},
		Strategies: []ops.StrategyConfig{{
			ID:          1,
			Name:        "momentum",
			Instruments: []string{"TEST-USD"},
			MaxPosition: 100_000_000_000,
			CooldownMs:  1000,
		}},
	}
	return ops.Resolve(cfg)
}

func makeEmit(ctx context.Context, eng *engine.Engine, cache *feed.TickCache) feed.Emit {
	return func(header schema.EventHeader, tick schema.MarketTick) {
		eng.OnTick(header, tick)
		if cache != nil {
			if err := cache.SetLatest(ctx, tick); err != nil {
				logs.Errorf("tick cache update failed, err: %+v", err)
			}
		}
	}
}

func buildSource(ctx context.Context, mode, url string, interval time.Duration, reg *schema.Registry) (feed.Source, error) {
	if mode == "exchange" {
		symbols := make([]string, 0, reg.Count())
		for i := 0; i < reg.Count(); i++ {
			if inst, ok := reg.At(i); ok {
				symbols = append(symbols, inst.Name)
			}
		}
		return feed.NewExchange(ctx, feed.ExchangeConfig{URL: url, Symbols: symbols}, reg), nil
	}
	gen, err := feed.NewGenerator(reg, 100_000_000_000, 1_000_000_000, 0, 50)
	if err != nil {
		return nil, err
	}
	return feed.NewSimSource(gen, interval), nil
}

// autoFill periodically fills whatever the sim venue has accepted, exercising
// the full fill path in paper trading.
func autoFill(ctx context.Context, sim *broker.Sim) {
	ticker := time.NewTicker(100 * time.Millisecond)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			snaps, err := sim.OpenOrders(ctx)
			if err != nil {
				continue
			}
			now := time.Now().UTC().UnixNano()
			for _, snap := range snaps {
				if snap.Status != schema.OrderStatusSubmitted && snap.Status != schema.OrderStatusPartiallyFilled {
					continue
				}
				sim.FillRemaining(snap.OrderID, now)
			}
		}
	}
}

// syntheticSignals derives a momentum score from the sim tick stream so the
// strategies have something to trade on in paper mode.
func syntheticSignals(ctx context.Context, eng *engine.Engine, runtime *ops.Runtime) {
	lastPrice := make(map[uint32]schema.Price)
	ticker := time.NewTicker(200 * time.Millisecond)
	defer ticker.Stop()
	var modelSeq int64
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			loaded := runtime.Load()
			led := eng.Ledger()
			now := time.Now().UTC().UnixNano()
			modelSeq++
			for i := 0; i < loaded.Registry.Count(); i++ {
				inst, ok := loaded.Registry.At(i)
				if !ok {
					continue
				}
				id := uint32(inst.ID)
				mark := led.Position(id).LastMark
				if mark <= 0 {
					continue
				}
				prev, seen := lastPrice[id]
				lastPrice[id] = mark
				if !seen || prev <= 0 {
					continue
				}
				delta := int64(mark) - int64(prev)
				score := delta * schema.ConfidenceScale / int64(prev) * 100
				eng.OnSignal(schema.Signal{
					InstrumentID: id,
					ModelID:      1,
					Horizon:      1,
					Score:        schema.Score(clampScore(score)),
					Confidence:   schema.Confidence(schema.ConfidenceScale),
					TsGen:        now,
				})
			}
		}
	}
}

func clampScore(score int64) int64 {
	if score > schema.ConfidenceScale {
		return schema.ConfidenceScale
	}
	if score < -schema.ConfidenceScale {
		return -schema.ConfidenceScale
	}
	return score
}

func recoverLedger(ctx context.Context, led *ledger.Ledger, dir string) error {
	pb, err := audit.NewPlayback(audit.PlaybackConfig{Dir: dir})
	if err != nil {
		return err
	}
	count := 0
	err = pb.Run(ctx, func(header schema.EventHeader, payload []byte) error {
		count++
		return led.ApplyEvent(header, payload)
	})
	if err != nil {
		return err
	}
	logs.Infof("ledger recovered from %d audit records", count)
	return nil
}

func serveOps(addr string, eng *engine.Engine, metrics *obs.Metrics) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	mux.HandleFunc("/breaker/reset", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		eng.ResetBreaker()
		w.WriteHeader(http.StatusOK)
	})

	go func() {
		ticker := time.NewTicker(5 * time.Second)
		defer ticker.Stop()
		for range ticker.C {
			obs.SyncSnapshot(metrics.Snapshot())
		}
	}()

	if err := http.ListenAndServe(addr, mux); err != nil {
		logs.Errorf("ops server stopped, err: %+v", err)
	}
}
