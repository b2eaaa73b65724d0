package ops

import (
	"context"
	"os"
	"sync/atomic"
	"time"

	"github.com/yanun0323/logs"
)

// Runtime holds the active configuration behind an atomic.Value so the hot
// path reads it without locks. Readers see one consistent Loaded per access.
type Runtime struct {
	v atomic.Value
}

// NewRuntime seeds the runtime with an initial configuration.
func NewRuntime(loaded Loaded) *Runtime {
	var r Runtime
	r.v.Store(loaded)
	return &r
}

// Load returns the active configuration.
func (r *Runtime) Load() Loaded {
	return r.v.Load().(Loaded)
}

// Update installs a new configuration.
func (r *Runtime) Update(loaded Loaded) {
	r.v.Store(loaded)
}

// Watch polls the config file and installs new versions. A file that fails to
// parse or validate is logged and skipped; the previous version stays active.
func Watch(ctx context.Context, path string, interval time.Duration, update func(Loaded)) {
	if interval <= 0 {
		interval = 2 * time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	var lastMod time.Time
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			info, err := os.Stat(path)
			if err != nil {
				logs.Errorf("config stat failed, err: %+v", err)
				continue
			}
			if !info.ModTime().After(lastMod) {
				continue
			}
			loaded, err := Load(path)
			if err != nil {
				logs.Errorf("config reload failed, keeping previous, err: %+v", err)
				continue
			}
			update(loaded)
			lastMod = info.ModTime()
			logs.Infof("config reloaded: %s (limits version %d)", path, loaded.Limits.Version)
		}
	}
}
