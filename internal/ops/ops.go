// Package ops composes the backend, registry, crate, and gitmirror
// pipelines into the two top-level operations spec §4.8 defines:
// mirror (upstream → backend) and sync (backend → on-disk layout).
// Work is dispatched across internal/sched's two work classes and
// every per-artifact failure is gathered rather than aborting its
// siblings, per spec §9.
package ops

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/catalyst-forge/cargo-fetcher/internal/backend"
	"github.com/catalyst-forge/cargo-fetcher/internal/gitmirror"
	"github.com/catalyst-forge/cargo-fetcher/internal/layout"
	"github.com/catalyst-forge/cargo-fetcher/internal/retry"
	"github.com/catalyst-forge/cargo-fetcher/internal/sched"
)

// Config carries everything a driver needs that isn't per-artifact:
// the opened backend, key-prefix convention, on-disk home, and tuning
// knobs for concurrency and staleness.
type Config struct {
	Backend    backend.Backend
	KeyPrefix  string
	Home       layout.Home
	HTTPClient *http.Client

	// MaxStale bounds registry index staleness for Mirror; unused by Sync.
	MaxStale time.Duration

	// IncludeIndex gates the registry index mirror/sync work, per the
	// CLI's --include-index flag: index snapshots are the most
	// expensive artifact to refresh, so most runs only need crate and
	// git artifacts and leave the index snapshot as-is.
	IncludeIndex bool

	RegistryPoolSize int
	GitPoolSize      int
	PerTaskTimeout   time.Duration

	GitOptions gitmirror.Options

	// OnArtifactDone, if set, is called once per dispatched artifact
	// after it finishes (err is nil on success), so a caller can drive
	// a progress indicator without ops knowing anything about
	// terminals or progress bars. It may be called concurrently from
	// multiple goroutines.
	OnArtifactDone func(artifact string, err error)
}

func (c *Config) applyDefaults() {
	if c.HTTPClient == nil {
		c.HTTPClient = &http.Client{Timeout: 30 * time.Second}
	}
	if c.RegistryPoolSize <= 0 {
		c.RegistryPoolSize = 8
	}
	if c.GitPoolSize <= 0 {
		c.GitPoolSize = 4
	}
}

// Failure records one artifact's failure within a Summary.
type Failure struct {
	Artifact string
	Err      error
}

// Summary is the outcome of a Mirror or Sync run. A non-empty Failures
// means the driver should exit non-zero, per spec §4.8, even though
// every other artifact completed.
type Summary struct {
	Failures []Failure
}

// OK reports whether every dispatched artifact succeeded.
func (s Summary) OK() bool { return len(s.Failures) == 0 }

// dispatcher gathers per-artifact failures across both sched work
// classes. Every task recovers its own outcome here rather than
// relying on sched.Scheduler.Wait()'s anonymous []error, so Summary can
// name which artifact failed.
type dispatcher struct {
	scheduler *sched.Scheduler
	onDone    func(artifact string, err error)

	mu       sync.Mutex
	failures []Failure
}

func newDispatcher(ctx context.Context, cfg Config) *dispatcher {
	return &dispatcher{
		scheduler: sched.New(ctx, cfg.RegistryPoolSize, cfg.GitPoolSize, cfg.PerTaskTimeout),
		onDone:    cfg.OnArtifactDone,
	}
}

// submit runs fn (wrapped with the default retry policy) on class,
// recording a Failure tagged with artifact if it ultimately errors.
func (d *dispatcher) submit(class sched.Class, artifact string, fn func(ctx context.Context) error) {
	d.scheduler.Submit(class, func(ctx context.Context) error {
		err := retry.Do(ctx, fn)
		if err != nil {
			d.mu.Lock()
			d.failures = append(d.failures, Failure{Artifact: artifact, Err: err})
			d.mu.Unlock()
		}
		if d.onDone != nil {
			d.onDone(artifact, err)
		}
		return err
	})
}

// wait blocks until every submitted task completes and returns the
// accumulated Summary.
func (d *dispatcher) wait() Summary {
	d.scheduler.Wait()
	d.mu.Lock()
	defer d.mu.Unlock()
	return Summary{Failures: d.failures}
}
