// Package daemon runs the hybrid scheduling loop: an adaptive poll timer
// combined with event-driven triggers from the network watcher, both raced
// against shutdown. One loop per process; cycles never overlap.
package daemon

import (
	"context"
	"encoding/json"
	"log"
	"sync"
	"time"

	"autoportal/internal/models"
	"autoportal/internal/portal"
)

// SessionRunner is the guarded operation the scheduler invokes each cycle.
type SessionRunner interface {
	Run(ctx context.Context, creds models.Credentials) portal.Result
}

// CredentialSource yields the portal account for the duration of one call.
type CredentialSource interface {
	Get() (models.Credentials, error)
}

// StatusSink records the persisted status after every cycle.
type StatusSink interface {
	Update(portalURL string, success bool) error
}

// HistorySink appends finished cycles to durable history.
type HistorySink interface {
	RecordCycle(ctx context.Context, rec *models.CycleRecord) error
	Prune(ctx context.Context, keep int) error
}

// Notifier delivers a best-effort user notification.
type Notifier interface {
	Notify(message string)
}

// Publisher receives each finished cycle for live consumers.
type Publisher interface {
	Publish(rec models.CycleRecord)
}

// ScheduleState is the only mutable state the scheduler owns across
// iterations and the sole source of truth for when to check again.
type ScheduleState struct {
	Interval time.Duration `json:"-"`
	LastOK   bool          `json:"last_ok"`
}

// MarshalJSON reports the interval in whole seconds for API consumers.
func (s ScheduleState) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		IntervalSeconds int64 `json:"interval_seconds"`
		LastOK          bool  `json:"last_ok"`
	}{
		IntervalSeconds: int64(s.Interval / time.Second),
		LastOK:          s.LastOK,
	})
}

// Options configures a Daemon. History, Notifier and Publisher may be nil.
type Options struct {
	Session     SessionRunner
	Credentials CredentialSource
	Status      StatusSink
	History     HistorySink
	Notifier    Notifier
	Publisher   Publisher

	// Events is the bounded change-signal channel from the watcher.
	Events <-chan struct{}

	MinInterval   time.Duration
	MaxInterval   time.Duration
	TriggerSettle time.Duration
	HistoryLimit  int
}

// Daemon is the single authoritative scheduling loop.
type Daemon struct {
	opts Options

	mu    sync.Mutex
	sched ScheduleState
}

// New creates a daemon starting at the minimum interval.
func New(opts Options) *Daemon {
	if opts.MinInterval <= 0 {
		opts.MinInterval = 10 * time.Second
	}
	if opts.MaxInterval < opts.MinInterval {
		opts.MaxInterval = 1800 * time.Second
	}
	return &Daemon{
		opts:  opts,
		sched: ScheduleState{Interval: opts.MinInterval},
	}
}

// Schedule returns the current scheduling state.
func (d *Daemon) Schedule() ScheduleState {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.sched
}

// Run blocks until ctx is cancelled. An in-flight cycle always finishes;
// shutdown is observed at iteration boundaries only.
func (d *Daemon) Run(ctx context.Context) error {
	log.Printf("daemon: performing initial check on startup")
	d.runCycle(models.TriggerStartup)

	log.Printf("daemon: starting hybrid watcher and polling loop")

	for {
		// Shutdown takes priority over a pending watcher signal.
		select {
		case <-ctx.Done():
			return d.shutdown()
		default:
		}

		interval := d.Schedule().Interval
		log.Printf("daemon: next poll in %s", interval)

		timer := time.NewTimer(interval)
		select {
		case <-ctx.Done():
			timer.Stop()
			return d.shutdown()

		case <-d.opts.Events:
			timer.Stop()
			log.Printf("daemon: network change signal received, checking after settle delay")
			if !sleepInterruptible(ctx, d.opts.TriggerSettle) {
				return d.shutdown()
			}
			d.runCycle(models.TriggerNetChange)

		case <-timer.C:
			log.Printf("daemon: polling interval elapsed, checking for captive portal")
			d.runCycle(models.TriggerTimer)
		}
	}
}

func (d *Daemon) shutdown() error {
	log.Printf("daemon: shutdown signal received, persisting state and exiting")
	if d.opts.Status != nil {
		if err := d.opts.Status.Update("", false); err != nil {
			log.Printf("daemon: final status write failed: %v", err)
		}
	}
	return nil
}

// runCycle executes one orchestrator cycle and folds the outcome into the
// next interval, the status record, the history store and the live stream.
func (d *Daemon) runCycle(trigger models.Trigger) {
	started := time.Now()

	rec := models.CycleRecord{
		StartedAt: started.UTC(),
		Trigger:   trigger,
	}

	creds, err := d.opts.Credentials.Get()
	if err != nil {
		log.Printf("daemon: cannot read credentials: %v", err)
		rec.Error = err.Error()
	} else {
		// Cycles deliberately ignore the loop context so shutdown cannot
		// cancel a login mid-flight.
		res := d.opts.Session.Run(context.Background(), creds)
		rec.PortalURL = res.PortalURL
		rec.Success = res.Success
		rec.LoggedIn = res.LoggedIn
		rec.Attempts = res.Attempts
		if res.Err != nil {
			rec.Error = res.Err.Error()
		}
	}
	rec.DurationMS = time.Since(started).Milliseconds()

	d.adapt(rec.Success)
	d.record(rec)

	if rec.Success && rec.LoggedIn {
		log.Printf("daemon: logged into captive portal successfully")
		if d.opts.Notifier != nil {
			d.opts.Notifier.Notify("Logged into captive portal successfully.")
		}
	} else if !rec.Success {
		log.Printf("daemon: cycle failed: %s", rec.Error)
	}
}

// adapt applies the interval policy: back off hard after success, probe
// increasingly often after failure.
func (d *Daemon) adapt(ok bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.sched.Interval = nextInterval(d.sched.Interval, d.opts.MinInterval, d.opts.MaxInterval, ok)
	d.sched.LastOK = ok
}

func (d *Daemon) record(rec models.CycleRecord) {
	if d.opts.Status != nil {
		if err := d.opts.Status.Update(rec.PortalURL, rec.Success); err != nil {
			log.Printf("daemon: status write failed: %v", err)
		}
	}
	if d.opts.History != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := d.opts.History.RecordCycle(ctx, &rec); err != nil {
			log.Printf("daemon: history write failed: %v", err)
		} else if d.opts.HistoryLimit > 0 {
			if err := d.opts.History.Prune(ctx, d.opts.HistoryLimit); err != nil {
				log.Printf("daemon: history prune failed: %v", err)
			}
		}
	}
	if d.opts.Publisher != nil {
		d.opts.Publisher.Publish(rec)
	}
}

// nextInterval keeps the invariant min <= interval <= max. Success jumps to
// max; anything else halves down to min.
func nextInterval(current, min, max time.Duration, ok bool) time.Duration {
	if ok {
		return max
	}
	next := current / 2
	if next < min {
		next = min
	}
	return next
}

// sleepInterruptible waits d unless ctx is cancelled first. It returns
// false when the wait was interrupted.
func sleepInterruptible(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return true
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return true
	case <-ctx.Done():
		return false
	}
}
