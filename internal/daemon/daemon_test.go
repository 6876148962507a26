package daemon

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"autoportal/internal/models"
	"autoportal/internal/portal"
)

type fakeSession struct {
	mu      sync.Mutex
	results []portal.Result
	calls   int
	ran     chan struct{}
}

func (f *fakeSession) Run(ctx context.Context, creds models.Credentials) portal.Result {
	f.mu.Lock()
	res := portal.Result{Success: true}
	if f.calls < len(f.results) {
		res = f.results[f.calls]
	}
	f.calls++
	f.mu.Unlock()
	if f.ran != nil {
		f.ran <- struct{}{}
	}
	return res
}

func (f *fakeSession) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

type fakeCreds struct {
	err error
}

func (f fakeCreds) Get() (models.Credentials, error) {
	return models.Credentials{Username: "u", Password: "p"}, f.err
}

type fakeStatus struct {
	mu      sync.Mutex
	updates []bool
}

func (f *fakeStatus) Update(portalURL string, success bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.updates = append(f.updates, success)
	return nil
}

type fakeHistory struct {
	mu     sync.Mutex
	recs   []models.CycleRecord
	pruned int
}

func (f *fakeHistory) RecordCycle(ctx context.Context, rec *models.CycleRecord) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.recs = append(f.recs, *rec)
	return nil
}

func (f *fakeHistory) Prune(ctx context.Context, keep int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.pruned++
	return nil
}

func TestNextInterval(t *testing.T) {
	const (
		min = 10 * time.Second
		max = 1800 * time.Second
	)

	t.Run("success jumps to max", func(t *testing.T) {
		assert.Equal(t, max, nextInterval(min, min, max, true))
		assert.Equal(t, max, nextInterval(max, min, max, true))
	})

	t.Run("failure halves down to min", func(t *testing.T) {
		cur := max
		for i := 0; i < 20; i++ {
			next := nextInterval(cur, min, max, false)
			assert.LessOrEqual(t, next, cur)
			assert.GreaterOrEqual(t, next, min)
			cur = next
		}
		assert.Equal(t, min, cur, "repeated failures converge to the minimum")
	})

	t.Run("halving sequence", func(t *testing.T) {
		cur := max
		want := []time.Duration{900 * time.Second, 450 * time.Second, 225 * time.Second}
		for _, w := range want {
			cur = nextInterval(cur, min, max, false)
			assert.Equal(t, w, cur)
		}
	})
}

func TestDaemonInitialCycleAndAdapt(t *testing.T) {
	sess := &fakeSession{results: []portal.Result{{Success: true, LoggedIn: true, Attempts: 1}}}
	status := &fakeStatus{}
	hist := &fakeHistory{}

	d := New(Options{
		Session:      sess,
		Credentials:  fakeCreds{},
		Status:       status,
		History:      hist,
		MinInterval:  10 * time.Second,
		MaxInterval:  1800 * time.Second,
		HistoryLimit: 100,
	})

	d.runCycle(models.TriggerStartup)

	assert.Equal(t, 1, sess.count())
	assert.Equal(t, 1800*time.Second, d.Schedule().Interval)
	assert.True(t, d.Schedule().LastOK)

	require.Len(t, hist.recs, 1)
	assert.Equal(t, models.TriggerStartup, hist.recs[0].Trigger)
	assert.True(t, hist.recs[0].Success)
	assert.Equal(t, 1, hist.pruned)
	assert.Equal(t, []bool{true}, status.updates)
}

func TestDaemonFailureShrinksInterval(t *testing.T) {
	sess := &fakeSession{results: []portal.Result{
		{Success: false, Err: errors.New("no route")},
		{Success: false, Err: errors.New("no route")},
	}}

	d := New(Options{
		Session:     sess,
		Credentials: fakeCreds{},
		MinInterval: 10 * time.Second,
		MaxInterval: 1800 * time.Second,
	})
	d.sched.Interval = 1800 * time.Second

	d.runCycle(models.TriggerTimer)
	assert.Equal(t, 900*time.Second, d.Schedule().Interval)

	d.runCycle(models.TriggerTimer)
	assert.Equal(t, 450*time.Second, d.Schedule().Interval)
	assert.False(t, d.Schedule().LastOK)
}

func TestDaemonCredentialErrorCountsAsFailure(t *testing.T) {
	hist := &fakeHistory{}
	d := New(Options{
		Session:     &fakeSession{},
		Credentials: fakeCreds{err: errors.New("keyring locked")},
		History:     hist,
		MinInterval: 10 * time.Second,
		MaxInterval: 1800 * time.Second,
	})

	d.runCycle(models.TriggerManual)

	require.Len(t, hist.recs, 1)
	assert.False(t, hist.recs[0].Success)
	assert.Contains(t, hist.recs[0].Error, "keyring locked")
	assert.Equal(t, 10*time.Second, d.Schedule().Interval)
}

func TestDaemonEventTriggersCycle(t *testing.T) {
	sess := &fakeSession{ran: make(chan struct{}, 4)}
	events := make(chan struct{}, 1)

	d := New(Options{
		Session:     sess,
		Credentials: fakeCreds{},
		Events:      events,
		MinInterval: time.Hour,
		MaxInterval: time.Hour,
	})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- d.Run(ctx) }()

	// Initial startup cycle.
	select {
	case <-sess.ran:
	case <-time.After(2 * time.Second):
		t.Fatal("startup cycle never ran")
	}

	// A watcher signal preempts the hour-long timer.
	events <- struct{}{}
	select {
	case <-sess.ran:
	case <-time.After(2 * time.Second):
		t.Fatal("network change signal did not trigger a cycle")
	}

	cancel()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("daemon did not shut down")
	}

	assert.Equal(t, 2, sess.count())
}

func TestDaemonShutdownWritesFinalStatus(t *testing.T) {
	status := &fakeStatus{}
	d := New(Options{
		Session:     &fakeSession{},
		Credentials: fakeCreds{},
		Status:      status,
		MinInterval: time.Hour,
		MaxInterval: time.Hour,
	})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	require.NoError(t, d.Run(ctx))

	status.mu.Lock()
	defer status.mu.Unlock()
	// Startup cycle update plus the final shutdown write.
	require.NotEmpty(t, status.updates)
	assert.False(t, status.updates[len(status.updates)-1])
}

func TestScheduleStateJSON(t *testing.T) {
	b, err := json.Marshal(ScheduleState{Interval: 90 * time.Second, LastOK: true})
	require.NoError(t, err)
	assert.JSONEq(t, `{"interval_seconds":90,"last_ok":true}`, string(b))
}
