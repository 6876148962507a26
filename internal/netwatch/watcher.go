// Package netwatch observes OS network interfaces and signals the scheduler
// when connectivity may have appeared. It is a plain polling watcher over
// net.Interfaces, portable across platforms.
package netwatch

import (
	"log"
	"net"
	"time"
)

const eventBuffer = 10

// Watcher polls the interface table and emits a signal whenever an
// interface or an address was added. Removals and modifications without an
// addition are deliberately ignored as noise: losing an interface never
// makes a portal login worthwhile.
type Watcher struct {
	pollInterval time.Duration
	events       chan struct{}
	stopCh       chan struct{}
	doneCh       chan struct{}

	last map[string]map[string]struct{}
}

// New creates a watcher polling at the given interval.
func New(pollInterval time.Duration) *Watcher {
	if pollInterval <= 0 {
		pollInterval = 5 * time.Second
	}
	return &Watcher{
		pollInterval: pollInterval,
		events:       make(chan struct{}, eventBuffer),
		stopCh:       make(chan struct{}),
		doneCh:       make(chan struct{}),
	}
}

// Events returns the change signal channel. The channel is bounded; when
// the consumer is busy, bursts of interface churn collapse into the signals
// already queued.
func (w *Watcher) Events() <-chan struct{} {
	return w.events
}

// Start launches the polling loop. The first snapshot only seeds the
// baseline and emits nothing.
func (w *Watcher) Start() {
	w.last = snapshot()
	go w.run()
}

// Stop requests loop termination and waits until it is done.
func (w *Watcher) Stop() {
	select {
	case <-w.doneCh:
		return
	default:
	}
	close(w.stopCh)
	<-w.doneCh
}

func (w *Watcher) run() {
	defer close(w.doneCh)

	ticker := time.NewTicker(w.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			current := snapshot()
			if added(w.last, current) {
				log.Printf("netwatch: new interface or address detected")
				w.emit()
			}
			w.last = current
		case <-w.stopCh:
			return
		}
	}
}

// emit performs a non-blocking send; signals beyond the buffer are dropped
// rather than queued.
func (w *Watcher) emit() {
	select {
	case w.events <- struct{}{}:
	default:
		log.Printf("netwatch: change signal dropped, channel full")
	}
}

// added reports whether current contains an interface or address absent
// from prev.
func added(prev, current map[string]map[string]struct{}) bool {
	for name, addrs := range current {
		old, ok := prev[name]
		if !ok {
			return true
		}
		for addr := range addrs {
			if _, ok := old[addr]; !ok {
				return true
			}
		}
	}
	return false
}

func snapshot() map[string]map[string]struct{} {
	out := make(map[string]map[string]struct{})

	ifaces, err := net.Interfaces()
	if err != nil {
		log.Printf("netwatch: list interfaces: %v", err)
		return out
	}

	for _, iface := range ifaces {
		if iface.Flags&net.FlagUp == 0 {
			continue
		}
		set := make(map[string]struct{})
		addrs, err := iface.Addrs()
		if err == nil {
			for _, addr := range addrs {
				set[addr.String()] = struct{}{}
			}
		}
		out[iface.Name] = set
	}
	return out
}
