// Package notify delivers best-effort desktop notifications. Delivery
// failures are logged, never propagated; the daemon runs headless on
// machines where no notification service exists.
package notify

import (
	"log"

	"github.com/gen2brain/beeep"
)

const title = "Auto Captive Portal"

// Notifier sends desktop notifications when enabled.
type Notifier struct {
	enabled bool
}

// New returns a notifier; a disabled one silently drops every message.
func New(enabled bool) *Notifier {
	return &Notifier{enabled: enabled}
}

// Notify shows the message. Never fails the caller.
func (n *Notifier) Notify(message string) {
	if !n.enabled {
		return
	}
	if err := beeep.Notify(title, message, ""); err != nil {
		log.Printf("notify: %v", err)
	}
}
