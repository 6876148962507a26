package models

import "time"

// ConnectivityResult captures the outcome of a single connectivity probe.
// A probe either comes back clear or carries the portal redirect it found;
// transport and protocol failures are reported as errors by the prober and
// never produce a result.
type ConnectivityResult struct {
	// Clear is true when the internet is reachable without a portal.
	Clear bool `json:"clear"`

	// RedirectURL is the portal login page detected in the probe response.
	RedirectURL string `json:"redirect_url,omitempty"`

	// Ambiguous marks a Clear verdict derived from repeated indistinct
	// responses rather than a real no-content reply.
	Ambiguous bool `json:"ambiguous,omitempty"`
}

// PortalDetected reports whether the probe saw a captive portal.
func (r ConnectivityResult) PortalDetected() bool {
	return r.RedirectURL != ""
}

// PortalToken is the one-time form token scraped from a portal login page.
// It is valid for a single login attempt and must be re-fetched for every
// retry because the portal rotates it.
type PortalToken struct {
	LoginURL string
	Magic    string
}

// Valid reports whether the token can be submitted. An empty magic value is
// treated as absent; the portal never issues empty valid tokens.
func (t PortalToken) Valid() bool {
	return t.Magic != ""
}

// Credentials holds the portal account. Values are never logged and never
// persisted by the core.
type Credentials struct {
	Username string
	Password string
}

// Trigger names the event that started a session cycle.
type Trigger string

const (
	TriggerStartup   Trigger = "startup"
	TriggerTimer     Trigger = "timer"
	TriggerNetChange Trigger = "netchange"
	TriggerManual    Trigger = "manual"
)

// CycleRecord stores the outcome of one orchestrator cycle.
type CycleRecord struct {
	ID         string    `json:"id"`
	StartedAt  time.Time `json:"started_at"`
	Trigger    Trigger   `json:"trigger"`
	PortalURL  string    `json:"portal_url,omitempty"`
	Success    bool      `json:"success"`
	LoggedIn   bool      `json:"logged_in"`
	Attempts   int       `json:"attempts"`
	Error      string    `json:"error,omitempty"`
	DurationMS int64     `json:"duration_ms"`
}
