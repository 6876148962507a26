package portal

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"time"

	"autoportal/internal/models"
)

const (
	defaultMaxAttempts  = 3
	defaultRetryInitial = 2 * time.Second
	defaultVerifySettle = 2 * time.Second
)

// Result is the outcome of one full session cycle.
type Result struct {
	// PortalURL is the detected portal redirect, empty when none was seen.
	PortalURL string

	// LoggedIn is true when a login was actually performed (as opposed to a
	// clean probe that needed none).
	LoggedIn bool

	// Success is true when the cycle ended with reachable internet.
	Success bool

	// Attempts counts login attempts made; zero when no portal was seen.
	Attempts int

	// Err carries the final failure when Success is false.
	Err error
}

// Session composes prober, parser and submitter into one guarded operation:
// detect, fetch a fresh token, submit, verify, with bounded retries. All
// retry and backoff policy for the protocol lives here and nowhere else.
type Session struct {
	prober    *Prober
	parser    *Parser
	submitter *Submitter

	// MaxAttempts bounds login attempts per cycle.
	MaxAttempts int

	// RetryInitialDelay is the first backoff sleep; it doubles per attempt.
	RetryInitialDelay time.Duration

	// VerifySettle is the pause between the login POST and the verifying
	// probe, letting the gateway commit the session.
	VerifySettle time.Duration
}

// NewSession wires an orchestrator with the default retry policy.
func NewSession(prober *Prober, parser *Parser, submitter *Submitter) *Session {
	return &Session{
		prober:            prober,
		parser:            parser,
		submitter:         submitter,
		MaxAttempts:       defaultMaxAttempts,
		RetryInitialDelay: defaultRetryInitial,
		VerifySettle:      defaultVerifySettle,
	}
}

// Run executes one cycle. It never returns Success without a post-login
// probe confirming non-portal internet, except when that probe itself fails
// transiently, in which case success is assumed optimistically and logged.
func (s *Session) Run(ctx context.Context, creds models.Credentials) Result {
	probe, err := s.prober.Probe(ctx)
	if err != nil {
		return Result{Err: err}
	}

	if probe.Clear {
		return Result{Success: true}
	}

	log.Printf("session: captive portal detected at %s", probe.RedirectURL)

	attempts, err := s.loginWithRetry(ctx, probe.RedirectURL, creds)
	if err != nil {
		return Result{PortalURL: probe.RedirectURL, Attempts: attempts, Err: err}
	}
	return Result{PortalURL: probe.RedirectURL, LoggedIn: true, Success: true, Attempts: attempts}
}

// loginWithRetry drives token fetch, submission and verification up to
// MaxAttempts times. Between attempts it issues a best-effort logout to
// clear any half-open server-side session, then sleeps the exponential
// backoff. A missing token aborts immediately: it signals a changed portal
// page, not a transient condition.
func (s *Session) loginWithRetry(ctx context.Context, redirectURL string, creds models.Credentials) (int, error) {
	var lastErr error

	for attempt := 1; attempt <= s.MaxAttempts; attempt++ {
		lastErr = s.attempt(ctx, redirectURL, creds)
		if lastErr == nil {
			return attempt, nil
		}
		if errors.Is(lastErr, ErrTokenMissing) {
			return attempt, lastErr
		}

		log.Printf("session: login attempt %d/%d failed: %v", attempt, s.MaxAttempts, lastErr)

		if attempt < s.MaxAttempts {
			s.submitter.Logout(ctx)
			if err := sleepCtx(ctx, s.RetryInitialDelay<<(attempt-1)); err != nil {
				return attempt, lastErr
			}
		}
	}
	return s.MaxAttempts, lastErr
}

// attempt runs one pass of the TokenFetch -> Submitting -> Verifying states.
func (s *Session) attempt(ctx context.Context, redirectURL string, creds models.Credentials) error {
	token, err := s.FetchToken(ctx, redirectURL)
	if err != nil {
		return err
	}

	if err := s.submitter.SubmitLogin(ctx, redirectURL, creds, token); err != nil {
		return err
	}

	return s.verify(ctx)
}

// FetchToken loads the portal login page and scrapes the one-time magic
// value. Tokens are never cached across attempts; the portal rotates them.
func (s *Session) FetchToken(ctx context.Context, redirectURL string) (models.PortalToken, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, redirectURL, nil)
	if err != nil {
		return models.PortalToken{}, fmt.Errorf("build portal page request: %w", err)
	}

	resp, err := s.submitter.Client().Do(req)
	if err != nil {
		return models.PortalToken{}, fmt.Errorf("fetch portal page: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, readLimit))
	if err != nil {
		return models.PortalToken{}, fmt.Errorf("read portal page: %w", err)
	}

	magic, ok := s.parser.FormToken(string(body))
	if !ok {
		return models.PortalToken{}, ErrTokenMissing
	}
	return models.PortalToken{LoginURL: redirectURL, Magic: magic}, nil
}

// verify waits for the gateway to settle, then independently confirms that
// the portal is gone. A still-visible portal or an ambiguous answer is
// treated as failed verification (likely bad credentials). A failing probe
// is inconclusive: the POST itself was accepted, so success is assumed.
func (s *Session) verify(ctx context.Context) error {
	if err := sleepCtx(ctx, s.VerifySettle); err != nil {
		return err
	}

	probe, err := s.prober.Probe(ctx)
	if err != nil {
		log.Printf("session: verify inconclusive, assuming success: %v", err)
		return nil
	}
	if probe.Ambiguous || probe.PortalDetected() {
		return ErrVerificationFailed
	}
	return nil
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
