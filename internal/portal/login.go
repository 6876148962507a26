package portal

import (
	"context"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"strings"

	"autoportal/internal/models"
)

// Submitter performs the authenticated form POST against the portal and the
// best-effort logout. It owns the shared HTTP client used by every network
// operation in the session.
type Submitter struct {
	client     *http.Client
	portalHost string
	loginURL   string
	logoutURL  string
}

// NewSubmitter wires a submitter for the configured portal endpoints.
func NewSubmitter(client *http.Client, portalHost, loginURL, logoutURL string) *Submitter {
	return &Submitter{
		client:     client,
		portalHost: portalHost,
		loginURL:   loginURL,
		logoutURL:  logoutURL,
	}
}

// Client exposes the shared HTTP client for collaborators that fetch portal
// pages through the same connection pool.
func (s *Submitter) Client() *http.Client {
	return s.client
}

// SubmitLogin POSTs the credentials and the one-time token to the portal.
// The gateway requires the POST to hit its fixed auth endpoint; the detected
// redirect URL is only carried along as the 4Tredir form field. A 2xx/3xx
// answer means the submission was accepted for processing, not that the
// login worked; callers must verify connectivity afterwards.
func (s *Submitter) SubmitLogin(ctx context.Context, redirectURL string, creds models.Credentials, token models.PortalToken) error {
	target := s.postTarget(redirectURL)

	form := url.Values{}
	form.Set("username", creds.Username)
	form.Set("password", creds.Password)
	form.Set("magic", token.Magic)
	form.Set("4Tredir", redirectURL)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, target, strings.NewReader(form.Encode()))
	if err != nil {
		return fmt.Errorf("build login request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("login submit: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 200 && resp.StatusCode < 400 {
		return nil
	}

	body, _ := io.ReadAll(io.LimitReader(resp.Body, readLimit))
	return &RejectedError{StatusCode: resp.StatusCode, Body: string(body)}
}

// postTarget applies the portal quirk: redirects that belong to the known
// gateway must be answered at its fixed login endpoint, not at the detected
// URL. Unknown hosts fall back to the detected URL as-is.
func (s *Submitter) postTarget(redirectURL string) string {
	u, err := url.Parse(redirectURL)
	if err != nil || u.Host == "" {
		return s.loginURL
	}
	if u.Host == s.portalHost {
		return s.loginURL
	}
	return redirectURL
}

// Logout issues the advisory logout GET. Logging out while already logged
// out commonly errors, so every failure is swallowed after logging.
func (s *Submitter) Logout(ctx context.Context) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.logoutURL, nil)
	if err != nil {
		log.Printf("logout: build request: %v", err)
		return
	}

	resp, err := s.client.Do(req)
	if err != nil {
		log.Printf("logout: %v", err)
		return
	}
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, readLimit))
	resp.Body.Close()
}
