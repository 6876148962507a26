package portal

import (
	"context"
	"fmt"
	"io"
	"log"
	"net/http"

	"autoportal/internal/models"
)

// readLimit caps how much of a probe or portal response is read. Portal
// pages are small; anything larger is not the page we are looking for.
const readLimit = 1 << 20

// Prober issues the lightweight connectivity check against a no-content
// endpoint and classifies the response.
type Prober struct {
	client   *http.Client
	parser   *Parser
	checkURL string
}

// NewProber wires a prober to the shared HTTP client and parser.
func NewProber(client *http.Client, parser *Parser, checkURL string) *Prober {
	return &Prober{client: client, parser: parser, checkURL: checkURL}
}

// Probe classifies the current connectivity state. A 204 means the internet
// is reachable. A 200 whose body carries the gateway's redirect marker means
// a captive portal intercepted the request. A 200 without the marker is
// indistinct: the probe is issued once more, and only a second indistinct
// response is accepted as clear. Any other status or a transport failure is
// returned as an error.
func (p *Prober) Probe(ctx context.Context) (models.ConnectivityResult, error) {
	indistinct := false

	for {
		status, body, err := p.fetch(ctx)
		if err != nil {
			return models.ConnectivityResult{}, err
		}

		switch {
		case status == http.StatusNoContent:
			return models.ConnectivityResult{Clear: true}, nil
		case status == http.StatusOK:
			if url, ok := p.parser.RedirectURL(body); ok {
				return models.ConnectivityResult{RedirectURL: url}, nil
			}
			if indistinct {
				log.Printf("probe: second indistinct 200 from %s, treating as clear", p.checkURL)
				return models.ConnectivityResult{Clear: true, Ambiguous: true}, nil
			}
			indistinct = true
		default:
			return models.ConnectivityResult{}, &UnexpectedStatusError{URL: p.checkURL, StatusCode: status}
		}
	}
}

func (p *Prober) fetch(ctx context.Context) (int, string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.checkURL, nil)
	if err != nil {
		return 0, "", fmt.Errorf("build probe request: %w", err)
	}

	resp, err := p.client.Do(req)
	if err != nil {
		return 0, "", fmt.Errorf("connectivity probe: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, readLimit))
	if err != nil {
		return 0, "", fmt.Errorf("read probe response: %w", err)
	}
	return resp.StatusCode, string(body), nil
}
