// Package facts supplies read-only marketplace snapshots to the engine,
// either from the marketplace core service over HTTP or from memory for
// development and tests.
package facts

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/peershare/warden/internal/domain"
)

// HTTPProvider reads facts from the marketplace core service.
type HTTPProvider struct {
	baseURL string
	client  *http.Client
}

// NewHTTPProvider creates a facts provider backed by the marketplace core
// service at baseURL.
func NewHTTPProvider(cfg domain.FactsConfig) (*HTTPProvider, error) {
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("%w: facts baseUrl is required for the http provider", domain.ErrValidation)
	}
	timeout := time.Duration(cfg.TimeoutSecs) * time.Second
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &HTTPProvider{
		baseURL: cfg.BaseURL,
		client:  &http.Client{Timeout: timeout},
	}, nil
}

func (p *HTTPProvider) Product(ctx context.Context, id string) (*domain.Product, error) {
	var out domain.Product
	if err := p.get(ctx, "/internal/products/"+url.PathEscape(id), &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (p *HTTPProvider) Renter(ctx context.Context, id string) (*domain.Renter, error) {
	var out domain.Renter
	if err := p.get(ctx, "/internal/renters/"+url.PathEscape(id), &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (p *HTTPProvider) Booking(ctx context.Context, id string) (*domain.Booking, error) {
	var out domain.Booking
	if err := p.get(ctx, "/internal/bookings/"+url.PathEscape(id), &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (p *HTTPProvider) CategoryNorms(ctx context.Context, categoryID string) (*domain.CategoryNorms, error) {
	var out domain.CategoryNorms
	if err := p.get(ctx, "/internal/categories/"+url.PathEscape(categoryID)+"/norms", &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// get performs a GET and decodes the JSON body. A 404 maps to ErrNotFound;
// transport failures and non-2xx statuses map to ErrDependency so callers
// can tell "does not exist" from "could not ask".
func (p *HTTPProvider) get(ctx context.Context, path string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.baseURL+path, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")

	resp, err := p.client.Do(req)
	if err != nil {
		return fmt.Errorf("%w: facts request %s: %v", domain.ErrDependency, path, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return fmt.Errorf("%w: %s", domain.ErrNotFound, path)
	case resp.StatusCode < 200 || resp.StatusCode > 299:
		return fmt.Errorf("%w: facts request %s returned %d", domain.ErrDependency, path, resp.StatusCode)
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("%w: decoding facts response %s: %v", domain.ErrDependency, path, err)
	}
	return nil
}
