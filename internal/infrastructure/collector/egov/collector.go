package egov

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/hokuto-sato/lawsearch/internal/core/domain"
)

// Collector downloads Standard Law XML from the e-Gov open data endpoint.
// Requests are throttled so bulk ingestion stays polite to the upstream.
type Collector struct {
	baseURL    string
	httpClient *http.Client
	limiter    *rate.Limiter
}

func New(baseURL string, ratePerSec float64, burst int) *Collector {
	if ratePerSec <= 0 {
		ratePerSec = 1
	}
	if burst <= 0 {
		burst = 1
	}
	return &Collector{
		baseURL: strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{
			Timeout: 60 * time.Second,
		},
		limiter: rate.NewLimiter(rate.Limit(ratePerSec), burst),
	}
}

func (c *Collector) FetchLawXML(ctx context.Context, lawID string) (io.ReadCloser, error) {
	lawID = strings.TrimSpace(lawID)
	if lawID == "" {
		return nil, domain.WrapError(domain.ErrInvalidQuery, "fetch law xml", errors.New("law id is required"))
	}

	if err := c.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("wait for rate limiter: %w", err)
	}

	url := fmt.Sprintf("%s/api/opendata/%s.xml", c.baseURL, lawID)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/xml")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, domain.WrapError(domain.ErrTemporary, "fetch law xml", err)
	}

	switch {
	case resp.StatusCode == http.StatusOK:
		return resp.Body, nil
	case resp.StatusCode == http.StatusNotFound:
		resp.Body.Close()
		return nil, domain.WrapError(domain.ErrLawNotFound, "fetch law xml", fmt.Errorf("law %s not found upstream", lawID))
	case resp.StatusCode >= http.StatusInternalServerError || resp.StatusCode == http.StatusTooManyRequests:
		resp.Body.Close()
		return nil, domain.WrapError(domain.ErrTemporary, "fetch law xml", fmt.Errorf("upstream returned status %d", resp.StatusCode))
	default:
		resp.Body.Close()
		return nil, fmt.Errorf("fetch law xml: unexpected status %d", resp.StatusCode)
	}
}
