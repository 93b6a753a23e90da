package wiki

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"golang.org/x/time/rate"

	logx "wikiwatch/pkg/logx"
)

// ClientConfig tunes the shared outbound API client.
type ClientConfig struct {
	UserAgent  string
	Timeout    time.Duration
	RatePerSec int // token bucket over all sources; <=0 means 5
}

// Client performs rate-limited GET-with-params JSON calls against source
// APIs. One Client is shared read-mostly by all sources.
type Client struct {
	http      *http.Client
	limiter   *rate.Limiter
	userAgent string
	log       logx.Logger

	// now is swappable in tests; FetchWindow snapshots it.
	now func() time.Time
}

func NewClient(cfg ClientConfig, hc *http.Client, log logx.Logger) *Client {
	if hc == nil {
		timeout := cfg.Timeout
		if timeout <= 0 {
			timeout = 30 * time.Second
		}
		hc = &http.Client{Timeout: timeout}
	}
	rps := cfg.RatePerSec
	if rps <= 0 {
		rps = 5
	}
	ua := cfg.UserAgent
	if ua == "" {
		ua = "wikiwatch (feed relay)"
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Client{
		http:      hc,
		limiter:   rate.NewLimiter(rate.Limit(rps), rps),
		userAgent: ua,
		log:       log,
		now:       time.Now,
	}
}

// Now returns the client's clock reading; sources use it to fix the
// upper bound of a fetch window before any request goes out.
func (c *Client) Now() time.Time { return c.now().UTC() }

// GetJSON issues GET rawURL?params and decodes the JSON body into out.
// A 204 response leaves out untouched and returns nil.
func (c *Client) GetJSON(ctx context.Context, rawURL string, params url.Values, out any) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return err
	}

	u := rawURL
	if len(params) > 0 {
		u += "?" + params.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return err
	}
	req.Header.Set("User-Agent", c.userAgent)
	req.Header.Set("Accept", "application/json")

	c.log.Trace("api request", logx.String("url", rawURL))
	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer func() {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		_ = resp.Body.Close()
	}()

	if resp.StatusCode == http.StatusNoContent {
		return nil
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("GET %s: unexpected status %d", rawURL, resp.StatusCode)
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("GET %s: decode: %w", rawURL, err)
	}
	return nil
}
