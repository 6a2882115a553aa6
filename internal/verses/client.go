// Package verses proxies scripture lookups to an external verse text service.
package verses

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/starford/postcards/internal/apperr"
	"github.com/starford/postcards/internal/models"
)

const (
	// DefaultBaseURL is the public bible-api.com endpoint.
	DefaultBaseURL = "https://bible-api.com"
	// DefaultTranslation is requested upstream unless configured otherwise.
	DefaultTranslation = "web"
	// NoVerseText is returned as text when the upstream matched no verses.
	NoVerseText = "No verse text found."

	defaultTimeout = 5 * time.Second
)

// ErrInvalidReference is returned for an empty reference before any network call.
var ErrInvalidReference = fmt.Errorf("%w: missing or invalid verse reference", apperr.ErrValidation)

type upstreamVerse struct {
	Text string `json:"text"`
}

type upstreamResponse struct {
	Reference     string          `json:"reference"`
	TranslationID string          `json:"translation_id"`
	Verses        []upstreamVerse `json:"verses"`
}

// Client looks verses up over HTTP. Each call is a fresh round trip: no retries, no cache.
type Client struct {
	baseURL     string
	translation string
	timeout     time.Duration
	httpClient  *http.Client
}

// Option configures a Client.
type Option func(*Client)

// WithBaseURL points the client at another upstream (tests, mirrors).
func WithBaseURL(u string) Option {
	return func(c *Client) { c.baseURL = strings.TrimRight(u, "/") }
}

// WithTranslation sets the translation code sent upstream.
func WithTranslation(code string) Option {
	return func(c *Client) { c.translation = code }
}

// WithTimeout bounds a single upstream round trip. It applies on top of
// any client given through WithHTTPClient, in either order.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) { c.timeout = d }
}

// WithHTTPClient replaces the underlying HTTP client. The client is copied,
// never modified.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// NewClient creates a lookup client with a bounded timeout.
func NewClient(opts ...Option) *Client {
	c := &Client{
		baseURL:     DefaultBaseURL,
		translation: DefaultTranslation,
		timeout:     defaultTimeout,
		httpClient:  http.DefaultClient,
	}
	for _, opt := range opts {
		opt(c)
	}
	hc := *c.httpClient
	if c.timeout > 0 {
		hc.Timeout = c.timeout
	}
	c.httpClient = &hc
	return c
}

// Lookup fetches reference from the upstream and normalizes the answer.
// Surrounding whitespace is dropped from the request path only; when the
// upstream echoes no reference, the caller's value comes back unchanged.
func (c *Client) Lookup(ctx context.Context, reference string) (*models.VerseLookupResult, error) {
	trimmed := strings.TrimSpace(reference)
	if trimmed == "" {
		return nil, ErrInvalidReference
	}

	u := c.baseURL + "/" + url.PathEscape(trimmed)
	if c.translation != "" {
		u += "?translation=" + url.QueryEscape(c.translation)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, &apperr.UpstreamError{Err: fmt.Errorf("build request: %w", err)}
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, &apperr.UpstreamError{Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))
		return nil, &apperr.UpstreamError{
			Status: resp.StatusCode,
			Err:    errors.New(http.StatusText(resp.StatusCode)),
		}
	}

	var payload upstreamResponse
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, &apperr.UpstreamError{Err: fmt.Errorf("decode response: %w", err)}
	}
	return c.normalize(reference, payload), nil
}

func (c *Client) normalize(reference string, payload upstreamResponse) *models.VerseLookupResult {
	parts := make([]string, 0, len(payload.Verses))
	for _, v := range payload.Verses {
		parts = append(parts, v.Text)
	}
	text := strings.TrimSpace(strings.Join(parts, " "))
	if text == "" {
		text = NoVerseText
	}

	ref := payload.Reference
	if ref == "" {
		ref = reference
	}

	translation := payload.TranslationID
	if translation == "" {
		translation = c.translation
	}
	if translation == "" {
		translation = DefaultTranslation
	}

	return &models.VerseLookupResult{
		Reference:   ref,
		Text:        text,
		Translation: strings.ToUpper(translation),
	}
}
