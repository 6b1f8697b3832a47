// Package recognize identifies songs by uploading a captured sample to an
// AudD-compatible recognition API.
package recognize

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/hammamikhairi/aura/internal/domain"
	"github.com/hammamikhairi/aura/internal/logger"
	"github.com/hammamikhairi/aura/internal/retry"
)

// DefaultEndpoint is the public AudD API.
const DefaultEndpoint = "https://api.audd.io/"

// StatusError is a non-200 HTTP answer.
type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("recognition service returned %d: %s", e.Code, e.Body)
}

// APIError is an error reported inside a 200 response (bad token, bad
// file, quota).
type APIError struct {
	Code    int    `json:"error_code"`
	Message string `json:"error_message"`
}

func (e *APIError) Error() string {
	return fmt.Sprintf("recognition api error %d: %s", e.Code, e.Message)
}

// Option configures the client.
type Option func(*AuddClient)

// WithEndpoint overrides the API URL.
func WithEndpoint(url string) Option {
	return func(c *AuddClient) { c.endpoint = url }
}

// WithHTTPClient replaces the HTTP client.
func WithHTTPClient(h *http.Client) Option {
	return func(c *AuddClient) { c.httpClient = h }
}

// WithRetry overrides the retry policy for transient failures.
func WithRetry(p retry.Policy) Option {
	return func(c *AuddClient) { c.policy = p }
}

// AuddClient talks to the recognition API.
type AuddClient struct {
	token      string
	endpoint   string
	httpClient *http.Client
	policy     retry.Policy
	log        *logger.Logger
}

var _ domain.Recognizer = (*AuddClient)(nil)

// NewAuddClient creates a client authenticated with token.
func NewAuddClient(token string, log *logger.Logger, opts ...Option) *AuddClient {
	c := &AuddClient{
		token:    token,
		endpoint: DefaultEndpoint,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
		policy: retry.Default(),
		log:    log,
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.policy.Retryable == nil {
		c.policy.Retryable = transient
	}
	return c
}

type auddResponse struct {
	Status string      `json:"status"`
	Error  *APIError   `json:"error"`
	Result *auddResult `json:"result"`
}

type auddResult struct {
	Artist      string `json:"artist"`
	Title       string `json:"title"`
	Album       string `json:"album"`
	ReleaseDate string `json:"release_date"`
	AppleMusic  *struct {
		GenreNames []string `json:"genreNames"`
	} `json:"apple_music"`
	Spotify *struct {
		Popularity int `json:"popularity"`
	} `json:"spotify"`
}

// Recognize uploads the WAV at audioPath. It returns domain.ErrNoMatch when
// the service found nothing. Transient failures are retried.
func (c *AuddClient) Recognize(ctx context.Context, audioPath string) (*domain.Match, error) {
	data, err := os.ReadFile(audioPath)
	if err != nil {
		return nil, fmt.Errorf("reading sample: %w", err)
	}

	resp, err := retry.Value(ctx, c.policy, func(ctx context.Context) (*auddResponse, error) {
		return c.post(ctx, filepath.Base(audioPath), data)
	})
	if err != nil {
		return nil, err
	}

	if resp.Status != "success" {
		if resp.Error != nil {
			return nil, resp.Error
		}
		return nil, fmt.Errorf("recognition failed with status %q", resp.Status)
	}
	if resp.Result == nil || (resp.Result.Title == "" && resp.Result.Artist == "") {
		return nil, domain.ErrNoMatch
	}

	r := resp.Result
	m := &domain.Match{
		Title:       r.Title,
		Artist:      r.Artist,
		Album:       r.Album,
		ReleaseDate: r.ReleaseDate,
	}
	if r.AppleMusic != nil && len(r.AppleMusic.GenreNames) > 0 {
		m.Genre = r.AppleMusic.GenreNames[0]
	}
	if r.Spotify != nil {
		m.Popularity = r.Spotify.Popularity
	}
	c.log.Debug("recognize: %q by %q", m.Title, m.Artist)
	return m, nil
}

func (c *AuddClient) post(ctx context.Context, name string, sample []byte) (*auddResponse, error) {
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	_ = mw.WriteField("api_token", c.token)
	_ = mw.WriteField("return", "apple_music,spotify")
	fw, err := mw.CreateFormFile("file", name)
	if err != nil {
		return nil, fmt.Errorf("building upload: %w", err)
	}
	if _, err := fw.Write(sample); err != nil {
		return nil, fmt.Errorf("building upload: %w", err)
	}
	if err := mw.Close(); err != nil {
		return nil, fmt.Errorf("building upload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, &body)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())
	req.Header.Set("User-Agent", "Aura/1.0")

	c.log.Debug("recognize: uploading %d bytes", len(sample))
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("recognition request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, &StatusError{Code: resp.StatusCode, Body: string(b)}
	}

	var out auddResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("decoding response: %w", err)
	}
	return &out, nil
}

// Ping checks that the service is reachable. Any answer below 500 counts.
func (c *AuddClient) Ping(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.endpoint, nil)
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("recognition service unreachable: %w", err)
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)

	if resp.StatusCode >= 500 {
		return &StatusError{Code: resp.StatusCode}
	}
	return nil
}

// transient reports whether err is worth retrying: network failures, 429
// and 5xx answers.
func transient(err error) bool {
	var se *StatusError
	if errors.As(err, &se) {
		return se.Code == http.StatusTooManyRequests || se.Code >= 500
	}
	var ne net.Error
	if errors.As(err, &ne) {
		return true
	}
	return false
}
