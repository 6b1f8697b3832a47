// Package youtube finds songs on YouTube and plays them outside aura, either
// in the system browser or through mpv.
package youtube

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"regexp"
	"time"

	"github.com/hammamikhairi/aura/internal/domain"
	"github.com/hammamikhairi/aura/internal/logger"
	"github.com/hammamikhairi/aura/internal/retry"
)

// DefaultBaseURL is the YouTube origin searched by default.
const DefaultBaseURL = "https://www.youtube.com"

var videoIDPattern = regexp.MustCompile(`"videoId":"([^"]+)"`)

// HTTPError is a non-2xx answer from the search page.
type HTTPError struct{ Code int }

func (e *HTTPError) Error() string { return fmt.Sprintf("youtube search returned %d", e.Code) }

// SearchOption configures the Searcher.
type SearchOption func(*Searcher)

// WithBaseURL overrides the YouTube origin.
func WithBaseURL(u string) SearchOption {
	return func(s *Searcher) { s.baseURL = u }
}

// WithSearchRetry overrides the retry policy.
func WithSearchRetry(p retry.Policy) SearchOption {
	return func(s *Searcher) { s.policy = p }
}

// Searcher scrapes the results page for the first video.
type Searcher struct {
	baseURL    string
	httpClient *http.Client
	policy     retry.Policy
	log        *logger.Logger
}

// NewSearcher creates a searcher.
func NewSearcher(log *logger.Logger, opts ...SearchOption) *Searcher {
	s := &Searcher{
		baseURL:    DefaultBaseURL,
		httpClient: &http.Client{Timeout: 15 * time.Second},
		policy:     retry.Default(),
		log:        log,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.policy.Retryable == nil {
		s.policy.Retryable = transient
	}
	return s
}

// Search returns the watch URL of the first result for query, or
// domain.ErrNotFound when the page lists no video.
func (s *Searcher) Search(ctx context.Context, query string) (string, error) {
	page, err := retry.Value(ctx, s.policy, func(ctx context.Context) (string, error) {
		return s.fetch(ctx, query)
	})
	if err != nil {
		return "", err
	}

	m := videoIDPattern.FindStringSubmatch(page)
	if m == nil {
		return "", fmt.Errorf("youtube search %q: %w", query, domain.ErrNotFound)
	}
	return s.baseURL + "/watch?v=" + m[1], nil
}

func (s *Searcher) fetch(ctx context.Context, query string) (string, error) {
	u := s.baseURL + "/results?search_query=" + url.QueryEscape(query)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return "", fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("User-Agent", "Mozilla/5.0 (X11; Linux x86_64) Aura/1.0")
	req.Header.Set("Accept-Language", "en-US,en;q=0.8")

	s.log.Debug("youtube: searching %q", query)
	resp, err := s.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("youtube search failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return "", &HTTPError{Code: resp.StatusCode}
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, 8<<20))
	if err != nil {
		return "", fmt.Errorf("reading search page: %w", err)
	}
	return string(body), nil
}

func transient(err error) bool {
	var he *HTTPError
	if errors.As(err, &he) {
		return he.Code == http.StatusTooManyRequests || he.Code >= 500
	}
	var ne net.Error
	return errors.As(err, &ne)
}
