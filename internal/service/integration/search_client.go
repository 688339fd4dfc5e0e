package integration

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/RubachokBoss/plagiarism-checker/similarity-service/internal/metrics"
	"github.com/RubachokBoss/plagiarism-checker/similarity-service/internal/models"
	"github.com/rs/zerolog"
)

// SearchClient looks up public pages resembling a document. It never returns
// an error: every failure degrades to an empty list and a warning.
type SearchClient interface {
	FindSources(ctx context.Context, rawText string) []models.ExternalSource
}

type SearchConfig struct {
	Enabled       bool
	Endpoint      string
	APIKey        string
	EngineID      string
	Timeout       time.Duration
	RetryCount    int
	RetryDelay    time.Duration
	MaxResults    int
	MaxQueryWords int
	SnippetLength int
}

// Upper bounds on the advisor output; larger configured values are clamped.
const (
	MaxSources       = 5
	MaxSnippetLength = 220
)

var errRateLimited = errors.New("search rate limited")

type searchClient struct {
	cfg    SearchConfig
	client *http.Client
	logger zerolog.Logger
}

type searchResponse struct {
	Items []struct {
		Link    string `json:"link"`
		Title   string `json:"title"`
		Snippet string `json:"snippet"`
	} `json:"items"`
}

func NewSearchClient(cfg SearchConfig, logger zerolog.Logger) SearchClient {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 8 * time.Second
	}
	if cfg.MaxResults <= 0 || cfg.MaxResults > MaxSources {
		cfg.MaxResults = MaxSources
	}
	if cfg.MaxQueryWords <= 0 {
		cfg.MaxQueryWords = 32
	}
	if cfg.SnippetLength <= 0 || cfg.SnippetLength > MaxSnippetLength {
		cfg.SnippetLength = MaxSnippetLength
	}
	if cfg.RetryCount < 0 {
		cfg.RetryCount = 0
	}

	return &searchClient{
		cfg: cfg,
		client: &http.Client{
			Timeout: cfg.Timeout,
		},
		logger: logger.With().Str("component", "source_advisor").Logger(),
	}
}

func (c *searchClient) FindSources(ctx context.Context, rawText string) []models.ExternalSource {
	sources := []models.ExternalSource{}

	if !c.cfg.Enabled || c.cfg.APIKey == "" || c.cfg.EngineID == "" {
		c.logger.Debug().Msg("External source lookup disabled or not configured")
		return sources
	}

	query := buildQuery(rawText, c.cfg.MaxQueryWords)
	if query == "" {
		return sources
	}

	ctx, cancel := context.WithTimeout(ctx, c.cfg.Timeout)
	defer cancel()

	var lastErr error
	for i := 0; i <= c.cfg.RetryCount; i++ {
		if i > 0 {
			c.logger.Warn().Int("attempt", i).Msg("Retrying external source lookup")
			select {
			case <-time.After(c.cfg.RetryDelay * time.Duration(i)):
			case <-ctx.Done():
				lastErr = ctx.Err()
			}
			if ctx.Err() != nil {
				break
			}
		}

		result, err := c.search(ctx, query)
		if err == nil {
			sources = c.toSources(result)
			c.logger.Debug().Int("sources", len(sources)).Msg("External source lookup completed")
			return sources
		}
		lastErr = err
		if errors.Is(err, errRateLimited) || ctx.Err() != nil {
			break
		}
	}

	reason := "error"
	switch {
	case errors.Is(lastErr, errRateLimited):
		reason = "rate_limited"
	case errors.Is(lastErr, context.DeadlineExceeded):
		reason = "timeout"
	}
	metrics.AdvisorFailuresTotal.WithLabelValues(reason).Inc()

	c.logger.Warn().Err(lastErr).Str("reason", reason).Msg("External source check failed, continuing without sources")
	return []models.ExternalSource{}
}

func (c *searchClient) search(ctx context.Context, query string) (*searchResponse, error) {
	params := url.Values{}
	params.Set("key", c.cfg.APIKey)
	params.Set("cx", c.cfg.EngineID)
	params.Set("q", query)
	params.Set("num", strconv.Itoa(c.cfg.MaxResults))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.cfg.Endpoint+"?"+params.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to query search API: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusTooManyRequests {
		return nil, errRateLimited
	}
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("search API returned status %d: %s", resp.StatusCode, string(body))
	}

	var result searchResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}
	return &result, nil
}

func (c *searchClient) toSources(result *searchResponse) []models.ExternalSource {
	sources := make([]models.ExternalSource, 0, c.cfg.MaxResults)
	for _, item := range result.Items {
		if len(sources) == c.cfg.MaxResults {
			break
		}
		if item.Link == "" {
			continue
		}
		title := strings.TrimSpace(item.Title)
		if title == "" {
			title = item.Link
		}
		sources = append(sources, models.ExternalSource{
			URL:     item.Link,
			Title:   title,
			Snippet: truncateRunes(strings.TrimSpace(item.Snippet), c.cfg.SnippetLength),
		})
	}
	return sources
}

func buildQuery(text string, maxWords int) string {
	words := strings.Fields(text)
	if len(words) > maxWords {
		words = words[:maxWords]
	}
	return strings.Join(words, " ")
}

func truncateRunes(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	return string([]rune(s)[:n])
}
