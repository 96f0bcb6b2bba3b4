// Package lyrics calls the hosted chat endpoint that writes song lyrics.
package lyrics

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

	"github.com/rs/zerolog"

	"songapi/internal/domain"
	"songapi/internal/infra"
)

const (
	defaultBaseURL = "https://8pe3nv3qha.execute-api.us-east-1.amazonaws.com/default/llm_chat"
	defaultReferer = "https://writecream.com/"
	defaultLink    = "writecream.com"
	defaultTimeout = 60 * time.Second
)

// Options configures the lyric client.
type Options struct {
	BaseURL    string
	Referer    string
	Link       string
	UserAgent  string
	Locale     string
	HTTPClient *http.Client
	Logger     *infra.Logger
}

// Client performs one synchronous lyric generation call per prompt.
type Client struct {
	baseURL    string
	referer    string
	link       string
	userAgent  string
	locale     string
	httpClient *http.Client
	logger     *infra.Logger
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatResponse struct {
	ResponseContent string `json:"response_content"`
}

// NewClient constructs a client with defaults for every empty option.
func NewClient(opts Options) *Client {
	httpClient := opts.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: defaultTimeout}
	}
	baseURL := strings.TrimSpace(opts.BaseURL)
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	referer := strings.TrimSpace(opts.Referer)
	if referer == "" {
		referer = defaultReferer
	}
	link := strings.TrimSpace(opts.Link)
	if link == "" {
		link = defaultLink
	}
	userAgent := strings.TrimSpace(opts.UserAgent)
	if userAgent == "" {
		userAgent = "Mozilla/5.0"
	}
	logger := opts.Logger
	if logger == nil {
		l := infra.Logger(zerolog.New(io.Discard))
		logger = &l
	}
	return &Client{
		baseURL:    baseURL,
		referer:    referer,
		link:       link,
		userAgent:  userAgent,
		locale:     MatchLocale(opts.Locale),
		httpClient: httpClient,
		logger:     logger,
	}
}

// Generate asks the endpoint for lyrics using the client's default locale.
func (c *Client) Generate(ctx context.Context, prompt string) (domain.LyricResult, error) {
	return c.GenerateLocale(ctx, prompt, c.locale)
}

// GenerateLocale asks the endpoint for lyrics written in locale. The returned
// text is not checked for section markers.
func (c *Client) GenerateLocale(ctx context.Context, prompt, locale string) (domain.LyricResult, error) {
	if strings.TrimSpace(prompt) == "" {
		return domain.LyricResult{}, domain.ErrEmptyPrompt
	}
	if locale == "" {
		locale = c.locale
	}
	messages := []chatMessage{
		{Role: "system", Content: SystemInstruction(locale)},
		{Role: "user", Content: prompt},
	}
	query, err := json.Marshal(messages)
	if err != nil {
		return domain.LyricResult{}, fmt.Errorf("%w: lyrics: encode messages: %v", domain.ErrUpstream, err)
	}
	endpoint, err := url.Parse(c.baseURL)
	if err != nil {
		return domain.LyricResult{}, fmt.Errorf("%w: lyrics: invalid endpoint: %v", domain.ErrUpstream, err)
	}
	params := endpoint.Query()
	params.Set("query", string(query))
	params.Set("link", c.link)
	endpoint.RawQuery = params.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint.String(), nil)
	if err != nil {
		return domain.LyricResult{}, fmt.Errorf("%w: lyrics: build request: %v", domain.ErrUpstream, err)
	}
	req.Header.Set("User-Agent", c.userAgent)
	req.Header.Set("Referer", c.referer)
	req.Header.Set("Accept", "application/json")

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return domain.LyricResult{}, fmt.Errorf("%w: lyrics: %v", domain.ErrTimeout, err)
		}
		return domain.LyricResult{}, fmt.Errorf("%w: lyrics: http request: %v", domain.ErrUpstream, err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return domain.LyricResult{}, fmt.Errorf("%w: lyrics: read response: %v", domain.ErrUpstream, err)
	}
	if resp.StatusCode >= 300 {
		return domain.LyricResult{}, fmt.Errorf("%w: lyrics: status %d", domain.ErrUpstream, resp.StatusCode)
	}
	var decoded chatResponse
	if err := json.Unmarshal(raw, &decoded); err != nil {
		return domain.LyricResult{}, fmt.Errorf("%w: lyrics: decode response: %v", domain.ErrUpstream, err)
	}
	if strings.TrimSpace(decoded.ResponseContent) == "" {
		return domain.LyricResult{}, fmt.Errorf("%w: lyrics: empty response", domain.ErrUpstream)
	}
	c.logger.Debug().
		Str("locale", locale).
		Int("chars", len(decoded.ResponseContent)).
		Dur("latency", time.Since(start)).
		Msg("lyrics: generated")
	return domain.LyricResult{Text: decoded.ResponseContent}, nil
}
