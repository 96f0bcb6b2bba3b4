// Package acestep drives the hosted ACE-Step Gradio queue: one join request
// followed by paced polling of the session's event stream.
package acestep

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"songapi/internal/domain"
	"songapi/internal/infra"
)

const (
	defaultBaseURL     = "https://ace-step-ace-step.hf.space"
	defaultMaxAttempts = 120
	defaultInterval    = time.Second
	defaultTimeout     = 30 * time.Second

	joinPath = "/gradio_api/queue/join"
	dataPath = "/gradio_api/queue/data"

	fnIndex   = 11
	triggerID = 45
)

// PollBudget bounds the polling loop. Worst-case wall time is roughly
// MaxAttempts * Interval.
type PollBudget struct {
	MaxAttempts int
	Interval    time.Duration
}

// DefaultPollBudget matches the hosted space's typical render time.
func DefaultPollBudget() PollBudget {
	return PollBudget{MaxAttempts: defaultMaxAttempts, Interval: defaultInterval}
}

func (b PollBudget) normalize() PollBudget {
	if b.MaxAttempts <= 0 {
		b.MaxAttempts = defaultMaxAttempts
	}
	if b.Interval <= 0 {
		b.Interval = defaultInterval
	}
	return b
}

// Params are the fixed synthesis hyperparameters sent with every job.
type Params struct {
	DurationSeconds       int
	InferSteps            int
	GuidanceScale         float64
	Scheduler             string
	CFGType               string
	OmegaScale            float64
	ManualSeeds           string
	GuidanceInterval      float64
	GuidanceIntervalDecay float64
	MinGuidanceScale      float64
	UseERGTag             bool
	UseERGLyric           bool
	UseERGDiffusion       bool
	OSSSteps              string
	GuidanceScaleText     float64
	GuidanceScaleLyric    float64
	AudioToAudio          bool
	RefAudioStrength      float64
	LoRA                  string
}

// DefaultParams returns the parameters the public space expects for fn 11.
func DefaultParams() Params {
	return Params{
		DurationSeconds:  240,
		InferSteps:       60,
		GuidanceScale:    15,
		Scheduler:        "euler",
		CFGType:          "apg",
		OmegaScale:       10,
		GuidanceInterval: 0.5,
		MinGuidanceScale: 3,
		UseERGTag:        true,
		UseERGDiffusion:  true,
		RefAudioStrength: 0.5,
		LoRA:             "none",
	}
}

// vector lays the parameters out positionally, the order the Gradio fn expects.
func (p Params) vector(tags, lyrics string) []any {
	return []any{
		p.DurationSeconds,
		tags,
		lyrics,
		p.InferSteps,
		p.GuidanceScale,
		p.Scheduler,
		p.CFGType,
		p.OmegaScale,
		p.ManualSeeds,
		p.GuidanceInterval,
		p.GuidanceIntervalDecay,
		p.MinGuidanceScale,
		p.UseERGTag,
		p.UseERGLyric,
		p.UseERGDiffusion,
		p.OSSSteps,
		p.GuidanceScaleText,
		p.GuidanceScaleLyric,
		p.AudioToAudio,
		p.RefAudioStrength,
		nil,
		p.LoRA,
	}
}

// Options configures the queue client.
type Options struct {
	BaseURL    string
	Params     *Params
	HTTPClient *http.Client
	Logger     *infra.Logger
	// NewSessionToken overrides token generation; tests use it to pin the session.
	NewSessionToken func() string
}

// Client submits synthesis jobs. It holds no per-job state.
type Client struct {
	baseURL    string
	params     Params
	httpClient *http.Client
	logger     *infra.Logger
	newToken   func() string
}

type joinRequest struct {
	Data        []any  `json:"data"`
	EventData   any    `json:"event_data"`
	FnIndex     int    `json:"fn_index"`
	TriggerID   int    `json:"trigger_id"`
	SessionHash string `json:"session_hash"`
}

type joinResponse struct {
	EventID string `json:"event_id"`
}

// NewClient constructs a client with defaults for every empty option.
func NewClient(opts Options) *Client {
	httpClient := opts.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: defaultTimeout}
	}
	baseURL := strings.TrimRight(strings.TrimSpace(opts.BaseURL), "/")
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	params := DefaultParams()
	if opts.Params != nil {
		params = *opts.Params
	}
	newToken := opts.NewSessionToken
	if newToken == nil {
		newToken = NewSessionToken
	}
	logger := opts.Logger
	if logger == nil {
		l := infra.Logger(zerolog.New(io.Discard))
		logger = &l
	}
	return &Client{
		baseURL:    baseURL,
		params:     params,
		httpClient: httpClient,
		logger:     logger,
		newToken:   newToken,
	}
}

// NewSessionToken returns 11 lowercase hex characters taken from a random UUID.
func NewSessionToken() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")[:11]
}

// SubmitAndWait queues one job and polls until it reaches a terminal state.
// The returned job is populated even when an error is returned.
func (c *Client) SubmitAndWait(ctx context.Context, tags, lyrics string, budget PollBudget) (domain.AudioJob, error) {
	budget = budget.normalize()
	job := domain.AudioJob{
		SessionToken: c.newToken(),
		Status:       domain.AudioJobSubmitted,
	}
	log := c.logger.With().Str("session", job.SessionToken).Logger()

	eventID, err := c.submit(ctx, job.SessionToken, tags, lyrics, log)
	if err != nil {
		job.Status = domain.AudioJobFailed
		job.Reason = "submit failed"
		if deadlineHit(ctx) {
			job.Status = domain.AudioJobTimedOut
			return job, fmt.Errorf("%w: acestep: deadline reached during submit", domain.ErrTimeout)
		}
		if errors.Is(ctx.Err(), context.Canceled) {
			job.Reason = "canceled"
			return job, ctx.Err()
		}
		return job, err
	}
	log.Debug().Str("event_id", eventID).Msg("acestep: job queued")

	job.Status = domain.AudioJobPolling
	limiter := rate.NewLimiter(rate.Every(budget.Interval), 1)
	for attempt := 1; attempt <= budget.MaxAttempts; attempt++ {
		if err := limiter.Wait(ctx); err != nil {
			// Wait also fails early when the next slot lies past the deadline.
			if errors.Is(ctx.Err(), context.Canceled) {
				job.Reason = "canceled"
				return job, ctx.Err()
			}
			job.Status = domain.AudioJobTimedOut
			job.Reason = "deadline reached while polling"
			return job, fmt.Errorf("%w: acestep: deadline reached after %d attempts", domain.ErrTimeout, job.Attempts)
		}
		job.Attempts = attempt

		v, err := c.poll(ctx, job.SessionToken, log)
		if err != nil {
			switch {
			case deadlineHit(ctx):
				job.Status = domain.AudioJobTimedOut
				job.Reason = "deadline reached while polling"
				return job, fmt.Errorf("%w: acestep: deadline reached after %d attempts", domain.ErrTimeout, attempt)
			case errors.Is(ctx.Err(), context.Canceled):
				job.Reason = "canceled"
				return job, ctx.Err()
			}
			job.Status = domain.AudioJobFailed
			job.Reason = err.Error()
			return job, err
		}
		switch v.outcome {
		case outcomeCompleted:
			job.Status = domain.AudioJobCompleted
			job.ResultURL = v.url
			log.Debug().Int("attempts", attempt).Msg("acestep: job completed")
			return job, nil
		case outcomeFailed:
			job.Status = domain.AudioJobFailed
			job.Reason = v.reason
			return job, &domain.JobFailure{Msg: v.msg, Detail: v.reason}
		}
		log.Debug().Int("attempt", attempt).Int("events", v.seen).Msg("acestep: job pending")
	}

	job.Status = domain.AudioJobTimedOut
	job.Reason = fmt.Sprintf("no result after %d attempts", budget.MaxAttempts)
	return job, fmt.Errorf("%w: acestep: %s", domain.ErrTimeout, job.Reason)
}

// deadlineHit reports whether the caller's deadline has passed. Transport
// timeouts of a single request do not count.
func deadlineHit(ctx context.Context) bool {
	return errors.Is(ctx.Err(), context.DeadlineExceeded)
}

func (c *Client) submit(ctx context.Context, token, tags, lyrics string, log zerolog.Logger) (string, error) {
	payload := joinRequest{
		Data:        c.params.vector(tags, lyrics),
		FnIndex:     fnIndex,
		TriggerID:   triggerID,
		SessionHash: token,
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("%w: acestep: encode join: %v", domain.ErrUpstreamJob, err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+joinPath, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("%w: acestep: build join: %v", domain.ErrUpstreamJob, err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("%w: acestep: join request: %v", domain.ErrUpstreamJob, err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 64*1024))
	if resp.StatusCode >= 300 {
		log.Debug().Int("status", resp.StatusCode).Str("body", strings.TrimSpace(string(raw))).Msg("acestep: join rejected")
		return "", fmt.Errorf("%w: acestep: join status %d", domain.ErrUpstreamJob, resp.StatusCode)
	}
	var decoded joinResponse
	if len(raw) > 0 {
		_ = json.Unmarshal(raw, &decoded)
	}
	return decoded.EventID, nil
}

func (c *Client) poll(ctx context.Context, token string, log zerolog.Logger) (verdict, error) {
	endpoint := c.baseURL + dataPath + "?session_hash=" + url.QueryEscape(token)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return verdict{}, fmt.Errorf("%w: acestep: build poll: %v", domain.ErrUpstream, err)
	}
	req.Header.Set("Accept", "text/event-stream")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return verdict{}, fmt.Errorf("%w: acestep: poll request: %v", domain.ErrUpstream, err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()
	if resp.StatusCode >= 300 {
		return verdict{}, fmt.Errorf("%w: acestep: poll status %d", domain.ErrUpstream, resp.StatusCode)
	}

	v, err := scanEvents(resp.Body, func(ev queueEvent) {
		log.Trace().Str("msg", ev.Msg).Msg("acestep: event")
	})
	if err != nil {
		return v, fmt.Errorf("%w: acestep: read events: %v", domain.ErrUpstream, err)
	}
	return v, nil
}
