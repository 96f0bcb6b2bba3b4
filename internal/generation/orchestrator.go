// Package generation runs the two-stage song workflow: lyrics first, then
// audio synthesis from those lyrics.
package generation

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"songapi/internal/domain"
	"songapi/internal/infra"
	"songapi/internal/providers/acestep"
)

// Stage names the step that produced a workflow error.
type Stage string

const (
	StageLyrics Stage = "lyrics"
	StageAudio  Stage = "audio"
)

// StageError wraps the first failure of a run with the stage that produced it.
type StageError struct {
	Stage Stage
	Err   error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("%s stage: %v", e.Stage, e.Err)
}

func (e *StageError) Unwrap() error {
	return e.Err
}

// LyricGenerator produces lyrics for a prompt in the given locale.
type LyricGenerator interface {
	GenerateLocale(ctx context.Context, prompt, locale string) (domain.LyricResult, error)
}

// AudioGenerator renders lyrics into an audio file reference.
type AudioGenerator interface {
	SubmitAndWait(ctx context.Context, tags, lyrics string, budget acestep.PollBudget) (domain.AudioJob, error)
}

// Options wires the orchestrator. History is optional.
type Options struct {
	Lyrics  LyricGenerator
	Audio   AudioGenerator
	Budget  acestep.PollBudget
	Timeout time.Duration
	History domain.GenerationRepository
	Logger  *infra.Logger
}

// Orchestrator holds no per-run state; concurrent Generate calls are independent.
type Orchestrator struct {
	lyrics  LyricGenerator
	audio   AudioGenerator
	budget  acestep.PollBudget
	timeout time.Duration
	history domain.GenerationRepository
	logger  *infra.Logger
	now     func() time.Time
}

func New(opts Options) *Orchestrator {
	logger := opts.Logger
	if logger == nil {
		l := infra.Logger(zerolog.New(io.Discard))
		logger = &l
	}
	budget := opts.Budget
	if budget.MaxAttempts <= 0 || budget.Interval <= 0 {
		budget = acestep.DefaultPollBudget()
	}
	return &Orchestrator{
		lyrics:  opts.Lyrics,
		audio:   opts.Audio,
		budget:  budget,
		timeout: opts.Timeout,
		history: opts.History,
		logger:  logger,
		now:     time.Now,
	}
}

// Budget returns the poll budget handed to the audio stage.
func (o *Orchestrator) Budget() acestep.PollBudget {
	return o.budget
}

type run struct {
	state  State
	logger zerolog.Logger
}

func (r *run) advance(next State) {
	if !r.state.CanTransition(next) {
		r.logger.Warn().Str("from", string(r.state)).Str("to", string(next)).Msg("generation: unexpected transition")
	}
	r.logger.Debug().Str("from", string(r.state)).Str("to", string(next)).Msg("generation: state")
	r.state = next
}

// Generate runs both stages strictly in order. Validation failures are
// returned unwrapped; stage failures come back as *StageError.
func (o *Orchestrator) Generate(ctx context.Context, req domain.GenerationRequest) (domain.GenerationResult, error) {
	if strings.TrimSpace(req.Prompt) == "" {
		return domain.GenerationResult{}, domain.ErrEmptyPrompt
	}
	tags := strings.TrimSpace(req.Tags)
	if tags == "" {
		tags = domain.DefaultTags
	}
	if o.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, o.timeout)
		defer cancel()
	}

	workflowsInFlight.Inc()
	defer workflowsInFlight.Dec()

	start := o.now()
	r := &run{
		state:  StateIdle,
		logger: o.logger.With().Str("client", req.ClientID).Logger(),
	}
	result := domain.GenerationResult{Prompt: req.Prompt, Tags: tags}

	r.advance(StateLyricPending)
	lyric, err := o.lyrics.GenerateLocale(ctx, req.Prompt, req.Locale)
	if err != nil {
		r.advance(StateLyricFailed)
		return result, o.finish(ctx, req, result, r, start, &StageError{Stage: StageLyrics, Err: err})
	}
	r.advance(StateLyricReady)
	result.Lyrics = lyric.Text

	r.advance(StateAudioSubmitted)
	job, err := o.audio.SubmitAndWait(ctx, tags, lyric.Text, o.budget)
	if job.Attempts > 0 {
		r.advance(StateAudioPolling)
		pollAttempts.Observe(float64(job.Attempts))
	}
	if err == nil && job.ResultURL == "" {
		err = fmt.Errorf("%w: audio job finished without a result", domain.ErrUpstreamJob)
		job.Status = domain.AudioJobFailed
	}
	if err != nil {
		state := audioState(job.Status)
		if job.Status == domain.AudioJobCompleted {
			state = StateAudioFailed
		}
		r.advance(state)
		return result, o.finish(ctx, req, result, r, start, &StageError{Stage: StageAudio, Err: err})
	}
	r.advance(StateAudioCompleted)
	result.AudioURL = job.ResultURL
	return result, o.finish(ctx, req, result, r, start, nil)
}

func (o *Orchestrator) finish(ctx context.Context, req domain.GenerationRequest, result domain.GenerationResult, r *run, start time.Time, err error) error {
	elapsed := o.now().Sub(start)
	workflowsTotal.WithLabelValues(string(r.state)).Inc()
	workflowDuration.WithLabelValues(string(r.state)).Observe(elapsed.Seconds())

	event := r.logger.Info()
	if err != nil {
		event = r.logger.Warn().Err(err)
	}
	event.Str("state", string(r.state)).Dur("elapsed", elapsed).Msg("generation: finished")

	if o.history != nil {
		rec := &domain.GenerationRecord{
			ClientID:   req.ClientID,
			Prompt:     req.Prompt,
			Tags:       result.Tags,
			Status:     string(r.state),
			AudioURL:   result.AudioURL,
			DurationMS: elapsed.Milliseconds(),
			CreatedAt:  start.UTC(),
		}
		if err != nil {
			rec.ErrorMessage = err.Error()
		}
		// The run's own deadline may already be spent.
		saveCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
		defer cancel()
		if saveErr := o.history.Create(saveCtx, rec); saveErr != nil {
			r.logger.Error().Err(saveErr).Msg("generation: record history")
		}
	}
	return err
}

// StageOf reports which stage produced err, if any.
func StageOf(err error) (Stage, bool) {
	var se *StageError
	if errors.As(err, &se) {
		return se.Stage, true
	}
	return "", false
}
