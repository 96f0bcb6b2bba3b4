package generation

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"songapi/internal/domain"
	"songapi/internal/providers/acestep"
	"songapi/internal/providers/lyrics"
)

type fakeLyrics struct {
	calls  int
	prompt string
	locale string
	text   string
	err    error
}

func (f *fakeLyrics) GenerateLocale(_ context.Context, prompt, locale string) (domain.LyricResult, error) {
	f.calls++
	f.prompt = prompt
	f.locale = locale
	if f.err != nil {
		return domain.LyricResult{}, f.err
	}
	return domain.LyricResult{Text: f.text}, nil
}

type fakeAudio struct {
	calls  int
	tags   string
	lyrics string
	budget acestep.PollBudget
	job    domain.AudioJob
	err    error
}

func (f *fakeAudio) SubmitAndWait(_ context.Context, tags, text string, budget acestep.PollBudget) (domain.AudioJob, error) {
	f.calls++
	f.tags = tags
	f.lyrics = text
	f.budget = budget
	return f.job, f.err
}

type memoryHistory struct {
	mu      sync.Mutex
	records []domain.GenerationRecord
}

func (m *memoryHistory) Create(_ context.Context, rec *domain.GenerationRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.records = append(m.records, *rec)
	return nil
}

func (m *memoryHistory) ListRecent(_ context.Context, limit int) ([]domain.GenerationRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if limit > len(m.records) {
		limit = len(m.records)
	}
	return append([]domain.GenerationRecord(nil), m.records[:limit]...), nil
}

func completedJob(url string) domain.AudioJob {
	return domain.AudioJob{SessionToken: "tok", Status: domain.AudioJobCompleted, ResultURL: url, Attempts: 2}
}

func TestGenerateSuccess(t *testing.T) {
	lyr := &fakeLyrics{text: "[verse]\nwaves"}
	aud := &fakeAudio{job: completedJob("https://cdn.example/sea.mp3")}
	hist := &memoryHistory{}
	o := New(Options{Lyrics: lyr, Audio: aud, History: hist})

	res, err := o.Generate(context.Background(), domain.GenerationRequest{Prompt: "a song about the sea", Locale: "en", ClientID: "1.2.3.4"})
	require.NoError(t, err)
	assert.Equal(t, domain.GenerationResult{
		Prompt:   "a song about the sea",
		Tags:     domain.DefaultTags,
		Lyrics:   "[verse]\nwaves",
		AudioURL: "https://cdn.example/sea.mp3",
	}, res)
	assert.Equal(t, "en", lyr.locale)
	assert.Equal(t, domain.DefaultTags, aud.tags)
	assert.Equal(t, "[verse]\nwaves", aud.lyrics)
	assert.Equal(t, acestep.DefaultPollBudget(), aud.budget)

	require.Len(t, hist.records, 1)
	assert.Equal(t, string(StateAudioCompleted), hist.records[0].Status)
	assert.Equal(t, "1.2.3.4", hist.records[0].ClientID)
	assert.Empty(t, hist.records[0].ErrorMessage)
}

func TestGenerateEmptyPromptSkipsStages(t *testing.T) {
	lyr := &fakeLyrics{text: "x"}
	aud := &fakeAudio{job: completedJob("u")}
	hist := &memoryHistory{}
	o := New(Options{Lyrics: lyr, Audio: aud, History: hist})

	for _, prompt := range []string{"", "   "} {
		_, err := o.Generate(context.Background(), domain.GenerationRequest{Prompt: prompt})
		require.ErrorIs(t, err, domain.ErrEmptyPrompt)
		require.ErrorIs(t, err, domain.ErrValidation)
		_, staged := StageOf(err)
		assert.False(t, staged)
	}
	assert.Zero(t, lyr.calls)
	assert.Zero(t, aud.calls)
	assert.Empty(t, hist.records)
}

func TestGenerateLyricFailureStopsWorkflow(t *testing.T) {
	lyr := &fakeLyrics{err: errors.Join(domain.ErrUpstream, errors.New("status 502"))}
	aud := &fakeAudio{job: completedJob("u")}
	hist := &memoryHistory{}
	o := New(Options{Lyrics: lyr, Audio: aud, History: hist})

	_, err := o.Generate(context.Background(), domain.GenerationRequest{Prompt: "rain", Tags: "lofi"})
	require.ErrorIs(t, err, domain.ErrUpstream)
	stage, ok := StageOf(err)
	require.True(t, ok)
	assert.Equal(t, StageLyrics, stage)
	assert.Zero(t, aud.calls)
	require.Len(t, hist.records, 1)
	assert.Equal(t, string(StateLyricFailed), hist.records[0].Status)
	assert.Equal(t, "lofi", hist.records[0].Tags)
	assert.NotEmpty(t, hist.records[0].ErrorMessage)
}

func TestGenerateAudioFailures(t *testing.T) {
	cases := []struct {
		name     string
		job      domain.AudioJob
		err      error
		sentinel error
		state    State
	}{
		{
			name:     "upstream job failed",
			job:      domain.AudioJob{Status: domain.AudioJobFailed, Reason: "process_failed", Attempts: 3},
			err:      errors.Join(domain.ErrUpstreamJob, errors.New("process_failed")),
			sentinel: domain.ErrUpstreamJob,
			state:    StateAudioFailed,
		},
		{
			name:     "timed out",
			job:      domain.AudioJob{Status: domain.AudioJobTimedOut, Attempts: 120},
			err:      domain.ErrTimeout,
			sentinel: domain.ErrTimeout,
			state:    StateAudioTimedOut,
		},
		{
			name:     "submit rejected",
			job:      domain.AudioJob{Status: domain.AudioJobFailed},
			err:      domain.ErrUpstreamJob,
			sentinel: domain.ErrUpstreamJob,
			state:    StateAudioFailed,
		},
		{
			name:     "completed without url",
			job:      domain.AudioJob{Status: domain.AudioJobCompleted, Attempts: 1},
			sentinel: domain.ErrUpstreamJob,
			state:    StateAudioFailed,
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			hist := &memoryHistory{}
			o := New(Options{
				Lyrics:  &fakeLyrics{text: "[verse]"},
				Audio:   &fakeAudio{job: tc.job, err: tc.err},
				History: hist,
			})
			res, err := o.Generate(context.Background(), domain.GenerationRequest{Prompt: "p"})
			require.ErrorIs(t, err, tc.sentinel)
			stage, ok := StageOf(err)
			require.True(t, ok)
			assert.Equal(t, StageAudio, stage)
			assert.Equal(t, "[verse]", res.Lyrics)
			assert.Empty(t, res.AudioURL)
			require.Len(t, hist.records, 1)
			assert.Equal(t, string(tc.state), hist.records[0].Status)
		})
	}
}

func TestStageErrorWrapsOnce(t *testing.T) {
	err := &StageError{Stage: StageAudio, Err: domain.ErrTimeout}
	assert.Equal(t, "audio stage: generation timed out", err.Error())
	assert.ErrorIs(t, err, domain.ErrTimeout)
}

func TestStateTransitions(t *testing.T) {
	assert.True(t, StateIdle.CanTransition(StateLyricPending))
	assert.False(t, StateIdle.CanTransition(StateAudioSubmitted))
	assert.True(t, StateAudioSubmitted.CanTransition(StateAudioFailed))
	assert.False(t, StateLyricFailed.CanTransition(StateAudioSubmitted))
	for _, s := range []State{StateLyricFailed, StateAudioCompleted, StateAudioFailed, StateAudioTimedOut} {
		assert.True(t, s.Terminal(), s)
	}
	assert.False(t, StateAudioPolling.Terminal())
}

func TestGenerateEndToEnd(t *testing.T) {
	lyricServer := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"response_content":"[verse]\nSalt on the wind\n[chorus]\nSing to the sea"}`))
	}))
	defer lyricServer.Close()

	var (
		mu    sync.Mutex
		tags  string
		polls int
	)
	mux := http.NewServeMux()
	mux.HandleFunc("/gradio_api/queue/join", func(w http.ResponseWriter, r *http.Request) {
		var body struct {
			Data []any `json:"data"`
		}
		assert.NoError(t, decodeJSON(r, &body))
		mu.Lock()
		if len(body.Data) > 1 {
			tags, _ = body.Data[1].(string)
		}
		mu.Unlock()
		_, _ = w.Write([]byte(`{"event_id":"e"}`))
	})
	mux.HandleFunc("/gradio_api/queue/data", func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		polls++
		n := polls
		mu.Unlock()
		if n < 2 {
			_, _ = w.Write([]byte("data: {\"msg\":\"estimation\"}\n\n"))
			return
		}
		_, _ = w.Write([]byte("data: {\"msg\":\"process_completed\",\"output\":{\"data\":[{\"url\":\"https://cdn.example/sea.mp3\"}]}}\n\n"))
	})
	audioServer := httptest.NewServer(mux)
	defer audioServer.Close()

	o := New(Options{
		Lyrics: lyrics.NewClient(lyrics.Options{BaseURL: lyricServer.URL}),
		Audio:  acestep.NewClient(acestep.Options{BaseURL: audioServer.URL}),
		Budget: acestep.PollBudget{MaxAttempts: 5, Interval: 5 * time.Millisecond},
	})

	res, err := o.Generate(context.Background(), domain.GenerationRequest{Prompt: "a song about the sea", Tags: "pop, romantic"})
	require.NoError(t, err)
	assert.Equal(t, "a song about the sea", res.Prompt)
	assert.Equal(t, "pop, romantic", res.Tags)
	assert.Equal(t, "[verse]\nSalt on the wind\n[chorus]\nSing to the sea", res.Lyrics)
	assert.Equal(t, "https://cdn.example/sea.mp3", res.AudioURL)

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, "pop, romantic", tags)
	assert.Equal(t, 2, polls)
}

func TestGenerateOverallTimeout(t *testing.T) {
	lyricServer := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-r.Context().Done()
	}))
	defer lyricServer.Close()

	o := New(Options{
		Lyrics:  lyrics.NewClient(lyrics.Options{BaseURL: lyricServer.URL}),
		Audio:   &fakeAudio{},
		Timeout: 50 * time.Millisecond,
	})
	start := time.Now()
	_, err := o.Generate(context.Background(), domain.GenerationRequest{Prompt: "slow"})
	require.ErrorIs(t, err, domain.ErrTimeout)
	assert.Less(t, time.Since(start), 5*time.Second)
}

func decodeJSON(r *http.Request, v any) error {
	return json.NewDecoder(r.Body).Decode(v)
}
