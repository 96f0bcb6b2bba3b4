package domain

import "time"

// DefaultTags is applied when a generation request omits its style descriptors.
const DefaultTags = "pop, romantic"

// GenerationRequest is the validated input of a generation workflow.
type GenerationRequest struct {
	Prompt   string
	Tags     string
	Locale   string
	ClientID string
}

// LyricResult holds the text returned by the lyric stage, passed through verbatim.
type LyricResult struct {
	Text string
}

// AudioJobStatus enumerates the lifecycle of a queued audio synthesis job.
type AudioJobStatus string

const (
	AudioJobSubmitted AudioJobStatus = "submitted"
	AudioJobPolling   AudioJobStatus = "polling"
	AudioJobCompleted AudioJobStatus = "completed"
	AudioJobFailed    AudioJobStatus = "failed"
	AudioJobTimedOut  AudioJobStatus = "timed_out"
)

// Terminal reports whether no further transitions are possible.
func (s AudioJobStatus) Terminal() bool {
	switch s {
	case AudioJobCompleted, AudioJobFailed, AudioJobTimedOut:
		return true
	}
	return false
}

// AudioJob is owned by a single submission and discarded once its terminal state is read.
type AudioJob struct {
	SessionToken string
	Status       AudioJobStatus
	ResultURL    string
	Reason       string
	Attempts     int
}

// GenerationResult is the combined output of both stages.
type GenerationResult struct {
	Prompt   string `json:"prompt"`
	Tags     string `json:"tags"`
	Lyrics   string `json:"lyrics"`
	AudioURL string `json:"music_url"`
}

// GenerationRecord is the persisted summary of one workflow run.
type GenerationRecord struct {
	ID           string    `json:"id"`
	ClientID     string    `json:"-"`
	Prompt       string    `json:"prompt"`
	Tags         string    `json:"tags"`
	Status       string    `json:"status"`
	AudioURL     string    `json:"music_url,omitempty"`
	ErrorMessage string    `json:"-"`
	DurationMS   int64     `json:"duration_ms"`
	CreatedAt    time.Time `json:"created_at"`
}
