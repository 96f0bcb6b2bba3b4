package generation

import "songapi/internal/domain"

// State is a step of one workflow run.
type State string

const (
	StateIdle           State = "idle"
	StateLyricPending   State = "lyric_pending"
	StateLyricFailed    State = "lyric_failed"
	StateLyricReady     State = "lyric_ready"
	StateAudioSubmitted State = "audio_submitted"
	StateAudioPolling   State = "audio_polling"
	StateAudioCompleted State = "audio_completed"
	StateAudioFailed    State = "audio_failed"
	StateAudioTimedOut  State = "audio_timed_out"
)

var transitions = map[State][]State{
	StateIdle:           {StateLyricPending},
	StateLyricPending:   {StateLyricFailed, StateLyricReady},
	StateLyricReady:     {StateAudioSubmitted},
	StateAudioSubmitted: {StateAudioPolling, StateAudioFailed, StateAudioTimedOut},
	StateAudioPolling:   {StateAudioCompleted, StateAudioFailed, StateAudioTimedOut},
}

// Terminal reports whether the run has finished.
func (s State) Terminal() bool {
	_, ok := transitions[s]
	return !ok
}

// CanTransition reports whether next directly follows s.
func (s State) CanTransition(next State) bool {
	for _, candidate := range transitions[s] {
		if candidate == next {
			return true
		}
	}
	return false
}

func audioState(status domain.AudioJobStatus) State {
	switch status {
	case domain.AudioJobCompleted:
		return StateAudioCompleted
	case domain.AudioJobTimedOut:
		return StateAudioTimedOut
	default:
		return StateAudioFailed
	}
}
