package handlers

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"songapi/internal/domain"
)

const (
	defaultHistoryLimit = 20
	maxHistoryLimit     = 100
)

// generationView is the public shape of a history record. The client address
// and the internal error text stay server-side.
type generationView struct {
	ID         string    `json:"id"`
	Prompt     string    `json:"prompt"`
	Tags       string    `json:"tags"`
	Status     string    `json:"status"`
	AudioURL   string    `json:"music_url,omitempty"`
	Failed     bool      `json:"failed"`
	DurationMS int64     `json:"duration_ms"`
	CreatedAt  time.Time `json:"created_at"`
}

func newGenerationView(rec domain.GenerationRecord) generationView {
	return generationView{
		ID:         rec.ID,
		Prompt:     rec.Prompt,
		Tags:       rec.Tags,
		Status:     rec.Status,
		AudioURL:   rec.AudioURL,
		Failed:     rec.ErrorMessage != "",
		DurationMS: rec.DurationMS,
		CreatedAt:  rec.CreatedAt,
	}
}

// RecentGenerations lists the latest recorded workflow runs.
func (a *App) RecentGenerations(w http.ResponseWriter, r *http.Request) {
	if a.History == nil {
		a.fail(w, http.StatusNotFound, domain.ErrStoreDisabled.Error())
		return
	}
	limit := defaultHistoryLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			a.fail(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = min(n, maxHistoryLimit)
	}
	records, err := a.History.ListRecent(r.Context(), limit)
	if err != nil {
		if errors.Is(err, domain.ErrStoreDisabled) {
			a.fail(w, http.StatusNotFound, err.Error())
			return
		}
		a.Logger.Error().Err(err).Msg("history: list recent")
		a.fail(w, http.StatusInternalServerError, "failed to load history")
		return
	}
	views := make([]generationView, 0, len(records))
	for _, rec := range records {
		views = append(views, newGenerationView(rec))
	}
	a.json(w, http.StatusOK, map[string]any{"status": true, "result": views})
}
