package handlers

import (
	"encoding/json"
	"net/http"
	"strings"

	"songapi/internal/domain"
	"songapi/internal/middleware"
)

type musicRequest struct {
	Prompt string `json:"prompt"`
	Tags   string `json:"tags"`
}

// SunoAI generates lyrics and a rendered song. GET reads prompt and tags from
// the query string, POST from a JSON body.
func (a *App) SunoAI(w http.ResponseWriter, r *http.Request) {
	var req musicRequest
	switch r.Method {
	case http.MethodPost:
		r.Body = http.MaxBytesReader(w, r.Body, 64*1024)
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			a.fail(w, http.StatusBadRequest, "invalid JSON body")
			return
		}
	default:
		q := r.URL.Query()
		req.Prompt = q.Get("prompt")
		req.Tags = q.Get("tags")
	}
	if strings.TrimSpace(req.Prompt) == "" {
		a.failGeneration(w, domain.ErrEmptyPrompt)
		return
	}

	ctx := r.Context()
	res, err := a.Generator.Generate(ctx, domain.GenerationRequest{
		Prompt:   req.Prompt,
		Tags:     req.Tags,
		Locale:   middleware.LocaleFromContext(ctx),
		ClientID: middleware.ClientIDFromContext(ctx),
	})
	if err != nil {
		a.Logger.Error().Err(err).Str("request_id", middleware.RequestIDFromContext(ctx)).Msg("sunoai: generation failed")
		a.failGeneration(w, err)
		return
	}
	a.json(w, http.StatusOK, map[string]any{
		"status": true,
		"result": res,
	})
}
