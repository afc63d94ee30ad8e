// Package server exposes the collection over HTTP: read endpoints for
// dashboards, mutation endpoints mirroring the CLI transitions, and a
// long-poll events endpoint for change notification.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"go.uber.org/zap"

	"github.com/slabworks/gradepipe/internal/lifecycle"
	"github.com/slabworks/gradepipe/internal/model"
	"github.com/slabworks/gradepipe/internal/orchestrator"
)

// Handler builds the HTTP handler around an orchestrator.
func Handler(orc *orchestrator.Orchestrator) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST", "DELETE"},
		AllowedHeaders: []string{"Content-Type"},
	}))

	s := &api{orc: orc}

	r.Get("/health", s.health)
	r.Get("/cards", s.listCards)
	r.Post("/cards", s.submitCard)
	r.Get("/cards/{id}", s.getCard)
	r.Delete("/cards/{id}", s.deleteCard)
	r.Post("/cards/{id}/accept", s.transition(s.orc.Accept))
	r.Post("/cards/{id}/retry", s.transition(s.orc.Retry))
	r.Post("/cards/{id}/revalue", s.transition(s.orc.Revalue))
	r.Post("/cards/{id}/challenge", s.challengeCard)
	r.Post("/cards/{id}/override", s.overrideCard)
	r.Get("/events", s.events)

	return r
}

type api struct {
	orc *orchestrator.Orchestrator
}

func (s *api) health(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":      "ok",
		"cards":       len(s.orc.Cards()),
		"subscribers": s.orc.SubscriberCount(),
	})
}

func (s *api) listCards(w http.ResponseWriter, r *http.Request) {
	cards := s.orc.Cards()
	if status := r.URL.Query().Get("status"); status != "" {
		filtered := cards[:0]
		for _, c := range cards {
			if string(c.Status) == status {
				filtered = append(filtered, c)
			}
		}
		cards = filtered
	}
	writeJSON(w, http.StatusOK, cards)
}

func (s *api) getCard(w http.ResponseWriter, r *http.Request) {
	card, ok := s.orc.Card(chi.URLParam(r, "id"))
	if !ok {
		writeError(w, http.StatusNotFound, "card not found")
		return
	}
	writeJSON(w, http.StatusOK, card)
}

func (s *api) submitCard(w http.ResponseWriter, r *http.Request) {
	var req struct {
		FrontImage string `json:"front_image"`
		BackImage  string `json:"back_image"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.FrontImage == "" {
		writeError(w, http.StatusBadRequest, "front_image is required")
		return
	}

	card, err := s.orc.Submit(r.Context(), req.FrontImage, req.BackImage)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusCreated, card)
}

func (s *api) deleteCard(w http.ResponseWriter, r *http.Request) {
	err := s.orc.Delete(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeTransitionError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *api) transition(apply func(ctx context.Context, id string) (model.Card, error)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		card, err := apply(r.Context(), chi.URLParam(r, "id"))
		if err != nil {
			writeTransitionError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, card)
	}
}

func (s *api) challengeCard(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Direction string `json:"direction"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	card, err := s.orc.Challenge(r.Context(), chi.URLParam(r, "id"), model.Direction(req.Direction))
	if err != nil {
		writeTransitionError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, card)
}

func (s *api) overrideCard(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Grade float64 `json:"grade"`
		Label string  `json:"label"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	card, err := s.orc.Override(r.Context(), chi.URLParam(r, "id"), req.Grade, req.Label)
	if err != nil {
		writeTransitionError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, card)
}

// events long-polls for the next collection change, with a timeout so idle
// clients cycle their connections.
func (s *api) events(w http.ResponseWriter, r *http.Request) {
	ch, cancel := s.orc.Subscribe()
	defer cancel()

	select {
	case <-ch:
		writeJSON(w, http.StatusOK, map[string]string{"event": "changed"})
	case <-time.After(25 * time.Second):
		writeJSON(w, http.StatusOK, map[string]string{"event": "timeout"})
	case <-r.Context().Done():
	}
}

func writeTransitionError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, orchestrator.ErrNotFound):
		writeError(w, http.StatusNotFound, "card not found")
	case errors.Is(err, lifecycle.ErrInvalidTransition):
		writeError(w, http.StatusConflict, err.Error())
	default:
		writeError(w, http.StatusInternalServerError, err.Error())
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		zap.L().Warn("response encode failed", zap.Error(err))
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
