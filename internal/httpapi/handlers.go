// Package httpapi exposes the room engine over JSON HTTP. Mutations go
// through here; realtime updates flow through the websocket gateway.
package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/mcdev12/quizroom/internal/models"
	"github.com/mcdev12/quizroom/internal/room"
)

// Handler serves the room API.
type Handler struct {
	app  *room.App
	auth *Authenticator
}

// NewHandler creates a Handler.
func NewHandler(app *room.App, auth *Authenticator) *Handler {
	return &Handler{app: app, auth: auth}
}

// RegisterRoutes mounts all routes on mux.
func (h *Handler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("POST /api/guests", h.handleMintGuest)
	mux.HandleFunc("POST /api/rooms", h.handleCreateRoom)
	mux.HandleFunc("POST /api/rooms/{code}/join", h.handleJoin)
	mux.HandleFunc("GET /api/participants/{id}/state", h.handleReadState)
	mux.HandleFunc("POST /api/participants/{id}/answers", h.handleSubmitAnswer)
	mux.HandleFunc("POST /api/participants/{id}/actions", h.handleHostAction)
	mux.HandleFunc("POST /api/participants/{id}/leave", h.handleLeave)
	mux.HandleFunc("PUT /api/participants/{id}/ready", h.handleSetReady)
}

func (h *Handler) handleMintGuest(w http.ResponseWriter, r *http.Request) {
	token, key, err := h.auth.MintGuestToken()
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]string{
		"token":     token,
		"guest_key": key,
	})
}

type createRoomBody struct {
	DeckID             string `json:"deck_id"`
	TotalRounds        int    `json:"total_rounds"`
	QuestionSeconds    int    `json:"question_seconds"`
	RevealSeconds      int    `json:"reveal_seconds"`
	LeaderboardSeconds int    `json:"leaderboard_seconds"`
}

func (h *Handler) handleCreateRoom(w http.ResponseWriter, r *http.Request) {
	identity, err := h.auth.ResolveIdentity(r)
	if err != nil {
		writeError(w, err)
		return
	}

	var body createRoomBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, errBadBody(err))
		return
	}

	rm, err := h.app.CreateRoom(r.Context(), room.CreateRoomRequest{
		HostIdentity: identity,
		DeckID:       body.DeckID,
		Rules: models.RoomRules{
			TotalRounds:         body.TotalRounds,
			QuestionDuration:    time.Duration(body.QuestionSeconds) * time.Second,
			RevealDuration:      time.Duration(body.RevealSeconds) * time.Second,
			LeaderboardDuration: time.Duration(body.LeaderboardSeconds) * time.Second,
		},
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, rm)
}

type joinBody struct {
	Nickname string `json:"nickname"`
}

func (h *Handler) handleJoin(w http.ResponseWriter, r *http.Request) {
	identity, err := h.auth.ResolveIdentity(r)
	if err != nil {
		writeError(w, err)
		return
	}

	// Body is optional: guests get derived nicknames.
	var body joinBody
	_ = json.NewDecoder(r.Body).Decode(&body)

	p, err := h.app.Join(r.Context(), room.JoinRequest{
		Code:     r.PathValue("code"),
		Identity: identity,
		Nickname: body.Nickname,
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

func (h *Handler) handleReadState(w http.ResponseWriter, r *http.Request) {
	pid, err := pathUUID(r, "id")
	if err != nil {
		writeError(w, err)
		return
	}

	snap, err := h.app.ReadState(r.Context(), pid)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

type answerBody struct {
	RoundIndex  int   `json:"round_index"`
	ChoiceIndex int   `json:"choice_index"`
	ElapsedMs   int64 `json:"elapsed_ms"`
}

func (h *Handler) handleSubmitAnswer(w http.ResponseWriter, r *http.Request) {
	pid, err := pathUUID(r, "id")
	if err != nil {
		writeError(w, err)
		return
	}

	var body answerBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, errBadBody(err))
		return
	}

	res, err := h.app.SubmitAnswer(r.Context(), room.SubmitAnswerRequest{
		ParticipantID:   pid,
		RoundIndex:      body.RoundIndex,
		ChoiceIndex:     body.ChoiceIndex,
		ClientElapsedMs: body.ElapsedMs,
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

type actionBody struct {
	Action string `json:"action"`
}

func (h *Handler) handleHostAction(w http.ResponseWriter, r *http.Request) {
	pid, err := pathUUID(r, "id")
	if err != nil {
		writeError(w, err)
		return
	}

	var body actionBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, errBadBody(err))
		return
	}

	rm, err := h.app.ApplyHostAction(r.Context(), pid, models.HostAction(body.Action))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, rm)
}

func (h *Handler) handleLeave(w http.ResponseWriter, r *http.Request) {
	pid, err := pathUUID(r, "id")
	if err != nil {
		writeError(w, err)
		return
	}
	if err := h.app.Leave(r.Context(), pid); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type readyBody struct {
	Ready bool `json:"ready"`
}

func (h *Handler) handleSetReady(w http.ResponseWriter, r *http.Request) {
	pid, err := pathUUID(r, "id")
	if err != nil {
		writeError(w, err)
		return
	}

	var body readyBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, errBadBody(err))
		return
	}
	if err := h.app.SetReady(r.Context(), pid, body.Ready); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func errBadBody(err error) error {
	return errors.Join(room.ErrInvalidArgument, err)
}

func pathUUID(r *http.Request, name string) (uuid.UUID, error) {
	id, err := uuid.Parse(r.PathValue(name))
	if err != nil {
		return uuid.Nil, errors.Join(room.ErrInvalidArgument, err)
	}
	return id, nil
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Error().Err(err).Msg("failed to encode response")
	}
}

// writeError maps engine errors onto HTTP statuses. Version conflicts and
// phase races surface as 409 so clients know to refetch and retry.
func writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, ErrUnauthenticated):
		status = http.StatusUnauthorized
	case errors.Is(err, room.ErrInvalidArgument):
		status = http.StatusBadRequest
	case errors.Is(err, room.ErrForbidden):
		status = http.StatusForbidden
	case errors.Is(err, room.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, room.ErrExpired):
		status = http.StatusGone
	case errors.Is(err, room.ErrInvalidPhase), errors.Is(err, room.ErrConflict), errors.Is(err, room.ErrRoomFull):
		status = http.StatusConflict
	}

	if status == http.StatusInternalServerError {
		log.Error().Err(err).Msg("request failed")
	}
	writeJSON(w, status, map[string]string{"error": err.Error()})
}
