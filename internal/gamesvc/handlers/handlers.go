package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/avvvet/ludo-services/internal/gamesvc/models"
	"github.com/go-chi/chi"
	"github.com/go-chi/jwtauth"
	log "github.com/sirupsen/logrus"
)

type Tournaments interface {
	CancelTournament(ctx context.Context, id string) error
	CloseTournament(ctx context.Context, id string) error
}

type Handler struct {
	tokenAuth   *jwtauth.JWTAuth
	tournaments Tournaments
	port        string
}

func NewHandler(tokenAuth *jwtauth.JWTAuth, tournaments Tournaments, port string) *Handler {
	return &Handler{tokenAuth: tokenAuth, tournaments: tournaments, port: port}
}

type Response struct {
	Message string      `json:"message"`
	Code    int         `json:"code"`
	Data    interface{} `json:"data"`
	Error   string      `json:"error"`
}

func (h *Handler) CreateResponse(w http.ResponseWriter, rsp Response) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(rsp.Code)
	if err := json.NewEncoder(w).Encode(rsp); err != nil {
		log.Errorf("Failed to encode response: %v", err)
	}
}

func (h *Handler) HealthHandler(w http.ResponseWriter, r *http.Request) {
	h.CreateResponse(w, Response{
		Message: "game service is running at port " + h.port,
		Code:    http.StatusOK,
	})
}

func (h *Handler) CancelTournament(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := h.tournaments.CancelTournament(r.Context(), id); err != nil {
		h.errorResponse(w, "cancel "+id, err)
		return
	}
	h.CreateResponse(w, Response{Message: "tournament canceled", Code: http.StatusOK, Data: map[string]string{"id": id}})
}

// CloseTournament lets an operator run the end-of-window step ahead of the controller.
func (h *Handler) CloseTournament(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := h.tournaments.CloseTournament(r.Context(), id); err != nil {
		h.errorResponse(w, "close "+id, err)
		return
	}
	h.CreateResponse(w, Response{Message: "tournament close processed", Code: http.StatusOK, Data: map[string]string{"id": id}})
}

func (h *Handler) errorResponse(w http.ResponseWriter, op string, err error) {
	code := http.StatusInternalServerError
	switch {
	case errors.Is(err, models.ErrNotFound):
		code = http.StatusNotFound
	case errors.Is(err, models.ErrInvalidTransition):
		code = http.StatusConflict
	case errors.Is(err, models.ErrDownstream), errors.Is(err, context.DeadlineExceeded):
		code = http.StatusServiceUnavailable
	}

	msg := err.Error()
	if code == http.StatusInternalServerError {
		log.Errorf("%s: %s", op, err)
		msg = "internal error"
	}
	h.CreateResponse(w, Response{Message: op + " failed", Code: code, Error: msg})
}
