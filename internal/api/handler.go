package api

import (
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/goccy/go-json"

	"standings/internal/standings"
	"standings/pkg/logger"
	"standings/pkg/result"
)

const maxBodyBytes = 1 << 20

// Handler serves the standings read API and result submission
type Handler struct {
	service *standings.Service
	logger  *logger.Logger
}

// NewHandler creates a new Handler
func NewHandler(svc *standings.Service, l *logger.Logger) *Handler {
	return &Handler{service: svc, logger: l.Named("api")}
}

func (h *Handler) getEvent(w http.ResponseWriter, r *http.Request) {
	ev, err := h.service.Event(r.Context(), chi.URLParam(r, "eventID"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, ev)
}

func (h *Handler) getSchedule(w http.ResponseWriter, r *http.Request) {
	schedule, err := h.service.Schedule(r.Context(), chi.URLParam(r, "groupID"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"matches": schedule})
}

func (h *Handler) getGroupStandings(w http.ResponseWriter, r *http.Request) {
	groupID := chi.URLParam(r, "groupID")
	out, err := h.service.GroupStandings(r.Context(), groupID)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"groupId": groupID, "matches": out})
}

func (h *Handler) getOverall(w http.ResponseWriter, r *http.Request) {
	out, err := h.service.Overall(r.Context(), r.URL.Query()["match"])
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

func (h *Handler) postResult(w http.ResponseWriter, r *http.Request) {
	var m result.Match
	if err := readJSON(w, r, &m); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: err.Error()})
		return
	}

	matchID := chi.URLParam(r, "matchID")
	if m.ID != "" && m.ID != matchID {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: "match id in body does not match path"})
		return
	}
	m.ID = matchID

	recorded, err := h.service.RecordResult(r.Context(), m)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, recorded)
}

type errorBody struct {
	Error     string `json:"error"`
	RequestID string `json:"requestId,omitempty"`
}

func (h *Handler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, standings.ErrNotFound):
		writeJSON(w, http.StatusNotFound, errorBody{Error: err.Error()})
	case errors.Is(err, standings.ErrInvalidResult):
		writeJSON(w, http.StatusBadRequest, errorBody{Error: err.Error()})
	default:
		id := GetRequestID(r.Context())
		h.logger.Error("request failed", err)
		writeJSON(w, http.StatusInternalServerError, errorBody{Error: "internal server error", RequestID: id})
	}
}

func readJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	data, err := io.ReadAll(r.Body)
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return fmt.Errorf("body must not be larger than %d bytes", maxBodyBytes)
		}
		return err
	}
	if len(data) == 0 {
		return errors.New("body must not be empty")
	}
	if err := json.Unmarshal(data, dst); err != nil {
		return fmt.Errorf("body contains badly-formed JSON: %w", err)
	}
	return nil
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		w.WriteHeader(http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(data)
}
