package api

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/example/missing-persons/internal/command"
	"github.com/example/missing-persons/internal/domain/person"
	"github.com/example/missing-persons/internal/media"
	"github.com/example/missing-persons/internal/roster"
)

// multipart overhead allowed on top of the image limit
const formSlack = 1 << 20

type Handlers struct {
	cmdHandler *command.Handler
	roster     *roster.Synchronizer
	maxUpload  int64
}

func NewHandlers(cmdHandler *command.Handler, syncer *roster.Synchronizer, maxUpload int64) *Handlers {
	if maxUpload <= 0 {
		maxUpload = media.DefaultMaxBytes
	}
	return &Handlers{
		cmdHandler: cmdHandler,
		roster:     syncer,
		maxUpload:  maxUpload,
	}
}

type resultResponse struct {
	Result string `json:"result"`
	Field  string `json:"field,omitempty"`
	Error  string `json:"error,omitempty"`
}

type statusResponse struct {
	State      string `json:"state"`
	Loading    bool   `json:"loading"`
	Submitting bool   `json:"submitting"`
	Count      int    `json:"count"`
}

// People Handlers

func (h *Handlers) SearchPeople(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("X-Roster-Loading", strconv.FormatBool(h.roster.Loading()))
	respondJSON(w, http.StatusOK, h.roster.Search(r.URL.Query().Get("q")))
}

func (h *Handlers) ReportMissing(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, h.maxUpload+formSlack)
	if err := r.ParseMultipartForm(h.maxUpload + formSlack); err != nil {
		respondJSON(w, http.StatusBadRequest, resultResponse{Result: string(command.OutcomeValidationError), Error: err.Error()})
		return
	}

	cmd := command.ReportMissing{
		Candidate: person.Candidate{
			Name:        r.FormValue("name"),
			Age:         r.FormValue("age"),
			LastSeen:    r.FormValue("lastSeen"),
			Description: r.FormValue("description"),
			Contact:     r.FormValue("contact"),
		},
	}

	if file, header, err := r.FormFile("image"); err == nil {
		data, err := io.ReadAll(io.LimitReader(file, h.maxUpload+1))
		file.Close()
		if err != nil {
			respondJSON(w, http.StatusBadRequest, resultResponse{Result: string(command.OutcomeValidationError), Field: "image"})
			return
		}
		cmd.Image = data
		cmd.Filename = header.Filename
	}

	rec, err := h.cmdHandler.Submit(r.Context(), cmd)
	outcome := command.Classify(err)
	switch outcome {
	case command.OutcomeSuccess:
		respondJSON(w, http.StatusCreated, rec)
	case command.OutcomeValidationError:
		var verr *person.ValidationError
		errors.As(err, &verr)
		respondJSON(w, http.StatusBadRequest, resultResponse{Result: string(outcome), Field: verr.Field})
	default:
		respondJSON(w, http.StatusBadGateway, resultResponse{Result: string(outcome), Error: err.Error()})
	}
}

func (h *Handlers) MarkFound(w http.ResponseWriter, r *http.Request) {
	id := strings.TrimSuffix(extractPathParam(r.URL.Path, "/people/"), "/found")
	if id == "" || strings.Contains(id, "/") {
		http.Error(w, "Record not found", http.StatusNotFound)
		return
	}

	err := h.cmdHandler.MarkFound(r.Context(), id)
	switch {
	case err == nil:
		respondJSON(w, http.StatusOK, resultResponse{Result: "success"})
	case errors.Is(err, roster.ErrRecordNotFound):
		http.Error(w, "Record not found", http.StatusNotFound)
	case errors.Is(err, roster.ErrNotLive):
		respondJSON(w, http.StatusServiceUnavailable, resultResponse{Result: "not_live"})
	case roster.IsUpdateFailed(err):
		respondJSON(w, http.StatusConflict, resultResponse{Result: "update_failed", Error: err.Error()})
	default:
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}

func (h *Handlers) Status(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, statusResponse{
		State:      h.roster.State().String(),
		Loading:    h.roster.Loading(),
		Submitting: h.cmdHandler.Submitting(),
		Count:      len(h.roster.Snapshot()),
	})
}

func respondJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func extractPathParam(path, prefix string) string {
	return strings.TrimPrefix(path, prefix)
}
