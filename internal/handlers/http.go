package handlers

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/idot-digital/events-api/internal/middleware"
	"github.com/idot-digital/events-api/internal/models"
	"github.com/idot-digital/events-api/internal/store"
)

const (
	likeReaction    = "likes"
	dislikeReaction = "dislike"
)

// HTTPHandlers implements the event REST routes. Every handler performs
// exactly one store call and writes its result as JSON.
type HTTPHandlers struct {
	store  store.EventStore
	logger *slog.Logger
}

func NewHTTPHandlers(s store.EventStore, logger *slog.Logger) *HTTPHandlers {
	return &HTTPHandlers{store: s, logger: logger}
}

// Mount registers the routes on mux below prefix, e.g. "/api/event".
// The literal like and dislike routes are more specific than
// /{id}/{reactionType}, so the mux always prefers them.
func (h *HTTPHandlers) Mount(mux *http.ServeMux, prefix string) {
	route := func(pattern string, handler http.HandlerFunc, operation string) {
		mux.HandleFunc(pattern, middleware.Metrics(handler, operation))
	}

	route("GET "+prefix+"/{id}", h.GetEventHandler, "get_event")
	route("POST "+prefix+"/{$}", h.AddEventHandler, "add_event")
	if prefix != "" {
		route("POST "+prefix, h.AddEventHandler, "add_event")
	}
	route("PUT "+prefix+"/{id}", h.UpdateEventHandler, "update_event")
	route("DELETE "+prefix+"/{id}", h.DeleteEventHandler, "delete_event")
	route("PUT "+prefix+"/like/{id}", h.LikeEventHandler, "like_event")
	route("PUT "+prefix+"/dislike/{id}", h.DislikeEventHandler, "dislike_event")
	route("PUT "+prefix+"/{id}/{reactionType}", h.ChangeReactionHandler, "change_reaction")
}

func (h *HTTPHandlers) GetEventHandler(w http.ResponseWriter, r *http.Request) {
	event, err := h.store.GetByID(r.Context(), r.PathValue("id"))
	if err != nil {
		h.fail(w, r, "get event", err)
		return
	}
	h.writeJSON(w, r, http.StatusOK, event)
}

func (h *HTTPHandlers) AddEventHandler(w http.ResponseWriter, r *http.Request) {
	fields, ok := h.decodeBody(w, r)
	if !ok {
		return
	}
	events, err := h.store.Add(r.Context(), fields)
	if err != nil {
		h.fail(w, r, "add event", err)
		return
	}
	h.writeJSON(w, r, http.StatusCreated, events)
}

func (h *HTTPHandlers) UpdateEventHandler(w http.ResponseWriter, r *http.Request) {
	patch, ok := h.decodeBody(w, r)
	if !ok {
		return
	}
	events, err := h.store.Update(r.Context(), r.PathValue("id"), patch)
	if err != nil {
		h.fail(w, r, "update event", err)
		return
	}
	h.writeJSON(w, r, http.StatusOK, events)
}

func (h *HTTPHandlers) DeleteEventHandler(w http.ResponseWriter, r *http.Request) {
	events, err := h.store.Delete(r.Context(), r.PathValue("id"))
	if err != nil {
		h.fail(w, r, "delete event", err)
		return
	}
	h.writeJSON(w, r, http.StatusOK, events)
}

func (h *HTTPHandlers) LikeEventHandler(w http.ResponseWriter, r *http.Request) {
	h.changeReaction(w, r, r.PathValue("id"), likeReaction)
}

func (h *HTTPHandlers) DislikeEventHandler(w http.ResponseWriter, r *http.Request) {
	h.changeReaction(w, r, r.PathValue("id"), dislikeReaction)
}

func (h *HTTPHandlers) ChangeReactionHandler(w http.ResponseWriter, r *http.Request) {
	h.changeReaction(w, r, r.PathValue("id"), r.PathValue("reactionType"))
}

func (h *HTTPHandlers) changeReaction(w http.ResponseWriter, r *http.Request, id, reactionType string) {
	total, err := h.store.ChangeReaction(r.Context(), id, reactionType)
	if err != nil {
		h.fail(w, r, "change reaction", err)
		return
	}
	h.writeJSON(w, r, http.StatusOK, total)
}

// decodeBody reads a JSON object body. An empty body is an empty object.
func (h *HTTPHandlers) decodeBody(w http.ResponseWriter, r *http.Request) (models.Fields, bool) {
	dec := json.NewDecoder(r.Body)
	dec.UseNumber()

	var fields models.Fields
	if err := dec.Decode(&fields); err != nil && !errors.Is(err, io.EOF) {
		middleware.Logger(r.Context(), h.logger).Warn("Invalid request body", "path", r.URL.Path, "error", err)
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return nil, false
	}
	if fields == nil {
		fields = models.Fields{}
	}
	return fields, true
}

// fail logs the store error and answers with a generic 500.
func (h *HTTPHandlers) fail(w http.ResponseWriter, r *http.Request, op string, err error) {
	middleware.Logger(r.Context(), h.logger).Error("Failed to "+op,
		"method", r.Method,
		"path", r.URL.Path,
		"error", err,
	)
	http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
}

func (h *HTTPHandlers) writeJSON(w http.ResponseWriter, r *http.Request, status int, v any) {
	body, err := json.Marshal(v)
	if err != nil {
		h.fail(w, r, "encode response", err)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	w.Write(body)
}
