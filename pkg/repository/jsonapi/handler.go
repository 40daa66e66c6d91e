package jsonapi

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/m-mizutani/goerr/v2"
	"github.com/secmon-lab/searchlist/pkg/domain/interfaces"
	"github.com/secmon-lab/searchlist/pkg/domain/model"
	"github.com/secmon-lab/searchlist/pkg/utils/errutil"
	"github.com/secmon-lab/searchlist/pkg/utils/logging"
)

// NewHandler exposes an EntityStore with the same JSON:API convention the
// Client speaks. `serve` mounts it under /jsonapi.
func NewHandler(store interfaces.EntityStore) http.Handler {
	r := chi.NewRouter()
	h := &handler{store: store}
	r.Get("/{type}", h.list)
	r.Post("/{type}", h.create)
	r.Get("/{type}/{id}", h.get)
	r.Patch("/{type}/{id}", h.patch)
	return r
}

type handler struct {
	store interfaces.EntityStore
}

func (h *handler) list(w http.ResponseWriter, r *http.Request) {
	typ := chi.URLParam(r, "type")

	var opts []interfaces.ListOption
	for key, values := range r.URL.Query() {
		column, ok := parseFilterKey(key)
		if !ok {
			continue
		}
		for _, v := range values {
			opts = append(opts, interfaces.WithFilter(column, v))
		}
	}
	if include := r.URL.Query().Get("include"); include != "" {
		opts = append(opts, interfaces.WithInclude(strings.Split(include, ",")...))
	}

	result, err := h.store.List(r.Context(), typ, opts...)
	if err != nil {
		writeError(w, r, err)
		return
	}

	writeDocument(w, r, http.StatusOK, map[string]any{
		"data":     result.Data,
		"included": nonNil(result.Included),
	})
}

func parseFilterKey(key string) (string, bool) {
	if !strings.HasPrefix(key, "filter[") || !strings.HasSuffix(key, "]") {
		return "", false
	}
	inner := key[len("filter[") : len(key)-1]
	column, op, found := strings.Cut(inner, ":")
	if found && op != "ilike" {
		return "", false
	}
	return column, column != ""
}

func (h *handler) get(w http.ResponseWriter, r *http.Request) {
	e, err := h.store.Get(r.Context(), chi.URLParam(r, "type"), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeDocument(w, r, http.StatusOK, map[string]any{"data": e})
}

func (h *handler) create(w http.ResponseWriter, r *http.Request) {
	e, ok := readEntity(w, r)
	if !ok {
		return
	}
	e.Type = chi.URLParam(r, "type")

	created, err := h.store.Put(r.Context(), e)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeDocument(w, r, http.StatusCreated, map[string]any{"data": created})
}

func (h *handler) patch(w http.ResponseWriter, r *http.Request) {
	e, ok := readEntity(w, r)
	if !ok {
		return
	}
	e.Type = chi.URLParam(r, "type")
	e.ID = chi.URLParam(r, "id")

	updated, err := h.store.Patch(r.Context(), e)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeDocument(w, r, http.StatusOK, map[string]any{"data": updated})
}

func readEntity(w http.ResponseWriter, r *http.Request) (*model.Entity, bool) {
	var body struct {
		Data *model.Entity `json:"data"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil || body.Data == nil {
		writeErrorStatus(w, r, http.StatusBadRequest, "invalid document", "request body must be {\"data\": {...}}")
		return nil, false
	}
	return body.Data, true
}

func nonNil(entities []*model.Entity) []*model.Entity {
	if entities == nil {
		return []*model.Entity{}
	}
	return entities
}

func writeDocument(w http.ResponseWriter, r *http.Request, status int, doc any) {
	w.Header().Set("Content-Type", ContentType)
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(doc); err != nil {
		logging.From(r.Context()).Error("failed to encode JSON:API document", "error", err)
	}
}

func writeError(w http.ResponseWriter, r *http.Request, err error) {
	if errors.Is(err, ErrNotFound) {
		writeErrorStatus(w, r, http.StatusNotFound, "not found", err.Error())
		return
	}
	_ = errutil.Handle(r.Context(), goerr.Wrap(err, "store request failed", goerr.V("path", r.URL.Path)), "JSON:API request failed")
	writeErrorStatus(w, r, http.StatusInternalServerError, "internal error", "")
}

func writeErrorStatus(w http.ResponseWriter, r *http.Request, status int, title, detail string) {
	writeDocument(w, r, status, map[string]any{
		"errors": []apiError{{
			Status: http.StatusText(status),
			Title:  title,
			Detail: detail,
		}},
	})
}
