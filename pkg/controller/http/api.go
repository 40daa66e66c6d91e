package http

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/m-mizutani/goerr/v2"
	"github.com/secmon-lab/searchlist/pkg/collection"
	"github.com/secmon-lab/searchlist/pkg/domain/interfaces"
	"github.com/secmon-lab/searchlist/pkg/domain/model"
	"github.com/secmon-lab/searchlist/pkg/domain/types"
	"github.com/secmon-lab/searchlist/pkg/usecase"
	"github.com/secmon-lab/searchlist/pkg/utils/errutil"
	"github.com/secmon-lab/searchlist/pkg/utils/safe"
)

var errInvalidRequest = errors.New("invalid request")

// statusOf maps domain errors to HTTP status codes
func statusOf(err error) int {
	switch {
	case errors.Is(err, errInvalidRequest),
		errors.Is(err, usecase.ErrInvalidTable),
		errors.Is(err, usecase.ErrDetailsCell),
		errors.Is(err, usecase.ErrNoExpandedRow),
		errors.Is(err, collection.ErrOutOfRange),
		errors.Is(err, collection.ErrReadOnlyColumn),
		errors.Is(err, types.ErrInvalidSortOrder):
		return http.StatusBadRequest
	case errors.Is(err, usecase.ErrUnknownCollection),
		errors.Is(err, usecase.ErrUnknownPage),
		errors.Is(err, collection.ErrUnknownColumn),
		errors.Is(err, collection.ErrEntityNotFound),
		errors.Is(err, interfaces.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, usecase.ErrNoCard),
		errors.Is(err, model.ErrPageNotExpanded):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

func writeError(w http.ResponseWriter, r *http.Request, err error) {
	errutil.HandleHTTP(r.Context(), w, err, statusOf(err))
}

func writeJSON(w http.ResponseWriter, r *http.Request, status int, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		errutil.HandleHTTP(r.Context(), w, goerr.Wrap(err, "failed to marshal response"), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	safe.Write(r.Context(), w, data)
}

func decode(r *http.Request, v any) error {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return goerr.Wrap(errInvalidRequest, "failed to decode request body", goerr.V("error", err.Error()))
	}
	return nil
}

// pageOf returns the page query parameter, the current page when absent
func (s *Server) pageOf(r *http.Request) string {
	if page := r.URL.Query().Get("page"); page != "" {
		return page
	}
	return s.uc.View.Page()
}

func (s *Server) listCollections(w http.ResponseWriter, r *http.Request) {
	collections := s.uc.Registry().List()
	resp := struct {
		Collections []model.CollectionConfig `json:"collections"`
	}{
		Collections: make([]model.CollectionConfig, len(collections)),
	}
	for i, c := range collections {
		resp.Collections[i] = c.Config()
	}
	writeJSON(w, r, http.StatusOK, resp)
}

func (s *Server) getGrid(w http.ResponseWriter, r *http.Request) {
	grid, err := s.uc.View.Grid(r.Context(), s.pageOf(r), chi.URLParam(r, "name"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, grid)
}

func (s *Server) getCard(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	id := chi.URLParam(r, "id")

	c := s.uc.Registry().Get(r.Context(), name)
	if c == nil {
		writeError(w, r, goerr.Wrap(usecase.ErrUnknownCollection, "collection not found", goerr.V(usecase.CollectionKey, name)))
		return
	}

	expanded, _ := strconv.ParseBool(r.URL.Query().Get("expanded"))
	card, ok := c.Card(r.Context(), id, expanded)
	if !ok {
		writeError(w, r, goerr.Wrap(collection.ErrEntityNotFound, "card not found",
			goerr.V(usecase.CollectionKey, name), goerr.V("id", id)))
		return
	}
	writeJSON(w, r, http.StatusOK, card)
}

func (s *Server) putSorting(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Column int    `json:"column"`
		Order  string `json:"order"`
	}
	if err := decode(r, &req); err != nil {
		writeError(w, r, err)
		return
	}

	order := types.SortOrderAsc
	if req.Order != "" {
		parsed, err := types.ParseSortOrder(req.Order)
		if err != nil {
			writeError(w, r, err)
			return
		}
		order = parsed
	}

	changed, err := s.uc.View.SortColumn(r.Context(), chi.URLParam(r, "name"), req.Column, order)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, map[string]bool{"changed": changed})
}

type searchableRequest struct {
	Searchable bool `json:"searchable"`
}

func (s *Server) putSearchable(w http.ResponseWriter, r *http.Request) {
	var req searchableRequest
	if err := decode(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	if err := s.uc.View.ToggleSearchable(r.Context(), chi.URLParam(r, "name"), chi.URLParam(r, "column"), req.Searchable); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) putAllSearchable(w http.ResponseWriter, r *http.Request) {
	var req searchableRequest
	if err := decode(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	if err := s.uc.View.ToggleAll(r.Context(), chi.URLParam(r, "name"), req.Searchable); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) postCell(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Page  string      `json:"page"`
		Table model.Table `json:"table"`
		Row   int         `json:"row"`
		Col   int         `json:"col"`
		Value any         `json:"value"`
	}
	if err := decode(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	if req.Page == "" {
		req.Page = s.uc.View.Page()
	}
	if req.Table == "" {
		req.Table = model.TableTop
	}

	if err := s.uc.View.EditCell(r.Context(), req.Page, chi.URLParam(r, "name"), req.Table, req.Row, req.Col, req.Value); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) postExpandRow(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Page  string      `json:"page"`
		Table model.Table `json:"table"`
		Row   int         `json:"row"`
	}
	if err := decode(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	if req.Page == "" {
		req.Page = s.uc.View.Page()
	}
	if req.Table == "" {
		req.Table = model.TableTop
	}

	id, err := s.uc.View.ExpandRow(r.Context(), req.Page, chi.URLParam(r, "name"), req.Table, req.Row)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, map[string]string{"id": id})
}

type searchResponse struct {
	Search    string `json:"search"`
	SessionID string `json:"session_id"`
	Pending   int64  `json:"pending"`
}

func (s *Server) searchState() searchResponse {
	return searchResponse{
		Search:    s.uc.Search.Search(),
		SessionID: s.uc.Search.SessionID(),
		Pending:   s.uc.Search.Pending(),
	}
}

func (s *Server) getSearch(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, r, http.StatusOK, s.searchState())
}

// putSearch sets the search string. With ?wait=true the response is sent
// once both search phases finished.
func (s *Server) putSearch(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Search string `json:"search"`
	}
	if err := decode(r, &req); err != nil {
		writeError(w, r, err)
		return
	}

	s.uc.Search.SetSearch(r.Context(), req.Search)

	if wait, _ := strconv.ParseBool(r.URL.Query().Get("wait")); wait {
		if err := s.uc.Search.Wait(r.Context()); err != nil {
			writeError(w, r, err)
			return
		}
	}
	writeJSON(w, r, http.StatusOK, s.searchState())
}

func (s *Server) getPage(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, r, http.StatusOK, map[string]string{"page": s.uc.View.Page()})
}

func (s *Server) putPage(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Page string `json:"page"`
	}
	if err := decode(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	if err := s.uc.View.SetPage(r.Context(), req.Page); err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, map[string]string{"page": s.uc.View.Page()})
}

func (s *Server) writeExpansion(w http.ResponseWriter, r *http.Request, page string) {
	root, err := s.uc.Expansion().Page(page)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, struct {
		Page  string               `json:"page"`
		Root  *model.ExpansionNode `json:"root"`
		Depth int                  `json:"depth"`
	}{
		Page:  page,
		Root:  root,
		Depth: root.Depth(),
	})
}

func (s *Server) getExpansion(w http.ResponseWriter, r *http.Request) {
	s.writeExpansion(w, r, chi.URLParam(r, "page"))
}

func (s *Server) putExpansion(w http.ResponseWriter, r *http.Request) {
	page := chi.URLParam(r, "page")
	var ref model.Ref
	if err := decode(r, &ref); err != nil {
		writeError(w, r, err)
		return
	}
	// an empty id collapses the page
	if ref.ID == "" {
		if err := s.uc.Expansion().Collapse(page); err != nil {
			writeError(w, r, err)
			return
		}
		s.writeExpansion(w, r, page)
		return
	}
	if err := s.uc.View.OpenCard(r.Context(), page, ref.Type, ref.ID); err != nil {
		writeError(w, r, err)
		return
	}
	s.writeExpansion(w, r, page)
}

func (s *Server) postOverlay(w http.ResponseWriter, r *http.Request) {
	page := chi.URLParam(r, "page")
	var ref model.Ref
	if err := decode(r, &ref); err != nil {
		writeError(w, r, err)
		return
	}
	if err := s.uc.View.OpenRelated(r.Context(), page, ref.Type, ref.ID); err != nil {
		writeError(w, r, err)
		return
	}
	s.writeExpansion(w, r, page)
}

func (s *Server) deleteOverlay(w http.ResponseWriter, r *http.Request) {
	page := chi.URLParam(r, "page")
	if err := s.uc.View.CloseCard(r.Context(), page); err != nil {
		writeError(w, r, err)
		return
	}
	s.writeExpansion(w, r, page)
}

func (s *Server) postSave(w http.ResponseWriter, r *http.Request) {
	page := chi.URLParam(r, "page")
	var req struct {
		Values map[string]any `json:"values"`
	}
	if err := decode(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	if err := s.uc.View.SaveCard(r.Context(), page, req.Values); err != nil {
		writeError(w, r, err)
		return
	}
	s.writeExpansion(w, r, page)
}

func (s *Server) getCards(w http.ResponseWriter, r *http.Request) {
	cards, err := s.uc.View.Cards(r.Context(), chi.URLParam(r, "page"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, map[string]any{"cards": cards})
}

func (s *Server) getOverlays(w http.ResponseWriter, r *http.Request) {
	cards, err := s.uc.View.Overlays(r.Context(), chi.URLParam(r, "page"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, map[string]any{"cards": cards})
}
