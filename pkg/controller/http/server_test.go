package http_test

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/m-mizutani/gt"
	httpctrl "github.com/secmon-lab/searchlist/pkg/controller/http"
	"github.com/secmon-lab/searchlist/pkg/collection"
	"github.com/secmon-lab/searchlist/pkg/domain/model"
	"github.com/secmon-lab/searchlist/pkg/domain/types"
	"github.com/secmon-lab/searchlist/pkg/repository/jsonapi"
	"github.com/secmon-lab/searchlist/pkg/repository/memory"
	"github.com/secmon-lab/searchlist/pkg/service/entitycache"
	"github.com/secmon-lab/searchlist/pkg/usecase"
)

func setupServer(t *testing.T) (*httpctrl.Server, *memory.Memory) {
	t.Helper()
	ctx := context.Background()

	store := memory.New()
	for _, e := range []*model.Entity{
		{
			Type:       "people",
			ID:         "1",
			Attributes: map[string]any{"first_name": "Alice", "last_name": "Smith"},
			Relationships: map[string]model.Relationship{
				"cats": model.ToMany(model.Ref{Type: "cats", ID: "1"}),
			},
		},
		{Type: "people", ID: "2", Attributes: map[string]any{"first_name": "Bob", "last_name": "Jones"}},
		{Type: "people", ID: "3", Attributes: map[string]any{"first_name": "David", "last_name": "Smith"}},
		{Type: "cats", ID: "1", Attributes: map[string]any{"name": "Ella"}},
	} {
		_, err := store.Put(ctx, e)
		gt.NoError(t, err).Required()
	}

	cache := entitycache.New(store)
	registry := collection.NewRegistry(ctx, []model.CollectionOption{
		{
			Name: "people",
			Columns: []model.ColumnOption{
				{Name: "first_name", Alias: "First Name"},
				{Name: "last_name", Alias: "Surname"},
				{Name: "cats.name", Alias: "Cats"},
			},
		},
		{
			Name:    "cats",
			Columns: []model.ColumnOption{{Name: "name"}},
		},
	}, cache)

	uc := usecase.New(registry, cache,
		usecase.WithShortSearchDelay(5*time.Millisecond),
		usecase.WithLongSearchDelay(20*time.Millisecond),
		usecase.WithPollInterval(2*time.Millisecond),
	)
	return httpctrl.New(uc, httpctrl.WithJSONAPI(jsonapi.NewHandler(store))), store
}

func doRequest(t *testing.T, h http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		gt.NoError(t, json.NewEncoder(&buf).Encode(body)).Required()
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

func decodeBody[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	gt.NoError(t, json.Unmarshal(w.Body.Bytes(), &v)).Required()
	return v
}

func search(t *testing.T, h http.Handler, s string) {
	t.Helper()
	w := doRequest(t, h, http.MethodPut, "/api/search?wait=true", map[string]string{"search": s})
	gt.Value(t, w.Code).Equal(http.StatusOK)
}

type expansionResponse struct {
	Page  string               `json:"page"`
	Root  *model.ExpansionNode `json:"root"`
	Depth int                  `json:"depth"`
}

func TestServer_ListCollections(t *testing.T) {
	srv, _ := setupServer(t)

	w := doRequest(t, srv, http.MethodGet, "/api/collections", nil)
	gt.Value(t, w.Code).Equal(http.StatusOK)

	resp := decodeBody[struct {
		Collections []model.CollectionConfig `json:"collections"`
	}](t, w)
	gt.Array(t, resp.Collections).Length(2)
	gt.Value(t, resp.Collections[0].Name).Equal("people")
	gt.Value(t, resp.Collections[1].Name).Equal("cats")
}

func TestServer_SearchAndGrid(t *testing.T) {
	srv, _ := setupServer(t)
	search(t, srv, "smith")

	w := doRequest(t, srv, http.MethodGet, "/api/search", nil)
	gt.Value(t, w.Code).Equal(http.StatusOK)
	state := decodeBody[map[string]any](t, w)
	gt.Value(t, state["search"]).Equal("smith")
	gt.Value(t, state["session_id"]).NotEqual("")

	w = doRequest(t, srv, http.MethodGet, "/api/collections/people/grid", nil)
	gt.Value(t, w.Code).Equal(http.StatusOK)

	grid := decodeBody[model.GridView](t, w)
	gt.Value(t, grid.Headers).Equal([]string{types.DefaultDetailsTitle, "First Name", "Surname", "Cats"})
	gt.Value(t, grid.Tables.TopIDs).Equal([]string{"1", "3"})
	gt.Value(t, grid.Tables.Top[0]).Equal([]string{types.DefaultDetailsText, "Alice", "Smith", "Ella"})
}

func TestServer_EditCell(t *testing.T) {
	srv, store := setupServer(t)
	search(t, srv, "smith")

	w := doRequest(t, srv, http.MethodPost, "/api/collections/people/cells", map[string]any{
		"table": "top",
		"row":   1,
		"col":   1,
		"value": "Dave",
	})
	gt.Value(t, w.Code).Equal(http.StatusNoContent)

	stored, err := store.Get(context.Background(), "people", "3")
	gt.NoError(t, err).Required()
	gt.Value(t, stored.Attributes["first_name"]).Equal("Dave")

	t.Run("details cell is rejected", func(t *testing.T) {
		w := doRequest(t, srv, http.MethodPost, "/api/collections/people/cells", map[string]any{
			"row": 0, "col": 0, "value": "x",
		})
		gt.Value(t, w.Code).Equal(http.StatusBadRequest)
	})

	t.Run("relationship column is read only", func(t *testing.T) {
		w := doRequest(t, srv, http.MethodPost, "/api/collections/people/cells", map[string]any{
			"row": 0, "col": 3, "value": "x",
		})
		gt.Value(t, w.Code).Equal(http.StatusBadRequest)
	})
}

func TestServer_SortColumn(t *testing.T) {
	srv, _ := setupServer(t)
	search(t, srv, "smith")

	w := doRequest(t, srv, http.MethodPut, "/api/collections/people/sorting", map[string]any{
		"column": 1,
		"order":  "desc",
	})
	gt.Value(t, w.Code).Equal(http.StatusOK)
	gt.Value(t, decodeBody[map[string]bool](t, w)["changed"]).Equal(true)

	w = doRequest(t, srv, http.MethodGet, "/api/collections/people/grid", nil)
	grid := decodeBody[model.GridView](t, w)
	gt.Value(t, grid.Tables.TopIDs).Equal([]string{"3", "1"})

	w = doRequest(t, srv, http.MethodPut, "/api/collections/people/sorting", map[string]any{
		"column": 1,
		"order":  "sideways",
	})
	gt.Value(t, w.Code).Equal(http.StatusBadRequest)
}

func TestServer_CardNavigation(t *testing.T) {
	srv, _ := setupServer(t)
	search(t, srv, "smith")

	w := doRequest(t, srv, http.MethodPost, "/api/collections/people/rows/expand", map[string]any{"row": 0})
	gt.Value(t, w.Code).Equal(http.StatusOK)
	gt.Value(t, decodeBody[map[string]string](t, w)["id"]).Equal("1")

	w = doRequest(t, srv, http.MethodPost, "/api/pages/_all/overlay", model.Ref{Type: "cats", ID: "1"})
	gt.Value(t, w.Code).Equal(http.StatusOK)
	exp := decodeBody[expansionResponse](t, w)
	gt.Value(t, exp.Depth).Equal(2)
	gt.Value(t, exp.Root.Overlay.Type).Equal("cats")

	w = doRequest(t, srv, http.MethodGet, "/api/pages/_all/overlays", nil)
	gt.Value(t, w.Code).Equal(http.StatusOK)
	overlays := decodeBody[struct {
		Cards []model.CardView `json:"cards"`
	}](t, w)
	gt.Array(t, overlays.Cards).Length(2)

	w = doRequest(t, srv, http.MethodDelete, "/api/pages/_all/overlay", nil)
	gt.Value(t, decodeBody[expansionResponse](t, w).Depth).Equal(1)

	w = doRequest(t, srv, http.MethodDelete, "/api/pages/_all/overlay", nil)
	gt.Value(t, decodeBody[expansionResponse](t, w).Depth).Equal(0)

	w = doRequest(t, srv, http.MethodDelete, "/api/pages/_all/overlay", nil)
	gt.Value(t, w.Code).Equal(http.StatusConflict)

	w = doRequest(t, srv, http.MethodPost, "/api/pages/_all/overlay", model.Ref{Type: "cats", ID: "1"})
	gt.Value(t, w.Code).Equal(http.StatusConflict)
}

func TestServer_ExpansionAndSave(t *testing.T) {
	srv, store := setupServer(t)
	search(t, srv, "smith")

	w := doRequest(t, srv, http.MethodPut, "/api/pages/people/expansion", model.Ref{Type: "people", ID: "3"})
	gt.Value(t, w.Code).Equal(http.StatusOK)
	gt.Value(t, decodeBody[expansionResponse](t, w).Root.ID).Equal("3")

	w = doRequest(t, srv, http.MethodGet, "/api/collections/people/entities/3/card?expanded=true", nil)
	gt.Value(t, w.Code).Equal(http.StatusOK)
	card := decodeBody[model.CardView](t, w)
	gt.Value(t, card.Expanded).Equal(true)
	gt.Array(t, card.Fields).Length(3)

	w = doRequest(t, srv, http.MethodPost, "/api/pages/people/save", map[string]any{
		"values": map[string]any{"last_name": "Smithson"},
	})
	gt.Value(t, w.Code).Equal(http.StatusOK)
	gt.Value(t, decodeBody[expansionResponse](t, w).Depth).Equal(0)

	stored, err := store.Get(context.Background(), "people", "3")
	gt.NoError(t, err).Required()
	gt.Value(t, stored.Attributes["last_name"]).Equal("Smithson")

	w = doRequest(t, srv, http.MethodPut, "/api/pages/people/expansion", model.Ref{Type: "people", ID: "1"})
	gt.Value(t, w.Code).Equal(http.StatusOK)
	w = doRequest(t, srv, http.MethodPut, "/api/pages/people/expansion", model.Ref{})
	gt.Value(t, w.Code).Equal(http.StatusOK)
	gt.Value(t, decodeBody[expansionResponse](t, w).Root).Nil()
}

func TestServer_Page(t *testing.T) {
	srv, _ := setupServer(t)

	w := doRequest(t, srv, http.MethodGet, "/api/page", nil)
	gt.Value(t, decodeBody[map[string]string](t, w)["page"]).Equal(types.AllPage)

	w = doRequest(t, srv, http.MethodPut, "/api/page", map[string]string{"page": "cats"})
	gt.Value(t, w.Code).Equal(http.StatusOK)
	gt.Value(t, decodeBody[map[string]string](t, w)["page"]).Equal("cats")

	w = doRequest(t, srv, http.MethodPut, "/api/page", map[string]string{"page": "dogs"})
	gt.Value(t, w.Code).Equal(http.StatusNotFound)
}

func TestServer_Errors(t *testing.T) {
	srv, _ := setupServer(t)

	testCases := []struct {
		name   string
		method string
		path   string
		body   any
		status int
	}{
		{
			name:   "unknown collection grid",
			method: http.MethodGet,
			path:   "/api/collections/dogs/grid",
			status: http.StatusNotFound,
		},
		{
			name:   "card of an entity that is not loaded",
			method: http.MethodGet,
			path:   "/api/collections/people/entities/99/card",
			status: http.StatusNotFound,
		},
		{
			name:   "unknown column",
			method: http.MethodPut,
			path:   "/api/collections/people/columns/age/searchable",
			body:   map[string]bool{"searchable": true},
			status: http.StatusNotFound,
		},
		{
			name:   "invalid table",
			method: http.MethodPost,
			path:   "/api/collections/people/cells",
			body:   map[string]any{"table": "middle", "row": 0, "col": 1, "value": "x"},
			status: http.StatusBadRequest,
		},
		{
			name:   "malformed body",
			method: http.MethodPut,
			path:   "/api/search",
			body:   "not an object",
			status: http.StatusBadRequest,
		},
		{
			name:   "unknown page",
			method: http.MethodGet,
			path:   "/api/pages/dogs/cards",
			status: http.StatusNotFound,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			w := doRequest(t, srv, tc.method, tc.path, tc.body)
			gt.Value(t, w.Code).Equal(tc.status)
			gt.String(t, w.Body.String()).Contains("error")
		})
	}
}

func TestServer_ToggleSearchable(t *testing.T) {
	srv, _ := setupServer(t)

	w := doRequest(t, srv, http.MethodPut, "/api/collections/people/columns/first_name/searchable", map[string]bool{"searchable": false})
	gt.Value(t, w.Code).Equal(http.StatusNoContent)

	w = doRequest(t, srv, http.MethodPut, "/api/collections/people/searchable", map[string]bool{"searchable": false})
	gt.Value(t, w.Code).Equal(http.StatusNoContent)

	w = doRequest(t, srv, http.MethodGet, "/api/collections", nil)
	resp := decodeBody[struct {
		Collections []model.CollectionConfig `json:"collections"`
	}](t, w)
	for _, col := range resp.Collections[0].Columns {
		gt.Bool(t, col.Searchable).False()
	}
}

func TestServer_JSONAPIMount(t *testing.T) {
	srv, _ := setupServer(t)

	w := doRequest(t, srv, http.MethodGet, "/jsonapi/people/1", nil)
	gt.Value(t, w.Code).Equal(http.StatusOK)
	gt.String(t, w.Header().Get("Content-Type")).Equal(jsonapi.ContentType)
	gt.String(t, w.Body.String()).Contains("Alice")
}
