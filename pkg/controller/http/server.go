package http

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/secmon-lab/searchlist/pkg/usecase"
	"github.com/secmon-lab/searchlist/pkg/utils/logging"
)

type Server struct {
	router  *chi.Mux
	uc      *usecase.UseCases
	jsonapi http.Handler
}

type Options func(*Server)

// WithJSONAPI mounts a JSON:API view of the entity store under /jsonapi
func WithJSONAPI(handler http.Handler) Options {
	return func(s *Server) {
		s.jsonapi = handler
	}
}

func New(uc *usecase.UseCases, opts ...Options) *Server {
	r := chi.NewRouter()

	s := &Server{
		router: r,
		uc:     uc,
	}
	for _, opt := range opts {
		opt(s)
	}

	// Middleware
	r.Use(middleware.RequestID)
	r.Use(accessLogger)
	r.Use(middleware.Recoverer)

	r.Route("/api", func(r chi.Router) {
		r.Get("/collections", s.listCollections)
		r.Route("/collections/{name}", func(r chi.Router) {
			r.Get("/grid", s.getGrid)
			r.Get("/entities/{id}/card", s.getCard)
			r.Put("/sorting", s.putSorting)
			r.Put("/searchable", s.putAllSearchable)
			r.Put("/columns/{column}/searchable", s.putSearchable)
			r.Post("/cells", s.postCell)
			r.Post("/rows/expand", s.postExpandRow)
		})

		r.Get("/search", s.getSearch)
		r.Put("/search", s.putSearch)
		r.Get("/page", s.getPage)
		r.Put("/page", s.putPage)

		r.Route("/pages/{page}", func(r chi.Router) {
			r.Get("/expansion", s.getExpansion)
			r.Put("/expansion", s.putExpansion)
			r.Post("/overlay", s.postOverlay)
			r.Delete("/overlay", s.deleteOverlay)
			r.Post("/save", s.postSave)
			r.Get("/cards", s.getCards)
			r.Get("/overlays", s.getOverlays)
		})
	})

	if s.jsonapi != nil {
		r.Mount("/jsonapi", s.jsonapi)
	}

	return s
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// accessLogger is a middleware that logs HTTP requests
func accessLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

		defer func() {
			logging.Default().Info("access",
				"method", r.Method,
				"path", r.URL.Path,
				"status", ww.Status(),
				"bytes", ww.BytesWritten(),
				"duration", time.Since(start),
				"remote", r.RemoteAddr,
				"request_id", middleware.GetReqID(r.Context()),
			)
		}()

		next.ServeHTTP(ww, r)
	})
}
