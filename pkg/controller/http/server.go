package http

import (
	"io/fs"
	"net/http"

	"github.com/go-chi/chi/v5"
	websocket_controller "github.com/secmon-lab/agentrun/pkg/controller/websocket"
	"github.com/secmon-lab/agentrun/pkg/domain/interfaces"
)

type Server struct {
	router         *chi.Mux
	websocketCtrl  *websocket_controller.Handler
	staticFS       fs.FS
	allowedOrigins []string
}

type Options func(*Server)

func WithWebSocketHandler(handler *websocket_controller.Handler) Options {
	return func(s *Server) {
		s.websocketCtrl = handler
	}
}

// WithStaticFS serves a single page application from fsys. index.html must
// exist at the root of fsys.
func WithStaticFS(fsys fs.FS) Options {
	return func(s *Server) {
		s.staticFS = fsys
	}
}

func WithAllowedOrigins(origins []string) Options {
	return func(s *Server) {
		s.allowedOrigins = origins
	}
}

type UseCase interface {
	interfaces.RunUsecases
	interfaces.ArtifactUsecases
	interfaces.HistoryUsecases
}

func New(uc UseCase, opts ...Options) *Server {
	r := chi.NewRouter()

	s := &Server{
		router: r,
	}
	for _, opt := range opts {
		opt(s)
	}

	r.Use(loggingMiddleware)
	r.Use(panicRecoveryMiddleware)
	r.Use(corsMiddleware(s.allowedOrigins))

	r.Get("/health", healthHandler)

	r.Route("/api", func(r chi.Router) {
		r.Post("/run", runHandler(uc))
		r.Get("/logs", logsHandler(uc))

		r.Route("/files", func(r chi.Router) {
			r.Get("/", listFilesHandler(uc))
			r.Get("/{name}", getFileHandler(uc))
		})
		r.Get("/preview/{name}", previewHandler(uc))

		r.Route("/history/{scope}", func(r chi.Router) {
			r.Get("/", getHistoryHandler(uc))
			r.Put("/", putHistoryHandler(uc))
			r.Post("/sessions", upsertSessionHandler(uc))
		})

		r.Route("/preferences/{scope}/{key}", func(r chi.Router) {
			r.Get("/", getPreferenceHandler(uc))
			r.Put("/", putPreferenceHandler(uc))
		})
	})

	if s.websocketCtrl != nil {
		r.Route("/ws", func(r chi.Router) {
			r.Get("/run", s.websocketCtrl.HandleRun)
			r.Get("/history/{scope}", s.websocketCtrl.HandleHistory)
		})
	}

	if s.staticFS != nil {
		if _, err := fs.Stat(s.staticFS, indexFile); err == nil {
			r.Get("/*", sandboxUI(s.staticFS))
		}
	}

	return s
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}
