// Package server exposes the generation API over HTTP: auth, the three
// generation endpoints, and the request history endpoints.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/example/genimage/internal/config"
	"github.com/example/genimage/internal/quota"
	"github.com/example/genimage/internal/service"
)

// TokenVerifier validates a bearer token and returns the authenticated user
// id.
type TokenVerifier interface {
	VerifyToken(token string) (int64, error)
}

type Server struct {
	cfg      config.Config
	log      *slog.Logger
	auth     *service.AuthService
	images   *service.GenerationService
	requests *service.RequestService
	router   *chi.Mux
}

func NewServer(cfg config.Config, log *slog.Logger, auth *service.AuthService, images *service.GenerationService, requests *service.RequestService) *Server {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)

	s := &Server{
		cfg:      cfg,
		log:      log,
		auth:     auth,
		images:   images,
		requests: requests,
		router:   r,
	}

	r.Get("/health", s.handleHealth)
	r.Route("/api", func(api chi.Router) {
		api.Post("/auth/register", s.handleRegister)
		api.Post("/auth/login", s.handleLogin)

		api.Group(func(protected chi.Router) {
			protected.Use(s.authMiddleware(auth))
			protected.Post("/generate/text", s.handleTextToImage)
			protected.Post("/generate/image", s.handleImageToImage)
			protected.Post("/generate/textAndImage", s.handleTextAndImageToImage)
			protected.Route("/requests", func(r chi.Router) {
				r.Get("/", s.handleListRequests)
				r.Get("/stats", s.handleRequestStats)
				r.Get("/{id}", s.handleGetRequest)
			})
		})
	})

	return s
}

// Handler exposes the router, mainly for tests.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:         s.cfg.ListenAddr,
		Handler:      s.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: s.cfg.RequestTimeout + 15*time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			s.log.Error("server shutdown error", "err", err)
		}
	}()

	s.log.Info("api server listening", "addr", s.cfg.ListenAddr)
	if err := srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("api listen: %w", err)
	}
	return nil
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

type errorResponse struct {
	Success   bool   `json:"success"`
	Message   string `json:"message"`
	RequestID int64  `json:"requestId,omitempty"`
}

// writeSubmitError maps the submit error taxonomy onto HTTP statuses:
// quota rejections to 429, validation to 400, tracked generation failures
// to 500 carrying the request id, anything else to a generic 500.
func (s *Server) writeSubmitError(w http.ResponseWriter, err error) {
	var limitErr *quota.LimitError
	if errors.As(err, &limitErr) {
		s.writeJSON(w, http.StatusTooManyRequests, errorResponse{Message: limitErr.Error()})
		return
	}

	switch {
	case errors.Is(err, service.ErrEmptyPrompt),
		errors.Is(err, service.ErrMissingImage),
		errors.Is(err, service.ErrUnsupportedImageType),
		errors.Is(err, service.ErrUnsupportedMode):
		s.writeJSON(w, http.StatusBadRequest, errorResponse{Message: err.Error()})
		return
	}

	var genErr *service.GenerationError
	if errors.As(err, &genErr) {
		s.writeJSON(w, http.StatusInternalServerError, errorResponse{
			Message:   "image generation failed: " + genErr.Reason,
			RequestID: genErr.RequestID,
		})
		return
	}

	s.log.Error("submit failed", "err", err)
	s.writeJSON(w, http.StatusInternalServerError, errorResponse{Message: "internal error"})
}
