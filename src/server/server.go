package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	logger "github.com/sirupsen/logrus"

	"momentumengine/src/auth"
	"momentumengine/src/handler"
)

// NewRouter serves the read-only status API. Only /healthcheck is public.
func NewRouter(book handler.PortfolioReader, tokenHash string) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)

	// Public routes
	r.Get("/healthcheck", func(w http.ResponseWriter, r *http.Request) {
		if _, err := w.Write([]byte("OK")); err != nil {
			logger.WithError(err).Error("/healthcheck write error")
		}
	})

	r.Group(func(r chi.Router) {
		r.Use(auth.RequireToken(tokenHash))
		r.Get("/portfolio", handler.PortfolioHandler(book))
		r.Get("/positions", handler.PositionsHandler(book, nil))
		r.Get("/pending", handler.PendingHandler(book))
		r.Get("/trades", handler.TradesHandler(book))
		r.Get("/snapshots", handler.SnapshotsHandler(book))
	})
	return r
}

// StartServer listens until ctx is cancelled, then shuts down gracefully.
func StartServer(ctx context.Context, port string, h http.Handler) error {
	addr := ":" + port
	srv := &http.Server{
		Addr:              addr,
		Handler:           h,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Infof("Listening on %s", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	logger.Info("Shutting down gracefully...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.WithError(err).Error("Shutdown error")
		return err
	}
	return nil
}
