package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"mixflow/config"
	"mixflow/logger"
)

const shutdownTimeout = 15 * time.Second

// Start serves h until ctx is cancelled, then stops accepting requests,
// waits for in-flight ones and drains the analytics recorder.
func Start(ctx context.Context, cfg *config.Config, h *APIHandler) error {
	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           NewRouter(h),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       time.Minute,
		WriteTimeout:      time.Minute,
		IdleTimeout:       2 * time.Minute,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("MixFlow server listening",
			logger.Int("port", cfg.Port),
			logger.String("environment", cfg.Env),
			logger.String("storage", cfg.StorageBackend))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("listen: %w", err)
		}
	case <-ctx.Done():
	}

	logger.Info("正在关闭服务器...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	var errs []error
	if err := srv.Shutdown(shutdownCtx); err != nil {
		errs = append(errs, fmt.Errorf("shutdown http: %w", err))
	}
	if h.recorder != nil {
		if err := h.recorder.Close(shutdownCtx); err != nil {
			errs = append(errs, fmt.Errorf("drain analytics: %w", err))
		}
	}
	logger.Info("服务器已关闭")
	return errors.Join(errs...)
}
