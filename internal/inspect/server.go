package inspect

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/Neumenon/pserial/internal/config"
)

// Serve runs the service until ctx is cancelled, then shuts down within
// the configured timeout.
func Serve(ctx context.Context, cfg config.ServerConfig, handler http.Handler, logger *slog.Logger) error {
	srv := &http.Server{
		Addr:         cfg.Addr,
		Handler:      handler,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("listening", "addr", cfg.Addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("serve: %w", err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	logger.Info("shutting down", "timeout", cfg.ShutdownTimeout.String())
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("serve: %w", err)
	}
	return nil
}

// Watch installs codec hot reload: each new configuration rebuilds the
// codec and swaps it into h. A configuration whose codec cannot be built
// is logged and skipped.
func Watch(vc *config.ViperConfig, h *Handler, logger *slog.Logger) {
	vc.Subscribe(func(cfg *config.Config) {
		codec, err := cfg.NewCodec()
		if err != nil {
			logger.Error("codec reload failed", "error", err)
			return
		}
		h.SetCodec(codec)
		logger.Info("codec reloaded",
			"max_depth", cfg.Codec.MaxDepth,
			"header_mode", cfg.Codec.HeaderMode,
			"schema", cfg.Codec.SchemaFile,
		)
	})
}

