// Command vaani-gateway serves the voice gateway: a websocket API that runs
// the capture, transcribe, respond and synthesize loop for code-mixed South
// Indian speech, with optional Redis persistence for finished conversations.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/vaani-ai/vaani/pkg/core/audio"
	"github.com/vaani-ai/vaani/pkg/gateway/config"
	gatewayserver "github.com/vaani-ai/vaani/pkg/gateway/server"
	"github.com/vaani-ai/vaani/pkg/store"
)

type serveDeps struct {
	loadConfig   func() (config.Config, error)
	newStore     func(context.Context, store.Config) (*store.Store, error)
	newGateway   func(config.Config, *slog.Logger, *store.Store) *gatewayserver.Server
	signalNotify func(chan<- os.Signal, ...os.Signal)
	signalStop   func(chan<- os.Signal)
}

func defaultServeDeps() serveDeps {
	return serveDeps{
		loadConfig: config.LoadFromEnv,
		newStore:   store.New,
		newGateway: gatewayserver.New,
		signalNotify: func(c chan<- os.Signal, sig ...os.Signal) {
			signal.Notify(c, sig...)
		},
		signalStop: signal.Stop,
	}
}

func buildHTTPServer(cfg config.Config, handler http.Handler) *http.Server {
	return &http.Server{
		Addr:              cfg.Addr,
		Handler:           handler,
		ReadHeaderTimeout: cfg.ReadHeaderTimeout,
		ReadTimeout:       cfg.ReadTimeout,
	}
}

func runServe(ctx context.Context, logger *slog.Logger, deps serveDeps) error {
	if deps.loadConfig == nil || deps.newStore == nil || deps.newGateway == nil {
		return errors.New("missing constructor dependency")
	}
	if deps.signalNotify == nil || deps.signalStop == nil {
		return errors.New("missing signal dependency")
	}
	if logger == nil {
		logger = slog.Default()
	}

	cfg, err := deps.loadConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	var st *store.Store
	if cfg.RedisAddr != "" {
		st, err = deps.newStore(ctx, store.Config{
			Addr:       cfg.RedisAddr,
			Password:   cfg.RedisPassword,
			DB:         cfg.RedisDB,
			SessionTTL: cfg.SessionTTL,
			AudioTTL:   cfg.AudioTTL,
			Audio:      audio.DefaultConfig(),
		})
		if err != nil {
			return fmt.Errorf("connect session store: %w", err)
		}
		defer st.Close()
		logger.Info("session store connected", "addr", cfg.RedisAddr)
	}

	gw := deps.newGateway(cfg, logger, st)
	httpSrv := buildHTTPServer(cfg, gw.Handler())

	logger.Info("starting gateway",
		"addr", cfg.Addr,
		"auth_mode", cfg.AuthMode,
		"persistence", st != nil,
	)

	listenErrCh := make(chan error, 1)
	go func() {
		err := httpSrv.ListenAndServe()
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			listenErrCh <- err
			return
		}
		listenErrCh <- nil
	}()

	sigCh := make(chan os.Signal, 1)
	deps.signalNotify(sigCh, os.Interrupt, syscall.SIGTERM)
	defer deps.signalStop(sigCh)

	select {
	case err := <-listenErrCh:
		if err != nil {
			return fmt.Errorf("serve: %w", err)
		}
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case sig := <-sigCh:
		logger.Info("shutdown signal received", "signal", sig.String())
	}

	// Connected callers get a warning frame and a grace period before their
	// sessions are cancelled.
	tracker := gw.Sessions()
	tracker.WarnAll("draining", "the server is shutting down")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.ShutdownGracePeriod)
	defer shutdownCancel()
	if err := httpSrv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown http server: %w", err)
	}

	waitCtx, waitCancel := context.WithTimeout(context.Background(), cfg.ShutdownGracePeriod)
	defer waitCancel()
	if !tracker.Wait(waitCtx) {
		logger.Warn("live sessions outlived the grace period; cancelling", "count", tracker.Count())
		tracker.CancelAll()
	}

	if err := <-listenErrCh; err != nil {
		return fmt.Errorf("serve: %w", err)
	}

	logger.Info("gateway stopped")
	return nil
}

func runMain(ctx context.Context, stderr io.Writer, deps serveDeps) int {
	if stderr == nil {
		stderr = os.Stderr
	}
	logger := slog.New(slog.NewTextHandler(stderr, nil))

	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		fmt.Fprintf(stderr, "vaani-gateway: %v\n", err)
		return 1
	}

	if err := runServe(ctx, logger, deps); err != nil {
		fmt.Fprintf(stderr, "vaani-gateway: %v\n", err)
		return 1
	}
	return 0
}

func main() {
	os.Exit(runMain(context.Background(), os.Stderr, defaultServeDeps()))
}
