package main

import (
	"context"
	"errors"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/creastat/chatstore/internal/logging"
	"github.com/creastat/chatstore/internal/mockagent"
	"go.uber.org/zap"
)

func main() {
	addr := flag.String("addr", "127.0.0.1:8000", "Listen address")
	secret := flag.String("secret", os.Getenv("LOCAL_JWT_SECRET"), "HS256 secret shared with the local identity provider")
	guestToken := flag.String("guest-token", "mock_token", "Bearer token accepted for anonymous chat")
	debug := flag.Bool("debug", false, "Verbose logging")
	flag.Parse()

	logCfg := logging.DefaultConfig()
	if *debug {
		logCfg = logging.DevelopmentConfig()
	}
	logger, err := logging.New(logCfg)
	if err != nil {
		logger = logging.NewDefault()
	}
	defer logger.Sync()

	if *secret == "" {
		logger.Fatal("a signing secret is required (-secret or LOCAL_JWT_SECRET)")
	}

	srv := mockagent.New(mockagent.Config{
		Secret:     *secret,
		GuestToken: *guestToken,
		Logger:     logger.Logger,
	})
	httpSrv := &http.Server{
		Addr:              *addr,
		Handler:           srv.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	errChan := make(chan error, 1)
	go func() {
		logger.Info("mock agent listening", zap.String("addr", *addr))
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errChan <- err
		}
	}()

	select {
	case <-sigChan:
		logger.Info("shutting down")
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := httpSrv.Shutdown(ctx); err != nil {
			logger.Error("shutdown failed", zap.Error(err))
		}
	case err := <-errChan:
		logger.Fatal("server error", zap.Error(err))
	}
}
