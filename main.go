package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"SupplyLedger/internal/config"
	"SupplyLedger/internal/confirm"
	"SupplyLedger/internal/handler"
	"SupplyLedger/internal/keystore"
	"SupplyLedger/internal/ledger"
	"SupplyLedger/internal/recorder"
	"SupplyLedger/internal/services"
	"SupplyLedger/utils"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintln(os.Stderr, "config:", err)
		os.Exit(1)
	}
	logger := utils.NewLogger(cfg.App.LogLevel, !cfg.App.LogJSON)
	if err := run(cfg, logger); err != nil {
		logger.Fatal().Err(err).Msg("exit")
	}
}

func openRecorder(cfg *config.Config, logger zerolog.Logger) (recorder.Recorder, handler.Check, error) {
	if cfg.Storage.Driver == "file" {
		r, err := recorder.NewFileRecorder(cfg.Storage.DataDir, logger)
		if err != nil {
			return nil, nil, err
		}
		return r, func(context.Context) error {
			_, err := os.Stat(r.Dir())
			return err
		}, nil
	}
	r, err := recorder.OpenGorm(cfg.Storage.Driver, cfg.Storage.DSN, logger)
	if err != nil {
		return nil, nil, err
	}
	return r, r.Ping, nil
}

func run(cfg *config.Config, logger zerolog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	keys, err := keystore.Open(cfg.Storage.WalletFile, logger)
	if err != nil {
		return err
	}
	records, dbCheck, err := openRecorder(cfg, logger)
	if err != nil {
		return err
	}
	defer records.Close()

	target, err := confirm.ParseCommitment(cfg.Confirm.Commitment)
	if err != nil {
		return err
	}
	client := ledger.NewRPCClient(cfg.Solana.RPCURL, logger)
	tracker := confirm.New(client, confirm.Policy{
		Interval: cfg.Confirm.PollInterval,
		MaxPolls: cfg.Confirm.MaxPolls,
		Target:   target,
	}, ledger.SendOptions{SkipPreflight: cfg.Solana.SkipPreflight}, logger)
	svc := services.NewWalletService(keys, client, tracker, records, logger, services.Options{})

	if cfg.Solana.WSURL != "" {
		watcher, err := services.ConnectBalanceWatcher(ctx, cfg.Solana.WSURL, svc.Cache(), logger)
		if err != nil {
			logger.Warn().Err(err).Msg("balance watcher disabled")
		} else {
			if err := svc.WatchBalances(ctx, watcher); err != nil {
				logger.Warn().Err(err).Msg("balance watcher disabled")
			}
			defer func() {
				stop()
				watcher.Close()
			}()
		}
	}

	gin.SetMode(cfg.App.Mode)
	r := gin.New()
	r.Use(gin.Recovery())
	if cfg.App.Mode == gin.DebugMode {
		r.Use(gin.Logger())
	}
	health := handler.NewHealth(0, map[string]handler.Check{
		"storage": dbCheck,
		"ledger": func(ctx context.Context) error {
			_, err := client.GetLatestBlockhash(ctx)
			return err
		},
	})
	handler.RegisterRoutes(r, handler.New(svc), health)

	// a confirmed transfer may take the whole poll budget
	wait := cfg.Confirm.PollInterval * time.Duration(cfg.Confirm.MaxPolls+2)
	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.App.Port),
		Handler:      r,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: wait + 30*time.Second,
		IdleTimeout:  60 * time.Second,
	}

	errc := make(chan error, 1)
	go func() {
		logger.Info().Str("addr", srv.Addr).Str("rpc", cfg.Solana.RPCURL).Msg("server listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errc <- err
		}
		close(errc)
	}()

	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
	}
	logger.Info().Msg("shutting down")
	sc, cancel := context.WithTimeout(context.Background(), wait+10*time.Second)
	defer cancel()
	if err := srv.Shutdown(sc); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	logger.Info().Msg("server stopped")
	return nil
}
