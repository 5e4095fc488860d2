// Wallet daemon: serves the wallet HTTP API over a sealed local vault.
//
// Usage:
//
//	walletd    Run the API (configuration from environment variables)
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

	"github.com/AlexZinkM/wallet-core/internal/api"
	"github.com/AlexZinkM/wallet-core/internal/balance"
	"github.com/AlexZinkM/wallet-core/internal/client"
	"github.com/AlexZinkM/wallet-core/internal/config"
	"github.com/AlexZinkM/wallet-core/internal/crypto"
	"github.com/AlexZinkM/wallet-core/internal/fee"
	"github.com/AlexZinkM/wallet-core/internal/handler"
	"github.com/AlexZinkM/wallet-core/internal/log"
	"github.com/AlexZinkM/wallet-core/internal/model"
	"github.com/AlexZinkM/wallet-core/internal/pipeline"
	"github.com/AlexZinkM/wallet-core/internal/registry"
	"github.com/AlexZinkM/wallet-core/internal/stream"
	"github.com/AlexZinkM/wallet-core/internal/vault"
	"github.com/AlexZinkM/wallet-core/solana"
)

const shutdownTimeout = 10 * time.Second

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	if err := log.Init(cfg.LogLevel, cfg.LogJSON, cfg.LogFile); err != nil {
		return fmt.Errorf("failed to init logging: %w", err)
	}
	logger := log.WithComponent("walletd")

	var sealer *crypto.Sealer
	if vault.NeedsPassword(cfg.VaultBackend) {
		password, err := config.PromptForPassword()
		if err != nil {
			return err
		}
		sealer, err = crypto.NewSealer(password, crypto.DefaultParams)
		clear(password)
		if err != nil {
			return err
		}
		defer sealer.Wipe()
	}

	store, closer, err := vault.Open(cfg.VaultBackend, cfg.VaultPath, cfg.Network, sealer)
	if err != nil {
		return fmt.Errorf("failed to open vault: %w", err)
	}
	defer closer.Close()

	resolver, err := client.NewResolver(cfg.ResolverOptions())
	if err != nil {
		return err
	}
	platformFee, err := cfg.PlatformFee()
	if err != nil {
		return err
	}

	reader := balance.NewReader(resolver, balance.WithConcurrency(cfg.HistoryConcurrency))
	estimator := fee.NewEstimator(resolver, fee.Config{CacheTTL: cfg.FeeCacheTTL})
	pipe := pipeline.New(resolver, reader, estimator, pipeline.Config{
		ConfirmTimeout: cfg.ConfirmTimeout,
		FeeCollection:  platformFee,
	})

	var watcher *stream.Watcher
	if cfg.WSURL != "" {
		watcher, err = stream.NewWatcher(stream.Config{URL: cfg.WSURL})
		if err != nil {
			return err
		}
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	reg := registry.New(store, reader, registry.WithRefreshConcurrency(cfg.RefreshConcurrency))
	if err := reg.Load(ctx); err != nil {
		if !errors.Is(err, model.ErrStorageUnavailable) {
			return fmt.Errorf("failed to load wallets: %w", err)
		}
		// Retried lazily on the first mutation.
		logger.Warn().Err(err).Msg("vault unavailable, starting with no wallets")
	}

	svc := solana.NewService(solana.Deps{
		Registry:    reg,
		Reader:      reader,
		Fees:        estimator,
		Pipeline:    pipe,
		Watcher:     watcher,
		PayCooldown: cfg.PayCooldown,
	})

	go func() {
		if err := svc.WatchBalances(ctx); err != nil && !errors.Is(err, context.Canceled) {
			logger.Warn().Err(err).Msg("balance stream stopped")
		}
	}()

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           api.NewRouter(handler.NewSolanaHandler(svc)),
		ReadHeaderTimeout: 10 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		logger.Info().
			Str("addr", srv.Addr).
			Strs("rpc", resolver.Endpoints()).
			Str("vault", cfg.VaultBackend).
			Int("wallets", len(reg.Snapshot().Wallets)).
			Msg("wallet API listening")
		errCh <- srv.ListenAndServe()
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
	case sig := <-sigCh:
		logger.Info().Str("signal", sig.String()).Msg("shutting down")
	}

	cancel()
	shutdownCtx, stop := context.WithTimeout(context.Background(), shutdownTimeout)
	defer stop()
	return srv.Shutdown(shutdownCtx)
}
