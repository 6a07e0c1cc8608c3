package main

import (
	"context"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/young-rocks/aptos-core/api"
	"github.com/young-rocks/aptos-core/core"
	"github.com/young-rocks/aptos-core/core/types"
	"github.com/young-rocks/aptos-core/log"
	"github.com/young-rocks/aptos-core/nodeconfig"
	"github.com/young-rocks/aptos-core/params"
	"github.com/young-rocks/aptos-core/storage"
)

func serveCommand() *cli.Command {
	return &cli.Command{
		Name:  "serve",
		Usage: "start the storage backend and the node-facing API surface (GraphQL view calls, websocket epoch feed)",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "config", Usage: "path to the node TOML config"},
		},
		Action: runServe,
	}
}

func runServe(ctx *cli.Context) error {
	cfg, err := loadConfigFlag(ctx)
	if err != nil {
		return err
	}
	nodeconfig.SetActive(cfg)
	cfg = nodeconfig.Active()

	store, err := storage.Open(storage.Options{
		Dir:    cfg.DataDir,
		WALDir: cfg.DataDir + "/wal",
	})
	if err != nil {
		return fmt.Errorf("opening storage: %w", err)
	}
	defer store.Close()

	if RuntimeFactory == nil {
		return fmt.Errorf("no Runtime wired into this binary (see cmd/executorctl/runtime.go)")
	}
	runtime, err := RuntimeFactory()
	if err != nil {
		return fmt.Errorf("constructing runtime: %w", err)
	}
	pipeline := core.NewTransactionPipeline(
		runtime,
		params.NewFeatures(),
		7,
		params.StorageGasParameters{},
		func(cs *types.ChangeSet, txnSize, gasUnitPrice uint64) (uint64, uint64, error) { return 0, 0, nil },
		nil,
		func(loc types.AbortLocation, code uint64) *types.AbortInfo { return nil },
	)
	resolver := &api.Resolver{Executor: pipeline, State: store}

	srv, err := api.NewServer(cfg.ListenAddr, resolver, []byte(cfg.JWTSecret))
	if err != nil {
		return fmt.Errorf("building api server: %w", err)
	}

	sigCtx, stop := signal.NotifyContext(ctx.Context, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		log.Info("executorctl serve listening", "addr", cfg.ListenAddr, "data_dir", cfg.DataDir)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case <-sigCtx.Done():
		log.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	case err := <-errCh:
		return err
	}
}
