package main

import (
	"context"
	"errors"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/ethereum/go-ethereum/common"

	"github.com/clearport/dex/params"
	"github.com/clearport/dex/pkg/dex"
	"github.com/clearport/dex/pkg/dex/token"
	"github.com/clearport/dex/pkg/dex/transfer"
	"github.com/clearport/dex/pkg/storage"
	"github.com/clearport/dex/pkg/util"
)

func main() {
	cfg := params.LoadFromEnv("")

	logger, err := util.NewLoggerWithFile(cfg.LogFile)
	if err != nil {
		log.Fatalf("logger: %v", err)
	}
	defer logger.Sync()
	sugar := logger.Sugar()

	store, err := storage.Open(filepath.Join(cfg.DataDir, "dex.db"))
	if err != nil {
		sugar.Fatalw("store_open_failed", "err", err)
	}
	defer store.Close()

	// Devnet custody: an in-memory bank stands in for the token contracts.
	bank := transfer.NewBank()

	engine := dex.NewEngine(cfg.Settlement, bank,
		dex.WithStore(store),
		dex.WithLogger(sugar),
	)

	if err := engine.Restore(); err != nil {
		sugar.Fatalw("restore_failed", "err", err)
	}

	// Register the configured token set; on restart the restored registry
	// already holds them.
	for _, t := range cfg.Tokens {
		err := engine.RegisterToken(t.Symbol, common.HexToAddress(t.Address))
		if err != nil && !errors.Is(err, token.ErrDuplicateSymbol) {
			sugar.Fatalw("token_register_failed", "symbol", t.Symbol, "err", err)
		}
	}

	sugar.Infow("dexd_started",
		"settlement", cfg.Settlement,
		"tokens", len(engine.Tokens()),
		"data_dir", cfg.DataDir,
	)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	<-ctx.Done()

	sugar.Info("dexd_shutdown")
}
