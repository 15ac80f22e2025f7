package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/go-faster/errors"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/danhigham/telesync/internal/account"
	"github.com/danhigham/telesync/internal/backend"
	"github.com/danhigham/telesync/internal/client"
	"github.com/danhigham/telesync/internal/config"
	"github.com/danhigham/telesync/internal/loop"
	"github.com/danhigham/telesync/internal/state"
	"github.com/danhigham/telesync/internal/telegram"
	"github.com/danhigham/telesync/internal/ui"
)

var version = "dev"

const shutdownTimeout = 10 * time.Second

func main() {
	cfgDir := config.Dir()
	cfgPath := filepath.Join(cfgDir, "config.yaml")

	cfg, err := config.Load(cfgPath)
	if err == nil {
		err = cfg.Validate()
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config from %s: %v\n", cfgPath, err)
		fmt.Fprintf(os.Stderr, "\nCreate the config file with:\n")
		fmt.Fprintf(os.Stderr, "  mkdir -p %s\n", cfgDir)
		fmt.Fprintf(os.Stderr, "  cat > %s << 'EOF'\n", cfgPath)
		fmt.Fprintf(os.Stderr, "telegram:\n  api_id: YOUR_API_ID\n  api_hash: \"YOUR_API_HASH\"\nEOF\n")
		fmt.Fprintf(os.Stderr, "\nGet API credentials from https://my.telegram.org\n")
		os.Exit(1)
	}

	logger, err := newLogger(cfgDir, cfg.LogLevel)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to create logger: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = logger.Sync() }()

	if err := run(cfg, logger); err != nil {
		logger.Error("Exited with error", zap.Error(err))
		fmt.Fprintf(os.Stderr, "telesync: %v\n", err)
		os.Exit(1)
	}
}

// newLogger writes development-format logs to a file next to the config,
// since the terminal belongs to the UI.
func newLogger(dir, level string) (*zap.Logger, error) {
	if err := os.MkdirAll(dir, 0700); err != nil {
		return nil, errors.Wrap(err, "create config dir")
	}
	lvl, err := zap.ParseAtomicLevel(level)
	if err != nil {
		return nil, errors.Wrap(err, "parse log level")
	}
	logPath := filepath.Join(dir, "telesync.log")
	logCfg := zap.NewDevelopmentConfig()
	logCfg.Level = lvl
	logCfg.OutputPaths = []string{logPath}
	logCfg.ErrorOutputPaths = []string{logPath}
	return logCfg.Build()
}

func run(cfg *config.Config, logger *zap.Logger) error {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	l := loop.New()
	manager := client.NewManager(client.Config{
		Ctx:     ctx,
		Loop:    l,
		Store:   account.NewStore(cfg.DataDir, logger),
		Factory: telegram.Factory(logger),
		Params: backend.InitParameters{
			APIID:              cfg.Telegram.APIID,
			APIHash:            cfg.Telegram.APIHash,
			SystemLanguageCode: "en",
			DeviceModel:        "telesync",
			ApplicationVersion: version,
		},
		BatchSize: cfg.ChatBatchSize,
		Location:  time.Local,
		Logger:    logger,
	})

	snapshots := state.New(nil)
	var binder *state.Binder
	l.Post(func() {
		if err := manager.Restore(); err != nil {
			logger.Error("Failed to restore accounts", zap.Error(err))
		}
		if len(manager.Clients()) == 0 {
			if _, err := manager.AddNewClient(cfg.UseTestDC); err != nil {
				logger.Error("Failed to add account", zap.Error(err))
			}
		}
		binder = state.NewBinder(state.BinderConfig{
			Loop:     l,
			Manager:  manager,
			Store:    snapshots,
			PageSize: cfg.HistoryPageSize,
			Logger:   logger,
		})
	})

	// Posted after the bootstrap task, so binder is set when these run.
	dispatch := func(fn func(*state.Binder)) {
		l.Post(func() { fn(binder) })
	}
	app := ui.NewApp(snapshots, dispatch, cfg.UseTestDC)
	snapshots.SetDrawFunc(app.DrawFunc())

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if err := l.Run(gctx); err != nil && !errors.Is(err, context.Canceled) {
			return errors.Wrap(err, "run loop")
		}
		return nil
	})
	g.Go(func() error {
		defer cancel()
		return errors.Wrap(app.Run(), "run ui")
	})
	g.Go(func() error {
		<-gctx.Done()
		app.Quit()
		return nil
	})
	runErr := g.Wait()

	l.Close()
	closeCtx, closeCancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer closeCancel()
	if err := manager.Close(closeCtx); err != nil {
		logger.Warn("Failed to close accounts", zap.Error(err))
	}
	return runErr
}
