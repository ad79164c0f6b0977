package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/p0s/takopi/internal/config"
	"github.com/p0s/takopi/internal/handler"
	"github.com/p0s/takopi/internal/lockfile"
	"github.com/p0s/takopi/internal/logutil"
	"github.com/p0s/takopi/internal/router"
	"github.com/p0s/takopi/internal/runner"
	"github.com/p0s/takopi/internal/scheduler"
	"github.com/p0s/takopi/internal/statepaths"
	"github.com/p0s/takopi/internal/subprocess"
	"github.com/p0s/takopi/internal/takopierr"
	"github.com/p0s/takopi/internal/transport"
)

func newServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the bridge: poll the transport and dispatch messages to engines",
		RunE:  runServe,
	}
	config.BindFlags(cmd)
	return cmd
}

func runServe(cmd *cobra.Command, args []string) error {
	settings, err := config.FromCommand(cmd)
	if err != nil {
		return err
	}

	logger, err := logutil.LoggerFromViper()
	if err != nil {
		return fmt.Errorf("%w: %v", takopierr.ErrConfig, err)
	}

	if err := statepaths.EnsureSecureDir(statepaths.StateDir()); err != nil {
		return fmt.Errorf("%w: %v", takopierr.ErrConfig, err)
	}

	lockToken := settings.TelegramToken
	if lockToken == "" {
		lockToken = settings.TransportID
	}
	lock, err := lockfile.Acquire(statepaths.LocksDir(), lockToken)
	if err != nil {
		return err // AlreadyRunning / ErrConfig, already wrapped
	}
	defer lock.Release()

	mgr := subprocess.NewManager()
	defer mgr.Shutdown()
	reg := runner.NewRegistry()
	for _, id := range settings.EnabledEngines {
		var cli *runner.CLIRunner
		switch id {
		case "codex":
			cli = runner.NewCodex(mgr)
		case "claude":
			cli = runner.NewClaude(mgr)
		case "opencode":
			cli = runner.NewOpencode(mgr)
		case "pi":
			cli = runner.NewPi(mgr)
		case "mock":
			reg.Register(runner.NewMock("this is a mock response"))
			continue
		default:
			logger.Warn("unknown_engine_skipped", "engine_id", id)
			continue
		}
		if override, ok := settings.EngineOverride[id]; ok {
			cli.ApplyOverride(override.Command, override.Env)
		}
		reg.Register(cli)
	}
	if settings.DefaultEngine == "mock" {
		if _, ok := reg.Get("mock"); !ok {
			reg.Register(runner.NewMock("this is a mock response"))
		}
	}

	rt := router.New(reg, settings.DefaultEngine).
		WithCache(router.NewLastResumeCache(filepath.Join(statepaths.StateDir(), "router")))

	tp, err := buildTransport(settings, logger)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if tg, ok := tp.(*transport.Telegram); ok {
		if _, username, err := tg.GetMe(ctx); err != nil {
			return fmt.Errorf("%w: telegram unavailable: %v", takopierr.ErrConfig, err)
		} else {
			logger.Info("telegram_connected", "username", username)
		}
	}

	sched := scheduler.New(ctx)
	h := handler.New(reg, rt, sched, tp, logger)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		logger.Info("shutdown_signal_received")
		cancel()
	}()

	logger.Info("takopi_serve_started", "default_engine", settings.DefaultEngine, "transport", settings.TransportID)
	for msg := range tp.Poll(ctx) {
		h.HandleMessage(ctx, msg)
	}
	logger.Info("takopi_serve_stopped")
	return nil
}

func buildTransport(settings config.Settings, logger *slog.Logger) (transport.Transport, error) {
	reg := transport.NewRegistry()
	if settings.TelegramToken != "" {
		tg := transport.NewTelegram(settings.TelegramToken, logger)
		tg.AllowedChatIDs = settings.AllowedChatIDs
		reg.Register(tg)
	}
	tp, ok := reg.Get(settings.TransportID)
	if !ok {
		return nil, &takopierr.RunnerUnavailable{EngineID: settings.TransportID}
	}
	return tp, nil
}
