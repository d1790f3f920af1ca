package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/4ea-ind/ssatrend/internal/config"
	"github.com/4ea-ind/ssatrend/internal/journal"
	natsq "github.com/4ea-ind/ssatrend/internal/queue/nats"
	"github.com/4ea-ind/ssatrend/internal/server"
	"github.com/4ea-ind/ssatrend/internal/service"
	"github.com/4ea-ind/ssatrend/internal/store"
	"github.com/4ea-ind/ssatrend/internal/version"
	"github.com/4ea-ind/ssatrend/internal/ws"
	"github.com/4ea-ind/ssatrend/pkg/linalg"
	"github.com/4ea-ind/ssatrend/pkg/ssa"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

func main() {
	// Subcommand dispatch (before flag.Parse).
	if len(os.Args) > 1 {
		switch os.Args[1] {
		case "version":
			fmt.Println(version.Info())
			return
		case "analyze":
			if err := runAnalyze(os.Args[2:], os.Stdin, os.Stdout); err != nil {
				fmt.Fprintf(os.Stderr, "analyze: %v\n", err)
				os.Exit(1)
			}
			return
		}
	}

	configPath := flag.String("config", "", "path to configuration file")
	showVersion := flag.Bool("version", false, "print version information and exit")
	flag.Usage = func() {
		fmt.Fprintf(flag.CommandLine.Output(), "usage: ssatrend [-config file] [port]\n       ssatrend analyze [-config file] [-file request.json]\n       ssatrend version\n")
		flag.PrintDefaults()
	}
	flag.Parse()

	if *showVersion {
		fmt.Println(version.Info())
		os.Exit(0)
	}

	viperCfg, err := server.LoadConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load configuration: %v\n", err)
		os.Exit(1)
	}
	if err := applyPortArg(viperCfg, flag.Args()); err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		flag.Usage()
		os.Exit(2)
	}
	cfg, err := config.Load(viperCfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "invalid configuration: %v\n", err)
		os.Exit(1)
	}

	logger, err := config.NewLogger(cfg.Logging)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = logger.Sync() }()

	if err := run(cfg, logger); err != nil {
		logger.Error("ssatrend exited with error", zap.Error(err))
		_ = logger.Sync()
		os.Exit(1)
	}
}

// applyPortArg honors the legacy "ssatrend <port>" form.
func applyPortArg(v *viper.Viper, args []string) error {
	switch len(args) {
	case 0:
		return nil
	case 1:
		port, err := strconv.Atoi(args[0])
		if err != nil || port < 0 || port > 65535 {
			return fmt.Errorf("invalid port %q", args[0])
		}
		v.Set("server.port", port)
		return nil
	default:
		return errors.New("too many arguments")
	}
}

func newHandler(cfg *config.Config, logger *zap.Logger, opts ...service.Option) (*service.Handler, error) {
	backend, err := linalg.Select(cfg.Compute.Backend, linalg.NewCPU())
	if err != nil {
		return nil, fmt.Errorf("select compute backend: %w", err)
	}
	return service.New(ssa.NewAnalyzer(backend), cfg.Defaults, logger, opts...), nil
}

func run(cfg *config.Config, logger *zap.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	logger.Info("ssatrend starting", zap.String("version", version.Short()))

	hub := ws.NewHub(logger.Named("ws"))
	recorders := service.Recorders{hub}

	var (
		jl    server.JournalLister
		ready server.ReadinessChecker
		jrnl  *journal.Journal
	)
	if cfg.Journal.Enabled {
		db, err := store.Open(ctx, cfg.Journal.Path)
		if err != nil {
			return err
		}
		defer db.Close()
		if err := db.CheckVersion(ctx, version.Short()); err != nil {
			return err
		}
		jrnl, err = journal.New(ctx, db, cfg.Journal, logger.Named("journal"))
		if err != nil {
			return err
		}
		jrnl.Start(ctx)
		defer func() {
			stop()
			jrnl.Wait()
		}()

		// Assigned only here so a disabled journal stays an untyped nil.
		jl = jrnl
		recorders = append(recorders, jrnl)
		ready = func(ctx context.Context) error { return db.SQL().PingContext(ctx) }
		logger.Info("journal enabled", zap.String("path", cfg.Journal.Path))
	}

	h, err := newHandler(cfg, logger.Named("service"), service.WithRecorder(recorders))
	if err != nil {
		return err
	}

	var httpSrv *server.Server
	if cfg.HTTP.Enabled {
		wsHandler := ws.NewHandler(h, hub, logger.Named("ws"))
		httpSrv = server.New(cfg.HTTP, h, logger.Named("http"), ready, jl, wsHandler)
		go func() {
			if err := httpSrv.Start(); err != nil {
				logger.Error("http server error", zap.Error(err))
				stop()
			}
		}()
	}

	if cfg.NATS.Enabled {
		responder := natsq.NewResponder(cfg.NATS, h, logger.Named("nats"))
		if err := responder.Start(ctx); err != nil {
			return err
		}
		defer responder.Stop()
	}

	frames := server.NewFrameServer(cfg.Server, h, logger.Named("frame"))
	serveErr := frames.ListenAndServe(ctx)
	stop()

	if httpSrv != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := httpSrv.Shutdown(shutdownCtx); err != nil {
			logger.Error("http shutdown error", zap.Error(err))
		}
	}

	logger.Info("ssatrend stopped")
	return serveErr
}
