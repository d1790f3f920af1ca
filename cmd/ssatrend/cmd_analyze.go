package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"

	"github.com/4ea-ind/ssatrend/internal/config"
	"github.com/4ea-ind/ssatrend/internal/server"
	"github.com/4ea-ind/ssatrend/internal/service"
	"go.uber.org/zap"
)

// runAnalyze answers one request read from a file or stdin and writes the
// encoded response, exactly as the frame server would send it.
func runAnalyze(args []string, stdin io.Reader, stdout io.Writer) error {
	fs := flag.NewFlagSet("analyze", flag.ContinueOnError)
	configPath := fs.String("config", "", "path to configuration file")
	file := fs.String("file", "", "request JSON file (default stdin)")
	verbose := fs.Bool("v", false, "log the request to stderr")
	if err := fs.Parse(args); err != nil {
		return err
	}

	v, err := server.LoadConfig(*configPath)
	if err != nil {
		return fmt.Errorf("load configuration: %w", err)
	}
	cfg, err := config.Load(v)
	if err != nil {
		return err
	}

	logger := zap.NewNop()
	if *verbose {
		cfg.Logging.Format = "console"
		if logger, err = config.NewLogger(cfg.Logging); err != nil {
			return err
		}
		defer func() { _ = logger.Sync() }()
	}

	var payload []byte
	if *file != "" {
		payload, err = os.ReadFile(*file)
	} else {
		payload, err = io.ReadAll(stdin)
	}
	if err != nil {
		return fmt.Errorf("read request: %w", err)
	}

	h, err := newHandler(cfg, logger.Named("service"))
	if err != nil {
		return err
	}
	resp := h.Handle(context.Background(), service.TransportCLI, payload)
	if _, err := fmt.Fprintf(stdout, "%s\n", resp); err != nil {
		return fmt.Errorf("write response: %w", err)
	}
	return nil
}
