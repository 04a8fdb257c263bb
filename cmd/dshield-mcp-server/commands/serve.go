package commands

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/dshield-mcp/dshield-mcp-server/internal/config"
	"github.com/dshield-mcp/dshield-mcp-server/internal/obslog"
	"github.com/dshield-mcp/dshield-mcp-server/internal/server"
	"github.com/dshield-mcp/dshield-mcp-server/internal/transport"
)

var (
	tcpListenAddr string
	tcpAPIKey     string
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve MCP requests over stdio, or optionally TCP",
	RunE:  runServe,
}

func init() {
	serveCmd.Flags().StringVar(&tcpListenAddr, "tcp-listen", "", "also serve TCP on this address (host:port); stdio is always served")
	serveCmd.Flags().StringVar(&tcpAPIKey, "tcp-api-key", "", "API key TCP clients must present during handshake (required with --tcp-listen)")
}

func runServe(cmd *cobra.Command, args []string) error {
	if tcpListenAddr != "" && tcpAPIKey == "" {
		exitCode = ExitStartupError
		return fmt.Errorf("--tcp-api-key is required with --tcp-listen")
	}

	cfg, err := config.Load()
	if err != nil {
		exitCode = ExitStartupError
		return fmt.Errorf("load config: %w", err)
	}
	configureLogging(cfg.Logging.Level, cfg.Logging.Format)

	application, err := buildApp(cfg)
	if err != nil {
		exitCode = ExitStartupError
		return fmt.Errorf("build server: %w", err)
	}
	defer application.Close()

	ctx, cancel := context.WithCancel(context.Background())
	var wg sync.WaitGroup
	errCh := make(chan error, 2)

	wg.Add(1)
	go func() {
		defer wg.Done()
		errCh <- application.Server.ServeStdio(ctx, os.Stdin, os.Stdout)
	}()
	if tcpListenAddr != "" {
		validateKey := transport.KeyValidator(func(key string) bool { return key == tcpAPIKey })
		wg.Add(1)
		go func() {
			defer wg.Done()
			errCh <- application.Server.ServeTCP(ctx, tcpListenAddr, validateKey)
		}()
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGTERM, syscall.SIGINT)

	select {
	case <-sigCh:
		obslog.Component("main").Info().Msg("shutdown signal received, draining")
		cancel()
		application.Server.Shutdown(wg.Wait, server.DefaultDrainTimeout)
		return nil
	case err = <-errCh:
		cancel()
		if err != nil {
			exitCode = ExitRuntimeError
			return fmt.Errorf("server loop exited: %w", err)
		}
		return nil
	}
}

func configureLogging(level, format string) {
	lvl, err := zerolog.ParseLevel(level)
	if err != nil {
		lvl = zerolog.InfoLevel
	}
	if format == "console" {
		obslog.SetLogger(zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).Level(lvl).With().Timestamp().Logger())
		return
	}
	obslog.SetOutput(os.Stderr, lvl)
}
