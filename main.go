package main

import (
	"bufio"
	"context"
	"flag"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"chess-worker/config"
	"chess-worker/engine"
	"chess-worker/server"
	"chess-worker/worker"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"
)

const maxLineBytes = 1 << 20

func main() {
	configPath := flag.String("config", "", "path to a JSON config file")
	listen := flag.String("listen", "", "serve the worker protocol over websockets on this address")
	stdio := flag.Bool("stdio", true, "read requests from stdin and write responses to stdout")
	logLevel := flag.String("log-level", "", "log level (debug, info, warn, error)")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatal().Err(err).Msg("config")
	}
	flag.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "listen":
			cfg.Server.Listen = *listen
		case "stdio":
			cfg.Server.Stdio = *stdio
		case "log-level":
			cfg.Log.Level = *logLevel
		}
	})
	if err := cfg.Validate(); err != nil {
		log.Fatal().Err(err).Msg("config")
	}
	setupLogging(cfg.Log)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	opts := cfg.EngineOptions()
	opts.Logger = log.Logger

	g, ctx := errgroup.WithContext(ctx)
	if cfg.Server.Stdio {
		g.Go(func() error {
			err := protocolLoop(ctx, os.Stdin, worker.NewJSONEmitter(os.Stdout), opts)
			// Closing stdin ends the process even when the server is running.
			stop()
			return err
		})
	}
	if cfg.Server.Listen != "" {
		srv := server.New(opts, cfg.HeartbeatInterval(), log.Logger)
		g.Go(func() error {
			return srv.ListenAndServe(ctx, cfg.Server.Listen, cfg.ShutdownTimeout())
		})
	}
	if err := g.Wait(); err != nil {
		log.Fatal().Err(err).Msg("worker stopped")
	}
}

func setupLogging(cfg config.LogConfig) {
	level, err := zerolog.ParseLevel(cfg.Level)
	if err != nil || level == zerolog.NoLevel {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)
	// stdout carries the protocol, so logs always go to stderr.
	if cfg.Pretty {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	} else {
		log.Logger = zerolog.New(os.Stderr).With().Timestamp().Logger()
	}
}

// protocolLoop reads one JSON message per line until EOF or ctx is done.
func protocolLoop(ctx context.Context, in io.Reader, out worker.Emitter, opts engine.Options) error {
	logger := opts.Logger.With().Str("worker_id", "stdio").Logger()
	router := worker.NewRouter(engine.NewController(opts), logger)
	wk := worker.NewWorker(router, out, logger)

	lines := make(chan string)
	scanErr := make(chan error, 1)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(in)
		scanner.Buffer(make([]byte, 0, 64*1024), maxLineBytes)
		for scanner.Scan() {
			select {
			case lines <- scanner.Text():
			case <-ctx.Done():
				return
			}
		}
		scanErr <- scanner.Err()
	}()

	defer wk.Wait()
	for {
		select {
		case <-ctx.Done():
			wk.Stop()
			return nil
		case line, ok := <-lines:
			if !ok {
				select {
				case err := <-scanErr:
					return err
				default:
					return nil
				}
			}
			if strings.TrimSpace(line) == "" {
				continue
			}
			wk.HandleJSON([]byte(line))
		}
	}
}
