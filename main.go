package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"quizrun-go/internal/api"
	"quizrun-go/internal/attempt"
	"quizrun-go/internal/config"
	"quizrun-go/internal/console"
	logger "quizrun-go/internal/logging"

	"go.uber.org/zap"
)

func main() {
	quizID := flag.String("quiz", "", "id of the quiz to take")
	root := flag.String("root", ".", "directory holding config/ and .env")
	token := flag.String("token", "", "bearer token (overrides QUIZRUN_CLIENT_TOKEN)")
	flag.Parse()

	if *quizID == "" {
		fmt.Fprintln(os.Stderr, "usage: quizrun -quiz <id> [-root dir] [-token jwt]")
		os.Exit(2)
	}

	cfg, _, err := config.Load(*root)
	if err != nil {
		fmt.Fprintln(os.Stderr, "failed to load configuration:", err)
		os.Exit(1)
	}
	if *token != "" {
		cfg.Client.Token = *token
	}

	// The terminal belongs to the quiz; logs only go to files.
	cfg.Logging.Console = false
	log, _, err := logger.Init(cfg.Logging)
	if err != nil {
		fmt.Fprintln(os.Stderr, "failed to initialize logger:", err)
		os.Exit(1)
	}
	defer log.Sync()

	os.Exit(run(cfg, *quizID, log))
}

func run(cfg *config.Config, quizID string, log *zap.Logger) int {
	client, err := api.NewClient(api.Config{
		BaseURL: cfg.Client.BaseURL,
		Token:   cfg.Client.Token,
		Timeout: cfg.Client.Timeout,
	}, log.Named("api"))
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	printer := console.NewPrinter(os.Stdout)
	session := attempt.NewSession(client, quizID, printer, log.Named("attempt"), attempt.Options{})
	defer session.Close()

	if _, err := session.Load(ctx); err != nil {
		return 1
	}

	if err := console.NewRunner(session, printer, os.Stdin, log).Run(ctx); err != nil && ctx.Err() == nil {
		log.Error("Quiz runner stopped", zap.Error(err))
		return 1
	}
	return 0
}
