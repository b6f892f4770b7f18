package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"quizrun-go/internal/config"
	logger "quizrun-go/internal/logging"
	"quizrun-go/server/internal/auth"
	"quizrun-go/server/internal/cache"
	"quizrun-go/server/internal/database"
	"quizrun-go/server/internal/event"
	"quizrun-go/server/internal/models"
	"quizrun-go/server/internal/repository"
	"quizrun-go/server/internal/router"
	"quizrun-go/server/internal/services"
	"quizrun-go/server/internal/telemetry"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

func main() {
	root := flag.String("root", "..", "directory holding config/ and .env")
	issue := flag.String("issue-token", "", "print a token for this student id and exit")
	role := flag.String("role", auth.RoleStudent, "role of the issued token")
	ttl := flag.Duration("ttl", 24*time.Hour, "lifetime of the issued token")
	flag.Parse()

	conf, v, err := config.Load(*root)
	if err != nil {
		panic("failed to load configuration: " + err.Error())
	}

	verifier, err := auth.NewVerifier(conf.Auth.JWTSecret, conf.Auth.Issuer)
	if err != nil {
		panic("failed to initialize token verifier: " + err.Error())
	}
	if *issue != "" {
		token, err := verifier.Issue(*issue, *role, *ttl)
		if err != nil {
			panic("failed to issue token: " + err.Error())
		}
		fmt.Println(token)
		return
	}

	// Initialize Logger
	log, level, err := logger.Init(conf.Logging)
	if err != nil {
		panic("failed to initialize logger: " + err.Error())
	}
	defer log.Sync()

	config.Watch(v, log, func(updated *config.Config) {
		if err := level.UnmarshalText([]byte(updated.Logging.Level)); err != nil {
			log.Warn("Ignoring invalid log level", zap.String("level", updated.Logging.Level))
			return
		}
		log.Info("Log level updated", zap.String("level", level.String()))
	})

	if err := run(conf, *root, verifier, log); err != nil {
		log.Fatal("Server stopped", zap.Error(err))
	}
}

func run(conf *config.Config, root string, verifier *auth.Verifier, log *zap.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Initialize Database
	if conf.Database.Driver == "sqlite" && !filepath.IsAbs(conf.Database.Path) {
		conf.Database.Path = filepath.Join(root, conf.Database.Path)
	}
	db, err := database.Open(conf.Database, log)
	if err != nil {
		return err
	}
	sqlDB, err := db.DB()
	if err != nil {
		return err
	}
	defer sqlDB.Close()

	var quizCache cache.Cache = cache.Noop{}
	if conf.Redis.Addr != "" {
		rc, err := cache.NewRedis(ctx, conf.Redis.Addr, conf.Redis.Password, conf.Redis.DB)
		if err != nil {
			return fmt.Errorf("failed to connect to redis: %w", err)
		}
		defer rc.Close()
		quizCache = rc
		log.Info("Quiz cache enabled", zap.String("addr", conf.Redis.Addr))
	}

	var publisher event.Publisher = event.Noop{Log: log}
	if conf.RabbitMQ.URL != "" {
		p, err := event.NewAMQPPublisher(conf.RabbitMQ.URL, conf.RabbitMQ.Exchange, log)
		if err != nil {
			return err
		}
		publisher = p
	} else {
		log.Warn("RabbitMQ URL is empty, event publishing is disabled")
	}
	defer publisher.Close()

	metrics := telemetry.New()
	quizzes := services.NewQuizService(repository.NewQuizRepository(db), quizCache, conf.Redis.TTL, log)
	attemptRepo := repository.NewAttemptRepository(db)
	attempts := services.NewAttemptService(quizzes, attemptRepo, repository.NewAnswerRepository(db), publisher, metrics, log,
		services.AttemptOptions{Grace: conf.Scheduler.ExpiryGrace})
	export := services.NewExportService(quizzes, attemptRepo)

	// Load quiz definitions at startup
	seedFile := conf.Quizzes.SeedFile
	if !filepath.IsAbs(seedFile) {
		seedFile = filepath.Join(root, seedFile)
	}
	seed, err := models.LoadQuizzes(seedFile)
	if err != nil {
		return err
	}
	if err := quizzes.Seed(ctx, seed); err != nil {
		return fmt.Errorf("failed to seed quizzes: %w", err)
	}

	sweeper := services.NewExpirySweeper(attempts, conf.Scheduler.SweepInterval, log)
	if err := sweeper.Start(); err != nil {
		return err
	}
	defer sweeper.Stop()

	gin.SetMode(gin.ReleaseMode)
	r := router.Setup(router.Deps{
		Log:      log,
		Server:   conf.Server,
		Verifier: verifier,
		Metrics:  metrics,
		Quizzes:  quizzes,
		Attempts: attempts,
		Export:   export,
		Ping:     sqlDB.PingContext,
	})

	srv := &http.Server{
		Addr:              ":" + conf.Server.Port,
		Handler:           r,
		ReadHeaderTimeout: 5 * time.Second,
	}
	errc := make(chan error, 1)
	go func() {
		log.Info("Server listening on http://localhost:" + conf.Server.Port)
		errc <- srv.ListenAndServe()
	}()

	select {
	case err := <-errc:
		if !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	case <-ctx.Done():
	}

	log.Info("Shutting down server...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}
