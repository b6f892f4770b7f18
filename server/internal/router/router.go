package router

import (
	"context"
	"net/http"
	"time"

	"quizrun-go/internal/api"
	"quizrun-go/internal/config"
	"quizrun-go/server/internal/auth"
	"quizrun-go/server/internal/handlers"
	"quizrun-go/server/internal/services"
	"quizrun-go/server/internal/telemetry"

	ratelimit "github.com/JGLTechnologies/gin-rate-limit"
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/unrolled/secure"
	"go.uber.org/zap"
)

// Deps is everything the HTTP surface is built from.
type Deps struct {
	Log      *zap.Logger
	Server   config.ServerConfig
	Verifier *auth.Verifier
	Metrics  *telemetry.Metrics
	Quizzes  *services.QuizService
	Attempts *services.AttemptService
	Export   *services.ExportService
	// Ping reports whether the backing stores are reachable.
	Ping func(ctx context.Context) error
}

// keyFunc limits per student, falling back to the client address.
func keyFunc(c *gin.Context) string {
	if student := auth.StudentID(c); student != "" {
		return "student:" + student
	}
	return c.ClientIP()
}

func errorHandler(c *gin.Context, info ratelimit.Info) {
	c.AbortWithStatusJSON(http.StatusTooManyRequests, api.ErrorBody{
		Success: false,
		Message: "Demasiadas solicitudes. Inténtalo de nuevo en " + time.Until(info.ResetTime).Round(time.Second).String(),
	})
}

func Setup(d Deps) *gin.Engine {
	// Set up a new Gin router, add recovery middleware and request logging.
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(RequestLogger(d.Log, d.Metrics))

	// cors.New panics on an empty origin list; no origins means same-origin only.
	if len(d.Server.AllowedOrigins) > 0 {
		router.Use(cors.New(cors.Config{
			AllowOrigins:  d.Server.AllowedOrigins,
			AllowMethods:  []string{http.MethodGet, http.MethodPost, http.MethodOptions},
			AllowHeaders:  []string{"Authorization", "Content-Type", "Accept"},
			ExposeHeaders: []string{"Content-Disposition"},
			MaxAge:        12 * time.Hour,
		}))
	} else {
		d.Log.Info("No allowed origins configured, CORS is disabled")
	}

	secureMiddleware := secure.New(secure.Options{
		FrameDeny:          true,
		ContentTypeNosniff: true,
		BrowserXssFilter:   true,
	})
	router.Use(func(c *gin.Context) {
		err := secureMiddleware.Process(c.Writer, c.Request)
		if err != nil {
			c.Abort()
			return
		}
	})

	// Handlers and routes
	quizHandler := handlers.NewQuizHandler(d.Log, d.Quizzes, d.Export)
	attemptHandler := handlers.NewAttemptHandler(d.Log, d.Attempts)

	startLimit := []gin.HandlerFunc{}
	if d.Server.StartRateLimit > 0 {
		rateLimitStore := ratelimit.InMemoryStore(&ratelimit.InMemoryOptions{
			Rate:  time.Minute,
			Limit: uint(d.Server.StartRateLimit),
		})
		startLimit = append(startLimit, ratelimit.RateLimiter(rateLimitStore, &ratelimit.Options{
			ErrorHandler: errorHandler,
			KeyFunc:      keyFunc,
		}))
	}

	router.GET("/health", func(c *gin.Context) {
		if d.Ping != nil {
			if err := d.Ping(c.Request.Context()); err != nil {
				d.Log.Warn("Health check failed", zap.Error(err))
				c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable"})
				return
			}
		}
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	router.GET("/metrics", gin.WrapH(d.Metrics.Handler()))

	authorized := router.Group("/api")
	authorized.Use(AuthRequired(d.Log, d.Verifier))
	{
		quizRoutes := authorized.Group("/quizzes/:quizId")
		{
			quizRoutes.GET("", quizHandler.Show)
			quizRoutes.GET("/respuestas/export", RequireRole(auth.RoleInstructor), quizHandler.Export)
		}

		attemptRoutes := authorized.Group("/respuestas-quiz")
		{
			attemptRoutes.POST("/quiz/:quizId/iniciar", append(startLimit, attemptHandler.Start)...)
			attemptRoutes.GET("/quiz/:quizId/mis-intentos", attemptHandler.Mine)
			attemptRoutes.GET("/:attemptId", attemptHandler.Get)
			attemptRoutes.POST("/:attemptId/responder", attemptHandler.Answer)
			attemptRoutes.POST("/:attemptId/finalizar", attemptHandler.Finish)
		}
	}

	return router
}
