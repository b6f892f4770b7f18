package router

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"quizrun-go/internal/api"
	"quizrun-go/internal/attempt"
	"quizrun-go/internal/config"
	"quizrun-go/server/internal/auth"
	"quizrun-go/server/internal/database"
	"quizrun-go/server/internal/models"
	"quizrun-go/server/internal/repository"
	"quizrun-go/server/internal/services"
	"quizrun-go/server/internal/telemetry"

	"github.com/benbjohnson/clock"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
	"go.uber.org/zap/zaptest"
)

const quizYAML = `
quizzes:
  - id: go-basics
    title: Go basics
    time_limit_minutes: 5
    passing_score: 60
    allowed_attempts: 1
    questions:
      - id: q1
        prompt: Zero value of int?
        options: ["0", "nil"]
        correct: "0"
      - id: q2
        prompt: Goroutine keyword?
        options: ["async", "go"]
        correct: "go"
      - id: q3
        prompt: Map zero value?
        options: ["nil", "{}"]
        correct: "nil"
`

type testServer struct {
	engine   *gin.Engine
	verifier *auth.Verifier
	clock    *clock.Mock
}

func newTestServer(t *testing.T, server config.ServerConfig) *testServer {
	t.Helper()
	gin.SetMode(gin.TestMode)
	log := zaptest.NewLogger(t)

	name := strings.NewReplacer("/", "_", " ", "_").Replace(t.Name())
	db, err := database.Open(config.DatabaseConfig{
		Driver: "sqlite",
		Path:   fmt.Sprintf("file:%s?mode=memory&cache=shared", name),
	}, log)
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { sqlDB.Close() })

	verifier, err := auth.NewVerifier("test-secret", "quizrun")
	require.NoError(t, err)

	mock := clock.NewMock()
	mock.Set(time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC))

	metrics := telemetry.New()
	quizzes := services.NewQuizService(repository.NewQuizRepository(db), nil, time.Minute, log)
	attemptRepo := repository.NewAttemptRepository(db)
	attempts := services.NewAttemptService(quizzes, attemptRepo, repository.NewAnswerRepository(db), nil, metrics, log,
		services.AttemptOptions{Clock: mock, Grace: 10 * time.Second})

	seed, err := models.ParseQuizzes([]byte(quizYAML))
	require.NoError(t, err)
	require.NoError(t, quizzes.Seed(context.Background(), seed))

	return &testServer{
		engine: Setup(Deps{
			Log:      log,
			Server:   server,
			Verifier: verifier,
			Metrics:  metrics,
			Quizzes:  quizzes,
			Attempts: attempts,
			Export:   services.NewExportService(quizzes, attemptRepo),
			Ping:     sqlDB.PingContext,
		}),
		verifier: verifier,
		clock:    mock,
	}
}

func (s *testServer) token(t *testing.T, subject, role string) string {
	t.Helper()
	token, err := s.verifier.Issue(subject, role, time.Hour)
	require.NoError(t, err)
	return token
}

func (s *testServer) do(t *testing.T, method, path, token, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	s.engine.ServeHTTP(rec, req)
	return rec
}

func errorMessage(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	var body api.ErrorBody
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.False(t, body.Success)
	return body.Message
}

func TestClientAgainstServer(t *testing.T) {
	s := newTestServer(t, config.ServerConfig{})
	srv := httptest.NewServer(s.engine)
	defer srv.Close()

	client, err := api.NewClient(api.Config{BaseURL: srv.URL, Token: s.token(t, "ana", auth.RoleStudent)}, zaptest.NewLogger(t))
	require.NoError(t, err)
	ctx := context.Background()

	quiz, err := client.GetQuiz(ctx, "go-basics")
	require.NoError(t, err)
	assert.Equal(t, "Go basics", quiz.Title)
	require.Len(t, quiz.Questions, 3)
	limit, ok := quiz.TimeLimit()
	require.True(t, ok)
	assert.Equal(t, 5*time.Minute, limit)

	started, err := client.StartAttempt(ctx, "go-basics")
	require.NoError(t, err)
	require.NotNil(t, started.TimeLimitMinutes)
	assert.Equal(t, 5, *started.TimeLimitMinutes)

	require.NoError(t, client.SubmitAnswer(ctx, started.ID, "q1", "0"))
	require.NoError(t, client.SubmitAnswer(ctx, started.ID, "q2", "go"))
	require.NoError(t, client.SubmitAnswer(ctx, started.ID, "q3", "{}"))

	err = client.SubmitAnswer(ctx, started.ID, "q1", "maybe")
	assert.Equal(t, http.StatusBadRequest, api.StatusCode(err))
	assert.Contains(t, err.Error(), "Respuesta no válida para esta pregunta")

	s.clock.Add(95 * time.Second)
	result, err := client.FinishAttempt(ctx, started.ID)
	require.NoError(t, err)
	assert.Equal(t, api.Result{Score: 2, Passed: true, ElapsedSeconds: 95}, *result)

	again, err := client.FinishAttempt(ctx, started.ID)
	require.NoError(t, err)
	assert.Equal(t, *result, *again)

	err = client.SubmitAnswer(ctx, started.ID, "q3", "nil")
	assert.Equal(t, http.StatusConflict, api.StatusCode(err))

	_, err = client.StartAttempt(ctx, "go-basics")
	assert.Equal(t, http.StatusBadRequest, api.StatusCode(err))
	assert.Contains(t, err.Error(), "Has alcanzado el número máximo de intentos para este quiz")

	attempts, err := client.ListAttempts(ctx, "go-basics")
	require.NoError(t, err)
	require.Len(t, attempts, 1)
	assert.Equal(t, "finished", attempts[0].Status)
	assert.Equal(t, 3, attempts[0].TotalQuestions)
	require.NotNil(t, attempts[0].Score)
	assert.Equal(t, 2, *attempts[0].Score)
}

func TestResumedAttemptKeepsServerDeadline(t *testing.T) {
	s := newTestServer(t, config.ServerConfig{})
	srv := httptest.NewServer(s.engine)
	defer srv.Close()

	log := zaptest.NewLogger(t)
	client, err := api.NewClient(api.Config{BaseURL: srv.URL, Token: s.token(t, "ana", auth.RoleStudent)}, log)
	require.NoError(t, err)
	ctx := context.Background()

	first := attempt.NewSession(client, "go-basics", nil, log, attempt.Options{Clock: clock.NewMock()})
	_, err = first.Load(ctx)
	require.NoError(t, err)
	require.NoError(t, first.Start(ctx))
	attemptID := first.Snapshot().AttemptID
	first.Close()

	s.clock.Add(4 * time.Minute)

	started, err := client.StartAttempt(ctx, "go-basics")
	require.NoError(t, err)
	assert.Equal(t, attemptID, started.ID)
	require.NotNil(t, started.RemainingSeconds)
	assert.Equal(t, 60, *started.RemainingSeconds)

	clientClock := clock.NewMock()
	second := attempt.NewSession(client, "go-basics", nil, log, attempt.Options{Clock: clientClock})
	defer second.Close()
	_, err = second.Load(ctx)
	require.NoError(t, err)
	require.NoError(t, second.Start(ctx))

	snap := second.Snapshot()
	assert.Equal(t, attemptID, snap.AttemptID)
	assert.Equal(t, 5*time.Minute, snap.TimeLimit)
	assert.Equal(t, "1:00", attempt.FormatClock(snap.Remaining))

	// Both clocks reach the deadline together; the automatic finish lands
	// inside the server's grace window.
	s.clock.Add(time.Minute)
	clientClock.Add(time.Minute)
	require.Eventually(t, func() bool { return second.State() == attempt.Finished }, 2*time.Second, 10*time.Millisecond)
	assert.False(t, second.FinishFailed())
	result := second.Snapshot().Result
	require.NotNil(t, result)
	assert.Equal(t, 5*time.Minute, result.Elapsed)
}

func TestAuthRequired(t *testing.T) {
	s := newTestServer(t, config.ServerConfig{})

	rec := s.do(t, http.MethodGet, "/api/quizzes/go-basics", "", "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, "Token no proporcionado", errorMessage(t, rec))

	rec = s.do(t, http.MethodGet, "/api/quizzes/go-basics", "not-a-token", "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, "Token inválido", errorMessage(t, rec))

	other, err := auth.NewVerifier("other-secret", "quizrun")
	require.NoError(t, err)
	forged, err := other.Issue("ana", auth.RoleStudent, time.Hour)
	require.NoError(t, err)
	rec = s.do(t, http.MethodGet, "/api/quizzes/go-basics", forged, "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestRouteErrors(t *testing.T) {
	s := newTestServer(t, config.ServerConfig{})
	ana := s.token(t, "ana", auth.RoleStudent)
	bea := s.token(t, "bea", auth.RoleStudent)

	rec := s.do(t, http.MethodGet, "/api/quizzes/nope", ana, "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "Quiz no encontrado", errorMessage(t, rec))

	rec = s.do(t, http.MethodPost, "/api/respuestas-quiz/quiz/go-basics/iniciar", ana, "{}")
	require.Equal(t, http.StatusCreated, rec.Code)
	var started api.Envelope[api.StartedAttempt]
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &started))
	id := started.Data.ID

	rec = s.do(t, http.MethodPost, "/api/respuestas-quiz/"+id+"/responder", ana, `{"preguntaId":"q1"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "preguntaId y respuestaSeleccionada son obligatorios", errorMessage(t, rec))

	rec = s.do(t, http.MethodPost, "/api/respuestas-quiz/"+id+"/responder", ana, `{"preguntaId":"q9","respuestaSeleccionada":"0"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "La pregunta no pertenece a este quiz", errorMessage(t, rec))

	rec = s.do(t, http.MethodPost, "/api/respuestas-quiz/"+id+"/responder", bea, `{"preguntaId":"q1","respuestaSeleccionada":"0"}`)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "Intento no encontrado", errorMessage(t, rec))

	rec = s.do(t, http.MethodPost, "/api/respuestas-quiz/"+id+"/responder", ana, `{"preguntaId":"q1","respuestaSeleccionada":"0"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"success":true}`, rec.Body.String())

	rec = s.do(t, http.MethodGet, "/api/respuestas-quiz/"+id, ana, "")
	require.Equal(t, http.StatusOK, rec.Code)
	var view api.Envelope[api.Attempt]
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &view))
	assert.Equal(t, "in_progress", view.Data.Status)
	assert.Equal(t, map[string]string{"q1": "0"}, view.Data.Answers)
}

func TestExportRequiresInstructor(t *testing.T) {
	s := newTestServer(t, config.ServerConfig{})
	student := s.token(t, "ana", auth.RoleStudent)
	instructor := s.token(t, "prof", auth.RoleInstructor)

	rec := s.do(t, http.MethodPost, "/api/respuestas-quiz/quiz/go-basics/iniciar", student, "{}")
	require.Equal(t, http.StatusCreated, rec.Code)

	rec = s.do(t, http.MethodGet, "/api/quizzes/go-basics/respuestas/export", student, "")
	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Equal(t, "No autorizado", errorMessage(t, rec))

	rec = s.do(t, http.MethodGet, "/api/quizzes/go-basics/respuestas/export", instructor, "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Header().Get("Content-Disposition"), "go-basics-intentos.xlsx")

	book, err := excelize.OpenReader(rec.Body)
	require.NoError(t, err)
	defer book.Close()
	rows, err := book.GetRows("Intentos")
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, "ana", rows[1][1])
}

func TestStartRateLimit(t *testing.T) {
	s := newTestServer(t, config.ServerConfig{StartRateLimit: 2})
	ana := s.token(t, "ana", auth.RoleStudent)

	for i := 0; i < 2; i++ {
		rec := s.do(t, http.MethodPost, "/api/respuestas-quiz/quiz/go-basics/iniciar", ana, "{}")
		require.Equal(t, http.StatusCreated, rec.Code)
	}
	rec := s.do(t, http.MethodPost, "/api/respuestas-quiz/quiz/go-basics/iniciar", ana, "{}")
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Contains(t, errorMessage(t, rec), "Demasiadas solicitudes")

	// Other students have their own budget.
	rec = s.do(t, http.MethodPost, "/api/respuestas-quiz/quiz/go-basics/iniciar", s.token(t, "bea", auth.RoleStudent), "{}")
	assert.Equal(t, http.StatusCreated, rec.Code)
}

func TestCORSFollowsAllowedOrigins(t *testing.T) {
	preflight := func(s *testServer) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodOptions, "/api/quizzes/go-basics", nil)
		req.Header.Set("Origin", "http://app.example.com")
		req.Header.Set("Access-Control-Request-Method", http.MethodGet)
		rec := httptest.NewRecorder()
		s.engine.ServeHTTP(rec, req)
		return rec
	}

	var closed *testServer
	require.NotPanics(t, func() { closed = newTestServer(t, config.ServerConfig{AllowedOrigins: []string{}}) })
	assert.Empty(t, preflight(closed).Header().Get("Access-Control-Allow-Origin"))

	open := newTestServer(t, config.ServerConfig{AllowedOrigins: []string{"http://app.example.com"}})
	rec := preflight(open)
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, "http://app.example.com", rec.Header().Get("Access-Control-Allow-Origin"))
}

func TestHealthAndMetrics(t *testing.T) {
	s := newTestServer(t, config.ServerConfig{})

	rec := s.do(t, http.MethodGet, "/health", "", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())

	rec = s.do(t, http.MethodGet, "/metrics", "", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "quizrun_http_request_duration_seconds")
}
