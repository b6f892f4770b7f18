package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"time"

	"go.uber.org/zap"
)

// Error is returned for any non-2xx response.
type Error struct {
	Status  int
	Message string
}

func (e *Error) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("request failed with status %d", e.Status)
	}
	return fmt.Sprintf("request failed with status %d: %s", e.Status, e.Message)
}

// StatusCode extracts the HTTP status from err, or 0 when err is not an *Error.
func StatusCode(err error) int {
	var apiErr *Error
	if errors.As(err, &apiErr) {
		return apiErr.Status
	}
	return 0
}

// Config carries everything the client needs, including the credential.
type Config struct {
	BaseURL string
	Token   string
	Timeout time.Duration
}

// Client calls the quiz REST API on behalf of one student.
type Client struct {
	baseURL    *url.URL
	token      string
	httpClient *http.Client
	log        *zap.Logger
}

// NewClient returns a client with sane timeouts.
func NewClient(cfg Config, log *zap.Logger) (*Client, error) {
	base, err := url.Parse(cfg.BaseURL)
	if err != nil {
		return nil, fmt.Errorf("parse base url: %w", err)
	}
	if base.Scheme == "" || base.Host == "" {
		return nil, fmt.Errorf("base url %q must be absolute", cfg.BaseURL)
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Client{
		baseURL: base,
		token:   cfg.Token,
		httpClient: &http.Client{
			Timeout: timeout,
			Transport: &http.Transport{
				DialContext: (&net.Dialer{
					Timeout:   3 * time.Second,
					KeepAlive: 30 * time.Second,
				}).DialContext,
				MaxIdleConnsPerHost: 10,
			},
		},
		log: log,
	}, nil
}

// GetQuiz fetches the public quiz definition.
func (c *Client) GetQuiz(ctx context.Context, quizID string) (*Quiz, error) {
	var env Envelope[Quiz]
	if err := c.do(ctx, http.MethodGet, "/api/quizzes/"+url.PathEscape(quizID), nil, &env); err != nil {
		return nil, fmt.Errorf("get quiz: %w", err)
	}
	return &env.Data, nil
}

// StartAttempt creates a new attempt for quizID.
func (c *Client) StartAttempt(ctx context.Context, quizID string) (*StartedAttempt, error) {
	var env Envelope[StartedAttempt]
	path := "/api/respuestas-quiz/quiz/" + url.PathEscape(quizID) + "/iniciar"
	if err := c.do(ctx, http.MethodPost, path, struct{}{}, &env); err != nil {
		return nil, fmt.Errorf("start attempt: %w", err)
	}
	if env.Data.ID == "" {
		return nil, errors.New("start attempt: response carried no attempt id")
	}
	return &env.Data, nil
}

// SubmitAnswer records option as the answer to questionID.
func (c *Client) SubmitAnswer(ctx context.Context, attemptID, questionID, option string) error {
	path := "/api/respuestas-quiz/" + url.PathEscape(attemptID) + "/responder"
	body := AnswerRequest{QuestionID: questionID, SelectedOption: option}
	if err := c.do(ctx, http.MethodPost, path, body, nil); err != nil {
		return fmt.Errorf("submit answer: %w", err)
	}
	return nil
}

// FinishAttempt closes the attempt and returns the server's result.
func (c *Client) FinishAttempt(ctx context.Context, attemptID string) (*Result, error) {
	var env Envelope[Result]
	path := "/api/respuestas-quiz/" + url.PathEscape(attemptID) + "/finalizar"
	if err := c.do(ctx, http.MethodPost, path, struct{}{}, &env); err != nil {
		return nil, fmt.Errorf("finish attempt: %w", err)
	}
	return &env.Data, nil
}

// ListAttempts returns the caller's attempts at quizID, newest first.
func (c *Client) ListAttempts(ctx context.Context, quizID string) ([]Attempt, error) {
	var env Envelope[[]Attempt]
	path := "/api/respuestas-quiz/quiz/" + url.PathEscape(quizID) + "/mis-intentos"
	if err := c.do(ctx, http.MethodGet, path, nil, &env); err != nil {
		return nil, fmt.Errorf("list attempts: %w", err)
	}
	return env.Data, nil
}

func (c *Client) do(ctx context.Context, method, path string, body, out interface{}) error {
	var reader io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		reader = bytes.NewReader(b)
	}

	u := c.baseURL.JoinPath(path)
	req, err := http.NewRequestWithContext(ctx, method, u.String(), reader)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.log.Warn("Request failed", zap.String("method", method), zap.String("path", path), zap.Error(err))
		return err
	}
	defer resp.Body.Close()

	c.log.Debug("Request completed",
		zap.String("method", method),
		zap.String("path", path),
		zap.Int("status", resp.StatusCode),
		zap.Duration("latency", time.Since(start)),
	)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
		var eb ErrorBody
		msg := ""
		if json.Unmarshal(raw, &eb) == nil {
			msg = eb.Message
		}
		return &Error{Status: resp.StatusCode, Message: msg}
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
