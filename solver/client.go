// Package solver is a client for an anti-captcha compatible solving service.
package solver

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/time/rate"
)

var (
	ErrNoAPIKey    = errors.New("solver: api key not configured")
	ErrInvalidKey  = errors.New("solver: api key rejected")
	ErrZeroBalance = errors.New("solver: account balance is zero")
	ErrNoTask      = errors.New("solver: service returned no task id")
	ErrTimeout     = errors.New("solver: timed out waiting for solution")
)

// APIError is any other non-zero errorId reported by the service.
type APIError struct {
	ID          int
	Code        string
	Description string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("solver: %s (%d): %s", e.Code, e.ID, e.Description)
}

type Options struct {
	APIKey       string
	BaseURL      string
	SoftID       int
	PollInterval time.Duration
	Timeout      time.Duration
	HTTPClient   *http.Client
	Logger       zerolog.Logger
}

type Client struct {
	apiKey  string
	baseURL string
	softID  int
	timeout time.Duration
	poll    time.Duration
	http    *http.Client
	logger  zerolog.Logger
}

func New(opts Options) *Client {
	if opts.BaseURL == "" {
		opts.BaseURL = "https://api.anti-captcha.com"
	}
	if opts.PollInterval <= 0 {
		opts.PollInterval = 3 * time.Second
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 120 * time.Second
	}
	if opts.HTTPClient == nil {
		opts.HTTPClient = &http.Client{Timeout: 30 * time.Second}
	}
	return &Client{
		apiKey:  opts.APIKey,
		baseURL: strings.TrimSuffix(opts.BaseURL, "/"),
		softID:  opts.SoftID,
		timeout: opts.Timeout,
		poll:    opts.PollInterval,
		http:    opts.HTTPClient,
		logger:  opts.Logger.With().Str("component", "solver").Logger(),
	}
}

func (c *Client) Configured() bool { return c.apiKey != "" }

type envelope struct {
	ErrorID          int    `json:"errorId"`
	ErrorCode        string `json:"errorCode"`
	ErrorDescription string `json:"errorDescription"`
}

func (e envelope) err() error {
	if e.ErrorID == 0 {
		return nil
	}
	switch e.ErrorCode {
	case "ERROR_KEY_DOES_NOT_EXIST":
		return ErrInvalidKey
	case "ERROR_ZERO_BALANCE":
		return ErrZeroBalance
	}
	return &APIError{ID: e.ErrorID, Code: e.ErrorCode, Description: e.ErrorDescription}
}

// Balance returns the account balance in USD.
func (c *Client) Balance(ctx context.Context) (float64, error) {
	var resp struct {
		envelope
		Balance float64 `json:"balance"`
	}
	if err := c.call(ctx, "/getBalance", map[string]interface{}{}, &resp); err != nil {
		return 0, err
	}
	if err := resp.err(); err != nil {
		return 0, err
	}
	return resp.Balance, nil
}

// CreateTask submits task and returns its id.
func (c *Client) CreateTask(ctx context.Context, task interface{}) (int64, error) {
	body := map[string]interface{}{"task": task}
	if c.softID > 0 {
		body["softId"] = c.softID
	}

	var resp struct {
		envelope
		TaskID int64 `json:"taskId"`
	}
	if err := c.call(ctx, "/createTask", body, &resp); err != nil {
		return 0, err
	}
	if err := resp.err(); err != nil {
		return 0, err
	}
	if resp.TaskID == 0 {
		return 0, ErrNoTask
	}
	return resp.TaskID, nil
}

// WaitForResult polls the task until it is ready, the client timeout
// elapses, or ctx is done.
func (c *Client) WaitForResult(parent context.Context, taskID int64) (*Solution, error) {
	ctx, cancel := context.WithTimeout(parent, c.timeout)
	defer cancel()

	limiter := rate.NewLimiter(rate.Every(c.poll), 1)
	for attempt := 1; ; attempt++ {
		// Wait fails early when the next poll would land past the deadline.
		if err := limiter.Wait(ctx); err != nil {
			if parent.Err() != nil {
				return nil, parent.Err()
			}
			return nil, ErrTimeout
		}

		var resp struct {
			envelope
			Status   string                 `json:"status"`
			Solution map[string]interface{} `json:"solution"`
			Cost     string                 `json:"cost"`
		}
		if err := c.call(ctx, "/getTaskResult", map[string]interface{}{"taskId": taskID}, &resp); err != nil {
			if parent.Err() == nil && ctx.Err() != nil {
				return nil, ErrTimeout
			}
			return nil, err
		}
		if err := resp.err(); err != nil {
			return nil, err
		}

		if resp.Status == "ready" {
			sol := parseSolution(resp.Solution)
			sol.TaskID = taskID
			sol.Cost = resp.Cost
			c.logger.Debug().Int64("task", taskID).Int("polls", attempt).Int("hold_ms", sol.HoldMs).Msg("Solution ready")
			return sol, nil
		}
	}
}

// Solve uploads an image of the challenge and waits for its solution.
func (c *Client) Solve(ctx context.Context, req Request) (*Solution, error) {
	if !c.Configured() {
		return nil, ErrNoAPIKey
	}
	if req.ImageBase64 == "" {
		return nil, fmt.Errorf("solver: empty image")
	}

	taskID, err := c.CreateTask(ctx, imageToTextTask{
		Type:    "ImageToTextTask",
		Body:    req.ImageBase64,
		Comment: req.comment(),
	})
	if err != nil {
		return nil, err
	}
	c.logger.Info().Int64("task", taskID).Str("variant", req.Variant).Msg("Solver task created")

	return c.WaitForResult(ctx, taskID)
}

func (c *Client) call(ctx context.Context, path string, body map[string]interface{}, out interface{}) error {
	if !c.Configured() {
		return ErrNoAPIKey
	}
	body["clientKey"] = c.apiKey

	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("marshal %s: %w", path, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("solver %s: %w", path, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return fmt.Errorf("read %s: %w", path, err)
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("solver %s: status %d: %s", path, resp.StatusCode, truncate(string(data), 200))
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("decode %s: %w", path, err)
	}
	return nil
}

func parseSolution(raw map[string]interface{}) *Solution {
	sol := &Solution{Raw: raw}
	if v, ok := raw["text"].(string); ok {
		sol.Text = v
	}
	if v, ok := raw["token"].(string); ok {
		sol.Token = v
	} else {
		sol.Token = sol.Text
	}

	switch v := raw["holdTime"].(type) {
	case float64:
		sol.HoldMs = int(v)
	case string:
		sol.HoldMs, _ = strconv.Atoi(strings.TrimSpace(v))
	}
	if sol.HoldMs == 0 {
		if n, err := strconv.Atoi(strings.TrimSpace(sol.Text)); err == nil {
			sol.HoldMs = n
		}
	}
	if sol.HoldMs < 0 || sol.HoldMs > 30000 {
		sol.HoldMs = 0
	}
	return sol
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
