// Package analysis sends reading batches to external chat-completion backends
// and returns their textual assessment.
package analysis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"example.com/backstage/services/fleet/config"

	"github.com/go-resty/resty/v2"
	"github.com/sirupsen/logrus"
)

// ErrUnavailable is returned when no candidate produced an answer
var ErrUnavailable = errors.New("analysis provider unavailable")

var errEmptyResponse = errors.New("empty response")

// Provider produces a textual assessment of a device's readings
type Provider interface {
	Analyze(ctx context.Context, deviceID string, readings map[string][]float64) (string, error)
}

// Candidate is one backend; candidates are tried in order
type Candidate struct {
	Model    string
	Endpoint string
	APIKey   string
}

// Options holds the request parameters shared by every candidate
type Options struct {
	Timeout      time.Duration
	Temperature  float64
	SystemPrompt string
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	Temperature float64       `json:"temperature"`
}

type chatResponse struct {
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
}

// Client is a Provider backed by resty
type Client struct {
	httpClient *resty.Client
	candidates []Candidate
	opts       Options
	log        *logrus.Logger
}

// NewClient creates an analysis client for the given candidates
func NewClient(candidates []Candidate, opts Options, log *logrus.Logger) *Client {
	if log == nil {
		log = logrus.New()
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 30 * time.Second
	}

	httpClient := resty.New().
		SetHeader("Content-Type", "application/json").
		SetHeader("Accept", "application/json")

	return &Client{
		httpClient: httpClient,
		candidates: candidates,
		opts:       opts,
		log:        log,
	}
}

// NewFromConfig builds a client from the analysis section of the service config
func NewFromConfig(cfg config.AnalysisConfig, log *logrus.Logger) *Client {
	candidates := make([]Candidate, 0, len(cfg.Candidates))
	for _, c := range cfg.Candidates {
		candidates = append(candidates, Candidate{Model: c.Model, Endpoint: c.Endpoint, APIKey: c.APIKey})
	}

	return NewClient(candidates, Options{
		Timeout:      cfg.Timeout,
		Temperature:  cfg.Temperature,
		SystemPrompt: cfg.SystemPrompt,
	}, log)
}

// Analyze asks each candidate in turn and returns the first non-empty answer
func (c *Client) Analyze(ctx context.Context, deviceID string, readings map[string][]float64) (string, error) {
	data, err := json.Marshal(readings)
	if err != nil {
		return "", fmt.Errorf("failed to marshal readings: %w", err)
	}
	content := "Info from sensors: " + string(data)

	for i, candidate := range c.candidates {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return "", fmt.Errorf("%w: %v", ErrUnavailable, ctxErr)
		}

		logger := c.log.WithFields(logrus.Fields{
			"device_id": deviceID,
			"model":     candidate.Model,
			"attempt":   i + 1,
		})

		start := time.Now()
		text, err := c.try(ctx, candidate, content)
		if err == nil {
			logger.WithField("latency", time.Since(start)).Info("Analysis candidate answered")
			return text, nil
		}

		if ctxErr := ctx.Err(); ctxErr != nil {
			logger.WithError(err).Warn("Analysis cancelled by caller")
			return "", fmt.Errorf("%w: %v", ErrUnavailable, ctxErr)
		}

		logger.WithError(err).Warn("Analysis candidate failed, trying next")
	}

	return "", ErrUnavailable
}

// try performs a single bounded request against one candidate
func (c *Client) try(ctx context.Context, candidate Candidate, content string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, c.opts.Timeout)
	defer cancel()

	req := chatRequest{
		Model: candidate.Model,
		Messages: []chatMessage{
			{Role: "system", Content: c.opts.SystemPrompt},
			{Role: "user", Content: content},
		},
		Temperature: c.opts.Temperature,
	}

	resp, err := c.httpClient.R().
		SetContext(ctx).
		SetAuthToken(candidate.APIKey).
		SetBody(req).
		Post(candidate.Endpoint)
	if err != nil {
		return "", err
	}
	if !resp.IsSuccess() {
		return "", fmt.Errorf("unexpected status %d", resp.StatusCode())
	}

	var out chatResponse
	if err := json.Unmarshal(resp.Body(), &out); err != nil {
		return "", fmt.Errorf("failed to decode response: %w", err)
	}
	if len(out.Choices) == 0 {
		return "", errEmptyResponse
	}

	text := strings.TrimSpace(out.Choices[0].Message.Content)
	if text == "" {
		return "", errEmptyResponse
	}

	return text, nil
}
