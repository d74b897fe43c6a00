package classifier

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/spec-kit/complaint-service/internal/domain"
)

type remoteRequest struct {
	Text string `json:"text"`
}

type remoteResponse struct {
	Priority string `json:"priority"`
}

// RemoteClassifier asks an HTTP text-classification endpoint and falls back on any failure.
type RemoteClassifier struct {
	url      string
	timeout  time.Duration
	fallback Classifier
	logger   *zap.Logger
}

// NewRemoteClassifier builds a classifier posting to url.
func NewRemoteClassifier(url string, timeout time.Duration, fallback Classifier, logger *zap.Logger) *RemoteClassifier {
	if fallback == nil {
		fallback = NewKeywordClassifier()
	}
	return &RemoteClassifier{url: url, timeout: timeout, fallback: fallback, logger: logger}
}

// Classify returns the remote verdict, or the fallback verdict when the remote call fails.
func (c *RemoteClassifier) Classify(ctx context.Context, description string) (domain.Priority, error) {
	priority, err := c.classifyRemote(ctx, description)
	if err == nil {
		return priority, nil
	}
	c.logger.Warn("remote classifier failed; using fallback", zap.Error(err))
	return c.fallback.Classify(ctx, description)
}

func (c *RemoteClassifier) classifyRemote(ctx context.Context, description string) (domain.Priority, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	agent := fiber.Post(c.url).
		Timeout(c.timeout).
		JSON(remoteRequest{Text: description})

	status, body, errs := agent.Bytes()
	if len(errs) > 0 {
		return "", errors.Join(errs...)
	}
	if status != fiber.StatusOK {
		return "", fmt.Errorf("classifier returned status %d", status)
	}

	var resp remoteResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return "", fmt.Errorf("decode classifier response: %w", err)
	}
	return domain.ParsePriority(resp.Priority)
}

// New picks the remote classifier when url is set.
func New(url string, timeout time.Duration, logger *zap.Logger) Classifier {
	if url == "" {
		return NewKeywordClassifier()
	}
	return NewRemoteClassifier(url, timeout, NewKeywordClassifier(), logger)
}
