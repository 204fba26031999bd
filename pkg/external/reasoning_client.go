package external

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/sashabaranov/go-openai"
	"github.com/sirupsen/logrus"
	"github.com/sony/gobreaker"
	"golang.org/x/time/rate"

	"github.com/gravilog-risk-core/internal/domain"
)

const reasoningBreakerName = "reasoning"

var errEmptyReply = errors.New("reasoning service returned no choices")

// ReasoningClient asks an OpenAI-compatible chat model for an advisory verdict.
// Every failure ends in an unavailable verdict; callers never see an error.
type ReasoningClient struct {
	client  *openai.Client
	config  domain.ReasoningConfig
	breaker *gobreaker.CircuitBreaker
	limiter *rate.Limiter
	cache   *CacheClient
	logger  *logrus.Logger
}

// NewReasoningClient creates a reasoning client. A disabled config or one
// without an API key yields a client that answers unavailable without network
// access. cache may be nil.
func NewReasoningClient(config domain.ReasoningConfig, cache *CacheClient, logger *logrus.Logger) *ReasoningClient {
	if config.Model == "" {
		config.Model = openai.GPT4oMini
	}
	if config.MaxTokens == 0 {
		config.MaxTokens = 500
	}
	if config.Timeout == 0 {
		config.Timeout = 20 * time.Second
	}
	if config.RetryBackoff == 0 {
		config.RetryBackoff = 500 * time.Millisecond
	}

	limit := rate.Inf
	if config.RateLimit > 0 {
		limit = rate.Limit(config.RateLimit)
	}
	burst := config.RateBurst
	if burst < 1 {
		burst = 1
	}

	c := &ReasoningClient{
		config:  config,
		breaker: NewCircuitBreaker(reasoningBreakerName, config.Breaker, logger),
		limiter: rate.NewLimiter(limit, burst),
		cache:   cache,
		logger:  logger,
	}

	if config.Enabled && config.APIKey != "" {
		clientConfig := openai.DefaultConfig(config.APIKey)
		if config.BaseURL != "" {
			clientConfig.BaseURL = config.BaseURL
		}
		c.client = openai.NewClientWithConfig(clientConfig)
	}
	return c
}

// Available reports whether the client is configured to call the service.
func (c *ReasoningClient) Available() bool {
	return c.client != nil
}

// BreakerState returns the circuit breaker state for health reporting.
func (c *ReasoningClient) BreakerState() gobreaker.State {
	return c.breaker.State()
}

// Assess implements domain.Reasoner.
func (c *ReasoningClient) Assess(ctx context.Context, state *domain.SymptomState, passages []domain.Passage) domain.AIVerdict {
	if !c.Available() {
		return domain.UnavailableVerdict()
	}

	logger := c.logger.WithField("session_id", state.SessionID)

	prompt, err := buildUserPrompt(state, passages)
	if err != nil {
		logger.WithError(err).Error("Failed to build reasoning prompt")
		return domain.UnavailableVerdict()
	}

	key := CacheKey(c.config.Model, systemPrompt, prompt)
	if c.cache != nil {
		if v, ok := c.cache.Get(ctx, key); ok {
			logger.Debug("Reasoning verdict served from cache")
			return v
		}
	}

	for attempt := 1; attempt <= 2; attempt++ {
		if attempt > 1 {
			select {
			case <-time.After(c.config.RetryBackoff):
			case <-ctx.Done():
				return domain.UnavailableVerdict()
			}
		}

		verdict, err := c.attempt(ctx, prompt)
		if err == nil {
			if c.cache != nil && verdict.Status == domain.VerdictOK {
				c.cache.Set(ctx, key, verdict)
			}
			logger.WithFields(logrus.Fields(verdict.LogFields())).Debug("Received reasoning verdict")
			return verdict
		}

		entry := logger.WithError(err).WithField("attempt", attempt)
		if ctx.Err() != nil || !isTransient(err) {
			entry.Warn("Reasoning service call failed")
			break
		}
		entry.Warn("Reasoning service call failed, retrying")
	}

	return domain.UnavailableVerdict()
}

func (c *ReasoningClient) attempt(ctx context.Context, prompt string) (domain.AIVerdict, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return domain.AIVerdict{}, fmt.Errorf("waiting for rate limiter: %w", err)
	}

	result, err := c.breaker.Execute(func() (interface{}, error) {
		callCtx, cancel := context.WithTimeout(ctx, c.config.Timeout)
		defer cancel()

		resp, err := c.client.CreateChatCompletion(callCtx, openai.ChatCompletionRequest{
			Model: c.config.Model,
			Messages: []openai.ChatCompletionMessage{
				{Role: openai.ChatMessageRoleSystem, Content: systemPrompt},
				{Role: openai.ChatMessageRoleUser, Content: prompt},
			},
			MaxTokens:   c.config.MaxTokens,
			Temperature: c.config.Temperature,
		})
		if err != nil {
			return nil, err
		}
		if len(resp.Choices) == 0 {
			return nil, errEmptyReply
		}
		return parseVerdict(resp.Choices[0].Message.Content)
	})
	if err != nil {
		return domain.AIVerdict{}, err
	}
	return result.(domain.AIVerdict), nil
}

// isTransient reports whether a failed call is worth one more try.
func isTransient(err error) bool {
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return false
	}
	if errors.Is(err, errUnparseableReply) || errors.Is(err, errEmptyReply) || errors.Is(err, context.DeadlineExceeded) {
		return true
	}

	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return retryableStatus(apiErr.HTTPStatusCode)
	}
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		return retryableStatus(reqErr.HTTPStatusCode)
	}
	var netErr net.Error
	return errors.As(err, &netErr)
}

func retryableStatus(code int) bool {
	return code == http.StatusTooManyRequests || code >= http.StatusInternalServerError
}
