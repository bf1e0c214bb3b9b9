package kraken

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"crypto/sha512"
	"encoding/base64"
	"fmt"
	"math"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"kraken-auto-trader-go/internal/config"

	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

const (
	defaultBaseURL = "https://api.kraken.com"
	publicPrefix   = "/0/public"
	privatePrefix  = "/0/private"
	maxRetries     = 3
)

// RestClient is a client for the Kraken REST API.
type RestClient struct {
	client    *resty.Client
	apiKey    string
	secret    []byte
	logger    *zap.Logger
	limiter   *rate.Limiter
	retryWait time.Duration

	nonceMu   sync.Mutex
	lastNonce int64

	pairsMu sync.Mutex
	pairs   map[string]AssetPair
}

// NewRestClient creates a new Kraken REST API client. The API secret is the
// base64 string Kraken issues and may be empty for public-only use.
func NewRestClient(cfg *config.Kraken, logger *zap.Logger) (*RestClient, error) {
	secret, err := base64.StdEncoding.DecodeString(cfg.ApiSecret)
	if err != nil {
		return nil, fmt.Errorf("invalid kraken api secret: %w", err)
	}

	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	client := resty.New().SetBaseURL(baseURL)
	if cfg.Timeout > 0 {
		client.SetTimeout(cfg.Timeout)
	}

	burst := cfg.RateLimitBurst
	if burst < 1 {
		burst = 1
	}

	return &RestClient{
		client:    client,
		apiKey:    cfg.ApiKey,
		secret:    secret,
		logger:    logger.Named("kraken"),
		limiter:   rate.NewLimiter(rate.Limit(cfg.RateLimit), burst),
		retryWait: time.Second,
	}, nil
}

// apiResponse is Kraken's response envelope.
type apiResponse[T any] struct {
	Error  []string `json:"error"`
	Result T        `json:"result"`
}

func (r *apiResponse[T]) err() error {
	if len(r.Error) == 0 {
		return nil
	}
	return fmt.Errorf("kraken error: %s", strings.Join(r.Error, "; "))
}

// nonce returns a strictly increasing nonce.
func (c *RestClient) nonce() string {
	c.nonceMu.Lock()
	defer c.nonceMu.Unlock()
	n := time.Now().UnixMicro()
	if n <= c.lastNonce {
		n = c.lastNonce + 1
	}
	c.lastNonce = n
	return strconv.FormatInt(n, 10)
}

// sign creates the API-Sign header: HMAC-SHA512 of the URI path followed by
// SHA256(nonce + POST data), keyed with the decoded secret.
func (c *RestClient) sign(path, nonce, postData string) string {
	sum := sha256.Sum256([]byte(nonce + postData))
	mac := hmac.New(sha512.New, c.secret)
	mac.Write([]byte(path))
	mac.Write(sum[:])
	return base64.StdEncoding.EncodeToString(mac.Sum(nil))
}

// public executes a GET against a public endpoint and decodes the result into out.
func public[T any](ctx context.Context, c *RestClient, method string, query url.Values, out *T) error {
	path := publicPrefix + "/" + method
	envelope := &apiResponse[T]{}
	build := func() *resty.Request {
		return c.client.R().SetContext(ctx).SetQueryParamsFromValues(query).SetResult(envelope)
	}
	if _, err := c.doRequest(ctx, http.MethodGet, path, build, maxRetries); err != nil {
		return err
	}
	if err := envelope.err(); err != nil {
		return err
	}
	*out = envelope.Result
	return nil
}

// private executes a signed POST. Each attempt is signed with a fresh nonce.
func private[T any](ctx context.Context, c *RestClient, method string, form url.Values, attempts int, out *T) error {
	path := privatePrefix + "/" + method
	envelope := &apiResponse[T]{}
	build := func() *resty.Request {
		values := url.Values{}
		for k, v := range form {
			values[k] = v
		}
		nonce := c.nonce()
		values.Set("nonce", nonce)
		body := values.Encode()
		return c.client.R().
			SetContext(ctx).
			SetHeader("API-Key", c.apiKey).
			SetHeader("API-Sign", c.sign(path, nonce, body)).
			SetHeader("Content-Type", "application/x-www-form-urlencoded").
			SetBody(body).
			SetResult(envelope)
	}
	if _, err := c.doRequest(ctx, http.MethodPost, path, build, attempts); err != nil {
		return err
	}
	if err := envelope.err(); err != nil {
		return err
	}
	*out = envelope.Result
	return nil
}

// doRequest handles the actual request execution with rate limiting and retry logic.
func (c *RestClient) doRequest(ctx context.Context, method, path string, build func() *resty.Request, attempts int) (*resty.Response, error) {
	var resp *resty.Response
	var err error

	for i := 0; i < attempts; i++ {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, fmt.Errorf("rate limiter wait failed: %w", err)
		}

		c.logger.Debug("Executing request", zap.String("method", method), zap.String("path", path))
		resp, err = build().Execute(method, path)

		if err == nil && !resp.IsError() {
			return resp, nil
		}

		shouldRetry := false
		var retryAfter time.Duration

		if resp != nil && resp.StatusCode() != 0 {
			statusCode := resp.StatusCode()
			if statusCode == http.StatusTooManyRequests {
				shouldRetry = true
				if seconds, convErr := strconv.Atoi(resp.Header().Get("Retry-After")); convErr == nil {
					retryAfter = time.Duration(seconds) * time.Second
				}
			} else if statusCode >= 500 {
				shouldRetry = true
			}
			if !shouldRetry {
				return nil, fmt.Errorf("request failed with status %s: %s", resp.Status(), resp.String())
			}
		} else {
			// Network or other client-side errors
			shouldRetry = true
		}

		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		if i == attempts-1 {
			break
		}

		if retryAfter == 0 {
			// Exponential backoff: 1s, 2s, 4s
			retryAfter = time.Duration(math.Pow(2, float64(i))) * c.retryWait
		}

		c.logger.Warn("Request failed, retrying...",
			zap.String("path", path),
			zap.Int("attempt", i+1),
			zap.Duration("retry_after", retryAfter),
			zap.Error(err),
		)

		select {
		case <-time.After(retryAfter):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	if err == nil && resp != nil {
		err = fmt.Errorf("status %s", resp.Status())
	}
	return nil, fmt.Errorf("request failed after %d attempts: %w", attempts, err)
}
