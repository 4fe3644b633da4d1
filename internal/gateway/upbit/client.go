// Package upbit is the REST gateway to the Upbit spot exchange. Public
// quotation endpoints need no credentials; account endpoints are signed
// with a per-request JWT.
package upbit

import (
	"bytes"
	"context"
	"crypto/sha512"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/tidwall/gjson"
	"golang.org/x/time/rate"

	"upbot/internal/logger"
	"upbot/internal/pkg/circuit"
)

var log = logger.For("Upbit")

// APIError is a non-2xx reply. Name carries the venue's error code, e.g.
// "insufficient_funds_bid" or "order_not_found".
type APIError struct {
	Status  int
	Name    string
	Message string
}

func (e *APIError) Error() string {
	if e.Name == "" {
		return fmt.Sprintf("upbit: http %d: %s", e.Status, e.Message)
	}
	return fmt.Sprintf("upbit: http %d %s: %s", e.Status, e.Name, e.Message)
}

// Transient reports whether retrying later may succeed.
func (e *APIError) Transient() bool {
	return e.Status == http.StatusTooManyRequests || e.Status >= 500
}

type Options struct {
	BaseURL           string
	AccessKey         string
	SecretKey         string
	Timeout           time.Duration
	RequestsPerSecond float64
	Burst             int
	BreakerThreshold  int
	BreakerCooldown   time.Duration
	HTTPClient        *http.Client
}

type Client struct {
	baseURL    *url.URL
	httpClient *http.Client
	accessKey  string
	secretKey  string
	limiter    *rate.Limiter
	breaker    *circuit.Breaker
	stream     *TickerStream
	nowFn      func() time.Time
}

func New(opts Options) (*Client, error) {
	raw := strings.TrimSpace(opts.BaseURL)
	if raw == "" {
		raw = "https://api.upbit.com"
	}
	base, err := url.Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("parse upbit base url: %w", err)
	}
	httpClient := opts.HTTPClient
	if httpClient == nil {
		timeout := opts.Timeout
		if timeout <= 0 {
			timeout = 10 * time.Second
		}
		httpClient = &http.Client{Timeout: timeout}
	}
	rps := opts.RequestsPerSecond
	if rps <= 0 {
		rps = 8
	}
	burst := opts.Burst
	if burst <= 0 {
		burst = 1
	}
	threshold := opts.BreakerThreshold
	if threshold <= 0 {
		threshold = 5
	}
	cooldown := opts.BreakerCooldown
	if cooldown <= 0 {
		cooldown = 30 * time.Second
	}
	return &Client{
		baseURL:    base,
		httpClient: httpClient,
		accessKey:  opts.AccessKey,
		secretKey:  opts.SecretKey,
		limiter:    rate.NewLimiter(rate.Limit(rps), burst),
		breaker:    circuit.New("upbit", threshold, cooldown),
		nowFn:      time.Now,
	}, nil
}

func (c *Client) Name() string { return "upbit" }

// Breaker exposes the circuit breaker so callers can observe its state.
func (c *Client) Breaker() *circuit.Breaker { return c.breaker }

// AttachStream lets Prices answer from the ticker stream when it is fresh.
func (c *Client) AttachStream(s *TickerStream) { c.stream = s }

func (c *Client) HasCredentials() bool {
	return c.accessKey != "" && c.secretKey != ""
}

// token builds the signed bearer token. Parameters, when present, are hashed
// in their url-encoded form so the server can verify them.
func (c *Client) token(params url.Values) (string, error) {
	claims := jwt.MapClaims{
		"access_key": c.accessKey,
		"nonce":      uuid.NewString(),
	}
	if len(params) > 0 {
		sum := sha512.Sum512([]byte(params.Encode()))
		claims["query_hash"] = hex.EncodeToString(sum[:])
		claims["query_hash_alg"] = "SHA512"
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(c.secretKey))
}

type request struct {
	method string
	path   string
	params url.Values
	signed bool
}

// do sends one request through the limiter and breaker and returns the body.
func (c *Client) do(ctx context.Context, r request) ([]byte, error) {
	if r.signed && !c.HasCredentials() {
		return nil, errors.New("upbit: credentials required")
	}
	var body []byte
	err := c.breaker.Do(func() error {
		var err error
		body, err = c.send(ctx, r)
		return err
	}, countsAsFailure)
	return body, err
}

func countsAsFailure(err error) bool {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.Transient()
	}
	return !errors.Is(err, context.Canceled)
}

func (c *Client) send(ctx context.Context, r request) ([]byte, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}
	endpoint := c.baseURL.JoinPath(r.path)

	var reader io.Reader
	if r.method == http.MethodPost {
		payload := make(map[string]string, len(r.params))
		for k := range r.params {
			payload[k] = r.params.Get(k)
		}
		buf, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("encode request: %w", err)
		}
		reader = bytes.NewReader(buf)
	} else if len(r.params) > 0 {
		endpoint.RawQuery = r.params.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, r.method, endpoint.String(), reader)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if reader != nil {
		req.Header.Set("Content-Type", "application/json; charset=utf-8")
	}
	if r.signed {
		tok, err := c.token(r.params)
		if err != nil {
			return nil, fmt.Errorf("sign request: %w", err)
		}
		req.Header.Set("Authorization", "Bearer "+tok)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		var netErr net.Error
		if errors.As(err, &netErr) && netErr.Timeout() {
			return nil, fmt.Errorf("upbit %s %s timeout: %w", r.method, r.path, err)
		}
		return nil, fmt.Errorf("upbit %s %s: %w", r.method, r.path, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return nil, fmt.Errorf("read upbit response: %w", err)
	}
	if resp.StatusCode >= 300 {
		return nil, parseAPIError(resp.StatusCode, data)
	}
	log.Debugf("%s %s -> %d (%d bytes)", r.method, r.path, resp.StatusCode, len(data))
	return data, nil
}

func parseAPIError(status int, data []byte) *APIError {
	e := &APIError{Status: status}
	if gjson.ValidBytes(data) {
		res := gjson.ParseBytes(data)
		e.Name = res.Get("error.name").String()
		e.Message = res.Get("error.message").String()
	}
	if e.Message == "" {
		msg := strings.TrimSpace(string(data))
		if len(msg) > 512 {
			msg = msg[:512]
		}
		if msg == "" {
			msg = http.StatusText(status)
		}
		e.Message = msg
	}
	return e
}
