package correios

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/BearBump/ShipBox/internal/integrations/carrier"
)

const maxBodyBytes = 4 << 20

// Client implements carrier.Client against the CWS API.
type Client struct {
	baseURL      string
	timeout      time.Duration
	labelTimeout time.Duration
	maxRetries   uint64
	retryBackoff time.Duration
	batchLimit   int

	auth  *Authenticator
	httpc *http.Client
	log   *zap.Logger
	obs   Observer
}

var _ carrier.Client = (*Client)(nil)

func New(cfg Config, auth *Authenticator, httpc *http.Client, log *zap.Logger) *Client {
	cfg = cfg.withDefaults()
	if httpc == nil {
		httpc = &http.Client{}
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Client{
		baseURL:      strings.TrimRight(cfg.BaseURL, "/"),
		timeout:      cfg.Timeout,
		labelTimeout: cfg.LabelTimeout,
		maxRetries:   cfg.MaxRetries,
		retryBackoff: cfg.RetryBackoff,
		batchLimit:   cfg.BatchConcurrency,
		auth:         auth,
		httpc:        httpc,
		log:          log,
	}
}

func (c *Client) WithObserver(o Observer) *Client {
	c.obs = o
	return c
}

type request struct {
	method string
	path   string
	query  url.Values
	body   any
}

// call performs one authorized exchange. A 401 invalidates the token and the
// request is repeated exactly once with a fresh one.
func (c *Client) call(ctx context.Context, op string, timeout time.Duration, r request, out any) error {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	token, err := c.auth.Token(ctx)
	if err != nil {
		return err
	}
	status, raw, err := c.send(ctx, op, token, r)
	if err != nil {
		return err
	}
	if status == http.StatusUnauthorized {
		c.log.Info("carrier returned 401, renewing token", zap.String("op", op))
		c.auth.Invalidate(ctx, token)
		if token, err = c.auth.Token(ctx); err != nil {
			return err
		}
		if status, raw, err = c.send(ctx, op, token, r); err != nil {
			return err
		}
		if status == http.StatusUnauthorized {
			return &carrier.Error{
				Op:         op,
				StatusCode: status,
				Kind:       carrier.ErrAuth,
				Message:    "unauthorized after token renewal",
			}
		}
	}
	if status/100 != 2 {
		return carrier.FromStatus(op, status, errorMessage(raw))
	}
	if out == nil || len(bytes.TrimSpace(raw)) == 0 {
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return errors.Wrapf(err, "%s: decode response", op)
	}
	return nil
}

func (c *Client) send(ctx context.Context, op, token string, r request) (int, []byte, error) {
	u := c.baseURL + r.path
	if len(r.query) > 0 {
		u += "?" + r.query.Encode()
	}
	var body io.Reader
	if r.body != nil {
		b, err := json.Marshal(r.body)
		if err != nil {
			return 0, nil, errors.Wrapf(err, "%s: marshal request", op)
		}
		body = bytes.NewReader(b)
	}
	req, err := http.NewRequestWithContext(ctx, r.method, u, body)
	if err != nil {
		return 0, nil, errors.Wrapf(err, "%s: new request", op)
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	start := time.Now()
	resp, err := c.httpc.Do(req)
	if err != nil {
		observe(c.obs, op, "network", start)
		return 0, nil, carrier.NetworkError(op, err)
	}
	defer resp.Body.Close()
	observe(c.obs, op, statusOutcome(resp.StatusCode), start)

	raw, err := readBody(resp)
	if err != nil {
		return 0, nil, carrier.NetworkError(op, err)
	}
	return resp.StatusCode, raw, nil
}

// retry repeats an idempotent call on transient failures.
func (c *Client) retry(ctx context.Context, op string, fn func() error) error {
	eb := backoff.NewExponentialBackOff()
	eb.InitialInterval = c.retryBackoff
	eb.MaxInterval = 8 * c.retryBackoff
	eb.MaxElapsedTime = 0

	attempt := 0
	return backoff.Retry(func() error {
		attempt++
		err := fn()
		if err == nil {
			return nil
		}
		if !carrier.IsRetryable(err) {
			return backoff.Permanent(err)
		}
		c.log.Warn("carrier call failed, retrying",
			zap.String("op", op), zap.Int("attempt", attempt), zap.Error(err))
		return err
	}, backoff.WithContext(backoff.WithMaxRetries(eb, c.maxRetries), ctx))
}

func readBody(resp *http.Response) ([]byte, error) {
	return io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
}

// errorMessage extracts the carrier message from an error body. The carrier
// uses several shapes.
func errorMessage(raw []byte) string {
	var body struct {
		Msgs     []string `json:"msgs"`
		Message  string   `json:"message"`
		Mensagem string   `json:"mensagem"`
		Causa    string   `json:"causa"`
	}
	if err := json.Unmarshal(raw, &body); err == nil {
		parts := append([]string(nil), body.Msgs...)
		for _, s := range []string{body.Message, body.Mensagem, body.Causa} {
			if s != "" {
				parts = append(parts, s)
			}
		}
		if len(parts) > 0 {
			return strings.Join(parts, "; ")
		}
	}
	s := strings.TrimSpace(string(raw))
	if len(s) > 300 {
		s = s[:300]
	}
	return s
}

func statusOutcome(status int) string {
	return strconv.Itoa(status)
}

func observe(o Observer, op, outcome string, start time.Time) {
	if o != nil {
		o.ObserveCarrierCall(op, outcome, time.Since(start))
	}
}
