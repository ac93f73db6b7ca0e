package correios

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/pkg/errors"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/BearBump/ShipBox/internal/integrations/carrier"
)

type TokenState string

const (
	TokenStateNone    TokenState = "NO_TOKEN"
	TokenStateValid   TokenState = "VALID"
	TokenStateExpired TokenState = "EXPIRED"
)

const (
	pathTokenPostageCard = "/token/v1/autentica/cartaopostagem"
	pathTokenDirect      = "/token/v1/autentica"

	// carrier timestamps without offset are Brasília time
	defaultZoneOffset = "-03:00"
)

// Authenticator owns the carrier bearer token. Concurrent callers share a
// single in-flight authentication.
type Authenticator struct {
	baseURL      string
	clientID     string
	clientSecret string
	postageCard  string
	timeout      time.Duration

	httpc *http.Client
	store TokenStore
	log   *zap.Logger
	obs   Observer
	now   func() time.Time

	mu     sync.Mutex
	cached *Token
	flight singleflight.Group
}

func NewAuthenticator(cfg Config, store TokenStore, httpc *http.Client, log *zap.Logger) *Authenticator {
	cfg = cfg.withDefaults()
	if store == nil {
		store = NewMemoryTokenStore()
	}
	if httpc == nil {
		httpc = &http.Client{}
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Authenticator{
		baseURL:      strings.TrimRight(cfg.BaseURL, "/"),
		clientID:     cfg.ClientID,
		clientSecret: cfg.ClientSecret,
		postageCard:  cfg.PostageCard,
		timeout:      cfg.Timeout,
		httpc:        httpc,
		store:        store,
		log:          log,
		now:          time.Now,
	}
}

func (a *Authenticator) WithObserver(o Observer) *Authenticator {
	a.obs = o
	return a
}

func (a *Authenticator) State() TokenState {
	a.mu.Lock()
	defer a.mu.Unlock()
	switch {
	case a.cached == nil:
		return TokenStateNone
	case a.cached.validAt(a.now()):
		return TokenStateValid
	default:
		return TokenStateExpired
	}
}

// Token returns a bearer value valid for at least RenewalMargin.
func (a *Authenticator) Token(ctx context.Context) (string, error) {
	a.mu.Lock()
	tok := a.cached
	a.mu.Unlock()
	if tok.validAt(a.now()) {
		return tok.Value, nil
	}

	v, err, _ := a.flight.Do("token", func() (any, error) {
		// the flight outlives a single caller's cancellation
		fctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), a.timeout)
		defer cancel()

		if stored, err := a.store.Load(fctx); err != nil {
			a.log.Warn("load carrier token", zap.Error(err))
		} else if stored.validAt(a.now()) {
			a.setCached(stored)
			return stored, nil
		}

		fresh, err := a.authenticate(fctx)
		if err != nil {
			return nil, err
		}
		a.setCached(fresh)
		if err := a.store.Save(fctx, fresh); err != nil {
			a.log.Warn("save carrier token", zap.Error(err))
		}
		return fresh, nil
	})
	if err != nil {
		return "", err
	}
	return v.(*Token).Value, nil
}

// Invalidate drops the token if it is still the given value. A token renewed
// by another caller in the meantime is kept.
func (a *Authenticator) Invalidate(ctx context.Context, value string) {
	a.mu.Lock()
	if a.cached != nil && a.cached.Value == value {
		a.cached = nil
	}
	a.mu.Unlock()

	stored, err := a.store.Load(ctx)
	if err == nil && stored != nil && stored.Value == value {
		if err := a.store.Clear(ctx); err != nil {
			a.log.Warn("clear carrier token", zap.Error(err))
		}
	}
}

func (a *Authenticator) setCached(t *Token) {
	a.mu.Lock()
	a.cached = t
	a.mu.Unlock()
}

type authStrategy struct {
	name string
	path string
	body any
}

func (a *Authenticator) strategies() []authStrategy {
	var out []authStrategy
	if a.postageCard != "" {
		out = append(out, authStrategy{
			name: "postage-card",
			path: pathTokenPostageCard,
			body: map[string]string{"numero": a.postageCard},
		})
	}
	return append(out, authStrategy{name: "direct", path: pathTokenDirect})
}

func (a *Authenticator) authenticate(ctx context.Context) (*Token, error) {
	var lastErr error
	for _, s := range a.strategies() {
		tok, err := a.requestToken(ctx, s)
		if err == nil {
			a.log.Info("carrier token acquired",
				zap.String("strategy", s.name),
				zap.Time("expires_at", tok.ExpiresAt))
			return tok, nil
		}
		a.log.Warn("carrier auth strategy failed", zap.String("strategy", s.name), zap.Error(err))
		lastErr = err
	}
	return nil, &carrier.Error{
		Op:        "authenticate",
		Kind:      carrier.ErrAuth,
		Retryable: carrier.IsRetryable(lastErr),
		Cause:     lastErr,
	}
}

type tokenResponse struct {
	Token      string `json:"token"`
	Emissao    string `json:"emissao"`
	ExpiraEm   string `json:"expiraEm"`
	ZoneOffset string `json:"zoneOffset"`
}

func (a *Authenticator) requestToken(ctx context.Context, s authStrategy) (*Token, error) {
	var body io.Reader
	if s.body != nil {
		b, err := json.Marshal(s.body)
		if err != nil {
			return nil, errors.Wrap(err, "marshal auth body")
		}
		body = bytes.NewReader(b)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.baseURL+s.path, body)
	if err != nil {
		return nil, errors.Wrap(err, "new request")
	}
	req.SetBasicAuth(a.clientID, a.clientSecret)
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	start := time.Now()
	resp, err := a.httpc.Do(req)
	if err != nil {
		observe(a.obs, "authenticate", "network", start)
		return nil, carrier.NetworkError("authenticate", err)
	}
	defer resp.Body.Close()
	observe(a.obs, "authenticate", statusOutcome(resp.StatusCode), start)

	raw, err := readBody(resp)
	if err != nil {
		return nil, carrier.NetworkError("authenticate", err)
	}
	if resp.StatusCode/100 != 2 {
		return nil, carrier.FromStatus("authenticate", resp.StatusCode, errorMessage(raw))
	}

	var tr tokenResponse
	if err := json.Unmarshal(raw, &tr); err != nil {
		return nil, errors.Wrap(err, "decode token response")
	}
	if tr.Token == "" {
		return nil, &carrier.Error{Op: "authenticate", Kind: carrier.ErrAuth, Message: "empty token in response"}
	}

	now := a.now()
	tok := &Token{Value: tr.Token, IssuedAt: now, ExpiresAt: now.Add(time.Hour)}
	if t, ok := parseCarrierTime(tr.Emissao, tr.ZoneOffset); ok {
		tok.IssuedAt = t
	}
	if t, ok := parseCarrierTime(tr.ExpiraEm, tr.ZoneOffset); ok {
		tok.ExpiresAt = t
	}
	return tok, nil
}

// parseCarrierTime reads "2006-01-02T15:04:05" in the given "-03:00" style
// offset, or a full RFC 3339 value.
func parseCarrierTime(s, offset string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, false
	}
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t.UTC(), true
	}
	if offset == "" {
		offset = defaultZoneOffset
	}
	for _, layout := range []string{"2006-01-02T15:04:05-07:00", "2006-01-02T15:04:05.000-07:00"} {
		if t, err := time.Parse(layout, s+offset); err == nil {
			return t.UTC(), true
		}
	}
	return time.Time{}, false
}
