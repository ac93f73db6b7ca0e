// Package correios is the Correios CWS REST integration: bearer token
// lifecycle, labels (pre-posting), tracking (SRO), CEP lookup, price and
// delivery time.
package correios

import "time"

type Environment string

const (
	Production Environment = "production"
	Staging    Environment = "staging"
)

func (e Environment) BaseURL() string {
	if e == Production {
		return "https://api.correios.com.br"
	}
	return "https://apihom.correios.com.br"
}

type Config struct {
	Environment Environment
	// BaseURL overrides the environment URL.
	BaseURL      string
	ClientID     string
	ClientSecret string
	PostageCard  string

	Timeout      time.Duration
	LabelTimeout time.Duration
	// MaxRetries applies to idempotent calls only.
	MaxRetries   uint64
	RetryBackoff time.Duration
	// BatchConcurrency caps tracking fan-out; 0 means one goroutine per code.
	BatchConcurrency int
}

func (c Config) withDefaults() Config {
	if c.BaseURL == "" {
		c.BaseURL = c.Environment.BaseURL()
	}
	if c.Timeout <= 0 {
		c.Timeout = 30 * time.Second
	}
	if c.LabelTimeout <= 0 {
		c.LabelTimeout = 60 * time.Second
	}
	if c.RetryBackoff <= 0 {
		c.RetryBackoff = 250 * time.Millisecond
	}
	return c
}

// Observer receives one sample per HTTP exchange with the carrier.
type Observer interface {
	ObserveCarrierCall(op, outcome string, elapsed time.Duration)
}
