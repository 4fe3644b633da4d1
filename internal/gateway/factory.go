// Package gateway builds the configured venue.
package gateway

import (
	"fmt"
	"strings"

	"upbot/internal/config"
	"upbot/internal/gateway/exchange"
	"upbot/internal/gateway/paper"
	"upbot/internal/gateway/upbit"
)

// Venue is the exchange the controller trades on plus the Upbit client that
// backs its market data, kept for breaker metrics.
type Venue struct {
	Exchange exchange.Exchange
	Client   *upbit.Client
	// Stream is nil when websocket prices are disabled; the caller runs it.
	Stream *upbit.TickerStream
}

// NewExchangeFromConfig returns the live Upbit client, or a paper exchange
// fed by Upbit public data. Live trading without credentials is an error.
func NewExchangeFromConfig(cfg *config.Config, creds config.Credentials) (Venue, error) {
	if cfg == nil {
		return Venue{}, fmt.Errorf("nil config")
	}
	ex := cfg.Exchange
	name := strings.ToLower(strings.TrimSpace(ex.Name))
	if name == "upbit" && creds.Empty() {
		return Venue{}, config.ErrMissingCredentials
	}
	client, err := upbit.New(upbit.Options{
		BaseURL:           ex.BaseURL,
		AccessKey:         creds.AccessKey,
		SecretKey:         creds.SecretKey,
		Timeout:           ex.Timeout(),
		RequestsPerSecond: ex.RequestsPerSecond,
		Burst:             ex.Burst,
		BreakerThreshold:  ex.BreakerThreshold,
		BreakerCooldown:   ex.BreakerCooldown(),
	})
	if err != nil {
		return Venue{}, err
	}
	var stream *upbit.TickerStream
	if ex.Stream {
		stream = upbit.NewTickerStream(ex.StreamURL, ex.StreamMaxAge())
		client.AttachStream(stream)
	}
	switch name {
	case "upbit":
		return Venue{Exchange: client, Client: client, Stream: stream}, nil
	case "paper":
		return Venue{
			Exchange: paper.New(paper.Options{Quote: ex.Quote, Balance: ex.PaperBalance, Data: client}),
			Client:   client,
			Stream:   stream,
		}, nil
	default:
		return Venue{}, fmt.Errorf("unsupported exchange: %s", ex.Name)
	}
}
