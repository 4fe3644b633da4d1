package app

import (
	"context"
	"fmt"

	"upbot/internal/admission"
	"upbot/internal/command"
	"upbot/internal/config"
	"upbot/internal/gateway"
	"upbot/internal/gateway/notifier"
	"upbot/internal/history"
	"upbot/internal/metrics"
	"upbot/internal/pkg/circuit"
	"upbot/internal/position"
	"upbot/internal/trader"
	livehttp "upbot/internal/transport/http/live"
	"upbot/internal/trend"
)

// AppBuilder assembles an App. The function fields are seams for tests.
type AppBuilder struct {
	cfg *config.Config

	credentialsFn func(envFile string) (config.Credentials, error)
	venueFn       func(*config.Config, config.Credentials) (gateway.Venue, error)
	liveHTTPFn    func(livehttp.ServerConfig) (*livehttp.Server, error)
	notifierFn    func(config.Credentials) notifier.TextNotifier
}

type AppBuilderOption func(*AppBuilder)

func NewAppBuilder(cfg *config.Config, opts ...AppBuilderOption) *AppBuilder {
	b := &AppBuilder{
		cfg:           cfg,
		credentialsFn: config.LoadCredentials,
		venueFn:       gateway.NewExchangeFromConfig,
		liveHTTPFn:    livehttp.NewServer,
		notifierFn: func(c config.Credentials) notifier.TextNotifier {
			return notifier.NewTelegram(c.TelegramToken, c.TelegramChatID)
		},
	}
	for _, opt := range opts {
		if opt != nil {
			opt(b)
		}
	}
	return b
}

// WithVenue replaces exchange construction.
func WithVenue(fn func(*config.Config, config.Credentials) (gateway.Venue, error)) AppBuilderOption {
	return func(b *AppBuilder) {
		if fn != nil {
			b.venueFn = fn
		}
	}
}

// WithNotifier replaces the Telegram sink.
func WithNotifier(fn func(config.Credentials) notifier.TextNotifier) AppBuilderOption {
	return func(b *AppBuilder) {
		if fn != nil {
			b.notifierFn = fn
		}
	}
}

func WithCredentials(fn func(string) (config.Credentials, error)) AppBuilderOption {
	return func(b *AppBuilder) {
		if fn != nil {
			b.credentialsFn = fn
		}
	}
}

func (b *AppBuilder) Build(ctx context.Context) (*App, error) {
	if b == nil || b.cfg == nil {
		return nil, fmt.Errorf("nil config")
	}
	cfg := b.cfg

	creds, err := b.credentialsFn(cfg.App.EnvFile)
	if err != nil && !cfg.Exchange.Paper() {
		return nil, err
	}
	venue, err := b.venueFn(cfg, creds)
	if err != nil {
		return nil, fmt.Errorf("exchange: %w", err)
	}

	m := metrics.New()
	if venue.Client != nil {
		m.SetBreaker(venue.Client.Name(), int(venue.Client.Breaker().State()))
		venue.Client.Breaker().OnStateChange(func(name string, from, to circuit.State) {
			log.Warnf("%s breaker %s -> %s", name, from, to)
			m.SetBreaker(name, int(to))
		})
	}

	watcher, err := config.NewStrategyWatcher(cfg.Storage.StrategyPath)
	if err != nil {
		return nil, err
	}
	watcher.Subscribe(func(snap config.StrategySnapshot) {
		log.Infof("strategy v%d loaded: %s", snap.Version, snap.Strategy)
	})

	states, err := position.NewFileStore(cfg.Storage.StatePath)
	if err != nil {
		return nil, err
	}
	hist, err := history.Open(cfg.Storage.HistoryDBPath)
	if err != nil {
		return nil, err
	}
	mailbox := command.NewMailbox(cfg.Storage.CommandPath)

	var notify *notifier.Queue
	var sink trader.Notifier
	if cfg.App.Notify {
		if creds.HasTelegram() {
			notify = notifier.NewQueue(b.notifierFn(creds), 0)
			sink = notify
		} else {
			log.Warnf("notify enabled but TELEGRAM_BOT_TOKEN/TELEGRAM_CHAT_ID are not set")
		}
	}

	ctrl, err := trader.New(trader.Deps{
		Exchange: venue.Exchange,
		Scanner:  trend.NewScanner(venue.Exchange, watcher.Current().ScanDelay()),
		Filter:   admission.New(venue.Exchange),
		States:   states,
		History:  hist,
		Mailbox:  mailbox,
		Strategy: watcher,
		Metrics:  m,
		Notifier: sink,
	}, trader.OptionsFromConfig(cfg))
	if err != nil {
		_ = hist.Close()
		return nil, err
	}

	var srv *livehttp.Server
	if cfg.App.HTTPEnabled {
		srv, err = b.liveHTTPFn(livehttp.ServerConfig{
			Addr:     cfg.App.HTTPAddr,
			State:    ctrl,
			History:  hist,
			Strategy: watcher,
			Commands: mailbox,
			Metrics:  m.Handler(),
		})
		if err != nil {
			_ = hist.Close()
			return nil, fmt.Errorf("live http: %w", err)
		}
	}

	return &App{
		cfg:      cfg,
		trader:   ctrl,
		watcher:  watcher,
		history:  hist,
		notify:   notify,
		stream:   venue.Stream,
		liveHTTP: srv,
		Summary:  newStartupSummary(cfg, venue.Exchange.Name(), watcher.Current()),
	}, nil
}
