package publisher

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/StrathCole/pyth-publisher/pkg/agent"
	"github.com/StrathCole/pyth-publisher/pkg/aggregator"
	"github.com/StrathCole/pyth-publisher/pkg/metrics"
	"github.com/StrathCole/pyth-publisher/pkg/rpc"
	"github.com/StrathCole/pyth-publisher/pkg/sources"
)

const (
	defaultResubscribeDelay = time.Second
	defaultRetryAttempts    = 5
	defaultRetryDelay       = 500 * time.Millisecond
)

// Session is the part of the RPC client the publisher drives.
type Session interface {
	agent.Requester
	SetHandler(h rpc.Handler)
	Start(ctx context.Context) error
	Stop()
	Reconnect()
	IsConnected() bool
}

// Config configures a Publisher.
type Config struct {
	// Status is sent with every update_price. Defaults to "trading".
	Status string
	// ResubscribeDelay is waited before dropping a session whose discovery failed.
	ResubscribeDelay time.Duration
	// RetryAttempts bounds each discovery and subscribe request.
	RetryAttempts int
	RetryDelay    time.Duration
	Logger        zerolog.Logger
}

// Publisher answers notify_price_sched with the mixed price of the
// subscribed product.
type Publisher struct {
	session Session
	agent   *agent.Client
	mixer   *aggregator.Mixer
	sources []sources.Source
	symbols map[string]struct{}
	logger  zerolog.Logger

	status           string
	resubscribeDelay time.Duration
	retryAttempts    int
	retryDelay       time.Duration

	mu   sync.RWMutex
	subs map[int64]agent.Subscription
}

// New creates a publisher and installs it as the session handler.
func New(session Session, mixer *aggregator.Mixer, srcs []sources.Source, cfg Config) (*Publisher, error) {
	if len(srcs) == 0 {
		return nil, ErrNoSources
	}
	if cfg.Status == "" {
		cfg.Status = agent.StatusTrading
	}
	if cfg.ResubscribeDelay <= 0 {
		cfg.ResubscribeDelay = defaultResubscribeDelay
	}
	if cfg.RetryAttempts <= 0 {
		cfg.RetryAttempts = defaultRetryAttempts
	}
	if cfg.RetryDelay <= 0 {
		cfg.RetryDelay = defaultRetryDelay
	}

	symbols := make(map[string]struct{})
	for _, s := range mixer.Symbols() {
		symbols[s] = struct{}{}
	}

	p := &Publisher{
		session:          session,
		agent:            agent.NewClient(session),
		mixer:            mixer,
		sources:          srcs,
		symbols:          symbols,
		logger:           cfg.Logger.With().Str("component", "publisher").Logger(),
		status:           cfg.Status,
		resubscribeDelay: cfg.ResubscribeDelay,
		retryAttempts:    cfg.RetryAttempts,
		retryDelay:       cfg.RetryDelay,
		subs:             make(map[int64]agent.Subscription),
	}
	session.SetHandler(p)
	return p, nil
}

// Init performs the first blocking fetch of every source concurrently.
func (p *Publisher) Init(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)
	for _, src := range p.sources {
		src := src
		g.Go(func() error {
			if err := src.Initialize(gctx); err != nil {
				return fmt.Errorf("initialize %s: %w", src.Name(), err)
			}
			p.logger.Info().
				Str("source", src.Name()).
				Strs("symbols", src.Symbols()).
				Dur("interval", src.UpdateInterval()).
				Msg("Source initialized")
			return nil
		})
	}
	return g.Wait()
}

// Start begins scheduled source updates and then opens the agent session.
func (p *Publisher) Start(ctx context.Context) error {
	for _, src := range p.sources {
		if err := src.Start(ctx); err != nil {
			return fmt.Errorf("start %s: %w", src.Name(), err)
		}
	}
	return p.session.Start(ctx)
}

// Stop halts every source and closes the session last. No publish happens
// after Stop returns.
func (p *Publisher) Stop() {
	for _, src := range p.sources {
		if err := src.Stop(); err != nil {
			p.logger.Warn().Err(err).Str("source", src.Name()).Msg("Failed to stop source")
		}
	}
	p.session.Stop()
	p.replaceSubscriptions(map[int64]agent.Subscription{})
	p.logger.Info().Msg("Publisher stopped")
}

// Connected reports whether the agent session is up.
func (p *Publisher) Connected() bool {
	return p.session.IsConnected()
}

// Subscriptions returns the subscriptions of the current session, ordered by id.
func (p *Publisher) Subscriptions() []agent.Subscription {
	p.mu.RLock()
	out := make([]agent.Subscription, 0, len(p.subs))
	for _, s := range p.subs {
		out = append(out, s)
	}
	p.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// OnConnected rebuilds the subscription map from scratch. Ids from a previous
// session are never reused, and a rebuild that outlives its connection is
// discarded.
func (p *Publisher) OnConnected(ctx context.Context) {
	p.replaceSubscriptions(map[int64]agent.Subscription{})

	subs, err := p.subscribe(ctx)
	if err != nil {
		if ctx.Err() != nil {
			return
		}
		p.logger.Error().Err(err).Dur("delay", p.resubscribeDelay).Msg("Subscription failed, reconnecting")

		timer := time.NewTimer(p.resubscribeDelay)
		defer timer.Stop()
		select {
		case <-ctx.Done():
			return
		case <-timer.C:
		}
		p.session.Reconnect()
		return
	}

	if !p.installSubscriptions(ctx, subs) {
		p.logger.Debug().Int("subscriptions", len(subs)).Msg("Connection closed during subscription, discarding")
		return
	}
	p.logger.Info().Int("subscriptions", len(subs)).Msg("Subscribed to price schedules")
}

// OnNotification publishes the mixed price for a due subscription.
func (p *Publisher) OnNotification(ctx context.Context, n rpc.Notification) {
	if n.Method != agent.MethodNotifyPriceSched {
		p.logger.Debug().Str("method", n.Method).Msg("Ignoring notification")
		return
	}

	sched, err := agent.ParsePriceSchedNotification(n.Params)
	if err != nil {
		p.logger.Warn().Err(err).Msg("Malformed price schedule notification")
		return
	}

	p.mu.RLock()
	sub, ok := p.subs[sched.Subscription]
	p.mu.RUnlock()
	if !ok {
		p.logger.Warn().Int64("subscription", sched.Subscription).Msg("Notification for unknown subscription")
		return
	}

	if err := p.publish(ctx, sub.Product); err != nil {
		p.logger.Warn().Err(err).Str("symbol", sub.Product.Symbol).Msg("Failed to publish price")
	}
}

func (p *Publisher) publish(ctx context.Context, product agent.Product) error {
	res, err := p.mixer.Mix(product.Symbol)
	if err != nil {
		metrics.RecordPublish(product.Symbol, "mix_error")
		return err
	}
	metrics.RecordMixedPrice(product.Symbol, res.Price.InexactFloat64())

	scaled, err := res.Scale(product.Exponent)
	if err != nil {
		metrics.RecordPublish(product.Symbol, "scale_error")
		return err
	}

	if err := p.agent.UpdatePrice(ctx, product.PriceAccount, scaled.Price, scaled.Conf, p.status); err != nil {
		metrics.RecordPublish(product.Symbol, "error")
		return fmt.Errorf("update_price %s: %w", product.PriceAccount, err)
	}
	metrics.RecordPublish(product.Symbol, "ok")

	p.logger.Debug().
		Str("symbol", product.Symbol).
		Str("price", res.Price.String()).
		Str("confidence", res.Confidence.String()).
		Int64("wire_price", scaled.Price).
		Uint64("wire_conf", scaled.Conf).
		Int32("exponent", product.Exponent).
		Msg("Published price")
	return nil
}

// subscribe discovers products and subscribes every configured symbol.
func (p *Publisher) subscribe(ctx context.Context) (map[int64]agent.Subscription, error) {
	var products []agent.Product
	err := p.retry(ctx, agent.MethodGetProductList, func() error {
		var err error
		products, err = p.agent.GetProductList(ctx)
		return err
	})
	if err != nil {
		return nil, err
	}

	subs := make(map[int64]agent.Subscription)
	seen := make(map[string]bool)
	for _, product := range products {
		if _, ok := p.symbols[product.Symbol]; !ok || seen[product.Symbol] {
			continue
		}
		if err := product.Check(); err != nil {
			p.logger.Warn().Err(err).Str("symbol", product.Symbol).Msg("Skipping product")
			continue
		}
		seen[product.Symbol] = true

		var id int64
		err := p.retry(ctx, agent.MethodSubscribePriceSched, func() error {
			var err error
			id, err = p.agent.SubscribePriceSched(ctx, product.PriceAccount)
			return err
		})
		if err != nil {
			return nil, fmt.Errorf("%w: %s: %w", ErrSubscribe, product.Symbol, err)
		}
		subs[id] = agent.Subscription{ID: id, Product: product}

		p.logger.Debug().
			Int64("subscription", id).
			Str("symbol", product.Symbol).
			Str("price_account", product.PriceAccount).
			Int32("exponent", product.Exponent).
			Msg("Subscribed")
	}

	for symbol := range p.symbols {
		if !seen[symbol] {
			p.logger.Warn().Str("symbol", symbol).Msg("Configured symbol not offered by agent")
		}
	}
	if len(subs) == 0 {
		return nil, ErrNoProducts
	}
	return subs, nil
}

func (p *Publisher) retry(ctx context.Context, method string, fn func() error) error {
	return sources.Retry(ctx, p.retryAttempts, p.retryDelay, func(attempt int, err error) {
		p.logger.Debug().Err(err).Str("method", method).Int("attempt", attempt).Msg("Retrying agent request")
	}, fn)
}

// installSubscriptions replaces the map only while ctx, the connection that
// issued the ids, is live. A connection is cancelled before its successor
// connects, so the check under mu orders a late rebuild before the next one.
func (p *Publisher) installSubscriptions(ctx context.Context, subs map[int64]agent.Subscription) bool {
	p.mu.Lock()
	if ctx.Err() != nil {
		p.mu.Unlock()
		return false
	}
	p.subs = subs
	p.mu.Unlock()
	metrics.RecordSubscriptions(len(subs))
	return true
}

func (p *Publisher) replaceSubscriptions(subs map[int64]agent.Subscription) {
	p.mu.Lock()
	p.subs = subs
	p.mu.Unlock()
	metrics.RecordSubscriptions(len(subs))
}
