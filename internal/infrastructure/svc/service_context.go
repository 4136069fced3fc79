package svc

import (
	"context"
	"fmt"
	"strings"
	"time"

	redisclient "github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"

	"coinfeed/internal/application/port"
	"coinfeed/internal/application/service"
	"coinfeed/internal/application/usecase/monitor"
	"coinfeed/internal/domain"
	"coinfeed/internal/infrastructure/config"
	"coinfeed/internal/infrastructure/eventbus"
	"coinfeed/internal/infrastructure/exchange/upbit"
	"coinfeed/internal/infrastructure/httpclient"
	"coinfeed/internal/infrastructure/metrics"
	"coinfeed/internal/infrastructure/pricefeed"
	redisrelay "coinfeed/internal/infrastructure/storage/redis"
	"coinfeed/internal/infrastructure/websocket"
	"coinfeed/internal/interfaces/console"
)

// ServiceContext owns every long-lived component of the process.
type ServiceContext struct {
	Ctx    context.Context
	Config *config.Config

	http     *httpclient.Client
	rest     *upbit.RESTClient
	catalog  *service.CatalogService
	bus      *eventbus.Bus[domain.PriceQuote]
	quoteBus *eventbus.QuoteBus
	registry *pricefeed.Registry
	feed     *websocket.Manager
	relay    port.QuoteRelay
	metrics  *metrics.Server

	Sink port.Sink

	closerChain []func() error
}

// New wires the process from cfg. Redis is pinged when enabled; a failure
// there aborts startup.
func New(ctx context.Context, cfg *config.Config) (*ServiceContext, error) {
	sc := &ServiceContext{
		Ctx:         ctx,
		Config:      cfg,
		Sink:        console.NewSink(),
		closerChain: make([]func() error, 0),
	}

	if err := sc.initializeComponents(); err != nil {
		_ = sc.Close()
		return nil, err
	}
	return sc, nil
}

func (sc *ServiceContext) initializeComponents() error {
	cfg := sc.Config

	sc.http = httpclient.New(cfg.API.BaseURL,
		httpclient.WithTimeout(cfg.RequestTimeout()),
		httpclient.WithAuthToken(cfg.API.Token),
	)
	sc.rest = upbit.NewRESTClient(sc.http)
	sc.catalog = service.NewCatalogService(sc.rest, service.CatalogConfig{
		QuoteCurrencies: cfg.API.QuoteCurrencies,
		Quote:           cfg.Feed.Quote,
	})

	sc.bus = eventbus.New[domain.PriceQuote]()
	sc.quoteBus = eventbus.NewQuoteBus(sc.bus)

	sc.registry = pricefeed.NewRegistry()
	upbit.RegisterDecoders(sc.registry)

	if err := sc.initFeed(); err != nil {
		return err
	}

	if cfg.Redis.Enabled {
		if err := sc.initRedis(); err != nil {
			return fmt.Errorf("%w: %w", ErrRelayInitFailed, err)
		}
	} else {
		sc.relay = monitor.NewNoopRelay()
	}

	if cfg.Metrics.Enabled {
		metrics.Register()
		sc.metrics = metrics.NewServer(cfg.Metrics.Addr)
	}

	log.Info().
		Str("api", cfg.API.BaseURL).
		Str("ws", cfg.Feed.WsURL).
		Str("quote", cfg.Feed.Quote).
		Bool("redis", cfg.Redis.Enabled).
		Bool("metrics", cfg.Metrics.Enabled).
		Msg("✓ All components initialized")
	return nil
}

func (sc *ServiceContext) initFeed() error {
	fc := sc.Config.Feed
	if strings.TrimSpace(fc.WsURL) == "" {
		return ErrNoFeedsEnabled
	}
	maxRetries := fc.MaxRetries
	if maxRetries < 0 {
		maxRetries = 0
	}
	sc.feed = websocket.NewManager(websocket.Config{
		URL:        fc.WsURL,
		MaxRetries: maxRetries,
		BatchLimit: fc.BatchLimit,
		Ticket:     fc.Ticket,
		Type:       fc.Type,
		BaseDelay:  time.Duration(fc.BaseDelayMs) * time.Millisecond,
		MaxDelay:   time.Duration(fc.MaxDelayMs) * time.Millisecond,
	}, websocket.NewGorillaDialer(), sc.catalog)

	sc.closerChain = append(sc.closerChain, func() error {
		log.Info().Msg("closing price feed")
		return sc.feed.Close()
	})
	return nil
}

func (sc *ServiceContext) initRedis() error {
	rc := sc.Config.Redis
	rdb := redisclient.NewClient(&redisclient.Options{
		Addr:     rc.Addr,
		Password: rc.Password,
		DB:       rc.DB,
	})

	ctx, cancel := context.WithTimeout(sc.Ctx, 5*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return fmt.Errorf("redis ping failed: %w", err)
	}

	relay := redisrelay.New(rdb, redisrelay.Options{
		Prefix: rc.Prefix,
		TTL:    time.Duration(rc.TTLSeconds) * time.Second,
		Stream: rc.Stream,
	})
	sc.relay = relay
	sc.closerChain = append(sc.closerChain, func() error {
		log.Info().Msg("closing redis connection")
		return relay.Close()
	})

	log.Info().
		Str("addr", rc.Addr).
		Int("db", rc.DB).
		Msg("✓ Redis initialized")
	return nil
}

// BuildMonitorServiceDeps assembles the monitor usecase dependencies.
func (sc *ServiceContext) BuildMonitorServiceDeps() monitor.ServiceDeps {
	return monitor.ServiceDeps{
		Catalog:           sc.catalog,
		Feed:              sc.feed,
		Bus:               sc.quoteBus,
		Decoder:           sc.registry,
		Relay:             sc.relay,
		Sink:              sc.Sink,
		Format:            monitor.NewFormatter(sc.Config.App.Color),
		PrintEvery:        sc.Config.PrintEvery(),
		ReopenOnExhausted: sc.Config.Feed.ReopenOnExhausted,
		ReopenDelay:       time.Duration(sc.Config.Feed.ReopenDelaySec) * time.Second,
	}
}

func (sc *ServiceContext) Catalog() *service.CatalogService { return sc.catalog }

func (sc *ServiceContext) Feed() *websocket.Manager { return sc.feed }

// MetricsServer is nil unless metrics are enabled.
func (sc *ServiceContext) MetricsServer() *metrics.Server { return sc.metrics }

// Close releases resources in reverse order of creation.
func (sc *ServiceContext) Close() error {
	for i := len(sc.closerChain) - 1; i >= 0; i-- {
		if err := sc.closerChain[i](); err != nil {
			log.Error().Err(err).Msg("error closing resource")
		}
	}
	sc.closerChain = nil
	return nil
}
