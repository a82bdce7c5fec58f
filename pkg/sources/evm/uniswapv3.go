package evm

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/ethclient"
	"golang.org/x/sync/errgroup"

	"github.com/StrathCole/pyth-publisher/pkg/logging"
	"github.com/StrathCole/pyth-publisher/pkg/sources"
)

const (
	defaultPoolUpdateInterval = 60 * time.Second
	defaultTimeInterval       = 300
)

var validFees = map[uint32]bool{100: true, 500: true, 3000: true, 10000: true}

// TokenConfig describes one pool token.
type TokenConfig struct {
	Address  string `yaml:"address"`
	Decimals uint8  `yaml:"decimals"`
	Symbol   string `yaml:"symbol"`
}

// PoolConfig configures the oracle for one symbol.
type PoolConfig struct {
	RPCURL         string          `yaml:"rpc_url"`
	Address        string          `yaml:"address"`
	Fee            uint32          `yaml:"fee"`
	Token0         TokenConfig     `yaml:"token0"`
	Token1         TokenConfig     `yaml:"token1"`
	Invert         bool            `yaml:"invert"`
	TimeInterval   uint32          `yaml:"time_interval"`
	UpdateInterval sources.Seconds `yaml:"update_interval"`
	ConvertSource  string          `yaml:"convert_source"`
	ConvertSymbol  string          `yaml:"convert_symbol"`
}

// UniswapV3Config is the config block of the uniswap v3 oracle source.
type UniswapV3Config struct {
	RPCURL string                `yaml:"rpc_url"`
	Pools  map[string]PoolConfig `yaml:"pools"`
}

// readerFactory opens a PoolReader for a pool on a chain endpoint.
type readerFactory func(ctx context.Context, rpcURL string, pool common.Address) (PoolReader, error)

type poolEntry struct {
	symbol     string
	cfg        PoolConfig
	interval   time.Duration
	oracle     *Oracle
	conversion *sources.Conversion
}

// UniswapV3Source caches the TWAP of each configured pool. Every pool polls
// on its own interval-aligned schedule.
type UniswapV3Source struct {
	*sources.BaseSource

	pools     []*poolEntry
	newReader readerFactory
	clientsMu sync.Mutex
	clients   map[string]*ethclient.Client
}

// NewUniswapV3Source creates a new on-chain oracle source
func NewUniswapV3Source(name string, config map[string]interface{}, logger *logging.Logger) (sources.Source, error) {
	var cfg UniswapV3Config
	if err := sources.DecodeConfig(config, &cfg); err != nil {
		return nil, err
	}
	if len(cfg.Pools) == 0 {
		return nil, fmt.Errorf("%s: %w", name, ErrPoolsConfigRequired)
	}

	symbols := make([]string, 0, len(cfg.Pools))
	for symbol := range cfg.Pools {
		symbols = append(symbols, symbol)
	}
	sort.Strings(symbols)

	pools := make([]*poolEntry, 0, len(symbols))
	minInterval := time.Duration(0)
	for _, symbol := range symbols {
		pc := cfg.Pools[symbol]
		if pc.RPCURL == "" {
			pc.RPCURL = cfg.RPCURL
		}
		if err := validatePool(symbol, pc); err != nil {
			return nil, fmt.Errorf("%s: %w", name, err)
		}
		if pc.TimeInterval == 0 {
			pc.TimeInterval = defaultTimeInterval
		}

		interval := defaultPoolUpdateInterval
		if pc.UpdateInterval > 0 {
			interval = pc.UpdateInterval.Duration()
		}
		if minInterval == 0 || interval < minInterval {
			minInterval = interval
		}

		entry := &poolEntry{symbol: symbol, cfg: pc, interval: interval}
		if pc.ConvertSource != "" {
			entry.conversion = &sources.Conversion{Source: pc.ConvertSource, Symbol: pc.ConvertSymbol}
		}
		pools = append(pools, entry)
	}

	s := &UniswapV3Source{
		BaseSource: sources.NewBaseSource(name, sources.SourceTypeEVM, symbols, minInterval, logger),
		pools:      pools,
		clients:    make(map[string]*ethclient.Client),
	}
	s.newReader = s.dialPool
	return s, nil
}

func validatePool(symbol string, pc PoolConfig) error {
	if pc.RPCURL == "" {
		return fmt.Errorf("%w: pool %s", ErrRPCURLRequired, symbol)
	}
	if !common.IsHexAddress(pc.Address) {
		return fmt.Errorf("%w: pool %s address %q", sources.ErrInvalidConfig, symbol, pc.Address)
	}
	if !common.IsHexAddress(pc.Token0.Address) || !common.IsHexAddress(pc.Token1.Address) {
		return fmt.Errorf("%w: pool %s token addresses", sources.ErrInvalidConfig, symbol)
	}
	if pc.Fee != 0 && !validFees[pc.Fee] {
		return fmt.Errorf("%w: pool %s fee %d", ErrInvalidFee, symbol, pc.Fee)
	}
	if (pc.ConvertSource == "") != (pc.ConvertSymbol == "") {
		return fmt.Errorf("%w: pool %s needs both convert_source and convert_symbol", sources.ErrInvalidConfig, symbol)
	}
	return nil
}

// Conversion reports the price a pool's TWAP is multiplied by
func (s *UniswapV3Source) Conversion(symbol string) (sources.Conversion, bool) {
	for _, p := range s.pools {
		if p.symbol == symbol && p.conversion != nil {
			return *p.conversion, true
		}
	}
	return sources.Conversion{}, false
}

// Initialize connects to every chain endpoint and reads each pool once
func (s *UniswapV3Source) Initialize(ctx context.Context) error {
	s.Logger().Info("Initializing Uniswap V3 oracle source", "symbols", s.Symbols())

	for _, p := range s.pools {
		if p.oracle != nil {
			continue
		}
		reader, err := s.newReader(ctx, p.cfg.RPCURL, common.HexToAddress(p.cfg.Address))
		if err != nil {
			return fmt.Errorf("%s: pool %s: %w", s.Name(), p.symbol, err)
		}

		base, quote := poolTokens(p.cfg)
		oracle, err := NewOracle(reader, base, quote, p.cfg.TimeInterval, s.Logger().With("symbol", p.symbol))
		if err != nil {
			return fmt.Errorf("%s: pool %s: %w", s.Name(), p.symbol, err)
		}
		p.oracle = oracle
	}

	return s.InitialFetch(ctx, s.UpdatePrice)
}

// Start schedules one loop per pool
func (s *UniswapV3Source) Start(ctx context.Context) error {
	for _, p := range s.pools {
		s.Logger().Info("Starting pool oracle loop", "symbol", p.symbol, "interval", p.interval, "window_seconds", p.cfg.TimeInterval)
		if err := s.Schedule(p.symbol, p.interval, func(ctx context.Context) error {
			return s.updatePool(ctx, p)
		}); err != nil {
			return err
		}
	}
	return nil
}

// Stop waits for every pool loop and closes chain clients
func (s *UniswapV3Source) Stop() error {
	s.StopSchedules()

	s.clientsMu.Lock()
	for url, client := range s.clients {
		client.Close()
		delete(s.clients, url)
	}
	s.clientsMu.Unlock()

	s.Logger().Info("Uniswap V3 oracle source stopped")
	return nil
}

// UpdatePrice reads every pool concurrently. Pools that succeed are cached
// even when others fail.
func (s *UniswapV3Source) UpdatePrice(ctx context.Context) error {
	var g errgroup.Group
	for _, p := range s.pools {
		p := p
		g.Go(func() error {
			return s.updatePool(ctx, p)
		})
	}
	return g.Wait()
}

func (s *UniswapV3Source) updatePool(ctx context.Context, p *poolEntry) error {
	if p.oracle == nil {
		return fmt.Errorf("%w: pool %s not initialized", sources.ErrFetch, p.symbol)
	}

	avg, err := p.oracle.Averages(ctx)
	if err != nil {
		return fmt.Errorf("pool %s: %w", p.symbol, err)
	}

	s.SetPrice(p.symbol, avg.TWAP, time.Now())
	s.Logger().Info("Updated TWAP", "symbol", p.symbol, "twap", avg.TWAP, "average_tick", avg.AverageTick)
	return nil
}

// poolTokens returns base and quote. The reading is the price of the pool's
// sorted token0 in token1 unless invert is set.
func poolTokens(pc PoolConfig) (Token, Token) {
	a := Token{Address: common.HexToAddress(pc.Token0.Address), Decimals: pc.Token0.Decimals, Symbol: pc.Token0.Symbol}
	b := Token{Address: common.HexToAddress(pc.Token1.Address), Decimals: pc.Token1.Decimals, Symbol: pc.Token1.Symbol}
	if b.SortsBefore(a) {
		a, b = b, a
	}
	if pc.Invert {
		return b, a
	}
	return a, b
}

func (s *UniswapV3Source) dialPool(ctx context.Context, rpcURL string, pool common.Address) (PoolReader, error) {
	s.clientsMu.Lock()
	defer s.clientsMu.Unlock()

	client, ok := s.clients[rpcURL]
	if !ok {
		var err error
		client, err = ethclient.DialContext(ctx, rpcURL)
		if err != nil {
			return nil, fmt.Errorf("failed to connect to RPC: %w", err)
		}
		s.clients[rpcURL] = client
	}
	return NewPoolContract(pool, client), nil
}
