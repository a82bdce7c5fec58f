package aggregator

import (
	"fmt"
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"github.com/StrathCole/pyth-publisher/pkg/logging"
	"github.com/StrathCole/pyth-publisher/pkg/metrics"
	"github.com/StrathCole/pyth-publisher/pkg/sources"
)

// divisionPlaces bounds the fractional digits of each weighted share.
const divisionPlaces = 32

// PriceReader is the read side of a source cache.
type PriceReader interface {
	LatestPrice(symbol string) (decimal.Decimal, bool)
}

// MixerConfig configures a Mixer.
type MixerConfig struct {
	// Sources maps source name to its cache. Sources implementing
	// sources.Converter are re-denominated through their conversion link.
	Sources map[string]PriceReader
	// Weights maps symbol to source name to weight.
	Weights            map[string]map[string]decimal.Decimal
	ConfidenceRatioBps decimal.Decimal
	Logger             *logging.Logger
}

type weight struct {
	source string
	value  decimal.Decimal
}

type weighting struct {
	entries     []weight
	denominator decimal.Decimal
}

// Mixer computes weighted prices. It holds no mutable state after
// construction and is safe for concurrent use.
type Mixer struct {
	sources  map[string]PriceReader
	weights  map[string]weighting
	ratioBps decimal.Decimal
	logger   *logging.Logger
}

// Contribution is one source's share of a mixed price.
type Contribution struct {
	Weight      decimal.Decimal `json:"weight"`
	Denominator decimal.Decimal `json:"denominator"`
	Ratio       string          `json:"ratio"`
	Price       decimal.Decimal `json:"price"`
}

// Result is a mixed price before exponent scaling.
type Result struct {
	Symbol     string                  `json:"symbol"`
	Price      decimal.Decimal         `json:"price"`
	Confidence decimal.Decimal         `json:"confidence"`
	Breakdown  map[string]Contribution `json:"breakdown"`
}

// Scaled is the integer wire representation of a Result.
type Scaled struct {
	Price int64
	Conf  uint64
}

// NewMixer validates the weighting against the registered sources.
func NewMixer(cfg MixerConfig) (*Mixer, error) {
	if cfg.Logger == nil {
		cfg.Logger = logging.NewNoopLogger()
	}
	if cfg.ConfidenceRatioBps.IsNegative() {
		return nil, fmt.Errorf("%w: confidence ratio %s bps", ErrInvalidWeight, cfg.ConfidenceRatioBps)
	}

	weights := make(map[string]weighting, len(cfg.Weights))
	for symbol, bySource := range cfg.Weights {
		w := weighting{denominator: decimal.Zero}
		for source, value := range bySource {
			reader, ok := cfg.Sources[source]
			if !ok {
				return nil, fmt.Errorf("%w: %s weighted for %s", ErrUnknownProvider, source, symbol)
			}
			if value.IsNegative() {
				return nil, fmt.Errorf("%w: %s/%s weight %s", ErrInvalidWeight, symbol, source, value)
			}
			if conv, ok := conversionOf(reader, symbol); ok {
				if _, ok := cfg.Sources[conv.Source]; !ok {
					return nil, fmt.Errorf("%w: %s converts %s through %s", ErrUnknownProvider, source, symbol, conv.Source)
				}
			}
			w.entries = append(w.entries, weight{source: source, value: value})
			w.denominator = w.denominator.Add(value)
		}
		if !w.denominator.IsPositive() {
			return nil, fmt.Errorf("%w: weights of %s sum to %s", ErrInvalidWeight, symbol, w.denominator)
		}
		sort.Slice(w.entries, func(i, j int) bool { return w.entries[i].source < w.entries[j].source })
		weights[symbol] = w
	}

	return &Mixer{
		sources:  cfg.Sources,
		weights:  weights,
		ratioBps: cfg.ConfidenceRatioBps,
		logger:   cfg.Logger,
	}, nil
}

// Symbols returns the configured symbols, sorted.
func (m *Mixer) Symbols() []string {
	symbols := make([]string, 0, len(m.weights))
	for symbol := range m.weights {
		symbols = append(symbols, symbol)
	}
	sort.Strings(symbols)
	return symbols
}

// Mix blends the latest reading of every weighted source for symbol.
func (m *Mixer) Mix(symbol string) (Result, error) {
	start := time.Now()
	defer func() {
		metrics.RecordAggregation("weighted", time.Since(start))
	}()

	w, ok := m.weights[symbol]
	if !ok {
		return Result{}, fmt.Errorf("%w: %s", ErrUnknownSymbol, symbol)
	}

	mixed := decimal.Zero
	breakdown := make(map[string]Contribution, len(w.entries))
	for _, e := range w.entries {
		reader, ok := m.sources[e.source]
		if !ok {
			return Result{}, fmt.Errorf("%w: %s", ErrUnknownProvider, e.source)
		}
		price, ok := reader.LatestPrice(symbol)
		if !ok {
			return Result{}, fmt.Errorf("%w: %s has no price for %s", ErrMissingPrice, e.source, symbol)
		}

		if conv, ok := conversionOf(reader, symbol); ok {
			convReader, ok := m.sources[conv.Source]
			if !ok {
				return Result{}, fmt.Errorf("%w: %s", ErrUnknownProvider, conv.Source)
			}
			convPrice, ok := convReader.LatestPrice(conv.Symbol)
			if !ok {
				return Result{}, fmt.Errorf("%w: %s has no price for %s", ErrMissingConversion, conv.Source, conv.Symbol)
			}
			price = price.Mul(convPrice)
		}

		mixed = mixed.Add(price.Mul(e.value).DivRound(w.denominator, divisionPlaces))
		breakdown[e.source] = Contribution{
			Weight:      e.value,
			Denominator: w.denominator,
			Ratio:       e.value.String() + "/" + w.denominator.String(),
			Price:       price,
		}
	}

	// confidence is a fixed number of basis points of the mixed price
	confidence := mixed.Mul(m.ratioBps).Shift(-4)
	m.logger.Debug("Mixed price", "symbol", symbol, "price", mixed, "confidence", confidence, "sources", len(breakdown))

	return Result{
		Symbol:     symbol,
		Price:      mixed,
		Confidence: confidence,
		Breakdown:  breakdown,
	}, nil
}

// Scale multiplies price and confidence by 10^-exponent and rounds half away
// from zero to the wire integers.
func (r Result) Scale(exponent int32) (Scaled, error) {
	price := r.Price.Shift(-exponent).Round(0).BigInt()
	if !price.IsInt64() {
		return Scaled{}, fmt.Errorf("%w: price %s at exponent %d", ErrOverflow, r.Price, exponent)
	}
	conf := r.Confidence.Shift(-exponent).Round(0).BigInt()
	if conf.Sign() < 0 || !conf.IsUint64() {
		return Scaled{}, fmt.Errorf("%w: confidence %s at exponent %d", ErrOverflow, r.Confidence, exponent)
	}
	return Scaled{Price: price.Int64(), Conf: conf.Uint64()}, nil
}

func conversionOf(reader PriceReader, symbol string) (sources.Conversion, bool) {
	conv, ok := reader.(sources.Converter)
	if !ok {
		return sources.Conversion{}, false
	}
	return conv.Conversion(symbol)
}
