package features

import (
	"math"
	"sort"

	"github.com/cinar/indicator/v2/helper"
	"github.com/cinar/indicator/v2/trend"
	"github.com/sirupsen/logrus"

	"github.com/washwatch/washwatch-go/internal/graph"
	"github.com/washwatch/washwatch-go/internal/models"
	"github.com/washwatch/washwatch-go/internal/utils"
)

// Feature names the extractor can compute. The deployment schema selects and
// orders a subset of these.
const (
	FeatureLogBaseAmount       = "log_base_amount"
	FeatureLogQuoteAmount      = "log_quote_amount"
	FeaturePrice               = "price"
	FeaturePriceDeviation      = "price_deviation"
	FeatureBuyerTradeCount     = "buyer_trade_count"
	FeatureSellerTradeCount    = "seller_trade_count"
	FeatureBuyerSelfTradeRatio = "buyer_self_trade_ratio"
	FeatureSellerSelfTradeRatio = "seller_self_trade_ratio"
	FeatureBuyerReuseRatio     = "buyer_reuse_ratio"
	FeatureSellerReuseRatio    = "seller_reuse_ratio"
	FeatureInCycle             = "in_cycle"
	FeatureCycleLength         = "cycle_length"
	FeatureBuyerInDegree       = "buyer_in_degree"
	FeatureBuyerOutDegree      = "buyer_out_degree"
	FeatureSellerInDegree      = "seller_in_degree"
	FeatureSellerOutDegree     = "seller_out_degree"
	FeatureMatchedRuleCount    = "matched_rule_count"
)

// addressStats aggregates per-address behavior across one batch.
type addressStats struct {
	trades     int
	selfTrades int
}

// Extractor computes the per-trade feature vectors of one batch in the order
// the deployment schema dictates. It is built after rule evaluation and only
// reads the batch, the graph and the rule verdicts.
type Extractor struct {
	schema   *Schema
	logger   *logrus.Logger
	g        *graph.TradeGraph
	verdicts map[string]*models.RuleVerdict

	stats      map[string]*addressStats
	midPrices  map[string]float64 // trade id -> rolling mid-price of its pair
	cycleIndex map[string]*graph.Cycle
	batchSize  int
}

// NewExtractor prepares feature extraction for a batch and validates the
// schema against the features this engine computes. Validation failure is
// batch-fatal and happens before any classifier call.
func NewExtractor(schema *Schema, trades []models.Trade, g *graph.TradeGraph, verdicts map[string]*models.RuleVerdict, cycleIndex map[string]*graph.Cycle, midPriceWindow int, logger *logrus.Logger) (*Extractor, error) {
	if err := schema.Validate(availableFeatures()); err != nil {
		return nil, err
	}

	e := &Extractor{
		schema:     schema,
		logger:     logger,
		g:          g,
		verdicts:   verdicts,
		stats:      make(map[string]*addressStats),
		midPrices:  make(map[string]float64, len(trades)),
		cycleIndex: cycleIndex,
		batchSize:  len(trades),
	}

	for _, trade := range trades {
		e.statsFor(trade.BuyerAddress).trades++
		if trade.SelfTrade() {
			e.statsFor(trade.BuyerAddress).selfTrades++
		} else {
			e.statsFor(trade.SellerAddress).trades++
		}
	}

	e.computeMidPrices(trades, midPriceWindow)
	return e, nil
}

func (e *Extractor) statsFor(address string) *addressStats {
	s, ok := e.stats[address]
	if !ok {
		s = &addressStats{}
		e.stats[address] = s
	}
	return s
}

// computeMidPrices derives, per token pair, a rolling mid-price over the
// time-sorted trade sequence and records the value in effect for each trade.
// Positions before the SMA warmup fall back to the running mean.
func (e *Extractor) computeMidPrices(trades []models.Trade, window int) {
	if window < 1 {
		window = 1
	}

	byPair := make(map[string][]models.Trade)
	for _, trade := range trades {
		byPair[trade.TokenPair] = append(byPair[trade.TokenPair], trade)
	}

	for _, pairTrades := range byPair {
		sort.Slice(pairTrades, func(i, j int) bool {
			if !pairTrades[i].Timestamp.Equal(pairTrades[j].Timestamp) {
				return pairTrades[i].Timestamp.Before(pairTrades[j].Timestamp)
			}
			return pairTrades[i].TradeID < pairTrades[j].TradeID
		})

		prices := make([]float64, len(pairTrades))
		for i, trade := range pairTrades {
			prices[i], _ = trade.Price.Float64()
		}

		var smaValues []float64
		if len(prices) >= window {
			sma := trend.NewSmaWithPeriod[float64](window)
			smaValues = helper.ChanToSlice(sma.Compute(helper.SliceToChan(prices)))
		}

		var runningSum float64
		for i, trade := range pairTrades {
			runningSum += prices[i]
			if i >= window-1 && len(smaValues) > i-window+1 {
				e.midPrices[trade.TradeID] = smaValues[i-window+1]
			} else {
				e.midPrices[trade.TradeID] = runningSum / float64(i+1)
			}
		}
	}
}

// Vector computes the trade's feature vector in schema order. The length
// always equals the schema length; unknown names were rejected upfront.
func (e *Extractor) Vector(trade *models.Trade) ([]float64, error) {
	vector := make([]float64, 0, e.schema.Len())
	for _, name := range e.schema.Names() {
		value, err := e.feature(name, trade)
		if err != nil {
			return nil, err
		}
		vector = append(vector, value)
	}
	return vector, nil
}

func (e *Extractor) feature(name string, trade *models.Trade) (float64, error) {
	switch name {
	case FeatureLogBaseAmount:
		return logAmount(trade.BaseAmount.InexactFloat64()), nil
	case FeatureLogQuoteAmount:
		return logAmount(trade.QuoteAmount.InexactFloat64()), nil
	case FeaturePrice:
		return trade.Price.InexactFloat64(), nil
	case FeaturePriceDeviation:
		mid := e.midPrices[trade.TradeID]
		if mid == 0 {
			return 0, nil
		}
		return (trade.Price.InexactFloat64() - mid) / mid, nil
	case FeatureBuyerTradeCount:
		return float64(e.statsFor(trade.BuyerAddress).trades), nil
	case FeatureSellerTradeCount:
		return float64(e.statsFor(trade.SellerAddress).trades), nil
	case FeatureBuyerSelfTradeRatio:
		return e.selfTradeRatio(trade.BuyerAddress), nil
	case FeatureSellerSelfTradeRatio:
		return e.selfTradeRatio(trade.SellerAddress), nil
	case FeatureBuyerReuseRatio:
		return e.reuseRatio(trade.BuyerAddress), nil
	case FeatureSellerReuseRatio:
		return e.reuseRatio(trade.SellerAddress), nil
	case FeatureInCycle:
		if _, ok := e.cycleIndex[trade.TradeID]; ok {
			return 1, nil
		}
		return 0, nil
	case FeatureCycleLength:
		if cycle, ok := e.cycleIndex[trade.TradeID]; ok {
			return float64(cycle.Length()), nil
		}
		return 0, nil
	case FeatureBuyerInDegree:
		return float64(e.g.InDegree(trade.BuyerAddress)), nil
	case FeatureBuyerOutDegree:
		return float64(e.g.OutDegree(trade.BuyerAddress)), nil
	case FeatureSellerInDegree:
		return float64(e.g.InDegree(trade.SellerAddress)), nil
	case FeatureSellerOutDegree:
		return float64(e.g.OutDegree(trade.SellerAddress)), nil
	case FeatureMatchedRuleCount:
		if verdict, ok := e.verdicts[trade.TradeID]; ok {
			return float64(len(verdict.MatchedRules)), nil
		}
		return 0, nil
	default:
		// Unreachable after schema validation, kept as a hard guard.
		return 0, utils.NewSchemaMismatchError(name, "not computed by this engine")
	}
}

func (e *Extractor) selfTradeRatio(address string) float64 {
	s := e.statsFor(address)
	if s.trades == 0 {
		return 0
	}
	return float64(s.selfTrades) / float64(s.trades)
}

func (e *Extractor) reuseRatio(address string) float64 {
	if e.batchSize == 0 {
		return 0
	}
	return float64(e.statsFor(address).trades) / float64(e.batchSize)
}

func logAmount(v float64) float64 {
	if v <= 0 {
		return 0
	}
	return math.Log1p(v)
}

// availableFeatures lists every feature name this engine can compute.
func availableFeatures() map[string]struct{} {
	names := []string{
		FeatureLogBaseAmount,
		FeatureLogQuoteAmount,
		FeaturePrice,
		FeaturePriceDeviation,
		FeatureBuyerTradeCount,
		FeatureSellerTradeCount,
		FeatureBuyerSelfTradeRatio,
		FeatureSellerSelfTradeRatio,
		FeatureBuyerReuseRatio,
		FeatureSellerReuseRatio,
		FeatureInCycle,
		FeatureCycleLength,
		FeatureBuyerInDegree,
		FeatureBuyerOutDegree,
		FeatureSellerInDegree,
		FeatureSellerOutDegree,
		FeatureMatchedRuleCount,
	}
	available := make(map[string]struct{}, len(names))
	for _, name := range names {
		available[name] = struct{}{}
	}
	return available
}
