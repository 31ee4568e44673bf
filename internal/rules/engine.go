package rules

import (
	"sort"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"github.com/washwatch/washwatch-go/internal/config"
	"github.com/washwatch/washwatch-go/internal/graph"
	"github.com/washwatch/washwatch-go/internal/models"
)

// Engine applies the heuristic wash-trade rules to a normalized batch. Rules
// are independent: a trade's verdict records every rule that matched, and a
// trade is suspicious iff at least one matched. Evaluation is deterministic
// and independent of input ordering.
type Engine struct {
	detection config.DetectionConfig
	logger    *logrus.Logger
}

// NewEngine creates a rule engine with the given detection parameters.
func NewEngine(detection config.DetectionConfig, logger *logrus.Logger) *Engine {
	return &Engine{detection: detection, logger: logger}
}

// Evaluate runs every enabled rule over the batch and returns one RuleVerdict
// per trade, keyed by trade id, plus the temporal-cycle index so the feature
// extractor does not repeat the cycle search. The graph must be fully built
// before this is called; it is only read here.
func (e *Engine) Evaluate(trades []models.Trade, g *graph.TradeGraph) (map[string]*models.RuleVerdict, map[string]*graph.Cycle) {
	verdicts := make(map[string]*models.RuleVerdict, len(trades))
	for _, trade := range trades {
		verdicts[trade.TradeID] = &models.RuleVerdict{
			TradeID:      trade.TradeID,
			MatchedRules: []models.RuleID{},
			Details:      make(map[models.RuleID]interface{}),
		}
	}

	if e.detection.Rules.SelfTrade {
		e.applySelfTrade(trades, verdicts)
	}
	if e.detection.Rules.Spoofing {
		e.applySpoofing(trades, verdicts)
	}
	cycleIndex := make(map[string]*graph.Cycle)
	if e.detection.Rules.TradeLoop {
		cycleIndex = e.applyTradeLoop(g, verdicts)
	}
	if e.detection.Rules.RepeatedPair {
		e.applyRepeatedPair(trades, verdicts)
	}

	for _, verdict := range verdicts {
		sort.Slice(verdict.MatchedRules, func(i, j int) bool {
			return verdict.MatchedRules[i] < verdict.MatchedRules[j]
		})
		verdict.Suspicious = len(verdict.MatchedRules) > 0
	}

	return verdicts, cycleIndex
}

// applySelfTrade flags trades where the buyer and seller are the same
// address. O(1) per trade.
func (e *Engine) applySelfTrade(trades []models.Trade, verdicts map[string]*models.RuleVerdict) {
	for _, trade := range trades {
		if trade.SelfTrade() {
			mark(verdicts[trade.TradeID], models.RuleSelfTrade, trade.BuyerAddress)
		}
	}
}

// spoofingKey groups trades by the address acting on a token pair.
type spoofingKey struct {
	address string
	pair    string
}

// sideTrade is one appearance of an address on a token pair, on either side.
type sideTrade struct {
	trade *models.Trade
	buy   bool
}

// applySpoofing flags pairs of distinct trades where the same address shows
// up as buyer in one and seller in the other on the same token pair, within
// the configured window and with near-offsetting base amounts. When several
// counter-trades qualify, the nearest in time wins.
func (e *Engine) applySpoofing(trades []models.Trade, verdicts map[string]*models.RuleVerdict) {
	window := e.detection.SpoofingWindow()
	tolerance := decimal.NewFromFloat(e.detection.SpoofingTolerance)

	groups := make(map[spoofingKey][]sideTrade)
	for i := range trades {
		trade := &trades[i]
		if trade.SelfTrade() {
			// Covered by the self-trade rule; a single trade is not a
			// buy/sell round trip.
			continue
		}
		buyKey := spoofingKey{address: trade.BuyerAddress, pair: trade.TokenPair}
		sellKey := spoofingKey{address: trade.SellerAddress, pair: trade.TokenPair}
		groups[buyKey] = append(groups[buyKey], sideTrade{trade: trade, buy: true})
		groups[sellKey] = append(groups[sellKey], sideTrade{trade: trade, buy: false})
	}

	// Iterate groups in a fixed order so evidence assignment does not depend
	// on map iteration order: a trade can sit in both its buyer-side and
	// seller-side group.
	keys := make([]spoofingKey, 0, len(groups))
	for key := range groups {
		keys = append(keys, key)
	}
	sort.Slice(keys, func(i, j int) bool {
		if keys[i].address != keys[j].address {
			return keys[i].address < keys[j].address
		}
		return keys[i].pair < keys[j].pair
	})

	for _, key := range keys {
		group := groups[key]
		if len(group) < 2 {
			continue
		}
		sort.Slice(group, func(i, j int) bool {
			if !group[i].trade.Timestamp.Equal(group[j].trade.Timestamp) {
				return group[i].trade.Timestamp.Before(group[j].trade.Timestamp)
			}
			return group[i].trade.TradeID < group[j].trade.TradeID
		})

		for i, side := range group {
			counter := e.nearestCounterTrade(group, i, window, tolerance)
			if counter == nil {
				continue
			}
			gap := counter.Timestamp.Sub(side.trade.Timestamp)
			if gap < 0 {
				gap = -gap
			}
			verdict := verdicts[side.trade.TradeID]
			if verdict.Matched(models.RuleSpoofing) {
				continue
			}
			mark(verdict, models.RuleSpoofing, models.SpoofingEvidence{
				Address:        key.address,
				CounterTradeID: counter.TradeID,
				GapSeconds:     gap.Seconds(),
				AmountDelta:    side.trade.BaseAmount.Sub(counter.BaseAmount).Abs().String(),
			})
		}
	}
}

// nearestCounterTrade finds the opposite-side trade closest in time to
// group[i] that sits inside the window with a near-offsetting amount.
func (e *Engine) nearestCounterTrade(group []sideTrade, i int, window time.Duration, tolerance decimal.Decimal) *models.Trade {
	side := group[i]
	var best *models.Trade
	var bestGap time.Duration

	for j, other := range group {
		if j == i || other.buy == side.buy || other.trade.TradeID == side.trade.TradeID {
			continue
		}
		gap := other.trade.Timestamp.Sub(side.trade.Timestamp)
		if gap < 0 {
			gap = -gap
		}
		if gap > window {
			continue
		}
		if !amountsOffset(side.trade.BaseAmount, other.trade.BaseAmount, tolerance) {
			continue
		}
		if best == nil || gap < bestGap || (gap == bestGap && other.trade.TradeID < best.TradeID) {
			best = other.trade
			bestGap = gap
		}
	}
	return best
}

// amountsOffset reports whether two base amounts differ by less than the
// relative tolerance, measured against the larger of the two.
func amountsOffset(a, b, tolerance decimal.Decimal) bool {
	larger := decimal.Max(a, b)
	if larger.IsZero() {
		return false
	}
	return a.Sub(b).Abs().Div(larger).LessThan(tolerance)
}

// applyTradeLoop flags every trade lying on a temporal cycle of length
// 2..max within the loop window and returns the cycle index for reuse by
// feature extraction.
func (e *Engine) applyTradeLoop(g *graph.TradeGraph, verdicts map[string]*models.RuleVerdict) map[string]*graph.Cycle {
	cycles := g.FindTemporalCycles(e.detection.LoopWindow(), e.detection.MaxLoopLength)
	if len(cycles) > 0 {
		e.logger.WithFields(logrus.Fields{
			"cycles":     len(cycles),
			"max_length": e.detection.MaxLoopLength,
		}).Debug("Temporal trade loops detected")
	}

	cycleIndex := graph.CycleIndex(cycles)
	for tradeID, cycle := range cycleIndex {
		verdict, ok := verdicts[tradeID]
		if !ok || verdict.Matched(models.RuleTradeLoop) {
			continue
		}
		mark(verdict, models.RuleTradeLoop, models.LoopEvidence{
			Path:     cycle.Path,
			TradeIDs: cycle.TradeIDs,
			Length:   cycle.Length(),
		})
	}
	return cycleIndex
}

// applyRepeatedPair flags all trades of a buyer/seller pair that traded with
// each other more than the configured threshold number of times in the batch.
func (e *Engine) applyRepeatedPair(trades []models.Trade, verdicts map[string]*models.RuleVerdict) {
	type pairKey struct {
		buyer  string
		seller string
	}

	counts := make(map[pairKey]int)
	for _, trade := range trades {
		counts[pairKey{buyer: trade.BuyerAddress, seller: trade.SellerAddress}]++
	}

	for _, trade := range trades {
		key := pairKey{buyer: trade.BuyerAddress, seller: trade.SellerAddress}
		if counts[key] <= e.detection.RepeatedPairThreshold {
			continue
		}
		mark(verdicts[trade.TradeID], models.RuleRepeatedPair, models.RepeatedPairEvidence{
			Buyer:  key.buyer,
			Seller: key.seller,
			Count:  counts[key],
		})
	}
}

func mark(verdict *models.RuleVerdict, rule models.RuleID, evidence interface{}) {
	verdict.MatchedRules = append(verdict.MatchedRules, rule)
	verdict.Details[rule] = evidence
}
