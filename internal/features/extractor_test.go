package features

import (
	"errors"
	"math"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/washwatch/washwatch-go/internal/graph"
	"github.com/washwatch/washwatch-go/internal/models"
	"github.com/washwatch/washwatch-go/internal/utils"
)

var extractorBase = time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)

func extractorTrade(id, seller, buyer string, price float64, offset time.Duration) models.Trade {
	p := decimal.NewFromFloat(price)
	amount := decimal.NewFromInt(10)
	return models.Trade{
		TradeID:       id,
		Timestamp:     extractorBase.Add(offset),
		BuyerAddress:  buyer,
		SellerAddress: seller,
		TokenPair:     "SOL/USDC",
		BaseAmount:    amount,
		QuoteAmount:   amount.Mul(p),
		Price:         p,
	}
}

func emptyVerdicts(trades []models.Trade) map[string]*models.RuleVerdict {
	verdicts := make(map[string]*models.RuleVerdict, len(trades))
	for _, trade := range trades {
		verdicts[trade.TradeID] = &models.RuleVerdict{
			TradeID:      trade.TradeID,
			MatchedRules: []models.RuleID{},
			Details:      make(map[models.RuleID]interface{}),
		}
	}
	return verdicts
}

func quietLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetLevel(logrus.PanicLevel)
	return logger
}

func TestNewExtractor_UnknownFeatureFailsBeforeScoring(t *testing.T) {
	schema, err := NewSchema([]string{FeaturePrice, "order_book_imbalance"})
	require.NoError(t, err)

	trades := []models.Trade{extractorTrade("t1", "A", "B", 50, 0)}
	_, err = NewExtractor(schema, trades, graph.Build(trades), emptyVerdicts(trades), nil, 20, quietLogger())
	require.Error(t, err)

	var mismatch *utils.SchemaMismatchError
	require.True(t, errors.As(err, &mismatch))
	assert.Equal(t, "order_book_imbalance", mismatch.FeatureName)
}

func TestVector_SchemaOrderAndLength(t *testing.T) {
	schema, err := NewSchema([]string{FeatureLogBaseAmount, FeaturePrice, FeatureMatchedRuleCount})
	require.NoError(t, err)

	trades := []models.Trade{extractorTrade("t1", "A", "B", 50, 0)}
	verdicts := emptyVerdicts(trades)
	verdicts["t1"].MatchedRules = []models.RuleID{models.RuleSelfTrade, models.RuleSpoofing}

	extractor, err := NewExtractor(schema, trades, graph.Build(trades), verdicts, nil, 20, quietLogger())
	require.NoError(t, err)

	vector, err := extractor.Vector(&trades[0])
	require.NoError(t, err)
	require.Len(t, vector, schema.Len())
	assert.InDelta(t, math.Log1p(10), vector[0], 1e-9)
	assert.InDelta(t, 50, vector[1], 1e-9)
	assert.InDelta(t, 2, vector[2], 1e-9)
}

func TestVector_GraphFeatures(t *testing.T) {
	schema, err := NewSchema([]string{
		FeatureInCycle,
		FeatureCycleLength,
		FeatureBuyerInDegree,
		FeatureBuyerOutDegree,
		FeatureSellerInDegree,
		FeatureSellerOutDegree,
	})
	require.NoError(t, err)

	trades := []models.Trade{
		extractorTrade("t1", "A", "B", 50, 0),
		extractorTrade("t2", "B", "A", 50, time.Minute),
	}
	g := graph.Build(trades)
	cycles := g.FindTemporalCycles(10*time.Minute, 5)
	require.Len(t, cycles, 1)

	extractor, err := NewExtractor(schema, trades, g, emptyVerdicts(trades), graph.CycleIndex(cycles), 20, quietLogger())
	require.NoError(t, err)

	vector, err := extractor.Vector(&trades[0])
	require.NoError(t, err)
	// t1: buyer B has in-degree 1 (t1) and out-degree 1 (t2); seller A the same.
	assert.Equal(t, []float64{1, 2, 1, 1, 1, 1}, vector)
}

func TestVector_AddressStats(t *testing.T) {
	schema, err := NewSchema([]string{
		FeatureBuyerTradeCount,
		FeatureSellerTradeCount,
		FeatureBuyerSelfTradeRatio,
		FeatureBuyerReuseRatio,
	})
	require.NoError(t, err)

	trades := []models.Trade{
		extractorTrade("t1", "A", "B", 50, 0),
		extractorTrade("t2", "C", "B", 50, time.Minute),
		extractorTrade("t3", "B", "B", 50, 2*time.Minute),
		extractorTrade("t4", "D", "E", 50, 3*time.Minute),
	}

	extractor, err := NewExtractor(schema, trades, graph.Build(trades), emptyVerdicts(trades), nil, 20, quietLogger())
	require.NoError(t, err)

	vector, err := extractor.Vector(&trades[0])
	require.NoError(t, err)
	// B appears in t1, t2 and the self-trade t3: 3 trades, 1 self-trade.
	assert.InDelta(t, 3, vector[0], 1e-9)
	assert.InDelta(t, 1, vector[1], 1e-9) // A only sells once
	assert.InDelta(t, 1.0/3.0, vector[2], 1e-9)
	assert.InDelta(t, 3.0/4.0, vector[3], 1e-9)
}

func TestVector_PriceDeviation(t *testing.T) {
	schema, err := NewSchema([]string{FeaturePriceDeviation})
	require.NoError(t, err)

	trades := []models.Trade{
		extractorTrade("t1", "A", "B", 100, 0),
		extractorTrade("t2", "C", "D", 100, time.Minute),
		extractorTrade("t3", "E", "F", 130, 2*time.Minute),
	}

	extractor, err := NewExtractor(schema, trades, graph.Build(trades), emptyVerdicts(trades), nil, 2, quietLogger())
	require.NoError(t, err)

	// t3 sits on a 2-trade SMA of (100, 130) = 115; deviation (130-115)/115.
	vector, err := extractor.Vector(&trades[2])
	require.NoError(t, err)
	assert.InDelta(t, 15.0/115.0, vector[0], 1e-9)

	// t1 is before the warmup: mid-price is its own price, deviation zero.
	vector, err = extractor.Vector(&trades[0])
	require.NoError(t, err)
	assert.InDelta(t, 0, vector[0], 1e-9)
}

func TestVector_FullSchema(t *testing.T) {
	names := make([]string, 0)
	for name := range availableFeatures() {
		names = append(names, name)
	}
	schema, err := NewSchema(names)
	require.NoError(t, err)

	trades := []models.Trade{
		extractorTrade("t1", "A", "B", 50, 0),
		extractorTrade("t2", "B", "A", 50, time.Minute),
	}

	extractor, err := NewExtractor(schema, trades, graph.Build(trades), emptyVerdicts(trades), nil, 20, quietLogger())
	require.NoError(t, err)

	for i := range trades {
		vector, err := extractor.Vector(&trades[i])
		require.NoError(t, err)
		assert.Len(t, vector, schema.Len())
		for j, value := range vector {
			assert.False(t, math.IsNaN(value) || math.IsInf(value, 0), "feature %s", schema.Names()[j])
		}
	}
}
