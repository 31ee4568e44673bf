package services

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/washwatch/washwatch-go/internal/cache"
	"github.com/washwatch/washwatch-go/internal/classifier"
	"github.com/washwatch/washwatch-go/internal/config"
	"github.com/washwatch/washwatch-go/internal/features"
	"github.com/washwatch/washwatch-go/internal/graph"
	"github.com/washwatch/washwatch-go/internal/models"
	"github.com/washwatch/washwatch-go/internal/normalizer"
	"github.com/washwatch/washwatch-go/internal/rules"
	"github.com/washwatch/washwatch-go/internal/utils"
)

// DetectorService runs the full wash-trade analysis for one batch: normalize,
// build the trade graph, evaluate the heuristic rules, extract feature
// vectors, score them against the external classifier, and combine both into
// final verdicts. Each invocation owns all of its state, so the service is
// safe to call concurrently for different batches.
type DetectorService struct {
	cfg        *config.Config
	logger     *logrus.Logger
	normalizer *normalizer.Normalizer
	ruleEngine *rules.Engine
	schema     *features.Schema
	scorer     classifier.Scorer
	registry   cache.WalletRegistry
}

// NewDetectorService creates a detector. The schema and scorer are
// process-wide read-only collaborators injected at startup; registry may be
// nil when the suspicious-wallet registry is disabled.
func NewDetectorService(cfg *config.Config, schema *features.Schema, scorer classifier.Scorer, registry cache.WalletRegistry, logger *logrus.Logger) *DetectorService {
	return &DetectorService{
		cfg:        cfg,
		logger:     logger,
		normalizer: normalizer.NewNormalizer(logger),
		ruleEngine: rules.NewEngine(cfg.Detection, logger),
		schema:     schema,
		scorer:     scorer,
		registry:   registry,
	}
}

// AnalyzeBatch processes one raw trade batch end to end. Malformed records
// are skipped with a reason; schema misconfiguration aborts the batch; a dead
// classifier degrades the batch to rule-only verdicts with a warning.
func (s *DetectorService) AnalyzeBatch(ctx context.Context, records []models.RawTrade) (*models.BatchResult, error) {
	batchID := uuid.New().String()
	log := s.logger.WithFields(logrus.Fields{
		"batch_id": batchID,
		"records":  len(records),
	})
	log.Info("Analyzing trade batch")

	trades, skipped := s.normalizer.Normalize(records)

	// Batches may arrive unordered; sort once so every downstream stage sees
	// the same deterministic sequence.
	sort.Slice(trades, func(i, j int) bool {
		if !trades[i].Timestamp.Equal(trades[j].Timestamp) {
			return trades[i].Timestamp.Before(trades[j].Timestamp)
		}
		return trades[i].TradeID < trades[j].TradeID
	})

	// The graph is complete before rule evaluation starts and is never
	// mutated afterwards.
	g := graph.Build(trades)
	verdicts, cycleIndex := s.ruleEngine.Evaluate(trades, g)

	extractor, err := features.NewExtractor(s.schema, trades, g, verdicts, cycleIndex, s.cfg.Features.MidPriceWindow, s.logger)
	if err != nil {
		log.WithError(err).Error("Feature schema validation failed")
		return nil, err
	}

	vectors, err := s.extractVectors(ctx, extractor, trades)
	if err != nil {
		return nil, err
	}

	var warnings []string
	scores, scoreErr := s.score(ctx, vectors)
	if scoreErr != nil {
		var unavailable *utils.ClassifierUnavailableError
		if !errors.As(scoreErr, &unavailable) {
			return nil, scoreErr
		}
		log.WithError(scoreErr).Warn("Classifier unavailable, falling back to rule-only verdicts")
		warnings = append(warnings, scoreErr.Error())
		scores = nil
	}

	result := &models.BatchResult{
		BatchID:     batchID,
		Verdicts:    make([]models.Verdict, 0, len(trades)),
		Skipped:     skipped,
		Warnings:    warnings,
		ProcessedAt: time.Now().UTC(),
	}

	for i := range trades {
		trade := &trades[i]
		verdict := models.Verdict{
			TradeID:   trade.TradeID,
			RuleLabel: verdicts[trade.TradeID],
		}
		if scores != nil {
			score := scores[i]
			verdict.ModelScore = &score
			verdict.FinalLabel = verdict.RuleLabel.Suspicious || score >= s.cfg.Classifier.Threshold
		} else {
			verdict.FinalLabel = verdict.RuleLabel.Suspicious
		}
		verdict.KnownWallet = s.knownWallet(ctx, trade)
		result.Verdicts = append(result.Verdicts, verdict)
	}

	result.Summary = summarize(trades, result.Verdicts, len(skipped))
	s.registerWallets(ctx, batchID, trades, verdicts)

	log.WithFields(logrus.Fields{
		"trades":     len(trades),
		"skipped":    len(skipped),
		"suspicious": result.Summary.SuspiciousTrades,
		"risk_level": result.Summary.RiskLevel,
	}).Info("Batch analysis complete")

	return result, nil
}

// extractVectors computes the feature vectors, parallelized per trade. Trades
// are independent here: the stages only read the shared graph and verdicts.
func (s *DetectorService) extractVectors(ctx context.Context, extractor *features.Extractor, trades []models.Trade) ([][]float64, error) {
	vectors := make([][]float64, len(trades))

	group, _ := errgroup.WithContext(ctx)
	group.SetLimit(s.cfg.Analysis.MaxWorkers)
	for i := range trades {
		group.Go(func() error {
			vector, err := extractor.Vector(&trades[i])
			if err != nil {
				return fmt.Errorf("feature extraction failed for trade %s: %w", trades[i].TradeID, err)
			}
			vectors[i] = vector
			return nil
		})
	}
	if err := group.Wait(); err != nil {
		return nil, err
	}
	return vectors, nil
}

func (s *DetectorService) score(ctx context.Context, vectors [][]float64) ([]float64, error) {
	if s.scorer == nil {
		return nil, utils.NewClassifierUnavailableError("no scorer configured", nil)
	}
	return s.scorer.Score(ctx, vectors)
}

func (s *DetectorService) knownWallet(ctx context.Context, trade *models.Trade) bool {
	if s.registry == nil {
		return false
	}
	if flagged, _ := s.registry.IsFlagged(ctx, trade.BuyerAddress); flagged {
		return true
	}
	if trade.SelfTrade() {
		return false
	}
	flagged, _ := s.registry.IsFlagged(ctx, trade.SellerAddress)
	return flagged
}

// registerWallets records the wallets implicated by this batch so later
// batches can recognize repeat offenders.
func (s *DetectorService) registerWallets(ctx context.Context, batchID string, trades []models.Trade, verdicts map[string]*models.RuleVerdict) {
	if s.registry == nil {
		return
	}

	implicated := make(map[string]map[string]struct{})
	for _, trade := range trades {
		verdict := verdicts[trade.TradeID]
		if verdict == nil || !verdict.Suspicious {
			continue
		}
		for _, address := range []string{trade.BuyerAddress, trade.SellerAddress} {
			if implicated[address] == nil {
				implicated[address] = make(map[string]struct{})
			}
			for _, rule := range verdict.MatchedRules {
				implicated[address][string(rule)] = struct{}{}
			}
		}
	}
	if len(implicated) == 0 {
		return
	}

	now := time.Now().UTC()
	entries := make([]cache.WalletEntry, 0, len(implicated))
	for address, ruleSet := range implicated {
		ruleIDs := make([]string, 0, len(ruleSet))
		for rule := range ruleSet {
			ruleIDs = append(ruleIDs, rule)
		}
		sort.Strings(ruleIDs)
		entries = append(entries, cache.WalletEntry{
			Address:   address,
			Rules:     ruleIDs,
			BatchID:   batchID,
			FlaggedAt: now,
		})
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Address < entries[j].Address })

	if err := s.registry.Mark(ctx, entries); err != nil {
		s.logger.WithError(err).Warn("Failed to update suspicious-wallet registry")
	}
}

// summarize builds the batch report: counts per rule, implicated wallets and
// pairs, and a coarse risk level.
func summarize(trades []models.Trade, verdicts []models.Verdict, skippedCount int) models.BatchSummary {
	summary := models.BatchSummary{
		TotalTrades:     len(trades),
		SkippedRecords:  skippedCount,
		RuleMatchCounts: make(map[models.RuleID]int),
	}

	wallets := make(map[string]struct{})
	pairs := make(map[string]struct{})
	loopSeen := false

	for i, verdict := range verdicts {
		for _, rule := range verdict.RuleLabel.MatchedRules {
			summary.RuleMatchCounts[rule]++
			if rule == models.RuleTradeLoop {
				loopSeen = true
			}
		}
		if !verdict.FinalLabel {
			continue
		}
		summary.SuspiciousTrades++
		wallets[trades[i].BuyerAddress] = struct{}{}
		wallets[trades[i].SellerAddress] = struct{}{}
		pairs[trades[i].TokenPair] = struct{}{}
	}

	summary.SuspiciousWallets = sortedKeys(wallets)
	summary.SuspiciousPairs = sortedKeys(pairs)

	switch {
	case loopSeen || (len(trades) > 0 && summary.SuspiciousTrades*10 >= len(trades)*3):
		summary.RiskLevel = "high"
	case summary.SuspiciousTrades > 0:
		summary.RiskLevel = "medium"
	default:
		summary.RiskLevel = "low"
	}

	return summary
}

func sortedKeys(set map[string]struct{}) []string {
	keys := make([]string, 0, len(set))
	for key := range set {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}
