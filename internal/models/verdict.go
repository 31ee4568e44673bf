package models

import (
	"time"
)

// RuleID identifies a heuristic detection rule.
type RuleID string

const (
	RuleSelfTrade    RuleID = "self_trade"
	RuleSpoofing     RuleID = "spoofing"
	RuleTradeLoop    RuleID = "trade_loop"
	RuleRepeatedPair RuleID = "repeated_pair"
)

// RuleVerdict holds the heuristic outcome for a single trade.
type RuleVerdict struct {
	TradeID      string                 `json:"trade_id"`
	MatchedRules []RuleID               `json:"matched_rules"`
	Suspicious   bool                   `json:"suspicious"`
	Details      map[RuleID]interface{} `json:"details,omitempty"`
}

// Matched reports whether the given rule fired for this trade.
func (v *RuleVerdict) Matched(rule RuleID) bool {
	for _, r := range v.MatchedRules {
		if r == rule {
			return true
		}
	}
	return false
}

// SpoofingEvidence records the counter-trade behind a spoofing match.
type SpoofingEvidence struct {
	Address        string  `json:"address"`
	CounterTradeID string  `json:"counter_trade_id"`
	GapSeconds     float64 `json:"gap_seconds"`
	AmountDelta    string  `json:"amount_delta"`
}

// LoopEvidence records the temporal cycle behind a trade-loop match.
type LoopEvidence struct {
	Path     []string `json:"path"`
	TradeIDs []string `json:"trade_ids"`
	Length   int      `json:"length"`
}

// RepeatedPairEvidence records how often a buyer/seller pair traded.
type RepeatedPairEvidence struct {
	Buyer  string `json:"buyer"`
	Seller string `json:"seller"`
	Count  int    `json:"count"`
}

// Verdict is the combined per-trade output of the engine.
type Verdict struct {
	TradeID     string       `json:"trade_id"`
	RuleLabel   *RuleVerdict `json:"rule_label"`
	ModelScore  *float64     `json:"model_score"` // nil when the classifier was unavailable
	FinalLabel  bool         `json:"final_label"`
	KnownWallet bool         `json:"known_wallet,omitempty"` // a party was already in the suspicious-wallet registry
}

// BatchSummary aggregates a processed batch, mirroring the per-batch
// suspicious-activity report of the detection pipeline.
type BatchSummary struct {
	TotalTrades       int            `json:"total_trades"`
	SkippedRecords    int            `json:"skipped_records"`
	SuspiciousTrades  int            `json:"suspicious_trades"`
	SuspiciousWallets []string       `json:"suspicious_wallets"`
	SuspiciousPairs   []string       `json:"suspicious_pairs"`
	RuleMatchCounts   map[RuleID]int `json:"rule_match_counts"`
	RiskLevel         string         `json:"risk_level"` // "low", "medium", "high"
}

// BatchResult is the full outcome of one batch-processing call.
type BatchResult struct {
	BatchID     string          `json:"batch_id"`
	Verdicts    []Verdict       `json:"verdicts"`
	Skipped     []SkippedRecord `json:"skipped"`
	Summary     BatchSummary    `json:"summary"`
	Warnings    []string        `json:"warnings,omitempty"`
	ProcessedAt time.Time       `json:"processed_at"`
}
