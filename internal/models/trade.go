package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// RawTrade is an untyped trade record as delivered by the upstream feed,
// typically parsed JSON. All validation happens in the normalizer.
type RawTrade map[string]interface{}

// Trade represents a single normalized on-chain swap event.
type Trade struct {
	TradeID       string          `json:"trade_id"`
	Timestamp     time.Time       `json:"timestamp"`
	BuyerAddress  string          `json:"buyer_address"`
	SellerAddress string          `json:"seller_address"`
	TokenPair     string          `json:"token_pair"`
	BaseAmount    decimal.Decimal `json:"base_amount"`
	QuoteAmount   decimal.Decimal `json:"quote_amount"`
	Price         decimal.Decimal `json:"price"`
	DexVenue      string          `json:"dex_venue"`
	TxSignature   string          `json:"tx_signature"`
}

// SelfTrade reports whether the buyer and seller are the same address.
func (t *Trade) SelfTrade() bool {
	return t.BuyerAddress == t.SellerAddress
}

// SkippedRecord describes a raw record the normalizer rejected.
type SkippedRecord struct {
	Index  int      `json:"index"`
	Reason string   `json:"reason"`
	Record RawTrade `json:"record,omitempty"`
}
