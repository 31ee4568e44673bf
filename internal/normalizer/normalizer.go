package normalizer

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"github.com/washwatch/washwatch-go/internal/models"
	"github.com/washwatch/washwatch-go/internal/utils"
)

// timestampLayouts are tried in order for string timestamps.
var timestampLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05",
}

// Normalizer validates raw trade records and reshapes them into the
// canonical Trade representation. It is a pure transform: malformed records
// are collected with a reason instead of aborting the batch.
type Normalizer struct {
	logger *logrus.Logger
}

// NewNormalizer creates a new trade record normalizer.
func NewNormalizer(logger *logrus.Logger) *Normalizer {
	return &Normalizer{logger: logger}
}

// Normalize converts a sequence of raw records into trades plus a list of
// skipped records with reasons. The relative input order of valid trades is
// preserved; downstream stages sort as needed.
func (n *Normalizer) Normalize(records []models.RawTrade) ([]models.Trade, []models.SkippedRecord) {
	trades := make([]models.Trade, 0, len(records))
	var skipped []models.SkippedRecord

	for i, record := range records {
		trade, err := n.normalizeRecord(i, record)
		if err != nil {
			n.logger.WithFields(logrus.Fields{
				"index":  i,
				"reason": err.Error(),
			}).Warn("Skipping malformed trade record")
			skipped = append(skipped, models.SkippedRecord{
				Index:  i,
				Reason: err.Error(),
				Record: record,
			})
			continue
		}
		trades = append(trades, trade)
	}

	return trades, skipped
}

func (n *Normalizer) normalizeRecord(index int, record models.RawTrade) (models.Trade, error) {
	var trade models.Trade

	buyer, err := stringField(index, record, "buyer_address")
	if err != nil {
		return trade, err
	}
	seller, err := stringField(index, record, "seller_address")
	if err != nil {
		return trade, err
	}
	pair, err := stringField(index, record, "token_pair")
	if err != nil {
		return trade, err
	}

	baseAmount, err := positiveDecimalField(index, record, "base_amount")
	if err != nil {
		return trade, err
	}
	quoteAmount, err := positiveDecimalField(index, record, "quote_amount")
	if err != nil {
		return trade, err
	}

	timestamp, err := timestampField(index, record, "timestamp")
	if err != nil {
		return trade, err
	}

	tradeID := optionalString(record, "trade_id")
	txSignature := optionalString(record, "tx_signature")
	if tradeID == "" {
		// The transaction signature is unique on-chain, so it doubles as the
		// trade identity when the feed carries no explicit id.
		tradeID = txSignature
	}
	if tradeID == "" {
		return trade, utils.NewMalformedRecordError(index, "trade_id", "missing trade_id and tx_signature")
	}

	price, hasPrice, err := optionalDecimal(index, record, "price")
	if err != nil {
		return trade, err
	}
	if !hasPrice || price.IsZero() {
		price = quoteAmount.Div(baseAmount)
	}
	if price.IsNegative() {
		return trade, utils.NewMalformedRecordError(index, "price", "must not be negative")
	}

	trade = models.Trade{
		TradeID:       tradeID,
		Timestamp:     timestamp,
		BuyerAddress:  buyer,
		SellerAddress: seller,
		TokenPair:     pair,
		BaseAmount:    baseAmount,
		QuoteAmount:   quoteAmount,
		Price:         price,
		DexVenue:      optionalString(record, "dex_venue"),
		TxSignature:   txSignature,
	}
	return trade, nil
}

func stringField(index int, record models.RawTrade, field string) (string, error) {
	raw, ok := record[field]
	if !ok {
		return "", utils.NewMalformedRecordError(index, field, "missing required field")
	}
	value, ok := raw.(string)
	if !ok {
		return "", utils.NewMalformedRecordError(index, field, fmt.Sprintf("expected string, got %T", raw))
	}
	value = strings.TrimSpace(value)
	if value == "" {
		return "", utils.NewMalformedRecordError(index, field, "must not be empty")
	}
	return value, nil
}

func optionalString(record models.RawTrade, field string) string {
	if raw, ok := record[field]; ok {
		if value, ok := raw.(string); ok {
			return strings.TrimSpace(value)
		}
	}
	return ""
}

func positiveDecimalField(index int, record models.RawTrade, field string) (decimal.Decimal, error) {
	raw, ok := record[field]
	if !ok {
		return decimal.Zero, utils.NewMalformedRecordError(index, field, "missing required field")
	}
	value, err := toDecimal(raw)
	if err != nil {
		return decimal.Zero, utils.NewMalformedRecordError(index, field, err.Error())
	}
	if !value.IsPositive() {
		return decimal.Zero, utils.NewMalformedRecordError(index, field, "must be positive")
	}
	return value, nil
}

func optionalDecimal(index int, record models.RawTrade, field string) (decimal.Decimal, bool, error) {
	raw, ok := record[field]
	if !ok || raw == nil {
		return decimal.Zero, false, nil
	}
	value, err := toDecimal(raw)
	if err != nil {
		return decimal.Zero, false, utils.NewMalformedRecordError(index, field, err.Error())
	}
	return value, true, nil
}

func toDecimal(raw interface{}) (decimal.Decimal, error) {
	switch v := raw.(type) {
	case string:
		return decimal.NewFromString(strings.TrimSpace(v))
	case float64:
		return decimal.NewFromFloat(v), nil
	case float32:
		return decimal.NewFromFloat32(v), nil
	case int:
		return decimal.NewFromInt(int64(v)), nil
	case int64:
		return decimal.NewFromInt(v), nil
	case decimal.Decimal:
		return v, nil
	default:
		return decimal.Zero, fmt.Errorf("expected numeric value, got %T", raw)
	}
}

func timestampField(index int, record models.RawTrade, field string) (time.Time, error) {
	raw, ok := record[field]
	if !ok {
		return time.Time{}, utils.NewMalformedRecordError(index, field, "missing required field")
	}

	switch v := raw.(type) {
	case string:
		trimmed := strings.TrimSpace(v)
		for _, layout := range timestampLayouts {
			if ts, err := time.Parse(layout, trimmed); err == nil {
				return ts.UTC(), nil
			}
		}
		// Epoch seconds arriving as a string, e.g. "1719522000" or "1719522000.25".
		if epoch, err := strconv.ParseFloat(trimmed, 64); err == nil && epoch > 0 {
			return epochToTime(epoch), nil
		}
		return time.Time{}, utils.NewMalformedRecordError(index, field, fmt.Sprintf("unparsable timestamp %q", v))
	case float64:
		if v <= 0 {
			return time.Time{}, utils.NewMalformedRecordError(index, field, "epoch timestamp must be positive")
		}
		return epochToTime(v), nil
	case int:
		if v <= 0 {
			return time.Time{}, utils.NewMalformedRecordError(index, field, "epoch timestamp must be positive")
		}
		return time.Unix(int64(v), 0).UTC(), nil
	case int64:
		if v <= 0 {
			return time.Time{}, utils.NewMalformedRecordError(index, field, "epoch timestamp must be positive")
		}
		return time.Unix(v, 0).UTC(), nil
	case time.Time:
		return v.UTC(), nil
	default:
		return time.Time{}, utils.NewMalformedRecordError(index, field, fmt.Sprintf("expected timestamp, got %T", raw))
	}
}

func epochToTime(epoch float64) time.Time {
	sec := int64(epoch)
	nsec := int64((epoch - float64(sec)) * float64(time.Second))
	return time.Unix(sec, nsec).UTC()
}
