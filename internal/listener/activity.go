package listener

import (
	"math/big"
	"strings"

	"usdc-vault-custody/internal/chain"
	"usdc-vault-custody/internal/models"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// transfer is an activity that passed filtering.
type transfer struct {
	hash   string
	from   string
	amount decimal.Decimal
}

// parseTransfer keeps incoming transfers of the configured token to the
// platform wallet. Address comparisons are case-insensitive.
func (r *Reconciler) parseTransfer(activity models.Activity) (transfer, bool) {
	category := strings.ToLower(activity.Category)
	if category != "erc20" && category != "token" {
		return transfer{}, false
	}

	if !strings.EqualFold(contractAddress(activity), r.token.Address) {
		return transfer{}, false
	}
	if !strings.EqualFold(strings.TrimSpace(activity.ToAddress), r.platform) {
		return transfer{}, false
	}

	from := strings.ToLower(strings.TrimSpace(activity.FromAddress))
	hash := strings.ToLower(strings.TrimSpace(activity.Hash))
	if from == "" || hash == "" {
		zap.L().Debug("Skipping activity without sender or hash",
			zap.String("tx_hash", hash),
			zap.String("from", from))
		return transfer{}, false
	}

	amount, ok := activityAmount(activity, r.token.Decimals)
	if !ok || !amount.IsPositive() {
		zap.L().Debug("Skipping activity without a positive amount", zap.String("tx_hash", hash))
		return transfer{}, false
	}

	return transfer{hash: hash, from: from, amount: amount}, true
}

func contractAddress(activity models.Activity) string {
	if activity.RawContract != nil && activity.RawContract.Address != "" {
		return strings.TrimSpace(activity.RawContract.Address)
	}
	if activity.Log != nil {
		return strings.TrimSpace(activity.Log.Address)
	}
	return ""
}

// activityAmount reads the undivided value (hex or decimal) and scales it by
// the token decimals, falling back to the indexer's pre-scaled value field.
func activityAmount(activity models.Activity, decimals int32) (decimal.Decimal, bool) {
	raw := ""
	if activity.RawContract != nil {
		raw = activity.RawContract.RawValue
	}
	if raw == "" && activity.Log != nil {
		raw = activity.Log.Data
	}

	if value, ok := parseBaseUnits(raw); ok {
		return chain.FromBaseUnits(value, decimals), true
	}

	fallback := strings.Trim(strings.TrimSpace(string(activity.Value)), `"`)
	if fallback == "" || fallback == "null" {
		return decimal.Zero, false
	}
	amount, err := decimal.NewFromString(fallback)
	if err != nil {
		return decimal.Zero, false
	}
	return amount, true
}

func parseBaseUnits(raw string) (*big.Int, bool) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, false
	}
	if strings.HasPrefix(raw, "0x") || strings.HasPrefix(raw, "0X") {
		return new(big.Int).SetString(raw[2:], 16)
	}
	return new(big.Int).SetString(raw, 10)
}
