package chain

import (
	"math/big"

	"github.com/shopspring/decimal"
)

// ToBaseUnits converts a human amount to token base units. Digits beyond
// the token precision are truncated, never rounded up.
func ToBaseUnits(amount decimal.Decimal, decimals int32) *big.Int {
	return amount.Truncate(decimals).Shift(decimals).BigInt()
}

// FromBaseUnits converts token base units back to a human amount.
func FromBaseUnits(value *big.Int, decimals int32) decimal.Decimal {
	if value == nil {
		return decimal.Zero
	}
	return decimal.NewFromBigInt(value, -decimals)
}
