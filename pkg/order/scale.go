package order

import (
	"fmt"

	"github.com/holiman/uint256"
	"github.com/shopspring/decimal"
)

// Decimal places of the on-chain integer representations
const (
	Base18Decimals = 18
	USDCDecimals   = 6
	SuiDecimals    = 9
)

func ToBase18(v decimal.Decimal) (*uint256.Int, error)   { return ToBase(v, Base18Decimals) }
func ToUSDCBase(v decimal.Decimal) (*uint256.Int, error) { return ToBase(v, USDCDecimals) }
func ToSuiBase(v decimal.Decimal) (*uint256.Int, error)  { return ToBase(v, SuiDecimals) }

func FromBase18(v *uint256.Int) decimal.Decimal   { return FromBase(v, Base18Decimals) }
func FromUSDCBase(v *uint256.Int) decimal.Decimal { return FromBase(v, USDCDecimals) }
func FromSuiBase(v *uint256.Int) decimal.Decimal  { return FromBase(v, SuiDecimals) }

// ToBase scales v by 10^decimals exactly. Values that would need rounding are rejected.
func ToBase(v decimal.Decimal, decimals int32) (*uint256.Int, error) {
	if v.IsNegative() {
		return nil, fmt.Errorf("cannot scale negative value %s", v)
	}
	scaled := v.Shift(decimals)
	if !scaled.IsInteger() {
		return nil, fmt.Errorf("value %s has more than %d decimal places", v, decimals)
	}
	out, overflow := uint256.FromBig(scaled.BigInt())
	if overflow {
		return nil, fmt.Errorf("value %s overflows 256 bits", v)
	}
	return out, nil
}

func FromBase(v *uint256.Int, decimals int32) decimal.Decimal {
	if v == nil {
		return decimal.Zero
	}
	return decimal.NewFromBigInt(v.ToBig(), -decimals)
}
