package proof

import (
	"fmt"
	"math/big"

	"gocsprbridge/types"
)

var ten = big.NewInt(10)

// Convert moves amount between units whose decimal exponents differ by delta
// (destination decimals minus source decimals). Positive delta multiplies and is
// exact, negative delta divides and truncates toward zero. Results that truncate
// to zero or need more than maxBits fail with types.ErrConversion.
func Convert(amount *big.Int, delta int, maxBits int) (*big.Int, error) {
	if amount == nil || amount.Sign() <= 0 {
		return nil, fmt.Errorf("%w: non-positive amount %v", types.ErrConversion, amount)
	}

	scale := new(big.Int).Exp(ten, big.NewInt(int64(abs(delta))), nil)
	res := new(big.Int).Set(amount)
	if delta >= 0 {
		res.Mul(res, scale)
	} else {
		// Quo truncates, amounts are positive so this never rounds up
		res.Quo(res, scale)
	}

	if res.Sign() == 0 {
		return nil, fmt.Errorf("%w: %s truncates to zero (dust) at delta %d", types.ErrConversion, amount, delta)
	}
	if maxBits > 0 && res.BitLen() > maxBits {
		return nil, fmt.Errorf("%w: %s overflows %d bits at delta %d", types.ErrConversion, amount, maxBits, delta)
	}
	return res, nil
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}
