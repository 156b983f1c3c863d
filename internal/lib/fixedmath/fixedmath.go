// Package fixedmath is checked 256-bit arithmetic on 18-decimal fixed-point
// values.  Every operation that can overflow, underflow or divide by zero
// reports it as an error so callers can abort the whole ledger operation
// rather than commit a wrapped result.
package fixedmath

import (
	"errors"

	"github.com/holiman/uint256"
)

// One is the fixed-point unit (1e18).  Treat as read-only.
var One = uint256.NewInt(1e18)

// BpsDenom is the denominator for basis-point percentages (10000 = 100%).
var BpsDenom = uint256.NewInt(10000)

var (
	ErrOverflow  = errors.New("fixedmath: overflow")
	ErrUnderflow = errors.New("fixedmath: underflow")
	ErrDivByZero = errors.New("fixedmath: division by zero")
)

func Zero() *uint256.Int {
	return new(uint256.Int)
}

func FromUint64(v uint64) *uint256.Int {
	return uint256.NewInt(v)
}

// MustFromDec parses a decimal string, panicking on bad input.  For
// compile-time constants only.
func MustFromDec(s string) *uint256.Int {
	return uint256.MustFromDecimal(s)
}

func Add(a, b *uint256.Int) (*uint256.Int, error) {
	sum, carry := new(uint256.Int).AddOverflow(a, b)
	if carry {
		return nil, ErrOverflow
	}
	return sum, nil
}

func Sub(a, b *uint256.Int) (*uint256.Int, error) {
	diff, borrow := new(uint256.Int).SubOverflow(a, b)
	if borrow {
		return nil, ErrUnderflow
	}
	return diff, nil
}

func Mul(a, b *uint256.Int) (*uint256.Int, error) {
	prod, overflow := new(uint256.Int).MulOverflow(a, b)
	if overflow {
		return nil, ErrOverflow
	}
	return prod, nil
}

func Div(a, b *uint256.Int) (*uint256.Int, error) {
	if b.IsZero() {
		return nil, ErrDivByZero
	}
	return new(uint256.Int).Div(a, b), nil
}

// MulDiv returns a*b/den computed with a 512-bit intermediate, so the product
// may exceed 256 bits as long as the quotient fits.
func MulDiv(a, b, den *uint256.Int) (*uint256.Int, error) {
	if den.IsZero() {
		return nil, ErrDivByZero
	}
	res, overflow := new(uint256.Int).MulDivOverflow(a, b, den)
	if overflow {
		return nil, ErrOverflow
	}
	return res, nil
}

// Percent returns a*bps/10000.
func Percent(a *uint256.Int, bps uint64) (*uint256.Int, error) {
	return MulDiv(a, uint256.NewInt(bps), BpsDenom)
}

// ScaleDown returns a*b/1e18, the fixed-point multiply.
func ScaleDown(a, b *uint256.Int) (*uint256.Int, error) {
	return MulDiv(a, b, One)
}

func Min(a, b *uint256.Int) *uint256.Int {
	if a.Cmp(b) <= 0 {
		return new(uint256.Int).Set(a)
	}
	return new(uint256.Int).Set(b)
}
