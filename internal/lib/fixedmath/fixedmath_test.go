package fixedmath

import (
	"testing"

	"github.com/holiman/uint256"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCheckedArithmetic(t *testing.T) {
	maxVal := new(uint256.Int).SetAllOne()

	sum, err := Add(uint256.NewInt(2), uint256.NewInt(3))
	require.NoError(t, err)
	assert.Equal(t, uint64(5), sum.Uint64())

	_, err = Add(maxVal, uint256.NewInt(1))
	assert.ErrorIs(t, err, ErrOverflow)

	diff, err := Sub(uint256.NewInt(10), uint256.NewInt(4))
	require.NoError(t, err)
	assert.Equal(t, uint64(6), diff.Uint64())

	_, err = Sub(uint256.NewInt(4), uint256.NewInt(10))
	assert.ErrorIs(t, err, ErrUnderflow)

	_, err = Mul(maxVal, uint256.NewInt(2))
	assert.ErrorIs(t, err, ErrOverflow)

	_, err = Div(uint256.NewInt(1), uint256.NewInt(0))
	assert.ErrorIs(t, err, ErrDivByZero)
}

func TestMulDivFullPrecision(t *testing.T) {
	// (maxUint256/2) * 4 / 8 overflows a naive 256-bit intermediate but not
	// the 512-bit one
	half := new(uint256.Int).Rsh(new(uint256.Int).SetAllOne(), 1)
	got, err := MulDiv(half, uint256.NewInt(4), uint256.NewInt(8))
	require.NoError(t, err)
	assert.Equal(t, half, got)

	// result itself too large
	_, err = MulDiv(new(uint256.Int).SetAllOne(), uint256.NewInt(3), uint256.NewInt(2))
	assert.ErrorIs(t, err, ErrOverflow)
}

func TestPercent(t *testing.T) {
	testCases := []struct {
		name     string
		amount   *uint256.Int
		bps      uint64
		expected uint64
	}{
		{"whole", uint256.NewInt(500), 10000, 500},
		{"half", uint256.NewInt(500), 5000, 250},
		{"450 bps", uint256.NewInt(10000), 450, 450},
		{"zero bps", uint256.NewInt(500), 0, 0},
		{"truncates", uint256.NewInt(3), 5000, 1},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := Percent(tc.amount, tc.bps)
			require.NoError(t, err)
			assert.Equal(t, tc.expected, got.Uint64())
		})
	}
}

func TestScaleDown(t *testing.T) {
	// 2.5 * 3.0 = 7.5 in 18-decimal fixed point
	a := MustFromDec("2500000000000000000")
	b := MustFromDec("3000000000000000000")
	got, err := ScaleDown(a, b)
	require.NoError(t, err)
	assert.Equal(t, "7500000000000000000", got.Dec())
}

func TestMinReturnsCopy(t *testing.T) {
	a := uint256.NewInt(5)
	b := uint256.NewInt(9)
	m := Min(a, b)
	assert.Equal(t, uint64(5), m.Uint64())
	m.AddUint64(m, 100)
	assert.Equal(t, uint64(5), a.Uint64(), "mutating the result must not touch the input")
}
