package basis

import (
	"testing"
	"time"

	"github.com/holiman/uint256"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemTokenMintBurnTransfer(t *testing.T) {
	tok := NewMemToken("POLY", "treasury.test")

	require.NoError(t, tok.Mint("alice", uint256.NewInt(1000)))
	assert.Equal(t, uint64(1000), tok.TotalSupply().Uint64())
	assert.Equal(t, uint64(1000), tok.BalanceOf("alice").Uint64())

	require.NoError(t, tok.Transfer("alice", "bob", uint256.NewInt(400)))
	assert.Equal(t, uint64(600), tok.BalanceOf("alice").Uint64())
	assert.Equal(t, uint64(400), tok.BalanceOf("bob").Uint64())
	assert.Equal(t, uint64(1000), tok.TotalSupply().Uint64(), "transfer must not change supply")

	require.NoError(t, tok.BurnFrom("bob", uint256.NewInt(150)))
	assert.Equal(t, uint64(250), tok.BalanceOf("bob").Uint64())
	assert.Equal(t, uint64(850), tok.TotalSupply().Uint64())
}

func TestMemTokenInsufficientBalance(t *testing.T) {
	tok := NewMemToken("POLY", "treasury.test")
	require.NoError(t, tok.Mint("alice", uint256.NewInt(10)))

	assert.ErrorIs(t, tok.Transfer("alice", "bob", uint256.NewInt(11)), ErrInsufficientBalance)
	assert.ErrorIs(t, tok.BurnFrom("alice", uint256.NewInt(11)), ErrInsufficientBalance)
	// failed calls must leave balances alone
	assert.Equal(t, uint64(10), tok.BalanceOf("alice").Uint64())
	assert.Equal(t, uint64(10), tok.TotalSupply().Uint64())
}

func TestMemTokenZeroAddress(t *testing.T) {
	tok := NewMemToken("POLY", "treasury.test")
	assert.ErrorIs(t, tok.Mint("", uint256.NewInt(1)), ErrZeroAddress)
	assert.ErrorIs(t, tok.Transfer("", "bob", uint256.NewInt(1)), ErrZeroAddress)
	assert.ErrorIs(t, tok.Transfer("bob", "", uint256.NewInt(1)), ErrZeroAddress)
}

func TestMemTokenBalanceOfReturnsCopy(t *testing.T) {
	tok := NewMemToken("POLY", "treasury.test")
	require.NoError(t, tok.Mint("alice", uint256.NewInt(5)))
	bal := tok.BalanceOf("alice")
	bal.AddUint64(bal, 100)
	assert.Equal(t, uint64(5), tok.BalanceOf("alice").Uint64())
}

func TestLedgerClockHeight(t *testing.T) {
	clock := NewLedgerClock(7)
	assert.Equal(t, uint64(7), clock.Height())
	assert.Equal(t, uint64(8), clock.Tick())
	assert.Equal(t, uint64(8), clock.Height())
	clock.Set(42)
	assert.Equal(t, uint64(42), clock.Height())
}

func TestMemBondTreasuryVesting(t *testing.T) {
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	clock := &ManualClock{T: start}
	bt := NewMemBondTreasury("bonds.test", start, 100*time.Second, func() time.Time { return clock.T })
	bt.NoteFunding(uint256.NewInt(1000))

	assert.True(t, bt.TotalVested().IsZero(), "nothing vests at t=0")

	clock.Advance(25 * time.Second)
	assert.Equal(t, uint64(250), bt.TotalVested().Uint64())

	clock.Advance(75 * time.Second)
	assert.Equal(t, uint64(1000), bt.TotalVested().Uint64())

	clock.Advance(time.Hour)
	assert.Equal(t, uint64(1000), bt.TotalVested().Uint64(), "vesting caps at received")
}

func TestMemMasonryAllocations(t *testing.T) {
	m := NewMemMasonry("masonry.test", "op.test")
	require.NoError(t, m.AllocateSeigniorage(uint256.NewInt(100)))
	require.NoError(t, m.AllocateSeigniorage(uint256.NewInt(50)))
	assert.Equal(t, uint64(150), m.TotalAllocated.Uint64())
	assert.Equal(t, uint64(2), m.Allocations)
}
