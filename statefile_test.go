package main

import (
	"log/slog"
	"testing"
	"time"

	"github.com/holiman/uint256"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/polyfi/polyd/internal/lib/basis"
	"github.com/polyfi/polyd/internal/lib/fixedmath"
	"github.com/polyfi/polyd/internal/lib/oracle"
	"github.com/polyfi/polyd/internal/lib/rewardpool"
	"github.com/polyfi/polyd/internal/lib/treasury"
)

func newTestLedger(t *testing.T) *Ledger {
	t.Helper()
	t.Setenv("POLYD_DATADIR", t.TempDir())
	statePath, err := StateFilename("sandbox")
	require.NoError(t, err)

	clock := basis.NewLedgerClock(0)
	start := time.Now().Add(-time.Hour)
	poly := basis.NewMemToken("POLY", "treasury.test")
	require.NoError(t, poly.Mint("alice.test", new(uint256.Int).Mul(uint256.NewInt(10_000), fixedmath.One)))

	twap := oracle.New(poly.Name(), treasury.DefaultPeriod, clock)
	require.NoError(t, twap.Post(fixedmath.One))

	led := &Ledger{
		logger:            slog.Default(),
		path:              statePath,
		network:           "sandbox",
		Clock:             clock,
		Poly:              poly,
		Bond:              basis.NewMemToken("PBOND", "treasury.test"),
		Share:             basis.NewMemToken("PSHARE", "treasury.test"),
		Oracle:            twap,
		Masonry:           basis.NewMemMasonry("masonry.test", "op.test"),
		BondTreasury:      basis.NewMemBondTreasury("bonds.test", start, 365*24*time.Hour, clock.Now),
		TreasuryAccount:   "treasury.test",
		RewardPoolAccount: "pool.test",
	}
	led.Treasury = treasury.New(treasury.Config{
		Logger:       led.logger,
		Account:      led.TreasuryAccount,
		Poly:         led.Poly,
		Bond:         led.Bond,
		Share:        led.Share,
		Oracle:       led.Oracle,
		Masonry:      led.Masonry,
		BondTreasury: led.BondTreasury,
		Clock:        clock,
		Operator:     "op.test",
		DaoFund:      "dao.test",
		DevFund:      "dev.test",
		StartTime:    start,
	})
	require.NoError(t, led.Treasury.Initialize("op.test"))

	pool, err := rewardpool.New(rewardpool.Config{
		Logger:    led.logger,
		Poly:      led.Poly,
		Account:   led.RewardPoolAccount,
		Clock:     clock,
		Operator:  "op.test",
		StartTime: start,
	})
	require.NoError(t, err)
	led.Pool = pool
	return led
}

func TestLedgerSaveLoadRoundTrip(t *testing.T) {
	led := newTestLedger(t)
	_, err := led.Pool.Add("op.test", 100, led.Share, false, time.Time{})
	require.NoError(t, err)
	require.NoError(t, led.Commit())
	require.NoError(t, led.Commit())

	loaded, err := LoadLedger(slog.Default(), "sandbox")
	require.NoError(t, err)

	assert.Equal(t, uint64(2), loaded.Clock.Height())
	assert.Equal(t, led.TreasuryAccount, loaded.TreasuryAccount)
	assert.Equal(t, led.Poly.BalanceOf("alice.test"), loaded.Poly.BalanceOf("alice.test"))
	assert.Equal(t, led.Treasury.Epoch(), loaded.Treasury.Epoch())
	assert.Equal(t, led.Treasury.State().Operator, loaded.Treasury.State().Operator)

	// the restored pool was rewired to the restored share token
	poolState := loaded.Pool.State()
	require.Len(t, poolState.Pools, 1)
	assert.Equal(t, "PSHARE", poolState.Pools[0].TokenName)

	// the open oracle window survives the reload
	assert.Equal(t, fixedmath.One, loaded.Oracle.LastSpot)
	assert.Equal(t, "POLY", loaded.Oracle.TrackedToken)
}

func TestLoadLedgerMissingFile(t *testing.T) {
	t.Setenv("POLYD_DATADIR", t.TempDir())
	_, err := LoadLedger(slog.Default(), "sandbox")
	require.Error(t, err)
}
