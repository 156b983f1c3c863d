package treasury

import (
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/holiman/uint256"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/polyfi/polyd/internal/lib/basis"
	"github.com/polyfi/polyd/internal/lib/fixedmath"
)

const (
	opAddr       = "operator.test"
	treasuryAddr = "treasury.test"
	masonryAddr  = "masonry.test"
	bondTresAddr = "bonds.test"
	daoAddr      = "dao.test"
	devAddr      = "dev.test"
	alice        = "alice.test"
	bob          = "bob.test"
)

// fakeOracle serves a settable fixed price; Update is a counted no-op.
type fakeOracle struct {
	price   *uint256.Int
	updates int
}

func (f *fakeOracle) Consult(token string, amountIn *uint256.Int) (*uint256.Int, error) {
	if f.price == nil {
		return nil, errors.New("no observations")
	}
	return fixedmath.ScaleDown(f.price, amountIn)
}

func (f *fakeOracle) TWAP(token string, amountIn *uint256.Int) (*uint256.Int, error) {
	return f.Consult(token, amountIn)
}

func (f *fakeOracle) Update() error {
	f.updates++
	return nil
}

type fixture struct {
	clock    *basis.ManualClock
	poly     *basis.MemToken
	bond     *basis.MemToken
	share    *basis.MemToken
	oracle   *fakeOracle
	masonry  *basis.MemMasonry
	bondTres *basis.MemBondTreasury
	tr       *Treasury
}

func tokens(n uint64) *uint256.Int {
	return new(uint256.Int).Mul(uint256.NewInt(n), fixedmath.One)
}

// newFixture builds an initialized treasury holding 10k POLY of circulating
// supply (all at alice), started, with bootstrap disabled so price-gated
// behavior is reachable from epoch 0.
func newFixture(t *testing.T) *fixture {
	t.Helper()
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	clock := &basis.ManualClock{T: start, H: 1}

	f := &fixture{
		clock:    clock,
		poly:     basis.NewMemToken("POLY", treasuryAddr),
		bond:     basis.NewMemToken("PBOND", treasuryAddr),
		share:    basis.NewMemToken("PSHARE", treasuryAddr),
		oracle:   &fakeOracle{price: fixedmath.MustFromDec("1000000000000000000")},
		masonry:  basis.NewMemMasonry(masonryAddr, opAddr),
		bondTres: basis.NewMemBondTreasury(bondTresAddr, start, 365*24*time.Hour, func() time.Time { return clock.T }),
	}
	require.NoError(t, f.poly.Mint(alice, tokens(10_000)))

	f.tr = New(Config{
		Logger:       slog.Default(),
		Account:      treasuryAddr,
		Poly:         f.poly,
		Bond:         f.bond,
		Share:        f.share,
		Oracle:       f.oracle,
		Masonry:      f.masonry,
		BondTreasury: f.bondTres,
		Clock:        clock,
		Operator:     opAddr,
		DaoFund:      daoAddr,
		DevFund:      devAddr,
		StartTime:    start,
	})
	require.NoError(t, f.tr.Initialize(opAddr))
	require.NoError(t, f.tr.SetBootstrap(opAddr, 0, 450))
	return f
}

func (f *fixture) setPrice(dec string) {
	f.oracle.price = fixedmath.MustFromDec(dec)
}

// nextEpoch moves time past the next epoch point and onto a fresh block.
func (f *fixture) nextEpoch() {
	f.clock.Advance(DefaultPeriod)
	f.clock.NextBlock()
}

func TestInitializeGuards(t *testing.T) {
	f := newFixture(t)
	assert.ErrorIs(t, f.tr.Initialize(opAddr), ErrAlreadyInitialized)
	assert.ErrorIs(t, f.tr.Initialize(alice), ErrNotOperator)
}

func TestInitializeSeedsReserve(t *testing.T) {
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	clock := &basis.ManualClock{T: start, H: 1}
	poly := basis.NewMemToken("POLY", treasuryAddr)
	require.NoError(t, poly.Mint(treasuryAddr, tokens(77)))

	tr := New(Config{
		Logger:       slog.Default(),
		Account:      treasuryAddr,
		Poly:         poly,
		Bond:         basis.NewMemToken("PBOND", treasuryAddr),
		Share:        basis.NewMemToken("PSHARE", treasuryAddr),
		Oracle:       &fakeOracle{price: fixedmath.One},
		Masonry:      basis.NewMemMasonry(masonryAddr, opAddr),
		BondTreasury: basis.NewMemBondTreasury(bondTresAddr, start, time.Hour, func() time.Time { return clock.T }),
		Clock:        clock,
		Operator:     opAddr,
		StartTime:    start,
	})
	require.NoError(t, tr.Initialize(opAddr))
	assert.Equal(t, tokens(77), tr.Reserve())
}

func TestAllocateBeforeStart(t *testing.T) {
	f := newFixture(t)
	f.clock.T = f.clock.T.Add(-time.Hour)
	assert.ErrorIs(t, f.tr.AllocateSeigniorage(alice), ErrNotStarted)
}

func TestAllocateAdvancesExactlyOneEpoch(t *testing.T) {
	f := newFixture(t)
	f.setPrice("950000000000000000")

	require.NoError(t, f.tr.AllocateSeigniorage(alice))
	assert.Equal(t, uint64(1), f.tr.Epoch())
	assert.Equal(t, fixedmath.MustFromDec("950000000000000000"), f.tr.PreviousEpochPolyPrice())

	// same time, fresh block: epoch 1 has not opened yet
	f.clock.NextBlock()
	assert.ErrorIs(t, f.tr.AllocateSeigniorage(alice), ErrEpochNotOpened)

	f.nextEpoch()
	require.NoError(t, f.tr.AllocateSeigniorage(alice))
	assert.Equal(t, uint64(2), f.tr.Epoch())
}

func TestAllocateSetsContractionBudgetBelowCeiling(t *testing.T) {
	f := newFixture(t)
	f.setPrice("950000000000000000")
	require.NoError(t, f.tr.AllocateSeigniorage(alice))

	// 3% of the 10k circulating supply
	assert.Equal(t, tokens(300), f.tr.State().EpochSupplyContractionLeft)
}

func TestAllocateClearsBudgetAboveCeiling(t *testing.T) {
	f := newFixture(t)
	f.setPrice("950000000000000000")
	require.NoError(t, f.tr.AllocateSeigniorage(alice))
	require.False(t, f.tr.State().EpochSupplyContractionLeft.IsZero())

	f.setPrice("1050000000000000000")
	f.nextEpoch()
	require.NoError(t, f.tr.AllocateSeigniorage(alice))
	assert.True(t, f.tr.State().EpochSupplyContractionLeft.IsZero())
}

func TestExpansionSplitsToFunds(t *testing.T) {
	f := newFixture(t)
	f.setPrice("1050000000000000000")
	require.NoError(t, f.tr.AllocateSeigniorage(alice))

	// 5% above peg capped at tier 0's 4.5%: seigniorage = 450 POLY.
	// No bond debt outstanding, so everything routes through the masonry
	// after the 10% DAO and 3% dev carve-outs.
	assert.Equal(t, tokens(45), f.poly.BalanceOf(daoAddr))
	assert.Equal(t, fixedmath.MustFromDec("13500000000000000000"), f.poly.BalanceOf(devAddr))
	assert.Equal(t, fixedmath.MustFromDec("391500000000000000000"), f.masonry.TotalAllocated)
	assert.Equal(t, uint64(1), f.masonry.Allocations)
}

func TestExpansionSplitWithBondDebt(t *testing.T) {
	f := newFixture(t)
	// outstanding bonds and an empty reserve force the split path
	require.NoError(t, f.bond.Mint(alice, tokens(100)))
	f.setPrice("1050000000000000000")
	require.NoError(t, f.tr.AllocateSeigniorage(alice))

	// seigniorage 450: 35% (157.5) to masonry path, 65% (292.5) into reserve
	assert.Equal(t, fixedmath.MustFromDec("292500000000000000000"), f.tr.Reserve())
	expectedMasonry, _ := fixedmath.Percent(tokens(450), 3500)
	daoShare, _ := fixedmath.Percent(expectedMasonry, 1000)
	devShare, _ := fixedmath.Percent(expectedMasonry, 300)
	rest := new(uint256.Int).Sub(expectedMasonry, new(uint256.Int).Add(daoShare, devShare))
	assert.Equal(t, rest, f.masonry.TotalAllocated)
}

func TestBootstrapExpansionIgnoresPrice(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.tr.SetBootstrap(opAddr, 28, 450))
	f.setPrice("950000000000000000") // below peg - bootstrap mints anyway
	require.NoError(t, f.tr.AllocateSeigniorage(alice))

	assert.Equal(t, tokens(45), f.poly.BalanceOf(daoAddr))
	assert.False(t, f.masonry.TotalAllocated.IsZero())
}

func TestSupplyTierSelection(t *testing.T) {
	f := newFixture(t)
	// bring circulating supply to 6M: tier 5 (>=5M, <10M) caps at 200 bps
	require.NoError(t, f.poly.Mint(bob, tokens(5_990_000)))
	f.setPrice("1050000000000000000")
	require.NoError(t, f.tr.AllocateSeigniorage(alice))

	assert.Equal(t, uint64(200), f.tr.State().MaxSupplyExpansionPercent)
}

func TestCirculatingSupplyExclusions(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.poly.Mint(bob, tokens(400)))

	circ, err := f.tr.CirculatingSupply()
	require.NoError(t, err)
	assert.Equal(t, tokens(10_400), circ)

	require.NoError(t, f.tr.AddExcludedFromTotalSupply(opAddr, bob))
	circ, err = f.tr.CirculatingSupply()
	require.NoError(t, err)
	assert.Equal(t, tokens(10_000), circ)

	// the list is append-only: a duplicate entry subtracts twice
	require.NoError(t, f.tr.AddExcludedFromTotalSupply(opAddr, bob))
	circ, err = f.tr.CirculatingSupply()
	require.NoError(t, err)
	assert.Equal(t, tokens(9_600), circ)
}

func TestBondDiscountRateFlatWhenDisabled(t *testing.T) {
	f := newFixture(t)
	f.setPrice("950000000000000000")
	rate, err := f.tr.GetBondDiscountRate()
	require.NoError(t, err)
	assert.Equal(t, fixedmath.One, rate, "discountPercent=0 trades at peg 1:1")
}

func TestBondDiscountRateFull(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.tr.SetDiscountPercent(opAddr, 10000))
	f.setPrice("950000000000000000")
	rate, err := f.tr.GetBondDiscountRate()
	require.NoError(t, err)
	// full discount: rate = peg^2/price = 1/0.95
	assert.Equal(t, "1052631578947368421", rate.Dec())
}

func TestBondPremiumRate(t *testing.T) {
	f := newFixture(t)

	f.setPrice("1000000000000000000")
	rate, err := f.tr.GetBondPremiumRate()
	require.NoError(t, err)
	assert.True(t, rate.IsZero(), "at or below ceiling: not redeeming")

	f.setPrice("1050000000000000000")
	rate, err = f.tr.GetBondPremiumRate()
	require.NoError(t, err)
	assert.Equal(t, fixedmath.One, rate, "above ceiling but under the 1.10 threshold: peg rate")

	f.setPrice("1150000000000000000")
	rate, err = f.tr.GetBondPremiumRate()
	require.NoError(t, err)
	// 1 + 0.15*70% = 1.105
	assert.Equal(t, "1105000000000000000", rate.Dec())
}

func buyReady(t *testing.T) *fixture {
	f := newFixture(t)
	f.setPrice("950000000000000000")
	require.NoError(t, f.tr.AllocateSeigniorage(alice)) // budget now 300 POLY
	f.clock.NextBlock()
	return f
}

func TestBuyBondsConsumesBudget(t *testing.T) {
	f := buyReady(t)
	target := fixedmath.MustFromDec("950000000000000000")

	require.NoError(t, f.tr.BuyBonds(alice, tokens(100), target))
	assert.Equal(t, tokens(9_900), f.poly.BalanceOf(alice))
	assert.Equal(t, tokens(100), f.bond.BalanceOf(alice), "peg-rate bonds 1:1")
	assert.Equal(t, tokens(200), f.tr.State().EpochSupplyContractionLeft, "budget strictly decreases")
}

func TestBuyBondsGuards(t *testing.T) {
	f := buyReady(t)
	target := fixedmath.MustFromDec("950000000000000000")

	assert.ErrorIs(t, f.tr.BuyBonds(alice, new(uint256.Int), target), ErrZeroAmount)
	assert.ErrorIs(t, f.tr.BuyBonds(alice, tokens(1), fixedmath.One), ErrPriceMoved)
	assert.ErrorIs(t, f.tr.BuyBonds(alice, tokens(301), target), ErrNotEnoughBondsLeft)

	f.setPrice("1000000000000000000")
	assert.ErrorIs(t, f.tr.BuyBonds(alice, tokens(1), fixedmath.One), ErrPriceNotEligible)
}

func TestBuyBondsOneCallPerBlock(t *testing.T) {
	f := buyReady(t)
	target := fixedmath.MustFromDec("950000000000000000")

	require.NoError(t, f.tr.BuyBonds(alice, tokens(10), target))
	assert.ErrorIs(t, f.tr.BuyBonds(alice, tokens(10), target), ErrOneBlockOneCall)

	f.clock.NextBlock()
	require.NoError(t, f.tr.BuyBonds(alice, tokens(10), target))
}

func TestFailedCallDoesNotBurnBlock(t *testing.T) {
	f := buyReady(t)
	target := fixedmath.MustFromDec("950000000000000000")

	require.ErrorIs(t, f.tr.BuyBonds(alice, new(uint256.Int), target), ErrZeroAmount)
	// the failed call must not have consumed alice's slot for this block
	require.NoError(t, f.tr.BuyBonds(alice, tokens(10), target))
}

func TestRedeemBonds(t *testing.T) {
	f := buyReady(t)
	target := fixedmath.MustFromDec("950000000000000000")
	require.NoError(t, f.tr.BuyBonds(alice, tokens(100), target))

	// price recovers above the ceiling; treasury holds enough POLY
	require.NoError(t, f.poly.Mint(treasuryAddr, tokens(60)))
	f.setPrice("1050000000000000000")
	f.clock.NextBlock()
	redeemTarget := fixedmath.MustFromDec("1050000000000000000")

	assert.ErrorIs(t, f.tr.RedeemBonds(alice, tokens(100), redeemTarget), ErrNoBudget)
	require.NoError(t, f.tr.RedeemBonds(alice, tokens(50), redeemTarget))
	assert.Equal(t, tokens(50), f.bond.BalanceOf(alice))
	assert.Equal(t, tokens(9_950), f.poly.BalanceOf(alice))
}

func TestRedeemBondsGuards(t *testing.T) {
	f := buyReady(t)
	target := fixedmath.MustFromDec("950000000000000000")
	require.NoError(t, f.tr.BuyBonds(alice, tokens(100), target))
	require.NoError(t, f.poly.Mint(treasuryAddr, tokens(1_000)))
	f.clock.NextBlock()

	// at or below ceiling: not redeemable
	assert.ErrorIs(t, f.tr.RedeemBonds(alice, tokens(10), target), ErrPriceNotEligible)

	f.setPrice("1050000000000000000")
	redeemTarget := fixedmath.MustFromDec("1050000000000000000")
	assert.ErrorIs(t, f.tr.RedeemBonds(alice, tokens(101), redeemTarget), ErrNotEnoughBondsLeft)
	assert.ErrorIs(t, f.tr.RedeemBonds(bob, tokens(1), redeemTarget), ErrNotEnoughBondsLeft)
}

func TestRedeemDrawsDownReserve(t *testing.T) {
	f := newFixture(t)
	// reserve built up by an expansion epoch with bond debt outstanding
	require.NoError(t, f.bond.Mint(alice, tokens(100)))
	f.setPrice("1050000000000000000")
	require.NoError(t, f.tr.AllocateSeigniorage(bob))
	reserveBefore := f.tr.Reserve()
	require.False(t, reserveBefore.IsZero())

	f.clock.NextBlock()
	redeemTarget := fixedmath.MustFromDec("1050000000000000000")
	require.NoError(t, f.tr.RedeemBonds(alice, tokens(50), redeemTarget))
	expected := new(uint256.Int).Sub(reserveBefore, tokens(50))
	assert.Equal(t, expected, f.tr.Reserve())
}

func TestGetBurnablePolyLeft(t *testing.T) {
	f := buyReady(t)
	left, err := f.tr.GetBurnablePolyLeft()
	require.NoError(t, err)
	assert.Equal(t, tokens(300), left, "budget binds before the debt ceiling")

	f.setPrice("1050000000000000000")
	left, err = f.tr.GetBurnablePolyLeft()
	require.NoError(t, err)
	assert.True(t, left.IsZero(), "nothing is burnable above peg")
}

func TestCheckTokenOperators(t *testing.T) {
	f := buyReady(t)
	f.poly.SetOperator(alice)
	target := fixedmath.MustFromDec("950000000000000000")
	assert.ErrorIs(t, f.tr.BuyBonds(alice, tokens(1), target), ErrNeedMorePermission)
}

func TestGovernanceBounds(t *testing.T) {
	f := newFixture(t)

	tests := []struct {
		name string
		call func() error
		err  error
	}{
		{"ceiling below peg", func() error {
			return f.tr.SetPolyPriceCeiling(opAddr, fixedmath.MustFromDec("990000000000000000"))
		}, ErrOutOfRange},
		{"ceiling above 1.2", func() error {
			return f.tr.SetPolyPriceCeiling(opAddr, fixedmath.MustFromDec("1210000000000000000"))
		}, ErrOutOfRange},
		{"expansion too small", func() error {
			return f.tr.SetMaxSupplyExpansionPercents(opAddr, 9)
		}, ErrOutOfRange},
		{"expansion too large", func() error {
			return f.tr.SetMaxSupplyExpansionPercents(opAddr, 1001)
		}, ErrOutOfRange},
		{"contraction too large", func() error {
			return f.tr.SetMaxSupplyContractionPercent(opAddr, 1501)
		}, ErrOutOfRange},
		{"debt ratio too small", func() error {
			return f.tr.SetMaxDebtRatioPercent(opAddr, 999)
		}, ErrOutOfRange},
		{"bootstrap too long", func() error {
			return f.tr.SetBootstrap(opAddr, 121, 450)
		}, ErrOutOfRange},
		{"dao share too large", func() error {
			return f.tr.SetExtraFunds(opAddr, daoAddr, 3001, devAddr, 300)
		}, ErrOutOfRange},
		{"dev fund address missing", func() error {
			return f.tr.SetExtraFunds(opAddr, daoAddr, 1000, "", 300)
		}, ErrOutOfRange},
		{"discount percent too large", func() error {
			return f.tr.SetDiscountPercent(opAddr, 20001)
		}, ErrOutOfRange},
		{"premium threshold below ceiling", func() error {
			return f.tr.SetPremiumThreshold(opAddr, 100)
		}, ErrOutOfRange},
		{"premium threshold above 1.50", func() error {
			return f.tr.SetPremiumThreshold(opAddr, 151)
		}, ErrOutOfRange},
		{"minting factor below 100%", func() error {
			return f.tr.SetMintingFactorForPayingDebt(opAddr, 9999)
		}, ErrOutOfRange},
		{"tier index zero pinned", func() error {
			return f.tr.SetSupplyTiersEntry(opAddr, 0, tokens(1))
		}, ErrBadTierIndex},
		{"tier not above predecessor", func() error {
			return f.tr.SetSupplyTiersEntry(opAddr, 2, tokens(500_000))
		}, ErrTierOrdering},
		{"tier not below successor", func() error {
			return f.tr.SetSupplyTiersEntry(opAddr, 2, tokens(1_500_000))
		}, ErrTierOrdering},
		{"not the operator", func() error {
			return f.tr.SetMaxSupplyContractionPercent(alice, 300)
		}, ErrNotOperator},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			assert.ErrorIs(t, tc.call(), tc.err)
		})
	}

	// in-bounds calls stick
	require.NoError(t, f.tr.SetPremiumThreshold(opAddr, 120))
	require.NoError(t, f.tr.SetSupplyTiersEntry(opAddr, 2, tokens(1_200_000)))
	assert.Equal(t, tokens(1_200_000), f.tr.State().SupplyTiers[2])
}

func TestGovernanceRecoverUnsupported(t *testing.T) {
	f := newFixture(t)
	stray := basis.NewMemToken("OTHER", opAddr)
	require.NoError(t, stray.Mint(treasuryAddr, tokens(5)))

	assert.ErrorIs(t, f.tr.GovernanceRecoverUnsupported(opAddr, f.poly, tokens(1), opAddr), ErrProtectedToken)
	assert.ErrorIs(t, f.tr.GovernanceRecoverUnsupported(alice, stray, tokens(1), alice), ErrNotOperator)

	require.NoError(t, f.tr.GovernanceRecoverUnsupported(opAddr, stray, tokens(5), opAddr))
	assert.Equal(t, tokens(5), stray.BalanceOf(opAddr))
}

func TestMasonryPassthroughs(t *testing.T) {
	f := newFixture(t)
	assert.ErrorIs(t, f.tr.MasonrySetLockUp(alice, 6, 3), ErrNotOperator)
	require.NoError(t, f.tr.MasonrySetLockUp(opAddr, 6, 3))
	assert.Equal(t, uint64(6), f.masonry.WithdrawLockupEpochs)
	assert.Equal(t, uint64(3), f.masonry.RewardLockupEpochs)
}

func TestBuyBondsAbortLeavesStateIntact(t *testing.T) {
	f := buyReady(t)
	require.NoError(t, f.poly.Mint(bob, tokens(5)))
	target := fixedmath.MustFromDec("950000000000000000")

	// the burn is the first mutation; a caller short on POLY aborts with
	// nothing minted, no budget consumed and no block slot recorded
	assert.ErrorIs(t, f.tr.BuyBonds(bob, tokens(10), target), basis.ErrInsufficientBalance)
	assert.True(t, f.bond.TotalSupply().IsZero())
	assert.Equal(t, tokens(5), f.poly.BalanceOf(bob))
	assert.Equal(t, tokens(300), f.tr.State().EpochSupplyContractionLeft)

	require.NoError(t, f.tr.BuyBonds(bob, tokens(5), target))
	assert.Equal(t, tokens(5), f.bond.BalanceOf(bob))
}
