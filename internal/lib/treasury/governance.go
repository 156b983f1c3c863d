package treasury

import (
	"fmt"

	"github.com/holiman/uint256"

	"github.com/polyfi/polyd/internal/lib/basis"
	"github.com/polyfi/polyd/internal/lib/fixedmath"
	"github.com/polyfi/polyd/internal/lib/misc"
)

// Every setter is operator-gated and validates its documented bounds before
// touching state - a rejected call mutates nothing.

func (t *Treasury) SetOperator(caller, operator string) error {
	t.Lock()
	defer t.Unlock()
	if err := t.checkOperator(caller); err != nil {
		return err
	}
	if operator == "" {
		return fmt.Errorf("%w: empty operator address", ErrOutOfRange)
	}
	t.state.Operator = operator
	return nil
}

func (t *Treasury) SetMasonry(caller string, masonry basis.Masonry) error {
	t.Lock()
	defer t.Unlock()
	if err := t.checkOperator(caller); err != nil {
		return err
	}
	t.masonry = masonry
	return nil
}

func (t *Treasury) SetPolyOracle(caller string, oracle basis.Oracle) error {
	t.Lock()
	defer t.Unlock()
	if err := t.checkOperator(caller); err != nil {
		return err
	}
	t.oracle = oracle
	return nil
}

func (t *Treasury) SetBondTreasury(caller string, bondTreasury basis.BondTreasury) error {
	t.Lock()
	defer t.Unlock()
	if err := t.checkOperator(caller); err != nil {
		return err
	}
	t.bondTreasury = bondTreasury
	return nil
}

// SetPolyPriceCeiling accepts values in [peg, 1.2*peg].
func (t *Treasury) SetPolyPriceCeiling(caller string, ceiling *uint256.Int) error {
	t.Lock()
	defer t.Unlock()
	if err := t.checkOperator(caller); err != nil {
		return err
	}
	upper, err := fixedmath.MulDiv(fixedmath.One, uint256.NewInt(120), uint256.NewInt(100))
	if err != nil {
		return err
	}
	if ceiling.Cmp(fixedmath.One) < 0 || ceiling.Cmp(upper) > 0 {
		return fmt.Errorf("%w: ceiling must be within [1e18, 1.2e18]", ErrOutOfRange)
	}
	t.state.PolyPriceCeiling = new(uint256.Int).Set(ceiling)
	return nil
}

// SetMaxSupplyExpansionPercents accepts [0.1%, 10%] in bps.
func (t *Treasury) SetMaxSupplyExpansionPercents(caller string, bps uint64) error {
	t.Lock()
	defer t.Unlock()
	if err := t.checkOperator(caller); err != nil {
		return err
	}
	if bps < MinExpansionPercent || bps > MaxExpansionPercent {
		return fmt.Errorf("%w: max supply expansion must be within [10, 1000] bps", ErrOutOfRange)
	}
	t.state.MaxSupplyExpansionPercent = bps
	return nil
}

// SetSupplyTiersEntry rewrites one tier threshold, keeping the table
// strictly increasing.  Index 0 is pinned at zero.
func (t *Treasury) SetSupplyTiersEntry(caller string, index int, value *uint256.Int) error {
	t.Lock()
	defer t.Unlock()
	if err := t.checkOperator(caller); err != nil {
		return err
	}
	if index <= 0 || index >= NumSupplyTiers {
		return ErrBadTierIndex
	}
	if value.Cmp(t.state.SupplyTiers[index-1]) <= 0 {
		return ErrTierOrdering
	}
	if index < NumSupplyTiers-1 && value.Cmp(t.state.SupplyTiers[index+1]) >= 0 {
		return ErrTierOrdering
	}
	t.state.SupplyTiers[index] = new(uint256.Int).Set(value)
	return nil
}

func (t *Treasury) SetMaxExpansionTiersEntry(caller string, index int, bps uint64) error {
	t.Lock()
	defer t.Unlock()
	if err := t.checkOperator(caller); err != nil {
		return err
	}
	if index < 0 || index >= NumSupplyTiers {
		return ErrBadTierIndex
	}
	if bps < MinExpansionPercent || bps > MaxExpansionPercent {
		return fmt.Errorf("%w: tier expansion must be within [10, 1000] bps", ErrOutOfRange)
	}
	t.state.MaxExpansionTiers[index] = bps
	return nil
}

// SetMaxSupplyContractionPercent accepts [0.1%, 15%] in bps.
func (t *Treasury) SetMaxSupplyContractionPercent(caller string, bps uint64) error {
	t.Lock()
	defer t.Unlock()
	if err := t.checkOperator(caller); err != nil {
		return err
	}
	if bps < MinContractionPercent || bps > MaxContractionPercent {
		return fmt.Errorf("%w: max supply contraction must be within [10, 1500] bps", ErrOutOfRange)
	}
	t.state.MaxSupplyContractionPercent = bps
	return nil
}

// SetMaxDebtRatioPercent accepts [10%, 100%] in bps.
func (t *Treasury) SetMaxDebtRatioPercent(caller string, bps uint64) error {
	t.Lock()
	defer t.Unlock()
	if err := t.checkOperator(caller); err != nil {
		return err
	}
	if bps < MinDebtRatioPercent || bps > MaxDebtRatioPercentUB {
		return fmt.Errorf("%w: max debt ratio must be within [1000, 10000] bps", ErrOutOfRange)
	}
	t.state.MaxDebtRatioPercent = bps
	return nil
}

func (t *Treasury) SetBootstrap(caller string, epochs, expansionBps uint64) error {
	t.Lock()
	defer t.Unlock()
	if err := t.checkOperator(caller); err != nil {
		return err
	}
	if epochs > MaxBootstrapEpochs {
		return fmt.Errorf("%w: bootstrap epochs cannot exceed %d", ErrOutOfRange, MaxBootstrapEpochs)
	}
	if expansionBps < 100 || expansionBps > MaxExpansionPercent {
		return fmt.Errorf("%w: bootstrap expansion must be within [100, 1000] bps", ErrOutOfRange)
	}
	t.state.BootstrapEpochs = epochs
	t.state.BootstrapSupplyExpansionPercent = expansionBps
	return nil
}

// SetExtraFunds configures the DAO (<=30%) and dev (<=10%) seigniorage cuts.
func (t *Treasury) SetExtraFunds(caller, daoFund string, daoBps uint64, devFund string, devBps uint64) error {
	t.Lock()
	defer t.Unlock()
	if err := t.checkOperator(caller); err != nil {
		return err
	}
	if daoBps > MaxDaoFundPercent {
		return fmt.Errorf("%w: dao fund share out of range", ErrOutOfRange)
	}
	if devBps > MaxDevFundPercent {
		return fmt.Errorf("%w: dev fund share out of range", ErrOutOfRange)
	}
	if daoBps > 0 && daoFund == "" {
		return fmt.Errorf("%w: dao fund address required", ErrOutOfRange)
	}
	if devBps > 0 && devFund == "" {
		return fmt.Errorf("%w: dev fund address required", ErrOutOfRange)
	}
	t.state.DaoFund = daoFund
	t.state.DaoFundSharedPercent = daoBps
	t.state.DevFund = devFund
	t.state.DevFundSharedPercent = devBps
	return nil
}

func (t *Treasury) SetMaxDiscountRate(caller string, rate *uint256.Int) error {
	t.Lock()
	defer t.Unlock()
	if err := t.checkOperator(caller); err != nil {
		return err
	}
	t.state.MaxDiscountRate = new(uint256.Int).Set(rate)
	return nil
}

func (t *Treasury) SetMaxPremiumRate(caller string, rate *uint256.Int) error {
	t.Lock()
	defer t.Unlock()
	if err := t.checkOperator(caller); err != nil {
		return err
	}
	t.state.MaxPremiumRate = new(uint256.Int).Set(rate)
	return nil
}

func (t *Treasury) SetDiscountPercent(caller string, bps uint64) error {
	t.Lock()
	defer t.Unlock()
	if err := t.checkOperator(caller); err != nil {
		return err
	}
	if bps > MaxDiscountPercentUB {
		return fmt.Errorf("%w: discount percent cannot exceed 200%%", ErrOutOfRange)
	}
	t.state.DiscountPercent = bps
	return nil
}

func (t *Treasury) SetPremiumPercent(caller string, bps uint64) error {
	t.Lock()
	defer t.Unlock()
	if err := t.checkOperator(caller); err != nil {
		return err
	}
	if bps > MaxPremiumPercentUB {
		return fmt.Errorf("%w: premium percent cannot exceed 200%%", ErrOutOfRange)
	}
	t.state.PremiumPercent = bps
	return nil
}

// SetPremiumThreshold is expressed as price*100, ie: 110 = 1.10.  It cannot
// sit below the ceiling or above 1.50.
func (t *Treasury) SetPremiumThreshold(caller string, threshold uint64) error {
	t.Lock()
	defer t.Unlock()
	if err := t.checkOperator(caller); err != nil {
		return err
	}
	floor, err := fixedmath.MulDiv(t.state.PolyPriceCeiling, uint256.NewInt(100), fixedmath.One)
	if err != nil {
		return err
	}
	if uint256.NewInt(threshold).Cmp(floor) < 0 || threshold > MaxPremiumThreshold {
		return fmt.Errorf("%w: premium threshold must be within [ceiling*100, 150]", ErrOutOfRange)
	}
	t.state.PremiumThreshold = threshold
	return nil
}

// SetMintingFactorForPayingDebt accepts [100%, 200%] in bps.
func (t *Treasury) SetMintingFactorForPayingDebt(caller string, bps uint64) error {
	t.Lock()
	defer t.Unlock()
	if err := t.checkOperator(caller); err != nil {
		return err
	}
	if bps < MinMintingFactor || bps > MaxMintingFactor {
		return fmt.Errorf("%w: minting factor must be within [10000, 20000] bps", ErrOutOfRange)
	}
	t.state.MintingFactorForPayingDebt = bps
	return nil
}

func (t *Treasury) SetBondSupplyExpansionPercent(caller string, bps uint64) error {
	t.Lock()
	defer t.Unlock()
	if err := t.checkOperator(caller); err != nil {
		return err
	}
	if bps > MaxExpansionPercent {
		return fmt.Errorf("%w: bond supply expansion cannot exceed 1000 bps", ErrOutOfRange)
	}
	t.state.BondSupplyExpansionPercent = bps
	return nil
}

// AddExcludedFromTotalSupply appends to the circulating-supply exclusion
// list.  Append-only; a duplicate entry double-subtracts its balance.
func (t *Treasury) AddExcludedFromTotalSupply(caller, addr string) error {
	t.Lock()
	defer t.Unlock()
	if err := t.checkOperator(caller); err != nil {
		return err
	}
	if addr == "" {
		return fmt.Errorf("%w: empty address", ErrOutOfRange)
	}
	t.state.Excluded = append(t.state.Excluded, addr)
	misc.Infof(t.logger, "address excluded from circulating supply: %s", addr)
	return nil
}

// GovernanceRecoverUnsupported sweeps stray tokens out of the treasury
// account - the protocol tokens themselves are off limits.
func (t *Treasury) GovernanceRecoverUnsupported(caller string, token basis.Token, amount *uint256.Int, to string) error {
	t.Lock()
	defer t.Unlock()
	if err := t.checkOperator(caller); err != nil {
		return err
	}
	switch token.Name() {
	case t.poly.Name(), t.bond.Name(), t.share.Name():
		return ErrProtectedToken
	}
	return token.Transfer(t.account, to, amount)
}

// ---- masonry admin passthroughs ----

func (t *Treasury) MasonrySetOperator(caller, operator string) error {
	t.Lock()
	defer t.Unlock()
	if err := t.checkOperator(caller); err != nil {
		return err
	}
	return t.masonry.SetOperator(operator)
}

func (t *Treasury) MasonrySetLockUp(caller string, withdrawLockupEpochs, rewardLockupEpochs uint64) error {
	t.Lock()
	defer t.Unlock()
	if err := t.checkOperator(caller); err != nil {
		return err
	}
	return t.masonry.SetLockUp(withdrawLockupEpochs, rewardLockupEpochs)
}

func (t *Treasury) MasonryAllocateSeigniorage(caller string, amount *uint256.Int) error {
	t.Lock()
	defer t.Unlock()
	if err := t.checkOperator(caller); err != nil {
		return err
	}
	return t.masonry.AllocateSeigniorage(amount)
}

func (t *Treasury) MasonryGovernanceRecoverUnsupported(caller string, token basis.Token, amount *uint256.Int, to string) error {
	t.Lock()
	defer t.Unlock()
	if err := t.checkOperator(caller); err != nil {
		return err
	}
	return t.masonry.GovernanceRecoverUnsupported(token, amount, to)
}
