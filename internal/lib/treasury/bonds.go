package treasury

import (
	"github.com/holiman/uint256"

	"github.com/polyfi/polyd/internal/lib/fixedmath"
	"github.com/polyfi/polyd/internal/lib/misc"
)

// GetBondDiscountRate returns the POLY-per-bond rate for bond purchases, or
// zero when price is above peg (zero means "inactive" and callers must treat
// it as a hard failure).
func (t *Treasury) GetBondDiscountRate() (*uint256.Int, error) {
	t.RLock()
	defer t.RUnlock()
	price, err := t.GetPolyPrice()
	if err != nil {
		return nil, err
	}
	return t.bondDiscountRate(price)
}

func (t *Treasury) bondDiscountRate(price *uint256.Int) (*uint256.Int, error) {
	if price.Cmp(fixedmath.One) > 0 {
		return new(uint256.Int), nil
	}
	if t.state.DiscountPercent == 0 {
		// no discount
		return new(uint256.Int).Set(fixedmath.One), nil
	}
	// bondAmount = peg*1e18/price: POLY cost of one unit of bond-equivalent burn
	bondAmount, err := fixedmath.MulDiv(fixedmath.One, fixedmath.One, price)
	if err != nil {
		return nil, err
	}
	overPeg, err := fixedmath.Sub(bondAmount, fixedmath.One)
	if err != nil {
		return nil, err
	}
	discount, err := fixedmath.Percent(overPeg, t.state.DiscountPercent)
	if err != nil {
		return nil, err
	}
	rate, err := fixedmath.Add(fixedmath.One, discount)
	if err != nil {
		return nil, err
	}
	if t.state.MaxDiscountRate != nil && !t.state.MaxDiscountRate.IsZero() && rate.Cmp(t.state.MaxDiscountRate) > 0 {
		rate = new(uint256.Int).Set(t.state.MaxDiscountRate)
	}
	return rate, nil
}

// GetBondPremiumRate returns the POLY-per-bond rate for redemptions, or zero
// when price is at or below the ceiling.
func (t *Treasury) GetBondPremiumRate() (*uint256.Int, error) {
	t.RLock()
	defer t.RUnlock()
	price, err := t.GetPolyPrice()
	if err != nil {
		return nil, err
	}
	return t.bondPremiumRate(price)
}

func (t *Treasury) bondPremiumRate(price *uint256.Int) (*uint256.Int, error) {
	if price.Cmp(t.state.PolyPriceCeiling) <= 0 {
		return new(uint256.Int), nil
	}
	thresholdPrice, err := fixedmath.MulDiv(fixedmath.One, uint256.NewInt(t.state.PremiumThreshold), uint256.NewInt(100))
	if err != nil {
		return nil, err
	}
	if price.Cmp(thresholdPrice) < 0 {
		// price above ceiling but below premium threshold: redeemable at peg
		return new(uint256.Int).Set(fixedmath.One), nil
	}
	overPeg, err := fixedmath.Sub(price, fixedmath.One)
	if err != nil {
		return nil, err
	}
	premium, err := fixedmath.Percent(overPeg, t.state.PremiumPercent)
	if err != nil {
		return nil, err
	}
	rate, err := fixedmath.Add(fixedmath.One, premium)
	if err != nil {
		return nil, err
	}
	if t.state.MaxPremiumRate != nil && !t.state.MaxPremiumRate.IsZero() && rate.Cmp(t.state.MaxPremiumRate) > 0 {
		rate = new(uint256.Int).Set(t.state.MaxPremiumRate)
	}
	return rate, nil
}

// GetBurnablePolyLeft is how much POLY can still be burned into bonds this
// epoch, the lesser of the contraction budget and the debt-ceiling headroom.
func (t *Treasury) GetBurnablePolyLeft() (*uint256.Int, error) {
	t.RLock()
	defer t.RUnlock()
	price, err := t.GetPolyPrice()
	if err != nil {
		return nil, err
	}
	if price.Cmp(fixedmath.One) > 0 {
		return new(uint256.Int), nil
	}
	circ, err := t.circulatingSupply()
	if err != nil {
		return nil, err
	}
	bondMaxSupply, err := fixedmath.Percent(circ, t.state.MaxDebtRatioPercent)
	if err != nil {
		return nil, err
	}
	bondSupply := t.bond.TotalSupply()
	if bondMaxSupply.Cmp(bondSupply) <= 0 {
		return new(uint256.Int), nil
	}
	maxMintableBond := new(uint256.Int).Sub(bondMaxSupply, bondSupply)
	maxBurnablePoly, err := fixedmath.ScaleDown(maxMintableBond, price)
	if err != nil {
		return nil, err
	}
	return fixedmath.Min(t.state.EpochSupplyContractionLeft, maxBurnablePoly), nil
}

// GetRedeemableBonds is how many bonds the current treasury POLY balance can
// cover at the present premium rate.
func (t *Treasury) GetRedeemableBonds() (*uint256.Int, error) {
	t.RLock()
	defer t.RUnlock()
	price, err := t.GetPolyPrice()
	if err != nil {
		return nil, err
	}
	if price.Cmp(t.state.PolyPriceCeiling) <= 0 {
		return new(uint256.Int), nil
	}
	rate, err := t.bondPremiumRate(price)
	if err != nil || rate.IsZero() {
		return new(uint256.Int), err
	}
	return fixedmath.MulDiv(t.poly.BalanceOf(t.account), fixedmath.One, rate)
}

// BuyBonds burns the caller's POLY below peg and mints bonds at the discount
// rate, consuming the epoch contraction budget.
func (t *Treasury) BuyBonds(caller string, polyAmount, targetPrice *uint256.Int) error {
	t.Lock()
	defer t.Unlock()

	if err := t.checkOneBlock(caller); err != nil {
		return err
	}
	if err := t.checkCondition(); err != nil {
		return err
	}
	if err := t.checkTokenOperators(); err != nil {
		return err
	}
	if polyAmount == nil || polyAmount.IsZero() {
		return ErrZeroAmount
	}

	price, err := t.GetPolyPrice()
	if err != nil {
		return err
	}
	if price.Cmp(targetPrice) != 0 {
		return ErrPriceMoved
	}
	if price.Cmp(fixedmath.One) >= 0 {
		return ErrPriceNotEligible // price must be < peg
	}
	if polyAmount.Cmp(t.state.EpochSupplyContractionLeft) > 0 {
		return ErrNotEnoughBondsLeft
	}
	rate, err := t.bondDiscountRate(price)
	if err != nil {
		return err
	}
	if rate.IsZero() {
		return ErrInvalidBondRate
	}
	bondAmount, err := fixedmath.ScaleDown(polyAmount, rate)
	if err != nil {
		return err
	}
	circ, err := t.circulatingSupply()
	if err != nil {
		return err
	}
	newBondSupply, err := fixedmath.Add(t.bond.TotalSupply(), bondAmount)
	if err != nil {
		return err
	}
	debtCeiling, err := fixedmath.Percent(circ, t.state.MaxDebtRatioPercent)
	if err != nil {
		return err
	}
	if newBondSupply.Cmp(debtCeiling) > 0 {
		return ErrOverDebtCeiling
	}
	// all preconditions hold; the burn is the first mutation, so an
	// insufficient caller balance still aborts cleanly
	if err := t.poly.BurnFrom(caller, polyAmount); err != nil {
		return err
	}
	// the mint cannot fail here: supply headroom was proven by the
	// newBondSupply computation and a balance never exceeds total supply
	if err := t.bond.Mint(caller, bondAmount); err != nil {
		return err
	}
	t.state.EpochSupplyContractionLeft = new(uint256.Int).Sub(t.state.EpochSupplyContractionLeft, polyAmount)
	t.updatePolyPrice()
	t.recordBlock(caller)

	promBondsBought.Inc()
	misc.Infof(t.logger, "bonds bought: caller:%s burned:%s POLY minted:%s BOND", caller, polyAmount.Dec(), bondAmount.Dec())
	return nil
}

// RedeemBonds burns the caller's bonds above the ceiling and pays POLY at the
// premium rate from the treasury balance, drawing the reserve down (floored
// at zero).
func (t *Treasury) RedeemBonds(caller string, bondAmount, targetPrice *uint256.Int) error {
	t.Lock()
	defer t.Unlock()

	if err := t.checkOneBlock(caller); err != nil {
		return err
	}
	if err := t.checkCondition(); err != nil {
		return err
	}
	if err := t.checkTokenOperators(); err != nil {
		return err
	}
	if bondAmount == nil || bondAmount.IsZero() {
		return ErrZeroAmount
	}

	price, err := t.GetPolyPrice()
	if err != nil {
		return err
	}
	if price.Cmp(targetPrice) != 0 {
		return ErrPriceMoved
	}
	if price.Cmp(t.state.PolyPriceCeiling) <= 0 {
		return ErrPriceNotEligible // price must be > ceiling
	}
	rate, err := t.bondPremiumRate(price)
	if err != nil {
		return err
	}
	if rate.IsZero() {
		return ErrInvalidBondRate
	}
	polyAmount, err := fixedmath.ScaleDown(bondAmount, rate)
	if err != nil {
		return err
	}
	if t.poly.BalanceOf(t.account).Cmp(polyAmount) < 0 {
		return ErrNoBudget
	}
	if t.bond.BalanceOf(caller).Cmp(bondAmount) < 0 {
		return ErrNotEnoughBondsLeft
	}

	t.state.SeigniorageSaved = new(uint256.Int).Sub(
		t.state.SeigniorageSaved, fixedmath.Min(t.state.SeigniorageSaved, polyAmount))
	if err := t.bond.BurnFrom(caller, bondAmount); err != nil {
		return err
	}
	if err := t.poly.Transfer(t.account, caller, polyAmount); err != nil {
		return err
	}
	t.updatePolyPrice()
	t.recordBlock(caller)

	promBondsRedeemed.Inc()
	misc.Infof(t.logger, "bonds redeemed: caller:%s burned:%s BOND paid:%s POLY", caller, bondAmount.Dec(), polyAmount.Dec())
	return nil
}
