package treasury

import (
	"github.com/holiman/uint256"

	"github.com/polyfi/polyd/internal/lib/fixedmath"
	"github.com/polyfi/polyd/internal/lib/misc"
)

// maxExpansionPercentFor resolves the tier table for the given circulating
// supply - highest tier whose threshold is at or below the supply wins - and
// caches the result in MaxSupplyExpansionPercent.  The cache is externally
// observable state, not just an optimization, so it is written on every
// lookup.  Caller holds the write lock.
func (t *Treasury) maxExpansionPercentFor(supply *uint256.Int) uint64 {
	for idx := NumSupplyTiers - 1; idx >= 0; idx-- {
		if supply.Cmp(t.state.SupplyTiers[idx]) >= 0 {
			t.state.MaxSupplyExpansionPercent = t.state.MaxExpansionTiers[idx]
			return t.state.MaxExpansionTiers[idx]
		}
	}
	// tier 0 threshold is zero, so the scan cannot fall through; keep the
	// cached value as-is if it somehow does
	return t.state.MaxSupplyExpansionPercent
}

// AllocateSeigniorage is the once-per-epoch policy step: snapshot the epoch
// TWAP, fund the bond treasury, then either run bootstrap expansion or the
// price-gated expansion split between masonry and bond-debt reserve.
func (t *Treasury) AllocateSeigniorage(caller string) error {
	t.Lock()
	defer t.Unlock()

	if err := t.checkOneBlock(caller); err != nil {
		return err
	}
	if err := t.checkCondition(); err != nil {
		return err
	}
	if err := t.checkEpoch(); err != nil {
		return err
	}
	if err := t.checkTokenOperators(); err != nil {
		return err
	}

	t.updatePolyPrice()
	price, err := t.GetPolyPrice()
	if err != nil {
		return err
	}
	t.state.PreviousEpochPolyPrice = price

	circ, err := t.circulatingSupply()
	if err != nil {
		return err
	}
	// expansion math runs on supply net of the reserve already set aside
	polySupply, err := fixedmath.Sub(circ, fixedmath.Min(circ, t.state.SeigniorageSaved))
	if err != nil {
		return err
	}

	bondTreasuryAmount, err := fixedmath.Percent(polySupply, t.state.BondSupplyExpansionPercent)
	if err != nil {
		return err
	}
	if err := t.sendToBondTreasury(bondTreasuryAmount); err != nil {
		return err
	}

	if t.state.Epoch < t.state.BootstrapEpochs {
		// bootstrap: fixed expansion straight to masonry, no price check
		amount, err := fixedmath.Percent(polySupply, t.state.BootstrapSupplyExpansionPercent)
		if err != nil {
			return err
		}
		if err := t.sendToMasonry(amount); err != nil {
			return err
		}
	} else if price.Cmp(t.state.PolyPriceCeiling) > 0 {
		// expansion epoch: mint a fraction of supply proportional to how far
		// the TWAP sits above peg, capped by the supply tier
		bondSupply := t.bond.TotalSupply()
		percentage, err := fixedmath.Sub(price, fixedmath.One)
		if err != nil {
			return err
		}
		tierCap, err := fixedmath.Mul(
			uint256.NewInt(t.maxExpansionPercentFor(polySupply)), uint256.NewInt(1e14))
		if err != nil {
			return err
		}
		if percentage.Cmp(tierCap) > 0 {
			percentage = tierCap
		}
		seigniorage, err := fixedmath.ScaleDown(polySupply, percentage)
		if err != nil {
			return err
		}

		debtFloor, err := fixedmath.Percent(bondSupply, t.state.BondDepletionFloorPercent)
		if err != nil {
			return err
		}
		if t.state.SeigniorageSaved.Cmp(debtFloor) >= 0 {
			// bond debt fully provisioned - everything goes to the masonry
			if err := t.sendToMasonry(seigniorage); err != nil {
				return err
			}
		} else {
			// split: floor share to masonry, remainder minted into the
			// reserve to pay bond debt down
			forMasonry, err := fixedmath.Percent(seigniorage, t.state.SeigniorageExpansionFloorPercent)
			if err != nil {
				return err
			}
			forBond, err := fixedmath.Sub(seigniorage, forMasonry)
			if err != nil {
				return err
			}
			if t.state.MintingFactorForPayingDebt > 0 {
				forBond, err = fixedmath.Percent(forBond, t.state.MintingFactorForPayingDebt)
				if err != nil {
					return err
				}
			}
			if !forMasonry.IsZero() {
				if err := t.sendToMasonry(forMasonry); err != nil {
					return err
				}
			}
			if !forBond.IsZero() {
				saved, err := fixedmath.Add(t.state.SeigniorageSaved, forBond)
				if err != nil {
					return err
				}
				if err := t.poly.Mint(t.account, forBond); err != nil {
					return err
				}
				t.state.SeigniorageSaved = saved
				misc.Infof(t.logger, "treasury funded for bond debt: %s POLY, reserve now %s", forBond.Dec(), saved.Dec())
			}
		}
	}
	// below ceiling past bootstrap: no expansion this epoch

	if err := t.closeEpoch(price); err != nil {
		return err
	}
	t.recordBlock(caller)
	misc.Infof(t.logger, "seigniorage allocated, now at epoch:%d, previous epoch price:%s", t.state.Epoch, price.Dec())
	return nil
}

// sendToMasonry mints fresh POLY, carves out the DAO and dev fund shares and
// pushes the remainder into the masonry's allocateSeigniorage.
func (t *Treasury) sendToMasonry(amount *uint256.Int) error {
	if amount.IsZero() {
		return nil
	}
	if err := t.poly.Mint(t.account, amount); err != nil {
		return err
	}
	rest := new(uint256.Int).Set(amount)
	if t.state.DaoFundSharedPercent > 0 {
		daoShare, err := fixedmath.Percent(amount, t.state.DaoFundSharedPercent)
		if err != nil {
			return err
		}
		if err := t.poly.Transfer(t.account, t.state.DaoFund, daoShare); err != nil {
			return err
		}
		rest.Sub(rest, daoShare)
	}
	if t.state.DevFundSharedPercent > 0 {
		devShare, err := fixedmath.Percent(amount, t.state.DevFundSharedPercent)
		if err != nil {
			return err
		}
		if err := t.poly.Transfer(t.account, t.state.DevFund, devShare); err != nil {
			return err
		}
		rest.Sub(rest, devShare)
	}
	if err := t.poly.Transfer(t.account, t.masonry.Account(), rest); err != nil {
		return err
	}
	if err := t.masonry.AllocateSeigniorage(rest); err != nil {
		return err
	}
	misc.Infof(t.logger, "masonry funded: %s POLY (dao/dev shares taken first)", rest.Dec())
	return nil
}

// sendToBondTreasury tops the bond treasury up to the requested amount over
// whatever unvested balance it still holds.
func (t *Treasury) sendToBondTreasury(amount *uint256.Int) error {
	if amount.IsZero() || t.bondTreasury == nil {
		return nil
	}
	balance := t.poly.BalanceOf(t.bondTreasury.Account())
	vested := t.bondTreasury.TotalVested()
	if vested.Cmp(balance) >= 0 {
		return nil
	}
	unspent := new(uint256.Int).Sub(balance, vested)
	if amount.Cmp(unspent) <= 0 {
		return nil
	}
	shortfall := new(uint256.Int).Sub(amount, unspent)
	if err := t.poly.Mint(t.bondTreasury.Account(), shortfall); err != nil {
		return err
	}
	t.bondTreasury.NoteFunding(shortfall)
	misc.Infof(t.logger, "bond treasury funded: %s POLY", shortfall.Dec())
	return nil
}
