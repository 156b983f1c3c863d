package treasury

import (
	"time"

	"github.com/holiman/uint256"

	"github.com/polyfi/polyd/internal/lib/fixedmath"
)

const (
	// DefaultPeriod is the epoch length gating every policy adjustment.
	DefaultPeriod = 6 * time.Hour

	// NumSupplyTiers is the fixed size of the expansion tier table.
	NumSupplyTiers = 9

	// Governance setter bounds, all basis points unless noted.
	MinExpansionPercent   = 10   // 0.1%
	MaxExpansionPercent   = 1000 // 10%
	MinContractionPercent = 10   // 0.1%
	MaxContractionPercent = 1500 // 15%
	MinDebtRatioPercent   = 1000 // 10%
	MaxDebtRatioPercentUB = 10000
	MaxBootstrapEpochs    = 120
	MaxDaoFundPercent     = 3000 // 30%
	MaxDevFundPercent     = 1000 // 10%
	MaxDiscountPercentUB  = 20000 // 200%
	MaxPremiumPercentUB   = 20000
	MinMintingFactor      = 10000 // 100%
	MaxMintingFactor      = 20000 // 200%
	MaxPremiumThreshold   = 150
)

// Launch defaults.
const (
	DefaultBootstrapEpochs                  = 28
	DefaultBootstrapSupplyExpansionPercent  = 450
	DefaultMaxSupplyContractionPercent      = 300
	DefaultMaxDebtRatioPercent              = 3500
	DefaultBondDepletionFloorPercent        = 10000
	DefaultSeigniorageExpansionFloorPercent = 3500
	DefaultMintingFactorForPayingDebt       = 10000
	DefaultPremiumThreshold                 = 110
	DefaultPremiumPercent                   = 7000
	DefaultDiscountPercent                  = 0
	DefaultBondSupplyExpansionPercent       = 500
	DefaultDaoFundSharedPercent             = 1000
	DefaultDevFundSharedPercent             = 300
)

// defaultSupplyTiers returns the launch expansion table: thresholds in
// circulating POLY and the max expansion (bps) granted below the next tier.
func defaultSupplyTiers() [NumSupplyTiers]*uint256.Int {
	return [NumSupplyTiers]*uint256.Int{
		fixedmath.MustFromDec("0"),
		fixedmath.MustFromDec("500000000000000000000000"),   // 500k
		fixedmath.MustFromDec("1000000000000000000000000"),  // 1M
		fixedmath.MustFromDec("1500000000000000000000000"),  // 1.5M
		fixedmath.MustFromDec("2000000000000000000000000"),  // 2M
		fixedmath.MustFromDec("5000000000000000000000000"),  // 5M
		fixedmath.MustFromDec("10000000000000000000000000"), // 10M
		fixedmath.MustFromDec("20000000000000000000000000"), // 20M
		fixedmath.MustFromDec("50000000000000000000000000"), // 50M
	}
}

func defaultMaxExpansionTiers() [NumSupplyTiers]uint64 {
	return [NumSupplyTiers]uint64{450, 400, 350, 300, 250, 200, 150, 125, 100}
}
