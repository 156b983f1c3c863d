// Package treasury implements the seigniorage monetary-policy engine: an
// epoch-gated state machine that expands or contracts circulating POLY supply
// against its peg, funds the masonry reward sink, and services bond debt.
// All entry points are all-or-nothing: guards and arithmetic run before any
// ledger mutation is committed.
package treasury

import (
	"fmt"
	"log/slog"
	"math/big"
	"sync"
	"time"

	"github.com/holiman/uint256"

	"github.com/polyfi/polyd/internal/lib/basis"
	"github.com/polyfi/polyd/internal/lib/fixedmath"
	"github.com/polyfi/polyd/internal/lib/misc"
)

// State is everything that must survive across calls.  Exported (and JSON
// tagged) purely for the daemon state file; mutate only through Treasury.
type State struct {
	Initialized   bool   `json:"initialized"`
	Operator      string `json:"operator"`
	StartTime     int64  `json:"startTime"`
	PeriodSeconds int64  `json:"periodSecs"`
	Epoch         uint64 `json:"epoch"`

	EpochSupplyContractionLeft *uint256.Int `json:"epochSupplyContractionLeft"`
	SeigniorageSaved           *uint256.Int `json:"seigniorageSaved"`
	PreviousEpochPolyPrice     *uint256.Int `json:"previousEpochPolyPrice"`
	PolyPriceCeiling           *uint256.Int `json:"polyPriceCeiling"`

	Excluded []string `json:"excludedFromTotalSupply"`

	SupplyTiers               [NumSupplyTiers]*uint256.Int `json:"supplyTiers"`
	MaxExpansionTiers         [NumSupplyTiers]uint64       `json:"maxExpansionTiers"`
	MaxSupplyExpansionPercent uint64                       `json:"maxSupplyExpansionPercent"`

	BondDepletionFloorPercent        uint64 `json:"bondDepletionFloorPercent"`
	SeigniorageExpansionFloorPercent uint64 `json:"seigniorageExpansionFloorPercent"`
	MaxSupplyContractionPercent      uint64 `json:"maxSupplyContractionPercent"`
	MaxDebtRatioPercent              uint64 `json:"maxDebtRatioPercent"`

	BootstrapEpochs                 uint64 `json:"bootstrapEpochs"`
	BootstrapSupplyExpansionPercent uint64 `json:"bootstrapSupplyExpansionPercent"`

	DiscountPercent  uint64       `json:"discountPercent"`
	PremiumPercent   uint64       `json:"premiumPercent"`
	PremiumThreshold uint64       `json:"premiumThreshold"`
	MaxDiscountRate  *uint256.Int `json:"maxDiscountRate,omitempty"` // nil = no clamp
	MaxPremiumRate   *uint256.Int `json:"maxPremiumRate,omitempty"`  // nil = no clamp

	MintingFactorForPayingDebt uint64 `json:"mintingFactorForPayingDebt"`
	BondSupplyExpansionPercent uint64 `json:"bondSupplyExpansionPercent"`

	DaoFund              string `json:"daoFund"`
	DevFund              string `json:"devFund"`
	DaoFundSharedPercent uint64 `json:"daoFundSharedPercent"`
	DevFundSharedPercent uint64 `json:"devFundSharedPercent"`

	// LastCalledBlock enforces one mutating call per caller per block.
	LastCalledBlock map[string]uint64 `json:"lastCalledBlock"`
}

type Config struct {
	Logger  *slog.Logger
	Account string // the treasury's own address on the token ledgers

	Poly         basis.Token
	Bond         basis.Token
	Share        basis.Token
	Oracle       basis.Oracle
	Masonry      basis.Masonry
	BondTreasury basis.BondTreasury
	Clock        basis.Clock

	Operator  string
	DaoFund   string
	DevFund   string
	StartTime time.Time
	Period    time.Duration
}

type Treasury struct {
	logger  *slog.Logger
	account string

	poly         basis.Token
	bond         basis.Token
	share        basis.Token
	oracle       basis.Oracle
	masonry      basis.Masonry
	bondTreasury basis.BondTreasury
	clock        basis.Clock

	// embed mutex for locking state for members below the mutex
	sync.RWMutex
	state State
}

func New(cfg Config) *Treasury {
	period := cfg.Period
	if period == 0 {
		period = DefaultPeriod
	}
	ceiling, _ := fixedmath.MulDiv(fixedmath.One, uint256.NewInt(101), uint256.NewInt(100))
	return &Treasury{
		logger:       cfg.Logger,
		account:      cfg.Account,
		poly:         cfg.Poly,
		bond:         cfg.Bond,
		share:        cfg.Share,
		oracle:       cfg.Oracle,
		masonry:      cfg.Masonry,
		bondTreasury: cfg.BondTreasury,
		clock:        cfg.Clock,
		state: State{
			Operator:      cfg.Operator,
			StartTime:     cfg.StartTime.Unix(),
			PeriodSeconds: int64(period / time.Second),

			EpochSupplyContractionLeft: new(uint256.Int),
			SeigniorageSaved:           new(uint256.Int),
			PreviousEpochPolyPrice:     new(uint256.Int),
			PolyPriceCeiling:           ceiling,

			SupplyTiers:       defaultSupplyTiers(),
			MaxExpansionTiers: defaultMaxExpansionTiers(),

			BondDepletionFloorPercent:        DefaultBondDepletionFloorPercent,
			SeigniorageExpansionFloorPercent: DefaultSeigniorageExpansionFloorPercent,
			MaxSupplyContractionPercent:      DefaultMaxSupplyContractionPercent,
			MaxDebtRatioPercent:              DefaultMaxDebtRatioPercent,

			BootstrapEpochs:                 DefaultBootstrapEpochs,
			BootstrapSupplyExpansionPercent: DefaultBootstrapSupplyExpansionPercent,

			DiscountPercent:  DefaultDiscountPercent,
			PremiumPercent:   DefaultPremiumPercent,
			PremiumThreshold: DefaultPremiumThreshold,

			MintingFactorForPayingDebt: DefaultMintingFactorForPayingDebt,
			BondSupplyExpansionPercent: DefaultBondSupplyExpansionPercent,

			DaoFund:              cfg.DaoFund,
			DevFund:              cfg.DevFund,
			DaoFundSharedPercent: DefaultDaoFundSharedPercent,
			DevFundSharedPercent: DefaultDevFundSharedPercent,

			LastCalledBlock: map[string]uint64{},
		},
	}
}

// Initialize is the one-time arming of the engine: the existing treasury POLY
// balance seeds the seigniorage reserve.
func (t *Treasury) Initialize(caller string) error {
	t.Lock()
	defer t.Unlock()
	if err := t.checkOperator(caller); err != nil {
		return err
	}
	if t.state.Initialized {
		return ErrAlreadyInitialized
	}
	t.state.SeigniorageSaved = t.poly.BalanceOf(t.account)
	t.state.Initialized = true
	misc.Infof(t.logger, "treasury initialized, reserve seeded with %s POLY", t.state.SeigniorageSaved.Dec())
	return nil
}

// State returns a shallow snapshot for display and persistence.
func (t *Treasury) State() State {
	t.RLock()
	defer t.RUnlock()
	return t.state
}

// Restore replaces the whole state, used on daemon startup.
func (t *Treasury) Restore(s State) {
	t.Lock()
	defer t.Unlock()
	if s.LastCalledBlock == nil {
		s.LastCalledBlock = map[string]uint64{}
	}
	t.state = s
}

func (t *Treasury) Account() string { return t.account }

func (t *Treasury) Epoch() uint64 {
	t.RLock()
	defer t.RUnlock()
	return t.state.Epoch
}

// NextEpochPoint is startTime + epoch*period: the earliest instant the next
// epoch-gated call may succeed.
func (t *Treasury) NextEpochPoint() time.Time {
	t.RLock()
	defer t.RUnlock()
	return t.nextEpochPoint()
}

func (t *Treasury) nextEpochPoint() time.Time {
	return time.Unix(t.state.StartTime+int64(t.state.Epoch)*t.state.PeriodSeconds, 0)
}

func (t *Treasury) Reserve() *uint256.Int {
	t.RLock()
	defer t.RUnlock()
	return new(uint256.Int).Set(t.state.SeigniorageSaved)
}

func (t *Treasury) PreviousEpochPolyPrice() *uint256.Int {
	t.RLock()
	defer t.RUnlock()
	return new(uint256.Int).Set(t.state.PreviousEpochPolyPrice)
}

// GetPolyPrice consults the oracle for the 18-decimal POLY price.  Oracle
// failure here is fatal to whatever operation needed the price.
func (t *Treasury) GetPolyPrice() (*uint256.Int, error) {
	price, err := t.oracle.Consult(t.poly.Name(), fixedmath.One)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrOracleConsult, err)
	}
	return price, nil
}

// GetPolyUpdatedPrice reads the in-flight TWAP, same hard-fail contract.
func (t *Treasury) GetPolyUpdatedPrice() (*uint256.Int, error) {
	price, err := t.oracle.TWAP(t.poly.Name(), fixedmath.One)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrOracleConsult, err)
	}
	return price, nil
}

// updatePolyPrice is the best-effort oracle refresh - failures are swallowed.
func (t *Treasury) updatePolyPrice() {
	if err := t.oracle.Update(); err != nil {
		misc.Debugf(t.logger, "oracle update skipped: %v", err)
	}
}

// CirculatingSupply is totalSupply minus every excluded balance.  An address
// listed twice is subtracted twice; the list is append-only and governance
// owns not duplicating entries.
func (t *Treasury) CirculatingSupply() (*uint256.Int, error) {
	t.RLock()
	defer t.RUnlock()
	return t.circulatingSupply()
}

func (t *Treasury) circulatingSupply() (*uint256.Int, error) {
	supply := t.poly.TotalSupply()
	for _, addr := range t.state.Excluded {
		var err error
		supply, err = fixedmath.Sub(supply, t.poly.BalanceOf(addr))
		if err != nil {
			return nil, fmt.Errorf("treasury: excluded balances exceed total supply: %w", err)
		}
	}
	return supply, nil
}

// ---- guards ----

func (t *Treasury) checkOperator(caller string) error {
	if caller != t.state.Operator {
		return ErrNotOperator
	}
	return nil
}

func (t *Treasury) checkCondition() error {
	if t.clock.Now().Before(time.Unix(t.state.StartTime, 0)) {
		return ErrNotStarted
	}
	return nil
}

func (t *Treasury) checkEpoch() error {
	if t.clock.Now().Before(t.nextEpochPoint()) {
		return ErrEpochNotOpened
	}
	return nil
}

// checkOneBlock rejects a second mutating call from the same caller within
// the same block height; recordBlock commits the height only after the whole
// operation has succeeded.
func (t *Treasury) checkOneBlock(caller string) error {
	h := t.clock.Height()
	if last, ok := t.state.LastCalledBlock[caller]; ok && last == h {
		return ErrOneBlockOneCall
	}
	return nil
}

func (t *Treasury) recordBlock(caller string) {
	t.state.LastCalledBlock[caller] = t.clock.Height()
}

// checkTokenOperators verifies the treasury still holds operator authority
// over the protocol tokens; without it no mint/burn can be honored.
func (t *Treasury) checkTokenOperators() error {
	for _, tok := range []basis.Token{t.poly, t.bond, t.share} {
		if tok.Operator() != t.account {
			return fmt.Errorf("%w: not operator of token %s", ErrNeedMorePermission, tok.Name())
		}
	}
	return nil
}

// closeEpoch advances the counter and recomputes the contraction budget from
// the price snapshot taken by the body of the gated call.
func (t *Treasury) closeEpoch(price *uint256.Int) error {
	t.state.Epoch++
	if price.Cmp(t.state.PolyPriceCeiling) > 0 {
		t.state.EpochSupplyContractionLeft = new(uint256.Int)
		return nil
	}
	circ, err := t.circulatingSupply()
	if err != nil {
		return err
	}
	budget, err := fixedmath.Percent(circ, t.state.MaxSupplyContractionPercent)
	if err != nil {
		return err
	}
	t.state.EpochSupplyContractionLeft = budget
	return nil
}

// RefreshMetrics pushes the current aggregate into the prometheus gauges.
// Price is fetched fresh and skipped when the oracle has nothing yet.
func (t *Treasury) RefreshMetrics() {
	t.RLock()
	defer t.RUnlock()
	promEpoch.Set(float64(t.state.Epoch))
	promSeigniorageSaved.Set(toFloat(t.state.SeigniorageSaved))
	promContractionLeft.Set(toFloat(t.state.EpochSupplyContractionLeft))
	if circ, err := t.circulatingSupply(); err == nil {
		promCirculatingSupply.Set(toFloat(circ))
	}
	if price, err := t.GetPolyPrice(); err == nil {
		promPolyPrice.Set(toFloat(price))
	}
}

// toFloat scales an 18-decimal fixed-point value down to a display float.
func toFloat(v *uint256.Int) float64 {
	if v == nil {
		return 0
	}
	f := new(big.Float).SetInt(v.ToBig())
	f.Quo(f, big.NewFloat(1e18))
	out, _ := f.Float64()
	return out
}
