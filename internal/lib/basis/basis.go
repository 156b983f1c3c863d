// Package basis defines the capability surfaces the treasury and reward pool
// operate against: asset tokens with mint/burn authority, the price oracle,
// the masonry staking sink and the bond treasury.  The engine never talks to
// anything but these interfaces, so tests and the local ledger inject their
// own implementations.
package basis

import (
	"time"

	"github.com/holiman/uint256"
)

// Token is the IBasisAsset-style capability: the holder of a Token value has
// mint/burn authority over it (the treasury is the operator of its tokens).
type Token interface {
	Name() string
	Mint(to string, amount *uint256.Int) error
	BurnFrom(from string, amount *uint256.Int) error
	Transfer(from, to string, amount *uint256.Int) error
	BalanceOf(addr string) *uint256.Int
	TotalSupply() *uint256.Int
	Operator() string
}

// Oracle supplies the pegged-token price as an 18-decimal fixed-point value.
// Consult/TWAP errors are fatal to the calling operation; Update errors are
// best-effort and get swallowed by the caller.
type Oracle interface {
	Consult(token string, amountIn *uint256.Int) (*uint256.Int, error)
	TWAP(token string, amountIn *uint256.Int) (*uint256.Int, error)
	Update() error
}

// Masonry is the staking reward sink receiving allocated seigniorage.
type Masonry interface {
	Account() string
	AllocateSeigniorage(amount *uint256.Int) error
	SetOperator(addr string) error
	SetLockUp(withdrawLockupEpochs, rewardLockupEpochs uint64) error
	GovernanceRecoverUnsupported(token Token, amount *uint256.Int, to string) error
}

// BondTreasury is the vesting sink funded ahead of bond demand.  NoteFunding
// informs it of an inbound treasury mint so vesting has a base to work from.
type BondTreasury interface {
	Account() string
	TotalVested() *uint256.Int
	NoteFunding(amount *uint256.Int)
}

// Clock provides ledger time.  Height is the block counter: the treasury
// honors at most one mutating call per caller per height.
type Clock interface {
	Now() time.Time
	Height() uint64
}
