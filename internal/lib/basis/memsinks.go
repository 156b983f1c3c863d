package basis

import (
	"sync"
	"time"

	"github.com/holiman/uint256"

	"github.com/polyfi/polyd/internal/lib/fixedmath"
)

// MemMasonry is the reference reward sink.  It only records what the treasury
// pushed at it; actual boardroom staking lives outside this daemon.
type MemMasonry struct {
	mu sync.RWMutex

	Addr                 string       `json:"account"`
	Op                   string       `json:"operator"`
	TotalAllocated       *uint256.Int `json:"totalAllocated"`
	Allocations          uint64       `json:"allocations"`
	WithdrawLockupEpochs uint64       `json:"withdrawLockupEpochs"`
	RewardLockupEpochs   uint64       `json:"rewardLockupEpochs"`
}

func NewMemMasonry(account, operator string) *MemMasonry {
	return &MemMasonry{Addr: account, Op: operator, TotalAllocated: new(uint256.Int)}
}

func (m *MemMasonry) Account() string { return m.Addr }

func (m *MemMasonry) AllocateSeigniorage(amount *uint256.Int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	total, err := fixedmath.Add(m.TotalAllocated, amount)
	if err != nil {
		return err
	}
	m.TotalAllocated = total
	m.Allocations++
	return nil
}

func (m *MemMasonry) SetOperator(addr string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Op = addr
	return nil
}

func (m *MemMasonry) SetLockUp(withdrawLockupEpochs, rewardLockupEpochs uint64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.WithdrawLockupEpochs = withdrawLockupEpochs
	m.RewardLockupEpochs = rewardLockupEpochs
	return nil
}

func (m *MemMasonry) GovernanceRecoverUnsupported(token Token, amount *uint256.Int, to string) error {
	return token.Transfer(m.Addr, to, amount)
}

// MemBondTreasury vests whatever it has been funded with linearly over
// VestDuration from VestStart.
type MemBondTreasury struct {
	mu sync.RWMutex

	Addr          string       `json:"account"`
	Received      *uint256.Int `json:"received"`
	VestStart     int64        `json:"vestStart"`
	VestDuration  int64        `json:"vestDurationSecs"`
	nowFn         func() time.Time
}

func NewMemBondTreasury(account string, vestStart time.Time, vestDuration time.Duration, nowFn func() time.Time) *MemBondTreasury {
	if nowFn == nil {
		nowFn = time.Now
	}
	return &MemBondTreasury{
		Addr:         account,
		Received:     new(uint256.Int),
		VestStart:    vestStart.Unix(),
		VestDuration: int64(vestDuration / time.Second),
		nowFn:        nowFn,
	}
}

func (b *MemBondTreasury) Account() string { return b.Addr }

// SetNowFunc re-attaches the time source after a state-file restore.
func (b *MemBondTreasury) SetNowFunc(nowFn func() time.Time) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if nowFn == nil {
		nowFn = time.Now
	}
	b.nowFn = nowFn
}

// NoteFunding records an inbound mint so vesting has a base to work from.
func (b *MemBondTreasury) NoteFunding(amount *uint256.Int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if sum, err := fixedmath.Add(b.Received, amount); err == nil {
		b.Received = sum
	}
}

func (b *MemBondTreasury) TotalVested() *uint256.Int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	elapsed := b.nowFn().Unix() - b.VestStart
	if elapsed <= 0 || b.VestDuration <= 0 {
		return new(uint256.Int)
	}
	if elapsed >= b.VestDuration {
		return new(uint256.Int).Set(b.Received)
	}
	vested, err := fixedmath.MulDiv(b.Received, uint256.NewInt(uint64(elapsed)), uint256.NewInt(uint64(b.VestDuration)))
	if err != nil {
		return new(uint256.Int)
	}
	return vested
}
