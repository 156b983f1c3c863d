package basis

import (
	"errors"
	"fmt"
	"sync"

	"github.com/holiman/uint256"

	"github.com/polyfi/polyd/internal/lib/fixedmath"
)

var (
	ErrInsufficientBalance = errors.New("token: insufficient balance")
	ErrZeroAddress         = errors.New("token: zero address")
)

// MemToken is the in-memory reference implementation of Token used by the
// local ledger and by tests.  Balances survive across calls via the daemon
// state file (fields are exported for that reason only).
type MemToken struct {
	mu sync.RWMutex

	TokenName string                  `json:"name"`
	Op        string                  `json:"operator"`
	Balances  map[string]*uint256.Int `json:"balances"`
	Supply    *uint256.Int            `json:"totalSupply"`
}

func NewMemToken(name, operator string) *MemToken {
	return &MemToken{
		TokenName: name,
		Op:        operator,
		Balances:  map[string]*uint256.Int{},
		Supply:    new(uint256.Int),
	}
}

func (t *MemToken) Name() string { return t.TokenName }

func (t *MemToken) Operator() string {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.Op
}

func (t *MemToken) SetOperator(addr string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.Op = addr
}

func (t *MemToken) BalanceOf(addr string) *uint256.Int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	if bal, ok := t.Balances[addr]; ok {
		return new(uint256.Int).Set(bal)
	}
	return new(uint256.Int)
}

func (t *MemToken) TotalSupply() *uint256.Int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return new(uint256.Int).Set(t.Supply)
}

func (t *MemToken) Mint(to string, amount *uint256.Int) error {
	if to == "" {
		return ErrZeroAddress
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	newSupply, err := fixedmath.Add(t.Supply, amount)
	if err != nil {
		return fmt.Errorf("token %s: mint: %w", t.TokenName, err)
	}
	newBal, err := fixedmath.Add(t.balance(to), amount)
	if err != nil {
		return fmt.Errorf("token %s: mint: %w", t.TokenName, err)
	}
	t.Supply = newSupply
	t.Balances[to] = newBal
	return nil
}

func (t *MemToken) BurnFrom(from string, amount *uint256.Int) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	bal := t.balance(from)
	if bal.Cmp(amount) < 0 {
		return fmt.Errorf("token %s: burn %s from %s: %w", t.TokenName, amount.Dec(), from, ErrInsufficientBalance)
	}
	t.Balances[from] = new(uint256.Int).Sub(bal, amount)
	t.Supply = new(uint256.Int).Sub(t.Supply, amount)
	return nil
}

func (t *MemToken) Transfer(from, to string, amount *uint256.Int) error {
	if from == "" || to == "" {
		return ErrZeroAddress
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	bal := t.balance(from)
	if bal.Cmp(amount) < 0 {
		return fmt.Errorf("token %s: transfer %s from %s: %w", t.TokenName, amount.Dec(), from, ErrInsufficientBalance)
	}
	newTo, err := fixedmath.Add(t.balance(to), amount)
	if err != nil {
		return fmt.Errorf("token %s: transfer: %w", t.TokenName, err)
	}
	t.Balances[from] = new(uint256.Int).Sub(bal, amount)
	t.Balances[to] = newTo
	return nil
}

// balance returns the raw stored balance; caller holds the lock.
func (t *MemToken) balance(addr string) *uint256.Int {
	if bal, ok := t.Balances[addr]; ok {
		return bal
	}
	return new(uint256.Int)
}
