package treasury

import (
	"errors"
)

var (
	ErrNotOperator        = errors.New("treasury: caller is not the operator")
	ErrAlreadyInitialized = errors.New("treasury: already initialized")
	ErrNotStarted         = errors.New("treasury: not started yet")
	ErrEpochNotOpened     = errors.New("treasury: the next epoch has not opened yet")
	ErrOneBlockOneCall    = errors.New("treasury: one block, one function")
	ErrNeedMorePermission = errors.New("treasury: need more permission")
	ErrOracleConsult      = errors.New("treasury: failed to consult POLY price from the oracle")
	ErrZeroAmount         = errors.New("treasury: zero amount")
	ErrPriceMoved         = errors.New("treasury: POLY price moved")
	ErrPriceNotEligible   = errors.New("treasury: POLY price not eligible")
	ErrInvalidBondRate    = errors.New("treasury: invalid bond rate")
	ErrNotEnoughBondsLeft = errors.New("treasury: not enough bonds left to purchase")
	ErrOverDebtCeiling    = errors.New("treasury: over max debt ratio")
	ErrNoBudget           = errors.New("treasury: treasury has no more budget")
	ErrOutOfRange         = errors.New("treasury: out of range")
	ErrProtectedToken     = errors.New("treasury: cannot recover protocol token")
	ErrBadTierIndex       = errors.New("treasury: tier index out of range")
	ErrTierOrdering       = errors.New("treasury: supply tiers must stay strictly increasing")
)
