package loan

import (
	"errors"
	"fmt"
	"math/big"
)

var (
	errNilState  = errors.New("loan engine: state not configured")
	errNilOracle = errors.New("loan engine: ownership oracle not configured")

	// ErrUnauthorized rejects callers acting on records they do not own.
	ErrUnauthorized = errors.New("loan: unauthorized")

	// ErrLoanNotFound and ErrOfferNotFound report unknown records.
	ErrLoanNotFound  = errors.New("loan: collateral not found")
	ErrOfferNotFound = errors.New("loan: offer not found")

	// Structural violations on deposit/modify.
	ErrNoAssets         = errors.New("loan: collateral requires at least one asset")
	ErrAssetNotInLoan   = errors.New("loan: preview asset is not part of the collateral")
	ErrUnknownAssetKind = errors.New("loan: unrecognized asset kind")
	ErrInvalidAsset     = errors.New("loan: asset reference is incomplete")
	ErrInvalidDenom     = errors.New("loan: coin denomination required")
	ErrInvalidAmount    = errors.New("loan: amount must be a non-negative integer")

	// Malformed payments, each reported distinctly so clients can correct the
	// exact mismatch.
	ErrMultipleCoins       = errors.New("loan: expected exactly one coin")
	ErrFundsDontMatchTerms = errors.New("loan: sent funds don't match the loan terms")

	// State guards. Each predicate maps its violation to a distinct error;
	// refusal deliberately collapses the underlying collateral reason.
	// ErrNotWithdrawable covers both collateral withdrawal and escrow
	// withdrawal from a non-refused offer.
	ErrNotWithdrawable = errors.New("loan: not withdrawable in current state")
	ErrNotModifiable   = errors.New("loan: collateral cannot be modified")
	ErrNotAcceptable   = errors.New("loan: collateral cannot be accepted")
	ErrNotCounterable  = errors.New("loan: collateral cannot receive offers")
	ErrNotRefusable    = errors.New("loan: offer cannot be refused")

	ErrNoTermsSpecified  = errors.New("loan: collateral carries no terms to accept")
	ErrNoFundsToWithdraw = errors.New("loan: no funds left to withdraw")
	ErrAlreadyDefaulted  = errors.New("loan: loan already defaulted")
	ErrFeeRateOutOfRange = errors.New("loan: fee rate must stay below 100%")
	ErrNoProposedOwner   = errors.New("loan: no ownership transfer proposed")
	ErrEmptyAddress      = errors.New("loan: address must not be empty")
	ErrInvalidAddress    = errors.New("loan: malformed address")

	// ErrBorrowerNotAssetOwner aborts an acceptance whose pre-transfer
	// ownership re-check failed.
	ErrBorrowerNotAssetOwner = errors.New("loan: borrower no longer owns a pledged asset")
)

// WrongLoanStateError reports the actual collateral state so callers can
// react, per the state-guard taxonomy.
type WrongLoanStateError struct {
	State LoanState
}

func (e *WrongLoanStateError) Error() string {
	return fmt.Sprintf("loan: wrong loan state %s", e.State)
}

// WrongOfferStateError reports the actual stored offer state.
type WrongOfferStateError struct {
	State OfferState
}

func (e *WrongOfferStateError) Error() string {
	return fmt.Sprintf("loan: wrong offer state %s", e.State)
}

// OfferStateChangeError rejects an illegal offer transition, naming both ends
// so the caller can tell what was attempted against what.
type OfferStateChangeError struct {
	From OfferState
	To   OfferState
}

func (e *OfferStateChangeError) Error() string {
	return fmt.Sprintf("loan: cannot change offer state from %s to %s", e.From, e.To)
}

// RepaymentTooLowError reports the exact shortfall on repayment.
type RepaymentTooLowError struct {
	Required *big.Int
	Sent     *big.Int
}

func (e *RepaymentTooLowError) Error() string {
	return fmt.Sprintf("loan: repayment of %s below required %s", e.Sent, e.Required)
}
