package loan

import "strconv"

// Pagination caps, shared by every list query.
const (
	DefaultQueryLimit = 10
	MaxQueryLimit     = 150
)

// CollateralCursor is the exclusive pagination cursor over the global
// collateral ordering (borrower, loan id).
type CollateralCursor struct {
	Borrower string `json:"borrower"`
	LoanID   uint64 `json:"loan_id"`
}

// queryState is the read boundary of the query surface. List methods iterate
// in descending key order and treat startAfter as an exclusive bound;
// implementations only order and slice, all lending semantics stay here.
type queryState interface {
	ContractConfig() (*ContractConfig, error)
	BorrowerInfo(borrower string) (*BorrowerInfo, bool, error)
	Collateral(borrower string, loanID uint64) (*Collateral, bool, error)
	Offer(globalID string) (*Offer, bool, error)
	CollateralsByBorrower(borrower string, startAfter *uint64, limit int) ([]*Collateral, error)
	CollateralsAll(startAfter *CollateralCursor, limit int) ([]*Collateral, error)
	OffersByLender(lender string, startAfter *uint64, limit int) ([]*Offer, error)
	OffersByLoan(borrower string, loanID uint64, startAfter *uint64, limit int) ([]*Offer, error)
}

// Querier serves the client-facing read surface. Every offer it returns has
// the derived refusal rule applied, so callers never observe a stale
// Published state.
type Querier struct {
	state queryState
}

// NewQuerier wraps a read-capable state backend.
func NewQuerier(state queryState) *Querier {
	return &Querier{state: state}
}

func clampLimit(limit uint32) int {
	if limit == 0 {
		return DefaultQueryLimit
	}
	if limit > MaxQueryLimit {
		return MaxQueryLimit
	}
	return int(limit)
}

// ContractConfig returns the current configuration aggregate.
func (q *Querier) ContractConfig() (*ContractConfig, error) {
	if q == nil || q.state == nil {
		return nil, errNilState
	}
	return q.state.ContractConfig()
}

// BorrowerInfo returns the borrower's collateral sequence counter.
func (q *Querier) BorrowerInfo(borrower string) (*BorrowerInfo, error) {
	if q == nil || q.state == nil {
		return nil, errNilState
	}
	info, ok, err := q.state.BorrowerInfo(borrower)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrLoanNotFound
	}
	return info, nil
}

// CollateralInfo returns a single collateral record.
func (q *Querier) CollateralInfo(borrower string, loanID uint64) (*Collateral, error) {
	if q == nil || q.state == nil {
		return nil, errNilState
	}
	collateral, ok, err := q.state.Collateral(borrower, loanID)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrLoanNotFound
	}
	return collateral, nil
}

// OfferInfo returns a single offer with its effective state.
func (q *Querier) OfferInfo(globalID string) (*Offer, error) {
	if q == nil || q.state == nil {
		return nil, errNilState
	}
	offer, ok, err := q.state.Offer(globalID)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrOfferNotFound
	}
	return q.deriveOffer(offer)
}

func (q *Querier) deriveOffer(offer *Offer) (*Offer, error) {
	collateral, ok, err := q.state.Collateral(offer.Borrower, offer.LoanID)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrLoanNotFound
	}
	offer.State = EffectiveState(offer, collateral.State)
	return offer, nil
}

// CollateralsPage lists one borrower's collaterals, newest loan id first.
// NextStartAfter is set when another page may exist.
type CollateralsPage struct {
	Collaterals    []*Collateral `json:"collaterals"`
	NextStartAfter *uint64       `json:"next_start_after,omitempty"`
}

// Collaterals pages through a borrower's listings in descending loan id
// order with an exclusive cursor.
func (q *Querier) Collaterals(borrower string, startAfter *uint64, limit uint32) (*CollateralsPage, error) {
	if q == nil || q.state == nil {
		return nil, errNilState
	}
	capped := clampLimit(limit)
	collaterals, err := q.state.CollateralsByBorrower(borrower, startAfter, capped)
	if err != nil {
		return nil, err
	}
	page := &CollateralsPage{Collaterals: collaterals}
	if len(collaterals) == capped && capped > 0 {
		last := collaterals[len(collaterals)-1].LoanID
		page.NextStartAfter = &last
	}
	return page, nil
}

// AllCollateralsPage lists collaterals across all borrowers.
type AllCollateralsPage struct {
	Collaterals    []*Collateral     `json:"collaterals"`
	NextStartAfter *CollateralCursor `json:"next_start_after,omitempty"`
}

// AllCollaterals pages through every listing, descending over (borrower,
// loan id).
func (q *Querier) AllCollaterals(startAfter *CollateralCursor, limit uint32) (*AllCollateralsPage, error) {
	if q == nil || q.state == nil {
		return nil, errNilState
	}
	capped := clampLimit(limit)
	collaterals, err := q.state.CollateralsAll(startAfter, capped)
	if err != nil {
		return nil, err
	}
	page := &AllCollateralsPage{Collaterals: collaterals}
	if len(collaterals) == capped && capped > 0 {
		last := collaterals[len(collaterals)-1]
		page.NextStartAfter = &CollateralCursor{Borrower: last.Borrower, LoanID: last.LoanID}
	}
	return page, nil
}

// OffersPage lists offers, newest global id first. The cursor is the numeric
// global offer id.
type OffersPage struct {
	Offers         []*Offer `json:"offers"`
	NextStartAfter *uint64  `json:"next_start_after,omitempty"`
}

// OffersByLender pages through one lender's offers with derived state
// applied.
func (q *Querier) OffersByLender(lender string, startAfter *uint64, limit uint32) (*OffersPage, error) {
	if q == nil || q.state == nil {
		return nil, errNilState
	}
	capped := clampLimit(limit)
	offers, err := q.state.OffersByLender(lender, startAfter, capped)
	if err != nil {
		return nil, err
	}
	for i, offer := range offers {
		derived, err := q.deriveOffer(offer)
		if err != nil {
			return nil, err
		}
		offers[i] = derived
	}
	return offersPage(offers, capped)
}

// OffersByLoan pages through the offers made against one collateral. The
// collateral is loaded once and its state applied to every offer.
func (q *Querier) OffersByLoan(borrower string, loanID uint64, startAfter *uint64, limit uint32) (*OffersPage, error) {
	if q == nil || q.state == nil {
		return nil, errNilState
	}
	collateral, ok, err := q.state.Collateral(borrower, loanID)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrLoanNotFound
	}
	capped := clampLimit(limit)
	offers, err := q.state.OffersByLoan(borrower, loanID, startAfter, capped)
	if err != nil {
		return nil, err
	}
	for _, offer := range offers {
		offer.State = EffectiveState(offer, collateral.State)
	}
	return offersPage(offers, capped)
}

func offersPage(offers []*Offer, capped int) (*OffersPage, error) {
	page := &OffersPage{Offers: offers}
	if len(offers) == capped && capped > 0 {
		cursor, err := strconv.ParseUint(offers[len(offers)-1].GlobalID, 10, 64)
		if err != nil {
			return nil, err
		}
		page.NextStartAfter = &cursor
	}
	return page, nil
}
