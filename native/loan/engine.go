package loan

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"nftlend/core/events"
	nativecommon "nftlend/native/common"
)

const moduleName = "loan"

// Engine orchestrates the collateral/offer lifecycle: deposits, competing
// offers, acceptance and the settlement paths. It holds no funds itself;
// escrow is bookkeeping on the offer record and every transfer leaves the
// engine as an outbound Message. All guards run before the first state write,
// so a failed call leaves storage untouched.
type Engine struct {
	state    engineState
	oracle   OwnerOracle
	emitter  events.Emitter
	custody  string
	pauses   nativecommon.PauseView
	nowFn    func() int64
	heightFn func() uint64
}

// NewEngine creates a loan engine. The custody address is the account named
// as recipient when collateral assets are pulled in at acceptance.
func NewEngine(custodyAddr string) *Engine {
	return &Engine{
		custody: strings.TrimSpace(custodyAddr),
		emitter: events.NoopEmitter{},
		nowFn:   func() int64 { return time.Now().Unix() },
	}
}

// SetState configures the state backend used by the engine.
func (e *Engine) SetState(state engineState) { e.state = state }

// SetOracle configures the external asset-ownership oracle consulted at
// acceptance time.
func (e *Engine) SetOracle(oracle OwnerOracle) { e.oracle = oracle }

// SetPauses wires the administrative pause switch for the module.
func (e *Engine) SetPauses(p nativecommon.PauseView) {
	if e == nil {
		return
	}
	e.pauses = p
}

// SetEmitter configures the event emitter used by the engine. Passing nil
// resets the emitter to a no-op implementation.
func (e *Engine) SetEmitter(emitter events.Emitter) {
	if emitter == nil {
		e.emitter = events.NoopEmitter{}
		return
	}
	e.emitter = emitter
}

// SetNowFunc overrides the wall-clock source used for listing timestamps.
// Primarily intended for tests.
func (e *Engine) SetNowFunc(now func() int64) {
	if now == nil {
		e.nowFn = func() int64 { return time.Now().Unix() }
		return
	}
	e.nowFn = now
}

// SetHeightFunc wires the current block height source. Defaulting compares
// this height against the loan's start block at call time; nothing is
// time-driven inside the engine.
func (e *Engine) SetHeightFunc(height func() uint64) { e.heightFn = height }

func (e *Engine) emit(evt *events.Event) {
	if e == nil || e.emitter == nil || evt == nil {
		return
	}
	e.emitter.Emit(evt)
}

func (e *Engine) now() int64 {
	if e == nil || e.nowFn == nil {
		return time.Now().Unix()
	}
	return e.nowFn()
}

func (e *Engine) height() uint64 {
	if e == nil || e.heightFn == nil {
		return 0
	}
	return e.heightFn()
}

func (e *Engine) ready() error {
	if e == nil || e.state == nil {
		return errNilState
	}
	return nativecommon.Guard(e.pauses, moduleName)
}

// validAddress trims an account id and rejects forms that cannot serve as a
// storage key component. The store separates key segments with '/', so an
// address containing one would alias another account's index prefix.
func validAddress(addr string) (string, error) {
	addr = strings.TrimSpace(addr)
	if addr == "" {
		return "", ErrEmptyAddress
	}
	if strings.Contains(addr, "/") {
		return "", ErrInvalidAddress
	}
	return addr, nil
}

// DepositCollateral lists assets against which a loan may be made. Nothing is
// transferred: the system is non-custodial and ownership is only verified at
// acceptance. The new listing's loan id is returned.
func (e *Engine) DepositCollateral(borrower string, assets []Asset, terms *LoanTerms, comment string, preview *Asset) (uint64, error) {
	if err := e.ready(); err != nil {
		return 0, err
	}
	borrower, err := validAddress(borrower)
	if err != nil {
		return 0, err
	}
	if len(assets) == 0 {
		return 0, ErrNoAssets
	}
	cloned := make([]Asset, len(assets))
	for i, asset := range assets {
		if err := asset.Validate(); err != nil {
			return 0, err
		}
		cloned[i] = asset.Clone()
	}
	var clonedTerms *LoanTerms
	if terms != nil {
		if err := terms.Validate(); err != nil {
			return 0, err
		}
		t := terms.Clone()
		clonedTerms = &t
	}
	var clonedPreview *Asset
	if preview != nil {
		found := false
		for _, asset := range cloned {
			if asset.Equal(*preview) {
				found = true
				break
			}
		}
		if !found {
			return 0, ErrAssetNotInLoan
		}
		p := preview.Clone()
		clonedPreview = &p
	}

	info, ok, err := e.state.BorrowerInfo(borrower)
	if err != nil {
		return 0, err
	}
	if ok {
		info.LastCollateralID++
	} else {
		info = &BorrowerInfo{}
	}
	if err := e.state.PutBorrowerInfo(borrower, info); err != nil {
		return 0, err
	}
	collateral := &Collateral{
		Borrower: borrower,
		LoanID:   info.LastCollateralID,
		Terms:    clonedTerms,
		Assets:   cloned,
		ListTime: e.now(),
		State:    LoanPublished,
		Comment:  comment,
		Preview:  clonedPreview,
	}
	if err := e.state.PutCollateral(collateral); err != nil {
		return 0, err
	}
	e.emit(newCollateralEvent(EventTypeCollateralDeposited, collateral))
	return collateral.LoanID, nil
}

// ModifyCollateral applies a partial update to a listing that has not been
// accepted yet. Only the supplied fields change; the listing timestamp is
// refreshed either way.
func (e *Engine) ModifyCollateral(borrower string, loanID uint64, terms *LoanTerms, comment *string, preview *Asset) error {
	if err := e.ready(); err != nil {
		return err
	}
	collateral, err := e.loadCollateral(borrower, loanID)
	if err != nil {
		return err
	}
	if err := isLoanModifiable(collateral); err != nil {
		return err
	}
	if terms != nil {
		if err := terms.Validate(); err != nil {
			return err
		}
		t := terms.Clone()
		collateral.Terms = &t
	}
	if comment != nil {
		collateral.Comment = *comment
	}
	if preview != nil {
		if !collateral.HasAsset(*preview) {
			return ErrAssetNotInLoan
		}
		p := preview.Clone()
		collateral.Preview = &p
	}
	collateral.ListTime = e.now()
	if err := e.state.PutCollateral(collateral); err != nil {
		return err
	}
	e.emit(newCollateralEvent(EventTypeCollateralModified, collateral))
	return nil
}

// WithdrawCollateral cancels a listing before any offer is accepted. No asset
// moves because none was ever held.
func (e *Engine) WithdrawCollateral(borrower string, loanID uint64) error {
	if err := e.ready(); err != nil {
		return err
	}
	collateral, err := e.loadCollateral(borrower, loanID)
	if err != nil {
		return err
	}
	if err := isCollateralWithdrawable(collateral); err != nil {
		return err
	}
	collateral.State = LoanAssetWithdrawn
	if err := e.state.PutCollateral(collateral); err != nil {
		return err
	}
	e.emit(newCollateralEvent(EventTypeCollateralWithdrawn, collateral))
	return nil
}

// makeOfferRaw validates and records a new offer. Funds must be exactly one
// coin equal to the proposed principal; they are recorded as escrow on the
// offer. The collateral's offer counter and the global offer counter advance
// in the same commit.
func (e *Engine) makeOfferRaw(lender, borrower string, loanID uint64, terms LoanTerms, funds []Coin, comment string) (*Offer, error) {
	lender, err := validAddress(lender)
	if err != nil {
		return nil, err
	}
	collateral, err := e.loadCollateral(borrower, loanID)
	if err != nil {
		return nil, err
	}
	if err := isLoanCounterable(collateral); err != nil {
		return nil, err
	}
	if err := terms.Validate(); err != nil {
		return nil, err
	}
	if len(funds) != 1 {
		return nil, ErrMultipleCoins
	}
	if !funds[0].Equal(terms.Principal) {
		return nil, ErrFundsDontMatchTerms
	}

	cfg, err := e.state.ContractConfig()
	if err != nil {
		return nil, err
	}
	collateral.OfferCount++
	if err := e.state.PutCollateral(collateral); err != nil {
		return nil, err
	}
	cfg.GlobalOfferCount++
	deposited := terms.Principal.Clone()
	offer := &Offer{
		GlobalID:       strconv.FormatUint(cfg.GlobalOfferCount, 10),
		Lender:         lender,
		Borrower:       collateral.Borrower,
		LoanID:         loanID,
		OfferID:        collateral.OfferCount,
		Terms:          terms.Clone(),
		State:          OfferPublished,
		ListTime:       e.now(),
		DepositedFunds: &deposited,
		Comment:        comment,
	}
	if err := e.state.PutOffer(offer); err != nil {
		return nil, err
	}
	if err := e.state.PutContractConfig(cfg); err != nil {
		return nil, err
	}
	return offer, nil
}

// MakeOffer escrows funds against a published collateral under
// lender-proposed terms. The new offer's global id is returned.
func (e *Engine) MakeOffer(lender, borrower string, loanID uint64, terms LoanTerms, funds []Coin, comment string) (string, error) {
	if err := e.ready(); err != nil {
		return "", err
	}
	offer, err := e.makeOfferRaw(lender, borrower, loanID, terms, funds, comment)
	if err != nil {
		return "", err
	}
	e.emit(newOfferEvent(EventTypeOfferMade, offer))
	return offer.GlobalID, nil
}

// CancelOffer lets the lender back out while the borrower is still searching
// for a loan. The escrowed principal is returned to the lender.
func (e *Engine) CancelOffer(lender, globalID string) (*BankSend, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}
	offer, err := e.isLender(lender, globalID)
	if err != nil {
		return nil, err
	}
	if offer.State != OfferPublished {
		return nil, &OfferStateChangeError{From: offer.State, To: OfferCancelled}
	}
	collateral, err := e.loadCollateral(offer.Borrower, offer.LoanID)
	if err != nil {
		return nil, err
	}
	if err := isLoanModifiable(collateral); err != nil {
		return nil, err
	}
	if offer.DepositedFunds == nil {
		return nil, ErrNoFundsToWithdraw
	}
	refund := offer.DepositedFunds.Clone()
	offer.State = OfferCancelled
	offer.DepositedFunds = nil
	if err := e.state.PutOffer(offer); err != nil {
		return nil, err
	}
	e.emit(newOfferEvent(EventTypeOfferCancelled, offer))
	return &BankSend{To: offer.Lender, Amount: refund}, nil
}

// RefuseOffer lets the borrower decline an offer while still listed. The
// escrow is deliberately not returned here; the lender withdraws it
// explicitly so they always control where their funds move.
func (e *Engine) RefuseOffer(borrower, globalID string) error {
	if err := e.ready(); err != nil {
		return err
	}
	offer, err := e.isOfferBorrower(borrower, globalID)
	if err != nil {
		return err
	}
	collateral, err := e.loadCollateral(offer.Borrower, offer.LoanID)
	if err != nil {
		return err
	}
	if err := isOfferRefusable(collateral, offer); err != nil {
		return err
	}
	offer.State = OfferRefused
	if err := e.state.PutOffer(offer); err != nil {
		return err
	}
	e.emit(newOfferEvent(EventTypeOfferRefused, offer))
	return nil
}

// WithdrawRefusedOffer returns the escrow of a refused offer (stored or
// derived refusal alike) to its lender. A second call fails: the cleared
// escrow field is the exactly-once guard.
func (e *Engine) WithdrawRefusedOffer(lender, globalID string) (*BankSend, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}
	offer, err := e.isLender(lender, globalID)
	if err != nil {
		return nil, err
	}
	if offer.State != OfferRefused {
		return nil, ErrNotWithdrawable
	}
	if offer.DepositedFunds == nil {
		return nil, ErrNoFundsToWithdraw
	}
	refund := offer.DepositedFunds.Clone()
	offer.DepositedFunds = nil
	if err := e.state.PutOffer(offer); err != nil {
		return nil, err
	}
	e.emit(newOfferEvent(EventTypeOfferFundsWithdrawn, offer))
	return &BankSend{To: offer.Lender, Amount: refund}, nil
}

// AcceptResult is the commit receipt of an acceptance: the offer that became
// the active loan and the outbound transfer batch.
type AcceptResult struct {
	GlobalOfferID string
	Messages      []Message
}

// verifyBorrowerOwnership re-confirms through the oracle that the borrower
// still owns every pledged asset. This re-check defeats replay of a stale
// transfer authorization; any mismatch aborts the acceptance.
func (e *Engine) verifyBorrowerOwnership(collateral *Collateral) error {
	if e.oracle == nil {
		return errNilOracle
	}
	for _, asset := range collateral.Assets {
		if !asset.Kind.valid() {
			return ErrUnknownAssetKind
		}
		owner, err := e.oracle.OwnerOf(asset.Contract, asset.TokenID)
		if err != nil {
			return fmt.Errorf("loan: ownership check for %s/%s: %w", asset.Contract, asset.TokenID, err)
		}
		if owner != collateral.Borrower {
			return ErrBorrowerNotAssetOwner
		}
	}
	return nil
}

// acceptOfferRaw is the internal acceptance routine shared by AcceptOffer and
// AcceptLoan. All guards, including the per-asset ownership re-check, run
// before the first write; the assembled message batch pays the escrowed
// principal to the borrower and pulls every asset into custody.
func (e *Engine) acceptOfferRaw(globalID string) (*AcceptResult, error) {
	offer, ok, err := e.state.Offer(globalID)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrOfferNotFound
	}
	collateral, err := e.loadCollateral(offer.Borrower, offer.LoanID)
	if err != nil {
		return nil, err
	}
	if err := isLoanAcceptable(collateral); err != nil {
		return nil, err
	}
	// The stored state decides acceptability; the derived refusal view never
	// applies here because the collateral is still Published.
	if offer.State != OfferPublished {
		return nil, &WrongOfferStateError{State: offer.State}
	}
	if offer.DepositedFunds == nil {
		return nil, ErrNoFundsToWithdraw
	}
	if err := e.verifyBorrowerOwnership(collateral); err != nil {
		return nil, err
	}

	principal := offer.DepositedFunds.Clone()
	msgs := make([]Message, 0, len(collateral.Assets)+1)
	msgs = append(msgs, &BankSend{To: collateral.Borrower, Amount: principal})
	custodyMsgs, err := collateralTransfers(collateral, collateral.Borrower, e.custody)
	if err != nil {
		return nil, err
	}
	msgs = append(msgs, custodyMsgs...)

	collateral.State = LoanStarted
	collateral.StartBlock = e.height()
	collateral.ActiveOffer = offer.GlobalID
	offer.State = OfferAccepted
	// The escrow left for the borrower with this very batch.
	offer.DepositedFunds = nil
	if err := e.state.PutCollateral(collateral); err != nil {
		return nil, err
	}
	if err := e.state.PutOffer(offer); err != nil {
		return nil, err
	}
	e.emit(newLoanStartedEvent(collateral, offer))
	return &AcceptResult{GlobalOfferID: offer.GlobalID, Messages: msgs}, nil
}

// AcceptOffer starts the loan on an offer made against the caller's
// collateral.
func (e *Engine) AcceptOffer(borrower, globalID string) (*AcceptResult, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}
	if _, err := e.isOfferBorrower(borrower, globalID); err != nil {
		return nil, err
	}
	return e.acceptOfferRaw(globalID)
}

// AcceptLoan lets a lender satisfy the borrower's self-proposed terms in one
// call: an offer with exactly those terms is created on the lender's behalf
// and immediately accepted. Ownership is verified before anything is written
// so a failed acceptance leaves no half-made offer behind.
func (e *Engine) AcceptLoan(lender, borrower string, loanID uint64, funds []Coin, comment string) (*AcceptResult, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}
	collateral, err := e.loadCollateral(borrower, loanID)
	if err != nil {
		return nil, err
	}
	if collateral.Terms == nil {
		return nil, ErrNoTermsSpecified
	}
	if err := e.verifyBorrowerOwnership(collateral); err != nil {
		return nil, err
	}
	offer, err := e.makeOfferRaw(lender, borrower, loanID, *collateral.Terms, funds, comment)
	if err != nil {
		return nil, err
	}
	e.emit(newOfferEvent(EventTypeOfferMade, offer))
	return e.acceptOfferRaw(offer.GlobalID)
}

func (k AssetKind) valid() bool {
	return k == AssetNFT || k == AssetMultiToken
}

// collateralTransfers builds one transfer instruction per pledged asset.
// Multi-token standards need the source account spelled out; single-owner
// NFT transfers only name the recipient.
func collateralTransfers(c *Collateral, from, recipient string) ([]Message, error) {
	msgs := make([]Message, 0, len(c.Assets))
	for _, asset := range c.Assets {
		switch asset.Kind {
		case AssetNFT:
			msgs = append(msgs, &AssetTransfer{Asset: asset.Clone(), Recipient: recipient})
		case AssetMultiToken:
			msgs = append(msgs, &AssetTransfer{Asset: asset.Clone(), From: from, Recipient: recipient})
		default:
			return nil, ErrUnknownAssetKind
		}
	}
	return msgs, nil
}
