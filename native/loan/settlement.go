package loan

import (
	"math/big"
)

// feeDenominator expresses the protocol fee rate in basis points.
var feeDenominator = big.NewInt(10_000)

// SettlementResult carries the outbound transfer batch of a repayment or a
// default claim. Zero-amount transfers are omitted entirely rather than
// emitted as no-ops.
type SettlementResult struct {
	Messages []Message
}

// RepayBorrowedFunds closes a running loan on time. The payment must be a
// single coin in the principal's denomination covering at least
// principal+interest. The lender receives the principal plus the interest net
// of the protocol fee; everything else the borrower sent — the fee share and
// any overpayment — goes to the fee distributor. Overpayment is deliberately
// not refunded.
func (e *Engine) RepayBorrowedFunds(borrower string, loanID uint64, funds []Coin) (*SettlementResult, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}
	cfg, err := e.state.ContractConfig()
	if err != nil {
		return nil, err
	}
	collateral, err := e.loadCollateral(borrower, loanID)
	if err != nil {
		return nil, err
	}
	if err := e.canRepayLoan(collateral); err != nil {
		return nil, err
	}
	offer, err := e.getActiveLoan(collateral)
	if err != nil {
		return nil, err
	}

	if len(funds) != 1 {
		return nil, ErrMultipleCoins
	}
	sent := funds[0]
	if err := sent.Validate(); err != nil {
		return nil, err
	}
	if sent.Denom != offer.Terms.Principal.Denom {
		return nil, ErrFundsDontMatchTerms
	}
	principal := offer.Terms.Principal.Amount
	interest := offer.Terms.Interest
	required := new(big.Int).Add(principal, interest)
	if required.Cmp(sent.Amount) > 0 {
		return nil, &RepaymentTooLowError{Required: required, Sent: new(big.Int).Set(sent.Amount)}
	}

	// lenderPayback = principal + interest * (10000 - feeBps) / 10000, with
	// integer truncation. The treasury cut absorbs the truncation remainder
	// and any overpayment.
	keepBps := new(big.Int).Sub(feeDenominator, new(big.Int).SetUint64(uint64(cfg.FeeRateBps)))
	interestShare := new(big.Int).Mul(interest, keepBps)
	interestShare.Quo(interestShare, feeDenominator)
	lenderPayback := new(big.Int).Add(principal, interestShare)
	treasuryCut := new(big.Int).Sub(sent.Amount, lenderPayback)

	assetContracts, err := collateralContracts(collateral)
	if err != nil {
		return nil, err
	}

	msgs := make([]Message, 0, len(collateral.Assets)+2)
	if lenderPayback.Sign() > 0 {
		msgs = append(msgs, &BankSend{
			To:     offer.Lender,
			Amount: Coin{Denom: sent.Denom, Amount: lenderPayback},
		})
	}
	returns, err := collateralTransfers(collateral, e.custody, collateral.Borrower)
	if err != nil {
		return nil, err
	}
	msgs = append(msgs, returns...)
	if treasuryCut.Sign() > 0 {
		msgs = append(msgs, &DepositFees{
			Distributor:    cfg.FeeDistributor,
			AssetContracts: assetContracts,
			FeeType:        FeeTypeFunds,
			Funds:          Coin{Denom: sent.Denom, Amount: treasuryCut},
		})
	}

	collateral.State = LoanEnded
	if err := e.state.PutCollateral(collateral); err != nil {
		return nil, err
	}
	e.emit(newOfferEvent(EventTypeLoanRepaid, offer))
	return &SettlementResult{Messages: msgs}, nil
}

// WithdrawDefaultedLoan lets the active lender claim the collateral after the
// duration elapsed without repayment. The lender keeps only the forfeited
// assets; no funds move in either direction. A second claim on the same loan
// is rejected.
func (e *Engine) WithdrawDefaultedLoan(lender, borrower string, loanID uint64) (*SettlementResult, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}
	collateral, err := e.loadCollateral(borrower, loanID)
	if err != nil {
		return nil, err
	}
	if err := e.isLoanDefaulted(collateral); err != nil {
		return nil, err
	}
	offer, err := e.isActiveLender(lender, collateral)
	if err != nil {
		return nil, err
	}
	if collateral.State == LoanDefaulted {
		return nil, ErrAlreadyDefaulted
	}

	msgs, err := collateralTransfers(collateral, e.custody, offer.Lender)
	if err != nil {
		return nil, err
	}
	collateral.State = LoanDefaulted
	if err := e.state.PutCollateral(collateral); err != nil {
		return nil, err
	}
	e.emit(newOfferEvent(EventTypeLoanDefaulted, offer))
	return &SettlementResult{Messages: msgs}, nil
}

// collateralContracts lists the asset-issuing contract addresses, for the fee
// distributor's revenue sharing.
func collateralContracts(c *Collateral) ([]string, error) {
	contracts := make([]string, 0, len(c.Assets))
	for _, asset := range c.Assets {
		if !asset.Kind.valid() {
			return nil, ErrUnknownAssetKind
		}
		contracts = append(contracts, asset.Contract)
	}
	return contracts, nil
}
