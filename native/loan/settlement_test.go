package loan

import (
	"errors"
	"math"
	"math/big"
	"testing"
)

// startTestLoan lists collateral with principal 456 / interest 50, makes a
// matching offer and accepts it at the current height.
func startTestLoan(t *testing.T, env *testEnv) (uint64, string) {
	t.Helper()
	loanID := listCollateral(t, env)
	globalID := makeTestOffer(t, env, "lender", loanID, 456)
	if _, err := env.engine.AcceptOffer("borrower", globalID); err != nil {
		t.Fatalf("accept: %v", err)
	}
	return loanID, globalID
}

func findMessage[T Message](msgs []Message) (T, bool) {
	for _, msg := range msgs {
		if typed, ok := msg.(T); ok {
			return typed, true
		}
	}
	var zero T
	return zero, false
}

func TestRepayWithoutFee(t *testing.T) {
	env := newTestEnv(t)
	loanID, _ := startTestLoan(t, env)

	result, err := env.engine.RepayBorrowedFunds("borrower", loanID, []Coin{NewCoin("uatom", 506)})
	if err != nil {
		t.Fatalf("repay: %v", err)
	}
	pay, ok := findMessage[*BankSend](result.Messages)
	if !ok {
		t.Fatal("no lender payout")
	}
	if pay.To != "lender" || pay.Amount.Amount.Int64() != 506 {
		t.Fatalf("payout = %+v, want 506 to lender", pay)
	}
	if _, ok := findMessage[*DepositFees](result.Messages); ok {
		t.Fatal("fee deposit emitted at zero fee rate")
	}
	ret, ok := findMessage[*AssetTransfer](result.Messages)
	if !ok {
		t.Fatal("no asset return")
	}
	if ret.Recipient != "borrower" {
		t.Fatalf("asset recipient = %q, want borrower", ret.Recipient)
	}
	collateral, _, _ := env.state.Collateral("borrower", loanID)
	if collateral.State != LoanEnded {
		t.Fatalf("state = %v, want ended", collateral.State)
	}
}

// With a 5% fee the lender keeps the principal plus 95% of the interest,
// truncated, and the distributor receives the remainder of the payment.
func TestRepaySplitsInterestWithTreasury(t *testing.T) {
	env := newTestEnv(t)
	env.state.config.FeeRateBps = 500
	loanID, _ := startTestLoan(t, env)

	result, err := env.engine.RepayBorrowedFunds("borrower", loanID, []Coin{NewCoin("uatom", 506)})
	if err != nil {
		t.Fatalf("repay: %v", err)
	}
	pay, ok := findMessage[*BankSend](result.Messages)
	if !ok {
		t.Fatal("no lender payout")
	}
	if pay.Amount.Amount.Int64() != 503 {
		t.Fatalf("lender payback = %v, want 503", pay.Amount.Amount)
	}
	fees, ok := findMessage[*DepositFees](result.Messages)
	if !ok {
		t.Fatal("no fee deposit")
	}
	if fees.Funds.Amount.Int64() != 3 {
		t.Fatalf("treasury cut = %v, want 3", fees.Funds.Amount)
	}
	if fees.Distributor != "treasury" || fees.FeeType != FeeTypeFunds {
		t.Fatalf("fee deposit = %+v", fees)
	}
	if len(fees.AssetContracts) != 1 || fees.AssetContracts[0] != "nft-contract" {
		t.Fatalf("fee contracts = %v", fees.AssetContracts)
	}
}

func TestRepayOverpaymentGoesToTreasury(t *testing.T) {
	env := newTestEnv(t)
	env.state.config.FeeRateBps = 500
	loanID, _ := startTestLoan(t, env)

	result, err := env.engine.RepayBorrowedFunds("borrower", loanID, []Coin{NewCoin("uatom", 600)})
	if err != nil {
		t.Fatalf("repay: %v", err)
	}
	pay, _ := findMessage[*BankSend](result.Messages)
	fees, _ := findMessage[*DepositFees](result.Messages)
	if pay.Amount.Amount.Int64() != 503 {
		t.Fatalf("lender payback = %v, want 503", pay.Amount.Amount)
	}
	if fees.Funds.Amount.Int64() != 97 {
		t.Fatalf("treasury cut = %v, want 97", fees.Funds.Amount)
	}
	// Conservation: everything the borrower sent left again.
	total := new(big.Int).Add(pay.Amount.Amount, fees.Funds.Amount)
	if total.Int64() != 600 {
		t.Fatalf("payout total = %v, want 600", total)
	}
}

func TestRepayRejectsUnderpayment(t *testing.T) {
	env := newTestEnv(t)
	loanID, _ := startTestLoan(t, env)

	_, err := env.engine.RepayBorrowedFunds("borrower", loanID, []Coin{NewCoin("uatom", 505)})
	var tooLow *RepaymentTooLowError
	if !errors.As(err, &tooLow) {
		t.Fatalf("underpay: %v, want RepaymentTooLowError", err)
	}
	if tooLow.Required.Int64() != 506 || tooLow.Sent.Int64() != 505 {
		t.Fatalf("error detail = %+v", tooLow)
	}
	collateral, _, _ := env.state.Collateral("borrower", loanID)
	if collateral.State != LoanStarted {
		t.Fatalf("state mutated to %v on failed repay", collateral.State)
	}
}

func TestRepayValidatesPayment(t *testing.T) {
	env := newTestEnv(t)
	loanID, _ := startTestLoan(t, env)

	if _, err := env.engine.RepayBorrowedFunds("borrower", loanID, []Coin{NewCoin("uosmo", 506)}); !errors.Is(err, ErrFundsDontMatchTerms) {
		t.Fatalf("wrong denom: %v, want ErrFundsDontMatchTerms", err)
	}
	funds := []Coin{NewCoin("uatom", 500), NewCoin("uatom", 6)}
	if _, err := env.engine.RepayBorrowedFunds("borrower", loanID, funds); !errors.Is(err, ErrMultipleCoins) {
		t.Fatalf("two coins: %v, want ErrMultipleCoins", err)
	}
}

func TestRepayRejectedBeforeStart(t *testing.T) {
	env := newTestEnv(t)
	loanID := listCollateral(t, env)
	_, err := env.engine.RepayBorrowedFunds("borrower", loanID, []Coin{NewCoin("uatom", 506)})
	var wrongState *WrongLoanStateError
	if !errors.As(err, &wrongState) {
		t.Fatalf("repay published: %v, want WrongLoanStateError", err)
	}
}

func TestRepayRejectedAfterExpiry(t *testing.T) {
	env := newTestEnv(t)
	env.height = 10
	loanID, _ := startTestLoan(t, env)

	// Duration is 100 blocks; strictly past the deadline the borrower is out.
	env.height = 111
	_, err := env.engine.RepayBorrowedFunds("borrower", loanID, []Coin{NewCoin("uatom", 506)})
	var wrongState *WrongLoanStateError
	if !errors.As(err, &wrongState) {
		t.Fatalf("late repay: %v, want WrongLoanStateError", err)
	}
	if wrongState.State != LoanDefaulted {
		t.Fatalf("reported state = %v, want defaulted", wrongState.State)
	}
}

func TestRepayAllowedAtDeadline(t *testing.T) {
	env := newTestEnv(t)
	env.height = 10
	loanID, _ := startTestLoan(t, env)

	// At exactly start+duration the loan has not defaulted yet.
	env.height = 110
	if _, err := env.engine.RepayBorrowedFunds("borrower", loanID, []Coin{NewCoin("uatom", 506)}); err != nil {
		t.Fatalf("repay at deadline: %v", err)
	}
}

func TestWithdrawDefaultedLoan(t *testing.T) {
	env := newTestEnv(t)
	env.height = 10
	loanID, _ := startTestLoan(t, env)

	// Not yet: the deadline block itself is still repayable.
	env.height = 110
	if _, err := env.engine.WithdrawDefaultedLoan("lender", "borrower", loanID); err == nil {
		t.Fatal("default claim at deadline succeeded")
	}

	env.height = 111
	if _, err := env.engine.WithdrawDefaultedLoan("mallory", "borrower", loanID); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("stranger claim: %v, want ErrUnauthorized", err)
	}
	result, err := env.engine.WithdrawDefaultedLoan("lender", "borrower", loanID)
	if err != nil {
		t.Fatalf("default claim: %v", err)
	}
	if len(result.Messages) != 1 {
		t.Fatalf("messages = %d, want 1", len(result.Messages))
	}
	transfer, ok := result.Messages[0].(*AssetTransfer)
	if !ok || transfer.Recipient != "lender" {
		t.Fatalf("message = %+v, want asset transfer to lender", result.Messages[0])
	}
	if _, ok := findMessage[*BankSend](result.Messages); ok {
		t.Fatal("funds moved on a default claim")
	}
	collateral, _, _ := env.state.Collateral("borrower", loanID)
	if collateral.State != LoanDefaulted {
		t.Fatalf("state = %v, want defaulted", collateral.State)
	}

	if _, err := env.engine.WithdrawDefaultedLoan("lender", "borrower", loanID); !errors.Is(err, ErrAlreadyDefaulted) {
		t.Fatalf("double claim: %v, want ErrAlreadyDefaulted", err)
	}
}

func TestRepayRejectedAfterDefaultClaim(t *testing.T) {
	env := newTestEnv(t)
	env.height = 10
	loanID, _ := startTestLoan(t, env)
	env.height = 200
	if _, err := env.engine.WithdrawDefaultedLoan("lender", "borrower", loanID); err != nil {
		t.Fatalf("default claim: %v", err)
	}
	_, err := env.engine.RepayBorrowedFunds("borrower", loanID, []Coin{NewCoin("uatom", 506)})
	var wrongState *WrongLoanStateError
	if !errors.As(err, &wrongState) {
		t.Fatalf("repay after claim: %v, want WrongLoanStateError", err)
	}
}

// A duration that pushes the deadline past the uint64 range means the loan
// never expires; the wrapped sum must not hand the collateral to the lender
// at acceptance.
func TestOpenEndedDurationNeverDefaults(t *testing.T) {
	env := newTestEnv(t)
	env.height = 100
	loanID := listCollateral(t, env)
	terms := LoanTerms{
		Principal:        NewCoin("uatom", 456),
		Interest:         big.NewInt(50),
		DurationInBlocks: math.MaxUint64,
	}
	globalID, err := env.engine.MakeOffer("lender", "borrower", loanID, terms, []Coin{NewCoin("uatom", 456)}, "")
	if err != nil {
		t.Fatalf("make offer: %v", err)
	}
	if _, err := env.engine.AcceptOffer("borrower", globalID); err != nil {
		t.Fatalf("accept: %v", err)
	}

	if _, err := env.engine.WithdrawDefaultedLoan("lender", "borrower", loanID); err == nil {
		t.Fatal("open-ended loan claimed as defaulted")
	}
	env.height = math.MaxUint64
	if _, err := env.engine.WithdrawDefaultedLoan("lender", "borrower", loanID); err == nil {
		t.Fatal("open-ended loan claimed as defaulted at max height")
	}
	// The borrower can always repay.
	if _, err := env.engine.RepayBorrowedFunds("borrower", loanID, []Coin{NewCoin("uatom", 506)}); err != nil {
		t.Fatalf("repay open-ended loan: %v", err)
	}
}

func TestDefaultClaimRequiresStartedLoan(t *testing.T) {
	env := newTestEnv(t)
	loanID := listCollateral(t, env)
	if _, err := env.engine.WithdrawDefaultedLoan("lender", "borrower", loanID); !errors.Is(err, ErrOfferNotFound) {
		t.Fatalf("claim on published: %v, want ErrOfferNotFound", err)
	}
}
