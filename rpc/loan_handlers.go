package rpc

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"nftlend/native/loan"
)

func (s *Server) mountExec(r chi.Router) {
	r.Post("/collaterals", s.depositCollateral)
	r.Post("/collaterals/modify", s.modifyCollateral)
	r.Post("/collaterals/withdraw", s.withdrawCollateral)
	r.Post("/offers", s.makeOffer)
	r.Post("/offers/cancel", s.cancelOffer)
	r.Post("/offers/refuse", s.refuseOffer)
	r.Post("/offers/withdraw", s.withdrawRefusedOffer)
	r.Post("/offers/accept", s.acceptOffer)
	r.Post("/accept", s.acceptLoan)
	r.Post("/repay", s.repayLoan)
	r.Post("/default", s.withdrawDefaultedLoan)
	r.Route("/admin", func(r chi.Router) {
		r.Use(s.adminAuth)
		r.Post("/owner", s.setOwner)
		r.Post("/owner/claim", s.claimOwnership)
		r.Post("/fee-distributor", s.setFeeDistributor)
		r.Post("/fee-rate", s.setFeeRate)
	})
}

type depositCollateralRequest struct {
	Borrower string          `json:"borrower"`
	Assets   []loan.Asset    `json:"assets"`
	Terms    *loan.LoanTerms `json:"terms,omitempty"`
	Comment  string          `json:"comment,omitempty"`
	Preview  *loan.Asset     `json:"preview,omitempty"`
}

type depositCollateralResponse struct {
	LoanID uint64 `json:"loan_id"`
}

func (s *Server) depositCollateral(w http.ResponseWriter, r *http.Request) {
	var req depositCollateralRequest
	if err := decodeRequest(r, &req); err != nil {
		writeBadRequest(w, err)
		return
	}
	loanID, err := s.engine.DepositCollateral(req.Borrower, req.Assets, req.Terms, req.Comment, req.Preview)
	if err != nil {
		s.writeEngineError(w, "deposit_collateral", err)
		return
	}
	s.metrics.ObserveCollateralDeposited()
	writeJSON(w, http.StatusCreated, depositCollateralResponse{LoanID: loanID})
}

type modifyCollateralRequest struct {
	Borrower string          `json:"borrower"`
	LoanID   uint64          `json:"loan_id"`
	Terms    *loan.LoanTerms `json:"terms,omitempty"`
	Comment  *string         `json:"comment,omitempty"`
	Preview  *loan.Asset     `json:"preview,omitempty"`
}

func (s *Server) modifyCollateral(w http.ResponseWriter, r *http.Request) {
	var req modifyCollateralRequest
	if err := decodeRequest(r, &req); err != nil {
		writeBadRequest(w, err)
		return
	}
	if err := s.engine.ModifyCollateral(req.Borrower, req.LoanID, req.Terms, req.Comment, req.Preview); err != nil {
		s.writeEngineError(w, "modify_collateral", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

type collateralRef struct {
	Borrower string `json:"borrower"`
	LoanID   uint64 `json:"loan_id"`
}

func (s *Server) withdrawCollateral(w http.ResponseWriter, r *http.Request) {
	var req collateralRef
	if err := decodeRequest(r, &req); err != nil {
		writeBadRequest(w, err)
		return
	}
	if err := s.engine.WithdrawCollateral(req.Borrower, req.LoanID); err != nil {
		s.writeEngineError(w, "withdraw_collateral", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

type makeOfferRequest struct {
	Lender   string         `json:"lender"`
	Borrower string         `json:"borrower"`
	LoanID   uint64         `json:"loan_id"`
	Terms    loan.LoanTerms `json:"terms"`
	Funds    []loan.Coin    `json:"funds"`
	Comment  string         `json:"comment,omitempty"`
}

type makeOfferResponse struct {
	GlobalOfferID string `json:"global_offer_id"`
}

func (s *Server) makeOffer(w http.ResponseWriter, r *http.Request) {
	var req makeOfferRequest
	if err := decodeRequest(r, &req); err != nil {
		writeBadRequest(w, err)
		return
	}
	globalID, err := s.engine.MakeOffer(req.Lender, req.Borrower, req.LoanID, req.Terms, req.Funds, req.Comment)
	if err != nil {
		s.writeEngineError(w, "make_offer", err)
		return
	}
	s.metrics.ObserveOfferMade()
	writeJSON(w, http.StatusCreated, makeOfferResponse{GlobalOfferID: globalID})
}

type offerRef struct {
	Caller        string `json:"caller"`
	GlobalOfferID string `json:"global_offer_id"`
}

type transferResponse struct {
	Refund *loan.BankSend `json:"refund,omitempty"`
}

func (s *Server) cancelOffer(w http.ResponseWriter, r *http.Request) {
	var req offerRef
	if err := decodeRequest(r, &req); err != nil {
		writeBadRequest(w, err)
		return
	}
	refund, err := s.engine.CancelOffer(req.Caller, req.GlobalOfferID)
	if err != nil {
		s.writeEngineError(w, "cancel_offer", err)
		return
	}
	writeJSON(w, http.StatusOK, transferResponse{Refund: refund})
}

func (s *Server) refuseOffer(w http.ResponseWriter, r *http.Request) {
	var req offerRef
	if err := decodeRequest(r, &req); err != nil {
		writeBadRequest(w, err)
		return
	}
	if err := s.engine.RefuseOffer(req.Caller, req.GlobalOfferID); err != nil {
		s.writeEngineError(w, "refuse_offer", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) withdrawRefusedOffer(w http.ResponseWriter, r *http.Request) {
	var req offerRef
	if err := decodeRequest(r, &req); err != nil {
		writeBadRequest(w, err)
		return
	}
	refund, err := s.engine.WithdrawRefusedOffer(req.Caller, req.GlobalOfferID)
	if err != nil {
		s.writeEngineError(w, "withdraw_refused_offer", err)
		return
	}
	writeJSON(w, http.StatusOK, transferResponse{Refund: refund})
}

type acceptResponse struct {
	GlobalOfferID string         `json:"global_offer_id"`
	Messages      []loan.Message `json:"messages"`
}

func (s *Server) acceptOffer(w http.ResponseWriter, r *http.Request) {
	var req offerRef
	if err := decodeRequest(r, &req); err != nil {
		writeBadRequest(w, err)
		return
	}
	result, err := s.engine.AcceptOffer(req.Caller, req.GlobalOfferID)
	if err != nil {
		s.writeEngineError(w, "accept_offer", err)
		return
	}
	s.metrics.ObserveLoanStarted()
	writeJSON(w, http.StatusOK, acceptResponse{GlobalOfferID: result.GlobalOfferID, Messages: result.Messages})
}

type acceptLoanRequest struct {
	Lender   string      `json:"lender"`
	Borrower string      `json:"borrower"`
	LoanID   uint64      `json:"loan_id"`
	Funds    []loan.Coin `json:"funds"`
	Comment  string      `json:"comment,omitempty"`
}

func (s *Server) acceptLoan(w http.ResponseWriter, r *http.Request) {
	var req acceptLoanRequest
	if err := decodeRequest(r, &req); err != nil {
		writeBadRequest(w, err)
		return
	}
	result, err := s.engine.AcceptLoan(req.Lender, req.Borrower, req.LoanID, req.Funds, req.Comment)
	if err != nil {
		s.writeEngineError(w, "accept_loan", err)
		return
	}
	s.metrics.ObserveOfferMade()
	s.metrics.ObserveLoanStarted()
	writeJSON(w, http.StatusOK, acceptResponse{GlobalOfferID: result.GlobalOfferID, Messages: result.Messages})
}

type repayRequest struct {
	Borrower string      `json:"borrower"`
	LoanID   uint64      `json:"loan_id"`
	Funds    []loan.Coin `json:"funds"`
}

type settlementResponse struct {
	Messages []loan.Message `json:"messages"`
}

func (s *Server) repayLoan(w http.ResponseWriter, r *http.Request) {
	var req repayRequest
	if err := decodeRequest(r, &req); err != nil {
		writeBadRequest(w, err)
		return
	}
	result, err := s.engine.RepayBorrowedFunds(req.Borrower, req.LoanID, req.Funds)
	if err != nil {
		s.writeEngineError(w, "repay_loan", err)
		return
	}
	s.metrics.ObserveLoanRepaid()
	writeJSON(w, http.StatusOK, settlementResponse{Messages: result.Messages})
}

type defaultRequest struct {
	Lender   string `json:"lender"`
	Borrower string `json:"borrower"`
	LoanID   uint64 `json:"loan_id"`
}

func (s *Server) withdrawDefaultedLoan(w http.ResponseWriter, r *http.Request) {
	var req defaultRequest
	if err := decodeRequest(r, &req); err != nil {
		writeBadRequest(w, err)
		return
	}
	result, err := s.engine.WithdrawDefaultedLoan(req.Lender, req.Borrower, req.LoanID)
	if err != nil {
		s.writeEngineError(w, "withdraw_defaulted_loan", err)
		return
	}
	s.metrics.ObserveLoanDefaulted()
	writeJSON(w, http.StatusOK, settlementResponse{Messages: result.Messages})
}

type setOwnerRequest struct {
	Caller   string `json:"caller"`
	NewOwner string `json:"new_owner"`
}

func (s *Server) setOwner(w http.ResponseWriter, r *http.Request) {
	var req setOwnerRequest
	if err := decodeRequest(r, &req); err != nil {
		writeBadRequest(w, err)
		return
	}
	caller, err := s.adminCaller(r, req.Caller)
	if err != nil {
		s.writeEngineError(w, "set_owner", err)
		return
	}
	if err := s.engine.SetOwner(caller, req.NewOwner); err != nil {
		s.writeEngineError(w, "set_owner", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

type claimOwnershipRequest struct {
	Caller string `json:"caller"`
}

func (s *Server) claimOwnership(w http.ResponseWriter, r *http.Request) {
	var req claimOwnershipRequest
	if err := decodeRequest(r, &req); err != nil {
		writeBadRequest(w, err)
		return
	}
	caller, err := s.adminCaller(r, req.Caller)
	if err != nil {
		s.writeEngineError(w, "claim_ownership", err)
		return
	}
	if err := s.engine.ClaimOwnership(caller); err != nil {
		s.writeEngineError(w, "claim_ownership", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

type setFeeDistributorRequest struct {
	Caller      string `json:"caller"`
	Distributor string `json:"distributor"`
}

func (s *Server) setFeeDistributor(w http.ResponseWriter, r *http.Request) {
	var req setFeeDistributorRequest
	if err := decodeRequest(r, &req); err != nil {
		writeBadRequest(w, err)
		return
	}
	caller, err := s.adminCaller(r, req.Caller)
	if err != nil {
		s.writeEngineError(w, "set_fee_distributor", err)
		return
	}
	if err := s.engine.SetFeeDistributor(caller, req.Distributor); err != nil {
		s.writeEngineError(w, "set_fee_distributor", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

type setFeeRateRequest struct {
	Caller     string `json:"caller"`
	FeeRateBps uint32 `json:"fee_rate_bps"`
}

func (s *Server) setFeeRate(w http.ResponseWriter, r *http.Request) {
	var req setFeeRateRequest
	if err := decodeRequest(r, &req); err != nil {
		writeBadRequest(w, err)
		return
	}
	caller, err := s.adminCaller(r, req.Caller)
	if err != nil {
		s.writeEngineError(w, "set_fee_rate", err)
		return
	}
	if err := s.engine.SetFeeRate(caller, req.FeeRateBps); err != nil {
		s.writeEngineError(w, "set_fee_rate", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
