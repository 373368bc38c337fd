package rpc

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"nftlend/native/loan"
)

func (s *Server) mountQueries(r chi.Router) {
	r.Get("/config", s.contractConfig)
	r.Get("/collaterals", s.allCollaterals)
	r.Get("/borrowers/{borrower}", s.borrowerInfo)
	r.Get("/borrowers/{borrower}/collaterals", s.collaterals)
	r.Get("/borrowers/{borrower}/collaterals/{loanID}", s.collateralInfo)
	r.Get("/borrowers/{borrower}/collaterals/{loanID}/offers", s.offersByLoan)
	r.Get("/offers/{globalID}", s.offerInfo)
	r.Get("/lenders/{lender}/offers", s.offersByLender)
}

func (s *Server) contractConfig(w http.ResponseWriter, _ *http.Request) {
	cfg, err := s.querier.ContractConfig()
	if err != nil {
		s.writeEngineError(w, "query_config", err)
		return
	}
	writeJSON(w, http.StatusOK, cfg)
}

func (s *Server) borrowerInfo(w http.ResponseWriter, r *http.Request) {
	info, err := s.querier.BorrowerInfo(chi.URLParam(r, "borrower"))
	if err != nil {
		s.writeEngineError(w, "query_borrower", err)
		return
	}
	writeJSON(w, http.StatusOK, info)
}

func (s *Server) collateralInfo(w http.ResponseWriter, r *http.Request) {
	loanID, err := parseUintParam(r, "loanID")
	if err != nil {
		writeBadRequest(w, err)
		return
	}
	collateral, err := s.querier.CollateralInfo(chi.URLParam(r, "borrower"), loanID)
	if err != nil {
		s.writeEngineError(w, "query_collateral", err)
		return
	}
	writeJSON(w, http.StatusOK, collateral)
}

func (s *Server) collaterals(w http.ResponseWriter, r *http.Request) {
	startAfter, limit, err := queryCursor(r)
	if err != nil {
		writeBadRequest(w, err)
		return
	}
	page, err := s.querier.Collaterals(chi.URLParam(r, "borrower"), startAfter, limit)
	if err != nil {
		s.writeEngineError(w, "query_collaterals", err)
		return
	}
	writeJSON(w, http.StatusOK, page)
}

// allCollaterals pages the global listing. The compound cursor arrives as two
// query parameters that must be supplied together.
func (s *Server) allCollaterals(w http.ResponseWriter, r *http.Request) {
	limit, err := queryLimit(r)
	if err != nil {
		writeBadRequest(w, err)
		return
	}
	var cursor *loan.CollateralCursor
	borrower := r.URL.Query().Get("start_after_borrower")
	rawLoanID := r.URL.Query().Get("start_after_loan_id")
	if borrower != "" && rawLoanID != "" {
		loanID, err := strconv.ParseUint(rawLoanID, 10, 64)
		if err != nil {
			writeBadRequest(w, err)
			return
		}
		cursor = &loan.CollateralCursor{Borrower: borrower, LoanID: loanID}
	}
	page, err := s.querier.AllCollaterals(cursor, limit)
	if err != nil {
		s.writeEngineError(w, "query_all_collaterals", err)
		return
	}
	writeJSON(w, http.StatusOK, page)
}

func (s *Server) offerInfo(w http.ResponseWriter, r *http.Request) {
	offer, err := s.querier.OfferInfo(chi.URLParam(r, "globalID"))
	if err != nil {
		s.writeEngineError(w, "query_offer", err)
		return
	}
	writeJSON(w, http.StatusOK, offer)
}

func (s *Server) offersByLender(w http.ResponseWriter, r *http.Request) {
	startAfter, limit, err := queryCursor(r)
	if err != nil {
		writeBadRequest(w, err)
		return
	}
	page, err := s.querier.OffersByLender(chi.URLParam(r, "lender"), startAfter, limit)
	if err != nil {
		s.writeEngineError(w, "query_lender_offers", err)
		return
	}
	writeJSON(w, http.StatusOK, page)
}

func (s *Server) offersByLoan(w http.ResponseWriter, r *http.Request) {
	loanID, err := parseUintParam(r, "loanID")
	if err != nil {
		writeBadRequest(w, err)
		return
	}
	startAfter, limit, err := queryCursor(r)
	if err != nil {
		writeBadRequest(w, err)
		return
	}
	page, err := s.querier.OffersByLoan(chi.URLParam(r, "borrower"), loanID, startAfter, limit)
	if err != nil {
		s.writeEngineError(w, "query_loan_offers", err)
		return
	}
	writeJSON(w, http.StatusOK, page)
}
