package loan

import (
	"strconv"

	"nftlend/core/events"
)

const (
	EventTypeCollateralDeposited = "loan.collateral_deposited"
	EventTypeCollateralModified  = "loan.collateral_modified"
	EventTypeCollateralWithdrawn = "loan.collateral_withdrawn"
	EventTypeOfferMade           = "loan.offer_made"
	EventTypeOfferCancelled      = "loan.offer_cancelled"
	EventTypeOfferRefused        = "loan.offer_refused"
	EventTypeOfferFundsWithdrawn = "loan.offer_funds_withdrawn"
	EventTypeLoanStarted         = "loan.loan_started"
	EventTypeLoanRepaid          = "loan.loan_repaid"
	EventTypeLoanDefaulted       = "loan.loan_defaulted"
	EventTypeParamChanged        = "loan.param_changed"
)

func newCollateralEvent(eventType string, c *Collateral) *events.Event {
	attrs := make(map[string]string)
	if c != nil {
		attrs["borrower"] = c.Borrower
		attrs["loanId"] = strconv.FormatUint(c.LoanID, 10)
		attrs["state"] = c.State.String()
	}
	return &events.Event{Type: eventType, Attributes: attrs}
}

func newOfferEvent(eventType string, o *Offer) *events.Event {
	attrs := make(map[string]string)
	if o != nil {
		attrs["globalOfferId"] = o.GlobalID
		attrs["lender"] = o.Lender
		attrs["borrower"] = o.Borrower
		attrs["loanId"] = strconv.FormatUint(o.LoanID, 10)
		attrs["state"] = o.State.String()
		attrs["principalDenom"] = o.Terms.Principal.Denom
		if o.Terms.Principal.Amount != nil {
			attrs["principalAmount"] = o.Terms.Principal.Amount.String()
		}
	}
	return &events.Event{Type: eventType, Attributes: attrs}
}

func newLoanStartedEvent(c *Collateral, o *Offer) *events.Event {
	evt := newOfferEvent(EventTypeLoanStarted, o)
	if c != nil {
		evt.Attributes["startBlock"] = strconv.FormatUint(c.StartBlock, 10)
	}
	return evt
}

func newParamChangedEvent(parameter, value string) *events.Event {
	return &events.Event{Type: EventTypeParamChanged, Attributes: map[string]string{
		"parameter": parameter,
		"value":     value,
	}}
}
