package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

// LoanMetrics tracks the lifecycle throughput of the loan module.
type LoanMetrics struct {
	collateralsDeposited prometheus.Counter
	offersMade           prometheus.Counter
	loansStarted         prometheus.Counter
	loansRepaid          prometheus.Counter
	loansDefaulted       prometheus.Counter
	guardRejections      *prometheus.CounterVec
}

var (
	loanOnce     sync.Once
	loanRegistry *LoanMetrics
)

// Loan returns the process-wide loan metrics registry.
func Loan() *LoanMetrics {
	loanOnce.Do(func() {
		loanRegistry = &LoanMetrics{
			collateralsDeposited: prometheus.NewCounter(prometheus.CounterOpts{
				Name: "loan_collaterals_deposited_total",
				Help: "Count of collateral listings created.",
			}),
			offersMade: prometheus.NewCounter(prometheus.CounterOpts{
				Name: "loan_offers_made_total",
				Help: "Count of lender offers escrowed against collaterals.",
			}),
			loansStarted: prometheus.NewCounter(prometheus.CounterOpts{
				Name: "loan_loans_started_total",
				Help: "Count of accepted offers that started a loan.",
			}),
			loansRepaid: prometheus.NewCounter(prometheus.CounterOpts{
				Name: "loan_loans_repaid_total",
				Help: "Count of loans closed by on-time repayment.",
			}),
			loansDefaulted: prometheus.NewCounter(prometheus.CounterOpts{
				Name: "loan_loans_defaulted_total",
				Help: "Count of loans closed by lender default claims.",
			}),
			guardRejections: prometheus.NewCounterVec(prometheus.CounterOpts{
				Name: "loan_guard_rejections_total",
				Help: "Count of calls rejected by lifecycle guards, by operation.",
			}, []string{"operation"}),
		}
		prometheus.MustRegister(
			loanRegistry.collateralsDeposited,
			loanRegistry.offersMade,
			loanRegistry.loansStarted,
			loanRegistry.loansRepaid,
			loanRegistry.loansDefaulted,
			loanRegistry.guardRejections,
		)
	})
	return loanRegistry
}

func (m *LoanMetrics) ObserveCollateralDeposited() {
	if m == nil {
		return
	}
	m.collateralsDeposited.Inc()
}

func (m *LoanMetrics) ObserveOfferMade() {
	if m == nil {
		return
	}
	m.offersMade.Inc()
}

func (m *LoanMetrics) ObserveLoanStarted() {
	if m == nil {
		return
	}
	m.loansStarted.Inc()
}

func (m *LoanMetrics) ObserveLoanRepaid() {
	if m == nil {
		return
	}
	m.loansRepaid.Inc()
}

func (m *LoanMetrics) ObserveLoanDefaulted() {
	if m == nil {
		return
	}
	m.loansDefaulted.Inc()
}

func (m *LoanMetrics) ObserveGuardRejection(operation string) {
	if m == nil {
		return
	}
	if operation == "" {
		operation = "unknown"
	}
	m.guardRejections.WithLabelValues(operation).Inc()
}
