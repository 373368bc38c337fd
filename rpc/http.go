package rpc

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/golang-jwt/jwt/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	nativecommon "nftlend/native/common"
	"nftlend/native/loan"
	"nftlend/observability/metrics"
)

const requestLimit = 1 << 20 // 1 MiB

// Server exposes the loan engine and querier over HTTP.
type Server struct {
	engine      *loan.Engine
	querier     *loan.Querier
	metrics     *metrics.LoanMetrics
	log         *slog.Logger
	adminSecret []byte
}

// NewServer wires the HTTP surface. A nil logger falls back to the process
// default.
func NewServer(engine *loan.Engine, querier *loan.Querier, m *metrics.LoanMetrics, log *slog.Logger) *Server {
	if log == nil {
		log = slog.Default()
	}
	return &Server{engine: engine, querier: querier, metrics: m, log: log}
}

// SetAdminJWTSecret enables bearer-token authentication on the admin routes.
// An empty secret leaves them open for trusted deployments.
func (s *Server) SetAdminJWTSecret(secret string) {
	secret = strings.TrimSpace(secret)
	if secret == "" {
		s.adminSecret = nil
		return
	}
	s.adminSecret = []byte(secret)
}

// Router assembles the full route tree.
func (s *Server) Router() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())

	r.Route("/v1/loans", func(r chi.Router) {
		s.mountQueries(r)
		s.mountExec(r)
	})
	return r
}

// Serve runs the HTTP listener until the context is cancelled, then drains
// in-flight requests.
func (s *Server) Serve(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Router(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()
	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func decodeRequest(r *http.Request, into any) error {
	defer func() {
		_, _ = io.Copy(io.Discard, r.Body)
	}()
	decoder := json.NewDecoder(io.LimitReader(r.Body, requestLimit))
	decoder.DisallowUnknownFields()
	return decoder.Decode(into)
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

type errorResponse struct {
	Error string `json:"error"`
}

func writeBadRequest(w http.ResponseWriter, err error) {
	writeJSON(w, http.StatusBadRequest, errorResponse{Error: err.Error()})
}

// writeEngineError maps engine and querier failures onto HTTP statuses.
// Lifecycle guard violations are conflicts, not bad requests: the request was
// well-formed, the record just is not in a state that permits it.
func (s *Server) writeEngineError(w http.ResponseWriter, operation string, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, loan.ErrLoanNotFound), errors.Is(err, loan.ErrOfferNotFound):
		status = http.StatusNotFound
	case errors.Is(err, loan.ErrUnauthorized):
		status = http.StatusForbidden
	case errors.Is(err, nativecommon.ErrModulePaused):
		status = http.StatusServiceUnavailable
	case errors.Is(err, loan.ErrNotModifiable),
		errors.Is(err, loan.ErrNotAcceptable),
		errors.Is(err, loan.ErrNotCounterable),
		errors.Is(err, loan.ErrNotRefusable),
		errors.Is(err, loan.ErrNotWithdrawable),
		errors.Is(err, loan.ErrAlreadyDefaulted),
		errors.Is(err, loan.ErrNoFundsToWithdraw),
		errors.Is(err, loan.ErrBorrowerNotAssetOwner):
		status = http.StatusConflict
	case errors.Is(err, loan.ErrNoAssets),
		errors.Is(err, loan.ErrAssetNotInLoan),
		errors.Is(err, loan.ErrUnknownAssetKind),
		errors.Is(err, loan.ErrInvalidAsset),
		errors.Is(err, loan.ErrInvalidDenom),
		errors.Is(err, loan.ErrInvalidAmount),
		errors.Is(err, loan.ErrMultipleCoins),
		errors.Is(err, loan.ErrFundsDontMatchTerms),
		errors.Is(err, loan.ErrNoTermsSpecified),
		errors.Is(err, loan.ErrNoProposedOwner),
		errors.Is(err, loan.ErrEmptyAddress),
		errors.Is(err, loan.ErrInvalidAddress),
		errors.Is(err, loan.ErrFeeRateOutOfRange):
		status = http.StatusBadRequest
	}
	var wrongLoan *loan.WrongLoanStateError
	var wrongOffer *loan.WrongOfferStateError
	var stateChange *loan.OfferStateChangeError
	if errors.As(err, &wrongLoan) || errors.As(err, &wrongOffer) || errors.As(err, &stateChange) {
		status = http.StatusConflict
	}
	var tooLow *loan.RepaymentTooLowError
	if errors.As(err, &tooLow) {
		status = http.StatusBadRequest
	}

	if status >= http.StatusInternalServerError {
		s.log.Error("loan rpc failure", "operation", operation, "error", err)
	} else {
		s.metrics.ObserveGuardRejection(operation)
	}
	writeJSON(w, status, errorResponse{Error: err.Error()})
}

type adminSubjectKey struct{}

// adminAuth authenticates admin calls with an HS256 bearer token when a
// secret is configured. The verified token subject is handed to the handlers
// as the authoritative caller identity.
func (s *Server) adminAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if len(s.adminSecret) == 0 {
			next.ServeHTTP(w, r)
			return
		}
		raw, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
		raw = strings.TrimSpace(raw)
		if !ok || raw == "" {
			writeJSON(w, http.StatusUnauthorized, errorResponse{Error: "admin token required"})
			return
		}
		claims := &jwt.RegisteredClaims{}
		token, err := jwt.ParseWithClaims(raw, claims, func(t *jwt.Token) (any, error) {
			if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
			}
			return s.adminSecret, nil
		})
		if err != nil || !token.Valid || strings.TrimSpace(claims.Subject) == "" {
			writeJSON(w, http.StatusUnauthorized, errorResponse{Error: "invalid admin token"})
			return
		}
		ctx := context.WithValue(r.Context(), adminSubjectKey{}, claims.Subject)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// adminCaller resolves the caller identity for an admin operation. With token
// auth enabled the token subject is authoritative; a body caller naming
// someone else is rejected.
func (s *Server) adminCaller(r *http.Request, bodyCaller string) (string, error) {
	subject, ok := r.Context().Value(adminSubjectKey{}).(string)
	if !ok || subject == "" {
		return bodyCaller, nil
	}
	if bodyCaller != "" && bodyCaller != subject {
		return "", loan.ErrUnauthorized
	}
	return subject, nil
}

func parseUintParam(r *http.Request, name string) (uint64, error) {
	return strconv.ParseUint(chi.URLParam(r, name), 10, 64)
}

// queryCursor reads the optional numeric pagination parameters shared by the
// list endpoints.
func queryCursor(r *http.Request) (*uint64, uint32, error) {
	var startAfter *uint64
	if raw := r.URL.Query().Get("start_after"); raw != "" {
		parsed, err := strconv.ParseUint(raw, 10, 64)
		if err != nil {
			return nil, 0, err
		}
		startAfter = &parsed
	}
	limit, err := queryLimit(r)
	if err != nil {
		return nil, 0, err
	}
	return startAfter, limit, nil
}

func queryLimit(r *http.Request) (uint32, error) {
	raw := r.URL.Query().Get("limit")
	if raw == "" {
		return 0, nil
	}
	parsed, err := strconv.ParseUint(raw, 10, 32)
	if err != nil {
		return 0, err
	}
	return uint32(parsed), nil
}
