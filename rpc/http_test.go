package rpc

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/require"

	"nftlend/native/loan"
	stateloan "nftlend/state/loan"
	"nftlend/storage"
)

type staticOracle struct {
	owners map[string]string
}

func (o *staticOracle) OwnerOf(contract, tokenID string) (string, error) {
	owner, ok := o.owners[contract+"/"+tokenID]
	if !ok {
		return "", fmt.Errorf("unknown token %s/%s", contract, tokenID)
	}
	return owner, nil
}

func newTestServer(t *testing.T) *httptest.Server {
	t.Helper()
	store := stateloan.NewStore(storage.NewMemDB())
	require.NoError(t, store.EnsureContractConfig(&loan.ContractConfig{
		Name:           "nftlend",
		Owner:          "owner",
		FeeDistributor: "treasury",
		FeeRateBps:     500,
	}))

	oracle := &staticOracle{owners: map[string]string{"nft-contract/token-1": "borrower"}}
	engine := loan.NewEngine("custody")
	engine.SetState(store)
	engine.SetOracle(oracle)
	engine.SetHeightFunc(func() uint64 { return 10 })

	server := NewServer(engine, loan.NewQuerier(store), nil, nil)
	ts := httptest.NewServer(server.Router())
	t.Cleanup(ts.Close)
	return ts
}

func postJSON(t *testing.T, ts *httptest.Server, path string, body any) *http.Response {
	t.Helper()
	encoded, err := json.Marshal(body)
	require.NoError(t, err)
	resp, err := http.Post(ts.URL+path, "application/json", bytes.NewReader(encoded))
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func getJSON(t *testing.T, ts *httptest.Server, path string, into any) *http.Response {
	t.Helper()
	resp, err := http.Get(ts.URL + path)
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	if into != nil {
		require.NoError(t, json.NewDecoder(resp.Body).Decode(into))
	}
	return resp
}

func decodeBody(t *testing.T, resp *http.Response, into any) {
	t.Helper()
	require.NoError(t, json.NewDecoder(resp.Body).Decode(into))
}

func depositTestCollateral(t *testing.T, ts *httptest.Server) uint64 {
	t.Helper()
	resp := postJSON(t, ts, "/v1/loans/collaterals", map[string]any{
		"borrower": "borrower",
		"assets": []map[string]any{{
			"kind":     1,
			"contract": "nft-contract",
			"token_id": "token-1",
		}},
		"terms": map[string]any{
			"principal":          map[string]any{"denom": "uatom", "amount": 456},
			"interest":           50,
			"duration_in_blocks": 100,
		},
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	var created struct {
		LoanID uint64 `json:"loan_id"`
	}
	decodeBody(t, resp, &created)
	return created.LoanID
}

func TestLoanLifecycleOverHTTP(t *testing.T) {
	ts := newTestServer(t)
	loanID := depositTestCollateral(t, ts)
	require.Equal(t, uint64(0), loanID)

	resp := postJSON(t, ts, "/v1/loans/offers", map[string]any{
		"lender":   "lender",
		"borrower": "borrower",
		"loan_id":  loanID,
		"terms": map[string]any{
			"principal":          map[string]any{"denom": "uatom", "amount": 456},
			"interest":           50,
			"duration_in_blocks": 100,
		},
		"funds": []map[string]any{{"denom": "uatom", "amount": 456}},
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	var offered struct {
		GlobalOfferID string `json:"global_offer_id"`
	}
	decodeBody(t, resp, &offered)
	require.Equal(t, "1", offered.GlobalOfferID)

	resp = postJSON(t, ts, "/v1/loans/offers/accept", map[string]any{
		"caller":          "borrower",
		"global_offer_id": offered.GlobalOfferID,
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var accepted struct {
		GlobalOfferID string            `json:"global_offer_id"`
		Messages      []json.RawMessage `json:"messages"`
	}
	decodeBody(t, resp, &accepted)
	require.Equal(t, "1", accepted.GlobalOfferID)
	require.Len(t, accepted.Messages, 2)

	var collateral loan.Collateral
	getResp := getJSON(t, ts, "/v1/loans/borrowers/borrower/collaterals/0", &collateral)
	require.Equal(t, http.StatusOK, getResp.StatusCode)
	require.Equal(t, loan.LoanStarted, collateral.State)
	require.Equal(t, uint64(10), collateral.StartBlock)

	resp = postJSON(t, ts, "/v1/loans/repay", map[string]any{
		"borrower": "borrower",
		"loan_id":  loanID,
		"funds":    []map[string]any{{"denom": "uatom", "amount": 506}},
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	getJSON(t, ts, "/v1/loans/borrowers/borrower/collaterals/0", &collateral)
	require.Equal(t, loan.LoanEnded, collateral.State)
}

func TestErrorStatusMapping(t *testing.T) {
	ts := newTestServer(t)
	loanID := depositTestCollateral(t, ts)

	// Unknown records are 404.
	resp := getJSON(t, ts, "/v1/loans/borrowers/nobody/collaterals/0", nil)
	require.Equal(t, http.StatusNotFound, resp.StatusCode)
	resp = getJSON(t, ts, "/v1/loans/offers/99", nil)
	require.Equal(t, http.StatusNotFound, resp.StatusCode)

	resp = postJSON(t, ts, "/v1/loans/collaterals/withdraw", map[string]any{
		"borrower": "borrower",
		"loan_id":  loanID,
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	// A second withdraw trips the lifecycle guard: 409.
	resp = postJSON(t, ts, "/v1/loans/collaterals/withdraw", map[string]any{
		"borrower": "borrower",
		"loan_id":  loanID,
	})
	require.Equal(t, http.StatusConflict, resp.StatusCode)

	// Malformed bodies are 400.
	raw, err := http.Post(ts.URL+"/v1/loans/collaterals", "application/json", bytes.NewReader([]byte("{nope")))
	require.NoError(t, err)
	defer raw.Body.Close()
	require.Equal(t, http.StatusBadRequest, raw.StatusCode)
}

func TestAdminEndpoints(t *testing.T) {
	ts := newTestServer(t)

	resp := postJSON(t, ts, "/v1/loans/admin/fee-rate", map[string]any{
		"caller":       "mallory",
		"fee_rate_bps": 100,
	})
	require.Equal(t, http.StatusForbidden, resp.StatusCode)

	resp = postJSON(t, ts, "/v1/loans/admin/fee-rate", map[string]any{
		"caller":       "owner",
		"fee_rate_bps": 250,
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp = postJSON(t, ts, "/v1/loans/admin/owner", map[string]any{
		"caller":    "owner",
		"new_owner": "successor",
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	resp = postJSON(t, ts, "/v1/loans/admin/owner/claim", map[string]any{
		"caller": "successor",
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var cfg loan.ContractConfig
	getJSON(t, ts, "/v1/loans/config", &cfg)
	require.Equal(t, "successor", cfg.Owner)
	require.Equal(t, uint32(250), cfg.FeeRateBps)
}

func postJSONWithToken(t *testing.T, ts *httptest.Server, path, token string, body any) *http.Response {
	t.Helper()
	encoded, err := json.Marshal(body)
	require.NoError(t, err)
	req, err := http.NewRequest(http.MethodPost, ts.URL+path, bytes.NewReader(encoded))
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func signAdminToken(t *testing.T, secret, subject string) string {
	t.Helper()
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		Subject: subject,
	}).SignedString([]byte(secret))
	require.NoError(t, err)
	return token
}

func TestAdminEndpointsRequireToken(t *testing.T) {
	const secret = "test-secret"

	store := stateloan.NewStore(storage.NewMemDB())
	require.NoError(t, store.EnsureContractConfig(&loan.ContractConfig{
		Name:           "nftlend",
		Owner:          "owner",
		FeeDistributor: "treasury",
		FeeRateBps:     500,
	}))
	engine := loan.NewEngine("custody")
	engine.SetState(store)
	engine.SetHeightFunc(func() uint64 { return 10 })

	server := NewServer(engine, loan.NewQuerier(store), nil, nil)
	server.SetAdminJWTSecret(secret)
	ts := httptest.NewServer(server.Router())
	t.Cleanup(ts.Close)

	feeRateBody := map[string]any{"fee_rate_bps": 100}

	// No token: 401.
	resp := postJSON(t, ts, "/v1/loans/admin/fee-rate", feeRateBody)
	require.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	// Garbage token: 401.
	resp = postJSONWithToken(t, ts, "/v1/loans/admin/fee-rate", "not-a-token", feeRateBody)
	require.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	// Token signed with the wrong secret: 401.
	resp = postJSONWithToken(t, ts, "/v1/loans/admin/fee-rate", signAdminToken(t, "wrong-secret", "owner"), feeRateBody)
	require.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	// The token subject is the caller; no body caller needed.
	ownerToken := signAdminToken(t, secret, "owner")
	resp = postJSONWithToken(t, ts, "/v1/loans/admin/fee-rate", ownerToken, feeRateBody)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	// A body caller naming someone other than the subject is rejected.
	resp = postJSONWithToken(t, ts, "/v1/loans/admin/owner", ownerToken, map[string]any{
		"caller":    "mallory",
		"new_owner": "mallory",
	})
	require.Equal(t, http.StatusForbidden, resp.StatusCode)

	// A valid token for a non-owner subject still fails authorization.
	resp = postJSONWithToken(t, ts, "/v1/loans/admin/fee-rate", signAdminToken(t, secret, "mallory"), feeRateBody)
	require.Equal(t, http.StatusForbidden, resp.StatusCode)

	// Non-admin routes stay open.
	resp = postJSON(t, ts, "/v1/loans/collaterals", map[string]any{
		"borrower": "borrower",
		"assets": []map[string]any{{
			"kind":     1,
			"contract": "nft-contract",
			"token_id": "token-1",
		}},
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	var cfg loan.ContractConfig
	getJSON(t, ts, "/v1/loans/config", &cfg)
	require.Equal(t, uint32(100), cfg.FeeRateBps)
}

func TestQueryPaginationOverHTTP(t *testing.T) {
	ts := newTestServer(t)
	for i := 0; i < 12; i++ {
		resp := postJSON(t, ts, "/v1/loans/collaterals", map[string]any{
			"borrower": "borrower",
			"assets": []map[string]any{{
				"kind":     1,
				"contract": "nft-contract",
				"token_id": fmt.Sprintf("token-%d", i),
			}},
		})
		require.Equal(t, http.StatusCreated, resp.StatusCode)
	}

	var page loan.CollateralsPage
	getJSON(t, ts, "/v1/loans/borrowers/borrower/collaterals", &page)
	require.Len(t, page.Collaterals, loan.DefaultQueryLimit)
	require.NotNil(t, page.NextStartAfter)
	require.Equal(t, uint64(2), *page.NextStartAfter)

	var rest loan.CollateralsPage
	getJSON(t, ts, fmt.Sprintf("/v1/loans/borrowers/borrower/collaterals?start_after=%d", *page.NextStartAfter), &rest)
	require.Len(t, rest.Collaterals, 2)
	require.Equal(t, uint64(1), rest.Collaterals[0].LoanID)

	var limited loan.CollateralsPage
	getJSON(t, ts, "/v1/loans/borrowers/borrower/collaterals?limit=3", &limited)
	require.Len(t, limited.Collaterals, 3)

	var all loan.AllCollateralsPage
	getJSON(t, ts, "/v1/loans/collaterals?limit=5", &all)
	require.Len(t, all.Collaterals, 5)
	require.NotNil(t, all.NextStartAfter)
}
