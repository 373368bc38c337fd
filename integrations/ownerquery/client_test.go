package ownerquery

import (
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestOwnerOf(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/owner" {
			http.NotFound(w, r)
			return
		}
		if r.URL.Query().Get("contract") != "nft-contract" || r.URL.Query().Get("token_id") != "42" {
			http.Error(w, "wrong query", http.StatusBadRequest)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"owner":"alice"}`))
	}))
	defer ts.Close()

	client := New(ts.URL + "/")
	owner, err := client.OwnerOf("nft-contract", "42")
	if err != nil {
		t.Fatalf("owner of: %v", err)
	}
	if owner != "alice" {
		t.Fatalf("owner = %q, want alice", owner)
	}
}

func TestOwnerOfErrors(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Query().Get("token_id") {
		case "missing":
			http.NotFound(w, r)
		case "empty":
			_, _ = w.Write([]byte(`{"owner":""}`))
		default:
			_, _ = w.Write([]byte(`not json`))
		}
	}))
	defer ts.Close()

	client := New(ts.URL)
	if _, err := client.OwnerOf("c", "missing"); err == nil {
		t.Fatal("missing token resolved")
	}
	if _, err := client.OwnerOf("c", "empty"); err == nil {
		t.Fatal("empty owner accepted")
	}
	if _, err := client.OwnerOf("c", "garbled"); err == nil {
		t.Fatal("garbled payload accepted")
	}
	if _, err := (&Client{}).OwnerOf("c", "t"); err == nil {
		t.Fatal("unconfigured client resolved")
	}
}
