package airwallex

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"
)

type fakeIssuer struct {
	server  *httptest.Server
	created CreateCardRequest
	logins  atomic.Int32
}

func newFakeIssuer(t *testing.T, expiresIn time.Duration) *fakeIssuer {
	t.Helper()
	f := &fakeIssuer{}

	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/v1/authentication/login", func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("x-client-id") != "client" || r.Header.Get("x-api-key") == "" {
			http.Error(w, `{"code":"unauthorized"}`, http.StatusUnauthorized)
			return
		}
		f.logins.Add(1)
		_ = json.NewEncoder(w).Encode(map[string]any{
			"token":      "tok-" + r.Header.Get("x-api-key"),
			"expires_at": time.Now().Add(expiresIn).UTC().Format(time.RFC3339),
		})
	})
	mux.HandleFunc("POST /api/v1/issuing/cards/create", func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") == "" {
			http.Error(w, "missing token", http.StatusUnauthorized)
			return
		}
		_ = json.NewDecoder(r.Body).Decode(&f.created)
		_ = json.NewEncoder(w).Encode(map[string]any{"card_id": "card_1", "card_status": "ACTIVE"})
	})
	mux.HandleFunc("GET /api/v1/issuing/cards/{id}/details", func(w http.ResponseWriter, r *http.Request) {
		if r.PathValue("id") != "card_1" {
			http.Error(w, `{"code":"not_found"}`, http.StatusNotFound)
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]any{
			"card_number": "4111111111111111", "cvv": "123",
			"expiry_month": 12, "expiry_year": 2030, "name_on_card": "OPS TEAM",
		})
	})
	mux.HandleFunc("GET /api/v1/issuing/cardholders", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("page_size") != "50" {
			http.Error(w, "bad page size", http.StatusBadRequest)
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]any{
			"items":    []map[string]any{{"cardholder_id": "ch_1", "email": "ops@example.com", "status": "READY"}},
			"has_more": false,
		})
	})

	f.server = httptest.NewServer(mux)
	t.Cleanup(f.server.Close)
	return f
}

func testCreds() Credentials {
	return Credentials{ClientID: "client", APIKey: "key1", Env: EnvDemo, CardholderID: "ch_1"}
}

func TestClient_CreateCardSendsIssuingRequest(t *testing.T) {
	issuer := newFakeIssuer(t, time.Hour)
	client := NewClient(issuer.server.URL, "http://prod.invalid", 5*time.Second, nil)
	client.newReqID = func() string { return "req-1" }

	card, err := client.CreateCard(context.Background(), testCreds(), "Ops 1", 0)
	if err != nil {
		t.Fatalf("create card: %v", err)
	}
	if card.CardID != "card_1" {
		t.Errorf("expected card_1, got %s", card.CardID)
	}

	got := issuer.created
	if got.CardholderID != "ch_1" || got.RequestID != "req-1" || got.NickName != "Ops 1" {
		t.Errorf("unexpected request %+v", got)
	}
	if got.FormFactor != "VIRTUAL" || got.Purpose != "ONLINE_PURCHASING" || got.Program.Purpose != "COMMERCIAL" {
		t.Errorf("unexpected card type %+v", got)
	}
	limits := got.AuthorizationControls.TransactionLimits
	if limits.Currency != "CAD" || len(limits.Limits) != 1 || limits.Limits[0].Amount != DefaultTransactionLimit {
		t.Errorf("unexpected limits %+v", limits)
	}
}

func TestClient_ReusesTokenUntilCredentialsChange(t *testing.T) {
	issuer := newFakeIssuer(t, time.Hour)
	cache := NewTokenCache()
	client := NewClient(issuer.server.URL, "", 5*time.Second, cache)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		if _, err := client.CardDetails(ctx, testCreds(), "card_1"); err != nil {
			t.Fatalf("details: %v", err)
		}
	}
	if issuer.logins.Load() != 1 {
		t.Errorf("expected one login, got %d", issuer.logins.Load())
	}

	rotated := testCreds()
	rotated.APIKey = "key2"
	token, err := client.Token(ctx, rotated)
	if err != nil {
		t.Fatalf("token: %v", err)
	}
	if token != "tok-key2" || issuer.logins.Load() != 2 {
		t.Errorf("expected fresh login after key change, got %s after %d logins", token, issuer.logins.Load())
	}
}

func TestClient_RefreshesTokenNearExpiry(t *testing.T) {
	issuer := newFakeIssuer(t, 4*time.Minute)
	client := NewClient(issuer.server.URL, "", 5*time.Second, nil)
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		if _, err := client.Token(ctx, testCreds()); err != nil {
			t.Fatalf("token: %v", err)
		}
	}
	if issuer.logins.Load() != 2 {
		t.Errorf("token inside the refresh margin must not be reused, got %d logins", issuer.logins.Load())
	}
}

func TestClient_APIError(t *testing.T) {
	issuer := newFakeIssuer(t, time.Hour)
	client := NewClient(issuer.server.URL, "", 5*time.Second, nil)

	_, err := client.CardDetails(context.Background(), testCreds(), "missing")

	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("expected APIError, got %v", err)
	}
	if apiErr.StatusCode != http.StatusNotFound {
		t.Errorf("expected 404, got %d", apiErr.StatusCode)
	}
}

func TestClient_AuthenticationFailure(t *testing.T) {
	issuer := newFakeIssuer(t, time.Hour)
	client := NewClient(issuer.server.URL, "", 5*time.Second, nil)
	creds := testCreds()
	creds.ClientID = "wrong"

	if _, err := client.ListCardholders(context.Background(), creds, 0, 50); err == nil {
		t.Fatal("expected authentication failure")
	}
}

func TestClient_ListCardholders(t *testing.T) {
	issuer := newFakeIssuer(t, time.Hour)
	client := NewClient(issuer.server.URL, "", 5*time.Second, nil)

	resp, err := client.ListCardholders(context.Background(), testCreds(), 0, 50)
	if err != nil {
		t.Fatalf("list cardholders: %v", err)
	}
	if len(resp.Items) != 1 || resp.Items[0].CardholderID != "ch_1" {
		t.Errorf("unexpected cardholders %+v", resp.Items)
	}
}

func TestClient_BaseURL(t *testing.T) {
	client := NewClient("https://demo.test", "https://prod.test", time.Second, nil)

	if client.BaseURL(EnvProd) != "https://prod.test" {
		t.Error("prod env should use prod url")
	}
	if client.BaseURL("staging") != "https://demo.test" {
		t.Error("unknown env should fall back to demo")
	}
}
