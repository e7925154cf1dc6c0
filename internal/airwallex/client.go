// Package airwallex is a small client for the card issuing REST API.
package airwallex

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
)

const (
	EnvDemo = "demo"
	EnvProd = "prod"

	// DefaultTransactionLimit is the per-transaction limit of a new card.
	DefaultTransactionLimit = 15000

	tokenRefreshMargin = 5 * time.Minute
)

// Credentials identify an API account.
type Credentials struct {
	ClientID     string
	APIKey       string
	Env          string
	CardholderID string
}

func (c Credentials) fingerprint() string {
	return c.ClientID + ":" + c.APIKey + ":" + c.Env
}

// TokenCache holds the bearer token of the last credentials used. A token
// is reused until five minutes before it expires or until the credentials
// change.
type TokenCache struct {
	mu          sync.Mutex
	expiresAt   time.Time
	token       string
	fingerprint string
}

func NewTokenCache() *TokenCache {
	return &TokenCache{}
}

func (c *TokenCache) get(fingerprint string, now time.Time) (string, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.fingerprint != fingerprint {
		c.token = ""
		c.expiresAt = time.Time{}
		c.fingerprint = fingerprint
		return "", false
	}
	if c.token == "" || !now.Before(c.expiresAt.Add(-tokenRefreshMargin)) {
		return "", false
	}
	return c.token, true
}

func (c *TokenCache) set(fingerprint, token string, expiresAt time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.fingerprint = fingerprint
	c.token = token
	c.expiresAt = expiresAt
}

// Client calls the issuing API.
type Client struct {
	http     *http.Client
	cache    *TokenCache
	now      func() time.Time
	demoURL  string
	prodURL  string
	newReqID func() string
}

// NewClient creates a client. The cache may be shared between clients.
func NewClient(demoURL, prodURL string, timeout time.Duration, cache *TokenCache) *Client {
	if cache == nil {
		cache = NewTokenCache()
	}
	return &Client{
		http:     &http.Client{Timeout: timeout},
		cache:    cache,
		now:      time.Now,
		demoURL:  demoURL,
		prodURL:  prodURL,
		newReqID: uuid.NewString,
	}
}

// BaseURL returns the API root for env. Unknown envs use the demo API.
func (c *Client) BaseURL(env string) string {
	if env == EnvProd {
		return c.prodURL
	}
	return c.demoURL
}

type loginResponse struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
}

// Token returns a bearer token for creds, logging in when the cached one
// is missing, about to expire, or belongs to other credentials.
func (c *Client) Token(ctx context.Context, creds Credentials) (string, error) {
	fp := creds.fingerprint()
	if token, ok := c.cache.get(fp, c.now()); ok {
		return token, nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.BaseURL(creds.Env)+"/api/v1/authentication/login", nil)
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-client-id", creds.ClientID)
	req.Header.Set("x-api-key", creds.APIKey)

	resp, err := c.http.Do(req)
	if err != nil {
		return "", fmt.Errorf("authenticate: %w", err)
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(resp.Body)
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return "", fmt.Errorf("Airwallex authentication failed: %s", body)
	}

	var login loginResponse
	if err := json.Unmarshal(body, &login); err != nil {
		return "", fmt.Errorf("decode login response: %w", err)
	}

	c.cache.set(fp, login.Token, login.ExpiresAt)
	return login.Token, nil
}

// APIError is a non-2xx response from the API.
type APIError struct {
	Body       string
	StatusCode int
}

func (e *APIError) Error() string {
	return fmt.Sprintf("Airwallex API error (%d): %s", e.StatusCode, e.Body)
}

func (c *Client) do(ctx context.Context, creds Credentials, method, endpoint string, in, out any) error {
	token, err := c.Token(ctx, creds)
	if err != nil {
		return err
	}

	var body io.Reader
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return err
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.BaseURL(creds.Env)+endpoint, body)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, endpoint, err)
	}
	defer resp.Body.Close()

	data, _ := io.ReadAll(resp.Body)
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return &APIError{StatusCode: resp.StatusCode, Body: string(data)}
	}
	if out == nil {
		return nil
	}
	return json.Unmarshal(data, out)
}

type TransactionLimit struct {
	Amount   float64 `json:"amount"`
	Interval string  `json:"interval"`
}

type TransactionLimits struct {
	Currency string             `json:"currency"`
	Limits   []TransactionLimit `json:"limits"`
}

type AuthorizationControls struct {
	AllowedTransactionCount string            `json:"allowed_transaction_count"`
	TransactionLimits       TransactionLimits `json:"transaction_limits"`
}

type Program struct {
	Purpose string `json:"purpose"`
}

// CreateCardRequest is the body of the card creation call.
type CreateCardRequest struct {
	CardholderID          string                `json:"cardholder_id"`
	RequestID             string                `json:"request_id"`
	CreatedBy             string                `json:"created_by"`
	FormFactor            string                `json:"form_factor"`
	Purpose               string                `json:"purpose"`
	NickName              string                `json:"nick_name,omitempty"`
	Program               Program               `json:"program"`
	AuthorizationControls AuthorizationControls `json:"authorization_controls"`
	IsPersonalized        bool                  `json:"is_personalized"`
}

type CreateCardResponse struct {
	CardID     string `json:"card_id"`
	CardStatus string `json:"card_status"`
	NickName   string `json:"nick_name"`
	CreatedAt  string `json:"created_at"`
}

// SensitiveCardDetails are the PAN and security data of a card.
type SensitiveCardDetails struct {
	CardNumber  string `json:"card_number"`
	CVV         string `json:"cvv"`
	NameOnCard  string `json:"name_on_card"`
	ExpiryMonth int    `json:"expiry_month"`
	ExpiryYear  int    `json:"expiry_year"`
}

type CardSummary struct {
	CardID     string `json:"card_id"`
	CardStatus string `json:"card_status"`
	NickName   string `json:"nick_name"`
	CreatedAt  string `json:"created_at"`
	FormFactor string `json:"form_factor"`
}

type ListCardsResponse struct {
	Items   []CardSummary `json:"items"`
	HasMore bool          `json:"has_more"`
}

type Individual struct {
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
}

type Cardholder struct {
	Individual   *Individual `json:"individual"`
	CardholderID string      `json:"cardholder_id"`
	Email        string      `json:"email"`
	Status       string      `json:"status"`
	CreatedAt    string      `json:"created_at"`
}

type ListCardholdersResponse struct {
	Items   []Cardholder `json:"items"`
	HasMore bool         `json:"has_more"`
}

// CreateCard issues a virtual company card for the configured cardholder.
// A limit of zero uses DefaultTransactionLimit.
func (c *Client) CreateCard(ctx context.Context, creds Credentials, nickname string, limit float64) (*CreateCardResponse, error) {
	if limit <= 0 {
		limit = DefaultTransactionLimit
	}
	req := CreateCardRequest{
		CardholderID:   creds.CardholderID,
		RequestID:      c.newReqID(),
		CreatedBy:      "API",
		IsPersonalized: false,
		FormFactor:     "VIRTUAL",
		Program:        Program{Purpose: "COMMERCIAL"},
		Purpose:        "ONLINE_PURCHASING",
		NickName:       nickname,
		AuthorizationControls: AuthorizationControls{
			AllowedTransactionCount: "MULTIPLE",
			TransactionLimits: TransactionLimits{
				Currency: "CAD",
				Limits:   []TransactionLimit{{Amount: limit, Interval: "PER_TRANSACTION"}},
			},
		},
	}

	var out CreateCardResponse
	if err := c.do(ctx, creds, http.MethodPost, "/api/v1/issuing/cards/create", req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) CardDetails(ctx context.Context, creds Credentials, cardID string) (*SensitiveCardDetails, error) {
	var out SensitiveCardDetails
	endpoint := "/api/v1/issuing/cards/" + url.PathEscape(cardID) + "/details"
	if err := c.do(ctx, creds, http.MethodGet, endpoint, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) ListCards(ctx context.Context, creds Credentials, page, pageSize int) (*ListCardsResponse, error) {
	var out ListCardsResponse
	if err := c.do(ctx, creds, http.MethodGet, "/api/v1/issuing/cards?"+pageQuery(page, pageSize), nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) ListCardholders(ctx context.Context, creds Credentials, page, pageSize int) (*ListCardholdersResponse, error) {
	var out ListCardholdersResponse
	if err := c.do(ctx, creds, http.MethodGet, "/api/v1/issuing/cardholders?"+pageQuery(page, pageSize), nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func pageQuery(page, pageSize int) string {
	q := url.Values{}
	q.Set("page_num", strconv.Itoa(page))
	q.Set("page_size", strconv.Itoa(pageSize))
	return q.Encode()
}
