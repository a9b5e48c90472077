// Package wallet adapts the order/capture-style wallet processor. Its
// synchronous capture response is normalized into the same notification
// envelope the webhook-driven card events produce.
package wallet

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/blutonium-de/blutonium-core-v2-sub000/internal/models"
	"github.com/blutonium-de/blutonium-core-v2-sub000/internal/provider"

	"github.com/go-resty/resty/v2"
)

var _ provider.SessionCreator = (*Client)(nil)

// tokenCache is an explicit cache value with its expiry carried alongside
// the token. It is owned by the client, never a package-level variable.
type tokenCache struct {
	token     string
	expiresAt time.Time
}

// shouldRefresh decides whether a cached token is still usable at the given
// instant, with a safety margin for in-flight requests.
func shouldRefresh(cache tokenCache, now time.Time) bool {
	return cache.token == "" || !now.Add(30*time.Second).Before(cache.expiresAt)
}

// Client talks to the wallet processor's REST API using OAuth client
// credentials.
type Client struct {
	http         *resty.Client
	clientID     string
	clientSecret string

	mu    sync.Mutex
	cache tokenCache
}

// NewClient creates a wallet processor client
func NewClient(baseURL, clientID, clientSecret string) *Client {
	http := resty.New().
		SetBaseURL(baseURL).
		SetRetryCount(2)

	return &Client{
		http:         http,
		clientID:     clientID,
		clientSecret: clientSecret,
	}
}

type tokenResponse struct {
	AccessToken string `json:"access_token"`
	ExpiresIn   int    `json:"expires_in"`
}

func (c *Client) accessToken(ctx context.Context) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !shouldRefresh(c.cache, time.Now()) {
		return c.cache.token, nil
	}

	var out tokenResponse
	resp, err := c.http.R().
		SetContext(ctx).
		SetBasicAuth(c.clientID, c.clientSecret).
		SetFormData(map[string]string{"grant_type": "client_credentials"}).
		SetResult(&out).
		Post("/v1/oauth2/token")
	if err != nil {
		return "", fmt.Errorf("wallet token request failed: %w", err)
	}
	if resp.IsError() {
		return "", fmt.Errorf("wallet token request failed: status=%d", resp.StatusCode())
	}

	c.cache = tokenCache{
		token:     out.AccessToken,
		expiresAt: time.Now().Add(time.Duration(out.ExpiresIn) * time.Second),
	}
	return c.cache.token, nil
}

type amount struct {
	CurrencyCode string `json:"currency_code"`
	ValueMinor   int64  `json:"value_minor"`
}

type purchaseUnit struct {
	ReferenceID string `json:"reference_id"`
	CustomID    string `json:"custom_id"`
	Amount      amount `json:"amount"`
}

type createOrderRequest struct {
	Intent        string         `json:"intent"`
	PurchaseUnits []purchaseUnit `json:"purchase_units"`
	ReturnURL     string         `json:"return_url"`
	CancelURL     string         `json:"cancel_url"`
}

type link struct {
	Rel  string `json:"rel"`
	Href string `json:"href"`
}

type orderResponse struct {
	ID    string `json:"id"`
	Links []link `json:"links"`
}

// CreateSession creates a wallet order and returns its approval URL as the
// redirect target. The shop order id travels as the purchase unit custom id.
func (c *Client) CreateSession(ctx context.Context, req provider.SessionRequest) (*provider.Session, error) {
	token, err := c.accessToken(ctx)
	if err != nil {
		return nil, err
	}

	var total int64
	for _, item := range req.Items {
		total += int64(item.Quantity) * item.UnitPrice
	}

	body := createOrderRequest{
		Intent: "CAPTURE",
		PurchaseUnits: []purchaseUnit{{
			ReferenceID: "default",
			CustomID:    req.OrderID,
			Amount:      amount{CurrencyCode: req.Currency, ValueMinor: total},
		}},
		ReturnURL: req.SuccessURL,
		CancelURL: req.CancelURL,
	}

	var out orderResponse
	resp, err := c.http.R().
		SetContext(ctx).
		SetAuthToken(token).
		SetBody(body).
		SetResult(&out).
		Post("/v2/checkout/orders")
	if err != nil {
		return nil, fmt.Errorf("wallet order request failed: %w", err)
	}
	if resp.IsError() {
		return nil, fmt.Errorf("wallet order request failed: status=%d body=%s",
			resp.StatusCode(), resp.String())
	}

	approveURL := ""
	for _, l := range out.Links {
		if l.Rel == "approve" {
			approveURL = l.Href
			break
		}
	}
	if approveURL == "" {
		return nil, fmt.Errorf("wallet order %s has no approve link", out.ID)
	}

	return &provider.Session{ID: out.ID, RedirectURL: approveURL}, nil
}

type captureResponse struct {
	ID            string `json:"id"`
	Status        string `json:"status"`
	PurchaseUnits []struct {
		CustomID string `json:"custom_id"`
		Payments struct {
			Captures []struct {
				ID     string `json:"id"`
				Amount amount `json:"amount"`
			} `json:"captures"`
		} `json:"payments"`
	} `json:"purchase_units"`
}

// CaptureOrder captures an approved wallet order and returns the result as
// a notification envelope. Captures carry no shipping authority.
func (c *Client) CaptureOrder(ctx context.Context, providerOrderID string) (*models.NotificationEnvelope, error) {
	token, err := c.accessToken(ctx)
	if err != nil {
		return nil, err
	}

	var out captureResponse
	resp, err := c.http.R().
		SetContext(ctx).
		SetAuthToken(token).
		SetHeader("Content-Type", "application/json").
		SetResult(&out).
		Post(fmt.Sprintf("/v2/checkout/orders/%s/capture", providerOrderID))
	if err != nil {
		return nil, fmt.Errorf("wallet capture request failed: %w", err)
	}
	if resp.IsError() {
		return nil, fmt.Errorf("wallet capture request failed: status=%d body=%s",
			resp.StatusCode(), resp.String())
	}
	if out.Status != "COMPLETED" {
		return nil, fmt.Errorf("wallet capture %s not completed: %s", providerOrderID, out.Status)
	}
	if len(out.PurchaseUnits) == 0 || len(out.PurchaseUnits[0].Payments.Captures) == 0 {
		return nil, fmt.Errorf("wallet capture %s has no capture record", providerOrderID)
	}

	unit := out.PurchaseUnits[0]
	capture := unit.Payments.Captures[0]
	return &models.NotificationEnvelope{
		OrderID:       unit.CustomID,
		ExternalID:    capture.ID,
		Provider:      models.ProviderWallet,
		ReportedTotal: capture.Amount.ValueMinor,
	}, nil
}
