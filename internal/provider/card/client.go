// Package card adapts the session-style card processor: synchronous hosted
// session creation plus signed asynchronous webhook events.
package card

import (
	"context"
	"fmt"

	"github.com/blutonium-de/blutonium-core-v2-sub000/internal/provider"

	"github.com/go-resty/resty/v2"
)

var _ provider.SessionCreator = (*Client)(nil)

// Client talks to the card processor's REST API.
type Client struct {
	http *resty.Client
}

// NewClient creates a card processor client
func NewClient(baseURL, apiKey string) *Client {
	http := resty.New().
		SetBaseURL(baseURL).
		SetAuthToken(apiKey).
		SetRetryCount(2)

	return &Client{http: http}
}

type sessionLineItem struct {
	Name       string `json:"name"`
	Quantity   int    `json:"quantity"`
	UnitAmount int64  `json:"unit_amount"`
}

type createSessionRequest struct {
	Currency   string            `json:"currency"`
	LineItems  []sessionLineItem `json:"line_items"`
	SuccessURL string            `json:"success_url"`
	CancelURL  string            `json:"cancel_url"`
	Metadata   map[string]string `json:"metadata"`
}

type createSessionResponse struct {
	ID  string `json:"id"`
	URL string `json:"url"`
}

// CreateSession creates a hosted payment session. The order id travels in
// session metadata and comes back on webhook events as the correlation
// value; redirect "success" hits are never trusted for payment state.
func (c *Client) CreateSession(ctx context.Context, req provider.SessionRequest) (*provider.Session, error) {
	lineItems := make([]sessionLineItem, len(req.Items))
	for i, item := range req.Items {
		lineItems[i] = sessionLineItem{
			Name:       item.Label,
			Quantity:   item.Quantity,
			UnitAmount: item.UnitPrice,
		}
	}

	body := createSessionRequest{
		Currency:   req.Currency,
		LineItems:  lineItems,
		SuccessURL: req.SuccessURL,
		CancelURL:  req.CancelURL,
		Metadata:   map[string]string{"order_id": req.OrderID},
	}

	var out createSessionResponse
	resp, err := c.http.R().
		SetContext(ctx).
		SetBody(body).
		SetResult(&out).
		Post("/v1/checkout/sessions")
	if err != nil {
		return nil, fmt.Errorf("card session request failed: %w", err)
	}
	if resp.IsError() {
		return nil, fmt.Errorf("card session request failed: status=%d body=%s",
			resp.StatusCode(), resp.String())
	}

	return &provider.Session{ID: out.ID, RedirectURL: out.URL}, nil
}
