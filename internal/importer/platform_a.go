package importer

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"

	"github.com/ignite/order-reconciler/internal/domain"
	"github.com/ignite/order-reconciler/internal/pkg/httpretry"
	"github.com/ignite/order-reconciler/internal/rawschema"
)

// PlatformAConfig configures the Platform A order API. Set the OAuth2
// client credentials fields to authenticate with short-lived tokens instead of
// a static API key.
type PlatformAConfig struct {
	BaseURL  string
	APIKey   string
	PageSize int

	TokenURL     string
	ClientID     string
	ClientSecret string
	Scopes       []string
}

// PlatformAClient reads orders with cursor pagination.
type PlatformAClient struct {
	baseURL    string
	apiKey     string
	pageSize   int
	httpClient httpretry.HTTPDoer
}

// NewPlatformAClient creates a Platform A client.
func NewPlatformAClient(cfg PlatformAConfig) *PlatformAClient {
	if cfg.PageSize <= 0 {
		cfg.PageSize = 100
	}
	base := &http.Client{Timeout: 60 * time.Second}
	apiKey := cfg.APIKey
	if cfg.ClientID != "" && cfg.TokenURL != "" {
		cc := &clientcredentials.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			TokenURL:     cfg.TokenURL,
			Scopes:       cfg.Scopes,
		}
		tokenCtx := context.WithValue(context.Background(), oauth2.HTTPClient, &http.Client{Timeout: 30 * time.Second})
		base = cc.Client(tokenCtx)
		base.Timeout = 60 * time.Second
		apiKey = ""
	}
	return &PlatformAClient{
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		apiKey:     apiKey,
		pageSize:   cfg.PageSize,
		httpClient: httpretry.NewRetryClient(base, 3),
	}
}

// SetHTTPClient sets a custom HTTP client (useful for testing)
func (c *PlatformAClient) SetHTTPClient(client httpretry.HTTPDoer) {
	c.httpClient = client
}

func (c *PlatformAClient) Platform() domain.Platform { return domain.PlatformA }

// Fetch pages through every order updated since the given time.
func (c *PlatformAClient) Fetch(ctx context.Context, since time.Time) ([]Line, error) {
	var (
		lines  []Line
		cursor string
	)
	for page := 0; ; page++ {
		params := url.Values{}
		params.Set("limit", strconv.Itoa(c.pageSize))
		if !since.IsZero() {
			params.Set("updated_since", since.UTC().Format(time.RFC3339))
		}
		if cursor != "" {
			params.Set("cursor", cursor)
		}

		var resp aOrdersPage
		if err := c.get(ctx, c.baseURL+"/orders?"+params.Encode(), &resp); err != nil {
			return nil, fmt.Errorf("platform A page %d: %w", page, err)
		}
		for _, o := range resp.Orders {
			lines = append(lines, flattenA(o)...)
		}

		if !resp.Pagination.HasNextPage || resp.Pagination.NextPageCursor == "" {
			return lines, nil
		}
		if resp.Pagination.NextPageCursor == cursor {
			return nil, fmt.Errorf("platform A page %d: cursor did not advance", page)
		}
		cursor = resp.Pagination.NextPageCursor
	}
}

func (c *PlatformAClient) get(ctx context.Context, reqURL string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response body: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("API error (status %d): %s", resp.StatusCode, string(body))
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("failed to parse response: %w", err)
	}
	return nil
}

func flattenA(o aOrder) []Line {
	var date time.Time
	switch {
	case o.ProcessedAt != nil:
		date = *o.ProcessedAt
	case o.CreatedAt != nil:
		date = *o.CreatedAt
	}

	order := map[rawschema.Field]any{
		rawschema.FieldOrderID:           o.ID,
		rawschema.FieldOrderNumber:       o.OrderNumber,
		rawschema.FieldEmail:             o.Customer.Email,
		rawschema.FieldFirstName:         o.Customer.FirstName,
		rawschema.FieldLastName:          o.Customer.LastName,
		rawschema.FieldCustomerName:      o.Customer.Name,
		rawschema.FieldDiscountTotal:     optional(o.Totals.Discount),
		rawschema.FieldRefundTotal:       optional(o.Totals.Refund),
		rawschema.FieldNetRevenue:        optional(o.Totals.Net),
		rawschema.FieldGrossTotal:        optional(o.Totals.Gross),
		rawschema.FieldCurrency:          o.Currency,
		rawschema.FieldFinancialStatus:   o.FinancialStatus,
		rawschema.FieldFulfillmentStatus: o.FulfillmentStatus,
		rawschema.FieldTags:              strings.Join(o.Tags, ", "),
		rawschema.FieldTest:              o.Test,
	}

	out := make([]Line, 0, len(o.LineItems))
	for _, li := range o.LineItems {
		v := make(map[rawschema.Field]any, len(order)+5)
		for f, x := range order {
			v[f] = x
		}
		v[rawschema.FieldLineID] = li.ID
		v[rawschema.FieldProductName] = li.Name
		v[rawschema.FieldSKU] = li.SKU
		v[rawschema.FieldQuantity] = optional(li.Quantity)
		v[rawschema.FieldUnitPrice] = optional(li.UnitPrice)
		out = append(out, Line{Values: v, Date: date})
	}
	return out
}

// optional keeps an absent number blank.
func optional(f *float64) any {
	if f == nil {
		return ""
	}
	return *f
}
