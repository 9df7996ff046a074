package importer

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/ignite/order-reconciler/internal/coerce"
	"github.com/ignite/order-reconciler/internal/domain"
	"github.com/ignite/order-reconciler/internal/pkg/httpretry"
	"github.com/ignite/order-reconciler/internal/rawschema"
)

// PlatformBConfig configures the Platform B order API.
type PlatformBConfig struct {
	BaseURL     string
	AccessToken string
	PageSize    int
}

// PlatformBClient reads orders by following Link rel="next" headers.
type PlatformBClient struct {
	baseURL     string
	accessToken string
	pageSize    int
	httpClient  httpretry.HTTPDoer
}

// NewPlatformBClient creates a Platform B client.
func NewPlatformBClient(cfg PlatformBConfig) *PlatformBClient {
	if cfg.PageSize <= 0 || cfg.PageSize > 250 {
		cfg.PageSize = 250
	}
	return &PlatformBClient{
		baseURL:     strings.TrimRight(cfg.BaseURL, "/"),
		accessToken: cfg.AccessToken,
		pageSize:    cfg.PageSize,
		httpClient: httpretry.NewRetryClient(&http.Client{
			Timeout: 60 * time.Second,
		}, 3),
	}
}

// SetHTTPClient sets a custom HTTP client (useful for testing)
func (c *PlatformBClient) SetHTTPClient(client httpretry.HTTPDoer) {
	c.httpClient = client
}

func (c *PlatformBClient) Platform() domain.Platform { return domain.PlatformB }

// Fetch follows the next links until the last page.
func (c *PlatformBClient) Fetch(ctx context.Context, since time.Time) ([]Line, error) {
	params := url.Values{}
	params.Set("status", "any")
	params.Set("limit", strconv.Itoa(c.pageSize))
	if !since.IsZero() {
		params.Set("updated_at_min", since.UTC().Format(time.RFC3339))
	}
	next := c.baseURL + "/orders.json?" + params.Encode()

	var lines []Line
	seen := make(map[string]bool)
	for page := 0; next != ""; page++ {
		if seen[next] {
			return nil, fmt.Errorf("platform B page %d: next link loops back to %s", page, next)
		}
		seen[next] = true

		var resp bOrdersPage
		link, err := c.get(ctx, next, &resp)
		if err != nil {
			return nil, fmt.Errorf("platform B page %d: %w", page, err)
		}
		for _, o := range resp.Orders {
			lines = append(lines, flattenB(o)...)
		}
		next = nextLink(link)
	}
	return lines, nil
}

func (c *PlatformBClient) get(ctx context.Context, reqURL string, out any) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("X-Access-Token", c.accessToken)
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("failed to read response body: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("API error (status %d): %s", resp.StatusCode, string(body))
	}
	if err := json.Unmarshal(body, out); err != nil {
		return "", fmt.Errorf("failed to parse response: %w", err)
	}
	return resp.Header.Get("Link"), nil
}

var linkPart = regexp.MustCompile(`<([^>]*)>\s*((?:;\s*[^;,]+)*)`)

// nextLink extracts the rel="next" target of an RFC 5988 Link header.
func nextLink(header string) string {
	for _, m := range linkPart.FindAllStringSubmatch(header, -1) {
		for _, param := range strings.Split(m[2], ";") {
			k, v, ok := strings.Cut(strings.TrimSpace(param), "=")
			if !ok || !strings.EqualFold(strings.TrimSpace(k), "rel") {
				continue
			}
			for _, rel := range strings.Fields(strings.Trim(strings.TrimSpace(v), `"`)) {
				if strings.EqualFold(rel, "next") {
					return m[1]
				}
			}
		}
	}
	return ""
}

func flattenB(o bOrder) []Line {
	var date time.Time
	switch {
	case o.ProcessedAt != nil:
		date = *o.ProcessedAt
	case o.CreatedAt != nil:
		date = *o.CreatedAt
	}
	var billing string
	if o.BillingAddress != nil {
		billing = o.BillingAddress.Name
	}
	id := strconv.FormatInt(o.ID, 10)

	order := map[rawschema.Field]any{
		rawschema.FieldOrderID:           id,
		rawschema.FieldOrderNumber:       o.Name,
		rawschema.FieldEmail:             o.Email,
		rawschema.FieldCustomerName:      billing,
		rawschema.FieldDiscountTotal:     money(o.TotalDiscounts),
		rawschema.FieldRefundTotal:       money(o.TotalRefunded),
		rawschema.FieldNetRevenue:        money(o.CurrentTotal),
		rawschema.FieldGrossTotal:        money(o.TotalPrice),
		rawschema.FieldCurrency:          o.Currency,
		rawschema.FieldFinancialStatus:   o.FinancialStatus,
		rawschema.FieldFulfillmentStatus: o.FulfillmentStatus,
		rawschema.FieldTags:              o.Tags,
		rawschema.FieldTest:              o.Test,
	}

	out := make([]Line, 0, len(o.LineItems))
	for _, li := range o.LineItems {
		v := make(map[rawschema.Field]any, len(order)+6)
		for f, x := range order {
			v[f] = x
		}
		v[rawschema.FieldLineID] = strconv.FormatInt(li.ID, 10)
		v[rawschema.FieldProductName] = li.Name
		v[rawschema.FieldSKU] = li.SKU
		v[rawschema.FieldQuantity] = float64(li.Quantity)
		v[rawschema.FieldUnitPrice] = money(li.Price)
		v[rawschema.FieldLineRevenue] = ""
		if price, ok := v[rawschema.FieldUnitPrice].(float64); ok {
			v[rawschema.FieldLineRevenue] = price * float64(li.Quantity)
		}
		out = append(out, Line{Values: v, Date: date})
	}
	return out
}

// money parses a decimal string amount; blank stays blank.
func money(s string) any {
	if !coerce.HasNumber(s) {
		return ""
	}
	return coerce.Float(s)
}
