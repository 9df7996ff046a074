package importer

import (
	"time"

	"github.com/ignite/order-reconciler/internal/rawschema"
)

// Line is one flattened order line, keyed by raw field.
type Line struct {
	Values map[rawschema.Field]any
	Date   time.Time
}

func (l Line) text(f rawschema.Field) string {
	if v, ok := l.Values[f].(string); ok {
		return v
	}
	return ""
}

// ========== Platform A wire types ==========

type aOrdersPage struct {
	Orders     []aOrder    `json:"orders"`
	Pagination aPagination `json:"pagination"`
}

type aPagination struct {
	NextPageCursor string `json:"nextPageCursor"`
	HasNextPage    bool   `json:"hasNextPage"`
}

type aOrder struct {
	ID                string      `json:"id"`
	OrderNumber       string      `json:"orderNumber"`
	ProcessedAt       *time.Time  `json:"processedAt"`
	CreatedAt         *time.Time  `json:"createdAt"`
	Customer          aCustomer   `json:"customer"`
	Currency          string      `json:"currency"`
	FinancialStatus   string      `json:"financialStatus"`
	FulfillmentStatus string      `json:"fulfillmentStatus"`
	Tags              []string    `json:"tags"`
	Test              bool        `json:"test"`
	Totals            aTotals     `json:"totals"`
	LineItems         []aLineItem `json:"lineItems"`
}

type aCustomer struct {
	Email     string `json:"email"`
	FirstName string `json:"firstName"`
	LastName  string `json:"lastName"`
	Name      string `json:"name"`
}

// Totals are pointers so an absent total stays blank in the raw store
// instead of becoming an explicit zero.
type aTotals struct {
	Discount *float64 `json:"discount"`
	Refund   *float64 `json:"refund"`
	Net      *float64 `json:"net"`
	Gross    *float64 `json:"gross"`
}

type aLineItem struct {
	ID        string   `json:"id"`
	Name      string   `json:"name"`
	SKU       string   `json:"sku"`
	Quantity  *float64 `json:"quantity"`
	UnitPrice *float64 `json:"unitPrice"`
}

// ========== Platform B wire types ==========

type bOrdersPage struct {
	Orders []bOrder `json:"orders"`
}

type bOrder struct {
	ID                int64       `json:"id"`
	Name              string      `json:"name"`
	Email             string      `json:"email"`
	CreatedAt         *time.Time  `json:"created_at"`
	ProcessedAt       *time.Time  `json:"processed_at"`
	Currency          string      `json:"currency"`
	FinancialStatus   string      `json:"financial_status"`
	FulfillmentStatus string      `json:"fulfillment_status"`
	Tags              string      `json:"tags"`
	Test              bool        `json:"test"`
	TotalDiscounts    string      `json:"total_discounts"`
	TotalRefunded     string      `json:"total_refunded"`
	CurrentTotal      string      `json:"current_total_price"`
	TotalPrice        string      `json:"total_price"`
	BillingAddress    *bAddress   `json:"billing_address"`
	LineItems         []bLineItem `json:"line_items"`
}

type bAddress struct {
	Name string `json:"name"`
}

type bLineItem struct {
	ID       int64  `json:"id"`
	Name     string `json:"name"`
	SKU      string `json:"sku"`
	Quantity int    `json:"quantity"`
	Price    string `json:"price"`
}
