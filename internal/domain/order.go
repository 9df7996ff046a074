package domain

import "time"

// Platform identifies which e-commerce platform an order line came from.
type Platform string

const (
	PlatformA Platform = "PlatformA"
	PlatformB Platform = "PlatformB"
)

// Valid reports whether p is one of the known platforms.
func (p Platform) Valid() bool {
	return p == PlatformA || p == PlatformB
}

// OrderKey returns the key used to detect the first canonical line of an order.
func OrderKey(p Platform, orderID string) string {
	return string(p) + "||" + orderID
}

// CanonicalHeader is the fixed header row of the canonical output table.
// Downstream reports address columns by these exact names.
var CanonicalHeader = []string{
	"platform",
	"order_id",
	"order_number",
	"order_date",
	"customer_email_raw",
	"customer_email_norm",
	"customer_name",
	"product_name",
	"sku",
	"quantity",
	"unit_price",
	"line_revenue",
	"order_discount_total",
	"order_refund_total",
	"order_net_revenue",
	"currency",
	"financial_status",
	"fulfillment_status",
	"tags",
	"source_sheet",
}

// Canonical column positions (zero-based) within CanonicalHeader.
const (
	ColPlatform = iota
	ColOrderID
	ColOrderNumber
	ColOrderDate
	ColEmailRaw
	ColEmailNorm
	ColCustomerName
	ColProductName
	ColSKU
	ColQuantity
	ColUnitPrice
	ColLineRevenue
	ColOrderDiscountTotal
	ColOrderRefundTotal
	ColOrderNetRevenue
	ColCurrency
	ColFinancialStatus
	ColFulfillmentStatus
	ColTags
	ColSourceSheet
)

// CanonicalOrderLine is one normalized output row: a single order line item
// after exclusion and pricing repair.
//
// The three order-level totals are populated only on the first line written
// for an order and are zero on every other line of that order, so that
// summing them across the table counts each order once.
type CanonicalOrderLine struct {
	Platform           Platform   `json:"platform"`
	OrderID            string     `json:"order_id"`
	OrderNumber        string     `json:"order_number"`
	OrderDate          *time.Time `json:"order_date,omitempty"`
	CustomerEmailRaw   string     `json:"customer_email_raw"`
	CustomerEmailNorm  string     `json:"customer_email_norm"`
	CustomerName       string     `json:"customer_name"`
	ProductName        string     `json:"product_name"`
	SKU                string     `json:"sku"`
	Quantity           float64    `json:"quantity"`
	UnitPrice          float64    `json:"unit_price"`
	LineRevenue        float64    `json:"line_revenue"`
	OrderDiscountTotal float64    `json:"order_discount_total"`
	OrderRefundTotal   float64    `json:"order_refund_total"`
	OrderNetRevenue    float64    `json:"order_net_revenue"`
	Currency           string     `json:"currency"`
	FinancialStatus    string     `json:"financial_status"`
	FulfillmentStatus  string     `json:"fulfillment_status"`
	Tags               string     `json:"tags"`
	SourceSheet        string     `json:"source_sheet"`
}

// Row renders the line in CanonicalHeader order. An unknown order date is
// written as an empty cell.
func (l CanonicalOrderLine) Row() []any {
	var date any = ""
	if l.OrderDate != nil {
		date = *l.OrderDate
	}
	return []any{
		string(l.Platform),
		l.OrderID,
		l.OrderNumber,
		date,
		l.CustomerEmailRaw,
		l.CustomerEmailNorm,
		l.CustomerName,
		l.ProductName,
		l.SKU,
		l.Quantity,
		l.UnitPrice,
		l.LineRevenue,
		l.OrderDiscountTotal,
		l.OrderRefundTotal,
		l.OrderNetRevenue,
		l.Currency,
		l.FinancialStatus,
		l.FulfillmentStatus,
		l.Tags,
		l.SourceSheet,
	}
}

// OrderTotals holds the order-level money fields that repeat on every raw
// line of the same order.
type OrderTotals struct {
	Discount float64
	Refund   float64
	Net      float64
}

// ExclusionReason explains why a raw line never reached the canonical table.
type ExclusionReason string

const (
	ExcludedTest             ExclusionReason = "test"
	ExcludedBannedEmail      ExclusionReason = "banned_email"
	ExcludedBannedProduct    ExclusionReason = "banned_product"
	ExcludedRenewalDuplicate ExclusionReason = "renewal_duplicate"
)
