// Package rawschema maps the header rows of the raw order stores onto logical
// fields. Each platform declares the header names it accepts for every field,
// in preference order; a Mapping is resolved once per scan and then read by
// column index for every row.
package rawschema

import (
	"fmt"
	"strings"

	"github.com/ignite/order-reconciler/internal/domain"
)

// Field is a logical raw-order column.
type Field int

const (
	FieldOrderID Field = iota
	FieldOrderNumber
	FieldLineID
	FieldEmail
	FieldFirstName
	FieldLastName
	FieldCustomerName
	FieldProductName
	FieldSKU
	FieldQuantity
	FieldUnitPrice
	FieldLineRevenue
	FieldDiscountTotal
	FieldRefundTotal
	FieldNetRevenue
	FieldGrossTotal
	FieldCurrency
	FieldFinancialStatus
	FieldFulfillmentStatus
	FieldTags
	FieldTest

	fieldCount
)

var fieldNames = [fieldCount]string{
	"order_id",
	"order_number",
	"line_id",
	"customer_email",
	"first_name",
	"last_name",
	"customer_name",
	"product_name",
	"sku",
	"quantity",
	"unit_price",
	"line_revenue",
	"discount_total",
	"refund_total",
	"net_revenue",
	"gross_total",
	"currency",
	"financial_status",
	"fulfillment_status",
	"tags",
	"test",
}

func (f Field) String() string {
	if f < 0 || f >= fieldCount {
		return fmt.Sprintf("field(%d)", int(f))
	}
	return fieldNames[f]
}

// FieldSpec lists the header names accepted for one field, most preferred
// first.
type FieldSpec struct {
	Field    Field
	Accepted []string
	Required bool
}

// Schema is the declarative header mapping of one raw order store.
type Schema struct {
	Platform domain.Platform
	Fields   []FieldSpec
	// DateSources are tried in order for every row; the first value that
	// parses becomes the order date. At least one must exist in the header.
	DateSources []string
}

// Spec returns the FieldSpec for f, if the schema declares it.
func (s *Schema) Spec(f Field) (FieldSpec, bool) {
	for _, fs := range s.Fields {
		if fs.Field == f {
			return fs, true
		}
	}
	return FieldSpec{}, false
}

// Header returns the header row an importer writes for this schema: the
// preferred name of every field followed by every date source.
func (s *Schema) Header() []string {
	out := make([]string, 0, len(s.Fields)+len(s.DateSources))
	for _, fs := range s.Fields {
		out = append(out, fs.Accepted[0])
	}
	return append(out, s.DateSources...)
}

// PlatformA describes the export of the cursor-paginated order API.
var PlatformA = &Schema{
	Platform: domain.PlatformA,
	Fields: []FieldSpec{
		{Field: FieldOrderID, Accepted: []string{"Order ID", "OrderId", "order_id"}, Required: true},
		{Field: FieldOrderNumber, Accepted: []string{"Order Number", "Order #", "Order Name"}},
		{Field: FieldLineID, Accepted: []string{"Line Item ID", "line_item_id"}},
		{Field: FieldEmail, Accepted: []string{"Customer Email", "Email", "Billing Email"}},
		{Field: FieldFirstName, Accepted: []string{"Billing First Name", "Customer First Name", "First Name"}},
		{Field: FieldLastName, Accepted: []string{"Billing Last Name", "Customer Last Name", "Last Name"}},
		{Field: FieldCustomerName, Accepted: []string{"Customer Name", "Billing Name"}},
		{Field: FieldProductName, Accepted: []string{"Product Name", "Line Item Name", "Item Name"}, Required: true},
		{Field: FieldSKU, Accepted: []string{"SKU", "Product SKU"}},
		{Field: FieldQuantity, Accepted: []string{"Quantity", "Qty"}},
		{Field: FieldUnitPrice, Accepted: []string{"Unit Price", "Item Price", "Price"}},
		{Field: FieldDiscountTotal, Accepted: []string{"Discount Total", "Total Discount", "Discounts"}},
		{Field: FieldRefundTotal, Accepted: []string{"Refund Total", "Total Refunded", "Refunded Amount"}},
		{Field: FieldNetRevenue, Accepted: []string{"Net Revenue", "Net Sales", "Net Total"}},
		{Field: FieldGrossTotal, Accepted: []string{"Grand Total", "Order Total", "Total", "Gross Sales"}},
		{Field: FieldCurrency, Accepted: []string{"Currency"}},
		{Field: FieldFinancialStatus, Accepted: []string{"Financial Status", "Payment Status"}},
		{Field: FieldFulfillmentStatus, Accepted: []string{"Fulfillment Status"}},
		{Field: FieldTags, Accepted: []string{"Tags"}},
		{Field: FieldTest, Accepted: []string{"Test", "Is Test", "Test Order"}},
	},
	DateSources: []string{
		"Processed At (Local)",
		"Processed At",
		"Created At (Local)",
		"Created At",
		"Order Date",
	},
}

// PlatformB describes the export of the link-paginated order API.
var PlatformB = &Schema{
	Platform: domain.PlatformB,
	Fields: []FieldSpec{
		{Field: FieldOrderID, Accepted: []string{"Id", "Order ID"}, Required: true},
		{Field: FieldOrderNumber, Accepted: []string{"Name", "Order Number"}},
		{Field: FieldLineID, Accepted: []string{"Lineitem id", "Line Item ID"}},
		{Field: FieldEmail, Accepted: []string{"Email", "Customer Email"}},
		{Field: FieldCustomerName, Accepted: []string{"Billing Name", "Shipping Name", "Customer Name"}},
		{Field: FieldProductName, Accepted: []string{"Lineitem name", "Product Name"}, Required: true},
		{Field: FieldSKU, Accepted: []string{"Lineitem sku", "SKU"}},
		{Field: FieldQuantity, Accepted: []string{"Lineitem quantity", "Quantity"}},
		{Field: FieldUnitPrice, Accepted: []string{"Lineitem price", "Unit Price"}},
		{Field: FieldLineRevenue, Accepted: []string{"Lineitem total", "Line Total"}},
		{Field: FieldDiscountTotal, Accepted: []string{"Discount Amount", "Total Discounts"}},
		{Field: FieldRefundTotal, Accepted: []string{"Refunded Amount", "Total Refunded"}},
		{Field: FieldNetRevenue, Accepted: []string{"Net Revenue", "Net Sales"}},
		{Field: FieldGrossTotal, Accepted: []string{"Total", "Subtotal"}},
		{Field: FieldCurrency, Accepted: []string{"Currency"}},
		{Field: FieldFinancialStatus, Accepted: []string{"Financial Status"}},
		{Field: FieldFulfillmentStatus, Accepted: []string{"Fulfillment Status"}},
		{Field: FieldTags, Accepted: []string{"Tags"}},
		{Field: FieldTest, Accepted: []string{"Test"}},
	},
	DateSources: []string{"Processed at", "Created at", "Paid at"},
}

// ForPlatform returns the schema of p, or nil for an unknown platform.
func ForPlatform(p domain.Platform) *Schema {
	switch p {
	case domain.PlatformA:
		return PlatformA
	case domain.PlatformB:
		return PlatformB
	}
	return nil
}

func normalizeHeader(h string) string {
	h = strings.Trim(strings.TrimSpace(h), "\"'")
	return strings.Join(strings.Fields(strings.ToLower(h)), " ")
}
