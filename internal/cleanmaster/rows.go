package cleanmaster

import (
	"math"
	"strings"
	"time"

	"github.com/ignite/order-reconciler/internal/coerce"
	"github.com/ignite/order-reconciler/internal/domain"
	"github.com/ignite/order-reconciler/internal/exclusion"
	"github.com/ignite/order-reconciler/internal/pricing"
	"github.com/ignite/order-reconciler/internal/rawschema"
)

// processA normalizes one Platform A row into the chunk buffer.
func (s *scan) processA(row []any) {
	if rowIsBlank(row) {
		return
	}
	if coerce.Bool(s.m.Get(row, rawschema.FieldTest)) {
		s.exclude(domain.ExcludedTest, 1)
		return
	}
	email := s.m.Text(row, rawschema.FieldEmail)
	if exclusion.IsBannedEmail(email, s.banned) {
		s.exclude(domain.ExcludedBannedEmail, 1)
		return
	}
	date := s.m.OrderDate(row)
	product := s.m.Text(row, rawschema.FieldProductName)
	if product == "" {
		return
	}
	if s.b.deps.Products.IsBanned(product) {
		s.exclude(domain.ExcludedBannedProduct, 1)
		return
	}

	line := s.canonical(row, date, email, product)
	line.LineRevenue = line.Quantity * line.UnitPrice

	key := domain.OrderKey(s.platform, line.OrderID)
	if s.ownsTotals(key) {
		t := orderTotals(s.m, row)
		line.OrderDiscountTotal = t.Discount
		line.OrderRefundTotal = t.Refund
		line.OrderNetRevenue = t.Net
		s.claim(key)
	}
	s.st.LastOrderKey = key
	s.out = append(s.out, line.Row())
}

// orderGroup buffers the lines of one Platform B order until the whole order
// has been seen.
type orderGroup struct {
	orderID  string
	key      string
	startRow int
	totals   domain.OrderTotals
	// owns is decided when the group opens: false when an earlier group
	// of the same order already wrote the totals.
	owns  bool
	lines []domain.CanonicalOrderLine
}

// processB collects one Platform B row into the open order group.
func (s *scan) processB(row []any, rowNum int) {
	if rowIsBlank(row) {
		return
	}
	orderID := s.m.Text(row, rawschema.FieldOrderID)
	if s.excludedOrders[orderID] {
		s.exclude(domain.ExcludedRenewalDuplicate, 1)
		return
	}
	if coerce.Bool(s.m.Get(row, rawschema.FieldTest)) {
		s.exclude(domain.ExcludedTest, 1)
		return
	}
	email := s.m.Text(row, rawschema.FieldEmail)
	if exclusion.IsBannedEmail(email, s.banned) {
		s.exclude(domain.ExcludedBannedEmail, 1)
		return
	}
	date := s.m.OrderDate(row)
	product := s.m.Text(row, rawschema.FieldProductName)
	if product == "" {
		return
	}
	if s.b.deps.Products.IsBanned(product) {
		s.exclude(domain.ExcludedBannedProduct, 1)
		return
	}

	if s.group != nil && s.group.orderID != orderID {
		s.flushGroup()
	}

	if s.b.deps.Renewal.Matches(date, product) {
		// The whole order goes, including lines already buffered.
		if s.group != nil {
			s.exclude(domain.ExcludedRenewalDuplicate, len(s.group.lines))
			s.closeGroup()
		}
		s.excludedOrders[orderID] = true
		s.st.ExcludeOrder(orderID)
		s.exclude(domain.ExcludedRenewalDuplicate, 1)
		return
	}

	line := s.canonical(row, date, email, product)
	line.LineRevenue = s.m.Float(row, rawschema.FieldLineRevenue)

	if s.group == nil {
		key := domain.OrderKey(s.platform, orderID)
		s.group = &orderGroup{
			orderID:  orderID,
			key:      key,
			startRow: rowNum,
			totals:   orderTotals(s.m, row),
			owns:     s.ownsTotals(key),
		}
	}
	s.group.lines = append(s.group.lines, line)
}

// flushGroup repairs the open group's pricing and moves its lines to the
// chunk buffer. Only the group that owns the order totals allocates the
// order's net revenue.
func (s *scan) flushGroup() {
	g := s.group
	if g == nil {
		return
	}
	s.closeGroup()

	net := 0.0
	if g.owns {
		net = g.totals.Net
	}
	priced := make([]pricing.Line, len(g.lines))
	for i, l := range g.lines {
		priced[i] = pricing.Line{Quantity: l.Quantity, UnitPrice: l.UnitPrice, LineRevenue: l.LineRevenue}
	}
	priced = pricing.Allocate(priced, net)

	for i := range g.lines {
		l := &g.lines[i]
		l.UnitPrice = priced[i].UnitPrice
		l.LineRevenue = priced[i].LineRevenue
		if i == 0 && g.owns {
			l.OrderDiscountTotal = g.totals.Discount
			l.OrderRefundTotal = g.totals.Refund
			l.OrderNetRevenue = g.totals.Net
		}
		s.out = append(s.out, l.Row())
	}
	if g.owns {
		s.claim(g.key)
	}
	s.st.LastOrderKey = g.key
}

// canonical fills the fields shared by both platforms.
func (s *scan) canonical(row []any, date *time.Time, email, product string) domain.CanonicalOrderLine {
	qty := 1.0
	if s.m.Present(row, rawschema.FieldQuantity) {
		qty = s.m.Float(row, rawschema.FieldQuantity)
	}
	return domain.CanonicalOrderLine{
		Platform:          s.platform,
		OrderID:           s.m.Text(row, rawschema.FieldOrderID),
		OrderNumber:       s.m.Text(row, rawschema.FieldOrderNumber),
		OrderDate:         date,
		CustomerEmailRaw:  email,
		CustomerEmailNorm: exclusion.NormalizeEmail(email),
		CustomerName:      customerName(s.m, row),
		ProductName:       product,
		SKU:               s.m.Text(row, rawschema.FieldSKU),
		Quantity:          qty,
		UnitPrice:         s.m.Float(row, rawschema.FieldUnitPrice),
		Currency:          s.m.Text(row, rawschema.FieldCurrency),
		FinancialStatus:   s.m.Text(row, rawschema.FieldFinancialStatus),
		FulfillmentStatus: s.m.Text(row, rawschema.FieldFulfillmentStatus),
		Tags:              s.m.Text(row, rawschema.FieldTags),
		SourceSheet:       s.table.Name(),
	}
}

func customerName(m *rawschema.Mapping, row []any) string {
	if name := m.Text(row, rawschema.FieldCustomerName); name != "" {
		return name
	}
	return strings.TrimSpace(m.Text(row, rawschema.FieldFirstName) + " " + m.Text(row, rawschema.FieldLastName))
}

// orderTotals reads the order-level money fields of a raw line.
//
// Net revenue falls back to ||gross| - |discount|| when no explicit net is
// present, and to zero when there is no gross either. Refund falls back to
// max(0, gross - net) only when both gross and an explicit net are present.
func orderTotals(m *rawschema.Mapping, row []any) domain.OrderTotals {
	discount := m.Float(row, rawschema.FieldDiscountTotal)
	gross := m.Float(row, rawschema.FieldGrossTotal)
	hasGross := m.Present(row, rawschema.FieldGrossTotal)
	hasNet := m.Present(row, rawschema.FieldNetRevenue)

	t := domain.OrderTotals{Discount: discount}
	switch {
	case hasNet:
		t.Net = m.Float(row, rawschema.FieldNetRevenue)
	case hasGross:
		t.Net = math.Abs(math.Abs(gross) - math.Abs(discount))
	}

	switch {
	case m.Present(row, rawschema.FieldRefundTotal):
		t.Refund = m.Float(row, rawschema.FieldRefundTotal)
	case hasGross && hasNet:
		t.Refund = math.Max(0, gross-t.Net)
	}
	return t
}
