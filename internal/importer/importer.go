package importer

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/ignite/order-reconciler/internal/domain"
	"github.com/ignite/order-reconciler/internal/eventlog"
	"github.com/ignite/order-reconciler/internal/metrics"
	"github.com/ignite/order-reconciler/internal/pkg/logger"
	"github.com/ignite/order-reconciler/internal/rawschema"
	"github.com/ignite/order-reconciler/internal/sheet"
)

// Source fetches flattened order lines from one platform.
type Source interface {
	Platform() domain.Platform
	Fetch(ctx context.Context, since time.Time) ([]Line, error)
}

// Result summarizes one import.
type Result struct {
	BatchID  string          `json:"batch_id"`
	Platform domain.Platform `json:"platform"`
	Fetched  int             `json:"fetched"`
	Appended int             `json:"appended"`
	Skipped  int             `json:"skipped"`
	Orders   int             `json:"orders"`
}

// Importer merges one platform's orders into its raw store.
type Importer struct {
	Source  Source
	Table   sheet.WritableTable
	Events  eventlog.Sink
	Metrics *metrics.Registry
	Log     *logger.Logger
}

// Run fetches everything updated since the given time and appends the
// lines the raw store does not have yet. A missing store is created with
// the platform's header.
func (im *Importer) Run(ctx context.Context, since time.Time) (Result, error) {
	p := im.Source.Platform()
	res := Result{BatchID: uuid.NewString(), Platform: p}
	log := im.log().With("batch_id", res.BatchID, "platform", string(p))

	schema := rawschema.ForPlatform(p)
	if schema == nil {
		return res, fmt.Errorf("no raw schema for platform %q", p)
	}

	header, err := im.Table.Header(ctx)
	if errors.Is(err, sheet.ErrTableNotFound) {
		header = schema.Header()
		if err := im.Table.Reset(ctx, header); err != nil {
			return res, fmt.Errorf("create raw store %s: %w", im.Table.Name(), err)
		}
		log.Info("created raw store", "sheet", im.Table.Name())
	} else if err != nil {
		return res, err
	}
	m, err := rawschema.Resolve(im.Table.Name(), schema, header)
	if err != nil {
		return res, err
	}

	existing, err := im.existingKeys(ctx, m)
	if err != nil {
		return res, err
	}

	lines, err := im.Source.Fetch(ctx, since)
	if err != nil {
		return res, err
	}
	res.Fetched = len(lines)

	var rows []sheet.Row
	orders := make(map[string]bool)
	for _, l := range lines {
		key := lineKey(l.text(rawschema.FieldOrderID), l.text(rawschema.FieldLineID),
			l.text(rawschema.FieldProductName), l.text(rawschema.FieldSKU))
		if existing[key] {
			res.Skipped++
			continue
		}
		existing[key] = true
		orders[l.text(rawschema.FieldOrderID)] = true
		rows = append(rows, project(m, len(header), l))
	}
	res.Orders = len(orders)

	if len(rows) > 0 {
		last, err := im.Table.LastRow(ctx)
		if err != nil {
			return res, err
		}
		start := max(last+1, domain.FirstDataRow)
		if err := im.Table.WriteRows(ctx, start, rows); err != nil {
			return res, fmt.Errorf("append to %s: %w", im.Table.Name(), err)
		}
	}
	res.Appended = len(rows)

	if im.Metrics != nil {
		im.Metrics.ImportRowsAppended.WithLabelValues(string(p)).Add(float64(res.Appended))
		im.Metrics.ImportOrdersSeen.WithLabelValues(string(p)).Add(float64(res.Orders))
	}
	if im.Events != nil {
		e := eventlog.Event{
			Time:    time.Now(),
			Source:  "importer",
			RunID:   res.BatchID,
			Message: fmt.Sprintf("Imported %d new %s lines (%d already present).", res.Appended, p, res.Skipped),
			Fields:  map[string]any{"platform": string(p), "appended": res.Appended, "skipped": res.Skipped},
		}
		if err := im.Events.Append(ctx, e); err != nil {
			log.Warn("append event", "err", err)
		}
	}
	log.Info("import complete", "fetched", res.Fetched, "appended", res.Appended, "skipped", res.Skipped)
	return res, nil
}

func (im *Importer) existingKeys(ctx context.Context, m *rawschema.Mapping) (map[string]bool, error) {
	const page = 2000
	keys := make(map[string]bool)
	last, err := im.Table.LastRow(ctx)
	if err != nil {
		return nil, err
	}
	for start := domain.FirstDataRow; start <= last; start += page {
		rows, err := im.Table.ReadRows(ctx, start, page)
		if err != nil {
			return nil, fmt.Errorf("read %s from row %d: %w", im.Table.Name(), start, err)
		}
		for _, r := range rows {
			id := m.Text(r, rawschema.FieldOrderID)
			if id == "" {
				continue
			}
			keys[lineKey(id, m.Text(r, rawschema.FieldLineID), m.Text(r, rawschema.FieldProductName), m.Text(r, rawschema.FieldSKU))] = true
		}
	}
	return keys, nil
}

// lineKey identifies a line by order and line id. Stores without line ids
// fall back to product and SKU.
func lineKey(orderID, lineID, product, sku string) string {
	if lineID != "" {
		return orderID + "||" + lineID
	}
	return orderID + "||" + product + "||" + sku
}

// project lays a line out in the column order of the store's header.
func project(m *rawschema.Mapping, width int, l Line) sheet.Row {
	row := make(sheet.Row, width)
	for i := range row {
		row[i] = ""
	}
	for f, v := range l.Values {
		if idx := m.Index(f); idx >= 0 {
			row[idx] = v
		}
	}
	if !l.Date.IsZero() {
		row[m.DateIndex()] = l.Date.UTC()
	}
	return row
}

func (im *Importer) log() *logger.Logger {
	if im.Log != nil {
		return im.Log
	}
	return logger.Default()
}

