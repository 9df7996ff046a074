// Package backfill repairs blank order dates in the canonical table from the
// raw stores. It only touches rows whose order_date is blank, so running it
// twice changes nothing the second time.
package backfill

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ignite/order-reconciler/internal/cleanmaster"
	"github.com/ignite/order-reconciler/internal/coerce"
	"github.com/ignite/order-reconciler/internal/domain"
	"github.com/ignite/order-reconciler/internal/eventlog"
	"github.com/ignite/order-reconciler/internal/metrics"
	"github.com/ignite/order-reconciler/internal/pkg/distlock"
	"github.com/ignite/order-reconciler/internal/pkg/logger"
	"github.com/ignite/order-reconciler/internal/rawschema"
	"github.com/ignite/order-reconciler/internal/sheet"
)

const defaultPageSize = 2000

// Result summarizes one backfill pass.
type Result struct {
	Scanned    int    `json:"scanned"`
	Blank      int    `json:"blank"`
	Filled     int    `json:"filled"`
	Unresolved int    `json:"unresolved"`
	Message    string `json:"message"`
}

// OrderDates fills blank canonical order dates.
type OrderDates struct {
	RawA     sheet.Table
	RawB     sheet.Table
	Output   sheet.WritableTable
	Lock     distlock.DistLock
	LockWait time.Duration
	PageSize int

	Events  eventlog.Sink
	Metrics *metrics.Registry
	Log     *logger.Logger
}

// Run performs the backfill under the build lock.
func (o *OrderDates) Run(ctx context.Context) (Result, error) {
	wait := o.LockWait
	if wait <= 0 {
		wait = cleanmaster.DefaultLockWait
	}
	err := distlock.AcquireWithin(ctx, o.Lock, wait, 0)
	if errors.Is(err, distlock.ErrNotAcquired) {
		return Result{}, cleanmaster.ErrLockBusy
	}
	if err != nil {
		return Result{}, fmt.Errorf("acquire build lock: %w", err)
	}
	defer o.unlock()

	dates := make(map[string]time.Time)
	for _, src := range []struct {
		t      sheet.Table
		schema *rawschema.Schema
	}{{o.RawA, rawschema.PlatformA}, {o.RawB, rawschema.PlatformB}} {
		if err := o.indexDates(ctx, src.t, src.schema, dates); err != nil {
			return Result{}, err
		}
	}

	res, err := o.fill(ctx, dates)
	if err != nil {
		return Result{}, err
	}
	res.Message = fmt.Sprintf("Order date backfill: %d of %d blank dates filled.", res.Filled, res.Blank)

	if o.Metrics != nil {
		o.Metrics.DatesBackfilled.Add(float64(res.Filled))
	}
	if o.Events != nil {
		e := eventlog.Event{
			Time:    time.Now(),
			Source:  "backfill",
			Message: res.Message,
			Fields:  map[string]any{"filled": res.Filled, "unresolved": res.Unresolved},
		}
		if err := o.Events.Append(ctx, e); err != nil {
			o.log().Warn("append event", "err", err)
		}
	}
	o.log().Info("order date backfill complete", "scanned", res.Scanned, "filled", res.Filled, "unresolved", res.Unresolved)
	return res, nil
}

// indexDates records the first parseable date of every order in t.
func (o *OrderDates) indexDates(ctx context.Context, t sheet.Table, schema *rawschema.Schema, into map[string]time.Time) error {
	if t == nil {
		return nil
	}
	header, err := t.Header(ctx)
	if errors.Is(err, sheet.ErrTableNotFound) {
		return &cleanmaster.ConfigError{Err: fmt.Errorf("raw store missing: %w", err)}
	}
	if err != nil {
		return err
	}
	m, err := rawschema.Resolve(t.Name(), schema, header)
	if err != nil {
		return &cleanmaster.ConfigError{Err: err}
	}
	return o.eachPage(ctx, t, func(rows []sheet.Row, _ int) error {
		for _, r := range rows {
			id := m.Text(r, rawschema.FieldOrderID)
			if id == "" {
				continue
			}
			key := domain.OrderKey(schema.Platform, id)
			if _, done := into[key]; done {
				continue
			}
			if d := m.OrderDate(r); d != nil {
				into[key] = *d
			}
		}
		return nil
	})
}

func (o *OrderDates) fill(ctx context.Context, dates map[string]time.Time) (Result, error) {
	var res Result
	header, err := o.Output.Header(ctx)
	if err != nil {
		return res, err
	}
	platformCol := sheet.ColumnIndex(header, domain.CanonicalHeader[domain.ColPlatform])
	orderCol := sheet.ColumnIndex(header, domain.CanonicalHeader[domain.ColOrderID])
	dateCol := sheet.ColumnIndex(header, domain.CanonicalHeader[domain.ColOrderDate])
	if platformCol < 0 || orderCol < 0 || dateCol < 0 {
		return res, &cleanmaster.ConfigError{Err: fmt.Errorf("%s: missing platform, order_id or order_date column", o.Output.Name())}
	}

	err = o.eachPage(ctx, o.Output, func(rows []sheet.Row, start int) error {
		updates := make(map[int]any)
		for i, r := range rows {
			if r == nil {
				continue
			}
			res.Scanned++
			if dateCol < len(r) && !coerce.IsBlank(r[dateCol]) {
				continue
			}
			res.Blank++
			key := domain.OrderKey(domain.Platform(cellText(r, platformCol)), cellText(r, orderCol))
			d, ok := dates[key]
			if !ok {
				res.Unresolved++
				continue
			}
			updates[start+i] = d
		}
		if len(updates) == 0 {
			return nil
		}
		if err := o.Output.UpdateCells(ctx, dateCol, updates); err != nil {
			return fmt.Errorf("write backfilled dates: %w", err)
		}
		res.Filled += len(updates)
		return nil
	})
	return res, err
}

func (o *OrderDates) eachPage(ctx context.Context, t sheet.Table, fn func(rows []sheet.Row, start int) error) error {
	size := o.PageSize
	if size <= 0 {
		size = defaultPageSize
	}
	last, err := t.LastRow(ctx)
	if err != nil {
		return err
	}
	for start := domain.FirstDataRow; start <= last; start += size {
		rows, err := t.ReadRows(ctx, start, size)
		if err != nil {
			return fmt.Errorf("read %s from row %d: %w", t.Name(), start, err)
		}
		if err := fn(rows, start); err != nil {
			return err
		}
	}
	return nil
}

// unlock releases the build lock on a fresh context; the caller's may
// already be cancelled.
func (o *OrderDates) unlock() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := o.Lock.Release(ctx); err != nil {
		o.log().Warn("release build lock", "err", err)
	}
}

func (o *OrderDates) log() *logger.Logger {
	if o.Log != nil {
		return o.Log
	}
	return logger.Default()
}

func cellText(r sheet.Row, col int) string {
	if col >= len(r) {
		return ""
	}
	return coerce.String(r[col])
}
