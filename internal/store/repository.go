// Package store keeps the history of period reports and rejected samples.
package store

import (
	"database/sql"
	_ "embed"
	"fmt"
	"log/slog"
	"time"

	"github.com/SteveOnorato/moat-temp-hum-ble/internal/config"
	"github.com/SteveOnorato/moat-temp-hum-ble/internal/types"
)

//go:embed sql/upsert-device.sql
var upsertDeviceSQL string

//go:embed sql/insert-report.sql
var insertReportSQL string

//go:embed sql/get-latest-reports.sql
var getLatestReportsSQL string

//go:embed sql/insert-rejection.sql
var insertRejectionSQL string

//go:embed sql/get-rejections.sql
var getRejectionsSQL string

// Report is one stored update.
type Report struct {
	ID          int64          `json:"id"`
	Address     string         `json:"address"`
	Quantity    types.Quantity `json:"quantity"`
	Available   bool           `json:"available"`
	Value       *float64       `json:"value,omitempty"`
	Unit        string         `json:"unit,omitempty"`
	Mean        *float64       `json:"mean,omitempty"`
	Median      *float64       `json:"median,omitempty"`
	Min         *float64       `json:"min,omitempty"`
	Max         *float64       `json:"max,omitempty"`
	Count       int            `json:"count"`
	Samples     int            `json:"samples"`
	Rejected    int            `json:"rejected"`
	RSSI        *int           `json:"rssi,omitempty"`
	Battery     *int           `json:"battery_pct,omitempty"`
	BatteryMV   *int           `json:"battery_mv,omitempty"`
	PeriodStart *time.Time     `json:"period_start,omitempty"`
	PeriodEnd   time.Time      `json:"period_end"`
}

type ReportRepository interface {
	UpsertDevice(d config.Device) error
	InsertUpdate(u types.Update) error
	// LatestReports returns the newest reports of a device, newest first. An
	// empty quantity matches all quantities.
	LatestReports(address string, quantity types.Quantity, limit int) ([]Report, error)
	InsertRejection(rej types.Rejection) error
	LatestRejections(address string, limit int) ([]types.Rejection, error)
}

type repositoryImpl struct {
	db *sql.DB
}

func NewRepository(db *sql.DB) ReportRepository {
	return &repositoryImpl{db: db}
}

func (r *repositoryImpl) UpsertDevice(d config.Device) error {
	if _, err := r.db.Exec(upsertDeviceSQL, d.MAC, d.DisplayName(), d.Vendor.String()); err != nil {
		return fmt.Errorf("upsert device %s: %w", d.MAC, err)
	}
	return nil
}

func (r *repositoryImpl) InsertUpdate(u types.Update) error {
	var mean, median, lo, hi, start any
	count := 0
	if u.Record != nil {
		mean, median, lo, hi = u.Record.Mean, u.Record.Median, u.Record.Min, u.Record.Max
		count = u.Record.Count
		start = formatTime(u.Record.PeriodStart)
	}
	a := u.Attributes

	_, err := r.db.Exec(insertReportSQL,
		u.Address, string(u.Quantity), u.Available, nullable(u.Value), u.Unit,
		mean, median, lo, hi, count,
		a.Samples, a.Rejected, nullable(a.RSSI), nullable(a.Battery), nullable(a.BatteryMillivolts),
		start, formatTime(u.PeriodEnd),
	)
	if err != nil {
		return fmt.Errorf("insert report %s/%s: %w", u.Address, u.Quantity, err)
	}
	return nil
}

func (r *repositoryImpl) LatestReports(address string, quantity types.Quantity, limit int) ([]Report, error) {
	q := string(quantity)
	rows, err := r.db.Query(getLatestReportsSQL, address, q, q, limit)
	if err != nil {
		return nil, err
	}
	defer func() {
		if err := rows.Close(); err != nil {
			slog.Error("close reports rows", "error", err)
		}
	}()

	var out []Report
	for rows.Next() {
		var (
			rep        Report
			quantityS  string
			unit       sql.NullString
			start, end sql.NullString
		)
		if err := rows.Scan(
			&rep.ID, &rep.Address, &quantityS, &rep.Available, &rep.Value, &unit,
			&rep.Mean, &rep.Median, &rep.Min, &rep.Max, &rep.Count,
			&rep.Samples, &rep.Rejected, &rep.RSSI, &rep.Battery, &rep.BatteryMV,
			&start, &end,
		); err != nil {
			return nil, err
		}
		rep.Quantity = types.Quantity(quantityS)
		rep.Unit = unit.String
		if start.Valid {
			t, err := parseTime(start.String)
			if err != nil {
				return nil, err
			}
			rep.PeriodStart = &t
		}
		if rep.PeriodEnd, err = parseTime(end.String); err != nil {
			return nil, err
		}
		out = append(out, rep)
	}
	return out, rows.Err()
}

func (r *repositoryImpl) InsertRejection(rej types.Rejection) error {
	_, err := r.db.Exec(insertRejectionSQL,
		rej.Address, string(rej.Quantity), rej.Value, rej.Raw, rej.Reason, formatTime(rej.At),
	)
	if err != nil {
		return fmt.Errorf("insert rejection %s: %w", rej.Address, err)
	}
	return nil
}

func (r *repositoryImpl) LatestRejections(address string, limit int) ([]types.Rejection, error) {
	rows, err := r.db.Query(getRejectionsSQL, address, limit)
	if err != nil {
		return nil, err
	}
	defer func() {
		if err := rows.Close(); err != nil {
			slog.Error("close rejections rows", "error", err)
		}
	}()

	var out []types.Rejection
	for rows.Next() {
		var (
			rej       types.Rejection
			quantityS string
			at        string
		)
		if err := rows.Scan(&rej.Address, &quantityS, &rej.Value, &rej.Raw, &rej.Reason, &at); err != nil {
			return nil, err
		}
		rej.Quantity = types.Quantity(quantityS)
		if rej.At, err = parseTime(at); err != nil {
			return nil, err
		}
		out = append(out, rej)
	}
	return out, rows.Err()
}

// tsLayout is fixed width so timestamps sort as text.
const tsLayout = "2006-01-02T15:04:05.000000Z"

func formatTime(t time.Time) string {
	return t.UTC().Format(tsLayout)
}

func parseTime(s string) (time.Time, error) {
	t, err := time.Parse(tsLayout, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse timestamp %q: %w", s, err)
	}
	return t, nil
}

func nullable[T any](p *T) any {
	if p == nil {
		return nil
	}
	return *p
}
