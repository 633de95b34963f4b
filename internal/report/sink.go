package report

import (
	"errors"
	"log/slog"

	"github.com/SteveOnorato/moat-temp-hum-ble/internal/types"
)

// Sink receives one Update per device quantity per closed period.
type Sink interface {
	HandleUpdate(u types.Update) error
}

// SinkFunc adapts a function to Sink.
type SinkFunc func(u types.Update) error

func (f SinkFunc) HandleUpdate(u types.Update) error { return f(u) }

// MultiSink hands every update to all sinks. A failing sink does not keep
// the update from the others.
type MultiSink []Sink

func (m MultiSink) HandleUpdate(u types.Update) error {
	var errs []error
	for _, s := range m {
		if err := s.HandleUpdate(u); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// LogSink writes updates to a logger.
type LogSink struct {
	Logger *slog.Logger
}

func (s LogSink) HandleUpdate(u types.Update) error {
	if !u.Available {
		s.Logger.Info("report: unavailable",
			"addr", u.Address,
			"name", u.Name,
			"quantity", string(u.Quantity),
		)
		return nil
	}
	s.Logger.Info("report: update",
		"addr", u.Address,
		"name", u.Name,
		"quantity", string(u.Quantity),
		"value", *u.Value,
		"unit", u.Unit,
		"samples", u.Attributes.Samples,
		"rejected", u.Attributes.Rejected,
	)
	return nil
}
