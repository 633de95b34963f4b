package store

import (
	"log/slog"

	"github.com/SteveOnorato/moat-temp-hum-ble/internal/types"
)

// Sink records every update and rejection in the repository.
type Sink struct {
	Repo   ReportRepository
	Logger *slog.Logger
}

func (s Sink) HandleUpdate(u types.Update) error {
	return s.Repo.InsertUpdate(u)
}

func (s Sink) OnRejection(rej types.Rejection) {
	if err := s.Repo.InsertRejection(rej); err != nil {
		s.Logger.Warn("store: rejection not recorded", "addr", rej.Address, "error", err)
	}
}
