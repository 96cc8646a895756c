package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/avvvet/ludo-services/internal/gamesvc/models"
)

// ReconnectionData carries either the live table or, once it is gone, its recorded result.
type ReconnectionData struct {
	Table  *models.TableSnapshot `json:"table,omitempty"`
	Result *models.GameResult    `json:"result,omitempty"`
}

// GetReconnectionData resolves the user's live table, falling back to the latest
// finished game in tournamentID. An empty tournamentID only looks at live tables.
func (o *Orchestrator) GetReconnectionData(ctx context.Context, userID, tournamentID string) (*ReconnectionData, error) {
	tableID, err := o.tables.ActiveTableID(ctx, userID)
	if err != nil {
		return nil, err
	}
	if tableID != "" {
		table, err := o.load(ctx, tableID)
		switch {
		case err == nil:
			if tournamentID == "" || table.TournamentID == tournamentID {
				snap := table.Snapshot()
				return &ReconnectionData{Table: &snap}, nil
			}
		case !errors.Is(err, models.ErrNotFound):
			return nil, err
		}
	}

	if tournamentID == "" {
		return nil, fmt.Errorf("%w: no live table for user %s", models.ErrNotFound, userID)
	}
	result, err := o.results.LatestForUser(ctx, tournamentID, userID)
	if err != nil {
		return nil, err
	}
	return &ReconnectionData{Result: result}, nil
}

// ForceReconnect rebuilds the state of one specific table, live or finished.
func (o *Orchestrator) ForceReconnect(ctx context.Context, userID, tableID string) (*ReconnectionData, error) {
	table, err := o.loadOwned(ctx, tableID, userID)
	if err == nil {
		snap := table.Snapshot()
		return &ReconnectionData{Table: &snap}, nil
	}
	if !errors.Is(err, models.ErrNotFound) {
		return nil, err
	}

	result, err := o.results.ByTable(ctx, tableID)
	if err != nil {
		return nil, err
	}
	if result.UserID != userID {
		return nil, fmt.Errorf("%w: table %s", models.ErrNotFound, tableID)
	}
	return &ReconnectionData{Result: result}, nil
}
