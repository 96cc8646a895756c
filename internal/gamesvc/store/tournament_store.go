package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/avvvet/ludo-services/internal/gamesvc/models"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
)

type TournamentStore struct {
	db *pgxpool.Pool
}

func NewTournamentStore(db *pgxpool.Pool) *TournamentStore {
	return &TournamentStore{db: db}
}

const tournamentColumns = `
	id, name, join_fee, status, end_at, duration_seconds, max_total_entries,
	max_entries_per_user, entered_user_count, extension_seconds, max_extension_limit,
	extended_count, winning_prizes, total_prize, total_moves, use_same_pawn_positions,
	pawn_positions, is_repeatable, created_at`

func (s *TournamentStore) Get(ctx context.Context, id string) (*models.Tournament, error) {
	query := `SELECT ` + tournamentColumns + ` FROM tournaments WHERE id = $1`

	var (
		t                   models.Tournament
		duration, extension int64
		prizes, positions   []byte
	)
	err := s.db.QueryRow(ctx, query, id).Scan(
		&t.ID,
		&t.Name,
		&t.JoinFee,
		&t.Status,
		&t.EndAt,
		&duration,
		&t.MaxTotalEntries,
		&t.MaxEntriesPerUser,
		&t.EnteredUserCount,
		&extension,
		&t.MaxExtensionLimit,
		&t.ExtendedCount,
		&prizes,
		&t.TotalPrize,
		&t.TotalMoves,
		&t.UseSamePawnPositions,
		&positions,
		&t.IsRepeatable,
		&t.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("%w: tournament %s", models.ErrNotFound, id)
		}
		return nil, fmt.Errorf("failed to get tournament: %w", err)
	}

	t.Duration = time.Duration(duration) * time.Second
	t.ExtensionTime = time.Duration(extension) * time.Second
	if err := json.Unmarshal(prizes, &t.WinningPrizes); err != nil {
		return nil, fmt.Errorf("decode winning prizes of %s: %w", id, err)
	}
	if len(positions) > 0 {
		if err := json.Unmarshal(positions, &t.PawnPositions); err != nil {
			return nil, fmt.Errorf("decode pawn positions of %s: %w", id, err)
		}
	}
	return &t, nil
}

func (s *TournamentStore) UserEntryCount(ctx context.Context, tournamentID, userID string) (int, error) {
	var n int
	err := s.db.QueryRow(ctx, `
		SELECT COUNT(*) FROM tournament_entries
		WHERE tournament_id = $1 AND user_id = $2
	`, tournamentID, userID).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count entries: %w", err)
	}
	return n, nil
}

func (s *TournamentStore) AddEntry(ctx context.Context, tournamentID, userID, tableID string) (int, error) {
	tx, err := s.db.Begin(ctx)
	if err != nil {
		return 0, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, `
		INSERT INTO tournament_entries (tournament_id, user_id, table_id)
		VALUES ($1, $2, $3)
	`, tournamentID, userID, tableID); err != nil {
		return 0, fmt.Errorf("insert entry: %w", err)
	}

	var entered int
	if err := tx.QueryRow(ctx, `
		UPDATE tournaments
		SET entered_user_count = entered_user_count + 1, updated_at = now()
		WHERE id = $1
		RETURNING entered_user_count
	`, tournamentID).Scan(&entered); err != nil {
		return 0, fmt.Errorf("bump entered count: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, fmt.Errorf("commit tx: %w", err)
	}
	return entered, nil
}

func (s *TournamentStore) RemoveEntry(ctx context.Context, tournamentID, tableID string) error {
	tx, err := s.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	tag, err := tx.Exec(ctx, `
		DELETE FROM tournament_entries WHERE tournament_id = $1 AND table_id = $2
	`, tournamentID, tableID)
	if err != nil {
		return fmt.Errorf("delete entry: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return nil
	}

	if _, err := tx.Exec(ctx, `
		UPDATE tournaments
		SET entered_user_count = entered_user_count - 1, updated_at = now()
		WHERE id = $1 AND entered_user_count > 0
	`, tournamentID); err != nil {
		return fmt.Errorf("drop entered count: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

func (s *TournamentStore) SavePawnPositions(ctx context.Context, tournamentID string, pawns []models.Pawn) error {
	data, err := json.Marshal(pawns)
	if err != nil {
		return err
	}
	return s.exec(ctx, `
		UPDATE tournaments SET pawn_positions = $2, updated_at = now() WHERE id = $1
	`, tournamentID, data)
}

func (s *TournamentStore) UpdateStatus(ctx context.Context, id string, status models.TournamentStatus) error {
	return s.exec(ctx, `
		UPDATE tournaments SET status = $2, updated_at = now() WHERE id = $1
	`, id, string(status))
}

func (s *TournamentStore) Extend(ctx context.Context, id string, endAt time.Time, extendedCount int) error {
	return s.exec(ctx, `
		UPDATE tournaments SET end_at = $2, extended_count = $3, updated_at = now() WHERE id = $1
	`, id, endAt, extendedCount)
}

func (s *TournamentStore) Complete(ctx context.Context, id string, totalPrize decimal.Decimal) error {
	return s.exec(ctx, `
		UPDATE tournaments SET status = 'completed', total_prize = $2, updated_at = now() WHERE id = $1
	`, id, totalPrize)
}

func (s *TournamentStore) Create(ctx context.Context, t *models.Tournament) (string, error) {
	if t.ID == "" {
		t.ID = uuid.NewString()
	}
	prizes, err := json.Marshal(t.WinningPrizes)
	if err != nil {
		return "", err
	}
	var positions []byte
	if len(t.PawnPositions) > 0 {
		if positions, err = json.Marshal(t.PawnPositions); err != nil {
			return "", err
		}
	}

	_, err = s.db.Exec(ctx, `
		INSERT INTO tournaments (
			id, name, join_fee, status, end_at, duration_seconds, max_total_entries,
			max_entries_per_user, entered_user_count, extension_seconds, max_extension_limit,
			extended_count, winning_prizes, total_prize, total_moves, use_same_pawn_positions,
			pawn_positions, is_repeatable, created_at, updated_at
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19,now())
	`,
		t.ID, t.Name, t.JoinFee, string(t.Status), t.EndAt, int64(t.Duration/time.Second), t.MaxTotalEntries,
		t.MaxEntriesPerUser, t.EnteredUserCount, int64(t.ExtensionTime/time.Second), t.MaxExtensionLimit,
		t.ExtendedCount, prizes, t.TotalPrize, t.TotalMoves, t.UseSamePawnPositions,
		positions, t.IsRepeatable, t.CreatedAt,
	)
	if err != nil {
		return "", fmt.Errorf("insert tournament: %w", err)
	}
	return t.ID, nil
}

func (s *TournamentStore) EntrantUserIDs(ctx context.Context, id string) ([]string, error) {
	rows, err := s.db.Query(ctx, `
		SELECT DISTINCT user_id FROM tournament_entries WHERE tournament_id = $1
	`, id)
	if err != nil {
		return nil, fmt.Errorf("select entrants: %w", err)
	}
	defer rows.Close()

	var users []string
	for rows.Next() {
		var u string
		if err := rows.Scan(&u); err != nil {
			return nil, fmt.Errorf("scan entrant: %w", err)
		}
		users = append(users, u)
	}
	return users, rows.Err()
}

// DueForClose claims live tournaments past their end. Rows locked by another
// controller instance are skipped.
func (s *TournamentStore) DueForClose(ctx context.Context, now time.Time) ([]string, error) {
	tx, err := s.db.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	rows, err := tx.Query(ctx, `
		SELECT id FROM tournaments
		WHERE status = 'live' AND end_at <= $1
		ORDER BY end_at
		FOR UPDATE SKIP LOCKED
	`, now)
	if err != nil {
		return nil, fmt.Errorf("select due tournaments: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan tournament row: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}
	rows.Close()

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit tx: %w", err)
	}
	return ids, nil
}

func (s *TournamentStore) exec(ctx context.Context, query string, args ...any) error {
	tag, err := s.db.Exec(ctx, query, args...)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: tournament %v", models.ErrNotFound, args[0])
	}
	return nil
}
