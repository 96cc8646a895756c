package store

import (
	"context"
	"fmt"
	"strconv"

	"github.com/avvvet/ludo-services/internal/gamesvc/models"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
	log "github.com/sirupsen/logrus"
)

// WalletStore books tournament money on the shared balances ledger.
// A user's balance is sum(dr) - sum(cr) over verified rows; tref makes every booking idempotent.
type WalletStore struct {
	db *pgxpool.Pool
}

func NewWalletStore(db *pgxpool.Pool) *WalletStore {
	return &WalletStore{db: db}
}

func joinRef(tournamentID, userID string, entryNo int) string {
	return fmt.Sprintf("JOIN-%s-%s-%d", tournamentID, userID, entryNo)
}

func prizeRef(tournamentID, tableID string) string {
	return fmt.Sprintf("PRIZE-%s-%s", tournamentID, tableID)
}

// user ids are telegram chat ids
func ledgerUserID(userID string) (int64, error) {
	id, err := strconv.ParseInt(userID, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid user id %q: %w", userID, err)
	}
	return id, nil
}

func (s *WalletStore) GetBalance(ctx context.Context, userID string) (decimal.Decimal, error) {
	uid, err := ledgerUserID(userID)
	if err != nil {
		return decimal.Zero, err
	}

	var totalDr, totalCr decimal.Decimal
	err = s.db.QueryRow(ctx, `
		SELECT
			COALESCE(SUM(dr), 0),
			COALESCE(SUM(cr), 0)
		FROM balances
		WHERE user_id = $1 AND status = 'verified'
	`, uid).Scan(&totalDr, &totalCr)
	if err != nil {
		return decimal.Zero, err
	}
	return totalDr.Sub(totalCr), nil
}

func (s *WalletStore) DebitJoinFee(ctx context.Context, userID string, amount decimal.Decimal, tournamentID string, entryNo int) error {
	uid, err := ledgerUserID(userID)
	if err != nil {
		return err
	}
	tref := joinRef(tournamentID, userID, entryNo)

	tx, err := s.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	var exists bool
	if err := tx.QueryRow(ctx,
		`SELECT EXISTS(SELECT 1 FROM balances WHERE tref = $1)`, tref,
	).Scan(&exists); err != nil {
		return fmt.Errorf("check tref: %w", err)
	}
	if exists {
		log.Warnf("join fee %s already booked", tref)
		return nil
	}

	rows, err := tx.Query(ctx, `
		SELECT dr, cr
		FROM balances
		WHERE user_id = $1 AND status = 'verified'
		FOR UPDATE
	`, uid)
	if err != nil {
		return fmt.Errorf("lock balance records: %w", err)
	}
	var totalDr, totalCr decimal.Decimal
	for rows.Next() {
		var dr, cr decimal.Decimal
		if err := rows.Scan(&dr, &cr); err != nil {
			rows.Close()
			return fmt.Errorf("scan balance row: %w", err)
		}
		totalDr = totalDr.Add(dr)
		totalCr = totalCr.Add(cr)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return fmt.Errorf("balance rows: %w", err)
	}

	if balance := totalDr.Sub(totalCr); balance.LessThan(amount) {
		return fmt.Errorf("%w: balance %s, join fee %s", models.ErrInsufficientBalance, balance.StringFixed(2), amount.StringFixed(2))
	}

	if _, err := tx.Exec(ctx, `
		INSERT INTO balances (user_id, ttype, dr, cr, tref, status, created_at)
		VALUES ($1, 'tournament_join', 0, $2, $3, 'verified', NOW())
	`, uid, amount, tref); err != nil {
		return fmt.Errorf("insert join fee: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

func (s *WalletStore) CreditPrizes(ctx context.Context, tournamentID string, prizes []models.Prize) error {
	tx, err := s.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	for _, p := range prizes {
		uid, err := ledgerUserID(p.UserID)
		if err != nil {
			return err
		}
		if _, err := tx.Exec(ctx, `
			INSERT INTO balances (user_id, ttype, dr, cr, tref, status, created_at)
			SELECT $1, 'tournament_prize', $2, 0, $3, 'verified', NOW()
			WHERE NOT EXISTS (SELECT 1 FROM balances WHERE tref = $3)
		`, uid, p.Amount, prizeRef(tournamentID, p.TableID)); err != nil {
			return fmt.Errorf("insert prize for %s: %w", p.UserID, err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

// RefundJoinFees reverses every join fee booked for the tournament.
func (s *WalletStore) RefundJoinFees(ctx context.Context, tournamentID string) error {
	tag, err := s.db.Exec(ctx, `
		INSERT INTO balances (user_id, ttype, dr, cr, tref, status, created_at)
		SELECT j.user_id, 'tournament_refund', j.cr, 0, 'REFUND-' || j.tref, 'verified', NOW()
		FROM balances j
		WHERE j.ttype = 'tournament_join'
		  AND j.tref LIKE $1
		  AND NOT EXISTS (SELECT 1 FROM balances r WHERE r.tref = 'REFUND-' || j.tref)
	`, "JOIN-"+tournamentID+"-%")
	if err != nil {
		return fmt.Errorf("refund join fees: %w", err)
	}
	log.WithField("tournamentId", tournamentID).Infof("refunded %d join fees", tag.RowsAffected())
	return nil
}
