package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/avvvet/ludo-services/internal/db"
	"github.com/avvvet/ludo-services/internal/gamesvc/models"
	"github.com/shopspring/decimal"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

const resultsCollection = "game_results"

type resultDoc struct {
	TournamentID        string               `bson:"tournament_id"`
	TableID             string               `bson:"table_id"`
	UserID              string               `bson:"user_id"`
	Score               primitive.Decimal128 `bson:"score"`
	RemainingMovesBonus primitive.Decimal128 `bson:"remaining_moves_bonus"`
	Rank                int                  `bson:"rank"`
	EndReason           string               `bson:"end_reason"`
	Pawns               []pawnDoc            `bson:"pawns"`
	FinishedAt          time.Time            `bson:"finished_at"`
}

type pawnDoc struct {
	PlayerIndex int    `bson:"player"`
	PawnIndex   int    `bson:"pawn"`
	Position    string `bson:"position"`
	Bonus       int    `bson:"bonus"`
}

// ResultStore keeps finished games in mongo. Scores are Decimal128 so ranking
// compares them exactly.
type ResultStore struct {
	coll *mongo.Collection
}

func NewResultStore(database *mongo.Database) *ResultStore {
	return &ResultStore{coll: database.Collection(resultsCollection)}
}

// EnsureIndexes creates the lookup indexes and expires results ttl after they finished.
func (s *ResultStore) EnsureIndexes(ctx context.Context, ttl time.Duration) error {
	_, err := s.coll.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: "table_id", Value: 1}}, Options: options.Index().SetUnique(true)},
		{Keys: bson.D{{Key: "tournament_id", Value: 1}, {Key: "score", Value: -1}, {Key: "finished_at", Value: 1}}},
		{Keys: bson.D{{Key: "tournament_id", Value: 1}, {Key: "user_id", Value: 1}, {Key: "finished_at", Value: -1}}},
	})
	if err != nil {
		return fmt.Errorf("create result indexes: %w", err)
	}
	return db.CreateTTLIndexForCollection(ctx, s.coll.Database(), resultsCollection, "finished_at", ttl)
}

func (s *ResultStore) Record(ctx context.Context, r models.GameResult) error {
	doc, err := toResultDoc(r)
	if err != nil {
		return err
	}
	_, err = s.coll.ReplaceOne(ctx, bson.M{"table_id": r.TableID}, doc, options.Replace().SetUpsert(true))
	if err != nil {
		return fmt.Errorf("record result %s: %w", r.TableID, err)
	}
	return nil
}

func (s *ResultStore) Rank(ctx context.Context, tournamentID string, score decimal.Decimal) (int, error) {
	d, err := primitive.ParseDecimal128(score.String())
	if err != nil {
		return 0, err
	}
	higher, err := s.coll.CountDocuments(ctx, bson.M{
		"tournament_id": tournamentID,
		"score":         bson.M{"$gt": d},
	})
	if err != nil {
		return 0, fmt.Errorf("rank: %w", err)
	}
	return int(higher) + 1, nil
}

func (s *ResultStore) Count(ctx context.Context, tournamentID string) (int, error) {
	n, err := s.coll.CountDocuments(ctx, bson.M{"tournament_id": tournamentID})
	if err != nil {
		return 0, fmt.Errorf("count results: %w", err)
	}
	return int(n), nil
}

func (s *ResultStore) Leaderboard(ctx context.Context, tournamentID string) ([]models.GameResult, error) {
	opts := options.Find().SetSort(bson.D{{Key: "score", Value: -1}, {Key: "finished_at", Value: 1}})
	cur, err := s.coll.Find(ctx, bson.M{"tournament_id": tournamentID}, opts)
	if err != nil {
		return nil, fmt.Errorf("leaderboard: %w", err)
	}
	defer cur.Close(ctx)

	var board []models.GameResult
	for cur.Next(ctx) {
		var doc resultDoc
		if err := cur.Decode(&doc); err != nil {
			return nil, fmt.Errorf("decode result: %w", err)
		}
		r, err := doc.toModel()
		if err != nil {
			return nil, err
		}
		board = append(board, *r)
	}
	return board, cur.Err()
}

func (s *ResultStore) ByTable(ctx context.Context, tableID string) (*models.GameResult, error) {
	return s.findOne(ctx, bson.M{"table_id": tableID}, options.FindOne())
}

func (s *ResultStore) LatestForUser(ctx context.Context, tournamentID, userID string) (*models.GameResult, error) {
	opts := options.FindOne().SetSort(bson.D{{Key: "finished_at", Value: -1}})
	return s.findOne(ctx, bson.M{"tournament_id": tournamentID, "user_id": userID}, opts)
}

func (s *ResultStore) findOne(ctx context.Context, filter bson.M, opts *options.FindOneOptions) (*models.GameResult, error) {
	var doc resultDoc
	if err := s.coll.FindOne(ctx, filter, opts).Decode(&doc); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, fmt.Errorf("%w: result %v", models.ErrNotFound, filter)
		}
		return nil, fmt.Errorf("find result: %w", err)
	}
	return doc.toModel()
}

func toResultDoc(r models.GameResult) (*resultDoc, error) {
	score, err := primitive.ParseDecimal128(r.Score.String())
	if err != nil {
		return nil, fmt.Errorf("score %s: %w", r.Score, err)
	}
	bonus, err := primitive.ParseDecimal128(r.RemainingMovesBonus.String())
	if err != nil {
		return nil, fmt.Errorf("bonus %s: %w", r.RemainingMovesBonus, err)
	}

	pawns := make([]pawnDoc, 0, len(r.Pawns))
	for _, p := range r.Pawns {
		pawns = append(pawns, pawnDoc{p.PlayerIndex, p.PawnIndex, string(p.Position), p.Bonus})
	}
	return &resultDoc{
		TournamentID:        r.TournamentID,
		TableID:             r.TableID,
		UserID:              r.UserID,
		Score:               score,
		RemainingMovesBonus: bonus,
		Rank:                r.Rank,
		EndReason:           string(r.EndReason),
		Pawns:               pawns,
		FinishedAt:          r.FinishedAt,
	}, nil
}

func (d resultDoc) toModel() (*models.GameResult, error) {
	score, err := decimal.NewFromString(d.Score.String())
	if err != nil {
		return nil, fmt.Errorf("score of %s: %w", d.TableID, err)
	}
	bonus, err := decimal.NewFromString(d.RemainingMovesBonus.String())
	if err != nil {
		return nil, fmt.Errorf("bonus of %s: %w", d.TableID, err)
	}

	pawns := make([]models.Pawn, 0, len(d.Pawns))
	for _, p := range d.Pawns {
		pawns = append(pawns, models.Pawn{
			PlayerIndex: p.PlayerIndex,
			PawnIndex:   p.PawnIndex,
			Position:    models.Position(p.Position),
			Bonus:       p.Bonus,
		})
	}
	return &models.GameResult{
		TournamentID:        d.TournamentID,
		TableID:             d.TableID,
		UserID:              d.UserID,
		Score:               score,
		RemainingMovesBonus: bonus,
		Rank:                d.Rank,
		EndReason:           models.Action(d.EndReason),
		Pawns:               pawns,
		FinishedAt:          d.FinishedAt.UTC(),
	}, nil
}
