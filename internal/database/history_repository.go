package database

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/irfndi/coinsight-go/internal/models"
	"github.com/irfndi/coinsight-go/internal/utils"
	"github.com/jackc/pgx/v5"
)

const historyColumns = `id, user_id, symbol, display_name, granularity, signal,
	confidence_percent, reference_price, indicators, commentary, created_at`

// HistoryRepository persists finished analysis results.
type HistoryRepository struct {
	pool DatabasePool
}

func NewHistoryRepository(pool DatabasePool) *HistoryRepository {
	return &HistoryRepository{pool: pool}
}

func scanHistory(row pgx.Row) (*models.AnalysisHistoryEntry, error) {
	var e models.AnalysisHistoryEntry
	err := row.Scan(
		&e.ID, &e.UserID, &e.Symbol, &e.DisplayName, &e.Granularity, &e.Signal,
		&e.ConfidencePercent, &e.ReferencePrice, &e.Indicators, &e.Commentary, &e.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &e, nil
}

// SaveResult stores result for userID and returns the new entry.
func (r *HistoryRepository) SaveResult(ctx context.Context, userID string, result models.AnalysisResult) (*models.AnalysisHistoryEntry, error) {
	indicators, err := json.Marshal(result.Indicators)
	if err != nil {
		return nil, fmt.Errorf("failed to encode indicators: %w", err)
	}

	query := `
		INSERT INTO analysis_history (id, user_id, symbol, display_name, granularity, signal,
			confidence_percent, reference_price, indicators, commentary, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		RETURNING ` + historyColumns

	id := result.RunID
	if id == "" {
		id = uuid.NewString()
	}

	entry, err := scanHistory(r.pool.QueryRow(ctx, query,
		id, userID, result.Asset.Symbol, result.Asset.DisplayName, result.Granularity, result.Signal,
		result.ConfidencePercent, result.ReferencePrice, indicators, result.Commentary, result.GeneratedAt,
	))
	if err != nil {
		return nil, fmt.Errorf("failed to save analysis history: %w", err)
	}
	return entry, nil
}

// List returns up to limit entries, newest first.
func (r *HistoryRepository) List(ctx context.Context, userID string, limit int) ([]models.AnalysisHistoryEntry, error) {
	if limit <= 0 {
		limit = 20
	}
	query := `SELECT ` + historyColumns + `
		FROM analysis_history WHERE user_id = $1
		ORDER BY created_at DESC LIMIT $2`

	rows, err := r.pool.Query(ctx, query, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list analysis history: %w", err)
	}
	defer rows.Close()

	entries := make([]models.AnalysisHistoryEntry, 0)
	for rows.Next() {
		entry, err := scanHistory(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan analysis history: %w", err)
		}
		entries = append(entries, *entry)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate analysis history: %w", err)
	}
	return entries, nil
}

// Get returns one entry owned by userID.
func (r *HistoryRepository) Get(ctx context.Context, userID, id string) (*models.AnalysisHistoryEntry, error) {
	query := `SELECT ` + historyColumns + ` FROM analysis_history WHERE id = $1 AND user_id = $2`
	entry, err := scanHistory(r.pool.QueryRow(ctx, query, id, userID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, utils.NewNotFoundError("analysis", id)
		}
		return nil, fmt.Errorf("failed to get analysis history: %w", err)
	}
	return entry, nil
}

// Delete removes one entry owned by userID.
func (r *HistoryRepository) Delete(ctx context.Context, userID, id string) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM analysis_history WHERE id = $1 AND user_id = $2`, id, userID)
	if err != nil {
		return fmt.Errorf("failed to delete analysis history: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return utils.NewNotFoundError("analysis", id)
	}
	return nil
}
