package cart

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"storefront-core/internal/logger"

	"go.uber.org/zap"
)

type repository struct {
	db *sql.DB
}

// NewRepository returns a Postgres backed Snapshotter over the
// cart_snapshots table.
func NewRepository(db *sql.DB) Snapshotter {
	return &repository{db: db}
}

func (r *repository) Load(ctx context.Context, sessionID string) ([]LineItem, error) {
	if sessionID == "" {
		return nil, ErrInvalidSessionID
	}

	var raw []byte
	err := r.db.QueryRowContext(ctx, `
		SELECT items
		FROM cart_snapshots
		WHERE session_id = $1
	`, sessionID).Scan(&raw)

	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrSnapshotNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrFailedLoadSnapshot, err)
	}

	var items []LineItem
	if err := json.Unmarshal(raw, &items); err != nil {
		return nil, fmt.Errorf("%w: decode items: %v", ErrFailedLoadSnapshot, err)
	}

	return items, nil
}

func (r *repository) Save(ctx context.Context, sessionID string, items []LineItem) error {
	if sessionID == "" {
		return ErrInvalidSessionID
	}

	log := logger.FromCtx(ctx).With(
		zap.String("layer", "repository"),
		zap.String("method", "SaveCartSnapshot"),
		zap.String("session_id", sessionID),
	)

	raw, err := json.Marshal(items)
	if err != nil {
		return fmt.Errorf("%w: encode items: %v", ErrFailedSaveSnapshot, err)
	}

	_, err = r.db.ExecContext(ctx, `
		INSERT INTO cart_snapshots (session_id, items, total, updated_at)
		VALUES ($1, $2, $3, NOW())
		ON CONFLICT (session_id)
		DO UPDATE SET items = EXCLUDED.items, total = EXCLUDED.total, updated_at = NOW()
	`, sessionID, raw, CalculateTotal(items))
	if err != nil {
		log.Error("failed to save cart snapshot", zap.Error(err))
		return fmt.Errorf("%w: %v", ErrFailedSaveSnapshot, err)
	}

	log.Debug("cart snapshot saved", zap.Int("items", len(items)))
	return nil
}

func (r *repository) Delete(ctx context.Context, sessionID string) error {
	if sessionID == "" {
		return ErrInvalidSessionID
	}

	_, err := r.db.ExecContext(ctx, `
		DELETE FROM cart_snapshots
		WHERE session_id = $1
	`, sessionID)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrFailedSaveSnapshot, err)
	}
	return nil
}
