package pg

import (
	"context"
	"time"

	"signal_relay/pkg/db"

	"github.com/jackc/pgx/v5"
	"github.com/pkg/errors"
)

const (
	pruneSQL  = `DELETE FROM processed_signals WHERE processed_at < $1`
	existsSQL = `SELECT EXISTS (SELECT 1 FROM processed_signals WHERE signal_id = $1)`
	upsertSQL = `INSERT INTO processed_signals (signal_id, processed_at)
		VALUES ($1, $2)
		ON CONFLICT (signal_id) DO UPDATE SET processed_at = EXCLUDED.processed_at`
)

// Store is the postgres-backed dedup store. Prune and check run in one
// transaction so concurrent signals cannot interleave the read-modify-write.
type Store struct {
	tx        db.TxManager
	retention time.Duration
}

func NewStore(tx db.TxManager, retention time.Duration) *Store {
	return &Store{tx: tx, retention: retention}
}

func (s *Store) IsProcessed(ctx context.Context, signalID string) (bool, error) {
	if signalID == "" {
		return false, nil
	}

	var processed bool
	err := s.tx.RunMaster(ctx, func(ctxTx context.Context, tx pgx.Tx) error {
		cutoff := time.Now().UTC().Add(-s.retention)
		if _, err := tx.Exec(ctxTx, pruneSQL, cutoff); err != nil {
			return errors.Wrap(err, "prune processed_signals")
		}
		if err := tx.QueryRow(ctxTx, existsSQL, signalID).Scan(&processed); err != nil {
			return errors.Wrap(err, "check processed_signals")
		}
		return nil
	})
	return processed, err
}

func (s *Store) MarkProcessed(ctx context.Context, signalID string) error {
	if signalID == "" {
		return nil
	}
	_, err := s.tx.Conn().Exec(ctx, upsertSQL, signalID, time.Now().UTC())
	return errors.Wrap(err, "upsert processed_signals")
}
