package postgres

import (
	"encoding/json"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/kevin07696/payment-reconciler/internal/domain/ports"
)

// executor picks the caller's transaction and falls back to the pool
func executor(pool *pgxpool.Pool, db ports.DBTX) ports.DBTX {
	if db != nil {
		return db
	}
	return pool
}

// nullableJSON maps an empty payload to SQL NULL
func nullableJSON(raw json.RawMessage) []byte {
	if len(raw) == 0 {
		return nil
	}
	return []byte(raw)
}
