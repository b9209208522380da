package audit

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"golang.org/x/crypto/blake2b"

	"github.com/opsledger/opsledger/internal/platform/db"
	"github.com/opsledger/opsledger/internal/tenancy"
)

// Repository persists audit entries in PostgreSQL. Inserts chain each entry
// to its predecessor with a blake2b hash so tampering with history is
// detectable.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// Insert appends one entry to the business's trail. The previous-hash read and
// the insert run in one transaction so the chain stays linear per business.
func (r *Repository) Insert(ctx context.Context, entry Entry) error {
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		var prev []byte
		err := tx.QueryRow(ctx, `
			SELECT entry_hash FROM audit_entries
			WHERE business_id = $1
			ORDER BY id DESC LIMIT 1`,
			entry.BusinessID,
		).Scan(&prev)
		if err != nil && !errors.Is(err, pgx.ErrNoRows) {
			return err
		}

		hash, err := ChainHash(prev, entry)
		if err != nil {
			return err
		}
		meta, err := json.Marshal(entry.Meta)
		if err != nil {
			return err
		}
		_, err = tx.Exec(ctx, `
			INSERT INTO audit_entries
				(business_id, actor_id, target_user_id, permission, kind, outcome, reason, meta, prev_hash, entry_hash, occurred_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, COALESCE($11, NOW()))`,
			entry.BusinessID, entry.ActorID, entry.TargetUserID, entry.Permission,
			entry.Kind, entry.Outcome, entry.Reason, meta, prev, hash, nullTime(entry),
		)
		return err
	})
}

// Timeline returns entries for the scoped business, newest first. limit+1 rows
// are requested so the service can detect a next page.
func (r *Repository) Timeline(ctx context.Context, scope *tenancy.Scope, filters TimelineFilters, limit, offset int) ([]Entry, error) {
	businessID, err := scope.BusinessID()
	if err != nil {
		return nil, err
	}
	rows, err := r.pool.Query(ctx, `
		SELECT id, business_id, actor_id, target_user_id, permission, kind, outcome, reason, meta, prev_hash, entry_hash, occurred_at
		FROM audit_entries
		WHERE business_id = $1
		  AND ($2::text = '' OR kind = $2)
		  AND ($3::text = '' OR permission = $3)
		  AND ($4::uuid IS NULL OR target_user_id = $4)
		ORDER BY id DESC
		LIMIT $5 OFFSET $6`,
		businessID, filters.Kind, filters.Permission, filters.TargetUserID, limit, offset,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var entry Entry
		var meta []byte
		if err := rows.Scan(&entry.ID, &entry.BusinessID, &entry.ActorID, &entry.TargetUserID,
			&entry.Permission, &entry.Kind, &entry.Outcome, &entry.Reason, &meta,
			&entry.PrevHash, &entry.Hash, &entry.OccurredAt); err != nil {
			return nil, err
		}
		if len(meta) > 0 {
			_ = json.Unmarshal(meta, &entry.Meta)
		}
		entries = append(entries, entry)
	}
	return entries, rows.Err()
}

// ChainHash computes the tamper-evidence hash of an entry given its
// predecessor's hash.
func ChainHash(prev []byte, entry Entry) ([]byte, error) {
	payload, err := json.Marshal(entry)
	if err != nil {
		return nil, err
	}
	h, err := blake2b.New256(nil)
	if err != nil {
		return nil, err
	}
	h.Write(prev)
	h.Write(payload)
	return h.Sum(nil), nil
}

func nullTime(entry Entry) any {
	if entry.OccurredAt.IsZero() {
		return nil
	}
	return entry.OccurredAt
}
