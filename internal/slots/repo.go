package slots

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/srikanta2006/smart-parking/internal/db"
)

// Repo is the Postgres-backed Store. Scan order is doc_id order.
type Repo struct{ db *db.DB }

func NewRepo(d *db.DB) *Repo { return &Repo{db: d} }

func (r *Repo) List(ctx context.Context) ([]Slot, error) {
	rows, err := r.db.Query(ctx, `
SELECT doc_id, slot_id, occupied, reserved_at
FROM parking_slots
ORDER BY doc_id ASC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []Slot{}
	for rows.Next() {
		var s Slot
		if err := rows.Scan(&s.DocID, &s.ID, &s.Occupied, &s.ReservedAt); err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

// Reserve locks the first row for id, checks it and flips it inside one
// transaction. A concurrent caller blocks on the row lock and then sees the
// committed occupied=true.
func (r *Repo) Reserve(ctx context.Context, id int, at time.Time) (Slot, error) {
	var s Slot
	err := r.db.WithTx(ctx, func(ctx context.Context, tx db.Tx) error {
		err := tx.QueryRow(ctx, `
SELECT doc_id, slot_id, occupied
FROM parking_slots
WHERE slot_id=$1
ORDER BY doc_id ASC
LIMIT 1
FOR UPDATE`, id).Scan(&s.DocID, &s.ID, &s.Occupied)
		if err != nil {
			if db.IsNotFound(err) {
				return NotFound(id)
			}
			return err
		}
		if s.Occupied {
			return Occupied(id)
		}
		if err := tx.Exec(ctx, `UPDATE parking_slots SET occupied=true, reserved_at=$2 WHERE doc_id=$1`, s.DocID, at); err != nil {
			return err
		}
		s.Occupied = true
		s.ReservedAt = &at
		return nil
	})
	if err != nil {
		if errors.Is(err, ErrUnavailable) {
			return Slot{}, err
		}
		return Slot{}, db.WrapNotFound(err)
	}
	return s, nil
}

func (r *Repo) Ping(ctx context.Context) error {
	return r.db.Ping(ctx)
}

func (r *Repo) Seed(ctx context.Context, slots []Slot) error {
	return r.db.WithTx(ctx, func(ctx context.Context, tx db.Tx) error {
		for _, s := range slots {
			if s.DocID == "" {
				s.DocID = uuid.NewString()
			}
			if err := tx.Exec(ctx, `
INSERT INTO parking_slots(doc_id, slot_id, occupied)
VALUES ($1,$2,$3)
ON CONFLICT (doc_id) DO UPDATE SET slot_id=EXCLUDED.slot_id, occupied=EXCLUDED.occupied`,
				s.DocID, s.ID, s.Occupied); err != nil {
				return err
			}
		}
		return nil
	})
}
