package pgjournal

import (
	"context"
	"strconv"
	"strings"

	"github.com/BearBump/CourierBox/internal/models"
	"github.com/jackc/pgx/v5"
	"github.com/pkg/errors"
)

type ActionFilter struct {
	OrderID int64
	Courier string
	Limit   int
	Offset  int
}

// InsertAction stores rec unless an entry with the same event id exists.
// It reports whether a row was written.
func (s *Storage) InsertAction(ctx context.Context, rec models.ActionRecord) (bool, error) {
	var id uint64
	err := s.db.QueryRow(ctx, `
INSERT INTO courier_actions (
  event_id, courier, action, order_id, from_status, to_status, ok, error, at
) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
ON CONFLICT (event_id) DO NOTHING
RETURNING id
`, rec.EventID, rec.Courier, string(rec.Action), rec.OrderID,
		string(rec.FromStatus), string(rec.ToStatus), rec.OK, rec.Error, rec.At.UTC()).Scan(&id)
	if errors.Is(err, pgx.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, errors.Wrap(err, "insert action")
	}
	return true, nil
}

func (s *Storage) ListActions(ctx context.Context, f ActionFilter) ([]*models.ActionRecord, error) {
	if f.Limit <= 0 || f.Limit > 500 {
		f.Limit = 100
	}
	if f.Offset < 0 {
		f.Offset = 0
	}

	var (
		where []string
		args  []any
	)
	if f.OrderID > 0 {
		args = append(args, f.OrderID)
		where = append(where, "order_id = $"+strconv.Itoa(len(args)))
	}
	if f.Courier != "" {
		args = append(args, f.Courier)
		where = append(where, "courier = $"+strconv.Itoa(len(args)))
	}
	q := `
SELECT
  id, event_id, courier, action, order_id,
  from_status, to_status, ok, error, at, created_at
FROM courier_actions`
	if len(where) > 0 {
		q += "\nWHERE " + strings.Join(where, " AND ")
	}
	args = append(args, f.Limit, f.Offset)
	q += "\nORDER BY at DESC, id DESC\nLIMIT $" + strconv.Itoa(len(args)-1) + " OFFSET $" + strconv.Itoa(len(args))

	rows, err := s.db.Query(ctx, q, args...)
	if err != nil {
		return nil, errors.Wrap(err, "select actions")
	}
	defer rows.Close()

	var out []*models.ActionRecord
	for rows.Next() {
		var (
			r            models.ActionRecord
			action       string
			fromSt, toSt string
		)
		if err := rows.Scan(
			&r.ID, &r.EventID, &r.Courier, &action, &r.OrderID,
			&fromSt, &toSt, &r.OK, &r.Error, &r.At, &r.CreatedAt,
		); err != nil {
			return nil, errors.Wrap(err, "scan action")
		}
		r.Action = models.ActionKind(action)
		r.FromStatus = models.OrderStatus(fromSt)
		r.ToStatus = models.OrderStatus(toSt)
		out = append(out, &r)
	}
	if rows.Err() != nil {
		return nil, errors.Wrap(rows.Err(), "rows")
	}
	return out, nil
}
