package pgjournal

import (
	"context"

	"github.com/pkg/errors"
)

func (s *Storage) initSchema(ctx context.Context) error {
	stmts := []string{
		`
CREATE TABLE IF NOT EXISTS courier_actions (
  id BIGSERIAL PRIMARY KEY,
  event_id TEXT NOT NULL,
  courier TEXT NOT NULL,
  action TEXT NOT NULL,
  order_id BIGINT NOT NULL,
  from_status TEXT NOT NULL DEFAULT '',
  to_status TEXT NOT NULL DEFAULT '',
  ok BOOLEAN NOT NULL,
  error TEXT NULL,
  at TIMESTAMPTZ NOT NULL,
  created_at TIMESTAMPTZ NOT NULL DEFAULT now()
)`,
		// повторная доставка из kafka не должна дублировать запись
		`CREATE UNIQUE INDEX IF NOT EXISTS uq_courier_actions_event_id ON courier_actions(event_id)`,
		`CREATE INDEX IF NOT EXISTS idx_courier_actions_order_at ON courier_actions(order_id, at DESC)`,
		`CREATE INDEX IF NOT EXISTS idx_courier_actions_courier_at ON courier_actions(courier, at DESC)`,
	}

	for _, q := range stmts {
		if _, err := s.db.Exec(ctx, q); err != nil {
			return errors.Wrap(err, "init schema")
		}
	}
	return nil
}
