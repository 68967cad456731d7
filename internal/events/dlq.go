package events

import (
	"context"
	"database/sql"
	"encoding/json"

	"github.com/faciam-dev/goquent/orm/driver"
	"github.com/faciam-dev/goquent/orm/query"
)

// SQLDLQ stores failed events in <prefix>events_failed, indexed by the
// record they concern so a record's missed notifications can be replayed.
type SQLDLQ struct {
	DB          *sql.DB
	Dialect     driver.Dialect
	TablePrefix string
}

// Table returns the dead letter table name.
func (q *SQLDLQ) Table() string {
	if q.TablePrefix == "" {
		return "pdb_events_failed"
	}
	return q.TablePrefix + "events_failed"
}

// Store inserts the failed event. A nil receiver or DB discards it.
func (q *SQLDLQ) Store(ctx context.Context, e Event, attempts int, lastErr string) error {
	if q == nil || q.DB == nil {
		return nil
	}
	payload, err := json.Marshal(e)
	if err != nil {
		return err
	}
	_, err = query.New(q.DB, q.Table(), q.Dialect).WithContext(ctx).InsertGetId(map[string]any{
		"event_id":   e.ID,
		"name":       e.Name,
		"record_id":  e.Record,
		"payload":    string(payload),
		"attempts":   attempts,
		"last_error": lastErr,
	})
	return err
}
