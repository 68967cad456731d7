package record

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strconv"
	"time"

	ormdriver "github.com/faciam-dev/goquent/orm/driver"
	"github.com/faciam-dev/goquent/orm/query"
	"github.com/go-sql-driver/mysql"
	"github.com/google/uuid"
	"github.com/lib/pq"

	"github.com/faciam-dev/gpdb/internal/events"
	"github.com/faciam-dev/gpdb/internal/logger"
	"github.com/faciam-dev/gpdb/pkg/capability"
	"github.com/faciam-dev/gpdb/pkg/fielddef"
	"github.com/faciam-dev/gpdb/pkg/formelement"
	"github.com/faciam-dev/gpdb/pkg/hooks"
	"github.com/faciam-dev/gpdb/pkg/metrics"
)

var (
	// ErrNotFound is returned when no record matches.
	ErrNotFound = errors.New("record: not found")
	// ErrVetoed is returned when a before_record_write hook refuses a write.
	ErrVetoed = errors.New("record: write vetoed")
	// ErrForbidden is returned when the caller lacks a capability.
	ErrForbidden = errors.New("record: forbidden")
)

// Event names emitted by the writer.
const (
	EventCreated  = "record.created"
	EventUpdated  = "record.updated"
	EventDeleted  = "record.deleted"
	EventApproved = "record.approved"
)

// privateIDAttempts bounds retries on private id collisions.
const privateIDAttempts = 3

// Record is a stored row keyed by column name.
type Record map[string]string

// ID returns the record id.
func (r Record) ID() int64 {
	n, _ := strconv.ParseInt(r[fielddef.FieldID], 10, 64)
	return n
}

// Write is the value passed to the write hooks.
type Write struct {
	Mode   Mode
	ID     int64
	Values map[string]any
}

// Emitter receives record events.
type Emitter interface {
	Dispatch(ctx context.Context, e events.Event)
}

// Writer persists records in <prefix>participants.
type Writer struct {
	DB          *sql.DB
	Dialect     ormdriver.Dialect
	Driver      string
	TablePrefix string

	Registry  *fielddef.Registry
	Pipeline  *Pipeline
	Validator *Validator
	Hooks     *hooks.Set
	Events    Emitter
	Logger    *slog.Logger

	now   func() time.Time
	newID func() string
}

func (w *Writer) prefix() string {
	if w.TablePrefix != "" {
		return w.TablePrefix
	}
	return "pdb_"
}

// Table returns the records table name.
func (w *Writer) Table() string { return w.prefix() + "participants" }

func (w *Writer) log() *slog.Logger {
	if w.Logger != nil {
		return w.Logger
	}
	return logger.L
}

func (w *Writer) clock() time.Time {
	if w.now != nil {
		return w.now()
	}
	return time.Now()
}

func (w *Writer) privateID() string {
	if w.newID != nil {
		return w.newID()
	}
	return NewPrivateID()
}

// NewPrivateID returns a random identifier for permalink access.
func NewPrivateID() string {
	id := uuid.New()
	return fmt.Sprintf("%X", id[:4])[:7]
}

func (w *Writer) query(ctx context.Context) *query.Query {
	return query.New(w.DB, w.Table(), w.Dialect).WithContext(ctx)
}

func (w *Writer) emit(ctx context.Context, name string, id int64, data any) {
	if w.Events == nil {
		return
	}
	w.Events.Dispatch(ctx, events.Event{ID: uuid.NewString(), Name: name, Record: id, Time: w.clock().UTC(), Data: data})
}

// fields returns the writable definitions; internal fields are maintained
// by the writer itself.
func (w *Writer) fields(ctx context.Context) ([]*fielddef.Definition, error) {
	if w.Registry == nil {
		return nil, nil
	}
	return w.Registry.Filter(ctx, func(d *fielddef.Definition) bool {
		return d.StoresData() && !d.IsInternal()
	})
}

// validationSet is the definitions validated for a write: every field on
// insert, the submitted ones otherwise. Captchas are checked only on public
// forms.
func validationSet(all []*fielddef.Definition, values map[string]Value, mode Mode, caller Caller) []*fielddef.Definition {
	public := caller.Origin == OriginForm || caller.Origin == OriginSignup
	var out []*fielddef.Definition
	for _, d := range all {
		if d.IsInternal() {
			continue
		}
		if d.Type == fielddef.Captcha || d.Validation == "captcha" {
			if public {
				out = append(out, d)
			}
			continue
		}
		if _, ok := values[d.Name]; ok || mode == ModeInsert {
			out = append(out, d)
		}
	}
	return out
}

func scalars(values map[string]Value) map[string]string {
	out := make(map[string]string, len(values))
	for k, v := range values {
		out[k] = v.String()
	}
	return out
}

// prepare validates values and builds the column map.
func (w *Writer) prepare(ctx context.Context, values map[string]Value, mode Mode, caller Caller) (map[string]any, error) {
	defs, err := w.fields(ctx)
	if err != nil {
		return nil, fmt.Errorf("load fields: %w", err)
	}
	if w.Validator != nil && w.Registry != nil && mode != ModeImport {
		all, err := w.Registry.All(ctx)
		if err != nil {
			return nil, fmt.Errorf("load fields: %w", err)
		}
		if err := w.Validator.Validate(ctx, validationSet(all, values, mode, caller), scalars(values)); err != nil {
			return nil, err
		}
	}
	pipe := w.Pipeline
	if pipe == nil {
		pipe = NewPipeline(nil, nil)
	}
	known := make(map[string]bool, len(defs))
	row := map[string]any{}
	for _, d := range defs {
		known[d.Name] = true
		raw, ok := values[d.Name]
		if !ok && mode != ModeInsert {
			continue
		}
		col := pipe.PrepareColumn(ctx, d, raw, mode, caller)
		if col.Skip {
			continue
		}
		row[col.Name] = col.Value
	}
	for name := range values {
		if !known[name] && w.Registry != nil {
			if def, ok := w.Registry.Get(ctx, name); ok && (def.IsInternal() || !def.StoresData()) {
				continue
			}
			w.log().Warn("drop unknown field", "field", name, "mode", mode.String())
		}
	}
	return row, nil
}

func isDuplicate(err error) bool {
	var my *mysql.MySQLError
	if errors.As(err, &my) {
		return my.Number == 1062
	}
	var pg *pq.Error
	if errors.As(err, &pg) {
		return pg.Code == "23505"
	}
	return false
}

func (w *Writer) observe(mode Mode, err error) {
	status := "ok"
	if err != nil {
		status = "error"
		if errors.Is(err, ErrValidation) {
			status = "invalid"
		}
	}
	metrics.RecordWrites.WithLabelValues(mode.String(), status).Inc()
}

// Insert validates and stores a new record and returns its id.
func (w *Writer) Insert(ctx context.Context, values map[string]Value, caller Caller) (id int64, err error) {
	defer func() { w.observe(ModeInsert, err) }()
	return w.insert(ctx, values, ModeInsert, caller)
}

func (w *Writer) insert(ctx context.Context, values map[string]Value, mode Mode, caller Caller) (int64, error) {
	row, err := w.prepare(ctx, values, mode, caller)
	if err != nil {
		return 0, err
	}
	now := formelement.FormatTimestamp(w.clock())
	row[fielddef.FieldDateRecorded] = now
	row[fielddef.FieldDateUpdated] = now
	write, ok := hooks.Run(ctx, w.Hooks, hooks.BeforeWrite, Write{Mode: mode, Values: row})
	if !ok {
		return 0, ErrVetoed
	}
	row = write.Values
	var id int64
	for attempt := 1; ; attempt++ {
		row[fielddef.FieldPrivateID] = w.privateID()
		id, err = w.query(ctx).InsertGetId(row)
		if err == nil {
			break
		}
		if !isDuplicate(err) || attempt >= privateIDAttempts {
			return 0, fmt.Errorf("insert record: %w", err)
		}
		w.log().Warn("private id collision", "attempt", attempt)
	}
	hooks.Run(ctx, w.Hooks, hooks.AfterWrite, Write{Mode: mode, ID: id, Values: row})
	w.emit(ctx, EventCreated, id, map[string]any{"private_id": row[fielddef.FieldPrivateID]})
	return id, nil
}

// Update validates and stores the submitted fields of record id.
func (w *Writer) Update(ctx context.Context, id int64, values map[string]Value, caller Caller) (err error) {
	defer func() { w.observe(ModeUpdate, err) }()
	return w.update(ctx, id, values, ModeUpdate, caller)
}

func (w *Writer) update(ctx context.Context, id int64, values map[string]Value, mode Mode, caller Caller) error {
	row, err := w.prepare(ctx, values, mode, caller)
	if err != nil {
		return err
	}
	row[fielddef.FieldDateUpdated] = formelement.FormatTimestamp(w.clock())
	write, ok := hooks.Run(ctx, w.Hooks, hooks.BeforeWrite, Write{Mode: mode, ID: id, Values: row})
	if !ok {
		return ErrVetoed
	}
	row = write.Values
	res, err := w.query(ctx).Where(fielddef.FieldID, id).Update(row)
	if err != nil {
		return fmt.Errorf("update record: %w", err)
	}
	// counts matched rows; util.OpenDSN enables clientFoundRows for MySQL
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ErrNotFound
	}
	hooks.Run(ctx, w.Hooks, hooks.AfterWrite, Write{Mode: mode, ID: id, Values: row})
	w.emit(ctx, EventUpdated, id, map[string]any{"fields": sortedKeys(row)})
	return nil
}

func sortedKeys(m map[string]any) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// Columns returns every stored column, id first.
func (w *Writer) Columns(ctx context.Context) ([]string, error) {
	cols := []string{fielddef.FieldID}
	if w.Registry == nil {
		return cols, nil
	}
	defs, err := w.Registry.Filter(ctx, func(d *fielddef.Definition) bool {
		return d.StoresData() && d.Name != fielddef.FieldID
	})
	if err != nil {
		return nil, err
	}
	for _, d := range defs {
		cols = append(cols, d.Name)
	}
	return cols, nil
}

func (w *Writer) selectOne(ctx context.Context, column string, value any) (Record, error) {
	cols, err := w.Columns(ctx)
	if err != nil {
		return nil, fmt.Errorf("load fields: %w", err)
	}
	s, args, err := w.query(ctx).Select(cols...).Where(column, value).Limit(1).Build()
	if err != nil {
		return nil, err
	}
	rows, err := w.DB.QueryContext(ctx, s, args...)
	if err != nil {
		return nil, fmt.Errorf("get record: %w", err)
	}
	defer rows.Close()
	recs, err := ScanRecords(rows)
	if err != nil {
		return nil, err
	}
	if len(recs) == 0 {
		return nil, ErrNotFound
	}
	return recs[0], nil
}

// ScanRecords reads every row into a Record. NULL columns become "".
func ScanRecords(rows *sql.Rows) ([]Record, error) {
	cols, err := rows.Columns()
	if err != nil {
		return nil, err
	}
	var out []Record
	for rows.Next() {
		vals := make([]sql.NullString, len(cols))
		ptrs := make([]any, len(cols))
		for i := range vals {
			ptrs[i] = &vals[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, fmt.Errorf("scan record: %w", err)
		}
		rec := make(Record, len(cols))
		for i, c := range cols {
			rec[c] = vals[i].String
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

// Get loads record id.
func (w *Writer) Get(ctx context.Context, id int64) (Record, error) {
	return w.selectOne(ctx, fielddef.FieldID, id)
}

// GetByPrivateID loads the record with private id pid.
func (w *Writer) GetByPrivateID(ctx context.Context, pid string) (Record, error) {
	if pid == "" {
		return nil, ErrNotFound
	}
	return w.selectOne(ctx, fielddef.FieldPrivateID, pid)
}

// Delete removes record id.
func (w *Writer) Delete(ctx context.Context, id int64) error {
	res, err := w.query(ctx).Where(fielddef.FieldID, id).Delete()
	if err != nil {
		return fmt.Errorf("delete record: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ErrNotFound
	}
	w.emit(ctx, EventDeleted, id, nil)
	return nil
}

// Approve sets or clears the approved flag of record id.
func (w *Writer) Approve(ctx context.Context, id int64, approved bool) error {
	val := ""
	if approved {
		val = "yes"
	}
	res, err := w.query(ctx).Where(fielddef.FieldID, id).Update(map[string]any{
		fielddef.FieldApproved:    val,
		fielddef.FieldDateUpdated: formelement.FormatTimestamp(w.clock()),
	})
	if err != nil {
		return fmt.Errorf("approve record: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ErrNotFound
	}
	w.emit(ctx, EventApproved, id, map[string]any{"approved": approved})
	return nil
}

// Import writes one imported row. A row matching an existing record on
// matchField updates it, skipping empty values unless caller.Overwrite is
// set; otherwise a new record is inserted. It returns the record id.
func (w *Writer) Import(ctx context.Context, row map[string]string, matchField string, caller Caller) (id int64, err error) {
	defer func() { w.observe(ModeImport, err) }()
	if caller.Origin == "" {
		caller.Origin = OriginImport
	}
	values := make(map[string]Value, len(row))
	for k, v := range row {
		values[k] = Scalar(v)
	}
	if matchField == "" {
		matchField = fielddef.FieldID
	}
	if key := row[matchField]; key != "" {
		existing, err := w.selectOne(ctx, matchField, key)
		switch {
		case err == nil:
			id := existing.ID()
			return id, w.update(ctx, id, values, ModeImport, caller)
		case !errors.Is(err, ErrNotFound):
			return 0, err
		}
	}
	return w.insert(ctx, values, ModeImport, caller)
}

// Action is a bulk operation.
type Action string

const (
	ActionDelete    Action = "delete"
	ActionApprove   Action = "approve"
	ActionUnapprove Action = "unapprove"
)

// Report lists the outcome of a bulk action per record.
type Report struct {
	Done   []int64
	Failed map[int64]error
}

// Bulk applies action to each id without a surrounding transaction. A
// failure does not stop the remaining ids; re-running is safe.
func (w *Writer) Bulk(ctx context.Context, action Action, ids []int64, checker capability.Checker) (*Report, error) {
	if checker != nil && !checker.Can(ctx, capability.BulkAction, string(action)) {
		return nil, ErrForbidden
	}
	var apply func(context.Context, int64) error
	switch action {
	case ActionDelete:
		apply = w.Delete
	case ActionApprove:
		apply = func(ctx context.Context, id int64) error { return w.Approve(ctx, id, true) }
	case ActionUnapprove:
		apply = func(ctx context.Context, id int64) error { return w.Approve(ctx, id, false) }
	default:
		return nil, fmt.Errorf("unknown bulk action %q", action)
	}
	rep := &Report{Failed: map[int64]error{}}
	for _, id := range ids {
		if err := ctx.Err(); err != nil {
			rep.Failed[id] = err
			continue
		}
		if err := apply(ctx, id); err != nil {
			w.log().Warn("bulk action failed", "action", action, "id", id, "err", err)
			rep.Failed[id] = err
			continue
		}
		rep.Done = append(rep.Done, id)
	}
	return rep, nil
}
