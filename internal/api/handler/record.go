package handler

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"strings"

	"github.com/danielgtaylor/huma/v2"

	"github.com/faciam-dev/gpdb/internal/api/schema"
	"github.com/faciam-dev/gpdb/pkg/capability"
	"github.com/faciam-dev/gpdb/pkg/fielddef"
	"github.com/faciam-dev/gpdb/pkg/formelement"
	"github.com/faciam-dev/gpdb/pkg/record"
	"github.com/faciam-dev/gpdb/pkg/serial"
)

// RecordHandler reads and edits single records.
type RecordHandler struct {
	Env *Env
}

type recordIDInput struct {
	ID int64 `path:"id"`
}

type privateIDInput struct {
	PID string `path:"pid"`
}

type recordOutput struct{ Body schema.Record }

type formOutput struct{ Body schema.Form }

type updateInput struct {
	ID   int64 `path:"id"`
	Body schema.WriteRecord
}

type bulkInput struct{ Body schema.BulkRequest }

type bulkOutput struct{ Body schema.BulkResult }

// RegisterRecords registers record endpoints.
func RegisterRecords(api huma.API, h *RecordHandler) {
	huma.Register(api, huma.Operation{
		OperationID: "getRecord",
		Method:      http.MethodGet,
		Path:        "/v1/records/{id}",
		Summary:     "Get record",
		Tags:        []string{"Record"},
	}, h.get)
	huma.Register(api, huma.Operation{
		OperationID: "getRecordByPrivateID",
		Method:      http.MethodGet,
		Path:        "/v1/records/private/{pid}",
		Summary:     "Get record by private id",
		Tags:        []string{"Record"},
	}, h.getPrivate)
	huma.Register(api, huma.Operation{
		OperationID: "getRecordForm",
		Method:      http.MethodGet,
		Path:        "/v1/records/{id}/form",
		Summary:     "Render record edit form",
		Tags:        []string{"Record"},
	}, h.form)
	huma.Register(api, huma.Operation{
		OperationID:   "updateRecord",
		Method:        http.MethodPut,
		Path:          "/v1/records/{id}",
		Summary:       "Update record",
		Tags:          []string{"Record"},
		DefaultStatus: http.StatusNoContent,
	}, h.update)
	huma.Register(api, huma.Operation{
		OperationID:   "deleteRecord",
		Method:        http.MethodDelete,
		Path:          "/v1/records/{id}",
		Summary:       "Delete record",
		Tags:          []string{"Record"},
		DefaultStatus: http.StatusNoContent,
	}, h.delete)
	huma.Register(api, huma.Operation{
		OperationID: "bulkRecords",
		Method:      http.MethodPost,
		Path:        "/v1/records/bulk",
		Summary:     "Apply an action to many records",
		Tags:        []string{"Record"},
	}, h.bulk)
}

func toSchema(rec record.Record) schema.Record {
	vals := make(map[string]string, len(rec))
	for k, v := range rec {
		vals[k] = v
	}
	return schema.Record{ID: rec.ID(), PrivateID: rec[fielddef.FieldPrivateID], Values: vals}
}

func (h *RecordHandler) get(ctx context.Context, in *recordIDInput) (*recordOutput, error) {
	rec, err := h.Env.Writer.Get(ctx, in.ID)
	if err != nil {
		return nil, httpError(err)
	}
	return &recordOutput{Body: toSchema(rec)}, nil
}

func (h *RecordHandler) getPrivate(ctx context.Context, in *privateIDInput) (*recordOutput, error) {
	rec, err := h.Env.Writer.GetByPrivateID(ctx, in.PID)
	if err != nil {
		return nil, httpError(err)
	}
	return &recordOutput{Body: toSchema(rec)}, nil
}

func (h *RecordHandler) form(ctx context.Context, in *recordIDInput) (*formOutput, error) {
	rec, err := h.Env.Writer.Get(ctx, in.ID)
	if err != nil {
		return nil, httpError(err)
	}
	defs, err := h.Env.Registry.Filter(ctx, func(d *fielddef.Definition) bool { return !d.IsInternal() })
	if err != nil {
		return nil, httpError(err)
	}
	editReadonly := h.Env.can(ctx, capability.EditReadonly, "")
	return &formOutput{Body: renderForm(h.Env.Renderer, defs, rec, editReadonly, false)}, nil
}

// renderForm renders defs filled from values.
func renderForm(r *formelement.Renderer, defs []*fielddef.Definition, values map[string]string, editReadonly, defaults bool) schema.Form {
	out := schema.Form{Fields: make([]schema.FormField, 0, len(defs))}
	for _, d := range defs {
		html := r.Render(d, values[d.Name], formelement.Options{
			Readonly:     d.IsReadonly() && !editReadonly,
			Editable:     editReadonly,
			ApplyDefault: defaults,
		})
		out.Fields = append(out.Fields, schema.FormField{Name: d.Name, Title: d.Title, Group: d.Group, HTML: html})
	}
	return out
}

// formValues flattens a JSON submission into the form inputs Render emits.
// Arrays become repeated values.
func formValues(in map[string]any) url.Values {
	form := make(url.Values, len(in))
	for k, v := range in {
		switch t := v.(type) {
		case []any:
			for _, e := range t {
				form.Add(k, scalar(e))
			}
			if len(t) == 0 {
				form[k] = []string{}
			}
		case []string:
			form[k] = append([]string{}, t...)
		default:
			form.Set(k, scalar(t))
		}
	}
	return form
}

var siblingSuffixes = []string{formelement.OtherSuffix, formelement.DeleteSuffix}

// submittedFields returns the field names present in form, sorted. Sibling
// inputs of a known field name that field.
func (e *Env) submittedFields(ctx context.Context, form url.Values) []string {
	seen := map[string]bool{}
	for k := range form {
		k = strings.TrimSuffix(k, "[]")
		if _, ok := e.definition(ctx, k); !ok {
			for _, suf := range siblingSuffixes {
				base := strings.TrimSuffix(k, suf)
				if base == k {
					continue
				}
				if _, ok := e.definition(ctx, base); ok {
					k = base
					break
				}
			}
		}
		seen[k] = true
	}
	out := make([]string, 0, len(seen))
	for k := range seen {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

func (e *Env) definition(ctx context.Context, name string) (*fielddef.Definition, bool) {
	if e.Registry == nil {
		return fielddef.Missing(name), false
	}
	return e.Registry.Get(ctx, name)
}

// Values parses a JSON submission into write values. Each field goes
// through its form element parser so that "other" text, upload delete
// flags, dates and numbers reach the writer in stored form. Captcha
// answers and their tokens pass through for the validator; unknown names
// pass through for the writer to report.
func (e *Env) Values(ctx context.Context, in map[string]any) (map[string]record.Value, error) {
	form := formValues(in)
	out := make(map[string]record.Value, len(form))
	verr := &record.ValidationError{}
	for _, name := range e.submittedFields(ctx, form) {
		def, ok := e.definition(ctx, name)
		if !ok || def.Type == fielddef.Captcha || e.Renderer == nil {
			out[name] = rawValue(form, name)
			continue
		}
		stored, err := e.Renderer.Parse(def, formelement.SubmissionFrom(form, name))
		if err != nil {
			verr.Errors = append(verr.Errors, record.FieldError{
				Field:   name,
				Rule:    record.RuleInvalidVal,
				Message: fmt.Sprintf("The %s value is not valid.", def.Title),
			})
			continue
		}
		if def.IsMulti() {
			out[name] = record.List(serial.Values(stored)...)
		} else {
			out[name] = record.Scalar(stored)
		}
	}
	if len(verr.Errors) > 0 {
		return nil, verr
	}
	return out, nil
}

func rawValue(form url.Values, name string) record.Value {
	if vals, ok := form[name+"[]"]; ok {
		return record.List(vals...)
	}
	vals := form[name]
	if len(vals) == 1 {
		return record.Scalar(vals[0])
	}
	return record.List(vals...)
}

func scalar(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case bool:
		if t {
			return "yes"
		}
		return ""
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	}
	return fmt.Sprint(v)
}

func (h *RecordHandler) update(ctx context.Context, in *updateInput) (*struct{}, error) {
	if !h.Env.can(ctx, capability.EditRecord, strconv.FormatInt(in.ID, 10)) {
		return nil, httpError(record.ErrForbidden)
	}
	values, err := h.Env.Values(ctx, in.Body.Values)
	if err != nil {
		return nil, httpError(err)
	}
	caller := record.Caller{Origin: record.OriginAPI}
	if err := h.Env.Writer.Update(ctx, in.ID, values, caller); err != nil {
		return nil, httpError(err)
	}
	return &struct{}{}, nil
}

func (h *RecordHandler) delete(ctx context.Context, in *recordIDInput) (*struct{}, error) {
	if !h.Env.can(ctx, capability.EditRecord, strconv.FormatInt(in.ID, 10)) {
		return nil, httpError(record.ErrForbidden)
	}
	if err := h.Env.Writer.Delete(ctx, in.ID); err != nil {
		return nil, httpError(err)
	}
	return &struct{}{}, nil
}

func (h *RecordHandler) bulk(ctx context.Context, in *bulkInput) (*bulkOutput, error) {
	var checker capability.Checker = capability.Deny{}
	if h.Env.Capability != nil {
		checker = h.Env.Capability
	}
	rep, err := h.Env.Writer.Bulk(ctx, record.Action(in.Body.Action), in.Body.IDs, checker)
	if err != nil {
		return nil, httpError(err)
	}
	out := schema.BulkResult{Done: rep.Done}
	if rep.Done == nil {
		out.Done = []int64{}
	}
	if len(rep.Failed) > 0 {
		out.Failed = make(map[int64]string, len(rep.Failed))
		for id, err := range rep.Failed {
			out.Failed[id] = err.Error()
		}
	}
	return &bulkOutput{Body: out}, nil
}
