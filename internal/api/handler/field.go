package handler

import (
	"context"
	"net/http"

	"github.com/danielgtaylor/huma/v2"

	"github.com/faciam-dev/gpdb/internal/api/schema"
	"github.com/faciam-dev/gpdb/pkg/fielddef"
)

// FieldHandler lists field definitions.
type FieldHandler struct {
	Env *Env
}

type fieldsInput struct {
	Group string `query:"group"`
}

type fieldsOutput struct{ Body []schema.Field }

// RegisterFields registers field endpoints.
func RegisterFields(api huma.API, h *FieldHandler) {
	huma.Register(api, huma.Operation{
		OperationID: "listFields",
		Method:      http.MethodGet,
		Path:        "/v1/fields",
		Summary:     "List field definitions",
		Tags:        []string{"Field"},
	}, h.list)
}

// FieldSchema converts a definition into its public view.
func FieldSchema(d *fielddef.Definition) schema.Field {
	f := schema.Field{
		Name:       d.Name,
		Title:      d.Title,
		Type:       string(d.Type),
		Group:      d.Group,
		Order:      d.Order,
		Validation: d.Validation,
		HelpText:   d.HelpText,
		Sortable:   d.Sortable,
		Signup:     d.Signup,
		Readonly:   d.IsReadonly(),
		StoresData: d.StoresData(),
	}
	if d.IsValueSet() {
		for _, o := range d.SelectOptions() {
			f.Options = append(f.Options, schema.Option{Title: o.Title, Value: o.Value})
		}
	}
	return f
}

func (h *FieldHandler) list(ctx context.Context, in *fieldsInput) (*fieldsOutput, error) {
	defs, err := h.Env.Registry.Filter(ctx, func(d *fielddef.Definition) bool {
		return in.Group == "" || d.Group == in.Group
	})
	if err != nil {
		return nil, httpError(err)
	}
	out := make([]schema.Field, 0, len(defs))
	for _, d := range defs {
		out = append(out, FieldSchema(d))
	}
	return &fieldsOutput{Body: out}, nil
}
