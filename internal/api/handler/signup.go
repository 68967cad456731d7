package handler

import (
	"context"
	"net/http"

	"github.com/danielgtaylor/huma/v2"

	"github.com/faciam-dev/gpdb/internal/api/schema"
	"github.com/faciam-dev/gpdb/pkg/record"
)

// SignupHandler serves the public signup form.
type SignupHandler struct {
	Env *Env
}

type signupInput struct{ Body schema.WriteRecord }

type signupOutput struct{ Body schema.Record }

// RegisterSignup registers signup endpoints.
func RegisterSignup(api huma.API, h *SignupHandler) {
	huma.Register(api, huma.Operation{
		OperationID: "getSignupForm",
		Method:      http.MethodGet,
		Path:        "/v1/signup/form",
		Summary:     "Render signup form",
		Tags:        []string{"Signup"},
	}, h.form)
	huma.Register(api, huma.Operation{
		OperationID:   "signup",
		Method:        http.MethodPost,
		Path:          "/v1/signup",
		Summary:       "Create a record from the signup form",
		Tags:          []string{"Signup"},
		DefaultStatus: http.StatusCreated,
	}, h.signup)
}

func (h *SignupHandler) form(ctx context.Context, _ *struct{}) (*formOutput, error) {
	defs, err := h.Env.Registry.SignupFields(ctx)
	if err != nil {
		return nil, httpError(err)
	}
	return &formOutput{Body: renderForm(h.Env.Renderer, defs, nil, false, true)}, nil
}

func (h *SignupHandler) signup(ctx context.Context, in *signupInput) (*signupOutput, error) {
	values, err := h.Env.Values(ctx, in.Body.Values)
	if err != nil {
		return nil, httpError(err)
	}
	id, err := h.Env.Writer.Insert(ctx, values, record.Caller{Origin: record.OriginSignup})
	if err != nil {
		return nil, httpError(err)
	}
	rec, err := h.Env.Writer.Get(ctx, id)
	if err != nil {
		return &signupOutput{Body: schema.Record{ID: id}}, nil
	}
	return &signupOutput{Body: toSchema(rec)}, nil
}
