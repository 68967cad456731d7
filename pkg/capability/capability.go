// Package capability answers "may this caller do X" questions for the core.
package capability

import (
	"context"

	"github.com/casbin/casbin/v2"
	"github.com/casbin/casbin/v2/model"
)

// Capabilities consulted by the core.
const (
	EditReadonly = "edit_readonly"
	EditRecord   = "record_edit"
	BulkAction   = "record_bulk"
	ExportCSV    = "csv_export"
	ManageFields = "manage_fields"
)

// Checker is implemented by authorization backends.
type Checker interface {
	Can(ctx context.Context, capability, scope string) bool
}

// Subject identifies the caller whose capabilities are checked.
type Subject struct {
	User  string
	Roles []string
}

type subjectKey struct{}

// WithSubject stores s in ctx.
func WithSubject(ctx context.Context, s Subject) context.Context {
	return context.WithValue(ctx, subjectKey{}, s)
}

// SubjectFrom returns the subject stored in ctx.
func SubjectFrom(ctx context.Context) Subject {
	s, _ := ctx.Value(subjectKey{}).(Subject)
	return s
}

// Casbin checks capabilities against a casbin enforcer where policies are
// (role, scope, capability) triples. A scope of "*" matches any.
type Casbin struct {
	Enf *casbin.Enforcer
}

// NewModel returns the casbin model used for capability policies.
func NewModel() model.Model {
	m := model.NewModel()
	m.AddDef("r", "r", "sub, obj, act")
	m.AddDef("p", "p", "sub, obj, act")
	m.AddDef("g", "g", "_, _")
	m.AddDef("e", "e", "some(where (p.eft == allow))")
	m.AddDef("m", "m", "g(r.sub, p.sub) && (r.obj == p.obj || p.obj == \"*\") && (r.act == p.act || p.act == \"*\")")
	return m
}

// NewCasbin builds an enforcer with the default policy: admins may do
// everything, editors may edit records and run bulk actions.
func NewCasbin() (*Casbin, error) {
	e, err := casbin.NewEnforcer(NewModel())
	if err != nil {
		return nil, err
	}
	e.AddPolicy("admin", "*", "*")
	e.AddPolicy("editor", "*", EditRecord)
	e.AddPolicy("editor", "*", BulkAction)
	e.AddPolicy("editor", "*", ExportCSV)
	return &Casbin{Enf: e}, nil
}

// Can reports whether the subject in ctx holds capability in scope.
func (c *Casbin) Can(ctx context.Context, capability, scope string) bool {
	if c == nil || c.Enf == nil {
		return false
	}
	if scope == "" {
		scope = "*"
	}
	s := SubjectFrom(ctx)
	subjects := make([]string, 0, len(s.Roles)+1)
	if s.User != "" {
		subjects = append(subjects, s.User)
	}
	subjects = append(subjects, s.Roles...)
	for _, sub := range subjects {
		if ok, _ := c.Enf.Enforce(sub, scope, capability); ok {
			return true
		}
	}
	return false
}

// Allow is a Checker granting every capability.
type Allow struct{}

func (Allow) Can(context.Context, string, string) bool { return true }

// Deny is a Checker refusing every capability.
type Deny struct{}

func (Deny) Can(context.Context, string, string) bool { return false }
