// Package handler exposes lists, records, signup and field definitions over
// huma operations.
package handler

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/danielgtaylor/huma/v2"
	ormdriver "github.com/faciam-dev/goquent/orm/driver"

	"github.com/faciam-dev/gpdb/pkg/capability"
	"github.com/faciam-dev/gpdb/pkg/fielddef"
	"github.com/faciam-dev/gpdb/pkg/filter"
	"github.com/faciam-dev/gpdb/pkg/formelement"
	"github.com/faciam-dev/gpdb/pkg/hooks"
	"github.com/faciam-dev/gpdb/pkg/i18n"
	"github.com/faciam-dev/gpdb/pkg/listquery"
	"github.com/faciam-dev/gpdb/pkg/record"
	"github.com/faciam-dev/gpdb/pkg/session"
	"github.com/faciam-dev/gpdb/pkg/settings"
)

// SessionCookie names the visitor session cookie.
const SessionCookie = "pdb_session"

// Env carries the collaborators shared by the handlers.
type Env struct {
	DB          *sql.DB
	Dialect     ormdriver.Dialect
	TablePrefix string
	Registry    *fielddef.Registry
	Sessions    session.Store
	Settings    settings.Store
	Hooks       *hooks.Set
	Translator  i18n.Translator
	Renderer    *formelement.Renderer
	Writer      *record.Writer
	Capability  capability.Checker
	Style       *filter.RegexpStyle
	// Lists resolves a named list configuration.
	Lists func(name string) listquery.Config
}

func (e *Env) can(ctx context.Context, cap, scope string) bool {
	return e.Capability != nil && e.Capability.Can(ctx, cap, scope)
}

func (e *Env) sessionTTL() time.Duration {
	return time.Duration(settings.Int(e.Settings, settings.SearchSessionTTL, int(listquery.DefaultSessionTTL/time.Minute))) * time.Minute
}

// visitor returns the session id from the cookie or a fresh one, and the
// cookie to send back.
func (e *Env) visitor(id string) (string, http.Cookie) {
	if id == "" {
		id = session.NewID()
	}
	return id, http.Cookie{
		Name:     SessionCookie,
		Value:    id,
		Path:     "/",
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
		MaxAge:   int(e.sessionTTL().Seconds()),
	}
}

// httpError maps core errors onto huma status errors.
func httpError(err error) error {
	var verr *record.ValidationError
	switch {
	case err == nil:
		return nil
	case errors.As(err, &verr):
		details := make([]error, 0, len(verr.Errors))
		for _, fe := range verr.Errors {
			details = append(details, &huma.ErrorDetail{
				Message:  fe.Message,
				Location: "body.values." + fe.Field,
				Value:    fe.Rule,
			})
		}
		return huma.Error422UnprocessableEntity("validation failed", details...)
	case errors.Is(err, record.ErrNotFound), errors.Is(err, fielddef.ErrNotFound):
		return huma.Error404NotFound("record not found")
	case errors.Is(err, record.ErrForbidden):
		return huma.Error403Forbidden("forbidden")
	case errors.Is(err, record.ErrVetoed), errors.Is(err, listquery.ErrVetoed):
		return huma.Error409Conflict(err.Error())
	}
	return huma.Error500InternalServerError(fmt.Sprintf("internal error: %v", err))
}
