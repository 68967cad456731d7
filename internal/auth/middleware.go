package auth

import (
	"net/http"
	"strings"

	"github.com/danielgtaylor/huma/v2"
	"github.com/danielgtaylor/huma/v2/adapters/humachi"

	"github.com/faciam-dev/gpdb/internal/logger"
	"github.com/faciam-dev/gpdb/pkg/capability"
)

const bearer = "bearer "

// BearerToken extracts the token from an Authorization header value. The
// scheme is matched case-insensitively.
func BearerToken(hdr string) (string, bool) {
	if len(hdr) < len(bearer) || !strings.EqualFold(hdr[:len(bearer)], bearer) {
		return "", false
	}
	tok := strings.TrimSpace(hdr[len(bearer):])
	return tok, tok != ""
}

// Middleware resolves the bearer token, when present, into a capability
// subject. Requests without a token continue anonymously; a token that
// fails validation is rejected with 401.
func Middleware(api huma.API, j *JWT) func(huma.Context, func(huma.Context)) {
	return func(ctx huma.Context, next func(huma.Context)) {
		hdr := ctx.Header("Authorization")
		if hdr == "" || j == nil {
			next(ctx)
			return
		}
		tok, ok := BearerToken(hdr)
		if !ok {
			deny(api, ctx, "invalid_request")
			return
		}
		claims, err := j.Validate(tok)
		if err != nil {
			logger.L.Debug("reject token", "path", ctx.URL().Path, "err", err)
			deny(api, ctx, "invalid_token")
			return
		}
		r, w := humachi.Unwrap(ctx)
		sub := capability.Subject{User: claims.Subject, Roles: claims.Roles}
		r = r.WithContext(capability.WithSubject(r.Context(), sub))
		next(humachi.NewContext(ctx.Operation(), r, w))
	}
}

func deny(api huma.API, ctx huma.Context, code string) {
	ctx.SetHeader("WWW-Authenticate", `Bearer realm="gpdb", error="`+code+`"`)
	huma.WriteErr(api, ctx, http.StatusUnauthorized, "unauthorized")
}
