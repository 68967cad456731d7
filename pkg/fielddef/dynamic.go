package fielddef

import (
	"regexp"
	"strings"
)

// DynamicContext resolves dynamic default expressions at render time.
type DynamicContext interface {
	// Property resolves object->prop lookups such as current_user->name.
	Property(object, prop string) (string, bool)
	// Var resolves SCOPE:KEY lookups such as SERVER:HTTP_HOST.
	Var(scope, key string) (string, bool)
}

var (
	propertyExpr = regexp.MustCompile(`^([A-Za-z_][A-Za-z0-9_]*)->([A-Za-z_][A-Za-z0-9_]*)$`)
	varExpr      = regexp.MustCompile(`^\$?(SERVER|GET|POST|REQUEST|COOKIE|SESSION):([A-Za-z0-9_\-.]+)$`)
)

// IsDynamicExpr reports whether s is a dynamic value expression.
func IsDynamicExpr(s string) bool {
	s = strings.TrimSpace(s)
	return propertyExpr.MatchString(s) || varExpr.MatchString(s)
}

// IsDynamic reports whether the field default is an expression.
func (d *Definition) IsDynamic() bool {
	return d != nil && IsDynamicExpr(d.Default)
}

// DefaultValue returns the default with dynamic expressions resolved
// against env. Expressions that cannot be resolved yield "".
func (d *Definition) DefaultValue(env DynamicContext) string {
	if d == nil {
		return ""
	}
	return ResolveDynamic(d.Default, env)
}

// ResolveDynamic evaluates expr when it is a dynamic expression and returns
// it unchanged otherwise.
func ResolveDynamic(expr string, env DynamicContext) string {
	s := strings.TrimSpace(expr)
	if m := propertyExpr.FindStringSubmatch(s); m != nil {
		if env == nil {
			return ""
		}
		v, _ := env.Property(m[1], m[2])
		return v
	}
	if m := varExpr.FindStringSubmatch(s); m != nil {
		if env == nil {
			return ""
		}
		v, _ := env.Var(m[1], m[2])
		return v
	}
	return expr
}

// MapContext is a DynamicContext backed by maps keyed "object->prop" and
// "SCOPE:KEY".
type MapContext map[string]string

func (m MapContext) Property(object, prop string) (string, bool) {
	v, ok := m[object+"->"+prop]
	return v, ok
}

func (m MapContext) Var(scope, key string) (string, bool) {
	v, ok := m[scope+":"+key]
	return v, ok
}
