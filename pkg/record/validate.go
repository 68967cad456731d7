package record

import (
	"context"
	"errors"
	"regexp"
	"strconv"
	"strings"
	"sync"

	"github.com/faciam-dev/gpdb/pkg/fielddef"
	"github.com/faciam-dev/gpdb/pkg/formelement"
	"github.com/faciam-dev/gpdb/pkg/i18n"
	"github.com/faciam-dev/gpdb/pkg/metrics"
)

// ErrValidation is matched by every *ValidationError.
var ErrValidation = errors.New("record: validation failed")

// Validation rule names.
const (
	RuleRequired   = "required"
	RulePattern    = "pattern"
	RuleEmail      = "email"
	RuleMatch      = "match"
	RuleCaptcha    = "captcha"
	RuleNumeric    = "numeric"
	RuleInvalidVal = "invalid"
)

// FieldError is one failed rule.
type FieldError struct {
	Field   string `json:"field"`
	Rule    string `json:"rule"`
	Message string `json:"message"`
}

// ValidationError holds the failures of one submission in field order.
type ValidationError struct {
	Errors []FieldError
}

func (e *ValidationError) Error() string {
	parts := make([]string, len(e.Errors))
	for i, fe := range e.Errors {
		parts[i] = fe.Field + ": " + fe.Message
	}
	return "validation failed: " + strings.Join(parts, "; ")
}

func (e *ValidationError) Is(target error) bool { return target == ErrValidation }

// Field returns the failure recorded for name.
func (e *ValidationError) Field(name string) (FieldError, bool) {
	for _, fe := range e.Errors {
		if fe.Field == name {
			return fe, true
		}
	}
	return FieldError{}, false
}

func (e *ValidationError) add(def *fielddef.Definition, rule, msg string) {
	metrics.ValidationFailures.WithLabelValues(def.Name, rule).Inc()
	e.Errors = append(e.Errors, FieldError{Field: def.Name, Rule: rule, Message: msg})
}

var emailPattern = regexp.MustCompile(`^[A-Za-z0-9._%+\-']+@[A-Za-z0-9.\-]+\.[A-Za-z]{2,}$`)

// Validator checks submissions against field validation rules.
type Validator struct {
	Translator i18n.Translator
	Captcha    formelement.CaptchaVerifier

	mu       sync.Mutex
	compiled map[string]*regexp.Regexp
}

// NewValidator returns a validator translating messages with tr.
func NewValidator(tr i18n.Translator, c formelement.CaptchaVerifier) *Validator {
	return &Validator{Translator: tr, Captcha: c}
}

func (v *Validator) tr() i18n.Translator {
	if v.Translator == nil {
		return i18n.Identity{}
	}
	return v.Translator
}

// ParsePattern compiles a delimited pattern such as /^\d+$/i. Undelimited
// patterns are compiled as is.
func ParsePattern(s string) (*regexp.Regexp, error) {
	s = strings.TrimSpace(s)
	if len(s) >= 2 && strings.IndexByte(patternDelimiters, s[0]) >= 0 {
		delim := s[0]
		end := strings.LastIndexByte(s, delim)
		if end > 0 {
			body, flags := s[1:end], s[end+1:]
			var prefix string
			for _, f := range flags {
				switch f {
				case 'i', 'm', 's':
					prefix += string(f)
				case 'u', 'x', 'D':
				default:
					return nil, errors.New("unsupported pattern flag " + strconv.QuoteRune(f))
				}
			}
			if prefix != "" {
				body = "(?" + prefix + ")" + body
			}
			return regexp.Compile(body)
		}
	}
	return regexp.Compile(s)
}

const patternDelimiters = "/#~!@%|"

func (v *Validator) pattern(s string) (*regexp.Regexp, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if re, ok := v.compiled[s]; ok {
		return re, nil
	}
	re, err := ParsePattern(s)
	if err != nil {
		return nil, err
	}
	if v.compiled == nil {
		v.compiled = map[string]*regexp.Regexp{}
	}
	v.compiled[s] = re
	return re, nil
}

func (v *Validator) message(def *fielddef.Definition, format string) string {
	if def.ValidationMessage != "" {
		return v.tr().T(def.ValidationMessage)
	}
	title := def.Title
	if title == "" {
		title = def.Name
	}
	return i18n.Sprintf(v.tr(), format, v.tr().T(title))
}

// Validate checks values against each definition. A rule naming another
// field requires both values to match. Captcha rules read the challenge
// token from the field name suffixed with formelement.TokenSuffix.
func (v *Validator) Validate(_ context.Context, defs []*fielddef.Definition, values map[string]string) error {
	byName := make(map[string]*fielddef.Definition, len(defs))
	for _, d := range defs {
		byName[d.Name] = d
	}
	verr := &ValidationError{}
	for _, def := range defs {
		val := strings.TrimSpace(values[def.Name])
		rule := strings.TrimSpace(def.Validation)
		if def.Type == fielddef.Captcha || rule == "captcha" {
			if v.Captcha == nil || !v.Captcha.Verify(values[def.Name+formelement.TokenSuffix], val) {
				verr.add(def, RuleCaptcha, v.message(def, "The %s answer is incorrect."))
			}
			continue
		}
		if other, ok := byName[rule]; ok && other.Name != def.Name {
			if val != strings.TrimSpace(values[other.Name]) {
				verr.add(def, RuleMatch, v.message(def, "The %s field must match."))
			}
			continue
		}
		switch strings.ToLower(rule) {
		case "", "no", "none":
		case "yes", "required":
			if val == "" {
				verr.add(def, RuleRequired, v.message(def, "The %s field is required."))
				continue
			}
		case "email-regex", "email":
			if !emailPattern.MatchString(val) {
				verr.add(def, RuleEmail, v.message(def, "The %s field must be an email address."))
				continue
			}
		default:
			re, err := v.pattern(rule)
			if err != nil {
				continue
			}
			if !re.MatchString(val) {
				verr.add(def, RulePattern, v.message(def, "The %s field is not valid."))
				continue
			}
		}
		if val != "" && def.IsNumeric() && !def.IsDate() && numeric(val) == nil {
			verr.add(def, RuleNumeric, v.message(def, "The %s field must be a number."))
		}
	}
	if len(verr.Errors) > 0 {
		return verr
	}
	return nil
}
