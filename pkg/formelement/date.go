package formelement

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"golang.org/x/net/html"

	"github.com/faciam-dev/gpdb/pkg/datefmt"
	"github.com/faciam-dev/gpdb/pkg/fielddef"
	"github.com/faciam-dev/gpdb/pkg/settings"
)

// TimestampLayout is the stored form of timestamp columns, always UTC.
const TimestampLayout = "2006-01-02 15:04:05"

type dateElement struct{}

func (r *Renderer) inputFormat() string {
	return settings.String(r.Settings, settings.InputDateFormat, datefmt.DefaultFormat)
}

func (r *Renderer) displayFormat(def *fielddef.Definition) string {
	f := settings.String(r.Settings, settings.DateFormat, "")
	if f == "" {
		f = r.inputFormat()
	}
	if def.Type == fielddef.Timestamp {
		f += " H:i"
	}
	return f
}

func (dateElement) Render(r *Renderer, def *fielddef.Definition, value string, opt Options) []*html.Node {
	n := input(def, opt, "text", inputName(def, opt, false))
	if epoch, ok := datefmt.Epoch(value); ok {
		format := r.inputFormat()
		if def.Type == fielddef.Timestamp {
			format += " H:i:s"
		}
		setAttr(n, "value", datefmt.Format(epoch, format, r.location()))
	} else {
		setAttr(n, "value", "")
	}
	if def.Type == fielddef.Timestamp && !timestampEditable(r, def, opt) {
		flag(n, "disabled")
	}
	return []*html.Node{n}
}

func timestampEditable(r *Renderer, def *fielddef.Definition, opt Options) bool {
	return opt.Editable || def.AttrBool("editable") || settings.Bool(r.Settings, settings.ReadonlyTimestampsEditable, false)
}

func (dateElement) Display(r *Renderer, def *fielddef.Definition, value string, _ DisplayOptions) []*html.Node {
	epoch, ok := datefmt.Epoch(value)
	if !ok {
		return nil
	}
	return []*html.Node{text(datefmt.Format(epoch, r.displayFormat(def), r.location()))}
}

// Parse stores dates as epoch seconds and timestamps as UTC datetimes.
func (dateElement) Parse(r *Renderer, def *fielddef.Definition, sub Submission) (string, error) {
	term := strings.TrimSpace(sub.Last())
	if term == "" {
		return "", nil
	}
	t, err := datefmt.Parse(term, r.inputFormat(), r.location())
	if err != nil {
		return "", fmt.Errorf("%w: date %q: %w", ErrInvalidValue, term, err)
	}
	if def.Type == fielddef.Timestamp {
		return t.UTC().Format(TimestampLayout), nil
	}
	return strconv.FormatInt(t.Unix(), 10), nil
}

// FormatTimestamp renders t as a stored timestamp value.
func FormatTimestamp(t time.Time) string { return t.UTC().Format(TimestampLayout) }
