package formelement

import (
	"fmt"
	"path"
	"strconv"
	"strings"

	"golang.org/x/net/html"

	"github.com/faciam-dev/gpdb/pkg/fielddef"
	"github.com/faciam-dev/gpdb/pkg/settings"
)

// DefaultUploadLimit is the upload size guidance in KB.
const DefaultUploadLimit = 100

type uploadElement struct {
	image bool
}

// allowed returns the extensions permitted by the "allowed" attribute.
func allowed(def *fielddef.Definition) []string {
	var out []string
	for _, ext := range strings.FieldsFunc(def.Attr("allowed"), func(r rune) bool { return r == ',' || r == '|' || r == ' ' }) {
		out = append(out, strings.ToLower(strings.TrimPrefix(ext, ".")))
	}
	return out
}

func (r *Renderer) fileURL(name string) string {
	if r.FileURL != nil {
		return r.FileURL(name)
	}
	return name
}

func (e uploadElement) Render(r *Renderer, def *fielddef.Definition, value string, opt Options) []*html.Node {
	name := inputName(def, opt, false)
	limit := settings.Int(r.Settings, settings.ImageUploadLimit, DefaultUploadLimit)
	nodes := []*html.Node{hidden("MAX_FILE_SIZE", strconv.Itoa(limit*1024))}

	file := input(def, opt, "file", name)
	if exts := allowed(def); len(exts) > 0 {
		accept := make([]string, len(exts))
		for i, x := range exts {
			accept[i] = "." + x
		}
		setAttr(file, "accept", strings.Join(accept, ","))
	} else if e.image {
		setAttr(file, "accept", "image/*")
	}
	nodes = append(nodes, file)
	if value == "" {
		return nodes
	}
	nodes = append(nodes, hidden(name, value))
	nodes = append(nodes, withChildren(elem("span", attr("class", "pdb-upload-current")), e.Display(r, def, value, DisplayOptions{})...))
	if settings.Bool(r.Settings, settings.AllowRecordDeleteFile, false) {
		box := elem("input", attr("type", "checkbox"), attr("name", name+DeleteSuffix), attr("value", "1"))
		nodes = append(nodes, label(box, text(" "+r.t("delete"))))
	}
	return nodes
}

func (e uploadElement) Display(r *Renderer, def *fielddef.Definition, value string, _ DisplayOptions) []*html.Node {
	if value == "" {
		return nil
	}
	src := r.fileURL(value)
	if e.image {
		return []*html.Node{elem("img", attr("src", src), attr("alt", r.t(def.Title)))}
	}
	return []*html.Node{withChildren(elem("a", attr("href", src)), text(value))}
}

// Parse keeps the stored file name. The delete flag clears it.
func (uploadElement) Parse(_ *Renderer, def *fielddef.Definition, sub Submission) (string, error) {
	if sub.Delete {
		return "", nil
	}
	v := strings.TrimSpace(sub.Last())
	if v == "" {
		return "", nil
	}
	v = path.Base(strings.ReplaceAll(v, `\`, "/"))
	if v == "." || v == "/" || v == ".." {
		return "", fmt.Errorf("%w: file name", ErrInvalidValue)
	}
	if exts := allowed(def); len(exts) > 0 {
		ext := strings.ToLower(strings.TrimPrefix(path.Ext(v), "."))
		ok := false
		for _, x := range exts {
			if x == ext {
				ok = true
				break
			}
		}
		if !ok {
			return "", fmt.Errorf("%w: file type %q not allowed", ErrInvalidValue, ext)
		}
	}
	return v, nil
}
