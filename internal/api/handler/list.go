package handler

import (
	"context"
	"net/http"
	"net/url"
	"strconv"

	"github.com/danielgtaylor/huma/v2"

	"github.com/faciam-dev/gpdb/internal/api/schema"
	"github.com/faciam-dev/gpdb/pkg/fielddef"
	"github.com/faciam-dev/gpdb/pkg/formelement"
	"github.com/faciam-dev/gpdb/pkg/listquery"
	"github.com/faciam-dev/gpdb/pkg/session"
)

// ListHandler serves list views.
type ListHandler struct {
	Env *Env
}

type listInput struct {
	List    string `path:"list"`
	Session string `cookie:"pdb_session"`
	query   url.Values
}

// Resolve keeps the raw query so array parameters such as search_field[]
// reach the list merge unchanged.
func (in *listInput) Resolve(ctx huma.Context) []error {
	u := ctx.URL()
	in.query = u.Query()
	return nil
}

type searchInput struct {
	List    string `path:"list"`
	Session string `cookie:"pdb_session"`
	Body    schema.SearchRequest
}

type listOutput struct {
	SetCookie http.Cookie `header:"Set-Cookie"`
	Body      schema.RecordList
}

// RegisterLists registers list endpoints.
func RegisterLists(api huma.API, h *ListHandler) {
	huma.Register(api, huma.Operation{
		OperationID: "listRecords",
		Method:      http.MethodGet,
		Path:        "/v1/lists/{list}/records",
		Summary:     "List records",
		Tags:        []string{"List"},
	}, h.records)
	huma.Register(api, huma.Operation{
		OperationID: "searchRecords",
		Method:      http.MethodPost,
		Path:        "/v1/lists/{list}/search",
		Summary:     "Search a list",
		Tags:        []string{"List"},
	}, h.search)
}

func (h *ListHandler) query(ctx context.Context, name, visitor string) *listquery.Query {
	e := h.Env
	cfg := listquery.Config{Name: name}
	if e.Lists != nil {
		cfg = e.Lists(name)
	}
	deps := listquery.Deps{
		DB:          e.DB,
		Registry:    e.Registry,
		Session:     session.ForVisitor(e.Sessions, visitor),
		Settings:    e.Settings,
		Hooks:       e.Hooks,
		Translator:  e.Translator,
		Dialect:     e.Dialect,
		TablePrefix: e.TablePrefix,
		Style:       e.Style,
	}
	return listquery.New(ctx, deps, cfg)
}

func (h *ListHandler) records(ctx context.Context, in *listInput) (*listOutput, error) {
	visitor, cookie := h.Env.visitor(in.Session)
	q := h.query(ctx, in.List, visitor)
	if err := q.MergeFilters(ctx, h.shortcode(in.List), in.query, nil); err != nil {
		return nil, httpError(err)
	}
	return h.page(ctx, in.List, q, cookie)
}

func (h *ListHandler) search(ctx context.Context, in *searchInput) (*listOutput, error) {
	visitor, cookie := h.Env.visitor(in.Session)
	q := h.query(ctx, in.List, visitor)
	if err := q.MergeFilters(ctx, h.shortcode(in.List), nil, SearchValues(in.Body)); err != nil {
		return nil, httpError(err)
	}
	return h.page(ctx, in.List, q, cookie)
}

func (h *ListHandler) shortcode(name string) string {
	if h.Env.Lists == nil {
		return ""
	}
	return h.Env.Lists(name).Filter
}

// SearchValues encodes a search request the way a submitted search form
// posts it.
func SearchValues(req schema.SearchRequest) url.Values {
	v := url.Values{}
	for _, c := range req.Clauses {
		v.Add("search_field[]", c.Field)
		v.Add("operator[]", c.Operator)
		v.Add("value[]", c.Value)
		v.Add("logic[]", c.Logic)
	}
	if req.Instance != 0 {
		v.Set("target_instance", strconv.Itoa(req.Instance))
	}
	if req.SortBy != "" {
		v.Set("sortBy", req.SortBy)
		v.Set("ascdesc", req.Order)
	}
	v.Set("submit", "search")
	return v
}

func (h *ListHandler) page(ctx context.Context, name string, q *listquery.Query, cookie http.Cookie) (*listOutput, error) {
	res, err := q.Run(ctx, h.Env.DB)
	if err != nil {
		return nil, httpError(err)
	}
	out := schema.RecordList{
		List:       name,
		Columns:    res.Columns,
		Total:      res.Total,
		Page:       res.Page,
		Pages:      res.Pages(),
		Limit:      res.Limit,
		Searching:  q.Searching(),
		Suppressed: q.Suppressed(),
		Summary:    q.Summary(res.Total),
		Rows:       make([]schema.Row, 0, len(res.Records)),
	}
	defs := make(map[string]*fielddef.Definition, len(res.Columns))
	for _, c := range res.Columns {
		if d, ok := h.Env.Registry.Get(ctx, c); ok {
			defs[c] = d
		}
	}
	for _, rec := range res.Records {
		id, _ := strconv.ParseInt(rec[fielddef.FieldID], 10, 64)
		row := schema.Row{ID: id, Cells: make(map[string]schema.Cell, len(rec))}
		for c, v := range rec {
			cell := schema.Cell{Value: v}
			if d := defs[c]; d != nil && h.Env.Renderer != nil {
				cell.HTML = h.Env.Renderer.Display(d, v, formelement.DisplayOptions{})
			}
			row.Cells[c] = cell
		}
		out.Rows = append(out.Rows, row)
	}
	return &listOutput{SetCookie: cookie, Body: out}, nil
}
