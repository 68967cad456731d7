package schema

// SearchClause is one row of a search form.
type SearchClause struct {
	Field    string `json:"field"`
	Operator string `json:"operator,omitempty" doc:"=, !=, LIKE, NOT LIKE, gt, lt, gte, lte, word match"`
	Value    string `json:"value"`
	Logic    string `json:"logic,omitempty" enum:"AND,OR,and,or"`
}

// SearchRequest is the form search submitted against a list.
type SearchRequest struct {
	Instance int            `json:"instance,omitempty"`
	Clauses  []SearchClause `json:"clauses"`
	SortBy   string         `json:"sortBy,omitempty"`
	Order    string         `json:"ascdesc,omitempty" enum:"asc,desc,ASC,DESC"`
}

// Cell is one displayed value of a record.
type Cell struct {
	Value string `json:"value"`
	HTML  string `json:"html"`
}

// Row is one record of a list page.
type Row struct {
	ID    int64           `json:"id"`
	Cells map[string]Cell `json:"cells"`
}

// RecordList is one page of a list.
type RecordList struct {
	List       string   `json:"list"`
	Columns    []string `json:"columns"`
	Rows       []Row    `json:"rows"`
	Total      int64    `json:"total"`
	Page       int      `json:"page"`
	Pages      int      `json:"pages"`
	Limit      int      `json:"limit"`
	Searching  bool     `json:"searching"`
	Suppressed bool     `json:"suppressed"`
	Summary    string   `json:"summary"`
}
