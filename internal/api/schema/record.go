package schema

// Record is a stored participant record.
type Record struct {
	ID        int64             `json:"id"`
	PrivateID string            `json:"privateId,omitempty"`
	Values    map[string]string `json:"values"`
}

// WriteRecord carries submitted field values. A list value is written for a
// multi value field.
type WriteRecord struct {
	Values map[string]any `json:"values"`
}

// Form is a rendered record form.
type Form struct {
	Fields []FormField `json:"fields"`
}

// FormField is the markup of one field in a form.
type FormField struct {
	Name  string `json:"name"`
	Title string `json:"title"`
	Group string `json:"group"`
	HTML  string `json:"html"`
}

// BulkRequest applies one action to many records.
type BulkRequest struct {
	Action string  `json:"action" enum:"delete,approve,unapprove"`
	IDs    []int64 `json:"ids" minItems:"1"`
}

// BulkResult lists the outcome of a bulk action.
type BulkResult struct {
	Done   []int64          `json:"done"`
	Failed map[int64]string `json:"failed,omitempty"`
}
