package schema

// Option is one title/value pair of a selector field.
type Option struct {
	Title string `json:"title"`
	Value string `json:"value"`
}

// Field is the public view of a field definition.
type Field struct {
	Name       string   `json:"name"`
	Title      string   `json:"title"`
	Type       string   `json:"formElement"`
	Group      string   `json:"group"`
	Order      int      `json:"order"`
	Validation string   `json:"validation,omitempty"`
	HelpText   string   `json:"helpText,omitempty"`
	Options    []Option `json:"options,omitempty"`
	Sortable   bool     `json:"sortable"`
	Signup     bool     `json:"signup"`
	Readonly   bool     `json:"readonly"`
	StoresData bool     `json:"storesData"`
}
