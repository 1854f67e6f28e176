package models

// Field is a projection of an Airtable field definition.
type Field struct {
	ID          string         `json:"id"`
	Name        string         `json:"name"`
	Description string         `json:"description,omitempty"`
	Type        string         `json:"type,omitempty"`
	Options     map[string]any `json:"options,omitempty"`
}

// Record holds cell values keyed by field id. CreatedTime is epoch millis.
type Record struct {
	ID          string         `json:"id"`
	CreatedTime int64          `json:"createdTime,omitempty"`
	Cells       map[string]any `json:"cells"`
}

// Table is a snapshot projection of one table: fields and records keyed
// by id, plus the primary field when it could be resolved.
type Table struct {
	ID           string            `json:"id"`
	Name         string            `json:"name"`
	Description  string            `json:"description"`
	PrimaryField *Field            `json:"primaryField,omitempty"`
	Fields       map[string]Field  `json:"fields"`
	Records      map[string]Record `json:"records"`
}

// Base is a snapshot of a whole base. Snapshots are fetched on demand
// and never persisted.
type Base struct {
	ID     string           `json:"id"`
	Name   string           `json:"name"`
	Tables map[string]Table `json:"tables"`
}

// TableMetadata is the data payload of a table update event.
type TableMetadata struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
}

// RecordUpdate is the data payload of a record update event.
type RecordUpdate struct {
	ID    string         `json:"id"`
	Cells map[string]any `json:"cells"`
}
