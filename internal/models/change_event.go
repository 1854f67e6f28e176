package models

// Change operation types.
const (
	ChangeCreate = "create"
	ChangeUpdate = "update"
	ChangeDelete = "delete"
)

// Kinds of changed entities.
const (
	KindTable  = "table"
	KindField  = "field"
	KindRecord = "record"
)

// Placeholders used where upstream omits a name or description.
const (
	Untitled    = "<Untitled>"
	Undescribed = "<Undescribed>"
)

// ResourceAddress fully qualifies a changed entity within a base.
// FieldID and RecordID are null unless the kind requires them.
type ResourceAddress struct {
	Kind     string  `json:"kind"`
	BaseID   string  `json:"resourceId"`
	TableID  string  `json:"tableId"`
	FieldID  *string `json:"fieldId"`
	RecordID *string `json:"recordId"`
}

// ChangeEvent is the normalized unit of change fanned out to subscribers.
// Data is nil exactly when Type is "delete".
type ChangeEvent struct {
	Type            string          `json:"type"`
	ResourceAddress ResourceAddress `json:"resourceAddress"`
	Data            any             `json:"data"`
}

// ChangeBatch is one ordered set of change events derived from one raw
// webhook payload page. Number is the upstream base transaction number;
// batches are delivered in non-decreasing Number order.
type ChangeBatch struct {
	Number    int64         `json:"sequenceNumber"`
	Timestamp int64         `json:"timestamp"`
	Changes   []ChangeEvent `json:"changes"`
}
