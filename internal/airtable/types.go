package airtable

// WebhookInfo is one entry of the list-webhooks response.
type WebhookInfo struct {
	ID                      string  `json:"id"`
	AreNotificationsEnabled bool    `json:"areNotificationsEnabled"`
	CursorForNextPayload    int64   `json:"cursorForNextPayload"`
	IsHookEnabled           bool    `json:"isHookEnabled"`
	NotificationURL         *string `json:"notificationUrl"`
	ExpirationTime          *string `json:"expirationTime,omitempty"`
}

// CreatedWebhook is the create-webhook response. The MAC secret cannot
// be retrieved again after creation.
type CreatedWebhook struct {
	ID              string  `json:"id"`
	MACSecretBase64 string  `json:"macSecretBase64"`
	ExpirationTime  *string `json:"expirationTime,omitempty"`
}

// RefreshedWebhook is the refresh-webhook response.
type RefreshedWebhook struct {
	ExpirationTime *string `json:"expirationTime"`
}

// TableMetadata carries a table's name/description in payloads. Both are
// optional: a metadata diff lists only what changed.
type TableMetadata struct {
	Name        *string `json:"name,omitempty"`
	Description *string `json:"description,omitempty"`
}

// MetadataDiff is the changedMetadata shape of a changed table.
type MetadataDiff struct {
	Current  TableMetadata `json:"current"`
	Previous TableMetadata `json:"previous"`
}

// CreateFieldSpec describes a created field. The creation notification
// omits the field's options; those resolve from a schema snapshot.
type CreateFieldSpec struct {
	Name string `json:"name"`
	Type string `json:"type,omitempty"`
}

// ChangeFieldSpec describes a changed field as a current/previous pair.
type ChangeFieldSpec struct {
	Current  CreateFieldSpec  `json:"current"`
	Previous *CreateFieldSpec `json:"previous,omitempty"`
}

// CreateRecordSpec describes a created record.
type CreateRecordSpec struct {
	CreatedTime         string         `json:"createdTime"`
	CellValuesByFieldID map[string]any `json:"cellValuesByFieldId"`
}

// ChangeRecordSpec describes a changed record's cell values.
type ChangeRecordSpec struct {
	Current  map[string]any `json:"current"`
	Previous map[string]any `json:"previous,omitempty"`
}

// CreateTableSpec describes a created table, with whatever field and
// record specs the payload chose to embed.
type CreateTableSpec struct {
	Metadata    *TableMetadata              `json:"metadata,omitempty"`
	FieldsByID  map[string]CreateFieldSpec  `json:"fieldsById,omitempty"`
	RecordsByID map[string]CreateRecordSpec `json:"recordsById,omitempty"`
}

// ChangeTableSpec describes everything that changed within one table.
// All collections are optional; an entry with no metadata diff must not
// produce a table update event.
type ChangeTableSpec struct {
	ChangedMetadata    *MetadataDiff               `json:"changedMetadata,omitempty"`
	CreatedFieldsByID  map[string]CreateFieldSpec  `json:"createdFieldsById,omitempty"`
	ChangedFieldsByID  map[string]ChangeFieldSpec  `json:"changedFieldsById,omitempty"`
	DestroyedFieldIDs  []string                    `json:"destroyedFieldIds,omitempty"`
	CreatedRecordsByID map[string]CreateRecordSpec `json:"createdRecordsById,omitempty"`
	ChangedRecordsByID map[string]ChangeRecordSpec `json:"changedRecordsById,omitempty"`
	DestroyedRecordIDs []string                    `json:"destroyedRecordIds,omitempty"`
}

// WebhookPayload is one raw change payload page from the pending queue.
// BaseTransactionNumber is the monotonic per-base sequence number.
type WebhookPayload struct {
	BaseTransactionNumber int64                      `json:"baseTransactionNumber"`
	PayloadFormat         string                     `json:"payloadFormat"`
	Timestamp             string                     `json:"timestamp"`
	CreatedTablesByID     map[string]CreateTableSpec `json:"createdTablesById,omitempty"`
	ChangedTablesByID     map[string]ChangeTableSpec `json:"changedTablesById,omitempty"`
	DestroyedTableIDs     []string                   `json:"destroyedTableIds,omitempty"`
}

// BaseInfo is one entry of the list-bases response.
type BaseInfo struct {
	ID              string `json:"id"`
	Name            string `json:"name"`
	PermissionLevel string `json:"permissionLevel,omitempty"`
}

// FieldInfo is a field definition from the table schema endpoint.
type FieldInfo struct {
	ID          string         `json:"id"`
	Name        string         `json:"name"`
	Description string         `json:"description,omitempty"`
	Type        string         `json:"type,omitempty"`
	Options     map[string]any `json:"options,omitempty"`
}

// TableInfo is a table definition from the table schema endpoint.
type TableInfo struct {
	ID             string      `json:"id"`
	Name           string      `json:"name"`
	Description    string      `json:"description,omitempty"`
	PrimaryFieldID string      `json:"primaryFieldId"`
	Fields         []FieldInfo `json:"fields"`
}

// RecordInfo is one record from the list-records endpoint, with cell
// values keyed by field id.
type RecordInfo struct {
	ID          string         `json:"id"`
	CreatedTime string         `json:"createdTime"`
	Fields      map[string]any `json:"fields"`
}

type listWebhooksResponse struct {
	Webhooks []WebhookInfo `json:"webhooks"`
}

type listWebhookPayloadsResponse struct {
	Cursor        int64            `json:"cursor"`
	MightHaveMore bool             `json:"mightHaveMore"`
	Payloads      []WebhookPayload `json:"payloads"`
}

type listBasesResponse struct {
	Bases  []BaseInfo `json:"bases"`
	Offset string     `json:"offset,omitempty"`
}

type listTablesResponse struct {
	Tables []TableInfo `json:"tables"`
}

type listRecordsResponse struct {
	Records []RecordInfo `json:"records"`
	Offset  string       `json:"offset,omitempty"`
}
