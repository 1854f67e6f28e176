// Package normalize converts raw Airtable webhook payloads into flat,
// deterministically ordered change batches. Payload collections are
// maps keyed by id with no defined order; every map is traversed in
// sorted id order so client-side reducers see the same sequence for the
// same payload, run after run.
package normalize

import (
	"sort"
	"time"

	"airtable-sync/internal/airtable"
	"airtable-sync/internal/models"
)

// NeedsSchema reports whether normalizing the payload would benefit
// from a schema snapshot: any created table, or a created or changed
// field within a changed table. Record-only payloads, the common case,
// never need one.
func NeedsSchema(p airtable.WebhookPayload) bool {
	if len(p.CreatedTablesByID) > 0 {
		return true
	}
	for _, spec := range p.ChangedTablesByID {
		if len(spec.CreatedFieldsByID) > 0 || len(spec.ChangedFieldsByID) > 0 {
			return true
		}
	}
	return false
}

// Payload converts one raw payload page into a change batch. snap may
// be nil; field definitions the payload omits are then emitted with
// whatever partial data is available rather than failing the batch.
//
// Event order within the batch is fixed: table deletions, table
// additions, then per changed table: metadata update (at most one),
// field creations, field updates, field deletions, record creations,
// record updates, record deletions.
func Payload(baseID string, p airtable.WebhookPayload, snap *models.Base) models.ChangeBatch {
	changes := make([]models.ChangeEvent, 0)
	changes = append(changes, tableDeletions(baseID, p.DestroyedTableIDs)...)
	changes = append(changes, tableAdditions(baseID, p.CreatedTablesByID, snap)...)
	changes = append(changes, tableUpdates(baseID, p.ChangedTablesByID, snap)...)

	return models.ChangeBatch{
		Number:    p.BaseTransactionNumber,
		Timestamp: parseEpochMillis(p.Timestamp),
		Changes:   changes,
	}
}

func tableDeletions(baseID string, destroyedTableIDs []string) []models.ChangeEvent {
	events := make([]models.ChangeEvent, 0, len(destroyedTableIDs))
	for _, tableID := range destroyedTableIDs {
		events = append(events, models.ChangeEvent{
			Type:            models.ChangeDelete,
			ResourceAddress: tableAddr(baseID, tableID),
			Data:            nil,
		})
	}
	return events
}

func tableAdditions(baseID string, created map[string]airtable.CreateTableSpec, snap *models.Base) []models.ChangeEvent {
	events := make([]models.ChangeEvent, 0, len(created))
	for _, tableID := range sortedKeys(created) {
		spec := created[tableID]
		snapTable := snapshotTable(snap, tableID)

		fields := fieldsFromSpecs(spec.FieldsByID, snapTable)
		if len(fields) == 0 && snapTable != nil {
			for id, f := range snapTable.Fields {
				fields[id] = f
			}
		}

		name := models.Untitled
		description := models.Undescribed
		if spec.Metadata != nil {
			if spec.Metadata.Name != nil {
				name = *spec.Metadata.Name
			}
			if spec.Metadata.Description != nil {
				description = *spec.Metadata.Description
			}
		} else if snapTable != nil {
			name = snapTable.Name
			if snapTable.Description != "" {
				description = snapTable.Description
			}
		}

		events = append(events, models.ChangeEvent{
			Type:            models.ChangeCreate,
			ResourceAddress: tableAddr(baseID, tableID),
			Data: models.Table{
				ID:           tableID,
				Name:         name,
				Description:  description,
				PrimaryField: primaryField(fields, snapTable),
				Fields:       fields,
				Records:      recordsFromSpecs(spec.RecordsByID),
			},
		})
	}
	return events
}

func tableUpdates(baseID string, changed map[string]airtable.ChangeTableSpec, snap *models.Base) []models.ChangeEvent {
	events := make([]models.ChangeEvent, 0)
	for _, tableID := range sortedKeys(changed) {
		spec := changed[tableID]
		snapTable := snapshotTable(snap, tableID)

		// A changed-table entry with no metadata diff must not
		// synthesize a spurious table update event.
		if spec.ChangedMetadata != nil {
			events = append(events, metadataUpdate(baseID, tableID, spec.ChangedMetadata))
		}
		events = append(events, fieldCreations(baseID, tableID, spec.CreatedFieldsByID, snapTable)...)
		events = append(events, fieldUpdates(baseID, tableID, spec.ChangedFieldsByID, snapTable)...)
		events = append(events, fieldDeletions(baseID, tableID, spec.DestroyedFieldIDs)...)
		events = append(events, recordCreations(baseID, tableID, spec.CreatedRecordsByID)...)
		events = append(events, recordUpdates(baseID, tableID, spec.ChangedRecordsByID)...)
		events = append(events, recordDeletions(baseID, tableID, spec.DestroyedRecordIDs)...)
	}
	return events
}

func metadataUpdate(baseID, tableID string, diff *airtable.MetadataDiff) models.ChangeEvent {
	name := models.Untitled
	if diff.Current.Name != nil {
		name = *diff.Current.Name
	} else if diff.Previous.Name != nil {
		name = *diff.Previous.Name
	}
	description := models.Undescribed
	if diff.Current.Description != nil {
		description = *diff.Current.Description
	} else if diff.Previous.Description != nil {
		description = *diff.Previous.Description
	}

	return models.ChangeEvent{
		Type:            models.ChangeUpdate,
		ResourceAddress: tableAddr(baseID, tableID),
		Data: models.TableMetadata{
			ID:          tableID,
			Name:        name,
			Description: description,
		},
	}
}

func fieldCreations(baseID, tableID string, created map[string]airtable.CreateFieldSpec, snapTable *models.Table) []models.ChangeEvent {
	events := make([]models.ChangeEvent, 0, len(created))
	for _, fieldID := range sortedKeys(created) {
		spec := created[fieldID]
		events = append(events, models.ChangeEvent{
			Type:            models.ChangeCreate,
			ResourceAddress: fieldAddr(baseID, tableID, fieldID),
			Data:            resolveField(fieldID, &spec, snapTable),
		})
	}
	return events
}

func fieldUpdates(baseID, tableID string, changed map[string]airtable.ChangeFieldSpec, snapTable *models.Table) []models.ChangeEvent {
	events := make([]models.ChangeEvent, 0, len(changed))
	for _, fieldID := range sortedKeys(changed) {
		spec := changed[fieldID]

		current := spec.Current
		if current.Name == "" && spec.Previous != nil {
			current.Name = spec.Previous.Name
		}
		if current.Type == "" && spec.Previous != nil {
			current.Type = spec.Previous.Type
		}

		events = append(events, models.ChangeEvent{
			Type:            models.ChangeUpdate,
			ResourceAddress: fieldAddr(baseID, tableID, fieldID),
			Data:            resolveField(fieldID, &current, snapTable),
		})
	}
	return events
}

func fieldDeletions(baseID, tableID string, destroyedFieldIDs []string) []models.ChangeEvent {
	events := make([]models.ChangeEvent, 0, len(destroyedFieldIDs))
	for _, fieldID := range destroyedFieldIDs {
		events = append(events, models.ChangeEvent{
			Type:            models.ChangeDelete,
			ResourceAddress: fieldAddr(baseID, tableID, fieldID),
			Data:            nil,
		})
	}
	return events
}

func recordCreations(baseID, tableID string, created map[string]airtable.CreateRecordSpec) []models.ChangeEvent {
	events := make([]models.ChangeEvent, 0, len(created))
	for _, recordID := range sortedKeys(created) {
		spec := created[recordID]
		events = append(events, models.ChangeEvent{
			Type:            models.ChangeCreate,
			ResourceAddress: recordAddr(baseID, tableID, recordID),
			Data: models.Record{
				ID:          recordID,
				CreatedTime: parseEpochMillis(spec.CreatedTime),
				Cells:       spec.CellValuesByFieldID,
			},
		})
	}
	return events
}

func recordUpdates(baseID, tableID string, changed map[string]airtable.ChangeRecordSpec) []models.ChangeEvent {
	events := make([]models.ChangeEvent, 0, len(changed))
	for _, recordID := range sortedKeys(changed) {
		spec := changed[recordID]
		events = append(events, models.ChangeEvent{
			Type:            models.ChangeUpdate,
			ResourceAddress: recordAddr(baseID, tableID, recordID),
			Data: models.RecordUpdate{
				ID:    recordID,
				Cells: spec.Current,
			},
		})
	}
	return events
}

func recordDeletions(baseID, tableID string, destroyedRecordIDs []string) []models.ChangeEvent {
	events := make([]models.ChangeEvent, 0, len(destroyedRecordIDs))
	for _, recordID := range destroyedRecordIDs {
		events = append(events, models.ChangeEvent{
			Type:            models.ChangeDelete,
			ResourceAddress: recordAddr(baseID, tableID, recordID),
			Data:            nil,
		})
	}
	return events
}

// resolveField builds a field definition from the most specific data
// available: the payload spec first, then the snapshot for anything the
// spec omits. When neither source has it, remaining parts stay at their
// placeholders; partial information beats dropping the event.
func resolveField(fieldID string, spec *airtable.CreateFieldSpec, snapTable *models.Table) models.Field {
	f := models.Field{
		ID:          fieldID,
		Name:        models.Untitled,
		Description: models.Undescribed,
	}
	if spec != nil {
		if spec.Name != "" {
			f.Name = spec.Name
		}
		f.Type = spec.Type
	}
	if snapTable != nil {
		if sf, ok := snapTable.Fields[fieldID]; ok {
			if f.Name == models.Untitled {
				f.Name = sf.Name
			}
			if f.Type == "" {
				f.Type = sf.Type
			}
			if sf.Description != "" {
				f.Description = sf.Description
			}
			f.Options = sf.Options
		}
	}
	return f
}

func fieldsFromSpecs(specs map[string]airtable.CreateFieldSpec, snapTable *models.Table) map[string]models.Field {
	fields := make(map[string]models.Field, len(specs))
	for fieldID, spec := range specs {
		fields[fieldID] = resolveField(fieldID, &spec, snapTable)
	}
	return fields
}

func recordsFromSpecs(specs map[string]airtable.CreateRecordSpec) map[string]models.Record {
	records := make(map[string]models.Record, len(specs))
	for recordID, spec := range specs {
		records[recordID] = models.Record{
			ID:          recordID,
			CreatedTime: parseEpochMillis(spec.CreatedTime),
			Cells:       spec.CellValuesByFieldID,
		}
	}
	return records
}

// primaryField picks the snapshot's primary field when known, else the
// first field in sorted id order.
func primaryField(fields map[string]models.Field, snapTable *models.Table) *models.Field {
	if snapTable != nil && snapTable.PrimaryField != nil {
		if f, ok := fields[snapTable.PrimaryField.ID]; ok {
			return &f
		}
		return snapTable.PrimaryField
	}
	ids := sortedKeys(fields)
	if len(ids) == 0 {
		return nil
	}
	f := fields[ids[0]]
	return &f
}

func snapshotTable(snap *models.Base, tableID string) *models.Table {
	if snap == nil {
		return nil
	}
	t, ok := snap.Tables[tableID]
	if !ok {
		return nil
	}
	return &t
}

func tableAddr(baseID, tableID string) models.ResourceAddress {
	return models.ResourceAddress{
		Kind:    models.KindTable,
		BaseID:  baseID,
		TableID: tableID,
	}
}

func fieldAddr(baseID, tableID, fieldID string) models.ResourceAddress {
	return models.ResourceAddress{
		Kind:    models.KindField,
		BaseID:  baseID,
		TableID: tableID,
		FieldID: &fieldID,
	}
}

func recordAddr(baseID, tableID, recordID string) models.ResourceAddress {
	return models.ResourceAddress{
		Kind:     models.KindRecord,
		BaseID:   baseID,
		TableID:  tableID,
		RecordID: &recordID,
	}
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func parseEpochMillis(ts string) int64 {
	t, err := time.Parse(time.RFC3339, ts)
	if err != nil {
		return 0
	}
	return t.UnixMilli()
}
