package airtable

import (
	"context"
	"time"

	"airtable-sync/internal/models"
)

// ReadSchema fetches a tables-and-fields snapshot of the base, records
// omitted. It is the cheap snapshot used to resolve field definitions a
// change payload does not carry.
func (c *Client) ReadSchema(ctx context.Context, token, baseID string) (*models.Base, error) {
	tables, err := c.ListTables(ctx, token, baseID)
	if err != nil {
		return nil, err
	}

	base := &models.Base{
		ID:     baseID,
		Tables: make(map[string]models.Table, len(tables)),
	}
	for _, t := range tables {
		base.Tables[t.ID] = projectTable(t, nil)
	}
	return base, nil
}

// ReadBase fetches a full snapshot of the base: tables, fields and
// records. It returns nil when the token cannot see the base.
func (c *Client) ReadBase(ctx context.Context, token, baseID string) (*models.Base, error) {
	bases, err := c.ListBases(ctx, token)
	if err != nil {
		return nil, err
	}
	var info *BaseInfo
	for i := range bases {
		if bases[i].ID == baseID {
			info = &bases[i]
			break
		}
	}
	if info == nil {
		return nil, nil
	}

	tables, err := c.ListTables(ctx, token, baseID)
	if err != nil {
		return nil, err
	}

	base := &models.Base{
		ID:     info.ID,
		Name:   info.Name,
		Tables: make(map[string]models.Table, len(tables)),
	}
	for _, t := range tables {
		records, err := c.ListRecords(ctx, token, baseID, t.ID)
		if err != nil {
			return nil, err
		}
		base.Tables[t.ID] = projectTable(t, records)
	}
	return base, nil
}

func projectTable(t TableInfo, records []RecordInfo) models.Table {
	fields := make(map[string]models.Field, len(t.Fields))
	var primary *models.Field
	for _, f := range t.Fields {
		pf := models.Field{
			ID:          f.ID,
			Name:        f.Name,
			Description: f.Description,
			Type:        f.Type,
			Options:     f.Options,
		}
		fields[f.ID] = pf
		if f.ID == t.PrimaryFieldID {
			primary = &pf
		}
	}

	recs := make(map[string]models.Record, len(records))
	for _, r := range records {
		recs[r.ID] = models.Record{
			ID:          r.ID,
			CreatedTime: parseEpochMillis(r.CreatedTime),
			Cells:       r.Fields,
		}
	}

	return models.Table{
		ID:           t.ID,
		Name:         t.Name,
		Description:  t.Description,
		PrimaryField: primary,
		Fields:       fields,
		Records:      recs,
	}
}

func parseEpochMillis(ts string) int64 {
	t, err := time.Parse(time.RFC3339, ts)
	if err != nil {
		return 0
	}
	return t.UnixMilli()
}
