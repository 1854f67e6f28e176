package airtable

import (
	"context"
	"fmt"
	"net/url"
)

// ListBases returns every base visible to the token, following offset
// pagination transparently.
func (c *Client) ListBases(ctx context.Context, token string) ([]BaseInfo, error) {
	var accumulated []BaseInfo
	params := url.Values{}
	for page := 0; ; page++ {
		if page >= c.maxPages {
			return nil, fmt.Errorf("%w: base listing did not terminate after %d pages",
				ErrUpstreamUnavailable, c.maxPages)
		}

		var resp listBasesResponse
		if err := c.get(ctx, token, "/meta/bases", params, &resp); err != nil {
			return nil, err
		}
		accumulated = append(accumulated, resp.Bases...)

		if resp.Offset == "" {
			return accumulated, nil
		}
		params.Set("offset", resp.Offset)
	}
}

// ListTables returns the schema of every table in the base.
func (c *Client) ListTables(ctx context.Context, token, baseID string) ([]TableInfo, error) {
	var resp listTablesResponse
	path := fmt.Sprintf("/meta/bases/%s/tables", baseID)
	if err := c.get(ctx, token, path, nil, &resp); err != nil {
		return nil, err
	}
	return resp.Tables, nil
}

// ListRecords returns every record of a table with cell values keyed by
// field id, following offset pagination transparently.
func (c *Client) ListRecords(ctx context.Context, token, baseID, tableID string) ([]RecordInfo, error) {
	var accumulated []RecordInfo
	params := url.Values{}
	params.Set("returnFieldsByFieldId", "true")
	path := fmt.Sprintf("/%s/%s", baseID, tableID)
	for page := 0; ; page++ {
		if page >= c.maxPages {
			return nil, fmt.Errorf("%w: record listing for table %s did not terminate after %d pages",
				ErrUpstreamUnavailable, tableID, c.maxPages)
		}

		var resp listRecordsResponse
		if err := c.get(ctx, token, path, params, &resp); err != nil {
			return nil, err
		}
		accumulated = append(accumulated, resp.Records...)

		if resp.Offset == "" {
			return accumulated, nil
		}
		params.Set("offset", resp.Offset)
	}
}
