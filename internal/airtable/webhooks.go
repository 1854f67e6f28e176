package airtable

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
)

type createWebhookRequest struct {
	NotificationURL string               `json:"notificationUrl,omitempty"`
	Specification   webhookSpecification `json:"specification"`
}

type webhookSpecification struct {
	Options webhookOptions `json:"options"`
}

type webhookOptions struct {
	Filters webhookFilters `json:"filters"`
}

type webhookFilters struct {
	DataTypes []string `json:"dataTypes"`
}

// ListWebhooks returns every webhook registered on the base that the
// token can see.
func (c *Client) ListWebhooks(ctx context.Context, token, baseID string) ([]WebhookInfo, error) {
	var resp listWebhooksResponse
	path := fmt.Sprintf("/bases/%s/webhooks", baseID)
	if err := c.get(ctx, token, path, nil, &resp); err != nil {
		return nil, err
	}
	return resp.Webhooks, nil
}

// CreateWebhook registers a webhook delivering record, field and table
// metadata changes to notificationURL.
func (c *Client) CreateWebhook(ctx context.Context, token, baseID, notificationURL string) (*CreatedWebhook, error) {
	req := createWebhookRequest{
		NotificationURL: notificationURL,
		Specification: webhookSpecification{
			Options: webhookOptions{
				Filters: webhookFilters{
					DataTypes: []string{"tableData", "tableFields", "tableMetadata"},
				},
			},
		},
	}
	var resp CreatedWebhook
	path := fmt.Sprintf("/bases/%s/webhooks", baseID)
	if err := c.post(ctx, token, path, req, &resp); err != nil {
		return nil, err
	}
	c.logger.Debugf("Created webhook %s for base %s", resp.ID, baseID)
	return &resp, nil
}

// DeleteWebhook removes a webhook registration.
func (c *Client) DeleteWebhook(ctx context.Context, token, baseID, webhookID string) error {
	path := fmt.Sprintf("/bases/%s/webhooks/%s", baseID, webhookID)
	return c.delete(ctx, token, path)
}

// RefreshWebhook extends a webhook's expiration time.
func (c *Client) RefreshWebhook(ctx context.Context, token, baseID, webhookID string) (*RefreshedWebhook, error) {
	var resp RefreshedWebhook
	path := fmt.Sprintf("/bases/%s/webhooks/%s/refresh", baseID, webhookID)
	if err := c.post(ctx, token, path, nil, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// ListWebhookPayloads drains the webhook's pending payload queue,
// following the cursor until upstream reports no more pages. Pages are
// returned in queue order. The page count is capped so a cursor that
// never disappears cannot loop forever.
func (c *Client) ListWebhookPayloads(ctx context.Context, token, baseID, webhookID string) ([]WebhookPayload, error) {
	path := fmt.Sprintf("/bases/%s/webhooks/%s/payloads", baseID, webhookID)

	var accumulated []WebhookPayload
	params := url.Values{}
	for page := 0; ; page++ {
		if page >= c.maxPages {
			return nil, fmt.Errorf("%w: payload pagination for webhook %s did not terminate after %d pages",
				ErrUpstreamUnavailable, webhookID, c.maxPages)
		}

		var resp listWebhookPayloadsResponse
		if err := c.get(ctx, token, path, params, &resp); err != nil {
			return nil, err
		}
		accumulated = append(accumulated, resp.Payloads...)

		if !resp.MightHaveMore {
			return accumulated, nil
		}
		params.Set("cursor", strconv.FormatInt(resp.Cursor, 10))
	}
}
