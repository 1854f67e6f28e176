package models

// NotificationRef identifies the base or webhook a ping refers to.
type NotificationRef struct {
	ID string `json:"id"`
}

// WebhookNotification is the body Airtable POSTs to the notification
// endpoint when a watched base changes. It carries no change data; the
// pending payloads are fetched separately.
type WebhookNotification struct {
	Base      NotificationRef `json:"base"`
	Webhook   NotificationRef `json:"webhook"`
	Timestamp string          `json:"timestamp"`
}
