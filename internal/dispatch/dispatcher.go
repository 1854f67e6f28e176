package dispatch

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/singleflight"

	"airtable-sync/internal/airtable"
	"airtable-sync/internal/metrics"
	"airtable-sync/internal/models"
	"airtable-sync/internal/normalize"
	"airtable-sync/internal/registry"
)

// ErrUnknownSubscription means a notification arrived for a base no
// subscriber ever registered. The cycle is logged and dropped.
var ErrUnknownSubscription = errors.New("no subscription registered for base")

// ErrNoWorkingCredential means every stored credential was rejected by
// upstream. The registry entry is left untouched so a later successful
// Ensure can repair it.
var ErrNoWorkingCredential = errors.New("no stored credential accepted by upstream")

// Notification is the inbound "base changed" signal.
type Notification struct {
	BaseID    string
	WebhookID string
	Timestamp time.Time
}

// Upstream is the slice of the Airtable client the dispatcher uses.
type Upstream interface {
	ListWebhookPayloads(ctx context.Context, token, baseID, webhookID string) ([]airtable.WebhookPayload, error)
	ReadSchema(ctx context.Context, token, baseID string) (*models.Base, error)
}

// Registry resolves the shared webhook entry for a base.
type Registry interface {
	Lookup(ctx context.Context, baseID string) (*registry.Entry, bool, error)
}

// Publisher delivers one change batch to the base's topic.
type Publisher interface {
	Publish(baseID string, batch *models.ChangeBatch) error
}

// Dispatcher runs one fan-out cycle per notification: resolve a working
// credential, drain the pending payload queue, normalize each page, and
// publish the batches in page-fetch order.
type Dispatcher struct {
	registry  Registry
	client    Upstream
	publisher Publisher
	logger    *logrus.Logger
	group     singleflight.Group
}

func New(reg Registry, client Upstream, publisher Publisher, logger *logrus.Logger) *Dispatcher {
	return &Dispatcher{
		registry:  reg,
		client:    client,
		publisher: publisher,
		logger:    logger,
	}
}

// Dispatch runs a cycle for the notified base. At most one cycle is in
// flight per base: concurrent notifications for the same base coalesce
// into the running cycle, which re-reads the pending payload queue and
// therefore already observes whatever the second ping announced. A ping
// racing the very end of a cycle is recovered by upstream's redelivery.
// Cycles for distinct bases run independently.
func (d *Dispatcher) Dispatch(ctx context.Context, n Notification) error {
	_, err, _ := d.group.Do(n.BaseID, func() (any, error) {
		return nil, d.cycle(ctx, n)
	})
	if err != nil {
		metrics.DispatchCycles.WithLabelValues(outcome(err)).Inc()
		return err
	}
	metrics.DispatchCycles.WithLabelValues("ok").Inc()
	return nil
}

func (d *Dispatcher) cycle(ctx context.Context, n Notification) error {
	entry, found, err := d.registry.Lookup(ctx, n.BaseID)
	if err != nil {
		return err
	}
	if !found {
		return fmt.Errorf("%w: %s", ErrUnknownSubscription, n.BaseID)
	}

	payloads, credential, err := d.fetchPayloads(ctx, entry, n)
	if err != nil {
		return err
	}
	if len(payloads) == 0 {
		d.logger.Debugf("No pending payloads for base %s", n.BaseID)
		return nil
	}

	// The schema snapshot is fetched lazily, at most once per cycle, and
	// only when some page actually implies a schema change. Record-only
	// pages, the common case, never pay for it.
	var snap *models.Base
	snapshotTried := false

	for _, p := range payloads {
		if !snapshotTried && normalize.NeedsSchema(p) {
			snapshotTried = true
			snap, err = d.client.ReadSchema(ctx, credential, n.BaseID)
			if err != nil {
				// Partial events are more useful to subscribers than
				// silence; normalize with payload data only.
				d.logger.Warnf("Schema snapshot for base %s failed, emitting partial events: %v", n.BaseID, err)
				snap = nil
			} else {
				metrics.SnapshotFetches.Inc()
			}
		}

		batch := normalize.Payload(n.BaseID, p, snap)
		if err := d.publisher.Publish(n.BaseID, &batch); err != nil {
			return fmt.Errorf("failed to publish batch %d for base %s: %w", batch.Number, n.BaseID, err)
		}
		metrics.BatchesPublished.Inc()
	}

	d.logger.Infof("Dispatched %d batch(es) for base %s", len(payloads), n.BaseID)
	return nil
}

// fetchPayloads tries each stored credential in order until one can
// read the pending queue. The webhook is shared per base, not per
// subscriber, so any still-valid credential suffices.
func (d *Dispatcher) fetchPayloads(ctx context.Context, entry *registry.Entry, n Notification) ([]airtable.WebhookPayload, string, error) {
	for _, credential := range entry.Credentials {
		payloads, err := d.client.ListWebhookPayloads(ctx, credential, n.BaseID, entry.WebhookID)
		if err == nil {
			return payloads, credential, nil
		}
		if errors.Is(err, airtable.ErrUpstreamRejected) || errors.Is(err, airtable.ErrUpstreamUnavailable) {
			metrics.CredentialFallbacks.Inc()
			d.logger.Warnf("Credential failed for base %s, trying next: %v", n.BaseID, err)
			continue
		}
		return nil, "", err
	}
	return nil, "", fmt.Errorf("%w: base %s, %d credential(s) tried", ErrNoWorkingCredential, n.BaseID, len(entry.Credentials))
}

func outcome(err error) string {
	switch {
	case errors.Is(err, ErrUnknownSubscription):
		return "unknown_subscription"
	case errors.Is(err, ErrNoWorkingCredential):
		return "no_working_credential"
	case errors.Is(err, airtable.ErrUpstreamUnavailable):
		return "upstream_unavailable"
	case errors.Is(err, airtable.ErrUpstreamRejected):
		return "upstream_rejected"
	default:
		return "error"
	}
}
