package registry

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"airtable-sync/internal/airtable"
	"airtable-sync/internal/store"
)

// Entry is the durable record of one base's webhook: the active
// upstream webhook, its MAC secret, and every credential known to be
// authorized for the base, in the order callers offered them.
// Entries are created on first subscribe and never proactively deleted.
type Entry struct {
	WebhookID       string   `json:"id"`
	MACSecretBase64 string   `json:"macSecretBase64"`
	Credentials     []string `json:"credentials"`
}

// Upstream is the slice of the Airtable client the registry drives.
type Upstream interface {
	ListWebhooks(ctx context.Context, token, baseID string) ([]airtable.WebhookInfo, error)
	CreateWebhook(ctx context.Context, token, baseID, notificationURL string) (*airtable.CreatedWebhook, error)
	DeleteWebhook(ctx context.Context, token, baseID, webhookID string) error
	RefreshWebhook(ctx context.Context, token, baseID, webhookID string) (*airtable.RefreshedWebhook, error)
}

// Registry owns the webhook lifecycle per base: idempotent creation,
// validity checks, rotation on expiry or misconfiguration, and the
// authorized credential set shared by all subscribers of a base.
type Registry struct {
	store           store.Store
	client          Upstream
	notificationURL string
	logger          *logrus.Logger

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

func New(st store.Store, client Upstream, notificationURL string, logger *logrus.Logger) *Registry {
	return &Registry{
		store:           st,
		client:          client,
		notificationURL: notificationURL,
		logger:          logger,
		locks:           map[string]*sync.Mutex{},
	}
}

// baseLock serializes Ensure per base so concurrent subscribers cannot
// race to create two upstream webhooks.
func (r *Registry) baseLock(baseID string) *sync.Mutex {
	r.mu.Lock()
	defer r.mu.Unlock()
	l, ok := r.locks[baseID]
	if !ok {
		l = &sync.Mutex{}
		r.locks[baseID] = l
	}
	return l
}

func entryKey(baseID string) string {
	return fmt.Sprintf("bases/%s/webhook", baseID)
}

// Lookup returns the stored entry for a base, if any.
func (r *Registry) Lookup(ctx context.Context, baseID string) (*Entry, bool, error) {
	var entry Entry
	found, err := r.store.Get(ctx, entryKey(baseID), &entry)
	if err != nil {
		return nil, false, err
	}
	if !found {
		return nil, false, nil
	}
	return &entry, true, nil
}

// Ensure makes sure a working webhook exists for the base and that
// credential is recorded as authorized for it. It is idempotent: a
// still-valid webhook is refreshed and reused, an invalid one is swept
// and recreated with the union of previously known credentials. Any
// upstream failure surfaces to the caller; subscription setup failure
// must block the dependent subscribe operation.
func (r *Registry) Ensure(ctx context.Context, baseID, credential string) (*Entry, error) {
	lock := r.baseLock(baseID)
	lock.Lock()
	defer lock.Unlock()

	entry, found, err := r.Lookup(ctx, baseID)
	if err != nil {
		return nil, err
	}
	if !found {
		return r.create(ctx, baseID, credential, nil)
	}

	valid, err := r.isValid(ctx, credential, baseID, entry.WebhookID)
	if err != nil {
		return nil, err
	}

	if valid {
		if _, err := r.client.RefreshWebhook(ctx, credential, baseID, entry.WebhookID); err != nil {
			return nil, err
		}
		if !contains(entry.Credentials, credential) {
			entry.Credentials = append(entry.Credentials, credential)
			if err := r.store.Put(ctx, entryKey(baseID), entry); err != nil {
				return nil, err
			}
			r.logger.Debugf("Recorded additional credential for base %s (%d total)", baseID, len(entry.Credentials))
		}
		return entry, nil
	}

	// The stored webhook is gone, expired or points elsewhere. Sweep
	// every webhook targeting this deployment's callback, not just the
	// stored id, so stale duplicates do not keep pinging us.
	hooks, err := r.client.ListWebhooks(ctx, credential, baseID)
	if err != nil {
		return nil, err
	}
	for _, h := range hooks {
		if h.NotificationURL != nil && *h.NotificationURL == r.notificationURL {
			if err := r.client.DeleteWebhook(ctx, credential, baseID, h.ID); err != nil {
				return nil, err
			}
			r.logger.Infof("Deleted stale webhook %s for base %s", h.ID, baseID)
		}
	}
	return r.create(ctx, baseID, credential, entry.Credentials)
}

func (r *Registry) create(ctx context.Context, baseID, credential string, prior []string) (*Entry, error) {
	hook, err := r.client.CreateWebhook(ctx, credential, baseID, r.notificationURL)
	if err != nil {
		return nil, err
	}

	creds := make([]string, 0, len(prior)+1)
	creds = append(creds, prior...)
	if !contains(creds, credential) {
		creds = append(creds, credential)
	}

	entry := &Entry{
		WebhookID:       hook.ID,
		MACSecretBase64: hook.MACSecretBase64,
		Credentials:     creds,
	}
	if err := r.store.Put(ctx, entryKey(baseID), entry); err != nil {
		return nil, err
	}
	r.logger.Infof("Registered webhook %s for base %s", hook.ID, baseID)
	return entry, nil
}

// isValid reports whether the stored webhook is still listed upstream,
// targets this deployment's callback, and has not expired. A webhook
// without an expiration time never expires.
func (r *Registry) isValid(ctx context.Context, credential, baseID, webhookID string) (bool, error) {
	hooks, err := r.client.ListWebhooks(ctx, credential, baseID)
	if err != nil {
		return false, err
	}

	for _, h := range hooks {
		if h.ID != webhookID {
			continue
		}
		if h.NotificationURL == nil || *h.NotificationURL != r.notificationURL {
			return false, nil
		}
		if h.ExpirationTime != nil {
			expiry, err := time.Parse(time.RFC3339, *h.ExpirationTime)
			if err != nil || !expiry.After(time.Now()) {
				return false, nil
			}
		}
		return true, nil
	}
	return false, nil
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
