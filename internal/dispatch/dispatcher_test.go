package dispatch

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/sirupsen/logrus"

	"airtable-sync/internal/airtable"
	"airtable-sync/internal/models"
	"airtable-sync/internal/registry"
)

func testLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetLevel(logrus.PanicLevel)
	return logger
}

type fakeRegistry struct {
	entries map[string]*registry.Entry
}

func (f *fakeRegistry) Lookup(_ context.Context, baseID string) (*registry.Entry, bool, error) {
	e, ok := f.entries[baseID]
	return e, ok, nil
}

type fakeUpstream struct {
	mu            sync.Mutex
	payloads      []airtable.WebhookPayload
	badTokens     map[string]error
	schema        *models.Base
	schemaErr     error
	schemaFetches int
	listCalls     int
	triedTokens   []string
	block         chan struct{} // when set, ListWebhookPayloads waits on it
}

func (f *fakeUpstream) ListWebhookPayloads(_ context.Context, token, _, _ string) ([]airtable.WebhookPayload, error) {
	f.mu.Lock()
	f.listCalls++
	f.triedTokens = append(f.triedTokens, token)
	block := f.block
	err := f.badTokens[token]
	payloads := f.payloads
	f.mu.Unlock()

	if block != nil {
		<-block
	}
	if err != nil {
		return nil, err
	}
	return payloads, nil
}

func (f *fakeUpstream) ReadSchema(_ context.Context, _, _ string) (*models.Base, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.schemaFetches++
	if f.schemaErr != nil {
		return nil, f.schemaErr
	}
	return f.schema, nil
}

type fakePublisher struct {
	mu      sync.Mutex
	batches []models.ChangeBatch
	fail    error
}

func (f *fakePublisher) Publish(_ string, batch *models.ChangeBatch) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fail != nil {
		return f.fail
	}
	f.batches = append(f.batches, *batch)
	return nil
}

func entryWith(creds ...string) *registry.Entry {
	return &registry.Entry{WebhookID: "achHook", MACSecretBase64: "c2VjcmV0", Credentials: creds}
}

func notification(baseID string) Notification {
	return Notification{BaseID: baseID, WebhookID: "achHook", Timestamp: time.Now()}
}

func recordPayload(n int64, recordID string) airtable.WebhookPayload {
	return airtable.WebhookPayload{
		BaseTransactionNumber: n,
		Timestamp:             "2024-03-01T12:00:00.000Z",
		ChangedTablesByID: map[string]airtable.ChangeTableSpec{
			"tblA": {
				ChangedRecordsByID: map[string]airtable.ChangeRecordSpec{
					recordID: {Current: map[string]any{"fld1": "x"}},
				},
			},
		},
	}
}

func TestDispatchUnknownBase(t *testing.T) {
	t.Parallel()

	d := New(&fakeRegistry{entries: map[string]*registry.Entry{}}, &fakeUpstream{}, &fakePublisher{}, testLogger())
	err := d.Dispatch(context.Background(), notification("appGhost"))
	if !errors.Is(err, ErrUnknownSubscription) {
		t.Fatalf("expected ErrUnknownSubscription, got %v", err)
	}
}

func TestDispatchCredentialFallbackSucceeds(t *testing.T) {
	t.Parallel()

	up := &fakeUpstream{
		payloads:  []airtable.WebhookPayload{recordPayload(1, "rec1")},
		badTokens: map[string]error{"bad": fmt.Errorf("%w: status 401", airtable.ErrUpstreamRejected)},
	}
	pub := &fakePublisher{}
	reg := &fakeRegistry{entries: map[string]*registry.Entry{"appOne": entryWith("bad", "good")}}

	d := New(reg, up, pub, testLogger())
	if err := d.Dispatch(context.Background(), notification("appOne")); err != nil {
		t.Fatalf("dispatch must succeed via fallback credential: %v", err)
	}

	if len(up.triedTokens) != 2 || up.triedTokens[0] != "bad" || up.triedTokens[1] != "good" {
		t.Fatalf("credentials must be tried in stored order, got %v", up.triedTokens)
	}
	if len(pub.batches) != 1 {
		t.Fatalf("expected 1 published batch, got %d", len(pub.batches))
	}
}

func TestDispatchAllCredentialsRejected(t *testing.T) {
	t.Parallel()

	rejected := fmt.Errorf("%w: status 401", airtable.ErrUpstreamRejected)
	up := &fakeUpstream{
		badTokens: map[string]error{"bad1": rejected, "bad2": rejected},
	}
	reg := &fakeRegistry{entries: map[string]*registry.Entry{"appOne": entryWith("bad1", "bad2")}}

	d := New(reg, up, &fakePublisher{}, testLogger())
	err := d.Dispatch(context.Background(), notification("appOne"))
	if !errors.Is(err, ErrNoWorkingCredential) {
		t.Fatalf("expected ErrNoWorkingCredential, got %v", err)
	}
	if len(up.triedTokens) != 2 || up.triedTokens[0] != "bad1" || up.triedTokens[1] != "bad2" {
		t.Fatalf("both credentials must be attempted in order, got %v", up.triedTokens)
	}
}

func TestDispatchSkipsSnapshotForRecordOnlyPayloads(t *testing.T) {
	t.Parallel()

	up := &fakeUpstream{
		payloads: []airtable.WebhookPayload{recordPayload(1, "rec1"), recordPayload(2, "rec2")},
	}
	pub := &fakePublisher{}
	reg := &fakeRegistry{entries: map[string]*registry.Entry{"appOne": entryWith("good")}}

	d := New(reg, up, pub, testLogger())
	if err := d.Dispatch(context.Background(), notification("appOne")); err != nil {
		t.Fatalf("dispatch failed: %v", err)
	}

	if up.schemaFetches != 0 {
		t.Fatalf("record-only pages must not fetch a snapshot, got %d fetches", up.schemaFetches)
	}
	if len(pub.batches) != 2 {
		t.Fatalf("expected 2 batches, got %d", len(pub.batches))
	}
}

func TestDispatchFetchesSnapshotOncePerCycle(t *testing.T) {
	t.Parallel()

	schemaPayload := airtable.WebhookPayload{
		BaseTransactionNumber: 1,
		ChangedTablesByID: map[string]airtable.ChangeTableSpec{
			"tblA": {CreatedFieldsByID: map[string]airtable.CreateFieldSpec{"fldN": {Name: "New"}}},
		},
	}
	up := &fakeUpstream{
		payloads: []airtable.WebhookPayload{schemaPayload, schemaPayload, recordPayload(3, "rec1")},
		schema:   &models.Base{ID: "appOne", Tables: map[string]models.Table{}},
	}
	pub := &fakePublisher{}
	reg := &fakeRegistry{entries: map[string]*registry.Entry{"appOne": entryWith("good")}}

	d := New(reg, up, pub, testLogger())
	if err := d.Dispatch(context.Background(), notification("appOne")); err != nil {
		t.Fatalf("dispatch failed: %v", err)
	}

	if up.schemaFetches != 1 {
		t.Fatalf("snapshot must be fetched exactly once per cycle, got %d", up.schemaFetches)
	}
	if len(pub.batches) != 3 {
		t.Fatalf("expected 3 batches, got %d", len(pub.batches))
	}
}

func TestDispatchSnapshotFailureEmitsPartialEvents(t *testing.T) {
	t.Parallel()

	up := &fakeUpstream{
		payloads: []airtable.WebhookPayload{{
			BaseTransactionNumber: 1,
			ChangedTablesByID: map[string]airtable.ChangeTableSpec{
				"tblA": {CreatedFieldsByID: map[string]airtable.CreateFieldSpec{"fldN": {Name: "New"}}},
			},
		}},
		schemaErr: fmt.Errorf("%w: status 500", airtable.ErrUpstreamUnavailable),
	}
	pub := &fakePublisher{}
	reg := &fakeRegistry{entries: map[string]*registry.Entry{"appOne": entryWith("good")}}

	d := New(reg, up, pub, testLogger())
	if err := d.Dispatch(context.Background(), notification("appOne")); err != nil {
		t.Fatalf("snapshot failure must not abort the cycle: %v", err)
	}
	if len(pub.batches) != 1 || len(pub.batches[0].Changes) != 1 {
		t.Fatalf("expected one partial batch, got %+v", pub.batches)
	}
}

func TestDispatchPublishesBatchesInPageOrder(t *testing.T) {
	t.Parallel()

	up := &fakeUpstream{
		payloads: []airtable.WebhookPayload{
			recordPayload(5, "rec1"),
			recordPayload(6, "rec2"),
			recordPayload(7, "rec3"),
		},
	}
	pub := &fakePublisher{}
	reg := &fakeRegistry{entries: map[string]*registry.Entry{"appOne": entryWith("good")}}

	d := New(reg, up, pub, testLogger())
	if err := d.Dispatch(context.Background(), notification("appOne")); err != nil {
		t.Fatalf("dispatch failed: %v", err)
	}

	for i, want := range []int64{5, 6, 7} {
		if pub.batches[i].Number != want {
			t.Fatalf("batch %d: expected sequence %d, got %d", i, want, pub.batches[i].Number)
		}
	}
}

func TestDispatchPublishFailureAbortsCycle(t *testing.T) {
	t.Parallel()

	boom := errors.New("nats down")
	up := &fakeUpstream{payloads: []airtable.WebhookPayload{recordPayload(1, "rec1")}}
	pub := &fakePublisher{fail: boom}
	reg := &fakeRegistry{entries: map[string]*registry.Entry{"appOne": entryWith("good")}}

	d := New(reg, up, pub, testLogger())
	if err := d.Dispatch(context.Background(), notification("appOne")); !errors.Is(err, boom) {
		t.Fatalf("expected publish failure surfaced, got %v", err)
	}
}

func TestConcurrentDispatchForSameBaseCoalesces(t *testing.T) {
	t.Parallel()

	block := make(chan struct{})
	up := &fakeUpstream{
		payloads: []airtable.WebhookPayload{recordPayload(1, "rec1")},
		block:    block,
	}
	pub := &fakePublisher{}
	reg := &fakeRegistry{entries: map[string]*registry.Entry{"appOne": entryWith("good")}}
	d := New(reg, up, pub, testLogger())

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := d.Dispatch(context.Background(), notification("appOne")); err != nil {
			t.Errorf("first dispatch failed: %v", err)
		}
	}()

	// Wait for the first cycle to reach the blocked upstream call, then
	// fire a second notification that must join it.
	for {
		up.mu.Lock()
		started := up.listCalls > 0
		up.mu.Unlock()
		if started {
			break
		}
		time.Sleep(time.Millisecond)
	}

	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := d.Dispatch(context.Background(), notification("appOne")); err != nil {
			t.Errorf("second dispatch failed: %v", err)
		}
	}()
	time.Sleep(50 * time.Millisecond)
	close(block)
	wg.Wait()

	up.mu.Lock()
	calls := up.listCalls
	up.mu.Unlock()
	if calls != 1 {
		t.Fatalf("concurrent notifications for one base must coalesce into one cycle, got %d fetches", calls)
	}
}
