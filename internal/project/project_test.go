package project

import (
	"context"
	"encoding/json"
	"sync"
	"testing"

	"airtable-sync/internal/models"
)

type memStore struct {
	mu   sync.Mutex
	docs map[string][]byte
}

func newMemStore() *memStore { return &memStore{docs: map[string][]byte{}} }

func (m *memStore) Get(_ context.Context, key string, out any) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	doc, ok := m.docs[key]
	if !ok {
		return false, nil
	}
	return true, json.Unmarshal(doc, out)
}

func (m *memStore) Put(_ context.Context, key string, val any) error {
	doc, err := json.Marshal(val)
	if err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.docs[key] = doc
	return nil
}

func (m *memStore) Delete(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.docs, key)
	return nil
}

func (m *memStore) Close() error { return nil }

func TestCreateAssignsIDAndDefaults(t *testing.T) {
	t.Parallel()

	svc := NewService(newMemStore())
	ctx := context.Background()

	created, err := svc.Create(ctx, "user1", Project{
		Airtable: AirtableBinding{PersonalAccessToken: "tok", BaseID: "appOne"},
	})
	if err != nil {
		t.Fatalf("create failed: %v", err)
	}
	if created.ID == "" {
		t.Fatalf("expected generated id")
	}
	if created.Name != models.Untitled || created.Description != models.Undescribed {
		t.Fatalf("expected placeholder name/description, got %+v", created)
	}
	if created.Created == 0 {
		t.Fatalf("expected creation timestamp")
	}

	read, found, err := svc.Read(ctx, "user1", created.ID)
	if err != nil || !found {
		t.Fatalf("read back failed: found=%v err=%v", found, err)
	}
	if read.Airtable.BaseID != "appOne" {
		t.Fatalf("unexpected binding: %+v", read.Airtable)
	}
}

func TestUpdateKeepsCreationTime(t *testing.T) {
	t.Parallel()

	svc := NewService(newMemStore())
	ctx := context.Background()

	created, err := svc.Create(ctx, "user1", Project{Name: "Board"})
	if err != nil {
		t.Fatalf("create failed: %v", err)
	}

	updated, err := svc.Update(ctx, "user1", Project{
		ID:          created.ID,
		Name:        "Renamed",
		Description: "now with description",
	})
	if err != nil {
		t.Fatalf("update failed: %v", err)
	}
	if updated.Name != "Renamed" {
		t.Fatalf("expected updated name, got %q", updated.Name)
	}
	if updated.Created != created.Created {
		t.Fatalf("update must keep creation time: %d != %d", updated.Created, created.Created)
	}
}

func TestUpdateMissingProject(t *testing.T) {
	t.Parallel()

	svc := NewService(newMemStore())
	if _, err := svc.Update(context.Background(), "user1", Project{ID: "ghost"}); err == nil {
		t.Fatalf("expected error updating missing project")
	}
}

func TestDeleteReturnsLastState(t *testing.T) {
	t.Parallel()

	svc := NewService(newMemStore())
	ctx := context.Background()

	created, err := svc.Create(ctx, "user1", Project{Name: "Doomed"})
	if err != nil {
		t.Fatalf("create failed: %v", err)
	}

	deleted, err := svc.Delete(ctx, "user1", created.ID)
	if err != nil {
		t.Fatalf("delete failed: %v", err)
	}
	if deleted.Name != "Doomed" {
		t.Fatalf("expected last state returned, got %+v", deleted)
	}

	_, found, err := svc.Read(ctx, "user1", created.ID)
	if err != nil {
		t.Fatalf("read failed: %v", err)
	}
	if found {
		t.Fatalf("deleted project must not be readable")
	}

	if _, err := svc.Delete(ctx, "user1", created.ID); err == nil {
		t.Fatalf("expected error deleting missing project")
	}
}
