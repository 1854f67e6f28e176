// Package project stores the binding between a caller's project and the
// Airtable base and credential it watches.
package project

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"airtable-sync/internal/models"
	"airtable-sync/internal/store"
)

// AirtableBinding holds the credential and base a project syncs with.
type AirtableBinding struct {
	PersonalAccessToken string `json:"personalAccessToken"`
	BaseID              string `json:"baseId"`
}

type Project struct {
	ID          string          `json:"id"`
	Name        string          `json:"name"`
	Description string          `json:"description"`
	Created     int64           `json:"created"`
	Airtable    AirtableBinding `json:"airtable"`
}

type Service struct {
	store store.Store
}

func NewService(st store.Store) *Service {
	return &Service{store: st}
}

func projectKey(userID, projectID string) string {
	return fmt.Sprintf("users/%s/projects/%s", userID, projectID)
}

// Create stores a new project under a generated id.
func (s *Service) Create(ctx context.Context, userID string, p Project) (*Project, error) {
	p.ID = uuid.NewString()
	if p.Name == "" {
		p.Name = models.Untitled
	}
	if p.Description == "" {
		p.Description = models.Undescribed
	}
	p.Created = time.Now().UnixMilli()

	if err := s.store.Put(ctx, projectKey(userID, p.ID), &p); err != nil {
		return nil, err
	}
	return &p, nil
}

func (s *Service) Read(ctx context.Context, userID, projectID string) (*Project, bool, error) {
	var p Project
	found, err := s.store.Get(ctx, projectKey(userID, projectID), &p)
	if err != nil || !found {
		return nil, false, err
	}
	return &p, true, nil
}

// Update overwrites an existing project, keeping its id and creation
// time.
func (s *Service) Update(ctx context.Context, userID string, p Project) (*Project, error) {
	existing, found, err := s.Read(ctx, userID, p.ID)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, fmt.Errorf("project %s does not exist", p.ID)
	}

	p.Created = existing.Created
	if err := s.store.Put(ctx, projectKey(userID, p.ID), &p); err != nil {
		return nil, err
	}
	return &p, nil
}

// Delete removes a project and returns its last state.
func (s *Service) Delete(ctx context.Context, userID, projectID string) (*Project, error) {
	existing, found, err := s.Read(ctx, userID, projectID)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, fmt.Errorf("project %s does not exist", projectID)
	}

	if err := s.store.Delete(ctx, projectKey(userID, projectID)); err != nil {
		return nil, err
	}
	return existing, nil
}
