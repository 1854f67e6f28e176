// Package server is the thin HTTP boundary: the webhook notification
// endpoint Airtable pings and the subscribe endpoint callers use to
// start receiving fan-out for a base.
package server

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"

	"airtable-sync/internal/config"
	"airtable-sync/internal/dispatch"
	"airtable-sync/internal/models"
	"airtable-sync/internal/project"
	"airtable-sync/internal/registry"
)

// Dispatcher triggers one fan-out cycle.
type Dispatcher interface {
	Dispatch(ctx context.Context, n dispatch.Notification) error
}

// Snapshotter fetches the initial full base snapshot for a subscriber.
type Snapshotter interface {
	ReadBase(ctx context.Context, token, baseID string) (*models.Base, error)
}

// Registrar is the registry surface the server needs.
type Registrar interface {
	Ensure(ctx context.Context, baseID, credential string) (*registry.Entry, error)
	Lookup(ctx context.Context, baseID string) (*registry.Entry, bool, error)
}

type Server struct {
	registry   Registrar
	projects   *project.Service
	client     Snapshotter
	dispatcher Dispatcher
	logger     *logrus.Logger
}

func New(reg Registrar, projects *project.Service, client Snapshotter, dispatcher Dispatcher, logger *logrus.Logger) *Server {
	return &Server{
		registry:   reg,
		projects:   projects,
		client:     client,
		dispatcher: dispatcher,
		logger:     logger,
	}
}

// Routes returns the HTTP handler for the service.
func (s *Server) Routes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST "+config.NotificationPath, s.handleNotification)
	mux.HandleFunc("POST /subscribe", s.handleSubscribe)
	mux.Handle("GET /metrics", promhttp.Handler())
	return mux
}

// handleNotification receives Airtable's change ping. It always answers
// 200 with no body and never blocks on dispatch: the ping only says
// "something changed", the payloads are fetched asynchronously.
func (s *Server) handleNotification(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		w.WriteHeader(http.StatusOK)
		return
	}

	var n models.WebhookNotification
	if err := json.Unmarshal(body, &n); err != nil || n.Base.ID == "" {
		s.logger.Warnf("Ignoring malformed webhook notification: %v", err)
		w.WriteHeader(http.StatusOK)
		return
	}

	if !s.verifyNotification(r, body, n.Base.ID) {
		s.logger.Warnf("Notification MAC mismatch for base %s", n.Base.ID)
		w.WriteHeader(http.StatusOK)
		return
	}

	ts, err := time.Parse(time.RFC3339, n.Timestamp)
	if err != nil {
		ts = time.Now()
	}

	notification := dispatch.Notification{
		BaseID:    n.Base.ID,
		WebhookID: n.Webhook.ID,
		Timestamp: ts,
	}
	go func() {
		if err := s.dispatcher.Dispatch(context.Background(), notification); err != nil {
			s.logger.Errorf("Dispatch failed for base %s: %v", notification.BaseID, err)
		}
	}()

	w.WriteHeader(http.StatusOK)
}

// verifyNotification checks the ping's MAC against the stored webhook
// secret. Pings for bases we have no entry for pass through; dispatch
// rejects them with a proper error.
func (s *Server) verifyNotification(r *http.Request, body []byte, baseID string) bool {
	entry, found, err := s.registry.Lookup(r.Context(), baseID)
	if err != nil || !found {
		return true
	}
	return verifyMAC(body, entry.MACSecretBase64, r.Header.Get("X-Airtable-Content-MAC"))
}

type subscribeRequest struct {
	UserID    string `json:"userId"`
	ProjectID string `json:"projectId"`
}

type subscribeResponse struct {
	Code    int          `json:"code"`
	Message string       `json:"message"`
	Data    *models.Base `json:"data,omitempty"`
}

type errorResponse struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Detail  string `json:"detail,omitempty"`
}

// handleSubscribe resolves the caller's project into a credential and
// base, ensures the shared webhook exists, and returns the initial full
// snapshot. Topic membership itself is the topic bridge's concern: the
// caller subscribes to the base's subject with the id echoed back here.
func (s *Server) handleSubscribe(w http.ResponseWriter, r *http.Request) {
	var req subscribeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.ProjectID == "" || req.UserID == "" {
		writeError(w, http.StatusBadRequest, "Could not access requested base.", "user id and project id are required.")
		return
	}

	proj, found, err := s.projects.Read(r.Context(), req.UserID, req.ProjectID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Could not access requested base.", err.Error())
		return
	}
	if !found {
		writeError(w, http.StatusNotFound, "Could not access requested base.", "project with specified id does not exist.")
		return
	}
	if proj.Airtable.PersonalAccessToken == "" || proj.Airtable.BaseID == "" {
		writeError(w, http.StatusInternalServerError, "Could not access requested base.", "could not retrieve airtable credentials from project.")
		return
	}

	base, err := s.client.ReadBase(r.Context(), proj.Airtable.PersonalAccessToken, proj.Airtable.BaseID)
	if err != nil {
		writeError(w, http.StatusBadGateway, "Could not read requested base.", err.Error())
		return
	}
	if base == nil {
		writeError(w, http.StatusNotFound, "Could not find requested base.", "base with specified id does not exist.")
		return
	}

	if _, err := s.registry.Ensure(r.Context(), proj.Airtable.BaseID, proj.Airtable.PersonalAccessToken); err != nil {
		writeError(w, http.StatusBadGateway, "Could not subscribe to base changes.", err.Error())
		return
	}

	writeJSON(w, http.StatusOK, subscribeResponse{
		Code:    http.StatusOK,
		Message: "You have successfully subscribed to base.",
		Data:    base,
	})
}

func writeError(w http.ResponseWriter, code int, message, detail string) {
	writeJSON(w, code, errorResponse{Code: code, Message: message, Detail: detail})
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}
