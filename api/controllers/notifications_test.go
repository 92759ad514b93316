package controllers

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/mgastelum/tubedigest-backend/internal/notifications"
	pkgerrors "github.com/mgastelum/tubedigest-backend/pkg/errors"
)

type testNotificationsService struct {
	listFn        func(ctx context.Context, params notifications.ListParams) (*notifications.ListResult, error)
	listPendingFn func(ctx context.Context, limit int) ([]notifications.PendingNotification, error)
	sendPendingFn func(ctx context.Context, limit int) (*notifications.SweepResult, error)
	markSentFn    func(ctx context.Context, userID, notificationID uuid.UUID) error
	deleteFn      func(ctx context.Context, userID, notificationID uuid.UUID) error
}

func (s *testNotificationsService) List(ctx context.Context, params notifications.ListParams) (*notifications.ListResult, error) {
	if s.listFn != nil {
		return s.listFn(ctx, params)
	}
	return &notifications.ListResult{}, nil
}

func (s *testNotificationsService) ListPending(ctx context.Context, limit int) ([]notifications.PendingNotification, error) {
	if s.listPendingFn != nil {
		return s.listPendingFn(ctx, limit)
	}
	return nil, nil
}

func (s *testNotificationsService) SendPending(ctx context.Context, limit int) (*notifications.SweepResult, error) {
	if s.sendPendingFn != nil {
		return s.sendPendingFn(ctx, limit)
	}
	return &notifications.SweepResult{}, nil
}

func (s *testNotificationsService) MarkSent(ctx context.Context, userID, notificationID uuid.UUID) error {
	if s.markSentFn != nil {
		return s.markSentFn(ctx, userID, notificationID)
	}
	return nil
}

func (s *testNotificationsService) Delete(ctx context.Context, userID, notificationID uuid.UUID) error {
	if s.deleteFn != nil {
		return s.deleteFn(ctx, userID, notificationID)
	}
	return nil
}

func (s *testNotificationsService) CleanupSent(ctx context.Context, retention time.Duration) (int64, error) {
	return 0, nil
}

func TestListNotificationsPassesParams(t *testing.T) {
	userID := uuid.New()
	svc := &testNotificationsService{
		listFn: func(ctx context.Context, params notifications.ListParams) (*notifications.ListResult, error) {
			if params.UserID != userID {
				t.Fatalf("unexpected user %s", params.UserID)
			}
			if params.Limit != 10 {
				t.Fatalf("unexpected limit %d", params.Limit)
			}
			return &notifications.ListResult{}, nil
		},
	}

	req := authedRequest(http.MethodGet, "/api/v1/notifications?limit=10", nil, userID)
	rec := httptest.NewRecorder()
	ListNotifications(svc, testLogger())(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d (%s)", rec.Code, rec.Body.String())
	}
}

func TestMarkNotificationSentNotFound(t *testing.T) {
	notificationID := uuid.New()
	svc := &testNotificationsService{
		markSentFn: func(ctx context.Context, userID, nid uuid.UUID) error {
			return pkgerrors.New(pkgerrors.CodeNotFound, "notification not found")
		},
	}

	req := authedRequest(http.MethodPost, "/api/v1/notifications/"+notificationID.String()+"/sent", nil, uuid.New())
	req = withURLParam(req, "notificationId", notificationID.String())
	rec := httptest.NewRecorder()
	MarkNotificationSent(svc, testLogger())(rec, req)

	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d (%s)", rec.Code, rec.Body.String())
	}
}

func TestDeleteNotificationSuccess(t *testing.T) {
	userID := uuid.New()
	notificationID := uuid.New()
	called := false
	svc := &testNotificationsService{
		deleteFn: func(ctx context.Context, uid, nid uuid.UUID) error {
			called = true
			if uid != userID || nid != notificationID {
				t.Fatalf("unexpected args %s %s", uid, nid)
			}
			return nil
		},
	}

	req := authedRequest(http.MethodDelete, "/api/v1/notifications/"+notificationID.String(), nil, userID)
	req = withURLParam(req, "notificationId", notificationID.String())
	rec := httptest.NewRecorder()
	DeleteNotification(svc, testLogger())(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d (%s)", rec.Code, rec.Body.String())
	}
	if !called {
		t.Fatal("expected service called")
	}
}
