package notifications

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/mgastelum/tubedigest-backend/pkg/logger"
	"github.com/mgastelum/tubedigest-backend/pkg/pagination"
	pkgerrors "github.com/mgastelum/tubedigest-backend/pkg/errors"
)

type fakeRepo struct {
	listPendingFn      func(ctx context.Context, limit int) ([]PendingNotification, error)
	markSentFn         func(ctx context.Context, id uuid.UUID, now time.Time) error
	markSentOwnedFn    func(ctx context.Context, userID, id uuid.UUID, now time.Time) (markResult, error)
	deleteOwnedFn      func(ctx context.Context, userID, id uuid.UUID) (bool, error)
	listByUserFn       func(ctx context.Context, params listByUserParams) ([]UserNotification, *pagination.Cursor, error)
	deleteSentBeforeFn func(ctx context.Context, cutoff time.Time) (int64, error)
}

func (f *fakeRepo) WithTx(tx *gorm.DB) Repository { return f }

func (f *fakeRepo) ListPending(ctx context.Context, limit int) ([]PendingNotification, error) {
	return f.listPendingFn(ctx, limit)
}

func (f *fakeRepo) MarkSent(ctx context.Context, id uuid.UUID, now time.Time) error {
	return f.markSentFn(ctx, id, now)
}

func (f *fakeRepo) MarkSentOwned(ctx context.Context, userID, id uuid.UUID, now time.Time) (markResult, error) {
	return f.markSentOwnedFn(ctx, userID, id, now)
}

func (f *fakeRepo) DeleteOwned(ctx context.Context, userID, id uuid.UUID) (bool, error) {
	return f.deleteOwnedFn(ctx, userID, id)
}

func (f *fakeRepo) ListByUser(ctx context.Context, params listByUserParams) ([]UserNotification, *pagination.Cursor, error) {
	return f.listByUserFn(ctx, params)
}

func (f *fakeRepo) DeleteSentBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	return f.deleteSentBeforeFn(ctx, cutoff)
}

type fakeSender struct {
	sent    []string
	targets []string
	failFor map[string]error
}

func (f *fakeSender) Send(ctx context.Context, toNumber, message string) error {
	if err := f.failFor[toNumber]; err != nil {
		return err
	}
	f.targets = append(f.targets, toNumber)
	f.sent = append(f.sent, message)
	return nil
}

func newTestService(t *testing.T, repo Repository, sender *fakeSender) Service {
	t.Helper()
	svc, err := NewService(ServiceParams{
		Repo:   repo,
		Sender: sender,
		Logger: logger.New(logger.Options{ServiceName: "test"}),
	})
	if err != nil {
		t.Fatalf("NewService: %v", err)
	}
	return svc
}

func pendingItem(number string) PendingNotification {
	return PendingNotification{
		NotificationID: uuid.New(),
		UserID:         uuid.New(),
		ToNumber:       number,
		VideoTitle:     "Go Generics Deep Dive",
		VideoURL:       "https://www.youtube.com/watch?v=abc",
		ChannelTitle:   "Gopher Talks",
		Summary:        "Covers type parameters and constraints.",
		CreatedAt:      time.Now().UTC(),
	}
}

func TestSendPendingMarksExactlyTheSuccesses(t *testing.T) {
	ok := pendingItem("+15550001")
	bad := pendingItem("+15550002")

	var marked []uuid.UUID
	repo := &fakeRepo{
		listPendingFn: func(ctx context.Context, limit int) ([]PendingNotification, error) {
			return []PendingNotification{ok, bad}, nil
		},
		markSentFn: func(ctx context.Context, id uuid.UUID, now time.Time) error {
			marked = append(marked, id)
			return nil
		},
	}
	sender := &fakeSender{failFor: map[string]error{"+15550002": errors.New("recipient unavailable")}}

	result, err := newTestService(t, repo, sender).SendPending(context.Background(), 20)
	if err != nil {
		t.Fatalf("SendPending: %v", err)
	}

	if result.Attempted != 2 || result.Sent != 1 || result.Failed != 1 {
		t.Fatalf("unexpected result %+v", result)
	}
	if len(marked) != 1 || marked[0] != ok.NotificationID {
		t.Fatalf("expected only the delivered row marked, got %v", marked)
	}
	if _, found := result.Failures[bad.NotificationID]; !found {
		t.Fatalf("expected failure recorded for %s, got %v", bad.NotificationID, result.Failures)
	}
}

func TestSendPendingMessageFormat(t *testing.T) {
	item := pendingItem("+15550003")
	repo := &fakeRepo{
		listPendingFn: func(ctx context.Context, limit int) ([]PendingNotification, error) {
			return []PendingNotification{item}, nil
		},
		markSentFn: func(ctx context.Context, id uuid.UUID, now time.Time) error { return nil },
	}
	sender := &fakeSender{}

	if _, err := newTestService(t, repo, sender).SendPending(context.Background(), 1); err != nil {
		t.Fatalf("SendPending: %v", err)
	}

	if len(sender.sent) != 1 {
		t.Fatalf("expected one message, got %d", len(sender.sent))
	}
	msg := sender.sent[0]
	for _, want := range []string{item.ChannelTitle, item.VideoTitle, item.Summary, item.VideoURL} {
		if !strings.Contains(msg, want) {
			t.Fatalf("message missing %q:\n%s", want, msg)
		}
	}
	if sender.targets[0] != "+15550003" {
		t.Fatalf("unexpected target %s", sender.targets[0])
	}
}

func TestFormatMessageTruncatesLongSummary(t *testing.T) {
	item := pendingItem("+15550004")
	item.Summary = strings.Repeat("summary words ", 100)

	msg := formatMessage(item)
	if len(msg) > maxSummaryChars+len(item.ChannelTitle)+len(item.VideoTitle)+len(item.VideoURL)+64 {
		t.Fatalf("message not truncated, len=%d", len(msg))
	}
	if !strings.Contains(msg, "…") {
		t.Fatal("expected ellipsis on truncated summary")
	}
}

func TestMarkSentNotFound(t *testing.T) {
	repo := &fakeRepo{
		markSentOwnedFn: func(ctx context.Context, userID, id uuid.UUID, now time.Time) (markResult, error) {
			return markResult{}, nil
		},
	}
	svc := newTestService(t, repo, &fakeSender{})

	err := svc.MarkSent(context.Background(), uuid.New(), uuid.New())
	var coded *pkgerrors.Error
	if !errors.As(err, &coded) || coded.Code() != pkgerrors.CodeNotFound {
		t.Fatalf("expected NOT_FOUND, got %v", err)
	}
}

func TestMarkSentAlreadySentIsIdempotent(t *testing.T) {
	repo := &fakeRepo{
		markSentOwnedFn: func(ctx context.Context, userID, id uuid.UUID, now time.Time) (markResult, error) {
			return markResult{Found: true, Updated: false}, nil
		},
	}
	svc := newTestService(t, repo, &fakeSender{})

	if err := svc.MarkSent(context.Background(), uuid.New(), uuid.New()); err != nil {
		t.Fatalf("expected idempotent success, got %v", err)
	}
}

func TestDeleteNotFound(t *testing.T) {
	repo := &fakeRepo{
		deleteOwnedFn: func(ctx context.Context, userID, id uuid.UUID) (bool, error) {
			return false, nil
		},
	}
	svc := newTestService(t, repo, &fakeSender{})

	err := svc.Delete(context.Background(), uuid.New(), uuid.New())
	var coded *pkgerrors.Error
	if !errors.As(err, &coded) || coded.Code() != pkgerrors.CodeNotFound {
		t.Fatalf("expected NOT_FOUND, got %v", err)
	}
}

func TestCleanupSentRejectsNonPositiveRetention(t *testing.T) {
	svc := newTestService(t, &fakeRepo{}, &fakeSender{})

	_, err := svc.CleanupSent(context.Background(), 0)
	var coded *pkgerrors.Error
	if !errors.As(err, &coded) || coded.Code() != pkgerrors.CodeValidation {
		t.Fatalf("expected VALIDATION_ERROR, got %v", err)
	}
}
