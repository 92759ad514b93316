package videos

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/mgastelum/tubedigest-backend/pkg/config"
	"github.com/mgastelum/tubedigest-backend/pkg/db/models"
	"github.com/mgastelum/tubedigest-backend/pkg/logger"
	"github.com/mgastelum/tubedigest-backend/pkg/summarize"
	"github.com/mgastelum/tubedigest-backend/pkg/youtube"
)

type fakeVideoRepo struct {
	existing      map[string]bool
	videos        []*models.ProcessedVideo
	notifications []*models.VideoNotification

	createVideoErr        error
	createNotificationErr error
}

func (f *fakeVideoRepo) WithTx(tx *gorm.DB) Repository { return f }

func (f *fakeVideoRepo) ExistsByYouTubeID(ctx context.Context, youtubeVideoID string) (bool, error) {
	return f.existing[youtubeVideoID], nil
}

func (f *fakeVideoRepo) CreateVideo(ctx context.Context, video *models.ProcessedVideo) error {
	if f.createVideoErr != nil {
		return f.createVideoErr
	}
	if f.existing == nil {
		f.existing = map[string]bool{}
	}
	f.existing[video.YouTubeVideoID] = true
	f.videos = append(f.videos, video)
	return nil
}

func (f *fakeVideoRepo) CreateNotification(ctx context.Context, notification *models.VideoNotification) error {
	if f.createNotificationErr != nil {
		return f.createNotificationErr
	}
	f.notifications = append(f.notifications, notification)
	return nil
}

func (f *fakeVideoRepo) FindByID(ctx context.Context, id uuid.UUID) (*models.ProcessedVideo, error) {
	return nil, nil
}

type fakeChannelSource struct {
	channels    []models.Channel
	subscribers map[uuid.UUID][]uuid.UUID

	successCalls  []uuid.UUID
	failureCalls  []uuid.UUID
	lastVideoIDs  map[uuid.UUID]*string
	pauseOnCall   int
	resumeCutoffs []time.Time
	resumed       int64
}

func (f *fakeChannelSource) ListMonitored(ctx context.Context, limit int) ([]models.Channel, error) {
	return f.channels, nil
}

func (f *fakeChannelSource) ActiveSubscriberIDs(ctx context.Context, channelID uuid.UUID) ([]uuid.UUID, error) {
	return f.subscribers[channelID], nil
}

func (f *fakeChannelSource) RecordCheckSuccess(ctx context.Context, channelID uuid.UUID, lastVideoID *string, now time.Time) error {
	f.successCalls = append(f.successCalls, channelID)
	if f.lastVideoIDs == nil {
		f.lastVideoIDs = map[uuid.UUID]*string{}
	}
	f.lastVideoIDs[channelID] = lastVideoID
	return nil
}

func (f *fakeChannelSource) RecordCheckFailure(ctx context.Context, channelID uuid.UUID, pauseAfter int, now time.Time) (bool, error) {
	f.failureCalls = append(f.failureCalls, channelID)
	return f.pauseOnCall > 0 && len(f.failureCalls) >= f.pauseOnCall, nil
}

func (f *fakeChannelSource) ResumePausedBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	f.resumeCutoffs = append(f.resumeCutoffs, cutoff)
	return f.resumed, nil
}

type fakeLister struct {
	videosByChannel map[string][]youtube.Video
	errByChannel    map[string]error
}

func (f *fakeLister) RecentVideos(ctx context.Context, youtubeChannelID string, publishedAfter time.Time, max int64) ([]youtube.Video, error) {
	if err := f.errByChannel[youtubeChannelID]; err != nil {
		return nil, err
	}
	return f.videosByChannel[youtubeChannelID], nil
}

type fakeSummarizer struct {
	err   error
	calls int
}

func (f *fakeSummarizer) Summarize(ctx context.Context, input summarize.VideoInput) (string, error) {
	f.calls++
	if f.err != nil {
		return "", f.err
	}
	return "summary of " + input.Title, nil
}

type fakeQuota struct {
	credits map[uuid.UUID]int
	refunds []uuid.UUID
}

func (f *fakeQuota) ConsumeSummaryCredit(ctx context.Context, userID uuid.UUID) (bool, error) {
	if f.credits[userID] <= 0 {
		return false, nil
	}
	f.credits[userID]--
	return true, nil
}

func (f *fakeQuota) RefundSummaryCredit(ctx context.Context, userID uuid.UUID) error {
	f.refunds = append(f.refunds, userID)
	f.credits[userID]++
	return nil
}

func testChannel(youtubeID string) models.Channel {
	return models.Channel{
		ID:               uuid.New(),
		YouTubeChannelID: youtubeID,
		Title:            "Channel " + youtubeID,
	}
}

func newPipeline(t *testing.T, repo Repository, channels ChannelSource, lister VideoLister, summarizer summarize.Summarizer, quota QuotaConsumer) *service {
	t.Helper()
	svc, err := NewService(ServiceParams{
		Repo:       repo,
		Channels:   channels,
		Lister:     lister,
		Summarizer: summarizer,
		Quota:      quota,
		Logger:     logger.New(logger.Options{ServiceName: "test"}),
		Pipeline:   config.PipelineConfig{ChannelBatchSize: 50, MaxChannelFailures: 5},
	})
	if err != nil {
		t.Fatalf("NewService: %v", err)
	}
	return svc.(*service)
}

func TestProcessNewVideosTwoUserQuotaScenario(t *testing.T) {
	channel := testChannel("UCshared")
	userWithQuota := uuid.New()
	userWithoutQuota := uuid.New()

	repo := &fakeVideoRepo{}
	source := &fakeChannelSource{
		channels:    []models.Channel{channel},
		subscribers: map[uuid.UUID][]uuid.UUID{channel.ID: {userWithQuota, userWithoutQuota}},
	}
	lister := &fakeLister{videosByChannel: map[string][]youtube.Video{
		"UCshared": {{ID: "vid1", Title: "New Upload", PublishedAt: time.Now()}},
	}}
	quota := &fakeQuota{credits: map[uuid.UUID]int{userWithQuota: 5}}

	svc := newPipeline(t, repo, source, lister, &fakeSummarizer{}, quota)
	report, err := svc.ProcessNewVideos(context.Background())
	if err != nil {
		t.Fatalf("ProcessNewVideos: %v", err)
	}

	if report.VideosProcessed != 1 {
		t.Fatalf("expected 1 video processed, got %d", report.VideosProcessed)
	}
	if report.NotificationsCreated != 1 {
		t.Fatalf("expected 1 notification, got %d", report.NotificationsCreated)
	}
	if report.SkippedForQuota != 1 {
		t.Fatalf("expected 1 quota skip, got %d", report.SkippedForQuota)
	}
	if len(repo.notifications) != 1 || repo.notifications[0].UserID != userWithQuota {
		t.Fatalf("notification should belong to the user with quota")
	}
}

func TestProcessNewVideosSummarizerFailureStillInsertsAndFansOut(t *testing.T) {
	channel := testChannel("UCfail")
	user := uuid.New()

	repo := &fakeVideoRepo{}
	source := &fakeChannelSource{
		channels:    []models.Channel{channel},
		subscribers: map[uuid.UUID][]uuid.UUID{channel.ID: {user}},
	}
	lister := &fakeLister{videosByChannel: map[string][]youtube.Video{
		"UCfail": {{ID: "vid1", Title: "Broken Summary", PublishedAt: time.Now()}},
	}}
	quota := &fakeQuota{credits: map[uuid.UUID]int{user: 1}}

	svc := newPipeline(t, repo, source, lister, &fakeSummarizer{err: errors.New("model unavailable")}, quota)
	report, err := svc.ProcessNewVideos(context.Background())
	if err != nil {
		t.Fatalf("ProcessNewVideos: %v", err)
	}

	if report.SummariesFailed != 1 {
		t.Fatalf("expected 1 summary failure, got %d", report.SummariesFailed)
	}
	if len(repo.videos) != 1 {
		t.Fatalf("expected video inserted despite summary failure")
	}
	if repo.videos[0].Summary != nil {
		t.Fatal("expected null summary")
	}
	if report.NotificationsCreated != 1 {
		t.Fatalf("expected fan-out to run, got %d notifications", report.NotificationsCreated)
	}
}

func TestProcessNewVideosIdempotentAcrossRuns(t *testing.T) {
	channel := testChannel("UCidem")
	user := uuid.New()

	repo := &fakeVideoRepo{}
	source := &fakeChannelSource{
		channels:    []models.Channel{channel},
		subscribers: map[uuid.UUID][]uuid.UUID{channel.ID: {user}},
	}
	lister := &fakeLister{videosByChannel: map[string][]youtube.Video{
		"UCidem": {{ID: "vid1", Title: "Same Upload", PublishedAt: time.Now()}},
	}}
	quota := &fakeQuota{credits: map[uuid.UUID]int{user: 10}}

	svc := newPipeline(t, repo, source, lister, &fakeSummarizer{}, quota)
	if _, err := svc.ProcessNewVideos(context.Background()); err != nil {
		t.Fatalf("first run: %v", err)
	}
	report, err := svc.ProcessNewVideos(context.Background())
	if err != nil {
		t.Fatalf("second run: %v", err)
	}

	if report.VideosProcessed != 0 {
		t.Fatalf("expected 0 videos on second run, got %d", report.VideosProcessed)
	}
	if len(repo.videos) != 1 || len(repo.notifications) != 1 {
		t.Fatalf("expected no duplicate rows, got %d videos %d notifications", len(repo.videos), len(repo.notifications))
	}
	if quota.credits[user] != 9 {
		t.Fatalf("expected exactly one credit spent, remaining %d", quota.credits[user])
	}
}

func TestProcessNewVideosChannelFailureDoesNotAbortSiblings(t *testing.T) {
	broken := testChannel("UCbroken")
	healthy := testChannel("UChealthy")
	user := uuid.New()

	repo := &fakeVideoRepo{}
	source := &fakeChannelSource{
		channels:    []models.Channel{broken, healthy},
		subscribers: map[uuid.UUID][]uuid.UUID{healthy.ID: {user}},
	}
	lister := &fakeLister{
		videosByChannel: map[string][]youtube.Video{
			"UChealthy": {{ID: "vid2", Title: "Still Works", PublishedAt: time.Now()}},
		},
		errByChannel: map[string]error{"UCbroken": errors.New("api quota exceeded")},
	}
	quota := &fakeQuota{credits: map[uuid.UUID]int{user: 1}}

	svc := newPipeline(t, repo, source, lister, &fakeSummarizer{}, quota)
	report, err := svc.ProcessNewVideos(context.Background())
	if err == nil {
		t.Fatal("expected aggregated error for the broken channel")
	}

	if report.ChannelsChecked != 2 {
		t.Fatalf("expected both channels checked, got %d", report.ChannelsChecked)
	}
	if report.VideosProcessed != 1 {
		t.Fatalf("healthy channel should still process, got %d", report.VideosProcessed)
	}
	if len(source.failureCalls) != 1 || source.failureCalls[0] != broken.ID {
		t.Fatalf("expected failure recorded for broken channel, got %v", source.failureCalls)
	}
	if _, found := report.ChannelErrors["UCbroken"]; !found {
		t.Fatalf("expected channel error in report, got %v", report.ChannelErrors)
	}
}

func TestProcessNewVideosAdvancesLastVideoID(t *testing.T) {
	channel := testChannel("UCorder")
	repo := &fakeVideoRepo{}
	source := &fakeChannelSource{channels: []models.Channel{channel}}
	older := time.Now().Add(-2 * time.Hour)
	newer := time.Now().Add(-time.Hour)
	lister := &fakeLister{videosByChannel: map[string][]youtube.Video{
		"UCorder": {
			{ID: "newer", Title: "B", PublishedAt: newer},
			{ID: "older", Title: "A", PublishedAt: older},
		},
	}}

	svc := newPipeline(t, repo, source, lister, &fakeSummarizer{}, &fakeQuota{})
	if _, err := svc.ProcessNewVideos(context.Background()); err != nil {
		t.Fatalf("ProcessNewVideos: %v", err)
	}

	got := source.lastVideoIDs[channel.ID]
	if got == nil || *got != "newer" {
		t.Fatalf("expected last video id newer, got %v", got)
	}
	if len(repo.videos) != 2 || repo.videos[0].YouTubeVideoID != "older" {
		t.Fatalf("expected oldest-first processing, got %+v", repo.videos)
	}
}

func TestProcessNewVideosPauseReported(t *testing.T) {
	channel := testChannel("UCflaky")
	source := &fakeChannelSource{
		channels:    []models.Channel{channel},
		pauseOnCall: 1,
	}
	lister := &fakeLister{errByChannel: map[string]error{"UCflaky": errors.New("boom")}}

	svc := newPipeline(t, &fakeVideoRepo{}, source, lister, &fakeSummarizer{}, &fakeQuota{})
	report, err := svc.ProcessNewVideos(context.Background())
	if err == nil {
		t.Fatal("expected error")
	}
	if report.ChannelsPaused != 1 {
		t.Fatalf("expected 1 paused channel, got %d", report.ChannelsPaused)
	}
}

func TestProcessNewVideosReopensCooledDownChannels(t *testing.T) {
	source := &fakeChannelSource{resumed: 2}
	svc := newPipeline(t, &fakeVideoRepo{}, source, &fakeLister{}, &fakeSummarizer{}, &fakeQuota{})

	fixed := time.Date(2026, 2, 10, 12, 0, 0, 0, time.UTC)
	svc.now = func() time.Time { return fixed }
	svc.cfg.PauseRetryAfter = 2 * time.Hour

	if _, err := svc.ProcessNewVideos(context.Background()); err != nil {
		t.Fatalf("ProcessNewVideos: %v", err)
	}
	if len(source.resumeCutoffs) != 1 {
		t.Fatalf("expected one resume sweep, got %d", len(source.resumeCutoffs))
	}
	if got, want := source.resumeCutoffs[0], fixed.Add(-2*time.Hour); !got.Equal(want) {
		t.Fatalf("resume cutoff = %v, want %v", got, want)
	}
}

func TestProcessNewVideosRefundsCreditWhenNotificationInsertFails(t *testing.T) {
	channel := testChannel("UCrefund")
	subscriber := uuid.New()

	repo := &fakeVideoRepo{createNotificationErr: errors.New("insert failed")}
	source := &fakeChannelSource{
		channels:    []models.Channel{channel},
		subscribers: map[uuid.UUID][]uuid.UUID{channel.ID: {subscriber}},
	}
	lister := &fakeLister{videosByChannel: map[string][]youtube.Video{
		"UCrefund": {{ID: "vid1", Title: "New Upload", PublishedAt: time.Now()}},
	}}
	quota := &fakeQuota{credits: map[uuid.UUID]int{subscriber: 1}}

	svc := newPipeline(t, repo, source, lister, &fakeSummarizer{}, quota)
	report, err := svc.ProcessNewVideos(context.Background())
	if err != nil {
		t.Fatalf("ProcessNewVideos: %v", err)
	}

	if report.NotificationsCreated != 0 {
		t.Fatalf("expected no notifications, got %d", report.NotificationsCreated)
	}
	if len(quota.refunds) != 1 || quota.refunds[0] != subscriber {
		t.Fatalf("expected one refund for the subscriber, got %v", quota.refunds)
	}
	if quota.credits[subscriber] != 1 {
		t.Fatalf("expected credit restored, got %d", quota.credits[subscriber])
	}
}
