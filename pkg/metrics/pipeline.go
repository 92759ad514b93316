package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// PipelineMetrics tracks the video discovery and delivery pipeline.
type PipelineMetrics struct {
	videosDiscovered  prometheus.Counter
	summariesOK       prometheus.Counter
	summariesFailed   prometheus.Counter
	notificationsSent *prometheus.CounterVec
	quotaDenied       prometheus.Counter
	channelsPaused    prometheus.Counter
}

// NewPipelineMetrics registers the pipeline metrics on the provided registerer.
func NewPipelineMetrics(reg prometheus.Registerer) *PipelineMetrics {
	if reg == nil {
		return &PipelineMetrics{}
	}
	videosDiscovered := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "pipeline_videos_discovered_total",
		Help: "New videos detected across monitored channels.",
	})
	summariesOK := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "pipeline_summaries_generated_total",
		Help: "Summaries generated successfully.",
	})
	summariesFailed := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "pipeline_summaries_failed_total",
		Help: "Summary attempts that ended in an error.",
	})
	notificationsSent := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "pipeline_notifications_total",
		Help: "Notification delivery attempts by outcome.",
	}, []string{"outcome"})
	quotaDenied := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "pipeline_quota_denied_total",
		Help: "Fan-out entries skipped because a user had no quota left.",
	})
	channelsPaused := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "pipeline_channels_paused_total",
		Help: "Channels paused after repeated discovery failures.",
	})
	reg.MustRegister(videosDiscovered, summariesOK, summariesFailed, notificationsSent, quotaDenied, channelsPaused)
	return &PipelineMetrics{
		videosDiscovered:  videosDiscovered,
		summariesOK:       summariesOK,
		summariesFailed:   summariesFailed,
		notificationsSent: notificationsSent,
		quotaDenied:       quotaDenied,
		channelsPaused:    channelsPaused,
	}
}

// AddVideosDiscovered records newly detected videos.
func (p *PipelineMetrics) AddVideosDiscovered(n int) {
	if p == nil || p.videosDiscovered == nil || n <= 0 {
		return
	}
	p.videosDiscovered.Add(float64(n))
}

// IncSummaryGenerated records one successful summary.
func (p *PipelineMetrics) IncSummaryGenerated() {
	if p == nil || p.summariesOK == nil {
		return
	}
	p.summariesOK.Inc()
}

// IncSummaryFailed records one failed summary attempt.
func (p *PipelineMetrics) IncSummaryFailed() {
	if p == nil || p.summariesFailed == nil {
		return
	}
	p.summariesFailed.Inc()
}

// IncNotification records one delivery attempt with the given outcome label.
func (p *PipelineMetrics) IncNotification(outcome string) {
	if p == nil || p.notificationsSent == nil {
		return
	}
	p.notificationsSent.WithLabelValues(normalizeLabel(outcome)).Inc()
}

// IncQuotaDenied records one quota-gated skip.
func (p *PipelineMetrics) IncQuotaDenied() {
	if p == nil || p.quotaDenied == nil {
		return
	}
	p.quotaDenied.Inc()
}

// IncChannelPaused records one channel pause.
func (p *PipelineMetrics) IncChannelPaused() {
	if p == nil || p.channelsPaused == nil {
		return
	}
	p.channelsPaused.Inc()
}
