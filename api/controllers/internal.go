package controllers

import (
	"net/http"

	"github.com/mgastelum/tubedigest-backend/api/responses"
	"github.com/mgastelum/tubedigest-backend/api/validators"
	"github.com/mgastelum/tubedigest-backend/internal/notifications"
	"github.com/mgastelum/tubedigest-backend/internal/videos"
	pkgerrors "github.com/mgastelum/tubedigest-backend/pkg/errors"
	"github.com/mgastelum/tubedigest-backend/pkg/logger"
)

const defaultSweepLimit = 20

// ProcessVideos triggers one discovery run across all monitored channels.
// Per-channel failures are reported in the body, not as an HTTP error.
func ProcessVideos(svc videos.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "pipeline service unavailable"))
			return
		}

		report, err := svc.ProcessNewVideos(r.Context())
		if err != nil && report == nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, report)
	}
}

// ListPendingNotifications returns deliverable rows for the scheduler.
func ListPendingNotifications(svc notifications.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "notifications service unavailable"))
			return
		}

		limit, err := validators.ParseQueryInt(r, "limit", defaultSweepLimit, 1, 50)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		pending, err := svc.ListPending(r.Context(), limit)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, map[string]any{"items": pending, "count": len(pending)})
	}
}

// SendPendingNotifications runs one delivery sweep.
func SendPendingNotifications(svc notifications.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "notifications service unavailable"))
			return
		}

		limit, err := validators.ParseQueryInt(r, "limit", defaultSweepLimit, 1, 50)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		result, err := svc.SendPending(r.Context(), limit)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, result)
	}
}
