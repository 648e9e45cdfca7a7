package http

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/campus-activity/checkin-engine/internal/domain/attendance"
	"github.com/campus-activity/checkin-engine/internal/handler/http/response"
	"github.com/campus-activity/checkin-engine/internal/pkg/cron"
	"github.com/campus-activity/checkin-engine/internal/pkg/jwt"
	"github.com/campus-activity/checkin-engine/internal/pkg/sse"
)

const defaultKeepalive = 30 * time.Second

type EventHandler interface {
	Stream(w http.ResponseWriter, r *http.Request)
}

type eventHandlerImpl struct {
	hub            *sse.Hub
	checkInService attendance.CheckInService
	keepalive      time.Duration
}

func NewEventHandler(hub *sse.Hub, checkInService attendance.CheckInService) EventHandler {
	return &eventHandlerImpl{
		hub:            hub,
		checkInService: checkInService,
		keepalive:      defaultKeepalive,
	}
}

// Stream handles the SSE connection that pushes board changes for one activity
func (h *eventHandlerImpl) Stream(w http.ResponseWriter, r *http.Request) {
	claims, err := jwt.ClaimsFromContext(r.Context())
	if err != nil {
		response.HandleError(w, err)
		return
	}

	activityID := r.URL.Query().Get("activity_id")
	if activityID == "" {
		response.BadRequest(w, "Query parameter 'activity_id' is required", nil)
		return
	}

	// Check if streaming is supported
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "Streaming not supported", http.StatusInternalServerError)
		return
	}

	view, err := h.checkInService.Board(r.Context(), activityID, claims.UserID)
	if err != nil {
		response.HandleError(w, err)
		return
	}

	// Set SSE headers
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")

	events, cleanup := h.hub.Subscribe(sse.BoardTopic(activityID, claims.UserID))
	defer cleanup()

	writeEvent(w, "connected", map[string]string{"status": "connected", "activity_id": activityID})
	writeEvent(w, cron.EventBoard, attendance.ToBoardResponse(view))
	flusher.Flush()

	keepalive := time.NewTicker(h.keepalive)
	defer keepalive.Stop()

	for {
		select {
		case event, ok := <-events:
			if !ok {
				return
			}
			writeEvent(w, event.Event, event.Data)
			flusher.Flush()

		case <-keepalive.C:
			fmt.Fprintf(w, "event: ping\ndata: {\"timestamp\":%d}\n\n", time.Now().Unix())
			flusher.Flush()

		case <-r.Context().Done():
			return
		}
	}
}

func writeEvent(w http.ResponseWriter, name string, data interface{}) {
	payload, err := json.Marshal(data)
	if err != nil {
		return
	}
	fmt.Fprintf(w, "event: %s\ndata: %s\n\n", name, payload)
}
