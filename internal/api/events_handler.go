package api

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/slinky-software/devicevault/internal/events"
	"github.com/slinky-software/devicevault/internal/middleware"
)

// EventsHandler queries stored pipeline events
type EventsHandler struct{}

// NewEventsHandler creates an events handler
func NewEventsHandler() *EventsHandler {
	return &EventsHandler{}
}

// ListEvents returns pipeline events filtered by query parameters:
// type (repeatable), device_id, task_identifier, start, end, limit
// GET /api/v1/events
func (h *EventsHandler) ListEvents(c *gin.Context) {
	filters := events.EventFilters{
		TaskIdentifier: c.Query("task_identifier"),
		Limit:          listLimit(c),
	}

	for _, t := range c.QueryArray("type") {
		filters.Types = append(filters.Types, events.EventType(t))
	}

	if raw := c.Query("device_id"); raw != "" {
		id, err := strconv.ParseUint(raw, 10, 64)
		if err != nil {
			middleware.HandleAppError(c, middleware.NewBadRequestError("invalid device_id"))
			return
		}
		filters.DeviceID = uint(id)
	}

	if raw := c.Query("start"); raw != "" {
		t, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			middleware.HandleAppError(c, middleware.NewBadRequestError("invalid start time"))
			return
		}
		filters.StartTime = t
	}

	if raw := c.Query("end"); raw != "" {
		t, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			middleware.HandleAppError(c, middleware.NewBadRequestError("invalid end time"))
			return
		}
		filters.EndTime = t
	}

	list, err := events.GetEventBus().Query(filters)
	if err != nil {
		middleware.HandleAppError(c, middleware.NewInternalError(err))
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"events": list,
		"count":  len(list),
	})
}
