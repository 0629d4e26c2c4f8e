package api

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/slinky-software/devicevault/internal/dispatch"
	"github.com/slinky-software/devicevault/internal/middleware"
	"github.com/slinky-software/devicevault/internal/repository"
)

const defaultListLimit = 50

// BackupHandler serves manual backup triggers and result listings
type BackupHandler struct {
	devices    *repository.DeviceRepository
	results    *repository.ResultRepository
	dispatcher *dispatch.Dispatcher
}

// NewBackupHandler creates a backup handler
func NewBackupHandler(devices *repository.DeviceRepository, results *repository.ResultRepository, dispatcher *dispatch.Dispatcher) *BackupHandler {
	return &BackupHandler{
		devices:    devices,
		results:    results,
		dispatcher: dispatcher,
	}
}

// TriggerBackup enqueues an immediate collection job for one device
// POST /api/v1/devices/:id/backup
func (h *BackupHandler) TriggerBackup(c *gin.Context) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil {
		middleware.HandleAppError(c, middleware.NewBadRequestError("invalid device id"))
		return
	}

	device, err := h.devices.FindByID(uint(id))
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			middleware.HandleAppError(c, middleware.NewNotFoundError("device"))
			return
		}
		middleware.HandleAppError(c, middleware.NewInternalError(err))
		return
	}

	if !device.Enabled {
		middleware.HandleAppError(c, middleware.NewBadRequestError("device is disabled"))
		return
	}

	taskIdentifier, err := h.dispatcher.Dispatch(c.Request.Context(), device, dispatch.TriggerManual)
	if err != nil {
		middleware.HandleAppError(c, middleware.NewInternalError(err))
		return
	}

	c.JSON(http.StatusAccepted, gin.H{
		"device_id":       device.ID,
		"task_identifier": taskIdentifier,
		"trigger":         dispatch.TriggerManual,
	})
}

// ListResults returns recent collection results
// GET /api/v1/results
func (h *BackupHandler) ListResults(c *gin.Context) {
	limit := listLimit(c)

	results, err := h.results.RecentResults(limit)
	if err != nil {
		middleware.HandleAppError(c, middleware.NewInternalError(err))
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"results": results,
		"count":   len(results),
	})
}

// ListStoredBackups returns recent storage outcomes
// GET /api/v1/stored-backups
func (h *BackupHandler) ListStoredBackups(c *gin.Context) {
	limit := listLimit(c)

	stored, err := h.results.RecentStoredBackups(limit)
	if err != nil {
		middleware.HandleAppError(c, middleware.NewInternalError(err))
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"stored_backups": stored,
		"count":          len(stored),
	})
}

func listLimit(c *gin.Context) int {
	limit, err := strconv.Atoi(c.DefaultQuery("limit", strconv.Itoa(defaultListLimit)))
	if err != nil || limit < 1 || limit > 500 {
		return defaultListLimit
	}
	return limit
}
