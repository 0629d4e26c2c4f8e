package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/slinky-software/devicevault/internal/lock"
	"github.com/slinky-software/devicevault/internal/middleware"
	"github.com/slinky-software/devicevault/internal/repository"
	"github.com/slinky-software/devicevault/pkg/config"
	"github.com/slinky-software/devicevault/pkg/logger"
)

// SchedulerHandler exposes scheduler state and leadership lock controls
type SchedulerHandler struct {
	states *repository.SchedulerStateRepository
	locker *lock.Client
	cfg    *config.Config
}

// NewSchedulerHandler creates a scheduler handler
func NewSchedulerHandler(states *repository.SchedulerStateRepository, locker *lock.Client, cfg *config.Config) *SchedulerHandler {
	return &SchedulerHandler{
		states: states,
		locker: locker,
		cfg:    cfg,
	}
}

// GetState returns the scheduler singleton state
// GET /api/v1/scheduler/state
func (h *SchedulerHandler) GetState(c *gin.Context) {
	state, err := h.states.Load()
	if err != nil {
		middleware.HandleAppError(c, middleware.NewInternalError(err))
		return
	}

	c.JSON(http.StatusOK, state)
}

// GetLock reports the leadership lock holder and whether that holder is
// still alive on this host
// GET /api/v1/scheduler/lock
func (h *SchedulerHandler) GetLock(c *gin.Context) {
	holder, err := h.locker.CurrentHolder(c.Request.Context(), h.cfg.SchedulerLockKey)
	if err != nil {
		middleware.HandleAppError(c, middleware.NewInternalError(err))
		return
	}

	if holder == "" {
		c.JSON(http.StatusOK, gin.H{
			"key":  h.cfg.SchedulerLockKey,
			"held": false,
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"key":          h.cfg.SchedulerLockKey,
		"held":         true,
		"holder":       holder,
		"holder_alive": lock.HolderAlive(holder),
	})
}

// ClearLock force-clears the leadership lock. Administrative recovery
// after a crashed leader on another host; a live leader will fail its
// next renew and exit.
// DELETE /api/v1/scheduler/lock
func (h *SchedulerHandler) ClearLock(c *gin.Context) {
	holder, err := h.locker.ForceClear(c.Request.Context(), h.cfg.SchedulerLockKey)
	if err != nil {
		middleware.HandleAppError(c, middleware.NewInternalError(err))
		return
	}

	if holder == "" {
		c.JSON(http.StatusOK, gin.H{
			"cleared": false,
			"reason":  "lock was not held",
		})
		return
	}

	logger.Warn("Scheduler lock force-cleared via API", map[string]interface{}{
		"key":             h.cfg.SchedulerLockKey,
		"previous_holder": holder,
	})

	c.JSON(http.StatusOK, gin.H{
		"cleared":         true,
		"previous_holder": holder,
	})
}
