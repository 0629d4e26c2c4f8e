package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/gin-gonic/gin"
	"github.com/glebarez/sqlite"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/slinky-software/devicevault/internal/dispatch"
	"github.com/slinky-software/devicevault/internal/lock"
	"github.com/slinky-software/devicevault/internal/models"
	"github.com/slinky-software/devicevault/internal/queue"
	"github.com/slinky-software/devicevault/internal/repository"
	"github.com/slinky-software/devicevault/pkg/config"
)

type fakePublisher struct {
	published []struct {
		queueName string
		body      []byte
	}
}

func (f *fakePublisher) Publish(ctx context.Context, queueName string, body []byte) error {
	f.published = append(f.published, struct {
		queueName string
		body      []byte
	}{queueName, body})
	return nil
}

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	require.NoError(t, err)
	require.NoError(t, repository.Migrate(db))
	return db
}

func newBackupRouter(t *testing.T, db *gorm.DB, pub *fakePublisher) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)

	h := NewBackupHandler(
		repository.NewDeviceRepository(db),
		repository.NewResultRepository(db),
		dispatch.NewDispatcher(pub, 240),
	)

	router := gin.New()
	router.POST("/api/v1/devices/:id/backup", h.TriggerBackup)
	router.GET("/api/v1/results", h.ListResults)
	router.GET("/api/v1/stored-backups", h.ListStoredBackups)
	return router
}

func seedDevice(t *testing.T, db *gorm.DB, enabled bool) *models.Device {
	t.Helper()
	device := &models.Device{
		Name:         "sw-core-01",
		IPAddress:    "10.0.0.1",
		BackupMethod: "noop",
		Enabled:      enabled,
	}
	require.NoError(t, db.Create(device).Error)
	return device
}

func TestTriggerBackupDispatchesManualJob(t *testing.T) {
	db := newTestDB(t)
	device := seedDevice(t, db, true)
	pub := &fakePublisher{}
	router := newBackupRouter(t, db, pub)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, fmt.Sprintf("/api/v1/devices/%d/backup", device.ID), nil)
	router.ServeHTTP(w, req)

	require.Equal(t, http.StatusAccepted, w.Code)

	var resp map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.EqualValues(t, device.ID, resp["device_id"])
	assert.Equal(t, "manual", resp["trigger"])
	assert.Contains(t, resp["task_identifier"], fmt.Sprintf("manual:%d:", device.ID))

	require.Len(t, pub.published, 1)
	assert.Equal(t, queue.DefaultCollectionQueue, pub.published[0].queueName)

	var job queue.CollectionJob
	require.NoError(t, json.Unmarshal(pub.published[0].body, &job))
	assert.Equal(t, device.ID, job.DeviceID)
	assert.Equal(t, resp["task_identifier"], job.TaskIdentifier)
}

func TestTriggerBackupUnknownDevice(t *testing.T) {
	db := newTestDB(t)
	pub := &fakePublisher{}
	router := newBackupRouter(t, db, pub)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/v1/devices/999/backup", nil)
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Empty(t, pub.published)
}

func TestTriggerBackupDisabledDevice(t *testing.T) {
	db := newTestDB(t)
	device := seedDevice(t, db, false)
	pub := &fakePublisher{}
	router := newBackupRouter(t, db, pub)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, fmt.Sprintf("/api/v1/devices/%d/backup", device.ID), nil)
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Empty(t, pub.published)
}

func TestTriggerBackupInvalidID(t *testing.T) {
	db := newTestDB(t)
	router := newBackupRouter(t, db, &fakePublisher{})

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/v1/devices/abc/backup", nil)
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestListResultsReturnsRecentFirst(t *testing.T) {
	db := newTestDB(t)
	device := seedDevice(t, db, true)
	router := newBackupRouter(t, db, &fakePublisher{})

	base := time.Date(2026, 8, 27, 1, 0, 0, 0, time.UTC)
	for i := 0; i < 3; i++ {
		require.NoError(t, db.Create(&models.DeviceBackupResult{
			TaskIdentifier: fmt.Sprintf("scheduled:%d:%s", device.ID, base.Add(time.Duration(i)*time.Hour).Format(time.RFC3339)),
			DeviceID:       device.ID,
			Status:         models.StatusSuccess,
			Timestamp:      base.Add(time.Duration(i) * time.Hour),
		}).Error)
	}

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/api/v1/results?limit=2", nil)
	router.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)

	var resp struct {
		Results []models.DeviceBackupResult `json:"results"`
		Count   int                         `json:"count"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, 2, resp.Count)
	require.Len(t, resp.Results, 2)
	assert.True(t, resp.Results[0].Timestamp.After(resp.Results[1].Timestamp))
}

func newSchedulerRouter(t *testing.T, db *gorm.DB) (*gin.Engine, *lock.Client, *config.Config) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	locker := lock.NewClientWithHolder(rdb, "remote-holder")

	cfg := &config.Config{SchedulerLockKey: "test:scheduler:lock"}
	h := NewSchedulerHandler(repository.NewSchedulerStateRepository(db), locker, cfg)

	router := gin.New()
	router.GET("/api/v1/scheduler/lock", h.GetLock)
	router.DELETE("/api/v1/scheduler/lock", h.ClearLock)
	return router, locker, cfg
}

func TestGetLockReportsHolder(t *testing.T) {
	router, locker, cfg := newSchedulerRouter(t, newTestDB(t))

	ok, err := locker.Acquire(context.Background(), cfg.SchedulerLockKey, time.Minute)
	require.NoError(t, err)
	require.True(t, ok)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/api/v1/scheduler/lock", nil)
	router.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)

	var resp map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, true, resp["held"])
	assert.Equal(t, "remote-holder", resp["holder"])
	// Non-numeric holders cannot be probed and are treated as alive
	assert.Equal(t, true, resp["holder_alive"])
}

func TestGetLockWhenNotHeld(t *testing.T) {
	router, _, _ := newSchedulerRouter(t, newTestDB(t))

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/api/v1/scheduler/lock", nil)
	router.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)

	var resp map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, false, resp["held"])
}

func TestClearLockRemovesHolder(t *testing.T) {
	router, locker, cfg := newSchedulerRouter(t, newTestDB(t))
	ctx := context.Background()

	ok, err := locker.Acquire(ctx, cfg.SchedulerLockKey, time.Minute)
	require.NoError(t, err)
	require.True(t, ok)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodDelete, "/api/v1/scheduler/lock", nil)
	router.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)

	var resp map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, true, resp["cleared"])
	assert.Equal(t, "remote-holder", resp["previous_holder"])

	holder, err := locker.CurrentHolder(ctx, cfg.SchedulerLockKey)
	require.NoError(t, err)
	assert.Empty(t, holder)
}
