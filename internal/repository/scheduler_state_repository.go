package repository

import (
	"sync"
	"time"

	"github.com/slinky-software/devicevault/internal/models"
	"gorm.io/gorm"
)

// schedulerStateCacheTTL bounds how stale a cached state read may be
const schedulerStateCacheTTL = 5 * time.Minute

// SchedulerStateRepository manages the singleton SchedulerState row with an
// explicit time-bounded read-through cache. The database remains the source
// of truth; every Save invalidates the cache.
type SchedulerStateRepository struct {
	db *gorm.DB

	mu       sync.Mutex
	cached   *models.SchedulerState
	cachedAt time.Time
}

// NewSchedulerStateRepository creates a new scheduler state repository
func NewSchedulerStateRepository(db *gorm.DB) *SchedulerStateRepository {
	return &SchedulerStateRepository{db: db}
}

// Load returns the singleton state, creating the row on first use
func (r *SchedulerStateRepository) Load() (*models.SchedulerState, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.cached != nil && time.Since(r.cachedAt) < schedulerStateCacheTTL {
		state := *r.cached
		return &state, nil
	}

	var state models.SchedulerState
	err := r.db.Where(models.SchedulerState{ID: models.SchedulerStateID}).
		Attrs(models.SchedulerState{ID: models.SchedulerStateID}).
		FirstOrCreate(&state).Error
	if err != nil {
		return nil, err
	}

	cached := state
	r.cached = &cached
	r.cachedAt = time.Now()
	return &state, nil
}

// Save persists the singleton state and invalidates the cache
func (r *SchedulerStateRepository) Save(state *models.SchedulerState) error {
	state.ID = models.SchedulerStateID

	r.mu.Lock()
	defer r.mu.Unlock()

	if err := r.db.Save(state).Error; err != nil {
		return err
	}

	r.cached = nil
	return nil
}
