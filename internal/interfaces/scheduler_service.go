package interfaces

import "github.com/ternarybob/macropulse/internal/models"

// SchedulerService runs the periodic indicator poll and cache warm-up.
type SchedulerService interface {
	// Start begins the polling schedule
	Start() error

	// Stop halts the scheduler
	Stop() error

	// TriggerNow runs one poll cycle immediately
	TriggerNow()

	// Latest returns the most recent snapshot, if one has been captured
	Latest() (models.IndicatorSnapshot, bool)
}
