package service

import (
	"time"

	"feed_updater/internal/domain"
)

// DefaultCooldown is how long a validator-less source is left alone after a
// successful update.
const DefaultCooldown = 6 * time.Hour

// ShouldSkip reports whether src can be left out of the run starting at now.
// Only sources without any cache validator that were updated within the
// cooldown are skipped; a validator makes the re-check cheap.
func ShouldSkip(src domain.Source, now time.Time, cooldown time.Duration) bool {
	if src.HasValidator() || src.LastUpdated == nil {
		return false
	}
	return now.Sub(*src.LastUpdated).Abs() < cooldown
}
