// Package decay computes the display fading applied to disaster events as
// they age. The mapping is pure: age in hours determines a category and an
// opacity, nothing else.
package decay

import (
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/relief-net/disaster-intel/pkg/types"
)

// Category bands by age in hours.
const (
	CategoryFresh     = "fresh"      // < 1h
	CategoryRecent    = "recent"     // < 6h
	CategoryOld       = "old"        // < 24h
	CategoryStale     = "stale"      // < 48h
	CategoryVeryStale = "very_stale" // >= 48h
	CategoryUnknown   = "unknown"    // missing or invalid timestamp
)

// UnknownDecayScore is the neutral opacity for events with no usable
// timestamp.
const UnknownDecayScore = 0.5

// Service maps event timestamps to decay categories against an injectable
// clock.
type Service struct {
	clock clockwork.Clock
}

// NewService returns a decay service using the real clock.
func NewService() *Service {
	return &Service{clock: clockwork.NewRealClock()}
}

// NewServiceWithClock returns a decay service on the given clock. Tests use
// a fake clock.
func NewServiceWithClock(clock clockwork.Clock) *Service {
	return &Service{clock: clock}
}

// AgeHours returns the event age in hours relative to now, clamped to zero
// for future timestamps.
func (s *Service) AgeHours(ts time.Time) float64 {
	return AgeHoursAt(ts, s.clock.Now())
}

// AgeHoursAt returns the age of ts relative to the reference time, clamped
// to zero.
func AgeHoursAt(ts, reference time.Time) float64 {
	age := reference.Sub(ts).Hours()
	if age < 0 {
		return 0
	}
	return age
}

// CategoryFor returns the category band for an age in hours.
func CategoryFor(ageHours float64) string {
	switch {
	case ageHours < 1:
		return CategoryFresh
	case ageHours < 6:
		return CategoryRecent
	case ageHours < 24:
		return CategoryOld
	case ageHours < 48:
		return CategoryStale
	default:
		return CategoryVeryStale
	}
}

// ScoreFor returns the display opacity for an age in hours.
func ScoreFor(ageHours float64) float64 {
	switch CategoryFor(ageHours) {
	case CategoryFresh:
		return 1.0
	case CategoryRecent:
		return 0.8
	case CategoryOld:
		return 0.6
	case CategoryStale:
		return 0.4
	default:
		return 0.2
	}
}

// Compute returns the full decay record for an event timestamp. A zero
// timestamp yields the unknown category with a neutral score.
func (s *Service) Compute(ts time.Time) types.TimeDecay {
	return ComputeAt(ts, s.clock.Now())
}

// ComputeAt is Compute against an explicit reference time.
func ComputeAt(ts, reference time.Time) types.TimeDecay {
	if ts.IsZero() {
		return types.TimeDecay{
			AgeHours:   nil,
			Category:   CategoryUnknown,
			DecayScore: UnknownDecayScore,
		}
	}
	age := AgeHoursAt(ts, reference)
	return types.TimeDecay{
		AgeHours:   &age,
		Category:   CategoryFor(age),
		DecayScore: ScoreFor(age),
	}
}

// Annotate fills the TimeDecay field on every event in place.
func (s *Service) Annotate(events []types.DisasterEvent) {
	now := s.clock.Now()
	for i := range events {
		d := ComputeAt(events[i].Timestamp, now)
		events[i].TimeDecay = &d
	}
}
