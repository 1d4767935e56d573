package domain

import "time"

const (
	DefaultEstimatedServiceMinutes = 5
	DefaultNoShowTimeoutMinutes    = 5
)

// QueueSettings is the per-queue configuration value. Instances are
// immutable from the aggregate's point of view and replaced wholesale
// through Queue.UpdateSettings.
type QueueSettings struct {
	// MaxQueueSize caps the number of waiting customers; nil means unlimited.
	MaxQueueSize *int

	// EstimatedServiceMinutes is informational only; nothing in the core
	// enforces it.
	EstimatedServiceMinutes int

	// NoShowTimeoutMinutes drives the background sweep's eligibility test.
	NoShowTimeoutMinutes int

	// AllowJoinWhenPaused lets customers keep joining while the queue is
	// paused. Enforced at the join-service boundary, not inside AddCustomer.
	AllowJoinWhenPaused bool

	// NearFrontThreshold triggers a one-time alert once a waiting
	// customer's position drops to or below it; nil disables the alert.
	NearFrontThreshold *int

	WelcomeMessage *string
	CalledMessage  *string
}

// DefaultQueueSettings returns settings for a freshly created queue.
func DefaultQueueSettings() QueueSettings {
	return QueueSettings{
		EstimatedServiceMinutes: DefaultEstimatedServiceMinutes,
		NoShowTimeoutMinutes:    DefaultNoShowTimeoutMinutes,
	}
}

// NoShowTimeout returns the timeout as a duration.
func (s QueueSettings) NoShowTimeout() time.Duration {
	return time.Duration(s.NoShowTimeoutMinutes) * time.Minute
}

// normalized fills zero-valued durations with defaults so a wholesale
// settings replacement cannot disable the timers by accident.
func (s QueueSettings) normalized() QueueSettings {
	if s.EstimatedServiceMinutes <= 0 {
		s.EstimatedServiceMinutes = DefaultEstimatedServiceMinutes
	}
	if s.NoShowTimeoutMinutes <= 0 {
		s.NoShowTimeoutMinutes = DefaultNoShowTimeoutMinutes
	}
	return s
}
