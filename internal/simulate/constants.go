package simulate

import "time"

// Worker configuration constants.
const (
	WorkerChannelMultiplier = 2
)

// Runner configuration constants.
const (
	DefaultSettleWait    = 2 * time.Minute
	DefaultPollInterval  = 250 * time.Millisecond
	PercentageMultiplier = 100
)

// Submission outcomes.
const (
	resultAccepted  = "accepted"
	resultDuplicate = "duplicate"
	resultFailed    = "failed"
)
