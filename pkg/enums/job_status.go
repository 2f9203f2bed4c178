package enums

import "fmt"

// JobStatus tracks the lifecycle of a repair job.
type JobStatus string

const (
	JobStatusRequested        JobStatus = "requested"
	JobStatusQuoteNegotiating JobStatus = "quote_negotiating"
	JobStatusQuoteAccepted    JobStatus = "quote_accepted"
	JobStatusPickupScheduled  JobStatus = "pickup_scheduled"
	JobStatusInRepair         JobStatus = "in_repair"
	JobStatusRepairCompleted  JobStatus = "repair_completed"
	JobStatusReadyForReturn   JobStatus = "ready_for_return"
	JobStatusReturned         JobStatus = "returned"
	JobStatusCompleted        JobStatus = "completed"
	JobStatusCancelled        JobStatus = "cancelled"
)

var validJobStatuses = []JobStatus{
	JobStatusRequested,
	JobStatusQuoteNegotiating,
	JobStatusQuoteAccepted,
	JobStatusPickupScheduled,
	JobStatusInRepair,
	JobStatusRepairCompleted,
	JobStatusReadyForReturn,
	JobStatusReturned,
	JobStatusCompleted,
	JobStatusCancelled,
}

// String implements fmt.Stringer.
func (j JobStatus) String() string {
	return string(j)
}

// IsValid reports whether the value is a known JobStatus.
func (j JobStatus) IsValid() bool {
	for _, candidate := range validJobStatuses {
		if candidate == j {
			return true
		}
	}
	return false
}

// IsTerminal reports whether no further transitions are allowed.
func (j JobStatus) IsTerminal() bool {
	return j == JobStatusCompleted || j == JobStatusCancelled
}

// ParseJobStatus converts raw input into a JobStatus.
func ParseJobStatus(value string) (JobStatus, error) {
	for _, candidate := range validJobStatuses {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid job status %q", value)
}
