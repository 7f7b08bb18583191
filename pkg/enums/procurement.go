package enums

import "fmt"

// ProcurementStatus tracks a replenishment worklist row.
type ProcurementStatus string

const (
	ProcurementStatusPending   ProcurementStatus = "pending"
	ProcurementStatusOrdered   ProcurementStatus = "ordered"
	ProcurementStatusReceived  ProcurementStatus = "received"
	ProcurementStatusCancelled ProcurementStatus = "cancelled"
)

var validProcurementStatuses = []ProcurementStatus{
	ProcurementStatusPending,
	ProcurementStatusOrdered,
	ProcurementStatusReceived,
	ProcurementStatusCancelled,
}

// IsValid reports whether the value is a known ProcurementStatus.
func (s ProcurementStatus) IsValid() bool {
	for _, candidate := range validProcurementStatuses {
		if candidate == s {
			return true
		}
	}
	return false
}

// IsTerminal reports whether the row has left the active workflow.
func (s ProcurementStatus) IsTerminal() bool {
	return s == ProcurementStatusReceived || s == ProcurementStatusCancelled
}

// ParseProcurementStatus converts raw input into a ProcurementStatus.
func ParseProcurementStatus(value string) (ProcurementStatus, error) {
	for _, candidate := range validProcurementStatuses {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid procurement status %q", value)
}

// ProcurementPriority orders the replenishment worklist.
type ProcurementPriority string

const (
	ProcurementPriorityLow    ProcurementPriority = "low"
	ProcurementPriorityNormal ProcurementPriority = "normal"
	ProcurementPriorityHigh   ProcurementPriority = "high"
	ProcurementPriorityUrgent ProcurementPriority = "urgent"
)

var validProcurementPriorities = []ProcurementPriority{
	ProcurementPriorityLow,
	ProcurementPriorityNormal,
	ProcurementPriorityHigh,
	ProcurementPriorityUrgent,
}

// IsValid reports whether the value is a known ProcurementPriority.
func (p ProcurementPriority) IsValid() bool {
	for _, candidate := range validProcurementPriorities {
		if candidate == p {
			return true
		}
	}
	return false
}

// ParseProcurementPriority converts raw input into a ProcurementPriority.
func ParseProcurementPriority(value string) (ProcurementPriority, error) {
	for _, candidate := range validProcurementPriorities {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid procurement priority %q", value)
}
