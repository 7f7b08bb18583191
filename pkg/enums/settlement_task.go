package enums

// SettlementTaskKind names the post-commit side effect a task performs.
type SettlementTaskKind string

const (
	SettlementTaskFinancialLedger SettlementTaskKind = "financial_ledger"
	SettlementTaskProcurement     SettlementTaskKind = "procurement"
)

// IsValid reports whether the value is a known SettlementTaskKind.
func (k SettlementTaskKind) IsValid() bool {
	return k == SettlementTaskFinancialLedger || k == SettlementTaskProcurement
}

// SettlementTaskStatus tracks a follow-up task through retries.
type SettlementTaskStatus string

const (
	SettlementTaskPending   SettlementTaskStatus = "pending"
	SettlementTaskSucceeded SettlementTaskStatus = "succeeded"
	SettlementTaskFailed    SettlementTaskStatus = "failed"
	SettlementTaskSkipped   SettlementTaskStatus = "skipped"
	SettlementTaskCancelled SettlementTaskStatus = "cancelled"
	SettlementTaskDead      SettlementTaskStatus = "dead"
)

// IsRunnable reports whether a runner may claim the task.
func (s SettlementTaskStatus) IsRunnable() bool {
	return s == SettlementTaskPending || s == SettlementTaskFailed
}
