package audithook

// Action constants for audit events.
const (
	// Quota actions
	ActionQuotasUploaded = "quota.uploaded"
	ActionQuotaOver      = "quota.over"

	// Transfer actions
	ActionTransferSimulated = "transfer.simulated"
	ActionTransferCommitted = "transfer.committed"
	ActionTransferRejected  = "transfer.rejected"

	// Usage actions
	ActionSamplesFlushed = "usage.flushed"
)

// Resource constants for audit events.
const (
	ResourceQuota    = "quota"
	ResourceTransfer = "transfer"
	ResourceUsage    = "usage"
)

// Category constants for audit events.
const (
	CategoryAllocation = "allocation"
	CategoryUsage      = "usage"
)

// Severity levels for audit events.
const (
	SeverityInfo     = "info"
	SeverityWarning  = "warning"
	SeverityError    = "error"
	SeverityCritical = "critical"
)

// Outcome values for audit events.
const (
	OutcomeSuccess = "success"
	OutcomeFailure = "failure"
)
