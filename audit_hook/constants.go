package audithook

// Action constants for audit events.
const (
	// Run actions
	ActionRunStarted   = "run.started"
	ActionRunCompleted = "run.completed"

	// Invoice actions
	ActionInvoiceCreated = "invoice.created"
	ActionInvoiceFailed  = "invoice.failed"

	// Customer actions
	ActionCustomerSkipped = "customer.skipped"
)

// Resource constants for audit events.
const (
	ResourceRun      = "run"
	ResourceInvoice  = "invoice"
	ResourceCustomer = "customer"
)

// Category constants for audit events.
const (
	CategoryBilling     = "billing"
	CategoryIntegration = "integration"
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
	OutcomePartial = "partial"
)
