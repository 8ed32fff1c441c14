package audithook

import "log/slog"

// Option configures an Extension.
type Option func(*Extension)

// WithLogger sets the logger used when the recorder fails.
func WithLogger(logger *slog.Logger) Option {
	return func(e *Extension) { e.logger = logger }
}

// WithEnabledActions audits only the given actions.
func WithEnabledActions(actions ...string) Option {
	return func(e *Extension) { e.enabled = actionSet(actions) }
}

// WithDisabledActions audits everything except the given actions. It can
// be combined with WithEnabledActions to trim an explicit list.
func WithDisabledActions(actions ...string) Option {
	return func(e *Extension) {
		if e.enabled == nil {
			e.enabled = actionSet(allActions())
		}
		for _, a := range actions {
			delete(e.enabled, a)
		}
	}
}

func actionSet(actions []string) map[string]bool {
	set := make(map[string]bool, len(actions))
	for _, a := range actions {
		set[a] = true
	}
	return set
}

func allActions() []string {
	return []string{
		ActionRunStarted,
		ActionRunCompleted,
		ActionInvoiceCreated,
		ActionInvoiceFailed,
		ActionCustomerSkipped,
	}
}
