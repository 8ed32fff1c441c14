// Package accounting defines the external accounting system tally emits
// invoices into.
package accounting

import (
	"context"
	"errors"
	"fmt"

	"github.com/xraph/tally/identity"
	"github.com/xraph/tally/invoice"
)

// ErrContactNotFound is returned by FindContact when no contact has the
// requested name.
var ErrContactNotFound = errors.New("accounting: contact not found")

// Contact is an accounting-system customer.
type Contact = identity.Contact

// Receipt identifies an invoice the accounting system accepted.
type Receipt struct {
	InvoiceNumber string `json:"invoice_number"`
	InvoiceID     string `json:"invoice_id"`
}

// Collaborator is the accounting system. CreateInvoice is never retried by
// tally; implementations should honour Draft.IdempotencyKey where the
// remote API allows it.
type Collaborator interface {
	ListContacts(ctx context.Context) ([]Contact, error)
	FindContact(ctx context.Context, name string) (*Contact, error)
	CreateContact(ctx context.Context, name string) (*Contact, error)
	CreateInvoice(ctx context.Context, d *invoice.Draft) (Receipt, error)
}

// APIError is a non-success response from a remote accounting API.
type APIError struct {
	Operation  string
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("accounting: %s: status %d", e.Operation, e.StatusCode)
	}
	return fmt.Sprintf("accounting: %s: status %d: %s", e.Operation, e.StatusCode, e.Body)
}

// Temporary reports whether the request may succeed if sent again.
func (e *APIError) Temporary() bool {
	return e.StatusCode == 429 || e.StatusCode >= 500
}
