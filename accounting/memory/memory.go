// Package memory provides an in-process accounting system. It records every
// call, which makes it the collaborator for tests and for simulated runs.
package memory

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/xraph/tally/accounting"
	"github.com/xraph/tally/invoice"
)

var _ accounting.Collaborator = (*Collaborator)(nil)

// Collaborator is a recording accounting system.
type Collaborator struct {
	mu       sync.Mutex
	contacts []accounting.Contact
	invoices []*invoice.Draft
	receipts map[string]accounting.Receipt
	failures map[string]error
	created  []string
	calls    int
	next     int
}

// New returns a Collaborator that knows the given contacts.
func New(contacts ...accounting.Contact) *Collaborator {
	return &Collaborator{
		contacts: append([]accounting.Contact(nil), contacts...),
		receipts: make(map[string]accounting.Receipt),
		failures: make(map[string]error),
	}
}

// FailFor makes CreateInvoice return err for the named contact until
// cleared with a nil err.
func (c *Collaborator) FailFor(contactName string, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err == nil {
		delete(c.failures, contactName)
		return
	}
	c.failures[contactName] = err
}

// ListContacts implements accounting.Collaborator.
func (c *Collaborator) ListContacts(_ context.Context) ([]accounting.Contact, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]accounting.Contact(nil), c.contacts...), nil
}

// FindContact implements accounting.Collaborator. Names compare
// case-insensitively.
func (c *Collaborator) FindContact(_ context.Context, name string) (*accounting.Contact, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for i := range c.contacts {
		if strings.EqualFold(strings.TrimSpace(c.contacts[i].Name), strings.TrimSpace(name)) {
			ct := c.contacts[i]
			return &ct, nil
		}
	}
	return nil, accounting.ErrContactNotFound
}

// CreateContact implements accounting.Collaborator.
func (c *Collaborator) CreateContact(_ context.Context, name string) (*accounting.Contact, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	ct := accounting.Contact{ID: fmt.Sprintf("contact-%04d", len(c.contacts)+1), Name: name}
	c.contacts = append(c.contacts, ct)
	c.created = append(c.created, name)
	return &ct, nil
}

// CreateInvoice implements accounting.Collaborator. A repeated
// IdempotencyKey returns the first receipt without recording a second
// invoice.
func (c *Collaborator) CreateInvoice(_ context.Context, d *invoice.Draft) (accounting.Receipt, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.calls++
	if err, ok := c.failures[d.Contact.Name]; ok {
		return accounting.Receipt{}, err
	}
	if d.IdempotencyKey != "" {
		if r, ok := c.receipts[d.IdempotencyKey]; ok {
			return r, nil
		}
	}

	c.next++
	r := accounting.Receipt{
		InvoiceNumber: fmt.Sprintf("INV-%04d", c.next),
		InvoiceID:     fmt.Sprintf("invoice-%d", c.next),
	}
	cp := *d
	c.invoices = append(c.invoices, &cp)
	if d.IdempotencyKey != "" {
		c.receipts[d.IdempotencyKey] = r
	}
	return r, nil
}

// Invoices returns the drafts accepted so far, in order.
func (c *Collaborator) Invoices() []*invoice.Draft {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]*invoice.Draft(nil), c.invoices...)
}

// InvoicesFor returns the accepted drafts addressed to contactName.
func (c *Collaborator) InvoicesFor(contactName string) []*invoice.Draft {
	c.mu.Lock()
	defer c.mu.Unlock()
	var out []*invoice.Draft
	for _, d := range c.invoices {
		if d.Contact.Name == contactName {
			out = append(out, d)
		}
	}
	return out
}

// Submissions counts every CreateInvoice call, including failed and
// deduplicated ones.
func (c *Collaborator) Submissions() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.calls
}

// CreatedContacts returns the names passed to CreateContact.
func (c *Collaborator) CreatedContacts() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.created...)
}
