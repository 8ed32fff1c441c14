// Package xero implements accounting.Collaborator against the Xero
// Accounting REST API.
package xero

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/failsafe-go/failsafe-go"
	"github.com/failsafe-go/failsafe-go/circuitbreaker"
	"github.com/failsafe-go/failsafe-go/retrypolicy"
	"github.com/go-resty/resty/v2"
	"github.com/google/uuid"
	"golang.org/x/oauth2"

	"github.com/xraph/tally/accounting"
	"github.com/xraph/tally/invoice"
)

const (
	// DefaultBaseURL is the Xero Accounting API root.
	DefaultBaseURL = "https://api.xero.com/api.xro/2.0"

	// TokenURL is Xero's OAuth2 token endpoint.
	TokenURL = "https://identity.xero.com/connect/token"

	pageSize     = 100
	maxErrorBody = 512
	dateLayout   = "2006-01-02"
)

var _ accounting.Collaborator = (*Client)(nil)

// Endpoint is the OAuth2 endpoint for Xero's identity service.
var Endpoint = oauth2.Endpoint{
	AuthURL:  "https://login.xero.com/identity/connect/authorize",
	TokenURL: TokenURL,
}

// Client talks to one Xero organisation. Reads are retried on 429 and 5xx;
// invoice and contact creation go through a circuit breaker only.
type Client struct {
	http   *resty.Client
	reads  failsafe.Executor[*resty.Response]
	writes failsafe.Executor[*resty.Response]
	logger *slog.Logger

	maxRetries int
	baseDelay  time.Duration
	maxDelay   time.Duration
}

// Option configures a Client.
type Option func(*Client)

// WithBaseURL points the client at another API root, e.g. a test server.
func WithBaseURL(u string) Option {
	return func(c *Client) { c.http.SetBaseURL(strings.TrimRight(u, "/")) }
}

// WithTimeout sets the per-request timeout.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) { c.http.SetTimeout(d) }
}

// WithRetry configures the read retry policy.
func WithRetry(maxRetries int, baseDelay, maxDelay time.Duration) Option {
	return func(c *Client) {
		c.maxRetries = maxRetries
		c.baseDelay = baseDelay
		c.maxDelay = maxDelay
	}
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(c *Client) { c.logger = l }
}

// New returns a Client authenticated by ts for the organisation tenantID.
func New(ts oauth2.TokenSource, tenantID string, opts ...Option) *Client {
	hc := oauth2.NewClient(context.Background(), ts)

	c := &Client{
		http: resty.NewWithClient(hc).
			SetBaseURL(DefaultBaseURL).
			SetTimeout(30*time.Second).
			SetHeader("Accept", "application/json").
			SetHeader("xero-tenant-id", tenantID),
		logger:     slog.Default(),
		maxRetries: 3,
		baseDelay:  250 * time.Millisecond,
		maxDelay:   5 * time.Second,
	}
	for _, opt := range opts {
		opt(c)
	}

	retry := retrypolicy.NewBuilder[*resty.Response]().
		HandleIf(shouldRetry).
		WithBackoff(c.baseDelay, c.maxDelay).
		WithMaxRetries(c.maxRetries).
		WithJitterFactor(0.1).
		OnRetry(func(e failsafe.ExecutionEvent[*resty.Response]) {
			c.logger.Warn("xero: retrying request", "attempt", e.Attempts())
		}).
		Build()

	breaker := circuitbreaker.NewBuilder[*resty.Response]().
		HandleIf(func(resp *resty.Response, err error) bool {
			return err != nil || (resp != nil && resp.StatusCode() >= http.StatusInternalServerError)
		}).
		WithFailureThresholdRatio(5, 10).
		WithDelay(30 * time.Second).
		WithSuccessThreshold(1).
		OnStateChanged(func(e circuitbreaker.StateChangedEvent) {
			c.logger.Warn("xero: circuit breaker state change", "from", e.OldState, "to", e.NewState)
		}).
		Build()

	c.reads = failsafe.With(retry)
	c.writes = failsafe.With(breaker)
	return c
}

// NewFromRefreshToken returns a Client whose access tokens are refreshed
// from refreshToken with the app's client credentials.
func NewFromRefreshToken(ctx context.Context, clientID, clientSecret, refreshToken, tenantID string, opts ...Option) *Client {
	cfg := &oauth2.Config{
		ClientID:     clientID,
		ClientSecret: clientSecret,
		Endpoint:     Endpoint,
	}
	return New(cfg.TokenSource(ctx, &oauth2.Token{RefreshToken: refreshToken}), tenantID, opts...)
}

func shouldRetry(resp *resty.Response, err error) bool {
	if err != nil {
		return true
	}
	if resp == nil {
		return true
	}
	code := resp.StatusCode()
	return code == http.StatusTooManyRequests || code >= http.StatusInternalServerError
}

// ==================== Wire types ====================

type contactDTO struct {
	ContactID string `json:"ContactID,omitempty"`
	Name      string `json:"Name"`
}

type contactsEnvelope struct {
	Contacts []contactDTO `json:"Contacts"`
}

type lineItemDTO struct {
	Description string      `json:"Description"`
	Quantity    json.Number `json:"Quantity"`
	UnitAmount  json.Number `json:"UnitAmount"`
	AccountCode string      `json:"AccountCode,omitempty"`
	TaxType     string      `json:"TaxType,omitempty"`
}

type invoiceDTO struct {
	InvoiceID       string        `json:"InvoiceID,omitempty"`
	InvoiceNumber   string        `json:"InvoiceNumber,omitempty"`
	Type            string        `json:"Type,omitempty"`
	Contact         *contactDTO   `json:"Contact,omitempty"`
	Date            string        `json:"Date,omitempty"`
	DueDate         string        `json:"DueDate,omitempty"`
	LineAmountTypes string        `json:"LineAmountTypes,omitempty"`
	Reference       string        `json:"Reference,omitempty"`
	Status          string        `json:"Status,omitempty"`
	CurrencyCode    string        `json:"CurrencyCode,omitempty"`
	LineItems       []lineItemDTO `json:"LineItems,omitempty"`
}

type invoicesEnvelope struct {
	Invoices []invoiceDTO `json:"Invoices"`
}

func toInvoiceDTO(d *invoice.Draft) invoiceDTO {
	items := make([]lineItemDTO, len(d.LineItems))
	for i, li := range d.LineItems {
		items[i] = lineItemDTO{
			Description: li.Description,
			Quantity:    json.Number(strconv.FormatInt(li.Quantity, 10)),
			UnitAmount:  json.Number(li.UnitAmount.Decimal().StringFixed(2)),
			AccountCode: li.AccountCode,
			TaxType:     li.TaxType,
		}
	}
	return invoiceDTO{
		Type:            string(d.Type),
		Contact:         &contactDTO{ContactID: d.Contact.ID, Name: d.Contact.Name},
		Date:            d.Date.Format(dateLayout),
		DueDate:         d.DueDate.Format(dateLayout),
		LineAmountTypes: string(d.AmountTypes),
		Reference:       d.Reference,
		Status:          string(d.Status),
		CurrencyCode:    strings.ToUpper(d.Currency),
		LineItems:       items,
	}
}

// IdempotencyKey derives the Idempotency-Key header for a draft key. The
// same key always yields the same UUID.
func IdempotencyKey(key string) string {
	return uuid.NewSHA1(uuid.NameSpaceURL, []byte("tally:"+key)).String()
}

// ==================== Collaborator ====================

// ListContacts implements accounting.Collaborator. It pages through every
// contact of the organisation.
func (c *Client) ListContacts(ctx context.Context) ([]accounting.Contact, error) {
	var out []accounting.Contact
	for page := 1; ; page++ {
		var env contactsEnvelope
		_, err := c.do(ctx, c.reads, "list contacts", func(r *resty.Request) (*resty.Response, error) {
			return r.SetQueryParam("page", strconv.Itoa(page)).
				SetResult(&env).
				Get("/Contacts")
		})
		if err != nil {
			return nil, err
		}
		for _, ct := range env.Contacts {
			out = append(out, accounting.Contact{ID: ct.ContactID, Name: ct.Name})
		}
		if len(env.Contacts) < pageSize {
			return out, nil
		}
	}
}

// FindContact implements accounting.Collaborator.
func (c *Client) FindContact(ctx context.Context, name string) (*accounting.Contact, error) {
	var env contactsEnvelope
	_, err := c.do(ctx, c.reads, "find contact", func(r *resty.Request) (*resty.Response, error) {
		return r.SetQueryParam("where", fmt.Sprintf(`Name=="%s"`, strings.ReplaceAll(name, `"`, `\"`))).
			SetResult(&env).
			Get("/Contacts")
	})
	if err != nil {
		return nil, err
	}
	if len(env.Contacts) == 0 {
		return nil, accounting.ErrContactNotFound
	}
	ct := env.Contacts[0]
	return &accounting.Contact{ID: ct.ContactID, Name: ct.Name}, nil
}

// CreateContact implements accounting.Collaborator.
func (c *Client) CreateContact(ctx context.Context, name string) (*accounting.Contact, error) {
	var env contactsEnvelope
	_, err := c.do(ctx, c.writes, "create contact", func(r *resty.Request) (*resty.Response, error) {
		return r.SetBody(contactsEnvelope{Contacts: []contactDTO{{Name: name}}}).
			SetResult(&env).
			Post("/Contacts")
	})
	if err != nil {
		return nil, err
	}
	if len(env.Contacts) == 0 {
		return nil, fmt.Errorf("xero: create contact %q: empty response", name)
	}
	ct := env.Contacts[0]
	return &accounting.Contact{ID: ct.ContactID, Name: ct.Name}, nil
}

// CreateInvoice implements accounting.Collaborator. It is sent once; a
// failure is reported to the caller rather than retried.
func (c *Client) CreateInvoice(ctx context.Context, d *invoice.Draft) (accounting.Receipt, error) {
	var env invoicesEnvelope
	_, err := c.do(ctx, c.writes, "create invoice", func(r *resty.Request) (*resty.Response, error) {
		if d.IdempotencyKey != "" {
			r.SetHeader("Idempotency-Key", IdempotencyKey(d.IdempotencyKey))
		}
		return r.SetBody(invoicesEnvelope{Invoices: []invoiceDTO{toInvoiceDTO(d)}}).
			SetResult(&env).
			Post("/Invoices")
	})
	if err != nil {
		return accounting.Receipt{}, err
	}
	if len(env.Invoices) == 0 {
		return accounting.Receipt{}, fmt.Errorf("xero: create invoice for %s: empty response", d.Contact.Name)
	}
	inv := env.Invoices[0]
	return accounting.Receipt{InvoiceNumber: inv.InvoiceNumber, InvoiceID: inv.InvoiceID}, nil
}

func (c *Client) do(
	ctx context.Context,
	exec failsafe.Executor[*resty.Response],
	op string,
	send func(r *resty.Request) (*resty.Response, error),
) (*resty.Response, error) {
	resp, err := exec.WithContext(ctx).Get(func() (*resty.Response, error) {
		return send(c.http.R().SetContext(ctx))
	})
	if resp != nil && resp.IsError() {
		body := resp.String()
		if len(body) > maxErrorBody {
			body = body[:maxErrorBody]
		}
		return nil, &accounting.APIError{Operation: op, StatusCode: resp.StatusCode(), Body: body}
	}
	if err != nil {
		return nil, fmt.Errorf("xero: %s: %w", op, err)
	}
	return resp, nil
}
