package directory

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"time"
)

var (
	// ErrNotFound means the directory answered but holds no record for the DN.
	ErrNotFound = errors.New("directory: subject not found")
	// ErrUnreachable means the directory did not produce a usable answer.
	ErrUnreachable = errors.New("directory: service unreachable")
)

// Record is the attribute set the directory returns for a certificate
// subject. GrantedBy and Organizations feed diagnostic logging only; they are
// never a policy input.
type Record struct {
	UID           string   `json:"uid"`
	FullName      string   `json:"fullName"`
	Email         string   `json:"email"`
	FirstName     string   `json:"firstName"`
	LastName      string   `json:"lastName"`
	GrantedBy     []string `json:"grantBy"`
	Organizations []string `json:"organizations"`
}

// Agency reports the granting agency for log lines: the first grantor if
// present, else the first organization, else "N/A".
func (r *Record) Agency() string {
	if len(r.GrantedBy) > 0 && r.GrantedBy[0] != "" {
		return r.GrantedBy[0]
	}
	if len(r.Organizations) > 0 && r.Organizations[0] != "" {
		return r.Organizations[0]
	}
	return "N/A"
}

// Client resolves a certificate subject DN to its directory record.
type Client interface {
	QueryByDN(ctx context.Context, dn, issuerDN string) (*Record, error)
}

// HTTPClient talks to the directory's REST endpoint.
type HTTPClient struct {
	base   string
	client *http.Client
}

// Option configures HTTPClient.
type Option func(*HTTPClient)

// WithHTTPClient overrides the underlying HTTP client.
func WithHTTPClient(c *http.Client) Option {
	return func(h *HTTPClient) {
		if c != nil {
			h.client = c
		}
	}
}

// NewHTTPClient constructs a client for the directory service rooted at base.
func NewHTTPClient(base string, opts ...Option) *HTTPClient {
	h := &HTTPClient{
		base:   base,
		client: &http.Client{Timeout: 10 * time.Second},
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

func (h *HTTPClient) QueryByDN(ctx context.Context, dn, issuerDN string) (*Record, error) {
	q := url.Values{}
	q.Set("dn", dn)
	if issuerDN != "" {
		q.Set("issuerDn", issuerDN)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, h.base+"/v1/users?"+q.Encode(), nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")

	resp, err := h.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnreachable, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return nil, ErrNotFound
	case resp.StatusCode != http.StatusOK:
		return nil, fmt.Errorf("%w: status %d", ErrUnreachable, resp.StatusCode)
	}

	var rec Record
	if err := json.NewDecoder(resp.Body).Decode(&rec); err != nil {
		return nil, fmt.Errorf("%w: decode: %v", ErrUnreachable, err)
	}
	if rec.UID == "" {
		return nil, ErrNotFound
	}
	return &rec, nil
}

// Static is a fixed DN-to-record map used by tests and the smoke tool.
type Static map[string]Record

func (s Static) QueryByDN(ctx context.Context, dn, issuerDN string) (*Record, error) {
	rec, ok := s[dn]
	if !ok {
		return nil, ErrNotFound
	}
	return &rec, nil
}
