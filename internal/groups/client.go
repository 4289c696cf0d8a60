package groups

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"time"
)

// ErrUnreachable means the membership service did not produce an answer. The
// caller must treat the policy as indeterminate, never as a silent deny.
var ErrUnreachable = errors.New("groups: service unreachable")

// Checker answers whether a certificate subject belongs to a group within a
// project.
type Checker interface {
	QueryMembership(ctx context.Context, dn, group, project string) (bool, error)
}

// HTTPChecker queries the membership service's REST endpoint.
type HTTPChecker struct {
	base   string
	client *http.Client
}

// NewHTTPChecker constructs a checker for the service rooted at base.
func NewHTTPChecker(base string) *HTTPChecker {
	return &HTTPChecker{
		base:   base,
		client: &http.Client{Timeout: 10 * time.Second},
	}
}

func (h *HTTPChecker) QueryMembership(ctx context.Context, dn, group, project string) (bool, error) {
	q := url.Values{}
	q.Set("dn", dn)
	q.Set("group", group)
	q.Set("project", project)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, h.base+"/v1/membership?"+q.Encode(), nil)
	if err != nil {
		return false, err
	}
	req.Header.Set("Accept", "application/json")

	resp, err := h.client.Do(req)
	if err != nil {
		return false, fmt.Errorf("%w: %v", ErrUnreachable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return false, fmt.Errorf("%w: status %d", ErrUnreachable, resp.StatusCode)
	}
	var body struct {
		Member bool `json:"member"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return false, fmt.Errorf("%w: decode: %v", ErrUnreachable, err)
	}
	return body.Member, nil
}

// Static answers membership from a fixed DN set; used by tests and the smoke
// tool.
type Static map[string]bool

func (s Static) QueryMembership(ctx context.Context, dn, group, project string) (bool, error) {
	return s[dn], nil
}

// Down is a Checker whose service is always unreachable.
type Down struct{}

func (Down) QueryMembership(ctx context.Context, dn, group, project string) (bool, error) {
	return false, ErrUnreachable
}
