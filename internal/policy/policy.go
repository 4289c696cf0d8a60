package policy

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"pkigate.org/internal/groups"
)

// ErrConfiguration marks a decision that cannot be made because a required
// setting was never declared. Always fatal for the attempt; never silently
// defaulted.
var ErrConfiguration = errors.New("policy: required configuration missing")

// Config holds the static policy inputs. Nil slices mean "never declared";
// the distinction from declared-empty is load-bearing for SuperUsers and
// DefaultResources.
type Config struct {
	SuperUsers       []string
	DefaultResources []string
	UseGroupPolicy   bool
	Group            string
	Project          string
	// ViewableUsers is newline-delimited. Empty means ALL logins are
	// viewable; see IsViewableUser.
	ViewableUsers string
}

// Policy answers the three authorization questions the reconciler asks. All
// answers are recomputed per call; nothing is cached across attempts.
type Policy struct {
	cfg    Config
	groups groups.Checker
}

// New builds a Policy. checker may be nil when group mode is not configured.
func New(cfg Config, checker groups.Checker) *Policy {
	return &Policy{cfg: cfg, groups: checker}
}

// IsSuperUser reports whether login is in the configured super-user list,
// matched exactly and case-sensitively. An undeclared list is a configuration
// error, not false: the administrator must state the set even when it is
// empty, so a missing section cannot masquerade as "no super users".
func (p *Policy) IsSuperUser(login string) (bool, error) {
	if p.cfg.SuperUsers == nil {
		return false, fmt.Errorf("%w: administrator must declare the superusers list", ErrConfiguration)
	}
	for _, su := range p.cfg.SuperUsers {
		if su == login {
			return true, nil
		}
	}
	return false, nil
}

// IsViewableUser decides whether the login may hold any access at all. Group
// mode takes precedence whenever it is fully configured; the allow-list is
// never consulted then. An unreachable membership service surfaces as
// groups.ErrUnreachable so the caller fails closed instead of silently
// denying.
func (p *Policy) IsViewableUser(ctx context.Context, login, subjectDN string) (bool, error) {
	if p.groupMode() {
		if p.groups == nil {
			return false, fmt.Errorf("%w: group policy enabled without a membership service", ErrConfiguration)
		}
		return p.groups.QueryMembership(ctx, subjectDN, p.cfg.Group, p.cfg.Project)
	}

	// List mode. An empty allow-list means every login is viewable. This
	// fail-open default is intentional and is the normal production
	// configuration: access is expected to be restricted upstream (only
	// holders of an accepted certificate reach this code), and the list
	// exists to narrow that population further when needed.
	entries := splitList(p.cfg.ViewableUsers)
	if len(entries) == 0 {
		return true, nil
	}
	for _, e := range entries {
		if e == login {
			return true, nil
		}
	}
	return false, nil
}

// DefaultResourceIDs returns the resources new viewable users receive view
// access to. Undeclared is a configuration error, no default.
func (p *Policy) DefaultResourceIDs() ([]string, error) {
	if p.cfg.DefaultResources == nil {
		return nil, fmt.Errorf("%w: administrator must declare the default resource list", ErrConfiguration)
	}
	out := make([]string, len(p.cfg.DefaultResources))
	copy(out, p.cfg.DefaultResources)
	return out, nil
}

func (p *Policy) groupMode() bool {
	return p.cfg.UseGroupPolicy && p.cfg.Group != "" && p.cfg.Project != ""
}

func splitList(raw string) []string {
	var out []string
	for _, line := range strings.Split(raw, "\n") {
		line = strings.TrimSpace(line)
		if line != "" {
			out = append(out, line)
		}
	}
	return out
}
