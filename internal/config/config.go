package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// ErrMissing marks a required setting an administrator has not declared.
var ErrMissing = errors.New("config: required setting missing")

// Config is the validated, read-only runtime configuration. A nil slice means
// the setting was never declared; an empty non-nil slice means it was declared
// empty. Policy code relies on that distinction.
type Config struct {
	ListenAddr   string
	DatabaseDSN  string
	DirectoryURL string
	GroupsURL    string

	// AuthKey keys the deterministic credential and token derivation.
	AuthKey []byte

	// SuperUsers is the static super-user login list. Required: an
	// undeclared list aborts authentication rather than defaulting to
	// "no super users".
	SuperUsers []string

	// DefaultResources are the resource ids new viewable users receive
	// view access to. Required, no default.
	DefaultResources []string

	// UseGroupPolicy switches viewability to the group-membership service
	// when Group and Project are also set.
	UseGroupPolicy bool
	Group          string
	Project        string

	// ViewableUsers is the newline-delimited allow-list. Empty means every
	// login is viewable.
	ViewableUsers string

	CookieName   string
	CookiePath   string
	CookieSecure bool
	SessionTTL   time.Duration
}

// Load reads configuration from the given file (YAML) plus PKIGATE_* env
// overrides and validates required settings up front so misconfiguration
// surfaces at startup, not on the first login.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetEnvPrefix("PKIGATE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetDefault("listen_addr", ":8443")
	v.SetDefault("cookie_name", "pkigate_session")
	v.SetDefault("cookie_path", "/")
	v.SetDefault("cookie_secure", true)
	v.SetDefault("session_ttl", "12h")

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("config: read %s: %w", path, err)
		}
	}

	cfg := &Config{
		ListenAddr:     v.GetString("listen_addr"),
		DatabaseDSN:    v.GetString("database_dsn"),
		DirectoryURL:   v.GetString("directory_url"),
		GroupsURL:      v.GetString("groups_url"),
		UseGroupPolicy: v.GetBool("use_group_policy"),
		Group:          v.GetString("group"),
		Project:        v.GetString("project"),
		ViewableUsers:  v.GetString("viewable_users"),
		CookieName:     v.GetString("cookie_name"),
		CookiePath:     v.GetString("cookie_path"),
		CookieSecure:   v.GetBool("cookie_secure"),
		SessionTTL:     v.GetDuration("session_ttl"),
	}

	if key := v.GetString("auth_key"); key != "" {
		cfg.AuthKey = []byte(key)
	}
	if v.IsSet("superusers") {
		cfg.SuperUsers = nonNil(v.GetStringSlice("superusers"))
	}
	if v.IsSet("default_resources") {
		cfg.DefaultResources = nonNil(v.GetStringSlice("default_resources"))
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate enforces the required-settings contract.
func (c *Config) Validate() error {
	if len(c.AuthKey) == 0 {
		return fmt.Errorf("%w: auth_key", ErrMissing)
	}
	if c.SuperUsers == nil {
		return fmt.Errorf("%w: superusers (declare the list even if empty)", ErrMissing)
	}
	if c.DefaultResources == nil {
		return fmt.Errorf("%w: default_resources", ErrMissing)
	}
	if c.UseGroupPolicy && (c.Group == "" || c.Project == "") {
		return fmt.Errorf("%w: group and project are required with use_group_policy", ErrMissing)
	}
	return nil
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
