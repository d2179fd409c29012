// Package config loads the server's own on-disk preferences. The conversion
// pipeline itself treats this loader as an external collaborator (SPEC_FULL.md
// §1): it only needs a ready Config value and a way to pick up changes
// without restarting the process.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"time"

	"gopkg.in/ini.v1"
	"gopkg.in/yaml.v3"

	"github.com/subconverter-go/subconverter/node"
)

// RulesetDecl is one process-wide default ruleset declaration, the
// "ruleset=<group>,<url>" lines of pref.ini / the `rulesets:` list of
// pref.yml.
type RulesetDecl struct {
	Group string `yaml:"group" ini:"group"`
	URL   string `yaml:"url" ini:"url"`
}

// Config holds every tunable the process reads at startup and may reload on
// SIGHUP/`/api/config` POST. It is loaded once and then shared read-only
// across workers via Store's atomic snapshot swap (SPEC_FULL.md §4.2).
type Config struct {
	ListenAddr             string `yaml:"listen_addr" ini:"listen_addr"`
	MaxConcurrentThreads   int    `yaml:"max_concurrent_threads" ini:"max_concurrent_threads"`
	MaxPendingConnections  int    `yaml:"max_pending_connections" ini:"max_pending_connections"`

	RequestTimeout time.Duration `yaml:"request_timeout" ini:"request_timeout"`

	// DefaultCacheTTL applies to subscription and ruleset fetches when the
	// request/declaration does not specify its own TTL.
	DefaultCacheTTL int    `yaml:"default_cache_ttl" ini:"default_cache_ttl"`
	CacheDir        string `yaml:"cache_dir" ini:"cache_dir"`

	// MaxAllowedRules is the single canonical name for the ruleset line
	// cap; the alternate INI spelling "max_allowed_rules" from legacy
	// configs is accepted as an alias by the INI loader below (open
	// question resolved in SPEC_FULL.md §7).
	MaxAllowedRules int `yaml:"max_allowed_rules" ini:"max_allowed_rules"`

	APIAccessToken string `yaml:"api_access_token" ini:"api_access_token"`
	ManagedConfigPrefix string `yaml:"managed_config_prefix" ini:"managed_config_prefix"`

	// UserAgent is both the outbound fetch UA and the self-recursion loop
	// guard string compared against incoming requests.
	UserAgent string `yaml:"user_agent" ini:"user_agent"`

	// OutboundProxy is the proxy used when fetching subscriptions/rulesets:
	// "" or "NONE" (direct), "SYSTEM" (environment-derived), or an explicit
	// socks5://, http://, https:// URL.
	OutboundProxy string `yaml:"outbound_proxy" ini:"outbound_proxy"`

	EnableInsert bool     `yaml:"enable_insert" ini:"enable_insert"`
	InsertURLs   []string `yaml:"insert_urls" ini:"-"`

	AddEmoji       bool `yaml:"add_emoji" ini:"add_emoji"`
	RemoveOldEmoji bool `yaml:"remove_old_emoji" ini:"remove_old_emoji"`
	DefaultSort    bool `yaml:"sort_flag" ini:"sort_flag"`

	ClashNewFieldName bool `yaml:"clash_use_new_field_name" ini:"clash_use_new_field_name"`
	OverwriteOriginalRules bool `yaml:"overwrite_original_rules" ini:"overwrite_original_rules"`

	// BaseTemplates maps a target name (clash, surge, surfboard, loon, ...)
	// to the URL/path of its base template, fetched via the fetcher before
	// an emitter runs.
	BaseTemplates map[string]string `yaml:"base_templates" ini:"-"`

	Rulesets []RulesetDecl `yaml:"rulesets" ini:"-"`

	Rename []node.RenameRule `yaml:"rename" ini:"-"`
	Emoji  []node.EmojiRule  `yaml:"emoji" ini:"-"`

	// StreamRules and TimeRules are "pattern|replacement" entries scanned
	// against each node's remark to recover Subscription-Userinfo traffic/
	// expiry figures when the upstream response carries no such header
	// (spec.md §6 "Subscription-UserInfo parsing"; original_source's
	// stream_rule/time_rule declarations).
	StreamRules []string `yaml:"stream_rules" ini:"-"`
	TimeRules   []string `yaml:"time_rules" ini:"-"`

	EnableScripting bool `yaml:"enable_scripting" ini:"enable_scripting"`
	ScriptTimeout   time.Duration `yaml:"script_timeout" ini:"script_timeout"`

	// AllowLocalFileSubscriptions permits "scope_limit=false" filesystem
	// fetches for requests carrying a valid access token.
	AllowLocalFileSubscriptions bool `yaml:"allow_local_file_subscriptions" ini:"allow_local_file_subscriptions"`

	// ProfileDir holds server-side profile INI files served by /getprofile.
	ProfileDir string `yaml:"profile_dir" ini:"profile_dir"`

	// TemplateIncludeRoot sandboxes `{% include %}` statements evaluated by
	// the template engine (spec.md §4.C7 "sandboxed").
	TemplateIncludeRoot string `yaml:"template_include_root" ini:"template_include_root"`
}

// DefaultConfig returns a fresh Config pre-filled with the defaults named in
// SPEC_FULL.md / spec.md §5-§6. Each call returns an independent copy.
func DefaultConfig() *Config {
	return &Config{
		ListenAddr:            ":25500",
		MaxConcurrentThreads:  4,
		MaxPendingConnections: 10,
		RequestTimeout:        15 * time.Second,
		DefaultCacheTTL:       600,
		CacheDir:              "cache",
		MaxAllowedRules:       0,
		UserAgent:             "subconverter/0.1 (https://github.com/subconverter-go/subconverter)",
		OutboundProxy:         "NONE",
		AddEmoji:              false,
		RemoveOldEmoji:        false,
		DefaultSort:           false,
		ClashNewFieldName:     true,
		OverwriteOriginalRules: false,
		BaseTemplates:         map[string]string{},
		ProfileDir:            "profiles",
		TemplateIncludeRoot:   "templates",
		EnableScripting:       true,
		ScriptTimeout:         5 * time.Second,
	}
}

// LoadConfig reads either a YAML (pref.yml, preferred) or an INI (pref.ini,
// legacy) process configuration file, dispatching on the file extension.
func LoadConfig(filename string) (*Config, error) {
	switch ext := strings.ToLower(filepath.Ext(filename)); ext {
	case ".yml", ".yaml":
		return loadYAML(filename)
	case ".ini":
		return loadINI(filename)
	default:
		return nil, fmt.Errorf("config: unrecognised extension %q for %q", ext, filename)
	}
}

func loadYAML(filename string) (*Config, error) {
	data, err := os.ReadFile(filename) // #nosec G304 – filename is caller-provided config path
	if err != nil {
		return nil, fmt.Errorf("config: read %q: %w", filename, err)
	}
	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("config: decode yaml %q: %w", filename, err)
	}
	return cfg, nil
}

func loadINI(filename string) (*Config, error) {
	f, err := ini.LoadSources(ini.LoadOptions{AllowShadows: true}, filename)
	if err != nil {
		return nil, fmt.Errorf("config: load ini %q: %w", filename, err)
	}
	cfg := DefaultConfig()

	common := f.Section("common")
	if common.HasKey("api_access_token") {
		cfg.APIAccessToken = common.Key("api_access_token").String()
	}
	if common.HasKey("default_url") {
		cfg.InsertURLs = common.Key("default_url").Strings("|")
	}
	if common.HasKey("stream_rule") {
		cfg.StreamRules = common.Key("stream_rule").ValueWithShadows()
	}
	if common.HasKey("time_rule") {
		cfg.TimeRules = common.Key("time_rule").ValueWithShadows()
	}
	// The legacy spelling differs between YAML and INI configs for the
	// rule cap; accept both, canonicalising to MaxAllowedRules.
	for _, alias := range []string{"max_allowed_rules", "max_allowed_rule"} {
		if common.HasKey(alias) {
			if v, err := common.Key(alias).Int(); err == nil {
				cfg.MaxAllowedRules = v
			}
			break
		}
	}

	node := f.Section("server")
	if node.HasKey("listen") {
		cfg.ListenAddr = node.Key("listen").String()
	}
	if node.HasKey("max_concurrent_threads") {
		if v, err := node.Key("max_concurrent_threads").Int(); err == nil {
			cfg.MaxConcurrentThreads = v
		}
	}
	if node.HasKey("max_pending_connections") {
		if v, err := node.Key("max_pending_connections").Int(); err == nil {
			cfg.MaxPendingConnections = v
		}
	}

	for _, sec := range f.Sections() {
		if !strings.HasPrefix(sec.Name(), "ruleset") {
			continue
		}
		for _, key := range sec.Keys() {
			parts := strings.SplitN(key.Value(), ",", 2)
			if len(parts) != 2 {
				continue
			}
			cfg.Rulesets = append(cfg.Rulesets, RulesetDecl{Group: strings.TrimSpace(parts[0]), URL: strings.TrimSpace(parts[1])})
		}
	}

	return cfg, nil
}

// Store is an atomic snapshot holder: the reload path Stores a freshly
// loaded *Config wholesale; request workers Load it once at request entry
// and keep that pointer for the request's whole lifetime, so a reload
// mid-flight never tears a request's view of config (SPEC_FULL.md §4.2).
type Store struct {
	ptr atomic.Pointer[Config]
}

// NewStore constructs a Store pre-seeded with cfg.
func NewStore(cfg *Config) *Store {
	s := &Store{}
	s.ptr.Store(cfg)
	return s
}

// Load returns the current snapshot.
func (s *Store) Load() *Config { return s.ptr.Load() }

// Swap atomically replaces the snapshot.
func (s *Store) Swap(cfg *Config) { s.ptr.Store(cfg) }
