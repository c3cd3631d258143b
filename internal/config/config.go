// Package config loads gitddb's open-time options: the closed set named in
// §6/§4.7 of the specification (dbName, localDir, serialize, schema, plus
// the sync sub-options). It is adapted from the teacher's
// internal/config/config.go viper precedence-chain loader — project
// config > user config > defaults, environment variables bound on top —
// generalized from BeadsLog's sprawling open config surface to gitddb's
// much smaller, explicitly closed one: unknown keys are rejected rather
// than silently accepted.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/spf13/viper"

	"github.com/gitddb/gitddb/internal/ddberrors"
	"github.com/gitddb/gitddb/internal/docmodel"
)

// SerializeFormat selects how documents are rendered to bytes on disk.
type SerializeFormat string

const (
	SerializeJSON        SerializeFormat = "json"
	SerializeFrontMatter SerializeFormat = "front-matter"
)

// SyncDirection constrains what a sync run is allowed to do.
type SyncDirection string

const (
	SyncDirectionPush SyncDirection = "push"
	SyncDirectionPull SyncDirection = "pull"
	SyncDirectionBoth SyncDirection = "both"
)

// CombineDbStrategy selects the behavior when local and remote share no
// merge base (§4.8).
type CombineDbStrategy string

const (
	CombineThrowError          CombineDbStrategy = "throw-error"
	CombineHeadWithTheirs      CombineDbStrategy = "combine-head-with-theirs"
)

// MinimumInterval is the system floor for live-sync and retry intervals
// (§4.7's "must exceed a system minimum").
const MinimumInterval = 1 * time.Second

// DefaultRetry is the default retry budget per failed sync attempt.
const DefaultRetry = 3

// SyncOptions is the closed set of sync-session configuration (§4.7).
type SyncOptions struct {
	RemoteURL                  string
	AccessToken                string
	Branch                     string
	Direction                  SyncDirection
	Live                       bool
	Interval                   time.Duration
	Retry                      int
	RetryInterval              time.Duration
	ConflictResolutionStrategy docmodel.Strategy
	CombineDbStrategy          CombineDbStrategy
	IncludeCommits             bool
}

// Options is the closed set of database-open configuration (§6).
type Options struct {
	DbName    string
	LocalDir  string
	Serialize SerializeFormat
	Schema    int
	Sync      *SyncOptions // nil when the database is local-only
}

// knownKeys is the allow-list Load validates AllSettings() against: a
// config carrying any other top-level key is rejected rather than silently
// ignored, per §6's "unknown keys are rejected at open".
var knownKeys = map[string]bool{
	"dbname": true, "localdir": true, "serialize": true, "schema": true,
	"sync.remoteurl": true, "sync.accesstoken": true, "sync.branch": true,
	"sync.direction": true, "sync.live": true, "sync.interval": true,
	"sync.retry": true, "sync.retryinterval": true,
	"sync.conflictresolutionstrategy": true, "sync.combinedbstrategy": true,
	"sync.includecommits": true,
}

// NewViper builds the layered loader: env vars (GITDDB_ prefix) take
// precedence over localDir/.gitddb/config.yaml, which takes precedence
// over $XDG_CONFIG_HOME/gitddb/config.yaml, which takes precedence over
// the defaults set below — the same precedence order as the teacher's
// Initialize(), generalized from a directory-walking project search (bd
// looks for .beads/ in any ancestor) to a single fixed localDir, since a
// gitddb database's location is always explicit.
func NewViper(localDir string) (*viper.Viper, error) {
	v := viper.New()
	v.SetConfigType("yaml")

	configFileSet := false
	if localDir != "" {
		projectConfig := filepath.Join(localDir, ".gitddb", "config.yaml")
		if _, err := os.Stat(projectConfig); err == nil {
			v.SetConfigFile(projectConfig)
			configFileSet = true
		}
	}
	if !configFileSet {
		if configDir, err := os.UserConfigDir(); err == nil {
			userConfig := filepath.Join(configDir, "gitddb", "config.yaml")
			if _, err := os.Stat(userConfig); err == nil {
				v.SetConfigFile(userConfig)
				configFileSet = true
			}
		}
	}

	v.SetEnvPrefix("GITDDB")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetDefault("serialize", string(SerializeJSON))
	v.SetDefault("schema", 1)
	v.SetDefault("sync.direction", string(SyncDirectionBoth))
	v.SetDefault("sync.live", false)
	v.SetDefault("sync.retry", DefaultRetry)
	v.SetDefault("sync.retryinterval", "500ms")
	v.SetDefault("sync.conflictresolutionstrategy", string(docmodel.StrategyOursProp))
	v.SetDefault("sync.combinedbstrategy", string(CombineHeadWithTheirs))
	v.SetDefault("sync.includecommits", false)

	if configFileSet {
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("config: read %s: %w", v.ConfigFileUsed(), err)
		}
	}
	return v, nil
}

// LoadTOML is the alternate loader for environments without YAML tooling
// (grounded on the teacher's BurntSushi/toml use in cmd/bd/formula.go),
// reading the same closed key set from a .gitddb/config.toml file.
func LoadTOML(path string) (*Options, error) {
	var raw struct {
		DbName    string `toml:"dbname"`
		LocalDir  string `toml:"localdir"`
		Serialize string `toml:"serialize"`
		Schema    int    `toml:"schema"`
		Sync      *struct {
			RemoteURL                  string `toml:"remoteurl"`
			AccessToken                string `toml:"accesstoken"`
			Branch                     string `toml:"branch"`
			Direction                  string `toml:"direction"`
			Live                       bool   `toml:"live"`
			IntervalMs                 int    `toml:"interval_ms"`
			Retry                      int    `toml:"retry"`
			RetryIntervalMs            int    `toml:"retryinterval_ms"`
			ConflictResolutionStrategy string `toml:"conflictresolutionstrategy"`
			CombineDbStrategy          string `toml:"combinedbstrategy"`
			IncludeCommits             bool   `toml:"includecommits"`
		} `toml:"sync"`
	}
	if _, err := toml.DecodeFile(path, &raw); err != nil {
		return nil, fmt.Errorf("config: decode %s: %w", path, err)
	}

	opts := &Options{
		DbName:    raw.DbName,
		LocalDir:  raw.LocalDir,
		Serialize: SerializeFormat(raw.Serialize),
		Schema:    raw.Schema,
	}
	if raw.Sync != nil {
		opts.Sync = &SyncOptions{
			RemoteURL:                  raw.Sync.RemoteURL,
			AccessToken:                raw.Sync.AccessToken,
			Branch:                     raw.Sync.Branch,
			Direction:                  SyncDirection(raw.Sync.Direction),
			Live:                       raw.Sync.Live,
			Interval:                   time.Duration(raw.Sync.IntervalMs) * time.Millisecond,
			Retry:                      raw.Sync.Retry,
			RetryInterval:              time.Duration(raw.Sync.RetryIntervalMs) * time.Millisecond,
			ConflictResolutionStrategy: docmodel.Strategy(raw.Sync.ConflictResolutionStrategy),
			CombineDbStrategy:          CombineDbStrategy(raw.Sync.CombineDbStrategy),
			IncludeCommits:             raw.Sync.IncludeCommits,
		}
	}
	return Validate(opts)
}

// Load builds Options from a populated viper instance, rejecting unknown
// top-level keys before applying the §7/§4.7 validation rules.
func Load(v *viper.Viper) (*Options, error) {
	for key := range v.AllSettings() {
		if !knownOrNested(key, v) {
			return nil, fmt.Errorf("config: unrecognized key %q", key)
		}
	}

	opts := &Options{
		DbName:    v.GetString("dbname"),
		LocalDir:  v.GetString("localdir"),
		Serialize: SerializeFormat(v.GetString("serialize")),
		Schema:    v.GetInt("schema"),
	}

	if v.IsSet("sync.remoteurl") || v.IsSet("sync.accesstoken") {
		opts.Sync = &SyncOptions{
			RemoteURL:                  v.GetString("sync.remoteurl"),
			AccessToken:                v.GetString("sync.accesstoken"),
			Branch:                     v.GetString("sync.branch"),
			Direction:                  SyncDirection(v.GetString("sync.direction")),
			Live:                       v.GetBool("sync.live"),
			Interval:                   v.GetDuration("sync.interval"),
			Retry:                      v.GetInt("sync.retry"),
			RetryInterval:              v.GetDuration("sync.retryinterval"),
			ConflictResolutionStrategy: docmodel.Strategy(v.GetString("sync.conflictresolutionstrategy")),
			CombineDbStrategy:          CombineDbStrategy(v.GetString("sync.combinedbstrategy")),
			IncludeCommits:             v.GetBool("sync.includecommits"),
		}
	}
	return Validate(opts)
}

// knownOrNested reports whether a top-level AllSettings() key is either
// itself recognized or is the "sync" map that nests recognized sub-keys
// (viper flattens "sync.branch" into AllSettings()["sync"]["branch"], so
// the top-level key is just "sync").
func knownOrNested(key string, v *viper.Viper) bool {
	if knownKeys[key] {
		return true
	}
	if key != "sync" {
		return false
	}
	for sub := range v.GetStringMap("sync") {
		if !knownKeys["sync."+strings.ToLower(sub)] {
			return false
		}
	}
	return true
}

// Validate enforces the §7 sync-configuration error taxonomy and the
// §4.7 interval constraints, returning *ddberrors.Error on the first
// violation found.
func Validate(opts *Options) (*Options, error) {
	if opts.DbName == "" {
		return nil, ddberrors.New(ddberrors.KindUndefinedDocumentId, "dbName is required")
	}
	if opts.Serialize == "" {
		opts.Serialize = SerializeJSON
	}
	if opts.Sync == nil {
		return opts, nil
	}

	s := opts.Sync
	if s.RemoteURL == "" {
		return nil, ddberrors.New(ddberrors.KindUndefinedRemoteURL, "sync.remoteUrl is required when sync is configured")
	}
	if !strings.HasPrefix(s.RemoteURL, "https://") && !strings.HasPrefix(s.RemoteURL, "http://") && !strings.HasPrefix(s.RemoteURL, "git@") {
		return nil, ddberrors.New(ddberrors.KindHttpProtocolRequired, "sync.remoteUrl must use http(s) or ssh transport")
	}
	if strings.HasPrefix(s.RemoteURL, "http://") && s.AccessToken == "" {
		return nil, ddberrors.New(ddberrors.KindUndefinedAccessToken, "sync.accessToken is required for http remotes")
	}
	if s.Direction == "" {
		s.Direction = SyncDirectionBoth
	}
	if s.Live {
		if s.Interval < MinimumInterval {
			return nil, ddberrors.New(ddberrors.KindIntervalTooSmall, fmt.Sprintf("sync.interval must be >= %s", MinimumInterval))
		}
		if s.RetryInterval >= s.Interval {
			return nil, ddberrors.New(ddberrors.KindSyncIntervalLessThanOrEqualToRetryInterval, "sync.interval must exceed sync.retryInterval")
		}
	}
	if s.Retry <= 0 {
		s.Retry = DefaultRetry
	}
	if s.ConflictResolutionStrategy == "" {
		s.ConflictResolutionStrategy = docmodel.StrategyOursProp
	}
	if s.CombineDbStrategy == "" {
		s.CombineDbStrategy = CombineHeadWithTheirs
	}
	return opts, nil
}
