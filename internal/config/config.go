package config

import (
	"path/filepath"
	"time"

	"github.com/adrg/xdg"
	"github.com/nao1215/threadcap/internal/crawler"
	"github.com/nao1215/threadcap/internal/fetch"
	"github.com/nao1215/threadcap/internal/model"
)

// Default configuration values.
const (
	// DefaultTorProxyAddress is the standard Tor SOCKS5 proxy address.
	// We use 127.0.0.1 instead of localhost to avoid DNS resolution overhead
	// and potential issues with IPv6 resolution on some systems.
	DefaultTorProxyAddress = "127.0.0.1:9050"

	// DefaultTimeout bounds a single HTTP request. Federated servers are
	// usually fast, but paginated reply collections on busy instances are not.
	DefaultTimeout = 30 * time.Second

	// DefaultMaxLevels follows the engine's upper bound, so by default the
	// whole tree is traversed.
	DefaultMaxLevels = crawler.MaxLevelsLimit

	// DefaultBatchSize is the number of snapshot files updated concurrently.
	// The files share one fetcher stack, so rate limits are respected across
	// all of them.
	DefaultBatchSize = 4

	// AppName is the application name used for XDG directory paths.
	AppName = "threadcap"

	// DefaultUserAgent identifies Threadcap in HTTP requests.
	DefaultUserAgent = crawler.DefaultUserAgent

	// DefaultMaxBodySize limits the maximum response body size to read.
	DefaultMaxBodySize = fetch.DefaultMaxBodySize

	// DefaultTorStartupTimeout is the maximum time to wait for the embedded
	// Tor daemon to bootstrap.
	DefaultTorStartupTimeout = 3 * time.Minute

	// DefaultSignMode tries unsigned first and signs hosts that answer 401.
	DefaultSignMode = string(fetch.SignWhenNeeded)
)

// Config holds all configuration options for Threadcap.
// This struct is populated from CLI flags and the .threadcap file and passed
// through the application rather than kept in global state.
//
// Design decision: We use a single flat struct instead of nested structs
// for simplicity. The number of options is manageable, and nesting would
// add complexity without significant benefit.
type Config struct {
	// Targets is the list of root post URLs (capture) or snapshot files (update).
	Targets []string

	// Output is the snapshot file written by capture. Empty means stdout.
	Output string

	// Timeout is the per-request HTTP timeout.
	Timeout time.Duration

	// MaxLevels bounds the number of levels processed in one update.
	MaxLevels int

	// MaxNodes bounds the number of nodes processed in one update.
	// Nil means unbounded.
	MaxNodes *int

	// StartNode restricts the update to the subtree below this node id.
	StartNode string

	// UpdateTime is the staleness threshold as an ISO-8601 instant.
	// Empty means the time the update starts.
	UpdateTime string

	// UserAgent is sent with every request. Remote servers require one.
	UserAgent string

	// BearerToken is sent as an Authorization header with every JSON request.
	BearerToken string

	// SignMode is "when-needed" or "always".
	SignMode string

	// SigningKeyID is the public key id advertised in HTTP signatures.
	SigningKeyID string

	// SigningKeyFile is a PEM file with the private signing key.
	SigningKeyFile string

	// Verbose enables detailed log output using slog.LevelDebug.
	Verbose bool

	// LogJSON switches the log output to JSON lines.
	LogJSON bool

	// BatchSize is the number of snapshot files updated concurrently.
	BatchSize int

	// ConfigFilePath is the path to the configuration file.
	// If empty, the tool searches for .threadcap in the current directory
	// and then in the user's home directory.
	ConfigFilePath string

	// Hosts holds per-host settings loaded from the config file.
	Hosts *File

	// JSONReport selects the JSON renderer. Mutually exclusive with MarkdownReport.
	JSONReport bool

	// MarkdownReport selects the Markdown renderer. Mutually exclusive with JSONReport.
	MarkdownReport bool

	// ReportFile is the output file path for rendered reports.
	ReportFile string

	// Languages lists preferred content languages for rendering, best first.
	Languages []string

	// UseTor routes every request through Tor.
	UseTor bool

	// TorProxyAddress is the address of an external Tor SOCKS5 proxy.
	// When empty and UseTor is set, an embedded Tor daemon is started.
	TorProxyAddress string

	// TorStartupTimeout is the maximum time to wait for the embedded Tor daemon.
	TorStartupTimeout time.Duration

	// DBDir is the directory of the SQLite database.
	// Defaults to the XDG data directory (~/.local/share/threadcap on Linux).
	DBDir string

	// SaveHistory records every update in the database and uses it as a
	// persistent response cache.
	SaveHistory bool

	// MaxBodySize is the maximum response body size in bytes.
	MaxBodySize int64
}

// NewConfig creates a new Config with default values.
//
// Design decision: We use a constructor function instead of relying on
// zero values because many defaults are non-zero.
func NewConfig() *Config {
	return &Config{
		Timeout:           DefaultTimeout,
		MaxLevels:         DefaultMaxLevels,
		UserAgent:         DefaultUserAgent,
		SignMode:          DefaultSignMode,
		BatchSize:         DefaultBatchSize,
		TorStartupTimeout: DefaultTorStartupTimeout,
		DBDir:             XDGDataDir(),
		MaxBodySize:       DefaultMaxBodySize,
	}
}

// XDGDataDir returns the XDG data directory for Threadcap.
// On Linux: ~/.local/share/threadcap
// On macOS: ~/Library/Application Support/threadcap
// On Windows: %LOCALAPPDATA%\threadcap
func XDGDataDir() string {
	return filepath.Join(xdg.DataHome, AppName)
}

// XDGConfigDir returns the XDG config directory for Threadcap.
func XDGConfigDir() string {
	return filepath.Join(xdg.ConfigHome, AppName)
}

// Validate checks if the configuration is valid.
//
// Design decision: We return the first error found rather than collecting
// all errors because fixing one error often makes others irrelevant.
func (c *Config) Validate() error {
	if len(c.Targets) == 0 {
		return ErrNoTarget
	}
	if c.Timeout <= 0 {
		return ErrInvalidTimeout
	}
	if c.MaxLevels < 0 || c.MaxLevels > crawler.MaxLevelsLimit {
		return ErrInvalidMaxLevels
	}
	if c.MaxNodes != nil && *c.MaxNodes < 0 {
		return ErrInvalidMaxNodes
	}
	if c.BatchSize <= 0 {
		return ErrInvalidBatchSize
	}
	if !fetch.SignMode(c.SignMode).Valid() {
		return ErrInvalidSignMode
	}
	if (c.SigningKeyID == "") != (c.SigningKeyFile == "") {
		return ErrSigningKeyIncomplete
	}
	if c.JSONReport && c.MarkdownReport {
		return ErrConflictingOutputFormats
	}
	if c.MaxBodySize < 0 {
		return ErrInvalidMaxBodySize
	}
	if c.UpdateTime != "" {
		if _, err := model.ParseInstant(c.UpdateTime); err != nil {
			return ErrInvalidUpdateTime
		}
	}
	return nil
}

// ApplyFile merges settings from the config file into c.
// Values already set on the command line win.
func (c *Config) ApplyFile(f *File) {
	if f == nil {
		return
	}
	c.Hosts = f
	if c.SigningKeyID == "" && c.SigningKeyFile == "" {
		c.SigningKeyID = f.Signing.KeyID
		c.SigningKeyFile = f.Signing.PrivateKeyFile
	}
	if c.SignMode == DefaultSignMode && f.Signing.Mode != "" {
		c.SignMode = f.Signing.Mode
	}
	if c.UserAgent == DefaultUserAgent && f.Defaults.UserAgent != "" {
		c.UserAgent = f.Defaults.UserAgent
	}
	if c.BearerToken == "" {
		c.BearerToken = f.Defaults.BearerToken
	}
}
