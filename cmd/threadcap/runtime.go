package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"maps"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/nao1215/threadcap/internal/cache"
	"github.com/nao1215/threadcap/internal/config"
	"github.com/nao1215/threadcap/internal/crawler"
	"github.com/nao1215/threadcap/internal/database"
	"github.com/nao1215/threadcap/internal/event"
	"github.com/nao1215/threadcap/internal/fetch"
	"github.com/nao1215/threadcap/internal/httpsig"
	"github.com/nao1215/threadcap/internal/log"
	"github.com/nao1215/threadcap/internal/model"
	"github.com/nao1215/threadcap/internal/report"
	"github.com/nao1215/threadcap/internal/tor"
	"github.com/spf13/cobra"
	"golang.org/x/text/language"
)

// addFetchFlags registers the flags shared by every command that talks to
// remote servers.
func addFetchFlags(cmd *cobra.Command) {
	// Request flags
	cmd.Flags().DurationP("timeout", "t", config.DefaultTimeout,
		"Timeout for each HTTP request")
	cmd.Flags().String("user-agent", config.DefaultUserAgent,
		"User-Agent sent with every request")
	cmd.Flags().String("bearer-token", "",
		"Bearer token sent with every request")
	cmd.Flags().Int64("max-body-size", config.DefaultMaxBodySize,
		"Maximum response body size in bytes")

	// Update bounds
	cmd.Flags().IntP("max-levels", "l", config.DefaultMaxLevels,
		"Maximum number of reply levels processed in one run (0-1000)")
	cmd.Flags().IntP("max-nodes", "n", 0,
		"Maximum number of nodes processed in one run (unbounded if not set)")
	cmd.Flags().String("start-node", "",
		"Only update the subtree below this node id")
	cmd.Flags().String("update-time", "",
		"Refetch everything older than this ISO-8601 instant (default: now)")

	// HTTP signature flags
	cmd.Flags().String("sign-key-id", "",
		"Key id used in HTTP signatures (the public key URL of your actor)")
	cmd.Flags().String("sign-key-file", "",
		"PEM file with the private key used for HTTP signatures")
	cmd.Flags().String("sign-mode", config.DefaultSignMode,
		"When to sign ActivityPub requests: when-needed or always")

	// Tor flags
	cmd.Flags().Bool("tor", false,
		"Route every request through Tor (required for .onion roots)")
	cmd.Flags().String("tor-proxy", "",
		"Use an external Tor SOCKS5 proxy at this address instead of the embedded daemon (e.g., "+
			config.DefaultTorProxyAddress+")")
	cmd.Flags().Duration("tor-timeout", config.DefaultTorStartupTimeout,
		"Timeout for embedded Tor startup")

	// History flags
	cmd.Flags().Bool("save-history", false,
		"Record every run in the history database and reuse stored responses")
	cmd.Flags().String("db-dir", "",
		"Directory of the history database (default: XDG data directory)")
}

// persistentBool retrieves a boolean flag from the command or its root.
func persistentBool(cmd *cobra.Command, name string) bool {
	value, err := cmd.Flags().GetBool(name)
	if err != nil {
		value, err = cmd.Root().PersistentFlags().GetBool(name)
		if err != nil {
			return false
		}
	}
	return value
}

// persistentString retrieves a string flag from the command or its root.
func persistentString(cmd *cobra.Command, name string) string {
	value, err := cmd.Flags().GetString(name)
	if err != nil {
		value, err = cmd.Root().PersistentFlags().GetString(name)
		if err != nil {
			return ""
		}
	}
	return value
}

// buildConfig creates a Config from the flags registered by addFetchFlags
// and merges the configuration file into it.
func buildConfig(cmd *cobra.Command, args []string) (*config.Config, error) {
	cfg := config.NewConfig()
	cfg.Targets = args
	cfg.Verbose = persistentBool(cmd, "verbose")
	cfg.LogJSON = persistentBool(cmd, "log-json")
	cfg.ConfigFilePath = persistentString(cmd, "config")

	flags := cmd.Flags()
	var err error

	if cfg.Timeout, err = flags.GetDuration("timeout"); err != nil {
		return nil, err
	}
	if cfg.UserAgent, err = flags.GetString("user-agent"); err != nil {
		return nil, err
	}
	if cfg.BearerToken, err = flags.GetString("bearer-token"); err != nil {
		return nil, err
	}
	if cfg.MaxBodySize, err = flags.GetInt64("max-body-size"); err != nil {
		return nil, err
	}
	if cfg.MaxLevels, err = flags.GetInt("max-levels"); err != nil {
		return nil, err
	}
	// An unset --max-nodes means unbounded, which is different from 0.
	if flags.Changed("max-nodes") {
		maxNodes, err := flags.GetInt("max-nodes")
		if err != nil {
			return nil, err
		}
		cfg.MaxNodes = &maxNodes
	}
	if cfg.StartNode, err = flags.GetString("start-node"); err != nil {
		return nil, err
	}
	if cfg.UpdateTime, err = flags.GetString("update-time"); err != nil {
		return nil, err
	}
	if cfg.SigningKeyID, err = flags.GetString("sign-key-id"); err != nil {
		return nil, err
	}
	if cfg.SigningKeyFile, err = flags.GetString("sign-key-file"); err != nil {
		return nil, err
	}
	if cfg.SignMode, err = flags.GetString("sign-mode"); err != nil {
		return nil, err
	}
	if cfg.UseTor, err = flags.GetBool("tor"); err != nil {
		return nil, err
	}
	if cfg.TorProxyAddress, err = flags.GetString("tor-proxy"); err != nil {
		return nil, err
	}
	if cfg.TorProxyAddress != "" {
		cfg.UseTor = true
	}
	if cfg.TorStartupTimeout, err = flags.GetDuration("tor-timeout"); err != nil {
		return nil, err
	}
	if cfg.SaveHistory, err = flags.GetBool("save-history"); err != nil {
		return nil, err
	}
	dbDir, err := flags.GetString("db-dir")
	if err != nil {
		return nil, err
	}
	if dbDir != "" {
		cfg.DBDir = dbDir
	}

	if err := loadConfigFile(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// loadConfigFile merges the configuration file into cfg.
// If the user explicitly specified a config file path, a missing file is an
// error. Otherwise an absent file leaves cfg with empty host settings.
func loadConfigFile(cfg *config.Config) error {
	path := config.FindConfigFile(cfg.ConfigFilePath)
	switch {
	case path != "":
		file, err := config.LoadConfigFile(path)
		if err != nil {
			return fmt.Errorf("failed to load config file %s: %w", path, err)
		}
		cfg.ApplyFile(file)
	case cfg.ConfigFilePath != "":
		return fmt.Errorf("configuration file not found: %s", cfg.ConfigFilePath)
	default:
		cfg.Hosts = &config.File{Hosts: make(map[string]config.HostConfig)}
	}
	return nil
}

// setupLogger creates the redacting logger selected by the global flags.
// Logs always go to stderr so that snapshots can be piped from stdout.
func setupLogger(w io.Writer, cfg *config.Config) *slog.Logger {
	if cfg.LogJSON {
		return log.NewSecureJSONLogger(w, cfg.Verbose)
	}
	return log.NewSecureLogger(w, cfg.Verbose)
}

// signalContext returns a context cancelled on SIGINT or SIGTERM.
func signalContext(logger *slog.Logger) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	go func() {
		select {
		case <-sigCh:
			logger.Info("received shutdown signal, finishing the current node...")
			cancel()
		case <-ctx.Done():
		}
		signal.Stop(sigCh)
	}()

	return ctx, cancel
}

// session holds everything one command needs to talk to remote servers.
// Every snapshot processed by the command shares its fetcher stack, so rate
// limits and signing state apply across all of them.
type session struct {
	cfg     *config.Config
	logger  *slog.Logger
	updater *crawler.Updater
	store   *database.Store
	cleanup []func() error
}

// newSession builds the fetcher stack, the cache and the updater.
// The urls are the roots the command will touch; onion roots require Tor.
func newSession(ctx context.Context, cfg *config.Config, logger *slog.Logger, urls ...string) (*session, error) {
	if tor.RequiresTor(urls...) && !cfg.UseTor {
		return nil, tor.ErrTorRequired
	}

	s := &session{cfg: cfg, logger: logger}
	sink := event.NewLogSink(logger)

	client, err := s.httpClient(ctx)
	if err != nil {
		return nil, err
	}

	var fetcher fetch.Fetcher = fetch.NewHTTPFetcher(client,
		fetch.WithMaxBodySize(cfg.MaxBodySize),
		fetch.WithDefaultHeaders(defaultHeaders(cfg)),
		fetch.WithHostHeaders(hostHeaders(cfg)),
	)

	if cfg.SigningKeyID != "" {
		key, err := httpsig.LoadPrivateKey(cfg.SigningKeyFile)
		if err != nil {
			_ = s.Close() //nolint:errcheck // Best effort cleanup
			return nil, fmt.Errorf("failed to load signing key: %w", err)
		}
		fetcher, err = fetch.NewSigningAware(fetcher, cfg.SigningKeyID, key, httpsig.NewSigner().Sign,
			fetch.WithSignMode(fetch.SignMode(cfg.SignMode)))
		if err != nil {
			_ = s.Close() //nolint:errcheck // Best effort cleanup
			return nil, err
		}
		logger.Debug("HTTP signatures enabled", "keyId", cfg.SigningKeyID, "mode", cfg.SignMode)
	}

	fetcher = fetch.NewRateLimited(fetcher, fetch.WithRateLimitSink(sink))

	var responses cache.Cache = cache.NewMemory()
	if cfg.SaveHistory {
		store, err := database.Open(cfg.DBDir, database.DefaultOptions())
		if err != nil {
			_ = s.Close() //nolint:errcheck // Best effort cleanup
			return nil, fmt.Errorf("failed to open database: %w", err)
		}
		s.store = store
		s.cleanup = append(s.cleanup, store.Close)
		responses = store
		logger.Info("database opened", "path", store.Path())
	}

	s.updater = crawler.NewUpdater(fetcher, responses,
		crawler.WithUserAgent(cfg.UserAgent),
		crawler.WithSink(sink),
		crawler.WithLogger(logger),
	)
	return s, nil
}

// httpClient returns a Tor-routed client when Tor is enabled and a plain
// client otherwise.
func (s *session) httpClient(ctx context.Context) (*http.Client, error) {
	if !s.cfg.UseTor {
		return &http.Client{Timeout: s.cfg.Timeout}, nil
	}

	if s.cfg.TorProxyAddress == "" {
		fmt.Fprintln(os.Stderr, "Starting embedded Tor daemon...")
		fmt.Fprintf(os.Stderr, "This may take 1-3 minutes while Tor bootstraps and connects to the network.\n\n")
	}
	client, stop, err := tor.Connect(ctx, s.cfg.TorProxyAddress, s.cfg.Timeout,
		tor.WithStartupTimeout(s.cfg.TorStartupTimeout),
		tor.WithEmbeddedLogger(s.logger),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to Tor: %w", err)
	}
	s.cleanup = append(s.cleanup, stop)
	s.logger.Info("Tor connection ready", "proxy", client.ProxyAddress())
	return client.NewHTTPClient(), nil
}

// Close releases the database and stops the embedded Tor daemon.
func (s *session) Close() error {
	var errs []error
	for i := len(s.cleanup) - 1; i >= 0; i-- {
		if err := s.cleanup[i](); err != nil {
			errs = append(errs, err)
		}
	}
	s.cleanup = nil
	return errors.Join(errs...)
}

// updateOptions translates the configured bounds into crawler options.
// The keep-going check stops the traversal between nodes once ctx is done.
func updateOptions(ctx context.Context, cfg *config.Config) ([]crawler.UpdateOption, error) {
	opts := []crawler.UpdateOption{
		crawler.WithMaxLevels(cfg.MaxLevels),
		crawler.WithKeepGoing(func() bool { return ctx.Err() == nil }),
	}
	if cfg.MaxNodes != nil {
		opts = append(opts, crawler.WithMaxNodes(*cfg.MaxNodes))
	}
	if cfg.StartNode != "" {
		opts = append(opts, crawler.WithStartNode(cfg.StartNode))
	}
	if cfg.UpdateTime != "" {
		updateTime, err := model.ParseInstant(cfg.UpdateTime)
		if err != nil {
			return nil, fmt.Errorf("%w: %s", config.ErrInvalidUpdateTime, cfg.UpdateTime)
		}
		opts = append(opts, crawler.WithUpdateTime(updateTime))
	}
	return opts, nil
}

// defaultHeaders returns the headers sent to every host. The global bearer
// token is sent here so that a per-host token in the config file wins.
func defaultHeaders(cfg *config.Config) map[string]string {
	headers := make(map[string]string)
	if cfg.Hosts != nil {
		maps.Copy(headers, cfg.Hosts.DefaultHeaders())
	}
	if cfg.BearerToken != "" {
		headers["Authorization"] = "Bearer " + cfg.BearerToken
	}
	return headers
}

// hostHeaders returns the per-host headers from the config file.
func hostHeaders(cfg *config.Config) map[string]map[string]string {
	if cfg.Hosts == nil {
		return nil
	}
	return cfg.Hosts.HostHeaders()
}

// parseLanguages parses BCP 47 tags for content selection.
func parseLanguages(tags []string) ([]language.Tag, error) {
	out := make([]language.Tag, 0, len(tags))
	for _, tag := range tags {
		parsed, err := language.Parse(tag)
		if err != nil {
			return nil, fmt.Errorf("invalid language tag %q: %w", tag, err)
		}
		out = append(out, parsed)
	}
	return out, nil
}

// openOutput returns the destination for rendered output: the named file, or
// stdout when path is empty. The returned close function is always non-nil.
func openOutput(stdout io.Writer, path string) (io.Writer, func() error, error) {
	if path == "" {
		return stdout, func() error { return nil }, nil
	}

	dir := filepath.Dir(path)
	if dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0750); err != nil {
			return nil, nil, fmt.Errorf("failed to create output directory: %w", err)
		}
	}

	// Reports can include content from followers-only posts fetched with a token.
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0600) //nolint:gosec // user-provided output path
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create output file: %w", err)
	}
	return f, f.Close, nil
}

// newReportWriter selects the renderer configured by --json / --markdown.
func newReportWriter(w io.Writer, cfg *config.Config) (report.Writer, error) {
	tags, err := parseLanguages(cfg.Languages)
	if err != nil {
		return nil, err
	}

	switch {
	case cfg.JSONReport:
		return report.NewJSONWriter(w, report.WithPrettyPrint()), nil
	case cfg.MarkdownReport:
		return report.NewMarkdownWriter(w, report.WithMarkdownLanguages(tags...)), nil
	default:
		return report.NewSimpleWriter(w,
			report.WithVerbose(cfg.Verbose),
			report.WithSimpleLanguages(tags...),
		), nil
	}
}

// printStats writes a one-line summary of an update pass.
func printStats(w io.Writer, name string, stats *crawler.Stats) {
	if stats == nil {
		return
	}
	fmt.Fprintf(w, "%s: %s, %d nodes processed in %d levels, %d remaining (%s)\n",
		name, stats.Stop, stats.Processed, stats.Levels, stats.Remaining,
		stats.Elapsed.Round(time.Millisecond))
}
