package crawler

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/nao1215/threadcap/internal/cache"
	"github.com/nao1215/threadcap/internal/event"
	"github.com/nao1215/threadcap/internal/fetch"
	"github.com/nao1215/threadcap/internal/model"
	"github.com/nao1215/threadcap/internal/protocol"
)

// MaxLevelsLimit is the upper bound and default of MaxLevels.
const MaxLevelsLimit = 1000

// DefaultUserAgent is sent when no user agent is configured.
const DefaultUserAgent = "threadcap/dev (+https://github.com/nao1215/threadcap)"

// Updater creates and refreshes snapshots.
// One Updater may serve several snapshots concurrently; each Update call
// works on its own snapshot sequentially.
type Updater struct {
	// fetcher is the shared fetcher stack.
	fetcher fetch.Fetcher

	// cache is the shared response cache.
	cache cache.Cache

	// userAgent is sent with every request.
	userAgent string

	// bearerToken is sent as Authorization when set.
	bearerToken string

	// sink receives events from every run.
	sink event.Sink

	// logger receives run summaries.
	logger *slog.Logger

	// now is the clock used for update times and cache writes.
	now func() model.Instant
}

// UpdaterOption configures an Updater.
type UpdaterOption func(*Updater)

// WithUserAgent sets the User-Agent header.
func WithUserAgent(ua string) UpdaterOption {
	return func(u *Updater) {
		if ua != "" {
			u.userAgent = ua
		}
	}
}

// WithBearerToken sets a token sent as "Authorization: Bearer <token>".
func WithBearerToken(token string) UpdaterOption {
	return func(u *Updater) {
		u.bearerToken = token
	}
}

// WithSink sets the event sink.
func WithSink(sink event.Sink) UpdaterOption {
	return func(u *Updater) {
		u.sink = sink
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) UpdaterOption {
	return func(u *Updater) {
		if logger != nil {
			u.logger = logger
		}
	}
}

// WithNow overrides the clock.
func WithNow(now func() model.Instant) UpdaterOption {
	return func(u *Updater) {
		if now != nil {
			u.now = now
		}
	}
}

// NewUpdater creates an Updater. A nil cache is replaced by an in-memory one.
//
// Design decision: The fetcher and cache are injected because:
//  1. The fetcher stack (rate limiting, signing, Tor) is assembled by the caller
//  2. The cache may be persistent (internal/database) or in-memory
//  3. Tests substitute fake remotes without touching the network
func NewUpdater(fetcher fetch.Fetcher, c cache.Cache, opts ...UpdaterOption) *Updater {
	if c == nil {
		c = cache.NewMemory()
	}
	u := &Updater{
		fetcher:   fetcher,
		cache:     c,
		userAgent: DefaultUserAgent,
		logger:    slog.Default(),
		now:       model.Now,
	}
	for _, opt := range opts {
		opt(u)
	}
	return u
}

// env builds the collaborators of one pass.
func (u *Updater) env(updateTime model.Instant) *protocol.Env {
	return &protocol.Env{
		Fetcher:     u.fetcher,
		Cache:       u.cache,
		State:       protocol.NewState(),
		Sink:        u.sink,
		UserAgent:   u.userAgent,
		BearerToken: u.bearerToken,
		UpdateTime:  updateTime,
		Now:         u.now,
	}
}

// Init fetches rootURL and returns a new snapshot for it.
// An empty protocol means ActivityPub.
func (u *Updater) Init(ctx context.Context, rootURL string, p model.Protocol) (*model.Threadcap, error) {
	impl, err := implementationFor(p)
	if err != nil {
		return nil, err
	}
	tc, err := impl.Init(ctx, u.env(u.now()), rootURL)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize threadcap for %s: %w", rootURL, err)
	}
	tc.Protocol = p.OrDefault()
	u.logger.Debug("initialized threadcap", "url", rootURL, "root", tc.Roots[0], "protocol", tc.Protocol)
	return tc, nil
}

// StopReason tells why an update pass ended.
type StopReason string

// Stop reasons.
const (
	StopComplete  StopReason = "complete"
	StopMaxNodes  StopReason = "max-nodes"
	StopKeepGoing StopReason = "keep-going"
	StopCancelled StopReason = "cancelled"
	StopNoop      StopReason = "noop"
)

// Stats summarizes one update pass.
type Stats struct {
	// RunID identifies the pass in logs and history.
	RunID string

	// UpdateTime is the freshness bound the pass ran with.
	UpdateTime model.Instant

	// Processed is the number of nodes processed, including revisits.
	Processed int

	// Levels is the number of levels started.
	Levels int

	// Remaining is the number of discovered nodes left unprocessed.
	Remaining int

	// Stop is why the pass ended.
	Stop StopReason

	// Elapsed is the wall time of the pass.
	Elapsed time.Duration
}

// updateOptions holds the bounds of one pass.
type updateOptions struct {
	updateTime model.Instant
	maxLevels  int
	maxNodes   *int
	startNode  string
	keepGoing  func() bool
}

// UpdateOption configures one update pass.
type UpdateOption func(*updateOptions)

// WithUpdateTime sets the freshness bound. Defaults to now.
// Any RFC 3339 timestamp is accepted and normalized to the Instant layout,
// since staleness is decided by comparing instants lexically.
func WithUpdateTime(t model.Instant) UpdateOption {
	return func(o *updateOptions) {
		o.updateTime = t
	}
}

// WithMaxLevels bounds the depth of the pass, clamped to [0, MaxLevelsLimit].
// Level 1 is the start frontier; replies of the last allowed level are not
// fetched.
func WithMaxLevels(levels int) UpdateOption {
	return func(o *updateOptions) {
		o.maxLevels = min(max(levels, 0), MaxLevelsLimit)
	}
}

// WithMaxNodes bounds the number of nodes processed. Zero or less makes the
// pass a no-op.
func WithMaxNodes(nodes int) UpdateOption {
	return func(o *updateOptions) {
		n := max(nodes, 0)
		o.maxNodes = &n
	}
}

// WithStartNode restricts the start frontier to one existing node.
func WithStartNode(id string) UpdateOption {
	return func(o *updateOptions) {
		o.startNode = id
	}
}

// WithKeepGoing sets a predicate checked after every node.
func WithKeepGoing(fn func() bool) UpdateOption {
	return func(o *updateOptions) {
		o.keepGoing = fn
	}
}

// Update refreshes tc in place.
//
// Precondition failures (unknown protocol, unknown start node, malformed
// update time) are returned before tc is touched. Per-node failures are recorded on the nodes and do
// not make Update fail.
func (u *Updater) Update(ctx context.Context, tc *model.Threadcap, opts ...UpdateOption) (*Stats, error) {
	o := updateOptions{maxLevels: MaxLevelsLimit}
	for _, opt := range opts {
		opt(&o)
	}
	if o.updateTime.IsZero() {
		o.updateTime = u.now()
	} else {
		updateTime, err := model.ParseInstant(string(o.updateTime))
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrInvalidUpdateTime, err)
		}
		o.updateTime = updateTime
	}

	if tc == nil {
		return nil, ErrNilThreadcap
	}
	impl, err := implementationFor(tc.Protocol)
	if err != nil {
		return nil, err
	}
	if o.startNode != "" {
		if _, ok := tc.Nodes[o.startNode]; !ok {
			return nil, fmt.Errorf("%w: %s", ErrInvalidStartNode, o.startNode)
		}
	}

	stats := &Stats{
		RunID:      ulid.Make().String(),
		UpdateTime: o.updateTime,
		Stop:       StopNoop,
	}
	started := time.Now()
	logger := u.logger.With("run", stats.RunID)
	defer func() {
		stats.Elapsed = time.Since(started)
		logger.Info("update finished",
			"stop", stats.Stop,
			"processed", stats.Processed,
			"levels", stats.Levels,
			"remaining", stats.Remaining,
			"elapsed", stats.Elapsed,
		)
	}()

	if o.maxLevels == 0 || (o.maxNodes != nil && *o.maxNodes == 0) {
		return stats, nil
	}

	seed := tc.Roots
	if o.startNode != "" {
		seed = []string{o.startNode}
	}
	logger.Debug("update started", "updateTime", o.updateTime, "maxLevels", o.maxLevels, "seed", len(seed))

	r := &run{
		impl:      impl,
		env:       u.env(o.updateTime),
		tc:        tc,
		sink:      u.sink,
		opts:      o,
		stats:     stats,
		remaining: len(seed),
	}
	stats.Stop = r.traverse(ctx, seed)
	stats.Remaining = r.remaining
	return stats, nil
}

// run is the state of one update pass.
type run struct {
	impl      protocol.Implementation
	env       *protocol.Env
	tc        *model.Threadcap
	sink      event.Sink
	opts      updateOptions
	stats     *Stats
	remaining int
}

// traverse processes idsByLevel wave by wave.
func (r *run) traverse(ctx context.Context, seed []string) StopReason {
	idsByLevel := [][]string{append([]string(nil), seed...)}
	for level := 0; level < r.opts.maxLevels && level < len(idsByLevel); level++ {
		ids := idsByLevel[level]
		if len(ids) == 0 {
			break
		}
		nextLevel := level + 1
		processReplies := nextLevel < r.opts.maxLevels
		if processReplies && len(idsByLevel) <= nextLevel {
			idsByLevel = append(idsByLevel, nil)
		}

		r.stats.Levels++
		event.Emit(r.sink, event.ProcessLevel{Phase: event.PhaseBefore, Level: nextLevel})
		for _, id := range ids {
			r.processNode(ctx, id, processReplies)
			r.remaining--
			r.stats.Processed++

			if r.opts.maxNodes != nil && r.stats.Processed >= *r.opts.maxNodes {
				event.Emit(r.sink, event.NodesRemaining{Remaining: r.remaining})
				return StopMaxNodes
			}
			if r.opts.keepGoing != nil && !r.opts.keepGoing() {
				event.Emit(r.sink, event.NodesRemaining{Remaining: r.remaining})
				return StopKeepGoing
			}
			if ctx.Err() != nil {
				event.Emit(r.sink, event.NodesRemaining{Remaining: r.remaining})
				return StopCancelled
			}
			if processReplies {
				if node := r.tc.Nodes[id]; node != nil && node.Replies != nil {
					idsByLevel[nextLevel] = append(idsByLevel[nextLevel], node.Replies...)
					r.remaining += len(node.Replies)
				}
			}
			event.Emit(r.sink, event.NodesRemaining{Remaining: r.remaining})
		}
		event.Emit(r.sink, event.ProcessLevel{Phase: event.PhaseAfter, Level: nextLevel})
	}
	return StopComplete
}

// processNode refreshes the comment, commenter and replies of one node.
func (r *run) processNode(ctx context.Context, id string, processReplies bool) {
	node := r.tc.EnsureNode(id)
	updateTime := r.opts.updateTime

	updateComment := node.CommentAsof.IsStale(updateTime)
	if updateComment {
		comment, err := r.impl.FetchComment(ctx, r.env, id)
		if err == nil {
			err = r.updateCommenter(ctx, comment.AttributedTo)
		}
		if err != nil {
			node.Comment = nil
			node.CommentError = err.Error()
		} else {
			node.Comment = comment
			node.CommentError = ""
		}
		node.CommentAsof = updateTime
	}
	event.Emit(r.sink, event.NodeProcessed{NodeID: id, Part: event.PartComment, Updated: updateComment})

	if !processReplies {
		return
	}
	updateReplies := node.RepliesAsof.IsStale(updateTime)
	if updateReplies {
		replies, err := r.impl.FetchReplies(ctx, r.env, id)
		if err != nil {
			node.Replies = nil
			node.RepliesError = err.Error()
		} else {
			if replies == nil {
				replies = []string{}
			}
			node.Replies = replies
			node.RepliesError = ""
		}
		node.RepliesAsof = updateTime
	}
	event.Emit(r.sink, event.NodeProcessed{NodeID: id, Part: event.PartReplies, Updated: updateReplies})
}

// updateCommenter refreshes the commenter of a comment if absent or stale.
func (r *run) updateCommenter(ctx context.Context, attributedTo string) error {
	existing := r.tc.Commenters[attributedTo]
	if existing != nil && !existing.Asof.IsStale(r.opts.updateTime) {
		return nil
	}
	commenter, err := r.impl.FetchCommenter(ctx, r.env, attributedTo)
	if err != nil {
		return err
	}
	if commenter.Asof.IsZero() {
		commenter.Asof = r.opts.updateTime
	}
	if r.tc.Commenters == nil {
		r.tc.Commenters = make(map[string]*model.Commenter)
	}
	r.tc.Commenters[attributedTo] = commenter
	return nil
}
