package model

import (
	"encoding/json"
	"errors"
	"fmt"
)

// Protocol selects the protocol implementation that owns a snapshot.
// It is fixed when the snapshot is created and never re-inferred.
type Protocol string

const (
	// ProtocolActivityPub is the canonical, fully implemented protocol.
	ProtocolActivityPub Protocol = "activitypub"

	// ProtocolLightningComments is reserved for the Lightning Comments scheme.
	ProtocolLightningComments Protocol = "lightningcomments"

	// ProtocolTwitter is reserved for the Twitter/X API.
	ProtocolTwitter Protocol = "twitter"

	// ProtocolBluesky is reserved for the Bluesky/AT protocol.
	ProtocolBluesky Protocol = "bluesky"

	// ProtocolNostr is reserved for Nostr relays.
	ProtocolNostr Protocol = "nostr"
)

// OrDefault returns p, or ProtocolActivityPub when p is unset.
// Snapshots written before the protocol field existed are ActivityPub.
func (p Protocol) OrDefault() Protocol {
	if p == "" {
		return ProtocolActivityPub
	}
	return p
}

// Threadcap is the persisted, resumable snapshot of one reply tree.
type Threadcap struct {
	// Roots lists the root node ids in order. Immutable after creation.
	Roots []string `json:"roots"`

	// Nodes maps node id to node. Ids are never removed.
	Nodes map[string]*Node `json:"nodes"`

	// Commenters maps author id to commenter, shared across nodes.
	Commenters map[string]*Commenter `json:"commenters"`

	// Protocol selects the protocol implementation for this snapshot.
	Protocol Protocol `json:"protocol,omitempty"`
}

// NewThreadcap creates an empty snapshot for the given roots.
func NewThreadcap(protocol Protocol, roots ...string) *Threadcap {
	return &Threadcap{
		Roots:      append([]string{}, roots...),
		Nodes:      make(map[string]*Node),
		Commenters: make(map[string]*Commenter),
		Protocol:   protocol,
	}
}

// EnsureNode returns the node for id, creating an empty one on first discovery.
func (tc *Threadcap) EnsureNode(id string) *Node {
	if tc.Nodes == nil {
		tc.Nodes = make(map[string]*Node)
	}
	node, ok := tc.Nodes[id]
	if !ok || node == nil {
		node = &Node{}
		tc.Nodes[id] = node
	}
	return node
}

// Validate checks the structural invariants of the snapshot.
// It returns the first violation found.
func (tc *Threadcap) Validate() error {
	if len(tc.Roots) == 0 {
		return ErrNoRoots
	}
	for id, node := range tc.Nodes {
		if node == nil {
			return fmt.Errorf("node %s: %w", id, ErrNilNode)
		}
		if err := node.Validate(); err != nil {
			return fmt.Errorf("node %s: %w", id, err)
		}
	}
	for id, commenter := range tc.Commenters {
		if commenter == nil || commenter.Name == "" {
			return fmt.Errorf("commenter %s: %w", id, ErrCommenterNameRequired)
		}
	}
	return nil
}

// Node represents one comment in the tree.
//
// Comment and CommentError are mutually exclusive once CommentAsof is set;
// both unset means never attempted. The same holds for Replies, RepliesError
// and RepliesAsof. A nil Replies slice means "never fetched" while an empty,
// non-nil slice is the terminal "no replies" result.
type Node struct {
	Comment      *Comment
	CommentError string
	CommentAsof  Instant
	Replies      []string
	RepliesError string
	RepliesAsof  Instant
}

// nodeJSON is the wire form of Node. Replies is a pointer so that an empty
// list survives omitempty.
type nodeJSON struct {
	Comment      *Comment  `json:"comment,omitempty"`
	CommentError string    `json:"commentError,omitempty"`
	CommentAsof  Instant   `json:"commentAsof,omitempty"`
	Replies      *[]string `json:"replies,omitempty"`
	RepliesError string    `json:"repliesError,omitempty"`
	RepliesAsof  Instant   `json:"repliesAsof,omitempty"`
}

// MarshalJSON implements json.Marshaler.
func (n Node) MarshalJSON() ([]byte, error) {
	out := nodeJSON{
		Comment:      n.Comment,
		CommentError: n.CommentError,
		CommentAsof:  n.CommentAsof,
		RepliesError: n.RepliesError,
		RepliesAsof:  n.RepliesAsof,
	}
	if n.Replies != nil {
		replies := n.Replies
		out.Replies = &replies
	}
	return json.Marshal(out)
}

// UnmarshalJSON implements json.Unmarshaler.
func (n *Node) UnmarshalJSON(data []byte) error {
	var in nodeJSON
	if err := json.Unmarshal(data, &in); err != nil {
		return err
	}
	*n = Node{
		Comment:      in.Comment,
		CommentError: in.CommentError,
		CommentAsof:  in.CommentAsof,
		RepliesError: in.RepliesError,
		RepliesAsof:  in.RepliesAsof,
	}
	if in.Replies != nil {
		n.Replies = *in.Replies
		if n.Replies == nil {
			n.Replies = []string{}
		}
	}
	return nil
}

// Validate checks the mutual-exclusion invariants of a node.
func (n *Node) Validate() error {
	hasComment := n.Comment != nil
	hasCommentError := n.CommentError != ""
	if hasComment && hasCommentError {
		return ErrCommentAndError
	}
	if !n.CommentAsof.IsZero() && !hasComment && !hasCommentError {
		return ErrCommentOutcomeMissing
	}
	hasReplies := n.Replies != nil
	hasRepliesError := n.RepliesError != ""
	if hasReplies && hasRepliesError {
		return ErrRepliesAndError
	}
	if !n.RepliesAsof.IsZero() && !hasReplies && !hasRepliesError {
		return ErrRepliesOutcomeMissing
	}
	return nil
}

// Comment is the normalized content of one comment.
type Comment struct {
	// URL is the human-facing page for the comment, if known.
	URL string `json:"url,omitempty"`

	// Published is copied verbatim from the source data and is not
	// guaranteed to be a valid timestamp.
	Published string `json:"published,omitempty"`

	// Attachments is always serialized, as [] when empty.
	Attachments []Attachment `json:"attachments"`

	// Content maps a language tag to text. "und" means unspecified.
	Content map[string]string `json:"content"`

	// AttributedTo is the author id, the join key into Threadcap.Commenters.
	AttributedTo string `json:"attributedTo"`
}

// MarshalJSON implements json.Marshaler. A nil attachment list is written as [].
func (c Comment) MarshalJSON() ([]byte, error) {
	type plain Comment
	if c.Attachments == nil {
		c.Attachments = []Attachment{}
	}
	if c.Content == nil {
		c.Content = map[string]string{}
	}
	return json.Marshal(plain(c))
}

// LanguageUnspecified is the content key used when the source gives no language.
const LanguageUnspecified = "und"

// Attachment is a flat media descriptor.
type Attachment struct {
	MediaType string `json:"mediaType"`
	Width     *int   `json:"width,omitempty"`
	Height    *int   `json:"height,omitempty"`
	URL       string `json:"url"`
}

// Commenter is the normalized author of one or more comments.
type Commenter struct {
	Icon       *Icon   `json:"icon,omitempty"`
	Name       string  `json:"name"`
	URL        string  `json:"url,omitempty"`
	FQUsername string  `json:"fqUsername,omitempty"`
	Asof       Instant `json:"asof"`
}

// Icon is an author avatar.
type Icon struct {
	URL       string `json:"url"`
	MediaType string `json:"mediaType,omitempty"`
}

// Snapshot validation errors.
var (
	// ErrNoRoots is returned when a snapshot has no root ids.
	ErrNoRoots = errors.New("threadcap has no roots")

	// ErrNilNode is returned when a node entry is null.
	ErrNilNode = errors.New("node is null")

	// ErrCommentAndError is returned when both comment and commentError are set.
	ErrCommentAndError = errors.New("both comment and commentError are set")

	// ErrCommentOutcomeMissing is returned when commentAsof is set without an outcome.
	ErrCommentOutcomeMissing = errors.New("commentAsof is set but neither comment nor commentError is")

	// ErrRepliesAndError is returned when both replies and repliesError are set.
	ErrRepliesAndError = errors.New("both replies and repliesError are set")

	// ErrRepliesOutcomeMissing is returned when repliesAsof is set without an outcome.
	ErrRepliesOutcomeMissing = errors.New("repliesAsof is set but neither replies nor repliesError is")

	// ErrCommenterNameRequired is returned when a commenter has no name.
	ErrCommenterNameRequired = errors.New("commenter name is required")
)
