package report

import (
	"fmt"
	"io"
	"strings"

	"golang.org/x/text/language"

	"github.com/nao1215/threadcap/internal/model"
)

// maxSimpleLineLength bounds the comment text shown per line.
const maxSimpleLineLength = 100

// SimpleWriter outputs an indented text tree of the thread.
//
// Design decision: We use plain text with ASCII formatting rather than
// ANSI colors because:
// 1. It works in all terminals without compatibility issues
// 2. It's easier to pipe to files or other tools
type SimpleWriter struct {
	baseWriter

	// verbose shows full comment text instead of one truncated line.
	verbose bool

	// languages are the preferred content languages.
	languages []language.Tag
}

// SimpleWriterOption configures a SimpleWriter.
type SimpleWriterOption func(*SimpleWriter)

// WithVerbose enables full comment text.
func WithVerbose(verbose bool) SimpleWriterOption {
	return func(w *SimpleWriter) {
		w.verbose = verbose
	}
}

// WithSimpleLanguages sets the preferred content languages.
func WithSimpleLanguages(tags ...language.Tag) SimpleWriterOption {
	return func(w *SimpleWriter) {
		w.languages = tags
	}
}

// NewSimpleWriter creates a SimpleWriter that outputs to the given writer.
func NewSimpleWriter(output io.Writer, opts ...SimpleWriterOption) *SimpleWriter {
	w := &SimpleWriter{
		baseWriter: newBaseWriter(output),
		languages:  []language.Tag{language.English},
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Write implements Writer.
func (w *SimpleWriter) Write(tc *model.Threadcap) (int, error) {
	var sb strings.Builder

	s := Summarize(tc)
	sb.WriteString(strings.Repeat("=", 60) + "\n")
	fmt.Fprintf(&sb, "Threadcap (%s)\n", tc.Protocol.OrDefault())
	sb.WriteString(strings.Repeat("=", 60) + "\n")
	fmt.Fprintf(&sb, "Nodes: %d  Comments: %d  Errors: %d  Pending: %d  Commenters: %d  Depth: %d\n\n",
		s.Nodes, s.Comments, s.CommentErrors, s.Pending, s.Commenters, s.MaxDepth)

	Walk(tc, func(id string, depth int, node *model.Node) {
		indent := strings.Repeat("  ", depth-1)
		switch {
		case node.Comment != nil:
			author := commenterName(tc, node.Comment.AttributedTo)
			fmt.Fprintf(&sb, "%s- %s", indent, author)
			if node.Comment.Published != "" {
				fmt.Fprintf(&sb, " (%s)", node.Comment.Published)
			}
			sb.WriteString("\n")
			_, content := PickContent(node.Comment.Content, w.languages...)
			text := HTMLToText(content)
			if !w.verbose {
				text = truncateString(strings.ReplaceAll(text, "\n", " "), maxSimpleLineLength)
			}
			for _, line := range strings.Split(text, "\n") {
				fmt.Fprintf(&sb, "%s  %s\n", indent, line)
			}
		case node.CommentError != "":
			fmt.Fprintf(&sb, "%s- [error] %s\n%s  %s\n", indent, id, indent, node.CommentError)
		default:
			fmt.Fprintf(&sb, "%s- [pending] %s\n", indent, id)
		}
		if node.RepliesError != "" {
			fmt.Fprintf(&sb, "%s  [replies error] %s\n", indent, node.RepliesError)
		}
	})

	return io.WriteString(w.output, sb.String())
}

// commenterName returns the display name of a commenter, or its id.
func commenterName(tc *model.Threadcap, id string) string {
	commenter, ok := tc.Commenters[id]
	if !ok || commenter == nil {
		return id
	}
	if commenter.FQUsername != "" {
		return commenter.Name + " " + commenter.FQUsername
	}
	return commenter.Name
}

// truncateString truncates a string to maxLen runes with an ellipsis.
func truncateString(s string, maxLen int) string {
	runes := []rune(s)
	if len(runes) <= maxLen {
		return s
	}
	if maxLen <= 3 {
		return string(runes[:maxLen])
	}
	return string(runes[:maxLen-3]) + "..."
}

// WriteDiff writes d as a plain text list.
func WriteDiff(output io.Writer, d Diff) (int, error) {
	if d.Empty() {
		return io.WriteString(output, "No changes.\n")
	}
	var sb strings.Builder
	sections := []struct {
		title string
		ids   []string
	}{
		{"New nodes", d.NewNodes},
		{"Newly failed", d.NewlyFailed},
		{"Resolved", d.Resolved},
		{"New commenters", d.NewCommenters},
	}
	for _, section := range sections {
		if len(section.ids) == 0 {
			continue
		}
		fmt.Fprintf(&sb, "%s (%d):\n", section.title, len(section.ids))
		for _, id := range section.ids {
			fmt.Fprintf(&sb, "  + %s\n", id)
		}
	}
	return io.WriteString(output, sb.String())
}
