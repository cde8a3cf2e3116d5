package report

import (
	"io"
	"strconv"
	"strings"

	"github.com/nao1215/markdown"
	"github.com/nao1215/markdown/mermaid/piechart"
	"golang.org/x/text/language"

	"github.com/nao1215/threadcap/internal/model"
)

// MarkdownWriter outputs the thread as a Markdown document.
//
// Design decision: We use the nao1215/markdown library for fluent markdown
// generation which provides:
// 1. Type-safe markdown generation
// 2. Support for tables, lists, and code blocks
// 3. GitHub-flavored markdown alerts
type MarkdownWriter struct {
	baseWriter

	// languages are the preferred content languages.
	languages []language.Tag
}

// MarkdownWriterOption configures a MarkdownWriter.
type MarkdownWriterOption func(*MarkdownWriter)

// WithMarkdownLanguages sets the preferred content languages.
func WithMarkdownLanguages(tags ...language.Tag) MarkdownWriterOption {
	return func(w *MarkdownWriter) {
		w.languages = tags
	}
}

// NewMarkdownWriter creates a MarkdownWriter that outputs to the given writer.
func NewMarkdownWriter(output io.Writer, opts ...MarkdownWriterOption) *MarkdownWriter {
	w := &MarkdownWriter{
		baseWriter: newBaseWriter(output),
		languages:  []language.Tag{language.English},
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Write implements Writer.
func (w *MarkdownWriter) Write(tc *model.Threadcap) (int, error) {
	md := markdown.NewMarkdown(w.output)
	s := Summarize(tc)

	w.writeHeader(md, tc)
	w.writeSummary(md, s)
	w.writeThread(md, tc)
	w.writeFooter(md)

	return len(md.String()), md.Build()
}

// writeHeader writes the document title and roots.
func (w *MarkdownWriter) writeHeader(md *markdown.Markdown, tc *model.Threadcap) {
	md.H1("Threadcap")
	md.PlainText("")

	rows := make([][]string, 0, len(tc.Roots)+1)
	rows = append(rows, []string{"Protocol", string(tc.Protocol.OrDefault())})
	for _, root := range tc.Roots {
		rows = append(rows, []string{"Root", "`" + root + "`"})
	}
	md.Table(markdown.TableSet{
		Header: []string{"Property", "Value"},
		Rows:   rows,
	})
	md.PlainText("")
}

// writeSummary writes the count table, a chart of outcomes and an alert.
func (w *MarkdownWriter) writeSummary(md *markdown.Markdown, s Summary) {
	md.H2("Summary")
	md.PlainText("")

	md.Table(markdown.TableSet{
		Header: []string{"Metric", "Count"},
		Rows: [][]string{
			{"Nodes", strconv.Itoa(s.Nodes)},
			{"Comments", strconv.Itoa(s.Comments)},
			{"Comment errors", strconv.Itoa(s.CommentErrors)},
			{"Pending", strconv.Itoa(s.Pending)},
			{"Replies errors", strconv.Itoa(s.RepliesErrors)},
			{"Commenters", strconv.Itoa(s.Commenters)},
			{"Attachments", strconv.Itoa(s.Attachments)},
			{"Max depth", strconv.Itoa(s.MaxDepth)},
		},
	})
	md.PlainText("")

	if s.Nodes > 0 {
		chart := piechart.NewPieChart(
			io.Discard,
			piechart.WithTitle("Node Outcomes"),
			piechart.WithShowData(true),
		)
		if s.Comments > 0 {
			chart.LabelAndIntValue("Comments", uint64(s.Comments))
		}
		if s.CommentErrors > 0 {
			chart.LabelAndIntValue("Errors", uint64(s.CommentErrors))
		}
		if s.Pending > 0 {
			chart.LabelAndIntValue("Pending", uint64(s.Pending))
		}
		md.CodeBlocks(markdown.SyntaxHighlightMermaid, chart.String())
		md.PlainText("")
	}

	switch {
	case s.Nodes == 0:
		md.Note("This threadcap has not been updated yet.")
	case s.CommentErrors > 0 || s.RepliesErrors > 0:
		md.Warningf("%d comment(s) and %d reply list(s) failed to load. A later update may recover them.",
			s.CommentErrors, s.RepliesErrors)
	case s.Pending > 0:
		md.Importantf("%d comment(s) have not been fetched yet.", s.Pending)
	default:
		md.Tip("Every discovered comment was captured.")
	}
	md.PlainText("")
}

// writeThread writes each node as a nested blockquote.
func (w *MarkdownWriter) writeThread(md *markdown.Markdown, tc *model.Threadcap) {
	md.H2("Thread")
	md.PlainText("")

	Walk(tc, func(id string, depth int, node *model.Node) {
		quote := strings.Repeat("> ", depth-1)
		switch {
		case node.Comment != nil:
			header := "**" + commenterName(tc, node.Comment.AttributedTo) + "**"
			if node.Comment.Published != "" {
				header += " · " + node.Comment.Published
			}
			if node.Comment.URL != "" {
				header += " · [link](" + node.Comment.URL + ")"
			}
			md.PlainText(quote + header)
			md.PlainText(strings.TrimSpace(quote))
			_, content := PickContent(node.Comment.Content, w.languages...)
			for _, line := range strings.Split(HTMLToText(content), "\n") {
				md.PlainText(quote + line)
			}
			for _, a := range node.Comment.Attachments {
				md.PlainText(quote + "- attachment: [" + a.MediaType + "](" + a.URL + ")")
			}
		case node.CommentError != "":
			md.PlainText(quote + "*unavailable:* `" + id + "`")
			md.Details("error", node.CommentError)
		default:
			md.PlainText(quote + "*pending:* `" + id + "`")
		}
		md.PlainText("")
	})
}

// writeFooter writes the document footer.
func (w *MarkdownWriter) writeFooter(md *markdown.Markdown) {
	md.HorizontalRule()
	md.PlainText("")
	md.PlainTextf("*Generated by [threadcap](https://github.com/nao1215/threadcap)*")
}
