package report

import (
	"encoding/json"
	"io"

	"github.com/nao1215/threadcap/internal/model"
)

// JSONWriter outputs the snapshot in its persisted JSON form.
//
// Design decision: We use standard encoding/json rather than a third-party
// JSON library because the snapshot types carry their own MarshalJSON
// methods that define the wire shape, and any other encoder would have to
// honor them anyway.
type JSONWriter struct {
	baseWriter

	// indent enables pretty-printed JSON output.
	indent bool

	// indentPrefix is the prefix for each line in indented output.
	indentPrefix string

	// indentString is the indentation string (typically "  " or "\t").
	indentString string
}

// JSONWriterOption configures a JSONWriter.
type JSONWriterOption func(*JSONWriter)

// WithIndent enables pretty-printed JSON output.
func WithIndent(prefix, indent string) JSONWriterOption {
	return func(w *JSONWriter) {
		w.indent = true
		w.indentPrefix = prefix
		w.indentString = indent
	}
}

// WithPrettyPrint enables pretty-printed JSON with two-space indentation.
func WithPrettyPrint() JSONWriterOption {
	return WithIndent("", "  ")
}

// NewJSONWriter creates a JSONWriter that outputs to the given writer.
func NewJSONWriter(output io.Writer, opts ...JSONWriterOption) *JSONWriter {
	w := &JSONWriter{baseWriter: newBaseWriter(output)}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Write implements Writer.
func (w *JSONWriter) Write(tc *model.Threadcap) (int, error) {
	var data []byte
	var err error
	if w.indent {
		data, err = json.MarshalIndent(tc, w.indentPrefix, w.indentString)
	} else {
		data, err = json.Marshal(tc)
	}
	if err != nil {
		return 0, err
	}
	data = append(data, '\n')
	return w.output.Write(data)
}
