package report

import (
	"slices"
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/text/language"

	"github.com/nao1215/threadcap/internal/model"
)

// HTMLToText converts comment HTML to plain text.
// Paragraphs become blank-line separated, <br> becomes a newline and all
// other markup is dropped. Input that fails to parse is returned as-is.
func HTMLToText(s string) string {
	doc, err := html.Parse(strings.NewReader(s))
	if err != nil {
		return s
	}

	var sb strings.Builder
	var walk func(n *html.Node)
	walk = func(n *html.Node) {
		switch n.Type {
		case html.TextNode:
			sb.WriteString(n.Data)
			return
		case html.ElementNode:
			if n.Data == "br" {
				sb.WriteString("\n")
				return
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
		if n.Type == html.ElementNode && (n.Data == "p" || n.Data == "div" || n.Data == "blockquote") {
			sb.WriteString("\n\n")
		}
	}
	walk(doc)

	lines := strings.Split(strings.TrimSpace(sb.String()), "\n")
	for i, line := range lines {
		lines[i] = strings.TrimSpace(line)
	}
	text := strings.Join(lines, "\n")
	for strings.Contains(text, "\n\n\n") {
		text = strings.ReplaceAll(text, "\n\n\n", "\n\n")
	}
	return text
}

// PickContent chooses the text of content that best matches preferred.
// Unparseable tags are skipped for matching; with no match the
// unspecified-language entry wins, then the first tag in sorted order.
func PickContent(content map[string]string, preferred ...language.Tag) (string, string) {
	if len(content) == 0 {
		return "", ""
	}

	keys := make([]string, 0, len(content))
	for k := range content {
		if k != model.LanguageUnspecified {
			keys = append(keys, k)
		}
	}
	slices.Sort(keys)
	if _, ok := content[model.LanguageUnspecified]; ok {
		keys = append([]string{model.LanguageUnspecified}, keys...)
	}

	var tags []language.Tag
	var tagKeys []string
	for _, k := range keys {
		tag, err := language.Parse(k)
		if err != nil {
			continue
		}
		tags = append(tags, tag)
		tagKeys = append(tagKeys, k)
	}

	if len(tags) > 0 && len(preferred) > 0 {
		_, index, confidence := language.NewMatcher(tags).Match(preferred...)
		if confidence != language.No {
			key := tagKeys[index]
			return key, content[key]
		}
	}
	return keys[0], content[keys[0]]
}
