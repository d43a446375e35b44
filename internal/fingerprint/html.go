package fingerprint

import (
	"errors"
	"io"
	"strings"

	"github.com/copyleftdev/replaykit/internal/page"
	"golang.org/x/net/html"
)

// ErrNoTag is returned when markup contains no start tag.
var ErrNoTag = errors.New("markup has no element")

// ParseOpeningTag returns the lower-cased tag name and attributes of the first
// element in markup.
func ParseOpeningTag(markup string) (string, map[string]string, error) {
	z := html.NewTokenizer(strings.NewReader(markup))
	for {
		switch z.Next() {
		case html.ErrorToken:
			if err := z.Err(); err != nil && err != io.EOF {
				return "", nil, err
			}
			return "", nil, ErrNoTag
		case html.StartTagToken, html.SelfClosingTagToken:
			tok := z.Token()
			attrs := make(map[string]string, len(tok.Attr))
			for _, a := range tok.Attr {
				if _, seen := attrs[a.Key]; !seen {
					attrs[a.Key] = a.Val
				}
			}
			return strings.ToLower(tok.Data), attrs, nil
		}
	}
}

// SnapshotFromHTML builds a Snapshot from an element's outerHTML. Text is the
// concatenation of all descendant text, like textContent, minus script and
// style bodies. LabelText and TypeProp are left for the caller.
func SnapshotFromHTML(outerHTML string) (page.Snapshot, error) {
	tag, attrs, err := ParseOpeningTag(outerHTML)
	if err != nil {
		return page.Snapshot{}, err
	}

	var text strings.Builder
	z := html.NewTokenizer(strings.NewReader(outerHTML))
	skip := 0
	for {
		tt := z.Next()
		if tt == html.ErrorToken {
			break
		}
		switch tt {
		case html.StartTagToken:
			name, _ := z.TagName()
			if isRawTextTag(string(name)) {
				skip++
			}
		case html.EndTagToken:
			name, _ := z.TagName()
			if isRawTextTag(string(name)) && skip > 0 {
				skip--
			}
		case html.TextToken:
			if skip == 0 {
				text.Write(z.Text())
			}
		}
	}

	return page.Snapshot{TagName: tag, Attrs: attrs, Text: text.String(), TypeProp: attrs["type"]}, nil
}

func isRawTextTag(name string) bool {
	return name == "script" || name == "style" || name == "noscript"
}
