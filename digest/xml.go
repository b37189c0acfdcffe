package digest

import "strings"

var attrEscaper = strings.NewReplacer(
	"&", "&amp;",
	"<", "&lt;",
	">", "&gt;",
	`"`, "&quot;",
)

// ToContextXML renders compressed sessions as a sequence of <session>
// blocks, one blank line between blocks. Attribute values are escaped;
// the summary is emitted verbatim as enclosed text. An empty input
// yields the empty string.
func ToContextXML(sessions []CompressedSession) string {
	if len(sessions) == 0 {
		return ""
	}
	blocks := make([]string, 0, len(sessions))
	for _, s := range sessions {
		var b strings.Builder
		b.WriteString(`<session id="`)
		b.WriteString(attrEscaper.Replace(s.SessionID))
		b.WriteString(`"`)
		if s.Title != "" {
			b.WriteString(` title="`)
			b.WriteString(attrEscaper.Replace(s.Title))
			b.WriteString(`"`)
		}
		b.WriteString(">\n")
		b.WriteString(s.Summary)
		b.WriteString("\n</session>\n")
		blocks = append(blocks, b.String())
	}
	return strings.Join(blocks, "\n")
}
