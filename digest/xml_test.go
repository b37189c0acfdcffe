package digest

import (
	"encoding/xml"
	"strings"
	"testing"
)

func TestToContextXMLEmpty(t *testing.T) {
	if got := ToContextXML(nil); got != "" {
		t.Errorf("empty input produced %q, want empty string", got)
	}
	if got := ToContextXML([]CompressedSession{}); got != "" {
		t.Errorf("empty slice produced %q, want empty string", got)
	}
}

func TestToContextXMLSingleSession(t *testing.T) {
	got := ToContextXML([]CompressedSession{
		{SessionID: "s1", Summary: "Thinking: A\nMessage: B"},
	})
	want := "<session id=\"s1\">\nThinking: A\nMessage: B\n</session>\n"
	if got != want {
		t.Errorf("got %q, want %q", got, want)
	}
}

func TestToContextXMLTitleAttribute(t *testing.T) {
	got := ToContextXML([]CompressedSession{
		{SessionID: "s1", Title: "Fix the bug", Summary: "Message: done"},
	})
	if !strings.Contains(got, `<session id="s1" title="Fix the bug">`) {
		t.Errorf("opening tag missing title: %q", got)
	}
}

func TestToContextXMLBlankLineBetweenBlocks(t *testing.T) {
	got := ToContextXML([]CompressedSession{
		{SessionID: "a", Summary: "Message: one"},
		{SessionID: "b", Summary: "Message: two"},
	})
	if !strings.Contains(got, "</session>\n\n<session id=\"b\">") {
		t.Errorf("blocks not separated by exactly one blank line: %q", got)
	}
	if strings.HasPrefix(got, "\n") {
		t.Error("leading blank line before first block")
	}
	if strings.HasSuffix(got, "\n\n") {
		t.Error("trailing blank line after last block")
	}
}

func TestToContextXMLEscapesAttributes(t *testing.T) {
	title := `a <b> & "c"`
	out := ToContextXML([]CompressedSession{
		{SessionID: "s&1", Title: title, Summary: "Message: ok"},
	})

	tagLine := out[:strings.Index(out, ">")+1]
	for _, raw := range []string{"<b>", `& `, `"c"`} {
		if strings.Contains(tagLine, raw) {
			t.Errorf("attribute contains raw %q: %s", raw, tagLine)
		}
	}

	// A standard XML parser must recover the original strings.
	var parsed struct {
		ID    string `xml:"id,attr"`
		Title string `xml:"title,attr"`
	}
	if err := xml.Unmarshal([]byte(out), &parsed); err != nil {
		t.Fatalf("output is not parseable XML: %v", err)
	}
	if parsed.ID != "s&1" {
		t.Errorf("id round trip: %q", parsed.ID)
	}
	if parsed.Title != title {
		t.Errorf("title round trip: %q, want %q", parsed.Title, title)
	}
}

func TestToContextXMLSummaryNotEscaped(t *testing.T) {
	out := ToContextXML([]CompressedSession{
		{SessionID: "s1", Summary: `Message: a < b && c > d`},
	})
	if !strings.Contains(out, "Message: a < b && c > d") {
		t.Errorf("summary was escaped: %q", out)
	}
}
