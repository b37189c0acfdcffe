package llm

import (
	"context"
	"testing"
)

func TestNewClientUnknownName(t *testing.T) {
	if _, err := NewClient(context.Background(), "carrier-pigeon", "any"); err == nil {
		t.Error("expected an error for an unknown client name")
	}
}

func TestNewClientDefaultsToMock(t *testing.T) {
	c, err := NewClient(context.Background(), "", "")
	if err != nil {
		t.Fatal(err)
	}
	if _, ok := c.(*MockClient); !ok {
		t.Errorf("got %T, want *MockClient", c)
	}
}

func TestMockClientTitlesFromFirstLine(t *testing.T) {
	c := &MockClient{}
	title, err := c.Title(context.Background(), "Thinking: refactor the parser\nMessage: done")
	if err != nil {
		t.Fatal(err)
	}
	if title != "refactor the parser" {
		t.Errorf("got %q", title)
	}
}

func TestCleanTitle(t *testing.T) {
	cases := []struct {
		in, want string
	}{
		{`"Fix the login bug"`, "Fix the login bug"},
		{"Title here\nwith a stray second line", "Title here"},
		{"  padded  ", "padded"},
	}
	for _, tc := range cases {
		if got := cleanTitle(tc.in); got != tc.want {
			t.Errorf("cleanTitle(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}
