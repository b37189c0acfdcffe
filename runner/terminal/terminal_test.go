package terminal

import (
	"strings"
	"testing"

	"github.com/m4xw311/acpcap/acp"
)

func permReq() *acp.RequestPermissionRequest {
	return &acp.RequestPermissionRequest{
		SessionID: "s",
		ToolCall:  acp.ToolCallRef{ToolCallID: "tc1", Title: "rm -rf build", Kind: acp.ToolKindExecute},
		Options: []acp.PermissionOption{
			{OptionID: "allow", Name: "Allow", Kind: acp.PermissionAllowOnce},
			{OptionID: "reject", Name: "Reject", Kind: acp.PermissionRejectOnce},
		},
	}
}

func TestAskPolicySelectsByNumber(t *testing.T) {
	var out strings.Builder
	policy := AskPolicy(strings.NewReader("2\n"), &out)

	got := policy(permReq())
	if got.Outcome != "selected" || got.OptionID != "reject" {
		t.Errorf("got %+v", got)
	}
	if !strings.Contains(out.String(), "rm -rf build") {
		t.Errorf("prompt did not show the tool title: %q", out.String())
	}
}

func TestAskPolicyRejectsOnGarbage(t *testing.T) {
	var out strings.Builder
	policy := AskPolicy(strings.NewReader("yes please\n"), &out)

	got := policy(permReq())
	if got.OptionID != "reject" {
		t.Errorf("unparseable answer should reject, got %+v", got)
	}
}

func TestAskPolicyCancelsOnEOF(t *testing.T) {
	var out strings.Builder
	policy := AskPolicy(strings.NewReader(""), &out)

	got := policy(permReq())
	if got.Outcome != "cancelled" {
		t.Errorf("EOF should cancel, got %+v", got)
	}
}
