package runner

import (
	"github.com/m4xw311/acpcap/acp"
)

// Policy decides a permission request. It runs while the agent's call
// is suspended; returning a cancelled outcome lets the agent give up on
// the tool without ending the turn.
type Policy func(req *acp.RequestPermissionRequest) acp.RequestPermissionOutcome

// FirstAllow picks the first allow_once option, falling back to the
// first allow_always and then to whatever option comes first. Suitable
// for unattended capture runs.
func FirstAllow(req *acp.RequestPermissionRequest) acp.RequestPermissionOutcome {
	for _, kind := range []string{acp.PermissionAllowOnce, acp.PermissionAllowAlways} {
		for _, opt := range req.Options {
			if opt.Kind == kind {
				return acp.SelectedOutcome(opt.OptionID)
			}
		}
	}
	if len(req.Options) > 0 {
		return acp.SelectedOutcome(req.Options[0].OptionID)
	}
	return acp.CancelledOutcome()
}

// AlwaysReject picks the first reject option, preferring reject_once,
// and cancels when the agent offered no reject option at all.
func AlwaysReject(req *acp.RequestPermissionRequest) acp.RequestPermissionOutcome {
	for _, kind := range []string{acp.PermissionRejectOnce, acp.PermissionRejectAlways} {
		for _, opt := range req.Options {
			if opt.Kind == kind {
				return acp.SelectedOutcome(opt.OptionID)
			}
		}
	}
	return acp.CancelledOutcome()
}

// PolicyByName maps a configured permission mode to a policy. Unknown
// names fall back to FirstAllow.
func PolicyByName(name string) Policy {
	switch name {
	case "reject":
		return AlwaysReject
	case "", "first-allow":
		return FirstAllow
	default:
		return FirstAllow
	}
}
