// Package emitter implements C6: rendering the final artifact for one of
// the supported target formats from the accumulated nodes, expanded
// groups, and resolved rules.
package emitter

import (
	"fmt"

	"github.com/subconverter-go/subconverter/group"
	"github.com/subconverter-go/subconverter/node"
)

// ExpandedGroup pairs a group spec with its already-expanded member list
// (produced by the group package) so an emitter never needs to re-run
// selector matching.
type ExpandedGroup struct {
	Spec    group.Spec
	Members []string
}

// Request is the common input every target-specific emitter consumes
// (spec.md §4.C6 "Each emitter takes (nodes, groups, rulesets,
// base_template, ExtraSettings)").
type Request struct {
	Nodes        []*node.Node
	Groups       []ExpandedGroup
	Rules        []string
	BaseTemplate []byte
	Settings     node.ExtraSettings
	// ManagedConfigURL is the self-refresh URL used to build the
	// #!MANAGED-CONFIG header line; empty disables it.
	ManagedConfigURL string
	// Traffic carries subscription usage/expiry figures parsed from the
	// upstream Subscription-UserInfo header (spec.md §6), consumed by
	// targets that embed airport accounting (SSD).
	Traffic *TrafficInfo
}

// TrafficInfo mirrors the fields of the Subscription-UserInfo header:
// `upload=…; download=…; total=…; expire=…` (spec.md §6).
type TrafficInfo struct {
	Upload   int64
	Download int64
	Total    int64
	Expire   int64 // unix seconds; zero means no expiry
}

// Emit dispatches to the target-specific emitter by name. Unknown targets
// are an "emit" error class (spec.md §7) the caller turns into HTTP 500.
func Emit(target string, req Request) ([]byte, error) {
	switch target {
	case "clash":
		return EmitClash(req, false)
	case "clashr":
		return EmitClash(req, true)
	case "surge2":
		return EmitSurge(req, 2, false)
	case "surge3":
		return EmitSurge(req, 3, false)
	case "surge4", "surge":
		return EmitSurge(req, 4, false)
	case "surfboard":
		return EmitSurge(req, 3, true)
	case "quan":
		return EmitQuantumult(req)
	case "quanx":
		return EmitQuantumultX(req)
	case "loon":
		return EmitLoon(req)
	case "ssd":
		return EmitSSD(req)
	case "sip008":
		return EmitSIP008(req)
	case "ss":
		return EmitSingleLink(req, node.KindSS)
	case "ssr":
		return EmitSingleLink(req, node.KindSSR)
	case "vmess":
		return EmitSingleLink(req, node.KindVMess)
	case "trojan":
		return EmitSingleLink(req, node.KindTrojan)
	case "mellow":
		return EmitMellow(req)
	default:
		return nil, fmt.Errorf("emit: unrecognized target %q", target)
	}
}

// managedConfigHeader builds the in-band `#!MANAGED-CONFIG` prefix line
// shared by Surge and Surfboard (spec.md §4.C6 "common behaviours", §6
// "managed config").
func managedConfigHeader(url string, interval int, strict bool) string {
	return fmt.Sprintf("#!MANAGED-CONFIG %s interval=%d strict=%t\n\n", url, interval, strict)
}

// literalGroupOverride reports whether a group name is one of the literal
// policies that always collapse to a single-member select group
// (spec.md §4.C6 "common behaviours").
func literalGroupOverride(name string) bool {
	switch name {
	case "DIRECT", "REJECT", "REJECT-TINYGIF":
		return true
	}
	return false
}
