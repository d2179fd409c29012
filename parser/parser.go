// Package parser implements C2: decoding one fetched blob into a sequence of
// internal node.Node records, dispatching by content sniffing.
package parser

import (
	"bytes"
	"fmt"
	"strconv"
	"strings"

	"github.com/subconverter-go/subconverter/node"
)

// Hints carries per-source overrides that apply regardless of which decoder
// ultimately handles the blob.
type Hints struct {
	// CustomPort, if non-nil, replaces the parsed port on every produced node.
	CustomPort *uint16
	// Tag, from the `tag:<name>,` source prefix, forces GroupName.
	Tag string
	// GroupID is the signed group id assigned to every node from this
	// source (positive for normal subscriptions, negative for inserts).
	GroupID int
	// Script, from the `script:<path>,<arg>,...` source prefix, is raw
	// script source run over the blob before parsing. Left to the caller
	// (the orchestrator) to execute via the script package; Parse itself
	// never executes scripts.
	Script string
}

// ParseSourcePrefix peels a leading `tag:<name>,` or `script:<path>,<arg>,...`
// prefix off a raw source URL, returning the remaining URL and any hints it
// carried (§4.C2 "Tagging syntax").
func ParseSourcePrefix(raw string) (url string, tag string, script string) {
	if rest, ok := cutPrefixCI(raw, "tag:"); ok {
		if name, tail, ok := strings.Cut(rest, ","); ok {
			return tail, name, ""
		}
	}
	if rest, ok := cutPrefixCI(raw, "script:"); ok {
		return rest, "", rest
	}
	return raw, "", ""
}

func cutPrefixCI(s, prefix string) (string, bool) {
	if len(s) >= len(prefix) && strings.EqualFold(s[:len(prefix)], prefix) {
		return s[len(prefix):], true
	}
	return "", false
}

// Parse decodes blob into zero or more Nodes, applying hints uniformly.
//
// Dispatch order matches spec.md §4.C2:
//  1. single well-known URI scheme
//  2. ssd:// airport envelope
//  3. YAML with top-level proxies/Proxy
//  4. Surge-style INI with [Proxy]
//  5. JSON (sniffed between vendor shapes)
//  6. textual subscription (base64, one URI per line)
func Parse(blob string, hints Hints) ([]*node.Node, error) {
	blob = stripBOMAndCR(blob)
	trimmed := strings.TrimSpace(blob)

	if n, ok, err := tryParseSingleURI(trimmed); ok {
		if err != nil {
			return nil, err
		}
		applyHints([]*node.Node{n}, hints)
		return []*node.Node{n}, nil
	}

	if strings.HasPrefix(trimmed, "ssd://") {
		nodes, err := parseSSD(trimmed)
		if err != nil {
			return nil, fmt.Errorf("parser: ssd: %w", err)
		}
		applyHints(nodes, hints)
		return nodes, nil
	}

	if looksLikeClashYAML(trimmed) {
		nodes, err := parseClashYAML(trimmed)
		if err != nil {
			return nil, fmt.Errorf("parser: clash yaml: %w", err)
		}
		applyHints(nodes, hints)
		return nodes, nil
	}

	if looksLikeSurgeINI(trimmed) {
		nodes, err := parseSurgeINI(trimmed)
		if err != nil {
			return nil, fmt.Errorf("parser: surge ini: %w", err)
		}
		applyHints(nodes, hints)
		return nodes, nil
	}

	if looksLikeJSON(trimmed) {
		nodes, err := parseJSONSniff(trimmed)
		if err != nil {
			return nil, fmt.Errorf("parser: json: %w", err)
		}
		applyHints(nodes, hints)
		return nodes, nil
	}

	nodes, err := parseTextualSubscription(trimmed)
	if err != nil {
		return nil, fmt.Errorf("parser: subscription: %w", err)
	}
	applyHints(nodes, hints)
	return nodes, nil
}

func applyHints(nodes []*node.Node, hints Hints) {
	for _, n := range nodes {
		if hints.CustomPort != nil {
			n.SetPort(*hints.CustomPort)
		}
		if hints.Tag != "" {
			n.GroupName = hints.Tag
		}
		if hints.GroupID != 0 {
			n.GroupID = hints.GroupID
		}
	}
}

func stripBOMAndCR(s string) string {
	s = strings.TrimPrefix(s, "﻿")
	b := []byte(s)
	b = bytes.ReplaceAll(b, []byte{0xEF, 0xBB, 0xBF}, nil)
	return string(b)
}

func looksLikeClashYAML(s string) bool {
	return strings.Contains(s, "\nproxies:") || strings.HasPrefix(s, "proxies:") ||
		strings.Contains(s, "\nProxy:") || strings.HasPrefix(s, "Proxy:")
}

func looksLikeSurgeINI(s string) bool {
	return strings.Contains(s, "[Proxy]")
}

func looksLikeJSON(s string) bool {
	return strings.HasPrefix(s, "{") || strings.HasPrefix(s, "[")
}

// downcastSSRtoSS reports whether an SSR node's protocol/obfs/method
// combination is plain-SS-expressible (spec.md §4.C2 bullet 7) and, if so,
// returns the downcast SS node.
func downcastSSRtoSS(n *node.Node) *node.Node {
	protocol := n.PayloadString("protocol")
	obfs := n.PayloadString("obfs")
	method := n.PayloadString("method")
	if protocol != "origin" || obfs != "plain" || !ssCipherAllowed(method) {
		return n
	}
	ss := n.Clone()
	ss.Kind = node.KindSS
	delete(ss.Payload, "protocol")
	delete(ss.Payload, "obfs")
	delete(ss.Payload, "protocolparam")
	delete(ss.Payload, "obfsparam")
	return ss
}

var ssAllowedCiphers = map[string]bool{
	"aes-128-gcm": true, "aes-192-gcm": true, "aes-256-gcm": true,
	"aes-128-cfb": true, "aes-192-cfb": true, "aes-256-cfb": true,
	"aes-128-ctr": true, "aes-192-ctr": true, "aes-256-ctr": true,
	"chacha20": true, "chacha20-ietf": true, "chacha20-ietf-poly1305": true,
	"xchacha20-ietf-poly1305": true, "rc4-md5": true, "none": true,
	"2022-blake3-aes-128-gcm": true, "2022-blake3-aes-256-gcm": true,
}

func ssCipherAllowed(method string) bool { return ssAllowedCiphers[strings.ToLower(method)] }

func parsePortString(s string) *uint16 {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	v, err := strconv.ParseUint(s, 10, 16)
	if err != nil {
		return nil
	}
	p := uint16(v)
	return &p
}
