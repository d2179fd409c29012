package server

import (
	"net/url"
	"strconv"
	"strings"

	"github.com/subconverter-go/subconverter/config"
	"github.com/subconverter-go/subconverter/group"
	"github.com/subconverter-go/subconverter/node"
	"github.com/subconverter-go/subconverter/ruleset"
)

// effectiveSettings derives node.ExtraSettings from a request's query
// string, overlaid on the process-wide config (precedence: request arg >
// external-config arg > process default, spec.md §6). The external-config
// arg tier is handled by the caller pre-merging a profile INI's keys into q
// before effectiveSettings runs, so this function only ever sees two tiers.
func effectiveSettings(q url.Values, cfg *config.Config, hasToken bool) node.ExtraSettings {
	s := node.ExtraSettings{
		NodelistMode:      q.Get("list") == "true",
		AddEmoji:          boolParam(q, "emoji", cfg.AddEmoji),
		RemoveOldEmoji:    boolParam(q, "remove_emoji", cfg.RemoveOldEmoji),
		Sort:              boolParam(q, "sort", cfg.DefaultSort),
		AppendType:        q.Get("append_type") == "true",
		ClashNewFieldName: boolParam(q, "fdn", cfg.ClashNewFieldName),
		SurgeSSRPath:      q.Get("ssr_path"),
		QuantumultXDevID:  q.Get("dev_id"),
		IncludeRemarks:    splitNonEmpty(q.Get("include"), "`"),
		ExcludeRemarks:    splitNonEmpty(q.Get("exclude"), "`"),
		OverwriteOriginalRules: boolParam(q, "overwrite_rules", cfg.OverwriteOriginalRules),
		EnableInsert:      boolParam(q, "insert", cfg.EnableInsert),
		MaxAllowedRules:   cfg.MaxAllowedRules,
		Filename:          q.Get("filename"),
		UserAgent:         cfg.UserAgent,
		ScopeLimit:        !hasToken,
		AccessToken:       q.Get("token"),
	}
	if v := q.Get("udp"); v != "" {
		s.UDP = triParam(v)
	}
	if v := q.Get("tfo"); v != "" {
		s.TFO = triParam(v)
	}
	if v := q.Get("scv"); v != "" {
		s.SkipCertVerify = triParam(v)
	}
	if v := q.Get("tls13"); v != "" {
		s.TLS13 = triParam(v)
	}
	if v := q.Get("interval"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			s.Interval = n
		}
	}
	s.Strict = q.Get("strict") == "true"
	s.ManagedConfigPrefix = cfg.ManagedConfigPrefix
	if v := q.Get("new_name"); v != "" {
		s.Rename = parseRenameRules(v)
	} else {
		s.Rename = cfg.Rename
	}
	s.Emoji = cfg.Emoji
	return s
}

func boolParam(q url.Values, key string, def bool) bool {
	v := q.Get(key)
	switch v {
	case "true", "1":
		return true
	case "false", "0":
		return false
	default:
		return def
	}
}

func triParam(v string) node.Tri {
	switch v {
	case "true", "1":
		return node.TriTrue
	case "false", "0":
		return node.TriFalse
	default:
		return node.TriUnset
	}
}

func splitNonEmpty(s, sep string) []string {
	if s == "" {
		return nil
	}
	var out []string
	for _, part := range strings.Split(s, sep) {
		if part != "" {
			out = append(out, part)
		}
	}
	return out
}

// parseRenameRules decodes the `new_name` query convention,
// "match1@replace1`match2@replace2`...".
func parseRenameRules(raw string) []node.RenameRule {
	var out []node.RenameRule
	for _, entry := range strings.Split(raw, "`") {
		if entry == "" {
			continue
		}
		match, replace, ok := strings.Cut(entry, "@")
		if !ok {
			continue
		}
		out = append(out, node.RenameRule{Match: match, Replace: replace})
	}
	return out
}

// parseGroupSpecs decodes the `groups` query convention, one group per `\n`
// or `|`-separated entry, fields separated by backticks:
// "Name`type`selector1`selector2`...`url`interval,timeout,tolerance", matching
// subexport.cpp's custom_proxy_group grammar (original_source/src/subexport.cpp
// ~line 1390, split on "`" with a trailing url field and a single
// comma-packed times field consumed by parseGroupTimes).
func parseGroupSpecs(raw string) []group.Spec {
	var specs []group.Spec
	for _, entry := range splitAny(raw, "\n|") {
		fields := strings.Split(entry, "`")
		if len(fields) < 3 {
			continue
		}
		spec := group.Spec{
			Name: fields[0],
			Type: group.Type(fields[1]),
		}
		rest := fields[2:]
		switch spec.Type {
		case group.TypeURLTest, group.TypeFallback, group.TypeLoadBalance:
			// Trailing url + comma-packed "interval,timeout,tolerance" pair,
			// if present.
			if len(rest) >= 2 {
				spec.Selectors = rest[:len(rest)-2]
				spec.TestURL = rest[len(rest)-2]
				spec.Interval, spec.Timeout, spec.Tolerance = parseGroupTimes(rest[len(rest)-1])
			} else {
				spec.Selectors = rest
			}
		default:
			spec.Selectors = rest
		}
		specs = append(specs, spec)
	}
	return specs
}

// parseGroupTimes decodes the packed "interval,timeout,tolerance" field of a
// url-test/fallback/load-balance group declaration, matching
// subexport.cpp's parseGroupTimes (original_source/src/subexport.cpp:989):
// each comma-separated token fills the next pointer in that fixed order,
// and any tokens omitted from the right are left at zero.
func parseGroupTimes(raw string) (interval, timeout, tolerance int) {
	parts := strings.SplitN(raw, ",", 3)
	if len(parts) > 0 {
		interval, _ = strconv.Atoi(parts[0])
	}
	if len(parts) > 1 {
		timeout, _ = strconv.Atoi(parts[1])
	}
	if len(parts) > 2 {
		tolerance, _ = strconv.Atoi(parts[2])
	}
	return interval, timeout, tolerance
}

func splitAny(s, seps string) []string {
	return strings.FieldsFunc(s, func(r rune) bool { return strings.ContainsRune(seps, r) })
}

// parseRulesetParams decodes the `ruleset` query convention, one entry per
// `\n`-separated "group,url[,type]" declaration, falling back to cfg's
// process-wide defaults when the request supplies none.
func parseRulesetParams(raw string, cfg *config.Config) []ruleset.Ref {
	if raw == "" {
		refs := make([]ruleset.Ref, len(cfg.Rulesets))
		for i, d := range cfg.Rulesets {
			refs[i] = ruleset.Ref{Group: d.Group, Path: d.URL}
		}
		return refs
	}
	var refs []ruleset.Ref
	for _, entry := range splitAny(raw, "\n") {
		parts := strings.SplitN(entry, ",", 3)
		if len(parts) < 2 {
			continue
		}
		ref := ruleset.Ref{Group: strings.TrimSpace(parts[0]), Path: strings.TrimSpace(parts[1])}
		if len(parts) == 3 {
			ref.Type = strings.TrimSpace(parts[2])
		}
		refs = append(refs, ref)
	}
	return refs
}
