package server

import (
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"github.com/subconverter-go/subconverter/config"
	"github.com/subconverter-go/subconverter/emitter"
	"github.com/subconverter-go/subconverter/group"
	"github.com/subconverter-go/subconverter/node"
	"github.com/subconverter-go/subconverter/parser"
	"github.com/subconverter-go/subconverter/pipeline"
	"github.com/subconverter-go/subconverter/ruleset"
)

// result is what convert hands back to an HTTP handler: the rendered
// artifact body plus the response metadata spec.md §6 names.
type result struct {
	body     []byte
	filename string
	traffic  *emitter.TrafficInfo
	managed  bool
}

// convert drives C1..C6 in the order of spec.md §2 for one `/sub`-family
// request: fetch every declared source, run the node pipeline, resolve
// rulesets, expand groups, and hand everything to the target emitter.
func (s *Server) convert(target string, q url.Values, cfg *config.Config, settings node.ExtraSettings) (*result, error) {
	var nodes []*node.Node
	var traffic *emitter.TrafficInfo

	groupID := 1
	if settings.EnableInsert && cfg.EnableInsert {
		insertID := -1
		for _, raw := range cfg.InsertURLs {
			ns, _, err := s.fetchAndParse(raw, insertID, cfg, settings)
			if err != nil {
				s.log.Errorf("server: insert source %q dropped: %v", raw, err)
				continue
			}
			nodes = append(nodes, ns...)
			insertID--
		}
	}

	rawURLs := splitAny(q.Get("url"), "|")
	if len(rawURLs) == 0 {
		return nil, errParse("no url provided")
	}

	var fetchErrs []string
	for _, raw := range rawURLs {
		ns, info, err := s.fetchAndParse(raw, groupID, cfg, settings)
		if err != nil {
			fetchErrs = append(fetchErrs, err.Error())
			continue
		}
		if traffic == nil {
			traffic = info
		}
		nodes = append(nodes, ns...)
		groupID++
	}
	if len(nodes) == 0 {
		if len(fetchErrs) > 0 {
			return nil, errFetch("all sources failed: %s", strings.Join(fetchErrs, "; "))
		}
		return nil, errParse("no proxy nodes recognised in any source")
	}

	nodes = pipeline.Run(nodes, settings, s.pipelineScripter(), s.warn)

	groupSpecs := parseGroupSpecs(q.Get("groups"))
	refs := parseRulesetParams(q.Get("ruleset"), cfg)
	resolved := ruleset.Resolve(refs, s.fetcher, cfg.OutboundProxy, cfg.DefaultCacheTTL, true, s.warn)
	lines := ruleset.Join(resolved, settings.MaxAllowedRules)

	expandedGroups := make([]emitter.ExpandedGroup, 0, len(groupSpecs))
	for _, spec := range groupSpecs {
		if !group.Capable(target, spec.Type) {
			s.warn(fmt.Sprintf("server: group %q type %q unsupported on target %q, skipped", spec.Name, spec.Type, target))
			continue
		}
		members := group.Expand(spec, nodes, groupScripter{s.scriptEngine}, s.warn)
		expandedGroups = append(expandedGroups, emitter.ExpandedGroup{Spec: spec, Members: members})
	}

	baseTemplate, err := s.loadBaseTemplate(target, cfg, settings)
	if err != nil {
		s.log.Errorf("server: base template for %q unavailable: %v", target, err)
	}

	managedURL := ""
	if settings.ManagedConfigPrefix != "" && (strings.HasPrefix(target, "surge") || target == "surfboard") {
		managedURL = managedConfigURL(settings.ManagedConfigPrefix, q)
	}

	req := emitter.Request{
		Nodes:            nodes,
		Groups:           expandedGroups,
		Rules:            lines,
		BaseTemplate:     baseTemplate,
		Settings:         settings,
		ManagedConfigURL: managedURL,
		Traffic:          traffic,
	}
	body, err := emitter.Emit(target, req)
	if err != nil {
		return nil, errEmit("%v", err)
	}

	return &result{body: body, filename: settings.Filename, traffic: traffic, managed: managedURL != ""}, nil
}

// fetchAndParse fetches one source URL, applies the `tag:`/`script:` source
// prefix grammar, and decodes the result into Nodes tagged with groupID. The
// returned *emitter.TrafficInfo follows addNodes's own header-then-remarks
// precedence (original_source/src/nodemanip.cpp:122-124): the upstream
// Subscription-Userinfo response header wins when present, falling back to
// scanning the freshly parsed nodes' remarks against cfg's stream/time rules.
func (s *Server) fetchAndParse(raw string, groupID int, cfg *config.Config, settings node.ExtraSettings) ([]*node.Node, *emitter.TrafficInfo, error) {
	target, tag, scriptBody := parser.ParseSourcePrefix(raw)

	body, hdrs, err := s.fetcher.Fetch(target, cfg.OutboundProxy, cfg.DefaultCacheTTL, settings.ScopeLimit)
	if err != nil {
		return nil, nil, errFetch("fetch %q: %v", target, err)
	}

	blob := string(body)
	if scriptBody != "" {
		if s.scriptEngine == nil {
			s.warn(fmt.Sprintf("server: source script present for %q but scripting disabled; raw content used", target))
		} else {
			transformed, err := s.scriptEngine.Source(blob, scriptBody, nil)
			if err != nil {
				s.warn(fmt.Sprintf("server: source script failed for %q: %v; raw content used", target, err))
			} else {
				blob = transformed
			}
		}
	}

	nodes, err := parser.Parse(blob, parser.Hints{Tag: tag, GroupID: groupID})
	if err != nil {
		return nil, nil, errParse("parse %q: %v", target, err)
	}
	if len(nodes) == 0 {
		return nil, nil, errParse("no proxy nodes recognised in %q", target)
	}

	info := parseSubscriptionUserInfo(hdrs)
	if info == nil {
		info = deriveTrafficFromRemarks(nodes, cfg.StreamRules, cfg.TimeRules)
	}
	return nodes, info, nil
}

// pipelineScripter returns a pipeline.Scripter, or nil when scripting is
// disabled — pipeline.Run treats a nil Scripter as "skip script-backed
// rules, warn, keep the node" (spec.md §9 design note).
func (s *Server) pipelineScripter() pipeline.Scripter {
	if s.scriptEngine == nil {
		return nil
	}
	return pipeline.DefaultScripter{Engine: s.scriptEngine}
}

// loadBaseTemplate fetches the target's configured base template, if any.
func (s *Server) loadBaseTemplate(target string, cfg *config.Config, settings node.ExtraSettings) ([]byte, error) {
	path, ok := cfg.BaseTemplates[target]
	if !ok || path == "" {
		return nil, nil
	}
	body, _, err := s.fetcher.Fetch(path, cfg.OutboundProxy, cfg.DefaultCacheTTL, settings.ScopeLimit)
	if err != nil {
		return nil, err
	}
	return body, nil
}

// managedConfigURL rebuilds the self-refresh URL embedded in the
// `#!MANAGED-CONFIG` header line, reusing the current request's own query
// string so re-fetching it reproduces the same artifact (spec.md testable
// property 7).
func managedConfigURL(prefix string, q url.Values) string {
	return prefix + "/sub?" + q.Encode()
}

// parseSubscriptionUserInfo extracts traffic/expiry figures from an
// upstream `Subscription-UserInfo` response header (spec.md §6).
func parseSubscriptionUserInfo(hdrs map[string][]string) *emitter.TrafficInfo {
	var raw string
	for k, vs := range hdrs {
		if strings.EqualFold(k, "Subscription-Userinfo") && len(vs) > 0 {
			raw = vs[0]
			break
		}
	}
	if raw == "" {
		return nil
	}
	info := &emitter.TrafficInfo{}
	found := false
	for _, field := range strings.Split(raw, ";") {
		field = strings.TrimSpace(field)
		key, val, ok := strings.Cut(field, "=")
		if !ok {
			continue
		}
		n, err := strconv.ParseInt(strings.TrimSpace(val), 10, 64)
		if err != nil {
			continue
		}
		found = true
		switch strings.TrimSpace(key) {
		case "upload":
			info.Upload = n
		case "download":
			info.Download = n
		case "total":
			info.Total = n
		case "expire":
			info.Expire = n
		}
	}
	if !found {
		return nil
	}
	return info
}

func (s *Server) warn(msg string) {
	s.log.Infof("server: %s", msg)
}

// Generate runs the same conversion pipeline handleSub uses, for the
// `subconverter -g` batch mode (spec.md §6 "generate.ini"). Batch artifacts
// run with the full local trust level: scope_limit is never forced since
// the artifact list itself is a trusted local file, not an inbound request.
func (s *Server) Generate(target string, q url.Values) ([]byte, error) {
	cfg := s.cfg.Load()
	settings := effectiveSettings(q, cfg, true)
	res, err := s.convert(target, q, cfg, settings)
	if err != nil {
		return nil, err
	}
	return res.body, nil
}
