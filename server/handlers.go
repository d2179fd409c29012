package server

import (
	"encoding/base64"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/subconverter-go/subconverter/emitter"
	"github.com/subconverter-go/subconverter/group"
	"github.com/subconverter-go/subconverter/node"
	"github.com/subconverter-go/subconverter/parser"
	"github.com/subconverter-go/subconverter/pipeline"
	"github.com/subconverter-go/subconverter/ruleset"
	"github.com/subconverter-go/subconverter/template"
)

// handleSub is the main `/sub` conversion entry point (spec.md §6).
func (s *Server) handleSub(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	target := q.Get("target")
	if target == "" {
		http.Error(w, "missing target", http.StatusBadRequest)
		return
	}
	s.runConvert(w, r, target)
}

// handleClashShortcut implements `/clash` → `/sub?target=clash&...`.
func (s *Server) handleClashShortcut(w http.ResponseWriter, r *http.Request) {
	s.runConvert(w, r, "clash")
}

// handleSurgeShortcut implements `/surge` → `/sub?target=surge&ver=3&...`
// unless the caller already supplied its own `ver`.
func (s *Server) handleSurgeShortcut(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	target := "surge3"
	if v := q.Get("ver"); v != "" {
		target = "surge" + v
	}
	s.runConvert(w, r, target)
}

func (s *Server) runConvert(w http.ResponseWriter, r *http.Request, target string) {
	q := r.URL.Query()
	cfg := s.cfg.Load()

	token := q.Get("token")
	if cfg.APIAccessToken != "" && token != "" && !tokenValid(token, cfg.APIAccessToken) {
		http.Error(w, "Forbidden", http.StatusForbidden)
		return
	}
	hasToken := token != "" && tokenValid(token, cfg.APIAccessToken)
	settings := effectiveSettings(q, cfg, hasToken)

	res, err := s.convert(target, q, cfg, settings)
	if err != nil {
		s.writeConvertError(w, err)
		return
	}
	s.writeResult(w, target, res)
}

func (s *Server) writeConvertError(w http.ResponseWriter, err error) {
	status := statusFor(err)
	http.Error(w, err.Error(), status)
}

func (s *Server) writeResult(w http.ResponseWriter, target string, res *result) {
	w.Header().Set("Content-Type", mimeForTarget(target))
	if res.filename != "" {
		w.Header().Set("Content-Disposition", fmt.Sprintf(`attachment; filename="%s"`, res.filename))
	}
	if res.traffic != nil {
		w.Header().Set("Subscription-Userinfo", fmt.Sprintf("upload=%d; download=%d; total=%d; expire=%d",
			res.traffic.Upload, res.traffic.Download, res.traffic.Total, res.traffic.Expire))
	}
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(res.body)
}

func mimeForTarget(target string) string {
	switch target {
	case "clash", "clashr":
		return "text/yaml; charset=utf-8"
	case "ssd", "sip008":
		return "application/json; charset=utf-8"
	default:
		return "text/plain; charset=utf-8"
	}
}

// handleGetRuleset proxies a single ruleset through the server, optionally
// re-tagging its lines with a policy group for Quantumult X (type=2)
// consumers; Surge's own RULE-SET directive supplies the group externally,
// so type=1 output stays bare TYPE,VALUE lines (spec.md §6, §4.C4 Open
// Question decision — see DESIGN.md).
func (s *Server) handleGetRuleset(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	rawURL, err := decodeB64Param(q.Get("url"))
	if err != nil {
		http.Error(w, "invalid url", http.StatusBadRequest)
		return
	}
	groupName, _ := decodeB64Param(q.Get("group"))

	hint := ""
	switch q.Get("type") {
	case "2":
		hint = "quanx"
	case "1":
		hint = "surge"
	}

	cfg := s.cfg.Load()
	ref := ruleset.Ref{Group: groupName, Path: rawURL, Type: hint}
	resolved := ruleset.Resolve([]ruleset.Ref{ref}, s.fetcher, cfg.OutboundProxy, cfg.DefaultCacheTTL, false, s.warn)
	lines, err := resolved[0].Wait()
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	if hint == "quanx" && groupName != "" {
		for i, line := range lines {
			lines[i] = line + "," + groupName
		}
	}

	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(strings.Join(lines, "\n")))
}

// handleGetProfile loads a server-side profile INI and treats each of its
// keys as an overriding query parameter before running the normal `/sub`
// conversion (spec.md §6).
func (s *Server) handleGetProfile(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	name := q.Get("name")
	if name == "" {
		http.Error(w, "missing name", http.StatusBadRequest)
		return
	}
	cfg := s.cfg.Load()
	if cfg.APIAccessToken != "" && !tokenValid(q.Get("token"), cfg.APIAccessToken) {
		http.Error(w, "Forbidden", http.StatusForbidden)
		return
	}

	overrides, err := loadProfile(cfg.ProfileDir, name)
	if err != nil {
		http.Error(w, "profile not found", http.StatusNotFound)
		return
	}
	merged := mergeQuery(q, overrides)

	target := merged.Get("target")
	if target == "" {
		http.Error(w, "profile missing target", http.StatusBadRequest)
		return
	}
	mergedToken := merged.Get("token")
	hasToken := mergedToken != "" && tokenValid(mergedToken, cfg.APIAccessToken)
	settings := effectiveSettings(merged, cfg, hasToken)

	res, err := s.convert(target, merged, cfg, settings)
	if err != nil {
		s.writeConvertError(w, err)
		return
	}
	s.writeResult(w, target, res)
}

// handleRender invokes the template engine on an arbitrary template URL,
// binding query params into the `request.*` scope (spec.md §6, §4.C7).
func (s *Server) handleRender(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	path := q.Get("path")
	if path == "" {
		http.Error(w, "missing path", http.StatusBadRequest)
		return
	}
	cfg := s.cfg.Load()
	body, _, err := s.fetcher.Fetch(path, cfg.OutboundProxy, cfg.DefaultCacheTTL, true)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	scopes := template.NewScopes()
	scopes.Global.Set("user_agent", cfg.UserAgent)
	scopes.Global.Set("clash_new_field_name", cfg.ClashNewFieldName)
	for k, vs := range q {
		if len(vs) > 0 {
			scopes.Request.Set(k, vs[0])
		}
	}

	out, err := s.templates.Render(string(body), scopes)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(out))
}

// handleQXScript re-injects a Quantumult X script remote with an
// `@supported <dev_id>` guard line so the rewrite module only applies on
// the declaring device (spec.md §6).
func (s *Server) handleQXScript(w http.ResponseWriter, r *http.Request) {
	s.handleQXIndirection(w, r, "// @supported %s\n")
}

// handleQXRewrite mirrors handleQXScript for rewrite remote lines.
func (s *Server) handleQXRewrite(w http.ResponseWriter, r *http.Request) {
	s.handleQXIndirection(w, r, "! @supported %s\n")
}

func (s *Server) handleQXIndirection(w http.ResponseWriter, r *http.Request, guardFormat string) {
	q := r.URL.Query()
	devID := q.Get("id")
	rawURL, err := decodeB64Param(q.Get("url"))
	if err != nil {
		http.Error(w, "invalid url", http.StatusBadRequest)
		return
	}
	cfg := s.cfg.Load()
	body, _, err := s.fetcher.Fetch(rawURL, cfg.OutboundProxy, cfg.DefaultCacheTTL, true)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	out := body
	if devID != "" {
		out = append([]byte(fmt.Sprintf(guardFormat, devID)), body...)
	}
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(out)
}

// handleSub2ClashR is the legacy one-shot link→ClashR shortcut: it parses a
// single subscription link and re-emits it as a minimal Clash(R) config
// with one catch-all select group and a DIRECT fallback rule.
func (s *Server) handleSub2ClashR(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	sublink := q.Get("sublink")
	if sublink == "" {
		http.Error(w, "missing sublink", http.StatusBadRequest)
		return
	}
	s.emitSingleShotClash(w, sublink, true, false)
}

// handleSurge2Clash converts an existing Surge config (fetched from `link`)
// into a Clash config, re-parsing its [Proxy]/[Proxy Group]/[Rule] sections.
func (s *Server) handleSurge2Clash(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	link := q.Get("link")
	if link == "" {
		http.Error(w, "missing link", http.StatusBadRequest)
		return
	}
	s.emitSingleShotClash(w, link, false, true)
}

func (s *Server) emitSingleShotClash(w http.ResponseWriter, source string, ssr, surgeInput bool) {
	cfg := s.cfg.Load()
	body, _, err := s.fetcher.Fetch(source, cfg.OutboundProxy, cfg.DefaultCacheTTL, true)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	_ = surgeInput // parser.Parse already sniffs Surge INI vs subscription text

	nodes, err := parser.Parse(string(body), parser.Hints{GroupID: 1})
	if err != nil || len(nodes) == 0 {
		http.Error(w, "no proxy nodes recognised", http.StatusBadRequest)
		return
	}
	settings := node.ExtraSettings{ClashNewFieldName: cfg.ClashNewFieldName}
	nodes = pipeline.Run(nodes, settings, s.pipelineScripter(), s.warn)

	spec := group.Spec{Name: "Proxy", Type: group.TypeSelect, Selectors: []string{".*"}}
	members := group.Expand(spec, nodes, groupScripter{s.scriptEngine}, s.warn)

	req := emitter.Request{
		Nodes:    nodes,
		Groups:   []emitter.ExpandedGroup{{Spec: spec, Members: members}},
		Rules:    []string{"FINAL,Proxy"},
		Settings: settings,
	}
	out, err := emitter.EmitClash(req, ssr)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/yaml; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(out)
}

func decodeB64Param(v string) (string, error) {
	if v == "" {
		return "", nil
	}
	if decoded, err := base64.StdEncoding.DecodeString(v); err == nil {
		return string(decoded), nil
	}
	decoded, err := base64.URLEncoding.DecodeString(v)
	if err != nil {
		return "", err
	}
	return string(decoded), nil
}

func mergeQuery(base, overrides url.Values) url.Values {
	merged := url.Values{}
	for k, v := range base {
		merged[k] = v
	}
	for k, v := range overrides {
		merged[k] = v
	}
	return merged
}
