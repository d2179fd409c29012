package parser

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"github.com/subconverter-go/subconverter/node"
)

// tryParseSingleURI reports ok=true only when trimmed is recognised as one
// of the single-node URI schemes (spec.md §4.C2 bullet 1); err carries a
// parse failure for a recognised-but-malformed URI.
func tryParseSingleURI(trimmed string) (*node.Node, bool, error) {
	switch {
	case strings.HasPrefix(trimmed, "ss://"):
		n, err := parseSS(trimmed)
		return n, true, err
	case strings.HasPrefix(trimmed, "ssr://"):
		n, err := parseSSR(trimmed)
		return n, true, err
	case strings.HasPrefix(trimmed, "vmess://"):
		n, err := parseVMess(trimmed)
		return n, true, err
	case strings.HasPrefix(trimmed, "vmess1://"):
		n, err := parseVMess1(trimmed)
		return n, true, err
	case strings.HasPrefix(trimmed, "trojan://"):
		n, err := parseTrojan(trimmed)
		return n, true, err
	case strings.HasPrefix(trimmed, "socks://"):
		n, err := parseSocks(trimmed)
		return n, true, err
	case strings.HasPrefix(trimmed, "Netch://"):
		n, err := parseNetch(trimmed)
		return n, true, err
	case strings.HasPrefix(trimmed, "tg://socks"), strings.HasPrefix(trimmed, "tg://http"),
		strings.HasPrefix(trimmed, "https://t.me/socks"), strings.HasPrefix(trimmed, "https://t.me/http"):
		n, err := parseTelegramProxy(trimmed)
		return n, true, err
	}
	return nil, false, nil
}

func decodeB64(s string) ([]byte, error) {
	s = strings.TrimSpace(s)
	for _, enc := range []*base64.Encoding{base64.StdEncoding, base64.URLEncoding, base64.RawStdEncoding, base64.RawURLEncoding} {
		if b, err := enc.DecodeString(s); err == nil {
			return b, nil
		}
	}
	return nil, fmt.Errorf("not valid base64")
}

func splitFragment(u string) (body, remark string) {
	body, remark, _ = strings.Cut(u, "#")
	if remark != "" {
		if unescaped, err := url.QueryUnescape(remark); err == nil {
			remark = unescaped
		}
	}
	return body, remark
}

// parseSS handles both SIP002 (ss://method:pass@host:port?plugin=...#remark)
// and the legacy fully-base64-encoded form
// (ss://base64(method:pass@host:port)#remark).
func parseSS(raw string) (*node.Node, error) {
	body, remark := splitFragment(strings.TrimPrefix(raw, "ss://"))

	var userinfo, hostport, query string
	if idx := strings.IndexByte(body, '@'); idx >= 0 {
		userinfo, hostport = body[:idx], body[idx+1:]
		if q := strings.IndexByte(hostport, '?'); q >= 0 {
			hostport, query = hostport[:q], hostport[q+1:]
		}
		if decoded, err := decodeB64(userinfo); err == nil {
			userinfo = string(decoded)
		}
	} else {
		decoded, err := decodeB64(body)
		if err != nil {
			return nil, fmt.Errorf("ss: decode legacy body: %w", err)
		}
		full := string(decoded)
		if idx := strings.IndexByte(full, '@'); idx >= 0 {
			userinfo, hostport = full[:idx], full[idx+1:]
		} else {
			return nil, fmt.Errorf("ss: missing '@' in decoded body")
		}
	}

	method, password, ok := strings.Cut(userinfo, ":")
	if !ok {
		return nil, fmt.Errorf("ss: malformed method:password")
	}
	host, portStr, ok := strings.Cut(hostport, ":")
	if !ok {
		return nil, fmt.Errorf("ss: malformed host:port")
	}

	n := &node.Node{
		Kind:      node.KindSS,
		GroupName: node.DefaultGroupName(node.KindSS),
		Remark:    orDefault(remark, host),
		Server:    host,
		Port:      parsePortString(portStr),
		Payload: map[string]any{
			"method":   method,
			"password": password,
		},
	}
	if query != "" {
		vals, _ := url.ParseQuery(query)
		if plugin := vals.Get("plugin"); plugin != "" {
			n.Payload["plugin"], n.Payload["plugin-opts"] = splitPlugin(plugin)
		}
	}
	return n, nil
}

func splitPlugin(plugin string) (name string, opts string) {
	name, opts, _ = strings.Cut(plugin, ";")
	return name, opts
}

// parseSSR decodes ssr://base64(host:port:protocol:method:obfs:base64(password)/?query).
func parseSSR(raw string) (*node.Node, error) {
	decoded, err := decodeB64(strings.TrimPrefix(raw, "ssr://"))
	if err != nil {
		return nil, fmt.Errorf("ssr: decode: %w", err)
	}
	body := string(decoded)
	main, query, _ := strings.Cut(body, "/?")

	fields := strings.SplitN(main, ":", 6)
	if len(fields) != 6 {
		return nil, fmt.Errorf("ssr: expected 6 colon-separated fields, got %d", len(fields))
	}
	host, port, protocol, method, obfs, passB64 := fields[0], fields[1], fields[2], fields[3], fields[4], fields[5]
	passBytes, err := decodeB64(passB64)
	if err != nil {
		return nil, fmt.Errorf("ssr: decode password: %w", err)
	}

	payload := map[string]any{
		"protocol": protocol,
		"method":   method,
		"obfs":     obfs,
		"password": string(passBytes),
	}
	remark := host

	if query != "" {
		vals, _ := url.ParseQuery(query)
		for qk, payloadKey := range map[string]string{"obfsparam": "obfsparam", "protoparam": "protocolparam"} {
			if v := vals.Get(qk); v != "" {
				if b, err := decodeB64(v); err == nil {
					payload[payloadKey] = string(b)
				}
			}
		}
		if v := vals.Get("remarks"); v != "" {
			if b, err := decodeB64(v); err == nil {
				remark = string(b)
			}
		}
		if v := vals.Get("group"); v != "" {
			if b, err := decodeB64(v); err == nil {
				payload["group"] = string(b)
			}
		}
	}

	n := &node.Node{
		Kind:      node.KindSSR,
		GroupName: node.DefaultGroupName(node.KindSSR),
		Remark:    remark,
		Server:    host,
		Port:      parsePortString(port),
		Payload:   payload,
	}
	return downcastSSRtoSS(n), nil
}

// parseVMess handles the v2rayN base64-JSON form and the Shadowrocket
// userinfo@host:port form.
func parseVMess(raw string) (*node.Node, error) {
	rest := strings.TrimPrefix(raw, "vmess://")
	if body, remark := splitFragment(rest); strings.ContainsAny(body, "@") && !looksLikeB64JSON(body) {
		return parseVMessShadowrocket(body, remark)
	}
	decoded, err := decodeB64(rest)
	if err != nil {
		return nil, fmt.Errorf("vmess: decode: %w", err)
	}
	var v struct {
		V    string `json:"v"`
		PS   string `json:"ps"`
		Add  string `json:"add"`
		Port any    `json:"port"`
		ID   string `json:"id"`
		Aid  any    `json:"aid"`
		Net  string `json:"net"`
		Type string `json:"type"`
		Host string `json:"host"`
		Path string `json:"path"`
		TLS  string `json:"tls"`
		SNI  string `json:"sni"`
	}
	if err := json.Unmarshal(decoded, &v); err != nil {
		return nil, fmt.Errorf("vmess: decode json: %w", err)
	}
	n := &node.Node{
		Kind:      node.KindVMess,
		GroupName: node.DefaultGroupName(node.KindVMess),
		Remark:    orDefault(v.PS, v.Add),
		Server:    v.Add,
		Port:      parsePortString(fmt.Sprint(v.Port)),
		Payload: map[string]any{
			"uuid":    v.ID,
			"alterId": toInt(v.Aid),
			"network": orDefault(v.Net, "tcp"),
			"type":    v.Type,
			"host":    v.Host,
			"path":    v.Path,
			"tls":     v.TLS == "tls",
			"sni":     v.SNI,
		},
	}
	return n, nil
}

func looksLikeB64JSON(s string) bool {
	decoded, err := decodeB64(s)
	if err != nil {
		return false
	}
	return len(decoded) > 0 && decoded[0] == '{'
}

func parseVMessShadowrocket(body, remark string) (*node.Node, error) {
	at := strings.LastIndexByte(body, '@')
	if at < 0 {
		return nil, fmt.Errorf("vmess: missing '@'")
	}
	userinfo, hostpart := body[:at], body[at+1:]
	hostport, query, _ := strings.Cut(hostpart, "?")
	host, portStr, ok := strings.Cut(hostport, ":")
	if !ok {
		return nil, fmt.Errorf("vmess: malformed host:port")
	}
	decodedUser, err := decodeB64(userinfo)
	if err != nil {
		return nil, fmt.Errorf("vmess: decode userinfo: %w", err)
	}
	method, uuid, _ := strings.Cut(string(decodedUser), ":")

	vals, _ := url.ParseQuery(query)
	n := &node.Node{
		Kind:      node.KindVMess,
		GroupName: node.DefaultGroupName(node.KindVMess),
		Remark:    orDefault(remark, host),
		Server:    host,
		Port:      parsePortString(portStr),
		Payload: map[string]any{
			"uuid":    uuid,
			"method":  method,
			"alterId": 0,
			"network": orDefault(vals.Get("obfs"), "tcp"),
			"host":    vals.Get("obfsParam"),
			"tls":     vals.Get("tls") == "1" || vals.Get("tls") == "true",
		},
	}
	return n, nil
}

// parseVMess1 handles the legacy Kitsunebi vmess1:// compound form. Its
// field positions diverge from vmess:// (e.g. `aid` omitted means 0) and the
// spec's open question (§9) asks to preserve this byte-for-byte rather than
// "fix" it.
func parseVMess1(raw string) (*node.Node, error) {
	rest := strings.TrimPrefix(raw, "vmess1://")
	body, remark := splitFragment(rest)
	hostpart, query, _ := strings.Cut(body, "?")

	at := strings.LastIndexByte(hostpart, '@')
	if at < 0 {
		return nil, fmt.Errorf("vmess1: missing '@'")
	}
	uuid, hostport := hostpart[:at], hostpart[at+1:]
	host, portStr, ok := strings.Cut(hostport, ":")
	if !ok {
		return nil, fmt.Errorf("vmess1: malformed host:port")
	}

	vals, _ := url.ParseQuery(query)
	aid := 0
	if a := vals.Get("aid"); a != "" {
		aid = toInt(a)
	}
	n := &node.Node{
		Kind:      node.KindVMess,
		GroupName: node.DefaultGroupName(node.KindVMess),
		Remark:    orDefault(remark, host),
		Server:    host,
		Port:      parsePortString(portStr),
		Payload: map[string]any{
			"uuid":    uuid,
			"alterId": aid,
			"network": orDefault(vals.Get("network"), "tcp"),
			"host":    vals.Get("ws.host"),
			"path":    vals.Get("ws.path"),
			"tls":     vals.Get("tls") == "1" || vals.Get("tls") == "true",
		},
	}
	return n, nil
}

func parseTrojan(raw string) (*node.Node, error) {
	rest := strings.TrimPrefix(raw, "trojan://")
	body, remark := splitFragment(rest)
	userinfo, hostpart, ok := strings.Cut(body, "@")
	if !ok {
		return nil, fmt.Errorf("trojan: missing '@'")
	}
	hostport, query, _ := strings.Cut(hostpart, "?")
	host, portStr, ok := strings.Cut(hostport, ":")
	if !ok {
		return nil, fmt.Errorf("trojan: malformed host:port")
	}
	vals, _ := url.ParseQuery(query)
	n := &node.Node{
		Kind:      node.KindTrojan,
		GroupName: node.DefaultGroupName(node.KindTrojan),
		Remark:    orDefault(remark, host),
		Server:    host,
		Port:      parsePortString(portStr),
		Payload: map[string]any{
			"password": userinfo,
			"sni":      vals.Get("sni"),
			"network":  orDefault(vals.Get("type"), "tcp"),
			"path":     vals.Get("path"),
			"host":     vals.Get("host"),
		},
	}
	return n, nil
}

func parseSocks(raw string) (*node.Node, error) {
	rest := strings.TrimPrefix(raw, "socks://")
	body, remark := splitFragment(rest)

	var user, pass, hostport string
	if at := strings.IndexByte(body, '@'); at >= 0 {
		userinfo := body[:at]
		hostport = body[at+1:]
		if decoded, err := decodeB64(userinfo); err == nil && strings.Contains(string(decoded), ":") {
			user, pass, _ = strings.Cut(string(decoded), ":")
		} else {
			user, pass, _ = strings.Cut(userinfo, ":")
		}
	} else {
		hostport = body
	}
	host, portStr, ok := strings.Cut(hostport, ":")
	if !ok {
		return nil, fmt.Errorf("socks: malformed host:port")
	}
	n := &node.Node{
		Kind:      node.KindSocks5,
		GroupName: node.DefaultGroupName(node.KindSocks5),
		Remark:    orDefault(remark, host),
		Server:    host,
		Port:      parsePortString(portStr),
		Payload: map[string]any{
			"username": user,
			"password": pass,
		},
	}
	return n, nil
}

func parseNetch(raw string) (*node.Node, error) {
	decoded, err := decodeB64(strings.TrimPrefix(raw, "Netch://"))
	if err != nil {
		return nil, fmt.Errorf("netch: decode: %w", err)
	}
	var v struct {
		Type     string `json:"Type"`
		Remark   string `json:"Remark"`
		Hostname string `json:"Hostname"`
		Port     int    `json:"Port"`
		UUID     string `json:"UID"`
		EncryptMethod string `json:"EncryptMethod"`
		Password string `json:"Password"`
	}
	if err := json.Unmarshal(decoded, &v); err != nil {
		return nil, fmt.Errorf("netch: decode json: %w", err)
	}
	kind := node.KindSS
	switch strings.ToLower(v.Type) {
	case "vmess":
		kind = node.KindVMess
	case "trojan":
		kind = node.KindTrojan
	case "socks5", "socks":
		kind = node.KindSocks5
	}
	port := uint16(v.Port)
	n := &node.Node{
		Kind:      kind,
		GroupName: node.DefaultGroupName(kind),
		Remark:    orDefault(v.Remark, v.Hostname),
		Server:    v.Hostname,
		Port:      &port,
		Payload: map[string]any{
			"uuid":     v.UUID,
			"method":   v.EncryptMethod,
			"password": v.Password,
		},
	}
	return n, nil
}

// parseTelegramProxy handles tg://socks?... and https://t.me/socks?... links.
func parseTelegramProxy(raw string) (*node.Node, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("telegram proxy: %w", err)
	}
	vals := u.Query()
	kind := node.KindSocks5
	if strings.Contains(raw, "http") {
		kind = node.KindHTTP
	}
	host := vals.Get("server")
	n := &node.Node{
		Kind:      kind,
		GroupName: node.DefaultGroupName(kind),
		Remark:    host,
		Server:    host,
		Port:      parsePortString(vals.Get("port")),
		Payload: map[string]any{
			"username": vals.Get("user"),
			"password": vals.Get("pass"),
		},
	}
	return n, nil
}

func orDefault(v, fallback string) string {
	if v == "" {
		return fallback
	}
	return v
}

func toInt(v any) int {
	switch x := v.(type) {
	case int:
		return x
	case float64:
		return int(x)
	case string:
		n, _ := strconv.Atoi(x)
		return n
	}
	return 0
}
