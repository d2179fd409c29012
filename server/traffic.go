package server

import (
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/subconverter-go/subconverter/emitter"
	"github.com/subconverter-go/subconverter/node"
)

// remarkRule is one compiled "pattern|replacement" stream_rule/time_rule
// entry (original_source/src/interfaces.cpp loads these into the
// stream_rules/time_rules string arrays).
type remarkRule struct {
	pattern *regexp.Regexp
	replace string
}

// parseRemarkRules splits each entry on its last "|", matching
// getSubInfoFromNodes's own split (original_source/src/speedtestutil.cpp:1921,
// y.rfind("|")). Entries with no "|" or an invalid pattern are skipped.
func parseRemarkRules(raw []string) []remarkRule {
	var out []remarkRule
	for _, entry := range raw {
		idx := strings.LastIndex(entry, "|")
		if idx < 0 {
			continue
		}
		re, err := regexp.Compile(entry[:idx])
		if err != nil {
			continue
		}
		out = append(out, remarkRule{pattern: re, replace: entry[idx+1:]})
	}
	return out
}

// firstMatch returns the first rule whose pattern matches remark and whose
// regex-replacement actually changes it, matching getSubInfoFromNodes's own
// "retStr != remarks" guard (original_source/src/speedtestutil.cpp:1926).
func firstMatch(remark string, rules []remarkRule) (string, bool) {
	for _, r := range rules {
		if !r.pattern.MatchString(remark) {
			continue
		}
		replaced := r.pattern.ReplaceAllString(remark, r.replace)
		if replaced != remark {
			return replaced, true
		}
	}
	return "", false
}

// deriveTrafficFromRemarks implements spec.md §6's per-node remark
// extraction path for Subscription-UserInfo figures, used when the upstream
// response carries no Subscription-Userinfo header. Each node's remark is
// tested in order against streamRules/timeRules until both a stream_info and
// a time_info replacement are found, matching getSubInfoFromNodes
// (original_source/src/speedtestutil.cpp:1911-1963).
func deriveTrafficFromRemarks(nodes []*node.Node, streamRules, timeRules []string) *emitter.TrafficInfo {
	streamR := parseRemarkRules(streamRules)
	timeR := parseRemarkRules(timeRules)
	if len(streamR) == 0 && len(timeR) == 0 {
		return nil
	}

	var streamInfo, timeInfo string
	for _, n := range nodes {
		if streamInfo == "" {
			if s, ok := firstMatch(n.Remark, streamR); ok {
				streamInfo = s
			}
		}
		if timeInfo == "" {
			if s, ok := firstMatch(n.Remark, timeR); ok {
				timeInfo = s
			}
		}
		if streamInfo != "" && timeInfo != "" {
			break
		}
	}
	if streamInfo == "" && timeInfo == "" {
		return nil
	}

	info := &emitter.TrafficInfo{}
	totalStr := urlArg(streamInfo, "total")
	leftStr := urlArg(streamInfo, "left")
	usedStr := urlArg(streamInfo, "used")

	var total, left, used int64
	switch {
	case strings.Contains(totalStr, "%"):
		pct := percentToDouble(totalStr)
		switch {
		case usedStr != "":
			used = streamToInt(usedStr)
			if pct < 1 {
				total = int64(float64(used) / (1 - pct))
			}
		case leftStr != "":
			left = streamToInt(leftStr)
			if pct > 0 {
				total = int64(float64(left) / pct)
			}
			used = total - left
		}
	default:
		total = streamToInt(totalStr)
		switch {
		case usedStr != "":
			used = streamToInt(usedStr)
		case leftStr != "":
			left = streamToInt(leftStr)
			used = total - left
		}
	}
	info.Download = used
	info.Total = total
	info.Expire = dateStringToTimestamp(timeInfo)
	return info
}

// urlArg extracts one "&"-separated key=value field from a stream_info /
// time_info replacement string, matching misc.cpp's getUrlArg
// (original_source/src/misc.cpp:422).
func urlArg(raw, key string) string {
	for _, part := range strings.Split(raw, "&") {
		k, v, ok := strings.Cut(part, "=")
		if ok && k == key {
			return v
		}
	}
	return ""
}

var streamUnits = []struct {
	suffix string
	scale  float64
}{
	{"TB", 1 << 40},
	{"GB", 1 << 30},
	{"MB", 1 << 20},
	{"KB", 1 << 10},
	{"B", 1},
}

// streamToInt parses a figure with an optional B/KB/MB/GB/TB suffix into a
// byte count, case-insensitively.
func streamToInt(s string) int64 {
	s = strings.TrimSpace(s)
	upper := strings.ToUpper(s)
	for _, u := range streamUnits {
		if strings.HasSuffix(upper, u.suffix) {
			num := strings.TrimSpace(s[:len(s)-len(u.suffix)])
			v, err := strconv.ParseFloat(num, 64)
			if err != nil {
				return 0
			}
			return int64(v * u.scale)
		}
	}
	v, _ := strconv.ParseFloat(s, 64)
	return int64(v)
}

// percentToDouble parses "50%" into 0.5.
func percentToDouble(s string) float64 {
	s = strings.TrimSuffix(strings.TrimSpace(s), "%")
	v, _ := strconv.ParseFloat(s, 64)
	return v / 100
}

// dateStringToTimestamp decodes a time_info value into a unix timestamp:
// either a relative "left=Nd" expiry (N days from now) or a
// "year:month:day:hour:minute:second" absolute timestamp, matching
// dateStringToTimestamp (original_source/src/speedtestutil.cpp:1863).
// Returns 0 (no expiry) for anything it cannot parse, same as the original
// returning 0 on an invalid date_array.
func dateStringToTimestamp(date string) int64 {
	if date == "" {
		return 0
	}
	if rest, ok := strings.CutPrefix(date, "left="); ok {
		if days, ok := strings.CutSuffix(rest, "d"); ok {
			n, err := strconv.ParseFloat(days, 64)
			if err != nil {
				return 0
			}
			return time.Now().Add(time.Duration(n * float64(24*time.Hour))).Unix()
		}
		return 0
	}

	parts := strings.Split(date, ":")
	if len(parts) != 6 {
		return 0
	}
	nums := make([]int, 6)
	for i, p := range parts {
		n, err := strconv.Atoi(p)
		if err != nil {
			return 0
		}
		nums[i] = n
	}
	t := time.Date(nums[0], time.Month(nums[1]), nums[2], nums[3], nums[4], nums[5], 0, time.Local)
	return t.Unix()
}
