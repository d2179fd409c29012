package server

import (
	"testing"
	"time"

	"github.com/subconverter-go/subconverter/node"
)

func TestDeriveTrafficFromRemarksAbsoluteFigures(t *testing.T) {
	nodes := []*node.Node{
		{Remark: "剩余流量：50GB/100GB 到期：2030:01:01:00:00:00"},
	}
	streamRules := []string{`剩余流量：(\d+)GB/(\d+)GB.*\|left=${1}GB&total=${2}GB`}
	timeRules := []string{`.*到期：(\d{4}:\d{2}:\d{2}:\d{2}:\d{2}:\d{2}).*\|$1`}

	info := deriveTrafficFromRemarks(nodes, streamRules, timeRules)
	if info == nil {
		t.Fatal("expected non-nil traffic info")
	}
	wantTotal := int64(100) << 30
	wantUsed := int64(50) << 30
	if info.Total != wantTotal {
		t.Errorf("Total = %d, want %d", info.Total, wantTotal)
	}
	if info.Download != wantUsed {
		t.Errorf("Download = %d, want %d", info.Download, wantUsed)
	}
	if info.Expire == 0 {
		t.Error("expected non-zero expiry")
	}
}

func TestDeriveTrafficFromRemarksRelativeExpiry(t *testing.T) {
	nodes := []*node.Node{{Remark: "expires in 7 days"}}
	timeRules := []string{`expires in (\d+) days\|left=${1}d`}

	before := time.Now().Add(6 * 24 * time.Hour).Unix()
	info := deriveTrafficFromRemarks(nodes, nil, timeRules)
	after := time.Now().Add(8 * 24 * time.Hour).Unix()

	if info == nil {
		t.Fatal("expected non-nil traffic info")
	}
	if info.Expire < before || info.Expire > after {
		t.Fatalf("Expire = %d, want between %d and %d", info.Expire, before, after)
	}
}

func TestDeriveTrafficFromRemarksNoRulesConfigured(t *testing.T) {
	nodes := []*node.Node{{Remark: "anything"}}
	if info := deriveTrafficFromRemarks(nodes, nil, nil); info != nil {
		t.Fatalf("expected nil, got %+v", info)
	}
}

func TestDeriveTrafficFromRemarksNoNodeMatches(t *testing.T) {
	nodes := []*node.Node{{Remark: "plain node"}}
	streamRules := []string{`nomatch\|total=$1`}
	if info := deriveTrafficFromRemarks(nodes, streamRules, nil); info != nil {
		t.Fatalf("expected nil, got %+v", info)
	}
}

func TestStreamToIntUnits(t *testing.T) {
	cases := map[string]int64{
		"10":   10,
		"1KB":  1 << 10,
		"2MB":  2 << 20,
		"3GB":  3 << 30,
		"1TB":  1 << 40,
		"5gb":  5 << 30,
	}
	for in, want := range cases {
		if got := streamToInt(in); got != want {
			t.Errorf("streamToInt(%q) = %d, want %d", in, got, want)
		}
	}
}

func TestPercentToDouble(t *testing.T) {
	if got := percentToDouble("50%"); got != 0.5 {
		t.Errorf("percentToDouble(50%%) = %f, want 0.5", got)
	}
}

func TestDateStringToTimestampInvalid(t *testing.T) {
	if got := dateStringToTimestamp("garbage"); got != 0 {
		t.Errorf("dateStringToTimestamp(garbage) = %d, want 0", got)
	}
	if got := dateStringToTimestamp(""); got != 0 {
		t.Errorf("dateStringToTimestamp(\"\") = %d, want 0", got)
	}
}
