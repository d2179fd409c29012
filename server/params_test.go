package server

import (
	"testing"

	"github.com/subconverter-go/subconverter/config"
	"github.com/subconverter-go/subconverter/group"
)

func TestParseGroupSpecsSelect(t *testing.T) {
	specs := parseGroupSpecs("Proxy`select`US`JP")
	if len(specs) != 1 {
		t.Fatalf("got %d specs", len(specs))
	}
	if specs[0].Name != "Proxy" || specs[0].Type != group.TypeSelect {
		t.Fatalf("got %+v", specs[0])
	}
	if len(specs[0].Selectors) != 2 || specs[0].Selectors[0] != "US" {
		t.Fatalf("got selectors %+v", specs[0].Selectors)
	}
}

func TestParseGroupSpecsURLTest(t *testing.T) {
	specs := parseGroupSpecs("Auto`url-test`US`JP`http://example.com/test`300,5,50")
	if len(specs) != 1 {
		t.Fatalf("got %d specs", len(specs))
	}
	s := specs[0]
	if s.TestURL != "http://example.com/test" || s.Interval != 300 || s.Timeout != 5 || s.Tolerance != 50 {
		t.Fatalf("got %+v", s)
	}
	if len(s.Selectors) != 2 {
		t.Fatalf("got selectors %+v", s.Selectors)
	}
}

func TestParseGroupTimesPartial(t *testing.T) {
	interval, timeout, tolerance := parseGroupTimes("300")
	if interval != 300 || timeout != 0 || tolerance != 0 {
		t.Fatalf("got interval=%d timeout=%d tolerance=%d", interval, timeout, tolerance)
	}
}

func TestParseRenameRules(t *testing.T) {
	rules := parseRenameRules(`US.*@United States` + "`" + `JP.*@Japan`)
	if len(rules) != 2 {
		t.Fatalf("got %d rules", len(rules))
	}
	if rules[0].Match != "US.*" || rules[0].Replace != "United States" {
		t.Fatalf("got %+v", rules[0])
	}
}

func TestParseRulesetParamsFallsBackToConfig(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Rulesets = []config.RulesetDecl{{Group: "Proxy", URL: "https://example.com/rules.list"}}
	refs := parseRulesetParams("", cfg)
	if len(refs) != 1 || refs[0].Group != "Proxy" {
		t.Fatalf("got %+v", refs)
	}
}

func TestParseRulesetParamsFromQuery(t *testing.T) {
	cfg := config.DefaultConfig()
	refs := parseRulesetParams("Proxy,https://example.com/a.list\nDirect,https://example.com/b.list,clash-domain", cfg)
	if len(refs) != 2 {
		t.Fatalf("got %d refs", len(refs))
	}
	if refs[1].Type != "clash-domain" {
		t.Fatalf("got %+v", refs[1])
	}
}

func TestTriParam(t *testing.T) {
	cases := map[string]string{"true": "true", "false": "false", "garbage": "unset"}
	for in, want := range cases {
		got := triParam(in)
		if v, ok := got.Bool(); want == "true" && (!ok || !v) {
			t.Fatalf("triParam(%q) = %+v", in, got)
		}
		if want == "false" && (!ok || v) {
			t.Fatalf("triParam(%q) = %+v", in, got)
		}
		if want == "unset" && ok {
			t.Fatalf("triParam(%q) expected unset, got %+v", in, got)
		}
	}
}
