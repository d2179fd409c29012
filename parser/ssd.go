package parser

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/subconverter-go/subconverter/node"
)

// ssdEnvelope is the base64-wrapped JSON airport envelope (spec.md §4.C2
// bullet 2, glossary "SSD"). Airport-level fields are defaults each server
// entry may override.
type ssdEnvelope struct {
	Airport       string      `json:"airport"`
	Port          json.Number `json:"port"`
	Encryption    string      `json:"encryption"`
	Password      string      `json:"password"`
	Plugin        string      `json:"plugin"`
	PluginOptions string      `json:"plugin_options"`
	TrafficUsed   float64     `json:"traffic_used"`
	TrafficTotal  float64     `json:"traffic_total"`
	Expiry        string      `json:"expiry"`
	Servers       []ssdServer `json:"servers"`
}

type ssdServer struct {
	Server        string      `json:"server"`
	Port          json.Number `json:"port"`
	Encryption    string      `json:"encryption"`
	Password      string      `json:"password"`
	Plugin        string      `json:"plugin"`
	PluginOptions string      `json:"plugin_options"`
	Remarks       string      `json:"remarks"`
}

func parseSSD(raw string) ([]*node.Node, error) {
	decoded, err := decodeB64(strings.TrimPrefix(raw, "ssd://"))
	if err != nil {
		return nil, fmt.Errorf("decode: %w", err)
	}
	var env ssdEnvelope
	if err := json.Unmarshal(decoded, &env); err != nil {
		return nil, fmt.Errorf("decode json: %w", err)
	}

	nodes := make([]*node.Node, 0, len(env.Servers))
	for _, s := range env.Servers {
		port := orDefault(s.Port.String(), env.Port.String())
		n := &node.Node{
			Kind:      node.KindSS,
			GroupName: orDefault(env.Airport, node.DefaultGroupName(node.KindSS)),
			Remark:    orDefault(s.Remarks, s.Server),
			Server:    s.Server,
			Port:      parsePortString(port),
			Payload: map[string]any{
				"method":        orDefault(s.Encryption, env.Encryption),
				"password":      orDefault(s.Password, env.Password),
				"plugin":        orDefault(s.Plugin, env.Plugin),
				"plugin-opts":   orDefault(s.PluginOptions, env.PluginOptions),
				"traffic_used":  env.TrafficUsed,
				"traffic_total": env.TrafficTotal,
				"expiry":        env.Expiry,
			},
		}
		nodes = append(nodes, n)
	}
	return nodes, nil
}
