package emitter

import (
	"encoding/base64"
	"encoding/json"

	"github.com/subconverter-go/subconverter/node"
)

type ssdServer struct {
	ID       int    `json:"id"`
	Remarks  string `json:"remarks"`
	Server   string `json:"server"`
	Port     uint16 `json:"port"`
	Password string `json:"password"`
	Method   string `json:"encryption"`
	Plugin   string `json:"plugin,omitempty"`
	PluginOptions string `json:"plugin_options,omitempty"`
}

type ssdEnvelope struct {
	Airport       string      `json:"airport"`
	Port          int         `json:"port"`
	Encryption    string      `json:"encryption"`
	Password      string      `json:"password"`
	Servers       []ssdServer `json:"servers"`
	TrafficUsed   float64     `json:"traffic_used"`
	TrafficTotal  float64     `json:"traffic_total"`
	Expiry        string      `json:"expiry"`
}

// EmitSSD renders the SSD base64-JSON envelope format, populating
// traffic/expiry figures from Request.Traffic when the upstream carried a
// Subscription-UserInfo header (spec.md §4.C6 "common behaviours", §6).
func EmitSSD(req Request) ([]byte, error) {
	env := ssdEnvelope{Airport: "subconverter"}
	for _, n := range req.Nodes {
		if n.Kind != node.KindSS {
			continue // SSD only represents Shadowsocks servers.
		}
		env.Servers = append(env.Servers, ssdServer{
			ID:            n.ID,
			Remarks:       n.Remark,
			Server:        n.Server,
			Port:          n.PortOrZero(),
			Password:      n.PayloadString("password"),
			Method:        n.PayloadString("method"),
			Plugin:        n.PayloadString("plugin"),
			PluginOptions: n.PayloadString("plugin-opts"),
		})
	}
	if req.Traffic != nil {
		const gib = 1024 * 1024 * 1024
		env.TrafficUsed = float64(req.Traffic.Upload+req.Traffic.Download) / gib
		env.TrafficTotal = float64(req.Traffic.Total) / gib
	}

	body, err := json.Marshal(env)
	if err != nil {
		return nil, err
	}
	out := make([]byte, base64.StdEncoding.EncodedLen(len(body))+len("ssd://"))
	copy(out, "ssd://")
	base64.StdEncoding.Encode(out[len("ssd://"):], body)
	return out, nil
}
