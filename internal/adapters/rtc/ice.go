// Package rtc hands WebRTC configuration to clients. Media never flows
// through the server; peers negotiate directly over the relayed signals.
package rtc

import (
	"strings"

	"github.com/pion/webrtc/v4"
)

// DefaultICEServers is used when no ice_servers are configured.
var DefaultICEServers = []string{"stun:stun.l.google.com:19302"}

// ICEServers turns configured URLs into the ICE server list a browser's
// RTCPeerConnection accepts. A URL may carry credentials as
// "turn:host:port?username=u&credential=c"; the query is stripped and moved
// into the matching fields.
func ICEServers(urls []string) []webrtc.ICEServer {
	if len(urls) == 0 {
		urls = DefaultICEServers
	}
	out := make([]webrtc.ICEServer, 0, len(urls))
	for _, raw := range urls {
		raw = strings.TrimSpace(raw)
		if raw == "" {
			continue
		}
		srv := webrtc.ICEServer{}
		base, query, _ := strings.Cut(raw, "?")
		if strings.HasPrefix(base, "turn") {
			for _, kv := range strings.Split(query, "&") {
				k, v, _ := strings.Cut(kv, "=")
				switch k {
				case "username":
					srv.Username = v
				case "credential":
					srv.Credential = v
				}
			}
		} else if query != "" {
			base = raw
		}
		srv.URLs = []string{base}
		out = append(out, srv)
	}
	return out
}
