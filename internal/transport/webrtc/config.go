package webrtc

import "github.com/pion/webrtc/v3"

const DefaultSTUNServer = "stun:stun.l.google.com:19302"

var defaultSTUNServers = []string{
	DefaultSTUNServer,
	"stun:stun1.l.google.com:19302",
}

type TURNServer struct {
	URL        string
	Username   string
	Credential string
}

// DefaultSTUNServers returns a fresh copy of the built-in STUN list.
func DefaultSTUNServers() []string {
	return append([]string(nil), defaultSTUNServers...)
}

// Configuration builds the ICE configuration. An empty stun list falls back
// to the defaults; turn is only added when it has a URL.
func Configuration(stun []string, turn TURNServer) webrtc.Configuration {
	if len(stun) == 0 {
		stun = DefaultSTUNServers()
	}

	servers := []webrtc.ICEServer{{URLs: stun}}
	if turn.URL != "" {
		servers = append(servers, webrtc.ICEServer{
			URLs:           []string{turn.URL},
			Username:       turn.Username,
			Credential:     turn.Credential,
			CredentialType: webrtc.ICECredentialTypePassword,
		})
	}

	return webrtc.Configuration{
		ICEServers:         servers,
		ICETransportPolicy: webrtc.ICETransportPolicyAll,
	}
}

func DefaultDataChannelConfig() *webrtc.DataChannelInit {
	protocolName := "peerdrop"
	ordered := true
	return &webrtc.DataChannelInit{
		Ordered:  &ordered,
		Protocol: &protocolName,
	}
}
