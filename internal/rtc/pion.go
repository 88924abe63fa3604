package rtc

import (
	"fmt"

	"github.com/pion/webrtc/v4"

	"github.com/LittleBoy9/peerbeam/internal/config"
	"github.com/LittleBoy9/peerbeam/internal/signaling"
)

// PionDialer builds production connections with the configured ICE servers.
type PionDialer struct {
	api    *webrtc.API
	config webrtc.Configuration
}

// NewPionDialer centralizes ICE server configuration.
func NewPionDialer(cfg *config.Config) *PionDialer {
	iceServers := []webrtc.ICEServer{{URLs: cfg.GetSTUNServers()}}

	if turnServers := cfg.GetTURNServers(); turnServers != nil {
		username, password := cfg.GetTURNCredentials()
		iceServers = append(iceServers, webrtc.ICEServer{
			URLs:       turnServers,
			Username:   username,
			Credential: password,
		})
	}

	// Loopback candidates are required when every peer sits on the same
	// machine, which is the whole point of the local bus variant.
	settingEngine := webrtc.SettingEngine{}
	settingEngine.SetIncludeLoopbackCandidate(true)

	return &PionDialer{
		api:    webrtc.NewAPI(webrtc.WithSettingEngine(settingEngine)),
		config: webrtc.Configuration{ICEServers: iceServers},
	}
}

func (d *PionDialer) NewConn() (Conn, error) {
	pc, err := d.api.NewPeerConnection(d.config)
	if err != nil {
		return nil, fmt.Errorf("create peer connection: %w", err)
	}
	return &pionConn{pc: pc}, nil
}

type pionConn struct {
	pc *webrtc.PeerConnection
}

// CreateOffer creates the offer with trickle ICE: the local description is
// applied and returned immediately, candidates follow via OnCandidate.
func (c *pionConn) CreateOffer() (signaling.SessionDescription, error) {
	offer, err := c.pc.CreateOffer(nil)
	if err != nil {
		return signaling.SessionDescription{}, err
	}
	if err := c.pc.SetLocalDescription(offer); err != nil {
		return signaling.SessionDescription{}, err
	}
	return fromPion(c.pc.LocalDescription()), nil
}

func (c *pionConn) CreateAnswer() (signaling.SessionDescription, error) {
	answer, err := c.pc.CreateAnswer(nil)
	if err != nil {
		return signaling.SessionDescription{}, err
	}
	if err := c.pc.SetLocalDescription(answer); err != nil {
		return signaling.SessionDescription{}, err
	}
	return fromPion(c.pc.LocalDescription()), nil
}

func (c *pionConn) SetRemoteDescription(desc signaling.SessionDescription) error {
	pionDesc, err := toPion(desc)
	if err != nil {
		return err
	}
	return c.pc.SetRemoteDescription(pionDesc)
}

func (c *pionConn) AddCandidate(cand signaling.Candidate) error {
	return c.pc.AddICECandidate(webrtc.ICECandidateInit{
		Candidate:     cand.Candidate,
		SDPMid:        cand.SDPMid,
		SDPMLineIndex: cand.SDPMLineIndex,
	})
}

func (c *pionConn) CreateChannel(label string) (Channel, error) {
	ordered := true
	dc, err := c.pc.CreateDataChannel(label, &webrtc.DataChannelInit{Ordered: &ordered})
	if err != nil {
		return nil, err
	}
	return &pionChannel{dc: dc}, nil
}

func (c *pionConn) OnCandidate(fn func(signaling.Candidate)) {
	c.pc.OnICECandidate(func(ice *webrtc.ICECandidate) {
		if ice == nil {
			// Gathering finished.
			return
		}
		init := ice.ToJSON()
		fn(signaling.Candidate{
			Candidate:     init.Candidate,
			SDPMid:        init.SDPMid,
			SDPMLineIndex: init.SDPMLineIndex,
		})
	})
}

func (c *pionConn) OnChannel(fn func(Channel)) {
	c.pc.OnDataChannel(func(dc *webrtc.DataChannel) {
		fn(&pionChannel{dc: dc})
	})
}

func (c *pionConn) OnStateChange(fn func(State)) {
	c.pc.OnICEConnectionStateChange(func(s webrtc.ICEConnectionState) {
		fn(mapICEState(s))
	})
}

func (c *pionConn) Close() error {
	return c.pc.Close()
}

type pionChannel struct {
	dc *webrtc.DataChannel
}

func (ch *pionChannel) Label() string {
	return ch.dc.Label()
}

func (ch *pionChannel) Send(data []byte) error {
	return ch.dc.Send(data)
}

func (ch *pionChannel) OnOpen(fn func()) {
	ch.dc.OnOpen(fn)
}

func (ch *pionChannel) OnClose(fn func()) {
	ch.dc.OnClose(fn)
}

func (ch *pionChannel) OnMessage(fn func(data []byte)) {
	ch.dc.OnMessage(func(msg webrtc.DataChannelMessage) {
		fn(msg.Data)
	})
}

func (ch *pionChannel) Close() error {
	return ch.dc.Close()
}

func fromPion(desc *webrtc.SessionDescription) signaling.SessionDescription {
	if desc == nil {
		return signaling.SessionDescription{}
	}
	return signaling.SessionDescription{Type: desc.Type.String(), SDP: desc.SDP}
}

func toPion(desc signaling.SessionDescription) (webrtc.SessionDescription, error) {
	var sdpType webrtc.SDPType
	switch desc.Type {
	case "offer":
		sdpType = webrtc.SDPTypeOffer
	case "answer":
		sdpType = webrtc.SDPTypeAnswer
	default:
		return webrtc.SessionDescription{}, fmt.Errorf("unexpected session description type: %s", desc.Type)
	}
	return webrtc.SessionDescription{Type: sdpType, SDP: desc.SDP}, nil
}

func mapICEState(s webrtc.ICEConnectionState) State {
	switch s {
	case webrtc.ICEConnectionStateConnected, webrtc.ICEConnectionStateCompleted:
		return StateConnected
	case webrtc.ICEConnectionStateDisconnected:
		return StateDisconnected
	case webrtc.ICEConnectionStateFailed:
		return StateFailed
	case webrtc.ICEConnectionStateClosed:
		return StateClosed
	default:
		return StateConnecting
	}
}
