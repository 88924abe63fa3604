package relay

import (
	"sort"

	"github.com/LittleBoy9/peerbeam/internal/signaling"
)

// Room tracks the clients gathered under one normalized room id. Only the
// registry loop touches it.
type Room struct {
	ID      string
	Members map[string]*Client
}

func newRoom(id string) *Room {
	return &Room{ID: id, Members: make(map[string]*Client)}
}

func (r *Room) empty() bool {
	return len(r.Members) == 0
}

// peerList snapshots the members in stable order, leaving out exclude.
func (r *Room) peerList(exclude string) []signaling.PeerInfo {
	peers := make([]signaling.PeerInfo, 0, len(r.Members))
	for id, member := range r.Members {
		if id == exclude {
			continue
		}
		peers = append(peers, signaling.PeerInfo{PeerID: id, PeerName: member.peerName})
	}
	sort.Slice(peers, func(i, j int) bool { return peers[i].PeerID < peers[j].PeerID })
	return peers
}

func (r *Room) summary() signaling.RoomSummary {
	members := make([]signaling.RoomPeer, 0, len(r.Members))
	for id, member := range r.Members {
		members = append(members, signaling.RoomPeer{ID: id, Name: member.peerName})
	}
	sort.Slice(members, func(i, j int) bool { return members[i].ID < members[j].ID })
	return signaling.RoomSummary{ID: r.ID, PeerCount: len(members), Peers: members}
}
