package signaling

import (
	"crypto/rand"
	"log/slog"
	"math/big"
	"strings"
)

// Room ids avoid 0/O and 1/I so codes survive being read aloud.
const roomIDAlphabet = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"

const roomIDLength = 4

// NormalizeRoomID maps a user-entered room id to its canonical form. Ids are
// case-insensitive; "abcd" and "ABCD" name the same room.
func NormalizeRoomID(id string) string {
	return strings.ToUpper(strings.TrimSpace(id))
}

// GenerateRoomID returns a fresh short room id, already normalized.
func GenerateRoomID() string {
	var b strings.Builder
	b.Grow(roomIDLength)
	for i := 0; i < roomIDLength; i++ {
		b.WriteByte(roomIDAlphabet[randomIndex(len(roomIDAlphabet))])
	}
	return b.String()
}

// randomIndex returns a cryptographically secure random index for a slice of given length.
func randomIndex(max int) int {
	n, err := rand.Int(rand.Reader, big.NewInt(int64(max)))
	if err != nil {
		// crypto/rand only fails when the platform source is broken.
		slog.Error("random source unavailable", "error", err)
		panic(err)
	}
	return int(n.Int64())
}
