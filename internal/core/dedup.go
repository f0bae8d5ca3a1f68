package core

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
	"time"

	"github.com/google/uuid"
)

const keySeparator = "\x1f"

// DedupKey derives the identity of an externally sourced transaction. Two
// deliveries of the same bank transaction always produce the same key, so
// replays can be recognised by the store's uniqueness constraint.
func DedupKey(userID string, t RawTransaction) string {
	h := sha256.New()
	h.Write([]byte(userID))
	h.Write([]byte(keySeparator))
	h.Write([]byte(NormalizeDescription(t.Description)))
	h.Write([]byte(keySeparator))
	h.Write([]byte(t.OccurredAt.UTC().Format(time.RFC3339Nano)))
	h.Write([]byte(keySeparator))
	h.Write([]byte(FormatAmount(RoundCents(t.Amount))))
	return hex.EncodeToString(h.Sum(nil))
}

// ManualKey returns a unique key for a hand-entered expense. Manual entries
// are never deduplicated against each other.
func ManualKey() string {
	return "manual:" + uuid.NewString()
}

// NormalizeDescription trims, collapses internal whitespace and lowercases.
func NormalizeDescription(s string) string {
	return strings.ToLower(strings.Join(strings.Fields(s), " "))
}
