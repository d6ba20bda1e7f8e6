package batch

import (
	"hash/fnv"
	"strconv"
	"strings"
	"unicode"

	"memengine/internal/memengine/model"
)

// fingerprint builds a content-aware identifier for a batch from
// (userId, agentId, perMessage(firstThreeLowerWords, digits, length)), per
// spec §4.1. Two calls over identical inputs always produce the same
// fingerprint, which is the basis of deterministic (non-PRNG) sampling.
func fingerprint(userID, agentID string, msgs []model.MemoryMessage) string {
	var b strings.Builder
	b.WriteString(userID)
	b.WriteByte('|')
	b.WriteString(agentID)

	for _, m := range msgs {
		words := strings.Fields(strings.ToLower(m.Content))
		n := len(words)
		if n > 3 {
			n = 3
		}
		b.WriteByte('|')
		b.WriteString(strings.Join(words[:n], "-"))
		b.WriteByte('|')
		b.WriteString(digitsOf(m.Content))
		b.WriteByte('|')
		b.WriteString(strconv.Itoa(len(m.Content)))
	}
	return b.String()
}

func digitsOf(s string) string {
	var b strings.Builder
	for _, r := range s {
		if unicode.IsDigit(r) {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// sample hashes fp with FNV-1a (stdlib, no non-cryptographic hashing
// library is imported directly by application code anywhere in the example
// corpus) and returns a value in [0,1) plus the batch id derived from the
// same 32-bit hash, per spec §4.1/§9 "randomness avoidance".
func sample(fp string) (value float64, batchID string) {
	h := fnv.New32a()
	_, _ = h.Write([]byte(fp))
	sum := h.Sum32()
	mod := sum % 10000
	return float64(mod) / 10000.0, strconv.FormatUint(uint64(sum), 16)
}
