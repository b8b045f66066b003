package game

import "crypto/rand"

// joinCodeAlphabet holds the characters a join code may contain. Ambiguous
// glyphs (0, O, I) are excluded so codes survive being read aloud.
const joinCodeAlphabet = "ABCDEFGHJKLMNPQRSTUVWXYZ123456789"

const joinCodeLength = 6

// NewJoinCode returns a random fixed-length join code with every character
// drawn uniformly from the alphabet. Uniqueness is not checked here; the
// coordinator retries on persist conflicts.
func NewJoinCode() string {
	// 231 is the largest multiple of the alphabet size that fits in a byte;
	// bytes at or above it are discarded to keep the draw unbiased.
	const limit = 231
	code := make([]byte, 0, joinCodeLength)
	buf := make([]byte, 2*joinCodeLength)
	for len(code) < joinCodeLength {
		if _, err := rand.Read(buf); err != nil {
			return "AAAAAA"
		}
		for _, b := range buf {
			if b >= limit {
				continue
			}
			code = append(code, joinCodeAlphabet[int(b)%len(joinCodeAlphabet)])
			if len(code) == joinCodeLength {
				break
			}
		}
	}
	return string(code)
}
