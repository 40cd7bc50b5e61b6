package prediction

import (
	"crypto/rand"
	"math/big"

	"github.com/google/uuid"
)

// NewToken returns a fresh session token. UUIDv4 gives the expected shape
// (dashes at 8/13/18/23, version nibble 4, variant in 8/9/a/b) and 122 bits
// of entropy; collisions are not re-checked.
func NewToken() string {
	return uuid.NewString()
}

const idAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789"

// newShortID returns an n-character random alphanumeric identifier, uniform
// over 62 symbols.
func newShortID(n int) string {
	buf := make([]byte, n)
	max := big.NewInt(int64(len(idAlphabet)))
	for i := range buf {
		idx, err := rand.Int(rand.Reader, max)
		if err != nil {
			// crypto/rand only fails when the platform source is broken.
			panic(err)
		}
		buf[i] = idAlphabet[idx.Int64()]
	}
	return string(buf)
}

// NewShortID exposes newShortID for callers that assign line ids.
func NewShortID(n int) string { return newShortID(n) }
