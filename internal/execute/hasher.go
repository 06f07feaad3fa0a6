package execute

import (
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"hash"
)

// keyVersion is bumped whenever the entry layout changes.
const keyVersion = "sitegen-exec/1"

// HashInput is everything that determines a block's output.
type HashInput struct {
	Language           string
	Interpreter        string
	InterpreterVersion string
	Options            Options
	Source             string
	// SessionPrefix holds the sources of the earlier blocks of a session.
	SessionPrefix []string
}

// Hasher computes cache keys. All fields are length-prefixed so that no two
// distinct inputs concatenate to the same byte stream.
type Hasher struct{}

// Key returns the lowercase hex sha256 cache key for in.
func (Hasher) Key(in HashInput) string {
	h := sha256.New()
	writeField(h, keyVersion)
	writeField(h, in.Language)
	writeField(h, in.Interpreter)
	writeField(h, in.InterpreterVersion)
	writeField(h, in.Options.Canonical())
	writeField(h, in.Source)

	var n [8]byte
	binary.BigEndian.PutUint64(n[:], uint64(len(in.SessionPrefix)))
	h.Write(n[:])
	for _, src := range in.SessionPrefix {
		writeField(h, src)
	}
	return hex.EncodeToString(h.Sum(nil))
}

func writeField(h hash.Hash, s string) {
	var n [8]byte
	binary.BigEndian.PutUint64(n[:], uint64(len(s)))
	h.Write(n[:])
	h.Write([]byte(s))
}
