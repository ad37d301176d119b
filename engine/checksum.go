package engine

import (
	_ "crypto/sha256"
	"encoding/hex"

	"github.com/opencontainers/go-digest"

	"github.com/wippyai/wasm-cache/errors"
)

// ChecksumLen is the length of a module checksum in bytes.
const ChecksumLen = 32

// Checksum is the SHA-256 digest of a module's bytes. It is the key under
// which the module is stored.
type Checksum [ChecksumLen]byte

// ChecksumOf computes the checksum of code.
func ChecksumOf(code []byte) Checksum {
	h := digest.SHA256.Hash()
	h.Write(code)

	var c Checksum
	copy(c[:], h.Sum(nil))
	return c
}

// ChecksumFromBytes converts raw digest bytes to a Checksum. Any length
// other than ChecksumLen is an invalid_checksum error.
func ChecksumFromBytes(b []byte) (Checksum, error) {
	var c Checksum
	if len(b) != ChecksumLen {
		return c, errors.InvalidChecksum(errors.PhaseLoad, len(b), ChecksumLen)
	}
	copy(c[:], b)
	return c, nil
}

// ParseChecksum parses the hex form produced by String.
func ParseChecksum(s string) (Checksum, error) {
	var c Checksum
	if err := digest.NewDigestFromEncoded(digest.SHA256, s).Validate(); err != nil {
		return c, errors.New(errors.PhaseLoad, errors.KindInvalidChecksum).
			Path("checksum").
			Cause(err).
			Detail("not a sha256 hex digest").
			Build()
	}
	raw, err := hex.DecodeString(s)
	if err != nil {
		return c, errors.Wrap(errors.PhaseLoad, errors.KindInvalidChecksum, err, "decode checksum")
	}
	return ChecksumFromBytes(raw)
}

// Bytes returns a copy of the raw digest.
func (c Checksum) Bytes() []byte {
	return append([]byte(nil), c[:]...)
}

// Digest returns the checksum as an OCI style digest (sha256:<hex>).
func (c Checksum) Digest() digest.Digest {
	return digest.NewDigestFromBytes(digest.SHA256, c[:])
}

// String returns the lowercase hex encoding of the checksum.
func (c Checksum) String() string {
	return c.Digest().Encoded()
}
