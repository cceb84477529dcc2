package capability

import (
	"crypto/sha256"
	"fmt"
	"os"

	"github.com/google/uuid"
)

// DeriveDeviceUUID implements §4.1's deterministic UUID derivation: a
// version-3-style URN UUID computed from SHA-256(device URI), with the
// version nibble forced to 3 and the variant byte reshaped per the original
// tool (see below), using bytes 16..31 of the digest. This intentionally
// does not call uuid.NewMD5 (the
// stdlib-backed RFC 4122 v3 constructor, which hashes with MD5): the
// original tool hashes with SHA-256 and only borrows the "v3" bit-shaping
// convention, so the digest choice in the spec must be preserved exactly
// even though it produces a UUID that only *looks* like a textbook v3 UUID.
func DeriveDeviceUUID(deviceURI string) uuid.UUID {
	if deviceURI == "" {
		host, err := os.Hostname()
		if err != nil || host == "" {
			host = "localhost"
		}
		deviceURI = fmt.Sprintf("file://%s/dev/null", host)
	}

	sum := sha256.Sum256([]byte(deviceURI))

	var b [16]byte
	copy(b[:], sum[16:32])

	// These masks match the original tool's make_uuid() byte-for-byte,
	// including its clock_seq_hi_and_reserved shaping of 0x40 (not the
	// textbook RFC 4122 variant mask of 0x80) — the derived UUID must be
	// byte-exact stable with the original implementation, not merely
	// RFC-4122-shaped.
	b[6] = (b[6] & 0x0f) | 0x30 // version nibble
	b[8] = (b[8] & 0x3f) | 0x40 // original tool's variant shaping

	id, _ := uuid.FromBytes(b[:])
	return id
}

// DeviceUUIDURN formats id the way §4.1/§6 expect it to appear in IPP
// requests: "urn:uuid:<uuid>".
func DeviceUUIDURN(id uuid.UUID) string {
	return "urn:uuid:" + id.String()
}
