package capability

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestDeriveDeviceUUID_DeterministicPerURI(t *testing.T) {
	t.Parallel()

	a := DeriveDeviceUUID("socket://printer.example.com")
	b := DeriveDeviceUUID("socket://printer.example.com")
	require.Equal(t, a, b)
}

func TestDeriveDeviceUUID_DiffersPerURI(t *testing.T) {
	t.Parallel()

	a := DeriveDeviceUUID("socket://printer-one.example.com")
	b := DeriveDeviceUUID("socket://printer-two.example.com")
	require.NotEqual(t, a, b)
}

func TestDeriveDeviceUUID_VersionAndVariantNibbles(t *testing.T) {
	t.Parallel()

	id := DeriveDeviceUUID("ipps://printer.example.com:443/ipp/print")
	b := id[:]

	require.Equal(t, byte(0x30), b[6]&0xf0, "version nibble must be forced to 3")
	require.Equal(t, byte(0x40), b[8]&0xc0, "variant bits must match the original tool's shaping")
}

func TestDeriveDeviceUUID_EmptyURIFallsBackToHostname(t *testing.T) {
	t.Parallel()

	a := DeriveDeviceUUID("")
	b := DeriveDeviceUUID("")
	require.Equal(t, a, b, "the hostname-derived fallback URI must be stable across calls")
}

func TestDeviceUUIDURN_FormatsAsURN(t *testing.T) {
	t.Parallel()

	id := DeriveDeviceUUID("socket://printer.example.com")
	urn := DeviceUUIDURN(id)
	require.Equal(t, "urn:uuid:"+id.String(), urn)
}
