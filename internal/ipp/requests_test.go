package ipp

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestRegisterOutputDevice_CarriesSystemURINotPrinterURI(t *testing.T) {
	t.Parallel()

	m := RegisterOutputDevice(1, "https://infra.example.com/ipp/system", "urn:uuid:00000000-0000-3000-8000-000000000000", "ippproxy")

	attr, ok := m.Find("system-uri")
	require.True(t, ok, "Register-Output-Device must carry system-uri")
	require.Equal(t, "https://infra.example.com/ipp/system", attr.String())

	_, ok = m.Find("printer-uri")
	require.False(t, ok, "Register-Output-Device must not carry printer-uri")
}
