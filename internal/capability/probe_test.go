package capability

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/istopwg/ippinfra/internal/ipp"
)

type fakeProber struct {
	attrs ipp.AttributeSet
	err   error
}

func (f fakeProber) GetPrinterAttributes(ctx context.Context, deviceURI string, requested []string) (ipp.AttributeSet, error) {
	return f.attrs, f.err
}

func TestProbe_SocketSchemeSynthesizesLaserProfile(t *testing.T) {
	t.Parallel()

	attrs, err := Probe(context.Background(), "socket://printer.example.com", fakeProber{})
	require.NoError(t, err)
	_, ok := attrs.Get("document-format-supported")
	require.True(t, ok)
}

func TestProbe_IPPSchemeReconcilesDialects(t *testing.T) {
	t.Parallel()

	attrs := ipp.AttributeSet{
		"urf-supported": ipp.Attribute{
			Name:   "urf-supported",
			Values: []ipp.Value{ipp.Keyword("RS600"), ipp.Keyword("SRGB24")},
		},
	}
	got, err := Probe(context.Background(), "ipp://printer.example.com/ipp/print", fakeProber{attrs: attrs})
	require.NoError(t, err)

	res, ok := got.Get("pwg-raster-document-resolution-supported")
	require.True(t, ok)
	require.Equal(t, []ipp.Value{ipp.Res(600, 600)}, res.Values)

	types, ok := got.Get("pwg-raster-document-type-supported")
	require.True(t, ok)
	require.Equal(t, []string{"srgb_8"}, types.Strings())
}

func TestProbe_HTTPErrorDegradesToEmptySet(t *testing.T) {
	t.Parallel()

	attrs, err := Probe(context.Background(), "ipps://printer.example.com/ipp/print", fakeProber{err: &ipp.HTTPError{StatusCode: 503}})
	require.NoError(t, err)
	require.Empty(t, attrs)
}

func TestProbe_NonHTTPErrorPropagates(t *testing.T) {
	t.Parallel()

	wantErr := errors.New("boom")
	_, err := Probe(context.Background(), "ipp://printer.example.com/ipp/print", fakeProber{err: wantErr})
	require.ErrorIs(t, err, wantErr)
}

func TestProbe_UnsupportedSchemeErrors(t *testing.T) {
	t.Parallel()

	_, err := Probe(context.Background(), "lpd://printer.example.com", fakeProber{})
	require.Error(t, err)
}

func TestReconcileDialects_NeverOverwritesExisting(t *testing.T) {
	t.Parallel()

	existing := ipp.Attribute{Name: "pwg-raster-document-sheet-back", Values: []ipp.Value{ipp.Keyword("manual-tumble")}}
	attrs := ipp.AttributeSet{
		"urf-supported":                      {Name: "urf-supported", Values: []ipp.Value{ipp.Keyword("DM1")}},
		"pwg-raster-document-sheet-back":     existing,
	}

	got := ReconcileDialects(attrs)
	back, ok := got.Get("pwg-raster-document-sheet-back")
	require.True(t, ok)
	require.Equal(t, existing, back)
}

func TestReconcileDialects_NoURFIsNoOp(t *testing.T) {
	t.Parallel()

	attrs := ipp.AttributeSet{"media-supported": {Name: "media-supported"}}
	got := ReconcileDialects(attrs)
	require.Equal(t, attrs, got)
}

func TestResolutionsFromURF_MultiValueToken(t *testing.T) {
	t.Parallel()

	res := resolutionsFromURF([]string{"RS600-1200"})
	require.Equal(t, []ipp.Value{ipp.Res(600, 600), ipp.Res(1200, 1200)}, res)
}

func TestSheetBackFromURF_UnknownDMTokenIsManualTumble(t *testing.T) {
	t.Parallel()

	require.Equal(t, "manual-tumble", sheetBackFromURF([]string{"DM9"}))
}
