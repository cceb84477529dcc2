// Package capability implements C1: probing or synthesizing the local
// device's attribute set, and reconciling the URF/PWG-raster dialects onto
// each other (§4.1).
package capability

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/istopwg/ippinfra/internal/ipp"
)

// RequestedAttributes is the fixed requested-attributes list §4.1 sends
// with Get-Printer-Attributes: media, document formats, color/quality/sides,
// resolution, darkness, and raster descriptors. This is also the tracked
// attribute allowlist the Attribute Reconciler (C3) pushes deltas from.
var RequestedAttributes = []string{
	"media-supported",
	"media-col-database",
	"media-size-supported",
	"media-source-supported",
	"media-type-supported",
	"document-format-supported",
	"color-supported",
	"print-color-mode-supported",
	"print-quality-supported",
	"sides-supported",
	"printer-resolution-supported",
	"pwg-raster-document-resolution-supported",
	"pwg-raster-document-sheet-back",
	"pwg-raster-document-type-supported",
	"urf-supported",
	"printer-darkness-supported",
	"printer-darkness-configured",
	"printer-state",
}

// Prober issues Get-Printer-Attributes against an ipp or ipps device URI.
type Prober interface {
	GetPrinterAttributes(ctx context.Context, deviceURI string, requested []string) (ipp.AttributeSet, error)
}

// Probe implements §4.1's dispatch on device_uri scheme: an IPP(S) fetch
// with dialect reconciliation, or a synthesized laser profile for
// socket://.
func Probe(ctx context.Context, deviceURI string, prober Prober) (ipp.AttributeSet, error) {
	scheme := schemeOf(deviceURI)
	switch scheme {
	case "ipp", "ipps":
		attrs, err := prober.GetPrinterAttributes(ctx, deviceURI, RequestedAttributes)
		if err != nil {
			// §4.1: "Error >= 400 discards the response and yields an
			// empty attribute set" — an HTTP status of 400 or more
			// (*ipp.HTTPError) degrades to an empty set; every other error,
			// including connection failures and IPP status errors, propagates.
			if _, ok := err.(*ipp.HTTPError); ok {
				return ipp.AttributeSet{}, nil
			}
			return nil, err
		}
		return ReconcileDialects(attrs), nil
	case "socket":
		return DefaultLaserProfile(), nil
	default:
		return nil, fmt.Errorf("capability: unsupported device scheme %q", scheme)
	}
}

func schemeOf(rawURI string) string {
	i := strings.Index(rawURI, "://")
	if i < 0 {
		return ""
	}
	return rawURI[:i]
}

// ReconcileDialects fills in missing PWG raster attributes derived from
// URF tokens, per §4.1's three rules. It never overwrites an attribute the
// device already advertised.
func ReconcileDialects(attrs ipp.AttributeSet) ipp.AttributeSet {
	urf, ok := attrs.Get("urf-supported")
	if !ok {
		return attrs
	}

	tokens := urf.Strings()

	if _, have := attrs.Get("pwg-raster-document-resolution-supported"); !have {
		if res := resolutionsFromURF(tokens); len(res) > 0 {
			attrs["pwg-raster-document-resolution-supported"] = ipp.Attribute{
				Name:   "pwg-raster-document-resolution-supported",
				Values: res,
			}
		}
	}

	if _, have := attrs.Get("pwg-raster-document-sheet-back"); !have {
		if back := sheetBackFromURF(tokens); back != "" {
			attrs["pwg-raster-document-sheet-back"] = ipp.Attribute{
				Name:   "pwg-raster-document-sheet-back",
				Values: []ipp.Value{ipp.Keyword(back)},
			}
		}
	}

	if _, have := attrs.Get("pwg-raster-document-type-supported"); !have {
		if types := typesFromURF(tokens); len(types) > 0 {
			attrs["pwg-raster-document-type-supported"] = ipp.Attribute{
				Name:   "pwg-raster-document-type-supported",
				Values: types,
			}
		}
	}

	return attrs
}

// resolutionsFromURF implements §4.1 rule 1: each "RS" token's remainder is
// split on "-", and every decimal integer R yields one R x R resolution.
// "RS600-1200" yields 600x600 and 1200x1200 (§8 boundary case).
func resolutionsFromURF(tokens []string) []ipp.Value {
	var out []ipp.Value
	for _, tok := range tokens {
		if !strings.HasPrefix(tok, "RS") {
			continue
		}
		rest := tok[2:]
		for _, part := range strings.Split(rest, "-") {
			r, err := strconv.Atoi(part)
			if err != nil {
				continue
			}
			out = append(out, ipp.Res(int32(r), int32(r)))
		}
	}
	return out
}

// sheetBackFromURF implements §4.1 rule 2.
func sheetBackFromURF(tokens []string) string {
	for _, tok := range tokens {
		if !strings.HasPrefix(tok, "DM") {
			continue
		}
		switch tok {
		case "DM1":
			return "normal"
		case "DM2":
			return "flipped"
		case "DM3":
			return "rotated"
		default:
			return "manual-tumble"
		}
	}
	return ""
}

var urfColorToPWG = map[string]string{
	"ADOBERGB24": "adobe-rgb_8",
	"ADOBERGB48": "adobe-rgb_16",
	"SRGB24":     "srgb_8",
	"W8":         "sgray_8",
	"W16":        "sgray_16",
}

// typesFromURF implements §4.1 rule 3. Unrecognized tokens are ignored.
func typesFromURF(tokens []string) []ipp.Value {
	var out []ipp.Value
	for _, tok := range tokens {
		if pwg, ok := urfColorToPWG[tok]; ok {
			out = append(out, ipp.Keyword(pwg))
		}
	}
	return out
}
