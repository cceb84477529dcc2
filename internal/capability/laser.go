package capability

import "github.com/istopwg/ippinfra/internal/ipp"

// media describes one synthesized media size with uniform margins, in
// hundredths of a millimeter per IPP convention (§4.1: "uniform 6.35 mm
// margins").
type media struct {
	name       string
	widthMM    int32
	heightMM   int32
}

var laserMedia = []media{
	{"na_letter_8.5x11in", 2159, 2794},
	{"na_legal_8.5x14in", 2159, 3556},
	{"iso_a4_210x297mm", 2100, 2970},
}

const laserMarginHundredthsMM = 635 // 6.35mm in hundredths-of-mm, IPP's unit

// DefaultLaserProfile synthesizes the §4.1 "default laser profile" for
// socket:// devices that cannot be queried for capabilities: PCL document
// format, Letter/Legal/A4 media with uniform margins, draft/normal/high
// quality, 300/600 dpi, one/two-sided, monochrome-only, idle state.
func DefaultLaserProfile() ipp.AttributeSet {
	mediaVals := make([]ipp.Value, len(laserMedia))
	for i, m := range laserMedia {
		mediaVals[i] = ipp.Keyword(m.name)
	}

	return ipp.AttributeSet{
		"document-format-supported": {
			Name:   "document-format-supported",
			Values: []ipp.Value{ipp.Keyword("application/vnd.hp-pcl")},
		},
		"media-supported": {
			Name:   "media-supported",
			Values: mediaVals,
		},
		"media-left-margin-supported":   marginAttr("media-left-margin-supported"),
		"media-right-margin-supported":  marginAttr("media-right-margin-supported"),
		"media-top-margin-supported":    marginAttr("media-top-margin-supported"),
		"media-bottom-margin-supported": marginAttr("media-bottom-margin-supported"),
		"print-quality-supported": {
			Name: "print-quality-supported",
			Values: []ipp.Value{
				ipp.Enum(3), // draft
				ipp.Enum(4), // normal
				ipp.Enum(5), // high
			},
		},
		"printer-resolution-supported": {
			Name: "printer-resolution-supported",
			Values: []ipp.Value{
				ipp.Res(300, 300),
				ipp.Res(600, 600),
			},
		},
		"sides-supported": {
			Name: "sides-supported",
			Values: []ipp.Value{
				ipp.Keyword("one-sided"),
				ipp.Keyword("two-sided-long-edge"),
				ipp.Keyword("two-sided-short-edge"),
			},
		},
		"color-supported": {
			Name:   "color-supported",
			Values: []ipp.Value{ipp.Bool(false)},
		},
		"print-color-mode-supported": {
			Name:   "print-color-mode-supported",
			Values: []ipp.Value{ipp.Keyword("monochrome")},
		},
		"printer-state": {
			Name:   "printer-state",
			Values: []ipp.Value{ipp.Enum(3)}, // idle
		},
	}
}

func marginAttr(name string) ipp.Attribute {
	return ipp.Attribute{Name: name, Values: []ipp.Value{ipp.Int(laserMarginHundredthsMM)}}
}
