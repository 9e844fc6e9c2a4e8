package pixel

// HostFormat is an image surface format of the host toolkit, named after
// the cairo formats.
type HostFormat int

const (
	HostFormatInvalid HostFormat = iota
	HostFormatARGB32
	HostFormatRGB24
	HostFormatA8
	HostFormatA1
	HostFormatRGB16565
	HostFormatRGB30
	HostFormatRGB96F
	HostFormatRGBA128F
)

var hostFormatNames = map[HostFormat]string{
	HostFormatInvalid:  "invalid",
	HostFormatARGB32:   "argb32",
	HostFormatRGB24:    "rgb24",
	HostFormatA8:       "a8",
	HostFormatA1:       "a1",
	HostFormatRGB16565: "rgb16_565",
	HostFormatRGB30:    "rgb30",
	HostFormatRGB96F:   "rgb96f",
	HostFormatRGBA128F: "rgba128f",
}

func (f HostFormat) String() string {
	if name, ok := hostFormatNames[f]; ok {
		return name
	}
	return "invalid"
}

// HostFormatOf maps a buffer format to the host surface format with the
// same memory layout. Layouts the host has no format for map to
// HostFormatInvalid.
func HostFormatOf(f Format) HostFormat {
	switch f {
	case FormatRGBAFloat:
		return HostFormatRGBA128F
	case FormatRGBFloat:
		return HostFormatRGB96F
	case FormatARGB8888:
		return HostFormatARGB32
	case FormatXRGB2101010:
		return HostFormatRGB30
	case FormatXRGB8888:
		return HostFormatRGB24
	case FormatA8:
		return HostFormatA8
	case FormatA1:
		return HostFormatA1
	case FormatRGB565:
		return HostFormatRGB16565
	}
	return HostFormatInvalid
}
