package hwdec

// FourCC is a little-endian four character code as used by VA-API and DRM.
type FourCC uint32

// VA image fourccs.
const (
	FourCCNV12 FourCC = 'N' | 'V'<<8 | '1'<<16 | '2'<<24
	FourCCYV12 FourCC = 'Y' | 'V'<<8 | '1'<<16 | '2'<<24
	FourCCI420 FourCC = 'I' | '4'<<8 | '2'<<16 | '0'<<24
	FourCCP010 FourCC = 'P' | '0'<<8 | '1'<<16 | '0'<<24
	FourCCP016 FourCC = 'P' | '0'<<8 | '1'<<16 | '6'<<24
	FourCCYUY2 FourCC = 'Y' | 'U'<<8 | 'Y'<<16 | '2'<<24
	FourCCUYVY FourCC = 'U' | 'Y'<<8 | 'V'<<16 | 'Y'<<24
	FourCCRGBA FourCC = 'R' | 'G'<<8 | 'B'<<16 | 'A'<<24
	FourCCBGRA FourCC = 'B' | 'G'<<8 | 'R'<<16 | 'A'<<24
	FourCCY800 FourCC = 'Y' | '8'<<8 | '0'<<16 | '0'<<24
)

// DRM plane formats.
const (
	DRMFormatR8       FourCC = 'R' | '8'<<8 | ' '<<16 | ' '<<24
	DRMFormatGR88     FourCC = 'G' | 'R'<<8 | '8'<<16 | '8'<<24
	DRMFormatRGB888   FourCC = 'R' | 'G'<<8 | '2'<<16 | '4'<<24
	DRMFormatRGBA8888 FourCC = 'R' | 'A'<<8 | '2'<<16 | '4'<<24
	DRMFormatR16      FourCC = 'R' | '1'<<8 | '6'<<16 | ' '<<24
	DRMFormatGR1616   FourCC = 'G' | 'R'<<8 | '3'<<16 | '2'<<24
	DRMFormatARGB8888 FourCC = 'A' | 'R'<<8 | '2'<<16 | '4'<<24
	DRMFormatABGR8888 FourCC = 'A' | 'B'<<8 | '2'<<16 | '4'<<24
	DRMFormatYUYV     FourCC = 'Y' | 'U'<<8 | 'Y'<<16 | 'V'<<24
)

// ParseFourCC converts a code of up to four characters, padding with spaces.
func ParseFourCC(s string) (FourCC, bool) {
	if s == "" || len(s) > 4 {
		return 0, false
	}
	var b [4]byte
	for i := range b {
		b[i] = ' '
	}
	copy(b[:], s)
	return FourCC(b[0]) | FourCC(b[1])<<8 | FourCC(b[2])<<16 | FourCC(b[3])<<24, true
}

func (c FourCC) String() string {
	b := []byte{byte(c), byte(c >> 8), byte(c >> 16), byte(c >> 24)}
	for i, ch := range b {
		if ch < 0x20 || ch > 0x7e {
			b[i] = '?'
		}
	}
	return string(b)
}
