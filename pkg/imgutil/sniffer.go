package imgutil

import (
	"errors"
	"io"
	"os"
	"strings"
)

// HeaderSize is the number of leading bytes needed to tell supported formats apart.
const HeaderSize = 12

// Kind identifies a supported image type.
type Kind int

const (
	KindUnknown Kind = iota
	KindJPEG
	KindPNG
	KindTIFF
	KindHEIC
	KindHEIF
	KindWebP
	KindGIF
)

func (k Kind) String() string {
	switch k {
	case KindJPEG:
		return "jpeg"
	case KindPNG:
		return "png"
	case KindTIFF:
		return "tiff"
	case KindHEIC:
		return "heic"
	case KindHEIF:
		return "heif"
	case KindWebP:
		return "webp"
	case KindGIF:
		return "gif"
	default:
		return "unknown"
	}
}

// MIMEType returns the media type reported for k.
func (k Kind) MIMEType() string {
	if k == KindUnknown {
		return "application/octet-stream"
	}
	return "image/" + k.String()
}

// ParseKind maps a format id or file extension ("jpg", ".HEIC") to a Kind.
func ParseKind(s string) Kind {
	switch strings.TrimPrefix(strings.ToLower(strings.TrimSpace(s)), ".") {
	case "jpeg", "jpg":
		return KindJPEG
	case "png":
		return KindPNG
	case "tiff", "tif":
		return KindTIFF
	case "heic":
		return KindHEIC
	case "heif":
		return KindHEIF
	case "webp":
		return KindWebP
	case "gif":
		return KindGIF
	default:
		return KindUnknown
	}
}

var (
	pngSig    = []byte{0x89, 0x50, 0x4e, 0x47, 0x0d, 0x0a, 0x1a, 0x0a}
	jpegSig   = []byte{0xff, 0xd8, 0xff}
	tiffSigLE = []byte{0x49, 0x49, 0x2a, 0x00}
	tiffSigBE = []byte{0x4d, 0x4d, 0x00, 0x2a}
	gifSig    = []byte("GIF8")
	riffSig   = []byte("RIFF")
	webpSig   = []byte("WEBP")
	ftypSig   = []byte("ftyp")
)

// ISO-BMFF major brands, by the kind they announce.
var heifBrands = map[string]Kind{
	"heic": KindHEIC,
	"heix": KindHEIC,
	"hevc": KindHEIC,
	"hevx": KindHEIC,
	"heim": KindHEIC,
	"heis": KindHEIC,
	"mif1": KindHEIF,
	"msf1": KindHEIF,
	"heif": KindHEIF,
}

// DetectHeader inspects the first HeaderSize bytes of a file for known signatures.
func DetectHeader(header []byte) (Kind, error) {
	if len(header) < HeaderSize {
		return KindUnknown, errors.New("header too short")
	}

	switch {
	case hasPrefix(header, jpegSig):
		return KindJPEG, nil
	case hasPrefix(header, pngSig):
		return KindPNG, nil
	case hasPrefix(header, tiffSigLE), hasPrefix(header, tiffSigBE):
		return KindTIFF, nil
	case hasPrefix(header, gifSig):
		return KindGIF, nil
	case hasPrefix(header, riffSig) && hasPrefix(header[8:], webpSig):
		return KindWebP, nil
	case hasPrefix(header[4:], ftypSig):
		if kind, ok := heifBrands[string(header[8:12])]; ok {
			return kind, nil
		}
	}

	return KindUnknown, nil
}

// SniffFile reads the header of a file to determine its type.
func SniffFile(path string) (Kind, error) {
	f, err := os.Open(path)
	if err != nil {
		return KindUnknown, err
	}
	defer f.Close()

	return SniffReader(f)
}

// SniffReader reads HeaderSize bytes from r and determines its type.
func SniffReader(r io.Reader) (Kind, error) {
	header := make([]byte, HeaderSize)
	if _, err := io.ReadFull(r, header); err != nil {
		return KindUnknown, err
	}

	return DetectHeader(header)
}

func hasPrefix(buf, prefix []byte) bool {
	if len(buf) < len(prefix) {
		return false
	}
	for i := range prefix {
		if buf[i] != prefix[i] {
			return false
		}
	}
	return true
}
