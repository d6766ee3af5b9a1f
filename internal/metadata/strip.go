package metadata

import (
	"bufio"
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"

	"swiftconvert/pkg/imgutil"
)

// ErrUnsupportedStrip is returned for kinds Strip cannot rewrite.
var ErrUnsupportedStrip = errors.New("metadata stripping supports JPEG and PNG only")

var (
	app1Exif       = []byte("Exif\x00\x00")
	app1XMP        = []byte("http://ns.adobe.com/xap/1.0/\x00")
	app13Photoshop = []byte("Photoshop 3.0\x00")
)

// CanStrip reports whether Strip handles kind.
func CanStrip(kind imgutil.Kind) bool {
	return kind == imgutil.KindJPEG || kind == imgutil.KindPNG
}

// Strip copies the image in r to w without EXIF, XMP, IPTC and PNG text or
// time chunks. Colour profiles are kept so the conversion renders the same.
func Strip(r io.Reader, w io.Writer, kind imgutil.Kind) error {
	switch kind {
	case imgutil.KindJPEG:
		return stripJPEG(r, w)
	case imgutil.KindPNG:
		return stripPNG(r, w)
	default:
		return ErrUnsupportedStrip
	}
}

func stripJPEG(r io.Reader, w io.Writer) error {
	br := bufio.NewReader(r)
	bw := bufio.NewWriter(w)

	var soi [2]byte
	if _, err := io.ReadFull(br, soi[:]); err != nil {
		return err
	}
	if soi != [2]byte{0xff, 0xd8} {
		return fmt.Errorf("invalid JPEG SOI")
	}
	bw.Write(soi[:])

	for {
		marker, err := nextJPEGMarker(br)
		if err != nil {
			return err
		}

		switch {
		case marker == 0xd9: // EOI
			bw.Write([]byte{0xff, 0xd9})
			return bw.Flush()
		case marker == 0xda: // SOS, entropy-coded data runs to the end
			bw.Write([]byte{0xff, marker})
			if _, err := io.Copy(bw, br); err != nil {
				return err
			}
			return bw.Flush()
		case marker == 0x01 || (marker >= 0xd0 && marker <= 0xd7):
			bw.Write([]byte{0xff, marker})
			continue
		}

		var lenBuf [2]byte
		if _, err := io.ReadFull(br, lenBuf[:]); err != nil {
			return err
		}
		segLen := int(binary.BigEndian.Uint16(lenBuf[:]))
		if segLen < 2 {
			return fmt.Errorf("invalid JPEG segment length")
		}
		payload := make([]byte, segLen-2)
		if _, err := io.ReadFull(br, payload); err != nil {
			return err
		}
		if dropJPEGSegment(marker, payload) {
			continue
		}
		bw.Write([]byte{0xff, marker})
		bw.Write(lenBuf[:])
		if _, err := bw.Write(payload); err != nil {
			return err
		}
	}
}

// nextJPEGMarker skips fill bytes and returns the marker code.
func nextJPEGMarker(br *bufio.Reader) (byte, error) {
	b, err := br.ReadByte()
	for err == nil && b != 0xff {
		b, err = br.ReadByte()
	}
	for err == nil && b == 0xff {
		b, err = br.ReadByte()
	}
	return b, err
}

func dropJPEGSegment(marker byte, payload []byte) bool {
	switch marker {
	case 0xe1:
		return bytes.HasPrefix(payload, app1Exif) || bytes.HasPrefix(payload, app1XMP)
	case 0xed:
		return bytes.HasPrefix(payload, app13Photoshop)
	}
	return false
}

func stripPNG(r io.Reader, w io.Writer) error {
	br := bufio.NewReader(r)
	bw := bufio.NewWriter(w)

	sig := make([]byte, len(pngSignature))
	if _, err := io.ReadFull(br, sig); err != nil {
		return err
	}
	if !bytes.Equal(sig, pngSignature) {
		return fmt.Errorf("invalid PNG signature")
	}
	bw.Write(sig)

	var header [8]byte
	for {
		if _, err := io.ReadFull(br, header[:]); err != nil {
			if err == io.EOF {
				return bw.Flush()
			}
			return err
		}
		length := int64(binary.BigEndian.Uint32(header[:4]))
		chunkName := string(header[4:])

		// data plus CRC
		dst := io.Writer(bw)
		switch chunkName {
		case "tEXt", "zTXt", "iTXt", "eXIf", "tIME":
			dst = io.Discard
		default:
			bw.Write(header[:])
		}
		if _, err := io.CopyN(dst, br, length+4); err != nil {
			return err
		}
		if chunkName == "IEND" {
			return bw.Flush()
		}
	}
}
