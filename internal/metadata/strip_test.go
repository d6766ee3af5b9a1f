package metadata

import (
	"bytes"
	"encoding/binary"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"swiftconvert/pkg/imgutil"
)

func TestStripJPEG(t *testing.T) {
	src := filepath.Join(t.TempDir(), "sample.jpg")
	if err := buildJPEGWithExif(src); err != nil {
		t.Fatalf("build JPEG: %v", err)
	}
	data, err := os.ReadFile(src)
	if err != nil {
		t.Fatal(err)
	}

	icc := jpegSegment(0xe2, append([]byte("ICC_PROFILE\x00"), 1, 1, 'x'))
	withICC := append([]byte{0xff, 0xd8}, icc...)
	withICC = append(withICC, data[2:]...)

	var out bytes.Buffer
	if err := Strip(bytes.NewReader(withICC), &out, imgutil.KindJPEG); err != nil {
		t.Fatalf("Strip: %v", err)
	}

	want := append([]byte{0xff, 0xd8}, icc...)
	want = append(want, 0xff, 0xd9)
	if !bytes.Equal(out.Bytes(), want) {
		t.Fatalf("stripped = % x\nwant      % x", out.Bytes(), want)
	}

	info, _ := Read(bytes.NewReader(out.Bytes()), imgutil.KindJPEG)
	if info[KeyCamera] != "" {
		t.Errorf("camera survived stripping: %v", info)
	}
}

func TestStripPNG(t *testing.T) {
	src := filepath.Join(t.TempDir(), "sample.png")
	if err := buildPNGWithMetadata(src); err != nil {
		t.Fatalf("build PNG: %v", err)
	}
	data, err := os.ReadFile(src)
	if err != nil {
		t.Fatal(err)
	}

	var out bytes.Buffer
	if err := Strip(bytes.NewReader(data), &out, imgutil.KindPNG); err != nil {
		t.Fatalf("Strip: %v", err)
	}
	for _, chunk := range []string{"tEXt", "tIME"} {
		if bytes.Contains(out.Bytes(), []byte(chunk)) {
			t.Errorf("%s chunk survived", chunk)
		}
	}
	for _, chunk := range []string{"IHDR", "IDAT", "IEND"} {
		if !bytes.Contains(out.Bytes(), []byte(chunk)) {
			t.Errorf("%s chunk was dropped", chunk)
		}
	}
	if info, err := Read(bytes.NewReader(out.Bytes()), imgutil.KindPNG); err != nil || len(info) != 0 {
		t.Errorf("Read after strip = %v, %v", info, err)
	}
}

func TestStripRejectsOtherKinds(t *testing.T) {
	if CanStrip(imgutil.KindHEIC) {
		t.Error("HEIC should not be strippable")
	}
	err := Strip(bytes.NewReader(nil), &bytes.Buffer{}, imgutil.KindHEIC)
	if !errors.Is(err, ErrUnsupportedStrip) {
		t.Fatalf("err = %v", err)
	}
	if err := Strip(bytes.NewReader([]byte("not a jpeg")), &bytes.Buffer{}, imgutil.KindJPEG); err == nil {
		t.Error("expected error for bad SOI")
	}
}

func jpegSegment(marker byte, payload []byte) []byte {
	var buf bytes.Buffer
	buf.Write([]byte{0xff, marker})
	_ = binary.Write(&buf, binary.BigEndian, uint16(len(payload)+2))
	buf.Write(payload)
	return buf.Bytes()
}
