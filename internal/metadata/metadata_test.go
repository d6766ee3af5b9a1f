package metadata

import (
	"bytes"
	"encoding/binary"
	"hash/crc32"
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"testing"
)

func TestExtractJPEG(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sample.jpg")
	if err := buildJPEGWithExif(path); err != nil {
		t.Fatalf("build JPEG: %v", err)
	}

	info := Extract(path)
	if info[KeyCamera] != "TestCam" {
		t.Errorf("Camera = %q", info[KeyCamera])
	}
	if info[KeyCaptured] != "2024-01-02 03:04:05" {
		t.Errorf("Captured = %q", info[KeyCaptured])
	}
	if _, ok := info[KeyGPS]; ok {
		t.Errorf("unexpected GPS entry: %q", info[KeyGPS])
	}
}

func TestExtractPNG(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sample.png")
	if err := buildPNGWithMetadata(path); err != nil {
		t.Fatalf("build PNG: %v", err)
	}

	info := Extract(path)
	if info[KeyCamera] != "TestCam" {
		t.Errorf("Camera = %q", info[KeyCamera])
	}
	if info[KeyCaptured] != "2024-01-02 03:04:05" {
		t.Errorf("Captured = %q", info[KeyCaptured])
	}
}

func TestExtractWithoutMetadata(t *testing.T) {
	dir := t.TempDir()

	plain := filepath.Join(dir, "plain.png")
	var buf bytes.Buffer
	if err := png.Encode(&buf, image.NewRGBA(image.Rect(0, 0, 1, 1))); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(plain, buf.Bytes(), 0o644); err != nil {
		t.Fatal(err)
	}
	if info := Extract(plain); len(info) != 0 {
		t.Errorf("plain PNG info = %v", info)
	}

	if info := Extract(filepath.Join(dir, "missing.jpg")); len(info) != 0 {
		t.Errorf("missing file info = %v", info)
	}

	text := filepath.Join(dir, "notes.txt")
	if err := os.WriteFile(text, []byte("just some text, no image"), 0o644); err != nil {
		t.Fatal(err)
	}
	if info := Extract(text); len(info) != 0 {
		t.Errorf("text file info = %v", info)
	}
}

func TestSummarize(t *testing.T) {
	info := summarize(map[string][]string{
		"Make":             {"Apple"},
		"Model":            {"iPhone 15 Pro"},
		"DateTimeOriginal": {"2023:11:05 18:22:01"},
		"GPSLatitude":      {"[37/1 46/1 30/1]"},
		"GPSLatitudeRef":   {"N"},
		"GPSLongitude":     {"[122/1 25/1 0/1]"},
		"GPSLongitudeRef":  {"W"},
		"BodySerialNumber": {"F2LXK123"},
	})

	want := map[string]string{
		KeyCamera:   "Apple iPhone 15 Pro (smartphone)",
		KeyCaptured: "2023-11-05 18:22:01",
		KeyGPS:      "37.77500, -122.41667",
		KeySerial:   "F2LXK123",
	}
	for k, v := range want {
		if info[k] != v {
			t.Errorf("%s = %q, want %q", k, info[k], v)
		}
	}
}

func TestDescribeCameraAvoidsRepeatedMake(t *testing.T) {
	got := describeCamera(map[string][]string{"Make": {"Canon"}, "Model": {"Canon EOS R5"}})
	if got != "Canon EOS R5 (camera)" {
		t.Errorf("describeCamera = %q", got)
	}
}

func buildJPEGWithExif(path string) error {
	exifData := buildExifTIFF()
	exif := append([]byte("Exif\x00\x00"), exifData...)

	var buf bytes.Buffer
	buf.Write([]byte{0xff, 0xd8})
	buf.Write([]byte{0xff, 0xe1})
	_ = binary.Write(&buf, binary.BigEndian, uint16(len(exif)+2))
	buf.Write(exif)
	buf.Write([]byte{0xff, 0xd9})

	return os.WriteFile(path, buf.Bytes(), 0o644)
}

// buildExifTIFF returns a little-endian IFD0 with Model and DateTime.
func buildExifTIFF() []byte {
	var tiff bytes.Buffer
	tiff.Write([]byte{0x49, 0x49, 0x2a, 0x00})
	_ = binary.Write(&tiff, binary.LittleEndian, uint32(8))
	_ = binary.Write(&tiff, binary.LittleEndian, uint16(2))
	_ = binary.Write(&tiff, binary.LittleEndian, uint16(0x0110))
	_ = binary.Write(&tiff, binary.LittleEndian, uint16(2))
	_ = binary.Write(&tiff, binary.LittleEndian, uint32(8))
	_ = binary.Write(&tiff, binary.LittleEndian, uint32(38))
	_ = binary.Write(&tiff, binary.LittleEndian, uint16(0x0132))
	_ = binary.Write(&tiff, binary.LittleEndian, uint16(2))
	_ = binary.Write(&tiff, binary.LittleEndian, uint32(20))
	_ = binary.Write(&tiff, binary.LittleEndian, uint32(46))
	_ = binary.Write(&tiff, binary.LittleEndian, uint32(0))
	tiff.Write([]byte("TestCam\x00"))
	tiff.Write([]byte("2024:01:02 03:04:05\x00"))
	return tiff.Bytes()
}

func buildPNGWithMetadata(path string) error {
	img := image.NewRGBA(image.Rect(0, 0, 1, 1))
	img.Set(0, 0, color.RGBA{R: 0xff, A: 0xff})

	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return err
	}
	data := buf.Bytes()
	if len(data) < 12 || string(data[len(data)-8:len(data)-4]) != "IEND" {
		return os.ErrInvalid
	}

	textChunk := buildPNGChunk("tEXt", []byte("Model\x00TestCam"))
	timeChunk := buildPNGChunk("tIME", []byte{0x07, 0xE8, 0x01, 0x02, 0x03, 0x04, 0x05})

	insertAt := len(data) - 12
	out := append([]byte{}, data[:insertAt]...)
	out = append(out, textChunk...)
	out = append(out, timeChunk...)
	out = append(out, data[insertAt:]...)

	return os.WriteFile(path, out, 0o644)
}

func buildPNGChunk(chunkType string, data []byte) []byte {
	chunkTypeBytes := []byte(chunkType)
	lenBuf := make([]byte, 4)
	binary.BigEndian.PutUint32(lenBuf, uint32(len(data)))
	crcBuf := make([]byte, 4)
	binary.BigEndian.PutUint32(crcBuf, crc32.ChecksumIEEE(append(chunkTypeBytes, data...)))

	chunk := make([]byte, 0, 12+len(data))
	chunk = append(chunk, lenBuf...)
	chunk = append(chunk, chunkTypeBytes...)
	chunk = append(chunk, data...)
	chunk = append(chunk, crcBuf...)
	return chunk
}
