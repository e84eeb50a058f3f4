package compression

import (
	"bytes"
	"strings"
	"testing"
)

func TestCompressors(t *testing.T) {
	payload := []byte(strings.Repeat("# Journal\n\nToday I wrote some words. 今天写了一些字。\n", 40))

	for _, name := range []string{CodecZstd, CodecGzip, CodecNone} {
		t.Run(name, func(t *testing.T) {
			c, err := For(name)
			if err != nil {
				t.Fatalf("For(%q) failed: %v", name, err)
			}
			if c.Name() != name {
				t.Errorf("Expected name %q, got %q", name, c.Name())
			}

			packed, err := c.Compress(payload)
			if err != nil {
				t.Fatalf("Compress failed: %v", err)
			}
			if name != CodecNone && len(packed) >= len(payload) {
				t.Errorf("Expected %s to shrink repetitive input, %d >= %d", name, len(packed), len(payload))
			}

			unpacked, err := c.Decompress(packed)
			if err != nil {
				t.Fatalf("Decompress failed: %v", err)
			}
			if !bytes.Equal(unpacked, payload) {
				t.Error("Expected decompressed payload to match the input")
			}
		})
	}
}

func TestDecompressEmpty(t *testing.T) {
	for _, c := range []Compressor{ZstdCompressor{}, GzipCompressor{}, NoneCompressor{}} {
		out, err := c.Decompress(nil)
		if err != nil || len(out) != 0 {
			t.Errorf("%s: expected empty output, got %q (%v)", c.Name(), out, err)
		}
	}
}

func TestForUnknown(t *testing.T) {
	if _, err := For("lz4"); err == nil {
		t.Error("Expected error for unknown codec")
	}
}
