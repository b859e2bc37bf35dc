package part

import (
	"fmt"
	"strings"
	"sync"

	"github.com/klauspost/compress/zstd"
)

// EscapeFileName turns a column name into the file-name-safe form used for
// its .bin/.mrk files, escaping any byte that would be awkward on a
// filesystem (path separators, dots used by the nested-column
// convention, percent itself). Plain identifiers pass through untouched,
// matching the common case in spec §6's file layout.
func EscapeFileName(name string) string {
	var b strings.Builder
	b.Grow(len(name))
	for i := 0; i < len(name); i++ {
		c := name[i]
		switch {
		case c >= 'a' && c <= 'z', c >= 'A' && c <= 'Z', c >= '0' && c <= '9', c == '_':
			b.WriteByte(c)
		default:
			fmt.Fprintf(&b, "%%%02X", c)
		}
	}
	return b.String()
}

// encoder/decoder wrap klauspost/compress's zstd implementation
// to compress each fixed-size column block before it hits disk, per spec
// §6 ("column data, compressed in fixed-size blocks"). A package-level
// pair is reused across parts since both are safe for concurrent use and
// expensive to construct.
var (
	encoderOnce sync.Once
	encoder     *zstd.Encoder
	decoderOnce sync.Once
	decoder     *zstd.Decoder
)

func getEncoder() *zstd.Encoder {
	encoderOnce.Do(func() {
		enc, err := zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
		if err != nil {
			panic(fmt.Sprintf("part: init zstd encoder: %v", err))
		}
		encoder = enc
	})
	return encoder
}

func getDecoder() *zstd.Decoder {
	decoderOnce.Do(func() {
		dec, err := zstd.NewReader(nil)
		if err != nil {
			panic(fmt.Sprintf("part: init zstd decoder: %v", err))
		}
		decoder = dec
	})
	return decoder
}

// CompressBlock compresses one fixed-size uncompressed block of column
// data, as it would be written between two consecutive marks.
func CompressBlock(raw []byte) []byte {
	return getEncoder().EncodeAll(raw, make([]byte, 0, len(raw)))
}

// DecompressBlock reverses CompressBlock. sizeHint, when known from the
// mark stream, avoids a reallocation.
func DecompressBlock(compressed []byte, sizeHint int) ([]byte, error) {
	out, err := getDecoder().DecodeAll(compressed, make([]byte, 0, sizeHint))
	if err != nil {
		return nil, fmt.Errorf("part: decompress block: %w", err)
	}
	return out, nil
}
