package region

import (
	"bytes"
	"fmt"
	"io"

	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zlib"
)

// Compression identifies how a chunk payload is compressed inside its sector.
// The value is stored as the first byte of the payload.
type Compression byte

const (
	// CompressionGzip compresses chunks with gzip (RFC 1952).
	CompressionGzip Compression = 1
	// CompressionZlib compresses chunks with zlib (RFC 1950). It is the
	// format the game writes by default.
	CompressionZlib Compression = 2
	// CompressionNone stores chunks uncompressed.
	CompressionNone Compression = 3
	// CompressionLZ4 is written by newer game versions when configured to.
	// It is recognised but not supported.
	CompressionLZ4 Compression = 4

	// externalFlag marks a payload stored in a separate .mcc file.
	externalFlag = 0x80
)

func (c Compression) String() string {
	switch c {
	case CompressionGzip:
		return "gzip"
	case CompressionZlib:
		return "zlib"
	case CompressionNone:
		return "none"
	case CompressionLZ4:
		return "lz4"
	default:
		return fmt.Sprintf("Compression(%d)", byte(c))
	}
}

// decompress returns a reader over the uncompressed chunk payload of a sector.
func decompress(sector []byte) (io.Reader, error) {
	if len(sector) == 0 {
		return nil, fmt.Errorf("empty sector")
	}
	c, payload := Compression(sector[0]), sector[1:]
	if c&externalFlag != 0 {
		return nil, fmt.Errorf("chunk stored in external file (%s)", c&^externalFlag)
	}

	switch c {
	case CompressionGzip:
		r, err := gzip.NewReader(bytes.NewReader(payload))
		if err != nil {
			return nil, fmt.Errorf("create gzip reader: %w", err)
		}
		return r, nil
	case CompressionZlib:
		r, err := zlib.NewReader(bytes.NewReader(payload))
		if err != nil {
			return nil, fmt.Errorf("create zlib reader: %w", err)
		}
		return r, nil
	case CompressionNone:
		return bytes.NewReader(payload), nil
	default:
		return nil, fmt.Errorf("unsupported compression %s", c)
	}
}

// compress prefixes raw with the compression byte and compresses it.
func compress(c Compression, raw []byte) ([]byte, error) {
	buf := new(bytes.Buffer)
	buf.WriteByte(byte(c))

	switch c {
	case CompressionGzip:
		w := gzip.NewWriter(buf)
		if _, err := w.Write(raw); err != nil {
			return nil, fmt.Errorf("gzip chunk: %w", err)
		}
		if err := w.Close(); err != nil {
			return nil, fmt.Errorf("close gzip writer: %w", err)
		}
	case CompressionZlib:
		w := zlib.NewWriter(buf)
		if _, err := w.Write(raw); err != nil {
			return nil, fmt.Errorf("zlib chunk: %w", err)
		}
		if err := w.Close(); err != nil {
			return nil, fmt.Errorf("close zlib writer: %w", err)
		}
	case CompressionNone:
		buf.Write(raw)
	default:
		return nil, fmt.Errorf("unsupported compression %s", c)
	}
	return buf.Bytes(), nil
}
