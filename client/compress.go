package client

import (
	"bytes"
	"fmt"

	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zstd"
)

// Body compression codecs
const (
	CompressNone = ""
	CompressGzip = "gzip"
	CompressZstd = "zstd"
)

// encoder compresses request bodies; reused across uploads
type encoder struct {
	codec string
	buf   bytes.Buffer
	gz    *gzip.Writer
	zs    *zstd.Encoder
	out   []byte
}

func newEncoder(codec string) (*encoder, error) {
	e := &encoder{codec: codec}
	switch codec {
	case CompressNone:
	case CompressGzip:
		gz, err := gzip.NewWriterLevel(&e.buf, gzip.BestSpeed)
		if err != nil {
			return nil, err
		}
		e.gz = gz
	case CompressZstd:
		zs, err := zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedFastest))
		if err != nil {
			return nil, err
		}
		e.zs = zs
	default:
		return nil, fmt.Errorf("unknown compression codec '%s' (use gzip or zstd)", codec)
	}
	return e, nil
}

// encode returns the compressed body, valid until the next call
func (e *encoder) encode(src []byte) ([]byte, error) {
	switch e.codec {
	case CompressGzip:
		e.buf.Reset()
		e.gz.Reset(&e.buf)
		if _, err := e.gz.Write(src); err != nil {
			return nil, err
		}
		if err := e.gz.Close(); err != nil {
			return nil, err
		}
		return e.buf.Bytes(), nil
	case CompressZstd:
		e.out = e.zs.EncodeAll(src, e.out[:0])
		return e.out, nil
	default:
		return src, nil
	}
}

func (e *encoder) close() error {
	if e.zs != nil {
		return e.zs.Close()
	}
	return nil
}
