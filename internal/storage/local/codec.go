package local

import (
	"encoding/json"
	"sync"

	"github.com/klauspost/compress/zstd"
	"github.com/pkg/errors"

	"github.com/skyline93/offline/internal/offline"
)

const (
	formatPlain      = 1
	formatCompressed = 2
)

// codec serialises entries. The first byte of a file is the format version.
type codec struct {
	mode CompressionMode

	allocEnc sync.Once
	allocDec sync.Once
	enc      *zstd.Encoder
	dec      *zstd.Decoder
}

func (c *codec) encode(e *offline.Entry) ([]byte, error) {
	p, err := json.Marshal(e)
	if err != nil {
		return nil, errors.Wrap(err, "json.Marshal")
	}

	if c.mode == CompressionOff {
		return append([]byte{formatPlain}, p...), nil
	}

	out := []byte{formatCompressed}
	return c.getZstdEncoder().EncodeAll(p, out), nil
}

func (c *codec) decode(buf []byte) (*offline.Entry, error) {
	if len(buf) == 0 {
		return nil, errors.New("empty entry file")
	}

	var (
		p   []byte
		err error
	)
	switch buf[0] {
	case formatPlain:
		p = buf[1:]
	case formatCompressed:
		p, err = c.getZstdDecoder().DecodeAll(buf[1:], nil)
		if err != nil {
			return nil, errors.Wrap(err, "DecodeAll")
		}
	default:
		return nil, errors.Errorf("not supported entry format %d", buf[0])
	}

	e := &offline.Entry{}
	if err := json.Unmarshal(p, e); err != nil {
		return nil, errors.Wrap(err, "json.Unmarshal")
	}
	return e, nil
}

func (c *codec) getZstdEncoder() *zstd.Encoder {
	c.allocEnc.Do(func() {
		level := zstd.SpeedDefault
		if c.mode == CompressionMax {
			level = zstd.SpeedBestCompression
		}

		opts := []zstd.EOption{
			zstd.WithEncoderLevel(level),
			// the json payload carries its own structure, skip the checksum
			zstd.WithEncoderCRC(false),
			zstd.WithWindowSize(512 * 1024),
		}

		enc, err := zstd.NewWriter(nil, opts...)
		if err != nil {
			panic(err)
		}
		c.enc = enc
	})
	return c.enc
}

func (c *codec) getZstdDecoder() *zstd.Decoder {
	c.allocDec.Do(func() {
		opts := []zstd.DOption{
			zstd.WithDecoderConcurrency(0),
			zstd.WithDecoderMaxMemory(256 * 1024 * 1024),
		}

		dec, err := zstd.NewReader(nil, opts...)
		if err != nil {
			panic(err)
		}
		c.dec = dec
	})
	return c.dec
}

func (c *codec) close() {
	if c.dec != nil {
		c.dec.Close()
	}
	if c.enc != nil {
		_ = c.enc.Close()
	}
}
