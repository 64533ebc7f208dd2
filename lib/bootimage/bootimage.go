// Copyright 2026 The sk8brd Authors
// SPDX-License-Identifier: Apache-2.0

package bootimage

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/dustin/go-humanize"
	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"
	"github.com/zeebo/blake3"
)

// MaxSize bounds the inflated image. Fastboot boot partitions are far
// smaller; anything larger is almost certainly the wrong file.
const MaxSize = 1 << 30

// ErrTooLarge is returned when an image inflates past MaxSize.
var ErrTooLarge = errors.New("boot image exceeds maximum size")

// ErrEmpty is returned for a zero-length image.
var ErrEmpty = errors.New("boot image is empty")

// Compression identifies how an image file is stored.
type Compression uint8

const (
	CompressionNone Compression = iota
	CompressionZstd
	CompressionLZ4
)

func (c Compression) String() string {
	switch c {
	case CompressionNone:
		return "none"
	case CompressionZstd:
		return "zstd"
	case CompressionLZ4:
		return "lz4"
	default:
		return fmt.Sprintf("unknown(%d)", uint8(c))
	}
}

var (
	zstdMagic = []byte{0x28, 0xb5, 0x2f, 0xfd}
	lz4Magic  = []byte{0x04, 0x22, 0x4d, 0x18}
)

// Detect returns the compression of data from its leading magic bytes.
func Detect(data []byte) Compression {
	switch {
	case bytes.HasPrefix(data, zstdMagic):
		return CompressionZstd
	case bytes.HasPrefix(data, lz4Magic):
		return CompressionLZ4
	default:
		return CompressionNone
	}
}

// Digest is a BLAKE3-256 hash.
type Digest [32]byte

// Image is a boot image ready for upload.
type Image struct {
	// Name is the base name of the source file.
	Name string

	// Data is the inflated image.
	Data []byte

	// Compression is how the source file was stored.
	Compression Compression

	// StoredSize is the size of the source file.
	StoredSize int

	// Digest is the BLAKE3-256 hash of Data.
	Digest Digest
}

// Load reads, inflates and digests the image at path.
func Load(path string) (*Image, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading boot image: %w", err)
	}
	image, err := FromBytes(filepath.Base(path), data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return image, nil
}

// FromBytes inflates and digests stored image bytes.
func FromBytes(name string, stored []byte) (*Image, error) {
	if len(stored) == 0 {
		return nil, ErrEmpty
	}
	compression := Detect(stored)
	data, err := inflate(stored, compression)
	if err != nil {
		return nil, err
	}
	if len(data) == 0 {
		return nil, ErrEmpty
	}
	if len(data) > MaxSize {
		return nil, ErrTooLarge
	}
	return &Image{
		Name:        name,
		Data:        data,
		Compression: compression,
		StoredSize:  len(stored),
		Digest:      Sum(data),
	}, nil
}

// Sum returns the BLAKE3-256 digest of data.
func Sum(data []byte) Digest {
	return blake3.Sum256(data)
}

// Describe renders the image for status output, e.g.
// "boot.img 12 MiB (zstd, 4.1 MiB stored)".
func (image *Image) Describe() string {
	size := humanize.IBytes(uint64(len(image.Data)))
	if image.Compression == CompressionNone {
		return fmt.Sprintf("%s %s", image.Name, size)
	}
	return fmt.Sprintf("%s %s (%s, %s stored)", image.Name, size,
		image.Compression, humanize.IBytes(uint64(image.StoredSize)))
}

// zstdDecoder is shared; zstd.Decoder.DecodeAll is safe for concurrent use.
var zstdDecoder *zstd.Decoder

func init() {
	var err error
	zstdDecoder, err = zstd.NewReader(nil,
		zstd.WithDecoderMaxMemory(MaxSize),
		zstd.WithDecoderConcurrency(0),
	)
	if err != nil {
		panic("bootimage: zstd decoder initialization failed: " + err.Error())
	}
}

func inflate(stored []byte, compression Compression) ([]byte, error) {
	switch compression {
	case CompressionNone:
		return stored, nil

	case CompressionZstd:
		data, err := zstdDecoder.DecodeAll(stored, nil)
		if errors.Is(err, zstd.ErrDecoderSizeExceeded) || errors.Is(err, zstd.ErrWindowSizeExceeded) {
			return nil, ErrTooLarge
		}
		if err != nil {
			return nil, fmt.Errorf("zstd decompress: %w", err)
		}
		return data, nil

	case CompressionLZ4:
		reader := lz4.NewReader(bytes.NewReader(stored))
		data, err := io.ReadAll(io.LimitReader(reader, MaxSize+1))
		if err != nil {
			return nil, fmt.Errorf("lz4 decompress: %w", err)
		}
		return data, nil

	default:
		return nil, fmt.Errorf("unsupported compression: %s", compression)
	}
}
