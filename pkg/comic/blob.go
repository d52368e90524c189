// Package comic holds the values shared by every layer of the comic cache:
// the image payload for one day, the lookup result and the error taxonomy.
package comic

import (
	"bytes"
	"fmt"
	"image"
	// Register the decoders DecodeConfig needs for the formats the server publishes.
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"

	"github.com/illmade-knight/go-comiccache/pkg/datekey"
)

// Blob is the image for one day. It is created once, after the bytes have been
// verified as a decodable image, and never mutated afterwards; callers share it
// by reference.
type Blob struct {
	Key    datekey.Key
	Data   []byte
	Format string
	Width  int
	Height int
}

// Decode verifies that data is a decodable image and wraps it as a Blob for key.
// Only the image header is decoded; rendering is left to consumers.
func Decode(key datekey.Key, data []byte) (*Blob, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("image %s is empty", key)
	}
	cfg, format, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("image %s is not decodable: %w", key, err)
	}
	return &Blob{
		Key:    key,
		Data:   data,
		Format: format,
		Width:  cfg.Width,
		Height: cfg.Height,
	}, nil
}

// Size returns the payload size in bytes.
func (b *Blob) Size() int {
	if b == nil {
		return 0
	}
	return len(b.Data)
}

// Origin records which tier answered a lookup.
type Origin int

const (
	OriginMemory Origin = iota
	OriginDisk
	OriginNetwork
)

func (o Origin) String() string {
	switch o {
	case OriginMemory:
		return "memory"
	case OriginDisk:
		return "disk"
	case OriginNetwork:
		return "network"
	}
	return "unknown"
}

// Entry is the ephemeral result of a single lookup. It is never persisted.
type Entry struct {
	Key    datekey.Key
	Blob   *Blob
	Origin Origin
}
