// Package fingerprint reduces decoded frames to small fixed-size fingerprints
// for cheap equality testing between consecutive frames. It is an equality
// filter, not a similarity index: the importer only ever compares a frame's
// fingerprint to its immediate predecessor's within the same video.
package fingerprint

import (
	"bytes"
	"image"
	_ "image/jpeg"
	_ "image/png"
	"strings"

	"github.com/google/uuid"
)

const gridSize = 8

// Hash downscales the image to an 8x8 grayscale grid and emits one bit per
// cell: 1 if the cell is at or above the grid's mean intensity, else 0.
func Hash(img image.Image) string {
	cells := downsample(img)

	var sum uint64
	for _, c := range cells {
		sum += uint64(c)
	}
	mean := sum / (gridSize * gridSize)

	var sb strings.Builder
	sb.Grow(gridSize * gridSize)
	for _, c := range cells {
		if uint64(c) >= mean {
			sb.WriteByte('1')
		} else {
			sb.WriteByte('0')
		}
	}
	return sb.String()
}

// HashBytes decodes an encoded frame (JPEG or PNG) and fingerprints it. A
// frame that cannot be rasterized gets a unique fallback fingerprint so it is
// never wrongly treated as a duplicate of its neighbor.
func HashBytes(data []byte) string {
	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return Unique()
	}
	return Hash(img)
}

// Unique returns a fingerprint guaranteed not to collide with any grid hash.
// Grid hashes are 64 chars of '0'/'1'; the "err:" prefix keeps the namespaces
// disjoint.
func Unique() string {
	return "err:" + uuid.New().String()
}

// downsample averages the source pixels falling into each cell of the 8x8
// grid. Images smaller than the grid sample the nearest pixel instead.
func downsample(img image.Image) [gridSize * gridSize]uint32 {
	var cells [gridSize * gridSize]uint32

	b := img.Bounds()
	w, h := b.Dx(), b.Dy()
	if w == 0 || h == 0 {
		return cells
	}

	for cy := 0; cy < gridSize; cy++ {
		for cx := 0; cx < gridSize; cx++ {
			x0 := b.Min.X + cx*w/gridSize
			x1 := b.Min.X + (cx+1)*w/gridSize
			y0 := b.Min.Y + cy*h/gridSize
			y1 := b.Min.Y + (cy+1)*h/gridSize
			if x1 <= x0 {
				x1 = x0 + 1
			}
			if y1 <= y0 {
				y1 = y0 + 1
			}

			var total, count uint64
			for y := y0; y < y1; y++ {
				for x := x0; x < x1; x++ {
					r, g, bl, _ := img.At(x, y).RGBA()
					// Luma approximation on 16-bit channels.
					total += uint64(299*r+587*g+114*bl) / 1000
					count++
				}
			}
			cells[cy*gridSize+cx] = uint32(total / count)
		}
	}
	return cells
}
