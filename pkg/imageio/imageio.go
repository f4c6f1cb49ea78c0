// Package imageio reads and writes the flat 2D images that tile a sharded
// volume: grayscale intensity tiles and 24-bit RGB instance-segmentation
// tiles. Tiles can be resampled at read time so the assembler never holds a
// full-resolution tile it only needs downsampled.
package imageio

import (
	"fmt"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"math"
	"os"
	"path/filepath"
	"strings"

	xdraw "golang.org/x/image/draw"

	"voltile/pkg/volume"
)

// Kind selects how pixel values map to voxel values.
type Kind int

const (
	// KindImage treats tiles as grayscale intensities (8- or 16-bit).
	KindImage Kind = iota

	// KindSeg treats tiles as RGB-encoded instance ids:
	// id = R | G<<8 | B<<16. Segmentation tiles always resample with
	// nearest-neighbor so ids are never blended.
	KindSeg
)

// Interp selects the resampling filter for intensity tiles.
type Interp int

const (
	// InterpNearest picks the nearest source pixel.
	InterpNearest Interp = iota

	// InterpBilinear blends the four surrounding source pixels.
	InterpBilinear
)

func (i Interp) scaler() xdraw.Scaler {
	if i == InterpBilinear {
		return xdraw.BiLinear
	}
	return xdraw.NearestNeighbor
}

// ReadTile decodes a tile image, optionally resampling it by the given
// row/column ratios, and returns it as a 1-deep volume. A missing file is
// reported with the underlying fs error so callers can distinguish absent
// tiles from corrupt ones.
func ReadTile(path string, kind Kind, ratioR, ratioC float64, interp Interp) (*volume.Volume, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	img, _, err := image.Decode(f)
	if err != nil {
		return nil, fmt.Errorf("decode tile %s: %w", path, err)
	}

	if ratioR != 1 || ratioC != 1 {
		img = resize(img, ratioR, ratioC, kind, interp)
	}
	return toVolume(img, kind), nil
}

func resize(img image.Image, ratioR, ratioC float64, kind Kind, interp Interp) image.Image {
	b := img.Bounds()
	h := int(math.Round(float64(b.Dy()) * ratioR))
	w := int(math.Round(float64(b.Dx()) * ratioC))
	if h < 1 {
		h = 1
	}
	if w < 1 {
		w = 1
	}
	scaler := interp.scaler()
	if kind == KindSeg {
		// Ids must never be interpolated.
		scaler = xdraw.NearestNeighbor
	}
	var dst xdraw.Image
	if _, ok := img.(*image.Gray16); ok && kind == KindImage {
		dst = image.NewGray16(image.Rect(0, 0, w, h))
	} else {
		dst = image.NewRGBA(image.Rect(0, 0, w, h))
	}
	scaler.Scale(dst, dst.Bounds(), img, b, xdraw.Src, nil)
	return dst
}

func toVolume(img image.Image, kind Kind) *volume.Volume {
	b := img.Bounds()
	v := volume.New(1, b.Dy(), b.Dx())
	for y := 0; y < b.Dy(); y++ {
		for x := 0; x < b.Dx(); x++ {
			r, g, bl, _ := img.At(b.Min.X+x, b.Min.Y+y).RGBA()
			var val uint32
			if kind == KindSeg {
				val = (r >> 8) | (g >> 8 << 8) | (bl >> 8 << 16)
			} else {
				val = r >> 8
				if _, ok := img.(*image.Gray16); ok {
					val = r
				}
			}
			v.Set(0, y, x, val)
		}
	}
	return v
}

// WriteSlice writes z-slice z of a volume as a flat image file. Intensity
// slices encode as 8-bit grayscale (16-bit when any value exceeds 255);
// segmentation slices encode ids as 24-bit RGB. The codec follows the file
// extension (.png, .jpg/.jpeg).
func WriteSlice(path string, v *volume.Volume, z int, kind Kind) error {
	if v.Channels != 1 {
		return fmt.Errorf("cannot write %d-channel volume as a flat image", v.Channels)
	}
	var img image.Image
	if kind == KindSeg {
		rgba := image.NewNRGBA(image.Rect(0, 0, v.Width, v.Height))
		for y := 0; y < v.Height; y++ {
			for x := 0; x < v.Width; x++ {
				id := v.At(z, y, x)
				rgba.SetNRGBA(x, y, color.NRGBA{
					R: uint8(id), G: uint8(id >> 8), B: uint8(id >> 16), A: 255,
				})
			}
		}
		img = rgba
	} else if sliceMax(v, z) > 255 {
		g16 := image.NewGray16(image.Rect(0, 0, v.Width, v.Height))
		for y := 0; y < v.Height; y++ {
			for x := 0; x < v.Width; x++ {
				g16.SetGray16(x, y, color.Gray16{Y: uint16(min(v.At(z, y, x), 65535))})
			}
		}
		img = g16
	} else {
		g := image.NewGray(image.Rect(0, 0, v.Width, v.Height))
		for y := 0; y < v.Height; y++ {
			for x := 0; x < v.Width; x++ {
				g.SetGray(x, y, color.Gray{Y: uint8(v.At(z, y, x))})
			}
		}
		img = g
	}

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("create slice directory: %w", err)
	}
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create slice image: %w", err)
	}
	switch strings.ToLower(filepath.Ext(path)) {
	case ".jpg", ".jpeg":
		err = jpeg.Encode(f, img, &jpeg.Options{Quality: 90})
	default:
		err = png.Encode(f, img)
	}
	if err != nil {
		f.Close()
		return fmt.Errorf("encode slice image %s: %w", path, err)
	}
	return f.Close()
}

func sliceMax(v *volume.Volume, z int) uint32 {
	var m uint32
	for y := 0; y < v.Height; y++ {
		for x := 0; x < v.Width; x++ {
			if val := v.At(z, y, x); val > m {
				m = val
			}
		}
	}
	return m
}
