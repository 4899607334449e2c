// Package geometry converts positions between raster image space and PDF page space.
//
// Raster coordinates start at the top-left corner and grow downward; PDF user space
// starts at the bottom-left corner and grows upward.
package geometry

import (
	"fmt"

	ferrors "github.com/a3tai/mcp-form-filler/internal/errors"
)

// Box is an axis-aligned rectangle in raster space (top-left origin)
type Box struct {
	X      float64 `json:"x"`
	Y      float64 `json:"y"`
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

// Right returns the x coordinate of the box's right edge
func (b Box) Right() float64 {
	return b.X + b.Width
}

// Point is a position in page space (bottom-left origin)
type Point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Map scales box from a srcW x srcH raster into a dstW x dstH page and flips the vertical axis.
func Map(box Box, srcW, srcH, dstW, dstH float64) (Point, error) {
	if srcW <= 0 || srcH <= 0 {
		return Point{}, ferrors.InvalidGeometry(fmt.Sprintf("source %gx%g", srcW, srcH))
	}

	scaleX := dstW / srcW
	scaleY := dstH / srcH

	return Point{
		X: box.X * scaleX,
		Y: dstH - box.Y*scaleY,
	}, nil
}

// MapOrIdentity maps box, substituting the target dimensions for unknown source dimensions.
func MapOrIdentity(box Box, srcW, srcH, dstW, dstH float64) (Point, error) {
	if srcW <= 0 || srcH <= 0 {
		srcW, srcH = dstW, dstH
	}
	return Map(box, srcW, srcH, dstW, dstH)
}
