package geometry

import (
	"errors"
	"testing"

	ferrors "github.com/a3tai/mcp-form-filler/internal/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMap(t *testing.T) {
	tests := []struct {
		name       string
		box        Box
		srcW, srcH float64
		dstW, dstH float64
		want       Point
	}{
		{
			name: "letter page from tall raster",
			box:  Box{X: 100, Y: 50, Width: 40, Height: 10},
			srcW: 1000, srcH: 2000, dstW: 612, dstH: 792,
			want: Point{X: 100 * 612.0 / 1000.0, Y: 792 - 50*(792.0/2000.0)},
		},
		{
			name: "identity scale",
			box:  Box{X: 10, Y: 20},
			srcW: 612, srcH: 792, dstW: 612, dstH: 792,
			want: Point{X: 10, Y: 772},
		},
		{
			name: "origin maps to top-left of page",
			box:  Box{},
			srcW: 300, srcH: 300, dstW: 600, dstH: 800,
			want: Point{X: 0, Y: 800},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Map(tt.box, tt.srcW, tt.srcH, tt.dstW, tt.dstH)
			require.NoError(t, err)
			assert.InDelta(t, tt.want.X, got.X, 1e-9)
			assert.InDelta(t, tt.want.Y, got.Y, 1e-9)
		})
	}
}

func TestMapRejectsZeroSource(t *testing.T) {
	_, err := Map(Box{X: 1, Y: 1}, 0, 100, 612, 792)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ferrors.ErrInvalidGeometry))

	_, err = Map(Box{X: 1, Y: 1}, 100, 0, 612, 792)
	assert.True(t, errors.Is(err, ferrors.ErrInvalidGeometry))
}

func TestMapOrIdentityUsesTargetWhenSourceUnknown(t *testing.T) {
	got, err := MapOrIdentity(Box{X: 150, Y: 100}, 0, 0, 612, 792)
	require.NoError(t, err)
	assert.InDelta(t, 150, got.X, 1e-9)
	assert.InDelta(t, 692, got.Y, 1e-9)
}

func TestBoxRight(t *testing.T) {
	assert.Equal(t, 140.0, Box{X: 100, Width: 40}.Right())
}
