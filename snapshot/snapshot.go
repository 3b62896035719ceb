// Package snapshot renders layer meshes to raster images.
package snapshot

import (
	"errors"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"io"
	"os"

	"github.com/nfnt/resize"
	"github.com/soypat/metaballs/internal/d2"
	"github.com/soypat/metaballs/internal/d3"
	"github.com/soypat/metaballs/pipeline"
	"gonum.org/v1/gonum/spatial/r2"
	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg/draw"
	"gonum.org/v1/plot/vg/vgimg"
)

// DefaultPalette colors layers in order, cycling when there are more layers
// than colors.
var DefaultPalette = []color.Color{
	color.RGBA{R: 0x1f, G: 0x77, B: 0xb4, A: 0xff},
	color.RGBA{R: 0xff, G: 0x7f, B: 0x0e, A: 0xff},
	color.RGBA{R: 0x2c, G: 0xa0, B: 0x2c, A: 0xff},
	color.RGBA{R: 0xd6, G: 0x27, B: 0x28, A: 0xff},
	color.RGBA{R: 0x94, G: 0x67, B: 0xbd, A: 0xff},
}

// Options configures Render.
type Options struct {
	Width, Height int
	// Supersample renders at Supersample times the output size before
	// downscaling. Values below 1 select 2.
	Supersample int
	// Extent is the region of the plane shown. A zero Extent fits the
	// finite vertices of every layer.
	Extent     r2.Box
	Palette    []color.Color
	Background color.Color
}

// Render draws the layers of f back to front, later layers on top, each
// filled with one palette color. Triangles with non-finite vertices are
// skipped.
func Render(f pipeline.Frame, opts Options) (image.Image, error) {
	if opts.Width < 1 || opts.Height < 1 {
		return nil, fmt.Errorf("invalid image size %dx%d", opts.Width, opts.Height)
	}
	ss := opts.Supersample
	if ss < 1 {
		ss = 2
	}
	palette := opts.Palette
	if len(palette) == 0 {
		palette = DefaultPalette
	}
	bg := opts.Background
	if bg == nil {
		bg = color.White
	}
	extent := opts.Extent
	if extent == (r2.Box{}) {
		var ok bool
		extent, ok = frameExtent(f)
		if !ok {
			return nil, errors.New("frame has no finite vertices to fit")
		}
	}

	p := plot.New()
	p.HideAxes()
	p.BackgroundColor = bg
	for i, l := range f.Layers {
		rings := layerRings(l)
		if len(rings) == 0 {
			continue
		}
		poly, err := plotter.NewPolygon(rings...)
		if err != nil {
			return nil, fmt.Errorf("layer %q: %w", l.Name, err)
		}
		poly.Color = palette[i%len(palette)]
		poly.LineStyle.Width = 0
		p.Add(poly)
	}
	// Adding plotters widens the axes to their data; pin them afterwards.
	p.X.Min, p.X.Max = extent.Min.X, extent.Max.X
	p.Y.Min, p.Y.Max = extent.Min.Y, extent.Max.Y

	// The canvas draws into its own copy of the backing image.
	c := vgimg.NewWith(vgimg.UseImage(image.NewRGBA(image.Rect(0, 0, opts.Width*ss, opts.Height*ss))))
	p.Draw(draw.New(c))
	img := c.Image()
	if ss == 1 {
		return img, nil
	}
	return resize.Resize(uint(opts.Width), uint(opts.Height), img, resize.Bilinear), nil
}

// layerRings returns one closed ring per finite triangle of l.
func layerRings(l pipeline.LayerMesh) []plotter.XYer {
	m := l.Mesh
	rings := make([]plotter.XYer, 0, m.TriangleCount())
	for i := 0; i < m.TriangleCount(); i++ {
		tri := m.Triangle(i)
		if !d3.IsFinite(tri[0]) || !d3.IsFinite(tri[1]) || !d3.IsFinite(tri[2]) {
			continue
		}
		rings = append(rings, plotter.XYs{
			{X: tri[0].X, Y: tri[0].Y},
			{X: tri[1].X, Y: tri[1].Y},
			{X: tri[2].X, Y: tri[2].Y},
		})
	}
	return rings
}

func frameExtent(f pipeline.Frame) (ext r2.Box, ok bool) {
	for _, l := range f.Layers {
		b, lok := l.Mesh.Bounds()
		if !lok {
			continue
		}
		if !ok {
			ext, ok = d2.Flatten(b), true
			continue
		}
		ext = d2.Extend(ext, d2.Flatten(b))
	}
	return ext, ok
}

// WritePNG renders f and encodes it as PNG to w.
func WritePNG(w io.Writer, f pipeline.Frame, opts Options) error {
	img, err := Render(f, opts)
	if err != nil {
		return err
	}
	return png.Encode(w, img)
}

// SavePNG renders f to a PNG file at path.
func SavePNG(path string, f pipeline.Frame, opts Options) error {
	fp, err := os.Create(path)
	if err != nil {
		return err
	}
	defer fp.Close()
	if err := WritePNG(fp, f, opts); err != nil {
		return err
	}
	return fp.Close()
}
