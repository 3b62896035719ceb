package snapshot_test

import (
	"bytes"
	"image"
	"image/png"
	"os"
	"path/filepath"
	"testing"

	"github.com/soypat/metaballs"
	"github.com/soypat/metaballs/pipeline"
	"github.com/soypat/metaballs/render"
	"github.com/soypat/metaballs/snapshot"
	"gonum.org/v1/gonum/spatial/r2"
	"gonum.org/v1/plot/cmpimg"
)

// imgDelta a normalized delta parameter to describe how close the matching
// should be performed (imgDelta=0: perfect match, imgDelta=1, loose match)
const imgDelta = 0

func blobFrame(t *testing.T) (pipeline.Frame, r2.Box) {
	t.Helper()
	f, err := metaballs.NewField(64, 64, 1)
	if err != nil {
		t.Fatal(err)
	}
	src := metaballs.SourceFor(f, metaballs.Ball{Radius: 10})
	f.Update(src.Evaluate)
	frame := pipeline.Frame{Tick: 1}
	for _, thr := range []float64{0.5, 2} {
		mesh := render.Build(f, metaballs.NewLayer(f, thr))
		frame.Layers = append(frame.Layers, pipeline.LayerMesh{Threshold: thr, Mesh: mesh})
	}
	return frame, src.Domain
}

func TestRender(t *testing.T) {
	frame, extent := blobFrame(t)
	opts := snapshot.Options{Width: 64, Height: 64, Extent: extent}
	img, err := snapshot.Render(frame, opts)
	if err != nil {
		t.Fatal(err)
	}
	if b := img.Bounds(); b.Dx() != 64 || b.Dy() != 64 {
		t.Fatalf("image size %v", b)
	}
	r, g, b, _ := img.At(32, 32).RGBA()
	if r > 0xf000 && g > 0xf000 && b > 0xf000 {
		t.Error("center of the blob is background colored")
	}
	r, g, b, a := img.At(1, 1).RGBA()
	if r < 0xf000 || g < 0xf000 || b < 0xf000 || a != 0xffff {
		t.Errorf("corner pixel is not background: %d %d %d %d", r, g, b, a)
	}
}

func TestRenderSupersample(t *testing.T) {
	frame, extent := blobFrame(t)
	for _, ss := range []int{1, 2, 3} {
		img, err := snapshot.Render(frame, snapshot.Options{Width: 64, Height: 64, Supersample: ss, Extent: extent})
		if err != nil {
			t.Fatal(err)
		}
		if isBlank(img) {
			t.Errorf("supersample %d: rendered image is a single flat color", ss)
		}
		if _, _, _, a := img.At(32, 32).RGBA(); a != 0xffff {
			t.Errorf("supersample %d: blob center alpha %d, want opaque", ss, a)
		}
	}
}

func TestRenderDeterministic(t *testing.T) {
	frame, _ := blobFrame(t)
	opts := snapshot.Options{Width: 48, Height: 32}
	var b1, b2 bytes.Buffer
	if err := snapshot.WritePNG(&b1, frame, opts); err != nil {
		t.Fatal(err)
	}
	if err := snapshot.WritePNG(&b2, frame, opts); err != nil {
		t.Fatal(err)
	}
	equal, err := cmpimg.EqualApprox("png", b1.Bytes(), b2.Bytes(), imgDelta)
	if err != nil {
		t.Fatal(err)
	}
	if !equal {
		t.Error("rendering the same frame twice gave different images")
	}
	img, err := png.Decode(bytes.NewReader(b1.Bytes()))
	if err != nil {
		t.Fatal(err)
	}
	if isBlank(img) {
		t.Error("rendered image is a single flat color")
	}
}

// isBlank reports whether every pixel of img has the same color.
func isBlank(img image.Image) bool {
	b := img.Bounds()
	r0, g0, b0, a0 := img.At(b.Min.X, b.Min.Y).RGBA()
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			r, g, bl, a := img.At(x, y).RGBA()
			if r != r0 || g != g0 || bl != b0 || a != a0 {
				return false
			}
		}
	}
	return true
}

func TestSavePNG(t *testing.T) {
	frame, extent := blobFrame(t)
	path := filepath.Join(t.TempDir(), "frame.png")
	err := snapshot.SavePNG(path, frame, snapshot.Options{Width: 40, Height: 30, Supersample: 1, Extent: extent})
	if err != nil {
		t.Fatal(err)
	}
	fp, err := os.Open(path)
	if err != nil {
		t.Fatal(err)
	}
	defer fp.Close()
	cfg, err := png.DecodeConfig(fp)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Width != 40 || cfg.Height != 30 {
		t.Errorf("png is %dx%d, want 40x30", cfg.Width, cfg.Height)
	}
}

func TestRenderErrors(t *testing.T) {
	if _, err := snapshot.Render(pipeline.Frame{}, snapshot.Options{Width: 0, Height: 10}); err == nil {
		t.Error("expected error for zero width")
	}
	if _, err := snapshot.Render(pipeline.Frame{}, snapshot.Options{Width: 10, Height: 10}); err == nil {
		t.Error("expected error fitting an empty frame")
	}
}
