package stream

import (
	"errors"
	"io"
	"log/slog"
	"math"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/soypat/glgl/math/ms3"
	"github.com/soypat/metaballs/pipeline"
	"github.com/soypat/metaballs/render"
	"gonum.org/v1/gonum/spatial/r2"
	"gonum.org/v1/gonum/spatial/r3"
)

func testFrame(tick uint64) pipeline.Frame {
	normal := r3.Vec{Z: 1}
	return pipeline.Frame{
		Tick: tick,
		Layers: []pipeline.LayerMesh{
			{
				Name:      "outer",
				Threshold: 0.5,
				Mesh: render.Mesh{
					Positions: []r3.Vec{{X: -1, Y: 1}, {X: 1, Y: 1}, {X: 0, Y: float64(tick)}, {X: math.NaN()}},
					Normals:   []r3.Vec{normal, normal, normal, normal},
					UVs:       make([]r2.Vec, 4),
					Indices:   []uint32{0, 1, 2, 2, 1, 3},
				},
			},
			{Name: "empty", Threshold: 2},
		},
	}
}

func checkFrame(t *testing.T, got DecodedFrame, want pipeline.Frame) {
	t.Helper()
	if got.Tick != want.Tick || len(got.Layers) != len(want.Layers) {
		t.Fatalf("got tick %d with %d layers, want tick %d with %d", got.Tick, len(got.Layers), want.Tick, len(want.Layers))
	}
	for i, l := range got.Layers {
		wl := want.Layers[i]
		if l.Threshold != float32(wl.Threshold) {
			t.Errorf("layer %d threshold %g", i, l.Threshold)
		}
		if len(l.Positions) != len(wl.Mesh.Positions) || len(l.Indices) != len(wl.Mesh.Indices) {
			t.Fatalf("layer %d: %d positions %d indices", i, len(l.Positions), len(l.Indices))
		}
		for k, v := range wl.Mesh.Positions {
			w := ms3.Vec{X: float32(v.X), Y: float32(v.Y), Z: float32(v.Z)}
			g := l.Positions[k]
			if math.Float32bits(g.X) != math.Float32bits(w.X) || g.Y != w.Y || g.Z != w.Z {
				t.Errorf("layer %d position %d: got %v, want %v", i, k, g, w)
			}
		}
		for k, idx := range wl.Mesh.Indices {
			if l.Indices[k] != idx {
				t.Errorf("layer %d index %d: got %d, want %d", i, k, l.Indices[k], idx)
			}
		}
	}
}

func TestFrameRoundTrip(t *testing.T) {
	want := testFrame(42)
	b := EncodeFrame(nil, want)
	got, err := DecodeFrame(b)
	if err != nil {
		t.Fatal(err)
	}
	checkFrame(t, got, want)

	for _, n := range []int{0, 5, frameHeaderSize + 3, len(b) - 1} {
		if _, err := DecodeFrame(b[:n]); !errors.Is(err, errShortFrame) {
			t.Errorf("truncated to %d bytes: got error %v", n, err)
		}
	}
	if _, err := DecodeFrame(append(b, 0)); err == nil {
		t.Error("expected error for trailing byte")
	}
}

func TestHubBroadcast(t *testing.T) {
	hub := NewHub(slog.New(slog.NewTextHandler(io.Discard, nil)))
	srv := httptest.NewServer(hub)
	defer srv.Close()
	defer hub.Close()

	first := testFrame(1)
	if err := hub.Present(first); err != nil {
		t.Fatal(err)
	}
	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatal(err)
	}
	defer conn.Close()
	conn.SetReadDeadline(time.Now().Add(5 * time.Second))

	// A new client receives the latest frame right away.
	readFrame(t, conn, first)
	if hub.Clients() != 1 {
		t.Fatalf("hub has %d clients, want 1", hub.Clients())
	}

	second := testFrame(2)
	if err := hub.Present(second); err != nil {
		t.Fatal(err)
	}
	readFrame(t, conn, second)
}

func readFrame(t *testing.T, conn *websocket.Conn, want pipeline.Frame) {
	t.Helper()
	typ, b, err := conn.ReadMessage()
	if err != nil {
		t.Fatal(err)
	}
	if typ != websocket.BinaryMessage {
		t.Fatalf("got message type %d, want binary", typ)
	}
	got, err := DecodeFrame(b)
	if err != nil {
		t.Fatal(err)
	}
	checkFrame(t, got, want)
}

func TestHubJoinDuringBroadcast(t *testing.T) {
	hub := NewHub(slog.New(slog.NewTextHandler(io.Discard, nil)))
	srv := httptest.NewServer(hub)
	defer srv.Close()
	defer hub.Close()

	const frames = 200
	if err := hub.Present(testFrame(1)); err != nil {
		t.Fatal(err)
	}
	done := make(chan struct{})
	go func() {
		defer close(done)
		for tick := uint64(2); tick <= frames; tick++ {
			hub.Present(testFrame(tick))
		}
	}()

	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatal(err)
	}
	defer conn.Close()
	conn.SetReadDeadline(time.Now().Add(10 * time.Second))

	// Every frame arrives at most once and in order, ending with the last.
	var last uint64
	for last != frames {
		_, b, err := conn.ReadMessage()
		if err != nil {
			t.Fatalf("after tick %d: %v", last, err)
		}
		got, err := DecodeFrame(b)
		if err != nil {
			t.Fatal(err)
		}
		if got.Tick <= last {
			t.Fatalf("received tick %d after tick %d", got.Tick, last)
		}
		last = got.Tick
	}
	<-done
}
