package pipeline

import (
	"context"
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"truthsig/internal/forensics"
	"truthsig/internal/metrics"
)

// mp4Header is the smallest ftyp box content sniffing recognizes as MP4.
var mp4Header = []byte("\x00\x00\x00\x18ftypmp42\x00\x00\x00\x00mp42isom")

const probeOneStream = `{
  "format": {"format_name": "mov,mp4,m4a,3gp,3g2,mj2", "duration": "4.000000", "size": "2048"},
  "streams": [{"index": 0, "codec_type": "video", "codec_name": "h264", "width": 32, "height": 32}]
}`

// stubToolchain simulates ffmpeg and ffprobe. ffmpeg writes a flat grey PNG
// to the requested output path.
type stubToolchain struct {
	mu        sync.Mutex
	available map[string]bool
	probeJSON string
	calls     map[string]int
}

func newStubToolchain(tools ...string) *stubToolchain {
	s := &stubToolchain{available: make(map[string]bool), calls: make(map[string]int), probeJSON: probeOneStream}
	for _, name := range tools {
		s.available[name] = true
	}
	return s
}

func (s *stubToolchain) Available(name string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.available[name]
}

func (s *stubToolchain) Run(_ context.Context, _ time.Duration, name string, args ...string) forensics.CommandResult {
	s.mu.Lock()
	s.calls[name]++
	probe := s.probeJSON
	s.mu.Unlock()

	switch name {
	case forensics.ToolFFprobe:
		return forensics.CommandResult{Stdout: probe}
	case forensics.ToolFFmpeg:
		out := args[len(args)-2]
		if err := encodePNG(out, solidImage(32, 32, color.RGBA{128, 128, 128, 255})); err != nil {
			return forensics.CommandResult{ExitCode: 1, Stderr: err.Error()}
		}
		return forensics.CommandResult{}
	}
	return forensics.CommandResult{ExitCode: 127, Stderr: "unknown tool"}
}

func (s *stubToolchain) callCount(name string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls[name]
}

func solidImage(w, h int, c color.Color) image.Image {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, c)
		}
	}
	return img
}

func encodePNG(path string, img image.Image) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := png.Encode(f, img); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

func writeFile(t *testing.T, dir, name string, data []byte) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, data, 0644); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
	return path
}

func writeImage(t *testing.T, dir, name string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := encodePNG(path, solidImage(48, 48, color.RGBA{90, 140, 60, 255})); err != nil {
		t.Fatalf("encode %s: %v", path, err)
	}
	return path
}

func newTestAnalyzer(t *testing.T, tools forensics.Toolchain) (*Analyzer, *metrics.Metrics) {
	t.Helper()
	m := metrics.New()
	fa := forensics.NewAnalyzer(forensics.DefaultOptions(filepath.Join(t.TempDir(), "artifacts")), tools, nil)
	return NewAnalyzer(fa, nil, m, nil), m
}
