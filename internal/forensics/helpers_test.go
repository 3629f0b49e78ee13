package forensics

import (
	"context"
	"image"
	"image/color"
	"image/png"
	"math/rand"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"
)

// fakeCall records one toolchain invocation.
type fakeCall struct {
	Name    string
	Args    []string
	Timeout time.Duration
}

// fakeToolchain simulates ffmpeg and ffprobe without touching the host.
type fakeToolchain struct {
	mu        sync.Mutex
	available map[string]bool
	calls     []fakeCall

	// probeOutput is returned on stdout for ffprobe invocations.
	probeOutput string
	probeFail   bool

	// frame decides what ffmpeg does for a sampled frame index.
	frame func(idx int, outPath string) CommandResult
}

func newFakeToolchain(tools ...string) *fakeToolchain {
	f := &fakeToolchain{available: make(map[string]bool)}
	for _, t := range tools {
		f.available[t] = true
	}
	return f
}

func (f *fakeToolchain) Available(name string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.available[name]
}

func (f *fakeToolchain) Run(_ context.Context, timeout time.Duration, name string, args ...string) CommandResult {
	f.mu.Lock()
	idx := 0
	for _, c := range f.calls {
		if c.Name == name {
			idx++
		}
	}
	f.calls = append(f.calls, fakeCall{Name: name, Args: append([]string(nil), args...), Timeout: timeout})
	f.mu.Unlock()

	switch name {
	case ToolFFprobe:
		if f.probeFail {
			return CommandResult{ExitCode: 1, Stderr: "probe failed"}
		}
		return CommandResult{Stdout: f.probeOutput}
	case ToolFFmpeg:
		outPath := args[len(args)-2]
		if f.frame == nil {
			return CommandResult{ExitCode: 1, Stderr: "no frame handler"}
		}
		return f.frame(idx, outPath)
	}
	return CommandResult{ExitCode: 127, Stderr: "unknown tool"}
}

func (f *fakeToolchain) callsFor(name string) []fakeCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []fakeCall
	for _, c := range f.calls {
		if c.Name == name {
			out = append(out, c)
		}
	}
	return out
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

func noiseImage(w, h int, seed int64) image.Image {
	rng := rand.New(rand.NewSource(seed))
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for i := range img.Pix {
		img.Pix[i] = uint8(rng.Intn(256))
	}
	for i := 3; i < len(img.Pix); i += 4 {
		img.Pix[i] = 0xff
	}
	return img
}

func writeTestPNG(t *testing.T, path string, img image.Image) {
	t.Helper()
	f, err := os.Create(path)
	if err != nil {
		t.Fatalf("create %s: %v", path, err)
	}
	defer f.Close()
	if err := png.Encode(f, img); err != nil {
		t.Fatalf("encode %s: %v", path, err)
	}
}

// solidFrames makes every extraction succeed with a flat grey frame.
func solidFrames(t *testing.T) func(int, string) CommandResult {
	return func(_ int, out string) CommandResult {
		writeTestPNG(t, out, solidImage(32, 32, color.RGBA{128, 128, 128, 255}))
		return CommandResult{}
	}
}

func newTestAnalyzer(t *testing.T, tools Toolchain) (*Analyzer, string) {
	t.Helper()
	root := filepath.Join(t.TempDir(), "artifacts")
	return NewAnalyzer(DefaultOptions(root), tools, nil), root
}
