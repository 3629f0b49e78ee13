package forensics

import (
	"bytes"
	"fmt"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"io"
	"log/slog"
	"os"
	"path/filepath"

	// Decoders for the formats accepted by AnalyzeImage.
	_ "image/gif"

	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"
)

const (
	heatmapFileName       = "ela_heatmap.png"
	suspiciousRegionsNote = "Higher ELA intensity can indicate edits or heavy compression regions."
)

// Analyzer runs error-level analysis on images and sampled video frames.
// It holds no per-call state and is safe for concurrent use.
type Analyzer struct {
	opts   Options
	tools  Toolchain
	logger *slog.Logger
}

// NewAnalyzer creates an analyzer. A nil toolchain uses binaries from PATH and
// a nil logger discards output.
func NewAnalyzer(opts Options, tools Toolchain, logger *slog.Logger) *Analyzer {
	if tools == nil {
		tools = NewExecToolchain("", "")
	}
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Analyzer{
		opts:   opts.withDefaults(),
		tools:  tools,
		logger: logger,
	}
}

// Options returns the effective tuning.
func (a *Analyzer) Options() Options {
	return a.opts
}

// artifactRoot returns the configured root, falling back to the system temp dir.
func (a *Analyzer) artifactRoot() string {
	if a.opts.ArtifactDir != "" {
		return a.opts.ArtifactDir
	}
	return filepath.Join(os.TempDir(), "truthsig_artifacts")
}

// newRunDir creates a fresh, uniquely named directory under the artifact root.
func (a *Analyzer) newRunDir(prefix string) (string, error) {
	root := a.artifactRoot()
	if err := os.MkdirAll(root, 0755); err != nil {
		return "", fmt.Errorf("create artifact root: %w", err)
	}
	dir, err := os.MkdirTemp(root, prefix)
	if err != nil {
		return "", fmt.Errorf("create artifact dir: %w", err)
	}
	return dir, nil
}

// AnalyzeImage compares the image at path with a recompressed copy of itself
// and writes the amplified difference as a heatmap. When outputDir is empty a
// new directory is created under the artifact root.
//
// Failures never escape: they are reported as StatusError with the cause in
// Explanation.
func (a *Analyzer) AnalyzeImage(path, outputDir string) *ImageResult {
	if outputDir == "" {
		dir, err := a.newRunDir("ela_")
		if err != nil {
			return elaFailure(err)
		}
		outputDir = dir
	} else if err := os.MkdirAll(outputDir, 0755); err != nil {
		return elaFailure(fmt.Errorf("create output dir: %w", err))
	}
	return a.analyzeImage(path, filepath.Join(outputDir, heatmapFileName))
}

func (a *Analyzer) analyzeImage(path, heatmapPath string) *ImageResult {
	heatmap, meanDiff, err := a.errorLevel(path)
	if err != nil {
		return elaFailure(err)
	}
	if err := writePNG(heatmapPath, heatmap); err != nil {
		return elaFailure(err)
	}

	status := Classify(meanDiff, a.opts.AnomalyThreshold)
	a.logger.Debug("ela complete",
		slog.String("path", path),
		slog.Float64("mean_diff", meanDiff),
		slog.String("status", string(status)),
	)

	return &ImageResult{
		Status:                status,
		HeatmapPath:           heatmapPath,
		HeatmapSummary:        fmt.Sprintf("ELA mean diff intensity: %.1f", meanDiff),
		SuspiciousRegionsNote: suspiciousRegionsNote,
		MeanDiff:              meanDiff,
	}
}

func elaFailure(err error) *ImageResult {
	return &ImageResult{
		Status:      StatusError,
		Explanation: fmt.Sprintf("ELA failed: %v", err),
	}
}

// errorLevel computes the amplified difference image and its mean intensity
// across the R, G and B channels.
func (a *Analyzer) errorLevel(path string) (*image.RGBA, float64, error) {
	original, err := decodeFile(path)
	if err != nil {
		return nil, 0, err
	}

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, original, &jpeg.Options{Quality: a.opts.JPEGQuality}); err != nil {
		return nil, 0, fmt.Errorf("re-encode: %w", err)
	}
	decoded, err := jpeg.Decode(&buf)
	if err != nil {
		return nil, 0, fmt.Errorf("decode re-encoded copy: %w", err)
	}
	recompressed := toOpaqueRGBA(decoded)

	heatmap, meanDiff := amplifiedDifference(original, recompressed, a.opts.Amplification)
	return heatmap, meanDiff, nil
}

// amplifiedDifference returns |a-b| per channel multiplied by amp and
// saturated at 255, together with the mean channel intensity of the result.
func amplifiedDifference(a, b *image.RGBA, amp int) (*image.RGBA, float64) {
	bounds := a.Bounds()
	out := image.NewRGBA(bounds)

	var sum uint64
	for y := bounds.Min.Y; y < bounds.Max.Y; y++ {
		for x := bounds.Min.X; x < bounds.Max.X; x++ {
			i := a.PixOffset(x, y)
			j := b.PixOffset(x, y)
			for c := 0; c < 3; c++ {
				v := amplify(absDiff(a.Pix[i+c], b.Pix[j+c]), amp)
				out.Pix[i+c] = v
				sum += uint64(v)
			}
			out.Pix[i+3] = 0xff
		}
	}

	samples := uint64(bounds.Dx()) * uint64(bounds.Dy()) * 3
	if samples == 0 {
		return out, 0
	}
	return out, float64(sum) / float64(samples)
}

func absDiff(x, y uint8) int {
	if x > y {
		return int(x - y)
	}
	return int(y - x)
}

func amplify(v, amp int) uint8 {
	v *= amp
	if v > 0xff {
		return 0xff
	}
	return uint8(v)
}

func decodeFile(path string) (*image.RGBA, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open image: %w", err)
	}
	defer f.Close()

	img, _, err := image.Decode(f)
	if err != nil {
		return nil, fmt.Errorf("decode image: %w", err)
	}
	return toOpaqueRGBA(img), nil
}

// toOpaqueRGBA converts any image to 8-bit RGB, discarding alpha without
// compositing. The returned image always starts at the origin. Decoded JPEGs
// and PNGs take a direct path over their pixel buffers.
func toOpaqueRGBA(src image.Image) *image.RGBA {
	b := src.Bounds()
	dst := image.NewRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))

	switch s := src.(type) {
	case *image.YCbCr:
		for y := b.Min.Y; y < b.Max.Y; y++ {
			i := dst.PixOffset(0, y-b.Min.Y)
			for x := b.Min.X; x < b.Max.X; x++ {
				ci := s.COffset(x, y)
				r, g, bl := color.YCbCrToRGB(s.Y[s.YOffset(x, y)], s.Cb[ci], s.Cr[ci])
				dst.Pix[i+0], dst.Pix[i+1], dst.Pix[i+2], dst.Pix[i+3] = r, g, bl, 0xff
				i += 4
			}
		}
	case *image.NRGBA:
		for y := b.Min.Y; y < b.Max.Y; y++ {
			copyOpaqueRow(dst.Pix[dst.PixOffset(0, y-b.Min.Y):], s.Pix[s.PixOffset(b.Min.X, y):], b.Dx())
		}
	case *image.RGBA:
		for y := b.Min.Y; y < b.Max.Y; y++ {
			row := s.Pix[s.PixOffset(b.Min.X, y):]
			out := dst.Pix[dst.PixOffset(0, y-b.Min.Y):]
			copyOpaqueRow(out, row, b.Dx())
			for x := 0; x < b.Dx(); x++ {
				// Premultiplied pixels need un-premultiplying.
				if row[4*x+3] != 0xff {
					setOpaque(out[4*x:], src.At(b.Min.X+x, y))
				}
			}
		}
	default:
		for y := b.Min.Y; y < b.Max.Y; y++ {
			for x := b.Min.X; x < b.Max.X; x++ {
				setOpaque(dst.Pix[dst.PixOffset(x-b.Min.X, y-b.Min.Y):], src.At(x, y))
			}
		}
	}
	return dst
}

// copyOpaqueRow copies n RGB triples from an 8-bit RGBA-layout row and sets
// alpha to opaque.
func copyOpaqueRow(dst, src []uint8, n int) {
	for i := 0; i < 4*n; i += 4 {
		dst[i+0], dst[i+1], dst[i+2], dst[i+3] = src[i+0], src[i+1], src[i+2], 0xff
	}
}

func setOpaque(pix []uint8, c color.Color) {
	n := color.NRGBAModel.Convert(c).(color.NRGBA)
	pix[0], pix[1], pix[2], pix[3] = n.R, n.G, n.B, 0xff
}

func writePNG(path string, img image.Image) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create heatmap: %w", err)
	}
	if err := png.Encode(f, img); err != nil {
		f.Close()
		return fmt.Errorf("encode heatmap: %w", err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("close heatmap: %w", err)
	}
	return nil
}
