package media

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/color"
	"image/draw"
	_ "image/gif"
	_ "image/jpeg"
	"image/png"
	"io"
	"os"
	"sort"

	"github.com/google/uuid"
	_ "golang.org/x/image/webp"

	"mediatools/internal/domain"
	"mediatools/internal/orchestrator"
)

const (
	defaultPaletteColors = 5
	maxPaletteColors     = 12
	maxPaletteSamples    = 250_000
	maxPalettePixels     = 25_000_000
	swatchSize           = 64
)

// Palette extracts the dominant colors of an uploaded image.
type Palette struct {
	store     ResultStore
	InputPath string
	Colors    int
}

// NewPalette clamps the color count and returns the operation.
func NewPalette(store ResultStore, inputPath string, colors int) (*Palette, error) {
	if inputPath == "" {
		return nil, fmt.Errorf("%w: image file is required", domain.ErrInvalidRequest)
	}
	if colors <= 0 {
		colors = defaultPaletteColors
	}
	if colors > maxPaletteColors {
		colors = maxPaletteColors
	}
	return &Palette{store: store, InputPath: inputPath, Colors: colors}, nil
}

func (op *Palette) Kind() domain.JobKind { return domain.JobKindPalette }

// decodeBounded reads the header first so oversized images are rejected
// before any pixel buffer is allocated.
func decodeBounded(r io.ReadSeeker, maxPixels int) (image.Image, string, error) {
	unsupported := "The file is not a supported image (PNG, JPEG, GIF or WebP)."
	cfg, _, err := image.DecodeConfig(r)
	if err != nil {
		return nil, "", domain.NewPublicError(unsupported, err)
	}
	if cfg.Width <= 0 || cfg.Height <= 0 || cfg.Width > maxPixels/cfg.Height {
		return nil, "", domain.NewPublicError(
			fmt.Sprintf("The image is too large to analyze (limit %d megapixels).", maxPixels/1_000_000),
			fmt.Errorf("image is %dx%d", cfg.Width, cfg.Height),
		)
	}
	if _, err := r.Seek(0, io.SeekStart); err != nil {
		return nil, "", fmt.Errorf("rewind input: %w", err)
	}
	img, format, err := image.Decode(r)
	if err != nil {
		return nil, "", domain.NewPublicError(unsupported, err)
	}
	return img, format, nil
}

func (op *Palette) Run(ctx context.Context, progress orchestrator.ProgressFunc) (orchestrator.Result, error) {
	defer os.Remove(op.InputPath)

	f, err := os.Open(op.InputPath)
	if err != nil {
		return orchestrator.Result{}, fmt.Errorf("open input: %w", err)
	}
	img, format, err := decodeBounded(f, maxPalettePixels)
	f.Close()
	if err != nil {
		return orchestrator.Result{}, err
	}
	progress(30, "analyzing")

	colors := DominantColors(img, op.Colors)
	hexes := make([]string, len(colors))
	for i, c := range colors {
		hexes[i] = fmt.Sprintf("#%02x%02x%02x", c.R, c.G, c.B)
	}
	if err := ctx.Err(); err != nil {
		return orchestrator.Result{}, err
	}

	progress(70, "rendering swatch")
	var buf bytes.Buffer
	if err := png.Encode(&buf, swatch(colors)); err != nil {
		return orchestrator.Result{}, fmt.Errorf("encode swatch: %w", err)
	}
	location, err := op.store.PutBytes(ctx, "palettes/"+uuid.NewString()+".png", buf.Bytes(), "image/png")
	if err != nil {
		return orchestrator.Result{}, fmt.Errorf("%w: %v", domain.ErrStorageUnavailable, err)
	}
	return orchestrator.Result{
		Location: location,
		Message:  "palette ready",
		Metadata: map[string]any{"colors": hexes, "format": format},
	}, nil
}

type colorBucket struct {
	r, g, b, n int
}

// DominantColors buckets pixels into a 4-bit-per-channel grid and returns the
// average color of the n most populated buckets.
func DominantColors(img image.Image, n int) []color.RGBA {
	bounds := img.Bounds()
	pixels := bounds.Dx() * bounds.Dy()
	step := 1
	for pixels/(step*step) > maxPaletteSamples {
		step++
	}

	buckets := make(map[uint16]*colorBucket)
	for y := bounds.Min.Y; y < bounds.Max.Y; y += step {
		for x := bounds.Min.X; x < bounds.Max.X; x += step {
			r, g, b, a := img.At(x, y).RGBA()
			if a < 0x8000 {
				continue
			}
			r8, g8, b8 := int(r>>8), int(g>>8), int(b>>8)
			key := uint16(r8>>4)<<8 | uint16(g8>>4)<<4 | uint16(b8>>4)
			bk, ok := buckets[key]
			if !ok {
				bk = &colorBucket{}
				buckets[key] = bk
			}
			bk.r += r8
			bk.g += g8
			bk.b += b8
			bk.n++
		}
	}

	sorted := make([]*colorBucket, 0, len(buckets))
	for _, bk := range buckets {
		sorted = append(sorted, bk)
	}
	sort.Slice(sorted, func(i, j int) bool {
		if sorted[i].n != sorted[j].n {
			return sorted[i].n > sorted[j].n
		}
		return sorted[i].r+sorted[i].g+sorted[i].b < sorted[j].r+sorted[j].g+sorted[j].b
	})
	if len(sorted) > n {
		sorted = sorted[:n]
	}

	out := make([]color.RGBA, len(sorted))
	for i, bk := range sorted {
		out[i] = color.RGBA{
			R: uint8(bk.r / bk.n),
			G: uint8(bk.g / bk.n),
			B: uint8(bk.b / bk.n),
			A: 0xff,
		}
	}
	return out
}

func swatch(colors []color.RGBA) image.Image {
	width := max(len(colors), 1) * swatchSize
	img := image.NewRGBA(image.Rect(0, 0, width, swatchSize))
	for i, c := range colors {
		rect := image.Rect(i*swatchSize, 0, (i+1)*swatchSize, swatchSize)
		draw.Draw(img, rect, &image.Uniform{C: c}, image.Point{}, draw.Src)
	}
	return img
}
