package imageio

import (
	"bytes"
	"fmt"
	"image"
	"image/color"
	"image/gif"
	"image/jpeg"
	"image/png"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/jo-hoe/lenna/internal/backend/processor"

	"golang.org/x/image/bmp"
	"golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"
)

const (
	FormatPNG  = "png"
	FormatJPEG = "jpeg"
	FormatGIF  = "gif"
	FormatBMP  = "bmp"
	FormatTIFF = "tiff"
	FormatSVG  = "svg"
)

const defaultJPEGQuality = 90

// Options controls decoding of formats without intrinsic pixel size
type Options struct {
	SVGFallbackWidth  int
	SVGFallbackHeight int
}

// DefaultOptions is used by Open and Decode
var DefaultOptions = Options{
	SVGFallbackWidth:  512,
	SVGFallbackHeight: 512,
}

// Shape describes the in-memory pixel layout as (height, width, channels)
type Shape struct {
	Height   int `json:"height" yaml:"height"`
	Width    int `json:"width" yaml:"width"`
	Channels int `json:"channels" yaml:"channels"`
}

func (s Shape) String() string {
	return fmt.Sprintf("(%d, %d, %d)", s.Height, s.Width, s.Channels)
}

// Open reads and decodes a single image file
func Open(path string) (*processor.Image, error) {
	return DefaultOptions.Open(path)
}

// OpenWithData is Open that also returns the raw file contents
func OpenWithData(path string) (*processor.Image, []byte, error) {
	return DefaultOptions.OpenWithData(path)
}

// Decode decodes image bytes; name is used for logging and the result's Name
func Decode(name string, data []byte) (*processor.Image, error) {
	return DefaultOptions.Decode(name, data)
}

// Open reads and decodes a single image file
func (o Options) Open(path string) (*processor.Image, error) {
	img, _, err := o.OpenWithData(path)
	return img, err
}

// OpenWithData is Open that also returns the raw file contents
func (o Options) OpenWithData(path string) (*processor.Image, []byte, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to read image %s: %w", path, err)
	}
	img, err := o.Decode(filepath.Base(path), data)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open image %s: %w", path, err)
	}
	return img, data, nil
}

// Decode decodes image bytes in any supported format
func (o Options) Decode(name string, data []byte) (*processor.Image, error) {
	slog.Debug("imageio: decoding image", "name", name, "input_size_bytes", len(data))

	if isSVGData(data) {
		img, err := o.decodeSVG(data)
		if err != nil {
			return nil, err
		}
		return processor.NewImage(name, FormatSVG, img), nil
	}

	img, format, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("failed to decode image: %w", err)
	}

	slog.Debug("imageio: image decoded",
		"name", name,
		"format", format,
		"width", img.Bounds().Dx(),
		"height", img.Bounds().Dy())
	return processor.NewImage(name, format, img), nil
}

func (o Options) decodeSVG(data []byte) (image.Image, error) {
	w, h, ok := parseSvgExplicitSize(data)
	if !ok {
		w, h = o.SVGFallbackWidth, o.SVGFallbackHeight
		slog.Debug("imageio: SVG lacks explicit size; using fallback", "width", w, "height", h)
	}
	img, err := renderSVG(data, w, h)
	if err != nil {
		return nil, fmt.Errorf("failed to render SVG: %w", err)
	}
	return img, nil
}

// FormatFromPath maps a file extension to an output format
func FormatFromPath(path string) (string, error) {
	ext := strings.ToLower(strings.TrimPrefix(filepath.Ext(path), "."))
	return ParseFormat(ext)
}

// ParseFormat maps a format name or extension to its output format
func ParseFormat(format string) (string, error) {
	switch strings.ToLower(format) {
	case "png":
		return FormatPNG, nil
	case "jpg", "jpeg":
		return FormatJPEG, nil
	case "gif":
		return FormatGIF, nil
	case "bmp":
		return FormatBMP, nil
	case "tif", "tiff":
		return FormatTIFF, nil
	case "":
		return "", fmt.Errorf("missing image format")
	default:
		return "", fmt.Errorf("unsupported output format: %s", format)
	}
}

// ContentType returns the MIME type for an output format
func ContentType(format string) string {
	switch format {
	case FormatJPEG:
		return "image/jpeg"
	case FormatGIF:
		return "image/gif"
	case FormatBMP:
		return "image/bmp"
	case FormatTIFF:
		return "image/tiff"
	default:
		return "image/png"
	}
}

// Encode writes img to w in the given format
func Encode(w io.Writer, img image.Image, format string) error {
	if img == nil {
		return fmt.Errorf("no image to encode")
	}
	format, err := ParseFormat(format)
	if err != nil {
		return err
	}

	switch format {
	case FormatPNG:
		err = png.Encode(w, img)
	case FormatJPEG:
		err = jpeg.Encode(w, img, &jpeg.Options{Quality: defaultJPEGQuality})
	case FormatGIF:
		err = gif.Encode(w, img, nil)
	case FormatBMP:
		err = bmp.Encode(w, img)
	case FormatTIFF:
		err = tiff.Encode(w, img, nil)
	}
	if err != nil {
		return fmt.Errorf("failed to encode %s image: %w", format, err)
	}
	return nil
}

// Save encodes img to path. The format follows the file extension. The
// file is written next to the target and renamed into place.
func Save(img image.Image, path string) error {
	format, err := FormatFromPath(path)
	if err != nil {
		return fmt.Errorf("cannot save %s: %w", path, err)
	}

	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, ".lenna-*"+filepath.Ext(path))
	if err != nil {
		return fmt.Errorf("failed to create temporary file in %s: %w", dir, err)
	}
	tmpName := tmp.Name()

	if err := Encode(tmp, img, format); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
		return err
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("failed to close %s: %w", tmpName, err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("failed to move image into %s: %w", path, err)
	}

	slog.Debug("imageio: image saved", "path", path, "format", format)
	return nil
}

// ShapeOf reports the (height, width, channels) layout of img. Channels
// follow the in-memory pixel type: gray and paletted images have one,
// YCbCr images three, and the RGBA and CMYK types four.
func ShapeOf(img image.Image) Shape {
	b := img.Bounds()
	return Shape{Height: b.Dy(), Width: b.Dx(), Channels: channels(img)}
}

func channels(img image.Image) int {
	switch img.(type) {
	case *image.Gray, *image.Gray16, *image.Alpha, *image.Alpha16, *image.Paletted:
		return 1
	case *image.YCbCr:
		return 3
	case *image.NYCbCrA, *image.CMYK, *image.RGBA, *image.RGBA64, *image.NRGBA, *image.NRGBA64:
		return 4
	}
	switch img.ColorModel() {
	case color.GrayModel, color.Gray16Model, color.AlphaModel, color.Alpha16Model:
		return 1
	case color.YCbCrModel:
		return 3
	}
	return 4
}
