package imageio

import (
	"bytes"
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"strings"

	"github.com/srwiley/oksvg"
	"github.com/srwiley/rasterx"
)

// svgSniffLen bounds how much of the input is inspected for SVG markers
const svgSniffLen = 4096

// Limits on the raster size of a rendered SVG
const (
	maxSVGSide   = 16384
	maxSVGPixels = 64 << 20
)

// isSVGData reports whether data looks like an SVG document
func isSVGData(data []byte) bool {
	if len(data) == 0 {
		return false
	}
	n := min(len(data), svgSniffLen)
	header := bytes.ToLower(bytes.TrimSpace(data[:n]))
	return bytes.Contains(header, []byte("<svg")) ||
		bytes.Contains(header, []byte(`xmlns="http://www.w3.org/2000/svg"`)) ||
		bytes.Contains(header, []byte(`xmlns='http://www.w3.org/2000/svg'`))
}

// parseSvgExplicitSize extracts width and height attributes from the root
// element. A viewBox alone is not treated as a pixel size.
func parseSvgExplicitSize(data []byte) (int, int, bool) {
	n := min(len(data), 2*svgSniffLen)
	s := strings.ToLower(string(data[:n]))
	i := strings.Index(s, "<svg")
	if i < 0 {
		return 0, 0, false
	}
	j := strings.Index(s[i:], ">")
	if j < 0 {
		j = len(s)
	} else {
		j = i + j
	}
	tag := s[i:j]

	w, wOk := parseNumericAttr(tag, "width")
	h, hOk := parseNumericAttr(tag, "height")
	if wOk && hOk {
		return w, h, true
	}
	return 0, 0, false
}

// parseNumericAttr reads the leading integer of a quoted attribute value,
// e.g. width="123px" yields 123. Values above maxSVGSide saturate at
// maxSVGSide+1.
func parseNumericAttr(tag, attr string) (int, bool) {
	pos := -1
	for off := 0; off < len(tag); {
		k := strings.Index(tag[off:], attr)
		if k < 0 {
			break
		}
		k += off
		// the match must be a whole attribute name, so "stroke-width" is skipped
		if k > 0 && tag[k-1] != ' ' && tag[k-1] != '\t' && tag[k-1] != '\n' {
			off = k + len(attr)
			continue
		}
		pos = k + len(attr)
		break
	}
	if pos < 0 {
		return 0, false
	}

	rest := strings.TrimLeft(tag[pos:], " \t\n")
	if !strings.HasPrefix(rest, "=") {
		return 0, false
	}
	rest = strings.TrimLeft(rest[1:], " \t\n")
	if rest == "" || (rest[0] != '"' && rest[0] != '\'') {
		return 0, false
	}
	quote := rest[0]
	val := rest[1:]
	if end := strings.IndexByte(val, quote); end >= 0 {
		val = val[:end]
	}

	num, found := 0, false
	for i := 0; i < len(val); i++ {
		ch := val[i]
		if ch < '0' || ch > '9' {
			break
		}
		found = true
		if num <= maxSVGSide {
			num = num*10 + int(ch-'0')
		}
	}
	num = min(num, maxSVGSide+1)
	if !found || num <= 0 {
		return 0, false
	}
	return num, true
}

// renderSVG rasterizes an SVG document onto a white canvas of the given size
func renderSVG(svgData []byte, targetW, targetH int) (image.Image, error) {
	if targetW <= 0 || targetH <= 0 {
		return nil, fmt.Errorf("invalid target dimensions for SVG rendering: %dx%d", targetW, targetH)
	}
	if targetW > maxSVGSide || targetH > maxSVGSide || targetW*targetH > maxSVGPixels {
		return nil, fmt.Errorf("SVG size %dx%d exceeds the limit of %d per side and %d pixels",
			targetW, targetH, maxSVGSide, maxSVGPixels)
	}
	icon, err := oksvg.ReadIconStream(bytes.NewReader(svgData))
	if err != nil {
		return nil, fmt.Errorf("failed to parse SVG: %w", err)
	}
	icon.SetTarget(0, 0, float64(targetW), float64(targetH))

	dst := image.NewRGBA(image.Rect(0, 0, targetW, targetH))
	draw.Draw(dst, dst.Bounds(), &image.Uniform{C: color.White}, image.Point{}, draw.Src)

	scanner := rasterx.NewScannerGV(targetW, targetH, dst, dst.Bounds())
	dasher := rasterx.NewDasher(targetW, targetH, scanner)
	icon.Draw(dasher, 1.0)
	return dst, nil
}
