// Package render draws QR codes as PNG data URLs.
package render

import (
	"encoding/base64"
	"errors"
	"fmt"
	"image/color"
	"strconv"
	"strings"

	skipqrcode "github.com/skip2/go-qrcode"
)

const (
	DefaultSize = 300
	MinSize     = 64
	MaxSize     = 2048

	defaultForeground = "#000000"
	defaultBackground = "#FFFFFF"
)

var (
	ErrEmptyContent = errors.New("content cannot be empty")
	ErrInvalidSize  = errors.New("size out of range")
	ErrInvalidColor = errors.New("invalid hex colour")
	ErrEncode       = errors.New("failed to generate QR code")
)

// Styling mirrors the request-level QR styling.
type Styling struct {
	Size            int
	ForegroundColor string
	BackgroundColor string
}

// PNGRenderer renders with medium error correction.
type PNGRenderer struct{}

// NewPNGRenderer creates a PNGRenderer.
func NewPNGRenderer() *PNGRenderer {
	return &PNGRenderer{}
}

// PNG encodes content and returns the raw image.
func (r *PNGRenderer) PNG(content string, styling Styling) ([]byte, error) {
	if strings.TrimSpace(content) == "" {
		return nil, ErrEmptyContent
	}

	size := styling.Size
	if size == 0 {
		size = DefaultSize
	}
	if size < MinSize || size > MaxSize {
		return nil, fmt.Errorf("%w: %d not in [%d, %d]", ErrInvalidSize, size, MinSize, MaxSize)
	}

	fg, err := parseHexColor(styling.ForegroundColor, defaultForeground)
	if err != nil {
		return nil, err
	}
	bg, err := parseHexColor(styling.BackgroundColor, defaultBackground)
	if err != nil {
		return nil, err
	}

	code, err := skipqrcode.New(content, skipqrcode.Medium)
	if err != nil {
		return nil, errors.Join(ErrEncode, err)
	}
	code.ForegroundColor = fg
	code.BackgroundColor = bg

	png, err := code.PNG(size)
	if err != nil {
		return nil, errors.Join(ErrEncode, err)
	}
	return png, nil
}

// DataURL renders content as a base64 PNG data URL.
func (r *PNGRenderer) DataURL(content string, styling Styling) (string, error) {
	png, err := r.PNG(content, styling)
	if err != nil {
		return "", err
	}
	return "data:image/png;base64," + base64.StdEncoding.EncodeToString(png), nil
}

// parseHexColor accepts #rgb, #rgba, #rrggbb and #rrggbbaa.
func parseHexColor(s, fallback string) (color.Color, error) {
	if s == "" {
		s = fallback
	}
	hex, ok := strings.CutPrefix(s, "#")
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrInvalidColor, s)
	}
	if len(hex) == 3 || len(hex) == 4 {
		var b strings.Builder
		for _, c := range hex {
			b.WriteRune(c)
			b.WriteRune(c)
		}
		hex = b.String()
	}
	if len(hex) == 6 {
		hex += "ff"
	}
	if len(hex) != 8 {
		return nil, fmt.Errorf("%w: %q", ErrInvalidColor, s)
	}

	v, err := strconv.ParseUint(hex, 16, 32)
	if err != nil {
		return nil, fmt.Errorf("%w: %q", ErrInvalidColor, s)
	}
	return color.NRGBA{R: uint8(v >> 24), G: uint8(v >> 16), B: uint8(v >> 8), A: uint8(v)}, nil
}
