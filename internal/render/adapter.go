package render

import "github.com/fairyhunter13/qr-saas-entitlement/internal/model"

// QRRenderer adapts PNGRenderer to the service layer's Renderer.
type QRRenderer struct {
	png *PNGRenderer
}

// NewQRRenderer creates a QRRenderer.
func NewQRRenderer() *QRRenderer {
	return &QRRenderer{png: NewPNGRenderer()}
}

// Render returns a PNG data URL for content.
func (r *QRRenderer) Render(content string, styling model.QRStyling) (string, error) {
	return r.png.DataURL(content, Styling{
		Size:            styling.Size,
		ForegroundColor: styling.ForegroundColor,
		BackgroundColor: styling.BackgroundColor,
	})
}
