package model

import "time"

// QRSource records which surface generated a QR code.
type QRSource string

const (
	SourceWeb QRSource = "web"
	SourceAPI QRSource = "api"
)

// DefaultQRType is stored when a request names no type.
const DefaultQRType = "text"

// QRCode is a stored QR code definition. The image is not stored; it is rendered again
// from Content and Styling whenever it is served. Deleted codes keep their row with
// IsActive false.
type QRCode struct {
	ID        string    `json:"id" bson:"_id"`
	AccountID string    `json:"account_id" bson:"account_id"`
	Title     string    `json:"title" bson:"title"`
	Content   string    `json:"content" bson:"content"`
	Type      string    `json:"type" bson:"type"`
	Styling   QRStyling `json:"styling" bson:"styling"`
	BatchID   string    `json:"batch_id,omitempty" bson:"batch_id,omitempty"`
	Source    QRSource  `json:"source" bson:"source"`
	IsActive  bool      `json:"is_active" bson:"is_active"`
	Version   int64     `json:"-" bson:"version"`
	CreatedAt time.Time `json:"created_at" bson:"created_at"`
	UpdatedAt time.Time `json:"updated_at" bson:"updated_at"`
}

// QRCodeFilter narrows QR code listing queries to one account's active codes. Search
// matches title or content case-insensitively.
type QRCodeFilter struct {
	AccountID string
	Search    string
	Type      string
	BatchID   string
	Offset    int
	Limit     int
}

// QRTypeCount is the number of active codes of one type.
type QRTypeCount struct {
	Type  string `json:"type" bson:"_id"`
	Count int64  `json:"count" bson:"count"`
}

// QRCodeStats summarises an account's active codes. ByType is ordered by count,
// largest first.
type QRCodeStats struct {
	Total  int64         `json:"total"`
	ByType []QRTypeCount `json:"by_type"`
}

// QRCodeOverview is QRCodeStats plus the most recent codes.
type QRCodeOverview struct {
	QRCodeStats
	Recent []QRCode `json:"recent"`
}

// QRCodeDetail is a stored code together with its freshly rendered image.
type QRCodeDetail struct {
	QRCode
	Image string `json:"image"`
}
