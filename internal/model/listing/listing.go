package listing

import "github.com/shopspring/decimal"

// Listing 是一个可按分钟计费的课程单元，由后端拥有，前端只读缓存。
type Listing struct {
	ID              string          `json:"id"`
	Title           string          `json:"title"`
	Description     string          `json:"description,omitempty"`
	InstructorID    string          `json:"instructorId"`
	InstructorName  string          `json:"instructorName,omitempty"`
	Type            string          `json:"type,omitempty"`
	DurationMinutes float64         `json:"durationMinutes"`
	PricePerMinute  decimal.Decimal `json:"pricePerMinute"`
	ReserveAmount   decimal.Decimal `json:"reserveAmount"`
	Rating          float64         `json:"rating,omitempty"`
	ThumbnailURL    string          `json:"thumbnailUrl,omitempty"`
	VideoURLs       []string        `json:"videoUrls,omitempty"`
	Tags            map[string]any  `json:"tags,omitempty"`
	Status          string          `json:"status,omitempty"`
}

// PrimaryVideo returns the first video reference, used as milestone proof.
func (l Listing) PrimaryVideo() string {
	if len(l.VideoURLs) == 0 {
		return ""
	}
	return l.VideoURLs[0]
}

// Detail is the course page payload.
type Detail struct {
	Title          string   `json:"title"`
	Description    string   `json:"description"`
	Category       string   `json:"category"`
	InstructorName string   `json:"instructorName,omitempty"`
	VideoURLs      []string `json:"videoUrls"`
	Thumbnail      string   `json:"thumbnail"`
	Rating         *float64 `json:"rating,omitempty"`
	Outcomes       []string `json:"outcomes,omitempty"`
	Transcription  string   `json:"transcription,omitempty"`
}
