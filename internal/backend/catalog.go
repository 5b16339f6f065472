package backend

import (
	"context"
	"encoding/json"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/murphlabs/murph/backend/internal/model/listing"
	"github.com/murphlabs/murph/backend/pkg/apperr"
)

// The backend caps a page at 100 listings.
const maxListingPage = 100

type listingPayload struct {
	ID               string          `json:"id"`
	TeacherID        string          `json:"teacher_id"`
	TeacherName      string          `json:"teacher_name"`
	Title            string          `json:"title"`
	Description      string          `json:"description"`
	Type             string          `json:"type"`
	TotalDurationMin float64         `json:"total_duration_min"`
	ReserveAmount    decimal.Decimal `json:"reserve_amount"`
	PricePerMin      decimal.Decimal `json:"price_per_min"`
	Tags             map[string]any  `json:"tags"`
	ThumbnailURL     string          `json:"thumbnail_url"`
	Status           string          `json:"status"`
	VideoURLs        []string        `json:"video_urls"`
	ReviewsRating    *float64        `json:"reviews_rating"`
}

func (p listingPayload) toListing() listing.Listing {
	item := listing.Listing{
		ID:              p.ID,
		Title:           p.Title,
		Description:     p.Description,
		InstructorID:    p.TeacherID,
		InstructorName:  p.TeacherName,
		Type:            p.Type,
		DurationMinutes: p.TotalDurationMin,
		PricePerMinute:  p.PricePerMin,
		ReserveAmount:   p.ReserveAmount,
		ThumbnailURL:    p.ThumbnailURL,
		VideoURLs:       p.VideoURLs,
		Tags:            p.Tags,
		Status:          p.Status,
	}
	if p.ReviewsRating != nil {
		item.Rating = *p.ReviewsRating
	}
	return item
}

// ListListings fetches the published catalog. It satisfies listing.Source.
func (c *Client) ListListings(ctx context.Context, q listing.Query) ([]listing.Listing, error) {
	const op = "backend.ListListings"

	limit := q.Limit
	if limit <= 0 || limit > maxListingPage {
		limit = maxListingPage
	}
	query := url.Values{"limit": []string{strconv.Itoa(limit)}}
	if tag := strings.TrimSpace(q.Tag); tag != "" {
		query.Set("tag", tag)
	}

	var resp []listingPayload
	if err := c.call(ctx, op, http.MethodGet, "/discovery/listings", query, nil, &resp, classifyDefault); err != nil {
		return nil, err
	}

	out := make([]listing.Listing, 0, len(resp))
	for _, p := range resp {
		out = append(out, p.toListing())
	}
	return out, nil
}

type detailPayload struct {
	Title          string          `json:"title"`
	Description    string          `json:"description"`
	Category       string          `json:"category"`
	TeacherName    string          `json:"teacher_name"`
	VideoURL       json.RawMessage `json:"video_url"`
	Thumbnail      string          `json:"thumbnail"`
	ReviewsRating  *float64        `json:"reviews_rating"`
	CourseOutcomes []string        `json:"course_outcomes"`
	Transcription  string          `json:"transcription"`
}

// GetListingDetail fetches the course page. video_url may be a string or a list.
func (c *Client) GetListingDetail(ctx context.Context, listingID string) (listing.Detail, error) {
	const op = "backend.GetListingDetail"
	if listingID == "" {
		return listing.Detail{}, apperr.New(apperr.InvalidArgument, op, "listing id is required")
	}

	var resp detailPayload
	path := "/discovery/listings/" + url.PathEscape(listingID)
	if err := c.call(ctx, op, http.MethodGet, path, nil, nil, &resp, classifyDefault); err != nil {
		return listing.Detail{}, err
	}

	return listing.Detail{
		Title:          resp.Title,
		Description:    resp.Description,
		Category:       resp.Category,
		InstructorName: resp.TeacherName,
		VideoURLs:      decodeVideoURLs(resp.VideoURL),
		Thumbnail:      resp.Thumbnail,
		Rating:         resp.ReviewsRating,
		Outcomes:       resp.CourseOutcomes,
		Transcription:  resp.Transcription,
	}, nil
}

func decodeVideoURLs(raw json.RawMessage) []string {
	if len(raw) == 0 {
		return nil
	}
	var single string
	if err := json.Unmarshal(raw, &single); err == nil {
		if single == "" {
			return nil
		}
		return []string{single}
	}
	var many []string
	if err := json.Unmarshal(raw, &many); err == nil {
		return many
	}
	return nil
}

type suggestRequest struct {
	Query string `json:"query"`
}

type suggestResponse struct {
	Matches   []listingPayload `json:"matches"`
	Reasoning string           `json:"reasoning"`
}

// Suggestion is the backend's pick of listings for a free-text goal.
type Suggestion struct {
	Matches   []listing.Listing `json:"matches"`
	Reasoning string            `json:"reasoning,omitempty"`
}

// Suggest asks the backend to match listings to a learning goal.
func (c *Client) Suggest(ctx context.Context, query string) (Suggestion, error) {
	const op = "backend.Suggest"
	query = strings.TrimSpace(query)
	if query == "" {
		return Suggestion{}, apperr.New(apperr.ValidationFailed, op, "query is required")
	}

	var resp suggestResponse
	if err := c.call(ctx, op, http.MethodPost, "/discovery/suggest", nil, suggestRequest{Query: query}, &resp, classifyDefault); err != nil {
		return Suggestion{}, err
	}

	out := Suggestion{Reasoning: resp.Reasoning, Matches: make([]listing.Listing, 0, len(resp.Matches))}
	for _, p := range resp.Matches {
		out.Matches = append(out.Matches, p.toListing())
	}
	return out, nil
}
