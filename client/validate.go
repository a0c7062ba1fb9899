package client

import (
	"encoding/json"
	"strings"

	"github.com/communityconnect/server/models"
)

// ValidationError reports a listing rejected before submission.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string { return e.Message }

// ValidateListing checks the fields the server would reject so forms can
// report them without a round trip.
func ValidateListing(resourceType string, in ListingInput) error {
	if strings.TrimSpace(in.Title) == "" {
		return &ValidationError{Field: "title", Message: "title is required"}
	}
	if strings.TrimSpace(in.Description) == "" {
		return &ValidationError{Field: "description", Message: "description is required"}
	}
	if cat := strings.ToLower(strings.TrimSpace(in.Category)); cat != "" && !models.ValidCategory(resourceType, cat) {
		return &ValidationError{Field: "category", Message: "invalid category"}
	}
	if d := strings.TrimSpace(in.Details); d != "" {
		var obj map[string]interface{}
		if err := json.Unmarshal([]byte(d), &obj); err != nil {
			return &ValidationError{Field: "details", Message: "details must be a JSON object"}
		}
	}
	if len(in.ImageURLs) > models.MaxImages {
		return &ValidationError{Field: "image_urls", Message: "at most 5 images are allowed"}
	}
	if resourceType == models.ResourceEvent {
		if in.StartsAt == nil || in.StartsAt.IsZero() {
			return &ValidationError{Field: "starts_at", Message: "start time is required"}
		}
		if in.EndsAt != nil && !in.EndsAt.After(*in.StartsAt) {
			return &ValidationError{Field: "ends_at", Message: "end time must be after start time"}
		}
	}
	return nil
}
