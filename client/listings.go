package client

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/communityconnect/server/models"
)

// ListingInput is the body for creating or updating a post or event.
type ListingInput struct {
	Title       string     `json:"title"`
	Description string     `json:"description"`
	Category    string     `json:"category"`
	Details     string     `json:"details,omitempty"`
	Contact     string     `json:"contact,omitempty"`
	Location    string     `json:"location,omitempty"`
	ImageURLs   []string   `json:"image_urls,omitempty"`
	StartsAt    *time.Time `json:"starts_at,omitempty"`
	EndsAt      *time.Time `json:"ends_at,omitempty"`
	Venue       string     `json:"venue,omitempty"`
}

// ListOptions filters a listing query.
type ListOptions struct {
	Category string
	Search   string
	Sort     string
	Upcoming bool
	Page     int
	PageSize int
}

func (o ListOptions) values() url.Values {
	q := pageQuery(o.Page, o.PageSize)
	if o.Category != "" {
		q.Set("category", o.Category)
	}
	if o.Search != "" {
		q.Set("search", o.Search)
	}
	if o.Sort != "" {
		q.Set("sort", o.Sort)
	}
	if o.Upcoming {
		q.Set("upcoming", "true")
	}
	return q
}

// PostPage is one page of posts.
type PostPage struct {
	Items      []models.Post `json:"items"`
	Pagination Pagination    `json:"pagination"`
}

// EventPage is one page of events.
type EventPage struct {
	Items      []models.Event `json:"items"`
	Pagination Pagination     `json:"pagination"`
}

func listingPath(resourceType string) string {
	return "/" + models.ListingTable(resourceType)
}

// ListPosts returns published posts.
func (c *Client) ListPosts(ctx context.Context, opts ListOptions) (*PostPage, error) {
	var p PostPage
	if err := c.do(ctx, http.MethodGet, "/posts", opts.values(), nil, &p); err != nil {
		return nil, err
	}
	return &p, nil
}

// ListEvents returns published events.
func (c *Client) ListEvents(ctx context.Context, opts ListOptions) (*EventPage, error) {
	var p EventPage
	if err := c.do(ctx, http.MethodGet, "/events", opts.values(), nil, &p); err != nil {
		return nil, err
	}
	return &p, nil
}

// MyPosts returns the caller's posts in every status.
func (c *Client) MyPosts(ctx context.Context, page, pageSize int) (*PostPage, error) {
	var p PostPage
	if err := c.do(ctx, http.MethodGet, "/users/me/posts", pageQuery(page, pageSize), nil, &p); err != nil {
		return nil, err
	}
	return &p, nil
}

// MyEvents returns the caller's events in every status.
func (c *Client) MyEvents(ctx context.Context, page, pageSize int) (*EventPage, error) {
	var p EventPage
	if err := c.do(ctx, http.MethodGet, "/users/me/events", pageQuery(page, pageSize), nil, &p); err != nil {
		return nil, err
	}
	return &p, nil
}

// GetPost returns a post and whether the caller likes it.
func (c *Client) GetPost(ctx context.Context, id uint) (*models.Post, bool, error) {
	var out struct {
		Post  models.Post `json:"post"`
		Liked bool        `json:"liked"`
	}
	if err := c.do(ctx, http.MethodGet, fmt.Sprintf("/posts/%d", id), nil, nil, &out); err != nil {
		return nil, false, err
	}
	return &out.Post, out.Liked, nil
}

// GetEvent returns an event and whether the caller likes it.
func (c *Client) GetEvent(ctx context.Context, id uint) (*models.Event, bool, error) {
	var out struct {
		Event models.Event `json:"event"`
		Liked bool         `json:"liked"`
	}
	if err := c.do(ctx, http.MethodGet, fmt.Sprintf("/events/%d", id), nil, nil, &out); err != nil {
		return nil, false, err
	}
	return &out.Event, out.Liked, nil
}

// CreatePost validates in and submits it. Validation failures never reach the server.
func (c *Client) CreatePost(ctx context.Context, in ListingInput) (*models.Post, error) {
	var p models.Post
	if err := c.submit(ctx, http.MethodPost, "/posts", models.ResourcePost, in, &p); err != nil {
		return nil, err
	}
	return &p, nil
}

// UpdatePost validates in and replaces the post's fields.
func (c *Client) UpdatePost(ctx context.Context, id uint, in ListingInput) (*models.Post, error) {
	var p models.Post
	if err := c.submit(ctx, http.MethodPut, fmt.Sprintf("/posts/%d", id), models.ResourcePost, in, &p); err != nil {
		return nil, err
	}
	return &p, nil
}

// CreateEvent validates in and submits it.
func (c *Client) CreateEvent(ctx context.Context, in ListingInput) (*models.Event, error) {
	var e models.Event
	if err := c.submit(ctx, http.MethodPost, "/events", models.ResourceEvent, in, &e); err != nil {
		return nil, err
	}
	return &e, nil
}

// UpdateEvent validates in and replaces the event's fields.
func (c *Client) UpdateEvent(ctx context.Context, id uint, in ListingInput) (*models.Event, error) {
	var e models.Event
	if err := c.submit(ctx, http.MethodPut, fmt.Sprintf("/events/%d", id), models.ResourceEvent, in, &e); err != nil {
		return nil, err
	}
	return &e, nil
}

func (c *Client) submit(ctx context.Context, method, path, resourceType string, in ListingInput, out interface{}) error {
	if err := ValidateListing(resourceType, in); err != nil {
		return err
	}
	body := map[string]interface{}{
		"title":       in.Title,
		"description": in.Description,
		"category":    in.Category,
		"contact":     in.Contact,
		"location":    in.Location,
		"image_urls":  in.ImageURLs,
		"starts_at":   in.StartsAt,
		"ends_at":     in.EndsAt,
		"venue":       in.Venue,
	}
	if in.Details != "" {
		body["details"] = json.RawMessage(in.Details)
	}
	var wrapped map[string]json.RawMessage
	if err := c.do(ctx, method, path, nil, body, &wrapped); err != nil {
		return err
	}
	return json.Unmarshal(wrapped[resourceType], out)
}

// DeleteListing removes a post or event.
func (c *Client) DeleteListing(ctx context.Context, resourceType string, id uint) error {
	return c.do(ctx, http.MethodDelete, fmt.Sprintf("%s/%d", listingPath(resourceType), id), nil, nil, nil)
}

// ToggleListingLike likes or unlikes a post or event.
func (c *Client) ToggleListingLike(ctx context.Context, resourceType string, id uint) (LikeState, error) {
	var s LikeState
	err := c.do(ctx, http.MethodPost, fmt.Sprintf("%s/%d/like", listingPath(resourceType), id), nil, nil, &s)
	return s, err
}
