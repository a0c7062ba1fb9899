package client

import (
	"context"
	"fmt"
	"net/http"

	"github.com/communityconnect/server/models"
)

// PendingPosts returns posts waiting for moderation.
func (c *Client) PendingPosts(ctx context.Context, page, pageSize int) (*PostPage, error) {
	var p PostPage
	if err := c.do(ctx, http.MethodGet, "/admin/posts/pending", pageQuery(page, pageSize), nil, &p); err != nil {
		return nil, err
	}
	return &p, nil
}

// PendingEvents returns events waiting for moderation.
func (c *Client) PendingEvents(ctx context.Context, page, pageSize int) (*EventPage, error) {
	var p EventPage
	if err := c.do(ctx, http.MethodGet, "/admin/events/pending", pageQuery(page, pageSize), nil, &p); err != nil {
		return nil, err
	}
	return &p, nil
}

// Moderate approves, rejects or archives a post or event. reason is only sent for rejections.
func (c *Client) Moderate(ctx context.Context, resourceType string, id uint, action, reason string) error {
	var body interface{}
	if reason != "" {
		body = map[string]string{"reason": reason}
	}
	path := fmt.Sprintf("/admin%s/%d/%s", listingPath(resourceType), id, action)
	return c.do(ctx, http.MethodPut, path, nil, body, nil)
}

// FlaggedComments returns comments waiting for review.
func (c *Client) FlaggedComments(ctx context.Context, page, pageSize int) ([]models.Comment, Pagination, error) {
	var out struct {
		Items      []models.Comment `json:"items"`
		Pagination Pagination       `json:"pagination"`
	}
	err := c.do(ctx, http.MethodGet, "/admin/comments/flagged", pageQuery(page, pageSize), nil, &out)
	return out.Items, out.Pagination, err
}

// ModerateComment clears a flag ("approve") or removes the comment ("remove").
func (c *Client) ModerateComment(ctx context.Context, commentID uint, action string) error {
	return c.do(ctx, http.MethodPut, fmt.Sprintf("/admin/comments/%d/%s", commentID, action), nil, nil, nil)
}

// Users lists accounts, optionally filtered by role or username search.
func (c *Client) Users(ctx context.Context, search, role string, page, pageSize int) ([]models.User, Pagination, error) {
	q := pageQuery(page, pageSize)
	if search != "" {
		q.Set("search", search)
	}
	if role != "" {
		q.Set("role", role)
	}
	var out struct {
		Items      []models.User `json:"items"`
		Pagination Pagination    `json:"pagination"`
	}
	err := c.do(ctx, http.MethodGet, "/admin/users", q, nil, &out)
	return out.Items, out.Pagination, err
}

// SetUserRole changes a user's role.
func (c *Client) SetUserRole(ctx context.Context, userID uint, role string) error {
	return c.do(ctx, http.MethodPut, fmt.Sprintf("/admin/users/%d/role", userID), nil, map[string]string{"role": role}, nil)
}

// Analytics returns the admin dashboard aggregates as decoded JSON.
func (c *Client) Analytics(ctx context.Context) (map[string]interface{}, error) {
	out := map[string]interface{}{}
	if err := c.do(ctx, http.MethodGet, "/admin/analytics", nil, nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// Export downloads entity (posts, events, users or comments) as csv or json.
func (c *Client) Export(ctx context.Context, entity, format string) ([]byte, error) {
	b, _, err := c.raw(ctx, http.MethodPost, "/admin/export", map[string]string{"entity": entity, "format": format})
	return b, err
}
