package client

import (
	"context"
	"fmt"
	"net/http"

	"github.com/communityconnect/server/commenttree"
)

func commentsPath(resourceType string, resourceID uint) string {
	return fmt.Sprintf("/comments/%s/%d", resourceType, resourceID)
}

// LoadComments fetches one page of top-level comments with their replies nested.
// It makes Client usable as a commenttree.Loader.
func (c *Client) LoadComments(ctx context.Context, resourceType string, resourceID uint, page, pageSize int) (*commenttree.Page, error) {
	var p commenttree.Page
	if err := c.do(ctx, http.MethodGet, commentsPath(resourceType, resourceID), pageQuery(page, pageSize), nil, &p); err != nil {
		return nil, err
	}
	if p.Items == nil {
		p.Items = commenttree.Tree{}
	}
	return &p, nil
}

type commentResult struct {
	Comment *commenttree.Comment `json:"comment"`
}

// AddComment posts a comment, or a reply when parentID is set.
func (c *Client) AddComment(ctx context.Context, resourceType string, resourceID uint, parentID *uint, content string) (*commenttree.Comment, error) {
	body := map[string]interface{}{"content": content}
	if parentID != nil {
		body["parent_id"] = *parentID
	}
	var out commentResult
	if err := c.do(ctx, http.MethodPost, commentsPath(resourceType, resourceID), nil, body, &out); err != nil {
		return nil, err
	}
	return out.Comment, nil
}

// EditComment replaces the content of the caller's comment.
func (c *Client) EditComment(ctx context.Context, commentID uint, content string) (*commenttree.Comment, error) {
	var out commentResult
	body := map[string]string{"content": content}
	if err := c.do(ctx, http.MethodPut, fmt.Sprintf("/comments/%d", commentID), nil, body, &out); err != nil {
		return nil, err
	}
	return out.Comment, nil
}

// DeleteComment removes a comment with its replies and returns how many were removed.
func (c *Client) DeleteComment(ctx context.Context, commentID uint) (int64, error) {
	var out struct {
		Deleted int64 `json:"deleted"`
	}
	if err := c.do(ctx, http.MethodDelete, fmt.Sprintf("/comments/%d", commentID), nil, nil, &out); err != nil {
		return 0, err
	}
	return out.Deleted, nil
}

// ToggleCommentLike likes or unlikes a comment.
func (c *Client) ToggleCommentLike(ctx context.Context, commentID uint) (LikeState, error) {
	var s LikeState
	err := c.do(ctx, http.MethodPost, fmt.Sprintf("/comments/%d/like", commentID), nil, nil, &s)
	return s, err
}

// FlagComment reports a comment for review.
func (c *Client) FlagComment(ctx context.Context, resourceType string, resourceID, commentID uint, reason string) error {
	path := fmt.Sprintf("%s/%d/flag", commentsPath(resourceType, resourceID), commentID)
	return c.do(ctx, http.MethodPost, path, nil, map[string]string{"reason": reason}, nil)
}
