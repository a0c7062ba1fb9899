package client

import (
	"context"

	"github.com/communityconnect/server/commenttree"
)

// CommentThread keeps the comment tree of the open listing. Every method
// issues one request and edits the tree only when it succeeds; a failure
// leaves the tree as it was and records the message for Err.
type CommentThread struct {
	*commenttree.Store
	api *Client
}

// NewCommentThread returns an empty thread backed by api.
func NewCommentThread(api *Client) *CommentThread {
	return &CommentThread{Store: commenttree.NewStore(api), api: api}
}

func (t *CommentThread) fail(err error) error {
	t.SetErr(err.Error())
	return err
}

// Add posts a comment on the loaded resource and inserts the result.
func (t *CommentThread) Add(ctx context.Context, parentID *uint, content string) (*commenttree.Comment, error) {
	rt, id := t.Resource()
	c, err := t.api.AddComment(ctx, rt, id, parentID, content)
	if err != nil {
		return nil, t.fail(err)
	}
	t.SetErr("")
	t.Insert(parentID, c)
	return c, nil
}

// Edit changes a comment's content in place; its replies are kept.
func (t *CommentThread) Edit(ctx context.Context, commentID uint, content string) error {
	c, err := t.api.EditComment(ctx, commentID, content)
	if err != nil {
		return t.fail(err)
	}
	t.SetErr("")
	t.Replace(commentID, c)
	return nil
}

// Delete removes a comment and its replies.
func (t *CommentThread) Delete(ctx context.Context, commentID uint) error {
	if _, err := t.api.DeleteComment(ctx, commentID); err != nil {
		return t.fail(err)
	}
	t.SetErr("")
	t.Remove(commentID)
	return nil
}

// ToggleLike flips the caller's like and stores the server's count.
func (t *CommentThread) ToggleLike(ctx context.Context, commentID uint) error {
	s, err := t.api.ToggleCommentLike(ctx, commentID)
	if err != nil {
		return t.fail(err)
	}
	t.SetErr("")
	t.SetLikeState(commentID, s.Liked, s.LikeCount)
	return nil
}

// Flag reports a comment and marks it flagged locally.
func (t *CommentThread) Flag(ctx context.Context, commentID uint, reason string) error {
	rt, id := t.Resource()
	if err := t.api.FlagComment(ctx, rt, id, commentID, reason); err != nil {
		return t.fail(err)
	}
	t.SetErr("")
	if c, ok := t.Find(commentID); ok {
		c.Flagged = true
		c.Children = nil
		t.Replace(commentID, &c)
	}
	return nil
}
