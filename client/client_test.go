package client

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/communityconnect/server/commenttree"
	"github.com/communityconnect/server/internal/testenv"
	"github.com/communityconnect/server/models"
)

func TestAPIError_FromEnvelope(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte(`{"code":40401,"message":"post not found"}`))
	}))
	defer srv.Close()

	_, _, err := New(srv.URL).GetPost(context.Background(), 9)
	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, http.StatusNotFound, apiErr.Status)
	assert.Equal(t, 40401, apiErr.Code)
	assert.Equal(t, "request failed with status 404: post not found", err.Error())
}

func TestAPIError_NonJSONBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusBadGateway)
	}))
	defer srv.Close()

	_, err := New(srv.URL).Me(context.Background())
	assert.EqualError(t, err, "request failed with status 502")
}

func TestOptions(t *testing.T) {
	var auth atomic.Value
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		auth.Store(r.Header.Get("Authorization"))
		_, _ = w.Write([]byte(`{"code":0,"message":"success","data":{"id":1,"username":"x"}}`))
	}))
	defer srv.Close()

	hc := &http.Client{}
	c := New(srv.URL+"/", WithHTTPClient(hc), WithToken("abc"), WithTimeout(3*time.Second))
	assert.Same(t, hc, c.http)
	assert.Equal(t, 3*time.Second, hc.Timeout)

	u, err := c.Me(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "x", u.Username)
	assert.Equal(t, "Bearer abc", auth.Load())
}

func TestOptions_NilHTTPClientKeepsDefault(t *testing.T) {
	var c *Client
	assert.NotPanics(t, func() { c = New("http://localhost:8080", WithHTTPClient(nil), WithTimeout(time.Second)) })
	require.NotNil(t, c.http)
	assert.Equal(t, time.Second, c.http.Timeout)
}

func TestValidationShortCircuits(t *testing.T) {
	var hits int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
	}))
	defer srv.Close()

	_, err := New(srv.URL).CreatePost(context.Background(), ListingInput{Description: "d"})
	var verr *ValidationError
	require.True(t, errors.As(err, &verr))
	assert.Equal(t, "title", verr.Field)
	assert.Zero(t, atomic.LoadInt32(&hits))
}

func TestValidateListing(t *testing.T) {
	start := time.Now().Add(time.Hour)
	before := start.Add(-time.Minute)
	ok := ListingInput{Title: "t", Description: "d", Category: "food", Details: `{"a":1}`}
	cases := []struct {
		name  string
		rt    string
		in    ListingInput
		field string
	}{
		{"valid", models.ResourcePost, ok, ""},
		{"no description", models.ResourcePost, ListingInput{Title: "t"}, "description"},
		{"bad category", models.ResourcePost, ListingInput{Title: "t", Description: "d", Category: "meetup"}, "category"},
		{"details not object", models.ResourcePost, ListingInput{Title: "t", Description: "d", Details: "[1]"}, "details"},
		{"too many images", models.ResourcePost, ListingInput{Title: "t", Description: "d", ImageURLs: make([]string, 6)}, "image_urls"},
		{"event without start", models.ResourceEvent, ListingInput{Title: "t", Description: "d"}, "starts_at"},
		{"event ends first", models.ResourceEvent, ListingInput{Title: "t", Description: "d", StartsAt: &start, EndsAt: &before}, "ends_at"},
		{"event valid", models.ResourceEvent, ListingInput{Title: "t", Description: "d", Category: "meetup", StartsAt: &start}, ""},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := ValidateListing(tc.rt, tc.in)
			if tc.field == "" {
				assert.NoError(t, err)
				return
			}
			var verr *ValidationError
			require.True(t, errors.As(err, &verr))
			assert.Equal(t, tc.field, verr.Field)
		})
	}
}

func TestClientAgainstServer(t *testing.T) {
	env := testenv.New(t)
	ctx := context.Background()
	_, adminToken := env.User(t, "boss", models.RoleAdmin)

	alice := New(env.Server.URL)
	s, err := alice.Register(ctx, Credentials{Username: "alice", Password: "secret1"})
	require.NoError(t, err)
	assert.Equal(t, s.Token, alice.Token())

	post, err := alice.CreatePost(ctx, ListingInput{Title: "Soup night", Description: "Every Friday", Category: "food"})
	require.NoError(t, err)
	assert.Equal(t, models.StatusPending, post.Status)

	admin := New(env.Server.URL, WithToken(adminToken))
	pending, err := admin.PendingPosts(ctx, 1, 10)
	require.NoError(t, err)
	require.Len(t, pending.Items, 1)
	require.NoError(t, admin.Moderate(ctx, models.ResourcePost, post.ID, "approve", ""))

	page, err := New(env.Server.URL).ListPosts(ctx, ListOptions{Category: "food"})
	require.NoError(t, err)
	require.Len(t, page.Items, 1)
	assert.Equal(t, "Soup night", page.Items[0].Title)

	state, err := alice.ToggleListingLike(ctx, models.ResourcePost, post.ID)
	require.NoError(t, err)
	assert.Equal(t, LikeState{Liked: true, LikeCount: 1}, state)

	mine, err := alice.MyPosts(ctx, 1, 10)
	require.NoError(t, err)
	assert.Len(t, mine.Items, 1)

	csv, err := admin.Export(ctx, "posts", "csv")
	require.NoError(t, err)
	assert.Contains(t, string(csv), "Soup night")

	require.NoError(t, alice.Logout(ctx))
	assert.Empty(t, alice.Token())
}

func TestCommentThread(t *testing.T) {
	env := testenv.New(t)
	ctx := context.Background()
	owner, ownerToken := env.User(t, "owner", models.RoleMember)
	_, otherToken := env.User(t, "other", models.RoleMember)
	post := env.Post(t, owner.ID, models.StatusPublished)

	thread := NewCommentThread(New(env.Server.URL, WithToken(ownerToken)))
	require.NoError(t, thread.Load(ctx, models.ResourcePost, post.ID, 1, 10))
	assert.Zero(t, thread.Count())

	root, err := thread.Add(ctx, nil, "root")
	require.NoError(t, err)
	reply, err := thread.Add(ctx, &root.ID, "reply")
	require.NoError(t, err)
	assert.Equal(t, 2, thread.Count())
	assert.Equal(t, int64(1), thread.Pagination().Total)

	require.NoError(t, thread.Edit(ctx, root.ID, "root edited"))
	got, ok := thread.Find(root.ID)
	require.True(t, ok)
	assert.Equal(t, "root edited", got.Content)
	require.Len(t, got.Children, 1)

	// the local tree matches what the server returns
	fresh := NewCommentThread(New(env.Server.URL))
	require.NoError(t, fresh.Load(ctx, models.ResourcePost, post.ID, 1, 10))
	assert.Equal(t, ids(thread), ids(fresh))

	other := NewCommentThread(New(env.Server.URL, WithToken(otherToken)))
	require.NoError(t, other.Load(ctx, models.ResourcePost, post.ID, 1, 10))
	require.NoError(t, other.ToggleLike(ctx, reply.ID))
	got, _ = other.Find(reply.ID)
	assert.True(t, got.Liked)
	assert.Equal(t, int64(1), got.LikeCount)

	// a failing request keeps the tree and records the error
	before := thread.Tree()
	err = thread.Flag(ctx, root.ID, "mine")
	require.Error(t, err)
	assert.Equal(t, err.Error(), thread.Err())
	assert.Equal(t, before, thread.Tree())

	require.NoError(t, other.Flag(ctx, root.ID, "spam"))
	got, _ = other.Find(root.ID)
	assert.True(t, got.Flagged)
	assert.Len(t, got.Children, 1)

	require.NoError(t, thread.Delete(ctx, root.ID))
	assert.Zero(t, thread.Count())
	assert.Empty(t, thread.Err())
}

func ids(t *CommentThread) []uint {
	var out []uint
	t.Tree().Walk(func(c *commenttree.Comment, _ int) bool {
		out = append(out, c.ID)
		return true
	})
	return out
}
