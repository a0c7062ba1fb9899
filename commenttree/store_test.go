package commenttree

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func pageOf(items ...*Comment) *Page {
	return &Page{Items: items, Pagination: Pagination{Page: 1, PageSize: 10, Total: int64(len(items)), TotalPages: 1}}
}

func TestStore_LoadReplacesTree(t *testing.T) {
	calls := 0
	s := NewStore(LoaderFunc(func(_ context.Context, rt string, id uint, page, size int) (*Page, error) {
		calls++
		if page == 1 {
			return pageOf(node(1), node(2)), nil
		}
		return pageOf(node(3)), nil
	}))

	require.NoError(t, s.Load(context.Background(), "post", 1, 1, 10))
	assert.Equal(t, 2, s.Count())

	require.NoError(t, s.Load(context.Background(), "post", 1, 2, 10))
	assert.Equal(t, []uint{3}, ids(s.Tree()))
	assert.Equal(t, 2, calls)
	assert.Empty(t, s.Err())
}

func TestStore_LoadErrorKeepsTree(t *testing.T) {
	fail := false
	s := NewStore(LoaderFunc(func(context.Context, string, uint, int, int) (*Page, error) {
		if fail {
			return nil, errors.New("request failed with status 500")
		}
		return pageOf(node(1, node(2))), nil
	}))
	require.NoError(t, s.Load(context.Background(), "event", 4, 1, 10))

	fail = true
	err := s.Load(context.Background(), "event", 4, 1, 10)
	assert.Error(t, err)
	assert.Equal(t, "request failed with status 500", s.Err())
	assert.Equal(t, []uint{1, 2}, ids(s.Tree()))
	assert.False(t, s.Loading())
}

func TestStore_NilPageLoadsEmpty(t *testing.T) {
	s := NewStore(LoaderFunc(func(context.Context, string, uint, int, int) (*Page, error) {
		return nil, nil
	}))
	assert.NotPanics(t, func() {
		require.NoError(t, s.Load(context.Background(), "post", 1, 1, 10))
	})
	assert.NotNil(t, s.Tree())
	assert.Zero(t, s.Count())
	assert.Equal(t, Pagination{}, s.Pagination())
	assert.Empty(t, s.Err())
}

func TestStore_StaleFailureLeavesNewResourceAlone(t *testing.T) {
	started := make(chan struct{})
	release := make(chan struct{})
	s := NewStore(LoaderFunc(func(_ context.Context, rt string, id uint, _, _ int) (*Page, error) {
		if id == 1 {
			close(started)
			<-release
			return nil, errors.New("request failed with status 502")
		}
		return pageOf(node(7)), nil
	}))

	done := make(chan error, 1)
	go func() { done <- s.Load(context.Background(), "post", 1, 1, 10) }()
	<-started
	require.NoError(t, s.Load(context.Background(), "post", 2, 1, 10))
	close(release)
	assert.Error(t, <-done)

	rt, id := s.Resource()
	assert.Equal(t, "post", rt)
	assert.Equal(t, uint(2), id)
	assert.Empty(t, s.Err())
	assert.Equal(t, []uint{7}, ids(s.Tree()))
}

func TestStore_ResourceChangeClears(t *testing.T) {
	fail := false
	s := NewStore(LoaderFunc(func(context.Context, string, uint, int, int) (*Page, error) {
		if fail {
			return nil, errors.New("boom")
		}
		return pageOf(node(1)), nil
	}))
	require.NoError(t, s.Load(context.Background(), "post", 1, 1, 10))

	fail = true
	_ = s.Load(context.Background(), "post", 2, 1, 10)
	assert.Empty(t, s.Tree())
	rt, id := s.Resource()
	assert.Equal(t, "post", rt)
	assert.Equal(t, uint(2), id)
}

func TestStore_PointMutations(t *testing.T) {
	s := NewStore(LoaderFunc(func(context.Context, string, uint, int, int) (*Page, error) {
		return pageOf(node(1, node(2)), node(3)), nil
	}))
	require.NoError(t, s.Load(context.Background(), "post", 1, 1, 10))

	assert.True(t, s.Insert(nil, node(10)))
	assert.Equal(t, int64(3), s.Pagination().Total)
	assert.True(t, s.Insert(uintPtr(2), node(11)))
	assert.False(t, s.Insert(uintPtr(99), node(12)))

	assert.True(t, s.Replace(2, &Comment{ID: 2, Content: "new"}))
	got, ok := s.Find(2)
	require.True(t, ok)
	assert.Equal(t, "new", got.Content)
	require.Len(t, got.Children, 1)
	assert.Equal(t, uint(11), got.Children[0].ID)

	assert.True(t, s.SetLikeState(11, true, 1))
	got, _ = s.Find(11)
	assert.True(t, got.Liked)

	assert.True(t, s.Remove(1))
	assert.Equal(t, []uint{10, 3}, ids(s.Tree()))
	assert.Equal(t, int64(2), s.Pagination().Total)
}

func TestStore_TreeIsACopy(t *testing.T) {
	s := NewStore(LoaderFunc(func(context.Context, string, uint, int, int) (*Page, error) {
		return pageOf(node(1)), nil
	}))
	require.NoError(t, s.Load(context.Background(), "post", 1, 1, 10))
	tr := s.Tree()
	tr[0].Content = "mutated"
	got, _ := s.Find(1)
	assert.Equal(t, "c", got.Content)
}
