package commenttree

import (
	"context"
	"sync"
)

// Pagination describes which page of top-level comments is loaded.
type Pagination struct {
	Page       int   `json:"page"`
	PageSize   int   `json:"page_size"`
	Total      int64 `json:"total"`
	TotalPages int   `json:"total_pages"`
}

// Page is one fetched page of a resource's comment tree.
type Page struct {
	Items      Tree       `json:"items"`
	Pagination Pagination `json:"pagination"`
}

// Loader fetches a page of comments for a resource.
type Loader interface {
	LoadComments(ctx context.Context, resourceType string, resourceID uint, page, pageSize int) (*Page, error)
}

// LoaderFunc adapts a function to Loader.
type LoaderFunc func(ctx context.Context, resourceType string, resourceID uint, page, pageSize int) (*Page, error)

// LoadComments calls f.
func (f LoaderFunc) LoadComments(ctx context.Context, resourceType string, resourceID uint, page, pageSize int) (*Page, error) {
	return f(ctx, resourceType, resourceID, page, pageSize)
}

// Store holds the comment tree of exactly one resource at a time.
type Store struct {
	loader Loader

	mu           sync.RWMutex
	resourceType string
	resourceID   uint
	tree         Tree
	pagination   Pagination
	loading      bool
	err          string
}

// NewStore creates an empty store backed by loader.
func NewStore(loader Loader) *Store {
	return &Store{loader: loader}
}

// Load fetches the requested page and replaces the whole tree with it.
// Switching to another resource clears the tree before the fetch. On error
// the tree is left as it was and the message is kept for Err.
func (s *Store) Load(ctx context.Context, resourceType string, resourceID uint, page, pageSize int) error {
	s.mu.Lock()
	if s.resourceType != resourceType || s.resourceID != resourceID {
		s.resourceType = resourceType
		s.resourceID = resourceID
		s.tree = nil
		s.pagination = Pagination{}
	}
	s.loading = true
	s.err = ""
	s.mu.Unlock()

	p, err := s.loader.LoadComments(ctx, resourceType, resourceID, page, pageSize)

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.resourceType != resourceType || s.resourceID != resourceID {
		// another resource was selected while this request was in flight
		return err
	}
	s.loading = false
	if err != nil {
		s.err = err.Error()
		return err
	}
	if p == nil {
		p = &Page{}
	}
	s.tree = p.Items
	if s.tree == nil {
		s.tree = Tree{}
	}
	s.pagination = p.Pagination
	return nil
}

// Resource returns the resource the store currently holds.
func (s *Store) Resource() (string, uint) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.resourceType, s.resourceID
}

// Tree returns a deep copy of the loaded tree.
func (s *Store) Tree() Tree {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.tree.Clone()
}

// Pagination returns the metadata of the loaded page.
func (s *Store) Pagination() Pagination {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.pagination
}

// Loading reports whether a Load is in flight.
func (s *Store) Loading() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.loading
}

// Err returns the message of the last failed operation, or "".
func (s *Store) Err() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.err
}

// SetErr records a failure message without touching the tree.
func (s *Store) SetErr(msg string) {
	s.mu.Lock()
	s.err = msg
	s.mu.Unlock()
}

// Insert adds c under parentID, or at the top when parentID is nil.
func (s *Store) Insert(parentID *uint, c *Comment) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	ok := s.tree.Insert(parentID, c)
	if ok && parentID == nil {
		s.pagination.Total++
	}
	return ok
}

// Replace overwrites the comment with id, keeping its children when c has none.
func (s *Store) Replace(id uint, c *Comment) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.tree.Replace(id, c)
}

// Remove deletes the comment with id and its replies.
func (s *Store) Remove(id uint) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	top := false
	for _, c := range s.tree {
		if c.ID == id {
			top = true
			break
		}
	}
	ok := s.tree.Remove(id)
	if ok && top && s.pagination.Total > 0 {
		s.pagination.Total--
	}
	return ok
}

// SetLikeState overwrites the like fields of the comment with id.
func (s *Store) SetLikeState(id uint, liked bool, likeCount int64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.tree.SetLikeState(id, liked, likeCount)
}

// Find returns a copy of the comment with id.
func (s *Store) Find(id uint) (Comment, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c := s.tree.Find(id)
	if c == nil {
		return Comment{}, false
	}
	cp := *c
	cp.Children = cloneSeq(c.Children)
	return cp, true
}

// Count returns the number of loaded comments, replies included.
func (s *Store) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.tree.Count()
}
