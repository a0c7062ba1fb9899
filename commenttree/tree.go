// Package commenttree holds the nested comment representation shared by the
// API server and the client, and the point-mutation helpers that edit a
// loaded tree in place.
package commenttree

import "time"

// Author is the public view of a comment's writer.
type Author struct {
	ID        uint   `json:"id"`
	Username  string `json:"username"`
	AvatarURL string `json:"avatar_url,omitempty"`
}

// Comment is one node of a comment tree. A nil Children slice means the
// children were not supplied; an empty slice means the node has none.
type Comment struct {
	ID           uint       `json:"id"`
	ResourceType string     `json:"resource_type"`
	ResourceID   uint       `json:"resource_id"`
	ParentID     *uint      `json:"parent_id"`
	Author       Author     `json:"author"`
	Content      string     `json:"content"`
	LikeCount    int64      `json:"like_count"`
	Liked        bool       `json:"liked"`
	Flagged      bool       `json:"flagged"`
	Deleted      bool       `json:"deleted"`
	CreatedAt    time.Time  `json:"created_at"`
	EditedAt     *time.Time `json:"edited_at,omitempty"`
	Children     []*Comment `json:"children"`
}

// Tree is an ordered sequence of top-level comments.
type Tree []*Comment

// locate runs a pre-order depth-first search and returns the sequence holding
// the first node with the given id together with its index.
func locate(seq *[]*Comment, id uint) (*[]*Comment, int) {
	for i, c := range *seq {
		if c.ID == id {
			return seq, i
		}
		if s, j := locate(&c.Children, id); s != nil {
			return s, j
		}
	}
	return nil, -1
}

// Find returns the first node with id in pre-order, or nil.
func (t Tree) Find(id uint) *Comment {
	seq := []*Comment(t)
	s, i := locate(&seq, id)
	if s == nil {
		return nil
	}
	return (*s)[i]
}

// Insert prepends c to the top level when parentID is nil, otherwise to the
// children of the parent. A missing parent leaves the tree untouched.
func (t *Tree) Insert(parentID *uint, c *Comment) bool {
	if c == nil {
		return false
	}
	if parentID == nil {
		*t = append(Tree{c}, *t...)
		return true
	}
	parent := t.Find(*parentID)
	if parent == nil {
		return false
	}
	parent.Children = append([]*Comment{c}, parent.Children...)
	return true
}

// Replace overwrites the node with id. The existing children are kept when
// the replacement carries none.
func (t *Tree) Replace(id uint, c *Comment) bool {
	if c == nil {
		return false
	}
	seq := []*Comment(*t)
	s, i := locate(&seq, id)
	if s == nil {
		return false
	}
	next := *c
	if next.Children == nil {
		next.Children = (*s)[i].Children
	}
	(*s)[i] = &next
	*t = Tree(seq)
	return true
}

// Remove splices the node with id and its whole subtree out of the tree.
func (t *Tree) Remove(id uint) bool {
	seq := []*Comment(*t)
	s, i := locate(&seq, id)
	if s == nil {
		return false
	}
	*s = append((*s)[:i:i], (*s)[i+1:]...)
	*t = Tree(seq)
	return true
}

// SetLikeState overwrites the liked flag and like count of the node with id.
func (t Tree) SetLikeState(id uint, liked bool, likeCount int64) bool {
	c := t.Find(id)
	if c == nil {
		return false
	}
	c.Liked = liked
	c.LikeCount = likeCount
	return true
}

// Walk visits every node in pre-order with its depth. Returning false stops the walk.
func (t Tree) Walk(fn func(c *Comment, depth int) bool) {
	walk([]*Comment(t), 0, fn)
}

func walk(seq []*Comment, depth int, fn func(*Comment, int) bool) bool {
	for _, c := range seq {
		if !fn(c, depth) {
			return false
		}
		if !walk(c.Children, depth+1, fn) {
			return false
		}
	}
	return true
}

// Count returns the total number of nodes.
func (t Tree) Count() int {
	n := 0
	t.Walk(func(*Comment, int) bool {
		n++
		return true
	})
	return n
}

// Clone returns a deep copy so callers can read a tree without sharing nodes.
func (t Tree) Clone() Tree {
	return Tree(cloneSeq(t))
}

func cloneSeq(seq []*Comment) []*Comment {
	if seq == nil {
		return nil
	}
	out := make([]*Comment, len(seq))
	for i, c := range seq {
		cp := *c
		cp.Children = cloneSeq(c.Children)
		out[i] = &cp
	}
	return out
}

// Build nests a flat list into a tree. Roots keep the order they have in
// flat and replies are ordered as they appear in flat too. Nodes whose parent
// is not in flat are dropped along with their descendants.
func Build(flat []*Comment) Tree {
	byID := make(map[uint]*Comment, len(flat))
	for _, c := range flat {
		if c.Children == nil {
			c.Children = []*Comment{}
		}
		byID[c.ID] = c
	}
	roots := Tree{}
	for _, c := range flat {
		if c.ParentID == nil {
			roots = append(roots, c)
			continue
		}
		if p, ok := byID[*c.ParentID]; ok && p != c {
			p.Children = append(p.Children, c)
		}
	}
	return roots
}
