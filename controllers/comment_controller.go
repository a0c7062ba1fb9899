package controllers

import (
	"net/http"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/communityconnect/server/commenttree"
	"github.com/communityconnect/server/models"
	"github.com/communityconnect/server/utils"
)

const (
	maxCommentLen  = 5000
	maxFlagReason  = 500
	defaultFlagMsg = "inappropriate"
)

// CommentController manages threaded comments on posts and events.
type CommentController struct {
	db  *gorm.DB
	hub *utils.CommentHub
}

// NewCommentController creates a CommentController. hub may be nil when live updates are off.
func NewCommentController(db *gorm.DB, hub *utils.CommentHub) *CommentController {
	return &CommentController{db: db, hub: hub}
}

func toNode(m *models.Comment, liked bool) *commenttree.Comment {
	return &commenttree.Comment{
		ID:           m.ID,
		ResourceType: m.ResourceType,
		ResourceID:   m.ResourceID,
		ParentID:     m.ParentID,
		Author: commenttree.Author{
			ID:        m.UserID,
			Username:  m.User.Username,
			AvatarURL: m.User.AvatarURL,
		},
		Content:   m.Content,
		LikeCount: m.LikeCount,
		Liked:     liked,
		Flagged:   m.Flagged,
		Deleted:   m.Deleted,
		CreatedAt: m.CreatedAt,
		EditedAt:  m.EditedAt,
	}
}

type resourceRow struct {
	UserID uint
	Status models.Status
}

// resolveResource reads the path's resource and checks the viewer may see it.
// It writes the error response itself and returns false on failure.
func (cc *CommentController) resolveResource(ctx *gin.Context) (string, uint, bool) {
	rt, ok := resourceTypeParam(ctx.Param("resourceType"))
	if !ok {
		utils.Error(ctx, http.StatusBadRequest, 40040, "invalid resource type")
		return "", 0, false
	}
	rid, ok := parseID(ctx, "resourceId")
	if !ok {
		utils.Error(ctx, http.StatusBadRequest, 40041, "invalid resource id")
		return "", 0, false
	}
	var row resourceRow
	if err := cc.db.Table(models.ListingTable(rt)).Select("user_id", "status").
		Where("id = ?", rid).Limit(1).Scan(&row).Error; err != nil {
		internalError(ctx, 50040, "failed to load resource", err)
		return "", 0, false
	}
	uid, _ := getUserID(ctx)
	if row.UserID == 0 || (row.Status != models.StatusPublished && !isAdmin(ctx) && uid != row.UserID) {
		utils.Error(ctx, http.StatusNotFound, 40440, rt+" not found")
		return "", 0, false
	}
	return rt, rid, true
}

// List returns one page of top-level comments, newest first, each with its
// replies nested. Flagged and removed comments hide their whole subtree from
// everyone but admins.
func (cc *CommentController) List(ctx *gin.Context) {
	rt, rid, ok := cc.resolveResource(ctx)
	if !ok {
		return
	}
	page, pageSize := parsePagination(ctx.Query("page"), ctx.Query("page_size"))
	admin := isAdmin(ctx)
	scope := func() *gorm.DB {
		q := cc.db.Model(&models.Comment{}).Where("resource_type = ? AND resource_id = ?", rt, rid)
		if !admin {
			q = q.Where("flagged = ? AND deleted = ?", false, false)
		}
		return q
	}

	var total int64
	if err := scope().Where("parent_id IS NULL").Count(&total).Error; err != nil {
		internalError(ctx, 50041, "failed to count comments", err)
		return
	}
	var flat []models.Comment
	if err := scope().Where("parent_id IS NULL").Preload("User", authorPreload).
		Order("created_at DESC, id DESC").
		Offset((page - 1) * pageSize).Limit(pageSize).
		Find(&flat).Error; err != nil {
		internalError(ctx, 50042, "failed to list comments", err)
		return
	}

	frontier := make([]uint, 0, len(flat))
	for _, c := range flat {
		frontier = append(frontier, c.ID)
	}
	// parents always predate their replies, so the walk ends at the deepest reply
	for len(frontier) > 0 {
		var replies []models.Comment
		if err := scope().Where("parent_id IN ?", frontier).Preload("User", authorPreload).
			Order("created_at DESC, id DESC").Find(&replies).Error; err != nil {
			internalError(ctx, 50043, "failed to load replies", err)
			return
		}
		frontier = frontier[:0]
		for _, r := range replies {
			frontier = append(frontier, r.ID)
		}
		flat = append(flat, replies...)
	}

	ids := make([]uint, 0, len(flat))
	for _, c := range flat {
		ids = append(ids, c.ID)
	}
	uid, _ := getUserID(ctx)
	liked := likedSet(cc.db, uid, models.ResourceComment, ids)

	nodes := make([]*commenttree.Comment, 0, len(flat))
	for i := range flat {
		nodes = append(nodes, toNode(&flat[i], liked[flat[i].ID]))
	}
	p := utils.NewPagination(page, pageSize, total)
	utils.Success(ctx, commenttree.Page{
		Items: commenttree.Build(nodes),
		Pagination: commenttree.Pagination{
			Page:       p.Page,
			PageSize:   p.PageSize,
			Total:      p.Total,
			TotalPages: p.TotalPages,
		},
	})
}

// PostDispatch serves POST /comments/:resourceType/:resourceId. The like route
// POST /comments/:commentId/like shares its wildcard segments and lands here too.
func (cc *CommentController) PostDispatch(ctx *gin.Context) {
	if ctx.Param("resourceId") == "like" {
		ctx.Params = append(ctx.Params, gin.Param{Key: "commentId", Value: ctx.Param("resourceType")})
		cc.ToggleLike(ctx)
		return
	}
	cc.Create(ctx)
}

func cleanContent(raw string) (string, int, string) {
	content := utils.Sanitize(raw)
	if content == "" {
		return "", 40043, "content cannot be empty"
	}
	if utf8.RuneCountInString(content) > maxCommentLen {
		return "", 40044, "content is too long"
	}
	return content, 0, ""
}

// Create adds a comment or a reply. A reply's parent must belong to the same resource.
func (cc *CommentController) Create(ctx *gin.Context) {
	userID, ok := getUserID(ctx)
	if !ok {
		utils.Error(ctx, http.StatusUnauthorized, 40140, "unauthorized")
		return
	}
	rt, rid, ok := cc.resolveResource(ctx)
	if !ok {
		return
	}
	var req struct {
		Content  string `json:"content"`
		ParentID *uint  `json:"parent_id"`
	}
	if err := ctx.ShouldBindJSON(&req); err != nil {
		utils.Error(ctx, http.StatusBadRequest, 40042, "invalid request payload")
		return
	}
	content, code, msg := cleanContent(req.Content)
	if code != 0 {
		utils.Error(ctx, http.StatusBadRequest, code, msg)
		return
	}
	if req.ParentID != nil && *req.ParentID == 0 {
		req.ParentID = nil
	}
	if req.ParentID != nil {
		var parent models.Comment
		if err := cc.db.Select("id", "resource_type", "resource_id", "deleted").First(&parent, *req.ParentID).Error; err != nil {
			if isNotFound(err) {
				utils.Error(ctx, http.StatusNotFound, 40441, "parent comment not found")
				return
			}
			internalError(ctx, 50044, "failed to load parent comment", err)
			return
		}
		if parent.ResourceType != rt || parent.ResourceID != rid {
			utils.Error(ctx, http.StatusBadRequest, 40045, "parent comment belongs to a different resource")
			return
		}
		if parent.Deleted {
			utils.Error(ctx, http.StatusBadRequest, 40046, "cannot reply to a removed comment")
			return
		}
	}

	cmt := models.Comment{
		ResourceType: rt,
		ResourceID:   rid,
		UserID:       userID,
		ParentID:     req.ParentID,
		Content:      content,
	}
	err := cc.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Omit("User").Create(&cmt).Error; err != nil {
			return err
		}
		return tx.Table(models.ListingTable(rt)).Where("id = ?", rid).
			UpdateColumn("comment_count", gorm.Expr("comment_count + ?", 1)).Error
	})
	if err != nil {
		internalError(ctx, 50045, "failed to create comment", err)
		return
	}
	if err := cc.db.Preload("User", authorPreload).First(&cmt, cmt.ID).Error; err != nil {
		internalError(ctx, 50046, "failed to load comment", err)
		return
	}
	utils.InvalidateListing(rt, rid)

	node := toNode(&cmt, false)
	node.Children = []*commenttree.Comment{}
	cc.hub.Broadcast(rt, rid, utils.CommentEvent{Type: utils.CommentCreated, CommentID: cmt.ID, ParentID: cmt.ParentID, Comment: node})
	utils.Created(ctx, gin.H{"comment": node})
}

func (cc *CommentController) loadComment(ctx *gin.Context) (*models.Comment, bool) {
	id, ok := parseID(ctx, "commentId")
	if !ok {
		utils.Error(ctx, http.StatusBadRequest, 40047, "invalid comment id")
		return nil, false
	}
	var cmt models.Comment
	if err := cc.db.Preload("User", authorPreload).First(&cmt, id).Error; err != nil {
		if isNotFound(err) {
			utils.Error(ctx, http.StatusNotFound, 40442, "comment not found")
			return nil, false
		}
		internalError(ctx, 50047, "failed to load comment", err)
		return nil, false
	}
	return &cmt, true
}

// Update lets the author rewrite their comment and marks it edited.
func (cc *CommentController) Update(ctx *gin.Context) {
	userID, ok := getUserID(ctx)
	if !ok {
		utils.Error(ctx, http.StatusUnauthorized, 40141, "unauthorized")
		return
	}
	var req struct {
		Content string `json:"content"`
	}
	if err := ctx.ShouldBindJSON(&req); err != nil {
		utils.Error(ctx, http.StatusBadRequest, 40042, "invalid request payload")
		return
	}
	content, code, msg := cleanContent(req.Content)
	if code != 0 {
		utils.Error(ctx, http.StatusBadRequest, code, msg)
		return
	}
	cmt, ok := cc.loadComment(ctx)
	if !ok {
		return
	}
	if cmt.Deleted {
		utils.Error(ctx, http.StatusNotFound, 40442, "comment not found")
		return
	}
	if cmt.UserID != userID {
		utils.Error(ctx, http.StatusForbidden, 40340, "you can only edit your own comment")
		return
	}
	now := time.Now()
	if err := cc.db.Model(&models.Comment{}).Where("id = ?", cmt.ID).
		Updates(map[string]interface{}{"content": content, "edited_at": now, "updated_at": now}).Error; err != nil {
		internalError(ctx, 50048, "failed to update comment", err)
		return
	}
	cmt.Content = content
	cmt.EditedAt = &now

	// children stay nil: the caller keeps the replies it already has
	node := toNode(cmt, likedSet(cc.db, userID, models.ResourceComment, []uint{cmt.ID})[cmt.ID])
	cc.hub.Broadcast(cmt.ResourceType, cmt.ResourceID, utils.CommentEvent{Type: utils.CommentUpdated, CommentID: cmt.ID, ParentID: cmt.ParentID, Comment: node})
	utils.Success(ctx, gin.H{"comment": node})
}

// subtreeIDs returns root and every descendant id, breadth first.
func subtreeIDs(tx *gorm.DB, root uint) ([]uint, error) {
	ids := []uint{root}
	frontier := []uint{root}
	for len(frontier) > 0 {
		var kids []uint
		if err := tx.Model(&models.Comment{}).Where("parent_id IN ?", frontier).Pluck("id", &kids).Error; err != nil {
			return nil, err
		}
		ids = append(ids, kids...)
		frontier = kids
	}
	return ids, nil
}

// Delete removes a comment and all of its replies. Authors and admins may delete.
func (cc *CommentController) Delete(ctx *gin.Context) {
	userID, ok := getUserID(ctx)
	if !ok {
		utils.Error(ctx, http.StatusUnauthorized, 40142, "unauthorized")
		return
	}
	cmt, ok := cc.loadComment(ctx)
	if !ok {
		return
	}
	if cmt.UserID != userID && !isAdmin(ctx) {
		utils.Error(ctx, http.StatusForbidden, 40341, "you can only delete your own comment")
		return
	}
	var removed int
	err := cc.db.Transaction(func(tx *gorm.DB) error {
		ids, err := subtreeIDs(tx, cmt.ID)
		if err != nil {
			return err
		}
		if err := tx.Where("target_type = ? AND target_id IN ?", models.ResourceComment, ids).
			Delete(&models.Like{}).Error; err != nil {
			return err
		}
		res := tx.Where("id IN ?", ids).Delete(&models.Comment{})
		if res.Error != nil {
			return res.Error
		}
		removed = int(res.RowsAffected)
		return tx.Table(models.ListingTable(cmt.ResourceType)).Where("id = ?", cmt.ResourceID).
			UpdateColumn("comment_count", decrementExpr("comment_count", res.RowsAffected)).Error
	})
	if err != nil {
		internalError(ctx, 50049, "failed to delete comment", err)
		return
	}
	utils.InvalidateListing(cmt.ResourceType, cmt.ResourceID)
	cc.hub.Broadcast(cmt.ResourceType, cmt.ResourceID, utils.CommentEvent{Type: utils.CommentDeleted, CommentID: cmt.ID, ParentID: cmt.ParentID})
	utils.Success(ctx, gin.H{"comment_id": cmt.ID, "deleted": removed})
}

// ToggleLike likes or unlikes a comment for the caller.
func (cc *CommentController) ToggleLike(ctx *gin.Context) {
	userID, ok := getUserID(ctx)
	if !ok {
		utils.Error(ctx, http.StatusUnauthorized, 40143, "unauthorized")
		return
	}
	cmt, ok := cc.loadComment(ctx)
	if !ok {
		return
	}
	if cmt.Deleted {
		utils.Error(ctx, http.StatusNotFound, 40442, "comment not found")
		return
	}
	liked, count, err := toggleLike(cc.db, userID, models.ResourceComment, cmt.ID, "comments")
	if err != nil {
		internalError(ctx, 50050, "failed to toggle like", err)
		return
	}
	cc.hub.Broadcast(cmt.ResourceType, cmt.ResourceID, utils.CommentEvent{Type: utils.CommentLiked, CommentID: cmt.ID, ParentID: cmt.ParentID, LikeCount: count})
	utils.Success(ctx, gin.H{"liked": liked, "like_count": count})
}

// Flag reports a comment for admin review. Authors cannot flag their own comment.
func (cc *CommentController) Flag(ctx *gin.Context) {
	userID, ok := getUserID(ctx)
	if !ok {
		utils.Error(ctx, http.StatusUnauthorized, 40144, "unauthorized")
		return
	}
	rt, rid, ok := cc.resolveResource(ctx)
	if !ok {
		return
	}
	var req struct {
		Reason string `json:"reason"`
	}
	_ = ctx.ShouldBindJSON(&req)
	reason := utils.SanitizePlain(req.Reason)
	if reason == "" {
		reason = defaultFlagMsg
	}
	if utf8.RuneCountInString(reason) > maxFlagReason {
		reason = string([]rune(reason)[:maxFlagReason])
	}

	cmt, ok := cc.loadComment(ctx)
	if !ok {
		return
	}
	if cmt.ResourceType != rt || cmt.ResourceID != rid || cmt.Deleted {
		utils.Error(ctx, http.StatusNotFound, 40442, "comment not found")
		return
	}
	if cmt.UserID == userID {
		utils.Error(ctx, http.StatusForbidden, 40342, "you cannot flag your own comment")
		return
	}
	if cmt.Flagged {
		utils.Error(ctx, http.StatusConflict, 40940, "comment already flagged")
		return
	}
	if err := cc.db.Model(&models.Comment{}).Where("id = ?", cmt.ID).Updates(map[string]interface{}{
		"flagged":     true,
		"flag_reason": strings.TrimSpace(reason),
		"flagged_by":  userID,
	}).Error; err != nil {
		internalError(ctx, 50051, "failed to flag comment", err)
		return
	}
	utils.Success(ctx, gin.H{"comment_id": cmt.ID, "flagged": true})
}

// Stream upgrades to a websocket that pushes comment events of one resource.
func (cc *CommentController) Stream(ctx *gin.Context) {
	rt, rid, ok := cc.resolveResource(ctx)
	if !ok {
		return
	}
	if cc.hub == nil {
		utils.Error(ctx, http.StatusServiceUnavailable, 50340, "live updates disabled")
		return
	}
	if err := cc.hub.ServeWS(ctx.Writer, ctx.Request, rt, rid); err != nil {
		utils.Sugar.Debugw("websocket upgrade failed", "error", err)
	}
}
