package controllers

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/communityconnect/server/models"
	"github.com/communityconnect/server/utils"
)

const (
	exportLimit   = 10000
	topLikedLimit = 5
)

// AdminController implements moderation, user management, analytics and exports.
type AdminController struct {
	db *gorm.DB
}

// NewAdminController creates a new AdminController instance.
func NewAdminController(db *gorm.DB) *AdminController {
	return &AdminController{db: db}
}

// ListPending returns items of resourceType awaiting approval, oldest first.
func (a *AdminController) ListPending(resourceType string) gin.HandlerFunc {
	lc := NewListingController(a.db, resourceType)
	return func(ctx *gin.Context) {
		page, pageSize := parsePagination(ctx.Query("page"), ctx.Query("page_size"))
		base := func() *gorm.DB {
			return a.db.Model(lc.model()).Where("status = ?", models.StatusPending)
		}
		var total int64
		if err := base().Count(&total).Error; err != nil {
			internalError(ctx, 50060, "failed to count pending items", err)
			return
		}
		items, err := lc.find(base().Preload("User", authorPreload).Order("created_at ASC, id ASC").
			Offset((page - 1) * pageSize).Limit(pageSize))
		if err != nil {
			internalError(ctx, 50061, "failed to list pending items", err)
			return
		}
		utils.Paginated(ctx, items, utils.NewPagination(page, pageSize, total))
	}
}

var actionStatus = map[string]models.Status{
	utils.ActionApprove: models.StatusPublished,
	utils.ActionReject:  models.StatusRejected,
	utils.ActionArchive: models.StatusArchived,
}

// Moderate applies action (approve, reject or archive) to an item of resourceType.
func (a *AdminController) Moderate(resourceType, action string) gin.HandlerFunc {
	lc := NewListingController(a.db, resourceType)
	status := actionStatus[action]
	return func(ctx *gin.Context) {
		id, ok := parseID(ctx, "id")
		if !ok {
			utils.Error(ctx, http.StatusBadRequest, 40060, "invalid id")
			return
		}
		var req struct {
			Reason string `json:"reason"`
		}
		_ = ctx.ShouldBindJSON(&req)
		reason := utils.SanitizePlain(req.Reason)

		rec, err := lc.load(id)
		if err != nil {
			if isNotFound(err) {
				utils.Error(ctx, http.StatusNotFound, 40460, resourceType+" not found")
				return
			}
			internalError(ctx, 50062, "failed to load "+resourceType, err)
			return
		}
		updates := map[string]interface{}{"status": status, "updated_at": time.Now()}
		switch action {
		case utils.ActionReject:
			updates["rejection_reason"] = reason
		case utils.ActionApprove:
			updates["rejection_reason"] = ""
		}
		if err := a.db.Model(lc.model()).Where("id = ?", id).Updates(updates).Error; err != nil {
			internalError(ctx, 50063, "failed to update status", err)
			return
		}
		base := rec.Base()
		base.Status = status
		if r, ok := updates["rejection_reason"].(string); ok {
			base.RejectionReason = r
		}
		utils.InvalidateListing(resourceType, id)

		actor, _ := getUserID(ctx)
		utils.PublishModeration(ctx.Request.Context(), utils.ModerationEvent{
			Action:     action,
			TargetType: resourceType,
			TargetID:   id,
			OwnerID:    base.UserID,
			ActorID:    actor,
			Reason:     reason,
		})
		a.notifyOwner(base.UserID, resourceType, base.Title, action, reason)
		utils.Success(ctx, gin.H{resourceType: rec})
	}
}

func (a *AdminController) notifyOwner(userID uint, kind, title, action, reason string) {
	if !utils.MailConfigured() {
		return
	}
	var owner models.User
	if err := a.db.Select("id", "username", "email").First(&owner, userID).Error; err != nil || owner.Email == "" {
		return
	}
	subject, body := utils.ModerationMail(owner.Username, kind, title, action, reason)
	utils.NotifyAsync(owner.Email, subject, body)
}

// ListFlagged returns flagged comments that were not removed yet.
func (a *AdminController) ListFlagged(ctx *gin.Context) {
	page, pageSize := parsePagination(ctx.Query("page"), ctx.Query("page_size"))
	base := func() *gorm.DB {
		return a.db.Model(&models.Comment{}).Where("flagged = ? AND deleted = ?", true, false)
	}
	var total int64
	if err := base().Count(&total).Error; err != nil {
		internalError(ctx, 50064, "failed to count flagged comments", err)
		return
	}
	var items []models.Comment
	if err := base().Preload("User", authorPreload).Order("updated_at DESC, id DESC").
		Offset((page - 1) * pageSize).Limit(pageSize).Find(&items).Error; err != nil {
		internalError(ctx, 50065, "failed to list flagged comments", err)
		return
	}
	utils.Paginated(ctx, items, utils.NewPagination(page, pageSize, total))
}

// ModerateComment clears the flag (approve) or hides the comment for good (remove).
func (a *AdminController) ModerateComment(action string) gin.HandlerFunc {
	return func(ctx *gin.Context) {
		id, ok := parseID(ctx, "id")
		if !ok {
			utils.Error(ctx, http.StatusBadRequest, 40061, "invalid comment id")
			return
		}
		var cmt models.Comment
		if err := a.db.First(&cmt, id).Error; err != nil {
			if isNotFound(err) {
				utils.Error(ctx, http.StatusNotFound, 40461, "comment not found")
				return
			}
			internalError(ctx, 50066, "failed to load comment", err)
			return
		}
		updates := map[string]interface{}{"flagged": false, "flag_reason": "", "flagged_by": nil}
		if action == utils.ActionRemove {
			updates["deleted"] = true
		}
		if err := a.db.Model(&models.Comment{}).Where("id = ?", id).Updates(updates).Error; err != nil {
			internalError(ctx, 50067, "failed to update comment", err)
			return
		}
		actor, _ := getUserID(ctx)
		evAction := utils.ActionUnflag
		if action == utils.ActionRemove {
			evAction = utils.ActionRemove
		}
		utils.PublishModeration(ctx.Request.Context(), utils.ModerationEvent{
			Action:     evAction,
			TargetType: models.ResourceComment,
			TargetID:   id,
			OwnerID:    cmt.UserID,
			ActorID:    actor,
			Reason:     cmt.FlagReason,
		})
		utils.Success(ctx, gin.H{"comment_id": id, "flagged": false, "deleted": action == utils.ActionRemove || cmt.Deleted})
	}
}

// ListUsers returns users, optionally filtered by role or a username search.
func (a *AdminController) ListUsers(ctx *gin.Context) {
	page, pageSize := parsePagination(ctx.Query("page"), ctx.Query("page_size"))
	search := strings.TrimSpace(ctx.Query("search"))
	role := strings.TrimSpace(ctx.Query("role"))
	base := func() *gorm.DB {
		q := a.db.Model(&models.User{})
		if search != "" {
			q = q.Where("username LIKE ?", "%"+search+"%")
		}
		if role != "" {
			q = q.Where("role = ?", role)
		}
		return q
	}
	var total int64
	if err := base().Count(&total).Error; err != nil {
		internalError(ctx, 50068, "failed to count users", err)
		return
	}
	var users []models.User
	if err := base().Order("id ASC").Offset((page - 1) * pageSize).Limit(pageSize).Find(&users).Error; err != nil {
		internalError(ctx, 50069, "failed to list users", err)
		return
	}
	utils.Paginated(ctx, users, utils.NewPagination(page, pageSize, total))
}

// UpdateUserRole promotes or demotes a user. Admins cannot change their own role.
func (a *AdminController) UpdateUserRole(ctx *gin.Context) {
	id, ok := parseID(ctx, "id")
	if !ok {
		utils.Error(ctx, http.StatusBadRequest, 40062, "invalid user id")
		return
	}
	var req struct {
		Role string `json:"role"`
	}
	if err := ctx.ShouldBindJSON(&req); err != nil {
		utils.Error(ctx, http.StatusBadRequest, 40063, "invalid request payload")
		return
	}
	role := strings.ToLower(strings.TrimSpace(req.Role))
	if role != models.RoleMember && role != models.RoleAdmin {
		utils.Error(ctx, http.StatusBadRequest, 40064, "invalid role")
		return
	}
	actor, _ := getUserID(ctx)
	if actor == id {
		utils.Error(ctx, http.StatusBadRequest, 40065, "cannot change your own role")
		return
	}
	var user models.User
	if err := a.db.First(&user, id).Error; err != nil {
		if isNotFound(err) {
			utils.Error(ctx, http.StatusNotFound, 40462, "user not found")
			return
		}
		internalError(ctx, 50070, "failed to load user", err)
		return
	}
	if err := a.db.Model(&user).Update("role", role).Error; err != nil {
		internalError(ctx, 50071, "failed to update role", err)
		return
	}
	user.Role = role
	utils.PublishModeration(ctx.Request.Context(), utils.ModerationEvent{
		Action:     utils.ActionRole,
		TargetType: "user",
		TargetID:   id,
		ActorID:    actor,
		Reason:     role,
	})
	utils.Success(ctx, gin.H{"user": user})
}

type groupCount struct {
	Grp   string
	Total int64
}

func (a *AdminController) countBy(model interface{}, column string) (map[string]int64, error) {
	var rows []groupCount
	if err := a.db.Model(model).Select(column + " AS grp, COUNT(*) AS total").Group(column).Scan(&rows).Error; err != nil {
		return nil, err
	}
	out := map[string]int64{}
	for _, r := range rows {
		out[r.Grp] = r.Total
	}
	return out, nil
}

type dailyViews struct {
	Day   string `json:"date"`
	Views int64  `json:"views"`
}

// Analytics aggregates moderation, growth and traffic figures for the dashboard.
func (a *AdminController) Analytics(ctx *gin.Context) {
	out := gin.H{}
	for _, g := range []struct {
		name   string
		model  interface{}
		column string
	}{
		{"posts_by_status", &models.Post{}, "status"},
		{"events_by_status", &models.Event{}, "status"},
		{"posts_by_category", &models.Post{}, "category"},
		{"events_by_category", &models.Event{}, "category"},
		{"users_by_role", &models.User{}, "role"},
	} {
		m, err := a.countBy(g.model, g.column)
		if err != nil {
			internalError(ctx, 50072, "failed to aggregate analytics", err)
			return
		}
		out[g.name] = m
	}

	since := time.Now().AddDate(0, 0, -7)
	recent := gin.H{}
	for name, model := range map[string]interface{}{
		"posts":    &models.Post{},
		"events":   &models.Event{},
		"users":    &models.User{},
		"comments": &models.Comment{},
	} {
		var n int64
		if err := a.db.Model(model).Where("created_at >= ?", since).Count(&n).Error; err != nil {
			internalError(ctx, 50073, "failed to count recent content", err)
			return
		}
		recent[name] = n
	}
	out["new_last_7_days"] = recent

	var views []models.PageView
	first := time.Now().In(time.Local).AddDate(0, 0, -13)
	first = time.Date(first.Year(), first.Month(), first.Day(), 0, 0, 0, 0, first.Location())
	if err := a.db.Where("date >= ?", first).Find(&views).Error; err != nil {
		internalError(ctx, 50074, "failed to load page views", err)
		return
	}
	byDay := map[string]int64{}
	for _, v := range views {
		byDay[v.Date.Format("2006-01-02")] += v.Count
	}
	daily := make([]dailyViews, 0, 14)
	for i := 0; i < 14; i++ {
		d := first.AddDate(0, 0, i).Format("2006-01-02")
		daily = append(daily, dailyViews{Day: d, Views: byDay[d]})
	}
	out["daily_page_views"] = daily

	var top []models.Post
	if err := a.db.Where("status = ?", models.StatusPublished).Order("like_count DESC, id ASC").
		Limit(topLikedLimit).Find(&top).Error; err != nil {
		internalError(ctx, 50075, "failed to load top posts", err)
		return
	}
	topOut := make([]gin.H, 0, len(top))
	for _, p := range top {
		topOut = append(topOut, gin.H{"id": p.ID, "title": p.Title, "like_count": p.LikeCount, "comment_count": p.CommentCount})
	}
	out["top_liked_posts"] = topOut

	utils.Success(ctx, out)
}

// Export streams posts, events, users or comments as a CSV or JSON download.
func (a *AdminController) Export(ctx *gin.Context) {
	var req struct {
		Entity string `json:"entity"`
		Format string `json:"format"`
	}
	if err := ctx.ShouldBindJSON(&req); err != nil {
		utils.Error(ctx, http.StatusBadRequest, 40066, "invalid request payload")
		return
	}
	entity := strings.ToLower(strings.TrimSpace(req.Entity))
	format := strings.ToLower(strings.TrimSpace(req.Format))
	if format == "" {
		format = "csv"
	}
	if format != "csv" && format != "json" {
		utils.Error(ctx, http.StatusBadRequest, 40067, "format must be csv or json")
		return
	}

	header, rows, records, err := a.exportRows(entity)
	if errors.Is(err, errUnknownEntity) {
		utils.Error(ctx, http.StatusBadRequest, 40068, "entity must be posts, events, users or comments")
		return
	}
	if err != nil {
		internalError(ctx, 50076, "failed to export", err)
		return
	}

	filename := fmt.Sprintf("%s-%s.%s", entity, time.Now().Format("20060102"), format)
	ctx.Header("Content-Disposition", `attachment; filename="`+filename+`"`)
	if format == "json" {
		b, err := json.Marshal(records)
		if err != nil {
			internalError(ctx, 50077, "failed to encode export", err)
			return
		}
		ctx.Data(http.StatusOK, "application/json; charset=utf-8", b)
		return
	}
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	_ = w.Write(header)
	_ = w.WriteAll(rows)
	if err := w.Error(); err != nil {
		internalError(ctx, 50077, "failed to encode export", err)
		return
	}
	ctx.Data(http.StatusOK, "text/csv; charset=utf-8", buf.Bytes())
}

var errUnknownEntity = errors.New("unknown export entity")

func fmtTime(t time.Time) string { return t.UTC().Format(time.RFC3339) }

func utoa(v uint) string   { return strconv.FormatUint(uint64(v), 10) }
func i64toa(v int64) string { return strconv.FormatInt(v, 10) }

// exportRows loads one entity and renders it both as CSV rows and as JSON records.
func (a *AdminController) exportRows(entity string) ([]string, [][]string, interface{}, error) {
	switch entity {
	case "posts":
		var items []models.Post
		if err := a.db.Order("id ASC").Limit(exportLimit).Find(&items).Error; err != nil {
			return nil, nil, nil, err
		}
		rows := make([][]string, 0, len(items))
		for _, p := range items {
			rows = append(rows, []string{utoa(p.ID), utoa(p.UserID), p.Title, p.Category, string(p.Status),
				i64toa(p.LikeCount), i64toa(p.CommentCount), fmtTime(p.CreatedAt)})
		}
		return []string{"id", "user_id", "title", "category", "status", "like_count", "comment_count", "created_at"}, rows, items, nil
	case "events":
		var items []models.Event
		if err := a.db.Order("id ASC").Limit(exportLimit).Find(&items).Error; err != nil {
			return nil, nil, nil, err
		}
		rows := make([][]string, 0, len(items))
		for _, e := range items {
			rows = append(rows, []string{utoa(e.ID), utoa(e.UserID), e.Title, e.Category, string(e.Status),
				fmtTime(e.StartsAt), e.Venue, i64toa(e.LikeCount), i64toa(e.CommentCount), fmtTime(e.CreatedAt)})
		}
		return []string{"id", "user_id", "title", "category", "status", "starts_at", "venue", "like_count", "comment_count", "created_at"}, rows, items, nil
	case "users":
		var items []models.User
		if err := a.db.Order("id ASC").Limit(exportLimit).Find(&items).Error; err != nil {
			return nil, nil, nil, err
		}
		rows := make([][]string, 0, len(items))
		for _, usr := range items {
			rows = append(rows, []string{utoa(usr.ID), usr.Username, usr.Email, usr.Role, usr.Provider, fmtTime(usr.CreatedAt)})
		}
		return []string{"id", "username", "email", "role", "provider", "created_at"}, rows, items, nil
	case "comments":
		var items []models.Comment
		if err := a.db.Order("id ASC").Limit(exportLimit).Find(&items).Error; err != nil {
			return nil, nil, nil, err
		}
		rows := make([][]string, 0, len(items))
		for _, c := range items {
			parent := ""
			if c.ParentID != nil {
				parent = utoa(*c.ParentID)
			}
			rows = append(rows, []string{utoa(c.ID), c.ResourceType, utoa(c.ResourceID), utoa(c.UserID), parent, c.Content,
				i64toa(c.LikeCount), strconv.FormatBool(c.Flagged), strconv.FormatBool(c.Deleted), fmtTime(c.CreatedAt)})
		}
		return []string{"id", "resource_type", "resource_id", "user_id", "parent_id", "content", "like_count", "flagged", "deleted", "created_at"}, rows, items, nil
	}
	return nil, nil, nil, errUnknownEntity
}
