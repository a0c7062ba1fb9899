package controllers

import (
	"bytes"
	"encoding/json"
	"net/http"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/communityconnect/server/models"
	"github.com/communityconnect/server/utils"
)

const (
	maxTitleLen       = 200
	maxDescriptionLen = 10000
	similarLimit      = 5
)

// ListingController serves posts or events. Both resource types share the same
// moderation, listing and like rules; one controller is created per type.
type ListingController struct {
	db *gorm.DB
	rt string
}

// NewListingController creates a controller for resourceType (post or event).
func NewListingController(db *gorm.DB, resourceType string) *ListingController {
	return &ListingController{db: db, rt: resourceType}
}

type listingRequest struct {
	Title       string          `json:"title"`
	Description string          `json:"description"`
	Category    string          `json:"category"`
	Details     json.RawMessage `json:"details"`
	Contact     string          `json:"contact"`
	Location    string          `json:"location"`
	ImageURLs   []string        `json:"image_urls"`
	StartsAt    *time.Time      `json:"starts_at"`
	EndsAt      *time.Time      `json:"ends_at"`
	Venue       string          `json:"venue"`
}

func (lc *ListingController) newRecord() models.Record {
	if lc.rt == models.ResourceEvent {
		return &models.Event{}
	}
	return &models.Post{}
}

func (lc *ListingController) model() interface{} {
	return lc.newRecord()
}

func (lc *ListingController) find(q *gorm.DB) (interface{}, error) {
	if lc.rt == models.ResourceEvent {
		items := []models.Event{}
		err := q.Find(&items).Error
		return items, err
	}
	items := []models.Post{}
	err := q.Find(&items).Error
	return items, err
}

func (lc *ListingController) load(id uint) (models.Record, error) {
	rec := lc.newRecord()
	if err := lc.db.Preload("User", authorPreload).First(rec, id).Error; err != nil {
		return nil, err
	}
	return rec, nil
}

// normalizeDetails accepts a JSON object, or a string holding one, and returns compact text.
func normalizeDetails(raw json.RawMessage) (string, bool) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return "", true
	}
	if raw[0] == '"' {
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return "", false
		}
		s = strings.TrimSpace(s)
		if s == "" {
			return "", true
		}
		raw = []byte(s)
	}
	var obj map[string]interface{}
	if err := json.Unmarshal(raw, &obj); err != nil {
		return "", false
	}
	var buf bytes.Buffer
	if err := json.Compact(&buf, raw); err != nil {
		return "", false
	}
	return buf.String(), true
}

func validImageURL(u string) bool {
	return strings.HasPrefix(u, "https://") || strings.HasPrefix(u, "http://") || strings.HasPrefix(u, utils.LocalURLPrefix)
}

// apply validates req and copies it onto rec. A non-zero code reports the failure.
func (lc *ListingController) apply(rec models.Record, req listingRequest) (int, string) {
	title := utils.SanitizePlain(req.Title)
	if title == "" {
		return 40021, "title is required"
	}
	if utf8.RuneCountInString(title) > maxTitleLen {
		return 40022, "title is too long"
	}
	description := utils.Sanitize(req.Description)
	if description == "" {
		return 40023, "description is required"
	}
	if utf8.RuneCountInString(description) > maxDescriptionLen {
		return 40024, "description is too long"
	}
	category := strings.ToLower(strings.TrimSpace(req.Category))
	if category == "" {
		category = "other"
	}
	if !models.ValidCategory(lc.rt, category) {
		return 40025, "invalid category"
	}
	details, ok := normalizeDetails(req.Details)
	if !ok {
		return 40026, "details must be a JSON object"
	}
	if len(req.ImageURLs) > models.MaxImages {
		return 40027, "at most 5 images are allowed"
	}
	images := make([]string, 0, len(req.ImageURLs))
	for _, u := range req.ImageURLs {
		u = strings.TrimSpace(u)
		if u == "" {
			continue
		}
		if !validImageURL(u) {
			return 40028, "invalid image url"
		}
		images = append(images, u)
	}

	if ev, isEvent := rec.(*models.Event); isEvent {
		if req.StartsAt == nil || req.StartsAt.IsZero() {
			return 40029, "starts_at is required"
		}
		if req.EndsAt != nil && !req.EndsAt.After(*req.StartsAt) {
			return 40030, "ends_at must be after starts_at"
		}
		ev.StartsAt = *req.StartsAt
		ev.EndsAt = req.EndsAt
		ev.Venue = utils.SanitizePlain(req.Venue)
	}

	base := rec.Base()
	base.Title = title
	base.Description = description
	base.Category = category
	base.Details = details
	base.Contact = utils.SanitizePlain(req.Contact)
	base.Location = utils.SanitizePlain(req.Location)
	base.ImageURLs = images
	return 0, ""
}

// visible reports whether the viewer may see rec.
func visible(ctx *gin.Context, rec models.Record) bool {
	if rec.Base().Status == models.StatusPublished {
		return true
	}
	uid, _ := getUserID(ctx)
	return isAdmin(ctx) || (uid != 0 && uid == rec.Base().UserID)
}

func listOrder(sort string, isEvent bool) string {
	switch sort {
	case "oldest":
		return "created_at ASC, id ASC"
	case "popular":
		return "like_count DESC, created_at DESC"
	case "soonest":
		if isEvent {
			return "starts_at ASC, id ASC"
		}
	}
	return "created_at DESC, id DESC"
}

// List returns published items filtered by category and search, paginated.
func (lc *ListingController) List(ctx *gin.Context) {
	page, pageSize := parsePagination(ctx.Query("page"), ctx.Query("page_size"))
	search := strings.TrimSpace(ctx.Query("search"))
	category := strings.ToLower(strings.TrimSpace(ctx.Query("category")))
	sort := strings.ToLower(strings.TrimSpace(ctx.Query("sort")))
	upcoming := lc.rt == models.ResourceEvent && ctx.Query("upcoming") == "true"

	if category != "" && !models.ValidCategory(lc.rt, category) {
		utils.Error(ctx, http.StatusBadRequest, 40020, "invalid category")
		return
	}

	// Cache list pages when no search term to avoid cache key explosion
	cacheKey := ""
	if search == "" {
		cacheKey = utils.ListCacheKey(lc.rt, category, sort, upcoming, page, pageSize)
		if utils.ServeCached(ctx, cacheKey) {
			return
		}
	}

	base := func() *gorm.DB {
		q := lc.db.Model(lc.model()).Where("status = ?", models.StatusPublished)
		if category != "" {
			q = q.Where("category = ?", category)
		}
		if search != "" {
			like := "%" + search + "%"
			q = q.Where("title LIKE ? OR description LIKE ?", like, like)
		}
		if upcoming {
			q = q.Where("starts_at >= ?", time.Now())
		}
		return q
	}

	var total int64
	if err := base().Count(&total).Error; err != nil {
		internalError(ctx, 50020, "failed to count listings", err)
		return
	}
	items, err := lc.find(base().Preload("User", authorPreload).
		Order(listOrder(sort, lc.rt == models.ResourceEvent)).
		Offset((page - 1) * pageSize).Limit(pageSize))
	if err != nil {
		internalError(ctx, 50021, "failed to list listings", err)
		return
	}

	payload := gin.H{"items": items, "pagination": utils.NewPagination(page, pageSize, total)}
	if cacheKey != "" {
		utils.SuccessCached(ctx, cacheKey, payload, time.Hour)
		return
	}
	utils.Success(ctx, payload)
}

// Get returns one item. Unpublished items are only visible to their owner and admins.
func (lc *ListingController) Get(ctx *gin.Context) {
	id, ok := parseID(ctx, "id")
	if !ok {
		utils.Error(ctx, http.StatusBadRequest, 40031, "invalid id")
		return
	}
	uid, _ := getUserID(ctx)
	cacheKey := utils.DetailCacheKey(lc.rt, id)
	if uid == 0 && utils.ServeCached(ctx, cacheKey) {
		return
	}

	rec, err := lc.load(id)
	if err != nil {
		if isNotFound(err) {
			utils.Error(ctx, http.StatusNotFound, 40401, lc.rt+" not found")
			return
		}
		internalError(ctx, 50022, "failed to load "+lc.rt, err)
		return
	}
	if !visible(ctx, rec) {
		utils.Error(ctx, http.StatusNotFound, 40401, lc.rt+" not found")
		return
	}

	if uid == 0 {
		payload := gin.H{lc.rt: rec, "liked": false}
		if rec.Base().Status == models.StatusPublished {
			utils.SuccessCached(ctx, cacheKey, payload, time.Hour)
			return
		}
		utils.Success(ctx, payload)
		return
	}
	liked := likedSet(lc.db, uid, lc.rt, []uint{id})[id]
	utils.Success(ctx, gin.H{lc.rt: rec, "liked": liked})
}

// Similar returns up to five other published items of the same category, newest first.
func (lc *ListingController) Similar(ctx *gin.Context) {
	id, ok := parseID(ctx, "id")
	if !ok {
		utils.Error(ctx, http.StatusBadRequest, 40031, "invalid id")
		return
	}
	rec, err := lc.load(id)
	if err != nil {
		if isNotFound(err) {
			utils.Error(ctx, http.StatusNotFound, 40401, lc.rt+" not found")
			return
		}
		internalError(ctx, 50022, "failed to load "+lc.rt, err)
		return
	}
	items, err := lc.find(lc.db.Preload("User", authorPreload).
		Where("status = ? AND category = ? AND id <> ?", models.StatusPublished, rec.Base().Category, id).
		Order("created_at DESC, id DESC").Limit(similarLimit))
	if err != nil {
		internalError(ctx, 50023, "failed to list similar items", err)
		return
	}
	utils.Success(ctx, gin.H{"items": items})
}

// Create stores a new item. Members' submissions wait for approval; admins publish directly.
func (lc *ListingController) Create(ctx *gin.Context) {
	userID, ok := getUserID(ctx)
	if !ok {
		utils.Error(ctx, http.StatusUnauthorized, 40110, "unauthorized")
		return
	}
	var req listingRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		utils.Error(ctx, http.StatusBadRequest, 40019, "invalid request payload")
		return
	}
	rec := lc.newRecord()
	if code, msg := lc.apply(rec, req); code != 0 {
		utils.Error(ctx, http.StatusBadRequest, code, msg)
		return
	}
	base := rec.Base()
	base.UserID = userID
	base.Status = models.StatusPending
	if isAdmin(ctx) {
		base.Status = models.StatusPublished
	}

	if err := lc.db.Omit("User").Create(rec).Error; err != nil {
		internalError(ctx, 50024, "failed to create "+lc.rt, err)
		return
	}
	if err := utils.ClaimUploads(lc.db, userID, base.ImageURLs); err != nil {
		utils.Sugar.Warnw("claim uploads failed", "error", err)
	}
	utils.InvalidateListing(lc.rt, rec.GetID())

	created, err := lc.load(rec.GetID())
	if err != nil {
		created = rec
	}
	utils.Created(ctx, gin.H{lc.rt: created})
}

// Update edits an item. Edits by members send it back to moderation.
func (lc *ListingController) Update(ctx *gin.Context) {
	userID, ok := getUserID(ctx)
	if !ok {
		utils.Error(ctx, http.StatusUnauthorized, 40111, "unauthorized")
		return
	}
	id, ok := parseID(ctx, "id")
	if !ok {
		utils.Error(ctx, http.StatusBadRequest, 40031, "invalid id")
		return
	}
	var req listingRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		utils.Error(ctx, http.StatusBadRequest, 40019, "invalid request payload")
		return
	}
	rec, err := lc.load(id)
	if err != nil {
		if isNotFound(err) {
			utils.Error(ctx, http.StatusNotFound, 40402, lc.rt+" not found")
			return
		}
		internalError(ctx, 50022, "failed to load "+lc.rt, err)
		return
	}
	admin := isAdmin(ctx)
	if rec.Base().UserID != userID && !admin {
		utils.Error(ctx, http.StatusForbidden, 40301, "you can only update your own "+lc.rt+"s")
		return
	}
	if code, msg := lc.apply(rec, req); code != 0 {
		utils.Error(ctx, http.StatusBadRequest, code, msg)
		return
	}
	if !admin {
		rec.Base().Status = models.StatusPending
		rec.Base().RejectionReason = ""
	}
	if err := lc.db.Omit("User").Save(rec).Error; err != nil {
		internalError(ctx, 50025, "failed to update "+lc.rt, err)
		return
	}
	if err := utils.ClaimUploads(lc.db, rec.Base().UserID, rec.Base().ImageURLs); err != nil {
		utils.Sugar.Warnw("claim uploads failed", "error", err)
	}
	utils.InvalidateListing(lc.rt, id)
	utils.Success(ctx, gin.H{lc.rt: rec})
}

// Delete removes an item with its comments and likes.
func (lc *ListingController) Delete(ctx *gin.Context) {
	userID, ok := getUserID(ctx)
	if !ok {
		utils.Error(ctx, http.StatusUnauthorized, 40112, "unauthorized")
		return
	}
	id, ok := parseID(ctx, "id")
	if !ok {
		utils.Error(ctx, http.StatusBadRequest, 40031, "invalid id")
		return
	}
	rec, err := lc.load(id)
	if err != nil {
		if isNotFound(err) {
			utils.Error(ctx, http.StatusNotFound, 40403, lc.rt+" not found")
			return
		}
		internalError(ctx, 50022, "failed to load "+lc.rt, err)
		return
	}
	if rec.Base().UserID != userID && !isAdmin(ctx) {
		utils.Error(ctx, http.StatusForbidden, 40302, "you can only delete your own "+lc.rt+"s")
		return
	}

	err = lc.db.Transaction(func(tx *gorm.DB) error {
		commentIDs := tx.Model(&models.Comment{}).Select("id").
			Where("resource_type = ? AND resource_id = ?", lc.rt, id)
		if err := tx.Where("target_type = ? AND target_id IN (?)", models.ResourceComment, commentIDs).
			Delete(&models.Like{}).Error; err != nil {
			return err
		}
		if err := tx.Where("resource_type = ? AND resource_id = ?", lc.rt, id).
			Delete(&models.Comment{}).Error; err != nil {
			return err
		}
		if err := tx.Where("target_type = ? AND target_id = ?", lc.rt, id).
			Delete(&models.Like{}).Error; err != nil {
			return err
		}
		return tx.Delete(lc.model(), id).Error
	})
	if err != nil {
		internalError(ctx, 50026, "failed to delete "+lc.rt, err)
		return
	}
	utils.InvalidateListing(lc.rt, id)
	utils.Success(ctx, gin.H{"message": lc.rt + " deleted"})
}

// ToggleLike likes or unlikes a published item for the caller.
func (lc *ListingController) ToggleLike(ctx *gin.Context) {
	userID, ok := getUserID(ctx)
	if !ok {
		utils.Error(ctx, http.StatusUnauthorized, 40113, "unauthorized")
		return
	}
	id, ok := parseID(ctx, "id")
	if !ok {
		utils.Error(ctx, http.StatusBadRequest, 40031, "invalid id")
		return
	}
	var status models.Status
	if err := lc.db.Model(lc.model()).Select("status").Where("id = ?", id).Scan(&status).Error; err != nil {
		internalError(ctx, 50022, "failed to load "+lc.rt, err)
		return
	}
	if status != models.StatusPublished {
		utils.Error(ctx, http.StatusNotFound, 40404, lc.rt+" not found")
		return
	}
	liked, count, err := toggleLike(lc.db, userID, lc.rt, id, models.ListingTable(lc.rt))
	if err != nil {
		internalError(ctx, 50027, "failed to toggle like", err)
		return
	}
	utils.InvalidateListing(lc.rt, id)
	utils.Success(ctx, gin.H{"liked": liked, "like_count": count})
}

// ListMine returns the caller's items in every moderation state.
func (lc *ListingController) ListMine(ctx *gin.Context) {
	userID, ok := getUserID(ctx)
	if !ok {
		utils.Error(ctx, http.StatusUnauthorized, 40114, "unauthorized")
		return
	}
	page, pageSize := parsePagination(ctx.Query("page"), ctx.Query("page_size"))
	status := models.Status(strings.TrimSpace(ctx.Query("status")))
	base := func() *gorm.DB {
		q := lc.db.Model(lc.model()).Where("user_id = ?", userID)
		if status != "" && models.ValidStatus(status) {
			q = q.Where("status = ?", status)
		}
		return q
	}
	var total int64
	if err := base().Count(&total).Error; err != nil {
		internalError(ctx, 50028, "failed to count user items", err)
		return
	}
	items, err := lc.find(base().Preload("User", authorPreload).Order("created_at DESC, id DESC").
		Offset((page - 1) * pageSize).Limit(pageSize))
	if err != nil {
		internalError(ctx, 50029, "failed to list user items", err)
		return
	}
	utils.Paginated(ctx, items, utils.NewPagination(page, pageSize, total))
}
