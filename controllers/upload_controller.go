package controllers

import (
	"bytes"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/communityconnect/server/config"
	"github.com/communityconnect/server/models"
	"github.com/communityconnect/server/utils"
)

var imageExtensions = map[string]string{
	"image/jpeg": ".jpg",
	"image/png":  ".png",
	"image/gif":  ".gif",
	"image/webp": ".webp",
}

// UploadController stores listing images in the configured object store.
type UploadController struct {
	db    *gorm.DB
	store utils.ObjectStore
}

// NewUploadController creates an UploadController.
func NewUploadController(db *gorm.DB, store utils.ObjectStore) *UploadController {
	return &UploadController{db: db, store: store}
}

// UploadImage accepts a single image and returns its public URL. The upload
// expires unless a listing references it before the orphan TTL passes.
func (u *UploadController) UploadImage(ctx *gin.Context) {
	userID, ok := getUserID(ctx)
	if !ok {
		utils.Error(ctx, http.StatusUnauthorized, 40113, "unauthorized")
		return
	}
	if u.store == nil {
		utils.Error(ctx, http.StatusServiceUnavailable, 50301, "uploads are disabled")
		return
	}

	// Accept common field name 'file' or fallback to 'f'
	file, header, err := ctx.Request.FormFile("file")
	if err != nil {
		file, header, err = ctx.Request.FormFile("f")
		if err != nil {
			utils.Error(ctx, http.StatusBadRequest, 40030, "no file uploaded")
			return
		}
	}
	defer file.Close()

	conf := config.Get()
	maxSize := int64(conf.UploadMaxMB) * 1024 * 1024
	if header.Size > maxSize {
		utils.Error(ctx, http.StatusBadRequest, 40032, fmt.Sprintf("file size exceeds %dMB", conf.UploadMaxMB))
		return
	}

	data, err := io.ReadAll(&io.LimitedReader{R: file, N: maxSize + 1})
	if err != nil {
		internalError(ctx, 50032, "failed to read file", err)
		return
	}
	if int64(len(data)) > maxSize {
		utils.Error(ctx, http.StatusBadRequest, 40032, fmt.Sprintf("file size exceeds %dMB", conf.UploadMaxMB))
		return
	}

	mimeType := http.DetectContentType(data)
	ext, ok := imageExtensions[mimeType]
	if !ok {
		utils.Error(ctx, http.StatusBadRequest, 40033, "only jpeg, png, gif and webp images are allowed")
		return
	}

	now := time.Now()
	key := fmt.Sprintf("%s/%s%s", now.Format("2006/01/02"), uuid.NewString(), ext)
	url, err := u.store.Put(ctx.Request.Context(), key, mimeType, bytes.NewReader(data), int64(len(data)))
	if err != nil {
		internalError(ctx, 50031, "failed to save file", err)
		return
	}

	ttl := conf.UploadOrphanTTLMin
	if ttl <= 0 {
		ttl = 60
	}
	expireAt := now.Add(time.Duration(ttl) * time.Minute)
	rec := models.UploadedFile{
		UserID:     userID,
		Backend:    u.store.Backend(),
		StorageKey: key,
		URL:        url,
		MimeType:   mimeType,
		Size:       int64(len(data)),
		ExpireAt:   &expireAt,
	}
	if err := u.db.Create(&rec).Error; err != nil {
		_ = u.store.Remove(ctx.Request.Context(), key)
		internalError(ctx, 50033, "failed to record upload", err)
		return
	}

	utils.Created(ctx, gin.H{"url": url, "expire_at": expireAt})
}
