package models_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/communityconnect/server/internal/testenv"
	"github.com/communityconnect/server/models"
)

func TestUser_DefaultsOnCreate(t *testing.T) {
	db := testenv.OpenDB(t)
	u := models.User{Username: "ann"}
	require.NoError(t, db.Create(&u).Error)

	assert.Equal(t, models.RoleMember, u.Role)
	assert.False(t, u.CreatedAt.IsZero())
	assert.False(t, u.IsAdmin())

	created := u.CreatedAt
	time.Sleep(5 * time.Millisecond)
	require.NoError(t, db.Model(&u).Update("bio", "hello").Error)
	var got models.User
	require.NoError(t, db.First(&got, u.ID).Error)
	assert.Equal(t, "hello", got.Bio)
	assert.True(t, got.UpdatedAt.After(created))
}

func TestListing_ImageURLsRoundTrip(t *testing.T) {
	db := testenv.OpenDB(t)
	u := models.User{Username: "ann"}
	require.NoError(t, db.Create(&u).Error)

	p := models.Post{Listing: models.Listing{UserID: u.ID, Title: "t", Description: "d", Category: "food",
		ImageURLs: []string{"/uploads/a.png", "https://cdn.example.com/b.jpg"}}}
	require.NoError(t, db.Omit("User").Create(&p).Error)
	assert.Equal(t, models.StatusPending, p.Status)

	var got models.Post
	require.NoError(t, db.First(&got, p.ID).Error)
	assert.Equal(t, []string{"/uploads/a.png", "https://cdn.example.com/b.jpg"}, got.ImageURLs)

	e := models.Event{Listing: models.Listing{UserID: u.ID, Title: "t", Description: "d", Category: "meetup"}, StartsAt: time.Now()}
	require.NoError(t, db.Omit("User").Create(&e).Error)
	var ev models.Event
	require.NoError(t, db.First(&ev, e.ID).Error)
	assert.NotNil(t, ev.ImageURLs)
	assert.Empty(t, ev.ImageURLs)
}

func TestValidCategory(t *testing.T) {
	assert.True(t, models.ValidCategory(models.ResourcePost, "housing"))
	assert.False(t, models.ValidCategory(models.ResourcePost, "meetup"))
	assert.True(t, models.ValidCategory(models.ResourceEvent, "meetup"))
	assert.True(t, models.ValidCategory(models.ResourceEvent, "other"))
	assert.False(t, models.ValidCategory(models.ResourceEvent, ""))
}

func TestValidStatus(t *testing.T) {
	for _, s := range []models.Status{models.StatusPending, models.StatusPublished, models.StatusRejected, models.StatusArchived} {
		assert.True(t, models.ValidStatus(s))
	}
	assert.False(t, models.ValidStatus("deleted"))
}

func TestRecordAccessors(t *testing.T) {
	var r models.Record = &models.Event{ID: 7, Listing: models.Listing{Title: "x"}, User: models.User{Username: "ann"}}
	assert.Equal(t, uint(7), r.GetID())
	assert.Equal(t, "x", r.Base().Title)
	assert.Equal(t, "ann", r.Author().Username)

	assert.Equal(t, "events", models.ListingTable(models.ResourceEvent))
	assert.Equal(t, "posts", models.ListingTable(models.ResourcePost))
}
