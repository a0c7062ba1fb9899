// Package seed fills an empty database with fake community content for local development.
package seed

import (
	"context"
	"fmt"
	"time"

	"github.com/brianvoe/gofakeit/v6"
	"gorm.io/gorm"

	"github.com/communityconnect/server/models"
	"github.com/communityconnect/server/utils"
)

// DefaultPassword is the password of every seeded account.
const DefaultPassword = "123456"

// Result counts the rows created by Run.
type Result struct {
	Users    int
	Posts    int
	Events   int
	Comments int
}

// Run creates n members, each with a post and an event, and a small comment
// thread under every listing. Listings alternate between published and pending.
func Run(ctx context.Context, db *gorm.DB, n int, seed int64) (Result, error) {
	var res Result
	if n <= 0 {
		return res, nil
	}
	faker := gofakeit.New(seed)
	hash, err := utils.HashPassword(DefaultPassword)
	if err != nil {
		return res, err
	}

	err = db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		users := make([]models.User, 0, n)
		for i := 0; i < n; i++ {
			users = append(users, models.User{
				Username:     fmt.Sprintf("%s_%d", sanitize(faker.Username()), i),
				Email:        faker.Email(),
				PasswordHash: hash,
				Role:         models.RoleMember,
				Bio:          faker.Sentence(12),
				Location:     faker.City(),
			})
		}
		if err := tx.Create(&users).Error; err != nil {
			return err
		}
		res.Users = len(users)

		for i, u := range users {
			status := models.StatusPublished
			if i%2 == 1 {
				status = models.StatusPending
			}
			post := models.Post{Listing: listing(faker, u.ID, models.ResourcePost, status)}
			if err := tx.Omit("User").Create(&post).Error; err != nil {
				return err
			}
			res.Posts++

			start := faker.DateRange(time.Now(), time.Now().AddDate(0, 2, 0))
			end := start.Add(2 * time.Hour)
			event := models.Event{
				Listing:  listing(faker, u.ID, models.ResourceEvent, status),
				StartsAt: start,
				EndsAt:   &end,
				Venue:    faker.Street(),
			}
			if err := tx.Omit("User").Create(&event).Error; err != nil {
				return err
			}
			res.Events++

			if status != models.StatusPublished {
				continue
			}
			c, err := thread(tx, faker, users, models.ResourcePost, post.ID)
			if err != nil {
				return err
			}
			res.Comments += c
			c, err = thread(tx, faker, users, models.ResourceEvent, event.ID)
			if err != nil {
				return err
			}
			res.Comments += c
		}
		return nil
	})
	return res, err
}

func listing(faker *gofakeit.Faker, userID uint, resourceType string, status models.Status) models.Listing {
	cats := models.PostCategories
	if resourceType == models.ResourceEvent {
		cats = models.EventCategories
	}
	return models.Listing{
		UserID:      userID,
		Title:       faker.Sentence(5),
		Description: faker.Paragraph(2, 3, 12, " "),
		Category:    cats[faker.Number(0, len(cats)-1)],
		Status:      status,
		Details:     "{}",
		Contact:     faker.Email(),
		Location:    faker.City(),
		ImageURLs:   []string{},
	}
}

// thread adds one top-level comment with a reply and returns how many were created.
func thread(tx *gorm.DB, faker *gofakeit.Faker, users []models.User, resourceType string, resourceID uint) (int, error) {
	author := users[faker.Number(0, len(users)-1)]
	root := models.Comment{ResourceType: resourceType, ResourceID: resourceID, UserID: author.ID, Content: faker.Sentence(10)}
	if err := tx.Omit("User").Create(&root).Error; err != nil {
		return 0, err
	}
	replier := users[faker.Number(0, len(users)-1)]
	reply := models.Comment{ResourceType: resourceType, ResourceID: resourceID, UserID: replier.ID, ParentID: &root.ID, Content: faker.Sentence(8)}
	if err := tx.Omit("User").Create(&reply).Error; err != nil {
		return 0, err
	}
	if err := tx.Table(models.ListingTable(resourceType)).Where("id = ?", resourceID).
		UpdateColumn("comment_count", gorm.Expr("comment_count + ?", 2)).Error; err != nil {
		return 0, err
	}
	return 2, nil
}

func sanitize(s string) string {
	out := make([]rune, 0, len(s))
	for _, r := range s {
		if (r >= '0' && r <= '9') || (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || r == '_' || r == '-' {
			out = append(out, r)
		}
	}
	if len(out) > 20 {
		out = out[:20]
	}
	if len(out) == 0 {
		return "member"
	}
	return string(out)
}
