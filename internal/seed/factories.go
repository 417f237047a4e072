// Package seed provides helpers to create demo data for a Wavely database.
// These helpers are intended for development and testing only.
package seed

import (
	"fmt"
	"strings"
	"time"

	"wavely/internal/models"
	"wavely/internal/wavedoc"

	"github.com/brianvoe/gofakeit/v6"
)

// Factory builds domain entities with fake content. It never touches storage.
type Factory struct {
	faker   *gofakeit.Faker
	maxDays int
	now     func() time.Time
	// synthetic ID counter when running in DryRun mode
	nextID uint
	seq    int
}

// NewFactory creates a Factory. A zero seed picks a random one.
func NewFactory(seed int64, maxDays int) *Factory {
	if maxDays <= 0 {
		maxDays = 90
	}
	return &Factory{
		faker:   gofakeit.New(seed),
		maxDays: maxDays,
		now:     time.Now,
		nextID:  1000,
	}
}

// SyntheticID hands out ids for entities that are never persisted.
func (f *Factory) SyntheticID() uint {
	f.nextID++
	return f.nextID
}

// Intn returns a value in [0, n).
func (f *Factory) Intn(n int) int {
	if n <= 0 {
		return 0
	}
	return f.faker.Rand.Intn(n)
}

// Chance reports true with probability pct/100.
func (f *Factory) Chance(pct int) bool {
	return f.Intn(100) < pct
}

// BuildUser returns an unsaved user with a unique username.
func (f *Factory) BuildUser(passwordHash string) *models.User {
	f.seq++
	first := f.faker.FirstName()
	last := f.faker.LastName()
	username := strings.ToLower(fmt.Sprintf("%s_%s%d", first, last, f.seq))
	username = strings.Map(func(r rune) rune {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') || r == '_' {
			return r
		}
		return -1
	}, username)

	return &models.User{
		Username:     username,
		Email:        username + "@seed.wavely.dev",
		Password:     passwordHash,
		DisplayName:  first + " " + last,
		Bio:          f.faker.HipsterSentence(8),
		ProfileImage: fmt.Sprintf("https://i.pravatar.cc/300?u=%s", username),
		CreatedAt:    f.pastTime(f.maxDays * 2),
	}
}

// BuildWave returns an unsaved wave by author with a realistic created_at spread.
func (f *Factory) BuildWave(author *models.User) *models.Wave {
	wave := &models.Wave{
		UserID:           author.ID,
		Title:            strings.TrimSuffix(f.faker.Sentence(5), "."),
		Content:          f.faker.Paragraph(1, 3, 8, "\n"),
		WaveType:         models.WaveTypePersonal,
		Rating:           f.faker.Number(0, 5),
		MediaURLs:        []string{},
		LikedBy:          []uint{},
		CommentsList:     []models.Comment{},
		CommunityRatings: []models.RatingEntry{},
		Version:          1,
		CreatedAt:        f.pastTime(f.maxDays),
	}
	if f.Chance(50) {
		wave.WaveType = models.WaveTypeCommunity
	}
	if f.Chance(30) {
		wave.MediaType = models.MediaTypeImage
		wave.MediaURLs = []string{fmt.Sprintf("https://picsum.photos/seed/%s/800/800", f.faker.UUID())}
	}
	wave.UpdatedAt = wave.CreatedAt
	return wave
}

// CommentBody returns a short comment.
func (f *Factory) CommentBody() string {
	return f.faker.Sentence(f.faker.Number(3, 14))
}

// AuthorOf snapshots a user for comment authorship.
func AuthorOf(u *models.User) *wavedoc.Author {
	return &wavedoc.Author{
		ID:           u.ID,
		Username:     u.Username,
		DisplayName:  u.DisplayName,
		ProfileImage: u.ProfileImage,
	}
}

// After returns a time between t and now, used to order comments after the wave.
func (f *Factory) After(t time.Time) time.Time {
	span := f.now().Sub(t)
	if span <= time.Minute {
		return t.Add(time.Second)
	}
	return t.Add(time.Duration(f.faker.Rand.Int63n(int64(span))))
}

func (f *Factory) pastTime(maxDays int) time.Time {
	back := time.Duration(f.Intn(maxDays))*24*time.Hour +
		time.Duration(f.Intn(24))*time.Hour +
		time.Duration(f.Intn(60))*time.Minute
	return f.now().Add(-back).UTC()
}
