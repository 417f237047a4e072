package seed

import (
	"context"
	"testing"
	"time"

	"wavely/internal/models"
	"wavely/internal/repository"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// fakeUsers implements the user calls the seeder makes.
type fakeUsers struct {
	repository.UserRepository
	byID map[uint]*models.User
	next uint
}

func (f *fakeUsers) Create(_ context.Context, u *models.User) error {
	f.next++
	u.ID = f.next
	f.byID[u.ID] = u
	return nil
}

func (f *fakeUsers) GetByUsername(_ context.Context, username string) (*models.User, error) {
	for _, u := range f.byID {
		if u.Username == username {
			return u, nil
		}
	}
	return nil, nil
}

type fakeFollows struct {
	repository.FollowRepository
	edges map[[2]uint]bool
}

func (f *fakeFollows) Follow(_ context.Context, follower, followee uint) (bool, error) {
	key := [2]uint{follower, followee}
	if f.edges[key] {
		return false, nil
	}
	f.edges[key] = true
	return true, nil
}

type fakeWaves struct {
	repository.WaveRepository
	byID     map[uint]*models.Wave
	next     uint
	replaced int
}

func (f *fakeWaves) Create(_ context.Context, w *models.Wave) error {
	f.next++
	w.ID = f.next
	f.byID[w.ID] = w.Clone()
	return nil
}

func (f *fakeWaves) ReplaceDocument(_ context.Context, w *models.Wave, expected int64) error {
	if f.byID[w.ID].Version != expected {
		return repository.ErrVersionConflict
	}
	w.Version = expected + 1
	f.byID[w.ID] = w.Clone()
	f.replaced++
	return nil
}

func (f *fakeWaves) ToggleLike(_ context.Context, waveID, userID uint) (bool, int, error) {
	w := f.byID[waveID]
	w.LikedBy = append(w.LikedBy, userID)
	w.Likes = len(w.LikedBy)
	return true, w.Likes, nil
}

type stores struct {
	users   *fakeUsers
	waves   *fakeWaves
	follows *fakeFollows
}

func newStores() stores {
	return stores{
		users:   &fakeUsers{byID: map[uint]*models.User{}},
		waves:   &fakeWaves{byID: map[uint]*models.Wave{}},
		follows: &fakeFollows{edges: map[[2]uint]bool{}},
	}
}

func (s stores) seeder(opts Options) *Seeder {
	return NewSeeder(s.users, s.waves, s.follows, opts)
}

func TestFactory_BuildUserIsUnique(t *testing.T) {
	f := NewFactory(42, 30)
	seen := map[string]bool{}
	for i := 0; i < 50; i++ {
		u := f.BuildUser("hash")
		assert.Regexp(t, `^[a-z0-9_]+$`, u.Username)
		assert.False(t, seen[u.Username], "duplicate username %s", u.Username)
		seen[u.Username] = true
		assert.Equal(t, "hash", u.Password)
	}
}

func TestFactory_BuildWave(t *testing.T) {
	f := NewFactory(7, 10)
	author := &models.User{ID: 3}
	for i := 0; i < 20; i++ {
		w := f.BuildWave(author)
		assert.Equal(t, uint(3), w.UserID)
		assert.Contains(t, []string{models.WaveTypePersonal, models.WaveTypeCommunity}, w.WaveType)
		assert.GreaterOrEqual(t, w.Rating, 0)
		assert.LessOrEqual(t, w.Rating, 5)
		assert.WithinDuration(t, f.now(), w.CreatedAt, 11*24*time.Hour)
		if w.MediaType == models.MediaTypeImage {
			assert.Len(t, w.MediaURLs, 1)
		}
	}
}

func TestSeeder_Run(t *testing.T) {
	st := newStores()
	s := st.seeder(Options{Users: 6, Waves: 12, CommentsPerWave: 4, RandSeed: 99, Password: "Seed$Pass1"})

	sum, err := s.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 6, sum.Users)
	assert.Equal(t, 12, sum.Waves)
	assert.Len(t, st.users.byID, 6)
	assert.Len(t, st.waves.byID, 12)
	assert.Len(t, st.follows.edges, sum.Follows)

	comments, ratings := 0, 0
	for _, w := range st.waves.byID {
		comments += len(w.CommentsList)
		ratings += len(w.CommunityRatings)
		assert.Equal(t, len(w.CommentsList), w.Comments, "counters match lists")
		for _, r := range w.CommunityRatings {
			assert.NotEqual(t, w.UserID, r.UserID, "no self ratings")
		}
		if w.WaveType == models.WaveTypePersonal {
			assert.Empty(t, w.CommunityRatings)
		}
	}
	assert.Equal(t, sum.Comments, comments)
	assert.Equal(t, sum.Ratings, ratings)
	for edge := range st.follows.edges {
		assert.NotEqual(t, edge[0], edge[1], "no self follows")
	}
}

func TestSeeder_DryRunPersistsNothing(t *testing.T) {
	st := newStores()
	s := st.seeder(Options{Users: 4, Waves: 5, CommentsPerWave: 2, DryRun: true, RandSeed: 1})

	sum, err := s.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 4, sum.Users)
	assert.Equal(t, 5, sum.Waves)
	assert.Empty(t, st.users.byID)
	assert.Empty(t, st.waves.byID)
	assert.Empty(t, st.follows.edges)
}

func TestDefaultFixturesParse(t *testing.T) {
	fx, err := LoadFixtures("")
	require.NoError(t, err)
	assert.NotEmpty(t, fx.Users)
	assert.NotEmpty(t, fx.Waves)
}

func TestParseFixtures_UnknownReferences(t *testing.T) {
	doc := []byte(`
users:
  - username: ana
    email: ana@seed.test
    follows: [ghost]
waves:
  - author: nobody
    title: t
    comments:
      - author: ana
        content: hi
`)
	_, err := ParseFixtures(doc)
	require.Error(t, err)
	assert.Contains(t, err.Error(), `unknown user "ghost"`)
	assert.Contains(t, err.Error(), `unknown user "nobody"`)
}

func TestParseFixtures_DuplicateUser(t *testing.T) {
	_, err := ParseFixtures([]byte("users:\n  - {username: ana, email: a@seed.test}\n  - {username: ana, email: b@seed.test}\n"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "declared twice")
}

func TestParseFixtures_InvalidAccount(t *testing.T) {
	tests := map[string]string{
		"reserved username": "users:\n  - {username: admin, email: admin@seed.test}\n",
		"bad email":         "users:\n  - {username: ana, email: not-an-email}\n",
	}
	for name, doc := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := ParseFixtures([]byte(doc))
			assert.Error(t, err)
		})
	}
}

func TestApplyFixtures(t *testing.T) {
	st := newStores()
	s := st.seeder(Options{RandSeed: 5})
	fx, err := LoadFixtures("")
	require.NoError(t, err)

	sum, err := s.ApplyFixtures(context.Background(), fx)
	require.NoError(t, err)
	assert.Equal(t, len(fx.Users), sum.Users)
	assert.Equal(t, len(fx.Waves), sum.Waves)

	aiko, err := st.users.GetByUsername(context.Background(), "aiko")
	require.NoError(t, err)
	require.NotNil(t, aiko)

	var spring *models.Wave
	for _, w := range st.waves.byID {
		if w.Title == "Spring season picks" {
			spring = w
		}
	}
	require.NotNil(t, spring)
	assert.Equal(t, aiko.ID, spring.UserID)
	assert.Equal(t, models.WaveTypeCommunity, spring.WaveType)
	assert.Equal(t, 3, spring.Comments)
	assert.InDelta(t, 4.5, spring.AverageRating, 0.001)
	assert.Equal(t, 2, spring.Likes)

	// A second pass reuses the accounts.
	again, err := s.ApplyFixtures(context.Background(), fx)
	require.NoError(t, err)
	assert.Zero(t, again.Users)
	assert.Zero(t, again.Follows)
}

func TestApplyFixtures_RatingOnPersonalWave(t *testing.T) {
	st := newStores()
	s := st.seeder(Options{})
	fx, err := ParseFixtures([]byte(`
users:
  - {username: ana, email: ana@seed.test}
  - {username: ben, email: ben@seed.test}
waves:
  - author: ana
    title: diary
    ratings:
      - user: ben
        score: 3
`))
	require.NoError(t, err)

	_, err = s.ApplyFixtures(context.Background(), fx)
	require.Error(t, err)
	assert.ErrorIs(t, err, models.NewNotRatableError())
}

func TestClearAll(t *testing.T) {
	sqlDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer func() { _ = sqlDB.Close() }()
	db, err := gorm.Open(postgres.New(postgres.Config{Conn: sqlDB}), &gorm.Config{Logger: logger.Discard})
	require.NoError(t, err)

	mock.ExpectExec(`TRUNCATE TABLE notifications, device_tokens, wave_likes, waves, follows, users RESTART IDENTITY CASCADE`).
		WillReturnResult(sqlmock.NewResult(0, 0))

	require.NoError(t, ClearAll(db))
	assert.NoError(t, mock.ExpectationsWereMet())
}
