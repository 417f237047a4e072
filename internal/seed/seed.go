package seed

import (
	"context"
	"fmt"
	"log/slog"

	"wavely/internal/middleware"
	"wavely/internal/models"
	"wavely/internal/repository"
	"wavely/internal/wavedoc"

	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
)

// DefaultPassword is given to every generated account unless Options overrides it.
const DefaultPassword = "Wavely$eed2026"

// Options configuration for the seeder
type Options struct {
	Users           int
	Waves           int
	CommentsPerWave int
	MaxDays         int
	Password        string
	RandSeed        int64
	// DryRun builds everything in memory and persists nothing.
	DryRun bool
}

func (o Options) withDefaults() Options {
	if o.Users <= 0 {
		o.Users = 10
	}
	if o.Waves < 0 {
		o.Waves = 0
	}
	if o.CommentsPerWave < 0 {
		o.CommentsPerWave = 0
	}
	if o.Password == "" {
		o.Password = DefaultPassword
	}
	return o
}

// Summary counts what a run created.
type Summary struct {
	Users    int `json:"users"`
	Follows  int `json:"follows"`
	Waves    int `json:"waves"`
	Comments int `json:"comments"`
	Ratings  int `json:"ratings"`
	Likes    int `json:"likes"`
}

func (s Summary) String() string {
	return fmt.Sprintf("%d users, %d follows, %d waves, %d comments, %d ratings, %d likes",
		s.Users, s.Follows, s.Waves, s.Comments, s.Ratings, s.Likes)
}

// Seeder writes generated data through the repositories, so it works on
// either wave store.
type Seeder struct {
	users   repository.UserRepository
	waves   repository.WaveRepository
	follows repository.FollowRepository
	opts    Options
	factory *Factory
	log     *slog.Logger
}

// NewSeeder creates a Seeder.
func NewSeeder(users repository.UserRepository, waves repository.WaveRepository, follows repository.FollowRepository, opts Options) *Seeder {
	opts = opts.withDefaults()
	return &Seeder{
		users:   users,
		waves:   waves,
		follows: follows,
		opts:    opts,
		factory: NewFactory(opts.RandSeed, opts.MaxDays),
		log:     middleware.Logger.With("component", "seed"),
	}
}

// Factory exposes the seeder's factory.
func (s *Seeder) Factory() *Factory {
	return s.factory
}

func (s *Seeder) hashPassword() (string, error) {
	hashed, err := bcrypt.GenerateFromPassword([]byte(s.opts.Password), bcrypt.DefaultCost)
	if err != nil {
		return "", fmt.Errorf("hash seed password: %w", err)
	}
	return string(hashed), nil
}

// Run generates users, a follow graph, and waves with comments, ratings and likes.
func (s *Seeder) Run(ctx context.Context) (*Summary, error) {
	s.log.Info("seeding started", "users", s.opts.Users, "waves", s.opts.Waves, "dry_run", s.opts.DryRun)
	sum := &Summary{}

	hash, err := s.hashPassword()
	if err != nil {
		return nil, err
	}

	users := make([]*models.User, 0, s.opts.Users)
	for i := 0; i < s.opts.Users; i++ {
		u := s.factory.BuildUser(hash)
		if err := s.createUser(ctx, u); err != nil {
			return sum, fmt.Errorf("failed to create users: %w", err)
		}
		users = append(users, u)
		sum.Users++
	}

	for _, u := range users {
		n, err := s.followSome(ctx, u, users)
		if err != nil {
			return sum, fmt.Errorf("failed to create follows: %w", err)
		}
		sum.Follows += n
	}

	for i := 0; i < s.opts.Waves; i++ {
		author := users[s.factory.Intn(len(users))]
		w := s.factory.BuildWave(author)
		if err := s.createWave(ctx, w); err != nil {
			return sum, fmt.Errorf("failed to create waves: %w", err)
		}
		sum.Waves++

		if err := s.decorate(ctx, w, users, sum); err != nil {
			return sum, fmt.Errorf("wave %d: %w", w.ID, err)
		}
	}

	s.log.Info("seeding completed", "summary", sum.String())
	return sum, nil
}

func (s *Seeder) createUser(ctx context.Context, u *models.User) error {
	if s.opts.DryRun {
		u.ID = s.factory.SyntheticID()
		return nil
	}
	return s.users.Create(ctx, u)
}

func (s *Seeder) createWave(ctx context.Context, w *models.Wave) error {
	if s.opts.DryRun {
		w.ID = s.factory.SyntheticID()
		return nil
	}
	return s.waves.Create(ctx, w)
}

func (s *Seeder) follow(ctx context.Context, follower, followee uint) (bool, error) {
	if s.opts.DryRun {
		return true, nil
	}
	return s.follows.Follow(ctx, follower, followee)
}

func (s *Seeder) like(ctx context.Context, w *models.Wave, userID uint) error {
	if w.IsLikedBy(userID) {
		return nil
	}
	if s.opts.DryRun {
		w.LikedBy = append(w.LikedBy, userID)
		w.Likes = len(w.LikedBy)
		return nil
	}
	liked, count, err := s.waves.ToggleLike(ctx, w.ID, userID)
	if err != nil {
		return err
	}
	if liked {
		w.LikedBy = append(w.LikedBy, userID)
	}
	w.Likes = count
	return nil
}

// followSome has u follow up to three other users.
func (s *Seeder) followSome(ctx context.Context, u *models.User, users []*models.User) (int, error) {
	if len(users) < 2 {
		return 0, nil
	}
	created := 0
	for i, n := 0, 1+s.factory.Intn(3); i < n; i++ {
		target := users[s.factory.Intn(len(users))]
		if target.ID == u.ID {
			continue
		}
		ok, err := s.follow(ctx, u.ID, target.ID)
		if err != nil {
			return created, err
		}
		if ok {
			created++
		}
	}
	return created, nil
}

// decorate adds comments, replies, community ratings and likes to a stored
// wave, then writes the document back once.
func (s *Seeder) decorate(ctx context.Context, w *models.Wave, users []*models.User, sum *Summary) error {
	changed := false

	if s.opts.CommentsPerWave > 0 {
		for i, n := 0, s.factory.Intn(s.opts.CommentsPerWave+1); i < n; i++ {
			commenter := users[s.factory.Intn(len(users))]
			at := s.factory.After(w.CreatedAt)

			var err error
			if top := topLevel(w); len(top) > 0 && s.factory.Chance(30) {
				parent := top[s.factory.Intn(len(top))]
				_, err = wavedoc.AddReply(w, parent, AuthorOf(commenter), s.factory.CommentBody(), at)
			} else {
				_, err = wavedoc.AddComment(w, AuthorOf(commenter), s.factory.CommentBody(), at)
			}
			if err != nil {
				return err
			}
			sum.Comments++
			changed = true
		}
	}

	if w.WaveType == models.WaveTypeCommunity {
		for _, u := range users {
			if u.ID == w.UserID || !s.factory.Chance(40) {
				continue
			}
			created, err := wavedoc.UpsertRating(w, u.ID, 1+s.factory.Intn(5), s.factory.After(w.CreatedAt))
			if err != nil {
				return err
			}
			if created {
				sum.Ratings++
			}
			changed = true
		}
	}

	if changed {
		wavedoc.Reconcile(w)
		if !s.opts.DryRun {
			if err := s.waves.ReplaceDocument(ctx, w, w.Version); err != nil {
				return err
			}
		}
	}

	for _, u := range users {
		if !s.factory.Chance(25) {
			continue
		}
		if err := s.like(ctx, w, u.ID); err != nil {
			return err
		}
		sum.Likes++
	}
	return nil
}

func topLevel(w *models.Wave) []string {
	var ids []string
	for _, c := range w.CommentsList {
		if !c.IsReply() {
			ids = append(ids, c.ID)
		}
	}
	return ids
}

// ClearAll truncates every Wavely table on the relational store.
func ClearAll(db *gorm.DB) error {
	middleware.Logger.Info("clearing existing data")
	sql := `TRUNCATE TABLE notifications, device_tokens, wave_likes, waves, follows, users RESTART IDENTITY CASCADE`
	return db.Exec(sql).Error
}
