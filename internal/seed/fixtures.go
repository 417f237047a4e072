package seed

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"wavely/internal/models"
	"wavely/internal/validation"
	"wavely/internal/wavedoc"

	"gopkg.in/yaml.v3"
)

//go:embed fixtures.yaml
var defaultFixtures []byte

// Fixtures is a hand-written data set: named accounts and the waves they post.
// Users are referenced by username throughout.
type Fixtures struct {
	Users []FixtureUser `yaml:"users"`
	Waves []FixtureWave `yaml:"waves"`
}

// FixtureUser is one account.
type FixtureUser struct {
	Username     string   `yaml:"username"`
	Email        string   `yaml:"email"`
	DisplayName  string   `yaml:"display_name"`
	Bio          string   `yaml:"bio"`
	ProfileImage string   `yaml:"profile_image"`
	Follows      []string `yaml:"follows"`
}

// FixtureWave is one wave with its discussion.
type FixtureWave struct {
	Author   string           `yaml:"author"`
	Title    string           `yaml:"title"`
	Content  string           `yaml:"content"`
	WaveType string           `yaml:"wave_type"`
	Rating   int              `yaml:"rating"`
	Media    []string         `yaml:"media"`
	Comments []FixtureComment `yaml:"comments"`
	Ratings  []FixtureRating  `yaml:"ratings"`
	LikedBy  []string         `yaml:"liked_by"`
}

// FixtureComment is a top-level comment; Replies hang off it.
type FixtureComment struct {
	Author  string           `yaml:"author"`
	Content string           `yaml:"content"`
	Replies []FixtureComment `yaml:"replies"`
}

// FixtureRating is one community score.
type FixtureRating struct {
	User  string `yaml:"user"`
	Score int    `yaml:"score"`
}

// ParseFixtures decodes a fixtures document and checks its references.
func ParseFixtures(data []byte) (*Fixtures, error) {
	var fx Fixtures
	if err := yaml.Unmarshal(data, &fx); err != nil {
		return nil, fmt.Errorf("parse fixtures: %w", err)
	}
	if err := fx.validate(); err != nil {
		return nil, err
	}
	return &fx, nil
}

// LoadFixtures reads fixtures from path, or the built-in set when path is empty.
func LoadFixtures(path string) (*Fixtures, error) {
	if path == "" {
		return ParseFixtures(defaultFixtures)
	}
	data, err := os.ReadFile(path) //nolint:gosec // operator-supplied path
	if err != nil {
		return nil, fmt.Errorf("read fixtures: %w", err)
	}
	return ParseFixtures(data)
}

func (fx *Fixtures) validate() error {
	known := make(map[string]bool, len(fx.Users))
	for i, u := range fx.Users {
		if err := validation.ValidateUsername(u.Username); err != nil {
			return fmt.Errorf("fixture user %d: %w", i, err)
		}
		if err := validation.ValidateEmail(u.Email); err != nil {
			return fmt.Errorf("fixture user %q: %w", u.Username, err)
		}
		if known[u.Username] {
			return fmt.Errorf("fixture user %q declared twice", u.Username)
		}
		known[u.Username] = true
	}

	var errs []error
	ref := func(where, name string) {
		if !known[name] {
			errs = append(errs, fmt.Errorf("%s: unknown user %q", where, name))
		}
	}
	for _, u := range fx.Users {
		for _, f := range u.Follows {
			ref("follows of "+u.Username, f)
		}
	}
	for i, w := range fx.Waves {
		where := fmt.Sprintf("fixture wave %d", i)
		ref(where, w.Author)
		for _, c := range w.Comments {
			ref(where+" comment", c.Author)
			for _, r := range c.Replies {
				ref(where+" reply", r.Author)
			}
		}
		for _, r := range w.Ratings {
			ref(where+" rating", r.User)
		}
		for _, name := range w.LikedBy {
			ref(where+" like", name)
		}
	}
	return errors.Join(errs...)
}

// ApplyFixtures writes fx. Accounts that already exist are reused, so the
// built-in set can be applied on top of generated data.
func (s *Seeder) ApplyFixtures(ctx context.Context, fx *Fixtures) (*Summary, error) {
	sum := &Summary{}
	hash, err := s.hashPassword()
	if err != nil {
		return nil, err
	}

	byName := make(map[string]*models.User, len(fx.Users))
	for _, fu := range fx.Users {
		u, created, err := s.ensureUser(ctx, fu, hash)
		if err != nil {
			return sum, fmt.Errorf("fixture user %q: %w", fu.Username, err)
		}
		if created {
			sum.Users++
		}
		byName[fu.Username] = u
	}

	for _, fu := range fx.Users {
		for _, name := range fu.Follows {
			if name == fu.Username {
				continue
			}
			ok, err := s.follow(ctx, byName[fu.Username].ID, byName[name].ID)
			if err != nil {
				return sum, fmt.Errorf("fixture follow %s -> %s: %w", fu.Username, name, err)
			}
			if ok {
				sum.Follows++
			}
		}
	}

	for i, fw := range fx.Waves {
		if err := s.applyWave(ctx, fw, byName, sum); err != nil {
			return sum, fmt.Errorf("fixture wave %d: %w", i, err)
		}
	}

	s.log.Info("fixtures applied", "summary", sum.String())
	return sum, nil
}

func (s *Seeder) ensureUser(ctx context.Context, fu FixtureUser, hash string) (*models.User, bool, error) {
	if !s.opts.DryRun {
		existing, err := s.users.GetByUsername(ctx, fu.Username)
		if err != nil {
			return nil, false, err
		}
		if existing != nil {
			return existing, false, nil
		}
	}

	u := &models.User{
		Username:     fu.Username,
		Email:        strings.ToLower(fu.Email),
		Password:     hash,
		DisplayName:  fu.DisplayName,
		Bio:          fu.Bio,
		ProfileImage: fu.ProfileImage,
	}
	if u.Email == "" {
		u.Email = fu.Username + "@seed.wavely.dev"
	}
	if u.DisplayName == "" {
		u.DisplayName = fu.Username
	}
	if err := s.createUser(ctx, u); err != nil {
		return nil, false, err
	}
	return u, true, nil
}

func (s *Seeder) applyWave(ctx context.Context, fw FixtureWave, byName map[string]*models.User, sum *Summary) error {
	author := byName[fw.Author]
	w := s.factory.BuildWave(author)
	w.Title = fw.Title
	w.Content = fw.Content
	w.Rating = fw.Rating
	w.WaveType = models.WaveTypePersonal
	if fw.WaveType != "" {
		w.WaveType = fw.WaveType
	}
	w.MediaURLs = []string{}
	w.MediaType = models.MediaTypeNone
	if len(fw.Media) > 0 {
		w.MediaURLs = append(w.MediaURLs, fw.Media...)
		w.MediaType = models.MediaTypeImage
	}
	if err := s.createWave(ctx, w); err != nil {
		return err
	}
	sum.Waves++

	at := w.CreatedAt
	next := func() time.Time {
		at = at.Add(time.Minute)
		return at
	}
	for _, fc := range fw.Comments {
		c, err := wavedoc.AddComment(w, AuthorOf(byName[fc.Author]), fc.Content, next())
		if err != nil {
			return err
		}
		sum.Comments++
		for _, fr := range fc.Replies {
			if _, err := wavedoc.AddReply(w, c.ID, AuthorOf(byName[fr.Author]), fr.Content, next()); err != nil {
				return err
			}
			sum.Comments++
		}
	}
	for _, r := range fw.Ratings {
		created, err := wavedoc.UpsertRating(w, byName[r.User].ID, r.Score, next())
		if err != nil {
			return fmt.Errorf("rating by %s: %w", r.User, err)
		}
		if created {
			sum.Ratings++
		}
	}
	if len(fw.Comments) > 0 || len(fw.Ratings) > 0 {
		wavedoc.Reconcile(w)
		if !s.opts.DryRun {
			if err := s.waves.ReplaceDocument(ctx, w, w.Version); err != nil {
				return err
			}
		}
	}

	for _, name := range fw.LikedBy {
		if err := s.like(ctx, w, byName[name].ID); err != nil {
			return err
		}
		sum.Likes++
	}
	return nil
}
