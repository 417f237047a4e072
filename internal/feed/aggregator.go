package feed

import (
	"context"
	"errors"
	"log/slog"

	"wavely/internal/models"
	"wavely/internal/observability"

	"golang.org/x/sync/errgroup"
)

const (
	FallbackDisplayName = "Anonymous"
	FallbackUsername    = "anonymous"

	fetchConcurrency = 8
)

// UserSource loads author documents.
type UserSource interface {
	GetByID(ctx context.Context, id uint) (*models.User, error)
}

// Aggregator merges author profile fields onto waves.
type Aggregator struct {
	users         UserSource
	defaultAvatar string
}

func NewAggregator(users UserSource, defaultAvatar string) *Aggregator {
	return &Aggregator{users: users, defaultAvatar: defaultAvatar}
}

// Fallback is the profile shown for missing or unreadable authors.
func (a *Aggregator) Fallback() Profile {
	return Profile{
		Username:     FallbackUsername,
		DisplayName:  FallbackDisplayName,
		ProfileImage: a.defaultAvatar,
	}
}

// Enrich fills Username, DisplayName and ProfileImage on every wave. Each
// distinct author missing from cache is fetched at most once. A nil cache
// means a throwaway request-scoped one.
func (a *Aggregator) Enrich(ctx context.Context, cache *ProfileCache, waves []*models.Wave) {
	if cache == nil {
		cache = NewProfileCache()
	}

	missing := make(map[uint]struct{})
	for _, w := range waves {
		if w == nil {
			continue
		}
		if _, ok := cache.Get(w.UserID); !ok {
			missing[w.UserID] = struct{}{}
		}
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(fetchConcurrency)
	for id := range missing {
		g.Go(func() error {
			// Errors are absorbed into the fallback; the group never fails.
			_, _ = cache.Load(gctx, id, a.fetch)
			return nil
		})
	}
	_ = g.Wait()

	for _, w := range waves {
		if w == nil {
			continue
		}
		p, ok := cache.Get(w.UserID)
		if !ok {
			p = a.Fallback()
		}
		w.Username = p.Username
		w.DisplayName = p.DisplayName
		w.ProfileImage = p.ProfileImage
	}
}

// EnrichOne is Enrich for a single wave.
func (a *Aggregator) EnrichOne(ctx context.Context, cache *ProfileCache, w *models.Wave) {
	a.Enrich(ctx, cache, []*models.Wave{w})
}

// fetch resolves one profile. A deleted author caches as the fallback; any
// other failure is returned so a later call can try again.
func (a *Aggregator) fetch(ctx context.Context, userID uint) (Profile, error) {
	if userID == 0 {
		return a.Fallback(), nil
	}
	user, err := a.users.GetByID(ctx, userID)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return a.Fallback(), nil
		}
		observability.GlobalLogger.WarnContext(ctx, "profile fetch failed",
			slog.Uint64("user_id", uint64(userID)),
			slog.String("error", err.Error()),
		)
		return Profile{}, err
	}
	return a.withFallbacks(user), nil
}

func (a *Aggregator) withFallbacks(u *models.User) Profile {
	fb := a.Fallback()
	p := Profile{Username: u.Username, DisplayName: u.DisplayName, ProfileImage: u.ProfileImage}
	if p.Username == "" {
		p.Username = fb.Username
	}
	if p.DisplayName == "" {
		p.DisplayName = fb.DisplayName
	}
	if p.ProfileImage == "" {
		p.ProfileImage = fb.ProfileImage
	}
	return p
}
