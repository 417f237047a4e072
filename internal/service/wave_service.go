package service

import (
	"context"
	"errors"
	"net/url"
	"strings"
	"time"
	"unicode/utf8"

	"wavely/internal/featureflags"
	"wavely/internal/feed"
	"wavely/internal/models"
	"wavely/internal/notifications"
	"wavely/internal/observability"
	"wavely/internal/repository"
	"wavely/internal/wavedoc"
)

const (
	DefaultWriteMaxAttempts = 5
	maxWaveTitleLen         = 300
	maxWaveContentLen       = 10000
	maxWaveMedia            = 4
	maxFollowingAuthors     = 1000
)

// errUnchanged tells mutate the document needs no write.
var errUnchanged = errors.New("wave unchanged")

// AnimeLookup resolves catalogue entries for waves that reference one.
type AnimeLookup interface {
	Get(ctx context.Context, id int) (*models.AnimeMetadata, error)
}

type WaveService struct {
	waves       repository.WaveRepository
	follows     repository.FollowRepository
	users       repository.UserRepository
	aggregator  *feed.Aggregator
	notifier    *NotificationService
	dispatcher  *notifications.Dispatcher
	anime       AnimeLookup
	flags       *featureflags.Manager
	maxAttempts int
	now         func() time.Time
}

type CreateWaveInput struct {
	UserID    uint
	Title     string
	Content   string
	MediaURLs []string
	MediaType string
	WaveType  string
	Rating    int
	AnimeID   *int
}

type ListFeedInput struct {
	ViewerID  uint
	Limit     int
	Offset    int
	WaveType  string
	UserID    uint
	Following bool
}

func NewWaveService(
	waves repository.WaveRepository,
	follows repository.FollowRepository,
	users repository.UserRepository,
	aggregator *feed.Aggregator,
	notifier *NotificationService,
	dispatcher *notifications.Dispatcher,
	anime AnimeLookup,
	flags *featureflags.Manager,
	maxAttempts int,
) *WaveService {
	if maxAttempts <= 0 {
		maxAttempts = DefaultWriteMaxAttempts
	}
	return &WaveService{
		waves:       waves,
		follows:     follows,
		users:       users,
		aggregator:  aggregator,
		notifier:    notifier,
		dispatcher:  dispatcher,
		anime:       anime,
		flags:       flags,
		maxAttempts: maxAttempts,
		now:         time.Now,
	}
}

// Aggregator exposes the profile enricher so realtime sessions can share it.
func (s *WaveService) Aggregator() *feed.Aggregator {
	return s.aggregator
}

func (s *WaveService) CreateWave(ctx context.Context, in CreateWaveInput) (*models.Wave, error) {
	if in.UserID == 0 {
		return nil, models.NewNotAuthenticatedError()
	}
	title := strings.TrimSpace(in.Title)
	content := strings.TrimSpace(in.Content)
	if title == "" && content == "" {
		return nil, models.NewEmptyContentError()
	}
	if utf8.RuneCountInString(title) > maxWaveTitleLen {
		return nil, models.NewValidationError("Title too long (max 300 characters)")
	}
	if utf8.RuneCountInString(content) > maxWaveContentLen {
		return nil, models.NewValidationError("Content too long (max 10000 characters)")
	}

	mediaURLs, err := validateMediaURLs(in.MediaURLs)
	if err != nil {
		return nil, err
	}
	mediaType := strings.ToLower(strings.TrimSpace(in.MediaType))
	switch mediaType {
	case models.MediaTypeNone, models.MediaTypeImage, models.MediaTypeVideo, models.MediaTypeGIF:
	default:
		return nil, models.NewValidationError("Invalid media_type")
	}
	if len(mediaURLs) == 0 {
		mediaType = models.MediaTypeNone
	} else if mediaType == models.MediaTypeNone {
		mediaType = models.MediaTypeImage
	}

	waveType := in.WaveType
	if waveType == "" {
		waveType = models.WaveTypePersonal
	}
	if waveType != models.WaveTypePersonal && waveType != models.WaveTypeCommunity {
		return nil, models.NewValidationError("Invalid wave_type")
	}
	if in.Rating < 0 || in.Rating > 5 {
		return nil, models.NewValidationError("Rating must be between 0 and 5")
	}

	now := s.now().UTC()
	wave := &models.Wave{
		UserID:           in.UserID,
		Title:            title,
		Content:          content,
		MediaURLs:        mediaURLs,
		MediaType:        mediaType,
		WaveType:         waveType,
		Rating:           in.Rating,
		LikedBy:          []uint{},
		CommentsList:     []models.Comment{},
		CommunityRatings: []models.RatingEntry{},
		CreatedAt:        now,
		UpdatedAt:        now,
	}

	if in.AnimeID != nil && s.anime != nil && s.flags.Enabled(featureflags.AnimeMetadata, in.UserID) {
		meta, err := s.anime.Get(ctx, *in.AnimeID)
		if err != nil {
			return nil, err
		}
		wave.Anime = meta
	}

	if err := s.waves.Create(ctx, wave); err != nil {
		observability.WaveMutations.WithLabelValues("create", observability.OutcomeError).Inc()
		return nil, storeError(err)
	}
	observability.WaveMutations.WithLabelValues("create", observability.OutcomeOK).Inc()

	s.aggregator.EnrichOne(ctx, nil, wave)
	s.dispatcher.ToAll(ctx, notifications.Event{
		Type:      notifications.EventWaveCreated,
		ClientRef: ClientRefFromContext(ctx),
		Payload:   wave,
	})
	return wave, nil
}

func validateMediaURLs(raw []string) ([]string, error) {
	if len(raw) > maxWaveMedia {
		return nil, models.NewValidationError("Too many media items (max 4)")
	}
	out := make([]string, 0, len(raw))
	for _, u := range raw {
		u = strings.TrimSpace(u)
		if u == "" {
			continue
		}
		parsed, err := url.Parse(u)
		if err != nil || parsed.Host == "" || (parsed.Scheme != "http" && parsed.Scheme != "https") {
			return nil, models.NewValidationError("Invalid media URL")
		}
		out = append(out, u)
	}
	return out, nil
}

func (s *WaveService) GetWave(ctx context.Context, id uint) (*models.Wave, error) {
	wave, err := s.waves.GetByID(ctx, id)
	if err != nil {
		return nil, storeError(err)
	}
	s.aggregator.EnrichOne(ctx, nil, wave)
	return wave, nil
}

// ListFeed returns waves newest first. cache may be nil for a request-scoped
// profile lookup.
func (s *WaveService) ListFeed(ctx context.Context, cache *feed.ProfileCache, in ListFeedInput) ([]*models.Wave, error) {
	if in.WaveType != "" && in.WaveType != models.WaveTypePersonal && in.WaveType != models.WaveTypeCommunity {
		return nil, models.NewValidationError("Invalid wave_type")
	}
	q := models.FeedQuery{
		Limit:    in.Limit,
		Offset:   in.Offset,
		WaveType: in.WaveType,
		UserID:   in.UserID,
	}

	if in.Following && s.flags.Enabled(featureflags.FollowingFeed, in.ViewerID) {
		if in.ViewerID == 0 {
			return nil, models.NewNotAuthenticatedError()
		}
		authors, err := s.followingAuthors(ctx, in.ViewerID)
		if err != nil {
			return nil, err
		}
		if len(authors) == 0 {
			return []*models.Wave{}, nil
		}
		q.AuthorIDs = authors
	}

	waves, err := s.waves.List(ctx, q)
	if err != nil {
		return nil, storeError(err)
	}
	s.aggregator.Enrich(ctx, cache, waves)
	return waves, nil
}

func (s *WaveService) followingAuthors(ctx context.Context, viewerID uint) ([]uint, error) {
	const page = 100
	var ids []uint
	for offset := 0; offset < maxFollowingAuthors; offset += page {
		batch, err := s.follows.FollowingIDs(ctx, viewerID, page, offset)
		if err != nil {
			return nil, models.NewInternalError(err)
		}
		ids = append(ids, batch...)
		if len(batch) < page {
			break
		}
	}
	return ids, nil
}

func (s *WaveService) ListUserWaves(ctx context.Context, userID uint, limit, offset int) ([]*models.Wave, error) {
	if _, err := s.users.GetByID(ctx, userID); err != nil {
		return nil, err
	}
	return s.ListFeed(ctx, nil, ListFeedInput{UserID: userID, Limit: limit, Offset: offset})
}

func (s *WaveService) DeleteWave(ctx context.Context, waveID, requesterID uint) error {
	if requesterID == 0 {
		return models.NewNotAuthenticatedError()
	}
	wave, err := s.waves.GetByID(ctx, waveID)
	if err != nil {
		return storeError(err)
	}
	if wave.UserID != requesterID {
		return models.NewPermissionError("You can only delete your own waves")
	}
	if err := s.waves.Delete(ctx, waveID); err != nil {
		observability.WaveMutations.WithLabelValues("delete", observability.OutcomeError).Inc()
		return storeError(err)
	}
	observability.WaveMutations.WithLabelValues("delete", observability.OutcomeOK).Inc()

	s.dispatcher.ToAll(ctx, notifications.Event{
		Type:      notifications.EventWaveDeleted,
		ClientRef: ClientRefFromContext(ctx),
		Payload:   map[string]uint{"id": waveID},
	})
	return nil
}

// ToggleLike flips userID's like through the store's atomic set operation
// and returns the refreshed wave.
func (s *WaveService) ToggleLike(ctx context.Context, waveID, userID uint) (*models.Wave, bool, error) {
	if userID == 0 {
		return nil, false, models.NewNotAuthenticatedError()
	}
	liked, _, err := s.waves.ToggleLike(ctx, waveID, userID)
	if err != nil {
		observability.WaveMutations.WithLabelValues("like", observability.OutcomeError).Inc()
		return nil, false, storeError(err)
	}
	observability.WaveMutations.WithLabelValues("like", observability.OutcomeOK).Inc()

	wave, err := s.waves.GetByID(ctx, waveID)
	if err != nil {
		return nil, liked, storeError(err)
	}
	s.aggregator.EnrichOne(ctx, nil, wave)
	s.broadcastUpdate(ctx, wave)

	if liked {
		s.notifier.notify(ctx, &models.Notification{
			RecipientID: wave.UserID,
			ActorID:     userID,
			Type:        models.NotificationLike,
			WaveID:      &wave.ID,
			Message:     likeMessage(actorName(ctx, s.users, userID)),
		})
	}
	return wave, liked, nil
}

func (s *WaveService) Rate(ctx context.Context, waveID, raterID uint, rating int) (*models.Wave, error) {
	if raterID == 0 {
		return nil, models.NewNotAuthenticatedError()
	}
	wave, err := s.mutate(ctx, waveID, "rate", func(w *models.Wave) error {
		_, err := wavedoc.UpsertRating(w, raterID, rating, s.now())
		return err
	})
	if err != nil {
		return nil, err
	}
	s.notifier.notify(ctx, &models.Notification{
		RecipientID: wave.UserID,
		ActorID:     raterID,
		Type:        models.NotificationRating,
		WaveID:      &wave.ID,
		Message:     ratingMessage(actorName(ctx, s.users, raterID), rating),
	})
	return wave, nil
}

// RemoveRating drops raterID's score. Missing scores are a no-op.
func (s *WaveService) RemoveRating(ctx context.Context, waveID, raterID uint) (*models.Wave, error) {
	if raterID == 0 {
		return nil, models.NewNotAuthenticatedError()
	}
	return s.mutate(ctx, waveID, "unrate", func(w *models.Wave) error {
		if !wavedoc.RemoveRating(w, raterID) {
			return errUnchanged
		}
		return nil
	})
}

// mutate applies fn to a copy of the stored wave and writes it back only if
// nobody else wrote in between, retrying on conflict up to maxAttempts.
func (s *WaveService) mutate(ctx context.Context, waveID uint, kind string, fn func(*models.Wave) error) (*models.Wave, error) {
	ctx, span := observability.StartMutation(ctx, kind, waveID)

	for attempt := 1; attempt <= s.maxAttempts; attempt++ {
		span.Attempt()
		current, err := s.waves.GetByID(ctx, waveID)
		if err != nil {
			span.Finish(observability.OutcomeError, err)
			return nil, storeError(err)
		}

		next := current.Clone()
		if err := fn(next); err != nil {
			if errors.Is(err, errUnchanged) {
				span.Finish(observability.OutcomeUnchanged, nil)
				s.aggregator.EnrichOne(ctx, nil, current)
				return current, nil
			}
			span.Finish(observability.OutcomeRejected, err)
			return nil, err
		}
		wavedoc.Reconcile(next)
		next.UpdatedAt = s.now().UTC()

		err = s.waves.ReplaceDocument(ctx, next, current.Version)
		if err == nil {
			span.Finish(observability.OutcomeOK, nil)
			s.aggregator.EnrichOne(ctx, nil, next)
			s.broadcastUpdate(ctx, next)
			return next, nil
		}
		if !errors.Is(err, repository.ErrVersionConflict) {
			span.Finish(observability.OutcomeError, err)
			return nil, models.NewRemoteWriteError(err)
		}
		span.Conflict()
	}

	conflict := models.NewWriteConflictError(s.maxAttempts)
	span.Finish(observability.OutcomeConflict, conflict)
	return nil, conflict
}

func (s *WaveService) broadcastUpdate(ctx context.Context, wave *models.Wave) {
	s.dispatcher.ToAll(ctx, notifications.Event{
		Type:      notifications.EventWaveUpdated,
		ClientRef: ClientRefFromContext(ctx),
		Payload:   wave,
	})
}

// storeError passes domain errors through and marks anything else as a
// failed remote write.
func storeError(err error) error {
	var appErr *models.AppError
	if errors.As(err, &appErr) {
		return err
	}
	return models.NewRemoteWriteError(err)
}

// actorName is the display label used in notification text.
func actorName(ctx context.Context, users repository.UserRepository, id uint) string {
	if users == nil {
		return "Someone"
	}
	u, err := users.GetByID(ctx, id)
	if err != nil || u == nil {
		return "Someone"
	}
	if u.DisplayName != "" {
		return u.DisplayName
	}
	return u.Username
}
