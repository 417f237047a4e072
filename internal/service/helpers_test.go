package service

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"testing"
	"time"

	"wavely/internal/feed"
	"wavely/internal/models"
	"wavely/internal/repository"

	"github.com/stretchr/testify/require"
)

// userRepoStub is a stub for repository.UserRepository.
type userRepoStub struct {
	getByIDFn          func(context.Context, uint) (*models.User, error)
	getByIDsFn         func(context.Context, []uint) ([]*models.User, error)
	getByEmailFn       func(context.Context, string) (*models.User, error)
	getByUsernameFn    func(context.Context, string) (*models.User, error)
	getByFirebaseUIDFn func(context.Context, string) (*models.User, error)
	createFn           func(context.Context, *models.User) error
	updateFn           func(context.Context, *models.User) error
}

func (s *userRepoStub) GetByID(ctx context.Context, id uint) (*models.User, error) {
	return s.getByIDFn(ctx, id)
}
func (s *userRepoStub) GetByIDs(ctx context.Context, ids []uint) ([]*models.User, error) {
	return s.getByIDsFn(ctx, ids)
}
func (s *userRepoStub) GetByEmail(ctx context.Context, email string) (*models.User, error) {
	return s.getByEmailFn(ctx, email)
}
func (s *userRepoStub) GetByUsername(ctx context.Context, username string) (*models.User, error) {
	return s.getByUsernameFn(ctx, username)
}
func (s *userRepoStub) GetByFirebaseUID(ctx context.Context, uid string) (*models.User, error) {
	return s.getByFirebaseUIDFn(ctx, uid)
}
func (s *userRepoStub) Create(ctx context.Context, user *models.User) error {
	return s.createFn(ctx, user)
}
func (s *userRepoStub) Update(ctx context.Context, user *models.User) error {
	return s.updateFn(ctx, user)
}
func (s *userRepoStub) List(_ context.Context, _, _ int) ([]*models.User, error) {
	return nil, nil
}

func testUser(id uint) *models.User {
	return &models.User{
		ID:           id,
		Username:     fmt.Sprintf("user%d", id),
		DisplayName:  fmt.Sprintf("User %d", id),
		ProfileImage: fmt.Sprintf("https://img.test/%d.png", id),
	}
}

func noopUserRepo() *userRepoStub {
	return &userRepoStub{
		getByIDFn: func(_ context.Context, id uint) (*models.User, error) { return testUser(id), nil },
		getByIDsFn: func(_ context.Context, ids []uint) ([]*models.User, error) {
			out := make([]*models.User, 0, len(ids))
			for _, id := range ids {
				out = append(out, testUser(id))
			}
			return out, nil
		},
		getByEmailFn:       func(_ context.Context, _ string) (*models.User, error) { return nil, nil },
		getByUsernameFn:    func(_ context.Context, _ string) (*models.User, error) { return nil, nil },
		getByFirebaseUIDFn: func(_ context.Context, _ string) (*models.User, error) { return nil, nil },
		createFn:           func(_ context.Context, _ *models.User) error { return nil },
		updateFn:           func(_ context.Context, _ *models.User) error { return nil },
	}
}

// followRepoStub is a stub for repository.FollowRepository.
type followRepoStub struct {
	followFn       func(context.Context, uint, uint) (bool, error)
	unfollowFn     func(context.Context, uint, uint) error
	followerIDsFn  func(context.Context, uint, int, int) ([]uint, error)
	followingIDsFn func(context.Context, uint, int, int) ([]uint, error)
	countsFn       func(context.Context, uint) (int64, int64, error)
}

func (s *followRepoStub) Follow(ctx context.Context, followerID, followeeID uint) (bool, error) {
	return s.followFn(ctx, followerID, followeeID)
}
func (s *followRepoStub) Unfollow(ctx context.Context, followerID, followeeID uint) error {
	return s.unfollowFn(ctx, followerID, followeeID)
}
func (s *followRepoStub) IsFollowing(_ context.Context, _, _ uint) (bool, error) {
	return false, nil
}
func (s *followRepoStub) FollowerIDs(ctx context.Context, userID uint, limit, offset int) ([]uint, error) {
	return s.followerIDsFn(ctx, userID, limit, offset)
}
func (s *followRepoStub) FollowingIDs(ctx context.Context, userID uint, limit, offset int) ([]uint, error) {
	return s.followingIDsFn(ctx, userID, limit, offset)
}
func (s *followRepoStub) Counts(ctx context.Context, userID uint) (int64, int64, error) {
	return s.countsFn(ctx, userID)
}

func noopFollowRepo() *followRepoStub {
	return &followRepoStub{
		followFn:       func(_ context.Context, _, _ uint) (bool, error) { return true, nil },
		unfollowFn:     func(_ context.Context, _, _ uint) error { return nil },
		followerIDsFn:  func(_ context.Context, _ uint, _, _ int) ([]uint, error) { return nil, nil },
		followingIDsFn: func(_ context.Context, _ uint, _, _ int) ([]uint, error) { return nil, nil },
		countsFn:       func(_ context.Context, _ uint) (int64, int64, error) { return 0, 0, nil },
	}
}

// notificationRepoStub records created notifications.
type notificationRepoStub struct {
	mu           sync.Mutex
	created      []*models.Notification
	tokens       []string
	removed      []string
	createErr    error
	registerFn   func(context.Context, uint, string) error
	markReadFn   func(context.Context, uint, uint) error
	unreadCount  int64
	listUnreadIn []bool
}

func (s *notificationRepoStub) Create(_ context.Context, n *models.Notification) error {
	if s.createErr != nil {
		return s.createErr
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	n.ID = uint(len(s.created) + 1)
	s.created = append(s.created, n)
	return nil
}
func (s *notificationRepoStub) List(_ context.Context, _ uint, unreadOnly bool, _, _ int) ([]*models.Notification, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.listUnreadIn = append(s.listUnreadIn, unreadOnly)
	return s.created, nil
}
func (s *notificationRepoStub) MarkRead(ctx context.Context, recipientID, id uint) error {
	if s.markReadFn != nil {
		return s.markReadFn(ctx, recipientID, id)
	}
	return nil
}
func (s *notificationRepoStub) MarkAllRead(_ context.Context, _ uint) (int64, error) {
	return int64(len(s.created)), nil
}
func (s *notificationRepoStub) UnreadCount(_ context.Context, _ uint) (int64, error) {
	return s.unreadCount, nil
}
func (s *notificationRepoStub) RegisterDevice(ctx context.Context, userID uint, token string) error {
	if s.registerFn != nil {
		return s.registerFn(ctx, userID, token)
	}
	return nil
}
func (s *notificationRepoStub) DeviceTokens(_ context.Context, _ uint) ([]string, error) {
	return s.tokens, nil
}
func (s *notificationRepoStub) RemoveDevice(_ context.Context, token string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.removed = append(s.removed, token)
	return nil
}

func (s *notificationRepoStub) createdNotifications() []*models.Notification {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]*models.Notification(nil), s.created...)
}

// memWaveStore is an in-memory WaveRepository that enforces the version
// check. beforeReplace runs ahead of each ReplaceDocument so tests can slip
// in a concurrent writer.
type memWaveStore struct {
	mu            sync.Mutex
	waves         map[uint]*models.Wave
	nextID        uint
	replaceCalls  int
	beforeReplace func(call int)
	replaceErr    error
}

var _ repository.WaveRepository = (*memWaveStore)(nil)

func newMemWaveStore() *memWaveStore {
	return &memWaveStore{waves: make(map[uint]*models.Wave), nextID: 1}
}

func (m *memWaveStore) Create(_ context.Context, w *models.Wave) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	w.ID = m.nextID
	m.nextID++
	w.Version = 1
	if w.CreatedAt.IsZero() {
		w.CreatedAt = time.Now()
	}
	m.waves[w.ID] = w.Clone()
	return nil
}

func (m *memWaveStore) GetByID(_ context.Context, id uint) (*models.Wave, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	w, ok := m.waves[id]
	if !ok {
		return nil, models.NewNotFoundError("Wave", id)
	}
	return w.Clone(), nil
}

func (m *memWaveStore) List(_ context.Context, q models.FeedQuery) ([]*models.Wave, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*models.Wave
	for _, w := range m.waves {
		if q.UserID != 0 && w.UserID != q.UserID {
			continue
		}
		if q.WaveType != "" && w.WaveType != q.WaveType {
			continue
		}
		if q.AuthorIDs != nil && !containsUint(q.AuthorIDs, w.UserID) {
			continue
		}
		out = append(out, w.Clone())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID > out[j].ID })
	return out, nil
}

func (m *memWaveStore) ListIDs(_ context.Context) ([]uint, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	ids := make([]uint, 0, len(m.waves))
	for id := range m.waves {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids, nil
}

func (m *memWaveStore) ReplaceDocument(_ context.Context, w *models.Wave, expectedVersion int64) error {
	m.mu.Lock()
	m.replaceCalls++
	call := m.replaceCalls
	hook := m.beforeReplace
	m.mu.Unlock()
	if hook != nil {
		hook(call)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.replaceErr != nil {
		return m.replaceErr
	}
	stored, ok := m.waves[w.ID]
	if !ok || stored.Version != expectedVersion {
		return repository.ErrVersionConflict
	}
	w.Version = expectedVersion + 1
	next := w.Clone()
	// Likes belong to ToggleLike.
	next.LikedBy = stored.LikedBy
	next.Likes = stored.Likes
	m.waves[w.ID] = next
	return nil
}

func (m *memWaveStore) ToggleLike(_ context.Context, waveID, userID uint) (bool, int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	w, ok := m.waves[waveID]
	if !ok {
		return false, 0, models.NewNotFoundError("Wave", waveID)
	}
	for i, id := range w.LikedBy {
		if id == userID {
			w.LikedBy = append(w.LikedBy[:i], w.LikedBy[i+1:]...)
			w.Likes = len(w.LikedBy)
			return false, w.Likes, nil
		}
	}
	w.LikedBy = append(w.LikedBy, userID)
	w.Likes = len(w.LikedBy)
	return true, w.Likes, nil
}

func (m *memWaveStore) Delete(_ context.Context, id uint) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.waves[id]; !ok {
		return models.NewNotFoundError("Wave", id)
	}
	delete(m.waves, id)
	return nil
}

// bump simulates another writer committing a change to id.
func (m *memWaveStore) bump(id uint, fn func(*models.Wave)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	w := m.waves[id]
	fn(w)
	w.Version++
}

func (m *memWaveStore) snapshot(id uint) *models.Wave {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.waves[id].Clone()
}

func containsUint(list []uint, v uint) bool {
	for _, x := range list {
		if x == v {
			return true
		}
	}
	return false
}

// syncNotifier returns a notification service that pushes inline.
func syncNotifier(repo *notificationRepoStub) *NotificationService {
	svc := NewNotificationService(repo, nil, nil, nil)
	svc.runAsync = func(f func()) { f() }
	return svc
}

type waveFixture struct {
	store    *memWaveStore
	users    *userRepoStub
	follows  *followRepoStub
	notifs   *notificationRepoStub
	waves    *WaveService
	comments *CommentService
}

func newWaveFixture(t *testing.T) *waveFixture {
	t.Helper()
	f := &waveFixture{
		store:   newMemWaveStore(),
		users:   noopUserRepo(),
		follows: noopFollowRepo(),
		notifs:  &notificationRepoStub{},
	}
	notifier := syncNotifier(f.notifs)
	f.waves = NewWaveService(f.store, f.follows, f.users, feed.NewAggregator(f.users, "https://img.test/default.png"),
		notifier, nil, nil, nil, 0)
	f.waves.now = func() time.Time { return time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC) }
	f.comments = NewCommentService(f.waves, f.users, notifier)
	return f
}

func (f *waveFixture) seedWave(t *testing.T, ownerID uint, waveType string) *models.Wave {
	t.Helper()
	w, err := f.waves.CreateWave(context.Background(), CreateWaveInput{
		UserID:   ownerID,
		Title:    "first light",
		Content:  "hello",
		WaveType: waveType,
	})
	require.NoError(t, err)
	return w
}

func assertCode(t *testing.T, err error, code string) {
	t.Helper()
	require.Error(t, err)
	var appErr *models.AppError
	require.True(t, errors.As(err, &appErr), "expected AppError, got %T: %v", err, err)
	require.Equal(t, code, appErr.Code)
}
