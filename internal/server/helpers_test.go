package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"wavely/internal/config"
	"wavely/internal/models"
	"wavely/internal/repository"
	"wavely/internal/service"
	"wavely/internal/storage"

	"github.com/alicebob/miniredis/v2"
	"github.com/gofiber/fiber/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// memUsers is an in-memory UserRepository keyed by ID.
type memUsers struct {
	mu     sync.Mutex
	users  map[uint]*models.User
	nextID uint
}

var _ repository.UserRepository = (*memUsers)(nil)

func newMemUsers() *memUsers {
	return &memUsers{users: make(map[uint]*models.User), nextID: 1}
}

func (m *memUsers) GetByID(_ context.Context, id uint) (*models.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[id]
	if !ok {
		return nil, models.NewNotFoundError("User", id)
	}
	cp := *u
	return &cp, nil
}

func (m *memUsers) GetByIDs(_ context.Context, ids []uint) ([]*models.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*models.User, 0, len(ids))
	for _, id := range ids {
		if u, ok := m.users[id]; ok {
			cp := *u
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (m *memUsers) find(match func(*models.User) bool) *models.User {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, u := range m.users {
		if match(u) {
			cp := *u
			return &cp
		}
	}
	return nil
}

func (m *memUsers) GetByEmail(_ context.Context, email string) (*models.User, error) {
	return m.find(func(u *models.User) bool { return u.Email == email }), nil
}

func (m *memUsers) GetByUsername(_ context.Context, username string) (*models.User, error) {
	return m.find(func(u *models.User) bool { return strings.EqualFold(u.Username, username) }), nil
}

func (m *memUsers) GetByFirebaseUID(_ context.Context, uid string) (*models.User, error) {
	return m.find(func(u *models.User) bool { return u.FirebaseUID != nil && *u.FirebaseUID == uid }), nil
}

func (m *memUsers) Create(_ context.Context, user *models.User) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	user.ID = m.nextID
	m.nextID++
	cp := *user
	m.users[user.ID] = &cp
	return nil
}

func (m *memUsers) Update(_ context.Context, user *models.User) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.users[user.ID]; !ok {
		return models.NewNotFoundError("User", user.ID)
	}
	cp := *user
	m.users[user.ID] = &cp
	return nil
}

func (m *memUsers) List(_ context.Context, _, _ int) ([]*models.User, error) {
	return nil, nil
}

// memFollows is an in-memory FollowRepository.
type memFollows struct {
	mu    sync.Mutex
	edges map[[2]uint]bool
}

var _ repository.FollowRepository = (*memFollows)(nil)

func newMemFollows() *memFollows {
	return &memFollows{edges: make(map[[2]uint]bool)}
}

func (m *memFollows) Follow(_ context.Context, followerID, followeeID uint) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := [2]uint{followerID, followeeID}
	if m.edges[key] {
		return false, nil
	}
	m.edges[key] = true
	return true, nil
}

func (m *memFollows) Unfollow(_ context.Context, followerID, followeeID uint) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.edges, [2]uint{followerID, followeeID})
	return nil
}

func (m *memFollows) IsFollowing(_ context.Context, followerID, followeeID uint) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.edges[[2]uint{followerID, followeeID}], nil
}

func (m *memFollows) ids(match func(edge [2]uint) (uint, bool)) []uint {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []uint
	for edge := range m.edges {
		if id, ok := match(edge); ok {
			out = append(out, id)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

func (m *memFollows) FollowerIDs(_ context.Context, userID uint, _, _ int) ([]uint, error) {
	return m.ids(func(e [2]uint) (uint, bool) { return e[0], e[1] == userID }), nil
}

func (m *memFollows) FollowingIDs(_ context.Context, userID uint, _, offset int) ([]uint, error) {
	if offset > 0 {
		return nil, nil
	}
	return m.ids(func(e [2]uint) (uint, bool) { return e[1], e[0] == userID }), nil
}

func (m *memFollows) Counts(ctx context.Context, userID uint) (int64, int64, error) {
	followers, _ := m.FollowerIDs(ctx, userID, 0, 0)
	following, _ := m.FollowingIDs(ctx, userID, 0, 0)
	return int64(len(followers)), int64(len(following)), nil
}

// memNotifications is an in-memory NotificationRepository.
type memNotifications struct {
	mu      sync.Mutex
	items   []*models.Notification
	devices map[string]uint
}

var _ repository.NotificationRepository = (*memNotifications)(nil)

func newMemNotifications() *memNotifications {
	return &memNotifications{devices: make(map[string]uint)}
}

func (m *memNotifications) Create(_ context.Context, n *models.Notification) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	n.ID = uint(len(m.items) + 1)
	m.items = append(m.items, n)
	return nil
}

func (m *memNotifications) List(_ context.Context, recipientID uint, unreadOnly bool, _, _ int) ([]*models.Notification, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := []*models.Notification{}
	for _, n := range m.items {
		if n.RecipientID == recipientID && (!unreadOnly || !n.Read) {
			out = append(out, n)
		}
	}
	return out, nil
}

func (m *memNotifications) MarkRead(_ context.Context, recipientID, id uint) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, n := range m.items {
		if n.ID == id && n.RecipientID == recipientID {
			n.Read = true
			return nil
		}
	}
	return models.NewNotFoundError("Notification", id)
}

func (m *memNotifications) MarkAllRead(_ context.Context, recipientID uint) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	for _, item := range m.items {
		if item.RecipientID == recipientID && !item.Read {
			item.Read = true
			n++
		}
	}
	return n, nil
}

func (m *memNotifications) UnreadCount(ctx context.Context, recipientID uint) (int64, error) {
	list, _ := m.List(ctx, recipientID, true, 0, 0)
	return int64(len(list)), nil
}

func (m *memNotifications) RegisterDevice(_ context.Context, userID uint, token string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.devices[token] = userID
	return nil
}

func (m *memNotifications) DeviceTokens(_ context.Context, userID uint) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []string
	for token, id := range m.devices {
		if id == userID {
			out = append(out, token)
		}
	}
	return out, nil
}

func (m *memNotifications) RemoveDevice(_ context.Context, token string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.devices, token)
	return nil
}

func (m *memNotifications) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.items)
}

// memWaves is an in-memory WaveRepository with the version check.
type memWaves struct {
	mu     sync.Mutex
	waves  map[uint]*models.Wave
	nextID uint
}

var _ repository.WaveRepository = (*memWaves)(nil)

func newMemWaves() *memWaves {
	return &memWaves{waves: make(map[uint]*models.Wave), nextID: 1}
}

func (m *memWaves) Create(_ context.Context, w *models.Wave) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	w.ID = m.nextID
	m.nextID++
	w.Version = 1
	m.waves[w.ID] = w.Clone()
	return nil
}

func (m *memWaves) GetByID(_ context.Context, id uint) (*models.Wave, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	w, ok := m.waves[id]
	if !ok {
		return nil, models.NewNotFoundError("Wave", id)
	}
	return w.Clone(), nil
}

func (m *memWaves) List(_ context.Context, q models.FeedQuery) ([]*models.Wave, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := []*models.Wave{}
	for _, w := range m.waves {
		if q.UserID != 0 && w.UserID != q.UserID {
			continue
		}
		if q.WaveType != "" && w.WaveType != q.WaveType {
			continue
		}
		if q.AuthorIDs != nil && !containsID(q.AuthorIDs, w.UserID) {
			continue
		}
		out = append(out, w.Clone())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID > out[j].ID })
	if q.Limit > 0 && len(out) > q.Limit {
		out = out[:q.Limit]
	}
	return out, nil
}

func (m *memWaves) ListIDs(_ context.Context) ([]uint, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	ids := make([]uint, 0, len(m.waves))
	for id := range m.waves {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids, nil
}

func (m *memWaves) ReplaceDocument(_ context.Context, w *models.Wave, expectedVersion int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	stored, ok := m.waves[w.ID]
	if !ok || stored.Version != expectedVersion {
		return repository.ErrVersionConflict
	}
	w.Version = expectedVersion + 1
	next := w.Clone()
	next.LikedBy = stored.LikedBy
	next.Likes = stored.Likes
	m.waves[w.ID] = next
	return nil
}

func (m *memWaves) ToggleLike(_ context.Context, waveID, userID uint) (bool, int, error) {
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

func (m *memWaves) Delete(_ context.Context, id uint) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.waves[id]; !ok {
		return models.NewNotFoundError("Wave", id)
	}
	delete(m.waves, id)
	return nil
}

func containsID(list []uint, v uint) bool {
	for _, x := range list {
		if x == v {
			return true
		}
	}
	return false
}

// testEnv is a server wired to in-memory repositories and miniredis.
type testEnv struct {
	server *Server
	app    *fiber.App
	mr     *miniredis.Miniredis
	rdb    *redis.Client
	users  *memUsers
	waves  *memWaves
	notes  *memNotifications
}

func newTestEnv(t *testing.T, flags string) *testEnv {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	cfg := &config.Config{
		JWTSecret:        "test-secret",
		MediaDir:         t.TempDir(),
		MediaPublicURL:   "http://localhost:8375/media",
		MediaMaxUploadMB: 5,
		DefaultAvatarURL: "https://img.test/default.png",
		WriteMaxAttempts: 3,
		FeatureFlags:     flags,
	}
	env := &testEnv{
		mr:    mr,
		rdb:   rdb,
		users: newMemUsers(),
		waves: newMemWaves(),
		notes: newMemNotifications(),
	}
	s, err := NewServerWithDeps(cfg, Deps{
		Redis:         rdb,
		Waves:         env.waves,
		Users:         env.users,
		Follows:       newMemFollows(),
		Notifications: env.notes,
		Store:         storage.NewLocalStore(cfg.MediaDir, cfg.MediaPublicURL),
	})
	require.NoError(t, err)
	env.server = s
	env.app = s.App()
	return env
}

// addUser creates an account directly and returns it with a session token.
func (e *testEnv) addUser(t *testing.T, username string) (*models.User, string) {
	t.Helper()
	u := &models.User{Username: username, Email: username + "@wavely.test", DisplayName: strings.ToUpper(username[:1]) + username[1:]}
	require.NoError(t, e.users.Create(context.Background(), u))
	token, err := e.server.tokens.Issue(u.ID, u.Username)
	require.NoError(t, err)
	return u, token
}

func (e *testEnv) do(t *testing.T, method, path, token string, body interface{}) *http.Response {
	t.Helper()
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := e.app.Test(req, -1)
	require.NoError(t, err)
	t.Cleanup(func() { _ = resp.Body.Close() })
	return resp
}

func decodeJSON(t *testing.T, resp *http.Response, out interface{}) {
	t.Helper()
	require.NoError(t, json.NewDecoder(resp.Body).Decode(out))
}

func errorCode(t *testing.T, resp *http.Response) string {
	t.Helper()
	var body models.ErrorResponse
	decodeJSON(t, resp, &body)
	return body.Code
}

// --- parsePagination ---

func TestParsePagination(t *testing.T) {
	app := fiber.New()
	app.Get("/items", func(c *fiber.Ctx) error {
		p := parsePagination(c, 25)
		return c.JSON(fiber.Map{"limit": p.Limit, "offset": p.Offset})
	})

	tests := []struct {
		query      string
		wantLimit  float64
		wantOffset float64
	}{
		{"", 25, 0},
		{"?limit=10&offset=30", 10, 30},
		{"?limit=1000", 100, 0},
		{"?limit=-5&offset=-1", 25, 0},
	}
	for _, tt := range tests {
		t.Run(tt.query, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/items"+tt.query, nil)
			resp, err := app.Test(req)
			require.NoError(t, err)
			defer func() { _ = resp.Body.Close() }()

			var body map[string]float64
			require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
			assert.Equal(t, tt.wantLimit, body["limit"])
			assert.Equal(t, tt.wantOffset, body["offset"])
		})
	}
}

// --- parseID ---

func TestParseID(t *testing.T) {
	app := fiber.New()
	s := &Server{}
	app.Get("/items/:id", func(c *fiber.Ctx) error {
		id, err := s.parseID(c, "id")
		if err != nil {
			return nil
		}
		return c.JSON(fiber.Map{"id": id})
	})

	for path, want := range map[string]int{
		"/items/42":  http.StatusOK,
		"/items/abc": http.StatusBadRequest,
		"/items/0":   http.StatusBadRequest,
		"/items/-3":  http.StatusBadRequest,
	} {
		t.Run(path, func(t *testing.T) {
			resp, err := app.Test(httptest.NewRequest(http.MethodGet, path, nil))
			require.NoError(t, err)
			defer func() { _ = resp.Body.Close() }()
			assert.Equal(t, want, resp.StatusCode)
		})
	}
}

// --- mapServiceError ---

func TestMapServiceError(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{models.NewNotAuthenticatedError(), http.StatusUnauthorized},
		{models.NewNotFoundError("Wave", 1), http.StatusNotFound},
		{models.ErrParentNotFound, http.StatusNotFound},
		{models.NewValidationError("bad"), http.StatusBadRequest},
		{models.NewEmptyContentError(), http.StatusBadRequest},
		{models.NewPermissionError("no"), http.StatusForbidden},
		{models.ErrSelfRating, http.StatusForbidden},
		{models.ErrNotRatable, http.StatusUnprocessableEntity},
		{&models.AppError{Code: models.CodeRemoteWrite, Message: "upstream"}, http.StatusBadGateway},
		{models.ErrWriteConflict, http.StatusConflict},
		{models.NewConflictError("taken"), http.StatusConflict},
		{&models.AppError{Code: models.CodeUnavailable, Message: "down"}, http.StatusServiceUnavailable},
		{fmt.Errorf("wrapped: %w", models.NewNotFoundError("User", 2)), http.StatusNotFound},
		{errors.New("boom"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.err.Error(), func(t *testing.T) {
			assert.Equal(t, tt.want, mapServiceError(tt.err))
		})
	}
}

func TestRespondError_HidesInternalDetails(t *testing.T) {
	app := fiber.New()
	app.Get("/", func(c *fiber.Ctx) error {
		return respondError(c, errors.New("pq: connection refused"))
	})
	resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/", nil))
	require.NoError(t, err)
	defer func() { _ = resp.Body.Close() }()

	assert.Equal(t, http.StatusInternalServerError, resp.StatusCode)
	raw, _ := io.ReadAll(resp.Body)
	assert.NotContains(t, string(raw), "connection refused")
}

func TestClientRefMiddleware(t *testing.T) {
	app := fiber.New()
	app.Use(ClientRef())
	app.Get("/", func(c *fiber.Ctx) error {
		return c.SendString(service.ClientRefFromContext(c.UserContext()))
	})

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(ClientRefHeader, "ref-1")
	resp, err := app.Test(req)
	require.NoError(t, err)
	defer func() { _ = resp.Body.Close() }()
	raw, _ := io.ReadAll(resp.Body)
	assert.Equal(t, "ref-1", string(raw))

	req = httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(ClientRefHeader, strings.Repeat("x", maxClientRefLen+1))
	resp2, err := app.Test(req)
	require.NoError(t, err)
	defer func() { _ = resp2.Body.Close() }()
	raw, _ = io.ReadAll(resp2.Body)
	assert.Empty(t, string(raw))
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	require.Eventually(t, cond, 2*time.Second, 10*time.Millisecond)
}
