package service

import (
	"context"
	"strings"
	"testing"

	"wavely/internal/identity"
	"wavely/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

func newUserFixture() (*UserService, *userRepoStub, *followRepoStub, *notificationRepoStub) {
	users := noopUserRepo()
	follows := noopFollowRepo()
	notifs := &notificationRepoStub{}
	return NewUserService(users, follows, syncNotifier(notifs)), users, follows, notifs
}

func TestSignup(t *testing.T) {
	svc, users, _, _ := newUserFixture()
	ctx := context.Background()

	var created *models.User
	users.createFn = func(_ context.Context, u *models.User) error {
		u.ID = 11
		created = u
		return nil
	}

	user, err := svc.Signup(ctx, SignupInput{Username: "tidepool", Email: " Tide@Example.com ", Password: "Sup3r-Secret!pw"})
	require.NoError(t, err)
	assert.Equal(t, uint(11), user.ID)
	assert.Equal(t, "tide@example.com", created.Email)
	assert.Equal(t, "tidepool", created.DisplayName)
	assert.NoError(t, bcrypt.CompareHashAndPassword([]byte(created.Password), []byte("Sup3r-Secret!pw")))

	_, err = svc.Signup(ctx, SignupInput{Username: "tidepool", Email: "tide@example.com", Password: "weak"})
	assertCode(t, err, models.CodeValidation)

	users.getByEmailFn = func(_ context.Context, _ string) (*models.User, error) { return testUser(3), nil }
	_, err = svc.Signup(ctx, SignupInput{Username: "tidepool", Email: "tide@example.com", Password: "Sup3r-Secret!pw"})
	assertCode(t, err, models.CodeConflict)
}

func TestLogin(t *testing.T) {
	svc, users, _, _ := newUserFixture()
	ctx := context.Background()
	hash, err := bcrypt.GenerateFromPassword([]byte("Sup3r-Secret!pw"), bcrypt.MinCost)
	require.NoError(t, err)
	users.getByEmailFn = func(_ context.Context, email string) (*models.User, error) {
		if email != "tide@example.com" {
			return nil, nil
		}
		u := testUser(4)
		u.Password = string(hash)
		return u, nil
	}

	user, err := svc.Login(ctx, LoginInput{Email: "TIDE@example.com", Password: "Sup3r-Secret!pw"})
	require.NoError(t, err)
	assert.Equal(t, uint(4), user.ID)

	_, err = svc.Login(ctx, LoginInput{Email: "tide@example.com", Password: "wrong"})
	assertCode(t, err, models.CodeNotAuthenticated)
	_, err = svc.Login(ctx, LoginInput{Email: "ghost@example.com", Password: "Sup3r-Secret!pw"})
	assertCode(t, err, models.CodeNotAuthenticated)
}

func TestEnsureProfile_CreatesWithUniqueUsername(t *testing.T) {
	svc, users, _, _ := newUserFixture()
	taken := map[string]bool{"surfer": true, "surfer1": true}
	users.getByUsernameFn = func(_ context.Context, name string) (*models.User, error) {
		if taken[name] {
			return testUser(1), nil
		}
		return nil, nil
	}
	var created *models.User
	users.createFn = func(_ context.Context, u *models.User) error {
		u.ID = 20
		created = u
		return nil
	}

	user, isNew, err := svc.EnsureProfile(context.Background(), &identity.ExternalIdentity{
		UID:      "fb-uid",
		Email:    "Surfer@Example.com",
		PhotoURL: "https://img.test/p.png",
	})
	require.NoError(t, err)
	assert.True(t, isNew)
	assert.Equal(t, "surfer2", user.Username)
	assert.Equal(t, "surfer2", user.DisplayName)
	assert.Equal(t, "surfer@example.com", created.Email)
	require.NotNil(t, created.FirebaseUID)
	assert.Equal(t, "fb-uid", *created.FirebaseUID)
}

func TestEnsureProfile_ExistingAndLinked(t *testing.T) {
	svc, users, _, _ := newUserFixture()
	ctx := context.Background()

	users.getByFirebaseUIDFn = func(_ context.Context, _ string) (*models.User, error) { return testUser(5), nil }
	user, isNew, err := svc.EnsureProfile(ctx, &identity.ExternalIdentity{UID: "fb"})
	require.NoError(t, err)
	assert.False(t, isNew)
	assert.Equal(t, uint(5), user.ID)

	users.getByFirebaseUIDFn = func(_ context.Context, _ string) (*models.User, error) { return nil, nil }
	users.getByEmailFn = func(_ context.Context, _ string) (*models.User, error) { return testUser(6), nil }
	var updated *models.User
	users.updateFn = func(_ context.Context, u *models.User) error { updated = u; return nil }
	user, isNew, err = svc.EnsureProfile(ctx, &identity.ExternalIdentity{UID: "fb-6", Email: "six@example.com", EmailVerified: true})
	require.NoError(t, err)
	assert.False(t, isNew)
	assert.Equal(t, uint(6), user.ID)
	require.NotNil(t, updated.FirebaseUID)
	assert.Equal(t, "fb-6", *updated.FirebaseUID)

	_, _, err = svc.EnsureProfile(ctx, nil)
	assertCode(t, err, models.CodeNotAuthenticated)
}

func TestEnsureProfile_UnverifiedEmailDoesNotLink(t *testing.T) {
	svc, users, _, _ := newUserFixture()
	ctx := context.Background()

	users.getByFirebaseUIDFn = func(_ context.Context, _ string) (*models.User, error) { return nil, nil }
	users.getByEmailFn = func(_ context.Context, _ string) (*models.User, error) { return testUser(6), nil }
	users.updateFn = func(_ context.Context, _ *models.User) error {
		t.Fatal("existing account must not be updated")
		return nil
	}
	users.createFn = func(_ context.Context, _ *models.User) error {
		t.Fatal("no account should be created for a taken email")
		return nil
	}

	_, _, err := svc.EnsureProfile(ctx, &identity.ExternalIdentity{UID: "fb-x", Email: "six@example.com"})
	assertCode(t, err, models.CodeConflict)

	// A verified address cannot take over an account already bound to another provider uid.
	linked := testUser(6)
	other := "fb-original"
	linked.FirebaseUID = &other
	users.getByEmailFn = func(_ context.Context, _ string) (*models.User, error) { return linked, nil }
	_, _, err = svc.EnsureProfile(ctx, &identity.ExternalIdentity{UID: "fb-x", Email: "six@example.com", EmailVerified: true})
	assertCode(t, err, models.CodeConflict)
}

func TestUsernameBase(t *testing.T) {
	assert.Equal(t, "john_doe", usernameBase("John_Doe+tag@example.com", ""))
	assert.Equal(t, "ab0", usernameBase("a.b@example.com", ""))
	assert.Equal(t, "kai", usernameBase("", "Kai"))
	assert.Len(t, usernameBase(strings.Repeat("x", 60)+"@example.com", ""), 26)
}

func TestUpdateProfile(t *testing.T) {
	svc, users, _, _ := newUserFixture()
	ctx := context.Background()
	var saved *models.User
	users.updateFn = func(_ context.Context, u *models.User) error { saved = u; return nil }

	name, bio, avatar := "Tide Walker", "sea things", "https://img.test/new.png"
	user, err := svc.UpdateProfile(ctx, UpdateProfileInput{UserID: 3, DisplayName: &name, Bio: &bio, ProfileImage: &avatar})
	require.NoError(t, err)
	assert.Equal(t, "Tide Walker", user.DisplayName)
	assert.Equal(t, "sea things", saved.Bio)
	assert.Equal(t, avatar, saved.ProfileImage)
	assert.Equal(t, "user3", saved.Username, "untouched fields stay")

	long := strings.Repeat("n", 51)
	_, err = svc.UpdateProfile(ctx, UpdateProfileInput{UserID: 3, DisplayName: &long})
	assertCode(t, err, models.CodeValidation)

	longBio := strings.Repeat("b", 501)
	_, err = svc.UpdateProfile(ctx, UpdateProfileInput{UserID: 3, Bio: &longBio})
	assertCode(t, err, models.CodeValidation)

	badURL := "ftp://img.test/x.png"
	_, err = svc.UpdateProfile(ctx, UpdateProfileInput{UserID: 3, BannerImage: &badURL})
	assertCode(t, err, models.CodeValidation)

	users.getByUsernameFn = func(_ context.Context, _ string) (*models.User, error) { return testUser(8), nil }
	taken := "taken_name"
	_, err = svc.UpdateProfile(ctx, UpdateProfileInput{UserID: 3, Username: &taken})
	assertCode(t, err, models.CodeConflict)
}

func TestFollow(t *testing.T) {
	svc, users, follows, notifs := newUserFixture()
	ctx := context.Background()

	assertCode(t, svc.Follow(ctx, 1, 1), models.CodeValidation)
	assertCode(t, svc.Follow(ctx, 0, 2), models.CodeNotAuthenticated)

	require.NoError(t, svc.Follow(ctx, 1, 2))
	notes := notifs.createdNotifications()
	require.Len(t, notes, 1)
	assert.Equal(t, models.NotificationFollow, notes[0].Type)
	assert.Equal(t, "User 1 started following you", notes[0].Message)

	// Already following: idempotent and silent.
	follows.followFn = func(_ context.Context, _, _ uint) (bool, error) { return false, nil }
	require.NoError(t, svc.Follow(ctx, 1, 2))
	assert.Len(t, notifs.createdNotifications(), 1)

	users.getByIDFn = func(_ context.Context, id uint) (*models.User, error) {
		return nil, models.NewNotFoundError("User", id)
	}
	assertCode(t, svc.Follow(ctx, 1, 99), models.CodeNotFound)
	assertCode(t, svc.Unfollow(ctx, 1, 99), models.CodeNotFound)
}

func TestFollowersKeepOrder(t *testing.T) {
	svc, users, follows, _ := newUserFixture()
	follows.followerIDsFn = func(_ context.Context, _ uint, _, _ int) ([]uint, error) {
		return []uint{9, 4, 7}, nil
	}
	users.getByIDsFn = func(_ context.Context, _ []uint) ([]*models.User, error) {
		// Store order differs and user 7 is gone.
		return []*models.User{testUser(4), testUser(9)}, nil
	}

	got, err := svc.Followers(context.Background(), 1, 20, 0)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, uint(9), got[0].ID)
	assert.Equal(t, uint(4), got[1].ID)
}

func TestGetProfile_FillsFollowInfo(t *testing.T) {
	svc, _, follows, _ := newUserFixture()
	follows.countsFn = func(_ context.Context, _ uint) (int64, int64, error) { return 2, 1, nil }
	follows.followerIDsFn = func(_ context.Context, _ uint, _, _ int) ([]uint, error) { return []uint{5, 6}, nil }
	follows.followingIDsFn = func(_ context.Context, _ uint, _, _ int) ([]uint, error) { return []uint{5}, nil }

	user, err := svc.GetProfile(context.Background(), 3)
	require.NoError(t, err)
	assert.Equal(t, int64(2), user.FollowersCount)
	assert.Equal(t, int64(1), user.FollowingCount)
	assert.Equal(t, []uint{5, 6}, user.Followers)
	assert.Equal(t, []uint{5}, user.Following)

	svc2, users, _, _ := newUserFixture()
	users.getByUsernameFn = func(_ context.Context, _ string) (*models.User, error) { return nil, nil }
	_, err = svc2.GetByUsername(context.Background(), "ghost")
	assertCode(t, err, models.CodeNotFound)
}
