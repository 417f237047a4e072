package service

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"unicode/utf8"

	"wavely/internal/identity"
	"wavely/internal/models"
	"wavely/internal/repository"
	"wavely/internal/validation"

	"golang.org/x/crypto/bcrypt"
)

const (
	maxDisplayNameLen  = 50
	maxBioLen          = 500
	profileListPreview = 100
	maxUsernameProbes  = 50
)

var usernameScrub = regexp.MustCompile(`[^a-zA-Z0-9_-]+`)

type UserService struct {
	users    repository.UserRepository
	follows  repository.FollowRepository
	notifier *NotificationService
}

type SignupInput struct {
	Username string `json:"username" validate:"required,username"`
	Email    string `json:"email" validate:"required,email,max=254"`
	Password string `json:"password" validate:"required,password"`
}

type LoginInput struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

// UpdateProfileInput holds owner edits. Nil fields are left as they are.
type UpdateProfileInput struct {
	UserID       uint    `json:"-"`
	Username     *string `json:"username,omitempty"`
	DisplayName  *string `json:"display_name,omitempty"`
	Bio          *string `json:"bio,omitempty"`
	ProfileImage *string `json:"profile_image,omitempty"`
	BannerImage  *string `json:"banner_image,omitempty"`
}

func NewUserService(users repository.UserRepository, follows repository.FollowRepository, notifier *NotificationService) *UserService {
	return &UserService{users: users, follows: follows, notifier: notifier}
}

func (s *UserService) Signup(ctx context.Context, in SignupInput) (*models.User, error) {
	in.Email = strings.ToLower(strings.TrimSpace(in.Email))
	in.Username = strings.TrimSpace(in.Username)
	if err := validation.Struct(in); err != nil {
		return nil, err
	}

	if existing, err := s.users.GetByEmail(ctx, in.Email); err != nil {
		return nil, err
	} else if existing != nil {
		return nil, models.NewConflictError("Email already registered")
	}
	if existing, err := s.users.GetByUsername(ctx, in.Username); err != nil {
		return nil, err
	} else if existing != nil {
		return nil, models.NewConflictError("Username already taken")
	}

	hashed, err := bcrypt.GenerateFromPassword([]byte(in.Password), bcrypt.DefaultCost)
	if err != nil {
		return nil, models.NewInternalError(err)
	}
	user := &models.User{
		Username:    in.Username,
		Email:       in.Email,
		Password:    string(hashed),
		DisplayName: in.Username,
	}
	if err := s.users.Create(ctx, user); err != nil {
		return nil, err
	}
	return user, nil
}

func (s *UserService) Login(ctx context.Context, in LoginInput) (*models.User, error) {
	in.Email = strings.ToLower(strings.TrimSpace(in.Email))
	if err := validation.Struct(in); err != nil {
		return nil, err
	}
	user, err := s.users.GetByEmail(ctx, in.Email)
	if err != nil {
		return nil, err
	}
	// Same answer for unknown email and wrong password.
	if user == nil || user.Password == "" ||
		bcrypt.CompareHashAndPassword([]byte(user.Password), []byte(in.Password)) != nil {
		return nil, &models.AppError{Code: models.CodeNotAuthenticated, Message: "Invalid email or password"}
	}
	return user, nil
}

// EnsureProfile returns the account bound to an external identity, linking
// an existing account by verified email or creating one on first sign-in.
func (s *UserService) EnsureProfile(ctx context.Context, ext *identity.ExternalIdentity) (*models.User, bool, error) {
	if ext == nil || ext.UID == "" {
		return nil, false, models.NewNotAuthenticatedError()
	}
	user, err := s.users.GetByFirebaseUID(ctx, ext.UID)
	if err != nil {
		return nil, false, err
	}
	if user != nil {
		return user, false, nil
	}

	email := strings.ToLower(strings.TrimSpace(ext.Email))
	if email != "" {
		user, err = s.users.GetByEmail(ctx, email)
		if err != nil {
			return nil, false, err
		}
		if user != nil {
			// Only a provider-verified address may claim an existing account.
			if !ext.EmailVerified || user.FirebaseUID != nil {
				return nil, false, models.NewConflictError("Email already registered")
			}
			uid := ext.UID
			user.FirebaseUID = &uid
			if err := s.users.Update(ctx, user); err != nil {
				return nil, false, err
			}
			return user, false, nil
		}
	}

	username, err := s.uniqueUsername(ctx, usernameBase(email, ext.DisplayName))
	if err != nil {
		return nil, false, err
	}
	if email == "" {
		email = fmt.Sprintf("%s@users.wavely.invalid", strings.ToLower(ext.UID))
	}
	displayName := strings.TrimSpace(ext.DisplayName)
	if displayName == "" {
		displayName = username
	}
	if utf8.RuneCountInString(displayName) > maxDisplayNameLen {
		displayName = string([]rune(displayName)[:maxDisplayNameLen])
	}
	uid := ext.UID
	user = &models.User{
		FirebaseUID:  &uid,
		Username:     username,
		Email:        email,
		DisplayName:  displayName,
		ProfileImage: ext.PhotoURL,
	}
	if err := s.users.Create(ctx, user); err != nil {
		return nil, false, err
	}
	return user, true, nil
}

// usernameBase derives a valid username stem from an email local part.
func usernameBase(email, displayName string) string {
	local, _, _ := strings.Cut(email, "@")
	local, _, _ = strings.Cut(local, "+")
	if local == "" {
		local = displayName
	}
	base := strings.Trim(usernameScrub.ReplaceAllString(local, ""), "_-")
	if len(base) > validation.MaxUsernameLength-4 {
		base = base[:validation.MaxUsernameLength-4]
	}
	for len(base) < validation.MinUsernameLength {
		base += "0"
	}
	return strings.ToLower(base)
}

func (s *UserService) uniqueUsername(ctx context.Context, base string) (string, error) {
	candidate := base
	for i := 1; i <= maxUsernameProbes; i++ {
		if validation.Reserved(candidate) {
			candidate = fmt.Sprintf("%s%d", base, i)
			continue
		}
		existing, err := s.users.GetByUsername(ctx, candidate)
		if err != nil {
			return "", err
		}
		if existing == nil {
			return candidate, nil
		}
		candidate = fmt.Sprintf("%s%d", base, i)
	}
	return "", models.NewConflictError("Could not allocate a username")
}

// GetProfile loads a user with follow counts and the first page of each
// follow list.
func (s *UserService) GetProfile(ctx context.Context, id uint) (*models.User, error) {
	user, err := s.users.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	return s.withFollowInfo(ctx, user)
}

func (s *UserService) GetByUsername(ctx context.Context, username string) (*models.User, error) {
	user, err := s.users.GetByUsername(ctx, strings.TrimSpace(username))
	if err != nil {
		return nil, err
	}
	if user == nil {
		return nil, models.NewNotFoundError("User", username)
	}
	return s.withFollowInfo(ctx, user)
}

func (s *UserService) withFollowInfo(ctx context.Context, user *models.User) (*models.User, error) {
	followers, following, err := s.follows.Counts(ctx, user.ID)
	if err != nil {
		return nil, models.NewInternalError(err)
	}
	user.FollowersCount, user.FollowingCount = followers, following

	if user.Followers, err = s.follows.FollowerIDs(ctx, user.ID, profileListPreview, 0); err != nil {
		return nil, models.NewInternalError(err)
	}
	if user.Following, err = s.follows.FollowingIDs(ctx, user.ID, profileListPreview, 0); err != nil {
		return nil, models.NewInternalError(err)
	}
	return user, nil
}

func (s *UserService) UpdateProfile(ctx context.Context, in UpdateProfileInput) (*models.User, error) {
	if in.UserID == 0 {
		return nil, models.NewNotAuthenticatedError()
	}
	user, err := s.users.GetByID(ctx, in.UserID)
	if err != nil {
		return nil, err
	}

	if in.Username != nil {
		username := strings.TrimSpace(*in.Username)
		if err := validation.ValidateUsername(username); err != nil {
			return nil, models.NewValidationError(err.Error())
		}
		if username != user.Username {
			existing, err := s.users.GetByUsername(ctx, username)
			if err != nil {
				return nil, err
			}
			if existing != nil && existing.ID != user.ID {
				return nil, models.NewConflictError("Username already taken")
			}
			user.Username = username
		}
	}
	if in.DisplayName != nil {
		name := strings.TrimSpace(*in.DisplayName)
		if utf8.RuneCountInString(name) > maxDisplayNameLen {
			return nil, models.NewValidationError("Display name too long (max 50 characters)")
		}
		user.DisplayName = name
	}
	if in.Bio != nil {
		if utf8.RuneCountInString(*in.Bio) > maxBioLen {
			return nil, models.NewValidationError("Bio too long (max 500 characters)")
		}
		user.Bio = *in.Bio
	}
	if in.ProfileImage != nil {
		if user.ProfileImage, err = imageURL(*in.ProfileImage); err != nil {
			return nil, err
		}
	}
	if in.BannerImage != nil {
		if user.BannerImage, err = imageURL(*in.BannerImage); err != nil {
			return nil, err
		}
	}

	if err := s.users.Update(ctx, user); err != nil {
		return nil, err
	}
	return user, nil
}

// imageURL accepts an empty string (clears the image) or an http(s) URL.
func imageURL(raw string) (string, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", nil
	}
	if _, err := validateMediaURLs([]string{raw}); err != nil {
		return "", models.NewValidationError("Invalid image URL")
	}
	return raw, nil
}

func (s *UserService) Follow(ctx context.Context, followerID, targetID uint) error {
	if err := s.checkFollowTarget(ctx, followerID, targetID); err != nil {
		return err
	}
	created, err := s.follows.Follow(ctx, followerID, targetID)
	if err != nil {
		return models.NewInternalError(err)
	}
	if created {
		s.notifier.notify(ctx, &models.Notification{
			RecipientID: targetID,
			ActorID:     followerID,
			Type:        models.NotificationFollow,
			Message:     followMessage(actorName(ctx, s.users, followerID)),
		})
	}
	return nil
}

func (s *UserService) Unfollow(ctx context.Context, followerID, targetID uint) error {
	if err := s.checkFollowTarget(ctx, followerID, targetID); err != nil {
		return err
	}
	if err := s.follows.Unfollow(ctx, followerID, targetID); err != nil {
		return models.NewInternalError(err)
	}
	return nil
}

func (s *UserService) checkFollowTarget(ctx context.Context, followerID, targetID uint) error {
	if followerID == 0 {
		return models.NewNotAuthenticatedError()
	}
	if followerID == targetID {
		return models.NewValidationError("You cannot follow yourself")
	}
	_, err := s.users.GetByID(ctx, targetID)
	return err
}

func (s *UserService) Followers(ctx context.Context, userID uint, limit, offset int) ([]*models.User, error) {
	if _, err := s.users.GetByID(ctx, userID); err != nil {
		return nil, err
	}
	ids, err := s.follows.FollowerIDs(ctx, userID, limit, offset)
	if err != nil {
		return nil, models.NewInternalError(err)
	}
	return s.usersInOrder(ctx, ids)
}

func (s *UserService) Following(ctx context.Context, userID uint, limit, offset int) ([]*models.User, error) {
	if _, err := s.users.GetByID(ctx, userID); err != nil {
		return nil, err
	}
	ids, err := s.follows.FollowingIDs(ctx, userID, limit, offset)
	if err != nil {
		return nil, models.NewInternalError(err)
	}
	return s.usersInOrder(ctx, ids)
}

// usersInOrder loads ids and keeps their order. Deleted accounts are skipped.
func (s *UserService) usersInOrder(ctx context.Context, ids []uint) ([]*models.User, error) {
	found, err := s.users.GetByIDs(ctx, ids)
	if err != nil {
		return nil, err
	}
	byID := make(map[uint]*models.User, len(found))
	for _, u := range found {
		byID[u.ID] = u
	}
	out := make([]*models.User, 0, len(ids))
	for _, id := range ids {
		if u, ok := byID[id]; ok {
			out = append(out, u)
		}
	}
	return out, nil
}
