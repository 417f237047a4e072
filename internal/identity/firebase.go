package identity

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"

	"wavely/internal/config"

	firebase "firebase.google.com/go/v4"
	"firebase.google.com/go/v4/auth"
	"google.golang.org/api/option"
)

// ExternalIdentity is what a third-party identity provider vouches for.
type ExternalIdentity struct {
	UID           string
	Email         string
	EmailVerified bool
	DisplayName   string
	PhotoURL      string
}

// Verifier exchanges a provider ID token for an identity.
type Verifier interface {
	Verify(ctx context.Context, idToken string) (*ExternalIdentity, error)
}

// NewFirebaseApp initializes the Admin SDK from FIREBASE_CREDENTIALS, which
// may be a file path, raw JSON or base64-encoded JSON.
func NewFirebaseApp(ctx context.Context, cfg *config.Config) (*firebase.App, error) {
	if !cfg.FirebaseEnabled() {
		return nil, errors.New("firebase credentials not configured")
	}

	fbCfg := &firebase.Config{
		ProjectID:     cfg.FirebaseProjectID,
		StorageBucket: cfg.FirebaseStorageBucket,
	}
	app, err := firebase.NewApp(ctx, fbCfg, credentialsOption(cfg.FirebaseCredentials))
	if err != nil {
		return nil, fmt.Errorf("initialize firebase app: %w", err)
	}
	return app, nil
}

func credentialsOption(raw string) option.ClientOption {
	raw = strings.TrimSpace(raw)
	if strings.HasPrefix(raw, "{") {
		return option.WithCredentialsJSON([]byte(raw))
	}
	if decoded, err := base64.StdEncoding.DecodeString(raw); err == nil && strings.HasPrefix(strings.TrimSpace(string(decoded)), "{") {
		return option.WithCredentialsJSON(decoded)
	}
	return option.WithCredentialsFile(raw)
}

// FirebaseVerifier verifies Firebase Auth ID tokens.
type FirebaseVerifier struct {
	client *auth.Client
}

// NewFirebaseVerifier creates a verifier backed by the app's auth client.
func NewFirebaseVerifier(ctx context.Context, app *firebase.App) (*FirebaseVerifier, error) {
	client, err := app.Auth(ctx)
	if err != nil {
		return nil, fmt.Errorf("firebase auth client: %w", err)
	}
	return &FirebaseVerifier{client: client}, nil
}

func (v *FirebaseVerifier) Verify(ctx context.Context, idToken string) (*ExternalIdentity, error) {
	token, err := v.client.VerifyIDToken(ctx, idToken)
	if err != nil {
		return nil, ErrInvalidToken
	}
	return identityFromClaims(token.UID, token.Claims), nil
}

func identityFromClaims(uid string, claims map[string]interface{}) *ExternalIdentity {
	str := func(key string) string {
		s, _ := claims[key].(string)
		return s
	}
	verified, _ := claims["email_verified"].(bool)
	return &ExternalIdentity{
		UID:           uid,
		Email:         str("email"),
		EmailVerified: verified,
		DisplayName:   str("name"),
		PhotoURL:      str("picture"),
	}
}
