package service

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"image"
	_ "image/gif" // Register GIF decoder
	"net/http"
	"strings"

	"wavely/internal/config"
	"wavely/internal/models"
	"wavely/internal/observability"
	"wavely/internal/repository"
	"wavely/internal/storage"

	"github.com/chai2010/webp"
	"github.com/disintegration/imaging"
	_ "golang.org/x/image/webp" // Register WebP decoder
)

const (
	DefaultMediaMaxUploadMB = 5
	JPEGQuality             = 82
	WebPQuality             = 70
	maxWaveImageSize        = 2048

	// Decoded size limits, checked from the header before any pixel is read.
	maxImageSide   = 8192
	maxImagePixels = 40_000_000
)

// Upload purposes.
const (
	PurposeWave    = "wave"
	PurposeProfile = "profile"
	PurposeBanner  = "banner"
)

type cropBox struct {
	width, height int
}

var purposeCrops = map[string]cropBox{
	PurposeProfile: {width: 400, height: 400},
	PurposeBanner:  {width: 1500, height: 500},
}

type UploadMediaInput struct {
	UserID      uint
	Purpose     string
	Filename    string
	ContentType string
	Content     []byte
}

// MediaResult describes a stored upload.
type MediaResult struct {
	URL         string `json:"url"`
	WebPURL     string `json:"webp_url,omitempty"`
	ContentType string `json:"content_type"`
	SizeBytes   int64  `json:"size_bytes"`
}

type MediaService struct {
	store              storage.ObjectStore
	users              repository.UserRepository
	maxUploadSizeBytes int64
}

func NewMediaService(store storage.ObjectStore, users repository.UserRepository, cfg *config.Config) *MediaService {
	maxMB := DefaultMediaMaxUploadMB
	if cfg != nil && cfg.MediaMaxUploadMB > 0 {
		maxMB = cfg.MediaMaxUploadMB
	}
	return &MediaService{
		store:              store,
		users:              users,
		maxUploadSizeBytes: int64(maxMB) * 1024 * 1024,
	}
}

func (s *MediaService) Upload(ctx context.Context, in UploadMediaInput) (*MediaResult, error) {
	if in.UserID == 0 {
		return nil, models.NewNotAuthenticatedError()
	}
	purpose := strings.ToLower(strings.TrimSpace(in.Purpose))
	if purpose == "" {
		purpose = PurposeWave
	}
	if purpose != PurposeWave && purpose != PurposeProfile && purpose != PurposeBanner {
		return nil, models.NewValidationError("Invalid upload purpose")
	}
	if len(in.Content) == 0 {
		return nil, models.NewValidationError("No file uploaded")
	}
	if int64(len(in.Content)) > s.maxUploadSizeBytes {
		return nil, models.NewValidationError(fmt.Sprintf("File too large (max %dMB)", s.maxUploadSizeBytes/(1024*1024)))
	}

	// The declared type is ignored; only sniffed content counts.
	detected := http.DetectContentType(in.Content)
	if !isAllowedImageMIME(detected) {
		return nil, models.NewValidationError("Invalid image type")
	}

	if err := checkDimensions(in.Content); err != nil {
		return nil, err
	}

	sum := sha256.Sum256(in.Content)
	baseKey := fmt.Sprintf("%s/%d/%s", purpose, in.UserID, hex.EncodeToString(sum[:]))

	var (
		primary     []byte
		contentType string
		ext         string
		variant     image.Image
	)
	if detected == "image/gif" && purpose == PurposeWave {
		// Kept as uploaded so animation survives.
		primary, contentType, ext = in.Content, "image/gif", "gif"
	} else {
		decoded, err := imaging.Decode(bytes.NewReader(in.Content), imaging.AutoOrientation(true))
		if err != nil {
			return nil, models.NewValidationError("Invalid image file")
		}
		processed := transformForPurpose(decoded, purpose)
		primary, contentType, ext, err = encodePrimary(processed, detected)
		if err != nil {
			return nil, models.NewInternalError(err)
		}
		variant = processed
	}

	url, err := s.putOnce(ctx, baseKey+"."+ext, contentType, primary)
	if err != nil {
		return nil, err
	}
	result := &MediaResult{URL: url, ContentType: contentType, SizeBytes: int64(len(primary))}

	if variant != nil {
		encoded, err := encodeWebP(variant, WebPQuality)
		if err != nil {
			return nil, models.NewInternalError(err)
		}
		if result.WebPURL, err = s.putOnce(ctx, baseKey+".webp", "image/webp", encoded); err != nil {
			return nil, err
		}
	}
	observability.MediaUploadBytes.WithLabelValues(purpose).Observe(float64(len(in.Content)))

	if purpose == PurposeProfile || purpose == PurposeBanner {
		if err := s.attachToProfile(ctx, in.UserID, purpose, result.URL); err != nil {
			return nil, err
		}
	}
	return result, nil
}

func checkDimensions(content []byte) error {
	cfg, _, err := image.DecodeConfig(bytes.NewReader(content))
	if err != nil {
		return models.NewValidationError("Invalid image file")
	}
	if cfg.Width <= 0 || cfg.Height <= 0 {
		return models.NewValidationError("Invalid image file")
	}
	if cfg.Width > maxImageSide || cfg.Height > maxImageSide || cfg.Width*cfg.Height > maxImagePixels {
		return models.NewValidationError(fmt.Sprintf("Image too large (max %dx%d px)", maxImageSide, maxImageSide))
	}
	return nil
}

// putOnce skips the write when an object with the same content key exists.
func (s *MediaService) putOnce(ctx context.Context, key, contentType string, data []byte) (string, error) {
	exists, err := s.store.Exists(ctx, key)
	if err != nil {
		return "", models.NewRemoteWriteError(err)
	}
	if exists {
		return s.store.URL(key), nil
	}
	url, err := s.store.Put(ctx, key, contentType, data)
	if err != nil {
		return "", models.NewRemoteWriteError(err)
	}
	return url, nil
}

func (s *MediaService) attachToProfile(ctx context.Context, userID uint, purpose, url string) error {
	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		return err
	}
	if purpose == PurposeProfile {
		user.ProfileImage = url
	} else {
		user.BannerImage = url
	}
	return s.users.Update(ctx, user)
}

func transformForPurpose(img image.Image, purpose string) image.Image {
	if box, ok := purposeCrops[purpose]; ok {
		return imaging.Fill(img, box.width, box.height, imaging.Center, imaging.Lanczos)
	}
	b := img.Bounds()
	if b.Dx() <= maxWaveImageSize && b.Dy() <= maxWaveImageSize {
		return img
	}
	return imaging.Fit(img, maxWaveImageSize, maxWaveImageSize, imaging.Lanczos)
}

// encodePrimary keeps PNG as PNG (transparency) and stores everything else
// as JPEG.
func encodePrimary(img image.Image, detected string) ([]byte, string, string, error) {
	buf := bytes.NewBuffer(nil)
	if detected == "image/png" {
		if err := imaging.Encode(buf, img, imaging.PNG); err != nil {
			return nil, "", "", err
		}
		return buf.Bytes(), "image/png", "png", nil
	}
	if err := imaging.Encode(buf, img, imaging.JPEG, imaging.JPEGQuality(JPEGQuality)); err != nil {
		return nil, "", "", err
	}
	return buf.Bytes(), "image/jpeg", "jpg", nil
}

func encodeWebP(img image.Image, quality int) ([]byte, error) {
	buf := bytes.NewBuffer(nil)
	if err := webp.Encode(buf, img, &webp.Options{Quality: float32(quality)}); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func isAllowedImageMIME(contentType string) bool {
	switch contentType {
	case "image/jpeg", "image/png", "image/gif", "image/webp":
		return true
	default:
		return false
	}
}
