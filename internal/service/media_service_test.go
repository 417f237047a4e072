package service

import (
	"bytes"
	"context"
	"encoding/binary"
	"hash/crc32"
	"image"
	"image/color"
	"image/gif"
	"image/jpeg"
	"image/png"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"wavely/internal/config"
	"wavely/internal/models"
	"wavely/internal/storage"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func solidImage(w, h int) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, color.RGBA{R: uint8(x % 256), G: uint8(y % 256), B: 120, A: 255})
		}
	}
	return img
}

func jpegBytes(t *testing.T, w, h int) []byte {
	t.Helper()
	buf := bytes.NewBuffer(nil)
	require.NoError(t, jpeg.Encode(buf, solidImage(w, h), &jpeg.Options{Quality: 90}))
	return buf.Bytes()
}

func pngBytes(t *testing.T, w, h int) []byte {
	t.Helper()
	buf := bytes.NewBuffer(nil)
	require.NoError(t, png.Encode(buf, solidImage(w, h)))
	return buf.Bytes()
}

// pngHeader is a PNG cut off after IHDR. It declares a w x h RGBA image
// without carrying any pixel data.
func pngHeader(w, h uint32) []byte {
	ihdr := make([]byte, 13)
	binary.BigEndian.PutUint32(ihdr[0:], w)
	binary.BigEndian.PutUint32(ihdr[4:], h)
	ihdr[8], ihdr[9] = 8, 6

	buf := bytes.NewBufferString("\x89PNG\r\n\x1a\n")
	_ = binary.Write(buf, binary.BigEndian, uint32(len(ihdr)))
	chunk := append([]byte("IHDR"), ihdr...)
	buf.Write(chunk)
	_ = binary.Write(buf, binary.BigEndian, crc32.ChecksumIEEE(chunk))
	return buf.Bytes()
}

func decodeStored(t *testing.T, root, url, publicURL string) image.Image {
	t.Helper()
	rel := strings.TrimPrefix(url, publicURL+"/")
	data, err := os.ReadFile(filepath.Join(root, filepath.FromSlash(rel)))
	require.NoError(t, err)
	img, _, err := image.Decode(bytes.NewReader(data))
	require.NoError(t, err)
	return img
}

const testPublicURL = "http://localhost:8375/media"

func newMediaFixture(t *testing.T) (*MediaService, *userRepoStub, string) {
	t.Helper()
	root := t.TempDir()
	users := noopUserRepo()
	svc := NewMediaService(storage.NewLocalStore(root, testPublicURL), users, &config.Config{MediaMaxUploadMB: 5})
	return svc, users, root
}

func TestUpload_RejectsOversizeAndWrongType(t *testing.T) {
	svc, _, _ := newMediaFixture(t)
	ctx := context.Background()

	big := make([]byte, 6*1024*1024)
	copy(big, jpegBytes(t, 8, 8))
	_, err := svc.Upload(ctx, UploadMediaInput{UserID: 1, Content: big})
	assertCode(t, err, models.CodeValidation)

	_, err = svc.Upload(ctx, UploadMediaInput{UserID: 1, Content: []byte("just some text"), ContentType: "image/png"})
	assertCode(t, err, models.CodeValidation)

	_, err = svc.Upload(ctx, UploadMediaInput{UserID: 1})
	assertCode(t, err, models.CodeValidation)

	_, err = svc.Upload(ctx, UploadMediaInput{UserID: 1, Purpose: "wallpaper", Content: jpegBytes(t, 8, 8)})
	assertCode(t, err, models.CodeValidation)

	_, err = svc.Upload(ctx, UploadMediaInput{Content: jpegBytes(t, 8, 8)})
	assertCode(t, err, models.CodeNotAuthenticated)
}

func TestUpload_RejectsOversizeDimensions(t *testing.T) {
	svc, _, root := newMediaFixture(t)
	ctx := context.Background()

	for name, content := range map[string][]byte{
		"huge square": pngHeader(16000, 16000),
		"wide strip":  pngHeader(9000, 10),
		"pixel count": pngHeader(7000, 7000),
	} {
		_, err := svc.Upload(ctx, UploadMediaInput{UserID: 1, Purpose: PurposeWave, Content: content})
		if assert.Error(t, err, name) {
			assertCode(t, err, models.CodeValidation)
			assert.Contains(t, err.Error(), "too large", name)
		}
	}

	entries, err := os.ReadDir(root)
	require.NoError(t, err)
	assert.Empty(t, entries)

	_, err = svc.Upload(ctx, UploadMediaInput{UserID: 1, Content: pngBytes(t, 64, 48)})
	assert.NoError(t, err)
}

func TestUpload_ProfileCropsAndUpdatesUser(t *testing.T) {
	svc, users, root := newMediaFixture(t)
	var saved *models.User
	users.updateFn = func(_ context.Context, u *models.User) error { saved = u; return nil }

	res, err := svc.Upload(context.Background(), UploadMediaInput{
		UserID:  3,
		Purpose: PurposeProfile,
		Content: jpegBytes(t, 900, 600),
	})
	require.NoError(t, err)

	assert.True(t, strings.HasPrefix(res.URL, testPublicURL+"/profile/3/"))
	assert.True(t, strings.HasSuffix(res.URL, ".jpg"))
	assert.True(t, strings.HasSuffix(res.WebPURL, ".webp"))
	assert.Equal(t, "image/jpeg", res.ContentType)
	assert.Positive(t, res.SizeBytes)

	img := decodeStored(t, root, res.URL, testPublicURL)
	assert.Equal(t, 400, img.Bounds().Dx())
	assert.Equal(t, 400, img.Bounds().Dy())

	require.NotNil(t, saved)
	assert.Equal(t, res.URL, saved.ProfileImage)
}

func TestUpload_BannerAndWaveSizing(t *testing.T) {
	svc, users, root := newMediaFixture(t)
	var saved *models.User
	users.updateFn = func(_ context.Context, u *models.User) error { saved = u; return nil }

	banner, err := svc.Upload(context.Background(), UploadMediaInput{UserID: 3, Purpose: PurposeBanner, Content: pngBytes(t, 800, 800)})
	require.NoError(t, err)
	assert.Equal(t, "image/png", banner.ContentType)
	img := decodeStored(t, root, banner.URL, testPublicURL)
	assert.Equal(t, 1500, img.Bounds().Dx())
	assert.Equal(t, 500, img.Bounds().Dy())
	assert.Equal(t, banner.URL, saved.BannerImage)

	saved = nil
	wave, err := svc.Upload(context.Background(), UploadMediaInput{UserID: 3, Content: jpegBytes(t, 3000, 1000)})
	require.NoError(t, err)
	img = decodeStored(t, root, wave.URL, testPublicURL)
	assert.Equal(t, 2048, img.Bounds().Dx())
	assert.Nil(t, saved, "wave media leaves the profile alone")
}

func TestUpload_DeduplicatesSameContent(t *testing.T) {
	svc, _, root := newMediaFixture(t)
	content := jpegBytes(t, 64, 64)

	first, err := svc.Upload(context.Background(), UploadMediaInput{UserID: 5, Content: content})
	require.NoError(t, err)
	second, err := svc.Upload(context.Background(), UploadMediaInput{UserID: 5, Content: content})
	require.NoError(t, err)
	assert.Equal(t, first.URL, second.URL)

	entries, err := os.ReadDir(filepath.Join(root, "wave", "5"))
	require.NoError(t, err)
	assert.Len(t, entries, 2, "one primary plus one webp variant")
}

func TestUpload_GIFKeptAsIs(t *testing.T) {
	svc, _, root := newMediaFixture(t)
	pal := image.NewPaletted(image.Rect(0, 0, 10, 10), []color.Color{color.Black, color.White})
	buf := bytes.NewBuffer(nil)
	require.NoError(t, gif.EncodeAll(buf, &gif.GIF{Image: []*image.Paletted{pal, pal}, Delay: []int{5, 5}}))

	res, err := svc.Upload(context.Background(), UploadMediaInput{UserID: 2, Content: buf.Bytes()})
	require.NoError(t, err)
	assert.Equal(t, "image/gif", res.ContentType)
	assert.Empty(t, res.WebPURL)

	rel := strings.TrimPrefix(res.URL, testPublicURL+"/")
	stored, err := os.ReadFile(filepath.Join(root, filepath.FromSlash(rel)))
	require.NoError(t, err)
	assert.Equal(t, buf.Bytes(), stored)
}
