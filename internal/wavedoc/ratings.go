package wavedoc

import (
	"math"
	"time"

	"wavely/internal/models"
)

// UpsertRating records raterID's score on a community wave, replacing any
// earlier score. Returns true when a new entry was created.
func UpsertRating(w *models.Wave, raterID uint, rating int, now time.Time) (bool, error) {
	if raterID == 0 {
		return false, models.NewNotAuthenticatedError()
	}
	if w.WaveType != models.WaveTypeCommunity {
		return false, models.NewNotRatableError()
	}
	if w.UserID == raterID {
		return false, models.NewSelfRatingError()
	}
	if rating < 1 || rating > 5 {
		return false, models.NewValidationError("rating must be between 1 and 5")
	}

	created := true
	for i := range w.CommunityRatings {
		if w.CommunityRatings[i].UserID == raterID {
			w.CommunityRatings[i].Rating = rating
			w.CommunityRatings[i].RatedAt = now.UTC()
			created = false
			break
		}
	}
	if created {
		w.CommunityRatings = append(w.CommunityRatings, models.RatingEntry{
			UserID:  raterID,
			Rating:  rating,
			RatedAt: now.UTC(),
		})
	}
	Reconcile(w)
	return created, nil
}

// RemoveRating drops raterID's entry. Reports whether one existed.
func RemoveRating(w *models.Wave, raterID uint) bool {
	for i, entry := range w.CommunityRatings {
		if entry.UserID == raterID {
			w.CommunityRatings = append(w.CommunityRatings[:i], w.CommunityRatings[i+1:]...)
			Reconcile(w)
			return true
		}
	}
	return false
}

// AverageRating is the mean score rounded to one decimal, or 0 with no entries.
func AverageRating(entries []models.RatingEntry) float64 {
	if len(entries) == 0 {
		return 0
	}
	sum := 0
	for _, e := range entries {
		sum += e.Rating
	}
	mean := float64(sum) / float64(len(entries))
	return math.Round(mean*10) / 10
}
