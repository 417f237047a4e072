package models

// AnimeMetadata is the subset of catalogue data attached to a wave.
type AnimeMetadata struct {
	ID         int    `json:"id" bson:"id"`
	Title      string `json:"title" bson:"title"`
	CoverImage string `json:"cover_image" bson:"cover_image"`
	Episodes   int    `json:"episodes" bson:"episodes"`
	Format     string `json:"format" bson:"format"`
	SiteURL    string `json:"site_url" bson:"site_url"`
}
