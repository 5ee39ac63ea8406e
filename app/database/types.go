package database

import (
	"time"
)

// ArchivedArticle is an article row as stored in the archive.
type ArchivedArticle struct {
	ID        string
	Section   string
	Headline  string
	Title     string
	Summary   string
	Category  string
	Body      string // JSON encoded content.Body
	OriginURL string
	ImageURL  string
	CreatedAt time.Time
}
