package domain

import "time"

// User is the canonical representation of a forum user profile.
type User struct {
	Username           string    `db:"username" json:"username"`
	ID                 string    `db:"id" json:"id"`
	CreatedUTC         int64     `db:"created_utc" json:"created_utc"`
	CommentKarma       int       `db:"comment_karma" json:"comment_karma"`
	LinkKarma          int       `db:"link_karma" json:"link_karma"`
	IsVerified         bool      `db:"is_verified" json:"is_verified"`
	HasPremium         bool      `db:"has_premium" json:"has_premium"`
	ProfileDescription string    `db:"profile_description" json:"profile_description"`
	ScrapedAt          time.Time `db:"scraped_at" json:"scraped_at"`
}
