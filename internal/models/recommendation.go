package models

import "time"

// RecommenderType classifies who is writing the letter. At least one
// submitted letter must come from an educator or community group leader.
type RecommenderType string

const (
	RecommenderEducator       RecommenderType = "EDUCATOR"
	RecommenderCommunityGroup RecommenderType = "COMMUNITY_GROUP"
	RecommenderOther          RecommenderType = "OTHER"
)

// Valid reports enum membership.
func (t RecommenderType) Valid() bool {
	switch t {
	case RecommenderEducator, RecommenderCommunityGroup, RecommenderOther:
		return true
	}
	return false
}

// QualifiesForQuorum reports whether this recommender type satisfies the
// educator-or-community-leader composition rule.
func (t RecommenderType) QualifiesForQuorum() bool {
	return t == RecommenderEducator || t == RecommenderCommunityGroup
}

// RecommendationStatus is the monotonic letter lifecycle. VIEWED may be
// skipped when a recommender opens and submits in one visit; SUBMITTED is
// terminal.
type RecommendationStatus string

const (
	RecommendationPending   RecommendationStatus = "PENDING"
	RecommendationEmailSent RecommendationStatus = "EMAIL_SENT"
	RecommendationViewed    RecommendationStatus = "VIEWED"
	RecommendationSubmitted RecommendationStatus = "SUBMITTED"
)

// Recommendation represents one recommender invitation and, eventually, the
// submitted letter. The record survives token resends; only the token and
// status reset.
type Recommendation struct {
	ID            string               `db:"id" json:"id"`
	ApplicationID string               `db:"application_id" json:"application_id"`
	Status        RecommendationStatus `db:"status" json:"status"`

	RecommenderName  string          `db:"recommender_name" json:"recommender_name"`
	RecommenderEmail string          `db:"recommender_email" json:"recommender_email"`
	RecommenderType  RecommenderType `db:"recommender_type" json:"recommender_type"`
	Organization     *string         `db:"organization" json:"organization,omitempty"`

	AccessToken    string    `db:"access_token" json:"-"`
	TokenExpiresAt time.Time `db:"token_expires_at" json:"token_expires_at"`

	LetterFileID *string    `db:"letter_file_id" json:"letter_file_id,omitempty"`
	LetterText   *string    `db:"letter_text" json:"letter_text,omitempty"`
	SubmittedAt  *time.Time `db:"submitted_at" json:"submitted_at,omitempty"`
	ViewedAt     *time.Time `db:"viewed_at" json:"viewed_at,omitempty"`

	ResendCount        int        `db:"resend_count" json:"resend_count"`
	EmailRemindersSent int        `db:"email_reminders_sent" json:"email_reminders_sent"`
	LastReminderAt     *time.Time `db:"last_reminder_at" json:"last_reminder_at,omitempty"`

	Withdrawn bool `db:"withdrawn" json:"withdrawn"`

	CreatedAt time.Time `db:"created_at" json:"created_at"`
	UpdatedAt time.Time `db:"updated_at" json:"updated_at"`
}

// HasLetter reports whether a submitted letter reference is present.
func (r *Recommendation) HasLetter() bool {
	if r.LetterFileID != nil && *r.LetterFileID != "" {
		return true
	}
	return r.LetterText != nil && *r.LetterText != ""
}

// TokenExpired reports whether the access token is past its deadline.
func (r *Recommendation) TokenExpired(now time.Time) bool {
	return now.After(r.TokenExpiresAt)
}

// RecommendationProgress summarises letter completion for dashboards.
type RecommendationProgress struct {
	Total     int `db:"total" json:"total"`
	Submitted int `db:"submitted" json:"submitted"`
	Pending   int `db:"pending" json:"pending"`
}
