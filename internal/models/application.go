package models

import (
	"time"

	"github.com/lib/pq"
)

// ApplicationStatus enumerates the forward-only application lifecycle.
type ApplicationStatus string

const (
	StatusDraft                  ApplicationStatus = "DRAFT"
	StatusInProgress             ApplicationStatus = "IN_PROGRESS"
	StatusPendingRecommendations ApplicationStatus = "PENDING_RECOMMENDATIONS"
	StatusSubmitted              ApplicationStatus = "SUBMITTED"
	StatusUnderReview            ApplicationStatus = "UNDER_REVIEW"
	StatusFinalist               ApplicationStatus = "FINALIST"
	StatusSelected               ApplicationStatus = "SELECTED"
	StatusNotSelected            ApplicationStatus = "NOT_SELECTED"
	StatusWithdrawn              ApplicationStatus = "WITHDRAWN"
)

// statusTransitions is the closed forward transition table. Withdrawal is
// handled separately because it is reachable from every pre-decision state.
var statusTransitions = map[ApplicationStatus][]ApplicationStatus{
	StatusDraft:                  {StatusInProgress},
	StatusInProgress:             {StatusPendingRecommendations},
	StatusPendingRecommendations: {StatusSubmitted},
	StatusSubmitted:              {StatusUnderReview},
	StatusUnderReview:            {StatusFinalist, StatusNotSelected},
	StatusFinalist:               {StatusSelected, StatusNotSelected},
	StatusSelected:               {},
	StatusNotSelected:            {},
	StatusWithdrawn:              {},
}

// CanTransition reports whether moving from one status to another is legal.
func CanTransition(from, to ApplicationStatus) bool {
	if to == StatusWithdrawn {
		return !from.Decided()
	}
	for _, next := range statusTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// Submitted reports whether the status has reached SUBMITTED or a later
// state in the forward chain.
func (s ApplicationStatus) Submitted() bool {
	switch s {
	case StatusSubmitted, StatusUnderReview, StatusFinalist, StatusSelected, StatusNotSelected:
		return true
	}
	return false
}

// Decided reports whether the application has reached a terminal outcome.
func (s ApplicationStatus) Decided() bool {
	switch s {
	case StatusSelected, StatusNotSelected, StatusWithdrawn:
		return true
	}
	return false
}

// Valid reports enum membership.
func (s ApplicationStatus) Valid() bool {
	_, ok := statusTransitions[s]
	return ok
}

// Wizard step numbers. The per-step update endpoints address these.
const (
	StepPersonal    = 1
	StepAddress     = 2
	StepEducation   = 3
	StepEligibility = 4
	StepDocuments   = 5
	StepRecommender = 6
	StepReview      = 7

	StepMin = StepPersonal
	StepMax = StepReview
)

// Application represents one scholarship application row. All per-step
// fields are owner-writable until submitted_at is set; admins may override
// afterwards.
type Application struct {
	ID      string            `db:"id" json:"id"`
	OwnerID string            `db:"owner_id" json:"owner_id"`
	Status  ApplicationStatus `db:"status" json:"status"`

	CurrentStep    int           `db:"current_step" json:"current_step"`
	CompletedSteps pq.Int64Array `db:"completed_steps" json:"completed_steps"`

	// Step 1: personal info.
	FirstName   string `db:"first_name" json:"first_name"`
	LastName    string `db:"last_name" json:"last_name"`
	Phone       string `db:"phone" json:"phone"`
	DateOfBirth string `db:"date_of_birth" json:"date_of_birth"`

	// Step 2: address.
	Street string `db:"street" json:"street"`
	City   string `db:"city" json:"city"`
	State  string `db:"state" json:"state"`
	Zip    string `db:"zip" json:"zip"`

	// Step 3: education.
	HighSchoolName     string   `db:"high_school_name" json:"high_school_name"`
	HighSchoolCity     string   `db:"high_school_city" json:"high_school_city"`
	GraduationDate     string   `db:"graduation_date" json:"graduation_date"`
	GPA                *float64 `db:"gpa" json:"gpa,omitempty"`
	CollegeName        string   `db:"college_name" json:"college_name"`
	CollegeCity        string   `db:"college_city" json:"college_city"`
	CollegeState       string   `db:"college_state" json:"college_state"`
	YearInCollege      string   `db:"year_in_college" json:"year_in_college"`

	// Step 4: eligibility booleans.
	IsFullTimeStudent   bool `db:"is_full_time_student" json:"is_full_time_student"`
	IsMichiganResident  bool `db:"is_michigan_resident" json:"is_michigan_resident"`
	IsFirstTimeApplying bool `db:"is_first_time_applying" json:"is_first_time_applying"`
	IsPreviousRecipient bool `db:"is_previous_recipient" json:"is_previous_recipient"`

	// Step 5: documents. File ids are opaque references into blob storage.
	ProfilePhotoFileID *string `db:"profile_photo_file_id" json:"profile_photo_file_id,omitempty"`
	TranscriptFileID   *string `db:"transcript_file_id" json:"transcript_file_id,omitempty"`
	EssayFileID        *string `db:"essay_file_id" json:"essay_file_id,omitempty"`
	EssayText          *string `db:"essay_text" json:"essay_text,omitempty"`
	EssayWordCount     int     `db:"essay_word_count" json:"essay_word_count"`

	// Step 7: submission metadata.
	Signature   *string    `db:"signature" json:"signature,omitempty"`
	SubmittedAt *time.Time `db:"submitted_at" json:"submitted_at,omitempty"`

	WithdrawnAt    *time.Time `db:"withdrawn_at" json:"withdrawn_at,omitempty"`
	WithdrawReason *string    `db:"withdraw_reason" json:"withdraw_reason,omitempty"`

	CreatedAt time.Time `db:"created_at" json:"created_at"`
	UpdatedAt time.Time `db:"updated_at" json:"updated_at"`
}

// YearInCollege enumerates accepted values for the education step.
var YearInCollegeValues = []string{"FRESHMAN", "SOPHOMORE", "JUNIOR", "SENIOR", "GRADUATE"}

// ValidYearInCollege reports enum membership for the education step field.
func ValidYearInCollege(v string) bool {
	for _, y := range YearInCollegeValues {
		if y == v {
			return true
		}
	}
	return false
}

// HasCompletedStep reports whether the given wizard step was marked done.
func (a *Application) HasCompletedStep(step int) bool {
	for _, s := range a.CompletedSteps {
		if int(s) == step {
			return true
		}
	}
	return false
}

// HasEssay reports whether an essay is present as text or uploaded file.
func (a *Application) HasEssay() bool {
	if a.EssayFileID != nil && *a.EssayFileID != "" {
		return true
	}
	return a.EssayText != nil && *a.EssayText != ""
}

// ApplicationFilter constrains listing queries.
type ApplicationFilter struct {
	OwnerID   string
	Status    ApplicationStatus
	Search    string
	Page      int
	PageSize  int
	SortBy    string
	SortOrder string
}

// ApplicationStatusCount is one row of the admin status breakdown.
type ApplicationStatusCount struct {
	Status ApplicationStatus `db:"status" json:"status"`
	Count  int               `db:"count" json:"count"`
}
