package models

import "time"

// EvaluationRating is the five-point committee scale.
type EvaluationRating string

const (
	RatingStrongNo  EvaluationRating = "STRONG_NO"
	RatingNo        EvaluationRating = "NO"
	RatingMaybe     EvaluationRating = "MAYBE"
	RatingYes       EvaluationRating = "YES"
	RatingStrongYes EvaluationRating = "STRONG_YES"
)

// ratingPoints maps the ordinal scale onto the numeric values used for
// averaging. Displayed averages use the same 1-5 range ("X.XX / 5.0").
var ratingPoints = map[EvaluationRating]int{
	RatingStrongNo:  1,
	RatingNo:        2,
	RatingMaybe:     3,
	RatingYes:       4,
	RatingStrongYes: 5,
}

// Points returns the numeric value for the rating, 0 when unknown.
func (r EvaluationRating) Points() int {
	return ratingPoints[r]
}

// Valid reports enum membership.
func (r EvaluationRating) Valid() bool {
	_, ok := ratingPoints[r]
	return ok
}

// Evaluation is one committee member's rating of one application. The
// (application_id, evaluator_id) pair is unique; re-evaluations update in
// place and are never duplicated or deleted.
type Evaluation struct {
	ID            string           `db:"id" json:"id"`
	ApplicationID string           `db:"application_id" json:"application_id"`
	EvaluatorID   string           `db:"evaluator_id" json:"evaluator_id"`
	Rating        EvaluationRating `db:"rating" json:"rating"`
	Notes         *string          `db:"notes" json:"notes,omitempty"`
	CreatedAt     time.Time        `db:"created_at" json:"created_at"`
	UpdatedAt     time.Time        `db:"updated_at" json:"updated_at"`
}

// ApplicationRanking is one row of the committee ranking board.
type ApplicationRanking struct {
	ApplicationID   string     `db:"application_id" json:"application_id"`
	ApplicantName   string     `db:"applicant_name" json:"applicant_name"`
	AverageRating   float64    `db:"average_rating" json:"average_rating"`
	EvaluationCount int        `db:"evaluation_count" json:"evaluation_count"`
	SubmittedAt     *time.Time `db:"submitted_at" json:"submitted_at,omitempty"`
	Rank            int        `json:"rank"`
}

// EvaluationProgress captures committee-wide review completion.
type EvaluationProgress struct {
	TotalApplications   int `json:"total_applications"`
	TotalEvaluations    int `json:"total_evaluations"`
	PossibleEvaluations int `json:"possible_evaluations"`
}

// EvaluatorStats summarises one evaluator's progress.
type EvaluatorStats struct {
	EvaluatorID string `json:"evaluator_id"`
	Completed   int    `json:"completed"`
	Remaining   int    `json:"remaining"`
}
