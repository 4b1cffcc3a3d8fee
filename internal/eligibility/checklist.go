// Package eligibility computes the submission requirements checklist. It is
// the single source of truth for both the live progress endpoint and the
// server-side submit gate, so the two can never disagree.
package eligibility

import (
	"fmt"

	"github.com/noah-isme/scholarship-api/internal/models"
)

// Requirement ids, stable across API responses and audit detail payloads.
const (
	ReqSteps           = "steps"
	ReqPersonal        = "personal"
	ReqAddress         = "address"
	ReqEducation       = "education"
	ReqGPA             = "gpa"
	ReqFullTime        = "fulltime"
	ReqFiles           = "files"
	ReqEssay           = "essay"
	ReqRecommendations = "recommendations"
)

// Requirement is one named, boolean-valued eligibility condition.
type Requirement struct {
	ID           string `json:"id"`
	Met          bool   `json:"met"`
	CurrentValue string `json:"current_value"`
}

// Checklist is the ordered set of requirements for one application.
type Checklist struct {
	Requirements []Requirement `json:"requirements"`
}

// AllMet reports whether every requirement is satisfied.
func (c Checklist) AllMet() bool {
	for _, r := range c.Requirements {
		if !r.Met {
			return false
		}
	}
	return true
}

// UnmetIDs returns the ids of failing requirements, in checklist order.
func (c Checklist) UnmetIDs() []string {
	var ids []string
	for _, r := range c.Requirements {
		if !r.Met {
			ids = append(ids, r.ID)
		}
	}
	return ids
}

// Policy carries the configurable thresholds of the submit gate. Zero
// values are replaced by the published program rules.
type Policy struct {
	MinGPA                  float64
	EssayMinWords           int
	EssayMaxWords           int
	ResidencyState          string
	RequiredRecommendations int
}

// DefaultPolicy returns the program rules as published: 3.0 GPA floor,
// 250-500 word essay, Michigan residency, two submitted letters.
func DefaultPolicy() Policy {
	return Policy{
		MinGPA:                  3.0,
		EssayMinWords:           250,
		EssayMaxWords:           500,
		ResidencyState:          "MI",
		RequiredRecommendations: 2,
	}
}

func (p Policy) withDefaults() Policy {
	d := DefaultPolicy()
	if p.MinGPA <= 0 {
		p.MinGPA = d.MinGPA
	}
	if p.EssayMinWords <= 0 {
		p.EssayMinWords = d.EssayMinWords
	}
	if p.EssayMaxWords <= 0 {
		p.EssayMaxWords = d.EssayMaxWords
	}
	if p.ResidencyState == "" {
		p.ResidencyState = d.ResidencyState
	}
	if p.RequiredRecommendations <= 0 {
		p.RequiredRecommendations = d.RequiredRecommendations
	}
	return p
}

// ComputeChecklist evaluates every requirement against the application and
// its recommendations. Pure and deterministic; callers may invoke it any
// number of times without side effects.
func ComputeChecklist(app *models.Application, recs []models.Recommendation, policy Policy) Checklist {
	p := policy.withDefaults()
	return Checklist{Requirements: []Requirement{
		stepsRequirement(app),
		personalRequirement(app),
		addressRequirement(app, p),
		educationRequirement(app),
		gpaRequirement(app, p),
		fullTimeRequirement(app),
		filesRequirement(app),
		essayRequirement(app, p),
		recommendationsRequirement(recs, p),
	}}
}

func stepsRequirement(app *models.Application) Requirement {
	done := 0
	for step := models.StepMin; step <= models.StepMax; step++ {
		if app.HasCompletedStep(step) {
			done++
		}
	}
	return Requirement{
		ID:           ReqSteps,
		Met:          done == models.StepMax,
		CurrentValue: fmt.Sprintf("%d/%d", done, models.StepMax),
	}
}

func personalRequirement(app *models.Application) Requirement {
	met := app.FirstName != "" && app.LastName != "" && app.Phone != "" && app.DateOfBirth != ""
	return Requirement{ID: ReqPersonal, Met: met, CurrentValue: fmt.Sprintf("%s %s", app.FirstName, app.LastName)}
}

func addressRequirement(app *models.Application, p Policy) Requirement {
	complete := app.Street != "" && app.City != "" && app.State != "" && app.Zip != ""
	met := complete && app.State == p.ResidencyState && app.IsMichiganResident
	return Requirement{ID: ReqAddress, Met: met, CurrentValue: app.State}
}

func educationRequirement(app *models.Application) Requirement {
	met := app.HighSchoolName != "" && app.HighSchoolCity != "" && app.GraduationDate != "" &&
		app.GPA != nil &&
		app.CollegeName != "" && app.CollegeCity != "" && app.CollegeState != "" &&
		app.YearInCollege != ""
	return Requirement{ID: ReqEducation, Met: met, CurrentValue: app.CollegeName}
}

func gpaRequirement(app *models.Application, p Policy) Requirement {
	if app.GPA == nil {
		return Requirement{ID: ReqGPA, Met: false, CurrentValue: "not provided"}
	}
	return Requirement{
		ID:           ReqGPA,
		Met:          *app.GPA >= p.MinGPA,
		CurrentValue: fmt.Sprintf("%.2f", *app.GPA),
	}
}

func fullTimeRequirement(app *models.Application) Requirement {
	return Requirement{ID: ReqFullTime, Met: app.IsFullTimeStudent, CurrentValue: fmt.Sprintf("%t", app.IsFullTimeStudent)}
}

func filesRequirement(app *models.Application) Requirement {
	photo := app.ProfilePhotoFileID != nil && *app.ProfilePhotoFileID != ""
	transcript := app.TranscriptFileID != nil && *app.TranscriptFileID != ""
	met := photo && transcript && app.HasEssay()
	present := 0
	for _, ok := range []bool{photo, transcript, app.HasEssay()} {
		if ok {
			present++
		}
	}
	return Requirement{ID: ReqFiles, Met: met, CurrentValue: fmt.Sprintf("%d/3", present)}
}

func essayRequirement(app *models.Application, p Policy) Requirement {
	met := app.HasEssay() && app.EssayWordCount >= p.EssayMinWords && app.EssayWordCount <= p.EssayMaxWords
	return Requirement{ID: ReqEssay, Met: met, CurrentValue: fmt.Sprintf("%d words", app.EssayWordCount)}
}

func recommendationsRequirement(recs []models.Recommendation, p Policy) Requirement {
	submitted := 0
	quorum := false
	for _, rec := range recs {
		if rec.Withdrawn || rec.Status != models.RecommendationSubmitted {
			continue
		}
		submitted++
		if rec.RecommenderType.QualifiesForQuorum() {
			quorum = true
		}
	}
	met := submitted >= p.RequiredRecommendations && quorum
	return Requirement{
		ID:           ReqRecommendations,
		Met:          met,
		CurrentValue: fmt.Sprintf("%d submitted", submitted),
	}
}

// Disqualifiers returns the hard-disqualifier requirement rows (GPA,
// residency, full-time status) so step-level validation can surface them at
// data-entry time without waiting for final submit.
func Disqualifiers(app *models.Application, policy Policy) []Requirement {
	p := policy.withDefaults()
	return []Requirement{
		gpaRequirement(app, p),
		addressRequirement(app, p),
		fullTimeRequirement(app),
	}
}
