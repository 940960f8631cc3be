// internal/models/draft.go
package models

import (
	"sort"
	"strings"
	"time"
)

type ApplicationType string

const (
	ApplicationTypeUndergraduate ApplicationType = "undergraduate"
	ApplicationTypePostgraduate  ApplicationType = "postgraduate"
)

func (t ApplicationType) Valid() bool {
	return t == ApplicationTypeUndergraduate || t == ApplicationTypePostgraduate
}

// Identity is the authenticated caller supplied by the identity collaborator.
type Identity struct {
	UserID int64    `json:"userId"`
	Roles  []string `json:"roles,omitempty"`
}

type PersonalDetails struct {
	FirstName   string `json:"firstName"`
	MiddleName  string `json:"middleName,omitempty"`
	LastName    string `json:"lastName"`
	DateOfBirth string `json:"dateOfBirth"`
	Gender      string `json:"gender"`
	Nationality string `json:"nationality"`
	Phone       string `json:"phone"`
	Email       string `json:"email,omitempty"`
	Address     string `json:"address,omitempty"`
}

// FullName joins the non-empty name parts.
func (p PersonalDetails) FullName() string {
	parts := make([]string, 0, 3)
	for _, s := range []string{p.FirstName, p.MiddleName, p.LastName} {
		if s = strings.TrimSpace(s); s != "" {
			parts = append(parts, s)
		}
	}
	return strings.Join(parts, " ")
}

type ProgramChoice struct {
	FirstChoice  string `json:"firstChoice"`
	SecondChoice string `json:"secondChoice,omitempty"`
	Campus       string `json:"campus,omitempty"`
	StudyMode    string `json:"studyMode,omitempty"`
}

type Motivation struct {
	Essay string `json:"essay"`
}

type WorkExperience struct {
	Index     int    `json:"index"`
	Employer  string `json:"employer"`
	Position  string `json:"position"`
	StartDate string `json:"startDate"`
	EndDate   string `json:"endDate,omitempty"`
	Duties    string `json:"duties,omitempty"`
}

type Referee struct {
	Index       int    `json:"index"`
	Name        string `json:"name"`
	Title       string `json:"title,omitempty"`
	Institution string `json:"institution"`
	Email       string `json:"email"`
	Phone       string `json:"phone"`
}

// Complete reports whether every contact field needed to reach the referee is present.
func (r Referee) Complete() bool {
	return notBlank(r.Name) && notBlank(r.Institution) && notBlank(r.Email) && notBlank(r.Phone)
}

type Declarations struct {
	TruthfulInformation bool `json:"truthfulInformation"`
	TermsAccepted       bool `json:"termsAccepted"`
	DocumentsAuthentic  bool `json:"documentsAuthentic"`
}

// AllAccepted is required before a draft can be finalized.
func (d Declarations) AllAccepted() bool {
	return d.TruthfulInformation && d.TermsAccepted && d.DocumentsAuthentic
}

// Draft is an in-progress application, unique per (user, type) while not superseded.
type Draft struct {
	ID                   string           `json:"id"`
	UserID               int64            `json:"userId"`
	ApplicationType      ApplicationType  `json:"applicationType"`
	PersonalDetails      PersonalDetails  `json:"personalDetails"`
	ProgramChoice        ProgramChoice    `json:"programChoice"`
	Motivation           Motivation       `json:"motivation"`
	WorkExperiences      []WorkExperience `json:"workExperiences"`
	Referees             []Referee        `json:"referees"`
	Declarations         Declarations     `json:"declarations"`
	PaymentReference     string           `json:"paymentReference,omitempty"`
	CompletionPercentage int              `json:"completionPercentage"`
	CreatedAt            time.Time        `json:"createdAt"`
	UpdatedAt            time.Time        `json:"updatedAt"`
	SupersededAt         *time.Time       `json:"supersededAt,omitempty"`
}

// SortChildren orders child collections by their explicit index.
func (d *Draft) SortChildren() {
	sort.SliceStable(d.WorkExperiences, func(i, j int) bool {
		return d.WorkExperiences[i].Index < d.WorkExperiences[j].Index
	})
	sort.SliceStable(d.Referees, func(i, j int) bool {
		return d.Referees[i].Index < d.Referees[j].Index
	})
}

func notBlank(s string) bool { return strings.TrimSpace(s) != "" }
