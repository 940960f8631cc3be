package lifecycle

import (
	"strings"

	"admission-portal/internal/models"
)

// CategoryWeight is the share of the completion percentage each category carries.
const CategoryWeight = 20

// CompletionPercentage scores a draft across five equally weighted
// categories. The result is a multiple of 20 in [0, 100].
func CompletionPercentage(d *models.Draft) int {
	if d == nil {
		return 0
	}
	score := 0
	for _, done := range []bool{
		d.ApplicationType.Valid(),
		identityComplete(d.PersonalDetails),
		present(d.ProgramChoice.FirstChoice),
		motivationComplete(d),
		hasCompleteReferee(d.Referees),
	} {
		if done {
			score += CategoryWeight
		}
	}
	return score
}

func identityComplete(p models.PersonalDetails) bool {
	return present(p.FirstName) &&
		present(p.LastName) &&
		present(p.DateOfBirth) &&
		present(p.Gender) &&
		present(p.Nationality) &&
		present(p.Phone)
}

// Undergraduate applications carry no motivation essay and get the category for free.
func motivationComplete(d *models.Draft) bool {
	if d.ApplicationType == models.ApplicationTypeUndergraduate {
		return true
	}
	return present(d.Motivation.Essay)
}

func hasCompleteReferee(refs []models.Referee) bool {
	for _, r := range refs {
		if r.Complete() {
			return true
		}
	}
	return false
}

func present(s string) bool { return strings.TrimSpace(s) != "" }
