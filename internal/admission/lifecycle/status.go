package lifecycle

import "admission-portal/internal/models"

var transitions = map[models.SubmissionStatus][]models.SubmissionStatus{
	models.StatusSubmitted: {models.StatusReview},
	models.StatusReview:    {models.StatusAccepted, models.StatusRejected},
}

// CanTransition reports whether from -> to is an edge of
// submitted -> review -> accepted | rejected.
func CanTransition(from, to models.SubmissionStatus) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// NextStatuses lists the statuses reachable from s in one step.
func NextStatuses(s models.SubmissionStatus) []models.SubmissionStatus {
	return append([]models.SubmissionStatus(nil), transitions[s]...)
}
