package lifecycle

import (
	"encoding/json"
	"fmt"
	"strings"

	apperrors "admission-portal/internal/common/errors"
	"admission-portal/internal/common/validation"
	"admission-portal/internal/models"
)

// Step names one page of the multi-step application form.
type Step string

const (
	StepPersonalDetails Step = "personal_details"
	StepProgramChoice   Step = "program_choice"
	StepMotivation      Step = "motivation"
	StepWorkExperience  Step = "work_experience"
	StepReferees        Step = "referees"
	StepDeclarations    Step = "declarations"
	StepPayment         Step = "payment"
)

// StepData is one step save: the step name and its JSON payload.
type StepData struct {
	Step Step            `json:"step"`
	Data json.RawMessage `json:"data"`
}

const datePattern = `^[0-9]{4}-(0[1-9]|1[0-2])-(0[1-9]|[12][0-9]|3[01])$`

var stepSchemas = validation.MustRegistry(map[string]string{
	string(StepPersonalDetails): `{
		"type": "object",
		"additionalProperties": false,
		"properties": {
			"firstName":   {"type": "string", "maxLength": 100},
			"middleName":  {"type": "string", "maxLength": 100},
			"lastName":    {"type": "string", "maxLength": 100},
			"dateOfBirth": {"type": "string", "pattern": "` + datePattern + `"},
			"gender":      {"type": "string", "enum": ["male", "female", "other"]},
			"nationality": {"type": "string", "maxLength": 80},
			"phone":       {"type": "string", "pattern": "^\\+?[0-9]{9,15}$"},
			"email":       {"type": "string", "format": "email"},
			"address":     {"type": "string", "maxLength": 300}
		}
	}`,
	string(StepProgramChoice): `{
		"type": "object",
		"additionalProperties": false,
		"properties": {
			"firstChoice":  {"type": "string", "maxLength": 200},
			"secondChoice": {"type": "string", "maxLength": 200},
			"campus":       {"type": "string", "maxLength": 100},
			"studyMode":    {"type": "string", "enum": ["full_time", "part_time", "distance"]}
		}
	}`,
	string(StepMotivation): `{
		"type": "object",
		"additionalProperties": false,
		"properties": {
			"essay": {"type": "string", "maxLength": 10000}
		}
	}`,
	string(StepWorkExperience): `{
		"type": "object",
		"additionalProperties": false,
		"required": ["workExperiences"],
		"properties": {
			"workExperiences": {
				"type": "array",
				"maxItems": 20,
				"items": {
					"type": "object",
					"additionalProperties": false,
					"required": ["index", "employer", "position", "startDate"],
					"properties": {
						"index":     {"type": "integer", "minimum": 0},
						"employer":  {"type": "string", "minLength": 1, "maxLength": 200},
						"position":  {"type": "string", "minLength": 1, "maxLength": 200},
						"startDate": {"type": "string", "pattern": "` + datePattern + `"},
						"endDate":   {"type": "string", "pattern": "` + datePattern + `"},
						"duties":    {"type": "string", "maxLength": 2000}
					}
				}
			}
		}
	}`,
	string(StepReferees): `{
		"type": "object",
		"additionalProperties": false,
		"required": ["referees"],
		"properties": {
			"referees": {
				"type": "array",
				"maxItems": 5,
				"items": {
					"type": "object",
					"additionalProperties": false,
					"required": ["index", "name"],
					"properties": {
						"index":       {"type": "integer", "minimum": 0},
						"name":        {"type": "string", "minLength": 1, "maxLength": 200},
						"title":       {"type": "string", "maxLength": 100},
						"institution": {"type": "string", "maxLength": 200},
						"email":       {"type": "string", "format": "email"},
						"phone":       {"type": "string", "pattern": "^\\+?[0-9]{9,15}$"}
					}
				}
			}
		}
	}`,
	string(StepDeclarations): `{
		"type": "object",
		"additionalProperties": false,
		"properties": {
			"truthfulInformation": {"type": "boolean"},
			"termsAccepted":       {"type": "boolean"},
			"documentsAuthentic":  {"type": "boolean"}
		}
	}`,
	string(StepPayment): `{
		"type": "object",
		"additionalProperties": false,
		"required": ["paymentReference"],
		"properties": {
			"paymentReference": {"type": "string", "pattern": "^[A-Za-z0-9][A-Za-z0-9-]{2,63}$"}
		}
	}`,
})

// ValidSteps lists every step accepted by UpsertDraftStep.
func ValidSteps() []Step {
	return []Step{StepPersonalDetails, StepProgramChoice, StepMotivation, StepWorkExperience, StepReferees, StepDeclarations, StepPayment}
}

// validateStep checks the payload shape. It returns a VALIDATION_FAILED
// StandardError listing the offending fields.
func validateStep(sd StepData) error {
	if !stepSchemas.Has(string(sd.Step)) {
		return apperrors.NewValidationError("unknown step",
			apperrors.FieldError{Field: "step", Message: fmt.Sprintf("%q is not a form step", sd.Step)})
	}
	if len(sd.Data) == 0 {
		return apperrors.NewValidationError("step data is required",
			apperrors.FieldError{Field: "data", Message: "missing"})
	}

	res, err := stepSchemas.Validate(string(sd.Step), sd.Data)
	if err != nil {
		return apperrors.NewValidationError("step data could not be validated",
			apperrors.FieldError{Field: "data", Message: err.Error()})
	}
	if res.Valid {
		return nil
	}
	fields := make([]apperrors.FieldError, 0, len(res.Errors))
	for _, e := range res.Errors {
		fields = append(fields, apperrors.FieldError{Field: e.Field, Message: e.Message})
	}
	return apperrors.NewValidationError(fmt.Sprintf("invalid %s data", sd.Step), fields...)
}

// applyStep decodes a validated payload into the draft. Collection steps
// replace the whole collection.
func applyStep(d *models.Draft, sd StepData) error {
	switch sd.Step {
	case StepPersonalDetails:
		var p models.PersonalDetails
		if err := json.Unmarshal(sd.Data, &p); err != nil {
			return decodeError(sd.Step, err)
		}
		d.PersonalDetails = trimPersonal(p)
	case StepProgramChoice:
		var p models.ProgramChoice
		if err := json.Unmarshal(sd.Data, &p); err != nil {
			return decodeError(sd.Step, err)
		}
		d.ProgramChoice = p
	case StepMotivation:
		var m models.Motivation
		if err := json.Unmarshal(sd.Data, &m); err != nil {
			return decodeError(sd.Step, err)
		}
		d.Motivation = m
	case StepWorkExperience:
		var payload struct {
			WorkExperiences []models.WorkExperience `json:"workExperiences"`
		}
		if err := json.Unmarshal(sd.Data, &payload); err != nil {
			return decodeError(sd.Step, err)
		}
		idx := make([]int, len(payload.WorkExperiences))
		for i, w := range payload.WorkExperiences {
			idx[i] = w.Index
		}
		if err := uniqueIndices("workExperiences", idx); err != nil {
			return err
		}
		d.WorkExperiences = payload.WorkExperiences
	case StepReferees:
		var payload struct {
			Referees []models.Referee `json:"referees"`
		}
		if err := json.Unmarshal(sd.Data, &payload); err != nil {
			return decodeError(sd.Step, err)
		}
		idx := make([]int, len(payload.Referees))
		for i, r := range payload.Referees {
			idx[i] = r.Index
		}
		if err := uniqueIndices("referees", idx); err != nil {
			return err
		}
		d.Referees = payload.Referees
	case StepDeclarations:
		var decl models.Declarations
		if err := json.Unmarshal(sd.Data, &decl); err != nil {
			return decodeError(sd.Step, err)
		}
		d.Declarations = decl
	case StepPayment:
		var payload struct {
			PaymentReference string `json:"paymentReference"`
		}
		if err := json.Unmarshal(sd.Data, &payload); err != nil {
			return decodeError(sd.Step, err)
		}
		d.PaymentReference = models.NormalizeReference(payload.PaymentReference)
	default:
		return apperrors.NewValidationError("unknown step",
			apperrors.FieldError{Field: "step", Message: string(sd.Step)})
	}
	d.SortChildren()
	return nil
}

func uniqueIndices(field string, indices []int) error {
	seen := make(map[int]struct{}, len(indices))
	for _, i := range indices {
		if _, dup := seen[i]; dup {
			return apperrors.NewValidationError("duplicate index",
				apperrors.FieldError{Field: field, Message: fmt.Sprintf("index %d appears more than once", i)})
		}
		seen[i] = struct{}{}
	}
	return nil
}

func trimPersonal(p models.PersonalDetails) models.PersonalDetails {
	p.FirstName = strings.TrimSpace(p.FirstName)
	p.MiddleName = strings.TrimSpace(p.MiddleName)
	p.LastName = strings.TrimSpace(p.LastName)
	p.Nationality = strings.TrimSpace(p.Nationality)
	p.Email = strings.TrimSpace(p.Email)
	return p
}

func decodeError(step Step, err error) error {
	return apperrors.NewValidationError(fmt.Sprintf("invalid %s data", step),
		apperrors.FieldError{Field: "data", Message: err.Error()})
}
