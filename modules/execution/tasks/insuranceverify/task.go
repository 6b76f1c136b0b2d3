// Package insuranceverify verifies patient insurance eligibility from a
// captured clearinghouse eligibility response. It is the built-in proof
// of the generic task driver.
package insuranceverify

import (
	"context"
	"errors"
	"strings"

	"github.com/TalkDocInc/agentic-talkdoc-platform/modules/execution/domain/ports"
	"github.com/TalkDocInc/agentic-talkdoc-platform/modules/execution/domain/types"
)

const (
	TaskType    = "insurance_verification"
	taskVersion = "1.0.0"

	costPerVerification = 0.10
)

type Input struct {
	PatientFirstName   string `json:"patient_first_name"`
	PatientLastName    string `json:"patient_last_name"`
	PatientDateOfBirth string `json:"patient_date_of_birth"`
	PatientMemberID    string `json:"patient_member_id"`

	PayerID   string `json:"payer_id"`
	PayerName string `json:"payer_name"`

	ServiceTypeCode string `json:"service_type_code,omitempty"`
	ServiceDate     string `json:"service_date,omitempty"`
	ProviderNPI     string `json:"provider_npi,omitempty"`

	// EligibilityResponse is the clearinghouse 271 response captured by
	// the intake pipeline. Verification never calls out itself.
	EligibilityResponse EligibilityResponse `json:"eligibility_response"`
}

type EligibilityResponse struct {
	TransactionID string   `json:"transaction_id,omitempty"`
	ResponseCode  string   `json:"response_code,omitempty"`
	Message       string   `json:"response_message,omitempty"`
	Active        bool     `json:"active"`
	PlanName      string   `json:"plan_name,omitempty"`
	CoverageLevel string   `json:"coverage_level,omitempty"`
	Copay         *float64 `json:"copay_amount,omitempty"`
	Deductible    *float64 `json:"deductible_amount,omitempty"`
	NetworkStatus string   `json:"network_status,omitempty"`
	Issues        []string `json:"issues,omitempty"`
}

type CoverageDetails struct {
	IsActive      bool     `json:"is_active"`
	PlanName      string   `json:"plan_name,omitempty"`
	CoverageLevel string   `json:"coverage_level,omitempty"`
	Copay         *float64 `json:"copay_amount,omitempty"`
	Deductible    *float64 `json:"deductible_amount,omitempty"`
	NetworkStatus string   `json:"network_status,omitempty"`
}

type Output struct {
	VerificationStatus string           `json:"verification_status"`
	CoverageDetails    *CoverageDetails `json:"coverage_details,omitempty"`
	TransactionID      string           `json:"transaction_id,omitempty"`
	ResponseCode       string           `json:"response_code,omitempty"`
	ResponseMessage    string           `json:"response_message,omitempty"`
	Issues             []string         `json:"issues,omitempty"`
}

type Task struct{}

func New() *Task { return &Task{} }

func (*Task) Type() string    { return TaskType }
func (*Task) Version() string { return taskVersion }

func (*Task) Run(_ context.Context, input Input, _ ports.TaskContext) (ports.TaskResult[Output], error) {
	if err := validate(input); err != nil {
		return ports.TaskResult[Output]{}, types.NewValidation(err)
	}

	resp := input.EligibilityResponse
	out := Output{
		TransactionID:   resp.TransactionID,
		ResponseCode:    resp.ResponseCode,
		ResponseMessage: resp.Message,
		Issues:          resp.Issues,
	}
	switch {
	case resp.Active:
		out.VerificationStatus = "verified"
		out.CoverageDetails = &CoverageDetails{
			IsActive:      true,
			PlanName:      resp.PlanName,
			CoverageLevel: resp.CoverageLevel,
			Copay:         resp.Copay,
			Deductible:    resp.Deductible,
			NetworkStatus: resp.NetworkStatus,
		}
	default:
		out.VerificationStatus = "not_verified"
	}

	return ports.TaskResult[Output]{
		Output:        out,
		Confidence:    scoreConfidence(out),
		FlagForReview: out.VerificationStatus == "not_verified",
		Metrics:       types.ExecutionMetrics{APICalls: 1, CostUSD: costPerVerification},
	}, nil
}

func validate(input Input) error {
	switch {
	case strings.TrimSpace(input.PatientFirstName) == "",
		strings.TrimSpace(input.PatientLastName) == "":
		return errors.New("patient name is required")
	case strings.TrimSpace(input.PatientMemberID) == "":
		return errors.New("patient_member_id is required")
	case strings.TrimSpace(input.PayerID) == "":
		return errors.New("payer_id is required")
	}
	return nil
}

// scoreConfidence builds the score additively: a verified status and
// richer coverage details raise it, reported issues and a non-approved
// response code lower it.
func scoreConfidence(out Output) float64 {
	confidence := 0.5

	if out.VerificationStatus == "verified" {
		confidence += 0.3
	}
	if cd := out.CoverageDetails; cd != nil {
		confidence += 0.1
		if cd.Copay != nil {
			confidence += 0.05
		}
		if cd.Deductible != nil {
			confidence += 0.05
		}
	}
	confidence -= 0.1 * float64(len(out.Issues))
	// "AA" is the approved response code
	if out.ResponseCode != "" && out.ResponseCode != "AA" {
		confidence -= 0.2
	}

	if confidence < 0 {
		return 0
	}
	if confidence > 1 {
		return 1
	}
	return confidence
}
