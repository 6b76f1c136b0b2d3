package insuranceverify

import (
	"context"
	"errors"
	"testing"

	"github.com/TalkDocInc/agentic-talkdoc-platform/modules/execution/domain/ports"
	"github.com/TalkDocInc/agentic-talkdoc-platform/modules/execution/domain/types"
)

func validInput() Input {
	copay := 25.0
	deductible := 500.0
	return Input{
		PatientFirstName:   "Jane",
		PatientLastName:    "Doe",
		PatientDateOfBirth: "1990-04-01",
		PatientMemberID:    "M123456",
		PayerID:            "60054",
		PayerName:          "Aetna",
		EligibilityResponse: EligibilityResponse{
			TransactionID: "tx-1",
			ResponseCode:  "AA",
			Active:        true,
			PlanName:      "Gold PPO",
			Copay:         &copay,
			Deductible:    &deductible,
		},
	}
}

func TestRun_VerifiedFullDetails(t *testing.T) {
	res, err := New().Run(context.Background(), validInput(), ports.TaskContext{})
	if err != nil {
		t.Fatalf("err=%v", err)
	}
	if res.Output.VerificationStatus != "verified" {
		t.Fatalf("out=%+v", res.Output)
	}
	if res.Output.CoverageDetails == nil || !res.Output.CoverageDetails.IsActive {
		t.Fatalf("out=%+v", res.Output)
	}
	// 0.5 base + 0.3 verified + 0.1 details + 0.05 copay + 0.05 deductible
	if res.Confidence != 1.0 {
		t.Fatalf("confidence=%v", res.Confidence)
	}
	if res.FlagForReview {
		t.Fatal("verified result must not be flagged")
	}
	if res.Metrics.CostUSD != costPerVerification {
		t.Fatalf("metrics=%+v", res.Metrics)
	}
}

func TestRun_NotVerifiedIsFlagged(t *testing.T) {
	input := validInput()
	input.EligibilityResponse = EligibilityResponse{ResponseCode: "AE", Active: false}

	res, err := New().Run(context.Background(), input, ports.TaskContext{})
	if err != nil {
		t.Fatalf("err=%v", err)
	}
	if res.Output.VerificationStatus != "not_verified" || res.Output.CoverageDetails != nil {
		t.Fatalf("out=%+v", res.Output)
	}
	if !res.FlagForReview {
		t.Fatal("not_verified must be flagged")
	}
	// 0.5 base - 0.2 non-approved code
	if res.Confidence < 0.29 || res.Confidence > 0.31 {
		t.Fatalf("confidence=%v", res.Confidence)
	}
}

func TestRun_IssuesLowerConfidence(t *testing.T) {
	input := validInput()
	input.EligibilityResponse.Copay = nil
	input.EligibilityResponse.Deductible = nil
	input.EligibilityResponse.Issues = []string{"name mismatch", "dob mismatch"}

	res, err := New().Run(context.Background(), input, ports.TaskContext{})
	if err != nil {
		t.Fatalf("err=%v", err)
	}
	// 0.5 + 0.3 + 0.1 - 0.2 issues
	if res.Confidence < 0.69 || res.Confidence > 0.71 {
		t.Fatalf("confidence=%v", res.Confidence)
	}
}

func TestRun_ValidationErrors(t *testing.T) {
	for name, mutate := range map[string]func(*Input){
		"missing name":      func(i *Input) { i.PatientFirstName = "" },
		"missing member id": func(i *Input) { i.PatientMemberID = " " },
		"missing payer":     func(i *Input) { i.PayerID = "" },
	} {
		t.Run(name, func(t *testing.T) {
			input := validInput()
			mutate(&input)
			_, err := New().Run(context.Background(), input, ports.TaskContext{})
			var te *types.TaskError
			if !errors.As(err, &te) || te.Kind != types.ErrorValidation {
				t.Fatalf("err=%v", err)
			}
		})
	}
}
