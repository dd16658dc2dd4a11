package imaging

import "fmt"

// SupportedCombination names the only (body part, modality) pairing the
// AI pipeline accepts.
const SupportedCombination = "Chest XRay"

// Eligibility is the outcome of an AI-eligibility check.
type Eligibility struct {
	Eligible             bool   `json:"eligible"`
	Reason               string `json:"reason,omitempty"`
	SupportedCombination string `json:"supported_combination,omitempty"`
}

// CheckEligibility decides whether a study qualifies for AI analysis.
// Only chest X-rays do; anything else gets a reason naming what was found.
func CheckEligibility(bodyPart string, modality Modality) Eligibility {
	if bodyPart == "Chest" && modality == ModalityXRay {
		return Eligibility{Eligible: true, SupportedCombination: SupportedCombination}
	}
	return Eligibility{
		Eligible: false,
		Reason: fmt.Sprintf("AI analysis supports %s only, study is %s %s",
			SupportedCombination, bodyPart, modality),
	}
}
