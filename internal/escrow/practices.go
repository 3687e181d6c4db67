package escrow

import "fmt"

// Sustainable practices an escrow can be conditioned on.
const (
	PracticeDroughtResistant = "drought_resistant"
	PracticeWaterSaving      = "water_saving"
	PracticeSoilConservation = "soil_conservation"
	PracticeAgroforestry     = "agroforestry"
	PracticeOrganicFarming   = "organic_farming"
)

// Evidence kinds accepted by the verification criteria.
const (
	EvidenceSatellite     = "satellite"
	EvidenceIrrigation    = "irrigation_system"
	EvidenceSoilAnalysis  = "soil_analysis"
	EvidenceCertification = "certification"
	EvidenceOther         = "other"
)

// Evidence is a submitted proof that a practice was carried out. Numeric
// fields are pointers so "absent" and "zero" stay distinguishable; each
// practice's criteria only read the fields they name.
type Evidence struct {
	Type                   string   `json:"type"`
	ImageURL               string   `json:"imageUrl,omitempty"`
	CropType               string   `json:"cropType,omitempty"`
	SystemType             string   `json:"systemType,omitempty"`
	Organic                bool     `json:"organic,omitempty"`
	CoverageArea           *float64 `json:"coverageArea,omitempty"`
	WaterReduction         *float64 `json:"waterReduction,omitempty"`
	SoilQualityImprovement *float64 `json:"soilQualityImprovement,omitempty"`
	ErosionReduction       *float64 `json:"erosionReduction,omitempty"`
	TreeCoverage           *float64 `json:"treeCoverage,omitempty"`
	IntegrationScore       *float64 `json:"integrationScore,omitempty"`
	ComplianceScore        *float64 `json:"complianceScore,omitempty"`
	Notes                  string   `json:"notes,omitempty"`
}

// Method names the verification method to log for this evidence. Unlabelled
// payloads fall back to "other".
func (ev Evidence) Method() string {
	if ev.Type == "" {
		return EvidenceOther
	}
	return ev.Type
}

// KnownPractice reports whether verification criteria exist for p.
func KnownPractice(p string) bool {
	switch p {
	case PracticeDroughtResistant, PracticeWaterSaving, PracticeSoilConservation,
		PracticeAgroforestry, PracticeOrganicFarming:
		return true
	}
	return false
}

// ValidateEvidence checks ev against the criteria of practice. A nil return
// means the evidence satisfies the practice; any other outcome, including an
// unrecognized practice, fails closed.
func ValidateEvidence(practice string, ev Evidence) error {
	switch practice {
	case PracticeDroughtResistant:
		if ev.Type != EvidenceSatellite {
			return evidenceErr(practice, "requires satellite evidence")
		}
		if !atLeast(ev.CoverageArea, 0.5) {
			return evidenceErr(practice, "coverage_area below 0.5")
		}
		if ev.CropType == "" {
			return evidenceErr(practice, "crop_type missing")
		}
	case PracticeWaterSaving:
		if ev.Type != EvidenceIrrigation {
			return evidenceErr(practice, "requires irrigation_system evidence")
		}
		if ev.SystemType == "" {
			return evidenceErr(practice, "system_type missing")
		}
		if !atLeast(ev.WaterReduction, 30) {
			return evidenceErr(practice, "water_reduction below 30%")
		}
	case PracticeSoilConservation:
		if ev.Type != EvidenceSoilAnalysis {
			return evidenceErr(practice, "requires soil_analysis evidence")
		}
		if !atLeast(ev.SoilQualityImprovement, 20) {
			return evidenceErr(practice, "soil_quality_improvement below 20%")
		}
		if !atLeast(ev.ErosionReduction, 40) {
			return evidenceErr(practice, "erosion_reduction below 40%")
		}
	case PracticeAgroforestry:
		if ev.Type != EvidenceSatellite {
			return evidenceErr(practice, "requires satellite evidence")
		}
		if !atLeast(ev.TreeCoverage, 0.3) {
			return evidenceErr(practice, "tree_coverage below 0.3")
		}
		if !atLeast(ev.IntegrationScore, 0.7) {
			return evidenceErr(practice, "integration_score below 0.7")
		}
	case PracticeOrganicFarming:
		if ev.Type != EvidenceCertification {
			return evidenceErr(practice, "requires certification evidence")
		}
		if !ev.Organic {
			return evidenceErr(practice, "certification is not organic")
		}
		if !atLeast(ev.ComplianceScore, 0.8) {
			return evidenceErr(practice, "compliance_score below 0.8")
		}
	default:
		return fmt.Errorf("%w: %q", ErrUnknownPractice, practice)
	}
	return nil
}

func atLeast(v *float64, min float64) bool {
	return v != nil && *v >= min
}

func evidenceErr(practice, reason string) error {
	return fmt.Errorf("%w: %s: %s", ErrInvalidEvidence, practice, reason)
}
