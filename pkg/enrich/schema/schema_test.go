package schema

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestVocabularyMatch(t *testing.T) {
	cases := []struct {
		vocab *Vocabulary
		raw   string
		want  string
		ok    bool
	}{
		{AttackCategories, "ransomware", "ransomware", true},
		{AttackCategories, "Ransomware Attack", "ransomware", true},
		{AttackCategories, "BEC", "business_email_compromise", true},
		{AttackCategories, "quantum knitting", "", false},
		{AttackVectors, "Phishing", "phishing_email", true},
		{AttackVectors, "exposed RDP", "exposed_rdp", true},
		{RansomwareFamilies, "LockBit 3.0", "lockbit", true},
		{RansomwareFamilies, "BlackCat", "alphv_blackcat", true},
		{MitreTactics, "Lateral Movement", "lateral_movement", true},
		{Severities, "Severe", "critical", true},
		{TransparencyLevels, "partial", "partial_disclosure", true},
	}
	for _, tc := range cases {
		got, ok := tc.vocab.Match(tc.raw)
		assert.Equal(t, tc.ok, ok, "%s: %q", tc.vocab.Name, tc.raw)
		assert.Equal(t, tc.want, got, "%s: %q", tc.vocab.Name, tc.raw)
	}
}

func TestNormalizeScalarFallsBackToOther(t *testing.T) {
	assert.Equal(t, "other", AttackCategories.NormalizeScalar("quantum knitting"))
	assert.Equal(t, "unknown", IncidentStatuses.NormalizeScalar("nonsense"))
}

func TestNormalizeListDropsAndDedupes(t *testing.T) {
	got := SystemsAffected.NormalizeList([]string{
		"Email", "email_system", "Canvas", "made-up-system-xyz",
	})
	assert.Equal(t, []string{"email_system", "learning_management_system"}, got)
}

func TestBuildCompiles(t *testing.T) {
	s, err := Compiled()
	require.NoError(t, err)
	require.NotNil(t, s)
}

func TestValidateAcceptsMinimalRecord(t *testing.T) {
	err := Validate(map[string]any{
		"is_edu_cyber_incident": true,
		"enriched_summary":      "Ransomware at a school district.",
	})
	assert.NoError(t, err)
}

func TestValidateAcceptsFullRecord(t *testing.T) {
	err := Validate(map[string]any{
		"is_edu_cyber_incident": true,
		"enriched_summary":      "LockBit ransomware attack on a public university.",
		"institution_name":      "Example State University",
		"institution_type":      "university_public",
		"country":               "United States",
		"country_code":          "US",
		"incident_severity":     "high",
		"incident_date":         "2024-05-12",
		"attack_category":       "ransomware",
		"attack_vector":         "vpn_exploitation",
		"ransomware_family":     "lockbit",
		"was_ransom_demanded":   true,
		"ransom_amount":         4750000.0,
		"mitre_attack_techniques": []any{
			map[string]any{
				"technique_id":   "T1078",
				"technique_name": "Valid Accounts",
				"tactic":         "initial_access",
			},
		},
		"systems_affected": []any{"email_system", "vpn_service"},
		"data_categories":  []any{"student_pii", "social_security_numbers"},
		"timeline": []any{
			map[string]any{
				"date":              "2024-05-12",
				"event_description": "Attackers gained access via compromised VPN credentials.",
				"event_type":        "initial_compromise",
			},
		},
	})
	assert.NoError(t, err)
}

func TestValidateRejections(t *testing.T) {
	cases := map[string]map[string]any{
		"missing summary": {
			"is_edu_cyber_incident": true,
		},
		"bad enum": {
			"is_edu_cyber_incident": true,
			"enriched_summary":      "x",
			"attack_category":       "Ransomware Attack",
		},
		"bad date format": {
			"is_edu_cyber_incident": true,
			"enriched_summary":      "x",
			"incident_date":         "May 12, 2024",
		},
		"bad technique id": {
			"is_edu_cyber_incident": true,
			"enriched_summary":      "x",
			"mitre_attack_techniques": []any{
				map[string]any{"technique_id": "1078"},
			},
		},
		"unknown field": {
			"is_edu_cyber_incident": true,
			"enriched_summary":      "x",
			"confidence":            0.9,
		},
	}
	for name, obj := range cases {
		t.Run(name, func(t *testing.T) {
			assert.Error(t, Validate(obj))
		})
	}
}

func TestPromptJSONIsNonEmpty(t *testing.T) {
	s := PromptJSON()
	assert.Contains(t, s, "is_edu_cyber_incident")
	assert.Contains(t, s, "attack_category")
}
