package schema

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

// Version tags every stored enrichment record. Bump the major component
// when the field set changes incompatibly; upgrades re-enrich records
// whose stored version has a lower major.
const Version = "2.1.0"

const schemaURL = "https://eduthreat.schemas.local/enrichment.schema.json"

const (
	cveIDPattern     = `^CVE-\d{4}-\d+$`
	techniqueIDPattern = `^T\d{4}(\.\d{3})?$`
	isoDatePattern   = `^\d{4}-\d{2}-\d{2}$`
	countryCodePattern = `^[A-Z]{2}$`
)

func nullable(t string, extra map[string]any) map[string]any {
	m := map[string]any{"type": []string{t, "null"}}
	for k, v := range extra {
		m[k] = v
	}
	return m
}

func nullableEnum(v *Vocabulary) map[string]any {
	values := make([]any, 0, len(v.Values)+1)
	for _, val := range v.Values {
		values = append(values, val)
	}
	values = append(values, nil)
	return map[string]any{"enum": values}
}

func nullableEnumList(v *Vocabulary) map[string]any {
	values := make([]any, 0, len(v.Values))
	for _, val := range v.Values {
		values = append(values, val)
	}
	return map[string]any{
		"type":  []string{"array", "null"},
		"items": map[string]any{"enum": values},
	}
}

func stringList() map[string]any {
	return map[string]any{
		"type":  []string{"array", "null"},
		"items": map[string]any{"type": "string"},
	}
}

// Build returns the full enrichment JSON Schema as a plain map, suitable
// both for prompt inclusion and for the structured-output request format.
func Build() map[string]any {
	timelineEvent := map[string]any{
		"type": "object",
		"properties": map[string]any{
			"date":              nullable("string", map[string]any{"pattern": isoDatePattern}),
			"date_precision":    nullableEnum(DatePrecisions),
			"event_description": map[string]any{"type": "string"},
			"event_type":        nullableEnum(EventTypes),
			"actor_attribution": nullable("string", nil),
			"indicators":        stringList(),
		},
		"required":             []string{"event_description"},
		"additionalProperties": false,
	}

	vulnerability := map[string]any{
		"type": "object",
		"properties": map[string]any{
			"cve_id":             nullable("string", map[string]any{"pattern": cveIDPattern}),
			"vulnerability_type": nullableEnum(VulnerabilityTypes),
			"affected_product":   nullable("string", nil),
			"cvss_score":         nullable("number", map[string]any{"minimum": 0, "maximum": 10}),
		},
		"additionalProperties": false,
	}

	mitreTechnique := map[string]any{
		"type": "object",
		"properties": map[string]any{
			"technique_id":   map[string]any{"type": "string", "pattern": techniqueIDPattern},
			"technique_name": nullable("string", nil),
			"tactic":         nullableEnum(MitreTactics),
			"description":    nullable("string", nil),
			"sub_techniques": stringList(),
		},
		"required":             []string{"technique_id"},
		"additionalProperties": false,
	}

	fileHash := map[string]any{
		"type": "object",
		"properties": map[string]any{
			"hash_type":  nullableEnum(HashTypes),
			"hash_value": map[string]any{"type": "string"},
		},
		"required":             []string{"hash_value"},
		"additionalProperties": false,
	}

	iocs := map[string]any{
		"type": []string{"object", "null"},
		"properties": map[string]any{
			"ip_addresses":           stringList(),
			"domains":                stringList(),
			"urls":                   stringList(),
			"file_hashes":            map[string]any{"type": []string{"array", "null"}, "items": fileHash},
			"email_addresses":        stringList(),
			"cryptocurrency_wallets": stringList(),
			"file_names":             stringList(),
			"registry_keys":          stringList(),
		},
		"additionalProperties": false,
	}

	educationRelevance := map[string]any{
		"type": []string{"object", "null"},
		"properties": map[string]any{
			"is_education_related": map[string]any{"type": []string{"boolean", "null"}},
			"reasoning":            nullable("string", nil),
		},
		"additionalProperties": false,
	}

	properties := map[string]any{
		"is_edu_cyber_incident": map[string]any{"type": "boolean"},
		"enriched_summary":      map[string]any{"type": "string"},
		"education_relevance":   educationRelevance,

		// Classification
		"institution_name": nullable("string", nil),
		"institution_type": nullableEnum(InstitutionTypes),
		"country":          nullable("string", nil),
		"country_code":     nullable("string", map[string]any{"pattern": countryCodePattern}),
		"region":           nullable("string", nil),
		"city":             nullable("string", nil),
		"incident_severity": nullableEnum(Severities),
		"incident_status":   nullableEnum(IncidentStatuses),

		// Dates
		"incident_date":           nullable("string", map[string]any{"pattern": isoDatePattern}),
		"discovery_date":          nullable("string", map[string]any{"pattern": isoDatePattern}),
		"publication_date":        nullable("string", map[string]any{"pattern": isoDatePattern}),
		"incident_date_precision": nullableEnum(DatePrecisions),
		"dwell_time_days":         nullable("number", nil),

		"timeline": map[string]any{"type": []string{"array", "null"}, "items": timelineEvent},

		// Attack
		"attack_category":            nullableEnum(AttackCategories),
		"attack_vector":              nullableEnum(AttackVectors),
		"initial_access_description": nullable("string", nil),
		"attack_chain":               nullableEnumList(KillChainPhases),

		"vulnerabilities":         map[string]any{"type": []string{"array", "null"}, "items": vulnerability},
		"mitre_attack_techniques": map[string]any{"type": []string{"array", "null"}, "items": mitreTechnique},

		// Threat actor
		"threat_actor_claimed":        map[string]any{"type": []string{"boolean", "null"}},
		"threat_actor_name":           nullable("string", nil),
		"threat_actor_aliases":        stringList(),
		"threat_actor_category":       nullableEnum(ThreatActorCategories),
		"threat_actor_motivation":     nullableEnum(ThreatActorMotivations),
		"threat_actor_origin_country": nullable("string", nil),
		"threat_actor_claim_url":      nullable("string", nil),

		// Ransomware
		"ransomware_family":     nullableEnum(RansomwareFamilies),
		"was_ransom_demanded":   map[string]any{"type": []string{"boolean", "null"}},
		"ransom_amount":         nullable("number", nil),
		"ransom_currency":       nullable("string", nil),
		"ransom_cryptocurrency": nullableEnum(Cryptocurrencies),
		"ransom_paid":           map[string]any{"type": []string{"boolean", "null"}},
		"ransom_paid_amount":    nullable("number", nil),
		"ransom_negotiated":     map[string]any{"type": []string{"boolean", "null"}},
		"ransom_deadline_days":  nullable("number", nil),
		"decryptor_received":    map[string]any{"type": []string{"boolean", "null"}},
		"decryptor_worked":      map[string]any{"type": []string{"boolean", "null"}},

		"iocs": iocs,

		// Data impact
		"data_breached":             map[string]any{"type": []string{"boolean", "null"}},
		"data_exfiltrated":          map[string]any{"type": []string{"boolean", "null"}},
		"data_encrypted":            map[string]any{"type": []string{"boolean", "null"}},
		"data_destroyed":            map[string]any{"type": []string{"boolean", "null"}},
		"data_categories":           nullableEnumList(DataCategories),
		"records_affected_exact":    nullable("integer", nil),
		"records_affected_estimate": nullable("string", nil),
		"data_volume_gb":            nullable("number", nil),

		// System impact
		"systems_affected":          nullableEnumList(SystemsAffected),
		"critical_systems_affected": map[string]any{"type": []string{"boolean", "null"}},
		"system_details":            nullable("string", nil),

		// User impact
		"students_affected":          nullable("integer", nil),
		"staff_affected":             nullable("integer", nil),
		"faculty_affected":           nullable("integer", nil),
		"alumni_affected":            nullable("integer", nil),
		"total_individuals_affected": nullable("integer", nil),

		// Operational impact
		"outage_duration_hours": nullable("number", nil),
		"downtime_days":         nullable("number", nil),
		"operational_impacts":   nullableEnumList(OperationalImpacts),
		"classes_cancelled":     map[string]any{"type": []string{"boolean", "null"}},

		// Financial impact, all USD
		"estimated_total_cost_usd": nullable("number", nil),
		"recovery_cost_usd":        nullable("number", nil),
		"regulatory_fines_usd":     nullable("number", nil),
		"cyber_insurance_claimed":  map[string]any{"type": []string{"boolean", "null"}},
		"cyber_insurance_payout":   nullable("number", nil),

		// Regulatory
		"applicable_regulations":           nullableEnumList(Regulations),
		"regulatory_notification_required": map[string]any{"type": []string{"boolean", "null"}},
		"regulator_notified":               map[string]any{"type": []string{"boolean", "null"}},
		"lawsuits_filed":                   map[string]any{"type": []string{"boolean", "null"}},

		// Recovery
		"recovery_method":       nullableEnum(RecoveryMethods),
		"mttd_hours":            nullable("number", nil),
		"mttr_hours":            nullable("number", nil),
		"full_recovery_days":    nullable("number", nil),
		"security_improvements": nullableEnumList(SecurityImprovements),
		"recovery_phases":       stringList(),

		// Transparency
		"public_disclosure":     map[string]any{"type": []string{"boolean", "null"}},
		"disclosure_delay_days": nullable("number", nil),
		"transparency_level":    nullableEnum(TransparencyLevels),

		// Cross-incident
		"attack_campaign_name":     nullable("string", nil),
		"related_incidents":        stringList(),
		"sector_targeting_pattern": nullableEnum(SectorPatterns),
	}

	return map[string]any{
		"$schema":              "https://json-schema.org/draft/2020-12/schema",
		"type":                 "object",
		"properties":           properties,
		"required":             []string{"is_edu_cyber_incident", "enriched_summary"},
		"additionalProperties": false,
	}
}

var (
	compileOnce sync.Once
	compiled    *jsonschema.Schema
	compileErr  error
)

// Compiled returns the strict validator, compiled once per process.
func Compiled() (*jsonschema.Schema, error) {
	compileOnce.Do(func() {
		raw, err := json.Marshal(Build())
		if err != nil {
			compileErr = fmt.Errorf("marshal enrichment schema: %w", err)
			return
		}
		c := jsonschema.NewCompiler()
		c.Draft = jsonschema.Draft2020
		if err := c.AddResource(schemaURL, bytes.NewReader(raw)); err != nil {
			compileErr = fmt.Errorf("enrichment schema load failed: %w", err)
			return
		}
		compiled, compileErr = c.Compile(schemaURL)
		if compileErr != nil {
			compileErr = fmt.Errorf("enrichment schema compile failed: %w", compileErr)
		}
	})
	return compiled, compileErr
}

// Validate checks a normalized response object against the strict schema.
func Validate(obj map[string]any) error {
	s, err := Compiled()
	if err != nil {
		return err
	}
	// The validator needs plain JSON types; round-trip guards against any
	// non-JSON values smuggled in by normalization.
	raw, err := json.Marshal(obj)
	if err != nil {
		return fmt.Errorf("marshal response for validation: %w", err)
	}
	var plain any
	if err := json.Unmarshal(raw, &plain); err != nil {
		return fmt.Errorf("reparse response for validation: %w", err)
	}
	return s.Validate(plain)
}

// PromptJSON renders the schema as indented JSON for inclusion in the
// extraction prompt.
func PromptJSON() string {
	raw, err := json.MarshalIndent(Build(), "", "  ")
	if err != nil {
		return "{}"
	}
	return string(raw)
}
