// Package enrich turns fetched article text into structured incident
// records: prompt construction, response normalization and validation,
// coverage scoring, flat projection, and transactional persistence.
package enrich

import (
	"encoding/json"
	"fmt"
)

// TimelineEvent is one dated step in the incident narrative.
type TimelineEvent struct {
	Date             string   `json:"date,omitempty"`
	DatePrecision    string   `json:"date_precision,omitempty"`
	EventDescription string   `json:"event_description"`
	EventType        string   `json:"event_type,omitempty"`
	ActorAttribution string   `json:"actor_attribution,omitempty"`
	Indicators       []string `json:"indicators,omitempty"`
}

// Vulnerability is one exploited CVE.
type Vulnerability struct {
	CVEID             string   `json:"cve_id,omitempty"`
	VulnerabilityType string   `json:"vulnerability_type,omitempty"`
	AffectedProduct   string   `json:"affected_product,omitempty"`
	CVSSScore         *float64 `json:"cvss_score,omitempty"`
}

// MitreTechnique is one mapped ATT&CK technique.
type MitreTechnique struct {
	TechniqueID   string   `json:"technique_id"`
	TechniqueName string   `json:"technique_name,omitempty"`
	Tactic        string   `json:"tactic,omitempty"`
	Description   string   `json:"description,omitempty"`
	SubTechniques []string `json:"sub_techniques,omitempty"`
}

// FileHash is one hash indicator.
type FileHash struct {
	HashType  string `json:"hash_type,omitempty"`
	HashValue string `json:"hash_value"`
}

// IOCs groups the indicator-of-compromise lists.
type IOCs struct {
	IPAddresses           []string   `json:"ip_addresses,omitempty"`
	Domains               []string   `json:"domains,omitempty"`
	URLs                  []string   `json:"urls,omitempty"`
	FileHashes            []FileHash `json:"file_hashes,omitempty"`
	EmailAddresses        []string   `json:"email_addresses,omitempty"`
	CryptocurrencyWallets []string   `json:"cryptocurrency_wallets,omitempty"`
	FileNames             []string   `json:"file_names,omitempty"`
	RegistryKeys          []string   `json:"registry_keys,omitempty"`
}

// EducationRelevance carries the education-sector classification and the
// model's stated reasoning.
type EducationRelevance struct {
	IsEducationRelated *bool  `json:"is_education_related,omitempty"`
	Reasoning          string `json:"reasoning,omitempty"`
}

// Record is the strict typed form of one enrichment. Nullable numerics and
// booleans are pointers so absence survives the round trip to storage.
type Record struct {
	IsEduCyberIncident bool                `json:"is_edu_cyber_incident"`
	EnrichedSummary    string              `json:"enriched_summary"`
	EducationRelevance *EducationRelevance `json:"education_relevance,omitempty"`

	InstitutionName  string `json:"institution_name,omitempty"`
	InstitutionType  string `json:"institution_type,omitempty"`
	Country          string `json:"country,omitempty"`
	CountryCode      string `json:"country_code,omitempty"`
	Region           string `json:"region,omitempty"`
	City             string `json:"city,omitempty"`
	IncidentSeverity string `json:"incident_severity,omitempty"`
	IncidentStatus   string `json:"incident_status,omitempty"`

	IncidentDate          string   `json:"incident_date,omitempty"`
	DiscoveryDate         string   `json:"discovery_date,omitempty"`
	PublicationDate       string   `json:"publication_date,omitempty"`
	IncidentDatePrecision string   `json:"incident_date_precision,omitempty"`
	DwellTimeDays         *float64 `json:"dwell_time_days,omitempty"`

	Timeline []TimelineEvent `json:"timeline,omitempty"`

	AttackCategory           string   `json:"attack_category,omitempty"`
	AttackVector             string   `json:"attack_vector,omitempty"`
	InitialAccessDescription string   `json:"initial_access_description,omitempty"`
	AttackChain              []string `json:"attack_chain,omitempty"`

	Vulnerabilities       []Vulnerability  `json:"vulnerabilities,omitempty"`
	MitreAttackTechniques []MitreTechnique `json:"mitre_attack_techniques,omitempty"`

	ThreatActorClaimed       *bool    `json:"threat_actor_claimed,omitempty"`
	ThreatActorName          string   `json:"threat_actor_name,omitempty"`
	ThreatActorAliases       []string `json:"threat_actor_aliases,omitempty"`
	ThreatActorCategory      string   `json:"threat_actor_category,omitempty"`
	ThreatActorMotivation    string   `json:"threat_actor_motivation,omitempty"`
	ThreatActorOriginCountry string   `json:"threat_actor_origin_country,omitempty"`
	ThreatActorClaimURL      string   `json:"threat_actor_claim_url,omitempty"`

	RansomwareFamily     string   `json:"ransomware_family,omitempty"`
	WasRansomDemanded    *bool    `json:"was_ransom_demanded,omitempty"`
	RansomAmount         *float64 `json:"ransom_amount,omitempty"`
	RansomCurrency       string   `json:"ransom_currency,omitempty"`
	RansomCryptocurrency string   `json:"ransom_cryptocurrency,omitempty"`
	RansomPaid           *bool    `json:"ransom_paid,omitempty"`
	RansomPaidAmount     *float64 `json:"ransom_paid_amount,omitempty"`
	RansomNegotiated     *bool    `json:"ransom_negotiated,omitempty"`
	RansomDeadlineDays   *float64 `json:"ransom_deadline_days,omitempty"`
	DecryptorReceived    *bool    `json:"decryptor_received,omitempty"`
	DecryptorWorked      *bool    `json:"decryptor_worked,omitempty"`

	IOCs *IOCs `json:"iocs,omitempty"`

	DataBreached            *bool    `json:"data_breached,omitempty"`
	DataExfiltrated         *bool    `json:"data_exfiltrated,omitempty"`
	DataEncrypted           *bool    `json:"data_encrypted,omitempty"`
	DataDestroyed           *bool    `json:"data_destroyed,omitempty"`
	DataCategories          []string `json:"data_categories,omitempty"`
	RecordsAffectedExact    *int64   `json:"records_affected_exact,omitempty"`
	RecordsAffectedEstimate string   `json:"records_affected_estimate,omitempty"`
	DataVolumeGB            *float64 `json:"data_volume_gb,omitempty"`

	SystemsAffected         []string `json:"systems_affected,omitempty"`
	CriticalSystemsAffected *bool    `json:"critical_systems_affected,omitempty"`
	SystemDetails           string   `json:"system_details,omitempty"`

	StudentsAffected         *int64 `json:"students_affected,omitempty"`
	StaffAffected            *int64 `json:"staff_affected,omitempty"`
	FacultyAffected          *int64 `json:"faculty_affected,omitempty"`
	AlumniAffected           *int64 `json:"alumni_affected,omitempty"`
	TotalIndividualsAffected *int64 `json:"total_individuals_affected,omitempty"`

	OutageDurationHours *float64 `json:"outage_duration_hours,omitempty"`
	DowntimeDays        *float64 `json:"downtime_days,omitempty"`
	OperationalImpacts  []string `json:"operational_impacts,omitempty"`
	ClassesCancelled    *bool    `json:"classes_cancelled,omitempty"`

	EstimatedTotalCostUSD *float64 `json:"estimated_total_cost_usd,omitempty"`
	RecoveryCostUSD       *float64 `json:"recovery_cost_usd,omitempty"`
	RegulatoryFinesUSD    *float64 `json:"regulatory_fines_usd,omitempty"`
	CyberInsuranceClaimed *bool    `json:"cyber_insurance_claimed,omitempty"`
	CyberInsurancePayout  *float64 `json:"cyber_insurance_payout,omitempty"`

	ApplicableRegulations          []string `json:"applicable_regulations,omitempty"`
	RegulatoryNotificationRequired *bool    `json:"regulatory_notification_required,omitempty"`
	RegulatorNotified              *bool    `json:"regulator_notified,omitempty"`
	LawsuitsFiled                  *bool    `json:"lawsuits_filed,omitempty"`

	RecoveryMethod       string   `json:"recovery_method,omitempty"`
	MTTDHours            *float64 `json:"mttd_hours,omitempty"`
	MTTRHours            *float64 `json:"mttr_hours,omitempty"`
	FullRecoveryDays     *float64 `json:"full_recovery_days,omitempty"`
	SecurityImprovements []string `json:"security_improvements,omitempty"`
	RecoveryPhases       []string `json:"recovery_phases,omitempty"`

	PublicDisclosure    *bool    `json:"public_disclosure,omitempty"`
	DisclosureDelayDays *float64 `json:"disclosure_delay_days,omitempty"`
	TransparencyLevel   string   `json:"transparency_level,omitempty"`

	AttackCampaignName     string   `json:"attack_campaign_name,omitempty"`
	RelatedIncidents       []string `json:"related_incidents,omitempty"`
	SectorTargetingPattern string   `json:"sector_targeting_pattern,omitempty"`
}

// recordFromObject converts a validated normalized object to the typed
// record.
func recordFromObject(obj map[string]any) (*Record, error) {
	raw, err := json.Marshal(obj)
	if err != nil {
		return nil, fmt.Errorf("marshal normalized object: %w", err)
	}
	var rec Record
	if err := json.Unmarshal(raw, &rec); err != nil {
		return nil, fmt.Errorf("decode enrichment record: %w", err)
	}
	return &rec, nil
}

// CoverageScore counts non-null populated fields in an enrichment object,
// recursing into nested objects and lists. Higher means the article
// supported more of the schema.
func CoverageScore(v any) int {
	switch val := v.(type) {
	case nil:
		return 0
	case map[string]any:
		n := 0
		for _, child := range val {
			n += CoverageScore(child)
		}
		return n
	case []any:
		n := 0
		for _, child := range val {
			n += CoverageScore(child)
		}
		return n
	case string:
		if val == "" {
			return 0
		}
		return 1
	default:
		// Numbers and booleans count when present at all.
		return 1
	}
}
