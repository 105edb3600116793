package model

import "time"

// FlatEnrichment is the wide analytic projection of one enrichment record:
// one row per incident, one typed column per analytic field. Nullable
// numerics and booleans are pointers so that "unknown" never collapses to
// zero or false. List-valued fields are stored either semicolon-joined or
// as JSON, matching how the export layer consumes them.
type FlatEnrichment struct {
	IncidentID string

	// Education gate
	IsEduCyberIncident bool
	EducationReasoning string

	// Institution
	InstitutionName  string
	InstitutionType  string
	Country          string
	CountryCode      string
	Region           string
	City             string
	IncidentSeverity string
	IncidentStatus   string

	// Dates
	IncidentDate          string
	IncidentDatePrecision string
	DiscoveryDate         string
	PublicationDate       string
	DwellTimeDays         *float64

	// Attack
	AttackCategory           string
	AttackVector             string
	InitialAccessDescription string
	AttackChainJSON          string

	// Vulnerabilities
	VulnerabilitiesJSON  string
	VulnerabilitiesCount int
	CVEIDs               string

	// MITRE ATT&CK
	MitreTechniquesJSON  string
	MitreTechniquesCount int

	// Threat actor
	ThreatActorClaimed       *bool
	ThreatActorName          string
	ThreatActorAliases       string
	ThreatActorCategory      string
	ThreatActorMotivation    string
	ThreatActorOriginCountry string
	ThreatActorClaimURL      string

	// Ransomware
	RansomwareFamily    string
	WasRansomDemanded   *bool
	RansomAmount        *float64
	RansomCurrency      string
	RansomCryptocurrency string
	RansomPaid          *bool
	RansomPaidAmount    *float64
	RansomNegotiated    *bool
	RansomDeadlineDays  *float64
	DecryptorReceived   *bool
	DecryptorWorked     *bool

	// IOCs
	IOCsJSON string
	IOCCount int

	// Data impact
	DataBreached           *bool
	DataExfiltrated        *bool
	DataEncrypted          *bool
	DataDestroyed          *bool
	DataCategories         string
	RecordsAffectedExact   *int64
	RecordsAffectedEstimate string
	DataVolumeGB           *float64

	// System impact
	SystemsAffected         string
	SystemsAffectedCount    int
	CriticalSystemsAffected *bool
	SystemDetails           string

	// User impact
	StudentsAffected         *int64
	StaffAffected            *int64
	FacultyAffected          *int64
	AlumniAffected           *int64
	TotalIndividualsAffected *int64

	// Operational impact
	OutageDurationHours *float64
	DowntimeDays        *float64
	OperationalImpacts  string
	ClassesCancelled    *bool

	// Financial impact (USD)
	EstimatedTotalCostUSD *float64
	RecoveryCostUSD       *float64
	RegulatoryFinesUSD    *float64
	CyberInsuranceClaimed *bool
	CyberInsurancePayout  *float64

	// Regulatory
	ApplicableRegulations          string
	RegulatoryNotificationRequired *bool
	RegulatorNotified              *bool
	LawsuitsFiled                  *bool

	// Recovery
	RecoveryMethod       string
	MTTDHours            *float64
	MTTRHours            *float64
	FullRecoveryDays     *float64
	SecurityImprovements string
	RecoveryPhasesJSON   string

	// Transparency
	PublicDisclosure    *bool
	DisclosureDelayDays *float64
	TransparencyLevel   string

	// Cross-incident
	AttackCampaignName     string
	RelatedIncidents       string
	SectorTargetingPattern string

	// Timeline
	TimelineJSON        string
	TimelineEventsCount int

	EnrichedSummary string

	CreatedAt time.Time
	UpdatedAt time.Time
}
