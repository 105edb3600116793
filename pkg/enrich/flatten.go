package enrich

import (
	"encoding/json"
	"strings"

	"github.com/eduthreat/sentinel/pkg/model"
)

func joinList(items []string) string {
	return strings.Join(items, "; ")
}

func toJSON(v any) string {
	if v == nil {
		return ""
	}
	raw, err := json.Marshal(v)
	if err != nil {
		return ""
	}
	return string(raw)
}

// BuildFlat projects a typed enrichment record onto the wide analytic row.
func BuildFlat(incidentID string, rec *Record) *model.FlatEnrichment {
	f := &model.FlatEnrichment{
		IncidentID:         incidentID,
		IsEduCyberIncident: rec.IsEduCyberIncident,
		EnrichedSummary:    rec.EnrichedSummary,

		InstitutionName:  rec.InstitutionName,
		InstitutionType:  rec.InstitutionType,
		Country:          rec.Country,
		CountryCode:      rec.CountryCode,
		Region:           rec.Region,
		City:             rec.City,
		IncidentSeverity: rec.IncidentSeverity,
		IncidentStatus:   rec.IncidentStatus,

		IncidentDate:          rec.IncidentDate,
		IncidentDatePrecision: rec.IncidentDatePrecision,
		DiscoveryDate:         rec.DiscoveryDate,
		PublicationDate:       rec.PublicationDate,
		DwellTimeDays:         rec.DwellTimeDays,

		AttackCategory:           rec.AttackCategory,
		AttackVector:             rec.AttackVector,
		InitialAccessDescription: rec.InitialAccessDescription,

		ThreatActorClaimed:       rec.ThreatActorClaimed,
		ThreatActorName:          rec.ThreatActorName,
		ThreatActorAliases:       joinList(rec.ThreatActorAliases),
		ThreatActorCategory:      rec.ThreatActorCategory,
		ThreatActorMotivation:    rec.ThreatActorMotivation,
		ThreatActorOriginCountry: rec.ThreatActorOriginCountry,
		ThreatActorClaimURL:      rec.ThreatActorClaimURL,

		RansomwareFamily:     rec.RansomwareFamily,
		WasRansomDemanded:    rec.WasRansomDemanded,
		RansomAmount:         rec.RansomAmount,
		RansomCurrency:       rec.RansomCurrency,
		RansomCryptocurrency: rec.RansomCryptocurrency,
		RansomPaid:           rec.RansomPaid,
		RansomPaidAmount:     rec.RansomPaidAmount,
		RansomNegotiated:     rec.RansomNegotiated,
		RansomDeadlineDays:   rec.RansomDeadlineDays,
		DecryptorReceived:    rec.DecryptorReceived,
		DecryptorWorked:      rec.DecryptorWorked,

		DataBreached:            rec.DataBreached,
		DataExfiltrated:         rec.DataExfiltrated,
		DataEncrypted:           rec.DataEncrypted,
		DataDestroyed:           rec.DataDestroyed,
		DataCategories:          joinList(rec.DataCategories),
		RecordsAffectedExact:    rec.RecordsAffectedExact,
		RecordsAffectedEstimate: rec.RecordsAffectedEstimate,
		DataVolumeGB:            rec.DataVolumeGB,

		SystemsAffected:         joinList(rec.SystemsAffected),
		SystemsAffectedCount:    len(rec.SystemsAffected),
		CriticalSystemsAffected: rec.CriticalSystemsAffected,
		SystemDetails:           rec.SystemDetails,

		StudentsAffected:         rec.StudentsAffected,
		StaffAffected:            rec.StaffAffected,
		FacultyAffected:          rec.FacultyAffected,
		AlumniAffected:           rec.AlumniAffected,
		TotalIndividualsAffected: rec.TotalIndividualsAffected,

		OutageDurationHours: rec.OutageDurationHours,
		DowntimeDays:        rec.DowntimeDays,
		OperationalImpacts:  joinList(rec.OperationalImpacts),
		ClassesCancelled:    rec.ClassesCancelled,

		EstimatedTotalCostUSD: rec.EstimatedTotalCostUSD,
		RecoveryCostUSD:       rec.RecoveryCostUSD,
		RegulatoryFinesUSD:    rec.RegulatoryFinesUSD,
		CyberInsuranceClaimed: rec.CyberInsuranceClaimed,
		CyberInsurancePayout:  rec.CyberInsurancePayout,

		ApplicableRegulations:          joinList(rec.ApplicableRegulations),
		RegulatoryNotificationRequired: rec.RegulatoryNotificationRequired,
		RegulatorNotified:              rec.RegulatorNotified,
		LawsuitsFiled:                  rec.LawsuitsFiled,

		RecoveryMethod:       rec.RecoveryMethod,
		MTTDHours:            rec.MTTDHours,
		MTTRHours:            rec.MTTRHours,
		FullRecoveryDays:     rec.FullRecoveryDays,
		SecurityImprovements: joinList(rec.SecurityImprovements),

		PublicDisclosure:    rec.PublicDisclosure,
		DisclosureDelayDays: rec.DisclosureDelayDays,
		TransparencyLevel:   rec.TransparencyLevel,

		AttackCampaignName:     rec.AttackCampaignName,
		RelatedIncidents:       joinList(rec.RelatedIncidents),
		SectorTargetingPattern: rec.SectorTargetingPattern,
	}

	if rec.EducationRelevance != nil {
		f.EducationReasoning = rec.EducationRelevance.Reasoning
	}
	if len(rec.AttackChain) > 0 {
		f.AttackChainJSON = toJSON(rec.AttackChain)
	}
	if len(rec.Vulnerabilities) > 0 {
		f.VulnerabilitiesJSON = toJSON(rec.Vulnerabilities)
		f.VulnerabilitiesCount = len(rec.Vulnerabilities)
		var cves []string
		for _, v := range rec.Vulnerabilities {
			if v.CVEID != "" {
				cves = append(cves, v.CVEID)
			}
		}
		f.CVEIDs = joinList(cves)
	}
	if len(rec.MitreAttackTechniques) > 0 {
		f.MitreTechniquesJSON = toJSON(rec.MitreAttackTechniques)
		f.MitreTechniquesCount = len(rec.MitreAttackTechniques)
	}
	if rec.IOCs != nil {
		f.IOCsJSON = toJSON(rec.IOCs)
		f.IOCCount = countIOCs(rec.IOCs)
	}
	if len(rec.Timeline) > 0 {
		f.TimelineJSON = toJSON(rec.Timeline)
		f.TimelineEventsCount = len(rec.Timeline)
	}
	if len(rec.RecoveryPhases) > 0 {
		f.RecoveryPhasesJSON = toJSON(rec.RecoveryPhases)
	}
	return f
}

func countIOCs(i *IOCs) int {
	return len(i.IPAddresses) + len(i.Domains) + len(i.URLs) +
		len(i.FileHashes) + len(i.EmailAddresses) +
		len(i.CryptocurrencyWallets) + len(i.FileNames) + len(i.RegistryKeys)
}
