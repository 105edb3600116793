package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/eduthreat/sentinel/pkg/model"
)

// flatColumns lists the analytic projection columns in schema order,
// excluding incident_id and the timestamps.
var flatColumns = []string{
	"is_edu_cyber_incident", "education_reasoning",
	"institution_name", "institution_type", "country", "country_code", "region", "city",
	"incident_severity", "incident_status",
	"incident_date", "incident_date_precision", "discovery_date", "publication_date", "dwell_time_days",
	"attack_category", "attack_vector", "initial_access_description", "attack_chain_json",
	"vulnerabilities_json", "vulnerabilities_count", "cve_ids",
	"mitre_techniques_json", "mitre_techniques_count",
	"threat_actor_claimed", "threat_actor_name", "threat_actor_aliases", "threat_actor_category",
	"threat_actor_motivation", "threat_actor_origin_country", "threat_actor_claim_url",
	"ransomware_family", "was_ransom_demanded", "ransom_amount", "ransom_currency",
	"ransom_cryptocurrency", "ransom_paid", "ransom_paid_amount", "ransom_negotiated",
	"ransom_deadline_days", "decryptor_received", "decryptor_worked",
	"iocs_json", "ioc_count",
	"data_breached", "data_exfiltrated", "data_encrypted", "data_destroyed",
	"data_categories", "records_affected_exact", "records_affected_estimate", "data_volume_gb",
	"systems_affected", "systems_affected_count", "critical_systems_affected", "system_details",
	"students_affected", "staff_affected", "faculty_affected", "alumni_affected", "total_individuals_affected",
	"outage_duration_hours", "downtime_days", "operational_impacts", "classes_cancelled",
	"estimated_total_cost_usd", "recovery_cost_usd", "regulatory_fines_usd",
	"cyber_insurance_claimed", "cyber_insurance_payout",
	"applicable_regulations", "regulatory_notification_required", "regulator_notified", "lawsuits_filed",
	"recovery_method", "mttd_hours", "mttr_hours", "full_recovery_days",
	"security_improvements", "recovery_phases_json",
	"public_disclosure", "disclosure_delay_days", "transparency_level",
	"attack_campaign_name", "related_incidents", "sector_targeting_pattern",
	"timeline_json", "timeline_events_count", "enriched_summary",
}

func flatValues(f *model.FlatEnrichment) []any {
	return []any{
		boolInt(f.IsEduCyberIncident), nullStr(f.EducationReasoning),
		nullStr(f.InstitutionName), nullStr(f.InstitutionType), nullStr(f.Country), nullStr(f.CountryCode),
		nullStr(f.Region), nullStr(f.City),
		nullStr(f.IncidentSeverity), nullStr(f.IncidentStatus),
		nullStr(f.IncidentDate), nullStr(f.IncidentDatePrecision), nullStr(f.DiscoveryDate),
		nullStr(f.PublicationDate), nullF64(f.DwellTimeDays),
		nullStr(f.AttackCategory), nullStr(f.AttackVector), nullStr(f.InitialAccessDescription),
		nullStr(f.AttackChainJSON),
		nullStr(f.VulnerabilitiesJSON), f.VulnerabilitiesCount, nullStr(f.CVEIDs),
		nullStr(f.MitreTechniquesJSON), f.MitreTechniquesCount,
		nullBool(f.ThreatActorClaimed), nullStr(f.ThreatActorName), nullStr(f.ThreatActorAliases),
		nullStr(f.ThreatActorCategory), nullStr(f.ThreatActorMotivation),
		nullStr(f.ThreatActorOriginCountry), nullStr(f.ThreatActorClaimURL),
		nullStr(f.RansomwareFamily), nullBool(f.WasRansomDemanded), nullF64(f.RansomAmount),
		nullStr(f.RansomCurrency), nullStr(f.RansomCryptocurrency), nullBool(f.RansomPaid),
		nullF64(f.RansomPaidAmount), nullBool(f.RansomNegotiated),
		nullF64(f.RansomDeadlineDays), nullBool(f.DecryptorReceived), nullBool(f.DecryptorWorked),
		nullStr(f.IOCsJSON), f.IOCCount,
		nullBool(f.DataBreached), nullBool(f.DataExfiltrated), nullBool(f.DataEncrypted), nullBool(f.DataDestroyed),
		nullStr(f.DataCategories), nullI64(f.RecordsAffectedExact), nullStr(f.RecordsAffectedEstimate),
		nullF64(f.DataVolumeGB),
		nullStr(f.SystemsAffected), f.SystemsAffectedCount, nullBool(f.CriticalSystemsAffected),
		nullStr(f.SystemDetails),
		nullI64(f.StudentsAffected), nullI64(f.StaffAffected), nullI64(f.FacultyAffected),
		nullI64(f.AlumniAffected), nullI64(f.TotalIndividualsAffected),
		nullF64(f.OutageDurationHours), nullF64(f.DowntimeDays), nullStr(f.OperationalImpacts),
		nullBool(f.ClassesCancelled),
		nullF64(f.EstimatedTotalCostUSD), nullF64(f.RecoveryCostUSD), nullF64(f.RegulatoryFinesUSD),
		nullBool(f.CyberInsuranceClaimed), nullF64(f.CyberInsurancePayout),
		nullStr(f.ApplicableRegulations), nullBool(f.RegulatoryNotificationRequired),
		nullBool(f.RegulatorNotified), nullBool(f.LawsuitsFiled),
		nullStr(f.RecoveryMethod), nullF64(f.MTTDHours), nullF64(f.MTTRHours), nullF64(f.FullRecoveryDays),
		nullStr(f.SecurityImprovements), nullStr(f.RecoveryPhasesJSON),
		nullBool(f.PublicDisclosure), nullF64(f.DisclosureDelayDays), nullStr(f.TransparencyLevel),
		nullStr(f.AttackCampaignName), nullStr(f.RelatedIncidents), nullStr(f.SectorTargetingPattern),
		nullStr(f.TimelineJSON), f.TimelineEventsCount, nullStr(f.EnrichedSummary),
	}
}

func upsertFlatTx(ctx context.Context, tx *sql.Tx, incidentID string, f *model.FlatEnrichment, now time.Time) error {
	cols := append([]string{"incident_id"}, flatColumns...)
	cols = append(cols, "created_at", "updated_at")

	placeholders := strings.TrimSuffix(strings.Repeat("?, ", len(cols)), ", ")

	updates := make([]string, 0, len(flatColumns)+1)
	for _, c := range flatColumns {
		updates = append(updates, fmt.Sprintf("%s = excluded.%s", c, c))
	}
	updates = append(updates, "updated_at = excluded.updated_at")

	args := make([]any, 0, len(cols))
	args = append(args, incidentID)
	args = append(args, flatValues(f)...)
	args = append(args, now.Format(timeLayout), now.Format(timeLayout))

	query := fmt.Sprintf(
		`INSERT INTO incident_enrichments_flat (%s) VALUES (%s)
		 ON CONFLICT(incident_id) DO UPDATE SET %s`,
		strings.Join(cols, ", "), placeholders, strings.Join(updates, ", "))

	if _, err := tx.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("save flat projection %s: %w", incidentID, err)
	}
	return nil
}

// GetFlat loads the flat projection for one incident, or nil when absent.
// Only the columns the dedup and reporting paths read are hydrated.
func (s *Store) GetFlat(ctx context.Context, incidentID string) (*model.FlatEnrichment, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT incident_id, is_edu_cyber_incident, institution_name, country, country_code,
			attack_category, ransomware_family, enriched_summary, timeline_events_count,
			mitre_techniques_count
		 FROM incident_enrichments_flat WHERE incident_id = ?`, incidentID)

	var f model.FlatEnrichment
	var edu int
	var inst, ctry, code, cat, fam, summary sql.NullString
	err := row.Scan(&f.IncidentID, &edu, &inst, &ctry, &code, &cat, &fam, &summary,
		&f.TimelineEventsCount, &f.MitreTechniquesCount)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get flat %s: %w", incidentID, err)
	}
	f.IsEduCyberIncident = edu != 0
	f.InstitutionName = inst.String
	f.Country = ctry.String
	f.CountryCode = code.String
	f.AttackCategory = cat.String
	f.RansomwareFamily = fam.String
	f.EnrichedSummary = summary.String
	return &f, nil
}

// CountFlat returns the number of flat projection rows.
func (s *Store) CountFlat(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM incident_enrichments_flat`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count flat: %w", err)
	}
	return n, nil
}
