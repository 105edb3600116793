// Package schema defines the closed vocabularies for structured incident
// enrichment, the JSON Schema built from them, and the validator used on
// normalized model output.
package schema

import "strings"

// Vocabulary is one closed enum: its canonical values, an explicit alias
// map, and a substring fallback for free-form model output.
type Vocabulary struct {
	Name    string
	Values  []string
	Aliases map[string]string

	valueSet map[string]struct{}
}

func newVocabulary(name string, values []string, aliases map[string]string) *Vocabulary {
	set := make(map[string]struct{}, len(values))
	for _, v := range values {
		set[v] = struct{}{}
	}
	if aliases == nil {
		aliases = map[string]string{}
	}
	return &Vocabulary{Name: name, Values: values, Aliases: aliases, valueSet: set}
}

// canonKey folds a raw value into lookup form.
func canonKey(raw string) string {
	s := strings.ToLower(strings.TrimSpace(raw))
	s = strings.ReplaceAll(s, "-", "_")
	s = strings.ReplaceAll(s, " ", "_")
	s = strings.ReplaceAll(s, "/", "_")
	for strings.Contains(s, "__") {
		s = strings.ReplaceAll(s, "__", "_")
	}
	return strings.Trim(s, "_.")
}

// Match resolves a raw value to a canonical one. Resolution order: exact
// membership after folding, explicit alias, then substring fallback in
// both directions. Returns false when nothing matches.
func (v *Vocabulary) Match(raw string) (string, bool) {
	key := canonKey(raw)
	if key == "" {
		return "", false
	}
	if _, ok := v.valueSet[key]; ok {
		return key, true
	}
	if canonical, ok := v.Aliases[key]; ok {
		return canonical, true
	}
	for _, value := range v.Values {
		if value == "other" || value == "unknown" {
			continue
		}
		if strings.Contains(key, value) || strings.Contains(value, key) {
			return value, true
		}
	}
	return "", false
}

// Contains reports exact canonical membership.
func (v *Vocabulary) Contains(value string) bool {
	_, ok := v.valueSet[value]
	return ok
}

// NormalizeScalar maps a raw scalar to canonical, defaulting to "other"
// when the vocabulary carries that value and nothing matched.
func (v *Vocabulary) NormalizeScalar(raw string) string {
	if canonical, ok := v.Match(raw); ok {
		return canonical
	}
	if v.Contains("other") {
		return "other"
	}
	if v.Contains("unknown") {
		return "unknown"
	}
	return ""
}

// NormalizeList maps raw list elements to canonical ones, dropping what
// cannot be matched and deduplicating while preserving order.
func (v *Vocabulary) NormalizeList(raw []string) []string {
	var out []string
	seen := make(map[string]struct{})
	for _, item := range raw {
		canonical, ok := v.Match(item)
		if !ok {
			continue
		}
		if _, dup := seen[canonical]; dup {
			continue
		}
		seen[canonical] = struct{}{}
		out = append(out, canonical)
	}
	return out
}

var InstitutionTypes = newVocabulary("institution_type", []string{
	"university_public", "university_private", "university_research",
	"community_college", "technical_college", "k12_public_school",
	"k12_private_school", "school_district", "research_institute",
	"medical_school", "university_hospital", "library",
	"education_department", "edtech_vendor", "other", "unknown",
}, map[string]string{
	"public_university":   "university_public",
	"private_university":  "university_private",
	"state_university":    "university_public",
	"college":             "community_college",
	"public_school":       "k12_public_school",
	"private_school":      "k12_private_school",
	"elementary_school":   "k12_public_school",
	"high_school":         "k12_public_school",
	"district":            "school_district",
	"isd":                 "school_district",
	"teaching_hospital":   "university_hospital",
	"academic_medical_center": "university_hospital",
})

var Severities = newVocabulary("incident_severity", []string{
	"critical", "high", "medium", "low", "informational",
}, map[string]string{
	"severe":   "critical",
	"major":    "high",
	"moderate": "medium",
	"minor":    "low",
	"info":     "informational",
})

var IncidentStatuses = newVocabulary("incident_status", []string{
	"ongoing", "contained", "resolved", "unknown",
}, map[string]string{
	"active":       "ongoing",
	"in_progress":  "ongoing",
	"under_investigation": "ongoing",
	"mitigated":    "contained",
	"remediated":   "resolved",
	"closed":       "resolved",
	"recovered":    "resolved",
})

var DatePrecisions = newVocabulary("date_precision", []string{
	"day", "month", "year", "unknown",
}, map[string]string{
	"exact": "day", "daily": "day", "approximate_month": "month",
	"approximate_year": "year", "none": "unknown",
})

var EventTypes = newVocabulary("event_type", []string{
	"initial_compromise", "reconnaissance", "lateral_movement",
	"privilege_escalation", "data_exfiltration", "encryption",
	"ransom_demand", "ransom_negotiation", "ransom_payment",
	"data_leak", "discovery", "disclosure", "notification",
	"containment", "investigation", "recovery", "system_restoration",
	"lawsuit", "regulatory_action", "other",
}, map[string]string{
	"breach":             "initial_compromise",
	"intrusion":          "initial_compromise",
	"attack":             "initial_compromise",
	"exfiltration":       "data_exfiltration",
	"data_theft":         "data_exfiltration",
	"ransomware_deployed": "encryption",
	"files_encrypted":    "encryption",
	"extortion":          "ransom_demand",
	"detected":           "discovery",
	"detection":          "discovery",
	"public_disclosure":  "disclosure",
	"announcement":       "disclosure",
	"breach_notification": "notification",
	"victims_notified":   "notification",
	"isolated":           "containment",
	"restored":           "system_restoration",
	"litigation":         "lawsuit",
	"class_action":       "lawsuit",
	"fine":               "regulatory_action",
	"leak_site_post":     "data_leak",
	"published_on_leak_site": "data_leak",
})

var AttackCategories = newVocabulary("attack_category", []string{
	"ransomware", "data_breach", "ddos", "phishing",
	"business_email_compromise", "malware", "spyware", "wiper",
	"cryptojacking", "supply_chain_attack", "insider_threat",
	"credential_theft", "account_takeover", "web_defacement",
	"sql_injection_attack", "cross_site_scripting_attack",
	"zero_day_exploitation", "vulnerability_exploitation",
	"brute_force_attack", "password_spraying_attack",
	"social_engineering", "vishing_attack", "smishing_attack",
	"man_in_the_middle", "session_hijacking", "dns_hijacking",
	"domain_spoofing", "typosquatting", "watering_hole",
	"drive_by_download", "adware", "botnet_infection", "rootkit",
	"trojan", "worm", "keylogger", "data_leak", "data_exposure",
	"misconfiguration_exposure", "cloud_compromise",
	"third_party_breach", "vendor_breach", "api_abuse",
	"scraping_abuse", "extortion_without_encryption",
	"double_extortion", "triple_extortion", "hacktivism",
	"espionage", "grade_tampering", "unknown", "other",
}, map[string]string{
	"ransomware_attack":  "ransomware",
	"crypto_ransomware":  "ransomware",
	"breach":             "data_breach",
	"hack":               "data_breach",
	"bec":                "business_email_compromise",
	"email_fraud":        "business_email_compromise",
	"distributed_denial_of_service": "ddos",
	"denial_of_service":  "ddos",
	"dos":                "ddos",
	"phishing_campaign":  "phishing",
	"defacement":         "web_defacement",
	"sqli":               "sql_injection_attack",
	"xss":                "cross_site_scripting_attack",
	"0day":               "zero_day_exploitation",
	"exploit":            "vulnerability_exploitation",
	"exposed_data":       "data_exposure",
	"unsecured_database": "misconfiguration_exposure",
	"leak":               "data_leak",
	"extortion":          "extortion_without_encryption",
	"supply_chain":       "supply_chain_attack",
	"insider":            "insider_threat",
	"nation_state_attack": "espionage",
})

var AttackVectors = newVocabulary("attack_vector", []string{
	"phishing_email", "spear_phishing", "whaling", "smishing", "vishing",
	"malicious_attachment", "malicious_link", "compromised_credentials",
	"stolen_credentials", "credential_stuffing", "brute_force",
	"password_spraying", "default_credentials", "vpn_exploitation",
	"rdp_exploitation", "ssh_exploitation", "citrix_exploitation",
	"vpn_appliance_vulnerability", "firewall_vulnerability",
	"unpatched_software", "zero_day", "public_facing_application",
	"web_application_vulnerability", "sql_injection",
	"cross_site_scripting", "file_upload_vulnerability",
	"api_vulnerability", "cloud_misconfiguration", "exposed_database",
	"exposed_storage_bucket", "exposed_rdp", "exposed_service",
	"supply_chain_software", "supply_chain_hardware",
	"managed_service_provider", "third_party_vendor",
	"software_update_hijack", "insider_malicious", "insider_negligent",
	"removable_media", "drive_by_compromise", "watering_hole_site",
	"malvertising", "search_engine_poisoning", "social_engineering_call",
	"pretexting", "baiting", "physical_access", "wireless_compromise",
	"dns_compromise", "email_account_compromise", "oauth_abuse",
	"mfa_fatigue", "mfa_bypass", "session_token_theft", "sim_swapping",
	"remote_access_tool_abuse", "legacy_protocol_abuse", "shadow_it",
	"unknown", "other",
}, map[string]string{
	"phishing":            "phishing_email",
	"email_phishing":      "phishing_email",
	"spearphishing":       "spear_phishing",
	"credentials":         "compromised_credentials",
	"leaked_credentials":  "stolen_credentials",
	"password_reuse":      "credential_stuffing",
	"weak_password":       "brute_force",
	"vpn":                 "vpn_exploitation",
	"rdp":                 "rdp_exploitation",
	"remote_desktop":      "rdp_exploitation",
	"citrix":              "citrix_exploitation",
	"unpatched_vulnerability": "unpatched_software",
	"missing_patch":       "unpatched_software",
	"0day":                "zero_day",
	"zero_day_vulnerability": "zero_day",
	"internet_facing_application": "public_facing_application",
	"web_app":             "web_application_vulnerability",
	"sqli":                "sql_injection",
	"xss":                 "cross_site_scripting",
	"misconfigured_cloud": "cloud_misconfiguration",
	"s3_bucket":           "exposed_storage_bucket",
	"open_database":       "exposed_database",
	"msp":                 "managed_service_provider",
	"vendor":              "third_party_vendor",
	"third_party":         "third_party_vendor",
	"supply_chain":        "supply_chain_software",
	"usb":                 "removable_media",
	"mfa_prompt_bombing":  "mfa_fatigue",
	"push_fatigue":        "mfa_fatigue",
	"token_theft":         "session_token_theft",
	"moveit":              "supply_chain_software",
})

var KillChainPhases = newVocabulary("attack_chain", []string{
	"reconnaissance", "weaponization", "delivery", "exploitation",
	"installation", "command_and_control", "actions_on_objectives",
}, map[string]string{
	"recon":       "reconnaissance",
	"c2":          "command_and_control",
	"c&c":         "command_and_control",
	"objectives":  "actions_on_objectives",
	"exfiltration": "actions_on_objectives",
	"impact":      "actions_on_objectives",
	"initial_access": "delivery",
	"persistence": "installation",
})

var MitreTactics = newVocabulary("mitre_tactic", []string{
	"reconnaissance", "resource_development", "initial_access",
	"execution", "persistence", "privilege_escalation",
	"defense_evasion", "credential_access", "discovery",
	"lateral_movement", "collection", "command_and_control",
	"exfiltration", "impact",
}, map[string]string{
	"c2": "command_and_control",
	"privilege escalation": "privilege_escalation",
})

var RansomwareFamilies = newVocabulary("ransomware_family", []string{
	"lockbit", "alphv_blackcat", "clop", "royal", "black_basta",
	"akira", "play", "medusa", "rhysida", "vice_society", "hive",
	"conti", "ryuk", "revil_sodinokibi", "maze", "doppelpaymer",
	"netwalker", "pysa", "avoslocker", "quantum", "ragnar_locker",
	"blackbyte", "karakurt", "snatch", "cuba", "daixin", "lorenz",
	"babuk", "hello_kitty", "nokoyawa", "trigona", "cactus",
	"hunters_international", "ransomhub", "qilin", "fog", "interlock",
	"other", "unknown",
}, map[string]string{
	"lockbit_3.0":  "lockbit",
	"lockbit3":     "lockbit",
	"lockbit_2.0":  "lockbit",
	"alphv":        "alphv_blackcat",
	"blackcat":     "alphv_blackcat",
	"cl0p":         "clop",
	"royal_ransomware": "royal",
	"blackbasta":   "black_basta",
	"vice society": "vice_society",
	"revil":        "revil_sodinokibi",
	"sodinokibi":   "revil_sodinokibi",
	"daixin_team":  "daixin",
	"hellokitty":   "hello_kitty",
	"agenda":       "qilin",
})

var Cryptocurrencies = newVocabulary("ransom_cryptocurrency", []string{
	"bitcoin", "monero", "ethereum", "litecoin", "zcash", "dash",
	"other", "unknown",
}, map[string]string{
	"btc": "bitcoin", "xmr": "monero", "eth": "ethereum", "ltc": "litecoin",
})

var DataCategories = newVocabulary("data_categories", []string{
	"student_records", "student_pii", "staff_pii", "faculty_pii",
	"alumni_records", "financial_records", "payment_card_data",
	"bank_account_data", "social_security_numbers",
	"government_id_numbers", "health_records", "disability_records",
	"academic_records", "grades_transcripts", "admissions_data",
	"financial_aid_data", "research_data", "intellectual_property",
	"credentials_passwords", "email_content", "donor_records",
	"hr_records", "immigration_status", "disciplinary_records",
	"biometric_data", "photos", "contact_information",
	"dates_of_birth", "insurance_information", "tax_records",
	"other", "unknown",
}, map[string]string{
	"pii":            "student_pii",
	"personal_information": "student_pii",
	"ssn":            "social_security_numbers",
	"ssns":           "social_security_numbers",
	"credit_card":    "payment_card_data",
	"credit_cards":   "payment_card_data",
	"medical_records": "health_records",
	"phi":            "health_records",
	"transcripts":    "grades_transcripts",
	"grades":         "grades_transcripts",
	"passwords":      "credentials_passwords",
	"login_credentials": "credentials_passwords",
	"w2":             "tax_records",
	"employee_records": "hr_records",
	"dob":            "dates_of_birth",
	"birth_dates":    "dates_of_birth",
	"emails":         "email_content",
})

var SystemsAffected = newVocabulary("systems_affected", []string{
	"email_system", "learning_management_system",
	"student_information_system", "enrollment_system",
	"financial_system", "payroll_system", "hr_system",
	"network_infrastructure", "wifi_network", "vpn_service", "website",
	"phone_system", "door_access_system", "security_cameras",
	"library_system", "research_computing", "hpc_cluster",
	"file_servers", "backup_systems", "active_directory",
	"identity_management", "cloud_services", "payment_system",
	"transportation_system", "food_service_system",
	"health_center_system", "emergency_notification_system",
	"printing_services", "laboratory_systems", "other", "unknown",
}, map[string]string{
	"email":    "email_system",
	"outlook":  "email_system",
	"lms":      "learning_management_system",
	"canvas":   "learning_management_system",
	"moodle":   "learning_management_system",
	"blackboard": "learning_management_system",
	"sis":      "student_information_system",
	"banner":   "student_information_system",
	"powerschool": "student_information_system",
	"network":  "network_infrastructure",
	"internet": "network_infrastructure",
	"wifi":     "wifi_network",
	"vpn":      "vpn_service",
	"phones":   "phone_system",
	"voip":     "phone_system",
	"servers":  "file_servers",
	"backups":  "backup_systems",
	"ad":       "active_directory",
	"sso":      "identity_management",
	"printers": "printing_services",
})

var OperationalImpacts = newVocabulary("operational_impacts", []string{
	"classes_cancelled", "classes_moved_online", "campus_closure",
	"exams_postponed", "admissions_delayed", "enrollment_disrupted",
	"payroll_delayed", "financial_aid_delayed", "email_outage",
	"network_outage", "website_outage", "phone_outage",
	"research_disrupted", "library_services_disrupted",
	"transcript_processing_delayed", "graduation_affected",
	"transportation_disrupted", "food_service_disrupted",
	"healthcare_services_disrupted", "remote_learning_disrupted",
	"staff_sent_home", "manual_operations", "grading_delayed",
	"registration_delayed", "other", "unknown",
}, map[string]string{
	"school_closed":     "campus_closure",
	"schools_closed":    "campus_closure",
	"closure":           "campus_closure",
	"classes_canceled":  "classes_cancelled",
	"cancelled_classes": "classes_cancelled",
	"remote_learning":   "classes_moved_online",
	"online_classes":    "classes_moved_online",
	"internet_outage":   "network_outage",
	"it_outage":         "network_outage",
	"systems_offline":   "network_outage",
	"exams_delayed":     "exams_postponed",
	"pen_and_paper":     "manual_operations",
	"paper_processes":   "manual_operations",
})

var Regulations = newVocabulary("applicable_regulations", []string{
	"ferpa", "hipaa", "gdpr", "ccpa_cpra", "pci_dss", "glba", "coppa",
	"pipeda", "uk_gdpr", "uk_dpa", "nis2", "shield_act",
	"state_breach_notification", "sox", "fisma", "other", "unknown",
}, map[string]string{
	"ccpa":            "ccpa_cpra",
	"cpra":            "ccpa_cpra",
	"pci":             "pci_dss",
	"data_protection_act": "uk_dpa",
	"ny_shield":       "shield_act",
	"state_law":       "state_breach_notification",
})

var RecoveryMethods = newVocabulary("recovery_method", []string{
	"restored_from_backups", "ransom_paid_decryptor",
	"decryptor_from_researchers", "rebuilt_systems",
	"partial_data_recovery", "no_recovery_needed", "data_not_recovered",
	"third_party_incident_response", "cyber_insurance_assisted",
	"unknown", "other",
}, map[string]string{
	"backups":           "restored_from_backups",
	"backup_restoration": "restored_from_backups",
	"paid_ransom":       "ransom_paid_decryptor",
	"free_decryptor":    "decryptor_from_researchers",
	"rebuilt":           "rebuilt_systems",
	"reimaged":          "rebuilt_systems",
	"incident_response_firm": "third_party_incident_response",
})

var SecurityImprovements = newVocabulary("security_improvements", []string{
	"mfa_deployment", "endpoint_detection_response",
	"security_awareness_training", "network_segmentation",
	"backup_improvements", "incident_response_plan",
	"soc_established", "siem_deployment", "vulnerability_management",
	"patch_management", "access_control_review",
	"password_policy_update", "email_filtering",
	"zero_trust_architecture", "cyber_insurance_purchased",
	"third_party_security_audit", "encryption_at_rest",
	"legacy_system_retirement", "vendor_risk_management",
	"security_staff_hired", "other", "unknown",
}, map[string]string{
	"mfa":                "mfa_deployment",
	"two_factor":         "mfa_deployment",
	"2fa":                "mfa_deployment",
	"edr":                "endpoint_detection_response",
	"training":           "security_awareness_training",
	"phishing_training":  "security_awareness_training",
	"segmentation":       "network_segmentation",
	"siem":               "siem_deployment",
	"security_audit":     "third_party_security_audit",
	"pen_test":           "third_party_security_audit",
	"zero_trust":         "zero_trust_architecture",
	"ciso_hired":         "security_staff_hired",
})

var TransparencyLevels = newVocabulary("transparency_level", []string{
	"full_disclosure", "partial_disclosure", "minimal_disclosure",
	"no_disclosure", "denied_then_confirmed", "unknown",
}, map[string]string{
	"transparent":  "full_disclosure",
	"full":         "full_disclosure",
	"partial":      "partial_disclosure",
	"limited":      "minimal_disclosure",
	"minimal":      "minimal_disclosure",
	"none":         "no_disclosure",
	"not_disclosed": "no_disclosure",
	"initially_denied": "denied_then_confirmed",
})

var ThreatActorCategories = newVocabulary("threat_actor_category", []string{
	"ransomware_gang", "nation_state", "hacktivist", "insider",
	"cybercriminal_group", "lone_actor", "script_kiddie",
	"unknown", "other",
}, map[string]string{
	"ransomware_group":    "ransomware_gang",
	"ransomware_operator": "ransomware_gang",
	"apt":                 "nation_state",
	"state_sponsored":     "nation_state",
	"hacktivists":         "hacktivist",
	"criminal_group":      "cybercriminal_group",
	"cybercriminals":      "cybercriminal_group",
	"student":             "lone_actor",
	"individual":          "lone_actor",
})

var ThreatActorMotivations = newVocabulary("threat_actor_motivation", []string{
	"financial", "espionage", "ideological", "revenge", "notoriety",
	"disruption", "data_theft", "unknown", "other",
}, map[string]string{
	"money":         "financial",
	"profit":        "financial",
	"extortion":     "financial",
	"political":     "ideological",
	"activism":      "ideological",
	"fame":          "notoriety",
	"intelligence":  "espionage",
	"intelligence_gathering": "espionage",
})

var SectorPatterns = newVocabulary("sector_targeting_pattern", []string{
	"education_targeted_campaign", "ransomware_opportunistic",
	"regional_campaign", "supply_chain_wide", "sector_agnostic",
	"repeat_victim", "unknown", "other",
}, map[string]string{
	"targeted":      "education_targeted_campaign",
	"opportunistic": "ransomware_opportunistic",
	"mass_exploitation": "supply_chain_wide",
	"indiscriminate": "sector_agnostic",
})

var VulnerabilityTypes = newVocabulary("vulnerability_type", []string{
	"remote_code_execution", "sql_injection", "authentication_bypass",
	"privilege_escalation", "path_traversal", "deserialization",
	"buffer_overflow", "cross_site_scripting", "ssrf",
	"information_disclosure", "denial_of_service",
	"improper_access_control", "other", "unknown",
}, map[string]string{
	"rce":  "remote_code_execution",
	"sqli": "sql_injection",
	"auth_bypass": "authentication_bypass",
	"xss":  "cross_site_scripting",
	"server_side_request_forgery": "ssrf",
	"directory_traversal": "path_traversal",
})

var HashTypes = newVocabulary("hash_type", []string{
	"md5", "sha1", "sha256", "sha512", "ssdeep", "imphash", "other",
}, map[string]string{
	"sha_1": "sha1", "sha_256": "sha256", "sha_512": "sha512",
})

// ByField maps response field names to their vocabulary for generic enum
// normalization.
var ByField = map[string]*Vocabulary{
	"institution_type":         InstitutionTypes,
	"incident_severity":        Severities,
	"incident_status":          IncidentStatuses,
	"incident_date_precision":  DatePrecisions,
	"event_type":               EventTypes,
	"attack_category":          AttackCategories,
	"attack_vector":            AttackVectors,
	"attack_chain":             KillChainPhases,
	"tactic":                   MitreTactics,
	"ransomware_family":        RansomwareFamilies,
	"ransom_cryptocurrency":    Cryptocurrencies,
	"data_categories":          DataCategories,
	"systems_affected":         SystemsAffected,
	"operational_impacts":      OperationalImpacts,
	"applicable_regulations":   Regulations,
	"recovery_method":          RecoveryMethods,
	"security_improvements":    SecurityImprovements,
	"transparency_level":       TransparencyLevels,
	"threat_actor_category":    ThreatActorCategories,
	"threat_actor_motivation":  ThreatActorMotivations,
	"sector_targeting_pattern": SectorPatterns,
	"vulnerability_type":       VulnerabilityTypes,
	"hash_type":                HashTypes,
}
