package enrich

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/eduthreat/sentinel/pkg/enrich/schema"
)

// wrapperKeys are envelope keys models sometimes wrap the whole record in.
var wrapperKeys = []string{"cti_extraction", "incident_analysis", "result", "data", "response"}

// fieldAliases maps the names models emit to the canonical schema names.
var fieldAliases = map[string]string{
	"mitre_attack":             "mitre_attack_techniques",
	"mitre_techniques":         "mitre_attack_techniques",
	"mitre_attack_mapping":     "mitre_attack_techniques",
	"incident_review":          "education_relevance",
	"education_review":         "education_relevance",
	"institution_identified":   "institution_name",
	"university_name":          "institution_name",
	"school_name":              "institution_name",
	"victim_name":              "institution_name",
	"summary":                  "enriched_summary",
	"incident_summary":         "enriched_summary",
	"severity":                 "incident_severity",
	"status":                   "incident_status",
	"ransom_demanded":          "was_ransom_demanded",
	"ransomware_group":         "ransomware_family",
	"ransomware_strain":        "ransomware_family",
	"threat_actor":             "threat_actor_name",
	"attacker_name":            "threat_actor_name",
	"attack_type":              "attack_category",
	"initial_access_vector":    "attack_vector",
	"indicators_of_compromise": "iocs",
	"records_affected":         "records_affected_exact",
	"estimated_cost":           "estimated_total_cost_usd",
	"total_cost_usd":           "estimated_total_cost_usd",
	"regulations":              "applicable_regulations",
	"timeline_events":          "timeline",
}

// deprecatedFields are dropped outright.
var deprecatedFields = map[string]bool{
	"confidence":            true,
	"extraction_confidence": true,
	"url_scores":            true,
}

// Field type classes drive the generic coercions. Enum fields are listed
// in schema.ByField and handled there.
var (
	boolFields = map[string]bool{
		"is_edu_cyber_incident": true, "threat_actor_claimed": true,
		"was_ransom_demanded": true, "ransom_paid": true,
		"ransom_negotiated": true, "decryptor_received": true,
		"decryptor_worked": true, "data_breached": true,
		"data_exfiltrated": true, "data_encrypted": true,
		"data_destroyed": true, "critical_systems_affected": true,
		"classes_cancelled": true, "cyber_insurance_claimed": true,
		"regulatory_notification_required": true, "regulator_notified": true,
		"lawsuits_filed": true, "public_disclosure": true,
	}

	numberFields = map[string]bool{
		"dwell_time_days": true, "ransom_deadline_days": true,
		"data_volume_gb": true, "outage_duration_hours": true,
		"downtime_days": true, "mttd_hours": true, "mttr_hours": true,
		"full_recovery_days": true, "disclosure_delay_days": true,
	}

	moneyFields = map[string]bool{
		"ransom_amount": true, "ransom_paid_amount": true,
		"estimated_total_cost_usd": true, "recovery_cost_usd": true,
		"regulatory_fines_usd": true, "cyber_insurance_payout": true,
	}

	intFields = map[string]bool{
		"records_affected_exact": true, "students_affected": true,
		"staff_affected": true, "faculty_affected": true,
		"alumni_affected": true, "total_individuals_affected": true,
	}

	dateFields = map[string]bool{
		"incident_date": true, "discovery_date": true, "publication_date": true,
	}

	stringListFields = map[string]bool{
		"threat_actor_aliases": true, "related_incidents": true,
		"recovery_phases": true,
	}

	scalarEnumFields = map[string]bool{
		"institution_type": true, "incident_severity": true,
		"incident_status": true, "incident_date_precision": true,
		"attack_category": true, "attack_vector": true,
		"ransomware_family": true, "ransom_cryptocurrency": true,
		"recovery_method": true, "transparency_level": true,
		"threat_actor_category": true, "threat_actor_motivation": true,
		"sector_targeting_pattern": true,
	}

	listEnumFields = map[string]bool{
		"attack_chain": true, "data_categories": true,
		"systems_affected": true, "operational_impacts": true,
		"applicable_regulations": true, "security_improvements": true,
	}

	scalarStringFields = map[string]bool{
		"enriched_summary": true, "institution_name": true,
		"country": true, "country_code": true, "region": true, "city": true,
		"initial_access_description": true, "threat_actor_name": true,
		"threat_actor_origin_country": true, "threat_actor_claim_url": true,
		"ransom_currency": true, "records_affected_estimate": true,
		"system_details": true, "attack_campaign_name": true,
	}
)

var mitreStringRe = regexp.MustCompile(`^\s*(T\d{4}(?:\.\d{3})?)\s*[:\-–]?\s*(.*)$`)

// knownFields is every canonical top-level field the schema accepts.
var knownFields = func() map[string]bool {
	props := schema.Build()["properties"].(map[string]any)
	m := make(map[string]bool, len(props))
	for name := range props {
		m[name] = true
	}
	return m
}()

// Normalize rewrites a permissive model response into strict schema form.
// The pass is deterministic and idempotent: running it on its own output
// changes nothing.
func Normalize(obj map[string]any) map[string]any {
	obj = unwrap(obj)
	obj = renameAliases(obj)
	coerceEducationRelevance(obj)

	out := make(map[string]any, len(obj))
	for key, value := range obj {
		if deprecatedFields[key] || !knownFields[key] {
			continue
		}
		normalized, keep := normalizeField(key, value)
		if keep {
			out[key] = normalized
		}
	}
	return out
}

func unwrap(obj map[string]any) map[string]any {
	if len(obj) != 1 {
		return obj
	}
	for _, key := range wrapperKeys {
		if inner, ok := obj[key].(map[string]any); ok {
			return inner
		}
	}
	return obj
}

func renameAliases(obj map[string]any) map[string]any {
	out := make(map[string]any, len(obj))
	for key, value := range obj {
		canonical := key
		if alias, ok := fieldAliases[key]; ok {
			// Canonical value, when also present, wins over the alias.
			if _, exists := obj[alias]; exists {
				continue
			}
			canonical = alias
		}
		out[canonical] = value
	}
	return out
}

// coerceEducationRelevance lifts flat top-level education fields into the
// nested object when the model skipped the nesting.
func coerceEducationRelevance(obj map[string]any) {
	if _, ok := obj["education_relevance"].(map[string]any); ok {
		return
	}
	related, hasRelated := obj["is_education_related"]
	reasoning, hasReasoning := obj["education_reasoning"]
	if !hasReasoning {
		reasoning, hasReasoning = obj["reasoning"]
	}
	if !hasRelated && !hasReasoning {
		return
	}
	nested := map[string]any{}
	if hasRelated {
		if b, ok := coerceBool(related); ok {
			nested["is_education_related"] = b
		}
	}
	if hasReasoning {
		if s, ok := coerceString(reasoning); ok {
			nested["reasoning"] = s
		}
	}
	if len(nested) > 0 {
		obj["education_relevance"] = nested
	}
	delete(obj, "is_education_related")
	delete(obj, "education_reasoning")
	delete(obj, "reasoning")
}

// normalizeField returns the strict value for one field and whether it
// should be kept at all.
func normalizeField(key string, value any) (any, bool) {
	if value == nil {
		return nil, false
	}

	switch {
	case boolFields[key]:
		if b, ok := coerceBool(value); ok {
			return b, true
		}
		return nil, false

	case moneyFields[key]:
		if f, ok := coerceMoney(value); ok {
			return f, true
		}
		return nil, false

	case numberFields[key]:
		if f, ok := coerceFloat(value); ok {
			return f, true
		}
		return nil, false

	case intFields[key]:
		if f, ok := coerceFloat(value); ok {
			return int64(f), true
		}
		return nil, false

	case dateFields[key]:
		if s, ok := coerceString(value); ok {
			if iso, ok := NormalizeISODate(s); ok {
				return iso, true
			}
		}
		return nil, false

	case scalarEnumFields[key]:
		s, ok := coerceString(value)
		if !ok {
			return nil, false
		}
		return schema.ByField[key].NormalizeScalar(s), true

	case listEnumFields[key]:
		items := coerceStringList(value)
		normalized := schema.ByField[key].NormalizeList(items)
		if len(normalized) == 0 {
			return nil, false
		}
		return normalized, true

	case stringListFields[key]:
		items := coerceStringList(value)
		if len(items) == 0 {
			return nil, false
		}
		return items, true

	case scalarStringFields[key]:
		if s, ok := coerceString(value); ok {
			if key == "country_code" {
				s = strings.ToUpper(s)
				if len(s) != 2 {
					return nil, false
				}
			}
			return s, true
		}
		return nil, false

	case key == "timeline":
		return normalizeTimeline(value)
	case key == "mitre_attack_techniques":
		return normalizeMitre(value)
	case key == "vulnerabilities":
		return normalizeVulnerabilities(value)
	case key == "iocs":
		return normalizeIOCs(value)
	case key == "education_relevance":
		return normalizeEducationRelevance(value)
	}

	return value, true
}

func normalizeTimeline(value any) (any, bool) {
	list, ok := value.([]any)
	if !ok {
		return nil, false
	}
	var out []any
	for _, item := range list {
		event, ok := item.(map[string]any)
		if !ok {
			if s, ok := coerceString(item); ok {
				out = append(out, map[string]any{"event_description": s})
			}
			continue
		}
		norm := map[string]any{}
		if s, ok := coerceString(event["event_description"]); ok {
			norm["event_description"] = s
		} else if s, ok := coerceString(event["description"]); ok {
			norm["event_description"] = s
		} else {
			continue
		}
		if s, ok := coerceString(event["date"]); ok {
			if iso, ok := NormalizeISODate(s); ok {
				norm["date"] = iso
			}
		}
		if s, ok := coerceString(event["date_precision"]); ok {
			norm["date_precision"] = schema.DatePrecisions.NormalizeScalar(s)
		}
		if s, ok := coerceString(event["event_type"]); ok {
			norm["event_type"] = schema.EventTypes.NormalizeScalar(s)
		}
		if s, ok := coerceString(event["actor_attribution"]); ok {
			norm["actor_attribution"] = s
		}
		if items := coerceStringList(event["indicators"]); len(items) > 0 {
			norm["indicators"] = items
		}
		out = append(out, norm)
	}
	if len(out) == 0 {
		return nil, false
	}
	return out, true
}

// normalizeMitre accepts both structured technique objects and bare
// strings like "T1078: Valid Accounts".
func normalizeMitre(value any) (any, bool) {
	list, ok := value.([]any)
	if !ok {
		if s, isStr := value.(string); isStr {
			list = []any{s}
		} else {
			return nil, false
		}
	}
	var out []any
	for _, item := range list {
		switch v := item.(type) {
		case string:
			if m := mitreStringRe.FindStringSubmatch(v); m != nil {
				tech := map[string]any{"technique_id": m[1]}
				if name := strings.TrimSpace(m[2]); name != "" {
					tech["technique_name"] = name
				}
				out = append(out, tech)
			}
		case map[string]any:
			id, ok := coerceString(v["technique_id"])
			if !ok {
				if s, sok := coerceString(v["id"]); sok {
					id = s
					ok = true
				}
			}
			if !ok {
				continue
			}
			m := mitreStringRe.FindStringSubmatch(id)
			if m == nil {
				continue
			}
			tech := map[string]any{"technique_id": m[1]}
			if s, ok := coerceString(v["technique_name"]); ok {
				tech["technique_name"] = s
			} else if name := strings.TrimSpace(m[2]); name != "" {
				tech["technique_name"] = name
			}
			if s, ok := coerceString(v["tactic"]); ok {
				if tactic, ok := schema.MitreTactics.Match(s); ok {
					tech["tactic"] = tactic
				}
			}
			if s, ok := coerceString(v["description"]); ok {
				tech["description"] = s
			}
			if items := coerceStringList(v["sub_techniques"]); len(items) > 0 {
				tech["sub_techniques"] = items
			}
			out = append(out, tech)
		}
	}
	if len(out) == 0 {
		return nil, false
	}
	return out, true
}

var cveRe = regexp.MustCompile(`^CVE-\d{4}-\d+$`)

func normalizeVulnerabilities(value any) (any, bool) {
	list, ok := value.([]any)
	if !ok {
		return nil, false
	}
	var out []any
	for _, item := range list {
		vuln, ok := item.(map[string]any)
		if !ok {
			if s, sok := coerceString(item); sok && cveRe.MatchString(strings.ToUpper(s)) {
				out = append(out, map[string]any{"cve_id": strings.ToUpper(s)})
			}
			continue
		}
		norm := map[string]any{}
		if s, ok := coerceString(vuln["cve_id"]); ok {
			s = strings.ToUpper(strings.TrimSpace(s))
			if cveRe.MatchString(s) {
				norm["cve_id"] = s
			}
		}
		if s, ok := coerceString(vuln["vulnerability_type"]); ok {
			norm["vulnerability_type"] = schema.VulnerabilityTypes.NormalizeScalar(s)
		}
		if s, ok := coerceString(vuln["affected_product"]); ok {
			norm["affected_product"] = s
		}
		if f, ok := coerceFloat(vuln["cvss_score"]); ok && f >= 0 && f <= 10 {
			norm["cvss_score"] = f
		}
		if len(norm) > 0 {
			out = append(out, norm)
		}
	}
	if len(out) == 0 {
		return nil, false
	}
	return out, true
}

func normalizeIOCs(value any) (any, bool) {
	obj, ok := value.(map[string]any)
	if !ok {
		return nil, false
	}
	norm := map[string]any{}
	for _, key := range []string{
		"ip_addresses", "domains", "urls", "email_addresses",
		"cryptocurrency_wallets", "file_names", "registry_keys",
	} {
		if items := coerceStringList(obj[key]); len(items) > 0 {
			norm[key] = items
		}
	}
	if hashes, ok := obj["file_hashes"].([]any); ok {
		var out []any
		for _, item := range hashes {
			switch v := item.(type) {
			case string:
				out = append(out, map[string]any{"hash_value": v, "hash_type": guessHashType(v)})
			case map[string]any:
				hv, ok := coerceString(v["hash_value"])
				if !ok {
					continue
				}
				h := map[string]any{"hash_value": hv}
				if s, ok := coerceString(v["hash_type"]); ok {
					h["hash_type"] = schema.HashTypes.NormalizeScalar(s)
				} else {
					h["hash_type"] = guessHashType(hv)
				}
				out = append(out, h)
			}
		}
		if len(out) > 0 {
			norm["file_hashes"] = out
		}
	}
	if len(norm) == 0 {
		return nil, false
	}
	return norm, true
}

func guessHashType(value string) string {
	switch len(strings.TrimSpace(value)) {
	case 32:
		return "md5"
	case 40:
		return "sha1"
	case 64:
		return "sha256"
	case 128:
		return "sha512"
	default:
		return "other"
	}
}

func normalizeEducationRelevance(value any) (any, bool) {
	obj, ok := value.(map[string]any)
	if !ok {
		return nil, false
	}
	norm := map[string]any{}
	if b, ok := coerceBool(obj["is_education_related"]); ok {
		norm["is_education_related"] = b
	}
	if s, ok := coerceString(obj["reasoning"]); ok {
		norm["reasoning"] = s
	}
	if len(norm) == 0 {
		return nil, false
	}
	return norm, true
}

// --- scalar coercions ---

var nullStrings = map[string]bool{
	"unknown": true, "null": true, "none": true, "n/a": true, "na": true, "": true,
}

// coerceString unwraps single-element lists and drops null-like strings.
func coerceString(v any) (string, bool) {
	switch val := v.(type) {
	case string:
		s := strings.TrimSpace(val)
		if nullStrings[strings.ToLower(s)] {
			return "", false
		}
		return s, true
	case []any:
		if len(val) == 0 {
			return "", false
		}
		return coerceString(val[0])
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64), true
	case bool:
		return strconv.FormatBool(val), true
	}
	return "", false
}

// coerceBool maps yes/no/true/false strings; "unknown" yields no value
// rather than false.
func coerceBool(v any) (bool, bool) {
	switch val := v.(type) {
	case bool:
		return val, true
	case string:
		switch strings.ToLower(strings.TrimSpace(val)) {
		case "true", "yes", "y", "confirmed", "1":
			return true, true
		case "false", "no", "n", "denied", "0":
			return false, true
		}
		return false, false
	case float64:
		if val == 1 {
			return true, true
		}
		if val == 0 {
			return false, true
		}
	case []any:
		if len(val) > 0 {
			return coerceBool(val[0])
		}
	}
	return false, false
}

func coerceFloat(v any) (float64, bool) {
	switch val := v.(type) {
	case float64:
		return val, true
	case int:
		return float64(val), true
	case int64:
		return float64(val), true
	case json.Number:
		f, err := val.Float64()
		return f, err == nil
	case string:
		s := strings.TrimSpace(val)
		if nullStrings[strings.ToLower(s)] {
			return 0, false
		}
		s = strings.ReplaceAll(s, ",", "")
		f, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return coerceMoney(val)
		}
		return f, true
	case []any:
		if len(val) > 0 {
			return coerceFloat(val[0])
		}
	}
	return 0, false
}

var moneyRe = regexp.MustCompile(`(?i)^\s*(?:us?\$|\$|usd\s*)?\s*([\d,]+(?:\.\d+)?)\s*(million|mil|m|billion|bn|b|thousand|k)?\s*(?:usd|dollars)?\s*$`)

// coerceMoney parses amounts like "$4.75 million" into plain USD numbers.
func coerceMoney(v any) (float64, bool) {
	if f, ok := v.(float64); ok {
		return f, true
	}
	s, ok := v.(string)
	if !ok {
		if list, isList := v.([]any); isList && len(list) > 0 {
			return coerceMoney(list[0])
		}
		return 0, false
	}
	m := moneyRe.FindStringSubmatch(s)
	if m == nil {
		return 0, false
	}
	f, err := strconv.ParseFloat(strings.ReplaceAll(m[1], ",", ""), 64)
	if err != nil {
		return 0, false
	}
	switch strings.ToLower(m[2]) {
	case "million", "mil", "m":
		f *= 1e6
	case "billion", "bn", "b":
		f *= 1e9
	case "thousand", "k":
		f *= 1e3
	}
	return f, true
}

func coerceStringList(v any) []string {
	var out []string
	switch val := v.(type) {
	case []any:
		for _, item := range val {
			if s, ok := coerceString(item); ok {
				out = append(out, s)
			}
		}
	case []string:
		for _, item := range val {
			if s, ok := coerceString(item); ok {
				out = append(out, s)
			}
		}
	case string:
		// A comma or semicolon separated string where a list was expected.
		for _, part := range strings.FieldsFunc(val, func(r rune) bool { return r == ',' || r == ';' }) {
			if s, ok := coerceString(part); ok {
				out = append(out, s)
			}
		}
	}
	return out
}

var isoDateLayouts = []string{
	"2006-01-02", "2006/01/02", "01/02/2006", "January 2, 2006",
	"Jan 2, 2006", "2 January 2006", "2006-01-02T15:04:05Z07:00",
	"2006-01-02 15:04:05",
}

// NormalizeISODate parses common date renderings into YYYY-MM-DD.
func NormalizeISODate(s string) (string, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return "", false
	}
	for _, layout := range isoDateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.Format("2006-01-02"), true
		}
	}
	// Month-only dates pin to the first of the month.
	if t, err := time.Parse("2006-01", s); err == nil {
		return t.Format("2006-01-02"), true
	}
	return "", false
}

// Parse turns sanitized model output into a validated record. Validation
// failure triggers one renormalization retry before giving up.
func Parse(sanitized string) (*Record, map[string]any, error) {
	var raw map[string]any
	if err := json.Unmarshal([]byte(sanitized), &raw); err != nil {
		return nil, nil, fmt.Errorf("parse model response: %w", err)
	}

	normalized := Normalize(raw)
	if err := schema.Validate(normalized); err != nil {
		normalized = Normalize(normalized)
		if err2 := schema.Validate(normalized); err2 != nil {
			return nil, nil, fmt.Errorf("response failed validation after renormalization: %w", err2)
		}
	}

	rec, err := recordFromObject(normalized)
	if err != nil {
		return nil, nil, err
	}
	return rec, normalized, nil
}
