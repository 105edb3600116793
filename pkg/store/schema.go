package store

// schema is applied on every open; all statements are idempotent.
const schema = `
CREATE TABLE IF NOT EXISTS incidents (
	incident_id            TEXT PRIMARY KEY,
	source                 TEXT NOT NULL,
	source_event_id        TEXT NOT NULL,
	university_name        TEXT NOT NULL,
	victim_raw_name        TEXT,
	institution_type       TEXT,
	country                TEXT,
	region                 TEXT,
	city                   TEXT,
	incident_date          TEXT,
	date_precision         TEXT NOT NULL DEFAULT 'unknown',
	source_published_date  TEXT,
	ingested_at            TEXT NOT NULL,
	title                  TEXT,
	subtitle               TEXT,
	primary_url            TEXT,
	all_urls               TEXT NOT NULL DEFAULT '',
	leak_site_url          TEXT,
	source_detail_url      TEXT,
	screenshot_url         TEXT,
	attack_type_hint       TEXT,
	status                 TEXT NOT NULL DEFAULT 'suspected',
	source_confidence      TEXT NOT NULL DEFAULT 'medium',
	notes                  TEXT,
	llm_enriched           INTEGER NOT NULL DEFAULT 0,
	llm_enriched_at        TEXT,
	llm_summary            TEXT,
	llm_timeline           TEXT,
	llm_mitre_attack       TEXT,
	llm_attack_dynamics    TEXT,
	last_updated_at        TEXT
);

CREATE INDEX IF NOT EXISTS idx_incidents_enriched ON incidents(llm_enriched, ingested_at);
CREATE INDEX IF NOT EXISTS idx_incidents_source ON incidents(source);

CREATE TABLE IF NOT EXISTS incident_sources (
	incident_id  TEXT NOT NULL REFERENCES incidents(incident_id) ON DELETE CASCADE,
	source       TEXT NOT NULL,
	observed_at  TEXT NOT NULL,
	PRIMARY KEY (incident_id, source)
);

CREATE TABLE IF NOT EXISTS source_events (
	source           TEXT NOT NULL,
	source_event_id  TEXT NOT NULL,
	incident_id      TEXT NOT NULL,
	registered_at    TEXT NOT NULL,
	PRIMARY KEY (source, source_event_id)
);

CREATE TABLE IF NOT EXISTS source_state (
	source        TEXT PRIMARY KEY,
	last_pubdate  TEXT
);

CREATE TABLE IF NOT EXISTS articles (
	incident_id       TEXT NOT NULL REFERENCES incidents(incident_id) ON DELETE CASCADE,
	url               TEXT NOT NULL,
	title             TEXT,
	author            TEXT,
	publish_date      TEXT,
	content           TEXT,
	fetch_successful  INTEGER NOT NULL DEFAULT 0,
	error_message     TEXT,
	content_length    INTEGER NOT NULL DEFAULT 0,
	is_primary        INTEGER NOT NULL DEFAULT 0,
	PRIMARY KEY (incident_id, url)
);

CREATE INDEX IF NOT EXISTS idx_articles_incident ON articles(incident_id);

CREATE TABLE IF NOT EXISTS incident_enrichments (
	incident_id         TEXT PRIMARY KEY REFERENCES incidents(incident_id) ON DELETE CASCADE,
	enrichment_data     TEXT NOT NULL,
	raw_response        TEXT,
	enrichment_version  TEXT NOT NULL,
	content_hash        TEXT,
	created_at          TEXT NOT NULL,
	updated_at          TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS incident_enrichments_flat (
	incident_id                      TEXT PRIMARY KEY REFERENCES incidents(incident_id) ON DELETE CASCADE,
	is_edu_cyber_incident            INTEGER NOT NULL DEFAULT 0,
	education_reasoning              TEXT,
	institution_name                 TEXT,
	institution_type                 TEXT,
	country                          TEXT,
	country_code                     TEXT,
	region                           TEXT,
	city                             TEXT,
	incident_severity                TEXT,
	incident_status                  TEXT,
	incident_date                    TEXT,
	incident_date_precision          TEXT,
	discovery_date                   TEXT,
	publication_date                 TEXT,
	dwell_time_days                  REAL,
	attack_category                  TEXT,
	attack_vector                    TEXT,
	initial_access_description       TEXT,
	attack_chain_json                TEXT,
	vulnerabilities_json             TEXT,
	vulnerabilities_count            INTEGER NOT NULL DEFAULT 0,
	cve_ids                          TEXT,
	mitre_techniques_json            TEXT,
	mitre_techniques_count           INTEGER NOT NULL DEFAULT 0,
	threat_actor_claimed             INTEGER,
	threat_actor_name                TEXT,
	threat_actor_aliases             TEXT,
	threat_actor_category            TEXT,
	threat_actor_motivation          TEXT,
	threat_actor_origin_country      TEXT,
	threat_actor_claim_url           TEXT,
	ransomware_family                TEXT,
	was_ransom_demanded              INTEGER,
	ransom_amount                    REAL,
	ransom_currency                  TEXT,
	ransom_cryptocurrency            TEXT,
	ransom_paid                      INTEGER,
	ransom_paid_amount               REAL,
	ransom_negotiated                INTEGER,
	ransom_deadline_days             REAL,
	decryptor_received               INTEGER,
	decryptor_worked                 INTEGER,
	iocs_json                        TEXT,
	ioc_count                        INTEGER NOT NULL DEFAULT 0,
	data_breached                    INTEGER,
	data_exfiltrated                 INTEGER,
	data_encrypted                   INTEGER,
	data_destroyed                   INTEGER,
	data_categories                  TEXT,
	records_affected_exact           INTEGER,
	records_affected_estimate        TEXT,
	data_volume_gb                   REAL,
	systems_affected                 TEXT,
	systems_affected_count           INTEGER NOT NULL DEFAULT 0,
	critical_systems_affected        INTEGER,
	system_details                   TEXT,
	students_affected                INTEGER,
	staff_affected                   INTEGER,
	faculty_affected                 INTEGER,
	alumni_affected                  INTEGER,
	total_individuals_affected       INTEGER,
	outage_duration_hours            REAL,
	downtime_days                    REAL,
	operational_impacts              TEXT,
	classes_cancelled                INTEGER,
	estimated_total_cost_usd         REAL,
	recovery_cost_usd                REAL,
	regulatory_fines_usd             REAL,
	cyber_insurance_claimed          INTEGER,
	cyber_insurance_payout           REAL,
	applicable_regulations           TEXT,
	regulatory_notification_required INTEGER,
	regulator_notified               INTEGER,
	lawsuits_filed                   INTEGER,
	recovery_method                  TEXT,
	mttd_hours                       REAL,
	mttr_hours                       REAL,
	full_recovery_days               REAL,
	security_improvements            TEXT,
	recovery_phases_json             TEXT,
	public_disclosure                INTEGER,
	disclosure_delay_days            REAL,
	transparency_level               TEXT,
	attack_campaign_name             TEXT,
	related_incidents                TEXT,
	sector_targeting_pattern         TEXT,
	timeline_json                    TEXT,
	timeline_events_count            INTEGER NOT NULL DEFAULT 0,
	enriched_summary                 TEXT,
	created_at                       TEXT NOT NULL,
	updated_at                       TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_flat_attack_category ON incident_enrichments_flat(attack_category);
CREATE INDEX IF NOT EXISTS idx_flat_country ON incident_enrichments_flat(country);
CREATE INDEX IF NOT EXISTS idx_flat_ransom ON incident_enrichments_flat(was_ransom_demanded);
CREATE INDEX IF NOT EXISTS idx_flat_created ON incident_enrichments_flat(created_at);
`
