// Package domain models loss-incident signals and their reconciliation into
// confidence-scored clusters.
//
// # Sources
//
// Six independent feed families report physical loss incidents, none sharing
// an identifier with any other:
//
//	weather          NWS SPC storm report rows (flat CSV-style JSON)
//	fire_commercial  alarm-company dispatch records
//	fire_state       state fire marshal incident filings (GeoJSON geometry)
//	cad              computer-aided dispatch call summaries
//	news             geocoded press mentions
//	declaration      county-level disaster declarations
//
// Each raw payload is normalized into a Signal: canonical event type (Fire,
// Wind, Hail, Freeze), UTC occurrence time, optional location, and a severity
// rescaled to 0..1 on a per-source table. Source categories with no canonical
// mapping (floods, burglar alarms, medical calls) are dropped, not errored.
//
// # Reconciliation
//
// Signals describing the same real event are matched by proximity alone:
// same event type, within a spatial tolerance and a temporal window. The
// tolerance pair depends on the source class: fire-class feeds
// (fire_commercial, fire_state, cad) locate incidents to an address and get
// 0.5 mi / 2 h; weather-class feeds (weather, news, declaration) locate to an
// area and get 5 km / 24 h. When an incoming signal and an existing cluster
// disagree on class, the tighter pair applies.
//
// # Scoring
//
// A cluster's confidence is the sum of fixed per-category contributions over
// the distinct source types present (weather 40, fire_report 25, cad 20,
// news 15, declaration 20), capped at 100. Repeat signals from one category
// add nothing. The verification tier derives from the score (<60 probable,
// 60-85 reported, >85 confirmed) with one hard override: a cluster backed
// only by weather data can never be confirmed, whatever its score. Scores
// must never overstate certainty.
//
// # ID generation
//
// Signal IDs are deterministic SHA-256 hashes of the source dedup key
// (sourceType|sourceName|sourceEventId, or type|coords|time when the source
// has no native key). This makes re-ingestion idempotent: scheduled runs
// overlap and repeat, and a replayed provider record maps to the same stored
// Signal. See [NewSignalID].
package domain
