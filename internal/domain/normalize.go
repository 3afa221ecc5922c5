package domain

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Normalize maps one raw provider payload into a canonical Signal. The
// second return is false when the record's category has no canonical
// mapping (floods, burglar alarms, medical calls): those are dropped
// silently, not errored. A ValidationError means the record is malformed:
// undecodable payload, unmappable event type where one was expected, or an
// unparseable occurrence time.
//
// Normalization is a pure transformation; reportedAt is the intake
// timestamp supplied by the caller.
func Normalize(st SourceType, sourceName string, payload []byte, reportedAt time.Time) (Signal, bool, error) {
	var (
		sig Signal
		ok  bool
		err error
	)
	switch st {
	case SourceWeather:
		sig, ok, err = normalizeWeather(payload, reportedAt)
	case SourceFireCommercial:
		sig, ok, err = normalizeCommercialFire(payload)
	case SourceFireState:
		sig, ok, err = normalizeStateFire(payload)
	case SourceCAD:
		sig, ok, err = normalizeCAD(payload)
	case SourceNews:
		sig, ok, err = normalizeNews(payload)
	case SourceDeclaration:
		sig, ok, err = normalizeDeclaration(payload)
	default:
		return Signal{}, false, Validationf("unknown source type %q", st)
	}
	if err != nil || !ok {
		return Signal{}, false, err
	}

	sig.SourceType = st
	sig.SourceName = sourceName
	sig.ReportedAt = reportedAt
	sig.SourceConfidence = SourceConfidenceFor(st)
	sig.RawPayload = payload
	sig.ID = NewSignalID(st, sourceName, sig.SourceEventID, sig.EventType, sig.Location, sig.OccurredAt)
	return sig, true, nil
}

// NewSignalID produces a deterministic ID from the signal's dedup key.
// When the source has a native event ID the key is sourceType|sourceName|
// sourceEventId, so re-ingesting the same provider record maps to the same
// stored signal. Sources without native keys fall back to the observation
// itself: type, coordinates, occurrence time.
func NewSignalID(st SourceType, sourceName, sourceEventID string, et EventType, loc Location, occurredAt time.Time) string {
	var input string
	if sourceEventID != "" {
		input = fmt.Sprintf("%s|%s|%s", st, sourceName, sourceEventID)
	} else {
		lat, lon := 0.0, 0.0
		if loc.Geo != nil {
			lat, lon = loc.Geo.Lat, loc.Geo.Lon
		}
		input = fmt.Sprintf("%s|%s|%s|%.4f|%.4f|%d", st, sourceName, et, lat, lon, occurredAt.Unix())
	}
	hash := sha256.Sum256([]byte(input))
	return string(st) + "-" + hex.EncodeToString(hash[:8])
}

// --- weather (NWS SPC storm report rows) ---

// rawWeatherRecord is the flat CSV-style JSON published by the weather
// collector. Each report type has its own magnitude column; the rest of the
// columns are shared.
type rawWeatherRecord struct {
	Time     string `json:"Time"`    // HHMM, 24-hour UTC
	Size     string `json:"Size"`    // hail magnitude, inches (sometimes hundredths)
	FScale   string `json:"F_Scale"` // tornado magnitude, EF scale
	Speed    string `json:"Speed"`   // wind magnitude, mph
	Location string `json:"Location"`
	County   string `json:"County"`
	State    string `json:"State"`
	Lat      string `json:"Lat"`
	Lon      string `json:"Lon"`
	Comments string `json:"Comments"`
	Type     string `json:"Type"` // "hail", "wind", "tornado", "freeze", ...
}

func normalizeWeather(payload []byte, reportedAt time.Time) (Signal, bool, error) {
	var rec rawWeatherRecord
	if err := json.Unmarshal(payload, &rec); err != nil {
		return Signal{}, false, &ValidationError{Err: fmt.Errorf("decode weather record: %w", err)}
	}

	et, ok := weatherEventType(rec.Type)
	if !ok {
		return Signal{}, false, nil // flood and friends: dropped, not errored
	}

	occurredAt, err := parseHHMM(reportedAt, rec.Time)
	if err != nil {
		return Signal{}, false, &ValidationError{Err: err}
	}

	loc := Location{County: rec.County, State: rec.State}
	lat := parseFloatOrZero(rec.Lat)
	lon := parseFloatOrZero(rec.Lon)
	if lat != 0 || lon != 0 {
		loc.Geo = &Geo{Lat: lat, Lon: lon}
	}

	return Signal{
		EventType:   et,
		OccurredAt:  occurredAt,
		Location:    loc,
		SeverityRaw: weatherSeverity(rec.Type, rec.Size, rec.FScale, rec.Speed),
	}, true, nil
}

func weatherEventType(category string) (EventType, bool) {
	switch strings.ToLower(strings.TrimSpace(category)) {
	case "hail":
		return EventHail, true
	case "wind", "tornado", "tstm wind":
		return EventWind, true
	case "freeze", "frost", "ice storm":
		return EventFreeze, true
	default:
		return "", false
	}
}

// weatherSeverity rescales the category-specific magnitude column to 0..1:
// hail inches over a 4" ceiling, wind mph over a 130 mph ceiling, tornado EF
// over EF5. Freeze rows carry no magnitude. Missing or "UNK" magnitudes take
// the conservative 0.5 default rather than failing.
func weatherSeverity(category, size, fScale, speed string) float64 {
	var raw string
	switch strings.ToLower(strings.TrimSpace(category)) {
	case "hail":
		raw = size
	case "tornado":
		raw = fScale
	case "wind", "tstm wind":
		raw = speed
	default:
		return defaultSeverity
	}

	raw = strings.TrimSpace(raw)
	if raw == "" || strings.EqualFold(raw, "UNK") {
		return defaultSeverity
	}
	raw = strings.TrimPrefix(raw, "EF")
	raw = strings.TrimPrefix(raw, "F")
	mag, err := strconv.ParseFloat(raw, 64)
	if err != nil || mag <= 0 {
		return defaultSeverity
	}

	switch strings.ToLower(strings.TrimSpace(category)) {
	case "hail":
		// Legacy rows encode hundredths of inches: 175 = 1.75". Values
		// >= 10 must be that encoding; US record hail is ~8 inches.
		if mag >= 10 {
			mag /= 100
		}
		return clamp01(mag / 4)
	case "tornado":
		return clamp01(mag / 5)
	default:
		return clamp01(mag / 130)
	}
}

// --- fire_commercial (alarm-company dispatch records) ---

type rawCommercialAlarm struct {
	AlarmID     string  `json:"alarm_id"`
	Category    string  `json:"category"` // "fire", "smoke", "water_flow", "burglary", ...
	AlarmLevel  int     `json:"alarm_level"`
	TriggeredAt string  `json:"triggered_at"` // RFC 3339
	Address     string  `json:"address"`
	City        string  `json:"city"`
	State       string  `json:"state"`
	Zip         string  `json:"zip"`
	Lat         float64 `json:"lat"`
	Lng         float64 `json:"lng"`
}

func normalizeCommercialFire(payload []byte) (Signal, bool, error) {
	var rec rawCommercialAlarm
	if err := json.Unmarshal(payload, &rec); err != nil {
		return Signal{}, false, &ValidationError{Err: fmt.Errorf("decode commercial alarm: %w", err)}
	}

	switch strings.ToLower(rec.Category) {
	case "fire", "smoke":
	default:
		return Signal{}, false, nil // water flow, burglary, supervisory: not loss events we track
	}

	occurredAt, err := parseRFC3339("triggered_at", rec.TriggeredAt)
	if err != nil {
		return Signal{}, false, err
	}

	loc := Location{Address: rec.Address, Zip: rec.Zip, State: rec.State}
	if rec.Lat != 0 || rec.Lng != 0 {
		loc.Geo = &Geo{Lat: rec.Lat, Lon: rec.Lng}
	}

	return Signal{
		SourceEventID: rec.AlarmID,
		EventType:     EventFire,
		OccurredAt:    occurredAt,
		Location:      loc,
		SeverityRaw:   alarmLevelSeverity(rec.AlarmLevel),
	}, true, nil
}

// alarmLevelSeverity maps a 1-5 alarm level onto 0..1.
func alarmLevelSeverity(level int) float64 {
	if level <= 0 || level > 5 {
		return defaultSeverity
	}
	return float64(level) / 5
}

// --- fire_state (fire marshal incident filings) ---

type rawStateIncident struct {
	IncidentNumber string       `json:"incident_number"`
	IncidentType   string       `json:"incident_type"` // "structure_fire", "wildland_fire", ...
	StartedAt      string       `json:"started_at"`    // RFC 3339
	County         string       `json:"county"`
	State          string       `json:"state"`
	AcresBurned    float64      `json:"acres_burned"`
	Geometry       *rawGeometry `json:"geometry"` // GeoJSON Point/Polygon/MultiPolygon
}

type rawGeometry struct {
	Type        string          `json:"type"`
	Coordinates json.RawMessage `json:"coordinates"`
}

func normalizeStateFire(payload []byte) (Signal, bool, error) {
	var rec rawStateIncident
	if err := json.Unmarshal(payload, &rec); err != nil {
		return Signal{}, false, &ValidationError{Err: fmt.Errorf("decode state incident: %w", err)}
	}

	switch strings.ToLower(rec.IncidentType) {
	case "structure_fire", "wildland_fire", "vehicle_fire":
	default:
		return Signal{}, false, nil // hazmat, rescue, false alarms
	}

	occurredAt, err := parseRFC3339("started_at", rec.StartedAt)
	if err != nil {
		return Signal{}, false, err
	}

	loc := Location{County: rec.County, State: rec.State}
	if rec.Geometry != nil {
		if g, ok := geometryCentroid(*rec.Geometry); ok {
			loc.Geo = &g
		}
	}

	return Signal{
		SourceEventID: rec.IncidentNumber,
		EventType:     EventFire,
		OccurredAt:    occurredAt,
		Location:      loc,
		SeverityRaw:   acresSeverity(rec.AcresBurned),
	}, true, nil
}

// acresSeverity buckets burned acreage onto 0..1. Structure fires file with
// zero acreage and take the default.
func acresSeverity(acres float64) float64 {
	switch {
	case acres <= 0:
		return defaultSeverity
	case acres < 1:
		return 0.3
	case acres < 10:
		return 0.5
	case acres < 100:
		return 0.7
	case acres < 1000:
		return 0.85
	default:
		return 1.0
	}
}

// geometryCentroid reduces GeoJSON Point/Polygon/MultiPolygon coordinates
// to a single representative point: the arithmetic mean of the outer-ring
// vertices. Marshal filings draw perimeters; the matcher only needs one
// coordinate pair.
func geometryCentroid(g rawGeometry) (Geo, bool) {
	switch strings.ToLower(g.Type) {
	case "point":
		var pt [2]float64 // [lon, lat] per GeoJSON
		if err := json.Unmarshal(g.Coordinates, &pt); err != nil {
			return Geo{}, false
		}
		return Geo{Lat: pt[1], Lon: pt[0]}, true
	case "polygon":
		var rings [][][2]float64
		if err := json.Unmarshal(g.Coordinates, &rings); err != nil || len(rings) == 0 {
			return Geo{}, false
		}
		return ringCentroid(rings[0])
	case "multipolygon":
		var polys [][][][2]float64
		if err := json.Unmarshal(g.Coordinates, &polys); err != nil {
			return Geo{}, false
		}
		var all [][2]float64
		for _, rings := range polys {
			if len(rings) > 0 {
				all = append(all, rings[0]...)
			}
		}
		return ringCentroid(all)
	default:
		return Geo{}, false
	}
}

func ringCentroid(ring [][2]float64) (Geo, bool) {
	if len(ring) == 0 {
		return Geo{}, false
	}
	// Drop the closing vertex GeoJSON repeats.
	if len(ring) > 1 && ring[0] == ring[len(ring)-1] {
		ring = ring[:len(ring)-1]
	}
	var lat, lon float64
	for _, v := range ring {
		lon += v[0]
		lat += v[1]
	}
	n := float64(len(ring))
	return Geo{Lat: lat / n, Lon: lon / n}, true
}

// --- cad (computer-aided dispatch call summaries) ---

type rawCADCall struct {
	CallID     string  `json:"call_id"`
	NatureCode string  `json:"nature_code"`
	Priority   int     `json:"priority"` // 1 (highest) through 5
	ReceivedAt string  `json:"received_at"`
	Address    string  `json:"address"`
	City       string  `json:"city"`
	State      string  `json:"state"`
	Lat        float64 `json:"lat"`
	Lng        float64 `json:"lng"`
}

// cadNatureEvents maps dispatch nature codes to canonical event types.
// Anything absent (medical aid, traffic, alarms-no-fire) is dropped.
var cadNatureEvents = map[string]EventType{
	"STRUCT_FIRE": EventFire,
	"VEH_FIRE":    EventFire,
	"BRUSH_FIRE":  EventFire,
	"TREE_DOWN":   EventWind,
	"WIRES_DOWN":  EventWind,
	"WIND_DMG":    EventWind,
	"HAIL_DMG":    EventHail,
	"FROZEN_PIPE": EventFreeze,
	"ICE_HAZARD":  EventFreeze,
}

func normalizeCAD(payload []byte) (Signal, bool, error) {
	var rec rawCADCall
	if err := json.Unmarshal(payload, &rec); err != nil {
		return Signal{}, false, &ValidationError{Err: fmt.Errorf("decode cad call: %w", err)}
	}

	et, ok := cadNatureEvents[strings.ToUpper(strings.TrimSpace(rec.NatureCode))]
	if !ok {
		return Signal{}, false, nil
	}

	occurredAt, err := parseRFC3339("received_at", rec.ReceivedAt)
	if err != nil {
		return Signal{}, false, err
	}

	loc := Location{Address: rec.Address, State: rec.State}
	if rec.Lat != 0 || rec.Lng != 0 {
		loc.Geo = &Geo{Lat: rec.Lat, Lon: rec.Lng}
	}

	return Signal{
		SourceEventID: rec.CallID,
		EventType:     et,
		OccurredAt:    occurredAt,
		Location:      loc,
		SeverityRaw:   prioritySeverity(rec.Priority),
	}, true, nil
}

// prioritySeverity inverts a 1-5 dispatch priority onto 0..1: priority 1 is
// the most urgent call.
func prioritySeverity(priority int) float64 {
	if priority < 1 || priority > 5 {
		return defaultSeverity
	}
	return float64(6-priority) / 5
}

// --- news (geocoded press mentions) ---

type rawNewsMention struct {
	ArticleID   string  `json:"article_id"`
	Headline    string  `json:"headline"`
	Hazard      string  `json:"hazard"` // "fire", "wind", "hail", "freeze", "flood", ...
	PublishedAt string  `json:"published_at"`
	EventAt     string  `json:"event_at,omitempty"` // when the article dates the event
	Place       string  `json:"place"`
	State       string  `json:"state"`
	Lat         float64 `json:"lat"`
	Lng         float64 `json:"lng"`
}

func normalizeNews(payload []byte) (Signal, bool, error) {
	var rec rawNewsMention
	if err := json.Unmarshal(payload, &rec); err != nil {
		return Signal{}, false, &ValidationError{Err: fmt.Errorf("decode news mention: %w", err)}
	}

	et, ok := hazardEventType(rec.Hazard)
	if !ok {
		return Signal{}, false, nil
	}

	ts := rec.EventAt
	if ts == "" {
		ts = rec.PublishedAt
	}
	occurredAt, err := parseRFC3339("event_at/published_at", ts)
	if err != nil {
		return Signal{}, false, err
	}

	loc := Location{Address: rec.Place, State: rec.State}
	if rec.Lat != 0 || rec.Lng != 0 {
		loc.Geo = &Geo{Lat: rec.Lat, Lon: rec.Lng}
	}

	// Press mentions carry no native severity field.
	return Signal{
		SourceEventID: rec.ArticleID,
		EventType:     et,
		OccurredAt:    occurredAt,
		Location:      loc,
		SeverityRaw:   defaultSeverity,
	}, true, nil
}

// --- declaration (county-level disaster declarations) ---

type rawDeclaration struct {
	DeclarationNumber string `json:"declaration_number"`
	Kind              string `json:"kind"`   // "major", "emergency", or state-specific
	Hazard            string `json:"hazard"` // "fire", "severe_storm", "winter_storm", ...
	DeclaredAt        string `json:"declared_at"`
	IncidentBeginAt   string `json:"incident_begin_at,omitempty"`
	County            string `json:"county"`
	CountyFIPS        string `json:"county_fips"`
	State             string `json:"state"`
}

func normalizeDeclaration(payload []byte) (Signal, bool, error) {
	var rec rawDeclaration
	if err := json.Unmarshal(payload, &rec); err != nil {
		return Signal{}, false, &ValidationError{Err: fmt.Errorf("decode declaration: %w", err)}
	}

	et, ok := hazardEventType(rec.Hazard)
	if !ok {
		return Signal{}, false, nil
	}

	ts := rec.IncidentBeginAt
	if ts == "" {
		ts = rec.DeclaredAt
	}
	occurredAt, err := parseRFC3339("incident_begin_at/declared_at", ts)
	if err != nil {
		return Signal{}, false, err
	}

	sig := Signal{
		SourceEventID: rec.DeclarationNumber,
		EventType:     et,
		OccurredAt:    occurredAt,
		Location:      Location{County: rec.County, State: rec.State},
		SeverityRaw:   declarationSeverity(rec.Kind),
	}
	if rec.CountyFIPS != "" {
		sig.Annotation = GeoAnnotation{ResolutionLevel: ResolutionCounty, CountyFIPS: rec.CountyFIPS}
	}
	return sig, true, nil
}

func declarationSeverity(kind string) float64 {
	switch strings.ToLower(strings.TrimSpace(kind)) {
	case "major":
		return 0.9
	case "emergency":
		return 0.7
	default:
		return defaultSeverity
	}
}

// hazardEventType maps the hazard vocabulary shared by the news and
// declaration feeds. Floods have no canonical event type and are dropped.
func hazardEventType(hazard string) (EventType, bool) {
	switch strings.ToLower(strings.TrimSpace(hazard)) {
	case "fire", "wildfire":
		return EventFire, true
	case "wind", "severe_storm", "high_wind", "tornado":
		return EventWind, true
	case "hail":
		return EventHail, true
	case "freeze", "winter_storm", "ice":
		return EventFreeze, true
	default:
		return "", false
	}
}

// --- shared parsing helpers ---

// defaultSeverity is the conservative stand-in for a missing severity.
const defaultSeverity = 0.5

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

// parseFloatOrZero parses a string as float64, returning 0 on failure.
func parseFloatOrZero(s string) float64 {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0
	}
	return v
}

// parseHHMM combines a base date with an HHMM time string ("1510" → 15:10
// UTC). Three-digit values are zero-padded ("930" → "0930").
func parseHHMM(baseDate time.Time, hhmm string) (time.Time, error) {
	hhmm = strings.TrimSpace(hhmm)
	if len(hhmm) < 3 || len(hhmm) > 4 {
		return time.Time{}, fmt.Errorf("unparseable HHMM time %q", hhmm)
	}
	if len(hhmm) == 3 {
		hhmm = "0" + hhmm
	}

	hour, errH := strconv.Atoi(hhmm[:2])
	mins, errM := strconv.Atoi(hhmm[2:])
	if errH != nil || errM != nil || hour < 0 || hour > 23 || mins < 0 || mins > 59 {
		return time.Time{}, fmt.Errorf("unparseable HHMM time %q", hhmm)
	}

	return time.Date(
		baseDate.Year(), baseDate.Month(), baseDate.Day(),
		hour, mins, 0, 0, time.UTC,
	), nil
}

func parseRFC3339(field, value string) (time.Time, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return time.Time{}, Validationf("missing %s", field)
	}
	t, err := time.Parse(time.RFC3339, value)
	if err != nil {
		return time.Time{}, &ValidationError{Err: fmt.Errorf("unparseable %s %q: %w", field, value, err)}
	}
	return t.UTC(), nil
}
