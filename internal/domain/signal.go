package domain

import (
	"slices"
	"time"
)

// SourceType identifies the feed family a signal came from.
type SourceType string

const (
	SourceWeather        SourceType = "weather"
	SourceFireCommercial SourceType = "fire_commercial"
	SourceFireState      SourceType = "fire_state"
	SourceCAD            SourceType = "cad"
	SourceNews           SourceType = "news"
	SourceDeclaration    SourceType = "declaration"
)

// KnownSourceTypes lists every source type the normalizer can decode.
var KnownSourceTypes = []SourceType{
	SourceWeather,
	SourceFireCommercial,
	SourceFireState,
	SourceCAD,
	SourceNews,
	SourceDeclaration,
}

// EventType is the canonical loss-event classification.
type EventType string

const (
	EventFire   EventType = "Fire"
	EventWind   EventType = "Wind"
	EventHail   EventType = "Hail"
	EventFreeze EventType = "Freeze"
)

// VerificationStatus is the derived verification tier of a cluster.
type VerificationStatus string

const (
	StatusProbable  VerificationStatus = "probable"
	StatusReported  VerificationStatus = "reported"
	StatusConfirmed VerificationStatus = "confirmed"
)

// statusRank orders tiers so status transitions are escalation-only.
func statusRank(s VerificationStatus) int {
	switch s {
	case StatusReported:
		return 1
	case StatusConfirmed:
		return 2
	default:
		return 0
	}
}

// MaxStatus returns the higher of two verification tiers.
func MaxStatus(a, b VerificationStatus) VerificationStatus {
	if statusRank(b) > statusRank(a) {
		return b
	}
	return a
}

// ResolutionLevel is the precision of a resolved location.
type ResolutionLevel string

const (
	ResolutionPoint  ResolutionLevel = "point"
	ResolutionZip    ResolutionLevel = "zip"
	ResolutionCounty ResolutionLevel = "county"
	ResolutionState  ResolutionLevel = "state"
)

// resolutionRank orders levels most-precise-first. Unknown ranks last.
func resolutionRank(l ResolutionLevel) int {
	switch l {
	case ResolutionPoint:
		return 4
	case ResolutionZip:
		return 3
	case ResolutionCounty:
		return 2
	case ResolutionState:
		return 1
	default:
		return 0
	}
}

// MorePrecise reports whether a is strictly more precise than b.
func MorePrecise(a, b ResolutionLevel) bool {
	return resolutionRank(a) > resolutionRank(b)
}

// Geo represents a WGS-84 latitude/longitude coordinate pair.
type Geo struct {
	Lat float64 `json:"lat"`
	Lon float64 `json:"lon"`
}

// Location holds whatever place information a source provided. Every field
// is optional; a signal with no location at all is still valid.
type Location struct {
	Geo     *Geo   `json:"geo,omitempty"`
	Address string `json:"address,omitempty"`
	Zip     string `json:"zip,omitempty"`
	County  string `json:"county,omitempty"`
	State   string `json:"state,omitempty"`
}

// HasCoords reports whether the location carries a usable coordinate pair.
func (l Location) HasCoords() bool {
	return l.Geo != nil
}

// GeoAnnotation is the resolved-precision annotation on a signal or cluster.
// A zero annotation (unknown level) is valid and never blocks clustering.
type GeoAnnotation struct {
	ResolutionLevel ResolutionLevel `json:"resolution_level,omitempty"`
	ZipCodes        []string        `json:"zip_codes,omitempty"`
	CountyFIPS      string          `json:"county_fips,omitempty"`
}

// MergeAnnotations combines two annotations, keeping the most precise level,
// the union of zip codes, and the first known county FIPS.
func MergeAnnotations(a, b GeoAnnotation) GeoAnnotation {
	out := a
	if MorePrecise(b.ResolutionLevel, a.ResolutionLevel) {
		out.ResolutionLevel = b.ResolutionLevel
	}
	for _, z := range b.ZipCodes {
		if !slices.Contains(out.ZipCodes, z) {
			out.ZipCodes = append(out.ZipCodes, z)
		}
	}
	if out.CountyFIPS == "" {
		out.CountyFIPS = b.CountyFIPS
	}
	return out
}

// Signal is one source's observation of a loss event. Signals are immutable
// once created; a correction from a provider becomes a new Signal.
type Signal struct {
	ID            string     `json:"id"`
	SourceType    SourceType `json:"source_type"`
	SourceName    string     `json:"source_name"`
	SourceEventID string     `json:"source_event_id,omitempty"`
	EventType     EventType  `json:"event_type"`
	OccurredAt    time.Time  `json:"occurred_at"`
	ReportedAt    time.Time  `json:"reported_at"`
	Location      Location   `json:"location,omitempty"`
	SeverityRaw   float64    `json:"severity_raw"`

	// SourceConfidence is the fixed trust weight of the source type, 0..1.
	SourceConfidence float64 `json:"source_confidence"`

	Annotation GeoAnnotation `json:"annotation,omitempty"`

	// ClusterID is a weak, lookup-only back-reference. Empty while the
	// signal is unclustered or suppressed.
	ClusterID string `json:"cluster_id,omitempty"`

	// RawPayload is the audit copy of the provider record.
	RawPayload []byte `json:"raw_payload,omitempty"`
}

// TimeWindow is the union of occurrence times contributing to a cluster.
type TimeWindow struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

// Extend widens the window to include t.
func (w TimeWindow) Extend(t time.Time) TimeWindow {
	if t.Before(w.Start) {
		w.Start = t
	}
	if t.After(w.End) {
		w.End = t
	}
	return w
}

// Overlaps reports whether the window intersects [from, to]. A zero bound
// leaves that side unbounded.
func (w TimeWindow) Overlaps(from, to time.Time) bool {
	if !to.IsZero() && w.Start.After(to) {
		return false
	}
	if !from.IsZero() && w.End.Before(from) {
		return false
	}
	return true
}

// Cluster is a deduplicated, scored aggregate believed to represent one real
// event. Clusters are created and updated by the assembler and never deleted.
type Cluster struct {
	ID        string    `json:"id"`
	EventType EventType `json:"event_type"`

	// Centroid is the running mean of contributing coordinate-bearing
	// locations; LocatedCount is how many members contributed, so the mean
	// stays exact. Nil when no member carries coordinates.
	Centroid     *Geo `json:"centroid,omitempty"`
	LocatedCount int  `json:"located_count,omitempty"`

	Window             TimeWindow         `json:"window"`
	ConfidenceScore    int                `json:"confidence_score"`
	VerificationStatus VerificationStatus `json:"verification_status"`
	SignalIDs          []string           `json:"signal_ids"`
	SourceTypes        []SourceType       `json:"source_types"`
	Annotation         GeoAnnotation      `json:"annotation,omitempty"`

	// State is the first known member state, kept for the query surface.
	State string `json:"state,omitempty"`

	// Version fences optimistic concurrent writes; the store owns it.
	Version int64 `json:"version"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Size returns the number of contributing signals.
func (c Cluster) Size() int {
	return len(c.SignalIDs)
}

// HasSourceType reports whether a source type already contributes.
func (c Cluster) HasSourceType(st SourceType) bool {
	return slices.Contains(c.SourceTypes, st)
}

// ExtendCentroid folds one coordinate pair into the running mean.
func (c *Cluster) ExtendCentroid(g Geo) {
	if c.Centroid == nil {
		c.Centroid = &Geo{Lat: g.Lat, Lon: g.Lon}
		c.LocatedCount = 1
		return
	}
	n := float64(c.LocatedCount)
	c.Centroid.Lat = (c.Centroid.Lat*n + g.Lat) / (n + 1)
	c.Centroid.Lon = (c.Centroid.Lon*n + g.Lon) / (n + 1)
	c.LocatedCount++
}

// Clone returns a deep copy safe to hand across goroutines.
func (c Cluster) Clone() Cluster {
	out := c
	out.SignalIDs = slices.Clone(c.SignalIDs)
	out.SourceTypes = slices.Clone(c.SourceTypes)
	out.Annotation.ZipCodes = slices.Clone(c.Annotation.ZipCodes)
	if c.Centroid != nil {
		g := *c.Centroid
		out.Centroid = &g
	}
	return out
}

// sourceTrust is the fixed per-source-type trust weight. Weather sits below
// the 0.70 suppression line on purpose: an uncorroborated low-severity
// weather row is exactly what the suppression rule exists to filter. Its
// high scoring contribution reflects corroboration value, not standalone
// trust.
var sourceTrust = map[SourceType]float64{
	SourceDeclaration:    0.95,
	SourceFireState:      0.85,
	SourceCAD:            0.80,
	SourceFireCommercial: 0.75,
	SourceWeather:        0.65,
	SourceNews:           0.50,
}

// SourceConfidenceFor returns the trust weight for a source type,
// defaulting to the news-tier floor for anything unrecognized.
func SourceConfidenceFor(st SourceType) float64 {
	if v, ok := sourceTrust[st]; ok {
		return v
	}
	return 0.50
}
