package domain

import (
	"time"
)

// Tolerance is a paired spatial/temporal matching window.
type Tolerance struct {
	MaxMiles float64
	Window   time.Duration
}

var (
	// Fire-class feeds locate incidents to an address.
	fireTolerance = Tolerance{MaxMiles: 0.5, Window: 2 * time.Hour}

	// Weather-class feeds locate to an area; 5 km expressed in miles.
	weatherTolerance = Tolerance{MaxMiles: KilometersToMiles(5), Window: 24 * time.Hour}
)

// fireClass reports whether a source type belongs to the address-precise
// fire class. Weather, news, and declarations are area-level reporters.
func fireClass(st SourceType) bool {
	switch st {
	case SourceFireCommercial, SourceFireState, SourceCAD:
		return true
	default:
		return false
	}
}

// ToleranceFor returns the matching tolerance for a source type.
func ToleranceFor(st SourceType) Tolerance {
	if fireClass(st) {
		return fireTolerance
	}
	return weatherTolerance
}

// tighter returns the pairwise minimum of two tolerance pairs.
func tighter(a, b Tolerance) Tolerance {
	t := a
	if b.MaxMiles < t.MaxMiles {
		t.MaxMiles = b.MaxMiles
	}
	if b.Window < t.Window {
		t.Window = b.Window
	}
	return t
}

// clusterTolerance derives a cluster's tolerance from the majority class of
// its distinct source types; ties resolve to the tighter fire class.
func clusterTolerance(c Cluster) Tolerance {
	fire := 0
	for _, st := range c.SourceTypes {
		if fireClass(st) {
			fire++
		}
	}
	if fire*2 >= len(c.SourceTypes) {
		return fireTolerance
	}
	return weatherTolerance
}

// Candidate is a potential duplicate target: either an existing cluster or
// a loose (unclustered, possibly suppressed) signal.
type Candidate struct {
	Cluster *Cluster
	Loose   *Signal
}

// BestMatch searches clusters and loose signals for the best duplicate
// target of sig, requiring the same event type, spatial distance within
// tolerance, and temporal distance within the paired window. When the
// incoming signal's class and the candidate's class disagree, the tighter
// pair of the two applies. Tie-break: the candidate backing the larger
// cluster wins, then the nearest in time; any cluster outranks any loose
// signal. Signals without coordinates never match spatially.
func BestMatch(sig Signal, clusters []Cluster, loose []Signal) (Candidate, bool) {
	if !sig.Location.HasCoords() {
		return Candidate{}, false
	}

	sigTol := ToleranceFor(sig.SourceType)
	g := *sig.Location.Geo

	var (
		best     Candidate
		bestSize = -1
		bestDt   time.Duration
		found    bool
	)

	consider := func(cand Candidate, size int, dt time.Duration) {
		switch {
		case !found, size > bestSize, size == bestSize && dt < bestDt:
			best, bestSize, bestDt, found = cand, size, dt, true
		}
	}

	for i := range clusters {
		c := &clusters[i]
		if c.EventType != sig.EventType || c.Centroid == nil {
			continue
		}
		tol := tighter(sigTol, clusterTolerance(*c))
		if DistanceMiles(g.Lat, g.Lon, c.Centroid.Lat, c.Centroid.Lon) > tol.MaxMiles {
			continue
		}
		dt := windowDistance(sig.OccurredAt, c.Window)
		if dt > tol.Window {
			continue
		}
		consider(Candidate{Cluster: c}, c.Size(), dt)
	}

	for i := range loose {
		s := &loose[i]
		if s.EventType != sig.EventType || !s.Location.HasCoords() || s.ID == sig.ID {
			continue
		}
		tol := tighter(sigTol, ToleranceFor(s.SourceType))
		if DistanceMiles(g.Lat, g.Lon, s.Location.Geo.Lat, s.Location.Geo.Lon) > tol.MaxMiles {
			continue
		}
		dt := absDuration(sig.OccurredAt.Sub(s.OccurredAt))
		if dt > tol.Window {
			continue
		}
		// Loose signals rank below every cluster.
		consider(Candidate{Loose: s}, 0, dt)
	}

	return best, found
}

// windowDistance is the temporal distance from t to a window: zero inside,
// otherwise the gap to the nearest edge.
func windowDistance(t time.Time, w TimeWindow) time.Duration {
	if t.Before(w.Start) {
		return w.Start.Sub(t)
	}
	if t.After(w.End) {
		return t.Sub(w.End)
	}
	return 0
}

func absDuration(d time.Duration) time.Duration {
	if d < 0 {
		return -d
	}
	return d
}
