package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var matchBase = time.Date(2024, 4, 26, 15, 0, 0, 0, time.UTC)

// One degree of latitude is ~69.1 miles, so these offsets give known
// distances without trigonometry in the test.
func geoAt(latOffset float64) *Geo {
	return &Geo{Lat: 32.70 + latOffset, Lon: -97.30}
}

func fireSignal(id string, latOffset float64, at time.Time) Signal {
	return Signal{
		ID:         id,
		SourceType: SourceCAD,
		EventType:  EventFire,
		OccurredAt: at,
		Location:   Location{Geo: geoAt(latOffset)},
	}
}

func fireCluster(id string, latOffset float64, at time.Time, size int) Cluster {
	ids := make([]string, size)
	for i := range ids {
		ids[i] = id + "-member"
	}
	return Cluster{
		ID:          id,
		EventType:   EventFire,
		Centroid:    geoAt(latOffset),
		SignalIDs:   ids,
		SourceTypes: []SourceType{SourceCAD},
		Window:      TimeWindow{Start: at, End: at},
	}
}

func TestToleranceFor(t *testing.T) {
	for _, st := range []SourceType{SourceFireCommercial, SourceFireState, SourceCAD} {
		tol := ToleranceFor(st)
		assert.Equal(t, 0.5, tol.MaxMiles, "source %s", st)
		assert.Equal(t, 2*time.Hour, tol.Window, "source %s", st)
	}
	for _, st := range []SourceType{SourceWeather, SourceNews, SourceDeclaration} {
		tol := ToleranceFor(st)
		assert.InDelta(t, 3.107, tol.MaxMiles, 0.001, "source %s", st)
		assert.Equal(t, 24*time.Hour, tol.Window, "source %s", st)
	}
}

func TestBestMatch(t *testing.T) {
	t.Run("fire signal matches nearby fire cluster", func(t *testing.T) {
		// 0.005 degrees is ~0.35 miles, inside the 0.5 mile tolerance.
		sig := fireSignal("s1", 0.005, matchBase.Add(time.Hour))
		clusters := []Cluster{fireCluster("c1", 0, matchBase, 1)}

		cand, ok := BestMatch(sig, clusters, nil)
		require.True(t, ok)
		require.NotNil(t, cand.Cluster)
		assert.Equal(t, "c1", cand.Cluster.ID)
	})

	t.Run("too far in space", func(t *testing.T) {
		// 0.01 degrees is ~0.69 miles, outside the fire tolerance.
		sig := fireSignal("s1", 0.01, matchBase)
		clusters := []Cluster{fireCluster("c1", 0, matchBase, 1)}

		_, ok := BestMatch(sig, clusters, nil)
		assert.False(t, ok)
	})

	t.Run("too far in time", func(t *testing.T) {
		sig := fireSignal("s1", 0, matchBase.Add(3*time.Hour))
		clusters := []Cluster{fireCluster("c1", 0, matchBase, 1)}

		_, ok := BestMatch(sig, clusters, nil)
		assert.False(t, ok)
	})

	t.Run("inside window counts as zero temporal distance", func(t *testing.T) {
		c := fireCluster("c1", 0, matchBase, 2)
		c.Window = TimeWindow{Start: matchBase, End: matchBase.Add(6 * time.Hour)}
		sig := fireSignal("s1", 0, matchBase.Add(3*time.Hour))

		_, ok := BestMatch(sig, []Cluster{c}, nil)
		assert.True(t, ok)
	})

	t.Run("event type must agree", func(t *testing.T) {
		sig := fireSignal("s1", 0, matchBase)
		sig.EventType = EventHail
		clusters := []Cluster{fireCluster("c1", 0, matchBase, 1)}

		_, ok := BestMatch(sig, clusters, nil)
		assert.False(t, ok)
	})

	t.Run("signal without coordinates never matches", func(t *testing.T) {
		sig := fireSignal("s1", 0, matchBase)
		sig.Location = Location{County: "Tarrant", State: "TX"}
		clusters := []Cluster{fireCluster("c1", 0, matchBase, 1)}

		_, ok := BestMatch(sig, clusters, nil)
		assert.False(t, ok)
	})

	t.Run("weather pair uses the wide tolerance", func(t *testing.T) {
		// 0.04 degrees is ~2.8 miles: beyond the fire tolerance but inside
		// the 5 km weather tolerance, 10 hours inside the 24 hour window.
		sig := Signal{
			ID:         "w1",
			SourceType: SourceWeather,
			EventType:  EventHail,
			OccurredAt: matchBase.Add(10 * time.Hour),
			Location:   Location{Geo: geoAt(0.04)},
		}
		c := Cluster{
			ID:          "c1",
			EventType:   EventHail,
			Centroid:    geoAt(0),
			SignalIDs:   []string{"m1"},
			SourceTypes: []SourceType{SourceWeather},
			Window:      TimeWindow{Start: matchBase, End: matchBase},
		}

		cand, ok := BestMatch(sig, []Cluster{c}, nil)
		require.True(t, ok)
		assert.Equal(t, "c1", cand.Cluster.ID)
	})

	t.Run("mixed classes apply the tighter pair", func(t *testing.T) {
		// Weather signal against a fire-class cluster: the 0.5 mile fire
		// radius governs, so ~0.69 miles misses even though the weather
		// radius alone would allow it.
		sig := Signal{
			ID:         "w1",
			SourceType: SourceWeather,
			EventType:  EventFire,
			OccurredAt: matchBase,
			Location:   Location{Geo: geoAt(0.01)},
		}
		clusters := []Cluster{fireCluster("c1", 0, matchBase, 1)}

		_, ok := BestMatch(sig, clusters, nil)
		assert.False(t, ok)
	})

	t.Run("larger cluster wins the tie-break", func(t *testing.T) {
		sig := fireSignal("s1", 0, matchBase)
		clusters := []Cluster{
			fireCluster("small", 0.001, matchBase, 1),
			fireCluster("large", 0.004, matchBase.Add(time.Hour), 3),
		}

		cand, ok := BestMatch(sig, clusters, nil)
		require.True(t, ok)
		assert.Equal(t, "large", cand.Cluster.ID)
	})

	t.Run("equal size falls back to nearest in time", func(t *testing.T) {
		sig := fireSignal("s1", 0, matchBase)
		clusters := []Cluster{
			fireCluster("far", 0.001, matchBase.Add(-90*time.Minute), 2),
			fireCluster("near", 0.004, matchBase.Add(-10*time.Minute), 2),
		}

		cand, ok := BestMatch(sig, clusters, nil)
		require.True(t, ok)
		assert.Equal(t, "near", cand.Cluster.ID)
	})

	t.Run("any cluster outranks any loose signal", func(t *testing.T) {
		sig := fireSignal("s1", 0, matchBase)
		clusters := []Cluster{fireCluster("c1", 0.004, matchBase.Add(time.Hour), 1)}
		loose := []Signal{fireSignal("loose1", 0.001, matchBase)}

		cand, ok := BestMatch(sig, clusters, loose)
		require.True(t, ok)
		require.NotNil(t, cand.Cluster)
		assert.Equal(t, "c1", cand.Cluster.ID)
	})

	t.Run("loose signal matches when no cluster does", func(t *testing.T) {
		sig := fireSignal("s1", 0, matchBase)
		loose := []Signal{fireSignal("loose1", 0.001, matchBase.Add(30*time.Minute))}

		cand, ok := BestMatch(sig, nil, loose)
		require.True(t, ok)
		require.NotNil(t, cand.Loose)
		assert.Equal(t, "loose1", cand.Loose.ID)
	})

	t.Run("a signal does not match itself in the loose set", func(t *testing.T) {
		sig := fireSignal("s1", 0, matchBase)
		loose := []Signal{sig}

		_, ok := BestMatch(sig, nil, loose)
		assert.False(t, ok)
	})
}
