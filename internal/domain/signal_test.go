package domain

import (
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMaxStatus(t *testing.T) {
	assert.Equal(t, StatusConfirmed, MaxStatus(StatusReported, StatusConfirmed))
	assert.Equal(t, StatusConfirmed, MaxStatus(StatusConfirmed, StatusProbable))
	assert.Equal(t, StatusReported, MaxStatus(StatusProbable, StatusReported))
	assert.Equal(t, StatusProbable, MaxStatus(StatusProbable, StatusProbable))
}

func TestMorePrecise(t *testing.T) {
	assert.True(t, MorePrecise(ResolutionPoint, ResolutionZip))
	assert.True(t, MorePrecise(ResolutionZip, ResolutionCounty))
	assert.True(t, MorePrecise(ResolutionCounty, ResolutionState))
	assert.True(t, MorePrecise(ResolutionState, ""))
	assert.False(t, MorePrecise(ResolutionCounty, ResolutionCounty))
	assert.False(t, MorePrecise("", ResolutionState))
}

func TestTimeWindow(t *testing.T) {
	base := time.Date(2024, 4, 26, 12, 0, 0, 0, time.UTC)
	w := TimeWindow{Start: base, End: base}

	t.Run("extend earlier", func(t *testing.T) {
		got := w.Extend(base.Add(-time.Hour))
		assert.Equal(t, base.Add(-time.Hour), got.Start)
		assert.Equal(t, base, got.End)
	})

	t.Run("extend later", func(t *testing.T) {
		got := w.Extend(base.Add(2 * time.Hour))
		assert.Equal(t, base, got.Start)
		assert.Equal(t, base.Add(2*time.Hour), got.End)
	})

	t.Run("inside leaves the window unchanged", func(t *testing.T) {
		wide := TimeWindow{Start: base, End: base.Add(4 * time.Hour)}
		assert.Equal(t, wide, wide.Extend(base.Add(time.Hour)))
	})

	t.Run("overlaps", func(t *testing.T) {
		wide := TimeWindow{Start: base, End: base.Add(4 * time.Hour)}
		assert.True(t, wide.Overlaps(base.Add(time.Hour), base.Add(2*time.Hour)))
		assert.True(t, wide.Overlaps(base.Add(-time.Hour), base.Add(time.Hour)))
		assert.False(t, wide.Overlaps(base.Add(5*time.Hour), base.Add(6*time.Hour)))
		assert.False(t, wide.Overlaps(base.Add(-2*time.Hour), base.Add(-time.Hour)))
	})

	t.Run("zero bounds are unbounded", func(t *testing.T) {
		wide := TimeWindow{Start: base, End: base.Add(4 * time.Hour)}
		assert.True(t, wide.Overlaps(time.Time{}, time.Time{}))
		assert.True(t, wide.Overlaps(base.Add(2*time.Hour), time.Time{}))
	})
}

func TestExtendCentroid(t *testing.T) {
	var c Cluster

	c.ExtendCentroid(Geo{Lat: 32.0, Lon: -97.0})
	require.NotNil(t, c.Centroid)
	assert.Equal(t, 1, c.LocatedCount)
	assert.Equal(t, 32.0, c.Centroid.Lat)

	c.ExtendCentroid(Geo{Lat: 34.0, Lon: -99.0})
	assert.Equal(t, 2, c.LocatedCount)
	assert.InDelta(t, 33.0, c.Centroid.Lat, 1e-9)
	assert.InDelta(t, -98.0, c.Centroid.Lon, 1e-9)

	// Running mean stays exact regardless of arrival order.
	c.ExtendCentroid(Geo{Lat: 33.0, Lon: -98.0})
	assert.Equal(t, 3, c.LocatedCount)
	assert.InDelta(t, 33.0, c.Centroid.Lat, 1e-9)
}

func TestClusterClone(t *testing.T) {
	c := Cluster{
		ID:          "c1",
		Centroid:    &Geo{Lat: 32.0, Lon: -97.0},
		SignalIDs:   []string{"s1"},
		SourceTypes: []SourceType{SourceCAD},
		Annotation:  GeoAnnotation{ZipCodes: []string{"76107"}},
	}

	clone := c.Clone()
	if diff := cmp.Diff(c, clone); diff != "" {
		t.Fatalf("clone differs from original (-want +got):\n%s", diff)
	}

	clone.SignalIDs[0] = "mutated"
	clone.Centroid.Lat = 0
	clone.Annotation.ZipCodes[0] = "00000"

	assert.Equal(t, "s1", c.SignalIDs[0])
	assert.Equal(t, 32.0, c.Centroid.Lat)
	assert.Equal(t, "76107", c.Annotation.ZipCodes[0])
}

func TestSourceConfidenceFor(t *testing.T) {
	assert.Equal(t, 0.95, SourceConfidenceFor(SourceDeclaration))
	assert.Equal(t, 0.85, SourceConfidenceFor(SourceFireState))
	assert.Equal(t, 0.80, SourceConfidenceFor(SourceCAD))
	assert.Equal(t, 0.75, SourceConfidenceFor(SourceFireCommercial))
	assert.Equal(t, 0.65, SourceConfidenceFor(SourceWeather))
	assert.Equal(t, 0.50, SourceConfidenceFor(SourceNews))
	assert.Equal(t, 0.50, SourceConfidenceFor(SourceType("carrier-pigeon")))
}
