package domain

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// stubResolver returns canned results, or an error when set.
type stubResolver struct {
	reverse ResolvedLocation
	forward ResolvedLocation
	err     error

	reverseCalls int
	forwardCalls int
}

func (s *stubResolver) ResolveCoordinates(_ context.Context, _, _ float64) (ResolvedLocation, error) {
	s.reverseCalls++
	return s.reverse, s.err
}

func (s *stubResolver) ResolvePlace(_ context.Context, _, _ string) (ResolvedLocation, error) {
	s.forwardCalls++
	return s.forward, s.err
}

func TestBaselineAnnotation(t *testing.T) {
	tests := []struct {
		name     string
		loc      Location
		expected GeoAnnotation
	}{
		{
			"coordinates give point",
			Location{Geo: &Geo{Lat: 32.7, Lon: -97.3}},
			GeoAnnotation{ResolutionLevel: ResolutionPoint},
		},
		{
			"coordinates with zip keep the zip",
			Location{Geo: &Geo{Lat: 32.7, Lon: -97.3}, Zip: "76107"},
			GeoAnnotation{ResolutionLevel: ResolutionPoint, ZipCodes: []string{"76107"}},
		},
		{
			"zip without coordinates",
			Location{Zip: "76107", State: "TX"},
			GeoAnnotation{ResolutionLevel: ResolutionZip, ZipCodes: []string{"76107"}},
		},
		{
			"county only",
			Location{County: "Tarrant", State: "TX"},
			GeoAnnotation{ResolutionLevel: ResolutionCounty},
		},
		{
			"state only",
			Location{State: "TX"},
			GeoAnnotation{ResolutionLevel: ResolutionState},
		},
		{
			"nothing location-shaped",
			Location{},
			GeoAnnotation{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, BaselineAnnotation(tt.loc))
		})
	}
}

func TestAnnotateSignal(t *testing.T) {
	ctx := context.Background()

	t.Run("nil resolver keeps the baseline", func(t *testing.T) {
		sig := Signal{Location: Location{County: "Tarrant", State: "TX"}}
		got := AnnotateSignal(ctx, sig, nil, discardLogger())

		assert.Equal(t, ResolutionCounty, got.Annotation.ResolutionLevel)
	})

	t.Run("reverse resolution sharpens a located signal", func(t *testing.T) {
		resolver := &stubResolver{reverse: ResolvedLocation{
			Zip: "76107", County: "Tarrant", CountyFIPS: "48439", State: "TX",
		}}
		sig := Signal{Location: Location{Geo: &Geo{Lat: 32.737, Lon: -97.3862}}}

		got := AnnotateSignal(ctx, sig, resolver, discardLogger())

		assert.Equal(t, 1, resolver.reverseCalls)
		assert.Equal(t, ResolutionPoint, got.Annotation.ResolutionLevel)
		assert.Equal(t, []string{"76107"}, got.Annotation.ZipCodes)
		assert.Equal(t, "48439", got.Annotation.CountyFIPS)
		assert.Equal(t, "Tarrant", got.Location.County)
		assert.Equal(t, "TX", got.Location.State)
	})

	t.Run("provider error degrades to baseline", func(t *testing.T) {
		resolver := &stubResolver{err: errors.New("rate limited")}
		sig := Signal{Location: Location{Geo: &Geo{Lat: 32.7, Lon: -97.3}, County: "Tarrant"}}

		got := AnnotateSignal(ctx, sig, resolver, discardLogger())

		assert.Equal(t, ResolutionPoint, got.Annotation.ResolutionLevel)
		assert.Empty(t, got.Annotation.CountyFIPS)
	})

	t.Run("forward resolution can locate an address-only signal", func(t *testing.T) {
		resolver := &stubResolver{forward: ResolvedLocation{
			Lat: 32.737, Lon: -97.3862, HasCoords: true,
			Zip: "76107", County: "Tarrant", State: "TX",
		}}
		sig := Signal{Location: Location{Address: "4100 Camp Bowie Blvd", State: "TX"}}

		got := AnnotateSignal(ctx, sig, resolver, discardLogger())

		assert.Equal(t, 1, resolver.forwardCalls)
		require.True(t, got.Location.HasCoords())
		assert.Equal(t, 32.737, got.Location.Geo.Lat)
		assert.Equal(t, ResolutionPoint, got.Annotation.ResolutionLevel)
	})

	t.Run("county-only signal queries by county name", func(t *testing.T) {
		resolver := &stubResolver{forward: ResolvedLocation{County: "Tarrant", CountyFIPS: "48439", State: "TX"}}
		sig := Signal{Location: Location{County: "Tarrant", State: "TX"}}

		got := AnnotateSignal(ctx, sig, resolver, discardLogger())

		assert.Equal(t, 1, resolver.forwardCalls)
		assert.Equal(t, ResolutionCounty, got.Annotation.ResolutionLevel)
		assert.Equal(t, "48439", got.Annotation.CountyFIPS)
	})

	t.Run("no usable query skips the provider", func(t *testing.T) {
		resolver := &stubResolver{}
		sig := Signal{Location: Location{State: "TX"}}

		got := AnnotateSignal(ctx, sig, resolver, discardLogger())

		assert.Zero(t, resolver.forwardCalls)
		assert.Zero(t, resolver.reverseCalls)
		assert.Equal(t, ResolutionState, got.Annotation.ResolutionLevel)
	})

	t.Run("pre-set annotation survives the merge", func(t *testing.T) {
		// Declarations arrive with their own county FIPS annotation.
		sig := Signal{
			Location:   Location{County: "Tarrant", State: "TX"},
			Annotation: GeoAnnotation{ResolutionLevel: ResolutionCounty, CountyFIPS: "48439"},
		}

		got := AnnotateSignal(ctx, sig, nil, discardLogger())

		assert.Equal(t, "48439", got.Annotation.CountyFIPS)
		assert.Equal(t, ResolutionCounty, got.Annotation.ResolutionLevel)
	})
}

func TestMergeAnnotations(t *testing.T) {
	t.Run("keeps the most precise level", func(t *testing.T) {
		a := GeoAnnotation{ResolutionLevel: ResolutionCounty, CountyFIPS: "48439"}
		b := GeoAnnotation{ResolutionLevel: ResolutionPoint}

		got := MergeAnnotations(a, b)
		assert.Equal(t, ResolutionPoint, got.ResolutionLevel)
		assert.Equal(t, "48439", got.CountyFIPS)
	})

	t.Run("never loses precision", func(t *testing.T) {
		a := GeoAnnotation{ResolutionLevel: ResolutionZip, ZipCodes: []string{"76107"}}
		b := GeoAnnotation{ResolutionLevel: ResolutionState}

		got := MergeAnnotations(a, b)
		assert.Equal(t, ResolutionZip, got.ResolutionLevel)
	})

	t.Run("unions zip codes", func(t *testing.T) {
		a := GeoAnnotation{ZipCodes: []string{"76107", "76108"}}
		b := GeoAnnotation{ZipCodes: []string{"76108", "76109"}}

		got := MergeAnnotations(a, b)
		assert.Equal(t, []string{"76107", "76108", "76109"}, got.ZipCodes)
	})

	t.Run("first known county fips wins", func(t *testing.T) {
		a := GeoAnnotation{CountyFIPS: "48439"}
		b := GeoAnnotation{CountyFIPS: "48367"}

		got := MergeAnnotations(a, b)
		assert.Equal(t, "48439", got.CountyFIPS)
	})
}
