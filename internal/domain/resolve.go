package domain

import (
	"context"
	"log/slog"
)

// BaselineAnnotation derives the annotation a signal earns from its own
// location fields, before any provider is consulted: point > zip > county >
// state. A signal with nothing location-shaped gets a zero annotation, which
// is valid and never blocks clustering.
func BaselineAnnotation(loc Location) GeoAnnotation {
	switch {
	case loc.HasCoords():
		a := GeoAnnotation{ResolutionLevel: ResolutionPoint}
		if loc.Zip != "" {
			a.ZipCodes = []string{loc.Zip}
		}
		return a
	case loc.Zip != "":
		return GeoAnnotation{ResolutionLevel: ResolutionZip, ZipCodes: []string{loc.Zip}}
	case loc.County != "":
		return GeoAnnotation{ResolutionLevel: ResolutionCounty}
	case loc.State != "":
		return GeoAnnotation{ResolutionLevel: ResolutionState}
	default:
		return GeoAnnotation{}
	}
}

// AnnotateSignal opportunistically sharpens a signal's location annotation
// through a resolution provider. A nil resolver, a provider error, or a
// timeout degrades to the baseline derived from what the source already
// gave us; resolution never fails a signal.
func AnnotateSignal(ctx context.Context, sig Signal, resolver Resolver, logger *slog.Logger) Signal {
	// Merge rather than assign: some sources (declarations) arrive with a
	// partial annotation of their own.
	sig.Annotation = MergeAnnotations(sig.Annotation, BaselineAnnotation(sig.Location))
	if resolver == nil {
		return sig
	}

	if sig.Location.HasCoords() {
		result, err := resolver.ResolveCoordinates(ctx, sig.Location.Geo.Lat, sig.Location.Geo.Lon)
		if err != nil {
			logger.Warn("reverse resolution failed, keeping baseline precision",
				"signal_id", sig.ID,
				"lat", sig.Location.Geo.Lat,
				"lon", sig.Location.Geo.Lon,
				"error", err,
			)
			return sig
		}
		return applyResolved(sig, result)
	}

	// No coordinates: try to sharpen from place text. Anything usable as a
	// query counts; the provider decides what it can do with it.
	query := placeQuery(sig.Location)
	if query == "" {
		return sig
	}
	result, err := resolver.ResolvePlace(ctx, query, sig.Location.State)
	if err != nil {
		logger.Warn("forward resolution failed, keeping baseline precision",
			"signal_id", sig.ID,
			"place", query,
			"state", sig.Location.State,
			"error", err,
		)
		return sig
	}
	if result.HasCoords {
		sig.Location.Geo = &Geo{Lat: result.Lat, Lon: result.Lon}
	}
	return applyResolved(sig, result)
}

// applyResolved merges provider output into the signal without ever losing
// already-known precision.
func applyResolved(sig Signal, r ResolvedLocation) Signal {
	resolved := GeoAnnotation{CountyFIPS: r.CountyFIPS}
	switch {
	case sig.Location.HasCoords():
		resolved.ResolutionLevel = ResolutionPoint
	case r.Zip != "":
		resolved.ResolutionLevel = ResolutionZip
	case r.County != "" || r.CountyFIPS != "":
		resolved.ResolutionLevel = ResolutionCounty
	case r.State != "":
		resolved.ResolutionLevel = ResolutionState
	}
	if r.Zip != "" {
		resolved.ZipCodes = []string{r.Zip}
	}

	sig.Annotation = MergeAnnotations(sig.Annotation, resolved)
	if sig.Location.Zip == "" {
		sig.Location.Zip = r.Zip
	}
	if sig.Location.County == "" {
		sig.Location.County = r.County
	}
	if sig.Location.State == "" {
		sig.Location.State = r.State
	}
	return sig
}

func placeQuery(loc Location) string {
	if loc.Address != "" {
		return loc.Address
	}
	if loc.County != "" {
		return loc.County + " County"
	}
	return ""
}
