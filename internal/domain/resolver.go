package domain

import "context"

// ResolvedLocation is what a resolution provider knows about a place.
type ResolvedLocation struct {
	Lat       float64
	Lon       float64
	HasCoords bool

	Zip        string
	County     string
	CountyFIPS string
	State      string

	Confidence float64 // 0.0-1.0 provider confidence score
}

// Resolver annotates locations with administrative precision data.
type Resolver interface {
	// ResolveCoordinates converts a coordinate pair to zip/county/state.
	ResolveCoordinates(ctx context.Context, lat, lon float64) (ResolvedLocation, error)

	// ResolvePlace converts place text and a state to coordinates and
	// administrative context.
	ResolvePlace(ctx context.Context, place, state string) (ResolvedLocation, error)
}
