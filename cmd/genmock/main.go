// Command genmock generates mock provider fixtures for every source feed:
// one JSON array file per source, shaped like the real provider payloads. It
// runs each record through the actual normalization path so the fixture set
// is guaranteed to ingest cleanly, and prints the resulting signal counts
// for updating test assertions.
//
// Usage:
//
//	go run ./cmd/genmock -out-dir data/mock
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/couchcryptid/loss-recon/internal/domain"
)

// The fixture scenario is one storm day over north Texas: a hailstorm near
// Fort Worth, a structure fire in Tarrant County, and a wildland fire in
// Parker County, each observed by several feeds.
var baseDate = time.Date(2024, time.April, 26, 0, 0, 0, 0, time.UTC)

func main() {
	if err := run(); err != nil {
		log.Fatal(err)
	}
}

func run() error {
	outDir := flag.String("out-dir", "data/mock", "output directory for fixture files")
	flag.Parse()

	// Fixed clock so ReportedAt and derived IDs are reproducible. Weather
	// rows carry HHMM times that resolve against the intake date, so the
	// clock sits late on the storm day itself.
	domain.SetClock(clockwork.NewFakeClockAt(baseDate.Add(23*time.Hour + 30*time.Minute)))
	defer domain.SetClock(nil)

	fixtures := map[string]struct {
		sourceType domain.SourceType
		records    []any
	}{
		"weather_reports.json":   {domain.SourceWeather, weatherRecords()},
		"commercial_alarms.json": {domain.SourceFireCommercial, alarmRecords()},
		"state_incidents.json":   {domain.SourceFireState, incidentRecords()},
		"cad_calls.json":         {domain.SourceCAD, cadRecords()},
		"news_mentions.json":     {domain.SourceNews, newsRecords()},
		"declarations.json":      {domain.SourceDeclaration, declarationRecords()},
	}

	for file, fx := range fixtures {
		path := filepath.Join(*outDir, file)
		if err := writeJSON(path, fx.records); err != nil {
			return fmt.Errorf("writing %s: %w", file, err)
		}
		kept, dropped, err := verify(fx.sourceType, file, fx.records)
		if err != nil {
			return err
		}
		log.Printf("%s: %d records (%d normalize, %d dropped)", file, len(fx.records), kept, dropped)
	}
	return nil
}

// verify runs each fixture record through normalization and fails on any
// ValidationError: a fixture that cannot ingest is a bug here, not test data.
func verify(st domain.SourceType, file string, records []any) (kept, dropped int, err error) {
	for i, rec := range records {
		payload, err := json.Marshal(rec)
		if err != nil {
			return 0, 0, fmt.Errorf("%s[%d]: marshal: %w", file, i, err)
		}
		_, ok, err := domain.Normalize(st, "genmock", payload, domain.Now())
		if err != nil {
			return 0, 0, fmt.Errorf("%s[%d]: %w", file, i, err)
		}
		if ok {
			kept++
		} else {
			dropped++
		}
	}
	return kept, dropped, nil
}

func weatherRecords() []any {
	return []any{
		// Hailstorm near Fort Worth, corroborated by CAD and news below.
		map[string]string{
			"Time": "1510", "Size": "175", "Location": "2 SSE Benbrook",
			"County": "Tarrant", "State": "TX",
			"Lat": "32.66", "Lon": "-97.44",
			"Comments": "Golf ball sized hail.", "Type": "hail",
		},
		map[string]string{
			"Time": "1535", "Speed": "70", "Location": "1 N Weatherford",
			"County": "Parker", "State": "TX",
			"Lat": "32.77", "Lon": "-97.80",
			"Comments": "Trees down on power lines.", "Type": "wind",
		},
		// Uncorroborated low-severity report; exercises the suppression path.
		map[string]string{
			"Time": "0905", "Size": "UNK", "Location": "3 W Abilene",
			"County": "Taylor", "State": "TX",
			"Lat": "32.45", "Lon": "-99.79",
			"Comments": "Pea sized hail reported by spotter.", "Type": "hail",
		},
		// Flood rows have no canonical event type and are dropped.
		map[string]string{
			"Time": "1600", "Location": "Dallas",
			"County": "Dallas", "State": "TX",
			"Lat": "32.78", "Lon": "-96.80",
			"Comments": "Street flooding.", "Type": "flood",
		},
	}
}

func alarmRecords() []any {
	return []any{
		map[string]any{
			"alarm_id": "ALM-88214", "category": "fire", "alarm_level": 3,
			"triggered_at": "2024-04-26T21:42:00Z",
			"address":      "4100 Camp Bowie Blvd", "city": "Fort Worth",
			"state": "TX", "zip": "76107",
			"lat": 32.7370, "lng": -97.3862,
		},
		// Burglary alarms are not loss events and are dropped.
		map[string]any{
			"alarm_id": "ALM-88215", "category": "burglary", "alarm_level": 1,
			"triggered_at": "2024-04-26T22:01:00Z",
			"address":      "900 Main St", "city": "Fort Worth",
			"state": "TX", "zip": "76102",
			"lat": 32.7530, "lng": -97.3290,
		},
	}
}

func incidentRecords() []any {
	return []any{
		// Same structure fire the alarm company reported, filed by the
		// marshal's office with a point geometry.
		map[string]any{
			"incident_number": "TX-2024-044120", "incident_type": "structure_fire",
			"started_at": "2024-04-26T21:48:00Z",
			"county":     "Tarrant", "state": "TX",
			"geometry": map[string]any{
				"type":        "Point",
				"coordinates": []float64{-97.3860, 32.7372},
			},
		},
		// Wildland fire with a perimeter polygon.
		map[string]any{
			"incident_number": "TX-2024-044131", "incident_type": "wildland_fire",
			"started_at": "2024-04-26T19:15:00Z",
			"county":     "Parker", "state": "TX",
			"acres_burned": 240.0,
			"geometry": map[string]any{
				"type": "Polygon",
				"coordinates": [][][]float64{{
					{-97.85, 32.70}, {-97.83, 32.70},
					{-97.83, 32.72}, {-97.85, 32.72},
					{-97.85, 32.70},
				}},
			},
		},
	}
}

func cadRecords() []any {
	return []any{
		map[string]any{
			"call_id": "CAD-240426-1187", "nature_code": "STRUCT_FIRE", "priority": 1,
			"received_at": "2024-04-26T21:45:00Z",
			"address":     "4100 Camp Bowie Blvd", "city": "Fort Worth", "state": "TX",
			"lat": 32.7371, "lng": -97.3861,
		},
		map[string]any{
			"call_id": "CAD-240426-1203", "nature_code": "HAIL_DMG", "priority": 3,
			"received_at": "2024-04-26T15:25:00Z",
			"address":     "Benbrook Lake Dr", "city": "Benbrook", "state": "TX",
			"lat": 32.6610, "lng": -97.4410,
		},
		// Medical calls carry no mapped nature code and are dropped.
		map[string]any{
			"call_id": "CAD-240426-1204", "nature_code": "MED_AID", "priority": 2,
			"received_at": "2024-04-26T15:30:00Z",
			"address":     "101 University Dr", "city": "Fort Worth", "state": "TX",
			"lat": 32.7490, "lng": -97.3410,
		},
	}
}

func newsRecords() []any {
	return []any{
		map[string]any{
			"article_id": "startelegram-20240426-hail",
			"headline":   "Golf ball-sized hail pounds southwest Tarrant County",
			"hazard":     "hail",
			"published_at": "2024-04-26T18:05:00Z",
			"event_at":     "2024-04-26T15:15:00Z",
			"place":        "Benbrook", "state": "TX",
			"lat": 32.6732, "lng": -97.4606,
		},
	}
}

func declarationRecords() []any {
	return []any{
		map[string]any{
			"declaration_number": "TX-GOV-2024-17",
			"kind":               "emergency", "hazard": "severe_storm",
			"declared_at":       "2024-04-27T14:00:00Z",
			"incident_begin_at": "2024-04-26T12:00:00Z",
			"county":            "Tarrant", "county_fips": "48439", "state": "TX",
		},
	}
}

func writeJSON(path string, v any) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	data = append(data, '\n')
	return os.WriteFile(path, data, 0o600)
}
