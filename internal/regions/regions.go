// Package regions maps cloud region names to coordinates and summarises
// fleet runs per region.
package regions

import (
	_ "embed"
	"fmt"
	"math"
	"sort"
	"strings"

	"github.com/EricMurray-e-m-dev/StartupMonkey/prober/internal/models"
	"gopkg.in/yaml.v3"
)

// Unassigned groups endpoints registered without a region.
const Unassigned = "unassigned"

const (
	earthRadiusKm = 6371.0
	kmPerMs       = 200.0
)

//go:embed coordinates.yaml
var coordinatesYAML []byte

type Coordinates struct {
	Lat float64 `yaml:"lat"`
	Lng float64 `yaml:"lng"`
}

type entry struct {
	Name        string `yaml:"name"`
	Coordinates `yaml:",inline"`
}

// Table is an ordered region lookup. Partial matches resolve to the first
// entry in table order.
type Table struct {
	entries []entry
}

// Default is the table shipped with the binary.
var Default = mustParse(coordinatesYAML)

func Parse(data []byte) (*Table, error) {
	var doc struct {
		Regions []entry `yaml:"regions"`
	}
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("failed to parse region table: %w", err)
	}
	for i, e := range doc.Regions {
		if e.Name == "" {
			return nil, fmt.Errorf("region table entry %d has no name", i)
		}
	}
	return &Table{entries: doc.Regions}, nil
}

func mustParse(data []byte) *Table {
	t, err := Parse(data)
	if err != nil {
		panic(err)
	}
	return t
}

// Lookup matches case-insensitively, first exactly and then by substring in
// either direction ("aws-eu-west-1a" finds "aws-eu-west-1").
func (t *Table) Lookup(region string) (Coordinates, bool) {
	needle := strings.ToLower(strings.TrimSpace(region))
	if needle == "" {
		return Coordinates{}, false
	}

	for _, e := range t.entries {
		if strings.ToLower(e.Name) == needle {
			return e.Coordinates, true
		}
	}
	for _, e := range t.entries {
		name := strings.ToLower(e.Name)
		if strings.Contains(name, needle) || strings.Contains(needle, name) {
			return e.Coordinates, true
		}
	}
	return Coordinates{}, false
}

func (t *Table) Len() int {
	return len(t.entries)
}

// EstimateLatencyMs converts great-circle distance into a rough one-way fibre
// latency: 1 ms per 200 km, rounded to 0.1 ms.
func EstimateLatencyMs(a, b Coordinates) float64 {
	lat1, lng1 := radians(a.Lat), radians(a.Lng)
	lat2, lng2 := radians(b.Lat), radians(b.Lng)

	dlat, dlng := lat2-lat1, lng2-lng1
	h := math.Pow(math.Sin(dlat/2), 2) + math.Cos(lat1)*math.Cos(lat2)*math.Pow(math.Sin(dlng/2), 2)
	distanceKm := earthRadiusKm * 2 * math.Asin(math.Sqrt(h))

	return math.Round(distanceKm/kmPerMs*10) / 10
}

func radians(deg float64) float64 {
	return deg * math.Pi / 180
}

// Summarize groups outcomes by region. Mean latency covers successful probes
// that measured one; the estimate is from origin and is omitted when either
// region is unknown to the table.
func (t *Table) Summarize(outcomes []models.EndpointOutcome, origin string) []models.RegionSummary {
	type acc struct {
		summary models.RegionSummary
		sum     float64
		n       int
	}

	byRegion := make(map[string]*acc)
	for _, o := range outcomes {
		region := o.Region
		if region == "" {
			region = Unassigned
		}

		a, ok := byRegion[region]
		if !ok {
			a = &acc{summary: models.RegionSummary{Region: region}}
			byRegion[region] = a
		}

		a.summary.Endpoints++
		if o.Succeeded() {
			a.summary.Succeeded++
			if o.Probe != nil && o.Probe.LatencyMs != nil {
				a.sum += *o.Probe.LatencyMs
				a.n++
			}
		}
	}

	originCoords, haveOrigin := t.Lookup(origin)

	out := make([]models.RegionSummary, 0, len(byRegion))
	for region, a := range byRegion {
		s := a.summary
		if a.n > 0 {
			mean := math.Round(a.sum/float64(a.n)*100) / 100
			s.MeanLatencyMs = &mean
		}
		if haveOrigin && region != Unassigned {
			if c, ok := t.Lookup(region); ok {
				est := EstimateLatencyMs(originCoords, c)
				s.EstimatedLatencyMs = &est
			}
		}
		out = append(out, s)
	}

	sort.Slice(out, func(i, j int) bool { return out[i].Region < out[j].Region })
	return out
}
