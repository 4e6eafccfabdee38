package regions

import (
	_ "embed"
	"encoding/json"
	"fmt"
	"log"
	"strings"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

// Separator joins encoded region records.
const Separator = "$"

//go:embed region.schema.json
var regionSchemaJSON string

var (
	schemaOnce sync.Once
	schema     *jsonschema.Schema
	schemaErr  error
)

func recordSchema() (*jsonschema.Schema, error) {
	schemaOnce.Do(func() {
		schema, schemaErr = jsonschema.CompileString("region.schema.json", regionSchemaJSON)
	})
	return schema, schemaErr
}

// Store is an ordered region list. Match returns the first region that
// contains a position.
type Store struct {
	regions []RegionColorConfig
}

func NewStore(rs ...RegionColorConfig) *Store {
	s := &Store{}
	for _, r := range rs {
		s.Add(r)
	}
	return s
}

func (s *Store) Len() int { return len(s.regions) }

// All returns a copy of the regions in match order.
func (s *Store) All() []RegionColorConfig {
	return append([]RegionColorConfig(nil), s.regions...)
}

func (s *Store) Get(i int) (RegionColorConfig, bool) {
	if i < 0 || i >= len(s.regions) {
		return RegionColorConfig{}, false
	}
	return s.regions[i], true
}

// Add appends r and returns its position.
func (s *Store) Add(r RegionColorConfig) int {
	r.Normalize()
	s.regions = append(s.regions, r)
	return len(s.regions) - 1
}

func (s *Store) Update(i int, r RegionColorConfig) bool {
	if i < 0 || i >= len(s.regions) {
		return false
	}
	r.Normalize()
	s.regions[i] = r
	return true
}

func (s *Store) Remove(i int) bool {
	if i < 0 || i >= len(s.regions) {
		return false
	}
	s.regions = append(s.regions[:i], s.regions[i+1:]...)
	return true
}

// Move changes the priority of region i to position j.
func (s *Store) Move(i, j int) bool {
	n := len(s.regions)
	if i < 0 || i >= n || j < 0 || j >= n {
		return false
	}
	r := s.regions[i]
	s.regions = append(s.regions[:i], s.regions[i+1:]...)
	s.regions = append(s.regions[:j], append([]RegionColorConfig{r}, s.regions[j:]...)...)
	return true
}

func (s *Store) Clear() { s.regions = nil }

// Match returns the first region containing (lat, lon).
func (s *Store) Match(lat, lon float64) (RegionColorConfig, bool) {
	if s == nil {
		return RegionColorConfig{}, false
	}
	for _, r := range s.regions {
		if r.ContainsPosition(lat, lon) {
			return r, true
		}
	}
	return RegionColorConfig{}, false
}

// Encode writes one JSON object per region joined by Separator.
func (s *Store) Encode() string {
	parts := make([]string, 0, len(s.regions))
	for _, r := range s.regions {
		b, err := json.Marshal(r)
		if err != nil {
			continue
		}
		// A separator can only appear inside a JSON string, where the
		// unicode escape decodes back to the same text.
		parts = append(parts, strings.ReplaceAll(string(b), Separator, `\u0024`))
	}
	return strings.Join(parts, Separator)
}

// Decode parses text written by Encode. Records that fail to parse or
// validate are logged and skipped; the returned errors describe them.
func Decode(text string, logger *log.Logger) (*Store, []error) {
	s := &Store{}
	var errs []error
	for i, part := range strings.Split(text, Separator) {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		r, err := decodeRecord(part)
		if err != nil {
			err = fmt.Errorf("region %d: %w", i, err)
			errs = append(errs, err)
			if logger != nil {
				logger.Printf("skip %v", err)
			}
			continue
		}
		s.Add(r)
	}
	return s, errs
}

func decodeRecord(raw string) (RegionColorConfig, error) {
	var r RegionColorConfig
	var doc any
	if err := json.Unmarshal([]byte(raw), &doc); err != nil {
		return r, err
	}
	sch, err := recordSchema()
	if err != nil {
		return r, fmt.Errorf("schema: %w", err)
	}
	if err := sch.Validate(doc); err != nil {
		return r, err
	}
	if err := json.Unmarshal([]byte(raw), &r); err != nil {
		return r, err
	}
	return r, nil
}
