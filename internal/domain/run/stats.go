package run

import (
	"sort"
	"sync"
)

// Counter names for every per-stage outcome the job reports. Progressive
// values are observable while the run is in flight and summarized at the end.
const (
	StatPeopleInserted      = "people_inserted"
	StatPeopleUpdated       = "people_updated"
	StatPeopleSkipped       = "people_skipped"
	StatMoviesInserted      = "movies_inserted"
	StatMoviesUpdated       = "movies_updated"
	StatMoviesSkipped       = "movies_skipped"
	StatSeasonsUpserted     = "seasons_upserted"
	StatSeasonsSkipped      = "seasons_skipped"
	StatCountriesCreated    = "countries_created"
	StatGenresCreated       = "genres_created"
	StatDistributorsCreated = "distributors_created"
	StatCountriesLinked     = "movie_countries_linked"
	StatGenresLinked        = "movie_genres_linked"
	StatPeopleLinked        = "movie_people_linked"
	StatDistributorsLinked  = "movie_distributors_linked"
	StatFactsInserted       = "movie_facts_inserted"
	StatVideosInserted      = "movie_videos_inserted"
	StatEpisodesUpserted    = "episodes_upserted"
	StatSearchIndexed       = "search_indexed"
	StatTrendingCached      = "trending_cached"
)

// Stats aggregates per-run counters. A single instance is owned by the
// coordinator and shared by reference with resolvers and loaders, so separate
// runs and tests stay fully isolated.
type Stats struct {
	mu       sync.Mutex
	counts   map[string]int64
	observer func(name string, delta int64)
}

func NewStats() *Stats {
	return &Stats{counts: make(map[string]int64)}
}

// SetObserver registers a hook invoked on every increment, used to mirror
// counters into the metrics registry.
func (s *Stats) SetObserver(fn func(name string, delta int64)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.observer = fn
}

func (s *Stats) Add(name string, delta int64) {
	s.mu.Lock()
	s.counts[name] += delta
	observer := s.observer
	s.mu.Unlock()
	if observer != nil {
		observer(name, delta)
	}
}

func (s *Stats) Inc(name string) { s.Add(name, 1) }

func (s *Stats) Get(name string) int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.counts[name]
}

// Snapshot returns counter names and values in stable order for the summary.
func (s *Stats) Snapshot() []Entry {
	s.mu.Lock()
	defer s.mu.Unlock()
	entries := make([]Entry, 0, len(s.counts))
	for name, value := range s.counts {
		entries = append(entries, Entry{Name: name, Value: value})
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Name < entries[j].Name })
	return entries
}

type Entry struct {
	Name  string
	Value int64
}
