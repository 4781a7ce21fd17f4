package httpserver

import (
	"net/url"
	"testing"
)

func FuzzBuildMovieFilters(f *testing.F) {
	seeds := []string{
		"search=Inception&genre=Action&min_year=2010",
		"min_year=abc",
		"limit=200",
		"page=2147483647&limit=100",
		"",
	}
	for _, seed := range seeds {
		f.Add(seed)
	}

	f.Fuzz(func(t *testing.T, raw string) {
		values, err := url.ParseQuery(raw)
		if err != nil {
			return
		}
		filters, p, err := buildMovieFilters(values)
		if err != nil {
			return
		}
		if p.Page < 1 || p.Limit < 1 || p.Limit > 100 {
			t.Fatalf("paging out of bounds: %+v", p)
		}
		if filters.Skip < 0 {
			t.Fatalf("negative skip %d for %q", filters.Skip, raw)
		}
	})
}
