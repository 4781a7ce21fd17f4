package httpserver

import (
	"fmt"
	"net/http"
	"testing"
)

func BenchmarkHandleSubmitRating(b *testing.B) {
	srv := buildTestServer(b)
	_, bearer := srv.signup(b, "bench")
	movie := srv.createMovie(b, bearer, "Benchmark Movie", 2020)
	path := fmt.Sprintf("/api/movies/%d/ratings", movie.ID)

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		rec := srv.do(http.MethodPost, path, bearer, fmt.Sprintf(`{"rating":%d}`, i%5+1))
		if rec.Code != http.StatusCreated && rec.Code != http.StatusOK {
			b.Fatalf("unexpected status %d", rec.Code)
		}
	}
}

func BenchmarkHandleListMovies(b *testing.B) {
	srv := buildTestServer(b)
	_, bearer := srv.signup(b, "bench")
	for i := 0; i < 50; i++ {
		srv.createMovie(b, bearer, fmt.Sprintf("Movie %d", i), 2000+i%20)
	}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		rec := srv.do(http.MethodGet, "/api/movies?genre=drama&min_year=2005&limit=20", "", nil)
		if rec.Code != http.StatusOK {
			b.Fatalf("unexpected status %d", rec.Code)
		}
	}
}
