package main

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/smartystreets/goconvey/convey"

	"github.com/okian/circlematch/internal/config"
	"github.com/okian/circlematch/pkg/logger"
)

const seedYAML = `
circles:
  - id: c1
    name: Climbers
members:
  - circle_id: c1
    user_id: u1
profiles:
  - id: u1
    username: ana
events:
  - id: e1
    circle_id: c1
    title: Gym night
    start_time: "2025-04-12T18:00:00Z"
`

func testConfig(t *testing.T) *config.Config {
	path := filepath.Join(t.TempDir(), "seed.yaml")
	if err := os.WriteFile(path, []byte(seedYAML), 0o600); err != nil {
		t.Fatal(err)
	}
	cfg := config.New()
	cfg.JWTSecret = "jwt"
	cfg.ProjectURL = "https://abcd.supabase.co"
	cfg.ModelAPIKey = "model"
	cfg.ModelBaseURL = "http://127.0.0.1:1"
	cfg.APIKey = "key"
	cfg.DatabaseSeedFile = path
	cfg.WorkerCount = 2
	return cfg
}

func TestBuild(t *testing.T) {
	_ = logger.Init()

	convey.Convey("Given a memory-backed configuration with a seed file", t, func() {
		ctx := context.Background()
		cfg := testConfig(t)

		convey.Convey("When the application is built", func() {
			srv, svc, err := build(ctx, cfg)
			convey.So(err, convey.ShouldBeNil)
			defer svc.Stop()

			convey.Convey("Then the server is configured from the config", func() {
				convey.So(srv.Addr, convey.ShouldEqual, ":9080")
				convey.So(srv.WriteTimeout, convey.ShouldEqual, 5*time.Minute+writeSlack)
				convey.So(svc.GetStats()["started"], convey.ShouldEqual, true)
			})

			convey.Convey("Then seeded events are served", func() {
				req := httptest.NewRequest(http.MethodGet, "/events", http.NoBody)
				req.Header.Set("X-API-KEY", "key")
				w := httptest.NewRecorder()
				srv.Handler.ServeHTTP(w, req)

				convey.So(w.Code, convey.ShouldEqual, http.StatusOK)
				convey.So(w.Body.String(), convey.ShouldContainSubstring, "Gym night")
			})

			convey.Convey("Then health and docs routes are mounted", func() {
				for _, path := range []string{"/healthz", "/api-docs", "/openapi.yaml"} {
					w := httptest.NewRecorder()
					srv.Handler.ServeHTTP(w, httptest.NewRequest(http.MethodGet, path, http.NoBody))
					convey.So(w.Code, convey.ShouldEqual, http.StatusOK)
				}
			})
		})

		convey.Convey("When the seed file is missing", func() {
			cfg.DatabaseSeedFile = filepath.Join(t.TempDir(), "missing.yaml")
			_, _, err := build(ctx, cfg)

			convey.Convey("Then build fails", func() {
				convey.So(err, convey.ShouldNotBeNil)
				convey.So(err.Error(), convey.ShouldContainSubstring, "load seed file")
			})
		})

		convey.Convey("When the project url has no host", func() {
			cfg.ProjectURL = "abcd"
			_, _, err := build(ctx, cfg)
			convey.So(err, convey.ShouldNotBeNil)
		})
	})
}

func TestUpdateSystemMetrics(t *testing.T) {
	convey.Convey("Given the metrics registry", t, func() {
		convey.So(updateSystemMetrics, convey.ShouldNotPanic)
	})
}
