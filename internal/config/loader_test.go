package config_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/smartystreets/goconvey/convey"

	"github.com/okian/circlematch/internal/config"
)

var secrets = map[string]string{
	"CIRCLEMATCH_JWT_SECRET":    "jwt",
	"CIRCLEMATCH_PROJECT_URL":   "https://abcd.supabase.co",
	"CIRCLEMATCH_MODEL_API_KEY": "model",
}

func setEnv(t *testing.T, vars map[string]string) {
	for k, v := range vars {
		t.Setenv(k, v)
	}
}

func clearConfigEnvVars() {
	for _, kv := range os.Environ() {
		if strings.HasPrefix(kv, config.EnvPrefix) {
			_ = os.Unsetenv(strings.SplitN(kv, "=", 2)[0])
		}
	}
}

func TestConfigLoader(t *testing.T) {
	convey.Convey("Given a config loader", t, func() {
		ctx := context.Background()
		clearConfigEnvVars()
		convey.Reset(clearConfigEnvVars)

		convey.Convey("When loading with only the required secrets", func() {
			setEnv(t, secrets)
			cfg, err := config.Load(ctx)

			convey.Convey("Then defaults fill in the rest", func() {
				convey.So(err, convey.ShouldBeNil)
				convey.So(cfg.Addr, convey.ShouldEqual, ":9080")
				convey.So(cfg.JWTSecret, convey.ShouldEqual, "jwt")
				convey.So(cfg.DatabaseDriver, convey.ShouldEqual, "memory")
			})
		})

		convey.Convey("When loading with environment overrides", func() {
			setEnv(t, secrets)
			setEnv(t, map[string]string{
				"CIRCLEMATCH_ADDR":                  ":8080",
				"CIRCLEMATCH_WORKER_COUNT":          "4",
				"CIRCLEMATCH_FANOUT_DEADLINE":       "90s",
				"CIRCLEMATCH_FANOUT_FAILURE_POLICY": "fail_fast",
				"CIRCLEMATCH_MODEL_TEMPERATURE":     "0.5",
				"CIRCLEMATCH_DATABASE_AUTO_MIGRATE": "true",
			})
			cfg, err := config.Load(ctx)

			convey.Convey("Then env values win and are converted", func() {
				convey.So(err, convey.ShouldBeNil)
				convey.So(cfg.Addr, convey.ShouldEqual, ":8080")
				convey.So(cfg.WorkerCount, convey.ShouldEqual, 4)
				convey.So(cfg.FanoutDeadline, convey.ShouldEqual, 90*time.Second)
				convey.So(cfg.FanoutFailurePolicy, convey.ShouldEqual, "fail_fast")
				convey.So(cfg.ModelTemperature, convey.ShouldEqual, 0.5)
				convey.So(cfg.DatabaseAutoMigrate, convey.ShouldBeTrue)
			})
		})

		convey.Convey("When loading from a YAML file", func() {
			path := filepath.Join(t.TempDir(), "config.yaml")
			yamlContent := `
addr: ":9090"
database_driver: sqlite
database_dsn: "file:circlematch.db"
scoring_call_timeout: 10s
ranking_total: all_metrics
submit_rate_limit: 30
`
			convey.So(os.WriteFile(path, []byte(yamlContent), 0o600), convey.ShouldBeNil)
			setEnv(t, secrets)
			setEnv(t, map[string]string{config.EnvFile: path, "CIRCLEMATCH_ADDR": ":7070"})

			cfg, err := config.Load(ctx)

			convey.Convey("Then file values apply and env still wins", func() {
				convey.So(err, convey.ShouldBeNil)
				convey.So(cfg.Addr, convey.ShouldEqual, ":7070")
				convey.So(cfg.DatabaseDriver, convey.ShouldEqual, "sqlite")
				convey.So(cfg.DatabaseDSN, convey.ShouldEqual, "file:circlematch.db")
				convey.So(cfg.ScoringCallTimeout, convey.ShouldEqual, 10*time.Second)
				convey.So(cfg.RankingTotal, convey.ShouldEqual, "all_metrics")
				convey.So(cfg.SubmitRateLimit, convey.ShouldEqual, 30)
			})
		})

		convey.Convey("When the config file does not exist", func() {
			setEnv(t, secrets)
			setEnv(t, map[string]string{config.EnvFile: filepath.Join(t.TempDir(), "missing.yaml")})
			_, err := config.Load(ctx)

			convey.Convey("Then loading fails", func() {
				convey.So(errors.Is(err, config.ErrLoadConfig), convey.ShouldBeTrue)
			})
		})

		convey.Convey("When a value fails validation", func() {
			setEnv(t, secrets)
			setEnv(t, map[string]string{"CIRCLEMATCH_DATABASE_DRIVER": "mysql"})
			_, err := config.Load(ctx)

			convey.Convey("Then ErrInvalidConfig is returned", func() {
				convey.So(errors.Is(err, config.ErrInvalidConfig), convey.ShouldBeTrue)
			})
		})
	})
}
