package config_test

import (
	"errors"
	"testing"
	"time"

	"github.com/smartystreets/goconvey/convey"

	"github.com/okian/circlematch/internal/config"
)

func valid() *config.Config {
	cfg := config.New()
	cfg.JWTSecret = "jwt"
	cfg.ProjectURL = "https://abcd.supabase.co"
	cfg.ModelAPIKey = "model"
	return cfg
}

func TestConfig_New(t *testing.T) {
	convey.Convey("Given a new config with default options", t, func() {
		cfg := config.New()

		convey.Convey("Then it should have sensible defaults", func() {
			convey.So(cfg.Addr, convey.ShouldEqual, ":9080")
			convey.So(cfg.DatabaseDriver, convey.ShouldEqual, "memory")
			convey.So(cfg.WorkerCount, convey.ShouldEqual, 16)
			convey.So(cfg.QueueSize, convey.ShouldEqual, 1024)
			convey.So(cfg.FanoutFailurePolicy, convey.ShouldEqual, "partial")
			convey.So(cfg.FanoutDeadline, convey.ShouldEqual, 5*time.Minute)
			convey.So(cfg.ScoringCallTimeout, convey.ShouldEqual, 30*time.Second)
			convey.So(cfg.RankingTotal, convey.ShouldEqual, "preference")
			convey.So(cfg.JWTAudience, convey.ShouldEqual, "authenticated")
		})

		convey.Convey("Then secrets must still be supplied", func() {
			convey.So(errors.Is(cfg.Validate(), config.ErrInvalidConfig), convey.ShouldBeTrue)
		})
	})
}

func TestConfig_Validate(t *testing.T) {
	convey.Convey("Given a complete config", t, func() {
		cfg := valid()
		convey.So(cfg.Validate(), convey.ShouldBeNil)

		convey.Convey("When the database needs a DSN but has none", func() {
			cfg.DatabaseDriver = "postgres"

			convey.Convey("Then validation fails", func() {
				err := cfg.Validate()
				convey.So(errors.Is(err, config.ErrInvalidConfig), convey.ShouldBeTrue)
				convey.So(err.Error(), convey.ShouldContainSubstring, "DatabaseDSN")
			})
		})

		convey.Convey("When enum fields hold unknown values", func() {
			cfg.FanoutFailurePolicy = "retry"
			cfg.RankingTotal = "weighted"
			cfg.LogFormat = "xml"

			convey.Convey("Then each is reported", func() {
				err := cfg.Validate()
				convey.So(err, convey.ShouldNotBeNil)
				convey.So(err.Error(), convey.ShouldContainSubstring, "FanoutFailurePolicy")
				convey.So(err.Error(), convey.ShouldContainSubstring, "RankingTotal")
				convey.So(err.Error(), convey.ShouldContainSubstring, "LogFormat")
			})
		})

		convey.Convey("When bounds are violated", func() {
			cfg.WorkerCount = 0
			cfg.ModelTemperature = 3
			cfg.FanoutDeadline = 0

			convey.Convey("Then validation fails", func() {
				convey.So(cfg.Validate(), convey.ShouldNotBeNil)
			})
		})
	})
}
