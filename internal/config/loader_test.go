package config_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/okian/matchday/internal/config"
	"github.com/smartystreets/goconvey/convey"
)

var configEnvVars = []string{
	"MATCHDAY_CONFIG",
	"MATCHDAY_ENV_FILE",
	"MATCHDAY_ADDR",
	"MATCHDAY_BROKER_BACKEND",
	"MATCHDAY_QUEUE_BREAKER_THRESHOLD",
	"MATCHDAY_RECONCILE_LOOKBACK",
	"MATCHDAY_UPSTREAM_RATE_PER_SECOND",
	"MATCHDAY_ADMIN_TOKEN",
}

func clearConfigEnvVars() {
	for _, k := range configEnvVars {
		_ = os.Unsetenv(k)
	}
}

func TestConfigLoader(t *testing.T) {
	convey.Convey("Given a config loader", t, func() {
		ctx := context.Background()
		clearConfigEnvVars()
		defer clearConfigEnvVars()

		convey.Convey("When loading with defaults only", func() {
			cfg, err := config.Load(ctx)

			convey.Convey("Then it should load successfully with defaults", func() {
				convey.So(err, convey.ShouldBeNil)
				convey.So(cfg.Addr, convey.ShouldEqual, ":9080")
				convey.So(cfg.Queue("live").Concurrency, convey.ShouldEqual, 10)
			})
		})

		convey.Convey("When loading with environment variables", func() {
			_ = os.Setenv("MATCHDAY_ADDR", ":8080")
			_ = os.Setenv("MATCHDAY_QUEUE_BREAKER_THRESHOLD", "7")
			_ = os.Setenv("MATCHDAY_RECONCILE_LOOKBACK", "720h")
			_ = os.Setenv("MATCHDAY_UPSTREAM_RATE_PER_SECOND", "2.5")

			cfg, err := config.Load(ctx)

			convey.Convey("Then env vars override defaults", func() {
				convey.So(err, convey.ShouldBeNil)
				convey.So(cfg.Addr, convey.ShouldEqual, ":8080")
				convey.So(cfg.QueueBreakerThreshold, convey.ShouldEqual, 7)
				convey.So(cfg.ReconcileLookback, convey.ShouldEqual, 30*24*time.Hour)
				convey.So(cfg.UpstreamRatePerSecond, convey.ShouldEqual, 2.5)
			})
		})

		convey.Convey("When loading with a YAML file", func() {
			dir := t.TempDir()
			path := filepath.Join(dir, "matchday.yaml")
			yaml := []byte(`
addr: ":7070"
breaker_cooldown: 90s
queues:
  forecasts:
    concurrency: 4
`)
			convey.So(os.WriteFile(path, yaml, 0o600), convey.ShouldBeNil)
			_ = os.Setenv("MATCHDAY_CONFIG", path)

			cfg, err := config.Load(ctx)

			convey.Convey("Then file values apply and queue defaults fill the gaps", func() {
				convey.So(err, convey.ShouldBeNil)
				convey.So(cfg.Addr, convey.ShouldEqual, ":7070")
				convey.So(cfg.BreakerCooldown, convey.ShouldEqual, 90*time.Second)
				q := cfg.Queue("forecasts")
				convey.So(q.Concurrency, convey.ShouldEqual, 4)
				convey.So(q.Attempts, convey.ShouldEqual, 3)
				convey.So(q.Lock, convey.ShouldEqual, 10*time.Minute)
			})

			convey.Convey("And env vars still win over the file", func() {
				_ = os.Setenv("MATCHDAY_ADDR", ":6060")
				cfg, err := config.Load(ctx)
				convey.So(err, convey.ShouldBeNil)
				convey.So(cfg.Addr, convey.ShouldEqual, ":6060")
			})
		})

		convey.Convey("When loading with an explicit .env file", func() {
			dir := t.TempDir()
			path := filepath.Join(dir, "test.env")
			convey.So(os.WriteFile(path, []byte("MATCHDAY_ADMIN_TOKEN=s3cret\n"), 0o600), convey.ShouldBeNil)
			_ = os.Setenv("MATCHDAY_ENV_FILE", path)

			cfg, err := config.Load(ctx)

			convey.Convey("Then its values are picked up", func() {
				convey.So(err, convey.ShouldBeNil)
				convey.So(cfg.AdminToken, convey.ShouldEqual, "s3cret")
			})
		})

		convey.Convey("When the config file is missing", func() {
			_ = os.Setenv("MATCHDAY_CONFIG", "/nonexistent/matchday.yaml")
			_, err := config.Load(ctx)

			convey.Convey("Then a load error is returned", func() {
				convey.So(errors.Is(err, config.ErrLoadConfig), convey.ShouldBeTrue)
			})
		})

		convey.Convey("When the values are invalid", func() {
			_ = os.Setenv("MATCHDAY_BROKER_BACKEND", "kafka")
			_, err := config.Load(ctx)

			convey.Convey("Then validation rejects them", func() {
				convey.So(errors.Is(err, config.ErrInvalidConfig), convey.ShouldBeTrue)
			})
		})
	})
}
