package main

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"

	"github.com/okian/matchday/internal/adapters/repository"
	service "github.com/okian/matchday/internal/app"
	"github.com/okian/matchday/internal/config"
	"github.com/smartystreets/goconvey/convey"
)

func TestMainFunction(t *testing.T) {
	convey.Convey("Given the main application", t, func() {
		ctx := context.Background()

		convey.Convey("When the configuration is invalid", func() {
			_ = os.Setenv("MATCHDAY_BROKER_BACKEND", "kafka")
			defer func() { _ = os.Unsetenv("MATCHDAY_BROKER_BACKEND") }()

			convey.Convey("Then run refuses to start", func() {
				err := run(ctx)
				convey.So(err, convey.ShouldNotBeNil)
				convey.So(err.Error(), convey.ShouldContainSubstring, "kafka")
			})
		})

		convey.Convey("When building the HTTP server over a service", func() {
			cfg := config.New(ctx)
			cfg.Addr = ":0"
			cfg.AdminToken = "s3cret"
			store, err := repository.Open(ctx, "sqlite", ":memory:", repository.WithPool(1, 1, 0))
			convey.So(err, convey.ShouldBeNil)
			defer func() { _ = store.Close() }()
			convey.So(store.Migrate(ctx), convey.ShouldBeNil)
			svc, err := service.New(cfg, store)
			convey.So(err, convey.ShouldBeNil)
			defer func() { _ = svc.Close() }()

			srv := newHTTPServer(cfg, svc)

			convey.Convey("Then the routes are wired", func() {
				convey.So(srv.Addr, convey.ShouldEqual, ":0")

				rec := httptest.NewRecorder()
				srv.Handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
				convey.So(rec.Code, convey.ShouldEqual, http.StatusOK)

				rec = httptest.NewRecorder()
				srv.Handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/admin/queues", nil))
				convey.So(rec.Code, convey.ShouldEqual, http.StatusUnauthorized)

				req := httptest.NewRequest(http.MethodGet, "/admin/queues", nil)
				req.Header.Set("Authorization", "Bearer s3cret")
				rec = httptest.NewRecorder()
				srv.Handler.ServeHTTP(rec, req)
				convey.So(rec.Code, convey.ShouldEqual, http.StatusOK)
			})
		})
	})
}
