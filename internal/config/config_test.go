package config_test

import (
	"runtime"
	"testing"

	"github.com/okian/gambit/internal/config"
	"github.com/smartystreets/goconvey/convey"
)

func TestConfig_New(t *testing.T) {
	convey.Convey("Given a new config with default options", t, func() {
		cfg := config.New()

		convey.Convey("Then it should have sensible defaults", func() {
			convey.So(cfg.LogLevel, convey.ShouldEqual, "info")
			convey.So(cfg.Addr, convey.ShouldEqual, ":9080")
			convey.So(cfg.DBPath, convey.ShouldEqual, "gambit.db")
			convey.So(cfg.QueueSize, convey.ShouldEqual, 100_000)
			convey.So(cfg.WorkerCount, convey.ShouldEqual, runtime.NumCPU()*4)
			convey.So(cfg.DedupeSize, convey.ShouldEqual, 50_000)
			convey.So(cfg.EmbedderMode, convey.ShouldEqual, "local")
			convey.So(cfg.EmbedModel, convey.ShouldEqual, "local-hash")
			convey.So(cfg.EmbedTimeoutMS, convey.ShouldEqual, 30_000)
			convey.So(cfg.EmbedDimension, convey.ShouldEqual, 256)
			convey.So(cfg.IndexMode, convey.ShouldEqual, "graph")
			convey.So(cfg.IndexMaxNeighbors, convey.ShouldEqual, 16)
			convey.So(cfg.IndexEfSearch, convey.ShouldEqual, 64)
			convey.So(cfg.IndexRebuildSeconds, convey.ShouldEqual, 30)
			convey.So(cfg.SearchMaxLimit, convey.ShouldEqual, 100)
		})
	})
}
