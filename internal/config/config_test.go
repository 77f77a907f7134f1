package config_test

import (
	"context"
	"testing"

	"github.com/smartystreets/goconvey/convey"

	"github.com/lumora/collector/internal/config"
)

func TestConfig_New(t *testing.T) {
	convey.Convey("Given a new config with default options", t, func() {
		cfg := config.New()

		convey.Convey("Then it should have sensible defaults", func() {
			convey.So(cfg.Addr, convey.ShouldEqual, "127.0.0.1:8745")
			convey.So(cfg.LogLevel, convey.ShouldEqual, "info")
			convey.So(cfg.ValidationMode, convey.ShouldEqual, "lenient")
			convey.So(cfg.Queue.Size, convey.ShouldEqual, 1000)
			convey.So(cfg.Queue.Policy, convey.ShouldEqual, "reject-new")
			convey.So(cfg.Store.BatchSize, convey.ShouldEqual, 100)
			convey.So(cfg.Store.FlushMS, convey.ShouldEqual, 1000)
			convey.So(cfg.Priority.DebounceMS, convey.ShouldEqual, 2000)
			convey.So(cfg.Priority.DropP2QueueRatio, convey.ShouldEqual, 0.8)
			convey.So(cfg.Priority.DropP1QueueRatio, convey.ShouldEqual, 0.95)
			convey.So(cfg.Sessionizer.GapMinutes, convey.ShouldEqual, 15)
			convey.So(cfg.Routine.NMin, convey.ShouldEqual, 2)
			convey.So(cfg.Routine.NMax, convey.ShouldEqual, 5)
			convey.So(cfg.Handoff.MaxSizeBytes, convey.ShouldEqual, 50*1024)
			convey.So(cfg.Retention.Enabled, convey.ShouldBeTrue)
			convey.So(cfg.ActivityDetail.Enabled, convey.ShouldBeFalse)
		})
	})
}

// Each override scenario lives in its own test function because t.Setenv
// scopes the variable to the whole function, not a single Convey block.
func TestConfig_Load(t *testing.T) {
	convey.Convey("Given the loader with no file or env overrides", t, func() {
		cfg, err := config.Load(context.Background())

		convey.Convey("Then it should produce the defaults", func() {
			convey.So(err, convey.ShouldBeNil)
			convey.So(cfg.Addr, convey.ShouldEqual, "127.0.0.1:8745")
			convey.So(cfg.Queue.Policy, convey.ShouldEqual, "reject-new")
		})
	})
}

func TestConfig_LoadEnvOverrides(t *testing.T) {
	t.Setenv("COLLECTOR_ADDR", "127.0.0.1:9999")
	t.Setenv("COLLECTOR_QUEUE__POLICY", "drop-oldest")
	t.Setenv("COLLECTOR_SESSIONIZER__GAP_MINUTES", "30")

	convey.Convey("Given env overrides with the COLLECTOR_ prefix", t, func() {
		cfg, err := config.Load(context.Background())

		convey.Convey("Then they should win over the defaults", func() {
			convey.So(err, convey.ShouldBeNil)
			convey.So(cfg.Addr, convey.ShouldEqual, "127.0.0.1:9999")
			convey.So(cfg.Queue.Policy, convey.ShouldEqual, "drop-oldest")
			convey.So(cfg.Sessionizer.GapMinutes, convey.ShouldEqual, 30)
		})
	})
}

func TestConfig_LoadInvalidQueuePolicy(t *testing.T) {
	t.Setenv("COLLECTOR_QUEUE__POLICY", "spill-to-disk")

	convey.Convey("Given an invalid queue policy in the environment", t, func() {
		_, err := config.Load(context.Background())

		convey.Convey("Then loading should fail", func() {
			convey.So(err, convey.ShouldWrap, config.ErrInvalidQueuePolicy)
		})
	})
}

func TestConfig_LoadInvalidValidationMode(t *testing.T) {
	t.Setenv("COLLECTOR_VALIDATION_MODE", "paranoid")

	convey.Convey("Given an invalid validation mode in the environment", t, func() {
		_, err := config.Load(context.Background())

		convey.Convey("Then loading should fail", func() {
			convey.So(err, convey.ShouldWrap, config.ErrInvalidValidationMode)
		})
	})
}

func TestConfig_LoadInvalidDropRatios(t *testing.T) {
	t.Setenv("COLLECTOR_PRIORITY__DROP_P2_QUEUE_RATIO", "0.9")
	t.Setenv("COLLECTOR_PRIORITY__DROP_P1_QUEUE_RATIO", "0.5")

	convey.Convey("Given drop ratios where P1 sheds before P2", t, func() {
		_, err := config.Load(context.Background())

		convey.Convey("Then loading should fail", func() {
			convey.So(err, convey.ShouldWrap, config.ErrInvalidDropRatio)
		})
	})
}
