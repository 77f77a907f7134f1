package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	. "github.com/smartystreets/goconvey/convey"
)

func TestManagerCreation(t *testing.T) {
	Convey("Given manager creation", t, func() {
		Convey("When creating with default options", func() {
			manager := NewManager()

			Convey("Then it should be created with its own registry", func() {
				So(manager, ShouldNotBeNil)
				So(manager.Handler(), ShouldNotBeNil)
			})
		})

		Convey("When creating with custom options", func() {
			registry := prometheus.NewRegistry()
			manager := NewManager(
				WithNamespace("test"),
				WithSubsystem("unit"),
				WithRegistry(registry),
			)

			Convey("Then it should be created successfully", func() {
				So(manager, ShouldNotBeNil)
			})
		})

		Convey("When creating with empty namespace and nil registry", func() {
			manager := NewManager(WithNamespace(""), WithRegistry(nil))

			Convey("Then the defaults should survive", func() {
				So(manager, ShouldNotBeNil)
				So(manager.Handler(), ShouldNotBeNil)
			})
		})
	})
}

func TestManagerRecording(t *testing.T) {
	Convey("Given a fresh manager", t, func() {
		m := NewManager()

		Convey("When recording pipeline counters", func() {
			m.RecordIngestReceived(3)
			m.RecordIngestOK(2)
			m.RecordIngestInvalid()
			m.RecordPriority("P0")
			m.RecordPriority("P1")
			m.RecordPriority("P1")
			m.RecordPriority("")
			m.RecordStoreInsertOK()
			m.RecordStoreInsertFail()
			m.RecordDrop("debounce")
			m.UpdateQueueDepth(7)
			m.RecordFlushLatency(12 * time.Millisecond)

			snap := m.Snapshot(4096)

			Convey("Then the snapshot should mirror them", func() {
				So(snap["ingest.received_total"], ShouldEqual, int64(3))
				So(snap["ingest.ok_total"], ShouldEqual, int64(2))
				So(snap["ingest.invalid_total"], ShouldEqual, int64(1))
				So(snap["store.insert_ok_total"], ShouldEqual, int64(1))
				So(snap["store.insert_fail_total"], ShouldEqual, int64(1))
				So(snap["queue.depth"], ShouldEqual, int64(7))
				So(snap["db_size_bytes"], ShouldEqual, int64(4096))

				priority, ok := snap["priority"].(map[string]int64)
				So(ok, ShouldBeTrue)
				So(priority["P0"], ShouldEqual, 1)
				So(priority["P1"], ShouldEqual, 2)
				So(priority, ShouldNotContainKey, "")
			})

			Convey("And derived drops should be counted by reason", func() {
				reasons, ok := snap["drop_reasons"].(map[string]int64)
				So(ok, ShouldBeTrue)
				So(reasons["schema"], ShouldEqual, 1)
				So(reasons["store_fail"], ShouldEqual, 1)
				So(reasons["debounce"], ShouldEqual, 1)
				So(snap["pipeline.dropped_total"], ShouldEqual, int64(3))
			})
		})

		Convey("When recording the last event timestamp", func() {
			ts := time.Date(2026, 3, 14, 9, 26, 53, 0, time.UTC)
			m.SetLastEventTS(time.Time{})
			m.SetLastEventTS(ts)

			Convey("Then the snapshot should carry it in RFC3339", func() {
				snap := m.Snapshot(0)
				So(snap["last_event_ts"], ShouldEqual, "2026-03-14T09:26:53Z")
			})
		})

		Convey("When recording privacy outcomes", func() {
			m.RecordPrivacyRedacted()
			m.RecordPrivacyDenied()

			Convey("Then no drop should be derived from the deny counter", func() {
				// The deny action may strip instead of drop, so the drop
				// is the privacy guard's call, not the manager's.
				snap := m.Snapshot(0)
				So(snap["privacy.redacted_total"], ShouldEqual, int64(1))
				So(snap["privacy.denied_total"], ShouldEqual, int64(1))
				So(snap["pipeline.dropped_total"], ShouldEqual, int64(0))
			})
		})
	})
}

func TestManagerConcurrency(t *testing.T) {
	Convey("Given concurrent recording", t, func() {
		m := NewManager()
		done := make(chan bool, 10)

		for i := 0; i < 10; i++ {
			go func() {
				for j := 0; j < 100; j++ {
					m.RecordIngestReceived(1)
					m.RecordPriority("P1")
					m.RecordDrop("debounce")
					m.UpdateQueueDepth(j)
				}
				done <- true
			}()
		}
		for i := 0; i < 10; i++ {
			<-done
		}

		Convey("Then the counters should be exact", func() {
			snap := m.Snapshot(0)
			So(snap["ingest.received_total"], ShouldEqual, int64(1000))
			So(snap["pipeline.dropped_total"], ShouldEqual, int64(1000))
			priority := snap["priority"].(map[string]int64)
			So(priority["P1"], ShouldEqual, 1000)
		})
	})
}
