package normalize

import (
	"testing"
	"time"

	"github.com/google/uuid"
	. "github.com/smartystreets/goconvey/convey"

	"github.com/lumora/collector/internal/domain/model"
)

var fixedNow = time.Date(2026, 5, 2, 10, 0, 0, 0, time.UTC)

func newLenient() *Normalizer {
	return New(Lenient, WithClock(func() time.Time { return fixedNow }))
}

func TestParseMode(t *testing.T) {
	Convey("Given mode strings", t, func() {
		for input, want := range map[string]Mode{
			"":        Lenient,
			"lenient": Lenient,
			"Strict":  Strict,
			" strict": Strict,
		} {
			mode, err := ParseMode(input)
			So(err, ShouldBeNil)
			So(mode, ShouldEqual, want)
		}

		_, err := ParseMode("pedantic")
		So(err, ShouldWrap, ErrUnknownMode)
	})
}

func TestNormalizeLenient(t *testing.T) {
	Convey("Given a lenient normalizer", t, func() {
		n := newLenient()

		Convey("When the record is complete", func() {
			id := uuid.NewString()
			envelope, err := n.Normalize(map[string]any{
				"schema_version": "1.0",
				"event_id":       id,
				"ts":             "2026-05-02T09:58:31Z",
				"source":         "office",
				"app":            "excel",
				"event_type":     "excel.file_opened",
				"priority":       "p0",
				"resource":       map[string]any{"type": "file", "id": "q3.xlsx"},
				"payload":        map[string]any{"sheet": "Sheet1"},
				"privacy":        map[string]any{"pii_level": "low"},
			})

			Convey("Then every field should be carried through", func() {
				So(err, ShouldBeNil)
				So(envelope.EventID, ShouldEqual, id)
				So(envelope.TS.Equal(time.Date(2026, 5, 2, 9, 58, 31, 0, time.UTC)), ShouldBeTrue)
				So(envelope.App, ShouldEqual, "excel")
				So(envelope.EventType, ShouldEqual, "excel.file_opened")
				So(envelope.Priority, ShouldEqual, model.P0)
				So(envelope.Resource.ID, ShouldEqual, "q3.xlsx")
				So(envelope.Payload["sheet"], ShouldEqual, "Sheet1")
				So(envelope.Privacy.PIILevel, ShouldEqual, "low")
			})
		})

		Convey("When optional fields are missing", func() {
			envelope, err := n.Normalize(map[string]any{
				"source":     "os",
				"app":        "excel",
				"event_type": "os.file_saved",
			})

			Convey("Then they are defaulted", func() {
				So(err, ShouldBeNil)
				So(envelope.SchemaVersion, ShouldEqual, model.DefaultSchemaVersion)
				_, parseErr := uuid.Parse(envelope.EventID)
				So(parseErr, ShouldBeNil)
				So(envelope.TS.Equal(fixedNow), ShouldBeTrue)
				So(envelope.Priority, ShouldEqual, model.P1)
				So(envelope.Resource.Type, ShouldEqual, "unknown")
				So(envelope.Payload, ShouldNotBeNil)
				So(envelope.Privacy.PIILevel, ShouldEqual, "unknown")
			})
		})

		Convey("When the timestamp is numeric epoch seconds", func() {
			envelope, err := n.Normalize(map[string]any{
				"source": "os", "app": "excel", "event_type": "t",
				"ts": float64(1767349200),
			})

			So(err, ShouldBeNil)
			So(envelope.TS.Unix(), ShouldEqual, 1767349200)
		})

		Convey("When the timestamp is garbage", func() {
			envelope, err := n.Normalize(map[string]any{
				"source": "os", "app": "excel", "event_type": "t",
				"ts": "yesterday-ish",
			})

			Convey("Then lenient mode falls back to the clock", func() {
				So(err, ShouldBeNil)
				So(envelope.TS.Equal(fixedNow), ShouldBeTrue)
			})
		})

		Convey("When the record is nil", func() {
			_, err := n.Normalize(nil)
			So(err, ShouldWrap, ErrSchema)
		})

		Convey("When the raw input is preserved", func() {
			raw := map[string]any{"source": "os", "app": "excel", "event_type": "t", "extra": 1}
			envelope, err := n.Normalize(raw)

			So(err, ShouldBeNil)
			So(envelope.Raw["extra"], ShouldEqual, 1)
		})
	})
}

func TestNormalizeStrict(t *testing.T) {
	Convey("Given a strict normalizer", t, func() {
		n := New(Strict)

		complete := func() map[string]any {
			return map[string]any{
				"schema_version": "1.0",
				"event_id":       uuid.NewString(),
				"ts":             "2026-05-02T09:58:31Z",
				"source":         "office",
				"app":            "excel",
				"event_type":     "excel.file_opened",
				"priority":       "P1",
				"resource":       map[string]any{"type": "file", "id": "q3.xlsx"},
				"payload":        map[string]any{},
				"privacy":        map[string]any{"pii_level": "low"},
			}
		}

		Convey("When the record is complete it passes", func() {
			_, err := n.Normalize(complete())
			So(err, ShouldBeNil)
		})

		Convey("When a required field is missing it fails", func() {
			for _, field := range []string{"event_id", "ts", "source", "app", "event_type", "resource", "privacy"} {
				record := complete()
				delete(record, field)
				_, err := n.Normalize(record)
				So(err, ShouldWrap, ErrSchema)
			}
		})

		Convey("When the event id is not a UUID it fails", func() {
			record := complete()
			record["event_id"] = "evt-123"
			_, err := n.Normalize(record)
			So(err, ShouldWrap, ErrSchema)
		})

		Convey("When the priority is unknown it fails", func() {
			record := complete()
			record["priority"] = "P9"
			_, err := n.Normalize(record)
			So(err, ShouldWrap, ErrSchema)
		})

		Convey("When the timestamp is malformed it fails", func() {
			record := complete()
			record["ts"] = "not-a-time"
			_, err := n.Normalize(record)
			So(err, ShouldWrap, ErrSchema)
		})

		Convey("When the record is from an older schema version", func() {
			record := map[string]any{
				"schema_version": "0.9",
				"source":         "os",
				"app":            "excel",
				"event_type":     "os.file_saved",
			}
			envelope, err := n.Normalize(record)

			Convey("Then absent fields are defaulted even in strict mode", func() {
				So(err, ShouldBeNil)
				So(envelope.Priority, ShouldEqual, model.P1)
			})
		})

		Convey("When the record is from a newer schema version", func() {
			record := complete()
			record["schema_version"] = "1.7"
			record["novel_field"] = "ignored"
			envelope, err := n.Normalize(record)

			Convey("Then known fields are used and unknown ones survive in the raw copy", func() {
				So(err, ShouldBeNil)
				So(envelope.SchemaVersion, ShouldEqual, "1.7")
				So(envelope.Raw["novel_field"], ShouldEqual, "ignored")
			})
		})
	})
}

func TestParseTS(t *testing.T) {
	Convey("Given timestamp strings", t, func() {
		ts, ok := ParseTS("2026-05-02T09:58:31.250Z")
		So(ok, ShouldBeTrue)
		So(ts.Nanosecond(), ShouldEqual, 250_000_000)

		ts, ok = ParseTS("2026-05-02T09:58:31+02:00")
		So(ok, ShouldBeTrue)
		So(ts.Hour(), ShouldEqual, 7)
		So(ts.Location(), ShouldEqual, time.UTC)

		_, ok = ParseTS("02/05/2026")
		So(ok, ShouldBeFalse)
	})
}
