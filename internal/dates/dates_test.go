package dates

import (
	"testing"
	"time"

	"pgregory.net/rapid"

	"github.com/kuitang/notedesk/internal/errs"
)

func testParse_DayIsMidnightUTC(t *rapid.T) {
	y := rapid.IntRange(1970, 2100).Draw(t, "year")
	m := rapid.IntRange(1, 12).Draw(t, "month")
	d := rapid.IntRange(1, 28).Draw(t, "day")
	want := time.Date(y, time.Month(m), d, 0, 0, 0, 0, time.UTC)

	got, err := Parse(want.Format(DayLayout))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if !got.Equal(want) || got.Location() != time.UTC {
		t.Fatalf("Parse(%s) = %v, want %v", want.Format(DayLayout), got, want)
	}
}

func TestParse_DayIsMidnightUTC(t *testing.T) {
	t.Parallel()
	rapid.Check(t, testParse_DayIsMidnightUTC)
}

func testParse_RFC3339NormalizesToUTC(t *rapid.T) {
	sec := rapid.Int64Range(0, 4102444800).Draw(t, "unix")
	offset := rapid.IntRange(-MaxOffsetMinutes, MaxOffsetMinutes).Draw(t, "offset")
	zone := time.FixedZone("z", offset*60)
	in := time.Unix(sec, 0).In(zone)

	got, err := Parse(in.Format(time.RFC3339))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if got.Unix() != sec || got.Location() != time.UTC {
		t.Fatalf("Parse(%s) = %v, want unix %d UTC", in.Format(time.RFC3339), got, sec)
	}
}

func TestParse_RFC3339NormalizesToUTC(t *testing.T) {
	t.Parallel()
	rapid.Check(t, testParse_RFC3339NormalizesToUTC)
}

func FuzzParse_RFC3339NormalizesToUTC(f *testing.F) {
	f.Fuzz(rapid.MakeFuzz(testParse_RFC3339NormalizesToUTC))
}

func TestParse_Rejects(t *testing.T) {
	t.Parallel()
	for _, s := range []string{"", "yesterday", "2026-13-01", "2026/03/01", "1700000000"} {
		if _, err := Parse(s); errs.CodeOf(err) != errs.InvalidArgument {
			t.Fatalf("Parse(%q) err = %v, want invalid argument", s, err)
		}
	}
	if got, err := ParseOptional(nil); got != nil || err != nil {
		t.Fatalf("ParseOptional(nil) = %v, %v", got, err)
	}
}

func TestValidateDay(t *testing.T) {
	t.Parallel()
	if err := ValidateDay("2026-03-01", -300); err != nil {
		t.Fatalf("valid day rejected: %v", err)
	}
	if err := ValidateDay("2026-3-1", 0); err == nil {
		t.Fatalf("unpadded day accepted")
	}
	if err := ValidateDay("2026-03-01", MaxOffsetMinutes+1); err == nil {
		t.Fatalf("out-of-range offset accepted")
	}
}
