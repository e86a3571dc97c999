package timeutil

import (
	"testing"
	"time"
)

func TestNow_AlwaysUTC(t *testing.T) {
	now := Now()

	if now.Location() != time.UTC {
		t.Errorf("Now() returned non-UTC timezone: %v", now.Location())
	}
}

func TestToDBPrecision(t *testing.T) {
	in := time.Date(2025, 11, 20, 12, 30, 45, 123456789, time.FixedZone("CET", 3600))
	got := ToDBPrecision(in)

	if got.Location() != time.UTC {
		t.Errorf("ToDBPrecision() returned non-UTC timezone: %v", got.Location())
	}
	if got.Nanosecond() != 123456000 {
		t.Errorf("ToDBPrecision() nanoseconds = %d, want 123456000", got.Nanosecond())
	}
	if !got.Equal(in.Truncate(time.Microsecond)) {
		t.Errorf("ToDBPrecision() changed the instant: %v", got)
	}
}

func TestParseRFC3339(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
		wantErr  bool
	}{
		{name: "zulu", input: "2024-05-01T10:00:00Z", expected: "2024-05-01 10:00:00 +0000 UTC"},
		{name: "offset", input: "2024-05-01T12:00:00+02:00", expected: "2024-05-01 10:00:00 +0000 UTC"},
		{name: "fraction", input: "2024-05-01T10:00:00.250Z", expected: "2024-05-01 10:00:00.25 +0000 UTC"},
		{name: "invalid", input: "01.05.2024", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseRFC3339(tt.input)
			if tt.wantErr {
				if err == nil {
					t.Fatalf("ParseRFC3339(%q) expected error", tt.input)
				}
				return
			}
			if err != nil {
				t.Fatalf("ParseRFC3339(%q) unexpected error: %v", tt.input, err)
			}
			if got.String() != tt.expected {
				t.Errorf("ParseRFC3339(%q) = %v, want %v", tt.input, got, tt.expected)
			}
		})
	}
}

func TestStepClock(t *testing.T) {
	start := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)
	clock := NewStepClock(start, time.Second)

	if got := clock.Now(); !got.Equal(start) {
		t.Errorf("first Now() = %v, want %v", got, start)
	}
	if got := clock.Now(); !got.Equal(start.Add(time.Second)) {
		t.Errorf("second Now() = %v, want %v", got, start.Add(time.Second))
	}

	clock.Set(start)
	clock.Step = 0
	if a, b := clock.Now(), clock.Now(); !a.Equal(b) {
		t.Errorf("zero step clock moved: %v != %v", a, b)
	}
}

func TestSystemClock_MicrosecondPrecision(t *testing.T) {
	now := SystemClock{}.Now()
	if now.Nanosecond()%1000 != 0 {
		t.Errorf("SystemClock.Now() has sub-microsecond precision: %v", now)
	}
}
