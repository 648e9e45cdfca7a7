package validator

import (
	"errors"
	"testing"
)

func TestIsEmpty(t *testing.T) {
	cases := []struct {
		input string
		want  bool
	}{
		{"", true},
		{"   ", true},
		{"abc", false},
		{" abc ", false},
	}
	for _, c := range cases {
		got := IsEmpty(c.input)
		if got != c.want {
			t.Errorf("IsEmpty(%q) = %v, want %v", c.input, got, c.want)
		}
	}
}

func TestIsValidDate(t *testing.T) {
	if _, ok := IsValidDate("2024-03-11"); !ok {
		t.Errorf("IsValidDate(2024-03-11) = false, want true")
	}
	for _, in := range []string{"", "2024-13-01", "11/03/2024", "2024-02-30"} {
		if _, ok := IsValidDate(in); ok {
			t.Errorf("IsValidDate(%q) = true, want false", in)
		}
	}
}

func TestIsValidDateTime(t *testing.T) {
	valid := []string{"2024-01-15T10:30:00Z", "2024-01-15T10:30:00+07:00", "2024-01-15T10:30:00.123456Z"}
	for _, in := range valid {
		if _, ok := IsValidDateTime(in); !ok {
			t.Errorf("IsValidDateTime(%q) = false, want true", in)
		}
	}
	if _, ok := IsValidDateTime("2024-01-15 10:30"); ok {
		t.Errorf("IsValidDateTime(2024-01-15 10:30) = true, want false")
	}
}

func TestIsInSlice(t *testing.T) {
	if !IsInSlice("start", []string{"start", "end"}) {
		t.Errorf("IsInSlice(start) = false, want true")
	}
	if IsInSlice("middle", []string{"start", "end"}) {
		t.Errorf("IsInSlice(middle) = true, want false")
	}
}

func TestIsValidCoordinate(t *testing.T) {
	cases := []struct {
		lat, lng float64
		want     bool
	}{
		{10.762622, 106.660172, true},
		{90, 180, true},
		{-90, -180, true},
		{90.0001, 0, false},
		{0, -180.5, false},
	}
	for _, c := range cases {
		if got := IsValidCoordinate(c.lat, c.lng); got != c.want {
			t.Errorf("IsValidCoordinate(%v, %v) = %v, want %v", c.lat, c.lng, got, c.want)
		}
	}
}

type sampleRequest struct {
	ActivityID string  `json:"activity_id" validate:"required"`
	Direction  string  `json:"direction" validate:"omitempty,oneof=start end"`
	Latitude   float64 `json:"latitude" validate:"gte=-90,lte=90"`
	Internal   string  `json:"-"`
}

func TestStruct(t *testing.T) {
	if err := Struct(sampleRequest{ActivityID: "a1", Direction: "start", Latitude: 10}); err != nil {
		t.Fatalf("Struct(valid) = %v, want nil", err)
	}

	err := Struct(sampleRequest{Direction: "middle", Latitude: 91})
	var errs ValidationErrors
	if !errors.As(err, &errs) {
		t.Fatalf("Struct(invalid) error type = %T, want ValidationErrors", err)
	}

	got := errs.ToMap()
	if _, ok := got["activity_id"]; !ok {
		t.Errorf("missing activity_id error in %v", got)
	}
	if got["direction"] != "direction must be one of: start, end" {
		t.Errorf("direction message = %q", got["direction"])
	}
	if got["latitude"] != "latitude must be at most 90" {
		t.Errorf("latitude message = %q", got["latitude"])
	}
}
