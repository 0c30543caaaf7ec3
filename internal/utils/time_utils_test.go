package utils

import (
	"testing"
	"time"
)

func TestZeroTime(t *testing.T) {
	expected := time.Time{}
	actual := ZeroTime()

	if !actual.Equal(expected) {
		t.Errorf("Expected %v, got %v", expected, actual)
	}
}

func TestNow(t *testing.T) {
	now := Now()
	if now.Location() != time.UTC {
		t.Errorf("Now() should be in UTC, but got %s", now.Location())
	}

	if time.Since(now) > time.Second {
		t.Errorf("Now() is not returning the current time")
	}
}

func TestNowPtr(t *testing.T) {
	nowPtr := NowPtr()
	if nowPtr == nil {
		t.Fatal("NowPtr() returned nil")
	}

	if nowPtr.Location() != time.UTC {
		t.Errorf("NowPtr() should be in UTC, but got %s", nowPtr.Location())
	}

	if time.Since(*nowPtr) > time.Second {
		t.Errorf("NowPtr() is not returning the current time")
	}
}

func TestToDatePtr(t *testing.T) {
	now := time.Now()
	datePtr := ToDatePtr(&now)
	if datePtr == nil {
		t.Fatal("ToDatePtr returned nil for non-nil input")
	}
	if !datePtr.Equal(now.Truncate(24 * time.Hour).UTC()) {
		t.Errorf("Expected %v, got %v", now.Truncate(24*time.Hour).UTC(), *datePtr)
	}

	nilDatePtr := ToDatePtr(nil)
	if nilDatePtr != nil {
		t.Fatal("ToDatePtr should return nil for nil input")
	}
}

func TestUnmarshalDateTime(t *testing.T) {
	customLayout1 := "2006-01-02 15:04:05"
	customLayout2 := "2006-01-02T15:04:05.000-0700"
	customLayout3 := "2006-01-02T15:04:05-07:00"

	rfc3339Input := "2006-01-02T15:04:05Z"
	dt, err := UnmarshalDateTime(rfc3339Input)
	if err != nil {
		t.Errorf("UnmarshalDateTime returned an error for valid RFC3339 input: %v", err)
	}
	if dt == nil || dt.Format(time.RFC3339) != rfc3339Input {
		t.Errorf("Expected %s, got %v", rfc3339Input, dt)
	}

	custom1Input := "2006-01-02 15:04:05"
	custom1Dt, custom1Err := UnmarshalDateTime(custom1Input)
	if custom1Err != nil || custom1Dt == nil || custom1Dt.Format(customLayout1) != custom1Input {
		t.Errorf("UnmarshalDateTime failed for custom layout 1: %v", custom1Err)
	}

	custom2Input := "2006-01-02T15:04:05.000-0700"
	custom2Dt, custom2Err := UnmarshalDateTime(custom2Input)
	if custom2Err != nil || custom2Dt == nil || custom2Dt.Format(customLayout2) != custom2Input {
		t.Errorf("UnmarshalDateTime failed for custom layout 2: %v", custom2Err)
	}

	custom3Input := "2006-01-02T15:04:05-07:00"
	custom3Dt, custom3Err := UnmarshalDateTime(custom3Input)
	if custom3Err != nil || custom3Dt == nil || custom3Dt.Format(customLayout3) != custom3Input {
		t.Errorf("UnmarshalDateTime failed for custom layout 3: %v", custom3Err)
	}

	emptyDt, emptyErr := UnmarshalDateTime("")
	if emptyErr != nil || emptyDt != nil {
		t.Errorf("Expected nil for empty input, got %v and error %v", emptyDt, emptyErr)
	}

	invalidInput := "invalid-date"
	invalidDt, invalidErr := UnmarshalDateTime(invalidInput)
	if invalidErr == nil {
		t.Errorf("Expected error for invalid input, got %v", invalidDt)
	}
}

func TestIsEqualTimePtr(t *testing.T) {
	now := time.Now()

	if !IsEqualTimePtr(nil, nil) {
		t.Error("IsEqualTimePtr should return true for two nil pointers")
	}

	if IsEqualTimePtr(&now, nil) {
		t.Error("IsEqualTimePtr should return false when only one pointer is nil")
	}
	if IsEqualTimePtr(nil, &now) {
		t.Error("IsEqualTimePtr should return false when only one pointer is nil")
	}

	timeCopy := now
	if !IsEqualTimePtr(&now, &timeCopy) {
		t.Error("IsEqualTimePtr should return true for pointers to equal times")
	}

	differentTime := now.Add(time.Hour)
	if IsEqualTimePtr(&now, &differentTime) {
		t.Error("IsEqualTimePtr should return false for pointers to different times")
	}
}

func TestConvertToUTC(t *testing.T) {
	parsed, err := ConvertToUTC("Mon, 2 Jan 2006 15:04:05 -0700")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if parsed.Location() != time.UTC {
		t.Errorf("expected UTC location, got %s", parsed.Location())
	}

	if _, err := ConvertToUTC("not a date"); err == nil {
		t.Error("expected error for unparseable date")
	}
}
