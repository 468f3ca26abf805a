package market

import (
	"errors"
	"testing"
	"time"
)

func testDay() time.Time {
	return time.Date(2024, 6, 14, 0, 0, 0, 0, CST)
}

func TestParseTimeExpression_OpenOffset(t *testing.T) {
	expr, err := ParseTimeExpression("open-30m")
	if err != nil {
		t.Fatalf("parse failed: %v", err)
	}

	got := expr.Resolve(testDay(), DefaultPeriods(), FrequencyMinute)
	if len(got) != 1 {
		t.Fatalf("expected 1 timepoint, got %d", len(got))
	}
	want := time.Date(2024, 6, 14, 9, 0, 0, 0, CST)
	if !got[0].Equal(want) {
		t.Errorf("expected %v, got %v", want, got[0])
	}
}

func TestParseTimeExpression_CloseOffsetSeconds(t *testing.T) {
	expr, err := ParseTimeExpression("close+30s")
	if err != nil {
		t.Fatalf("parse failed: %v", err)
	}

	got := expr.Resolve(testDay(), DefaultPeriods(), FrequencyMinute)
	want := time.Date(2024, 6, 14, 15, 0, 30, 0, CST)
	if !got[0].Equal(want) {
		t.Errorf("expected %v, got %v", want, got[0])
	}
}

func TestParseTimeExpression_ExplicitClock(t *testing.T) {
	expr, err := ParseTimeExpression("14:50")
	if err != nil {
		t.Fatalf("parse failed: %v", err)
	}

	got := expr.Resolve(testDay(), DefaultPeriods(), FrequencyMinute)
	want := time.Date(2024, 6, 14, 14, 50, 0, 0, CST)
	if !got[0].Equal(want) {
		t.Errorf("expected %v, got %v", want, got[0])
	}
}

func TestParseTimeExpression_EveryMinuteCount(t *testing.T) {
	expr, err := ParseTimeExpression("every_minute")
	if err != nil {
		t.Fatalf("parse failed: %v", err)
	}

	got := expr.Resolve(testDay(), DefaultPeriods(), FrequencyMinute)
	if len(got) != 240 {
		t.Fatalf("expected 240 firings on a default day, got %d", len(got))
	}

	first := time.Date(2024, 6, 14, 9, 30, 0, 0, CST)
	last := time.Date(2024, 6, 14, 14, 59, 0, 0, CST)
	if !got[0].Equal(first) {
		t.Errorf("expected first firing %v, got %v", first, got[0])
	}
	if !got[len(got)-1].Equal(last) {
		t.Errorf("expected last firing %v, got %v", last, got[len(got)-1])
	}
}

func TestParseTimeExpression_EveryBarDaily(t *testing.T) {
	expr, err := ParseTimeExpression("every_bar")
	if err != nil {
		t.Fatalf("parse failed: %v", err)
	}

	daily := expr.Resolve(testDay(), DefaultPeriods(), FrequencyDaily)
	if len(daily) != 1 {
		t.Fatalf("expected 1 daily firing, got %d", len(daily))
	}
	if daily[0].Hour() != 9 || daily[0].Minute() != 30 {
		t.Errorf("expected firing at session open, got %v", daily[0])
	}

	minute := expr.Resolve(testDay(), DefaultPeriods(), FrequencyMinute)
	if len(minute) != 240 {
		t.Errorf("expected 240 minute firings, got %d", len(minute))
	}
}

func TestParseTimeExpression_Invalid(t *testing.T) {
	for _, in := range []string{"", "noon", "open-30", "open~30m", "25:00", "9:30", "close+2d"} {
		if _, err := ParseTimeExpression(in); !errors.Is(err, ErrInvalidTimeExpression) {
			t.Errorf("%q: expected ErrInvalidTimeExpression, got %v", in, err)
		}
	}
}

func TestParseTimeExpression_RoundTripFormat(t *testing.T) {
	for _, in := range []string{"open", "close", "open-30m", "close+1h", "close+30s", "14:50", "every_minute", "every_bar"} {
		expr, err := ParseTimeExpression(in)
		if err != nil {
			t.Fatalf("%q: parse failed: %v", in, err)
		}
		if expr.String() != in {
			t.Errorf("expected %q to format as itself, got %q", in, expr.String())
		}
	}
}

func TestParseSecurity(t *testing.T) {
	sec, err := ParseSecurity("600519.XSHG")
	if err != nil {
		t.Fatalf("parse failed: %v", err)
	}
	if sec.Exchange != ExchangeShanghai || sec.Code != "600519" {
		t.Errorf("unexpected parse result: %+v", sec)
	}
}

func TestParseSecurity_BSEAlias(t *testing.T) {
	bj, err := ParseSecurity("832000.BJ")
	if err != nil {
		t.Fatalf("parse .BJ failed: %v", err)
	}
	bse, err := ParseSecurity("832000.BSE")
	if err != nil {
		t.Fatalf("parse .BSE failed: %v", err)
	}
	if bj != bse {
		t.Errorf("expected .BSE to normalize to .BJ: %v vs %v", bj, bse)
	}
}

func TestParseSecurity_Invalid(t *testing.T) {
	for _, in := range []string{"600519", "600519.NYSE", ".XSHG", "600519.", "60A519.XSHG"} {
		if _, err := ParseSecurity(in); err == nil {
			t.Errorf("%q: expected parse error", in)
		}
	}
}

func TestSecurity_BoardClassification(t *testing.T) {
	if !MustParseSecurity("688111.XSHG").IsSTAR() {
		t.Error("expected 688111.XSHG to be STAR market")
	}
	if MustParseSecurity("600519.XSHG").IsSTAR() {
		t.Error("expected 600519.XSHG to not be STAR market")
	}
	if !MustParseSecurity("113050.XSHG").IsConvertibleBond() {
		t.Error("expected 113050.XSHG to be a convertible bond")
	}
	if !MustParseSecurity("123456.XSHE").IsConvertibleBond() {
		t.Error("expected 123456.XSHE to be a convertible bond")
	}
}
