package stream

import (
	"io"
	"log"
	"testing"
	"time"

	"github.com/parachutel/bullet-trade/internal/data"
	"github.com/parachutel/bullet-trade/internal/market"
)

func TestClient_DispatchDecodesQuote(t *testing.T) {
	var gotSec market.Security
	var gotSnap data.Snapshot
	var gotAt time.Time

	c := NewClient("ws://unused", func(sec market.Security, snap data.Snapshot, at time.Time) {
		gotSec, gotSnap, gotAt = sec, snap, at
	}, log.New(io.Discard, "", 0))

	frame := []byte(`{"security":"600519.XSHG","last_price":1700.5,"high_limit":1870.0,"low_limit":1530.0,"paused":0,"time":1718330460}`)
	c.dispatch(frame)

	if gotSec.String() != "600519.XSHG" {
		t.Errorf("expected security 600519.XSHG, got %s", gotSec)
	}
	if gotSnap.LastPrice != 1700.5 || gotSnap.Paused {
		t.Errorf("unexpected snapshot: %+v", gotSnap)
	}
	if gotAt.IsZero() {
		t.Error("expected exchange timestamp to be set")
	}
}

func TestClient_DispatchSkipsMalformedFrames(t *testing.T) {
	called := false
	c := NewClient("ws://unused", func(market.Security, data.Snapshot, time.Time) {
		called = true
	}, log.New(io.Discard, "", 0))

	c.dispatch([]byte(`not json`))
	c.dispatch([]byte(`{"security":"WHAT.EVER","last_price":1}`))

	if called {
		t.Error("expected malformed frames to be dropped")
	}
}

func TestClient_DispatchPausedFlag(t *testing.T) {
	var gotSnap data.Snapshot
	c := NewClient("ws://unused", func(_ market.Security, snap data.Snapshot, _ time.Time) {
		gotSnap = snap
	}, log.New(io.Discard, "", 0))

	c.dispatch([]byte(`{"security":"513100.XSHG","last_price":1.1,"paused":1,"time":1641999600}`))
	if !gotSnap.Paused {
		t.Error("expected paused flag set")
	}
}
