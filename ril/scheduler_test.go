package ril

import (
	"context"
	"testing"

	"i4.energy/across/mbmril/modem"
)

func TestSchedulerDispatch(t *testing.T) {
	tests := []struct {
		name     string
		withPrio bool
		code     Code
		wantPrio bool
	}{
		{name: "normal request", withPrio: true, code: RequestGetIMSI},
		{name: "signal strength on prio", withPrio: true, code: RequestSignalStrength, wantPrio: true},
		{name: "signal strength without prio lane", code: RequestSignalStrength},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := NewScheduler(tt.withPrio)
			if err := s.Dispatch(Request{Code: tt.code}); err != nil {
				t.Fatalf("unexpected error: %v", err)
			}

			normal, _ := s.Queue(LaneNormal).Len()
			prio := 0
			if s.HasPrio() {
				prio, _ = s.Queue(LanePrio).Len()
			}
			if tt.wantPrio && (prio != 1 || normal != 0) {
				t.Errorf("expected request on prio lane, got normal=%d prio=%d", normal, prio)
			}
			if !tt.wantPrio && (normal != 1 || prio != 0) {
				t.Errorf("expected request on normal lane, got normal=%d prio=%d", normal, prio)
			}
		})
	}
}

func TestSchedulerEnqueue(t *testing.T) {
	noop := EventFunc(func(context.Context, *modem.Channel) {})

	t.Run("all lanes", func(t *testing.T) {
		s := NewScheduler(true)
		s.Enqueue(LaneAll, noop, 0)

		_, normal := s.Queue(LaneNormal).Len()
		_, prio := s.Queue(LanePrio).Len()
		if normal != 1 || prio != 1 {
			t.Errorf("expected one event per lane, got normal=%d prio=%d", normal, prio)
		}
	})

	t.Run("prio falls back to normal", func(t *testing.T) {
		s := NewScheduler(false)
		s.Enqueue(LanePrio, noop, 0)
		s.Enqueue(LaneAll, noop, 0)

		if _, n := s.Queue(LaneNormal).Len(); n != 2 {
			t.Errorf("expected 2 events on normal lane, got %d", n)
		}
		if len(s.lanes()) != 1 {
			t.Errorf("expected a single lane, got %v", s.lanes())
		}
	})
}

func TestSchedulerCloseAll(t *testing.T) {
	s := NewScheduler(true)
	s.Dispatch(Request{Code: RequestGetIMSI, Token: 1})
	s.Dispatch(Request{Code: RequestSignalStrength, Token: 2})

	dropped := s.CloseAll()
	if len(dropped) != 2 {
		t.Fatalf("expected 2 dropped requests, got %d", len(dropped))
	}
	if !s.Queue(LaneNormal).Closed() || !s.Queue(LanePrio).Closed() {
		t.Error("expected every lane closed")
	}
	if err := s.Dispatch(Request{Code: RequestGetIMSI}); err == nil {
		t.Error("expected dispatch on a closed lane to fail")
	}
}
