package ril

import (
	"context"
	"errors"
	"testing"
	"time"

	"i4.energy/across/mbmril/modem"
)

func TestQueueEventOrder(t *testing.T) {
	q := NewQueue()

	var got []int
	record := func(n int) EventFunc {
		return func(context.Context, *modem.Channel) { got = append(got, n) }
	}
	q.Schedule(record(30), 30*time.Millisecond)
	q.Schedule(record(10), 10*time.Millisecond)
	q.Schedule(record(20), 20*time.Millisecond)
	q.Schedule(record(0), 0)
	q.Schedule(record(1), 0)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	for range 5 {
		e, req, err := q.next(ctx)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if req != nil {
			t.Fatalf("unexpected request %v", req.Code)
		}
		e.fn(ctx, nil)
	}

	want := []int{0, 1, 10, 20, 30}
	if len(got) != len(want) {
		t.Fatalf("expected %v, got %v", want, got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("expected %v, got %v", want, got)
		}
	}
}

func TestQueueEventNotBeforeDeadline(t *testing.T) {
	q := NewQueue()
	q.Schedule(func(context.Context, *modem.Channel) {}, 50*time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	start := time.Now()
	if _, _, err := q.next(ctx); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if elapsed := time.Since(start); elapsed < 50*time.Millisecond {
		t.Errorf("event ran after %v, before its deadline", elapsed)
	}
}

func TestQueueRequestsFIFO(t *testing.T) {
	q := NewQueue()
	for i := 1; i <= 3; i++ {
		if err := q.Push(Request{Code: RequestGetIMSI, Token: Token(i)}); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	}

	ctx := context.Background()
	for i := 1; i <= 3; i++ {
		_, req, err := q.next(ctx)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if req == nil || req.Token != Token(i) {
			t.Fatalf("expected token %d, got %+v", i, req)
		}
	}
}

func TestQueuePopsEventAndRequestTogether(t *testing.T) {
	q := NewQueue()
	q.Schedule(func(context.Context, *modem.Channel) {}, 0)
	if err := q.Push(Request{Code: RequestGetIMEI, Token: 7}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	e, req, err := q.next(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if e == nil || req == nil {
		t.Fatalf("expected both an event and a request, got %v and %v", e, req)
	}
}

func TestQueueClose(t *testing.T) {
	t.Run("wakes a waiting worker", func(t *testing.T) {
		q := NewQueue()
		errc := make(chan error, 1)
		go func() {
			_, _, err := q.next(context.Background())
			errc <- err
		}()

		time.Sleep(10 * time.Millisecond)
		q.Close()

		select {
		case err := <-errc:
			if !errors.Is(err, ErrLaneClosed) {
				t.Errorf("expected ErrLaneClosed, got: %v", err)
			}
		case <-time.After(time.Second):
			t.Fatal("next did not return after Close")
		}
	})

	t.Run("returns queued requests", func(t *testing.T) {
		q := NewQueue()
		q.Push(Request{Code: RequestGetIMSI, Token: 1})
		q.Push(Request{Code: RequestGetIMEI, Token: 2})

		dropped := q.Close()
		if len(dropped) != 2 {
			t.Fatalf("expected 2 dropped requests, got %d", len(dropped))
		}
		if n, _ := q.Len(); n != 0 {
			t.Errorf("expected empty queue, got %d requests", n)
		}
	})

	t.Run("refuses requests but keeps events", func(t *testing.T) {
		q := NewQueue()
		q.Close()

		if err := q.Push(Request{Code: RequestGetIMSI}); !errors.Is(err, ErrLaneClosed) {
			t.Errorf("expected ErrLaneClosed, got: %v", err)
		}
		q.Schedule(func(context.Context, *modem.Channel) {}, 0)
		if _, events := q.Len(); events != 1 {
			t.Errorf("expected 1 event, got %d", events)
		}

		q.Reopen()
		if q.Closed() {
			t.Fatal("expected queue to be open")
		}
		e, _, err := q.next(context.Background())
		if err != nil || e == nil {
			t.Errorf("expected the held event after reopen, got %v, %v", e, err)
		}
	})
}

func TestQueueContextCancel(t *testing.T) {
	q := NewQueue()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, _, err := q.next(ctx); !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got: %v", err)
	}
}
