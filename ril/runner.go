package ril

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"i4.energy/across/mbmril/modem"
)

// Run serves every lane until ctx ends. Each lane opens its device,
// initialises the modem and drains its queue; when the channel fails the
// lane is closed and the cycle starts over.
func (r *RIL) Run(ctx context.Context) error {
	if !r.running.CompareAndSwap(false, true) {
		return errors.New("ril: already running")
	}
	defer r.running.Store(false)

	var wg sync.WaitGroup
	for _, lane := range r.sched.lanes() {
		wg.Add(1)
		go func() {
			defer wg.Done()
			r.runLane(ctx, lane)
		}()
	}
	wg.Wait()

	r.closeLanes()
	return ctx.Err()
}

func (r *RIL) dialer(lane Lane) modem.Dialer {
	if lane == LanePrio {
		return r.cfg.PrioDialer
	}
	return r.cfg.Dialer
}

func (r *RIL) runLane(ctx context.Context, lane Lane) {
	logger := r.logger.With("lane", lane)
	q := r.sched.Queue(lane)

	for ctx.Err() == nil {
		t, err := r.dial(ctx, lane)
		if err != nil {
			return
		}

		if r.cfg.ReadyTimeout > 0 {
			logger.Debug("Waiting for EMRDY", "timeout", r.cfg.ReadyTimeout)
			switch err := modem.WaitReady(t, r.cfg.ReadyTimeout); {
			case err == nil:
				logger.Debug("Got EMRDY")
			case errors.Is(err, modem.ErrReadyTimeout):
				logger.Warn("No EMRDY, continuing anyway")
			case errors.Is(err, modem.ErrNotReady):
				logger.Debug("Transport cannot bound reads, skipping EMRDY wait")
			default:
				logger.Warn("Failed waiting for EMRDY", "error", err)
				_ = t.Close()
				if sleep(ctx, r.cfg.RetryInterval) != nil {
					return
				}
				continue
			}
		}

		timeout := r.cfg.Timeout
		if lane == LanePrio {
			timeout = r.cfg.PrioTimeout
		}
		opts := append([]modem.Option{
			modem.WithTimeout(timeout),
			modem.WithLogger(r.cfg.ChannelLogger.With("component", "channel", "lane", lane)),
		}, r.cfg.ChannelOptions...)
		ch := modem.Open(t, r.onUnsolicited, opts...)
		ch.SetOnReaderClosed(r.onReaderClosed)
		ch.SetOnTimeout(func() { r.onTimeout(ch) })

		q.Reopen()
		if err := r.initialize(ctx, lane, ch); err != nil {
			logger.Error("Failed to initialize channel", "error", err)
			r.teardown(lane, ch)
			if sleep(ctx, r.cfg.RetryInterval) != nil {
				return
			}
			continue
		}

		r.setChannel(lane, ch)
		if lane == LaneNormal {
			r.session.SetDefault(ch)
		}

		logger.Info("Serving requests")
		r.drain(ctx, q, ch)

		logger.Warn("AT channel error, attempting to recover")
		r.teardown(lane, ch)
	}
}

// dial opens the lane's device, retrying until it succeeds or ctx ends.
func (r *RIL) dial(ctx context.Context, lane Lane) (modem.Transport, error) {
	d := r.dialer(lane)
	for {
		t, err := d.Dial(ctx)
		if err == nil {
			return t, nil
		}
		r.logger.Error("Failed to open AT channel, retrying",
			"lane", lane, "error", err, "retry_in", r.cfg.RetryInterval)
		if err := sleep(ctx, r.cfg.RetryInterval); err != nil {
			return nil, fmt.Errorf("dial %s lane: %w", lane, err)
		}
	}
}

// drain serves the queue until it is closed or ctx ends. Events run
// before the request popped in the same round.
func (r *RIL) drain(ctx context.Context, q *Queue, ch *modem.Channel) {
	for {
		e, req, err := q.next(ctx)
		if err != nil {
			return
		}
		if e != nil {
			e.fn(ctx, ch)
		}
		if req != nil {
			r.process(ctx, ch, *req)
		}
	}
}

func (r *RIL) teardown(lane Lane, ch *modem.Channel) {
	r.setChannel(lane, nil)
	for _, req := range r.sched.Queue(lane).Close() {
		r.complete(req, StatusRadioNotAvailable, nil)
	}
	if lane == LaneNormal {
		r.session.Reset()
	}
	if err := ch.Close(); err != nil && !errors.Is(err, modem.ErrAlreadyClosed) {
		r.logger.Debug("Failed to close channel", "lane", lane, "error", err)
	}
	<-ch.Done()
	r.logger.Info("Re-opening after close", "lane", lane)
}
