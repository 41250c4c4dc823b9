package ril

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"go.uber.org/mock/gomock"

	"i4.energy/across/mbmril/at"
)

func TestAdmit(t *testing.T) {
	tests := []struct {
		name   string
		state  RadioState
		code   Code
		want   Status
		wantOK bool
	}{
		{name: "unavailable sim status", state: RadioUnavailable, code: RequestGetSIMStatus, wantOK: true},
		{name: "unavailable imei", state: RadioUnavailable, code: RequestGetIMEI, want: StatusRadioNotAvailable},
		{name: "off radio power", state: RadioOff, code: RequestRadioPower, wantOK: true},
		{name: "off screen state", state: RadioOff, code: RequestScreenState, wantOK: true},
		{name: "off imsi", state: RadioOff, code: RequestGetIMSI, want: StatusRadioNotAvailable},
		{name: "sim not ready send sms", state: RadioSIMNotReady, code: RequestSendSMS, want: StatusRadioNotAvailable},
		{name: "locked enter pin", state: RadioSIMLockedOrAbsent, code: RequestEnterSIMPIN, wantOK: true},
		{name: "locked operator", state: RadioSIMLockedOrAbsent, code: RequestOperator, want: StatusGenericFailure},
		{name: "locked screen state", state: RadioSIMLockedOrAbsent, code: RequestScreenState, want: StatusGenericFailure},
		{name: "off write sms to sim", state: RadioOff, code: RequestWriteSMSToSIM, want: StatusGenericFailure},
		{name: "unavailable delete sms", state: RadioUnavailable, code: RequestDeleteSMSOnSIM, want: StatusGenericFailure},
		{name: "ready write sms to sim", state: RadioSIMReady, code: RequestWriteSMSToSIM, wantOK: true},
		{name: "ready operator", state: RadioSIMReady, code: RequestOperator, wantOK: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := newTestRIL(t, newRecordingHost())
			r.session.radio = tt.state

			status, ok := r.admit(tt.code)
			if ok != tt.wantOK {
				t.Fatalf("expected admitted=%v, got %v", tt.wantOK, ok)
			}
			if !ok && status != tt.want {
				t.Errorf("expected %v, got %v", tt.want, status)
			}
		})
	}
}

func TestStatusOf(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want Status
	}{
		{name: "nil", want: StatusSuccess},
		{name: "status", err: StatusPasswordIncorrect, want: StatusPasswordIncorrect},
		{name: "wrapped status", err: fmt.Errorf("%w: %w", StatusSMSSendFailRetry, at.CMSError(331)), want: StatusSMSSendFailRetry},
		{name: "modem error", err: at.CMEError(100), want: StatusGenericFailure},
		{name: "other error", err: errors.New("boom"), want: StatusGenericFailure},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := statusOf(tt.err); got != tt.want {
				t.Errorf("expected %v, got %v", tt.want, got)
			}
		})
	}
}

func TestProcess(t *testing.T) {
	t.Run("completes with the handler result", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		host := NewMockHost(ctrl)
		r := newTestRIL(t, host)
		r.session.radio = RadioSIMReady
		ch, _ := openChannel(t, r, script{"AT+CIMI": "240011234567890\r\nOK\r\n"})

		host.EXPECT().OnRequestComplete(Token(1), StatusSuccess, "240011234567890")

		r.process(context.Background(), ch, Request{Code: RequestGetIMSI, Token: 1})
	})

	t.Run("refused by radio state", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		host := NewMockHost(ctrl)
		r := newTestRIL(t, host)
		ch, transport := openChannel(t, r, script{})

		host.EXPECT().OnRequestComplete(Token(2), StatusRadioNotAvailable, nil)

		r.process(context.Background(), ch, Request{Code: RequestGetIMSI, Token: 2})
		if transport.Written() != "" {
			t.Errorf("expected nothing sent, got %q", transport.Written())
		}
	})

	t.Run("unknown request", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		host := NewMockHost(ctrl)
		r := newTestRIL(t, host)
		r.session.radio = RadioSIMReady
		ch, _ := openChannel(t, r, script{})

		host.EXPECT().OnRequestComplete(Token(3), StatusRequestNotSupported, nil)

		r.process(context.Background(), ch, Request{Code: Code(999), Token: 3})
	})

	t.Run("modem error", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		host := NewMockHost(ctrl)
		r := newTestRIL(t, host)
		r.session.radio = RadioSIMReady
		ch, _ := openChannel(t, r, script{"AT+CGSN": "+CME ERROR: 100\r\n"})

		host.EXPECT().OnRequestComplete(Token(4), StatusGenericFailure, nil)

		r.process(context.Background(), ch, Request{Code: RequestGetIMEI, Token: 4})
	})
}

func TestDispatchOnClosedLane(t *testing.T) {
	ctrl := gomock.NewController(t)
	host := NewMockHost(ctrl)
	r := newTestRIL(t, host)
	r.sched.CloseAll()

	host.EXPECT().OnRequestComplete(Token(9), StatusRadioNotAvailable, nil)

	r.Dispatch(Request{Code: RequestGetIMSI, Token: 9})
}
