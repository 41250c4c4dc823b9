package modem_test

import (
	"context"
	"errors"
	"fmt"
	"io"
	"slices"
	"strings"
	"sync"
	"testing"
	"time"

	"go.uber.org/mock/gomock"
	"i4.energy/across/mbmril/at"
	"i4.energy/across/mbmril/modem"
)

// script maps command lines to the modem's reply. Unknown lines get no
// reply at all.
type script map[string]string

func (s script) respond(line string) string {
	return s[line]
}

type unsolicited struct {
	line, pdu string
}

func openTestChannel(t *testing.T, s script, opts ...modem.Option) (*modem.Channel, *modem.TestTransport, <-chan unsolicited) {
	t.Helper()

	transport := modem.NewTestTransport()
	transport.OnCommand(s.respond)

	lines := make(chan unsolicited, 16)
	ch := modem.Open(transport, func(ctx context.Context, line, pdu string) {
		lines <- unsolicited{line, pdu}
	}, opts...)
	t.Cleanup(func() {
		ch.Close()
		<-ch.Done()
	})
	return ch, transport, lines
}

// waitWritten waits until cmd has been written to transport.
func waitWritten(t *testing.T, transport *modem.TestTransport, cmd string) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for !strings.Contains(transport.Written(), cmd) {
		if time.Now().After(deadline) {
			t.Fatalf("%q not written in time", cmd)
		}
		time.Sleep(time.Millisecond)
	}
}

func TestChannelSend(t *testing.T) {
	tests := []struct {
		name    string
		reply   string
		req     modem.Request
		want    []string
		wantErr error
	}{
		{
			name:  "no result",
			req:   modem.Request{Command: "AT", Type: at.NoResult},
			reply: "OK\r\n",
		},
		{
			name:  "single line",
			req:   modem.Request{Command: "AT+CSQ", Type: at.SingleLine, Prefix: "+CSQ:"},
			reply: "+CSQ: 15,99\r\nOK\r\n",
			want:  []string{"+CSQ: 15,99"},
		},
		{
			name:  "multi line",
			req:   modem.Request{Command: "AT+COPS=?", Type: at.MultiLine, Prefix: "+COPS:"},
			reply: "+COPS: (2,\"Telia\",\"Telia\",\"24001\")\r\n+COPS: (1,\"Tele2\",\"Tele2\",\"24007\")\r\nOK\r\n",
			want: []string{
				`+COPS: (2,"Telia","Telia","24001")`,
				`+COPS: (1,"Tele2","Tele2","24007")`,
			},
		},
		{
			name:  "numeric",
			req:   modem.Request{Command: "AT+CIMI", Type: at.Numeric},
			reply: "240011234567890\r\nOK\r\n",
			want:  []string{"240011234567890"},
		},
		{
			name:  "connect is final success",
			req:   modem.Request{Command: "ATD*99#", Type: at.NoResult},
			reply: "CONNECT\r\n",
		},
		{
			name:    "cme error",
			req:     modem.Request{Command: "AT+CPIN?", Type: at.SingleLine, Prefix: "+CPIN:"},
			reply:   "+CME ERROR: 11\r\n",
			wantErr: at.CMEError(at.CMESIMPINRequired),
		},
		{
			name:    "cms error",
			req:     modem.Request{Command: "AT+CMGD=1", Type: at.NoResult},
			reply:   "+CMS ERROR: 321\r\n",
			wantErr: at.CMSError(321),
		},
		{
			name:    "bare error",
			req:     modem.Request{Command: "AT+FOO", Type: at.NoResult},
			reply:   "ERROR\r\n",
			wantErr: at.GenericErrorResponse,
		},
		{
			name:    "missing intermediate",
			req:     modem.Request{Command: "AT+CSQ", Type: at.SingleLine, Prefix: "+CSQ:"},
			reply:   "OK\r\n",
			wantErr: at.ErrInvalidResponse,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ch, _, _ := openTestChannel(t, script{tt.req.Command: tt.reply})

			resp, err := ch.Send(context.Background(), tt.req)
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("expected %v, got: %v", tt.wantErr, err)
				}
				if resp != nil {
					t.Errorf("expected no response on error, got: %+v", resp)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if !resp.Success {
				t.Errorf("expected success, final line %q", resp.Final)
			}
			if !slices.Equal(resp.Intermediates, tt.want) {
				t.Errorf("intermediates = %q, want %q", resp.Intermediates, tt.want)
			}
		})
	}
}

func TestChannelClassification(t *testing.T) {
	t.Run("numeric keeps only the first digit line", func(t *testing.T) {
		ch, _, lines := openTestChannel(t, script{
			"AT+CIMI": "240011234567890\r\n5\r\nOK\r\n",
		})

		resp, err := ch.Numeric(context.Background(), "AT+CIMI")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if got := resp.Line(); got != "240011234567890" {
			t.Errorf("expected IMSI, got %q", got)
		}

		select {
		case u := <-lines:
			if u.line != "5" {
				t.Errorf("expected stray digit line to be unsolicited, got %q", u.line)
			}
		case <-time.After(time.Second):
			t.Error("expected second numeric line on the unsolicited handler")
		}
	})

	t.Run("unrelated lines during a command are unsolicited", func(t *testing.T) {
		ch, _, lines := openTestChannel(t, script{
			"AT+CSQ": "+CREG: 1\r\n+CSQ: 20,99\r\nOK\r\n",
		})

		resp, err := ch.SingleLine(context.Background(), "AT+CSQ", "+CSQ:")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if got := resp.Line(); got != "+CSQ: 20,99" {
			t.Errorf("unexpected intermediate %q", got)
		}

		select {
		case u := <-lines:
			if u.line != "+CREG: 1" {
				t.Errorf("unexpected unsolicited line %q", u.line)
			}
		case <-time.After(time.Second):
			t.Error("expected +CREG on the unsolicited handler")
		}
	})

	t.Run("idle lines and sms notifications", func(t *testing.T) {
		_, transport, lines := openTestChannel(t, script{})

		transport.SendData("\r\nRING\r\n")
		transport.SendData("+CMT: ,24\r\n07914477790706520411\r\n")

		want := []unsolicited{
			{line: "RING"},
			{line: "+CMT: ,24", pdu: "07914477790706520411"},
		}
		for _, w := range want {
			select {
			case u := <-lines:
				if u != w {
					t.Errorf("got %+v, want %+v", u, w)
				}
			case <-time.After(time.Second):
				t.Fatalf("timed out waiting for %q", w.line)
			}
		}
	})
}

func TestChannelSMS(t *testing.T) {
	ch, transport, _ := openTestChannel(t, script{
		"AT+CMGS=3":   "> ",
		"00AABBCC":    "+CMGS: 7\r\nOK\r\n",
		"AT+CMGW=3,2": "> ",
		"07AABBCC":    "+CMGW: 4\r\nOK\r\n",
	})

	ref, err := ch.SendSMS(context.Background(), "", "AABBCC")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ref != 7 {
		t.Errorf("expected message reference 7, got %d", ref)
	}

	index, err := ch.StoreSMS(context.Background(), 2, "07", "AABBCC")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if index != 4 {
		t.Errorf("expected index 4, got %d", index)
	}

	want := "AT+CMGS=3\r00AABBCC\x1aAT+CMGW=3,2\r07AABBCC\x1a"
	if got := transport.Written(); got != want {
		t.Errorf("written = %q, want %q", got, want)
	}
	if n := ch.Metrics().PDUsWritten.Load(); n != 2 {
		t.Errorf("expected 2 PDUs written, got %d", n)
	}
}

func TestChannelRaw(t *testing.T) {
	ch, _, _ := openTestChannel(t, script{
		"AT*EFOO": "*EFOO: 1\r\nsome text\r\nERROR\r\n",
	})

	resp, err := ch.Raw(context.Background(), "AT*EFOO")
	if !errors.Is(err, at.GenericErrorResponse) {
		t.Fatalf("expected GenericErrorResponse, got: %v", err)
	}
	if resp == nil {
		t.Fatal("expected the response to be returned with the error")
	}
	if resp.Final != "ERROR" {
		t.Errorf("unexpected final line %q", resp.Final)
	}
	if !slices.Equal(resp.Intermediates, []string{"*EFOO: 1", "some text"}) {
		t.Errorf("unexpected intermediates %q", resp.Intermediates)
	}
}

func TestChannelTimeout(t *testing.T) {
	ch, transport, _ := openTestChannel(t, script{"AT": "OK\r\n"}, modem.WithTimeout(50*time.Millisecond))

	var fired int
	ch.SetOnTimeout(func() {
		fired++
		ch.SendEscape()
	})

	err := ch.Command(context.Background(), "AT+SLOW")
	if !errors.Is(err, at.ErrTimeout) {
		t.Fatalf("expected ErrTimeout, got: %v", err)
	}
	if fired != 1 {
		t.Errorf("expected timeout callback once, got %d", fired)
	}
	if !strings.HasSuffix(transport.Written(), at.Escape) {
		t.Errorf("expected escape after timeout, written %q", transport.Written())
	}

	// The pending slot must be free again.
	if err := ch.Command(context.Background(), "AT"); err != nil {
		t.Fatalf("command after timeout failed: %v", err)
	}
	if n := ch.Metrics().Timeouts.Load(); n != 1 {
		t.Errorf("expected 1 timeout counted, got %d", n)
	}
}

func TestChannelRequestTimeoutOverride(t *testing.T) {
	ch, _, _ := openTestChannel(t, script{}, modem.WithTimeout(0))

	start := time.Now()
	_, err := ch.Send(context.Background(), modem.Request{
		Command: "AT+SLOW",
		Type:    at.NoResult,
		Timeout: 30 * time.Millisecond,
	})
	if !errors.Is(err, at.ErrTimeout) {
		t.Fatalf("expected ErrTimeout, got: %v", err)
	}
	if time.Since(start) > time.Second {
		t.Error("request timeout was not honoured")
	}
}

func TestChannelContextCancel(t *testing.T) {
	ch, _, _ := openTestChannel(t, script{})

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()

	err := ch.Command(ctx, "AT+SLOW")
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected context.DeadlineExceeded, got: %v", err)
	}
}

func TestChannelConcurrentSends(t *testing.T) {
	s := script{}
	for i := range 10 {
		s[fmt.Sprintf("AT+N=%d", i)] = fmt.Sprintf("+N: %d\r\nOK\r\n", i)
	}
	ch, _, _ := openTestChannel(t, s)

	var wg sync.WaitGroup
	errs := make(chan error, 10)
	for i := range 10 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			resp, err := ch.SingleLine(context.Background(), fmt.Sprintf("AT+N=%d", i), "+N:")
			if err != nil {
				errs <- err
				return
			}
			if want := fmt.Sprintf("+N: %d", i); resp.Line() != want {
				errs <- fmt.Errorf("got %q, want %q", resp.Line(), want)
			}
		}()
	}
	wg.Wait()
	close(errs)

	for err := range errs {
		t.Error(err)
	}
}

func TestChannelInvalidThread(t *testing.T) {
	transport := modem.NewTestTransport()
	result := make(chan error, 1)

	var ch *modem.Channel
	ch = modem.Open(transport, func(ctx context.Context, line, pdu string) {
		result <- ch.Command(ctx, "AT")
	})
	defer ch.Close()

	transport.SendData("+CREG: 1\r\n")

	select {
	case err := <-result:
		if !errors.Is(err, at.ErrInvalidThread) {
			t.Errorf("expected ErrInvalidThread, got: %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("handler was not called")
	}
}

func TestChannelClose(t *testing.T) {
	t.Run("fails the pending command", func(t *testing.T) {
		seen := make(chan struct{})
		transport := modem.NewTestTransport()
		transport.OnCommand(func(line string) string {
			if line == "AT+WAIT" {
				close(seen)
			}
			return ""
		})
		ch := modem.Open(transport, nil, modem.WithTimeout(0))

		result := make(chan error, 1)
		go func() {
			result <- ch.Command(context.Background(), "AT+WAIT")
		}()

		<-seen
		if err := ch.Close(); err != nil {
			t.Fatalf("unexpected error from Close(): %v", err)
		}

		select {
		case err := <-result:
			if !errors.Is(err, at.ErrChannelClosed) {
				t.Errorf("expected ErrChannelClosed, got: %v", err)
			}
		case <-time.After(time.Second):
			t.Fatal("pending command was not released")
		}

		<-ch.Done()
		if err := ch.Command(context.Background(), "AT"); !errors.Is(err, at.ErrChannelClosed) {
			t.Errorf("expected ErrChannelClosed after close, got: %v", err)
		}
	})

	t.Run("ErrAlreadyClosed on double close", func(t *testing.T) {
		ch := modem.Open(modem.NewTestTransport(), nil)

		if err := ch.Close(); err != nil {
			t.Errorf("first close should succeed, got error: %v", err)
		}
		if err := ch.Close(); err != modem.ErrAlreadyClosed {
			t.Errorf("expected ErrAlreadyClosed on second close, got: %v", err)
		}
	})

	t.Run("reader closed callback fires once on stream end", func(t *testing.T) {
		transport := modem.NewTestTransport()
		ch := modem.Open(transport, nil)

		calls := make(chan struct{}, 2)
		ch.SetOnReaderClosed(func() { calls <- struct{}{} })

		// The modem side goes away without the channel being closed.
		transport.Close()
		<-ch.Done()

		if len(calls) != 1 {
			t.Errorf("expected one reader-closed callback, got %d", len(calls))
		}
		if err := ch.Command(context.Background(), "AT"); !errors.Is(err, at.ErrChannelClosed) {
			t.Errorf("expected ErrChannelClosed, got: %v", err)
		}

		// Registering after the fact reports immediately, but only once.
		ch.SetOnReaderClosed(func() { calls <- struct{}{} })
		if len(calls) != 1 {
			t.Errorf("callback fired again after registration, got %d", len(calls))
		}
	})

	t.Run("reader closed callback runs before the outstanding command fails", func(t *testing.T) {
		transport := modem.NewTestTransport()
		ch := modem.Open(transport, nil, modem.WithTimeout(modem.NoTimeout))

		returned := make(chan struct{})
		sawReturn := make(chan bool, 1)
		ch.SetOnReaderClosed(func() {
			select {
			case <-returned:
				sawReturn <- true
			default:
				sawReturn <- false
			}
		})

		errs := make(chan error, 1)
		go func() {
			errs <- ch.Command(context.Background(), "AT+CGSN")
			close(returned)
		}()
		waitWritten(t, transport, "AT+CGSN\r")

		transport.Close()

		if <-sawReturn {
			t.Error("command returned before the reader closed callback ran")
		}
		if err := <-errs; !errors.Is(err, at.ErrChannelClosed) {
			t.Errorf("expected ErrChannelClosed, got: %v", err)
		}
		<-ch.Done()
	})

	t.Run("no callback after Close", func(t *testing.T) {
		ch := modem.Open(modem.NewTestTransport(), nil)

		var called bool
		ch.SetOnReaderClosed(func() { called = true })
		ch.Close()
		<-ch.Done()

		if called {
			t.Error("reader-closed callback must not fire after Close")
		}
	})
}

func TestChannelHandshake(t *testing.T) {
	t.Run("succeeds on first probe", func(t *testing.T) {
		ch, transport, _ := openTestChannel(t, script{"ATE0V1": "OK\r\n"},
			modem.WithHandshake(3, 20*time.Millisecond))

		if err := ch.Handshake(context.Background()); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if n := strings.Count(transport.Written(), "ATE0V1\r"); n != 1 {
			t.Errorf("expected one probe, got %d", n)
		}
	})

	t.Run("gives up after retries without timeout callback", func(t *testing.T) {
		ch, transport, _ := openTestChannel(t, script{},
			modem.WithHandshake(3, 20*time.Millisecond))

		var fired bool
		ch.SetOnTimeout(func() { fired = true })

		err := ch.Handshake(context.Background())
		if !errors.Is(err, at.ErrTimeout) {
			t.Fatalf("expected ErrTimeout, got: %v", err)
		}
		if n := strings.Count(transport.Written(), "ATE0V1\r"); n != 3 {
			t.Errorf("expected 3 probes, got %d", n)
		}
		if fired {
			t.Error("handshake timeouts must not fire the timeout callback")
		}
	})
}

func TestChannelWriteFailure(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	mockTransport := modem.NewMockTransport(ctrl)
	release := make(chan struct{})

	mockTransport.EXPECT().Read(gomock.Any()).DoAndReturn(func(p []byte) (int, error) {
		<-release
		return 0, io.EOF
	}).AnyTimes()
	mockTransport.EXPECT().Write([]byte("AT")).Return(0, errors.New("device unplugged"))
	mockTransport.EXPECT().Close().DoAndReturn(func() error {
		close(release)
		return nil
	})

	ch := modem.Open(mockTransport, nil)

	err := ch.Command(context.Background(), "AT")
	if !errors.Is(err, at.ErrGeneric) {
		t.Errorf("expected ErrGeneric, got: %v", err)
	}

	if err := ch.Close(); err != nil {
		t.Errorf("unexpected error from Close(): %v", err)
	}
	<-ch.Done()
}

func TestChannelScriptedSequence(t *testing.T) {
	t.Run("SIM ready", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		defer ctrl.Finish()

		mockTransport := modem.NewMockTransport(ctrl)
		gomock.InOrder(NewMockSequence(mockTransport).
			Handshake().
			NumericErrors().
			SimReady().
			SMSPDUMode().
			Build()...)

		ch := modem.Open(mockTransport, nil, modem.WithHandshake(1, 10*time.Millisecond))
		ctx := context.Background()

		if err := ch.Handshake(ctx); err != nil {
			t.Fatalf("handshake failed: %v", err)
		}
		if err := ch.Command(ctx, "AT+CMEE=1"); err != nil {
			t.Fatalf("AT+CMEE=1 failed: %v", err)
		}
		resp, err := ch.SingleLine(ctx, "AT+CPIN?", "+CPIN:")
		if err != nil {
			t.Fatalf("AT+CPIN? failed: %v", err)
		}
		if resp.Line() != "+CPIN: READY" {
			t.Errorf("unexpected SIM status %q", resp.Line())
		}
		if err := ch.Command(ctx, "AT+CMGF=0"); err != nil {
			t.Fatalf("AT+CMGF=0 failed: %v", err)
		}

		if err := ch.Close(); err != nil {
			t.Errorf("unexpected error from Close(): %v", err)
		}
		<-ch.Done()
	})

	t.Run("SIM PIN required", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		defer ctrl.Finish()

		mockTransport := modem.NewMockTransport(ctrl)
		gomock.InOrder(NewMockSequence(mockTransport).
			SimPinRequired().
			Build()...)

		ch := modem.Open(mockTransport, nil)
		resp, err := ch.SingleLine(context.Background(), "AT+CPIN?", "+CPIN:")
		if err != nil {
			t.Fatalf("AT+CPIN? failed: %v", err)
		}
		if resp.Line() != "+CPIN: SIM PIN" {
			t.Errorf("unexpected SIM status %q", resp.Line())
		}

		ch.Close()
		<-ch.Done()
	})
}
