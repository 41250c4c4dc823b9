package modem_test

import (
	"io"

	gomock "go.uber.org/mock/gomock"
	"i4.energy/across/mbmril/modem"
)

// MockSequenceBuilder scripts a modem conversation on a MockTransport.
// Writes are ordered with gomock.InOrder; each reply Read blocks until
// the command it answers has been fully written, as real hardware would.
type MockSequenceBuilder struct {
	transport *modem.MockTransport
	calls     []any
}

func NewMockSequence(transport *modem.MockTransport) *MockSequenceBuilder {
	return &MockSequenceBuilder{
		transport: transport,
		calls:     []any{},
	}
}

// Command expects cmd and answers with reply.
func (b *MockSequenceBuilder) Command(cmd, reply string) *MockSequenceBuilder {
	written := make(chan struct{})
	b.calls = append(b.calls,
		b.transport.EXPECT().Write([]byte(cmd)).Return(len(cmd), nil),
		b.transport.EXPECT().Write([]byte("\r")).DoAndReturn(func(p []byte) (int, error) {
			close(written)
			return len(p), nil
		}),
	)
	b.transport.EXPECT().Read(gomock.Any()).DoAndReturn(func(p []byte) (int, error) {
		<-written
		return copy(p, reply), nil
	})
	return b
}

func (b *MockSequenceBuilder) Handshake() *MockSequenceBuilder {
	return b.Command("ATE0V1", "OK\r\n")
}

func (b *MockSequenceBuilder) NumericErrors() *MockSequenceBuilder {
	return b.Command("AT+CMEE=1", "OK\r\n")
}

func (b *MockSequenceBuilder) SimPinRequired() *MockSequenceBuilder {
	return b.Command("AT+CPIN?", "+CPIN: SIM PIN\r\nOK\r\n")
}

func (b *MockSequenceBuilder) SimReady() *MockSequenceBuilder {
	return b.Command("AT+CPIN?", "+CPIN: READY\r\nOK\r\n")
}

func (b *MockSequenceBuilder) SMSPDUMode() *MockSequenceBuilder {
	return b.Command("AT+CMGF=0", "OK\r\n")
}

// Build ends the script with a Read that blocks until Close and then
// reports EOF, and returns the ordered write expectations.
func (b *MockSequenceBuilder) Build() []any {
	closed := make(chan struct{})
	b.transport.EXPECT().Read(gomock.Any()).DoAndReturn(func(p []byte) (int, error) {
		<-closed
		return 0, io.EOF
	})
	b.calls = append(b.calls,
		b.transport.EXPECT().Close().DoAndReturn(func() error {
			close(closed)
			return nil
		}),
	)
	return b.calls
}
