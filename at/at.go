package at

import "strings"

const (
	// Terminal Control
	CR     = "\r"
	CRLF   = "\r\n"
	Prompt = "> "
	CtrlZ  = "\x1a"
	Escape = "\x1b"

	// Final success markers
	OK      = "OK"
	Connect = "CONNECT"

	// Final error markers
	ERROR      = "ERROR"
	CmsError   = "+CMS ERROR:"
	CmeError   = "+CME ERROR:"
	NoCarrier  = "NO CARRIER"
	NoAnswer   = "NO ANSWER"
	NoDialtone = "NO DIALTONE"

	// Unsolicited SMS notifications followed by a PDU line
	UrcNewSMS          = "+CMT:"
	UrcStatusReport    = "+CDS:"
	UrcBroadcastSMS    = "+CBM:"
	UrcNewSMSOnSIM     = "+CMTI:"
	UrcModuleReady     = "EMRDY"
	UrcSignalIndicator = "+CIEV: 2"
	UrcStorageFull     = "+CIEV: 7"
)

var (
	finalSuccess = []string{OK, Connect}

	// NO CARRIER, NO ANSWER and NO DIALTONE are sometimes unsolicited. They
	// are final only while a command is pending.
	finalError = []string{ERROR, CmsError, CmeError, NoCarrier, NoAnswer, NoDialtone}

	smsUnsolicited = []string{UrcNewSMS, UrcStatusReport, UrcBroadcastSMS}
)

// CommandType tells the channel which reply lines belong to a command.
type CommandType int

const (
	NoResult   CommandType = iota // no intermediate expected
	Numeric                       // one line starting with a digit
	SingleLine                    // first line starting with the prefix
	MultiLine                     // every line starting with the prefix
)

func (t CommandType) String() string {
	switch t {
	case NoResult:
		return "NoResult"
	case Numeric:
		return "Numeric"
	case SingleLine:
		return "SingleLine"
	case MultiLine:
		return "MultiLine"
	default:
		return "Unknown"
	}
}

// IsFinalSuccess reports whether line terminates a command successfully.
func IsFinalSuccess(line string) bool {
	return hasAnyPrefix(line, finalSuccess)
}

// IsFinalError reports whether line terminates a command with an error.
func IsFinalError(line string) bool {
	return hasAnyPrefix(line, finalError)
}

// IsSMSUnsolicited reports whether line is the header of a two-line SMS
// notification whose PDU arrives on the following line.
func IsSMSUnsolicited(line string) bool {
	return hasAnyPrefix(line, smsUnsolicited)
}

func hasAnyPrefix(line string, prefixes []string) bool {
	for _, p := range prefixes {
		if strings.HasPrefix(line, p) {
			return true
		}
	}
	return false
}
