package ril

//go:generate go tool mockgen -source=host.go -destination=mock_host.go -package=ril

import (
	"fmt"

	"i4.energy/across/mbmril/modem"
)

// Host receives request completions and unsolicited events.
//
// Both methods may be called from lane workers and from channel reader
// goroutines, so implementations must be safe for concurrent use and must
// not block for long.
type Host interface {
	OnRequestComplete(token Token, status Status, payload any)
	OnUnsolicited(event Unsolicited, payload any)
}

// Unsolicited identifies an event pushed to the host.
type Unsolicited int

const (
	UnsolRadioStateChanged Unsolicited = iota + 1
	UnsolNetworkStateChanged
	UnsolNITZTimeReceived
	UnsolSignalStrength
	UnsolNewSMS
	UnsolNewSMSStatusReport
	UnsolNewSMSOnSIM
	UnsolNewBroadcastSMS
	UnsolSIMSMSStorageFull
	UnsolSIMStatusChanged
	UnsolRestrictedStateChanged
	UnsolDataConnectionState
	UnsolDataCallListChanged
)

var unsolNames = map[Unsolicited]string{
	UnsolRadioStateChanged:      "radio_state_changed",
	UnsolNetworkStateChanged:    "network_state_changed",
	UnsolNITZTimeReceived:       "nitz_time_received",
	UnsolSignalStrength:         "signal_strength",
	UnsolNewSMS:                 "new_sms",
	UnsolNewSMSStatusReport:     "new_sms_status_report",
	UnsolNewSMSOnSIM:            "new_sms_on_sim",
	UnsolNewBroadcastSMS:        "new_broadcast_sms",
	UnsolSIMSMSStorageFull:      "sim_sms_storage_full",
	UnsolSIMStatusChanged:       "sim_status_changed",
	UnsolRestrictedStateChanged: "restricted_state_changed",
	UnsolDataConnectionState:    "data_connection_state",
	UnsolDataCallListChanged:    "data_call_list_changed",
}

func (u Unsolicited) String() string {
	if name, ok := unsolNames[u]; ok {
		return name
	}
	return fmt.Sprintf("unsolicited(%d)", int(u))
}

// Restricted state bits reported with UnsolRestrictedStateChanged.
const (
	RestrictedNone  = 0x00
	RestrictedCSAll = 0x04
	RestrictedPSAll = 0x10
)

// Event payloads.
type (
	// SignalStrength is the GSM signal quality in +CSQ units.
	SignalStrength struct {
		RSSI int `json:"rssi"`
		BER  int `json:"ber"`
	}

	// NewSMS carries a +CMT PDU. Message is set when the PDU decodes as
	// an SMS-DELIVER.
	NewSMS struct {
		PDU     string     `json:"pdu"`
		Message *modem.SMS `json:"message,omitempty"`
	}

	// DataConnection is the packet data state reported by *E2NAP.
	DataConnection struct {
		State int `json:"state"`
		Cause int `json:"cause"`
	}
)
