package ril

import (
	"fmt"
	"strings"
)

// Code identifies a request a host can dispatch.
type Code int

const (
	RequestGetSIMStatus Code = iota + 1
	RequestEnterSIMPIN
	RequestEnterSIMPUK
	RequestChangeSIMPIN
	RequestGetIMSI
	RequestGetIMEI
	RequestGetIMEISV
	RequestBasebandVersion
	RequestSignalStrength
	RequestOperator
	RequestQueryAvailableNetworks
	RequestQueryNetworkSelectionMode
	RequestSetNetworkSelectionAutomatic
	RequestSetNetworkSelectionManual
	RequestRegistrationState
	RequestGPRSRegistrationState
	RequestRadioPower
	RequestSendSMS
	RequestSendSMSExpectMore
	RequestSendText
	RequestSMSAcknowledge
	RequestWriteSMSToSIM
	RequestDeleteSMSOnSIM
	RequestGetSMSCAddress
	RequestSetSMSCAddress
	RequestReportSMSMemoryStatus
	RequestOEMHookStrings
	RequestScreenState
	RequestEnterSIMPIN2
	RequestEnterSIMPUK2
	RequestChangeSIMPIN2
	RequestQueryFacilityLock
	RequestSetFacilityLock
	RequestSetupDataCall
	RequestDeactivateDataCall
	RequestLastDataCallFailCause
	RequestDataCallList
)

var codeNames = map[Code]string{
	RequestGetSIMStatus:                 "get_sim_status",
	RequestEnterSIMPIN:                  "enter_sim_pin",
	RequestEnterSIMPUK:                  "enter_sim_puk",
	RequestChangeSIMPIN:                 "change_sim_pin",
	RequestGetIMSI:                      "get_imsi",
	RequestGetIMEI:                      "get_imei",
	RequestGetIMEISV:                    "get_imeisv",
	RequestBasebandVersion:              "baseband_version",
	RequestSignalStrength:               "signal_strength",
	RequestOperator:                     "operator",
	RequestQueryAvailableNetworks:       "query_available_networks",
	RequestQueryNetworkSelectionMode:    "query_network_selection_mode",
	RequestSetNetworkSelectionAutomatic: "set_network_selection_automatic",
	RequestSetNetworkSelectionManual:    "set_network_selection_manual",
	RequestRegistrationState:            "registration_state",
	RequestGPRSRegistrationState:        "gprs_registration_state",
	RequestRadioPower:                   "radio_power",
	RequestSendSMS:                      "send_sms",
	RequestSendSMSExpectMore:            "send_sms_expect_more",
	RequestSendText:                     "send_text",
	RequestSMSAcknowledge:               "sms_acknowledge",
	RequestWriteSMSToSIM:                "write_sms_to_sim",
	RequestDeleteSMSOnSIM:               "delete_sms_on_sim",
	RequestGetSMSCAddress:               "get_smsc_address",
	RequestSetSMSCAddress:               "set_smsc_address",
	RequestReportSMSMemoryStatus:        "report_sms_memory_status",
	RequestOEMHookStrings:               "oem_hook_strings",
	RequestScreenState:                  "screen_state",
	RequestEnterSIMPIN2:                 "enter_sim_pin2",
	RequestEnterSIMPUK2:                 "enter_sim_puk2",
	RequestChangeSIMPIN2:                "change_sim_pin2",
	RequestQueryFacilityLock:            "query_facility_lock",
	RequestSetFacilityLock:              "set_facility_lock",
	RequestSetupDataCall:                "setup_data_call",
	RequestDeactivateDataCall:           "deactivate_data_call",
	RequestLastDataCallFailCause:        "last_data_call_fail_cause",
	RequestDataCallList:                 "data_call_list",
}

func (c Code) String() string {
	if name, ok := codeNames[c]; ok {
		return name
	}
	return fmt.Sprintf("request(%d)", int(c))
}

// ParseCode looks a request up by its name, ignoring case.
func ParseCode(name string) (Code, error) {
	name = strings.ToLower(name)
	for c, n := range codeNames {
		if n == name {
			return c, nil
		}
	}
	return 0, fmt.Errorf("%w: %q", ErrUnknownRequest, name)
}

// Status is the outcome a request completes with. Non-success values
// implement error so handlers can return them directly.
type Status int

const (
	StatusSuccess Status = iota
	StatusRadioNotAvailable
	StatusGenericFailure
	StatusPasswordIncorrect
	StatusRequestNotSupported
	StatusCancelled
	StatusSMSSendFailRetry
	StatusSIMPUK2
)

var statusNames = map[Status]string{
	StatusSuccess:             "SUCCESS",
	StatusRadioNotAvailable:   "RADIO_NOT_AVAILABLE",
	StatusGenericFailure:      "GENERIC_FAILURE",
	StatusPasswordIncorrect:   "PASSWORD_INCORRECT",
	StatusRequestNotSupported: "REQUEST_NOT_SUPPORTED",
	StatusCancelled:           "CANCELLED",
	StatusSMSSendFailRetry:    "SMS_SEND_FAIL_RETRY",
	StatusSIMPUK2:             "SIM_PUK2",
}

func (s Status) String() string {
	if name, ok := statusNames[s]; ok {
		return name
	}
	return fmt.Sprintf("STATUS_%d", int(s))
}

func (s Status) Error() string { return s.String() }

func (s Status) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// Token correlates a completion with the request that caused it.
type Token uint64

// Request is one host request. Data carries the request's arguments; its
// type depends on Code (see DataFor).
type Request struct {
	Code  Code
	Data  any
	Token Token
}

// Arguments of requests that take more than a list of strings or ints.
type (
	// SMSPDU is a hex SMS-SUBMIT with an optional hex SMSC field.
	SMSPDU struct {
		SMSC string `json:"smsc,omitempty"`
		PDU  string `json:"pdu"`
	}

	// SIMWrite is a PDU to store on the SIM with its <stat> value.
	SIMWrite struct {
		Status int    `json:"status"`
		SMSC   string `json:"smsc,omitempty"`
		PDU    string `json:"pdu"`
	}

	// TextMessage is plain text to be encoded and sent.
	TextMessage struct {
		To   string `json:"to"`
		Text string `json:"text"`
	}
)

// DataFor returns a pointer to a zero value of the argument type Code
// expects, suitable for decoding into, or nil if it takes no arguments.
func DataFor(c Code) any {
	switch c {
	case RequestEnterSIMPIN, RequestEnterSIMPUK, RequestChangeSIMPIN,
		RequestEnterSIMPIN2, RequestEnterSIMPUK2, RequestChangeSIMPIN2,
		RequestQueryFacilityLock, RequestSetFacilityLock,
		RequestSetNetworkSelectionManual, RequestSetSMSCAddress,
		RequestOEMHookStrings:
		return new([]string)
	case RequestRadioPower, RequestScreenState, RequestDeleteSMSOnSIM,
		RequestReportSMSMemoryStatus:
		return new([]int)
	case RequestSendSMS, RequestSendSMSExpectMore:
		return new(SMSPDU)
	case RequestWriteSMSToSIM:
		return new(SIMWrite)
	case RequestSendText:
		return new(TextMessage)
	case RequestSetupDataCall:
		return new(DataCallSetup)
	default:
		return nil
	}
}

// argsOf extracts the request data as T, accepting a T or a non-nil *T.
func argsOf[T any](req Request) (T, bool) {
	switch v := req.Data.(type) {
	case T:
		return v, true
	case *T:
		if v != nil {
			return *v, true
		}
	}
	var zero T
	return zero, false
}

// stringArg returns the i-th string argument.
func stringArg(req Request, i int) (string, bool) {
	args, ok := argsOf[[]string](req)
	if !ok || i >= len(args) {
		return "", false
	}
	return args[i], true
}

// intArg returns the i-th int argument.
func intArg(req Request, i int) (int, bool) {
	args, ok := argsOf[[]int](req)
	if !ok || i >= len(args) {
		return 0, false
	}
	return args[i], true
}

// isDigits reports whether s is a non-empty run of decimal digits, the
// only form a PIN, PUK or numeric operator takes.
func isDigits(s string) bool {
	if s == "" {
		return false
	}
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return true
}

// isPhoneNumber accepts digits with an optional leading '+'.
func isPhoneNumber(s string) bool {
	return isDigits(strings.TrimPrefix(s, "+"))
}

// quotable reports whether s can be sent as a quoted command argument. A
// quote would end the argument early and a control character, Ctrl-Z
// included, would end the command line or a PDU.
func quotable(s string) bool {
	for _, c := range s {
		if c == '"' || c < 0x20 || c == 0x7f {
			return false
		}
	}
	return true
}
