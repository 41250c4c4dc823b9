package ril

import (
	"context"
	"errors"

	"i4.energy/across/mbmril/modem"
)

// call is one request being served on a lane worker.
type call struct {
	ctx context.Context
	ch  *modem.Channel
	req Request
	// after runs once the request has been completed.
	after func()
}

type handlerFunc func(r *RIL, c *call) (any, error)

var handlers = map[Code]handlerFunc{
	RequestGetSIMStatus:                 (*RIL).requestGetSIMStatus,
	RequestEnterSIMPIN:                  (*RIL).requestEnterSIMPIN,
	RequestEnterSIMPUK:                  (*RIL).requestEnterSIMPUK,
	RequestChangeSIMPIN:                 (*RIL).requestChangeSIMPIN,
	RequestGetIMSI:                      (*RIL).requestGetIMSI,
	RequestGetIMEI:                      (*RIL).requestGetIMEI,
	RequestGetIMEISV:                    (*RIL).requestGetIMEISV,
	RequestBasebandVersion:              (*RIL).requestBasebandVersion,
	RequestSignalStrength:               (*RIL).requestSignalStrength,
	RequestOperator:                     (*RIL).requestOperator,
	RequestQueryAvailableNetworks:       (*RIL).requestQueryAvailableNetworks,
	RequestQueryNetworkSelectionMode:    (*RIL).requestQueryNetworkSelectionMode,
	RequestSetNetworkSelectionAutomatic: (*RIL).requestSetNetworkSelectionAutomatic,
	RequestSetNetworkSelectionManual:    (*RIL).requestSetNetworkSelectionManual,
	RequestRegistrationState:            (*RIL).requestRegistrationState,
	RequestGPRSRegistrationState:        (*RIL).requestGPRSRegistrationState,
	RequestRadioPower:                   (*RIL).requestRadioPower,
	RequestSendSMS:                      (*RIL).requestSendSMS,
	RequestSendSMSExpectMore:            (*RIL).requestSendSMSExpectMore,
	RequestSendText:                     (*RIL).requestSendText,
	RequestSMSAcknowledge:               (*RIL).requestSMSAcknowledge,
	RequestWriteSMSToSIM:                (*RIL).requestWriteSMSToSIM,
	RequestDeleteSMSOnSIM:               (*RIL).requestDeleteSMSOnSIM,
	RequestGetSMSCAddress:               (*RIL).requestGetSMSCAddress,
	RequestSetSMSCAddress:               (*RIL).requestSetSMSCAddress,
	RequestReportSMSMemoryStatus:        (*RIL).requestReportSMSMemoryStatus,
	RequestOEMHookStrings:               (*RIL).requestOEMHookStrings,
	RequestScreenState:                  (*RIL).requestScreenState,
	RequestEnterSIMPIN2:                 (*RIL).requestEnterSIMPIN2,
	RequestEnterSIMPUK2:                 (*RIL).requestEnterSIMPUK2,
	RequestChangeSIMPIN2:                (*RIL).requestChangeSIMPIN2,
	RequestQueryFacilityLock:            (*RIL).requestQueryFacilityLock,
	RequestSetFacilityLock:              (*RIL).requestSetFacilityLock,
	RequestSetupDataCall:                (*RIL).requestSetupDataCall,
	RequestDeactivateDataCall:           (*RIL).requestDeactivateDataCall,
	RequestLastDataCallFailCause:        (*RIL).requestLastDataCallFailCause,
	RequestDataCallList:                 (*RIL).requestDataCallList,
}

// Requests admitted while the radio is off or the SIM is not ready.
var offRequests = map[Code]bool{
	RequestRadioPower:      true,
	RequestGetSIMStatus:    true,
	RequestGetIMEI:         true,
	RequestGetIMEISV:       true,
	RequestBasebandVersion: true,
	RequestScreenState:     true,
}

// Requests admitted while the SIM is locked or absent.
var lockedRequests = map[Code]bool{
	RequestEnterSIMPIN:     true,
	RequestEnterSIMPUK:     true,
	RequestEnterSIMPIN2:    true,
	RequestEnterSIMPUK2:    true,
	RequestGetSIMStatus:    true,
	RequestRadioPower:      true,
	RequestGetIMEI:         true,
	RequestGetIMEISV:       true,
	RequestBasebandVersion: true,
}

// admit applies the radio state gating. It returns false and the status to
// complete with when code may not run in the current state.
func (r *RIL) admit(code Code) (Status, bool) {
	state := r.session.RadioState()

	if state != RadioSIMReady && (code == RequestWriteSMSToSIM || code == RequestDeleteSMSOnSIM) {
		return StatusGenericFailure, false
	}

	switch state {
	case RadioUnavailable:
		if code != RequestGetSIMStatus {
			return StatusRadioNotAvailable, false
		}
	case RadioOff, RadioSIMNotReady:
		if !offRequests[code] {
			return StatusRadioNotAvailable, false
		}
	case RadioSIMLockedOrAbsent:
		if !lockedRequests[code] {
			return StatusGenericFailure, false
		}
	}
	return StatusSuccess, true
}

// process serves one request. Every request is completed exactly once,
// here or, for deferred handlers, by the event they schedule.
func (r *RIL) process(ctx context.Context, ch *modem.Channel, req Request) {
	r.logger.Debug("Processing request", "request", req.Code, "token", req.Token)

	if status, ok := r.admit(req.Code); !ok {
		r.complete(req, status, nil)
		return
	}
	h, ok := handlers[req.Code]
	if !ok {
		r.complete(req, StatusRequestNotSupported, nil)
		return
	}

	c := &call{ctx: ctx, ch: ch, req: req}
	payload, err := h(r, c)
	if errors.Is(err, errDeferred) {
		return
	}

	status := statusOf(err)
	if err != nil {
		r.logger.Warn("Request failed", "request", req.Code, "status", status, "error", err)
	}
	r.complete(req, status, payload)
	if c.after != nil {
		c.after()
	}
}

// statusOf maps a handler error to a Status. Errors that are not a Status
// become StatusGenericFailure.
func statusOf(err error) Status {
	if err == nil {
		return StatusSuccess
	}
	var s Status
	if errors.As(err, &s) {
		return s
	}
	return StatusGenericFailure
}
