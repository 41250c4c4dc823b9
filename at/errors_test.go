package at_test

import (
	"errors"
	"fmt"
	"testing"

	"i4.energy/across/mbmril/at"
)

func TestCodeTierRoundTrip(t *testing.T) {
	code := at.CMEError(at.CMESIMPINRequired)

	if code.Tier() != at.TierCME {
		t.Errorf("expected CME tier, got %v", code.Tier())
	}
	if got := code.CME(); got != 11 {
		t.Errorf("expected CME cause 11, got %d", got)
	}
	if got := code.AT(); got != at.NotInTier {
		t.Errorf("expected not in AT tier, got %d", got)
	}
	if got := code.CMS(); got != at.NotInTier {
		t.Errorf("expected not in CMS tier, got %d", got)
	}
	if got := code.Generic(); got != at.NotInTier {
		t.Errorf("expected not in GENERIC tier, got %d", got)
	}
	if code.Name() != "CME_SIM_PIN_REQUIRED" {
		t.Errorf("unexpected name: %s", code.Name())
	}
}

func TestCodeTiers(t *testing.T) {
	tests := []struct {
		code at.Code
		tier at.Tier
		name string
	}{
		{at.NoError, at.TierNone, "AT_NOERROR"},
		{at.ErrTimeout, at.TierAT, "AT_ERROR_TIMEOUT"},
		{at.ErrInvalidThread, at.TierAT, "AT_ERROR_INVALID_THREAD"},
		{at.CMEError(at.CMESIMNotInserted), at.TierCME, "CME_SIM_NOT_INSERTED"},
		{at.CMSError(at.CMSNetworkTimeout), at.TierCMS, "CMS_NETWORK_TIMEOUT"},
		{at.GenericNoCarrier, at.TierGeneric, "GENERIC_NO_CARRIER_RESPONSE"},
		{at.GenericErrUnspecified, at.TierGeneric, "GENERIC_ERROR_UNSPECIFIED"},
		{at.CMEError(999), at.TierCME, "--UNKNOWN--"},
		{at.Code(5000), at.TierUnknown, "--UNKNOWN--"},
		{at.Code(-1), at.TierUnknown, "--UNKNOWN--"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.code.Tier(); got != tt.tier {
				t.Errorf("Tier() = %v, expected %v", got, tt.tier)
			}
			if got := tt.code.Name(); got != tt.name {
				t.Errorf("Name() = %q, expected %q", got, tt.name)
			}
		})
	}
}

func TestParseFinalResponse(t *testing.T) {
	tests := []struct {
		line string
		want at.Code
	}{
		{"OK", at.NoError},
		{"CONNECT 115200", at.NoError},
		{"ERROR", at.GenericErrorResponse},
		{"ERROR: 12", at.GenericErrorResponse},
		{"+CME ERROR: 10", at.CMEError(at.CMESIMNotInserted)},
		{"+CME ERROR: 11", at.CMEError(at.CMESIMPINRequired)},
		{"+CMS ERROR: 331", at.CMSError(at.CMSNoNetworkService)},
		{"+CME ERROR: SIM PIN required", at.GenericErrUnspecified},
		{"NO CARRIER", at.GenericNoCarrier},
		{"NO ANSWER", at.GenericNoAnswer},
		{"NO DIALTONE", at.GenericNoDialtone},
		{"BUSY", at.GenericErrUnspecified},
	}
	for _, tt := range tests {
		t.Run(tt.line, func(t *testing.T) {
			if got := at.ParseFinalResponse(tt.line); got != tt.want {
				t.Errorf("expected %v, got %v", tt.want, got)
			}
		})
	}
}

func TestCodeAsError(t *testing.T) {
	var err error = fmt.Errorf("query SIM: %w", at.CMEError(at.CMESIMNotInserted))

	var code at.Code
	if !errors.As(err, &code) {
		t.Fatal("expected errors.As to find a Code")
	}
	if code.CME() != at.CMESIMNotInserted {
		t.Errorf("unexpected cause %d", code.CME())
	}
	if !errors.Is(fmt.Errorf("wrapped: %w", at.ErrTimeout), at.ErrTimeout) {
		t.Error("expected errors.Is to match ErrTimeout")
	}
}

func TestFinalMarkers(t *testing.T) {
	for _, line := range []string{"OK", "CONNECT"} {
		if !at.IsFinalSuccess(line) {
			t.Errorf("%q should be final success", line)
		}
	}
	for _, line := range []string{"ERROR", "+CMS ERROR: 500", "+CME ERROR: 3", "NO CARRIER", "NO ANSWER", "NO DIALTONE"} {
		if !at.IsFinalError(line) {
			t.Errorf("%q should be final error", line)
		}
	}
	for _, line := range []string{"+CMT: ,24", "+CDS: 25", "+CBM: 88"} {
		if !at.IsSMSUnsolicited(line) {
			t.Errorf("%q should be a two line SMS notification", line)
		}
	}
	if at.IsFinalSuccess("+CSQ: 15,99") || at.IsFinalError("+CMTI: \"SM\",1") {
		t.Error("intermediate lines must not be final")
	}
}
