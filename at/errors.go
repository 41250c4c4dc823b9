package at

import "strings"

// Code is a channel result packed into one integer space. Zero is success;
// the remaining values are partitioned into disjoint tiers for channel
// (AT), equipment (CME), SMS (CMS) and generic final-response errors.
//
// Code implements error so a failed Send can be compared with errors.Is
// and decoded with the tier helpers without string matching.
type Code int

// Tier identifies the range a Code belongs to.
type Tier int

const (
	TierNone Tier = iota
	TierAT
	TierCME
	TierCMS
	TierGeneric
	TierUnknown
)

func (t Tier) String() string {
	switch t {
	case TierNone:
		return "NONE"
	case TierAT:
		return "AT"
	case TierCME:
		return "CME"
	case TierCMS:
		return "CMS"
	case TierGeneric:
		return "GENERIC"
	default:
		return "UNKNOWN"
	}
}

// Tier bases. Each tier spans tierSize codes starting at its base.
const (
	ATBase      = 0
	CMEBase     = 1000
	CMSBase     = 2000
	GenericBase = 3000

	tierSize = 1000
)

// NotInTier is returned by the tier decoders for codes outside the tier.
const NotInTier = -1

// Channel errors.
const (
	NoError               Code = ATBase + 0
	ErrGeneric            Code = ATBase + 1
	ErrCommandPending     Code = ATBase + 2
	ErrChannelClosed      Code = ATBase + 3
	ErrTimeout            Code = ATBase + 4
	ErrInvalidThread      Code = ATBase + 5
	ErrInvalidResponse    Code = ATBase + 6
	ErrMemoryAllocation   Code = ATBase + 7
	ErrStringCreation     Code = ATBase + 8
	GenericErrorResponse  Code = GenericBase + 1
	GenericNoCarrier      Code = GenericBase + 2
	GenericNoAnswer       Code = GenericBase + 3
	GenericNoDialtone     Code = GenericBase + 4
	GenericErrUnspecified Code = GenericBase + 5
)

// CME causes consulted by the radio layer.
const (
	CMEOperationNotAllowed                       = 3
	CMESIMNotInserted                            = 10
	CMESIMPINRequired                            = 11
	CMESIMPUKRequired                            = 12
	CMESIMFailure                                = 13
	CMESIMBusy                                   = 14
	CMESIMWrong                                  = 15
	CMEIncorrectPassword                         = 16
	CMESIMPIN2Required                           = 17
	CMESIMPUK2Required                           = 18
	CMENetworkPersonalizationPINRequired         = 40
	CMENetworkPersonalizationPUKRequired         = 41
	CMENetworkSubsetPersonalizationPINRequired   = 42
	CMENetworkSubsetPersonalizationPUKRequired   = 43
	CMEServiceProviderPersonalizationPINRequired = 44
	CMEServiceProviderPersonalizationPUKRequired = 45
	CMECorporatePersonalizationPINRequired       = 46
	CMECorporatePersonalizationPUKRequired       = 47
	CMEPHSimlockPINRequired                      = 200
	CMEWANDisabled                               = 272
)

// CMS causes consulted by the radio layer.
const (
	CMSSMSCongestion          = 42
	CMSSIMSMSFull             = 208
	CMSMemoryCapacityExceeded = 211
	CMSServiceSIMNotInserted  = 310
	CMSSMSCAddressUnknown     = 330
	CMSNoNetworkService       = 331
	CMSNetworkTimeout         = 332
	CMSUnknownError           = 500
)

// CMEError encodes an equipment error cause.
func CMEError(cause int) Code { return Code(CMEBase + cause) }

// CMSError encodes an SMS error cause.
func CMSError(cause int) Code { return Code(CMSBase + cause) }

// GenericError encodes a generic final-response cause.
func GenericError(cause int) Code { return Code(GenericBase + cause) }

// ATError encodes a channel error cause.
func ATError(cause int) Code { return Code(ATBase + cause) }

// AT returns the channel error cause of c, or NotInTier.
func (c Code) AT() int { return c.cause(ATBase) }

// CME returns the equipment error cause of c, or NotInTier.
func (c Code) CME() int { return c.cause(CMEBase) }

// CMS returns the SMS error cause of c, or NotInTier.
func (c Code) CMS() int { return c.cause(CMSBase) }

// Generic returns the generic final-response cause of c, or NotInTier.
func (c Code) Generic() int { return c.cause(GenericBase) }

func (c Code) cause(base int) int {
	if int(c) >= base && int(c) < base+tierSize {
		return int(c) - base
	}
	return NotInTier
}

// Tier reports which range c falls into.
func (c Code) Tier() Tier {
	switch {
	case c == NoError:
		return TierNone
	case c > ATBase && c < CMEBase:
		return TierAT
	case c >= CMEBase && c < CMSBase:
		return TierCME
	case c >= CMSBase && c < GenericBase:
		return TierCMS
	case c >= GenericBase && c < GenericBase+tierSize:
		return TierGeneric
	default:
		return TierUnknown
	}
}

// Name renders c as its symbolic tag, e.g. "CME_SIM_PIN_REQUIRED".
func (c Code) Name() string {
	var (
		table  map[int]string
		prefix string
		cause  int
	)
	switch c.Tier() {
	case TierNone, TierAT:
		table, prefix, cause = atNames, "AT_", c.AT()
	case TierCME:
		table, prefix, cause = cmeNames, "CME_", c.CME()
	case TierCMS:
		table, prefix, cause = cmsNames, "CMS_", c.CMS()
	case TierGeneric:
		table, prefix, cause = genericNames, "GENERIC_", c.Generic()
	default:
		return unknownName
	}
	if name, ok := table[cause]; ok {
		return prefix + name
	}
	return unknownName
}

func (c Code) String() string { return c.Name() }

func (c Code) Error() string { return c.Name() }

// ParseFinalResponse maps a final response line to a Code. Success markers
// map to NoError; error lines are classified by their marker and, for CME
// and CMS errors, by the numeric cause that follows it.
func ParseFinalResponse(line string) Code {
	switch {
	case IsFinalSuccess(line):
		return NoError
	case strings.HasPrefix(line, CmeError):
		return numericCause(line, CMEBase)
	case strings.HasPrefix(line, CmsError):
		return numericCause(line, CMSBase)
	case strings.HasPrefix(line, ERROR):
		return GenericErrorResponse
	case strings.HasPrefix(line, NoCarrier):
		return GenericNoCarrier
	case strings.HasPrefix(line, NoAnswer):
		return GenericNoAnswer
	case strings.HasPrefix(line, NoDialtone):
		return GenericNoDialtone
	default:
		return GenericErrUnspecified
	}
}

// numericCause reads the cause after a "+CME ERROR:" or "+CMS ERROR:"
// marker. Verbose causes (AT+CMEE=2) are not numeric and map to
// GenericErrUnspecified.
func numericCause(line string, base int) Code {
	tok, err := NewTokenizer(line)
	if err != nil {
		return GenericErrUnspecified
	}
	cause, err := tok.NextInt()
	if err != nil || cause < 0 || cause >= tierSize {
		return GenericErrUnspecified
	}
	return Code(base + cause)
}
