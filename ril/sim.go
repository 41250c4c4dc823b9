package ril

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"i4.energy/across/mbmril/at"
	"i4.energy/across/mbmril/modem"
)

// SIMStatus is the SIM application state.
type SIMStatus int

const (
	SIMAbsent SIMStatus = iota
	SIMNotReady
	SIMReady
	SIMPIN
	SIMPUK
	SIMPIN2
	SIMPUK2
	SIMNetworkPerso
	SIMNetworkPersoPUK
	SIMNetworkSubsetPerso
	SIMNetworkSubsetPersoPUK
	SIMServiceProviderPerso
	SIMServiceProviderPersoPUK
	SIMCorporatePerso
	SIMCorporatePersoPUK
	SIMPhoneLockPerso
	SIMSterEricssonLock
	SIMBlocked
	SIMPermBlocked
	SIMPUK2PermBlocked
)

var simStatusNames = map[SIMStatus]string{
	SIMAbsent:                  "ABSENT",
	SIMNotReady:                "NOT_READY",
	SIMReady:                   "READY",
	SIMPIN:                     "PIN",
	SIMPUK:                     "PUK",
	SIMPIN2:                    "PIN2",
	SIMPUK2:                    "PUK2",
	SIMNetworkPerso:            "NETWORK_PERSO",
	SIMNetworkPersoPUK:         "NETWORK_PERSO_PUK",
	SIMNetworkSubsetPerso:      "NETWORK_SUBSET_PERSO",
	SIMNetworkSubsetPersoPUK:   "NETWORK_SUBSET_PERSO_PUK",
	SIMServiceProviderPerso:    "SERVICE_PROVIDER_PERSO",
	SIMServiceProviderPersoPUK: "SERVICE_PROVIDER_PERSO_PUK",
	SIMCorporatePerso:          "CORPORATE_PERSO",
	SIMCorporatePersoPUK:       "CORPORATE_PERSO_PUK",
	SIMPhoneLockPerso:          "SIM_PERSO",
	SIMSterEricssonLock:        "STERICSSON_LOCK",
	SIMBlocked:                 "BLOCKED",
	SIMPermBlocked:             "PERM_BLOCKED",
	SIMPUK2PermBlocked:         "PUK2_PERM_BLOCKED",
}

func (s SIMStatus) String() string {
	if name, ok := simStatusNames[s]; ok {
		return name
	}
	return fmt.Sprintf("SIM_STATUS_%d", int(s))
}

func (s SIMStatus) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// CardStatus is the payload of a get_sim_status completion.
type CardStatus struct {
	Present bool      `json:"present"`
	Status  SIMStatus `json:"status"`
	// PINRetries is the number of PIN attempts left, -1 if unknown.
	PINRetries int `json:"pin_retries"`
}

// SIMUnlock is the payload of a PIN or PUK entry completion.
type SIMUnlock struct {
	Retries int `json:"retries"`
}

// cmeSIMStatus maps the CME causes +CPIN? fails with.
var cmeSIMStatus = map[int]SIMStatus{
	at.CMESIMNotInserted:                            SIMAbsent,
	at.CMESIMPINRequired:                            SIMPIN,
	at.CMESIMPUKRequired:                            SIMPUK,
	at.CMESIMPIN2Required:                           SIMPIN2,
	at.CMESIMPUK2Required:                           SIMPUK2,
	at.CMENetworkPersonalizationPINRequired:         SIMNetworkPerso,
	at.CMENetworkPersonalizationPUKRequired:         SIMNetworkPersoPUK,
	at.CMENetworkSubsetPersonalizationPINRequired:   SIMNetworkSubsetPerso,
	at.CMENetworkSubsetPersonalizationPUKRequired:   SIMNetworkSubsetPersoPUK,
	at.CMEServiceProviderPersonalizationPINRequired: SIMServiceProviderPerso,
	at.CMEServiceProviderPersonalizationPUKRequired: SIMServiceProviderPersoPUK,
	at.CMECorporatePersonalizationPINRequired:       SIMCorporatePerso,
	at.CMECorporatePersonalizationPUKRequired:       SIMCorporatePersoPUK,
	at.CMEPHSimlockPINRequired:                      SIMPhoneLockPerso,
}

// cpinSIMStatus maps the +CPIN: codes.
var cpinSIMStatus = map[string]SIMStatus{
	"READY":          SIMReady,
	"SIM PIN":        SIMPIN,
	"SIM PUK":        SIMPUK,
	"SIM PIN2":       SIMPIN2,
	"SIM PUK2":       SIMPUK2,
	"PH-NET PIN":     SIMNetworkPerso,
	"PH-NETSUB PIN":  SIMNetworkSubsetPerso,
	"PH-SP PIN":      SIMServiceProviderPerso,
	"PH-CORP PIN":    SIMCorporatePerso,
	"PH-SIMLOCK PIN": SIMPhoneLockPerso,
	"PH-ESL PIN":     SIMSterEricssonLock,
	"PH-SIM PIN":     SIMBlocked,
}

// simStatus reads the SIM state with AT+CPIN?.
func (r *RIL) simStatus(ctx context.Context, ch *modem.Channel) SIMStatus {
	if removed, _ := r.session.simFlags(); removed {
		return SIMAbsent
	}
	switch r.session.RadioState() {
	case RadioOff, RadioUnavailable:
		return SIMNotReady
	}

	resp, err := ch.SingleLine(ctx, "AT+CPIN?", "+CPIN:")
	if err != nil {
		var code at.Code
		if !errors.As(err, &code) || code.Tier() != at.TierCME {
			return SIMNotReady
		}
		if s, ok := cmeSIMStatus[code.CME()]; ok {
			return s
		}
		return SIMNotReady
	}

	tok, err := at.NewTokenizer(resp.Line())
	if err != nil {
		return SIMNotReady
	}
	cpin, err := tok.NextString()
	if err != nil {
		return SIMNotReady
	}
	cpin = strings.TrimSpace(cpin)

	if cpin == "BLOCKED" {
		switch r.numRetries(ctx, ch, RequestEnterSIMPUK) {
		case -1, 0:
			return SIMPermBlocked
		default:
			return SIMPUK2PermBlocked
		}
	}
	if s, ok := cpinSIMStatus[cpin]; ok {
		return s
	}
	return SIMAbsent
}

// numRetries returns the attempts left for the code a request unlocks,
// read from AT*EPIN?, or -1.
func (r *RIL) numRetries(ctx context.Context, ch *modem.Channel, code Code) int {
	var field int
	switch code {
	case RequestEnterSIMPIN, RequestChangeSIMPIN:
		field = 0
	case RequestEnterSIMPUK:
		field = 1
	case RequestEnterSIMPIN2, RequestChangeSIMPIN2:
		field = 2
	case RequestEnterSIMPUK2:
		field = 3
	default:
		return -1
	}

	resp, err := ch.SingleLine(ctx, "AT*EPIN?", "*EPIN:")
	if err != nil {
		return -1
	}
	tok, err := at.NewTokenizer(resp.Line())
	if err != nil {
		return -1
	}
	// <pin>,<puk>,<pin2>,<puk2>
	var n int
	for i := 0; i <= field; i++ {
		if n, err = tok.NextInt(); err != nil {
			return -1
		}
	}
	return n
}

func (r *RIL) requestGetSIMStatus(c *call) (any, error) {
	status := r.simStatus(c.ctx, c.ch)
	card := CardStatus{
		Present:    status != SIMAbsent,
		Status:     status,
		PINRetries: -1,
	}
	switch status {
	case SIMPIN, SIMPUK:
		card.PINRetries = r.numRetries(c.ctx, c.ch, RequestEnterSIMPIN)
	}
	return card, nil
}

// pollSIMState moves the radio state along with the SIM. It only acts
// while the radio waits for the SIM.
func (r *RIL) pollSIMState(ctx context.Context, ch *modem.Channel) {
	switch r.session.RadioState() {
	case RadioSIMNotReady, RadioSIMLockedOrAbsent:
		r.updateSIMState(ctx, ch)
	}
}

// forcePollSIMState polls regardless of the radio state, after a PIN
// event.
func (r *RIL) forcePollSIMState(ctx context.Context, ch *modem.Channel) {
	r.updateSIMState(ctx, ch)
}

func (r *RIL) updateSIMState(ctx context.Context, ch *modem.Channel) {
	switch status := r.simStatus(ctx, ch); status {
	case SIMNotReady:
		r.logger.Debug("SIM not ready, polling", "retry_in", r.timing.simPoll)
		r.sched.Enqueue(LanePrio, r.pollSIMState, r.timing.simPoll)
	case SIMPIN2, SIMPUK2, SIMPUK2PermBlocked, SIMReady:
		r.session.SetRadioState(RadioSIMReady)
	default:
		r.logger.Info("SIM locked or absent", "sim_status", status)
		r.session.SetRadioState(RadioSIMLockedOrAbsent)
	}
}

// requestEnterSIMPIN takes [pin] or [puk, new pin] for a PUK-blocked SIM.
func (r *RIL) requestEnterSIMPIN(c *call) (any, error) {
	return r.enterSIMCode(c, RequestEnterSIMPIN)
}

// requestEnterSIMPUK takes [puk, new pin].
func (r *RIL) requestEnterSIMPUK(c *call) (any, error) {
	return r.enterSIMCode(c, RequestEnterSIMPUK)
}

// requestEnterSIMPIN2 takes [pin2].
func (r *RIL) requestEnterSIMPIN2(c *call) (any, error) {
	return r.enterSIMCode(c, RequestEnterSIMPIN2)
}

// requestEnterSIMPUK2 takes [puk2, new pin2].
func (r *RIL) requestEnterSIMPUK2(c *call) (any, error) {
	return r.enterSIMCode(c, RequestEnterSIMPUK2)
}

func (r *RIL) enterSIMCode(c *call, code Code) (any, error) {
	args, ok := argsOf[[]string](c.req)
	if !ok || !allDigits(args) {
		return nil, StatusGenericFailure
	}

	var cmd string
	switch len(args) {
	case 1:
		cmd = fmt.Sprintf(`AT+CPIN="%s"`, args[0])
	case 2:
		cmd = fmt.Sprintf(`AT+CPIN="%s","%s"`, args[0], args[1])
	default:
		return nil, StatusGenericFailure
	}

	return r.unlock(c, code, cmd)
}

// requestChangeSIMPIN takes [old pin, new pin].
func (r *RIL) requestChangeSIMPIN(c *call) (any, error) {
	return r.changePassword(c, "SC", RequestChangeSIMPIN)
}

// requestChangeSIMPIN2 takes [old pin2, new pin2].
func (r *RIL) requestChangeSIMPIN2(c *call) (any, error) {
	return r.changePassword(c, "P2", RequestChangeSIMPIN2)
}

func (r *RIL) changePassword(c *call, facility string, code Code) (any, error) {
	args, ok := argsOf[[]string](c.req)
	if !ok || len(args) < 2 || !allDigits(args[:2]) {
		return nil, StatusGenericFailure
	}
	return r.unlock(c, code, fmt.Sprintf(`AT+CPWD="%s","%s","%s"`, facility, args[0], args[1]))
}

func allDigits(args []string) bool {
	for _, a := range args {
		if !isDigits(a) {
			return false
		}
	}
	return true
}

// unlock sends a PIN command. Wrong codes complete with
// StatusPasswordIncorrect and the attempts left.
func (r *RIL) unlock(c *call, code Code, cmd string) (any, error) {
	err := c.ch.Command(c.ctx, cmd)
	if err == nil {
		return SIMUnlock{Retries: r.numRetries(c.ctx, c.ch, code)}, nil
	}

	var cme at.Code
	if errors.As(err, &cme) {
		switch cme.CME() {
		case at.CMESIMPINRequired, at.CMESIMPUKRequired, at.CMEIncorrectPassword,
			at.CMESIMPIN2Required, at.CMESIMPUK2Required:
			retries := r.numRetries(c.ctx, c.ch, code)
			return SIMUnlock{Retries: retries}, fmt.Errorf("%w: %w", StatusPasswordIncorrect, err)
		}
	}
	return nil, err
}

// requestQueryFacilityLock takes [facility, password, class] and returns
// the lock state, 0 or 1.
func (r *RIL) requestQueryFacilityLock(c *call) (any, error) {
	args, ok := argsOf[[]string](c.req)
	if !ok || len(args) < 1 {
		return nil, StatusGenericFailure
	}
	facility, password, class := args[0], optionalArg(args, 1), optionalArg(args, 2)
	if !validFacility(facility, password, class) {
		return nil, StatusGenericFailure
	}

	resp, err := c.ch.SingleLine(c.ctx, facilityCommand(facility, 2, password, class), "+CLCK:")
	if err != nil {
		return nil, err
	}
	tok, err := at.NewTokenizer(resp.Line())
	if err != nil {
		return nil, err
	}
	return tok.NextInt()
}

// requestSetFacilityLock takes [facility, "0" or "1", password, class].
// The completion carries the attempts left for SC (PIN) and FD (PIN2).
func (r *RIL) requestSetFacilityLock(c *call) (any, error) {
	args, ok := argsOf[[]string](c.req)
	if !ok || len(args) < 2 {
		return nil, StatusGenericFailure
	}
	facility, password, class := args[0], optionalArg(args, 2), optionalArg(args, 3)
	if !validFacility(facility, password, class) {
		return nil, StatusGenericFailure
	}
	var mode int
	switch args[1] {
	case "0":
	case "1":
		mode = 1
	default:
		return nil, StatusGenericFailure
	}

	unlock := SIMUnlock{Retries: -1}
	err := c.ch.Command(c.ctx, facilityCommand(facility, mode, password, class))
	if err != nil {
		var code at.Code
		if !errors.As(err, &code) || code.Tier() == at.TierAT {
			return unlock, err
		}
		switch code.CME() {
		case at.CMESIMPINRequired, at.CMEIncorrectPassword, at.CMESIMPIN2Required:
			err = fmt.Errorf("%w: %w", StatusPasswordIncorrect, err)
		case at.CMESIMPUKRequired:
			unlock.Retries = 0
			err = fmt.Errorf("%w: %w", StatusPasswordIncorrect, err)
		case at.CMESIMPUK2Required:
			unlock.Retries = 0
			err = fmt.Errorf("%w: %w", StatusSIMPUK2, err)
		}
	}

	switch facility {
	case "SC":
		unlock.Retries = r.numRetries(c.ctx, c.ch, RequestEnterSIMPIN)
	case "FD":
		unlock.Retries = r.numRetries(c.ctx, c.ch, RequestEnterSIMPIN2)
	}
	return unlock, err
}

// facilityCommand builds AT+CLCK, leaving out trailing empty arguments.
func facilityCommand(facility string, mode int, password, class string) string {
	cmd := fmt.Sprintf(`AT+CLCK="%s",%d`, facility, mode)
	if password != "" || class != "" {
		cmd += fmt.Sprintf(`,"%s"`, password)
	}
	if class != "" {
		cmd += "," + class
	}
	return cmd
}

// validFacility checks a two character facility name, and a password and
// class that are either empty or numeric.
func validFacility(facility, password, class string) bool {
	if len(facility) != 2 {
		return false
	}
	for i := 0; i < len(facility); i++ {
		c := facility[i]
		if (c < 'A' || c > 'Z') && (c < '0' || c > '9') {
			return false
		}
	}
	return (password == "" || isDigits(password)) && (class == "" || isDigits(class))
}

func optionalArg(args []string, i int) string {
	if i < len(args) {
		return args[i]
	}
	return ""
}

// onSIMStateChanged handles *ESIMSR: <state>.
func (r *RIL) onSIMStateChanged(line string) {
	removed, resetting := r.session.simFlags()
	if removed {
		return
	}

	state, err := firstInt(line)
	if err != nil {
		r.logger.Warn("Failed to parse *ESIMSR", "line", line, "error", err)
		return
	}

	switch {
	case state == 7:
		r.logger.Info("SIM is resetting")
		r.session.setSIMResetting(true)
		r.session.SetRadioState(RadioSIMLockedOrAbsent)
	case state == 4 && resetting:
		// Reset into a locked SIM.
		r.session.setSIMResetting(false)
		r.session.SetRadioState(RadioSIMNotReady)
		r.session.SetRadioState(RadioSIMLockedOrAbsent)
	case state == 5 && resetting:
		r.session.setSIMResetting(false)
		r.session.SetRadioState(RadioSIMNotReady)
		r.session.SetRadioState(RadioSIMReady)
	case state == 2 || state == 3:
		r.session.SetRadioState(RadioSIMLockedOrAbsent)
	}

	r.host.OnUnsolicited(UnsolSIMStatusChanged, nil)
}

// onSIMHotswap handles *EESIMSWAP: 0 (removed) and 1 (inserted). An
// inserted SIM restarts the modem, so the closing channel that follows is
// not reported as a radio loss.
func (r *RIL) onSIMHotswap(line string) {
	inserted, err := firstInt(line)
	if err != nil {
		r.logger.Warn("Failed to parse *EESIMSWAP", "line", line, "error", err)
		return
	}

	switch inserted {
	case 0:
		r.logger.Info("SIM removed")
		r.session.setSIMRemoved(true)
		r.session.SetRadioState(RadioSIMNotReady)
		r.session.SetRadioState(RadioSIMLockedOrAbsent)
	case 1:
		r.logger.Info("SIM inserted")
		r.session.setSIMRemoved(false)
		r.session.setPendingHotswap(true)
	}
}
