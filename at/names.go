package at

const unknownName = "--UNKNOWN--"

var atNames = map[int]string{
	0: "NOERROR",
	1: "ERROR_GENERIC",
	2: "ERROR_COMMAND_PENDING",
	3: "ERROR_CHANNEL_CLOSED",
	4: "ERROR_TIMEOUT",
	5: "ERROR_INVALID_THREAD",
	6: "ERROR_INVALID_RESPONSE",
	7: "ERROR_MEMORY_ALLOCATION",
	8: "ERROR_STRING_CREATION",
}

// 3GPP TS 27.007 section 9.2
var cmeNames = map[int]string{
	0:   "MODULE_FAILURE",
	1:   "NO_MODULE_CONNECTION",
	2:   "PHONE_ADAPTER_RESERVED",
	3:   "OPERATION_NOT_ALLOWED",
	4:   "OPERATION_NOT_SUPPORTED",
	5:   "PH_SIM_PIN",
	6:   "PH_FSIM_PIN",
	7:   "PH_FSIM_PUK",
	10:  "SIM_NOT_INSERTED",
	11:  "SIM_PIN_REQUIRED",
	12:  "SIM_PUK_REQUIRED",
	13:  "FAILURE",
	14:  "SIM_BUSY",
	15:  "SIM_WRONG",
	16:  "INCORRECT_PASSWORD",
	17:  "SIM_PIN2_REQUIRED",
	18:  "SIM_PUK2_REQUIRED",
	20:  "MEMORY_FULL",
	21:  "INVALID_INDEX",
	22:  "NOT_FOUND",
	23:  "MEMORY_FAILURE",
	24:  "STRING_TO_LONG",
	25:  "INVALID_CHAR",
	26:  "DIALSTR_TO_LONG",
	27:  "INVALID_DIALCHAR",
	30:  "NO_NETWORK_SERVICE",
	31:  "NETWORK_TIMEOUT",
	32:  "NETWORK_NOT_ALLOWED",
	40:  "NETWORK_PERSONALIZATION_PIN_REQUIRED",
	41:  "NETWORK_PERSONALIZATION_PUK_REQUIRED",
	42:  "NETWORK_SUBSET_PERSONALIZATION_PIN_REQUIRED",
	43:  "NETWORK_SUBSET_PERSONALIZATION_PUK_REQUIRED",
	44:  "SERVICE_PROVIDER_PERSONALIZATION_PIN_REQUIRED",
	45:  "SERVICE_PROVIDER_PERSONALIZATION_PUK_REQUIRED",
	46:  "CORPORATE_PERSONALIZATION_PIN_REQUIRED",
	47:  "CORPORATE_PERSONALIZATION_PUK_REQUIRED",
	48:  "HIDDEN_KEY",
	49:  "EAP_NOT_SUPORTED",
	50:  "INCORRECT_PARAMETERS",
	100: "UNKNOWN",
	103: "ILLEGAL_MS",
	106: "ILLEGAL_ME",
	111: "PLMN_NOT_ALLOWED",
	112: "LOCATION_AREA_NOT_ALLOWED",
	113: "ROAMING_AREA_NOT_ALLOWED",
	132: "SERVICE_NOT_SUPPORTED",
	133: "SERVICE_NOT_SUBSCRIBED",
	134: "SERVICE_TEMPORARILY_OUT",
	148: "UNSPECIFIED_GPRS_ERROR",
	149: "PDP_AUTH_FAILURE",
	150: "INVALID_MOBILE_CLASS",
	200: "PH_SIMLOCK_PIN_REQUIRED",
	257: "SYNTAX_ERROR",
	258: "INVALID_PARAMETER",
	259: "LENGTH_ERROR",
	260: "SIM_AUTH_FAILURE",
	261: "SIM_FILE_ERROR",
	262: "FILE_SYSTEM_ERROR",
	263: "SERVICE_UNAVIABLE",
	264: "PHONEBOOK_NOT_READY",
	265: "PHONEBOOK_NOT_SUPPORTED",
	266: "COMMAND_TO_LONG",
	267: "PARAMETER_OUT_OF_RANGE",
	268: "BAND_NOT_ALLOWED",
	269: "SUPPLEMENTARY_SERIVEC_FAILURE",
	270: "COMMAND_ABORTED",
	271: "ACTION_ALREADY_IN_PROGRESS",
	272: "WAN_DISABLED",
	273: "GPS_DISABLE_DUE_TO_TEMP",
	274: "RADIO_NOT_ACTIVATED",
	275: "USB_NOT_CONFIGURED",
	276: "NOT_CONNECTED",
	277: "NOT_DISCONNECTED",
	278: "TOO_MANY_CONNECTIONS",
	279: "TOO_MANY_USERS",
	280: "FDN_RESTRICITONS",
}

// 3GPP TS 27.005 section 3.2.5 and TS 24.011 annex E
var cmsNames = map[int]string{
	1:   "UNASSIGNED_NUMBER",
	8:   "BARRING",
	10:  "CALL_BARRED",
	21:  "SHORT_MESSAGE_REJECTED",
	27:  "DESTINATION_OUT_OF_SERVICE",
	28:  "UNIDENTIFIED_SUBSCRIBER",
	29:  "FACILITY_REJECTED",
	30:  "UNKNOWN_SUBSCRIBER",
	38:  "NETWORK_OUT_OF_ORDER",
	41:  "TEMP_FAILURE",
	42:  "SMS_CONGESTION",
	47:  "RESOURCE_UNAVAIBLE",
	50:  "REQUESTED_FACILITY_NOT_SUBSCRIBED",
	69:  "REQUESTED_FACILITY_NOT_IMPLEMENTED",
	81:  "INVALID_SMS_REF",
	95:  "INVALID_MESSAGE",
	96:  "INVALID_MANDATORY_INFORMATION",
	97:  "MESSAGE_TYPE_NOT_IMPLEMENTED",
	98:  "MESSAGE_NOT_COMPATIBLE",
	99:  "INFORMATION_ELEMENT_NOT_IMPLEMENTED",
	111: "PROTOCOL_ERROR",
	127: "INTERWORKING_UNSPECIFIED",
	128: "TELEMATIC_INTERWORKING_NOT_SUPPORTED",
	129: "SHORT_MESSAGE_TYPE_0_NOT_SUPPORTED",
	130: "CANNOT_REPLACE_SHORT_MESSAGE",
	143: "UNSPECIFIED_TP_PID_ERROR",
	144: "DATA_SCHEME_NOT_SUPPORTED",
	145: "MESSAGE_CLASS_NOT_SUPPORTED",
	159: "UNSPECIFIED_TP_DCS_ERROR",
	160: "COMMAND_CANT_BE_ACTIONED",
	161: "COMMAND_UNSUPPORTED",
	175: "UNSPECIFIED_TP_COMMAND",
	176: "TPDU_NOT_SUPPORTED",
	192: "SC_BUSY",
	193: "NO_SC_SUBSCRIPTINO",
	194: "SC_FAILURE",
	195: "INVALID_SME_ADDRESS",
	196: "SME_BARRIED",
	197: "SM_DUPLICATE_REJECTED",
	198: "TP_VPF_NOT_SUPPORTED",
	199: "TP_VP_NOT_SUPPORTED",
	208: "SIM_SMS_FULL",
	209: "NO_SMS_STORAGE_CAPABILITY",
	210: "ERROR_IN_MS",
	211: "MEMORY_CAPACITY_EXCEEDED",
	212: "STK_BUSY",
	255: "UNSPECIFIED_ERROR",
	300: "ME_FAILURE",
	301: "SMS_OF_ME_RESERVED",
	302: "SERVICE_OPERATION_NOT_ALLOWED",
	303: "SERVICE_OPERATION_NOT_SUPPORTED",
	304: "INVALID_PDU_PARAMETER",
	305: "INVALID_TEXT_PARAMETER",
	310: "SERVICE_SIM_NOT_INSERTED",
	311: "SERVICE_SIM_PIN_REQUIRED",
	312: "PH_SIM_PIN_REQUIRED",
	313: "SIM_FAILURE",
	314: "SERVICE_SIM_BUSY",
	315: "SERVICE_SIM_WRONG",
	316: "SIM_PUK_REQUIRED",
	317: "SERVICE_SIM_PIN2_REQUIRED",
	318: "SERVICE_SIM_PUK2_REQUIRED",
	320: "SERVICE_MEMORY_FAILURE",
	321: "INVALID_MEMORY_INDEX",
	322: "SERVICE_MEMORY_FULL",
	330: "SMSC_ADDR_UNKNOWN",
	331: "NO_NETWORK_SERVICE",
	332: "NETWORK_TIMEOUT",
	340: "NO_CNMA",
	500: "UNKNOWN_ERROR",
}

var genericNames = map[int]string{
	1: "ERROR_RESPONSE",
	2: "NO_CARRIER_RESPONSE",
	3: "NO_ANSWER_RESPONSE",
	4: "NO_DIALTONE_RESPONSE",
	5: "ERROR_UNSPECIFIED",
}
