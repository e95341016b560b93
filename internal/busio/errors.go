// Package busio implements the serialized bus arbiter (C4) and the
// transport engine (C5): frame construction, retries, statistics, and
// failure classification.
package busio

// ErrorKind is the single error enumeration surfaced at the public
// boundary (spec §7). It satisfies the error interface so it can be
// returned directly or wrapped.
type ErrorKind int

const (
	// Success is the sentinel "no error" value.
	Success ErrorKind = iota
	// Unspecified covers unknown failures that should not occur in
	// steady-state operation.
	Unspecified
	// InvalidArgument marks caller-side misuse.
	InvalidArgument
	// NotSupported is returned when a device reports an opcode as not
	// implemented.
	NotSupported

	// TransportChecksumError: a full response arrived but its CRC-8 did
	// not match.
	TransportChecksumError
	// TransportReceptionNoAnswerError: zero bytes came back.
	TransportReceptionNoAnswerError
	// TransportReceptionMissingDataError: fewer bytes than expected came
	// back.
	TransportReceptionMissingDataError
	// TransportTransmissionError: the write itself failed.
	TransportTransmissionError

	// DeviceNotInitialized: an operation needed Info/ExtendedInfo that
	// has not been fetched yet.
	DeviceNotInitialized
	// DeviceStatisticsNotSupported: the device's Info bit says packet
	// statistics aren't available.
	DeviceStatisticsNotSupported
	// DeviceUptimeNotSupported: uptime_frequency was zero.
	DeviceUptimeNotSupported
	// DeviceRejectedBusAddress: SetBusAddress got ack == 0.
	DeviceRejectedBusAddress
	// DeviceStaticStorageAddressSizeError: an unaligned or over-length
	// storage write/read was requested.
	DeviceStaticStorageAddressSizeError
	// DeviceStaticStorageWriteError: the device's status byte reported a
	// write failure.
	DeviceStaticStorageWriteError

	// NoAssertionDetected is a discovery *signal*, not a failure: zero
	// slaves matched a bus-assertion broadcast.
	NoAssertionDetected
)

// TransportReceptionError is an alias of TransportReceptionNoAnswerError
// kept for compatibility with call sites written against the older name
// (spec §7).
const TransportReceptionError = TransportReceptionNoAnswerError

var names = map[ErrorKind]string{
	Success:                              "success",
	Unspecified:                          "unspecified error",
	InvalidArgument:                      "invalid argument",
	NotSupported:                         "not supported",
	TransportChecksumError:               "transport: checksum error",
	TransportReceptionNoAnswerError:      "transport: no answer",
	TransportReceptionMissingDataError:   "transport: missing data",
	TransportTransmissionError:           "transport: transmission error",
	DeviceNotInitialized:                 "device: not initialized",
	DeviceStatisticsNotSupported:         "device: statistics not supported",
	DeviceUptimeNotSupported:             "device: uptime not supported",
	DeviceRejectedBusAddress:             "device: rejected bus address",
	DeviceStaticStorageAddressSizeError:  "device: static storage address/size error",
	DeviceStaticStorageWriteError:        "device: static storage write error",
	NoAssertionDetected:                  "discovery: no assertion detected",
}

func (e ErrorKind) String() string {
	if s, ok := names[e]; ok {
		return s
	}
	return "unknown error"
}

// Error implements the error interface so ErrorKind can be returned
// directly wherever Go idiom expects one, while retryable callers can
// still switch on the underlying ErrorKind value.
func (e ErrorKind) Error() string { return e.String() }

// retryable reports whether a raw back-end outcome should trigger another
// attempt within the retry budget (spec §4.5 classification table).
func (e ErrorKind) retryable() bool {
	switch e {
	case TransportChecksumError,
		TransportReceptionNoAnswerError,
		TransportReceptionMissingDataError,
		TransportTransmissionError:
		return true
	default:
		return false
	}
}
