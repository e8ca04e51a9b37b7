package storage

import "strconv"

// TransportError wraps any failure to reach or read from the backend.
type TransportError struct {
	Backend string
	Key     string
	Err     error
}

func (e *TransportError) Error() string {
	msg := "fetch " + e.Key + ": " + e.Err.Error()
	if e.Backend != "" {
		msg = e.Backend + ": " + msg
	}
	return msg
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

func (e *TransportError) Is(tgt error) bool {
	return tgt == ErrTransport
}

type StatusError struct {
	Code int
}

func (e *StatusError) Error() string {
	return "Received non-200 code: " + strconv.Itoa(e.Code)
}

func (e *StatusError) Is(tgt error) bool {
	_, ok := tgt.(*StatusError)
	if !ok {
		return false
	}
	return true
}
