package flashbots

import (
	"errors"
	"strings"
)

// Friendly maps common relay failure strings to short readable reasons.
// Unknown messages are returned unchanged.
func Friendly(s string) string {
	ls := strings.ToLower(strings.TrimSpace(s))
	if strings.HasPrefix(ls, "400 bad request") {
		if i := strings.Index(ls, "{"); i > 0 {
			ls = ls[i:]
		}
	}
	switch {
	case strings.Contains(ls, "unsupported: eth_callbundle"),
		strings.Contains(ls, "method not found"),
		strings.Contains(ls, "method not available"),
		strings.Contains(ls, "invalid method"):
		return "simulation not supported by relay"
	case strings.Contains(ls, "insufficient funds for gas"):
		return "insufficient ETH for simulation"
	case strings.Contains(ls, "invalid character '<'"):
		return "non-JSON/HTML response (proxy/cf?)"
	case strings.Contains(ls, "dial tcp"), strings.Contains(ls, "lookup "):
		return "network/DNS error"
	case strings.Contains(ls, "too many requests"), strings.Contains(ls, "429"):
		return "rate limited by relay"
	}
	return s
}

type friendlyError struct {
	msg string
	err error
}

func (e *friendlyError) Error() string { return e.msg }
func (e *friendlyError) Unwrap() error { return e.err }

// normalize keeps err in the chain but leads with the readable reason.
func normalize(err error) error {
	if err == nil {
		return nil
	}
	f := Friendly(err.Error())
	if f == err.Error() {
		return err
	}
	var fe *friendlyError
	if errors.As(err, &fe) {
		return err
	}
	return &friendlyError{msg: f + ": " + err.Error(), err: err}
}
