package engine

import "fmt"

// Reject is a caller-visible rejection carrying a protocol error code.
// Every precondition failure surfaces as one of these; the operation that
// produced it left no state behind.
type Reject struct {
	Code string
	Msg  string
}

func (r *Reject) Error() string { return r.Code + ": " + r.Msg }

func reject(code, format string, args ...any) *Reject {
	return &Reject{Code: code, Msg: fmt.Sprintf(format, args...)}
}

// RejectCode extracts the protocol code from an engine error, or E_INTERNAL
// for anything that is not a Reject.
func RejectCode(err error) string {
	if r, ok := err.(*Reject); ok {
		return r.Code
	}
	return "E_INTERNAL"
}
