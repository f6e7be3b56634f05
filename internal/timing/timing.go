// Package timing is the observability capability the engines call through.
package timing

import "time"

// Observer receives one call per completed operation.
type Observer interface {
	Observe(operation string, elapsed time.Duration, err error)
}

type nop struct{}

func (nop) Observe(string, time.Duration, error) {}

// Nop discards every observation.
var Nop Observer = nop{}

// Track reports the operation started at start. Intended for defer with a
// pointer to the named error result:
//
//	defer timing.Track(obs, "cards", time.Now(), &err)
func Track(o Observer, operation string, start time.Time, errp *error) {
	if o == nil {
		return
	}
	var err error
	if errp != nil {
		err = *errp
	}
	o.Observe(operation, time.Since(start), err)
}

// OrNop returns o, or Nop when o is nil.
func OrNop(o Observer) Observer {
	if o == nil {
		return Nop
	}
	return o
}
