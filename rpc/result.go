package rpc

// Result is the outcome of a method: either an Ok value, answered with 200,
// or a Fail value, answered with 400.
type Result[O, E any] struct {
	ok     O
	err    E
	failed bool
}

// Ok returns a successful result
func Ok[O, E any](value O) Result[O, E] {
	return Result[O, E]{ok: value}
}

// Fail returns a business error result
func Fail[O, E any](value E) Result[O, E] {
	return Result[O, E]{err: value, failed: true}
}

// Failed reports whether the result carries an error value
func (r Result[O, E]) Failed() bool {
	return r.failed
}

// Value returns the Ok value and true, or the zero value and false
func (r Result[O, E]) Value() (O, bool) {
	return r.ok, !r.failed
}

// Err returns the Fail value and true, or the zero value and false
func (r Result[O, E]) Err() (E, bool) {
	return r.err, r.failed
}

func (r Result[O, E]) outcome() Outcome {
	if r.failed {
		return Outcome{Failed: true, Payload: r.err}
	}
	return Outcome{Payload: r.ok}
}

// Outcome is a Result with its types erased, as seen by the dispatcher
type Outcome struct {
	Failed  bool
	Payload any
}
