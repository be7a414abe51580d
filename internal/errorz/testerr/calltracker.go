package testerr

import "errors"

// Err is the error returned by failing dependencies in tests.
var Err = errors.New("test error")

// Calltracker tracks calls to a dependency so tests can simulate it failing
// at a specific point in a call sequence.
// The zero value is ready to use and will never fail.
type Calltracker struct {
	CallIndex         int
	ShouldFail        bool
	Err               error
	FailAllAfterIndex bool
	FailAtIndex       int
}

// NewFailingDeps creates calltrackers that fail at every point in a
// sequence of expectCalls calls.
//
// Each call index gets two trackers:
// - One that fails once and then succeeds.
// - One that keeps failing from that index on.
func NewFailingDeps(err error, expectCalls int) []Calltracker {
	trackers := make([]Calltracker, 0, expectCalls*2)
	for i := 0; i < expectCalls; i++ {
		trackers = append(trackers, Calltracker{
			CallIndex:         -1,
			ShouldFail:        true,
			Err:               err,
			FailAllAfterIndex: true,
			FailAtIndex:       i,
		}, Calltracker{
			CallIndex:         -1,
			ShouldFail:        true,
			Err:               err,
			FailAllAfterIndex: false,
			FailAtIndex:       i,
		})
	}

	return trackers
}

// MaybeFailErrFunc returns the tracker error if this call is meant to fail,
// otherwise it returns the result of f.
func MaybeFailErrFunc(ct *Calltracker, f func() error) error {
	if ct.fails() {
		return ct.Err
	}
	return f()
}

// MaybeFail is MaybeFailErrFunc for functions that also return a value.
func MaybeFail[T any](ct *Calltracker, f func() (T, error)) (T, error) {
	if ct.fails() {
		var zero T
		return zero, ct.Err
	}
	return f()
}

func (ct *Calltracker) fails() bool {
	if !ct.ShouldFail {
		return false
	}

	ct.CallIndex++

	if ct.FailAtIndex == ct.CallIndex {
		return true
	}

	return ct.FailAllAfterIndex && ct.CallIndex > ct.FailAtIndex
}
