package errorz

import "fmt"

// DataAccess is returned by the data layer whenever a database call fails.
// Kind is either ErrTimeout or ErrDataAccess, Component names the part of
// the code base that issued the call.
type DataAccess struct {
	Component string
	Kind      error
	Err       error
}

// NewDataAccess classifies err and wraps it with the component name.
// Errors that are already a DataAccess are returned as is.
func NewDataAccess(component string, err error) error {
	if err == nil {
		return nil
	}

	if _, ok := err.(DataAccess); ok {
		return err
	}

	kind := ErrDataAccess
	if IsTimeout(err) {
		kind = ErrTimeout
	}

	return DataAccess{
		Component: component,
		Kind:      kind,
		Err:       MapDBErr(err),
	}
}

func (e DataAccess) Error() string {
	return fmt.Sprintf("%s: %v: %v", e.Component, e.Kind, e.Err)
}

func (e DataAccess) Unwrap() []error {
	return []error{e.Kind, e.Err}
}
