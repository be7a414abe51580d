package errorz

import "strings"

// InvalidInput collects everything that is wrong with a submitted input.
// Errors that belong to a specific field are wrapped in Keyed.
type InvalidInput []error

func (e InvalidInput) Error() string {
	msgs := make([]string, 0, len(e))
	for _, err := range e {
		msgs = append(msgs, err.Error())
	}
	return "invalid input: " + strings.Join(msgs, "; ")
}

func (e InvalidInput) Unwrap() []error {
	return e
}

// Fields groups the messages by field key. Errors without a key end up
// under "".
func (e InvalidInput) Fields() map[string][]string {
	fields := make(map[string][]string, len(e))
	for _, err := range e {
		key, msg := "", err.Error()
		if k, ok := err.(Keyed); ok {
			key, msg = k.Key, k.Err.Error()
		}
		fields[key] = append(fields[key], msg)
	}
	return fields
}

// Keyed ties an error to the input field that caused it.
type Keyed struct {
	Key string
	Err error
}

func (k Keyed) Error() string {
	return k.Key + ": " + k.Err.Error()
}

func (k Keyed) Unwrap() error {
	return k.Err
}
