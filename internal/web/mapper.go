package web

import (
	"context"
	"errors"
	"net/http"

	"github.com/gorilla/schema"
	"github.com/willemschots/accounts/internal/errorz"
	"github.com/willemschots/accounts/internal/web/sessions"
)

// shared holds the values every step of a mapper has access to.
type shared struct {
	w    http.ResponseWriter
	r    *http.Request
	sess *sessions.Session
}

// result is the result of a succesful request.
// it contains all relevant data because we can't know
// in advance what we will need to construct a response.
type result[IN, OUT any] struct {
	shared
	in  IN
	out OUT
}

// mapper is a generic HTTP handler that maps requests to target
// function calls and writes the output to the response.
type mapper[IN, OUT any] struct {
	srv         *Server
	reqToInFunc func(s shared) (IN, error)
	targetFunc  func(context.Context, IN) (OUT, error)
	onSuccess   func(result[IN, OUT]) error
	onFail      func(s shared, err error)
}

// newHandler creates a HTTP Handler that:
// 1. Maps the request form to a value of input type IN.
// 2. Calls the target func with that value.
// 3. Calls the success func with the output of type OUT.
//
// Errors are written using the server error handler.
func newHandler[IN, OUT any](srv *Server, targetFunc func(context.Context, IN) (OUT, error)) *mapper[IN, OUT] {
	return &mapper[IN, OUT]{
		srv: srv,
		reqToInFunc: func(s shared) (IN, error) {
			return defaultReqToIn[IN](srv, s)
		},
		targetFunc: targetFunc,
		onSuccess: func(r result[IN, OUT]) error {
			return errors.New("no success handler")
		},
		onFail: func(s shared, err error) {
			srv.handleError(s.w, s.r, err)
		},
	}
}

// newInputHandler is newHandler for target funcs without output.
func newInputHandler[IN any](srv *Server, targetFunc func(context.Context, IN) error) *mapper[IN, struct{}] {
	return newHandler(srv, func(ctx context.Context, in IN) (struct{}, error) {
		return struct{}{}, targetFunc(ctx, in)
	})
}

// request overwrites the function that maps the request to the input type.
func (m *mapper[IN, OUT]) request(fn func(s shared) (IN, error)) *mapper[IN, OUT] {
	m.reqToInFunc = fn
	return m
}

// success overwrites the function that writes the output to the response.
func (m *mapper[IN, OUT]) success(fn func(r result[IN, OUT]) error) *mapper[IN, OUT] {
	m.onSuccess = fn
	return m
}

// fail overwrites the function that writes errors to the response.
func (m *mapper[IN, OUT]) fail(fn func(s shared, err error)) *mapper[IN, OUT] {
	m.onFail = fn
	return m
}

func (m *mapper[IN, OUT]) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	sess, err := sessionFromCtx(r.Context())
	if err != nil {
		m.srv.handleError(w, r, err)
		return
	}

	s := shared{w: w, r: r, sess: sess}

	in, err := m.reqToInFunc(s)
	if err != nil {
		m.onFail(s, err)
		return
	}

	out, err := m.targetFunc(r.Context(), in)
	if err != nil {
		m.onFail(s, err)
		return
	}

	err = m.onSuccess(result[IN, OUT]{
		shared: s,
		in:     in,
		out:    out,
	})
	if err != nil {
		m.srv.handleError(w, r, err)
		return
	}
}

// defaultReqToIn is the default way to map a request to a struct.
func defaultReqToIn[IN any](srv *Server, s shared) (IN, error) {
	var in IN
	err := s.r.ParseForm()
	if err != nil {
		return in, err
	}

	// The decoder fails on unknown keys and none of the input types has
	// a field for the CSRF token. Decode a copy, r.Form is needed intact
	// to re-render forms.
	form := make(map[string][]string, len(s.r.Form))
	for k, v := range s.r.Form {
		if k != csrfTokenField {
			form[k] = v
		}
	}

	err = srv.decoder.Decode(&in, form)
	return in, decodeError(err)
}

// noInput maps requests without any input.
func noInput(shared) (struct{}, error) {
	return struct{}{}, nil
}

func decodeError(err error) error {
	if err == nil {
		return nil
	}

	var multiErr schema.MultiError
	if errors.As(err, &multiErr) {
		var invalidInput errorz.InvalidInput
		for key, e := range multiErr {
			// Unknown keys don't belong to any field of the form.
			var unknownKey schema.UnknownKeyError
			if errors.As(e, &unknownKey) {
				key = ""
			}

			invalidInput = append(invalidInput, errorz.Keyed{
				Key: key,
				Err: e,
			})
		}

		return invalidInput
	}

	return err
}

// redirectTo is a success func that redirects to url, after saving any
// changes made to the session.
func redirectTo[IN, OUT any](srv *Server, url string) func(r result[IN, OUT]) error {
	return func(r result[IN, OUT]) error {
		err := srv.saveSession(r.w, r.r, r.sess)
		if err != nil {
			return err
		}

		http.Redirect(r.w, r.r, url, http.StatusSeeOther)
		return nil
	}
}

// formFail re-renders the form in view when the input was invalid, other
// errors are handled by the server error handler.
func formFail(srv *Server, view string) func(s shared, err error) {
	return func(s shared, err error) {
		var invalidInput errorz.InvalidInput
		if !errors.As(err, &invalidInput) {
			srv.handleError(s.w, s.r, err)
			return
		}

		err = srv.writeFormView(s.w, s.r, view, invalidInput)
		if err != nil {
			srv.handleError(s.w, s.r, err)
		}
	}
}
