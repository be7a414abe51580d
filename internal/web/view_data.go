package web

import (
	"bytes"
	"net/http"
	"net/url"
	"strings"

	"github.com/gorilla/csrf"
	"github.com/willemschots/accounts/internal"
	"github.com/willemschots/accounts/internal/auth"
	"github.com/willemschots/accounts/internal/errorz"
)

type viewData struct {
	Version     string
	CSRFToken   string
	IsLoggedIn  bool
	User        auth.User
	Providers   []string
	Flashes     []string
	InputForm   url.Values
	InputErrors map[string][]string
	// ReturnURL is the local page to continue to after logging in.
	ReturnURL string
	Data      any
}

// prepViewData prepares the data that will be passed to the view.
// Consumes the flashes, so the session needs to be saved before the response is written.
func (s *Server) prepViewData(r *http.Request, data any) (*viewData, error) {
	sess, err := sessionFromCtx(r.Context())
	if err != nil {
		return nil, err
	}

	user, loggedIn := userFromCtx(r.Context())

	// Reads the query for GET requests, so it is parsed before InputForm is copied.
	returnURL := localPath(r.FormValue(returnURLField), "")

	return &viewData{
		Version:     internal.BuildInfo.Version(),
		CSRFToken:   csrf.Token(r),
		IsLoggedIn:  loggedIn,
		User:        user,
		Providers:   s.deps.Providers.Names(),
		Flashes:     sess.ConsumeFlashes(),
		InputForm:   inputForm(r.Form),
		InputErrors: map[string][]string{},
		ReturnURL:   returnURL,
		Data:        data,
	}, nil
}

// inputForm copies the submitted form without passwords, these are never
// written back to the client.
func inputForm(form url.Values) url.Values {
	out := make(url.Values, len(form))
	for k, v := range form {
		if strings.Contains(k, "Password") || k == csrfTokenField {
			continue
		}
		out[k] = v
	}
	return out
}

func (s *Server) writeView(w http.ResponseWriter, r *http.Request, name string, data any) error {
	vd, err := s.prepViewData(r, data)
	if err != nil {
		return err
	}

	return s.renderView(w, r, http.StatusOK, name, vd)
}

// writeFormView re-renders the form in view name with the errors of invalidInput.
func (s *Server) writeFormView(w http.ResponseWriter, r *http.Request, name string, invalidInput errorz.InvalidInput) error {
	vd, err := s.prepViewData(r, nil)
	if err != nil {
		return err
	}

	vd.InputErrors = invalidInput.Fields()

	return s.renderView(w, r, http.StatusBadRequest, name, vd)
}

func (s *Server) renderView(w http.ResponseWriter, r *http.Request, status int, name string, vd *viewData) error {
	sess, err := sessionFromCtx(r.Context())
	if err != nil {
		return err
	}

	// Render to a buffer first, so a failing template doesn't leave a half written page.
	var buf bytes.Buffer
	err = s.deps.ViewRenderer.Render(&buf, name, vd)
	if err != nil {
		return err
	}

	err = s.saveSession(w, r, sess)
	if err != nil {
		return err
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	_, err = buf.WriteTo(w)
	if err != nil {
		s.deps.Logger.Error("failed to write view", "view", name, "error", err)
	}
	return nil
}
