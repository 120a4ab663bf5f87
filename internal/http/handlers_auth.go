package http

import "net/http"

func (s *Server) handleSignUp(w http.ResponseWriter, r *http.Request) {
	body, err := parseBody(w, r)
	if err != nil {
		ErrorResponse(r.Context(), err, s.locale).Write(w)
		return
	}
	confirm := body.Get("confirmPassword")
	if !body.Has("confirmPassword") {
		confirm = body.Get("password")
	}

	sess, err := s.auth.SignUp(r.Context(), body.Get("email"), body.Get("password"), confirm)
	if err != nil {
		ErrorResponse(r.Context(), err, s.locale).Write(w)
		return
	}
	NewResponse().Status(http.StatusCreated).JSON(sess).Write(w)
}

func (s *Server) handleSignIn(w http.ResponseWriter, r *http.Request) {
	body, err := parseBody(w, r)
	if err != nil {
		ErrorResponse(r.Context(), err, s.locale).Write(w)
		return
	}
	sess, err := s.auth.SignIn(r.Context(), body.Get("email"), body.Get("password"))
	if err != nil {
		ErrorResponse(r.Context(), err, s.locale).Write(w)
		return
	}
	NewResponse().JSON(sess).Write(w)
}

// handleGoogleStart returns the consent URL, or redirects to it when
// redirect=true.
func (s *Server) handleGoogleStart(w http.ResponseWriter, r *http.Request) {
	consentURL, err := s.auth.FederatedURL()
	if err != nil {
		ErrorResponse(r.Context(), err, s.locale).Write(w)
		return
	}
	if queryBool(r, "redirect") {
		http.Redirect(w, r, consentURL, http.StatusFound)
		return
	}
	NewResponse().JSON(map[string]string{"url": consentURL}).Write(w)
}

// handleGoogleCallback completes federated sign-in. A consent screen
// dismissed by the user arrives without a code.
func (s *Server) handleGoogleCallback(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	code := q.Get("code")
	if q.Get("error") != "" {
		code = ""
	}
	sess, err := s.auth.SignInFederated(r.Context(), q.Get("state"), code)
	if err != nil {
		ErrorResponse(r.Context(), err, s.locale).Write(w)
		return
	}
	NewResponse().JSON(sess).Write(w)
}

func (s *Server) handleSignOut(w http.ResponseWriter, r *http.Request) {
	if err := s.auth.SignOut(r.Context(), bearerToken(r)); err != nil {
		ErrorResponse(r.Context(), err, s.locale).Write(w)
		return
	}
	NewResponse().Status(http.StatusNoContent).Write(w)
}

func (s *Server) handlePasswordReset(w http.ResponseWriter, r *http.Request) {
	body, err := parseBody(w, r)
	if err != nil {
		ErrorResponse(r.Context(), err, s.locale).Write(w)
		return
	}
	if err := s.auth.RequestPasswordReset(r.Context(), body.Get("email")); err != nil {
		ErrorResponse(r.Context(), err, s.locale).Write(w)
		return
	}
	NewResponse().Status(http.StatusAccepted).JSON(map[string]string{"status": "sent"}).Write(w)
}

func (s *Server) handlePasswordResetConfirm(w http.ResponseWriter, r *http.Request) {
	body, err := parseBody(w, r)
	if err != nil {
		ErrorResponse(r.Context(), err, s.locale).Write(w)
		return
	}
	if err := s.auth.ConfirmPasswordReset(r.Context(), body.Get("token"), body.Get("newPassword")); err != nil {
		ErrorResponse(r.Context(), err, s.locale).Write(w)
		return
	}
	NewResponse().Status(http.StatusNoContent).Write(w)
}
