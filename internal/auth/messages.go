package auth

import (
	"errors"
	"strings"

	"accountbook/internal/core"
)

// Provider error codes.
const (
	CodeUserNotFound       = "auth/user-not-found"
	CodeWrongPassword      = "auth/wrong-password"
	CodeInvalidEmail       = "auth/invalid-email"
	CodeEmailAlreadyInUse  = "auth/email-already-in-use"
	CodeWeakPassword       = "auth/weak-password"
	CodePopupClosedByUser  = "auth/popup-closed-by-user"
	CodePopupBlocked       = "auth/popup-blocked"
	CodeTooManyRequests    = "auth/too-many-requests"
	CodeInvalidToken       = "auth/invalid-token"
	CodeInvalidActionCode  = "auth/invalid-action-code"
	CodeFederationDisabled = "auth/operation-not-allowed"
	CodeUnverifiedEmail    = "auth/unverified-email"
	CodeAccountExists      = "auth/account-exists-with-different-credential"
)

// Op names the user action an error came from. Generic fallbacks differ per op.
type Op string

const (
	OpSignIn  Op = "signin"
	OpSignUp  Op = "signup"
	OpGoogle  Op = "google"
	OpReset   Op = "password-reset"
	OpSession Op = "session"
	OpSignOut Op = "signout"
)

const (
	LocaleKorean  = "ko"
	LocaleEnglish = "en"
)

type catalog struct {
	byCode   map[Op]map[string]string
	fallback map[Op]string
	policy   map[error]string
	shared   map[string]string
}

var catalogs = map[string]catalog{
	LocaleKorean: {
		byCode: map[Op]map[string]string{
			OpSignIn: {
				CodeUserNotFound:  "등록되지 않은 이메일입니다.",
				CodeWrongPassword: "비밀번호가 올바르지 않습니다.",
				CodeInvalidEmail:  "유효하지 않은 이메일 주소입니다.",
			},
			OpSignUp: {
				CodeEmailAlreadyInUse: "이미 등록된 이메일입니다.",
				CodeInvalidEmail:      "유효하지 않은 이메일 주소입니다.",
				CodeWeakPassword:      "비밀번호가 너무 약합니다.",
			},
			OpGoogle: {
				CodePopupClosedByUser: "로그인이 취소되었습니다.",
				CodePopupBlocked:      "팝업이 차단되었습니다. 팝업을 허용해주세요.",
				CodeUnverifiedEmail:   "인증되지 않은 Google 이메일입니다.",
				CodeAccountExists:     "이미 이메일과 비밀번호로 가입된 계정입니다. 비밀번호로 로그인해주세요.",
			},
		},
		fallback: map[Op]string{
			OpSignIn:  "로그인에 실패했습니다.",
			OpSignUp:  "회원가입에 실패했습니다.",
			OpGoogle:  "Google 로그인에 실패했습니다.",
			OpReset:   "비밀번호 재설정 이메일 발송에 실패했습니다.",
			OpSession: "로그인이 필요합니다.",
			OpSignOut: "로그아웃에 실패했습니다.",
		},
		policy: map[error]string{
			ErrPasswordTooShort: "비밀번호는 6자 이상이어야 합니다.",
			ErrPasswordMismatch: "비밀번호가 일치하지 않습니다.",
		},
		shared: map[string]string{
			CodeTooManyRequests: "로그인 시도가 너무 많습니다. 잠시 후 다시 시도해주세요.",
		},
	},
	LocaleEnglish: {
		byCode: map[Op]map[string]string{
			OpSignIn: {
				CodeUserNotFound:  "This email is not registered.",
				CodeWrongPassword: "The password is incorrect.",
				CodeInvalidEmail:  "The email address is not valid.",
			},
			OpSignUp: {
				CodeEmailAlreadyInUse: "This email is already registered.",
				CodeInvalidEmail:      "The email address is not valid.",
				CodeWeakPassword:      "The password is too weak.",
			},
			OpGoogle: {
				CodePopupClosedByUser: "Sign-in was cancelled.",
				CodePopupBlocked:      "The popup was blocked. Please allow popups.",
				CodeUnverifiedEmail:   "This Google email address is not verified.",
				CodeAccountExists:     "An account with this email already uses a password. Please sign in with it.",
			},
		},
		fallback: map[Op]string{
			OpSignIn:  "Sign-in failed.",
			OpSignUp:  "Sign-up failed.",
			OpGoogle:  "Google sign-in failed.",
			OpReset:   "Could not send the password reset email.",
			OpSession: "Please sign in.",
			OpSignOut: "Sign-out failed.",
		},
		policy: map[error]string{
			ErrPasswordTooShort: "The password must be at least 6 characters.",
			ErrPasswordMismatch: "The passwords do not match.",
		},
		shared: map[string]string{
			CodeTooManyRequests: "Too many attempts. Please try again later.",
		},
	},
}

func lookup(locale string) catalog {
	if c, ok := catalogs[strings.ToLower(strings.TrimSpace(locale))]; ok {
		return c
	}
	return catalogs[LocaleKorean]
}

// Message returns the user-facing text for a provider code raised by op.
// Unknown codes get the generic failure message of op.
func Message(code string, op Op, locale string) string {
	c := lookup(locale)
	if m, ok := c.byCode[op][code]; ok {
		return m
	}
	if m, ok := c.shared[code]; ok {
		return m
	}
	if m, ok := c.fallback[op]; ok {
		return m
	}
	return c.fallback[OpSignIn]
}

// ErrorMessage maps any error returned by a Provider to user-facing text.
// It returns false for errors that are not auth or password-policy errors.
func ErrorMessage(err error, locale string) (string, bool) {
	var aerr *core.AuthError
	if errors.As(err, &aerr) {
		return Message(aerr.Code, Op(aerr.Op), locale), true
	}
	c := lookup(locale)
	for perr, m := range c.policy {
		if errors.Is(err, perr) {
			return m, true
		}
	}
	return "", false
}

func authErr(op Op, code string, cause error) error {
	return &core.AuthError{Code: code, Op: string(op), Err: cause}
}
