package utils

import (
	"errors"

	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

// Message keys for user-facing notifications.
const (
	MsgInvalidCredentials = "invalid_credentials"
	MsgUserExists         = "user_exists"
	MsgPasswordTooShort   = "password_too_short"
	MsgPasswordMismatch   = "password_mismatch"
	MsgServiceUnavailable = "service_unavailable"
	MsgLimitReached       = "limit_reached"
	MsgAssetNotInPlan     = "asset_not_in_plan"
	MsgNotFound           = "not_found"
	MsgGeneric            = "generic"
)

var supportedLanguages = language.NewMatcher([]language.Tag{language.English, language.Turkish})

func init() {
	entries := map[string][2]string{
		MsgInvalidCredentials: {"Invalid email or password.", "E-posta veya şifre hatalı."},
		MsgUserExists:         {"This email is already registered.", "Bu e-posta zaten kayıtlı."},
		MsgPasswordTooShort:   {"Password must be at least 6 characters.", "Şifre en az 6 karakter olmalıdır."},
		MsgPasswordMismatch:   {"Passwords do not match.", "Şifreler eşleşmiyor."},
		MsgServiceUnavailable: {"The service is temporarily unavailable, please try again.", "Servis geçici olarak kullanılamıyor, lütfen tekrar deneyin."},
		MsgLimitReached:       {"You have used all of today's analyses.", "Bugünkü analiz hakkınızı doldurdunuz."},
		MsgAssetNotInPlan:     {"Your plan does not include this asset.", "Planınız bu varlığı içermiyor."},
		MsgNotFound:           {"Not found.", "Bulunamadı."},
		MsgGeneric:            {"Something went wrong.", "Bir hata oluştu."},
	}
	for key, text := range entries {
		_ = message.SetString(language.English, key, text[0])
		_ = message.SetString(language.Turkish, key, text[1])
	}
}

// Translate renders a message key in the requested language ("en", "tr").
// Unknown languages fall back to English.
func Translate(lang, key string) string {
	tag, _ := language.MatchStrings(supportedLanguages, lang)
	base, _ := tag.Base()
	if base.String() == "tr" {
		tag = language.Turkish
	} else {
		tag = language.English
	}
	return message.NewPrinter(tag).Sprintf(key)
}

// UserMessage picks the notification text for err. Remote errors carry their
// own code; everything else maps through the taxonomy.
func UserMessage(lang string, err error) string {
	var remoteErr *RemoteError
	var validationErr *ValidationError
	var limitErr *LimitExceededError
	var notFoundErr *NotFoundError
	var planErr *PlanRestrictionError

	switch {
	case errors.As(err, &remoteErr):
		if remoteErr.Code != "" {
			return Translate(lang, remoteErr.Code)
		}
		return Translate(lang, MsgServiceUnavailable)
	case errors.As(err, &limitErr):
		return Translate(lang, MsgLimitReached)
	case errors.As(err, &planErr):
		return Translate(lang, MsgAssetNotInPlan)
	case errors.As(err, &notFoundErr):
		return Translate(lang, MsgNotFound)
	case errors.As(err, &validationErr):
		return validationErr.Error()
	default:
		return Translate(lang, MsgGeneric)
	}
}
