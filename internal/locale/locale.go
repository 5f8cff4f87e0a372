package locale

import (
	"embed"
	"errors"
	"fmt"
	"io/fs"

	apperrors "go-gin-lucky-draw/pkg/app_errors"

	"github.com/nicksnyder/go-i18n/v2/i18n"
	"github.com/pelletier/go-toml/v2"
	"golang.org/x/text/language"
)

//go:embed locales/*.toml
var localeFS embed.FS

// 訊息 ID，對應 locales/*.toml 的 key
const (
	MsgInvalidRequest      = "InvalidRequest"
	MsgAlreadyUsed         = "AlreadyUsed"
	MsgOutOfStock          = "OutOfStock"
	MsgExhausted           = "Exhausted"
	MsgCodeCollision       = "CodeCollision"
	MsgPrizeNotFound       = "PrizeNotFound"
	MsgTicketNotFound      = "TicketNotFound"
	MsgNoPendingRedemption = "NoPendingRedemption"
	MsgTicketPending       = "TicketPending"
	MsgStorageUnavailable  = "StorageUnavailable"
	MsgInternalServerError = "InternalServerError"
)

// DefaultLanguage 活動對象是越南用戶
var DefaultLanguage = language.Vietnamese

var supported = []language.Tag{language.Vietnamese, language.English}

type Translator struct {
	bundle  *i18n.Bundle
	matcher language.Matcher
}

func NewTranslator() (*Translator, error) {
	bundle := i18n.NewBundle(DefaultLanguage)
	bundle.RegisterUnmarshalFunc("toml", toml.Unmarshal)

	files, err := fs.Glob(localeFS, "locales/*.toml")
	if err != nil {
		return nil, err
	}
	for _, f := range files {
		if _, err := bundle.LoadMessageFileFS(localeFS, f); err != nil {
			return nil, fmt.Errorf("load %s: %w", f, err)
		}
	}

	return &Translator{
		bundle:  bundle,
		matcher: language.NewMatcher(supported),
	}, nil
}

// Match 依 Accept-Language 選出支援的語言，無法解析時用預設
func (t *Translator) Match(acceptLanguage string) language.Tag {
	tags, _, err := language.ParseAcceptLanguage(acceptLanguage)
	if err != nil || len(tags) == 0 {
		return DefaultLanguage
	}
	_, idx, conf := t.matcher.Match(tags...)
	if conf == language.No {
		return DefaultLanguage
	}
	return supported[idx]
}

// Message 翻譯失敗時回傳 messageID 本身
func (t *Translator) Message(acceptLanguage, messageID string) string {
	localizer := i18n.NewLocalizer(t.bundle, t.Match(acceptLanguage).String())
	msg, err := localizer.Localize(&i18n.LocalizeConfig{MessageID: messageID})
	if err != nil {
		return messageID
	}
	return msg
}

// MessageID 把 app error 對應到訊息 ID
func MessageID(err error) string {
	switch {
	case errors.Is(err, apperrors.ErrInvalidInput):
		return MsgInvalidRequest
	case errors.Is(err, apperrors.ErrAlreadyUsed):
		return MsgAlreadyUsed
	case errors.Is(err, apperrors.ErrOutOfStock):
		return MsgOutOfStock
	case errors.Is(err, apperrors.ErrExhausted):
		return MsgExhausted
	case errors.Is(err, apperrors.ErrCodeCollision):
		return MsgCodeCollision
	case errors.Is(err, apperrors.ErrPrizeNotFound):
		return MsgPrizeNotFound
	case errors.Is(err, apperrors.ErrTicketNotFound):
		return MsgTicketNotFound
	case errors.Is(err, apperrors.ErrNoPendingRedemption):
		return MsgNoPendingRedemption
	case errors.Is(err, apperrors.ErrTicketPending):
		return MsgTicketPending
	case errors.Is(err, apperrors.ErrStorageUnavailable):
		return MsgStorageUnavailable
	default:
		return MsgInternalServerError
	}
}
