package apperrors

import "errors"

var (
	// 抽獎流程
	ErrAlreadyUsed         = errors.New("receipt already used")
	ErrOutOfStock          = errors.New("prize out of stock")
	ErrExhausted           = errors.New("all prizes exhausted")
	ErrCodeCollision       = errors.New("ticket code collision")
	ErrPrizeNotFound       = errors.New("prize not found")
	ErrTicketNotFound      = errors.New("ticket not found")
	ErrNoPendingRedemption = errors.New("no pending redemption")
	ErrTicketPending       = errors.New("ticket issuance pending")

	// 儲存層
	ErrStorageUnavailable = errors.New("storage unavailable")
	ErrDocumentNotFound   = errors.New("document not found")
	ErrDocumentExists     = errors.New("document already exists")
	ErrInvalidDocument    = errors.New("invalid document")

	ErrInvalidInput        = errors.New("invalid input")
	ErrInternalServerError = errors.New("internal server error")
)
