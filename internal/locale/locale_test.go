package locale

import (
	"fmt"
	"testing"

	apperrors "go-gin-lucky-draw/pkg/app_errors"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/text/language"
)

func TestTranslator_Match(t *testing.T) {
	tr, err := NewTranslator()
	require.NoError(t, err)

	assert.Equal(t, language.Vietnamese, tr.Match(""))
	assert.Equal(t, language.Vietnamese, tr.Match("vi-VN,vi;q=0.9"))
	assert.Equal(t, language.English, tr.Match("en-US,en;q=0.8"))
	assert.Equal(t, language.Vietnamese, tr.Match("ja"))
}

func TestTranslator_Message(t *testing.T) {
	tr, err := NewTranslator()
	require.NoError(t, err)

	assert.Equal(t, "Hóa đơn này đã được sử dụng để quay thưởng!", tr.Message("", MsgAlreadyUsed))
	assert.Equal(t, "Ticket not found", tr.Message("en", MsgTicketNotFound))
	assert.Equal(t, "Unknown", tr.Message("en", "Unknown"))
}

func TestTranslator_AllMessagesTranslated(t *testing.T) {
	tr, err := NewTranslator()
	require.NoError(t, err)

	ids := []string{
		MsgInvalidRequest, MsgAlreadyUsed, MsgOutOfStock, MsgExhausted, MsgCodeCollision,
		MsgPrizeNotFound, MsgTicketNotFound, MsgNoPendingRedemption, MsgTicketPending,
		MsgStorageUnavailable, MsgInternalServerError,
	}
	for _, id := range ids {
		assert.NotEqual(t, id, tr.Message("vi", id), id)
		assert.NotEqual(t, id, tr.Message("en", id), id)
	}
}

func TestMessageID(t *testing.T) {
	assert.Equal(t, MsgAlreadyUsed, MessageID(fmt.Errorf("reserve: %w", apperrors.ErrAlreadyUsed)))
	assert.Equal(t, MsgExhausted, MessageID(apperrors.ErrExhausted))
	assert.Equal(t, MsgTicketPending, MessageID(apperrors.ErrTicketPending))
	assert.Equal(t, MsgStorageUnavailable, MessageID(apperrors.ErrStorageUnavailable))
	assert.Equal(t, MsgInternalServerError, MessageID(fmt.Errorf("boom")))
}
