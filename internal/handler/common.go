package handler

import (
	"net/http"

	"go-gin-lucky-draw/internal/locale"

	"github.com/gin-gonic/gin"
)

// errorResponse 回應格式：code 為訊息 ID，error 為依 Accept-Language 翻譯的訊息
type errorResponse struct {
	Code  string `json:"code"`
	Error string `json:"error"`
}

func respondMessage(c *gin.Context, tr *locale.Translator, status int, messageID string) {
	c.JSON(status, errorResponse{
		Code:  messageID,
		Error: tr.Message(c.GetHeader("Accept-Language"), messageID),
	})
}

func BindJson(c *gin.Context, tr *locale.Translator, obj interface{}) error {
	if err := c.ShouldBindJSON(obj); err != nil {
		respondMessage(c, tr, http.StatusBadRequest, locale.MsgInvalidRequest)
		return err
	}
	return nil
}

func BindQuery(c *gin.Context, tr *locale.Translator, obj interface{}) error {
	if err := c.ShouldBindQuery(obj); err != nil {
		respondMessage(c, tr, http.StatusBadRequest, locale.MsgInvalidRequest)
		return err
	}
	return nil
}

func BindUri(c *gin.Context, tr *locale.Translator, obj interface{}) error {
	if err := c.ShouldBindUri(obj); err != nil {
		respondMessage(c, tr, http.StatusBadRequest, locale.MsgInvalidRequest)
		return err
	}
	return nil
}
