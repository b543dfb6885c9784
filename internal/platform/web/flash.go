package web

import (
	"encoding/base64"
	"encoding/json"
	"net/http"

	"github.com/labstack/echo/v4"
)

// FlashCookie carries one-shot messages to the next rendered page.
const FlashCookie = "registry_flash"

const flashKey = "flash_messages"

// AddFlash queues msg for the next page rendered for this browser, whether in
// this response or after a redirect.
func AddFlash(c echo.Context, msg string) {
	msgs := append(pending(c), msg)
	c.Set(flashKey, msgs)
	raw, err := json.Marshal(msgs)
	if err != nil {
		return
	}
	c.SetCookie(flashCookie(base64.RawURLEncoding.EncodeToString(raw), 0))
}

// Flashes returns the queued messages and clears them.
func Flashes(c echo.Context) []string {
	msgs := pending(c)
	if len(msgs) > 0 {
		c.SetCookie(flashCookie("", -1))
	}
	c.Set(flashKey, []string{})
	return msgs
}

func pending(c echo.Context) []string {
	if msgs, ok := c.Get(flashKey).([]string); ok {
		return msgs
	}
	var msgs []string
	if ck, err := c.Cookie(FlashCookie); err == nil && ck.Value != "" {
		if raw, err := base64.RawURLEncoding.DecodeString(ck.Value); err == nil {
			_ = json.Unmarshal(raw, &msgs)
		}
	}
	if msgs == nil {
		msgs = []string{}
	}
	c.Set(flashKey, msgs)
	return msgs
}

func flashCookie(value string, maxAge int) *http.Cookie {
	return &http.Cookie{
		Name:     FlashCookie,
		Value:    value,
		Path:     "/",
		MaxAge:   maxAge,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	}
}
