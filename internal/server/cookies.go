package server

import (
	"fmt"
	"log"
	"net/http"
	"time"
)

const (
	// CookieName is the name of the conversation cookie
	CookieName = "artorias_session"
	// CookieMaxAge keeps one conversation identity per browser for a day
	CookieMaxAge = 24 * time.Hour
)

func newUserID() string {
	return fmt.Sprintf("u_%d", time.Now().UnixNano())
}

// getUserID reads the caller identity from cookie, header or query parameter.
func getUserID(r *http.Request) string {
	if cookie, err := r.Cookie(CookieName); err == nil && cookie.Value != "" {
		return cookie.Value
	}
	if uid := r.Header.Get("X-Session-Id"); uid != "" {
		return uid
	}
	if uid := r.URL.Query().Get("userId"); uid != "" {
		return uid
	}
	return ""
}

// getOrCreateUserID returns the existing identity or mints a new one,
// setting the cookie so follow-up messages land on the same transcript.
func getOrCreateUserID(r *http.Request, w http.ResponseWriter) string {
	uid := getUserID(r)
	if uid == "" {
		uid = newUserID()
		log.Printf("[session] new conversation: %s", uid)
		http.SetCookie(w, &http.Cookie{
			Name:     CookieName,
			Value:    uid,
			Path:     "/",
			MaxAge:   int(CookieMaxAge.Seconds()),
			HttpOnly: true,
			SameSite: http.SameSiteLaxMode,
			Secure:   false, // Set to true in production with HTTPS
		})
	}
	return uid
}
