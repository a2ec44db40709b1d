package shared

import (
	"context"
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

// SessionManager issues and persists cookie sessions backed by Redis.
// Cookie values carry an HMAC signature so a tampered session ID is
// treated as no session at all.
type SessionManager struct {
	rdb    *redis.Client
	cookie string
	ttl    time.Duration
	secure bool
	secret []byte
}

// Session is the per-request session state. Mutations mark the session
// modified; nothing reaches Redis until Commit runs.
type Session struct {
	ID         string
	data       map[string]string
	userID     string
	activeRole string
	fresh      bool
	modified   bool
	revoked    bool
}

type sessionRecord struct {
	Data       map[string]string `json:"data"`
	UserID     string            `json:"user_id"`
	ActiveRole string            `json:"active_role"`
}

// NewSessionManager constructs a SessionManager.
func NewSessionManager(client *redis.Client, cookieName, secret string, ttl time.Duration, secure bool) *SessionManager {
	return &SessionManager{
		rdb:    client,
		cookie: cookieName,
		ttl:    ttl,
		secure: secure,
		secret: []byte(secret),
	}
}

// Load resolves the session for the request, creating a fresh one when the
// cookie is absent, unsigned, or no longer present in Redis.
func (sm *SessionManager) Load(ctx context.Context, r *http.Request) (*Session, error) {
	cookie, err := r.Cookie(sm.cookie)
	if err != nil {
		if errors.Is(err, http.ErrNoCookie) {
			return sm.fresh(), nil
		}
		return nil, err
	}

	id, ok := sm.verify(cookie.Value)
	if !ok {
		return sm.fresh(), nil
	}

	raw, err := sm.rdb.Get(ctx, sm.key(id)).Bytes()
	if errors.Is(err, redis.Nil) {
		sess := sm.fresh()
		sess.ID = id
		return sess, nil
	}
	if err != nil {
		return nil, err
	}

	var rec sessionRecord
	if err := json.Unmarshal(raw, &rec); err != nil {
		return nil, err
	}
	return &Session{
		ID:         id,
		data:       rec.Data,
		userID:     rec.UserID,
		activeRole: rec.ActiveRole,
	}, nil
}

// Commit persists pending session changes and emits the cookie header.
func (sm *SessionManager) Commit(ctx context.Context, w http.ResponseWriter, r *http.Request, sess *Session) error {
	if sess == nil {
		return nil
	}

	if sess.revoked {
		if err := sm.rdb.Del(ctx, sm.key(sess.ID)).Err(); err != nil && !errors.Is(err, redis.Nil) {
			return err
		}
		sm.writeCookie(w, "", -1)
		return nil
	}

	if sess.ID == "" {
		sess.ID = newSessionID()
	}

	if sess.modified || sess.fresh {
		raw, err := json.Marshal(sessionRecord{
			Data:       sess.data,
			UserID:     sess.userID,
			ActiveRole: sess.activeRole,
		})
		if err != nil {
			return err
		}
		if err := sm.rdb.Set(ctx, sm.key(sess.ID), raw, sm.ttl).Err(); err != nil {
			return err
		}
		sess.modified = false
	}

	sm.writeCookie(w, sm.sign(sess.ID), int(sm.ttl/time.Second))
	return nil
}

// Destroy marks the session for deletion on commit.
func (sm *SessionManager) Destroy(sess *Session) {
	if sess != nil {
		sess.revoked = true
	}
}

// TTL exposes the configured session lifetime.
func (sm *SessionManager) TTL() time.Duration { return sm.ttl }

// CookieName returns the cookie identifier used for sessions.
func (sm *SessionManager) CookieName() string { return sm.cookie }

func (sm *SessionManager) fresh() *Session {
	return &Session{
		ID:       newSessionID(),
		data:     make(map[string]string),
		fresh:    true,
		modified: true,
	}
}

func (sm *SessionManager) key(id string) string {
	return "session:" + id
}

func (sm *SessionManager) writeCookie(w http.ResponseWriter, value string, maxAge int) {
	http.SetCookie(w, &http.Cookie{
		Name:     sm.cookie,
		Value:    value,
		Path:     "/",
		MaxAge:   maxAge,
		HttpOnly: true,
		Secure:   sm.secure,
		SameSite: http.SameSiteStrictMode,
	})
}

// sign produces "<id>.<mac>" so verify can reject forged cookies.
func (sm *SessionManager) sign(id string) string {
	mac := hmac.New(sha256.New, sm.secret)
	mac.Write([]byte(id))
	return id + "." + base64.RawURLEncoding.EncodeToString(mac.Sum(nil))
}

func (sm *SessionManager) verify(value string) (string, bool) {
	id, _, found := strings.Cut(value, ".")
	if !found || id == "" {
		return "", false
	}
	if !hmac.Equal([]byte(sm.sign(id)), []byte(value)) {
		return "", false
	}
	return id, true
}

func newSessionID() string {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		panic("session: crypto/rand unavailable: " + err.Error())
	}
	return base64.RawURLEncoding.EncodeToString(buf)
}

// Set stores a key-value pair.
func (s *Session) Set(key, value string) {
	if s.data == nil {
		s.data = make(map[string]string)
	}
	s.data[key] = value
	s.modified = true
}

// Get retrieves a value, or "" when absent.
func (s *Session) Get(key string) string {
	return s.data[key]
}

// Delete removes a value.
func (s *Session) Delete(key string) {
	if _, ok := s.data[key]; ok {
		delete(s.data, key)
		s.modified = true
	}
}

// SetUser associates the session with a user ID.
func (s *Session) SetUser(id string) {
	s.userID = id
	s.modified = true
}

// User returns the authenticated user ID, or "" for anonymous sessions.
func (s *Session) User() string { return s.userID }

// SetActiveRole records the role the user is currently acting as.
func (s *Session) SetActiveRole(role string) {
	s.activeRole = role
	s.modified = true
}

// ActiveRole returns the role the user is currently acting as.
func (s *Session) ActiveRole() string { return s.activeRole }
