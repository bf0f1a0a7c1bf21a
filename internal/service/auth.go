package service

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/dtroode/puricare-client/internal/logger"
	"github.com/dtroode/puricare-client/internal/model"
	"github.com/dtroode/puricare-client/internal/token"
)

// RetryMessage is shown to the user when a login attempt fails.
const RetryMessage = "로그인에 실패했습니다. 다시 시도해주세요."

// welcomeTTL is how long after login the welcome notice may still be shown.
const welcomeTTL = 30 * time.Second

type welcomeNote struct {
	Name string `json:"name"`
	At   int64  `json:"at"`
}

// Auth implements sign-in, sign-out and profile edits on top of a session store.
type Auth struct {
	codec    *token.Codec
	sessions model.SessionStore
	kv       model.KeyValueStore
	logger   *logger.Logger
	now      func() time.Time
}

// NewAuth creates an Auth service.
func NewAuth(
	codec *token.Codec,
	sessions model.SessionStore,
	kv model.KeyValueStore,
	logger *logger.Logger,
) *Auth {
	return &Auth{
		codec:    codec,
		sessions: sessions,
		kv:       kv,
		logger:   logger,
		now:      time.Now,
	}
}

// Login decodes the identity token and replaces the session with it. On a
// decode failure the session is left untouched and the error wraps
// model.ErrDecode.
func (a *Auth) Login(ctx context.Context, rawToken string) (model.Session, error) {
	claims, err := a.codec.Decode(rawToken)
	if err != nil {
		a.logger.Warn("Auth service: failed to decode identity token",
			"error", err.Error())
		return model.Session{}, fmt.Errorf("failed to decode identity token: %w", err)
	}

	sess := model.NewSession(rawToken, claims.Profile())
	a.sessions.Replace(ctx, sess)

	a.logger.Info("Auth service: signed in",
		"name", sess.DisplayName())

	a.writeWelcome(ctx, sess.DisplayName())

	return sess, nil
}

// SignOut clears the session everywhere.
func (a *Auth) SignOut(ctx context.Context) {
	a.sessions.Clear(ctx)
	a.logger.Info("Auth service: signed out")
}

// Session returns the current session.
func (a *Auth) Session() model.Session {
	return a.sessions.Get()
}

// UpdateDisplayName replaces the session with the profile name changed.
func (a *Auth) UpdateDisplayName(ctx context.Context, name string) (model.Session, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return model.Session{}, fmt.Errorf("%w: empty name", model.ErrInvalidProfile)
	}

	sess := a.sessions.Get()
	if !sess.Authenticated() {
		return model.Session{}, model.ErrNotAuthenticated
	}

	profile := model.Profile{}
	if sess.Profile != nil {
		profile = sess.Profile.Clone()
	}
	profile.Name = &name
	sess.Profile = &profile

	a.sessions.Replace(ctx, sess)

	a.logger.Info("Auth service: display name updated",
		"name", name)

	return sess, nil
}

// ConsumeWelcome returns the name to greet if the user signed in within the
// last 30 seconds. The note is removed whether or not it was still fresh.
func (a *Auth) ConsumeWelcome(ctx context.Context) (string, bool) {
	data, ok, err := a.kv.Get(ctx, model.WelcomeKey)
	if err != nil {
		a.logger.Warn("Auth service: failed to read welcome note",
			"error", err.Error())
		return "", false
	}
	if !ok {
		return "", false
	}

	if err := a.kv.Remove(ctx, model.WelcomeKey); err != nil {
		a.logger.Warn("Auth service: failed to remove welcome note",
			"error", err.Error())
	}

	var note welcomeNote
	if err := json.Unmarshal(data, &note); err != nil {
		a.logger.Warn("Auth service: discarding welcome note",
			"error", fmt.Errorf("%w: %w", model.ErrPersistParse, err).Error())
		return "", false
	}

	age := a.now().Sub(time.UnixMilli(note.At))
	if note.At == 0 || age < 0 || age >= welcomeTTL {
		return "", false
	}
	return note.Name, true
}

func (a *Auth) writeWelcome(ctx context.Context, name string) {
	data, err := json.Marshal(welcomeNote{Name: name, At: a.now().UnixMilli()})
	if err != nil {
		a.logger.Warn("Auth service: failed to encode welcome note",
			"error", err.Error())
		return
	}
	if err := a.kv.Set(ctx, model.WelcomeKey, data); err != nil {
		a.logger.Warn("Auth service: failed to store welcome note",
			"error", err.Error())
	}
}
