package model

import "context"

// Session is the identity session shared by every context attached to the
// same persisted store. It is always replaced as a whole.
type Session struct {
	Token   *string  `json:"idToken"`
	Profile *Profile `json:"profile"`
}

// Profile holds the display attributes derived from the ID token claims.
type Profile struct {
	Name    *string `json:"name,omitempty"`
	Email   *string `json:"email,omitempty"`
	Picture *string `json:"picture,omitempty"`
}

// NewSession builds a signed-in session from a bearer token and its profile.
func NewSession(token string, profile Profile) Session {
	return Session{Token: &token, Profile: &profile}
}

// Authenticated reports whether the session carries a non-empty token.
func (s Session) Authenticated() bool {
	return s.Token != nil && *s.Token != ""
}

// IsEmpty reports whether the session is the signed-out value.
func (s Session) IsEmpty() bool {
	return s.Token == nil && s.Profile == nil
}

// Clone returns a deep copy so callers can't mutate shared state through pointers.
func (s Session) Clone() Session {
	var out Session
	if s.Token != nil {
		t := *s.Token
		out.Token = &t
	}
	if s.Profile != nil {
		p := s.Profile.Clone()
		out.Profile = &p
	}
	return out
}

// DisplayName returns the profile name or an empty string.
func (s Session) DisplayName() string {
	if s.Profile == nil || s.Profile.Name == nil {
		return ""
	}
	return *s.Profile.Name
}

// Clone returns a deep copy of the profile.
func (p Profile) Clone() Profile {
	return Profile{
		Name:    cloneString(p.Name),
		Email:   cloneString(p.Email),
		Picture: cloneString(p.Picture),
	}
}

func cloneString(s *string) *string {
	if s == nil {
		return nil
	}
	v := *s
	return &v
}

// SessionStore is the session owner used by services.
type SessionStore interface {
	Get() Session
	Replace(ctx context.Context, next Session)
	Clear(ctx context.Context)
}
