package token

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/golang-jwt/jwt/v5"

	"github.com/dtroode/puricare-client/internal/model"
)

// Claims represents the identity claims carried in an ID token payload.
// Unknown claims are ignored; registered claims are read best-effort.
type Claims struct {
	jwt.RegisteredClaims
	Name    *string `json:"name,omitempty"`
	Email   *string `json:"email,omitempty"`
	Picture *string `json:"picture,omitempty"`
}

// Profile derives the session profile from the claims.
func (c Claims) Profile() model.Profile {
	return model.Profile{
		Name:    c.Name,
		Email:   c.Email,
		Picture: c.Picture,
	}.Clone()
}

// Expired reports whether the token carries an expiry that is before now.
// Tokens without an exp claim never expire from the client's point of view.
func (c Claims) Expired(now time.Time) bool {
	return c.ExpiresAt != nil && now.After(c.ExpiresAt.Time)
}

// Codec decodes the payload segment of bearer tokens. Signatures are never
// checked: the identity provider is the authority, the client only reads
// display claims.
type Codec struct {
	parser *jwt.Parser
}

// NewCodec creates a Codec.
func NewCodec() *Codec {
	return &Codec{parser: jwt.NewParser(jwt.WithPaddingAllowed())}
}

var standardToURL = strings.NewReplacer("+", "-", "/", "_")

// Decode extracts the claims from the middle segment of tok. A token with no
// payload segment decodes an empty payload and fails at the JSON step.
func (c *Codec) Decode(tok string) (Claims, error) {
	var segment string
	if parts := strings.Split(tok, "."); len(parts) > 1 {
		segment = parts[1]
	}

	payload, err := c.decodeSegment(segment)
	if err != nil {
		return Claims{}, err
	}

	if !utf8.Valid(payload) {
		return Claims{}, fmt.Errorf("%w: payload is not valid UTF-8", model.ErrDecode)
	}

	var display displayClaims
	if err := json.Unmarshal(payload, &display); err != nil {
		return Claims{}, fmt.Errorf("%w: %w", model.ErrDecode, err)
	}

	claims := Claims{Name: display.Name, Email: display.Email, Picture: display.Picture}
	claims.RegisteredClaims = readRegistered(payload)

	return claims, nil
}

// displayClaims are the only claims a token must carry well-formed.
type displayClaims struct {
	Name    *string `json:"name"`
	Email   *string `json:"email"`
	Picture *string `json:"picture"`
}

// readRegistered picks out the registered claims one by one. A claim with an
// unexpected type is left unset; it never fails the decode.
func readRegistered(payload []byte) jwt.RegisteredClaims {
	var fields map[string]json.RawMessage
	var rc jwt.RegisteredClaims
	if err := json.Unmarshal(payload, &fields); err != nil {
		return rc
	}

	optional(fields, "iss", &rc.Issuer)
	optional(fields, "sub", &rc.Subject)
	optional(fields, "aud", &rc.Audience)
	optional(fields, "exp", &rc.ExpiresAt)
	optional(fields, "nbf", &rc.NotBefore)
	optional(fields, "iat", &rc.IssuedAt)
	optional(fields, "jti", &rc.ID)
	return rc
}

func optional[T any](fields map[string]json.RawMessage, name string, dst *T) {
	raw, ok := fields[name]
	if !ok {
		return
	}
	var v T
	if err := json.Unmarshal(raw, &v); err == nil {
		*dst = v
	}
}

func (c *Codec) decodeSegment(segment string) ([]byte, error) {
	segment = strings.TrimRight(segment, "=")
	// A single trailing sextet can't encode a byte.
	if len(segment)%4 == 1 {
		return nil, fmt.Errorf("%w: invalid payload length %d", model.ErrDecode, len(segment))
	}

	// Accept both alphabets; the parser pads and decodes the URL-safe one.
	raw, err := c.parser.DecodeSegment(standardToURL.Replace(segment))
	if err != nil {
		return nil, fmt.Errorf("%w: %w", model.ErrDecode, err)
	}
	return raw, nil
}
