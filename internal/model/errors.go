package model

import "errors"

var (
	// ErrDecode is returned when a token payload can't be decoded.
	ErrDecode = errors.New("malformed token payload")
	// ErrPersistParse marks a corrupted persisted value. It is logged, never surfaced.
	ErrPersistParse = errors.New("corrupted persisted value")
	// ErrRemoteFetch is returned when the remote device API fails.
	ErrRemoteFetch = errors.New("remote device fetch failed")
	// ErrRemoteUnavailable means no remote source is configured or authorized.
	ErrRemoteUnavailable = errors.New("remote device source unavailable")
	// ErrIDCollision reports two records sharing an id in a resolved list.
	ErrIDCollision = errors.New("duplicate device id")

	ErrNotFound                = errors.New("not found")
	ErrNotAuthenticated        = errors.New("not signed in")
	ErrInvalidProfile          = errors.New("invalid profile")
	ErrInvalidRoomType         = errors.New("invalid room type")
	ErrInvalidSerial           = errors.New("invalid serial number")
	ErrDeviceAlreadyRegistered = errors.New("device already registered")
)
