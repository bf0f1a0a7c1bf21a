package model

import (
	"context"
	"fmt"
)

// DeviceRecord is a device/room card ready for display.
type DeviceRecord struct {
	ID          string   `json:"id" yaml:"id"`
	Name        string   `json:"name" yaml:"name"`
	Subtitle    string   `json:"subtitle" yaml:"subtitle"`
	LastUpdated string   `json:"lastUpdated" yaml:"lastUpdated"`
	AQI         float64  `json:"aqi" yaml:"aqi"`
	AQILabel    string   `json:"aqiLabel" yaml:"aqiLabel"`
	RoomType    RoomType `json:"roomType,omitempty" yaml:"roomType,omitempty"`
}

// RoomType enumerates the rooms a purifier can be placed in.
type RoomType string

const (
	RoomLiving RoomType = "living"
	RoomMaster RoomType = "master"
	RoomSmall  RoomType = "small"
	RoomSmall2 RoomType = "small2"
	RoomToilet RoomType = "toilet"
	RoomBath   RoomType = "bath"
)

// DefaultRoom is used when a registration flow doesn't pick a room.
const DefaultRoom = RoomLiving

var roomLabels = map[RoomType]string{
	RoomLiving: "거실",
	RoomMaster: "안방",
	RoomSmall:  "작은방",
	RoomSmall2: "작은방2",
	RoomToilet: "화장실",
	RoomBath:   "욕실",
}

// Valid reports whether r is one of the known room types.
func (r RoomType) Valid() bool {
	_, ok := roomLabels[r]
	return ok
}

// Label returns the display label of the room, or "" for unknown rooms.
func (r RoomType) Label() string {
	return roomLabels[r]
}

// ParseRoomType validates a room type, defaulting empty input to the living room.
func ParseRoomType(s string) (RoomType, error) {
	if s == "" {
		return DefaultRoom, nil
	}
	r := RoomType(s)
	if !r.Valid() {
		return "", fmt.Errorf("%w: %q", ErrInvalidRoomType, s)
	}
	return r, nil
}

// DeviceAPI is the remote, authoritative device source.
type DeviceAPI interface {
	Configured() bool
	ListDevices(ctx context.Context, token string) ([]DeviceRecord, error)
	RegisterDevice(ctx context.Context, token, serial string, room RoomType) (DeviceRecord, error)
}

// ProvisionalQueue persists devices registered locally.
type ProvisionalQueue interface {
	List(ctx context.Context) []DeviceRecord
	Append(ctx context.Context, rec DeviceRecord) error
	Remove(ctx context.Context, id string) error
}
