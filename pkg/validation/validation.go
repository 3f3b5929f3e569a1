// Package validation provides input validation for inbound socket events.
// Each event payload schema is checked by a small pure function that
// returns either a typed payload or a ValidationError(path, reason); there
// is no runtime-reflective validation.
//
// Grounded on the teacher's pkg/validation.InputValidator: same per-method
// registry-of-functions shape and the same UUID regex and ±10000 coordinate
// bound, generalized from RPC method params to socket event payloads.
package validation

import (
	"fmt"
	"math"
	"regexp"
	"strings"
)

// ValidationError reports which field of a payload failed and why.
type ValidationError struct {
	Path   string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation: %s: %s", e.Path, e.Reason)
}

func fieldErr(path, reason string) error {
	return &ValidationError{Path: path, Reason: reason}
}

var (
	uuidRegex       = regexp.MustCompile(`^[0-9a-fA-F]{8}-[0-9a-fA-F]{4}-[0-9a-fA-F]{4}-[0-9a-fA-F]{4}-[0-9a-fA-F]{12}$`)
	skinRegex       = regexp.MustCompile(`^[A-Za-z0-9_-]{1,50}$`)
	whitespaceRegex = regexp.MustCompile(`\s+`)
)

// MaxCoordinate bounds movePlayer/teleport coordinates, matching
// pkg/session.MaxCoordinate.
const MaxCoordinate = 10000

func validateUUID(path, id string) error {
	if !uuidRegex.MatchString(id) {
		return fieldErr(path, "must be a UUID")
	}
	return nil
}

func validateCoordinate(path string, v float64) error {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return fieldErr(path, "must be finite")
	}
	if v < -MaxCoordinate || v > MaxCoordinate {
		return fieldErr(path, fmt.Sprintf("must be within [-%d, %d]", MaxCoordinate, MaxCoordinate))
	}
	return nil
}

// JoinRealmPayload is the validated joinRealm event body.
type JoinRealmPayload struct {
	RealmID string
	ShareID string
}

// ValidateJoinRealm validates {realmId: uuid, shareId?: uuid|""}.
func ValidateJoinRealm(raw map[string]interface{}) (JoinRealmPayload, error) {
	realmID, ok := raw["realmId"].(string)
	if !ok {
		return JoinRealmPayload{}, fieldErr("realmId", "required string")
	}
	if err := validateUUID("realmId", realmID); err != nil {
		return JoinRealmPayload{}, err
	}

	shareID := ""
	if v, exists := raw["shareId"]; exists && v != nil {
		s, ok := v.(string)
		if !ok {
			return JoinRealmPayload{}, fieldErr("shareId", "must be a string")
		}
		if s != "" {
			if err := validateUUID("shareId", s); err != nil {
				return JoinRealmPayload{}, err
			}
		}
		shareID = s
	}

	return JoinRealmPayload{RealmID: realmID, ShareID: shareID}, nil
}

// MovePlayerPayload is the validated movePlayer event body.
type MovePlayerPayload struct {
	X, Y float64
}

// ValidateMovePlayer validates {x,y: number in [-10000,10000], finite}.
func ValidateMovePlayer(raw map[string]interface{}) (MovePlayerPayload, error) {
	x, ok := raw["x"].(float64)
	if !ok {
		return MovePlayerPayload{}, fieldErr("x", "required number")
	}
	if err := validateCoordinate("x", x); err != nil {
		return MovePlayerPayload{}, err
	}

	y, ok := raw["y"].(float64)
	if !ok {
		return MovePlayerPayload{}, fieldErr("y", "required number")
	}
	if err := validateCoordinate("y", y); err != nil {
		return MovePlayerPayload{}, err
	}

	return MovePlayerPayload{X: x, Y: y}, nil
}

// TeleportPayload is the validated teleport event body.
type TeleportPayload struct {
	X, Y      float64
	RoomIndex int
}

// ValidateTeleport validates {x,y: number, roomIndex: integer >= 0}.
func ValidateTeleport(raw map[string]interface{}) (TeleportPayload, error) {
	x, ok := raw["x"].(float64)
	if !ok || math.IsNaN(x) || math.IsInf(x, 0) {
		return TeleportPayload{}, fieldErr("x", "required finite number")
	}
	y, ok := raw["y"].(float64)
	if !ok || math.IsNaN(y) || math.IsInf(y, 0) {
		return TeleportPayload{}, fieldErr("y", "required finite number")
	}

	roomIndexF, ok := raw["roomIndex"].(float64)
	if !ok || roomIndexF != math.Trunc(roomIndexF) {
		return TeleportPayload{}, fieldErr("roomIndex", "required integer")
	}
	roomIndex := int(roomIndexF)
	if roomIndex < 0 {
		return TeleportPayload{}, fieldErr("roomIndex", "must be >= 0")
	}

	return TeleportPayload{X: x, Y: y, RoomIndex: roomIndex}, nil
}

// ChangedSkinPayload is the validated changedSkin event body.
type ChangedSkinPayload struct {
	Skin string
}

// ValidateChangedSkin validates a 1..50 char [A-Za-z0-9_-] string.
func ValidateChangedSkin(raw string) (ChangedSkinPayload, error) {
	if !skinRegex.MatchString(raw) {
		return ChangedSkinPayload{}, fieldErr("skin", "must be 1-50 chars of [A-Za-z0-9_-]")
	}
	return ChangedSkinPayload{Skin: raw}, nil
}

// SendMessagePayload is the validated sendMessage event body.
type SendMessagePayload struct {
	Message string
}

// ValidateSendMessage trims and collapses whitespace, then requires
// 1..500 chars.
func ValidateSendMessage(raw string) (SendMessagePayload, error) {
	trimmed := strings.TrimSpace(raw)
	collapsed := whitespaceRegex.ReplaceAllString(trimmed, " ")
	if len(collapsed) < 1 || len(collapsed) > 500 {
		return SendMessagePayload{}, fieldErr("message", "must be 1-500 chars after trim")
	}
	return SendMessagePayload{Message: collapsed}, nil
}

// KickPlayerPayload is the validated kickPlayer event body.
type KickPlayerPayload struct {
	UID string
}

// ValidateKickPlayer validates {uid: uuid}. Issuer-is-owner authorization
// is checked by the dispatcher, not here.
func ValidateKickPlayer(raw map[string]interface{}) (KickPlayerPayload, error) {
	uid, ok := raw["uid"].(string)
	if !ok {
		return KickPlayerPayload{}, fieldErr("uid", "required string")
	}
	if err := validateUUID("uid", uid); err != nil {
		return KickPlayerPayload{}, err
	}
	return KickPlayerPayload{UID: uid}, nil
}
