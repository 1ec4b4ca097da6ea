// Package wire implements the frame codecs for the four message families
// that cross the dispatch cluster's endpoints: position reports, assignment
// broadcasts, request/reply JSON, and replication snapshots.
package wire

import (
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"syscall"

	"github.com/pebbe/zmq4"

	"github.com/fleetdispatch/cluster/internal/model"
)

// ErrMalformedFrame is returned when a position or assignment frame does not
// match its grammar. Callers drop the frame and continue.
var ErrMalformedFrame = errors.New("malformed frame")

// IsTimeout reports whether err is the EAGAIN a ZMQ socket returns when a
// configured receive deadline (RCVTIMEO) elapses with no message available.
// Every endpoint worker polls ctx cancellation between timeouts this way.
func IsTimeout(err error) bool {
	return zmq4.AsErrno(err) == zmq4.Errno(syscall.EAGAIN)
}

// DiscoveryProbe and DiscoveryYes are the fixed strings of the discovery
// channel (§6.4).
const (
	DiscoveryProbe = "is-primary?"
	DiscoveryYes   = "yes"
)

// LivenessPing and LivenessPong are the fixed strings of the liveness
// channel (§6.5).
const (
	LivenessPing = "ping"
	LivenessPong = "pong"
)

// EncodePosition renders a position report frame: "<taxi-id>:(<x>,<y>)".
func EncodePosition(taxiID string, pos model.Position) string {
	return fmt.Sprintf("%s:(%d,%d)", taxiID, pos.X, pos.Y)
}

// DecodePosition parses a position report frame. The taxi-id must be
// non-empty and contain no colon; x and y must be decimal integers.
func DecodePosition(frame string) (taxiID string, pos model.Position, err error) {
	idx := strings.IndexByte(frame, ':')
	if idx <= 0 || idx == len(frame)-1 {
		return "", model.Position{}, fmt.Errorf("%w: missing taxi-id separator", ErrMalformedFrame)
	}
	id := frame[:idx]
	rest := frame[idx+1:]
	if strings.ContainsRune(id, ':') {
		return "", model.Position{}, fmt.Errorf("%w: taxi-id contains colon", ErrMalformedFrame)
	}

	if !strings.HasPrefix(rest, "(") || !strings.HasSuffix(rest, ")") {
		return "", model.Position{}, fmt.Errorf("%w: bad position tuple %q", ErrMalformedFrame, rest)
	}
	inner := rest[1 : len(rest)-1]
	parts := strings.SplitN(inner, ",", 2)
	if len(parts) != 2 {
		return "", model.Position{}, fmt.Errorf("%w: bad position tuple %q", ErrMalformedFrame, rest)
	}
	x, errX := strconv.Atoi(strings.TrimSpace(parts[0]))
	y, errY := strconv.Atoi(strings.TrimSpace(parts[1]))
	if errX != nil || errY != nil {
		return "", model.Position{}, fmt.Errorf("%w: non-integer coordinate in %q", ErrMalformedFrame, rest)
	}
	return id, model.Position{X: x, Y: y}, nil
}

// EncodeAssigned renders an assignment broadcast frame: "<taxi-id>:assigned".
func EncodeAssigned(taxiID string) string {
	return taxiID + ":assigned"
}

// DecodeAssigned parses an assignment broadcast frame, returning the taxi id.
func DecodeAssigned(frame string) (taxiID string, err error) {
	const suffix = ":assigned"
	if !strings.HasSuffix(frame, suffix) || len(frame) <= len(suffix) {
		return "", fmt.Errorf("%w: %q", ErrMalformedFrame, frame)
	}
	return strings.TrimSuffix(frame, suffix), nil
}

// RequestMessage is the JSON body of the request channel (§6.3).
// id_usuario may arrive as either a JSON string or a JSON number.
type RequestMessage struct {
	UserID string
	X      int
	Y      int
}

type rawRequestMessage struct {
	UserID json.RawMessage `json:"id_usuario"`
	X      int             `json:"x"`
	Y      int             `json:"y"`
}

// DecodeRequest decodes a request channel body into a RequestMessage.
func DecodeRequest(body []byte) (RequestMessage, error) {
	var raw rawRequestMessage
	if err := json.Unmarshal(body, &raw); err != nil {
		return RequestMessage{}, fmt.Errorf("decode request: %w", err)
	}
	userID, err := decodeUserID(raw.UserID)
	if err != nil {
		return RequestMessage{}, fmt.Errorf("decode request: %w", err)
	}
	return RequestMessage{UserID: userID, X: raw.X, Y: raw.Y}, nil
}

func decodeUserID(raw json.RawMessage) (string, error) {
	if len(raw) == 0 {
		return "", errors.New("id_usuario is required")
	}
	var asString string
	if err := json.Unmarshal(raw, &asString); err == nil {
		return asString, nil
	}
	var asNumber json.Number
	if err := json.Unmarshal(raw, &asNumber); err == nil {
		return asNumber.String(), nil
	}
	return "", fmt.Errorf("id_usuario must be a string or number, got %q", string(raw))
}

// ReplyMessage is the JSON body returned on the request channel (§6.3).
type ReplyMessage struct {
	Status  string `json:"status"`
	TaxiID  string `json:"taxi_id,omitempty"`
	Message string `json:"mensaje,omitempty"`
}

// EncodeReply marshals a ReplyMessage.
func EncodeReply(reply ReplyMessage) ([]byte, error) {
	return json.Marshal(reply)
}

// AssignedReply builds the success reply for a taken taxi.
func AssignedReply(taxiID string) ReplyMessage {
	return ReplyMessage{Status: "assigned", TaxiID: taxiID}
}

// RejectedReply builds the reply for an exhausted free pool.
func RejectedReply(message string) ReplyMessage {
	return ReplyMessage{Status: "rejected", Message: message}
}

// ErrorReply builds the reply for a request that failed to decode.
func ErrorReply(message string) ReplyMessage {
	return ReplyMessage{Status: "error", Message: message}
}

// EncodeSnapshot marshals a replication snapshot (§6.6).
func EncodeSnapshot(snap model.Snapshot) ([]byte, error) {
	return json.Marshal(snap)
}

// DecodeSnapshot unmarshals a replication snapshot.
func DecodeSnapshot(body []byte) (model.Snapshot, error) {
	var snap model.Snapshot
	if err := json.Unmarshal(body, &snap); err != nil {
		return model.Snapshot{}, fmt.Errorf("decode snapshot: %w", err)
	}
	if snap.Taxis == nil {
		snap.Taxis = map[string]model.Position{}
	}
	return snap, nil
}
