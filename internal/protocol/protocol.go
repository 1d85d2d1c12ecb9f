package protocol

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"

	"golang.org/x/text/encoding/charmap"
)

const (
	MaxPlayers     = 2
	MaxProjectiles = 64
	MapNameLen     = 64
	MessageLen     = 100
	HeaderSize     = 5
	MaxPayloadSize = 64 << 10

	InvalidPlayerID uint32 = math.MaxUint32
)

type PacketType uint8

// ids below PacketTypeReqIngameJoin belong to the service and lobby protocol and
// share the same frame header
const (
	PacketTypeReqAuthenticate    PacketType = 0
	PacketTypeResAuthenticate    PacketType = 1
	PacketTypeReqLogout          PacketType = 2
	PacketTypeReqChangePassword  PacketType = 3
	PacketTypeResChangePassword  PacketType = 4
	PacketTypeResGetProfile      PacketType = 5
	PacketTypeReqUpdateProfile   PacketType = 6
	PacketTypeResUpdateProfile   PacketType = 7
	PacketTypeReqSearchUser      PacketType = 8
	PacketTypeResSearchUser      PacketType = 9
	PacketTypeReqMatchFind       PacketType = 10
	PacketTypeResMatchFind       PacketType = 11
	PacketTypeReqMatchDecide1    PacketType = 12
	PacketTypeResMatchDecide1    PacketType = 13
	PacketTypeResMatchDecide2    PacketType = 14
	PacketTypeInitGame           PacketType = 15
	PacketTypeReqPlay            PacketType = 16
	PacketTypeResPlay            PacketType = 17
	PacketTypeResExecutePlay     PacketType = 18
	PacketTypeGameResult         PacketType = 19
	PacketTypeReqIngameJoin      PacketType = 20
	PacketTypeResIngameJoin      PacketType = 21
	PacketTypeReqIngameInput     PacketType = 22
	PacketTypeResIngameState     PacketType = 23
)

func (t PacketType) String() string {
	switch t {
	case PacketTypeReqLogout:
		return "logout"
	case PacketTypeReqIngameJoin:
		return "join_request"
	case PacketTypeResIngameJoin:
		return "join_response"
	case PacketTypeReqIngameInput:
		return "input_request"
	case PacketTypeResIngameState:
		return "state_snapshot"
	default:
		return fmt.Sprintf("packet(%d)", uint8(t))
	}
}

type Command uint32

const (
	CommandMoveLeft    Command = 0
	CommandMoveRight   Command = 1
	CommandStop        Command = 2
	CommandAdjustAngle Command = 3
	CommandAdjustPower Command = 4
	CommandFire        Command = 5
)

func (c Command) Valid() bool {
	return c <= CommandFire
}

func (c Command) String() string {
	switch c {
	case CommandMoveLeft:
		return "MOVE_LEFT"
	case CommandMoveRight:
		return "MOVE_RIGHT"
	case CommandStop:
		return "STOP"
	case CommandAdjustAngle:
		return "ADJUST_ANGLE"
	case CommandAdjustPower:
		return "ADJUST_POWER"
	case CommandFire:
		return "FIRE"
	default:
		return fmt.Sprintf("UNKNOWN(%d)", uint32(c))
	}
}

var (
	ErrPayloadSize     = errors.New("payload size does not match message layout")
	ErrPayloadTooLarge = errors.New("declared payload length exceeds limit")
)

type Header struct {
	Type   PacketType
	Length uint32
}

type Frame struct {
	Type    PacketType
	Payload []byte
}

type JoinRequest struct {
	MatchID uint32
	UserID  uint32
	MapName [MapNameLen]byte
}

type JoinResponse struct {
	Success  bool
	MatchID  uint32
	PlayerID uint32
	Message  [MessageLen]byte
}

type InputRequest struct {
	MatchID  uint32
	PlayerID uint32
	Seq      uint32
	Command  Command
	Value    float32
}

type PlayerState struct {
	ID     uint32
	HP     int32
	Alive  uint8
	MyTurn uint8
	Orient uint8
	X      float32
	Y      float32
	Angle  float32
	Power  float32
}

type ProjectileState struct {
	Active uint8
	X      float32
	Y      float32
	VX     float32
	VY     float32
}

type StateSnapshot struct {
	MatchID         uint32
	Tick            uint32
	RoomState       uint32
	TurnTimer       float32
	TerrainModified uint8
	HasExplosion    uint8
	ExplosionX      float32
	ExplosionY      float32
	ExplosionRadius float32
	PlayerCount     uint8
	ProjectileCount uint8
	Players         [MaxPlayers]PlayerState
	Projectiles     [MaxProjectiles]ProjectileState
}

func WriteFrame(w io.Writer, packetType PacketType, payload []byte) error {
	buf := make([]byte, HeaderSize+len(payload))
	buf[0] = uint8(packetType)
	binary.LittleEndian.PutUint32(buf[1:HeaderSize], uint32(len(payload)))
	copy(buf[HeaderSize:], payload)
	_, err := w.Write(buf)
	return err
}

// ReadFrame blocks until one whole frame has been read. A short read at any point is
// reported as an error and no partial frame is returned.
func ReadFrame(r io.Reader) (Frame, error) {
	var header [HeaderSize]byte
	if _, err := io.ReadFull(r, header[:]); err != nil {
		return Frame{}, err
	}

	length := binary.LittleEndian.Uint32(header[1:])
	if length > MaxPayloadSize {
		return Frame{}, fmt.Errorf("%w: %d bytes", ErrPayloadTooLarge, length)
	}

	frame := Frame{Type: PacketType(header[0])}
	if length == 0 {
		return frame, nil
	}

	frame.Payload = make([]byte, length)
	if _, err := io.ReadFull(r, frame.Payload); err != nil {
		if errors.Is(err, io.EOF) {
			err = io.ErrUnexpectedEOF
		}
		return Frame{}, err
	}
	return frame, nil
}

func Marshal(msg any) ([]byte, error) {
	var buf bytes.Buffer
	buf.Grow(binary.Size(msg))
	if err := binary.Write(&buf, binary.LittleEndian, msg); err != nil {
		return nil, fmt.Errorf("failed to marshal %T: %w", msg, err)
	}
	return buf.Bytes(), nil
}

func Unmarshal(payload []byte, msg any) error {
	size := binary.Size(msg)
	if size < 0 {
		return fmt.Errorf("type %T has no fixed layout", msg)
	}
	if len(payload) != size {
		return fmt.Errorf("%w: got %d bytes, want %d for %T", ErrPayloadSize, len(payload), size, msg)
	}
	return binary.Read(bytes.NewReader(payload), binary.LittleEndian, msg)
}

// Encode produces a complete frame for a fixed-layout message.
func Encode(packetType PacketType, msg any) ([]byte, error) {
	payload, err := Marshal(msg)
	if err != nil {
		return nil, err
	}
	var buf bytes.Buffer
	buf.Grow(HeaderSize + len(payload))
	if err := WriteFrame(&buf, packetType, payload); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// x/text encoders carry state, so every call gets its own.
func StringToCP437(s string) ([]byte, error) {
	return charmap.CodePage437.NewEncoder().Bytes([]byte(s))
}

func CP437ToString(b []byte) (string, error) {
	if i := bytes.IndexByte(b, 0); i >= 0 {
		b = b[:i]
	}
	decoded, err := charmap.CodePage437.NewDecoder().Bytes(b)
	if err != nil {
		return "", err
	}
	return string(decoded), nil
}

// PutString copies s into a NUL padded fixed buffer, always leaving room for a
// terminating NUL. Characters outside CP437 are replaced with '?'.
func PutString(dst []byte, s string) {
	clear(dst)
	if len(dst) == 0 {
		return
	}
	encoded, err := StringToCP437(s)
	if err != nil {
		encoded = make([]byte, 0, len(s))
		for _, r := range s {
			if r < 0x80 {
				encoded = append(encoded, byte(r))
			} else {
				encoded = append(encoded, '?')
			}
		}
	}
	copy(dst[:len(dst)-1], encoded)
}

func GetString(src []byte) string {
	s, err := CP437ToString(src)
	if err != nil {
		return ""
	}
	return s
}

func (r *JoinRequest) SetMapName(name string) { PutString(r.MapName[:], name) }
func (r *JoinRequest) GetMapName() string     { return GetString(r.MapName[:]) }

func (r *JoinResponse) SetMessage(format string, args ...any) {
	PutString(r.Message[:], fmt.Sprintf(format, args...))
}

func (r *JoinResponse) GetMessage() string { return GetString(r.Message[:]) }

func BoolToUint8(b bool) uint8 {
	if b {
		return 1
	}
	return 0
}
