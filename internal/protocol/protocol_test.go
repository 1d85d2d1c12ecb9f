package protocol

import (
	"bytes"
	"errors"
	"io"
	"testing"
)

func TestMessageSizes(t *testing.T) {
	tests := []struct {
		name string
		msg  any
		want int
	}{
		{"join request", &JoinRequest{}, 72},
		{"join response", &JoinResponse{}, 109},
		{"input request", &InputRequest{}, 20},
		{"player state", &PlayerState{}, 27},
		{"projectile state", &ProjectileState{}, 17},
		{"state snapshot", &StateSnapshot{}, 32 + 2*27 + 64*17},
	}

	for _, tt := range tests {
		payload, err := Marshal(tt.msg)
		if err != nil {
			t.Fatalf("%s: marshal: %v", tt.name, err)
		}
		if len(payload) != tt.want {
			t.Errorf("%s: encoded size = %d, want %d", tt.name, len(payload), tt.want)
		}
	}
}

func TestFrameRoundTrip(t *testing.T) {
	join := JoinRequest{MatchID: 7, UserID: 42}
	join.SetMapName("hills")

	resp := JoinResponse{Success: true, MatchID: 7, PlayerID: 1}
	resp.SetMessage("Joined match %d as player %d", 7, 1)

	input := InputRequest{MatchID: 7, PlayerID: 1, Seq: 99, Command: CommandAdjustAngle, Value: 0.5}

	snap := StateSnapshot{
		MatchID:         7,
		Tick:            1234,
		RoomState:       2,
		TurnTimer:       12.5,
		TerrainModified: 1,
		HasExplosion:    1,
		ExplosionX:      300,
		ExplosionY:      410.25,
		ExplosionRadius: 30,
		PlayerCount:     2,
		ProjectileCount: 1,
	}
	snap.Players[0] = PlayerState{ID: 0, HP: 90, Alive: 1, MyTurn: 1, Orient: 1, X: 200, Y: 100, Angle: 50, Power: 70}
	snap.Players[1] = PlayerState{ID: 1, HP: 0, X: 1000, Y: 96, Angle: 45}
	snap.Projectiles[0] = ProjectileState{Active: 1, X: 10, Y: 20, VX: 3.5, VY: -7}

	var buf bytes.Buffer
	for _, m := range []struct {
		typ PacketType
		msg any
	}{
		{PacketTypeReqIngameJoin, &join},
		{PacketTypeResIngameJoin, &resp},
		{PacketTypeReqIngameInput, &input},
		{PacketTypeResIngameState, &snap},
	} {
		frame, err := Encode(m.typ, m.msg)
		if err != nil {
			t.Fatalf("encode %s: %v", m.typ, err)
		}
		buf.Write(frame)
	}

	var gotJoin JoinRequest
	readInto(t, &buf, PacketTypeReqIngameJoin, &gotJoin)
	if gotJoin != join {
		t.Errorf("join request mismatch: got %+v, want %+v", gotJoin, join)
	}
	if gotJoin.GetMapName() != "hills" {
		t.Errorf("map name = %q, want hills", gotJoin.GetMapName())
	}

	var gotResp JoinResponse
	readInto(t, &buf, PacketTypeResIngameJoin, &gotResp)
	if gotResp != resp {
		t.Errorf("join response mismatch: got %+v, want %+v", gotResp, resp)
	}
	if gotResp.GetMessage() != "Joined match 7 as player 1" {
		t.Errorf("message = %q", gotResp.GetMessage())
	}

	var gotInput InputRequest
	readInto(t, &buf, PacketTypeReqIngameInput, &gotInput)
	if gotInput != input {
		t.Errorf("input mismatch: got %+v, want %+v", gotInput, input)
	}

	var gotSnap StateSnapshot
	readInto(t, &buf, PacketTypeResIngameState, &gotSnap)
	if gotSnap != snap {
		t.Errorf("snapshot mismatch")
	}

	if _, err := ReadFrame(&buf); !errors.Is(err, io.EOF) {
		t.Errorf("expected io.EOF on drained stream, got %v", err)
	}
}

func readInto(t *testing.T, r io.Reader, want PacketType, msg any) {
	t.Helper()
	frame, err := ReadFrame(r)
	if err != nil {
		t.Fatalf("read frame: %v", err)
	}
	if frame.Type != want {
		t.Fatalf("frame type = %s, want %s", frame.Type, want)
	}
	if err := Unmarshal(frame.Payload, msg); err != nil {
		t.Fatalf("unmarshal %s: %v", want, err)
	}
}

func TestReadFrameFailsClosed(t *testing.T) {
	full, err := Encode(PacketTypeReqIngameInput, &InputRequest{Command: CommandFire})
	if err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name string
		data []byte
	}{
		{"partial header", full[:3]},
		{"truncated payload", full[:len(full)-1]},
		{"length beyond data", append([]byte{byte(PacketTypeReqIngameInput), 0xFF, 0x00, 0x00, 0x00}, make([]byte, 10)...)},
	}

	for _, tt := range tests {
		_, err := ReadFrame(bytes.NewReader(tt.data))
		if err == nil {
			t.Errorf("%s: expected error", tt.name)
			continue
		}
		if !errors.Is(err, io.ErrUnexpectedEOF) {
			t.Errorf("%s: expected unexpected EOF, got %v", tt.name, err)
		}
	}
}

func TestReadFrameRejectsOversizedLength(t *testing.T) {
	data := []byte{byte(PacketTypeReqIngameJoin), 0xFF, 0xFF, 0xFF, 0xFF}
	if _, err := ReadFrame(bytes.NewReader(data)); !errors.Is(err, ErrPayloadTooLarge) {
		t.Fatalf("expected ErrPayloadTooLarge, got %v", err)
	}
}

func TestUnmarshalRejectsWrongSize(t *testing.T) {
	payload, err := Marshal(&InputRequest{Command: CommandStop})
	if err != nil {
		t.Fatal(err)
	}

	var in InputRequest
	if err := Unmarshal(payload[:len(payload)-2], &in); !errors.Is(err, ErrPayloadSize) {
		t.Errorf("short payload: expected ErrPayloadSize, got %v", err)
	}
	if err := Unmarshal(append(payload, 0), &in); !errors.Is(err, ErrPayloadSize) {
		t.Errorf("long payload: expected ErrPayloadSize, got %v", err)
	}
	if in != (InputRequest{}) {
		t.Errorf("rejected payload must not be applied, got %+v", in)
	}
}

func TestPutStringTruncatesAndTerminates(t *testing.T) {
	var buf [8]byte
	PutString(buf[:], "abcdefghijkl")
	if buf[7] != 0 {
		t.Fatalf("last byte must stay NUL, got %q", buf[7])
	}
	if got := GetString(buf[:]); got != "abcdefg" {
		t.Errorf("GetString = %q, want abcdefg", got)
	}

	PutString(buf[:], "x")
	if got := GetString(buf[:]); got != "x" {
		t.Errorf("reused buffer = %q, want x", got)
	}
}

func TestCommandValid(t *testing.T) {
	for c := CommandMoveLeft; c <= CommandFire; c++ {
		if !c.Valid() {
			t.Errorf("%s should be valid", c)
		}
	}
	if Command(6).Valid() {
		t.Error("command 6 should be invalid")
	}
}
