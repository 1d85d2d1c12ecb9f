package network

import (
	"errors"
	"net"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/siohaza/bombard/internal/protocol"
)

func TestEnqueueDropsWhenFull(t *testing.T) {
	server, client := net.Pipe()
	defer client.Close()

	c := NewConn(server, 2, nil)
	defer c.Close()

	for i := 0; i < 2; i++ {
		if err := c.Enqueue([]byte{byte(i)}); err != nil {
			t.Fatalf("enqueue %d: %v", i, err)
		}
	}
	if err := c.Enqueue([]byte{2}); !errors.Is(err, ErrSendQueueFull) {
		t.Errorf("err = %v, want ErrSendQueueFull", err)
	}
}

func TestEnqueueTimeoutWaitsForRoom(t *testing.T) {
	server, client := net.Pipe()
	defer client.Close()

	c := NewConn(server, 1, nil)
	defer c.Close()

	if err := c.Enqueue([]byte{0}); err != nil {
		t.Fatal(err)
	}
	if err := c.EnqueueTimeout([]byte{1}, 20*time.Millisecond); !errors.Is(err, ErrSendQueueFull) {
		t.Fatalf("err = %v, want ErrSendQueueFull", err)
	}

	go func() {
		time.Sleep(20 * time.Millisecond)
		<-c.send
	}()
	if err := c.EnqueueTimeout([]byte{1}, 2*time.Second); err != nil {
		t.Fatalf("EnqueueTimeout after drain: %v", err)
	}

	c.Close()
	if err := c.EnqueueTimeout([]byte{2}, time.Second); !errors.Is(err, ErrClosed) {
		t.Errorf("err = %v, want ErrClosed", err)
	}
}

func TestWritePumpDeliversFrames(t *testing.T) {
	server, client := net.Pipe()
	defer client.Close()

	c := NewConn(server, 8, nil)
	defer c.Close()
	go c.WritePump()

	resp := protocol.JoinResponse{Success: true, MatchID: 1, PlayerID: 0}
	resp.SetMessage("Joined match %d as player %d", 1, 0)
	if err := c.SendPacket(protocol.PacketTypeResIngameJoin, &resp); err != nil {
		t.Fatalf("SendPacket: %v", err)
	}

	client.SetReadDeadline(time.Now().Add(2 * time.Second))
	frame, err := protocol.ReadFrame(client)
	if err != nil {
		t.Fatalf("ReadFrame: %v", err)
	}
	if frame.Type != protocol.PacketTypeResIngameJoin {
		t.Fatalf("type = %v", frame.Type)
	}

	var got protocol.JoinResponse
	if err := protocol.Unmarshal(frame.Payload, &got); err != nil {
		t.Fatal(err)
	}
	if got.GetMessage() != "Joined match 1 as player 0" {
		t.Errorf("message = %q", got.GetMessage())
	}
}

func TestReadFrameFromClient(t *testing.T) {
	server, client := net.Pipe()
	c := NewConn(server, 1, nil)
	defer c.Close()

	go func() {
		protocol.WriteFrame(client, protocol.PacketTypeReqLogout, nil)
		client.Close()
	}()

	frame, err := c.ReadFrame()
	if err != nil {
		t.Fatalf("ReadFrame: %v", err)
	}
	if frame.Type != protocol.PacketTypeReqLogout || len(frame.Payload) != 0 {
		t.Errorf("frame = %+v", frame)
	}
	if _, err := c.ReadFrame(); err == nil {
		t.Error("expected error after peer closed")
	}
}

func TestCloseIsIdempotent(t *testing.T) {
	server, client := net.Pipe()
	defer client.Close()

	c := NewConn(server, 1, nil)
	pumpDone := make(chan struct{})
	go func() {
		c.WritePump()
		close(pumpDone)
	}()

	c.Close()
	c.Close()

	select {
	case <-c.Done():
	default:
		t.Error("done channel should be closed")
	}
	if err := c.Enqueue([]byte{1}); !errors.Is(err, ErrClosed) {
		t.Errorf("enqueue after close: err = %v, want ErrClosed", err)
	}

	select {
	case <-pumpDone:
	case <-time.After(2 * time.Second):
		t.Fatal("write pump did not stop")
	}
}

func TestWriteErrorClosesConn(t *testing.T) {
	server, client := net.Pipe()
	c := NewConn(server, 1, nil)
	go c.WritePump()

	client.Close()
	c.Enqueue([]byte{1, 2, 3})

	select {
	case <-c.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("write error should close the connection")
	}
}

func TestServerAcceptAndStop(t *testing.T) {
	s := NewServer("127.0.0.1:0", 4, nil)
	if _, err := s.Accept(); !errors.Is(err, ErrNotStarted) {
		t.Fatalf("accept before start: err = %v", err)
	}
	if err := s.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}

	accepted := make(chan *Conn, 1)
	go func() {
		c, err := s.Accept()
		if err == nil {
			accepted <- c
		}
	}()

	nc, err := net.Dial("tcp", s.Addr().String())
	if err != nil {
		t.Fatal(err)
	}
	defer nc.Close()

	select {
	case c := <-accepted:
		if c.ID() == uuid.Nil {
			t.Error("connection id should be set")
		}
		c.Close()
	case <-time.After(2 * time.Second):
		t.Fatal("accept timed out")
	}

	s.Stop()
	if _, err := s.Accept(); !errors.Is(err, net.ErrClosed) {
		t.Errorf("accept after stop: err = %v, want net.ErrClosed", err)
	}
}

func TestStartFailsOnBusyPort(t *testing.T) {
	first := NewServer("127.0.0.1:0", 1, nil)
	if err := first.Start(); err != nil {
		t.Fatal(err)
	}
	defer first.Stop()

	second := NewServer(first.Addr().String(), 1, nil)
	if err := second.Start(); err == nil {
		second.Stop()
		t.Fatal("expected bind failure")
	}
}
