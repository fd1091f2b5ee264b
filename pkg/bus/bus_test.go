// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package bus

import (
	"context"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Thermoquad/poolstat/pkg/pentair"
)

// frameSink collects frames delivered by the bus reader.
type frameSink struct {
	mu     sync.Mutex
	frames []pentair.WireFrame
}

func (s *frameSink) OnFrame(f *pentair.Frame) {
	s.mu.Lock()
	s.frames = append(s.frames, f)
	s.mu.Unlock()
}

func (s *frameSink) OnChlorinatorFrame(f *pentair.ChlorinatorFrame) {
	s.mu.Lock()
	s.frames = append(s.frames, f)
	s.mu.Unlock()
}

func (s *frameSink) len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.frames)
}

func connectPipe(t *testing.T, b *Bus) net.Conn {
	t.Helper()
	local, remote := net.Pipe()
	b.Connect(local)
	t.Cleanup(func() {
		b.Disconnect()
		remote.Close()
	})
	return remote
}

func TestBus_DeliversFrames(t *testing.T) {
	b := New()
	sink := &frameSink{}
	b.AddHandler(sink)
	remote := connectPipe(t, b)

	status := pentair.MustNewFrame(0x24, pentair.AddressBroadcast, pentair.AddressController, pentair.ActionClock,
		[]byte{12, 30, 2, 14, 6, 25, 0, 0})
	chlor, err := pentair.NewChlorinatorFrame(0x00, pentair.ChlorActionStatus, []byte{0x4C, 0x81})
	require.NoError(t, err)

	stream := append([]byte{0x00, 0x13, 0x37}, status.Bytes()...)
	stream = append(stream, chlor.Bytes()...)
	_, err = remote.Write(stream)
	require.NoError(t, err)

	require.Eventually(t, func() bool { return sink.len() == 2 }, time.Second, 5*time.Millisecond)
	sink.mu.Lock()
	assert.Equal(t, status.Bytes(), sink.frames[0].Bytes())
	assert.Equal(t, chlor.Bytes(), sink.frames[1].Bytes())
	sink.mu.Unlock()

	stats := b.Stats()
	assert.Equal(t, uint64(1), stats.Frames)
	assert.Equal(t, uint64(1), stats.ChlorinatorFrames)
	assert.True(t, b.Connected())
}

func TestBus_RejectObserver(t *testing.T) {
	b := New()
	var mu sync.Mutex
	var rejects []pentair.Reject
	b.OnReject(func(r pentair.Reject) {
		mu.Lock()
		rejects = append(rejects, r)
		mu.Unlock()
	})
	remote := connectPipe(t, b)

	raw := pentair.MustNewFrame(0x24, pentair.AddressBroadcast, pentair.AddressRemote, pentair.ActionClock,
		[]byte{12, 30, 2, 14, 6, 25, 0, 0}).Bytes()
	raw[len(raw)-1] ^= 0xFF
	_, err := remote.Write(raw)
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(rejects) > 0
	}, time.Second, 5*time.Millisecond)
	mu.Lock()
	assert.ErrorIs(t, rejects[0].Reason, pentair.ErrChecksum)
	mu.Unlock()
}

func TestBus_WriteAcknowledgedByHandler(t *testing.T) {
	b := New(WithCoordinator(NewCoordinator(WithAckTimeout(500 * time.Millisecond))))
	b.AddHandler(pentair.FrameHandlerFuncs{
		Frame: func(f *pentair.Frame) { b.Ack(int(f.Action())) },
	})
	remote := connectPipe(t, b)

	cmd := pentair.NewClockRequest(pentair.Addressing{Preamble: 0x24, Dest: pentair.AddressController, Source: pentair.AddressWireless})
	reply := pentair.MustNewFrame(0x24, pentair.AddressWireless, pentair.AddressController, pentair.ActionClock,
		[]byte{12, 30, 2, 14, 6, 25, 0, 0})

	// Play the controller: read the request, answer with the clock.
	go func() {
		buf := make([]byte, 64)
		n, err := remote.Read(buf)
		if err != nil || n == 0 {
			return
		}
		remote.Write(reply.Bytes())
	}()

	ok, err := b.Send(context.Background(), cmd, 0)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestBus_RemoteCloseStopsReader(t *testing.T) {
	b := New()
	local, remote := net.Pipe()
	b.Connect(local)

	require.True(t, b.ReaderAlive())
	remote.Close()

	require.Eventually(t, func() bool { return !b.ReaderAlive() }, time.Second, 5*time.Millisecond)
	assert.False(t, b.Connected())

	_, err := b.Write(context.Background(), testFrame, pentair.NoResponse, 0)
	assert.ErrorIs(t, err, ErrNoTransport)
	b.Disconnect()
}

func TestBus_DisconnectReleasesWriter(t *testing.T) {
	b := New(WithCoordinator(NewCoordinator(WithAckTimeout(time.Hour))))
	remote := connectPipe(t, b)

	go func() {
		buf := make([]byte, 64)
		remote.Read(buf)
		b.Disconnect()
	}()

	ok, err := b.Write(context.Background(), testFrame, pentair.ActionClock, 0)
	assert.ErrorIs(t, err, ErrBusClosed)
	assert.False(t, ok)
	require.Eventually(t, func() bool { return !b.ReaderAlive() }, time.Second, 5*time.Millisecond)
	assert.NoError(t, b.Err())
}

func TestBus_Reconnect(t *testing.T) {
	b := New()
	sink := &frameSink{}
	b.AddHandler(sink)

	first, firstRemote := net.Pipe()
	b.Connect(first)
	second, secondRemote := net.Pipe()
	b.Connect(second)
	t.Cleanup(func() {
		b.Disconnect()
		firstRemote.Close()
		secondRemote.Close()
	})

	// The first transport was closed by the second Connect.
	_, err := firstRemote.Write([]byte{0x00})
	assert.Error(t, err)

	f := pentair.MustNewFrame(0x24, pentair.AddressBroadcast, pentair.AddressController, pentair.ActionClock,
		[]byte{12, 30, 2, 14, 6, 25, 0, 0})
	_, err = secondRemote.Write(f.Bytes())
	require.NoError(t, err)
	require.Eventually(t, func() bool { return sink.len() == 1 }, time.Second, 5*time.Millisecond)
}
