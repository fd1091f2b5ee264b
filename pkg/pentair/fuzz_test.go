// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package pentair

import (
	"bytes"
	"math/rand"
	"os"
	"strconv"
	"testing"
	"time"
)

// getFuzzRounds returns the number of fuzz rounds from FUZZ_ROUNDS env var, default 1000
func getFuzzRounds() int {
	if envRounds := os.Getenv("FUZZ_ROUNDS"); envRounds != "" {
		if rounds, err := strconv.Atoi(envRounds); err == nil && rounds > 0 {
			return rounds
		}
	}
	return 1000
}

// getFuzzSeed returns the seed from FUZZ_SEED env var, or generates one from current time
func getFuzzSeed() int64 {
	if envSeed := os.Getenv("FUZZ_SEED"); envSeed != "" {
		if seed, err := strconv.ParseInt(envSeed, 10, 64); err == nil {
			return seed
		}
	}
	return time.Now().UnixNano()
}

// newFuzzRng creates a new random number generator and logs the seed for reproducibility
func newFuzzRng(t *testing.T) *rand.Rand {
	seed := getFuzzSeed()
	t.Logf("Seed: %d (reproduce with FUZZ_SEED=%d)", seed, seed)
	return rand.New(rand.NewSource(seed))
}

var chlorActions = []uint8{
	ChlorActionQuery, ChlorActionPoll, ChlorActionVersion,
	ChlorActionSetOutput, ChlorActionStatus, ChlorActionPresence,
}

// randomFrame builds a random valid frame of either protocol
func randomFrame(rng *rand.Rand) WireFrame {
	if rng.Intn(3) == 0 {
		action := chlorActions[rng.Intn(len(chlorActions))]
		n, _ := ChlorinatorPayloadLength(action)
		payload := make([]byte, n)
		rng.Read(payload)
		f, err := NewChlorinatorFrame(uint8(rng.Intn(256)), action, payload)
		if err != nil {
			panic(err)
		}
		return f
	}

	payload := make([]byte, rng.Intn(64))
	rng.Read(payload)
	return MustNewFrame(uint8(rng.Intn(256)), uint8(rng.Intn(256)), uint8(rng.Intn(256)), uint8(rng.Intn(256)), payload)
}

// randomGarbage returns bytes that can never start a marker
func randomGarbage(rng *rand.Rand, n int) []byte {
	out := make([]byte, n)
	for i := range out {
		b := byte(rng.Intn(256))
		for b == IdleByte || b == ChlorinatorDLE {
			b = byte(rng.Intn(256))
		}
		out[i] = b
	}
	return out
}

// ============================================================
// Synchronizer Fuzz Tests
// ============================================================

func TestFuzz_SynchronizerRecoversFramesInOrder(t *testing.T) {
	rng := newFuzzRng(t)
	rounds := getFuzzRounds()

	for round := 0; round < rounds; round++ {
		var stream []byte
		var want []WireFrame
		for i := 0; i < 1+rng.Intn(8); i++ {
			stream = append(stream, randomGarbage(rng, rng.Intn(16))...)
			f := randomFrame(rng)
			want = append(want, f)
			stream = append(stream, f.Bytes()...)
		}

		// Feed in random sized chunks
		s := NewSynchronizer()
		var got []WireFrame
		for len(stream) > 0 {
			n := 1 + rng.Intn(len(stream))
			got = append(got, s.FeedBytes(stream[:n])...)
			stream = stream[n:]
		}
		got = append(got, s.Flush()...)

		if len(got) != len(want) {
			t.Fatalf("round %d: got %d frames, want %d", round, len(got), len(want))
		}
		for i := range want {
			if !bytes.Equal(got[i].Bytes(), want[i].Bytes()) {
				t.Fatalf("round %d frame %d:\n got % X\nwant % X", round, i, got[i].Bytes(), want[i].Bytes())
			}
		}
		if s.Stats().ChecksumErrors != 0 {
			t.Fatalf("round %d: %d checksum errors on a clean stream", round, s.Stats().ChecksumErrors)
		}
	}
}

func TestFuzz_SynchronizerRandomBytes(t *testing.T) {
	rng := newFuzzRng(t)
	rounds := getFuzzRounds()

	for round := 0; round < rounds; round++ {
		data := make([]byte, rng.Intn(512))
		rng.Read(data)

		s := NewSynchronizer()
		frames := append(s.FeedBytes(data), s.Flush()...)

		// Every emitted frame must re-parse with a valid checksum
		for _, f := range frames {
			switch v := f.(type) {
			case *Frame:
				if _, err := ParseFrame(v.Bytes()); err != nil {
					t.Fatalf("round %d: emitted invalid frame: %v", round, err)
				}
			case *ChlorinatorFrame:
				if _, err := ParseChlorinatorFrame(v.Bytes()); err != nil {
					t.Fatalf("round %d: emitted invalid chlorinator frame: %v", round, err)
				}
			}
		}
		if s.Pending() != 0 {
			t.Fatalf("round %d: %d bytes pending after flush", round, s.Pending())
		}
	}
}

// ============================================================
// Decoder Fuzz Tests
// ============================================================

func TestFuzz_DecodeNeverReturnsNil(t *testing.T) {
	rng := newFuzzRng(t)
	rounds := getFuzzRounds()

	sources := []uint8{0x10, 0x20, 0x60, 0x90, 0x22}
	actions := []uint8{
		ActionAck, ActionStatus, ActionClock, ActionPumpRun, ActionPumpStatus, ActionHeatStatus,
		ActionCircuitName, ActionSchedule, ActionIntelliChem, ActionSoftwareVersion, 0x42,
	}

	for round := 0; round < rounds; round++ {
		payload := make([]byte, rng.Intn(48))
		rng.Read(payload)
		f := MustNewFrame(0x24, 0x0F, sources[rng.Intn(len(sources))], actions[rng.Intn(len(actions))], payload)

		rec, err := Decode(f)
		if rec == nil {
			t.Fatalf("round %d: Decode() returned nil record (err=%v)", round, err)
		}
		if _, ok := rec.(Unrecognized); err != nil && !ok {
			t.Fatalf("round %d: error %v with %T", round, err, rec)
		}
		_ = ValidateFrame(f)
		_ = FormatFrame(f)
	}
}

func TestFuzz_ScheduleRoundTrip(t *testing.T) {
	rng := newFuzzRng(t)
	rounds := getFuzzRounds()

	for round := 0; round < rounds; round++ {
		s := Schedule{
			ID:      1 + rng.Intn(NumSchedules),
			Circuit: 1 + rng.Intn(NumCircuits),
			Type:    ScheduleType(rng.Intn(int(ScheduleUnknown))),
			Start:   rng.Intn(MinutesPerDay + 1),
			End:     rng.Intn(MinutesPerDay + 1),
			Days:    uint8(rng.Intn(allDaysMask + 1)),
			Dirty:   rng.Intn(2) == 0,
		}

		p, err := s.Encode()
		if err != nil {
			t.Fatalf("round %d: Encode(%+v) error: %v", round, s, err)
		}
		got, err := DecodeSchedule(p)
		if err != nil {
			t.Fatalf("round %d: DecodeSchedule() error: %v", round, err)
		}
		if want := s.Normalized(); *got != want {
			t.Fatalf("round %d: round trip = %+v, want %+v", round, *got, want)
		}

		parsed, err := ParseSchedule(s.ID, s.String())
		if err != nil {
			t.Fatalf("round %d: ParseSchedule(%q) error: %v", round, s.String(), err)
		}
		if parsed.Type != s.Type || parsed.Start != s.Start || parsed.End != s.End || parsed.Days != s.Days {
			t.Fatalf("round %d: ParseSchedule(%q) = %+v", round, s.String(), parsed)
		}
	}
}

func TestFuzz_ChecksumMatchesBytes(t *testing.T) {
	rng := newFuzzRng(t)
	rounds := getFuzzRounds()

	for round := 0; round < rounds; round++ {
		f := randomFrame(rng)
		raw := f.Bytes()
		switch v := f.(type) {
		case *Frame:
			sum, _ := DecodeChecksum(raw)
			if sum != ControllerChecksum(raw[3:len(raw)-2]) || sum != v.Checksum() {
				t.Fatalf("round %d: checksum mismatch in % X", round, raw)
			}
		case *ChlorinatorFrame:
			end := len(raw) - 3
			if raw[end] != ChlorinatorChecksum(raw[:end]) || raw[end] != v.Checksum() {
				t.Fatalf("round %d: checksum mismatch in % X", round, raw)
			}
		}
	}
}
