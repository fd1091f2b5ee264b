// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Thermoquad/poolstat/pkg/pentair"
)

func TestFormatUptime(t *testing.T) {
	tests := []struct {
		in   time.Duration
		want string
	}{
		{0, "0 seconds"},
		{-time.Second, "0 seconds"},
		{time.Second, "1 second"},
		{90 * time.Second, "1 minute and 30 seconds"},
		{2*time.Hour + 5*time.Second, "2 hours and 5 seconds"},
		{26*time.Hour + 3*time.Minute + time.Second, "1 day, 2 hours, 3 minutes, and 1 second"},
	}
	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			assert.Equal(t, tt.want, formatUptime(tt.in))
		})
	}
}

func TestModel_SyncAndReject(t *testing.T) {
	m := initialModel("test", 5, false)

	next, _ := m.Update(syncMsg{skipped: 7})
	m = next.(model)
	assert.True(t, m.synchronized)
	assert.Equal(t, uint64(7), m.skippedBytes)
	require.Len(t, m.errorLog, 1)
	assert.Contains(t, m.errorLog[0].message, "skipping 7 bytes")

	next, _ = m.Update(rejectMsg{reject: pentair.Reject{
		Kind:   pentair.KindController,
		Reason: fmt.Errorf("%w: want 0x0123", pentair.ErrChecksum),
	}})
	m = next.(model)
	assert.Equal(t, uint64(1), m.stats.ChecksumErrors)
	require.Len(t, m.errorLog, 2)
	assert.True(t, m.errorLog[1].isError)

	next, _ = m.Update(linkErrMsg{err: errors.New("read: EOF")})
	m = next.(model)
	assert.Error(t, m.linkErr)
}

func TestModel_LogIsBounded(t *testing.T) {
	m := initialModel("test", 5, false)
	m.maxLogEntries = 3
	for i := 0; i < 10; i++ {
		m.addLogEntry(fmt.Sprintf("entry %d", i), false)
	}
	require.Len(t, m.errorLog, 3)
	assert.Equal(t, "entry 9", m.errorLog[2].message)
}

func TestRedact(t *testing.T) {
	assert.Equal(t, "", redact(""))
	assert.Equal(t, "********", redact("hunter2"))
}
