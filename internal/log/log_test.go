// Copyright (c) 2013-2025 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package log

import (
	"testing"

	"github.com/btcsuite/btclog"
	"github.com/stretchr/testify/require"
)

func TestParseAndSetDebugLevels(t *testing.T) {
	tests := []struct {
		name    string
		level   string
		wantErr bool
		check   map[string]btclog.Level
	}{
		{
			name:  "global",
			level: "debug",
			check: map[string]btclog.Level{
				"CHAN": btclog.LevelDebug,
				"TXMP": btclog.LevelDebug,
			},
		},
		{
			name:  "pairs",
			level: "TXMP=trace,MPDB=warn",
			check: map[string]btclog.Level{
				"TXMP": btclog.LevelTrace,
				"MPDB": btclog.LevelWarn,
			},
		},
		{name: "bad level", level: "loud", wantErr: true},
		{name: "bad subsystem", level: "PEER=info", wantErr: true},
		{name: "bad pair", level: "TXMP=info,warn", wantErr: true},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			err := ParseAndSetDebugLevels(test.level)
			if test.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			for subsystem, level := range test.check {
				require.Equal(t, level,
					SubsystemLoggers[subsystem].Level(), subsystem)
			}
		})
	}
}

func TestSupportedSubsystems(t *testing.T) {
	require.Equal(t, []string{"CHAN", "MPDB", "PKGP", "TXMP"},
		SupportedSubsystems())
}
