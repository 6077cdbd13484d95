// Copyright 2026 The Zaparoo Project Contributors.
// SPDX-License-Identifier: Apache-2.0
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package metrics

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ZaparooProject/go-improv"
	virt "github.com/ZaparooProject/go-improv/internal/testing"
)

func newRecordedSession(t *testing.T, dev *virt.VirtualDevice) (*Recorder, *prometheus.Registry, *improv.Session) {
	t.Helper()
	reg := prometheus.NewRegistry()
	rec, err := NewRecorder(reg)
	require.NoError(t, err)

	session, err := improv.NewSession(dev,
		improv.WithPort("ttyTEST"),
		improv.WithTimeout(50*time.Millisecond),
		improv.WithProvisionTimeout(time.Second),
		improv.WithResultGrace(20*time.Millisecond),
		improv.WithPollInterval(time.Millisecond),
		improv.WithObserver(rec),
	)
	require.NoError(t, err)
	return rec, reg, session
}

func TestRecorder_CountsOutcomes(t *testing.T) {
	t.Parallel()

	dev := virt.NewVirtualDevice()
	dev.SetProvisionOutcome(virt.ProvisionOutcome{Error: virt.ErrUnableToConnect})
	rec, _, session := newRecordedSession(t, dev)
	ctx := context.Background()

	_, err := session.RequestState(ctx)
	require.NoError(t, err)
	_, err = session.Provision(ctx, "anthill", "wrong")
	require.ErrorIs(t, err, improv.ErrProvisioningFailed)

	dev.SetSilent(true)
	_, err = session.QueryInfo(ctx)
	require.ErrorIs(t, err, improv.ErrTimeout)

	assert.InDelta(t, 1, testutil.ToFloat64(rec.commands.WithLabelValues("ttyTEST", "GetCurrentState", "ok")), 0)
	assert.InDelta(t, 1,
		testutil.ToFloat64(rec.commands.WithLabelValues("ttyTEST", "SendWifiSettings", "device_error")), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(rec.commands.WithLabelValues("ttyTEST", "GetDeviceInfo", "timeout")), 0)
	assert.InDelta(t, 1,
		testutil.ToFloat64(rec.deviceErrors.WithLabelValues("ttyTEST", "SendWifiSettings", "0x3")), 0)
	assert.Equal(t, 3, testutil.CollectAndCount(rec.duration))
	assert.Equal(t, 1, testutil.CollectAndCount(rec.lastSuccess))
}

func TestRecorder_DoubleRegistration(t *testing.T) {
	t.Parallel()

	reg := prometheus.NewRegistry()
	_, err := NewRecorder(reg)
	require.NoError(t, err)

	_, err = NewRecorder(reg)
	require.Error(t, err)
}

func TestWriteTextfile(t *testing.T) {
	t.Parallel()

	_, reg, session := newRecordedSession(t, virt.NewVirtualDevice())
	_, err := session.QueryInfo(context.Background())
	require.NoError(t, err)

	path := filepath.Join(t.TempDir(), "improv.prom")
	require.NoError(t, WriteTextfile(reg, path))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data),
		`improv_session_commands_total{command="GetDeviceInfo",outcome="ok",port="ttyTEST"} 1`)
}

func TestWriteTextfile_BadDirectory(t *testing.T) {
	t.Parallel()

	err := WriteTextfile(prometheus.NewRegistry(), filepath.Join(t.TempDir(), "missing", "improv.prom"))
	require.Error(t, err)
}
