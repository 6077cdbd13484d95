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

package improv

import (
	"context"
	"errors"
	"fmt"
	"io"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	virt "github.com/ZaparooProject/go-improv/internal/testing"
)

func TestClassify(t *testing.T) {
	t.Parallel()

	tests := []struct {
		err  error
		want string
	}{
		{nil, OutcomeOK},
		{fmt.Errorf("wrapped: %w", ErrTimeout), OutcomeTimeout},
		{&DeviceError{Command: CommandSendWifiSettings, Code: ErrorUnableToConnect}, OutcomeDevice},
		{context.Canceled, OutcomeCancelled},
		{NewTransportError("read", "ttyUSB0", io.ErrUnexpectedEOF, ErrorTypeTransient), OutcomeTransport},
		{ErrTransportClosed, OutcomeTransport},
		{fmt.Errorf("waiting: %w", ErrDesynchronized), OutcomeProtocol},
		{errors.New("something else"), OutcomeOther},
	}

	for _, tc := range tests {
		t.Run(tc.want, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tc.want, Classify(tc.err))
		})
	}
}

func TestSession_Observer(t *testing.T) {
	t.Parallel()

	type call struct {
		err  error
		port string
		cmd  Command
	}
	var calls []call
	obs := ObserverFunc(func(port string, cmd Command, elapsed time.Duration, err error) {
		assert.GreaterOrEqual(t, elapsed, time.Duration(0))
		calls = append(calls, call{port: port, cmd: cmd, err: err})
	})

	dev := virt.NewVirtualDevice()
	s := newTestSession(t, dev, WithObserver(obs))

	_, err := s.RequestState(context.Background())
	require.NoError(t, err)

	dev.SetSilent(true)
	_, err = s.QueryInfo(context.Background())
	require.ErrorIs(t, err, ErrTimeout)

	_, err = s.Provision(context.Background(), "", "pw")
	require.Error(t, err)

	require.Len(t, calls, 2, "commands rejected before sending are not observed")
	assert.Equal(t, "test", calls[0].port)
	assert.Equal(t, CommandGetCurrentState, calls[0].cmd)
	require.NoError(t, calls[0].err)
	assert.Equal(t, CommandGetDeviceInfo, calls[1].cmd)
	require.ErrorIs(t, calls[1].err, ErrTimeout)
}
