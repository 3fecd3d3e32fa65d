package telemetry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/schemabounce/waterfall-bridge/helpers/logging"
)

func TestTrackOperation(t *testing.T) {
	logger, capture := logging.NewTestLogger(t, "importer")

	var observed []string
	observer := ObserverFunc(func(stage string, _ time.Duration, err error) {
		observed = append(observed, stage+":"+map[bool]string{true: "ok", false: "err"}[err == nil])
	})

	require.NoError(t, TrackOperation(context.Background(), logger, observer, "import.parse", func(context.Context) error {
		return nil
	}))

	boom := errors.New("cycle")
	err := TrackOperation(context.Background(), logger, observer, "import.prepare", func(context.Context) error {
		return boom
	})
	assert.ErrorIs(t, err, boom)

	assert.Equal(t, []string{"import.parse:ok", "import.prepare:err"}, observed)
	capture.AssertContains(t, "import.parse.start")
	capture.AssertContains(t, "import.parse.success")
	capture.AssertContains(t, "import.prepare.fail")
}

func TestTrackOperation_NilCollaborators(t *testing.T) {
	called := false
	err := TrackOperation(context.Background(), nil, nil, "export.fetch", func(context.Context) error {
		called = true
		return nil
	})
	require.NoError(t, err)
	assert.True(t, called)
}
