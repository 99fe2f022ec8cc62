package system_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/elimu/core/system"
	testutil "github.com/trezcool/elimu/tests"
)

func newUpdater(t *testing.T, build string) *system.Updater {
	conf := testutil.NewConfig(t)
	conf.Build = build
	u, err := system.NewUpdater(conf, testutil.NewLogger(t, conf))
	require.NoError(t, err)
	return u
}

func TestUpdater_Check(t *testing.T) {
	now := time.Date(2024, 10, 1, 9, 0, 0, 0, time.UTC)
	freezeTime(t, now)
	ctx := context.Background()

	tests := []struct {
		name       string
		build      string
		channel    string
		wantLatest string
		wantAvail  bool
	}{
		{name: "dev build", build: "dev", channel: system.ChannelStable, wantLatest: "1.2.0", wantAvail: true},
		{name: "up to date", build: "v1.2.0", channel: system.ChannelStable, wantLatest: "1.2.0"},
		{name: "beta sees prereleases", build: "1.2.0", channel: system.ChannelBeta, wantLatest: "1.3.0-beta.1", wantAvail: true},
		{name: "newer than catalog", build: "2.0.0", channel: system.ChannelBeta, wantLatest: "1.3.0-beta.1"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			u := newUpdater(t, tt.build)
			_, err := u.SetChannel(tt.channel)
			require.NoError(t, err)

			info, err := u.Check(ctx)
			require.NoError(t, err)
			assert.Equal(t, tt.wantLatest, info.LatestVersion)
			assert.Equal(t, tt.wantAvail, info.UpdateAvailable)

			state, err := u.State()
			require.NoError(t, err)
			assert.Equal(t, &now, state.LastCheckedAt)
		})
	}
}

func TestUpdater_Install(t *testing.T) {
	freezeTime(t, time.Date(2024, 10, 1, 9, 0, 0, 0, time.UTC))
	ctx := context.Background()
	u := newUpdater(t, "1.0.0")

	_, err := u.Install(ctx, "1.3.0-beta.1")
	testutil.AssertFieldError(t, err, "version", system.ErrUnknownVersion)

	_, err = u.Install(ctx, "0.9.0")
	testutil.AssertFieldError(t, err, "version", system.ErrUnknownVersion)

	state, err := u.Install(ctx, "v1.1.0")
	require.NoError(t, err)
	assert.Equal(t, "1.1.0", state.InstalledVersion)

	_, err = u.Install(ctx, "1.0.0")
	testutil.AssertFieldError(t, err, "version", system.ErrAlreadyInstalled)

	_, err = u.SetChannel("nightly")
	testutil.AssertFieldError(t, err, "channel", system.ErrUnknownChannel)

	_, err = u.SetChannel(" BETA ")
	require.NoError(t, err)
	state, err = u.Install(ctx, "1.2.0-beta.1")
	require.NoError(t, err)
	assert.Equal(t, "1.2.0-beta.1", state.InstalledVersion)

	// a release outranks its own prerelease
	state, err = u.Install(ctx, "1.2.0")
	require.NoError(t, err)
	assert.Equal(t, "1.2.0", state.InstalledVersion)

	state, err = u.Install(ctx, "")
	require.NoError(t, err)
	assert.Equal(t, "1.3.0-beta.1", state.InstalledVersion)

	info, err := u.Check(ctx)
	require.NoError(t, err)
	assert.False(t, info.UpdateAvailable)
	assert.Equal(t, "1.3.0-beta.1", info.CurrentVersion)

	_, err = u.Install(ctx, "1.2.0")
	testutil.AssertFieldError(t, err, "version", system.ErrAlreadyInstalled)
}

func TestUpdater_Releases(t *testing.T) {
	u := newUpdater(t, "dev")
	stable, err := u.Releases(system.ChannelStable)
	require.NoError(t, err)
	require.Len(t, stable, 3)
	assert.Equal(t, "1.2.0", stable[0].Version)

	_, err = u.Releases("nightly")
	assert.ErrorIs(t, err, system.ErrUnknownChannel)
}
