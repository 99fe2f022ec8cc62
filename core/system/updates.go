package system

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/kat-co/vala"
	"github.com/pkg/errors"
	"golang.org/x/mod/semver"

	"github.com/trezcool/elimu/core"
)

// Update channels
const (
	ChannelStable = "stable"
	ChannelBeta   = "beta"
)

var (
	Channels = []string{ChannelStable, ChannelBeta}

	ErrUnknownChannel   = errors.New("unknown update channel")
	ErrUnknownVersion   = errors.New("this version is not available on the current channel")
	ErrAlreadyInstalled = errors.New("this version is not newer than the installed one")

	// releaseCatalog is the simulated release feed; nothing is downloaded.
	releaseCatalog = []Release{
		{Version: "1.0.0", Channel: ChannelStable, ReleasedAt: date(2024, 1, 15), Notes: "Initial release."},
		{Version: "1.1.0", Channel: ChannelStable, ReleasedAt: date(2024, 4, 2), Notes: "Timetable and exam results."},
		{Version: "1.2.0-beta.1", Channel: ChannelBeta, ReleasedAt: date(2024, 6, 10), Notes: "Invoice emails and payment plans."},
		{Version: "1.2.0", Channel: ChannelStable, ReleasedAt: date(2024, 7, 1), Notes: "Invoice emails and payment plans."},
		{Version: "1.3.0-beta.1", Channel: ChannelBeta, ReleasedAt: date(2024, 9, 20), Notes: "Dashboard and activity log filters."},
	}
)

func date(y int, m time.Month, d int) time.Time { return time.Date(y, m, d, 0, 0, 0, 0, time.UTC) }

type Release struct {
	Version    string    `json:"version"`
	Channel    string    `json:"channel"`
	ReleasedAt time.Time `json:"released_at"`
	Notes      string    `json:"notes"`
}

type UpdateState struct {
	Channel          string     `json:"channel"`
	InstalledVersion string     `json:"installed_version,omitempty"`
	InstalledAt      *time.Time `json:"installed_at,omitempty"`
	LastCheckedAt    *time.Time `json:"last_checked_at,omitempty"`
}

type UpdateInfo struct {
	CurrentVersion  string   `json:"current_version"`
	Channel         string   `json:"channel"`
	LatestVersion   string   `json:"latest_version"`
	UpdateAvailable bool     `json:"update_available"`
	Latest          *Release `json:"latest,omitempty"`
}

// Updater simulates an update channel; the installed version is persisted to a state file.
type Updater struct {
	mu             sync.Mutex
	build          string
	stateFile      string
	defaultChannel string
	logger         core.Logger
}

func NewUpdater(conf *core.Config, logger core.Logger) (*Updater, error) {
	if logger == nil {
		return nil, errors.New("logger: parameter was nil")
	}
	err := vala.BeginValidation().Validate(
		vala.IsNotNil(conf, "conf"),
	).Check()
	if err != nil {
		return nil, err
	}
	if err = vala.BeginValidation().Validate(
		vala.StringNotEmpty(conf.System.UpdateStateFile, "conf.System.UpdateStateFile"),
	).Check(); err != nil {
		return nil, err
	}

	channel := conf.System.UpdateChannel
	if !core.ContainsString(Channels, channel) {
		channel = ChannelStable
	}
	return &Updater{
		build:          conf.Build,
		stateFile:      conf.System.UpdateStateFile,
		defaultChannel: channel,
		logger:         logger,
	}, nil
}

func (u *Updater) State() (UpdateState, error) {
	u.mu.Lock()
	defer u.mu.Unlock()
	return u.readState()
}

// Check compares the installed version to the latest release of the channel.
func (u *Updater) Check(ctx context.Context) (UpdateInfo, error) {
	u.mu.Lock()
	defer u.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return UpdateInfo{}, err
	}
	state, err := u.readState()
	if err != nil {
		return UpdateInfo{}, err
	}
	now := NowFunc().UTC()
	state.LastCheckedAt = &now
	if err = u.writeState(state); err != nil {
		return UpdateInfo{}, err
	}

	info := UpdateInfo{CurrentVersion: u.currentVersion(state), Channel: state.Channel}
	if latest, ok := latestRelease(state.Channel); ok {
		info.Latest = &latest
		info.LatestVersion = latest.Version
		info.UpdateAvailable = isNewer(info.CurrentVersion, latest.Version)
	}
	return info, nil
}

// Releases lists the releases of the channel, newest first.
func (u *Updater) Releases(channel string) ([]Release, error) {
	if !core.ContainsString(Channels, channel) {
		return nil, ErrUnknownChannel
	}
	var out []Release
	for i := len(releaseCatalog) - 1; i >= 0; i-- {
		if releaseCatalog[i].Channel == channel {
			out = append(out, releaseCatalog[i])
		}
	}
	return out, nil
}

func (u *Updater) SetChannel(channel string) (UpdateState, error) {
	channel = core.CleanString(channel, true /* lower */)
	if !core.ContainsString(Channels, channel) {
		return UpdateState{}, core.NewFieldError("channel", ErrUnknownChannel)
	}

	u.mu.Lock()
	defer u.mu.Unlock()

	state, err := u.readState()
	if err != nil {
		return UpdateState{}, err
	}
	state.Channel = channel
	return state, u.writeState(state)
}

// Install records version as installed; it must belong to the current channel and be newer than the installed one.
// An empty version installs the latest release.
func (u *Updater) Install(ctx context.Context, version string) (UpdateState, error) {
	u.mu.Lock()
	defer u.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return UpdateState{}, err
	}
	state, err := u.readState()
	if err != nil {
		return UpdateState{}, err
	}

	version = normalizeVersion(strings.TrimSpace(version))
	if version == "" {
		latest, ok := latestRelease(state.Channel)
		if !ok {
			return UpdateState{}, core.NewFieldError("version", ErrUnknownVersion)
		}
		version = latest.Version
	}
	if _, ok := findRelease(state.Channel, version); !ok {
		return UpdateState{}, core.NewFieldError("version", ErrUnknownVersion)
	}
	if !isNewer(u.currentVersion(state), version) {
		return UpdateState{}, core.NewFieldError("version", ErrAlreadyInstalled)
	}

	now := NowFunc().UTC()
	prev := u.currentVersion(state)
	state.InstalledVersion = version
	state.InstalledAt = &now
	if err = u.writeState(state); err != nil {
		return UpdateState{}, err
	}
	u.logger.Info("update installed", prev+" -> "+version)
	return state, nil
}

func (u *Updater) currentVersion(state UpdateState) string {
	if state.InstalledVersion != "" {
		return state.InstalledVersion
	}
	if v := normalizeVersion(u.build); isVersion(v) {
		return v
	}
	return "0.0.0"
}

func (u *Updater) readState() (UpdateState, error) {
	state := UpdateState{Channel: u.defaultChannel}
	data, err := os.ReadFile(u.stateFile)
	if err != nil {
		if os.IsNotExist(err) {
			return state, nil
		}
		return UpdateState{}, errors.Wrap(err, "reading update state")
	}
	if err = json.Unmarshal(data, &state); err != nil {
		return UpdateState{}, errors.Wrap(err, "parsing update state")
	}
	if !core.ContainsString(Channels, state.Channel) {
		state.Channel = u.defaultChannel
	}
	return state, nil
}

func (u *Updater) writeState(state UpdateState) error {
	data, err := json.MarshalIndent(state, "", "  ")
	if err != nil {
		return errors.Wrap(err, "marshalling update state")
	}
	if err = os.MkdirAll(filepath.Dir(u.stateFile), 0o750); err != nil {
		return errors.Wrap(err, "creating state directory")
	}
	return errors.Wrap(os.WriteFile(u.stateFile, data, 0o640), "writing update state")
}

// latestRelease returns the newest release visible on channel; beta also sees stable releases.
func latestRelease(channel string) (Release, bool) {
	var latest Release
	found := false
	for _, r := range releaseCatalog {
		if !visibleOn(r, channel) {
			continue
		}
		if !found || isNewer(latest.Version, r.Version) {
			latest, found = r, true
		}
	}
	return latest, found
}

func findRelease(channel, version string) (Release, bool) {
	for _, r := range releaseCatalog {
		if r.Version == version && visibleOn(r, channel) {
			return r, true
		}
	}
	return Release{}, false
}

func visibleOn(r Release, channel string) bool {
	return r.Channel == channel || (channel == ChannelBeta && r.Channel == ChannelStable)
}

func normalizeVersion(v string) string {
	return strings.TrimPrefix(v, "v")
}

func isVersion(v string) bool {
	return semver.IsValid("v" + normalizeVersion(v))
}

// isNewer reports whether latest > current. A release outranks its own pre-releases: 1.2.0 > 1.2.0-beta.1.
func isNewer(current, latest string) bool {
	if !isVersion(current) || !isVersion(latest) {
		return false
	}
	return semver.Compare("v"+normalizeVersion(current), "v"+normalizeVersion(latest)) < 0
}
