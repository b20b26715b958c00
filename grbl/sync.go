package grbl

import (
	"context"
	"fmt"
)

// ReadSettings switches to PhaseSetup and reads every setting from the device.
func (d *Driver) ReadSettings(ctx context.Context) (Settings, error) {
	d.runMu.Lock()
	defer d.runMu.Unlock()

	d.SetPhase(PhaseSetup)

	return d.readSettingsLocked(ctx)
}

// SyncSettings switches to PhaseSetup and makes the device settings match desired, or the configured
// desired settings if desired is nil. It returns the number of settings
// written, which is zero when the device already matched.
//
// The protocol has no batch write, so every desired key is written with
// its own run before the settings are read back and compared again.
func (d *Driver) SyncSettings(ctx context.Context, desired Settings) (int, error) {
	if desired == nil {
		desired = d.cfg.desired
	}

	d.runMu.Lock()
	defer d.runMu.Unlock()

	d.SetPhase(PhaseSetup)
	d.logger.Info("grbl: syncing settings", "count", len(desired))

	current, err := d.readSettingsLocked(ctx)
	if err != nil {
		return 0, fmt.Errorf("%w: read settings: %w", ErrSettingsSync, err)
	}

	if current.Matches(desired) {
		d.logger.Info("grbl: settings already up to date")
		return 0, nil
	}

	d.logger.Info("grbl: settings out of date, updating", "keys", current.Diff(desired))

	written := 0
	for _, key := range desired.Keys() {
		d.stage(key, desired[key])

		if err := d.runWith(ctx, IntentSendSetting); err != nil {
			d.clearStaged()
			return written, fmt.Errorf("%w: write $%d: %w", ErrSettingsSync, key, err)
		}
		written++
	}

	current, err = d.readSettingsLocked(ctx)
	if err != nil {
		return written, fmt.Errorf("%w: read back settings: %w", ErrSettingsSync, err)
	}

	if diff := current.Diff(desired); len(diff) > 0 {
		d.logger.Error("grbl: settings still out of date", "keys", diff)
		return written, fmt.Errorf("%w: keys %v", ErrSettingsMismatch, diff)
	}

	d.logger.Info("grbl: settings now up to date", "written", written)

	return written, nil
}

func (d *Driver) readSettingsLocked(ctx context.Context) (Settings, error) {
	d.settings.Clear()

	if err := d.runWith(ctx, IntentGetSettings); err != nil {
		return nil, err
	}

	return d.Settings(), nil
}

func (d *Driver) clearStaged() {
	d.stateMu.Lock()
	defer d.stateMu.Unlock()

	d.staged = nil
	d.pending.Remove(IntentSendSetting)
}
