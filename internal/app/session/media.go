package session

import (
	"context"
	"fmt"

	"github.com/rs/zerolog/log"

	"github.com/connectra/meeting-client/internal/core"
)

// NativePickerSource is the source id a desktop shell reports when the user
// picked the platform's own chooser. It is treated as no source id.
const NativePickerSource = "browser-native"

// ToggleMic flips the microphone's enabled state in place and returns the
// new muted flag.
func (c *Coordinator) ToggleMic() (bool, error) {
	c.opMu.Lock()
	defer c.opMu.Unlock()
	return c.setMicMuted(!c.micMutedLocked())
}

// SetMicMuted forces the muted flag. It is a no-op when already in that state.
func (c *Coordinator) SetMicMuted(muted bool) (bool, error) {
	c.opMu.Lock()
	defer c.opMu.Unlock()
	if c.micMutedLocked() == muted {
		return muted, nil
	}
	return c.setMicMuted(muted)
}

func (c *Coordinator) micMutedLocked() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.micMuted
}

func (c *Coordinator) setMicMuted(muted bool) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.mic == nil {
		log.Warn().Str("module", "app.session").Str("meeting", c.meetingID).Msg("toggle mic: no microphone track")
		return c.micMuted, ErrNoTrack
	}
	if err := c.mic.SetEnabled(!muted); err != nil {
		return c.micMuted, fmt.Errorf("toggle mic: %w", err)
	}
	c.micMuted = muted
	log.Info().Str("module", "app.session").Str("meeting", c.meetingID).Bool("muted", muted).Msg("mic toggled")
	c.changes.Notify()
	return muted, nil
}

// ToggleCam flips the camera's enabled state in place and returns the new
// camera-off flag. Turning a camera on that is not published (and not
// displaced by a screen share) publishes the existing track. During a share
// the camera stays unpublished and is republished when the share stops.
func (c *Coordinator) ToggleCam(ctx context.Context) (bool, error) {
	c.opMu.Lock()
	defer c.opMu.Unlock()

	c.mu.RLock()
	camera, client, off := c.camera, c.client, c.cameraOff
	needPublish := off && !c.sharing && !c.camPublished
	c.mu.RUnlock()

	if camera == nil {
		log.Warn().Str("module", "app.session").Str("meeting", c.meetingID).Msg("toggle cam: no camera track")
		return off, ErrNoTrack
	}
	next := !off
	if err := camera.SetEnabled(!next); err != nil {
		return off, fmt.Errorf("toggle cam: %w", err)
	}
	published := false
	if needPublish && client != nil {
		if err := client.Publish(ctx, camera); err != nil {
			_ = camera.SetEnabled(false)
			return off, fmt.Errorf("publish camera: %w", err)
		}
		published = true
	}

	c.mu.Lock()
	c.cameraOff = next
	if published {
		c.camPublished = true
	}
	if c.sharing {
		// Stopping the share restores the camera as it is at that moment.
		c.cameraWasOn = !next
	}
	c.mu.Unlock()
	log.Info().Str("module", "app.session").Str("meeting", c.meetingID).Bool("off", next).Msg("camera toggled")
	c.changes.Notify()
	return next, nil
}

// StartScreenShare swaps the published camera for a screen capture. The
// camera track is kept so StopScreenShare can republish the same instance.
func (c *Coordinator) StartScreenShare(ctx context.Context, sourceID string) error {
	c.opMu.Lock()
	defer c.opMu.Unlock()

	c.mu.RLock()
	state, sharing := c.state, c.sharing
	client, camera, camPublished := c.client, c.camera, c.camPublished
	wasOn := camPublished && !c.cameraOff
	c.mu.RUnlock()

	if state != Joined {
		return ErrNotJoined
	}
	if sharing {
		return ErrAlreadySharing
	}
	if sourceID == NativePickerSource {
		sourceID = ""
	}

	dctx, cancel := context.WithTimeout(ctx, c.opts.DeviceTimeout)
	defer cancel()
	screen, err := c.engine.CreateScreenTrack(dctx, sourceID)
	if err != nil {
		return fmt.Errorf("create screen track: %w", err)
	}

	if camPublished {
		if err := client.Unpublish(ctx, camera); err != nil {
			closeTrack(screen, "screen")
			return fmt.Errorf("unpublish camera: %w", err)
		}
	}
	if err := client.Publish(ctx, screen); err != nil {
		closeTrack(screen, "screen")
		if camPublished {
			if perr := client.Publish(ctx, camera); perr != nil {
				log.Warn().Err(perr).Str("module", "app.session").Str("meeting", c.meetingID).Msg("republish camera")
				camPublished = false
			}
		}
		c.mu.Lock()
		c.camPublished = camPublished
		c.mu.Unlock()
		return fmt.Errorf("publish screen: %w", err)
	}

	screen.OnEnded(func() { go c.screenEnded(screen) })

	c.mu.Lock()
	c.screen = screen
	c.sharing = true
	c.cameraWasOn = wasOn
	c.camPublished = false
	c.mu.Unlock()
	log.Info().Str("module", "app.session").Str("meeting", c.meetingID).Str("source", sourceID).Bool("camera_was_on", wasOn).Msg("screen share started")
	c.changes.Notify()
	return nil
}

// StopScreenShare releases the screen track and republishes the camera if
// it was active before sharing.
func (c *Coordinator) StopScreenShare(ctx context.Context) error {
	c.opMu.Lock()
	defer c.opMu.Unlock()

	c.mu.RLock()
	sharing := c.sharing
	c.mu.RUnlock()
	if !sharing {
		return ErrNotSharing
	}
	c.stopScreenShare(ctx)
	return nil
}

// screenEnded runs the stop sequence when the platform ended the capture.
func (c *Coordinator) screenEnded(track core.LocalTrack) {
	c.opMu.Lock()
	defer c.opMu.Unlock()

	c.mu.RLock()
	current := c.sharing && c.screen == track
	c.mu.RUnlock()
	if !current {
		return
	}
	log.Info().Str("module", "app.session").Str("meeting", c.meetingID).Msg("screen capture ended externally")
	ctx, cancel := context.WithTimeout(context.Background(), c.opts.DeviceTimeout)
	defer cancel()
	c.stopScreenShare(ctx)
}

func (c *Coordinator) stopScreenShare(ctx context.Context) {
	c.mu.RLock()
	client, screen, camera, wasOn := c.client, c.screen, c.camera, c.cameraWasOn
	c.mu.RUnlock()

	if client != nil {
		if err := client.Unpublish(ctx, screen); err != nil {
			log.Warn().Err(err).Str("module", "app.session").Str("meeting", c.meetingID).Msg("unpublish screen")
		}
	}
	closeTrack(screen, "screen")

	republished := false
	if wasOn && camera != nil && client != nil {
		if err := client.Publish(ctx, camera); err != nil {
			log.Warn().Err(err).Str("module", "app.session").Str("meeting", c.meetingID).Msg("republish camera")
		} else {
			republished = true
		}
	}

	c.mu.Lock()
	c.screen = nil
	c.sharing = false
	c.cameraWasOn = false
	c.camPublished = republished
	c.mu.Unlock()
	log.Info().Str("module", "app.session").Str("meeting", c.meetingID).Bool("camera", republished).Msg("screen share stopped")
	c.changes.Notify()
}
