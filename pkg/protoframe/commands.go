// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package protoframe

// Command constructors stamp the id with the engine's current timestamp and
// the source with the engine's region. They only populate a Command; pass the
// result to Send.

// NewLedCommand creates a Led command for target.
func (e *Engine) NewLedCommand(target Region, start, end, duration uint32) Command {
	return Command{
		ID:      e.SafeTimestamp(),
		Source:  e.cfg.Region,
		Target:  target,
		Payload: Led{Start: start, End: end, Duration: duration},
	}
}

// NewSoundCommand creates a Sound command for target.
func (e *Engine) NewSoundCommand(target Region, soundID uint32, play, syncToLeds bool) Command {
	return Command{
		ID:      e.SafeTimestamp(),
		Source:  e.cfg.Region,
		Target:  target,
		Payload: Sound{ID: soundID, Play: play, SyncToLeds: syncToLeds},
	}
}

// NewMoveCommand creates a Move command driving actuator on target.
func (e *Engine) NewMoveCommand(target Region, actuator Actuator, x, y, z uint32) Command {
	return Command{
		ID:      e.SafeTimestamp(),
		Source:  e.cfg.Region,
		Target:  target,
		Payload: Move{Target: actuator, X: x, Y: y, Z: z},
	}
}
