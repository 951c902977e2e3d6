// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/Thermoquad/protoframe/pkg/protoframe"
)

const commandUsage = `led <target> <start> <end> <duration>
move <target> <actuator> <x> <y> <z>
sound <target> <id> [play] [sync_to_leds]`

// parseCommand builds a command from words such as "led dome 1 2 10". The id
// and source are stamped by e.
func parseCommand(e *protoframe.Engine, words []string) (protoframe.Command, error) {
	if len(words) < 2 {
		return protoframe.Command{}, fmt.Errorf("expected a kind and a target, usage:\n%s", commandUsage)
	}

	kind, ok := protoframe.ParsePayloadKind(strings.ToLower(words[0]))
	if !ok || kind == protoframe.KindAck {
		return protoframe.Command{}, fmt.Errorf("unknown command %q, usage:\n%s", words[0], commandUsage)
	}

	target, err := protoframe.ParseRegion(words[1])
	if err != nil {
		return protoframe.Command{}, err
	}
	args := words[2:]

	switch kind {
	case protoframe.KindLed:
		v, err := parseUints(args, 3, "led <target> <start> <end> <duration>")
		if err != nil {
			return protoframe.Command{}, err
		}
		return e.NewLedCommand(target, v[0], v[1], v[2]), nil

	case protoframe.KindMove:
		if len(args) != 4 {
			return protoframe.Command{}, fmt.Errorf("usage: move <target> <actuator> <x> <y> <z>")
		}
		actuator, err := protoframe.ParseActuator(args[0])
		if err != nil {
			return protoframe.Command{}, err
		}
		v, err := parseUints(args[1:], 3, "move <target> <actuator> <x> <y> <z>")
		if err != nil {
			return protoframe.Command{}, err
		}
		return e.NewMoveCommand(target, actuator, v[0], v[1], v[2]), nil

	default:
		if len(args) < 1 || len(args) > 3 {
			return protoframe.Command{}, fmt.Errorf("usage: sound <target> <id> [play] [sync_to_leds]")
		}
		id, err := strconv.ParseUint(args[0], 10, 32)
		if err != nil {
			return protoframe.Command{}, fmt.Errorf("sound id: %w", err)
		}
		play, sync := true, false
		if len(args) > 1 {
			if play, err = strconv.ParseBool(args[1]); err != nil {
				return protoframe.Command{}, fmt.Errorf("play: %w", err)
			}
		}
		if len(args) > 2 {
			if sync, err = strconv.ParseBool(args[2]); err != nil {
				return protoframe.Command{}, fmt.Errorf("sync_to_leds: %w", err)
			}
		}
		return e.NewSoundCommand(target, uint32(id), play, sync), nil
	}
}

func parseUints(args []string, n int, usage string) ([]uint32, error) {
	if len(args) != n {
		return nil, fmt.Errorf("usage: %s", usage)
	}
	out := make([]uint32, n)
	for i, a := range args {
		v, err := strconv.ParseUint(a, 10, 32)
		if err != nil {
			return nil, fmt.Errorf("argument %d (%q): %w", i+1, a, err)
		}
		out[i] = uint32(v)
	}
	return out, nil
}
