// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package protoframe

import (
	"fmt"
	"strconv"
	"strings"
)

// FormatCommand formats a command into a single human-readable line
func FormatCommand(cmd Command) string {
	result := fmt.Sprintf("%s id=%d %s -> %s",
		FormatKind(cmd.Kind()), cmd.ID, FormatRegion(cmd.Source), FormatRegion(cmd.Target))

	if body := FormatPayload(cmd.Payload); body != "" {
		result += " " + body
	}
	return result
}

// FormatKind returns the wire name of a payload kind
func FormatKind(kind PayloadKind) string {
	switch kind {
	case KindAck:
		return "ACK"
	case KindLed:
		return "LED"
	case KindMove:
		return "MOVE"
	case KindSound:
		return "SOUND"
	default:
		return "NONE"
	}
}

// FormatRegion returns the human-readable name for a region
func FormatRegion(r Region) string {
	switch r {
	case RegionUnspecified:
		return "UNSPECIFIED"
	case RegionBody:
		return "BODY"
	case RegionLeg:
		return "LEG"
	case RegionNeck:
		return "NECK"
	case RegionDome:
		return "DOME"
	default:
		return fmt.Sprintf("REGION(%d)", uint32(r))
	}
}

// FormatActuator returns the human-readable name for an actuator
func FormatActuator(a Actuator) string {
	switch a {
	case ActuatorUnspecified:
		return "UNSPECIFIED"
	case ActuatorBodyNeck:
		return "BODY_NECK"
	default:
		return fmt.Sprintf("ACTUATOR(%d)", uint32(a))
	}
}

// FormatPayload formats the fields of a payload variant
func FormatPayload(p Payload) string {
	p, ok := normalizePayload(p)
	if !ok {
		return ""
	}

	switch v := p.(type) {
	case Ack:
		if v.Acknowledged {
			return "acknowledged=true"
		}
		if v.Reason != "" {
			return fmt.Sprintf("acknowledged=false reason=%q", v.Reason)
		}
		return "acknowledged=false"
	case Led:
		return fmt.Sprintf("start=%d end=%d duration=%d", v.Start, v.End, v.Duration)
	case Move:
		return fmt.Sprintf("target=%s x=%d y=%d z=%d", FormatActuator(v.Target), v.X, v.Y, v.Z)
	case Sound:
		return fmt.Sprintf("id=%d play=%t sync_to_leds=%t", v.ID, v.Play, v.SyncToLeds)
	}
	return ""
}

// FormatBytes formats raw bytes as space-separated uppercase hex
func FormatBytes(data []byte) string {
	var sb strings.Builder
	for i, b := range data {
		if i > 0 {
			sb.WriteByte(' ')
		}
		fmt.Fprintf(&sb, "%02X", b)
	}
	return sb.String()
}

// ParseRegion maps a region name (case-insensitive) or number to a Region
func ParseRegion(s string) (Region, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "", "UNSPECIFIED":
		return RegionUnspecified, nil
	case "BODY":
		return RegionBody, nil
	case "LEG":
		return RegionLeg, nil
	case "NECK":
		return RegionNeck, nil
	case "DOME":
		return RegionDome, nil
	}
	n, err := strconv.ParseUint(strings.TrimSpace(s), 10, 32)
	if err != nil {
		return RegionUnspecified, fmt.Errorf("unknown region %q", s)
	}
	return Region(n), nil
}

// ParseActuator maps an actuator name (case-insensitive) or number to an Actuator
func ParseActuator(s string) (Actuator, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "", "UNSPECIFIED":
		return ActuatorUnspecified, nil
	case "BODY_NECK", "BODYNECK":
		return ActuatorBodyNeck, nil
	}
	n, err := strconv.ParseUint(strings.TrimSpace(s), 10, 32)
	if err != nil {
		return ActuatorUnspecified, fmt.Errorf("unknown actuator %q", s)
	}
	return Actuator(n), nil
}
