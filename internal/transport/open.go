// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package transport provides protoframe.Stream implementations over serial
// ports and WebSocket bridges.
package transport

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/Thermoquad/protoframe/internal/config"
	"github.com/Thermoquad/protoframe/pkg/protoframe"
	"golang.org/x/term"
)

// PasswordEnv is checked before prompting for a WebSocket password
const PasswordEnv = "PROTOFRAME_PASSWORD"

// ErrNoConnection is returned when neither a port nor a URL is configured
var ErrNoConnection = errors.New("either --port or --url must be specified")

// Conn is an open transport
type Conn interface {
	protoframe.Stream
	io.Closer
}

// Open opens a WebSocket connection when cfg.URL is set, otherwise the
// serial port. The returned string describes the connection for display.
func Open(ctx context.Context, cfg *config.Config) (Conn, string, error) {
	if cfg.URL != "" {
		password := ""
		if cfg.Username != "" {
			var err error
			password, err = GetPassword()
			if err != nil {
				return nil, "", err
			}
		}

		conn, err := DialWebSocket(ctx, cfg.URL, cfg.Username, password, cfg.NoSSLVerify)
		if err != nil {
			return nil, "", err
		}
		return conn, fmt.Sprintf("WebSocket: %s", cfg.URL), nil
	}

	if cfg.Port != "" {
		conn, err := OpenSerial(cfg.Port, cfg.Baud)
		if err != nil {
			return nil, "", err
		}
		return conn, fmt.Sprintf("Serial: %s @ %d baud", cfg.Port, cfg.Baud), nil
	}

	return nil, "", ErrNoConnection
}

// GetPassword retrieves the password from the environment or prompts for it
func GetPassword() (string, error) {
	if pw := os.Getenv(PasswordEnv); pw != "" {
		return pw, nil
	}

	fmt.Fprint(os.Stderr, "Password: ")

	passwordBytes, err := term.ReadPassword(int(os.Stdin.Fd()))
	if err != nil {
		// Not a terminal, read a plain line instead
		reader := bufio.NewReader(os.Stdin)
		password, err := reader.ReadString('\n')
		if err != nil {
			return "", fmt.Errorf("failed to read password: %w", err)
		}
		fmt.Fprintln(os.Stderr)
		return strings.TrimSpace(password), nil
	}

	fmt.Fprintln(os.Stderr)
	return string(passwordBytes), nil
}
