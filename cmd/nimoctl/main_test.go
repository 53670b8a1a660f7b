package main

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/opendragon/nimo/internal/command"
)

func TestParseIPv4(t *testing.T) {
	addr, err := parseIPv4("10.0.0.1")
	require.NoError(t, err)
	require.Equal(t, uint32(0x0a000001), addr)

	_, err = parseIPv4("not-an-ip")
	require.Error(t, err)

	_, err = parseIPv4("::1")
	require.Error(t, err)
}

func TestClassifyMapsFailureKindsToExitCodes(t *testing.T) {
	require.Nil(t, classify(nil))

	err := classify(command.Fail(command.RegistryNotFound, "dial x: refused"))
	require.Equal(t, 2, err.(*exitError).code)

	err = classify(command.Fail(command.Timeout, "waiting"))
	require.Equal(t, 2, err.(*exitError).code)

	err = classify(command.Fail(command.NotFound, "no such node"))
	require.Equal(t, 3, err.(*exitError).code)

	err = classify(errors.New("boom"))
	require.Equal(t, -1, err.(*exitError).code)
}

func TestExitCodeUnwrapsExitError(t *testing.T) {
	require.Equal(t, 0, exitCode(nil))
	require.Equal(t, 3, exitCode(fail(3, errors.New("refused"))))
	require.Equal(t, 1, exitCode(errors.New("usage: missing argument")))
}
