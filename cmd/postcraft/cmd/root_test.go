package cmd

import (
	"testing"
	"time"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newEnvTestCmd() (*cobra.Command, *string, *int, *time.Duration) {
	var (
		name    string
		count   int
		timeout time.Duration
	)
	cmd := &cobra.Command{Use: "test"}
	cmd.Flags().StringVar(&name, "name", "default", "Name")
	cmd.Flags().IntVar(&count, "count", 1, "Count")
	cmd.Flags().DurationVar(&timeout, "timeout", time.Second, "Timeout")
	envFlag(cmd.Flags(), "name", "POSTCRAFT_TEST_NAME")
	envFlag(cmd.Flags(), "count", "POSTCRAFT_TEST_COUNT")
	envFlag(cmd.Flags(), "timeout", "POSTCRAFT_TEST_TIMEOUT")
	return cmd, &name, &count, &timeout
}

func TestApplyEnv_FillsUnsetFlags(t *testing.T) {
	t.Setenv("POSTCRAFT_TEST_NAME", "from-env")
	t.Setenv("POSTCRAFT_TEST_COUNT", "7")

	cmd, name, count, timeout := newEnvTestCmd()
	require.NoError(t, applyEnv(cmd))

	assert.Equal(t, "from-env", *name)
	assert.Equal(t, 7, *count)
	assert.Equal(t, time.Second, *timeout, "flags without a variable keep their default")
}

func TestApplyEnv_CommandLineWins(t *testing.T) {
	t.Setenv("POSTCRAFT_TEST_NAME", "from-env")

	cmd, name, _, _ := newEnvTestCmd()
	require.NoError(t, cmd.Flags().Set("name", "from-flag"))
	require.NoError(t, applyEnv(cmd))

	assert.Equal(t, "from-flag", *name)
}

func TestApplyEnv_InvalidValue(t *testing.T) {
	t.Setenv("POSTCRAFT_TEST_TIMEOUT", "soon")

	cmd, _, _, _ := newEnvTestCmd()
	err := applyEnv(cmd)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "POSTCRAFT_TEST_TIMEOUT")
}

func TestEnvFlag_AnnotatesUsage(t *testing.T) {
	cmd, _, _, _ := newEnvTestCmd()
	assert.Contains(t, cmd.Flags().Lookup("name").Usage, "[$POSTCRAFT_TEST_NAME]")
	assert.Panics(t, func() { envFlag(cmd.Flags(), "missing", "X") })
}

func TestServerFlagsHaveEnv(t *testing.T) {
	for _, name := range []string{"port", "storage", "csrf-secret", "redis-url", "cors-origins", "trusted-proxies"} {
		f := serverCmd.Flags().Lookup(name)
		require.NotNil(t, f, name)
		assert.NotEmpty(t, f.Annotations[envAnnotation], name)
	}
}
