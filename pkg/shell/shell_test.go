package shell

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestQuoteSplit(t *testing.T) {
	args := QuoteSplit(`ffmpeg -i "/dev/video0" -metadata service_name='Cam Cast' -`)
	require.Equal(t, []string{
		"ffmpeg", "-i", "/dev/video0", "-metadata", "service_name=Cam Cast", "-",
	}, args)

	require.Nil(t, QuoteSplit(`bad "quote`))
}

func TestReplaceEnvVars(t *testing.T) {
	t.Setenv("CAMCAST_TEST_HOST", "10.0.0.5")

	s := ReplaceEnvVars("host: ${CAMCAST_TEST_HOST}\nport: ${CAMCAST_TEST_PORT:-9000}\nname: ${CAMCAST_TEST_NAME}")
	require.Equal(t, "host: 10.0.0.5\nport: 9000\nname: ${CAMCAST_TEST_NAME}", s)
}
