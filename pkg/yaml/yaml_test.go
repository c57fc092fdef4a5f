package yaml

import (
	"testing"

	"github.com/stretchr/testify/require"
)

const src = `log:
  level: info

session:
  camera: "0"
  output: file
  filename: out.ts
`

func TestPatchReplace(t *testing.T) {
	dst, err := Patch([]byte(src), "camera", "1", "session")
	require.NoError(t, err)
	require.Equal(t, `log:
  level: info

session:
  camera: "1"
  output: file
  filename: out.ts
`, string(dst))
}

func TestPatchAdd(t *testing.T) {
	dst, err := Patch([]byte(src), "host", "10.0.0.5", "session")
	require.NoError(t, err)

	var cfg struct {
		Session map[string]string `yaml:"session"`
	}
	require.NoError(t, Unmarshal(dst, &cfg))
	require.Equal(t, "10.0.0.5", cfg.Session["host"])
	require.Equal(t, "out.ts", cfg.Session["filename"])
}

func TestPatchNewSection(t *testing.T) {
	dst, err := Patch([]byte(src), "port", 9000, "srt")
	require.NoError(t, err)

	var cfg struct {
		SRT map[string]int `yaml:"srt"`
	}
	require.NoError(t, Unmarshal(dst, &cfg))
	require.Equal(t, 9000, cfg.SRT["port"])
}

func TestPatchRemove(t *testing.T) {
	dst, err := Patch([]byte(src), "filename", nil, "session")
	require.NoError(t, err)

	var cfg struct {
		Session map[string]string `yaml:"session"`
	}
	require.NoError(t, Unmarshal(dst, &cfg))
	require.NotContains(t, cfg.Session, "filename")
	require.Equal(t, "file", cfg.Session["output"])
}
