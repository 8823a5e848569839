package cli

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/zclconf/go-cty/cty"

	"github.com/arloliu/eelsfit/format"
)

func TestParse_Defaults(t *testing.T) {
	cfg, exit, err := Parse([]string{"-plan", "p.hcl", "-out", "m.eelsm", "si.eels"}, &bytes.Buffer{})
	require.NoError(t, err)
	require.False(t, exit)
	require.Equal(t, "si.eels", cfg.SignalPath)
	require.Equal(t, "p.hcl", cfg.PlanPath)
	require.Equal(t, "si.eels", cfg.Name)
	require.Equal(t, format.CompressionZstd, cfg.Compression)
	require.Equal(t, "text", cfg.LogFormat)
	require.Equal(t, "info", cfg.LogLevel)
	require.Zero(t, cfg.Workers)
}

func TestParse_Variables(t *testing.T) {
	cfg, _, err := Parse([]string{
		"-plan", "p.hcl", "-out", "m", "-var", "onset=931.5", "-var", "element=Cu", "si",
	}, &bytes.Buffer{})
	require.NoError(t, err)
	require.True(t, cfg.Variables["onset"].RawEquals(cty.NumberFloatVal(931.5)))
	require.True(t, cfg.Variables["element"].RawEquals(cty.StringVal("Cu")))

	_, _, err = Parse([]string{"-var", "novalue", "si"}, &bytes.Buffer{})
	var exitErr *ExitError
	require.ErrorAs(t, err, &exitErr)
	require.Equal(t, 2, exitErr.Code)
}

func TestParse_Help(t *testing.T) {
	out := &bytes.Buffer{}
	cfg, exit, err := Parse([]string{"-h"}, out)
	require.NoError(t, err)
	require.True(t, exit)
	require.Nil(t, cfg)
	require.Contains(t, out.String(), "Usage:")
}

func TestParse_Validation(t *testing.T) {
	cases := map[string][]string{
		"log format":   {"-plan", "p", "-out", "m", "-log-format", "xml", "si"},
		"log level":    {"-plan", "p", "-out", "m", "-log-level", "loud", "si"},
		"compression":  {"-plan", "p", "-out", "m", "-compression", "brotli", "si"},
		"no signal":    {"-plan", "p", "-out", "m"},
		"no plan":      {"-out", "m", "si"},
		"no output":    {"-plan", "p", "si"},
		"list no db":   {"-list"},
		"neg workers":  {"-plan", "p", "-out", "m", "-workers", "-1", "si"},
		"unknown flag": {"-frobnicate"},
	}
	for name, args := range cases {
		t.Run(name, func(t *testing.T) {
			_, _, err := Parse(args, &bytes.Buffer{})
			var exitErr *ExitError
			require.ErrorAs(t, err, &exitErr)
			require.Equal(t, 2, exitErr.Code)
		})
	}
}

func TestParse_List(t *testing.T) {
	cfg, exit, err := Parse([]string{"-catalogue", "c.db", "-list", "-name", "flat"}, &bytes.Buffer{})
	require.NoError(t, err)
	require.False(t, exit)
	require.True(t, cfg.List)
	require.Equal(t, "flat", cfg.Name)
}
