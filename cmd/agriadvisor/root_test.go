package main

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sweetpotato0/agri-advisor/advisory"
	agerrors "github.com/sweetpotato0/agri-advisor/errors"
)

func TestRootCommands(t *testing.T) {
	root := newRootCmd()
	var names []string
	for _, c := range root.Commands() {
		names = append(names, c.Name())
	}
	assert.Subset(t, names, []string{"serve", "mcp", "advise"})
	assert.NotNil(t, root.PersistentFlags().Lookup("config"))
}

func TestAdviseRequest(t *testing.T) {
	cmd := newAdviseCmd(&rootOptions{})
	require.NoError(t, cmd.ParseFlags([]string{"--lat", "18.5", "--lon", "73.8"}))
	opts := &adviseOptions{lat: 18.5, lon: 73.8}

	req, err := opts.request(cmd, "aphids on mustard")
	require.NoError(t, err)
	require.NotNil(t, req.Location)
	assert.Equal(t, 73.8, req.Location.Longitude)
	assert.Nil(t, req.Input)
}

func TestAdviseRequestStructured(t *testing.T) {
	cmd := newAdviseCmd(&rootOptions{})
	opts := &adviseOptions{soilType: "clay", crop: "Rice", action: "flooded the field", place: "Cuttack"}

	req, err := opts.request(cmd, "")
	require.NoError(t, err)
	require.NotNil(t, req.Input)
	assert.Nil(t, req.Location)

	opts.soilType = "volcanic"
	_, err = opts.request(cmd, "")
	assert.ErrorIs(t, err, agerrors.ErrInvalidInput)

	_, err = (&adviseOptions{}).request(cmd, "")
	assert.Error(t, err)
}

func TestPrintResponse(t *testing.T) {
	cmd := newAdviseCmd(&rootOptions{})
	var out bytes.Buffer
	cmd.SetOut(&out)

	resp := advisory.Response{
		AdviceText: "ROOT CAUSE\nAphid pressure.",
		Advice:     advisory.AgriAdvice{Source: "simulated"},
		Validation: advisory.Valid("AI validation unavailable"),
	}
	require.NoError(t, printResponse(cmd, resp, false))
	assert.Contains(t, out.String(), "Aphid pressure.")
	assert.Contains(t, out.String(), "note: AI validation unavailable")
	assert.Contains(t, out.String(), "source: simulated")

	resp.Validation = advisory.Invalid("Please describe your farming problem.")
	assert.ErrorContains(t, printResponse(cmd, resp, false), "query rejected")
}
