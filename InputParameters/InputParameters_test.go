package InputParameters

import (
	"bytes"
	"testing"

	"github.com/notargets/gotpfa/tpfa"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/spatial/r3"
)

func TestParse(t *testing.T) {
	ip := Defaults()
	require.NoError(t, ip.Validate())
	input := []byte(`
Title: "Layered box"
NumProcs: 3
DistanceRule: euclidean
Projection: directional
IsolatedRows: fixed
Workers: 4
VerifyGhosts: true
`)
	require.NoError(t, ip.Parse(input))
	assert.Equal(t, "Layered box", ip.Title)
	assert.Equal(t, 3, ip.NumProcs)
	assert.Equal(t, 1, ip.GhostDepth) // Kept from Defaults
	assert.True(t, ip.VerifyGhosts)
	assert.False(t, ip.VerifyRowMap)
	require.NoError(t, ip.Validate())

	as, err := ip.Assembler()
	require.NoError(t, err)
	assert.Equal(t, 4, as.Workers)
	assert.Equal(t, tpfa.FixedRow, as.IsolatedRows)
	c1, c2 := r3.Vec{}, r3.Vec{X: 3, Y: 4}
	assert.Equal(t, 5., as.Distance(c1, c2))

	var buf bytes.Buffer
	ip.Print(&buf)
	assert.Contains(t, buf.String(), "\"Layered box\"")
	assert.Contains(t, buf.String(), "[euclidean]")
}

func TestValidate(t *testing.T) {
	for _, mod := range []func(ip *InputParametersTPFA){
		func(ip *InputParametersTPFA) { ip.NumProcs = 0 },
		func(ip *InputParametersTPFA) { ip.GhostDepth = 2 },
		func(ip *InputParametersTPFA) { ip.BridgeDim = 1 },
		func(ip *InputParametersTPFA) { ip.NNZPerRowHint = -1 },
		func(ip *InputParametersTPFA) { ip.Workers = 0 },
		func(ip *InputParametersTPFA) { ip.DistanceRule = "manhattan" },
		func(ip *InputParametersTPFA) { ip.Projection = "trace" },
		func(ip *InputParametersTPFA) { ip.IsolatedRows = "drop" },
	} {
		ip := Defaults()
		mod(ip)
		assert.Error(t, ip.Validate())
	}
	ip := Defaults()
	assert.Error(t, ip.Parse([]byte("NumProcs: [1")))
}
