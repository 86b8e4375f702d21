package topology

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/zzenonn/zplace/internal/domain"
)

const sampleDocument = `
version: 12
domains:
  - type: node
    id: 0
    targets:
      - {id: 0}
      - {id: 1, status: down, fseq: 10}
  - type: node
    id: 1
    status: upin
    targets:
      - {id: 2, status: up, fseq: 1, in_ver: 14}
      - {id: 3, status: drain, fseq: 11}
`

func TestParse(t *testing.T) {
	m, err := Parse([]byte(sampleDocument))
	require.NoError(t, err)
	require.Equal(t, uint32(12), m.Version())
	require.Equal(t, 4, m.TargetCount())
	require.Len(t, m.FindDomains(domain.CompNode), 2)

	tg, err := m.FindTarget(1)
	require.NoError(t, err)
	require.Equal(t, domain.StatusDown, tg.Status)
	require.Equal(t, uint32(10), tg.Fseq)

	tg, err = m.FindTarget(2)
	require.NoError(t, err)
	require.Equal(t, uint32(14), tg.InVersion)
	require.True(t, tg.IsNewlyAdded())
}

func TestParse_Errors(t *testing.T) {
	tests := []struct {
		name string
		doc  string
	}{
		{name: "malformed yaml", doc: "version: [1"},
		{name: "bad type", doc: "domains:\n  - type: shelf\n    targets: [{id: 1}]\n"},
		{name: "bad status", doc: "domains:\n  - type: node\n    targets: [{id: 1, status: sleepy}]\n"},
		{name: "no domains", doc: "version: 1\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.doc))
			require.Error(t, err)
		})
	}
}

func TestEncode_RoundTripsStructure(t *testing.T) {
	m, err := Parse([]byte(sampleDocument))
	require.NoError(t, err)

	data, err := Encode(m)
	require.NoError(t, err)

	again, err := Parse(data)
	require.NoError(t, err)
	require.Equal(t, m.Version(), again.Version())
	require.Equal(t, m.Targets(), again.Targets())
	require.Equal(t, m.Domains(), again.Domains())
}
