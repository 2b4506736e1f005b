package types

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestChannelIDString(t *testing.T) {
	assert.Equal(t, "ch/0", ChannelID(0).String())
	assert.Equal(t, "ch/42", ChannelID(42).String())
}

func TestRankValid(t *testing.T) {
	tests := []struct {
		name      string
		rank      Rank
		groupSize int
		want      bool
	}{
		{"first", 0, 3, true},
		{"last", 2, 3, true},
		{"out of range", 3, 3, false},
		{"invalid", InvalidRank, 3, false},
		{"single worker", 0, 1, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.rank.Valid(tt.groupSize))
		})
	}
}

func TestBandwidthStatAdd(t *testing.T) {
	a := BandwidthStat{BytesSent: 10, BytesRecv: 20, BlocksSent: 1, BlocksRecv: 2}
	b := BandwidthStat{BytesSent: 5, BytesRecv: 5, BlocksSent: 1, BlocksRecv: 1}

	sum := a.Add(b)
	assert.Equal(t, uint64(15), sum.BytesSent)
	assert.Equal(t, uint64(25), sum.BytesRecv)
	assert.Equal(t, uint64(2), sum.BlocksSent)
	assert.Equal(t, uint64(3), sum.BlocksRecv)
	assert.Equal(t, uint64(40), sum.TotalBytes())
}
