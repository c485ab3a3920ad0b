package discovery

import (
	"sort"
	"testing"

	"github.com/stretchr/testify/require"

	gossipwire "github.com/lightningnetwork/gossipd/wire"
)

func scidAt(block uint32, txIdx uint32) gossipwire.ShortChannelID {
	return gossipwire.ShortChannelID{BlockHeight: block, TxIndex: txIdx, TxPosition: 0}
}

// scramble spreads index into a wide, non-sequential txIndex so the
// generated scid set does not collapse under zlib. It still compresses
// (to roughly 5.6 bytes per scid with one scid per block, 3.5 bytes per
// scid within a single block), so the fixture counts below are sized from
// the compressed length, not from 8 bytes per scid.
func scramble(i int) uint32 {
	return uint32(i)*2654435761 + 0x9e3779b9
}

func sortedUint64s(scids []gossipwire.ShortChannelID) []uint64 {
	out := make([]uint64, len(scids))
	for i, s := range scids {
		out[i] = s.ToUint64()
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

func TestChunkRangeSingleChunkWhenSmall(t *testing.T) {
	var chainHash gossipwire.ChainHash
	scids := []gossipwire.ShortChannelID{scidAt(10, 0), scidAt(11, 1), scidAt(19, 2)}

	got := chunkRange(chainHash, 10, 10, scids)
	require.Len(t, got, 1)
	require.Equal(t, uint32(10), got[0].FirstBlockHeight)
	require.Equal(t, uint32(10), got[0].NumBlocks)
	require.EqualValues(t, 1, got[0].Complete)
	require.Equal(t, scids, got[0].ShortChanIDs)
}

func TestChunkRangeEmptyRangeProducesNoChunks(t *testing.T) {
	var chainHash gossipwire.ChainHash
	got := chunkRange(chainHash, 10, 0, nil)
	require.Nil(t, got)
}

func TestChunkRangeSplitsOversizedRangeIntoFittingCoveringChunks(t *testing.T) {
	var chainHash gossipwire.ChainHash

	const first = 1000
	const num = 16000
	scids := make([]gossipwire.ShortChannelID, 0, num)
	for i := 0; i < num; i++ {
		block := uint32(first + i)
		scids = append(scids, scidAt(block, scramble(i)&0xffffff))
	}

	got := chunkRange(chainHash, first, num, scids)
	require.Greater(t, len(got), 1, "expected the oversized range to be split into multiple chunks")

	var (
		coveredScids []gossipwire.ShortChannelID
		prevEnd      uint64
	)
	for i, chunk := range got {
		require.Equal(t, chainHash, chunk.ChainHash)
		require.EqualValues(t, 1, chunk.Complete)

		encoded, err := gossipwire.EncodeShortChanIDs(chunk.ShortChanIDs)
		require.NoError(t, err)
		require.LessOrEqual(t, len(encoded), maxScidListBytes)

		start := uint64(chunk.FirstBlockHeight)
		end := start + uint64(chunk.NumBlocks)
		if i == 0 {
			require.Equal(t, uint64(first), start)
		} else {
			require.Equal(t, prevEnd, start, "chunks must partition the range contiguously")
		}
		prevEnd = end

		coveredScids = append(coveredScids, chunk.ShortChanIDs...)
	}
	require.Equal(t, uint64(first+num), prevEnd, "chunks must cover the entire requested range")
	require.Equal(t, sortedUint64s(scids), sortedUint64s(coveredScids))
}

func TestChunkRangeDropsPathologicalSingleBlockOverflow(t *testing.T) {
	var chainHash gossipwire.ChainHash

	const block = 555
	const n = 24000
	scids := make([]gossipwire.ShortChannelID, 0, n)
	for i := 0; i < n; i++ {
		scids = append(scids, scidAt(block, scramble(i)&0xffffff))
	}

	encoded, err := gossipwire.EncodeShortChanIDs(scids)
	require.NoError(t, err)
	require.Greater(t, len(encoded), maxScidListBytes, "test fixture must actually overflow a single reply_channel_range")

	got := chunkRange(chainHash, block, 1, scids)
	require.Nil(t, got, "a single block that alone overflows the max payload should be dropped, not looped on")
}
