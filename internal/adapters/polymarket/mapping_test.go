package polymarket

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStringList_AcceptsEncodedAndPlainArrays(t *testing.T) {
	var gm gammaMarket
	err := json.Unmarshal([]byte(`{
		"outcomes": "[\"Yes\",\"No\"]",
		"clobTokenIds": ["1", "2"],
		"outcomePrices": null
	}`), &gm)

	require.NoError(t, err)
	assert.Equal(t, stringList{"Yes", "No"}, gm.Outcomes)
	assert.Equal(t, stringList{"1", "2"}, gm.ClobTokenIDs)
	assert.Nil(t, gm.OutcomePrices)
}

func TestStringList_RejectsGarbage(t *testing.T) {
	var l stringList
	assert.Error(t, json.Unmarshal([]byte(`"not a list"`), &l))
}

func TestParentEvent_FallsBackToCondition(t *testing.T) {
	id, label := parentEvent(gammaMarket{ConditionID: "0xabc", Question: "Q?"})
	assert.Equal(t, "0xabc", id)
	assert.Equal(t, "Q?", label)

	id, label = parentEvent(gammaMarket{ConditionID: "0xabc", Events: []gammaEvent{{Slug: "ev"}}})
	assert.Equal(t, "ev", id)
	assert.Equal(t, "ev", label)
}

func TestVolumeOf_PrefersVolumeNum(t *testing.T) {
	assert.InDelta(t, 10.0, volumeOf(gammaMarket{VolumeNum: "10", Volume: "20"}), 1e-12)
	assert.InDelta(t, 20.0, volumeOf(gammaMarket{Volume: "20"}), 1e-12)
	assert.Zero(t, volumeOf(gammaMarket{}))
}

func TestParseEndDate_Layouts(t *testing.T) {
	for _, raw := range []string{"2026-03-18T00:00:00Z", "2026-03-18T00:00:00.000Z", "2026-03-18"} {
		got := parseEndDate(gammaMarket{EndDate: raw})
		assert.Equal(t, 2026, got.Year(), raw)
		assert.Equal(t, 18, got.Day(), raw)
	}
	assert.True(t, parseEndDate(gammaMarket{EndDate: "soon"}).IsZero())
	assert.False(t, parseEndDate(gammaMarket{EndDateISO: "2026-03-18"}).IsZero())
}

func TestMapBookEntries_SortsAndDropsInvalid(t *testing.T) {
	raw := []bookEntryRaw{{"0.5", "1"}, {"0.3", "2"}, {"bad", "1"}, {"0.4", "0"}}

	asks := mapBookEntries(raw, true)
	require.Len(t, asks, 2)
	assert.InDelta(t, 0.3, asks[0].Price, 1e-12)

	bids := mapBookEntries(raw, false)
	require.Len(t, bids, 2)
	assert.InDelta(t, 0.5, bids[0].Price, 1e-12)
}
