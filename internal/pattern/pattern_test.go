package pattern

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/atlasengine/atlas-go/internal/conf"
	"github.com/atlasengine/atlas-go/internal/model"
)

func date(day int) time.Time {
	return time.Date(2024, 1, day, 0, 0, 0, 0, time.UTC)
}

// spikeDataset builds 50 baseline locations plus `spikes` locations whose
// creation velocity clears the mean + 2*std threshold.
func spikeDataset(spikes int) []model.LocationRecord {
	locations := make([]model.LocationRecord, 0, 50+spikes)
	for i := 0; i < 50; i++ {
		locations = append(locations, model.LocationRecord{
			Location:         fmt.Sprintf("BASE%02d", i),
			CreationVelocity: 1,
			MotionVelocity:   5,
		})
	}
	for i := 0; i < spikes; i++ {
		locations = append(locations, model.LocationRecord{
			Location:         fmt.Sprintf("SPIKE%02d", i),
			CreationVelocity: 100,
			MotionVelocity:   5,
		})
	}
	return locations
}

func TestTemporalSpikesThresholdGate(t *testing.T) {
	t.Parallel()

	observedAt := date(15)

	t.Run("below minimum occurrences yields nothing", func(t *testing.T) {
		t.Parallel()
		miner := NewMiner(&conf.PatternSettings{Enabled: true, MinOccurrences: 7})
		signatures, _ := miner.Mine(spikeDataset(6), nil, observedAt)
		assert.Empty(t, signatures)
	})

	t.Run("qualifying spike set yields one signature", func(t *testing.T) {
		t.Parallel()
		miner := NewMiner(&conf.PatternSettings{Enabled: true, MinOccurrences: 5})
		signatures, _ := miner.Mine(spikeDataset(6), nil, observedAt)
		require.Len(t, signatures, 1)

		sig := signatures[0]
		assert.Equal(t, "SIGNATURE_TEMPORAL_SPIKE", sig.ID)
		assert.Equal(t, model.SignatureTemporalSpike, sig.Type)
		assert.Equal(t, 6, sig.OccurrenceCount)
		assert.Len(t, sig.LocationsInvolved, 6)
		assert.InDelta(t, 0.12, sig.Confidence, 1e-9)
		require.NotNil(t, sig.Magnitude)
		assert.InDelta(t, 100.0, sig.Magnitude.Max, 1e-9)
	})
}

func TestGhostFarms(t *testing.T) {
	t.Parallel()

	locations := make([]model.LocationRecord, 0, 15)
	for i := 0; i < 10; i++ {
		locations = append(locations, model.LocationRecord{
			Location:         fmt.Sprintf("BASE%02d", i),
			CreationVelocity: 1,
			MotionVelocity:   5,
		})
	}
	for i := 0; i < 5; i++ {
		locations = append(locations, model.LocationRecord{
			Location:         fmt.Sprintf("FARM%02d", i),
			CreationVelocity: 10,
			MotionVelocity:   0.01,
		})
	}

	miner := NewMiner(&conf.PatternSettings{Enabled: true, MinOccurrences: 5})
	signatures, _ := miner.Mine(locations, nil, date(15))
	require.Len(t, signatures, 1)

	sig := signatures[0]
	assert.Equal(t, "SIGNATURE_GHOST_FARM", sig.ID)
	assert.Equal(t, model.SignatureGhostFarmPattern, sig.Type)
	assert.Equal(t, 5, sig.OccurrenceCount)
	assert.InDelta(t, 5.0/30.0, sig.Confidence, 1e-9)
	assert.NotEmpty(t, sig.Hash)
}

func TestCoordinatedUpdates(t *testing.T) {
	t.Parallel()

	// Three quiet dates with two active locations each, one burst date with
	// twelve.
	var daily []model.RawRecord
	for day := 1; day <= 3; day++ {
		for i := 0; i < 2; i++ {
			daily = append(daily, model.RawRecord{
				Date:     date(day),
				Location: fmt.Sprintf("Q%d_%d", day, i),
			})
		}
	}
	for i := 0; i < 12; i++ {
		daily = append(daily, model.RawRecord{
			Date:     date(10),
			Location: fmt.Sprintf("BURST%02d", i),
		})
	}

	miner := NewMiner(&conf.PatternSettings{Enabled: true, MinOccurrences: 5})
	signatures := miner.coordinatedUpdates(daily)
	require.Len(t, signatures, 1)

	sig := signatures[0]
	assert.Equal(t, "SIGNATURE_COORDINATED_20240110", sig.ID)
	assert.Equal(t, model.SignatureCoordinatedUpdate, sig.Type)
	assert.Equal(t, 1, sig.OccurrenceCount)
	assert.Equal(t, "2024-01-10", sig.PatternDate)
	assert.Len(t, sig.LocationsInvolved, 12)
	assert.InDelta(t, 12.0/50.0, sig.Confidence, 1e-9)
}

func TestTrackOccurrencesSortedAndDeduplicated(t *testing.T) {
	t.Parallel()

	daily := []model.RawRecord{
		{Date: date(5), Location: "A"},
		{Date: date(1), Location: "A"},
		{Date: date(5), Location: "B"}, // duplicate date through second location
		{Date: date(3), Location: "B"},
	}
	signatures := []model.Signature{{
		ID:                "SIG_TEST",
		LocationsInvolved: []string{model.LocationID("A"), model.LocationID("B")},
	}}

	occurrences := trackOccurrences(signatures, daily)
	require.Contains(t, occurrences, "SIG_TEST")

	dates := occurrences["SIG_TEST"]
	require.Len(t, dates, 3)
	assert.Equal(t, []time.Time{date(1), date(3), date(5)}, dates)
}

func TestMineDisabled(t *testing.T) {
	t.Parallel()

	miner := NewMiner(&conf.PatternSettings{Enabled: false})
	signatures, occurrences := miner.Mine(spikeDataset(6), nil, date(1))
	assert.Nil(t, signatures)
	assert.Nil(t, occurrences)
}

func TestInvolvedIDsCap(t *testing.T) {
	t.Parallel()

	locations := make([]model.LocationRecord, 30)
	for i := range locations {
		locations[i].Location = fmt.Sprintf("L%02d", i)
	}
	assert.Len(t, involvedIDs(locations), maxInvolvedLocations)
}
