package store

import (
	"math/big"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestMedianOddCount(t *testing.T) {
	prices := []*big.Rat{big.NewRat(3, 1), big.NewRat(1, 1), big.NewRat(2, 1)}
	assert.Equal(t, big.NewRat(2, 1), Median(prices))
}

func TestMedianEvenCountIsExactAverage(t *testing.T) {
	prices := []*big.Rat{big.NewRat(1, 1), big.NewRat(2, 1), big.NewRat(3, 1), big.NewRat(4, 1)}
	// (2+3)/2 = 2.5
	assert.Equal(t, 0, Median(prices).Cmp(big.NewRat(5, 2)))
}

func TestMedianIsPermutationInvariant(t *testing.T) {
	a := []*big.Rat{big.NewRat(5, 1), big.NewRat(1, 1), big.NewRat(3, 1), big.NewRat(2, 1)}
	b := []*big.Rat{big.NewRat(2, 1), big.NewRat(3, 1), big.NewRat(1, 1), big.NewRat(5, 1)}
	assert.Equal(t, 0, Median(a).Cmp(Median(b)))
}

func TestAlignToIntervalFifteenMinutes(t *testing.T) {
	ts := time.Date(2021, 1, 1, 0, 22, 30, 0, time.UTC)
	got := AlignToInterval(ts, 15*time.Minute)
	want := time.Date(2021, 1, 1, 0, 15, 0, 0, time.UTC)
	assert.True(t, got.Equal(want))
	assert.True(t, !got.After(ts))
}

func TestAlignToIntervalNeverExceedsInput(t *testing.T) {
	for _, minutes := range []int{1, 15, 60, 120} {
		ts := time.Date(2024, 3, 5, 13, 47, 59, 0, time.UTC)
		aligned := AlignToInterval(ts, time.Duration(minutes)*time.Minute)
		assert.False(t, aligned.After(ts))
		totalMinutes := aligned.Hour()*60 + aligned.Minute()
		assert.Equal(t, 0, totalMinutes%minutes)
		assert.Equal(t, 0, aligned.Second())
	}
}

func TestNewEntryIsPerpetual(t *testing.T) {
	e := NewEntry{}
	assert.True(t, e.IsPerpetual())

	epochZero := time.Unix(0, 0)
	e2 := NewEntry{ExpirationTimestamp: &epochZero}
	assert.True(t, e2.IsPerpetual())

	future := time.Now().Add(24 * time.Hour)
	e3 := NewEntry{ExpirationTimestamp: &future}
	assert.False(t, e3.IsPerpetual())
}
