package scoring

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestExpected(t *testing.T) {
	assert.InDelta(t, 0.5, Expected(1200, 1200), 1e-9)

	// 400 points of advantage is roughly a 10:1 expectation.
	assert.InDelta(t, 10.0/11.0, Expected(1600, 1200), 1e-9)
	assert.InDelta(t, 1.0/11.0, Expected(1200, 1600), 1e-9)

	// Complementary.
	assert.InDelta(t, 1.0, Expected(1500, 900)+Expected(900, 1500), 1e-9)
}

func TestUpdate(t *testing.T) {
	// Even match: winner gains k/2, loser drops k/2.
	assert.Equal(t, 1216, Update(1200, 1200, 1, DefaultK))
	assert.Equal(t, 1184, Update(1200, 1200, 0, DefaultK))

	// Beating a much stronger opponent pays more than beating an equal one.
	upset := Update(1200, 1800, 1, DefaultK) - 1200
	even := Update(1200, 1200, 1, DefaultK) - 1200
	assert.Greater(t, upset, even)
}

func TestUpdateClamps(t *testing.T) {
	assert.Equal(t, MaxRating, Update(MaxRating, 600, 1, DefaultK))
	assert.Equal(t, MinRating, Update(MinRating, 2400, 0, DefaultK))

	// Repeated losses never escape the floor.
	r := 640
	for i := 0; i < 20; i++ {
		r = Update(r, r, 0, DefaultK)
		assert.GreaterOrEqual(t, r, MinRating)
	}
	assert.Equal(t, MinRating, r)
}
