package schedule

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEvery(t *testing.T) {
	s := Every(5 * time.Minute)
	now := time.Now()
	next := s.Next(now)

	assert.Equal(t, now.Add(5*time.Minute), next)
}

func TestEvery_MultipleNext(t *testing.T) {
	s := Every(time.Hour)
	start := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)

	next1 := s.Next(start)
	next2 := s.Next(next1)

	assert.Equal(t, time.Date(2024, 1, 1, 13, 0, 0, 0, time.UTC), next1)
	assert.Equal(t, time.Date(2024, 1, 1, 14, 0, 0, 0, time.UTC), next2)
}

func TestCron_Hourly(t *testing.T) {
	s := Cron("0 * * * *")
	from := time.Date(2024, 1, 1, 10, 15, 0, 0, time.UTC)

	assert.Equal(t, time.Date(2024, 1, 1, 11, 0, 0, 0, time.UTC), s.Next(from))
}

func TestCron_Descriptor(t *testing.T) {
	s := Cron("@daily")
	from := time.Date(2024, 1, 1, 10, 15, 0, 0, time.UTC)

	assert.Equal(t, time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC), s.Next(from))
}

func TestCron_InvalidExpression_Panics(t *testing.T) {
	assert.Panics(t, func() {
		Cron("invalid cron")
	})
}

func TestParse_Duration(t *testing.T) {
	s, err := Parse("15m")
	require.NoError(t, err)

	from := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	assert.Equal(t, from.Add(15*time.Minute), s.Next(from))
}

func TestParse_Cron(t *testing.T) {
	s, err := Parse(" 30 2 * * * ")
	require.NoError(t, err)

	from := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	assert.Equal(t, time.Date(2024, 1, 1, 2, 30, 0, 0, time.UTC), s.Next(from))
}

func TestParse_Invalid(t *testing.T) {
	for _, value := range []string{"", "-5m", "0s", "every tuesday"} {
		_, err := Parse(value)
		assert.Error(t, err, value)
	}
}
