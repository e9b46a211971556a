package task

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidate_AcceptsCompleteTask(t *testing.T) {
	t.Parallel()

	tk := Task{ID: "1", Title: "Todo 1", Deadline: time.Now()}
	assert.NoError(t, tk.Validate())
}

func TestValidate_RejectsMissingID(t *testing.T) {
	t.Parallel()

	err := Task{Deadline: time.Now()}.Validate()
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrMalformed)
	assert.Contains(t, err.Error(), "missing id")
}

func TestValidate_RejectsZeroDeadline(t *testing.T) {
	t.Parallel()

	err := Task{ID: "abc"}.Validate()
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrMalformed)
	assert.Contains(t, err.Error(), "abc")
}

func TestUntil_NegativeWhenOverdue(t *testing.T) {
	t.Parallel()

	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	tk := Task{ID: "1", Deadline: now.Add(-time.Hour)}
	assert.Equal(t, -time.Hour, tk.Until(now))
}

func TestLabel_FallsBackToID(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "Buy milk", Task{ID: "1", Title: "Buy milk"}.Label())
	assert.Equal(t, "1", Task{ID: "1"}.Label())
}

func TestIDs_PreservesOrder(t *testing.T) {
	t.Parallel()

	tasks := []Task{{ID: "b"}, {ID: "a"}, {ID: "c"}}
	assert.Equal(t, []string{"b", "a", "c"}, IDs(tasks))
}

func TestFormatRemaining(t *testing.T) {
	t.Parallel()

	cases := map[time.Duration]string{
		-time.Minute:                  "due now",
		0:                             "due now",
		20 * time.Second:              "<1m",
		45 * time.Minute:              "45m",
		2 * time.Hour:                 "2h",
		2*time.Hour + 15*time.Minute:  "2h15m",
		24 * time.Hour:                "1d",
		26*time.Hour + 10*time.Minute: "1d2h",
	}
	for d, want := range cases {
		assert.Equal(t, want, FormatRemaining(d), "duration %s", d)
	}
}
