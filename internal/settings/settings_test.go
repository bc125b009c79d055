package settings

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const blob = `project=cswiki END
error_001_prio_cswiki=3 END
error_001_whitelistpage_cswiki=Wikipedie:Check Wikipedia/001 whitelist END
error_002_prio_cswiki=1 END
error_002_prio_enwiki=2 END
error_008_prio_cswiki=2 END
error_009_head_cswiki=Multiple categories on one line END
error_009_desc_cswiki=Categories should be
listed one per line.
END
error_010_prio_cswiki=7 END
error_x_prio_cswiki=1 END
error_017_prio_zh_yuewiki=1 END
`

func TestParse(t *testing.T) {
	s, diags := Parse(blob, "cswiki")

	assert.Equal(t, PriorityLow, s.Priority(1))
	assert.Equal(t, PriorityHigh, s.Priority(2))
	assert.Equal(t, PriorityMedium, s.Priority(8))
	assert.Equal(t, PriorityNone, s.Priority(9))
	assert.Equal(t, []string{"Wikipedie:Check Wikipedia/001 whitelist"}, s.Whitelist(1))
	assert.Empty(t, s.Whitelist(2))

	assert.Equal(t, []int{2}, s.IDs(PriorityHigh))
	assert.Equal(t, []int{8}, s.IDs(PriorityMedium))

	require.Len(t, diags, 2)
	var le *LineError
	require.True(t, errors.As(diags[0], &le))
	assert.Equal(t, 11, le.Line)
	assert.Equal(t, "error_010_prio_cswiki", le.Key)
	assert.ErrorIs(t, diags[1], ErrMalformedKey)
}

func TestParse_OtherProject(t *testing.T) {
	s, _ := Parse(blob, "enwiki")
	assert.Equal(t, PriorityMedium, s.Priority(2))
	assert.Equal(t, PriorityNone, s.Priority(1))
}

func TestParse_UnderscoreProject(t *testing.T) {
	s, _ := Parse(blob, "zh_yuewiki")
	assert.Equal(t, PriorityHigh, s.Priority(17))
}

func TestParse_MissingEnd(t *testing.T) {
	s, diags := Parse("error_004_prio_cswiki=2\nerror_005_prio_cswiki=1 END\n", "cswiki")
	assert.Empty(t, diags)
	assert.Equal(t, PriorityMedium, s.Priority(4))
	assert.Equal(t, PriorityHigh, s.Priority(5))
}

func TestParsePriority(t *testing.T) {
	tests := []struct {
		in   string
		want Priority
	}{
		{"0", PriorityNone},
		{"1", PriorityHigh},
		{"2", PriorityMedium},
		{"3", PriorityLow},
		{"High", PriorityHigh},
		{" low ", PriorityLow},
	}
	for _, tt := range tests {
		got, err := ParsePriority(tt.in)
		require.NoError(t, err, tt.in)
		assert.Equal(t, tt.want, got, tt.in)
		assert.Equal(t, got.String(), tt.want.String())
	}
	_, err := ParsePriority("4")
	assert.Error(t, err)
}
