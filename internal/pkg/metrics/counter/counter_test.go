package counter

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestUnappliedDeltas(t *testing.T) {
	pending := map[string]string{
		"1":          "10000",
		"2":          "-500",
		"3":          "0",
		"4":          "not-a-number",
		"not-an-id":  "100",
		"5":          "250",
	}
	applied := map[string]bool{"1": true}

	remainder := unappliedDeltas(pending, applied)

	assert.Equal(t, map[string]int64{"2": -500, "5": 250}, remainder,
		"already-applied, zero and unparseable entries must not be re-merged")
}

func TestUnappliedDeltasAllApplied(t *testing.T) {
	pending := map[string]string{"1": "100", "2": "200"}
	applied := map[string]bool{"1": true, "2": true}

	assert.Empty(t, unappliedDeltas(pending, applied))
}
