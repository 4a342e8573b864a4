package store

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestValidateName(t *testing.T) {
	cases := []struct {
		name string
		ok   bool
	}{
		{"valid_name-1", true},
		{"UPPER", true},
		{"", false},
		{"has space", false},
		{"semi;colon", false},
		{"'; DROP TABLE datasets; --", false},
		{string(make([]byte, 64)), false}, // too long (and all NUL, also invalid chars)
	}

	for _, c := range cases {
		err := validateName(c.name)
		if c.ok {
			assert.NoError(t, err, c.name)
		} else {
			assert.ErrorIs(t, err, ErrInvalidName, c.name)
		}
	}
}

func TestPlayersAndNetworkTableNames(t *testing.T) {
	assert.Equal(t, `"nacm2025_players"`, playersTable("nacm2025"))
	assert.Equal(t, `"nacm2025_network"`, networkTable("nacm2025"))
}
