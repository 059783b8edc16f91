package models

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseFilter(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		ids  []int
	}{
		{name: "single", raw: "Excavator", ids: []int{2}},
		{name: "case insensitive", raw: "EXCAVATOR,CaR", ids: []int{2, 3}},
		{name: "encoded space", raw: "Blast%20rig", ids: []int{0}},
		{name: "plus as space", raw: "dumper+truck", ids: []int{1}},
		{name: "padded tokens", raw: " Excavator , car ", ids: []int{2, 3}},
		{name: "encoded padding", raw: "%20Excavator%20", ids: []int{2}},
		{name: "duplicates kept in order", raw: "car,Excavator,car", ids: []int{3, 2, 3}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f, err := MiningClasses.ParseFilter(tt.raw)
			require.NoError(t, err)
			assert.Equal(t, tt.ids, f.IDs())
			for _, id := range tt.ids {
				assert.True(t, f.Contains(id))
			}
		})
	}
}

func TestParseFilter_AllOrNothing(t *testing.T) {
	f, err := MiningClasses.ParseFilter("Excavator,bogus,car,tractor")
	require.Error(t, err)
	assert.Zero(t, f.Len())
	assert.True(t, errors.Is(err, ErrInvalidClassName))

	var invalid *InvalidClassNameError
	require.True(t, errors.As(err, &invalid))
	assert.Equal(t, []string{"bogus", "tractor"}, invalid.Bad)
	assert.Equal(t, []string{"Blast rig", "Dumper truck", "Excavator", "car"}, invalid.Choices)
	assert.Equal(t,
		"Invalid class(es): bogus, tractor. Choices: Blast rig, Dumper truck, Excavator, car",
		err.Error())
}

func TestParseFilter_Rejects(t *testing.T) {
	for _, raw := range []string{"bogus", "", "Excavator,", "%zz", "Blast"} {
		t.Run(raw, func(t *testing.T) {
			_, err := MiningClasses.ParseFilter(raw)
			assert.ErrorIs(t, err, ErrInvalidClassName)
		})
	}
}

func TestFilter_Empty(t *testing.T) {
	f := NewFilter()
	for id := 0; id < MiningClasses.Len(); id++ {
		assert.False(t, f.Contains(id))
	}
}
