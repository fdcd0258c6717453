package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseGrade(t *testing.T) {
	cases := []struct {
		raw  string
		want Grade
	}{
		{"I", GradeI},
		{"1", GradeI},
		{"II*", GradeIIStar},
		{"2*", GradeIIStar},
		{"II", GradeII},
		{"2", GradeII},
		{"", GradeII},
		{"III", GradeII},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, ParseGrade(tc.raw), "raw %q", tc.raw)
	}
}

func TestCoordinatesValidate(t *testing.T) {
	valid := []Coordinates{
		{Lat: 51.5390, Lng: -0.1426},
		{Lat: 90, Lng: 180},
		{Lat: -90, Lng: -180},
		{Lat: 0, Lng: 0},
	}
	for _, c := range valid {
		assert.NoError(t, c.Validate(), "%+v", c)
	}

	invalid := []Coordinates{
		{Lat: 90.0001, Lng: 0},
		{Lat: -90.0001, Lng: 0},
		{Lat: 0, Lng: 180.0001},
		{Lat: 0, Lng: -180.0001},
	}
	for _, c := range invalid {
		err := c.Validate()
		require.Error(t, err, "%+v", c)
		assert.ErrorIs(t, err, ErrInvalidCoordinates)
	}
}

func TestWithRequestID_CopiesResult(t *testing.T) {
	orig := &ClassificationResult{
		RequestID: "req-1",
		Status:    StatusAmber,
		ConservationArea: &ConservationAreaMatch{
			Name: "Camden Town",
		},
	}

	fresh := orig.WithRequestID("req-2")
	assert.Equal(t, "req-2", fresh.RequestID)
	assert.Equal(t, "req-1", orig.RequestID, "original must not be mutated")
	assert.Equal(t, StatusAmber, fresh.Status)
	require.NotNil(t, fresh.ConservationArea)
	assert.Equal(t, "Camden Town", fresh.ConservationArea.Name)
}
