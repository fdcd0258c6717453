package ingest

import (
	"context"
	"encoding/json"
	"fmt"
	"testing"

	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/twpayne/go-geom"
	"github.com/twpayne/go-geom/encoding/ewkb"
)

const squareGeoJSON = `{
	"type": "Polygon",
	"coordinates": [[[-0.15, 51.53], [-0.13, 51.53], [-0.13, 51.55], [-0.15, 51.55], [-0.15, 51.53]]]
}`

func areaFeatureFixture(name, borough, ref string, art4 bool, restrictions string) areaFeature {
	var f areaFeature
	f.Properties.Name = name
	f.Properties.Borough = borough
	f.Properties.Reference = ref
	f.Properties.Article4 = art4
	f.Properties.Restrictions = restrictions
	f.Geometry = json.RawMessage(squareGeoJSON)
	return f
}

func TestGeoJSONBoundaryEWKB_PolygonPromotion(t *testing.T) {
	data, err := GeoJSONBoundaryEWKB(json.RawMessage(squareGeoJSON))
	require.NoError(t, err)
	require.NotEmpty(t, data)

	g, err := ewkb.Unmarshal(data)
	require.NoError(t, err)

	mp, ok := g.(*geom.MultiPolygon)
	require.True(t, ok, "expected MultiPolygon, got %T", g)
	assert.Equal(t, 4326, mp.SRID())
	assert.Equal(t, 1, mp.NumPolygons())
}

func TestGeoJSONBoundaryEWKB_MultiPolygonPassthrough(t *testing.T) {
	mpJSON := `{
		"type": "MultiPolygon",
		"coordinates": [[[[-0.15, 51.53], [-0.13, 51.53], [-0.13, 51.55], [-0.15, 51.53]]]]
	}`
	data, err := GeoJSONBoundaryEWKB(json.RawMessage(mpJSON))
	require.NoError(t, err)
	assert.NotEmpty(t, data)
}

func TestGeoJSONBoundaryEWKB_RejectsPoint(t *testing.T) {
	_, err := GeoJSONBoundaryEWKB(pointGeometry(-0.14, 51.54))
	assert.Error(t, err)
}

func TestGeoJSONPoint(t *testing.T) {
	lng, lat, err := GeoJSONPoint(pointGeometry(-0.1426, 51.5390))
	require.NoError(t, err)
	assert.InDelta(t, -0.1426, lng, 1e-9)
	assert.InDelta(t, 51.5390, lat, 1e-9)

	_, _, err = GeoJSONPoint(json.RawMessage(squareGeoJSON))
	assert.Error(t, err)
}

func TestParseRestrictions(t *testing.T) {
	assert.Nil(t, parseRestrictions(""))
	assert.Nil(t, parseRestrictions("   "))
	assert.Equal(t, []string{"basement excavation"}, parseRestrictions("basement excavation"))
	assert.Equal(t,
		[]string{"basement excavation", "roof extensions"},
		parseRestrictions("basement excavation; roof extensions;"))
}

func TestTransformAreas(t *testing.T) {
	coll := AreaCollection{Features: []areaFeature{
		areaFeatureFixture("Camden Town", "Camden", "CA01", true, "basement excavation; roof extensions"),
		areaFeatureFixture("", "Camden", "CA02", false, ""),            // no name
		areaFeatureFixture("Hackney Wick", "Hackney", "CA03", false, ""), // wrong borough
	}}

	records := TransformAreas(coll, nwLondonFilter())
	require.Len(t, records, 1)

	rec := records[0]
	assert.Equal(t, "Camden Town", rec.Name)
	assert.Equal(t, "CA01", rec.Reference)
	assert.True(t, rec.HasArticle4)
	assert.Equal(t, []string{"basement excavation", "roof extensions"}, rec.Article4Restrictions)
	assert.NotEmpty(t, rec.BoundaryEWKB)
}

func TestAreaLoader_Load(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	boundary, err := GeoJSONBoundaryEWKB(json.RawMessage(squareGeoJSON))
	require.NoError(t, err)

	records := []AreaRecord{{
		Name:                 "Camden Town",
		Borough:              "Camden",
		Reference:            "CA01",
		HasArticle4:          true,
		Article4Restrictions: []string{"basement excavation"},
		BoundaryEWKB:         boundary,
	}}

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO conservation_areas").
		WithArgs("Camden Town", "Camden", "CA01", true, []string{"basement excavation"}, boundary).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectCommit()

	loader := NewAreaLoader(mock, 100)
	n, err := loader.Load(context.Background(), records)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAreaLoader_NilRestrictionsStoredAsEmptyArray(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	boundary, err := GeoJSONBoundaryEWKB(json.RawMessage(squareGeoJSON))
	require.NoError(t, err)

	records := []AreaRecord{{
		Name: "Primrose Hill", Borough: "Camden", Reference: "CA02",
		BoundaryEWKB: boundary,
	}}

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO conservation_areas").
		WithArgs("Primrose Hill", "Camden", "CA02", false, []string{}, boundary).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectCommit()

	loader := NewAreaLoader(mock, 100)
	_, err = loader.Load(context.Background(), records)
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAreaLoader_UpsertError(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	records := []AreaRecord{{Name: "X", Borough: "Camden", Reference: "CA09"}}

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO conservation_areas").
		WillReturnError(fmt.Errorf("invalid geometry"))
	mock.ExpectRollback()

	loader := NewAreaLoader(mock, 100)
	n, err := loader.Load(context.Background(), records)
	assert.Error(t, err)
	assert.Equal(t, 0, n)
}
