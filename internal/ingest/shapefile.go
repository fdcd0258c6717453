package ingest

import (
	"strings"

	"github.com/jonas-p/go-shp"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"
)

// ReadAreaShapefile reads a borough conservation-area shapefile extract
// and returns load-ready records. Attribute names vary between borough
// GIS exports, so lookup is case-insensitive with a few known aliases.
func ReadAreaShapefile(path, borough string) ([]AreaRecord, error) {
	reader, err := shp.Open(path)
	if err != nil {
		return nil, eris.Wrapf(err, "ingest: open shapefile %s", path)
	}
	defer func() { _ = reader.Close() }()

	fields := reader.Fields()
	fieldIdx := make(map[string]int, len(fields))
	for i, f := range fields {
		name := strings.TrimRight(f.String(), "\x00")
		fieldIdx[strings.ToLower(name)] = i
	}

	attr := func(names ...string) func() string {
		for _, n := range names {
			if idx, ok := fieldIdx[n]; ok {
				return func() string {
					return strings.TrimSpace(strings.TrimRight(reader.Attribute(idx), "\x00"))
				}
			}
		}
		return func() string { return "" }
	}

	nameAttr := attr("name", "ca_name", "title")
	refAttr := attr("reference", "ref", "ca_ref", "number")
	art4Attr := attr("article_4", "article4", "art4")
	restrAttr := attr("article_4_restrictions", "art4_restr", "restrictions")

	var records []AreaRecord
	var skipped int

	for reader.Next() {
		_, shape := reader.Shape()

		boundary, err := ShapeBoundaryEWKB(shape)
		if err != nil || boundary == nil {
			skipped++
			continue
		}

		name := nameAttr()
		ref := refAttr()
		if name == "" {
			skipped++
			continue
		}
		if ref == "" {
			ref = name
		}

		art4 := strings.EqualFold(art4Attr(), "true") || art4Attr() == "1" ||
			strings.EqualFold(art4Attr(), "yes")

		records = append(records, AreaRecord{
			Name:                 name,
			Borough:              borough,
			Reference:            ref,
			HasArticle4:          art4,
			Article4Restrictions: parseRestrictions(restrAttr()),
			BoundaryEWKB:         boundary,
		})
	}

	if skipped > 0 {
		zap.L().Named("ingest.areas").Debug("skipped shapefile records",
			zap.String("path", path),
			zap.Int("skipped", skipped))
	}
	return records, nil
}
