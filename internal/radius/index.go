package radius

import (
	"github.com/dhconnelly/rtreego"

	"github.com/sells-group/radius-cli/internal/model"
)

// pointExtent is the edge length of the degenerate rectangle a code centroid
// occupies in the R-tree. rtreego rejects zero-extent rectangles.
const pointExtent = 1e-9

// codeItem is one universe entry stored in the R-tree.
type codeItem struct {
	rect   rtreego.Rect
	record model.CodeRecord
}

// Bounds implements rtreego.Spatial.
func (c *codeItem) Bounds() rtreego.Rect { return c.rect }

// RTreeIndex is the indexed prefilter: candidate retrieval is sub-linear in
// the universe size. Same superset contract as LinearScan; the intersect
// query over-fetches along the box edge, so results are re-checked against
// the exact open-rectangle predicate to keep the two prefilters equivalent.
type RTreeIndex struct {
	tree *rtreego.Rtree
}

// NewRTreeIndex builds an R-tree over the universe. Build cost is paid once
// per run and amortized across all facilities.
func NewRTreeIndex(codes []model.CodeRecord) *RTreeIndex {
	items := make([]rtreego.Spatial, 0, len(codes))
	for _, c := range codes {
		rect, err := rtreego.NewRect(
			rtreego.Point{c.Longitude, c.Latitude},
			[]float64{pointExtent, pointExtent},
		)
		if err != nil {
			continue
		}
		items = append(items, &codeItem{rect: rect, record: c})
	}
	return &RTreeIndex{tree: rtreego.NewTree(2, 25, 50, items...)}
}

// Candidates implements Prefilter. A box that crosses the antimeridian is
// queried a second time shifted by 360 degrees, since the tree stores
// longitudes on the [-180, 180] plane; the exact predicate handles the wrap
// and a seen set drops any double-counted record.
func (idx *RTreeIndex) Candidates(facility model.Facility, m Margins) []model.CodeRecord {
	west := facility.Longitude - m.Lon
	east := facility.Longitude + m.Lon

	origins := []float64{west}
	if west < -180 {
		origins = append(origins, west+360)
	}
	if east > 180 {
		origins = append(origins, west-360)
	}

	var out []model.CodeRecord
	seen := make(map[string]struct{})
	for _, origin := range origins {
		rect, err := rtreego.NewRect(
			rtreego.Point{origin, facility.Latitude - m.Lat},
			[]float64{east - west, 2 * m.Lat},
		)
		if err != nil {
			continue
		}
		for _, item := range idx.tree.SearchIntersect(rect) {
			c := item.(*codeItem).record
			if _, dup := seen[c.Code]; dup {
				continue
			}
			if inBox(c, facility, m) {
				seen[c.Code] = struct{}{}
				out = append(out, c)
			}
		}
	}
	return out
}
