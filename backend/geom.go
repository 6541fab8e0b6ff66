package backend

import (
	"math"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/planar"
)

// Planar geometry predicates for the generic feature store. These cover the
// predicate set the neutral dialect exposes (intersects, contains, within,
// disjoint, equals); the DE-9IM relate family is left to the SQL backends.

const geomEpsilon = 1e-9

type segment [2]orb.Point

// geomIntersects reports whether two geometries share at least one point.
func geomIntersects(a, b orb.Geometry) bool {
	if a == nil || b == nil {
		return false
	}
	if !a.Bound().Intersects(b.Bound()) {
		return false
	}

	if pa, ok := a.(orb.Point); ok {
		return pointIntersects(pa, b)
	}
	if pb, ok := b.(orb.Point); ok {
		return pointIntersects(pb, a)
	}

	sa, sb := segments(a), segments(b)
	for _, s1 := range sa {
		for _, s2 := range sb {
			if segmentsCross(s1, s2) {
				return true
			}
		}
	}

	// No boundary crossing: one geometry may lie entirely inside the other.
	if v, ok := firstVertex(a); ok && containsPoint(b, v) {
		return true
	}
	if v, ok := firstVertex(b); ok && containsPoint(a, v) {
		return true
	}
	return false
}

// geomWithin reports whether a lies within b: every vertex of a is inside b
// and the boundaries do not cross.
func geomWithin(a, b orb.Geometry) bool {
	if a == nil || b == nil {
		return false
	}
	if pa, ok := a.(orb.Point); ok {
		return containsPoint(b, pa)
	}

	for _, v := range vertices(a) {
		if !containsPoint(b, v) {
			return false
		}
	}
	for _, s1 := range segments(a) {
		for _, s2 := range segments(b) {
			if segmentsCrossStrict(s1, s2) {
				return false
			}
		}
	}
	return len(vertices(a)) > 0
}

func pointIntersects(p orb.Point, g orb.Geometry) bool {
	if containsPoint(g, p) {
		return true
	}
	for _, s := range segments(g) {
		if pointSegmentDistance(p, s) < geomEpsilon {
			return true
		}
	}
	if q, ok := g.(orb.Point); ok {
		return planar.Distance(p, q) < geomEpsilon
	}
	if mp, ok := g.(orb.MultiPoint); ok {
		for _, q := range mp {
			if planar.Distance(p, q) < geomEpsilon {
				return true
			}
		}
	}
	return false
}

// containsPoint reports whether p is in the interior of g. Only areal
// geometries have an interior in this sense.
func containsPoint(g orb.Geometry, p orb.Point) bool {
	switch geo := g.(type) {
	case orb.Polygon:
		return planar.PolygonContains(geo, p)
	case orb.MultiPolygon:
		return planar.MultiPolygonContains(geo, p)
	case orb.Collection:
		for _, sub := range geo {
			if containsPoint(sub, p) {
				return true
			}
		}
	}
	return false
}

func vertices(g orb.Geometry) []orb.Point {
	switch geo := g.(type) {
	case orb.Point:
		return []orb.Point{geo}
	case orb.MultiPoint:
		return geo
	case orb.LineString:
		return geo
	case orb.MultiLineString:
		var pts []orb.Point
		for _, ls := range geo {
			pts = append(pts, ls...)
		}
		return pts
	case orb.Ring:
		return geo
	case orb.Polygon:
		var pts []orb.Point
		for _, r := range geo {
			pts = append(pts, r...)
		}
		return pts
	case orb.MultiPolygon:
		var pts []orb.Point
		for _, poly := range geo {
			pts = append(pts, vertices(poly)...)
		}
		return pts
	case orb.Collection:
		var pts []orb.Point
		for _, sub := range geo {
			pts = append(pts, vertices(sub)...)
		}
		return pts
	default:
		return nil
	}
}

func firstVertex(g orb.Geometry) (orb.Point, bool) {
	pts := vertices(g)
	if len(pts) == 0 {
		return orb.Point{}, false
	}
	return pts[0], true
}

func segments(g orb.Geometry) []segment {
	switch geo := g.(type) {
	case orb.LineString:
		return lineSegments(geo)
	case orb.MultiLineString:
		var segs []segment
		for _, ls := range geo {
			segs = append(segs, lineSegments(orb.LineString(ls))...)
		}
		return segs
	case orb.Ring:
		return lineSegments(orb.LineString(geo))
	case orb.Polygon:
		var segs []segment
		for _, r := range geo {
			segs = append(segs, lineSegments(orb.LineString(r))...)
		}
		return segs
	case orb.MultiPolygon:
		var segs []segment
		for _, poly := range geo {
			segs = append(segs, segments(poly)...)
		}
		return segs
	case orb.Collection:
		var segs []segment
		for _, sub := range geo {
			segs = append(segs, segments(sub)...)
		}
		return segs
	default:
		return nil
	}
}

func lineSegments(ls orb.LineString) []segment {
	if len(ls) < 2 {
		return nil
	}
	segs := make([]segment, 0, len(ls)-1)
	for i := 1; i < len(ls); i++ {
		segs = append(segs, segment{ls[i-1], ls[i]})
	}
	return segs
}

// segmentsCross reports whether two segments share a point, endpoints
// included.
func segmentsCross(s1, s2 segment) bool {
	d1 := orient(s2[0], s2[1], s1[0])
	d2 := orient(s2[0], s2[1], s1[1])
	d3 := orient(s1[0], s1[1], s2[0])
	d4 := orient(s1[0], s1[1], s2[1])

	if ((d1 > 0 && d2 < 0) || (d1 < 0 && d2 > 0)) &&
		((d3 > 0 && d4 < 0) || (d3 < 0 && d4 > 0)) {
		return true
	}

	return onSegment(s2, s1[0]) || onSegment(s2, s1[1]) ||
		onSegment(s1, s2[0]) || onSegment(s1, s2[1])
}

// segmentsCrossStrict ignores shared endpoints, so touching boundaries do
// not count as a crossing.
func segmentsCrossStrict(s1, s2 segment) bool {
	d1 := orient(s2[0], s2[1], s1[0])
	d2 := orient(s2[0], s2[1], s1[1])
	d3 := orient(s1[0], s1[1], s2[0])
	d4 := orient(s1[0], s1[1], s2[1])

	return ((d1 > 0 && d2 < 0) || (d1 < 0 && d2 > 0)) &&
		((d3 > 0 && d4 < 0) || (d3 < 0 && d4 > 0))
}

func orient(a, b, c orb.Point) float64 {
	v := (b[0]-a[0])*(c[1]-a[1]) - (b[1]-a[1])*(c[0]-a[0])
	if math.Abs(v) < geomEpsilon {
		return 0
	}
	return v
}

func onSegment(s segment, p orb.Point) bool {
	if orient(s[0], s[1], p) != 0 {
		return false
	}
	return p[0] >= math.Min(s[0][0], s[1][0])-geomEpsilon &&
		p[0] <= math.Max(s[0][0], s[1][0])+geomEpsilon &&
		p[1] >= math.Min(s[0][1], s[1][1])-geomEpsilon &&
		p[1] <= math.Max(s[0][1], s[1][1])+geomEpsilon
}

func pointSegmentDistance(p orb.Point, s segment) float64 {
	dx := s[1][0] - s[0][0]
	dy := s[1][1] - s[0][1]

	lenSq := dx*dx + dy*dy
	if lenSq < geomEpsilon {
		return planar.Distance(p, s[0])
	}

	t := ((p[0]-s[0][0])*dx + (p[1]-s[0][1])*dy) / lenSq
	t = math.Max(0, math.Min(1, t))

	return planar.Distance(p, orb.Point{s[0][0] + t*dx, s[0][1] + t*dy})
}
