// Package tracks assigns captions to non-overlapping visual lanes for the
// timeline editor.
package tracks

import (
	"sort"

	"github.com/hpungsan/steno/internal/captions"
)

// DefaultEpsilon is the overlap tolerance in seconds. Adjacent phrases whose
// boundaries jitter by up to this amount still share a lane.
const DefaultEpsilon = 0.05

// Assignment maps caption id to lane index (0-based).
type Assignment map[string]int

// LaneCount returns the number of lanes used.
func (a Assignment) LaneCount() int {
	n := 0
	for _, lane := range a {
		if lane+1 > n {
			n = lane + 1
		}
	}
	return n
}

// Assign places every caption in the first lane whose last end time is at
// most caption.Start + epsilon, opening a new lane when none qualifies.
// Captions are visited by start time. Start ties keep document order, except
// that captions sharing an identical span are grouped at the position of the
// first of them and ordered by id. The result depends only on the inputs.
func Assign(list []captions.Caption, epsilon float64) Assignment {
	out := make(Assignment, len(list))
	if len(list) == 0 {
		return out
	}
	if epsilon < 0 {
		epsilon = 0
	}

	// group maps each caption to the document index of the first caption
	// with the same span.
	firstOfSpan := make(map[[2]float64]int, len(list))
	group := make([]int, len(list))
	order := make([]int, len(list))
	for i := range list {
		order[i] = i
		span := [2]float64{list[i].Start, list[i].End}
		if _, ok := firstOfSpan[span]; !ok {
			firstOfSpan[span] = i
		}
		group[i] = firstOfSpan[span]
	}
	sort.SliceStable(order, func(a, b int) bool {
		ia, ib := order[a], order[b]
		ca, cb := &list[ia], &list[ib]
		if ca.Start != cb.Start {
			return ca.Start < cb.Start
		}
		if group[ia] != group[ib] {
			return group[ia] < group[ib]
		}
		return ca.ID < cb.ID
	})

	var laneEnds []float64
	for _, idx := range order {
		c := &list[idx]
		lane := -1
		for i, end := range laneEnds {
			if end <= c.Start+epsilon {
				lane = i
				break
			}
		}
		if lane < 0 {
			lane = len(laneEnds)
			laneEnds = append(laneEnds, c.End)
		} else {
			laneEnds[lane] = c.End
		}
		out[c.ID] = lane
	}
	return out
}

// Layout is the lane view of a document.
type Layout struct {
	Lanes     Assignment `json:"lanes"`
	LaneCount int        `json:"laneCount"`
	// Rows lists caption ids per lane in start order.
	Rows [][]string `json:"rows"`
}

// LayoutDocument recomputes the full lane layout of doc.
func LayoutDocument(doc *captions.Document, epsilon float64) Layout {
	lanes := Assign(doc.Captions, epsilon)
	count := lanes.LaneCount()
	rows := make([][]string, count)

	byStart := make([]int, len(doc.Captions))
	for i := range byStart {
		byStart[i] = i
	}
	sort.SliceStable(byStart, func(a, b int) bool {
		return doc.Captions[byStart[a]].Start < doc.Captions[byStart[b]].Start
	})
	for _, i := range byStart {
		id := doc.Captions[i].ID
		rows[lanes[id]] = append(rows[lanes[id]], id)
	}
	return Layout{Lanes: lanes, LaneCount: count, Rows: rows}
}
