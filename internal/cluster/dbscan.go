// Package cluster discovers frequently-visited places by running DBSCAN
// over accumulated GPS history and labeling each cluster with a time
// pattern, category and display name.
package cluster

import (
	"fmt"
	"math"
	"sort"

	"github.com/danielpatrickdp/context-core/internal/geo"
)

// Point labels during the scan.
const (
	labelUnclassified = -1
	labelNoise        = -2
)

// #region dbscan

// DBSCAN clusters GPS points by density.
type DBSCAN struct {
	config Config
}

// New creates a DBSCAN runner with the given parameters.
func New(config Config) *DBSCAN {
	return &DBSCAN{config: config}
}

// Cluster labels the points and returns one Result per cluster with at
// least MinSamples members. The input is not modified.
func (d *DBSCAN) Cluster(points []geo.GeoPoint) []Result {
	var results []Result

	if len(points) < d.config.MinSamples {
		return results
	}

	labels := make([]int, len(points))
	for i := range labels {
		labels[i] = labelUnclassified
	}

	clusterID := 0
	for i := range points {
		if labels[i] != labelUnclassified {
			continue
		}

		neighbors := d.neighbors(points, i)
		if len(neighbors) < d.config.MinSamples {
			labels[i] = labelNoise
			continue
		}

		d.expand(points, i, neighbors, labels, clusterID)
		clusterID++
	}

	for cid := 0; cid < clusterID; cid++ {
		var indices []int
		for i := range points {
			if labels[i] == cid {
				indices = append(indices, i)
			}
		}
		if len(indices) >= d.config.MinSamples {
			results = append(results, d.buildResult(points, indices, cid))
		}
	}

	return results
}

// neighbors returns the indices within epsilon of points[idx], excluding
// idx itself.
func (d *DBSCAN) neighbors(points []geo.GeoPoint, idx int) []int {
	var out []int
	p := points[idx]
	for i := range points {
		if i == idx {
			continue
		}
		dist := geo.HaversineDistance(p.Latitude, p.Longitude, points[i].Latitude, points[i].Longitude)
		if dist <= d.config.EpsilonMeters {
			out = append(out, i)
		}
	}
	return out
}

// expand grows a cluster from a core point. Noise points reached here
// become border points; points already holding a cluster label are not
// re-enqueued.
func (d *DBSCAN) expand(points []geo.GeoPoint, idx int, neighbors []int, labels []int, clusterID int) {
	labels[idx] = clusterID

	queue := append([]int(nil), neighbors...)
	queued := make(map[int]bool, len(queue))
	for _, n := range queue {
		queued[n] = true
	}

	for qi := 0; qi < len(queue); qi++ {
		current := queue[qi]

		if labels[current] == labelNoise {
			labels[current] = clusterID // noise → border point
		}
		if labels[current] != labelUnclassified {
			continue
		}

		labels[current] = clusterID

		currentNeighbors := d.neighbors(points, current)
		if len(currentNeighbors) < d.config.MinSamples {
			continue
		}
		for _, n := range currentNeighbors {
			if (labels[n] == labelUnclassified || labels[n] == labelNoise) && !queued[n] {
				queue = append(queue, n)
				queued[n] = true
			}
		}
	}
}

// #endregion dbscan

// #region cluster-result

// buildResult derives the cluster geometry, stay time, time pattern,
// category and confidence for one labeled cluster.
func (d *DBSCAN) buildResult(points []geo.GeoPoint, indices []int, clusterID int) Result {
	members := make([]geo.GeoPoint, 0, len(indices))
	for _, idx := range indices {
		members = append(members, points[idx])
	}

	var result Result
	result.ID = fmt.Sprintf("cluster_%d", clusterID)
	result.CenterLat, result.CenterLng = geo.CalculateCenter(members)
	result.RadiusMeters = geo.CalculatePercentileRadius(members, result.CenterLat, result.CenterLng, 0.95)
	result.PointCount = len(members)

	timestamps := make([]int64, 0, len(members))
	for _, p := range members {
		timestamps = append(timestamps, p.Timestamp)
	}
	sort.Slice(timestamps, func(i, j int) bool { return timestamps[i] < timestamps[j] })

	result.FirstSeen = timestamps[0]
	result.LastSeen = timestamps[len(timestamps)-1]

	var totalStay int64
	for i := 1; i < len(timestamps); i++ {
		gap := timestamps[i] - timestamps[i-1]
		if gap < d.config.MaxStayGapMs {
			totalStay += gap
		}
	}
	result.TotalStayMs = totalStay

	result.TimePattern = analyzeTimePattern(members)
	result.SuggestedCategory = inferCategory(result.TimePattern, result.PointCount)
	result.SuggestedName = categoryName(result.SuggestedCategory)
	result.Confidence = calculateConfidence(result)

	return result
}

// analyzeTimePattern buckets point timestamps by hour and weekday using
// UTC epoch arithmetic (1970-01-01 was a Thursday).
func analyzeTimePattern(points []geo.GeoPoint) TimePattern {
	var pattern TimePattern

	for _, p := range points {
		seconds := p.Timestamp / 1000
		hour := int((seconds / 3600) % 24)
		dayOfWeek := int(((seconds / 86400) + 4) % 7)

		isWeekend := dayOfWeek == 0 || dayOfWeek == 6
		isNight := hour >= 22 || hour < 6
		isWorkHour := hour >= 9 && hour < 18

		if isWeekend {
			if !containsInt(pattern.WeekendHours, hour) {
				pattern.WeekendHours = append(pattern.WeekendHours, hour)
			}
			pattern.WeekendCount++
		} else {
			if !containsInt(pattern.WeekdayHours, hour) {
				pattern.WeekdayHours = append(pattern.WeekdayHours, hour)
			}
			if isWorkHour {
				pattern.WorkdayCount++
			}
		}

		if isNight {
			pattern.NightCount++
		}
	}

	return pattern
}

func containsInt(s []int, v int) bool {
	for _, x := range s {
		if x == v {
			return true
		}
	}
	return false
}

// inferCategory applies the ratio thresholds: home by night share, work by
// workday share, gym by weekend share, restaurant by lunch-hour presence.
func inferCategory(pattern TimePattern, totalPoints int) string {
	nightRatio := float64(pattern.NightCount) / float64(totalPoints)
	workdayRatio := float64(pattern.WorkdayCount) / float64(totalPoints)
	weekendRatio := float64(pattern.WeekendCount) / float64(totalPoints)

	if nightRatio > 0.4 {
		return "home"
	}
	if workdayRatio > 0.5 && weekendRatio < 0.2 {
		return "work"
	}
	if weekendRatio > 0.4 {
		return "gym"
	}
	for _, h := range pattern.WeekdayHours {
		if h >= 11 && h <= 14 {
			return "restaurant"
		}
	}
	return "other"
}

// categoryNames maps categories to display names. The byte values are a
// public contract; do not localize.
var categoryNames = map[string]string{
	"home":       "家",
	"work":       "公司",
	"gym":        "健身房",
	"restaurant": "常去餐厅",
	"other":      "常去地点",
}

func categoryName(category string) string {
	if name, ok := categoryNames[category]; ok {
		return name
	}
	return categoryNames["other"]
}

// calculateConfidence scores a cluster by point count and accumulated stay
// time (each term capped at 0.3: pointCount/100 and stay/7 days) plus 0.2
// each for the presence of weekday and weekend hours.
func calculateConfidence(result Result) float64 {
	score := math.Min(float64(result.PointCount)/100.0, 0.3)
	score += math.Min(float64(result.TotalStayMs)/(86_400_000.0*7), 0.3)
	if len(result.TimePattern.WeekdayHours) > 0 {
		score += 0.2
	}
	if len(result.TimePattern.WeekendHours) > 0 {
		score += 0.2
	}
	return math.Min(score, 1.0)
}

// #endregion cluster-result
