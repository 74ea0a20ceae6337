package rewards

import "sort"

// levelThresholds[i] is the cumulative points needed to reach level i+1.
var levelThresholds = []int{
	0, 250, 600, 1000, 1500,
	2100, 2800, 3600, 4500, 5500,
	6600, 7800, 9100, 10500, 12000,
	13600, 15300, 17100, 19000, 21000,
}

// MaxLevel is the highest reachable level.
var MaxLevel = len(levelThresholds)

// LevelFromPoints returns the level for a cumulative point total. Points past
// the last threshold stay at MaxLevel.
func LevelFromPoints(points int) int {
	if points < 0 {
		return 1
	}
	// first threshold strictly greater than points
	return sort.Search(len(levelThresholds), func(i int) bool {
		return levelThresholds[i] > points
	})
}

// PointsToNextLevel returns how many points are missing for the next level,
// or 0 at MaxLevel.
func PointsToNextLevel(points int) int {
	level := LevelFromPoints(points)
	if level >= MaxLevel {
		return 0
	}
	return levelThresholds[level] - points
}
