// Package rewards holds the pure reward formulas: quest rarity, the points a
// quest is worth, and the level table.
package rewards

import (
	"sort"

	"github.com/fetchquest/backend/internal/models"
)

const urgentBonus = 20

// CalculateRarity maps a quest's price (in dollars), urgency, complexity and
// time required to a rarity tier. Complexity and timeRequired default to 1.
func CalculateRarity(price float64, urgent bool, complexity, timeRequired int) models.Rarity {
	if complexity == 0 {
		complexity = 1
	}
	if timeRequired == 0 {
		timeRequired = 1
	}
	score := price + float64(complexity*10) + float64(timeRequired*5)
	if urgent {
		score += urgentBonus
	}
	switch {
	case score >= 100:
		return models.RarityLegendary
	case score >= 60:
		return models.RarityEpic
	case score >= 40:
		return models.RarityRare
	case score >= 20:
		return models.RarityUncommon
	default:
		return models.RarityCommon
	}
}

// TaskRarity is CalculateRarity applied to a quest record.
func TaskRarity(t *models.Task) models.Rarity {
	return CalculateRarity(t.Price.Float(), t.Urgent, t.Complexity, t.TimeRequired)
}

var rarityPoints = map[models.Rarity]int{
	models.RarityCommon:    10,
	models.RarityUncommon:  25,
	models.RarityRare:      50,
	models.RarityEpic:      100,
	models.RarityLegendary: 200,
}

// PointsForRarity returns the points a quest of the given rarity awards on completion.
func PointsForRarity(r models.Rarity) int {
	if p, ok := rarityPoints[r]; ok {
		return p
	}
	return rarityPoints[models.RarityCommon]
}

// SortForDisplay orders urgent quests before the rest. The sort is stable, so
// the relative order inside each group is the caller's.
func SortForDisplay(tasks []*models.Task) {
	sort.SliceStable(tasks, func(i, j int) bool {
		return tasks[i].Urgent && !tasks[j].Urgent
	})
}
