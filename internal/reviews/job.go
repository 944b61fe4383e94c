// Package reviews accepts review notifications and queues them for reply drafting.
package reviews

import (
	"strconv"
	"strings"
)

// ProcessedProvider is the processed-events namespace for review notifications.
const ProcessedProvider = "gmb_review"

// ReviewJob is the queued contract consumed by the reply pipeline.
type ReviewJob struct {
	PracticeID   string `json:"practiceId"`
	LocationName string `json:"locationName"`
	ReviewName   string `json:"reviewName"`
	ReviewerName string `json:"reviewerName"`
	Rating       int    `json:"rating"`
	Comment      string `json:"comment"`
	CreateTime   string `json:"createTime"`
}

var starRatings = map[string]int{
	"ONE":   1,
	"TWO":   2,
	"THREE": 3,
	"FOUR":  4,
	"FIVE":  5,
}

// ParseStarRating accepts Google's ONE..FIVE enum or a digit. Anything else is 0.
func ParseStarRating(raw string) int {
	value := strings.ToUpper(strings.TrimSpace(raw))
	if rating, ok := starRatings[value]; ok {
		return rating
	}
	if n, err := strconv.Atoi(value); err == nil && n >= 1 && n <= 5 {
		return n
	}
	return 0
}
