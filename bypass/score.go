package bypass

import (
	"sort"
	"strings"
)

// minScore is the threshold below which a candidate is not worth a try.
const minScore = 10

// Score rates how likely c is to be the challenge widget.
func Score(c Candidate) int {
	id := strings.ToLower(c.ID)
	class := strings.ToLower(c.Class)
	text := strings.ToLower(c.Text)

	score := 0
	if id == "px-captcha" {
		score += 100
	}
	if strings.Contains(id, "px-") || strings.Contains(class, "px-") {
		score += 80
	}
	if strings.Contains(text, "press & hold") || strings.Contains(text, "press and hold") {
		score += 90
	}
	if strings.Contains(text, "human") || strings.Contains(text, "robot") {
		score += 70
	}
	if strings.Contains(text, "captcha") {
		score += 60
	}
	if c.Cursor == "pointer" {
		score += 30
	}
	if c.Position == "absolute" {
		score += 20
	}
	if c.ZIndex > 1000 {
		score += 15
	}
	if strings.Contains(c.Transition, "transform") {
		score += 25
	}
	if strings.Contains(c.BorderRadius, "px") && c.BorderRadius != "0px" {
		score += 10
	}
	if c.Box.Width >= 250 && c.Box.Width <= 350 {
		score += 20
	}
	if c.Box.Height >= 70 && c.Box.Height <= 100 {
		score += 20
	}
	if c.TabIndex {
		score += 25
	}
	if c.Role == "button" {
		score += 30
	}
	return score
}

// Rank scores the valid candidates, drops those at or below the threshold,
// and returns at most limit of them, best first. Ties keep document order.
func Rank(cands []Candidate, limit int) []Candidate {
	ranked := make([]Candidate, 0, len(cands))
	for _, c := range cands {
		if !c.Box.Valid() {
			continue
		}
		c.Score = Score(c)
		if c.Score > minScore {
			ranked = append(ranked, c)
		}
	}
	sort.SliceStable(ranked, func(i, j int) bool { return ranked[i].Score > ranked[j].Score })
	if limit > 0 && len(ranked) > limit {
		ranked = ranked[:limit]
	}
	return ranked
}
