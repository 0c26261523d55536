package quizbank

import (
	"context"
	"fmt"
	"sort"
)

// CellCoverage counts template questions of one (interest, level, mode) cell.
type CellCoverage struct {
	Interest string `json:"interest"`
	Level    Level  `json:"level"`
	GameMode string `json:"gameMode"`
	Approved int    `json:"approved"`
	Pending  int    `json:"pending"`
	Rejected int    `json:"rejected"`
}

// Missing is how many more questions the cell needs to reach target, counting
// the pending backlog as questions that may still be approved.
func (c CellCoverage) Missing(target int) int {
	if n := target - c.Approved - c.Pending; n > 0 {
		return n
	}
	return 0
}

// Coverage reports every catalog cell, including ones with no questions yet,
// ordered by interest, then plan order.
func (db *DB) Coverage(ctx context.Context) ([]CellCoverage, error) {
	rows, err := db.db.QueryContext(ctx,
		"SELECT interest, level, game_mode, status, COUNT(*) FROM template_questions GROUP BY interest, level, game_mode, status")
	if err != nil {
		return nil, fmt.Errorf("failed to query coverage: %w", err)
	}
	defer rows.Close()

	cells := make(map[string]*CellCoverage)
	cell := func(interest string, level Level, mode string) *CellCoverage {
		id := PoolID(interest, level, mode)
		c, ok := cells[id]
		if !ok {
			c = &CellCoverage{Interest: interest, Level: level, GameMode: mode}
			cells[id] = c
		}
		return c
	}
	for _, interest := range Interests {
		for _, pc := range QuizPlan {
			cell(interest, pc.Level, pc.GameMode)
		}
	}

	for rows.Next() {
		var interest, mode string
		var level Level
		var status QuestionStatus
		var n int
		if err := rows.Scan(&interest, &level, &mode, &status, &n); err != nil {
			return nil, fmt.Errorf("failed to scan coverage: %w", err)
		}
		c := cell(interest, level, mode)
		switch {
		case status == StatusApproved:
			c.Approved += n
		case status.inPendingBucket():
			c.Pending += n
		default:
			c.Rejected += n
		}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating coverage: %w", err)
	}

	out := make([]CellCoverage, 0, len(cells))
	for _, c := range cells {
		out = append(out, *c)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Interest != out[j].Interest {
			return out[i].Interest < out[j].Interest
		}
		return QuizSetNumber(out[i].GameMode, out[i].Level) < QuizSetNumber(out[j].GameMode, out[j].Level)
	})
	return out, nil
}

// CoverageGaps returns the cells that need more questions to reach target.
func (db *DB) CoverageGaps(ctx context.Context, target int) ([]CellCoverage, error) {
	all, err := db.Coverage(ctx)
	if err != nil {
		return nil, err
	}
	var gaps []CellCoverage
	for _, c := range all {
		if c.Missing(target) > 0 {
			gaps = append(gaps, c)
		}
	}
	return gaps, nil
}
