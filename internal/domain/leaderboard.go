package domain

// Entry is a leaderboard position key: a user's total and the watermark of
// its last increase.
type Entry struct {
	UserID    string `json:"user_id"`
	Score     int64  `json:"score"`
	Watermark int64  `json:"-"`
}

// Ahead reports whether a ranks strictly before b. Ordering is score
// descending, then watermark ascending, then user id ascending.
func Ahead(a, b Entry) bool {
	if a.Score != b.Score {
		return a.Score > b.Score
	}
	if a.Watermark != b.Watermark {
		return a.Watermark < b.Watermark
	}
	return a.UserID < b.UserID
}

// RankedEntry is an Entry together with its 1-based position.
type RankedEntry struct {
	Rank int64 `json:"rank"`
	Entry
}

// Rank numbers entries starting at 1. The input must already be ordered.
func Rank(entries []Entry) []RankedEntry {
	out := make([]RankedEntry, len(entries))
	for i, e := range entries {
		out[i] = RankedEntry{Rank: int64(i + 1), Entry: e}
	}
	return out
}
