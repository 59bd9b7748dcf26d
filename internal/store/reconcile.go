package store

import (
	"slices"
	"time"

	"github.com/Monica-b-mb/mentorpulse-sub000/internal/models"
)

// Match rules, in the order they are tried.
const (
	ruleID      = "id"
	ruleTempID  = "temp_id"
	ruleContent = "content"
)

// findMatch returns the index of the entry in seq that represents the same
// logical message as in, and the rule that matched. -1 when nothing matches.
func findMatch(seq []models.Message, in models.Message, tolerance time.Duration) (int, string) {
	if in.ID != "" {
		for i := range seq {
			if seq[i].ID == in.ID {
				return i, ruleID
			}
		}
	}
	if in.TempID != "" {
		for i := range seq {
			if seq[i].TempID == in.TempID {
				return i, ruleTempID
			}
		}
	}
	for i := range seq {
		if contentMatch(seq[i], in, tolerance) {
			return i, ruleContent
		}
	}
	return -1, ""
}

// contentMatch is the fallback for a confirmation that lost its correlation
// id: one side temporary, same author, same body, timestamps within tolerance.
func contentMatch(a, b models.Message, tolerance time.Duration) bool {
	if a.Temporary() == b.Temporary() {
		return false
	}
	// A confirmed entry already correlated to another temp id is a different send.
	if a.TempID != "" && b.TempID != "" && a.TempID != b.TempID {
		return false
	}
	if a.Sender.ID != b.Sender.ID || a.Body != b.Body {
		return false
	}
	d := a.CreatedAt.Sub(b.CreatedAt)
	if d < 0 {
		d = -d
	}
	return d <= tolerance
}

// merge folds in into existing. Confirmation wins over temporary, delivery
// state only moves forward and the temp id survives as a correlation key.
func merge(existing, in models.Message) models.Message {
	out := existing
	if in.Phase == models.PhaseConfirmed {
		out = in
		if out.TempID == "" {
			out.TempID = existing.TempID
		}
		if existing.Phase == models.PhaseConfirmed {
			// Both confirmed: keep the timestamp already used for ordering.
			out.CreatedAt = existing.CreatedAt
		}
	} else if out.TempID == "" {
		out.TempID = in.TempID
	}
	out.Delivery = existing.Delivery.Max(in.Delivery)
	out.Seen = existing.Seen || in.Seen
	if out.Seen {
		out.Delivery = models.DeliverySeen
	}
	return out
}

// reconcileInto applies the add-message rule to seq. It reports the index of
// the affected entry, the rule that matched, and whether in was appended.
func reconcileInto(seq []models.Message, in models.Message, tolerance time.Duration) ([]models.Message, int, string, bool) {
	idx, rule := findMatch(seq, in, tolerance)
	if idx < 0 {
		return append(seq, in), len(seq), "", true
	}
	seq[idx] = merge(seq[idx], in)
	seq, idx = absorbDuplicates(seq, idx)
	return seq, idx, rule, false
}

// absorbDuplicates merges any other entry sharing an id or temp id with
// seq[idx] into it. A promotion can make two entries collide when an echo
// arrived without its correlation id outside the match tolerance.
func absorbDuplicates(seq []models.Message, idx int) ([]models.Message, int) {
	for j := 0; j < len(seq); j++ {
		if j == idx {
			continue
		}
		sameID := seq[idx].ID != "" && seq[j].ID == seq[idx].ID
		sameTemp := seq[idx].TempID != "" && seq[j].TempID == seq[idx].TempID
		if !sameID && !sameTemp {
			continue
		}
		seq[idx] = merge(seq[j], seq[idx])
		seq = slices.Delete(seq, j, j+1)
		if j < idx {
			idx--
		}
		j--
	}
	return seq, idx
}

// collapse folds a list of messages into a sequence with no duplicates.
func collapse(msgs []models.Message, tolerance time.Duration) []models.Message {
	out := make([]models.Message, 0, len(msgs))
	for _, m := range msgs {
		out, _, _, _ = reconcileInto(out, m, tolerance)
	}
	return out
}

// sortByTime orders seq by creation time. Ties keep insertion order.
func sortByTime(seq []models.Message) {
	slices.SortStableFunc(seq, func(a, b models.Message) int {
		return a.CreatedAt.Compare(b.CreatedAt)
	})
}
