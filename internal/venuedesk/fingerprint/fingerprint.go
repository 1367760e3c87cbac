// Package fingerprint computes deterministic digests over named subsets of
// booking fields so the engine can cheaply answer "did anything material
// change since this decision was made".
//
// Digests are compared, never mutated: a stored fingerprint that no longer
// equals the recomputed one is the trigger for forced re-evaluation, and a
// match lets the engine skip an expensive step body entirely.
package fingerprint

import (
	"fmt"
	"sort"
	"strings"

	"github.com/cespare/xxhash/v2"
)

// Requirements digests the client-side requirement set: event date,
// headcount and normalised constraints.  Constraint order and case do not
// affect the result.
func Requirements(eventDate string, headcount int, constraints []string) string {
	normalised := make([]string, 0, len(constraints))
	for _, c := range constraints {
		c = strings.ToLower(strings.TrimSpace(c))
		if c != "" {
			normalised = append(normalised, c)
		}
	}
	sort.Strings(normalised)

	h := xxhash.New()
	fmt.Fprintf(h, "date=%s\n", eventDate)
	fmt.Fprintf(h, "headcount=%d\n", headcount)
	for _, c := range normalised {
		fmt.Fprintf(h, "constraint=%s\n", c)
	}
	return fmt.Sprintf("req-%016x", h.Sum64())
}

// RoomEvaluation digests a room decision together with the requirements
// fingerprint it was evaluated against.  While the stored value equals this
// digest the locked room is still valid.
func RoomEvaluation(roomID, requirementsFP string) string {
	h := xxhash.New()
	fmt.Fprintf(h, "room=%s\n", strings.ToLower(strings.TrimSpace(roomID)))
	fmt.Fprintf(h, "requirements=%s\n", requirementsFP)
	return fmt.Sprintf("room-%016x", h.Sum64())
}

// Products digests the ordered-insensitive product selection for the offer.
func Products(products []string) string {
	normalised := make([]string, 0, len(products))
	for _, p := range products {
		p = strings.ToLower(strings.TrimSpace(p))
		if p != "" {
			normalised = append(normalised, p)
		}
	}
	sort.Strings(normalised)

	h := xxhash.New()
	for _, p := range normalised {
		fmt.Fprintf(h, "product=%s\n", p)
	}
	return fmt.Sprintf("prod-%016x", h.Sum64())
}

// Match reports whether a stored fingerprint is present and equals the
// recomputed one.  An empty stored value never matches: absence of a
// fingerprint means the decision was never evaluated.
func Match(stored, recomputed string) bool {
	return stored != "" && stored == recomputed
}
