package engine

import (
	"context"
	"strconv"
	"strings"

	"github.com/venuedesk/venuedesk/internal/venuedesk/booking"
	"github.com/venuedesk/venuedesk/internal/venuedesk/catalog"
	"github.com/venuedesk/venuedesk/internal/venuedesk/fingerprint"
)

// stepRoomAvailability evaluates rooms against the confirmed date and the
// client's requirements, presents the candidates, and locks the chosen room.
func (e *Engine) stepRoomAvailability(ctx context.Context, t *turn) (stepOutcome, error) {
	b := t.b

	// guard
	if !b.DateConfirmed {
		b.Thread = booking.ThreadAwaitingClient
		return stepOutcome{halt: HaltDateNotConfirmed, reply: draftDateConfirmRequest(b)}, nil
	}
	if b.Headcount == 0 {
		b.Thread = booking.ThreadAwaitingClient
		return stepOutcome{halt: HaltMissingHeadcount, reply: "How many guests should we plan for?"}, nil
	}

	// body
	if t.directive != nil && t.directive.Kind == booking.ChangeRequirements {
		if hc, err := strconv.Atoi(t.directive.Value); err == nil && hc > 0 {
			b.Headcount = hc
		}
		b.RequirementsFingerprint = fingerprint.Requirements(b.EventDate, b.Headcount, b.Constraints)
		if b.RoomID != "" {
			if room, ok := e.catalog.RoomByID(b.RoomID); ok && e.roomFits(room, b) {
				b.RoomEvalFingerprint = fingerprint.RoomEvaluation(b.RoomID, b.RequirementsFingerprint)
				return stepOutcome{advance: true, reply: draftChangeAck(booking.ChangeRequirements, t.directive.Value)}, nil
			}
			b.RoomID = ""
			b.RoomEvalFingerprint = ""
		}
	}

	// A room bound in this message (selection or change) locks immediately
	// when it fits.
	desired := t.res.Entities.RoomID
	if t.directive != nil && t.directive.Kind == booking.ChangeRoom {
		desired = t.directive.Value
	}
	if desired != "" {
		room, ok := e.catalog.RoomByID(desired)
		if !ok {
			room, ok = e.catalog.MatchRoomName(desired)
		}
		if !ok {
			b.Thread = booking.ThreadAwaitingClient
			return stepOutcome{reply: "We could not find that room in our catalog. " + draftRoomOptions(b, e.roomsFor(b.EventDate, b.Headcount, b.Constraints))}, nil
		}
		if !e.roomFits(room, b) {
			b.Thread = booking.ThreadAwaitingClient
			return stepOutcome{reply: room.Name + " does not work for your date and guest count. " + draftRoomOptions(b, e.roomsFor(b.EventDate, b.Headcount, b.Constraints))}, nil
		}
		if b.RequirementsFingerprint == "" {
			b.RequirementsFingerprint = fingerprint.Requirements(b.EventDate, b.Headcount, b.Constraints)
		}
		b.RoomID = room.ID
		b.RoomEvalFingerprint = fingerprint.RoomEvaluation(room.ID, b.RequirementsFingerprint)
		if t.directive != nil {
			return stepOutcome{advance: true, reply: draftChangeAck(booking.ChangeRoom, room.Name)}, nil
		}
		return stepOutcome{advance: true}, nil
	}

	// Nothing bound yet: present the candidates and wait.
	candidates := e.roomsFor(b.EventDate, b.Headcount, b.Constraints)
	if len(candidates) == 0 {
		b.Thread = booking.ThreadAwaitingClient
		return stepOutcome{reply: draftNoRoomFits(b)}, nil
	}
	b.Thread = booking.ThreadAwaitingClient
	return stepOutcome{reply: draftRoomOptions(b, candidates)}, nil
}

// roomsFor returns the rooms that can host the event: open on the date,
// big enough, and covering every stated constraint.
func (e *Engine) roomsFor(date string, headcount int, constraints []string) []catalog.Room {
	var out []catalog.Room
	for _, r := range e.catalog.Rooms() {
		if r.Capacity < headcount {
			continue
		}
		if !e.catalog.Available(r.ID, date) {
			continue
		}
		if !featuresCover(r.Features, constraints) {
			continue
		}
		out = append(out, r)
	}
	return out
}

func (e *Engine) roomFits(room catalog.Room, b *booking.Booking) bool {
	return room.Capacity >= b.Headcount &&
		e.catalog.Available(room.ID, b.EventDate) &&
		featuresCover(room.Features, b.Constraints)
}

// featuresCover reports whether every constraint matches some room feature
// (case-insensitive substring match in either direction).
func featuresCover(features, constraints []string) bool {
	for _, c := range constraints {
		lc := strings.ToLower(c)
		found := false
		for _, f := range features {
			lf := strings.ToLower(f)
			if strings.Contains(lf, lc) || strings.Contains(lc, lf) {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	return true
}
