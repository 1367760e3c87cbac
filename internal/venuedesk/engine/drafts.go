package engine

import (
	"fmt"
	"strings"

	"github.com/venuedesk/venuedesk/internal/venuedesk/booking"
	"github.com/venuedesk/venuedesk/internal/venuedesk/catalog"
)

// Reply text assembly.  Every function here is pure: booking in, text out.
// The engine never sends these directly; they all pass the approval gate.

func draftIntakeGreeting(b *booking.Booking, missing []string) string {
	var sb strings.Builder
	sb.WriteString("Hello")
	if b.ClientName != "" {
		sb.WriteString(" " + b.ClientName)
	}
	sb.WriteString(",\n\nThank you for your enquiry. ")
	if len(missing) == 0 {
		sb.WriteString("We have everything we need to check availability.")
	} else {
		sb.WriteString("To check availability we still need: ")
		sb.WriteString(strings.Join(missing, ", "))
		sb.WriteString(".")
	}
	return sb.String()
}

func draftDateConfirmRequest(b *booking.Booking) string {
	return fmt.Sprintf(
		"Could you confirm %s as the event date? Once the date is fixed we will put together room options for %d guests.",
		b.EventDate, b.Headcount)
}

func draftDateUnavailable(date string) string {
	return fmt.Sprintf(
		"Unfortunately we cannot host your event on %s. Could you suggest an alternative date?",
		date)
}

func draftRoomOptions(b *booking.Booking, rooms []catalog.Room) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "For %s with %d guests we can offer:\n\n", b.EventDate, b.Headcount)
	for _, r := range rooms {
		fmt.Fprintf(&sb, "- %s (up to %d guests", r.Name, r.Capacity)
		if len(r.Features) > 0 {
			fmt.Fprintf(&sb, ", %s", strings.Join(r.Features, ", "))
		}
		fmt.Fprintf(&sb, ") at %.2f per day\n", r.DailyRate)
	}
	sb.WriteString("\nWhich room would you prefer?")
	return sb.String()
}

func draftNoRoomFits(b *booking.Booking) string {
	return fmt.Sprintf(
		"We currently have no room that fits %d guests on %s. Would a different date or a smaller group work for you?",
		b.Headcount, b.EventDate)
}

func draftOffer(b *booking.Booking, room catalog.Room, products []catalog.Product) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Offer %s (version %d)\n\n", b.OfferID, b.OfferVersion)
	fmt.Fprintf(&sb, "Event date: %s\nRoom: %s\nGuests: %d\n", b.EventDate, room.Name, b.Headcount)

	total := room.DailyRate
	if len(products) > 0 {
		sb.WriteString("\nAdd-ons:\n")
		for _, p := range products {
			price := p.UnitPrice
			if p.PerPerson {
				price *= float64(b.Headcount)
				fmt.Fprintf(&sb, "- %s: %.2f (%.2f per person)\n", p.Name, price, p.UnitPrice)
			} else {
				fmt.Fprintf(&sb, "- %s: %.2f\n", p.Name, price)
			}
			total += price
		}
	}
	fmt.Fprintf(&sb, "\nTotal: %.2f\n\nPlease let us know whether this works for you.", total)
	return sb.String()
}

func draftDeclineAck() string {
	return "Understood, we will close the request. Thank you for considering us, and feel free to reach out for a future event."
}

func draftCheckpointRequest(b *booking.Booking) string {
	var sb strings.Builder
	sb.WriteString("Great news, the offer is accepted. Before we issue the final confirmation we need:\n")
	if !b.Billing.Complete() {
		sb.WriteString("- your invoicing details (company, address, tax ID)\n")
	}
	if b.Deposit != booking.DepositReceived && b.Deposit != booking.DepositWaived {
		sb.WriteString("- the deposit payment confirmation\n")
	}
	return sb.String()
}

func draftFinalConfirmation(b *booking.Booking, room catalog.Room) string {
	return fmt.Sprintf(
		"Your booking is confirmed.\n\nEvent date: %s\nRoom: %s\nGuests: %d\nBilling: %s\n\nWe look forward to hosting you.",
		b.EventDate, room.Name, b.Headcount, b.Billing.Company)
}

func draftEscalationAck() string {
	return "Of course, a manager will review your request personally and get back to you shortly."
}

func draftChangeAck(kind booking.ChangeKind, value string) string {
	return fmt.Sprintf("Noted, we have updated the %s to %s and re-checked the affected arrangements.", kind, value)
}

func draftFastSkipAck(kind booking.ChangeKind) string {
	return fmt.Sprintf("Thanks for confirming. The %s you mention matches what we already have on file, so everything stays as agreed.", kind)
}
