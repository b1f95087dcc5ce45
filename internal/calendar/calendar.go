// Package calendar turns a card's payment due date into a calendar entry:
// either a Google Calendar deep link or an iCalendar (RFC 5545) file.
package calendar

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/boddenberg/card-tracker-bfa-go/internal/domain"
)

const (
	dateLayout  = "20060102"
	stampLayout = "20060102T150405Z"
	prodID      = "-//card-tracker//payment reminders//TR"
	maxLineLen  = 75
)

// Title is the event summary for a card's due date.
func Title(card domain.Card) string {
	return fmt.Sprintf("%s payment due", card.DisplayName())
}

// Description is the event body.
func Description(card domain.Card) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Card: %s", card.DisplayName())
	if card.LastFour != "" {
		fmt.Fprintf(&b, " (**** %s)", card.LastFour)
	}
	fmt.Fprintf(&b, "\nCurrent balance: %.2f", card.Balance)
	if card.MinPaymentRatio > 0 {
		fmt.Fprintf(&b, "\nMinimum payment ratio: %%%g", card.MinPaymentRatio)
	}
	return b.String()
}

// GoogleCalendarURL builds an all-day event template link for day.
func GoogleCalendarURL(card domain.Card, day time.Time) string {
	start := civil(day)
	end := start.AddDate(0, 0, 1)

	q := url.Values{}
	q.Set("action", "TEMPLATE")
	q.Set("text", Title(card))
	q.Set("dates", start.Format(dateLayout)+"/"+end.Format(dateLayout))
	q.Set("details", Description(card))
	return "https://calendar.google.com/calendar/render?" + q.Encode()
}

// ICS renders a single all-day VEVENT for day. The card's reminder lead time
// becomes a display alarm.
func ICS(card domain.Card, day, now time.Time) string {
	start := civil(day)
	end := start.AddDate(0, 0, 1)

	lines := []string{
		"BEGIN:VCALENDAR",
		"VERSION:2.0",
		"PRODID:" + prodID,
		"CALSCALE:GREGORIAN",
		"METHOD:PUBLISH",
		"BEGIN:VEVENT",
		fmt.Sprintf("UID:%s-%s@card-tracker", card.ID, start.Format(dateLayout)),
		"DTSTAMP:" + now.UTC().Format(stampLayout),
		"SUMMARY:" + escape(Title(card)),
		"DTSTART;VALUE=DATE:" + start.Format(dateLayout),
		"DTEND;VALUE=DATE:" + end.Format(dateLayout),
		"DESCRIPTION:" + escape(Description(card)),
		"STATUS:CONFIRMED",
		"TRANSP:TRANSPARENT",
	}
	if card.ReminderDays > 0 {
		lines = append(lines,
			"BEGIN:VALARM",
			"ACTION:DISPLAY",
			"DESCRIPTION:"+escape(Title(card)),
			fmt.Sprintf("TRIGGER:-P%dD", card.ReminderDays),
			"END:VALARM",
		)
	}
	lines = append(lines, "END:VEVENT", "END:VCALENDAR")

	var b strings.Builder
	for _, l := range lines {
		b.WriteString(fold(l))
		b.WriteString("\r\n")
	}
	return b.String()
}

// Filename suggests a download name for the ICS file.
func Filename(card domain.Card, day time.Time) string {
	name := strings.ToLower(strings.Join(strings.Fields(card.DisplayName()), "-"))
	if name == "" {
		name = "card"
	}
	return fmt.Sprintf("%s-%s.ics", name, civil(day).Format("2006-01-02"))
}

func civil(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

var textEscaper = strings.NewReplacer(
	`\`, `\\`,
	";", `\;`,
	",", `\,`,
	"\r\n", `\n`,
	"\n", `\n`,
)

func escape(s string) string {
	return textEscaper.Replace(s)
}

// fold splits content lines longer than 75 octets, never inside a UTF-8
// sequence. Continuation lines start with a single space.
func fold(line string) string {
	if len(line) <= maxLineLen {
		return line
	}

	var b strings.Builder
	limit := maxLineLen
	for len(line) > limit {
		cut := limit
		for cut > 0 && !startsRune(line[cut]) {
			cut--
		}
		b.WriteString(line[:cut])
		b.WriteString("\r\n ")
		line = line[cut:]
		limit = maxLineLen - 1 // the leading space counts
	}
	b.WriteString(line)
	return b.String()
}

func startsRune(c byte) bool {
	return c&0xC0 != 0x80
}
