package calendar_test

import (
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/boddenberg/card-tracker-bfa-go/internal/calendar"
	"github.com/boddenberg/card-tracker-bfa-go/internal/domain"
)

var testCard = domain.Card{
	ID:              "c1",
	BankName:        "Garanti",
	CardName:        "Bonus",
	LastFour:        "1234",
	Balance:         1500.5,
	MinPaymentRatio: 20,
	ReminderDays:    3,
}

func TestGoogleCalendarURL(t *testing.T) {
	day := time.Date(2025, 3, 25, 18, 30, 0, 0, time.Local)
	link := calendar.GoogleCalendarURL(testCard, day)

	u, err := url.Parse(link)
	if err != nil {
		t.Fatalf("invalid url: %v", err)
	}
	if u.Host != "calendar.google.com" {
		t.Errorf("unexpected host %s", u.Host)
	}
	q := u.Query()
	if q.Get("action") != "TEMPLATE" {
		t.Errorf("expected TEMPLATE action, got %q", q.Get("action"))
	}
	if q.Get("dates") != "20250325/20250326" {
		t.Errorf("unexpected dates %q", q.Get("dates"))
	}
	if q.Get("text") != "Garanti Bonus payment due" {
		t.Errorf("unexpected title %q", q.Get("text"))
	}
	if !strings.Contains(q.Get("details"), "1500.50") {
		t.Errorf("expected balance in details, got %q", q.Get("details"))
	}
}

func TestICS_ContainsRequiredFields(t *testing.T) {
	day := time.Date(2025, 3, 25, 0, 0, 0, 0, time.UTC)
	now := time.Date(2025, 3, 1, 9, 15, 0, 0, time.UTC)
	ics := calendar.ICS(testCard, day, now)

	for _, want := range []string{
		"BEGIN:VCALENDAR\r\n",
		"BEGIN:VEVENT\r\n",
		"UID:c1-20250325@card-tracker\r\n",
		"DTSTAMP:20250301T091500Z\r\n",
		"SUMMARY:Garanti Bonus payment due\r\n",
		"DTSTART;VALUE=DATE:20250325\r\n",
		"DTEND;VALUE=DATE:20250326\r\n",
		"STATUS:CONFIRMED\r\n",
		"TRIGGER:-P3D\r\n",
		"END:VCALENDAR\r\n",
	} {
		if !strings.Contains(ics, want) {
			t.Errorf("missing %q in:\n%s", want, ics)
		}
	}
	if !strings.Contains(ics, `DESCRIPTION:Card: Garanti Bonus (**** 1234)\nCurrent balance: 1500.50`) {
		t.Errorf("expected escaped description, got:\n%s", ics)
	}
}

func TestICS_NoAlarmWithoutReminder(t *testing.T) {
	card := testCard
	card.ReminderDays = 0
	ics := calendar.ICS(card, time.Now(), time.Now())
	if strings.Contains(ics, "VALARM") {
		t.Error("expected no alarm when reminder lead time is zero")
	}
}

func TestICS_EscapesAndFoldsLongLines(t *testing.T) {
	card := domain.Card{
		ID:       "c2",
		BankName: "Türkiye İş Bankası; Maximum, Platinum",
		CardName: strings.Repeat("Ğ", 60),
	}
	ics := calendar.ICS(card, time.Date(2025, 1, 10, 0, 0, 0, 0, time.UTC), time.Now())

	if !strings.Contains(ics, `Bankası\; Maximum\, Platinum`) {
		t.Errorf("expected escaped separators, got:\n%s", ics)
	}
	for _, line := range strings.Split(ics, "\r\n") {
		if len(line) > 75 {
			t.Errorf("line longer than 75 octets: %q", line)
		}
	}
}

func TestFilename(t *testing.T) {
	got := calendar.Filename(testCard, time.Date(2025, 3, 25, 0, 0, 0, 0, time.UTC))
	if got != "garanti-bonus-2025-03-25.ics" {
		t.Errorf("unexpected filename %s", got)
	}
}
