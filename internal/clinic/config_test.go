package clinic

import (
	"errors"
	"testing"
	"time"
)

func TestWorkingDaysDefaults(t *testing.T) {
	s := DefaultSettings()
	if err := s.Prepare(); err != nil {
		t.Fatalf("prepare defaults: %v", err)
	}
	loc := s.Location()
	saturday := time.Date(2028, 7, 15, 10, 0, 0, 0, loc)
	if s.IsWorkingDay(saturday) {
		t.Fatalf("saturday should be closed by default")
	}
	next, ok := s.NextWorkingDay(saturday)
	if !ok {
		t.Fatalf("expected a next working day")
	}
	if next.Weekday() != time.Monday || next.Day() != 17 {
		t.Fatalf("expected monday 17, got %s", next)
	}
}

func TestNextWorkingDayNoneOpen(t *testing.T) {
	s := DefaultSettings()
	s.WorkingDays = WorkingDays{}
	if _, ok := s.NextWorkingDay(time.Now()); ok {
		t.Fatalf("expected no working day")
	}
}

func TestFindService(t *testing.T) {
	s := DefaultSettings()
	tests := []struct {
		text string
		want string
		ok   bool
	}{
		{"quero fazer uma limpeza de pele", "Limpeza de Pele", true},
		{"PEELING QUIMICO", "Peeling Químico", true},
		{"preenchimento labial por favor", "Preenchimento Labial", true},
		{"drenagem linfatica", "Drenagem Linfática", true},
		{"massagem", "", false},
	}
	for _, tt := range tests {
		svc, ok := s.FindService(tt.text)
		if ok != tt.ok || svc.Name != tt.want {
			t.Fatalf("FindService(%q) = %q,%v want %q,%v", tt.text, svc.Name, ok, tt.want, tt.ok)
		}
	}
}

func TestValidateRejectsBadSlots(t *testing.T) {
	s := DefaultSettings()
	s.SlotTimes = []string{"9h"}
	if err := s.Validate(); !errors.Is(err, ErrInvalidSettings) {
		t.Fatalf("expected ErrInvalidSettings, got %v", err)
	}
}

func TestValidateSortsSlots(t *testing.T) {
	s := DefaultSettings()
	s.SlotTimes = []string{"15:00", "09:00", "11:30"}
	if err := s.Validate(); err != nil {
		t.Fatalf("validate: %v", err)
	}
	if s.SlotTimes[0] != "09:00" || s.SlotTimes[2] != "15:00" {
		t.Fatalf("expected sorted slots, got %v", s.SlotTimes)
	}
}

func TestApplyDefaultsKeepsConfiguredValues(t *testing.T) {
	s := &Settings{Name: "Estética Sol", SlotTimes: []string{"08:00"}}
	s.ApplyDefaults()
	if s.Name != "Estética Sol" || len(s.SlotTimes) != 1 {
		t.Fatalf("configured fields overwritten: %+v", s)
	}
	if len(s.Services) == 0 || !s.WorkingDays.Monday {
		t.Fatalf("expected defaults for missing fields")
	}
}

func TestIsAdmin(t *testing.T) {
	s := DefaultSettings()
	s.AdminPhones = []string{"+55 11 99999-0000"}
	if !s.IsAdmin("5511999990000") {
		t.Fatalf("expected admin match on digits")
	}
	if s.IsAdmin("") || s.IsAdmin("5511888880000") {
		t.Fatalf("unexpected admin match")
	}
}

func TestFormatPrice(t *testing.T) {
	tests := map[int]string{
		15000:  "R$ 150,00",
		120000: "R$ 1.200,00",
		5:      "R$ 0,05",
	}
	for cents, want := range tests {
		if got := FormatPrice(cents); got != want {
			t.Fatalf("FormatPrice(%d) = %q, want %q", cents, got, want)
		}
	}
}

func TestParseYAML(t *testing.T) {
	data := []byte(`
name: Clínica Teste
timezone: America/Sao_Paulo
services:
  - name: Massagem
    price_cents: 10000
    duration_minutes: 60
working_days:
  saturday: true
slot_times: ["10:00", "08:00"]
faq:
  - id: estacionamento
    keywords: ["estacionamento", "estacionar"]
    answer: Temos estacionamento gratuito.
`)
	s, err := ParseYAML(data)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if s.Name != "Clínica Teste" || len(s.Services) != 1 {
		t.Fatalf("unexpected settings: %+v", s)
	}
	if !s.WorkingDays.Saturday || s.WorkingDays.Monday {
		t.Fatalf("unexpected working days: %+v", s.WorkingDays)
	}
	if s.SlotTimes[0] != "08:00" {
		t.Fatalf("expected sorted slots, got %v", s.SlotTimes)
	}
	if s.ReminderTime != "18:00" {
		t.Fatalf("expected default reminder time, got %q", s.ReminderTime)
	}
	if len(s.FAQ) != 1 || s.FAQ[0].ID != "estacionamento" {
		t.Fatalf("unexpected faq: %+v", s.FAQ)
	}
}

func TestParseYAMLInvalid(t *testing.T) {
	_, err := ParseYAML([]byte("timezone: Mars/Olympus\n"))
	if !errors.Is(err, ErrInvalidSettings) {
		t.Fatalf("expected invalid settings, got %v", err)
	}
}
