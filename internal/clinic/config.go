// Package clinic provides the typed clinic settings that drive rules, scheduling and replies.
package clinic

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"
	_ "time/tzdata"

	"github.com/wolfman30/clinic-concierge/internal/textutil"
)

// ErrInvalidSettings is returned when settings fail validation at load time.
var ErrInvalidSettings = errors.New("clinic: invalid settings")

// Service is one bookable item of the catalog.
type Service struct {
	Name            string   `json:"name" yaml:"name"`
	PriceCents      int      `json:"price_cents" yaml:"price_cents"`
	DurationMinutes int      `json:"duration_minutes" yaml:"duration_minutes"`
	Aliases         []string `json:"aliases,omitempty" yaml:"aliases,omitempty"`
}

// FAQEntry is a custom question configured by the clinic. Each entry becomes a rule.
type FAQEntry struct {
	ID       string   `json:"id" yaml:"id"`
	Keywords []string `json:"keywords" yaml:"keywords"`
	Answer   string   `json:"answer" yaml:"answer"`
	Priority int      `json:"priority,omitempty" yaml:"priority,omitempty"`
}

// WorkingDays flags which weekdays accept appointments.
type WorkingDays struct {
	Monday    bool `json:"monday" yaml:"monday"`
	Tuesday   bool `json:"tuesday" yaml:"tuesday"`
	Wednesday bool `json:"wednesday" yaml:"wednesday"`
	Thursday  bool `json:"thursday" yaml:"thursday"`
	Friday    bool `json:"friday" yaml:"friday"`
	Saturday  bool `json:"saturday" yaml:"saturday"`
	Sunday    bool `json:"sunday" yaml:"sunday"`
}

// IsOpen returns whether the clinic works on the given weekday.
func (w WorkingDays) IsOpen(day time.Weekday) bool {
	switch day {
	case time.Sunday:
		return w.Sunday
	case time.Monday:
		return w.Monday
	case time.Tuesday:
		return w.Tuesday
	case time.Wednesday:
		return w.Wednesday
	case time.Thursday:
		return w.Thursday
	case time.Friday:
		return w.Friday
	case time.Saturday:
		return w.Saturday
	default:
		return false
	}
}

// HasAny returns true if at least one day is open.
func (w WorkingDays) HasAny() bool {
	return w.Sunday || w.Monday || w.Tuesday || w.Wednesday || w.Thursday || w.Friday || w.Saturday
}

// Settings is the validated clinic configuration.
type Settings struct {
	Name           string      `json:"name" yaml:"name"`
	Address        string      `json:"address" yaml:"address"`
	Phone          string      `json:"phone" yaml:"phone"`
	Email          string      `json:"email" yaml:"email"`
	Timezone       string      `json:"timezone" yaml:"timezone"`
	AdminPhones    []string    `json:"admin_phones" yaml:"admin_phones"`
	AdminEmails    []string    `json:"admin_emails,omitempty" yaml:"admin_emails,omitempty"`
	Services       []Service   `json:"services" yaml:"services"`
	FAQ            []FAQEntry  `json:"faq,omitempty" yaml:"faq,omitempty"`
	WorkingDays    WorkingDays `json:"working_days" yaml:"working_days"`
	SlotTimes      []string    `json:"slot_times" yaml:"slot_times"`
	ReminderTime   string      `json:"reminder_time" yaml:"reminder_time"`
	PaymentMethods []string    `json:"payment_methods" yaml:"payment_methods"`
}

// DefaultSettings returns the settings used when nothing is configured.
func DefaultSettings() *Settings {
	return &Settings{
		Name:     "Clínica Bella Vita",
		Address:  "Rua das Flores, 123 - Centro, São Paulo - SP",
		Phone:    "(11) 4000-1234",
		Email:    "contato@bellavita.com.br",
		Timezone: "America/Sao_Paulo",
		Services: []Service{
			{Name: "Limpeza de Pele", PriceCents: 15000, DurationMinutes: 60, Aliases: []string{"limpeza"}},
			{Name: "Peeling Químico", PriceCents: 25000, DurationMinutes: 45, Aliases: []string{"peeling"}},
			{Name: "Botox", PriceCents: 90000, DurationMinutes: 30, Aliases: []string{"toxina botulinica"}},
			{Name: "Preenchimento Labial", PriceCents: 120000, DurationMinutes: 60, Aliases: []string{"preenchimento", "labios"}},
			{Name: "Drenagem Linfática", PriceCents: 12000, DurationMinutes: 50, Aliases: []string{"drenagem"}},
		},
		WorkingDays: WorkingDays{
			Monday: true, Tuesday: true, Wednesday: true, Thursday: true, Friday: true,
		},
		SlotTimes:      []string{"09:00", "10:00", "11:00", "14:00", "15:00", "16:00", "17:00"},
		ReminderTime:   "18:00",
		PaymentMethods: []string{"Pix", "cartão de crédito", "cartão de débito", "dinheiro"},
	}
}

// ApplyDefaults fills every zero-valued field from DefaultSettings.
func (s *Settings) ApplyDefaults() {
	def := DefaultSettings()
	if strings.TrimSpace(s.Name) == "" {
		s.Name = def.Name
	}
	if strings.TrimSpace(s.Timezone) == "" {
		s.Timezone = def.Timezone
	}
	if len(s.Services) == 0 {
		s.Services = def.Services
	}
	if !s.WorkingDays.HasAny() {
		s.WorkingDays = def.WorkingDays
	}
	if len(s.SlotTimes) == 0 {
		s.SlotTimes = def.SlotTimes
	}
	if strings.TrimSpace(s.ReminderTime) == "" {
		s.ReminderTime = def.ReminderTime
	}
	if len(s.PaymentMethods) == 0 {
		s.PaymentMethods = def.PaymentMethods
	}
	if s.Address == "" {
		s.Address = def.Address
	}
	if s.Phone == "" {
		s.Phone = def.Phone
	}
	if s.Email == "" {
		s.Email = def.Email
	}
}

// Validate checks the settings shape and sorts the slot list chronologically.
func (s *Settings) Validate() error {
	if _, err := time.LoadLocation(s.Timezone); err != nil {
		return fmt.Errorf("%w: timezone %q: %v", ErrInvalidSettings, s.Timezone, err)
	}
	for i, svc := range s.Services {
		if strings.TrimSpace(svc.Name) == "" {
			return fmt.Errorf("%w: service %d has no name", ErrInvalidSettings, i)
		}
		if svc.PriceCents < 0 {
			return fmt.Errorf("%w: service %q has negative price", ErrInvalidSettings, svc.Name)
		}
		if svc.DurationMinutes <= 0 {
			return fmt.Errorf("%w: service %q needs a positive duration", ErrInvalidSettings, svc.Name)
		}
	}
	for _, slot := range s.SlotTimes {
		if _, err := time.Parse("15:04", slot); err != nil {
			return fmt.Errorf("%w: slot %q is not HH:MM", ErrInvalidSettings, slot)
		}
	}
	if _, err := time.Parse("15:04", s.ReminderTime); err != nil {
		return fmt.Errorf("%w: reminder time %q is not HH:MM", ErrInvalidSettings, s.ReminderTime)
	}
	for _, faq := range s.FAQ {
		if faq.Answer == "" || len(faq.Keywords) == 0 {
			return fmt.Errorf("%w: faq %q needs keywords and an answer", ErrInvalidSettings, faq.ID)
		}
	}
	sort.Strings(s.SlotTimes)
	return nil
}

// Prepare applies defaults and validates. Every loader calls it once.
func (s *Settings) Prepare() error {
	s.ApplyDefaults()
	return s.Validate()
}

// Location returns the clinic time zone, UTC when it cannot be loaded.
func (s *Settings) Location() *time.Location {
	loc, err := time.LoadLocation(s.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

// IsWorkingDay reports whether appointments are accepted on the date.
func (s *Settings) IsWorkingDay(t time.Time) bool {
	return s.WorkingDays.IsOpen(t.In(s.Location()).Weekday())
}

// NextWorkingDay returns the first open day strictly after t.
func (s *Settings) NextWorkingDay(t time.Time) (time.Time, bool) {
	local := t.In(s.Location())
	for i := 1; i <= 7; i++ {
		candidate := local.AddDate(0, 0, i)
		if s.WorkingDays.IsOpen(candidate.Weekday()) {
			return time.Date(candidate.Year(), candidate.Month(), candidate.Day(), 0, 0, 0, 0, local.Location()), true
		}
	}
	return time.Time{}, false
}

// IsAdmin reports whether phone belongs to a configured administrator.
func (s *Settings) IsAdmin(phone string) bool {
	digits := textutil.Digits(phone)
	if digits == "" {
		return false
	}
	for _, admin := range s.AdminPhones {
		if textutil.Digits(admin) == digits {
			return true
		}
	}
	return false
}

// FindService resolves a service mentioned anywhere in the text by name or alias.
// Longer names win so "preenchimento labial" beats a shorter alias.
func (s *Settings) FindService(text string) (Service, bool) {
	normalized := textutil.Normalize(text)
	if normalized == "" {
		return Service{}, false
	}
	best := -1
	bestLen := 0
	for i, svc := range s.Services {
		for _, name := range append([]string{svc.Name}, svc.Aliases...) {
			key := textutil.Normalize(name)
			if key == "" || !strings.Contains(normalized, key) {
				continue
			}
			if len(key) > bestLen {
				best, bestLen = i, len(key)
			}
		}
	}
	if best < 0 {
		return Service{}, false
	}
	return s.Services[best], true
}

// ServiceByName returns the service with an exactly matching normalized name.
func (s *Settings) ServiceByName(name string) (Service, bool) {
	key := textutil.Normalize(name)
	for _, svc := range s.Services {
		if textutil.Normalize(svc.Name) == key {
			return svc, true
		}
	}
	return Service{}, false
}

// FormatPrice renders cents as Brazilian currency, e.g. "R$ 1.200,00".
func FormatPrice(cents int) string {
	reais := cents / 100
	centavos := cents % 100
	digits := fmt.Sprintf("%d", reais)
	var grouped strings.Builder
	for i, r := range digits {
		if i > 0 && (len(digits)-i)%3 == 0 {
			grouped.WriteByte('.')
		}
		grouped.WriteRune(r)
	}
	return fmt.Sprintf("R$ %s,%02d", grouped.String(), centavos)
}
