package rules

import (
	"fmt"
	"strings"
	"time"

	"github.com/wolfman30/clinic-concierge/internal/clinic"
)

var weekdayNames = map[time.Weekday]string{
	time.Monday:    "segunda",
	time.Tuesday:   "terça",
	time.Wednesday: "quarta",
	time.Thursday:  "quinta",
	time.Friday:    "sexta",
	time.Saturday:  "sábado",
	time.Sunday:    "domingo",
}

// WeekdayName returns the Portuguese short weekday name.
func WeekdayName(d time.Weekday) string { return weekdayNames[d] }

func renderGreeting(s *clinic.Settings) string {
	return fmt.Sprintf("Olá! Seja bem-vindo(a) à %s. Posso ajudar com agendamentos, preços, horários e endereço. Como posso ajudar?", s.Name)
}

func renderPrices(s *clinic.Settings) string {
	var b strings.Builder
	b.WriteString("Nossos valores:\n")
	for _, svc := range s.Services {
		fmt.Fprintf(&b, "• %s: %s\n", svc.Name, clinic.FormatPrice(svc.PriceCents))
	}
	b.WriteString("Quer agendar algum desses procedimentos?")
	return b.String()
}

func renderServices(s *clinic.Settings) string {
	var b strings.Builder
	b.WriteString("Realizamos os seguintes procedimentos:\n")
	for i, svc := range s.Services {
		fmt.Fprintf(&b, "%d. %s (%d min)\n", i+1, svc.Name, svc.DurationMinutes)
	}
	b.WriteString("Posso agendar algum para você?")
	return b.String()
}

func renderHours(s *clinic.Settings) string {
	days := OpenDays(s)
	if len(s.SlotTimes) == 0 {
		return fmt.Sprintf("Atendemos %s.", days)
	}
	return fmt.Sprintf("Atendemos %s, com horários entre %s e %s.", days, s.SlotTimes[0], s.SlotTimes[len(s.SlotTimes)-1])
}

func renderLocation(s *clinic.Settings) string {
	return fmt.Sprintf("Estamos na %s. Te esperamos!", s.Address)
}

func renderPayment(s *clinic.Settings) string {
	return fmt.Sprintf("Aceitamos %s.", joinPT(s.PaymentMethods))
}

func renderContact(s *clinic.Settings) string {
	return fmt.Sprintf("Você pode falar com a gente pelo telefone %s ou pelo e-mail %s.", s.Phone, s.Email)
}

func renderMenu(*clinic.Settings) string {
	return "Posso ajudar com:\n• Agendar, remarcar ou cancelar um horário\n• Serviços e preços\n• Horário de funcionamento e endereço\n• Formas de pagamento\n• Falar com um atendente\nÉ só me dizer!"
}

func renderThanks(*clinic.Settings) string {
	return "Por nada! Se precisar de mais alguma coisa, é só chamar."
}

func renderFarewell(s *clinic.Settings) string {
	return fmt.Sprintf("Até logo! A %s agradece o contato.", s.Name)
}

// OpenDays describes the working days, e.g. "de segunda a sexta" or "segunda, quarta e sábado".
func OpenDays(s *clinic.Settings) string {
	order := []time.Weekday{time.Monday, time.Tuesday, time.Wednesday, time.Thursday, time.Friday, time.Saturday, time.Sunday}
	var open []time.Weekday
	for _, d := range order {
		if s.WorkingDays.IsOpen(d) {
			open = append(open, d)
		}
	}
	if len(open) == 0 {
		return "somente com horário combinado"
	}
	contiguous := true
	for i := 1; i < len(open); i++ {
		if open[i] != open[i-1]+1 {
			contiguous = false
			break
		}
	}
	if contiguous && len(open) > 2 {
		return fmt.Sprintf("de %s a %s", weekdayNames[open[0]], weekdayNames[open[len(open)-1]])
	}
	names := make([]string, len(open))
	for i, d := range open {
		names[i] = weekdayNames[d]
	}
	return joinPT(names)
}

func joinPT(items []string) string {
	switch len(items) {
	case 0:
		return ""
	case 1:
		return items[0]
	default:
		return strings.Join(items[:len(items)-1], ", ") + " e " + items[len(items)-1]
	}
}
