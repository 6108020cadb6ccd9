package scheduling

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/wolfman30/clinic-concierge/internal/clinic"
	"github.com/wolfman30/clinic-concierge/internal/intent"
	"github.com/wolfman30/clinic-concierge/internal/textutil"
)

var (
	reAffirmative = regexp.MustCompile(`^(sim|s|ss|claro|isso|isso mesmo|pode|pode ser|pode sim|ok|okay|beleza|blz|certo|perfeito|otimo|confirmo|confirmado|confirma|fechado|bora|quero|quero sim|aceito|combinado|esse mesmo|exato|com certeza)\b`)
	reNegative    = regexp.MustCompile(`^(nao|n|nn|negativo|nenhum|nem)\b|\b(outro horario|outra hora|outro dia|outra data|prefiro outro|prefiro outra|nao posso|nao da|nao consigo|mais tarde|mais cedo)\b`)

	// Bare scheduling words that must not resolve to a catalog entry.
	genericTokens = map[string]struct{}{
		"agendamento": {}, "agendar": {}, "agenda": {}, "marcar": {}, "marcacao": {},
		"horario": {}, "consulta": {}, "quero agendar": {}, "quero marcar": {},
		"servico": {}, "procedimento": {}, "sim": {}, "ok": {}, "oi": {},
	}
)

// IsAffirmative reports whether the reply accepts an offer.
func IsAffirmative(text string) bool {
	n := textutil.Normalize(text)
	return !negativeFirst(n) && reAffirmative.MatchString(n)
}

// IsNegative reports whether the reply declines an offer.
func IsNegative(text string) bool {
	return negativeFirst(textutil.Normalize(text))
}

func negativeFirst(normalized string) bool {
	return reNegative.MatchString(normalized)
}

// Interruption classifies an intent detected while a booking is in progress.
type Interruption int

const (
	// Continue lets the current step handle the message.
	Continue Interruption = iota
	// Escape aborts the booking.
	Escape
	// Aside answers the question and keeps the booking where it paused.
	Aside
)

// Interrupt decides how an intent detected mid-flow is treated.
func Interrupt(in intent.Intent) Interruption {
	switch in {
	case intent.Cancel, intent.HumanHandoff:
		return Escape
	case intent.FAQ, intent.Prices, intent.Services, intent.Hours, intent.Location,
		intent.Payment, intent.Contact, intent.Menu:
		return Aside
	}
	return Continue
}

// ResumeHint reminds the user where the booking paused.
func ResumeHint(st *State) string {
	if !st.Active() {
		return ""
	}
	switch step := st.Step.(type) {
	case SelectService:
		return "Voltando ao agendamento: qual procedimento você deseja?"
	case SelectDate:
		return fmt.Sprintf("Voltando ao agendamento de %s: qual data você prefere?", step.Service.Name)
	case SelectTime:
		return fmt.Sprintf("Voltando ao agendamento: o horário das %s pode ser?", step.Suggested)
	case Confirm:
		return fmt.Sprintf("Voltando ao agendamento: posso confirmar %s às %s?", step.Service.Name, step.Time)
	case WaitlistOffer:
		return "Voltando ao agendamento: quer entrar na lista de espera para esse dia?"
	}
	return ""
}

func servicePrompt(s *clinic.Settings) string {
	var b strings.Builder
	b.WriteString("Qual procedimento você deseja agendar?\n")
	for i, svc := range s.Services {
		fmt.Fprintf(&b, "%d. %s - %s\n", i+1, svc.Name, clinic.FormatPrice(svc.PriceCents))
	}
	b.WriteString("Pode responder com o nome ou o número.")
	return b.String()
}

func datePrompt(service ServiceChoice) string {
	return fmt.Sprintf("Ótima escolha: %s. Para qual dia você gostaria? Pode dizer \"amanhã\", um dia da semana ou uma data como 15/07.", service.Name)
}

const dateFormatHint = "Não consegui entender a data. Pode enviar no formato DD/MM (ex.: 15/07), ou dizer \"hoje\", \"amanhã\" ou o dia da semana?"
