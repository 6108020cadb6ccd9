// Package rules is the deterministic first tier of intent resolution.
//
// Rules are rebuilt from the clinic settings on every call, so catalog,
// price and FAQ edits apply to the next message without a cache to invalidate.
package rules

import (
	"fmt"
	"regexp"
	"sort"
	"strings"

	"github.com/wolfman30/clinic-concierge/internal/clinic"
	"github.com/wolfman30/clinic-concierge/internal/intent"
	"github.com/wolfman30/clinic-concierge/internal/statemachine"
	"github.com/wolfman30/clinic-concierge/internal/textutil"
)

// DefaultFAQPriority applies to FAQ entries that do not set one.
const DefaultFAQPriority = 55

// Rule is a prioritized matcher. An empty Response means the caller computes the reply.
type Rule struct {
	ID       string
	Priority int
	Keywords []string
	Patterns []*regexp.Regexp
	Intent   intent.Intent
	Response string
	Event    statemachine.Event
	Active   bool
}

// Matches reports whether the rule fires for an already normalized message.
func (r Rule) Matches(normalized string) bool {
	if !r.Active || normalized == "" {
		return false
	}
	for _, kw := range r.Keywords {
		if kw != "" && strings.Contains(normalized, kw) {
			return true
		}
	}
	for _, p := range r.Patterns {
		if p.MatchString(normalized) {
			return true
		}
	}
	return false
}

// Result is the outcome of a match. Matched is false when no rule fired.
type Result struct {
	Matched  bool
	RuleID   string
	Intent   intent.Intent
	Response string
	Event    statemachine.Event
	Priority int
}

var (
	reHandoff     = regexp.MustCompile(`\b(atendente|recepcionista|pessoa real|(falar|conversar) com (um |uma )?(humano|pessoa))\b`)
	reCancel      = regexp.MustCompile(`\b(cancelar|cancela|cancelamento|desmarcar)\b`)
	reSchedule    = regexp.MustCompile(`\b(agendar|agenda|marcar|marcacao|(fazer|novo) (um )?agendamento)\b`)
	reReschedule  = regexp.MustCompile(`\b(remarcar|reagendar|remarcacao)\b`)
	reGreeting    = regexp.MustCompile(`^(oi+|ola|opa|eai|e ai|bom dia|boa tarde|boa noite|hey|hello)\b`)
	reMenu        = regexp.MustCompile(`^(menu|opcoes|ajuda|inicio)[!?. ]*$`)
	reThanks      = regexp.MustCompile(`\b(obrigad[oa]s?|brigad[oa]|valeu|agradeco)\b`)
	reFarewell    = regexp.MustCompile(`\b(tchau|ate logo|ate mais|ate breve|falou)\b`)
	rePriceAmount = regexp.MustCompile(`\bquanto (custa|fica|sai|e)\b`)
)

type ruleSpec struct {
	id       string
	priority int
	keywords []string
	patterns []*regexp.Regexp
	intent   intent.Intent
	event    statemachine.Event
	respond  func(*clinic.Settings) string
}

func staticSpecs() []ruleSpec {
	return []ruleSpec{
		{id: "human_handoff", priority: 100, intent: intent.HumanHandoff, event: statemachine.EventRequestHuman,
			keywords: []string{"falar com alguem", "falar com uma pessoa", "atendimento humano", "quero um atendente"},
			patterns: []*regexp.Regexp{reHandoff}},
		{id: "cancel", priority: 95, intent: intent.Cancel, event: statemachine.EventCancel,
			keywords: []string{"nao vou poder ir", "nao vou conseguir ir"},
			patterns: []*regexp.Regexp{reCancel}},
		{id: "schedule", priority: 90, intent: intent.ScheduleNew, event: statemachine.EventStartScheduling,
			keywords: []string{"tem vaga", "tem horario", "horario disponivel", "horarios disponiveis", "quero fazer um procedimento"},
			patterns: []*regexp.Regexp{reSchedule}},
		{id: "reschedule", priority: 88, intent: intent.Reschedule, event: statemachine.EventStartScheduling,
			keywords: []string{"mudar o horario", "trocar o horario", "mudar minha consulta", "mudar o dia", "trocar o dia"},
			patterns: []*regexp.Regexp{reReschedule}},
		{id: "my_appointments", priority: 85, intent: intent.MyAppointments,
			keywords: []string{"meus agendamentos", "meu agendamento", "minhas consultas", "minha consulta", "meu horario", "tenho consulta", "tenho horario marcado"}},
		{id: "prices", priority: 70, intent: intent.Prices, event: statemachine.EventAnswerFAQ,
			keywords: []string{"preco", "valor", "custa", "tabela", "orcamento"},
			patterns: []*regexp.Regexp{rePriceAmount}, respond: renderPrices},
		{id: "services", priority: 68, intent: intent.Services, event: statemachine.EventAnswerFAQ,
			keywords: []string{"servicos", "procedimentos", "tratamentos", "o que voces fazem", "o que voces oferecem"},
			respond: renderServices},
		{id: "hours", priority: 66, intent: intent.Hours, event: statemachine.EventAnswerFAQ,
			keywords: []string{"horario de funcionamento", "que horas abre", "que horas fecha", "funcionam", "abrem", "aberto", "expediente"},
			respond: renderHours},
		{id: "location", priority: 64, intent: intent.Location, event: statemachine.EventAnswerFAQ,
			keywords: []string{"endereco", "onde fica", "onde voces ficam", "localizacao", "como chegar"},
			respond: renderLocation},
		{id: "payment", priority: 62, intent: intent.Payment, event: statemachine.EventAnswerFAQ,
			keywords: []string{"pagamento", "pagar", "pix", "cartao", "parcela", "parcelar"},
			respond: renderPayment},
		{id: "contact", priority: 60, intent: intent.Contact, event: statemachine.EventAnswerFAQ,
			keywords: []string{"telefone", "contato", "email", "e-mail", "whatsapp"},
			respond: renderContact},
		{id: "greeting", priority: 50, intent: intent.Greeting,
			patterns: []*regexp.Regexp{reGreeting}, respond: renderGreeting},
		{id: "menu", priority: 45, intent: intent.Menu,
			keywords: []string{"menu", "opcoes"},
			patterns: []*regexp.Regexp{reMenu}, respond: renderMenu},
		{id: "thanks", priority: 40, intent: intent.Thanks,
			patterns: []*regexp.Regexp{reThanks}, respond: renderThanks},
		{id: "farewell", priority: 40, intent: intent.Farewell, event: statemachine.EventEnd,
			patterns: []*regexp.Regexp{reFarewell}, respond: renderFarewell},
	}
}

// Build returns the static rules followed by one rule per FAQ entry, sorted by
// descending priority. The sort is stable so static rules precede FAQ rules on ties.
func Build(s *clinic.Settings) []Rule {
	specs := staticSpecs()
	out := make([]Rule, 0, len(specs)+len(s.FAQ))
	for _, spec := range specs {
		r := Rule{
			ID:       spec.id,
			Priority: spec.priority,
			Keywords: normalizeAll(spec.keywords),
			Patterns: spec.patterns,
			Intent:   spec.intent,
			Event:    spec.event,
			Active:   true,
		}
		if spec.respond != nil {
			r.Response = spec.respond(s)
		}
		out = append(out, r)
	}
	for i, faq := range s.FAQ {
		id := faq.ID
		if id == "" {
			id = fmt.Sprintf("%d", i+1)
		}
		priority := faq.Priority
		if priority == 0 {
			priority = DefaultFAQPriority
		}
		out = append(out, Rule{
			ID:       "faq_" + id,
			Priority: priority,
			Keywords: normalizeAll(faq.Keywords),
			Intent:   intent.FAQ,
			Response: faq.Answer,
			Event:    statemachine.EventAnswerFAQ,
			Active:   true,
		})
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Priority > out[j].Priority })
	return out
}

// MatchRules returns the first rule in list order that fires for text.
func MatchRules(rs []Rule, text string) Result {
	normalized := textutil.Normalize(text)
	for _, r := range rs {
		if r.Matches(normalized) {
			return r.result()
		}
	}
	return Result{}
}

// Match builds the rule set for s and matches text against it.
func Match(text string, s *clinic.Settings) Result {
	return MatchRules(Build(s), text)
}

// Lookup returns the highest-priority active rule for an intent so intents from
// other resolvers reuse the same responses and events.
func Lookup(rs []Rule, in intent.Intent) (Result, bool) {
	for _, r := range rs {
		if r.Active && r.Intent == in {
			return r.result(), true
		}
	}
	return Result{}, false
}

func (r Rule) result() Result {
	return Result{
		Matched:  true,
		RuleID:   r.ID,
		Intent:   r.Intent,
		Response: r.Response,
		Event:    r.Event,
		Priority: r.Priority,
	}
}

func normalizeAll(in []string) []string {
	out := make([]string, 0, len(in))
	for _, s := range in {
		if n := textutil.Normalize(s); n != "" {
			out = append(out, n)
		}
	}
	return out
}
