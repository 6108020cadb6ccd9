// Package classifier is the keyword heuristic tier of intent resolution.
package classifier

import (
	"regexp"

	"github.com/wolfman30/clinic-concierge/internal/intent"
	"github.com/wolfman30/clinic-concierge/internal/textutil"
	"github.com/wolfman30/clinic-concierge/pkg/logging"
)

const (
	// MinConfidence is the lowest confidence a detection is returned with.
	MinConfidence = 70

	baseConfidence    = 70
	weekdayConfidence = 75
	timeConfidence    = 70
	longMessageChars  = 50
)

// Source tells which detector produced a result.
type Source string

const (
	SourceKeyword Source = "keyword"
	SourceWeekday Source = "weekday"
	SourceTime    Source = "time"
)

// Detection is the classifier result. Detected is false when nothing qualified.
type Detection struct {
	Detected   bool
	Intent     intent.Intent
	Confidence int
	Matched    string
	Source     Source
}

type intentPatterns struct {
	intent   intent.Intent
	patterns []*regexp.Regexp
}

// exactIntents are short forms that only count when they make up most of the message.
var exactIntents = map[intent.Intent]bool{
	intent.Greeting:   true,
	intent.ConfirmYes: true,
	intent.ConfirmNo:  true,
	intent.Thanks:     true,
}

func mustAll(exprs ...string) []*regexp.Regexp {
	out := make([]*regexp.Regexp, len(exprs))
	for i, e := range exprs {
		out[i] = regexp.MustCompile(e)
	}
	return out
}

// Patterns run against normalized text (lowercase, no diacritics).
var defaultTable = []intentPatterns{
	{intent.HumanHandoff, mustAll(
		`\b(atendente|atendimento humano|pessoa de verdade|gerente|responsavel)\b`,
		`\b(falar|conversar) com (um |uma )?(humano|pessoa)\b`,
		`\bfala(r)? com (alguem|voce|uma pessoa)\b`,
	)},
	{intent.Cancel, mustAll(
		`\b(cancel\w*|desmarc\w*|cancelr|cancelae)\b`,
		`\bnao (vou|vai) (poder|dar para|dar pra) (ir|comparecer)\b`,
	)},
	{intent.Reschedule, mustAll(
		`\b(remarc\w*|reagend\w*|trocar (o )?(dia|horario)|mudar (o )?(dia|horario))\b`,
	)},
	{intent.ScheduleNew, mustAll(
		`\b(agend\w*|ajend\w*|agnedar|marcar|marca|reservar|reserva)\b`,
		`\b(quero|queria|gostaria de|preciso|posso) (fazer|ir|uma consulta|um horario|um procedimento)\b`,
		`\b(tem|ha|existe) (vaga|horario|disponibilidade)\b`,
	)},
	{intent.MyAppointments, mustAll(
		`\b(meus? (agendamentos?|horarios?)|minhas? consultas?)\b`,
	)},
	{intent.Prices, mustAll(
		`\b(precos?|presos?|valor(es)?|quanto|caro|barato|promocao|desconto)\b`,
	)},
	{intent.Services, mustAll(
		`\b(servicos?|procedimentos?|tratamentos?|o que (voces )?(fazem|oferecem))\b`,
	)},
	{intent.Hours, mustAll(
		`\b(abre|abrem|fecha|fecham|funciona|funcionam|expediente)\b`,
	)},
	{intent.Location, mustAll(
		`\b(onde|endereco|endereso|localizacao|local|mapa)\b`,
	)},
	{intent.Payment, mustAll(
		`\b(pix|cartao|credito|debito|boleto|parcel\w*|pagamento|pagar)\b`,
	)},
	{intent.ConfirmYes, mustAll(
		`^(sim|s|ss|sim sim|claro|isso|isso mesmo|pode ser|pode|ok|okay|beleza|blz|certo|perfeito|com certeza|confirmo|confirmado|quero sim|fechado|bora|otimo|exato)[!. ]*$`,
	)},
	{intent.ConfirmNo, mustAll(
		`^(nao|n|nn|nops|negativo|nem|prefiro nao|agora nao|nao quero|nao obrigado|nao obrigada)[!. ]*$`,
	)},
	{intent.Thanks, mustAll(
		`^(obg|obgd|obrigad[oa]|muito obrigad[oa]|vlw|valeu|grato|grata|thanks)[!. ]*$`,
	)},
	{intent.Greeting, mustAll(
		`^(oi+e?|ola|opa|hey|salve|eai|e ai|bom dia|boa tarde|boa noite)[!,. ]*$`,
	)},
	{intent.Farewell, mustAll(
		`^(tchau|xau|flw|bye|ate mais|ate logo|ate)[!. ]*$`,
	)},
	{intent.SmallTalk, mustAll(
		`\b(tudo bem|tudo bom|como vai|como voce esta|beleza)\b`,
	)},
}

var (
	reWeekday = regexp.MustCompile(`\b(segunda|terca|quarta|quinta|sexta|sabado|domingo)(-feira| feira)?\b`)
	reClock   = regexp.MustCompile(`\b([01]?\d|2[0-3])(?::([0-5]\d)|h([0-5]\d)?)`)
	reAsHour  = regexp.MustCompile(`\b(?:as|a partir das|depois das|antes das) ([01]?\d|2[0-3])\b`)
	rePeriod  = regexp.MustCompile(`\b(de manha|pela manha|a tarde|de tarde|pela tarde|a noite|de noite)\b`)
)

// Classifier holds the ordered intent pattern table.
type Classifier struct {
	table  []intentPatterns
	logger *logging.Logger
}

// New creates a classifier over the default pattern table.
func New(logger *logging.Logger) *Classifier {
	if logger == nil {
		logger = logging.Default()
	}
	return &Classifier{table: defaultTable, logger: logger}
}

// Detect classifies a raw message. It is a pure function of the text.
func (c *Classifier) Detect(text string) Detection {
	normalized := textutil.Normalize(text)
	if normalized == "" {
		return Detection{}
	}

	if d, hit := c.detectTable(normalized); hit {
		if d.Confidence >= MinConfidence {
			return d
		}
		c.logger.Debug("keyword detection below threshold", "intent", d.Intent, "confidence", d.Confidence)
	}

	if m := reWeekday.FindString(normalized); m != "" {
		return Detection{Detected: true, Intent: intent.ScheduleNew, Confidence: weekdayConfidence, Matched: m, Source: SourceWeekday}
	}
	if m := findTime(normalized); m != "" {
		return Detection{Detected: true, Intent: intent.ScheduleNew, Confidence: timeConfidence, Matched: m, Source: SourceTime}
	}
	return Detection{}
}

func (c *Classifier) detectTable(normalized string) (Detection, bool) {
	for _, entry := range c.table {
		for _, p := range entry.patterns {
			m := p.FindString(normalized)
			if m == "" {
				continue
			}
			return Detection{
				Detected:   true,
				Intent:     entry.intent,
				Confidence: score(entry.intent, len(m), len(normalized)),
				Matched:    m,
				Source:     SourceKeyword,
			}, true
		}
	}
	return Detection{}, false
}

func score(in intent.Intent, matchLen, msgLen int) int {
	coverage := float64(matchLen) / float64(msgLen)
	confidence := baseConfidence
	switch {
	case coverage > 0.8:
		confidence += 20
	case coverage > 0.5:
		confidence += 10
	}
	if exactIntents[in] && coverage > 0.8 {
		confidence += 10
	}
	if msgLen > longMessageChars && coverage < 0.3 {
		confidence -= 20
	}
	if confidence > 100 {
		confidence = 100
	}
	return confidence
}

func findTime(normalized string) string {
	if m := reClock.FindString(normalized); m != "" {
		return m
	}
	if m := reAsHour.FindString(normalized); m != "" {
		return m
	}
	return rePeriod.FindString(normalized)
}
