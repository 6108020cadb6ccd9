// Package humanize adds light variation to bot replies.
package humanize

import (
	"math/rand/v2"
	"strings"
	"sync"
	"time"
	"unicode"
	"unicode/utf8"

	"github.com/wolfman30/clinic-concierge/internal/textutil"
)

// Emotion is the tone detected in the user's message.
type Emotion string

const (
	EmotionNone        Emotion = ""
	EmotionFrustration Emotion = "frustration"
	EmotionUrgency     Emotion = "urgency"
)

var (
	frustrationWords = []string{"absurdo", "ridiculo", "pessimo", "horrivel", "irritad", "chatead", "cansad", "ninguem responde", "demora", "nao funciona", "decepcionad", "raiva"}
	urgencyWords     = []string{"urgente", "urgencia", "rapido", "agora mesmo", "o quanto antes", "emergencia", "hoje ainda", "socorro"}

	empathyPrefixes = map[Emotion][]string{
		EmotionFrustration: {
			"Sinto muito pelo transtorno.",
			"Entendo sua frustração e quero ajudar.",
			"Peço desculpas pelo incômodo.",
		},
		EmotionUrgency: {
			"Entendo a urgência, vamos resolver rapidinho.",
			"Certo, vou agilizar para você.",
		},
	}

	connectors = []string{"Certo!", "Perfeito!", "Claro!", "Entendi!", "Ótimo!"}

	// Leading words that already read as a connector.
	connectorLike = []string{"certo", "perfeito", "claro", "entendi", "otimo", "ola", "oi", "bom dia", "boa tarde", "boa noite", "tudo bem", "tudo certo", "sem problemas", "pronto", "poxa", "obrigad", "sinto", "desculpe", "que bom",
		"combinado", "fechado", "anotado", "ate logo", "ate breve", "qualquer coisa", "tenha um", "por nada", "de nada", "imagina", "disponha"}

	Confirmations = []string{"Combinado!", "Fechado!", "Tudo certo!", "Anotado!"}
	Farewells     = []string{"Até logo!", "Até breve!", "Qualquer coisa, é só chamar!", "Tenha um ótimo dia!"}
	Thanks        = []string{"Por nada!", "De nada!", "Imagina!", "Disponha!"}
)

// DetectEmotion looks for frustration first, then urgency.
func DetectEmotion(text string) Emotion {
	n := textutil.Normalize(text)
	switch {
	case textutil.ContainsAny(n, frustrationWords...):
		return EmotionFrustration
	case textutil.ContainsAny(n, urgencyWords...):
		return EmotionUrgency
	}
	return EmotionNone
}

// TimeGreeting returns "Bom dia", "Boa tarde" or "Boa noite" for the hour of t.
func TimeGreeting(t time.Time) string {
	switch h := t.Hour(); {
	case h >= 5 && h < 12:
		return "Bom dia"
	case h >= 12 && h < 18:
		return "Boa tarde"
	default:
		return "Boa noite"
	}
}

// Vary swaps a stock opening phrase for another one from the same bank, and an
// opening "Olá!" for the greeting that fits the hour of now.
func (h *Humanizer) Vary(response string, now time.Time) string {
	if rest, ok := strings.CutPrefix(response, "Olá!"); ok {
		return TimeGreeting(now) + "!" + rest
	}
	for _, bank := range [][]string{Confirmations, Farewells, Thanks} {
		for _, phrase := range bank {
			if rest, ok := strings.CutPrefix(response, phrase); ok {
				return h.Pick(bank) + rest
			}
		}
	}
	return response
}

// Humanizer is safe for concurrent use.
type Humanizer struct {
	mu         sync.Mutex
	rng        *rand.Rand
	connectorP float64
}

// Option customizes a Humanizer.
type Option func(*Humanizer)

// WithRand fixes the random source, e.g. rand.New(rand.NewPCG(1, 2)) in tests.
func WithRand(r *rand.Rand) Option {
	return func(h *Humanizer) { h.rng = r }
}

// WithConnectorProbability sets how often a connector is prepended, 0 to 1.
func WithConnectorProbability(p float64) Option {
	return func(h *Humanizer) {
		if p < 0 {
			p = 0
		}
		if p > 1 {
			p = 1
		}
		h.connectorP = p
	}
}

func New(opts ...Option) *Humanizer {
	h := &Humanizer{
		rng:        rand.New(rand.NewPCG(uint64(time.Now().UnixNano()), 0x9e3779b97f4a7c15)),
		connectorP: 0.3,
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Humanize decorates response based on the user's original message.
func (h *Humanizer) Humanize(original, response string) string {
	response = strings.TrimSpace(response)
	if response == "" {
		return response
	}
	if emotion := DetectEmotion(original); emotion != EmotionNone {
		return h.Pick(empathyPrefixes[emotion]) + " " + response
	}
	if startsWithConnector(response) {
		return response
	}
	h.mu.Lock()
	roll := h.rng.Float64()
	h.mu.Unlock()
	if roll < h.connectorP {
		return h.Pick(connectors) + " " + response
	}
	return response
}

// Pick returns a random phrase from bank.
func (h *Humanizer) Pick(bank []string) string {
	if len(bank) == 0 {
		return ""
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	return bank[h.rng.IntN(len(bank))]
}

func startsWithConnector(response string) bool {
	r, _ := utf8.DecodeRuneInString(response)
	if isEmoji(r) {
		return true
	}
	n := textutil.Normalize(response)
	for _, word := range connectorLike {
		if strings.HasPrefix(n, word) {
			return true
		}
	}
	return false
}

func isEmoji(r rune) bool {
	return r >= 0x1F300 || (r >= 0x2600 && r <= 0x27BF) || (r != utf8.RuneError && unicode.Is(unicode.So, r))
}
