package conversation

import (
	"context"
	"regexp"

	"github.com/wolfman30/clinic-concierge/internal/ai"
	"github.com/wolfman30/clinic-concierge/internal/classifier"
	"github.com/wolfman30/clinic-concierge/internal/clinic"
	"github.com/wolfman30/clinic-concierge/internal/convctx"
	"github.com/wolfman30/clinic-concierge/internal/intent"
	"github.com/wolfman30/clinic-concierge/internal/rules"
	"github.com/wolfman30/clinic-concierge/internal/scheduling"
	"github.com/wolfman30/clinic-concierge/internal/statemachine"
	"github.com/wolfman30/clinic-concierge/internal/textutil"
)

// Resolver names reported in debug output and metrics.
const (
	ResolverReminder   = "reminder"
	ResolverPending    = "pending_cancel"
	ResolverRules      = "rules"
	ResolverSmallTalk  = "small_talk"
	ResolverKeyword    = "keyword"
	ResolverAI         = "ai"
	ResolverAdmin      = "admin"
	ResolverFlow       = "scheduling"
	ResolverUnresolved = "unresolved"
)

// Resolution is what a resolver concluded about one message. It carries no side effects.
type Resolution struct {
	Resolver   string
	Intent     intent.Intent
	Confidence int
	RuleID     string
	Response   string
	Event      statemachine.Event
	Entities   ai.Entities
	Err        error
}

// turn is the read-only input every resolver sees.
type turn struct {
	text     string
	settings *clinic.Settings
	rules    []rules.Rule
	state    statemachine.State
	cc       *convctx.Context
	snapshot func() ai.Snapshot
}

func (t *turn) inFlow() bool {
	return t.state == statemachine.SchedulingFlow
}

type resolver interface {
	name() string
	resolve(ctx context.Context, t *turn) (Resolution, bool)
}

// fold runs resolvers in order and returns the first hit.
func fold(ctx context.Context, rs []resolver, t *turn) (Resolution, bool) {
	for _, r := range rs {
		if res, ok := r.resolve(ctx, t); ok {
			res.Resolver = r.name()
			return res, true
		}
	}
	return Resolution{Resolver: ResolverUnresolved, Intent: intent.Unknown}, false
}

// reminderResolver answers a yes/no to the reminder sent the evening before.
type reminderResolver struct{}

func (reminderResolver) name() string { return ResolverReminder }

func (reminderResolver) resolve(_ context.Context, t *turn) (Resolution, bool) {
	if t.cc.ReminderPending == "" || t.inFlow() {
		return Resolution{}, false
	}
	switch {
	case scheduling.IsNegative(t.text):
		return Resolution{Intent: intent.ConfirmNo, Confidence: 100}, true
	case scheduling.IsAffirmative(t.text):
		return Resolution{Intent: intent.ConfirmYes, Confidence: 100}, true
	}
	return Resolution{}, false
}

// pendingCancelResolver answers the "confirm cancellation?" question.
type pendingCancelResolver struct{}

func (pendingCancelResolver) name() string { return ResolverPending }

func (pendingCancelResolver) resolve(_ context.Context, t *turn) (Resolution, bool) {
	if t.cc.PendingCancel == "" || t.state != statemachine.ConfirmationPending {
		return Resolution{}, false
	}
	switch {
	case scheduling.IsNegative(t.text):
		return Resolution{Intent: intent.ConfirmNo, Confidence: 100, Event: statemachine.EventReject}, true
	case scheduling.IsAffirmative(t.text):
		return Resolution{Intent: intent.ConfirmYes, Confidence: 100, Event: statemachine.EventConfirm}, true
	}
	return Resolution{}, false
}

type rulesResolver struct{}

func (rulesResolver) name() string { return ResolverRules }

func (rulesResolver) resolve(_ context.Context, t *turn) (Resolution, bool) {
	m := rules.MatchRules(t.rules, t.text)
	if !m.Matched {
		return Resolution{}, false
	}
	return Resolution{
		Intent:     m.Intent,
		Confidence: 100,
		RuleID:     m.RuleID,
		Response:   m.Response,
		Event:      m.Event,
	}, true
}

var reSmallTalk = regexp.MustCompile(`^(tudo (bem|bom|certo|joia)|como vai|como voce (esta|vai)|e voce|quem e voce|voce e (um )?(robo|bot|humano|uma pessoa)|qual (o )?seu nome)[?!. ]*$`)

// smallTalkResolver only catches short phatic messages; anything longer falls through.
type smallTalkResolver struct{}

func (smallTalkResolver) name() string { return ResolverSmallTalk }

func (smallTalkResolver) resolve(_ context.Context, t *turn) (Resolution, bool) {
	if !reSmallTalk.MatchString(textutil.Normalize(t.text)) {
		return Resolution{}, false
	}
	return Resolution{Intent: intent.SmallTalk, Confidence: 100, Event: statemachine.EventAttend}, true
}

type keywordResolver struct {
	classifier *classifier.Classifier
}

func (keywordResolver) name() string { return ResolverKeyword }

func (r keywordResolver) resolve(_ context.Context, t *turn) (Resolution, bool) {
	if r.classifier == nil {
		return Resolution{}, false
	}
	d := r.classifier.Detect(t.text)
	if !d.Detected {
		return Resolution{}, false
	}
	res := Resolution{Intent: d.Intent, Confidence: d.Confidence}
	if canned, ok := rules.Lookup(t.rules, d.Intent); ok {
		res.RuleID = canned.RuleID
		res.Response = canned.Response
		res.Event = canned.Event
	}
	return res, true
}

// Analyzer is the AI classifier collaborator.
type Analyzer interface {
	Analyze(ctx context.Context, text string, snap ai.Snapshot) (ai.Analysis, error)
}

// aiResolver always resolves when a model is configured; the confidence gate
// is applied by the engine, not here.
type aiResolver struct {
	analyzer Analyzer
}

func (aiResolver) name() string { return ResolverAI }

func (r aiResolver) resolve(ctx context.Context, t *turn) (Resolution, bool) {
	if r.analyzer == nil || t.inFlow() {
		return Resolution{}, false
	}
	analysis, err := r.analyzer.Analyze(ctx, t.text, t.snapshot())
	res := Resolution{
		Intent:     analysis.Intent,
		Confidence: analysis.Confidence,
		Entities:   analysis.Entities,
		Err:        err,
	}
	if err != nil {
		res.Intent = intent.Unknown
		res.Confidence = 0
		return res, true
	}
	// FAQ has no single canned answer, so it stays open-ended.
	if res.Intent != intent.FAQ {
		if canned, ok := rules.Lookup(t.rules, res.Intent); ok {
			res.RuleID = canned.RuleID
			res.Response = canned.Response
			res.Event = canned.Event
		}
	}
	return res, true
}
