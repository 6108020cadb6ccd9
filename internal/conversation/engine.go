// Package conversation is the orchestration engine: it resolves the intent of
// each inbound message, drives the state machine and the booking flow, and
// decides the reply.
package conversation

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/wolfman30/clinic-concierge/internal/ai"
	"github.com/wolfman30/clinic-concierge/internal/classifier"
	"github.com/wolfman30/clinic-concierge/internal/clinic"
	"github.com/wolfman30/clinic-concierge/internal/convctx"
	"github.com/wolfman30/clinic-concierge/internal/humanize"
	"github.com/wolfman30/clinic-concierge/internal/intent"
	"github.com/wolfman30/clinic-concierge/internal/notify"
	"github.com/wolfman30/clinic-concierge/internal/observability/metrics"
	"github.com/wolfman30/clinic-concierge/internal/rules"
	"github.com/wolfman30/clinic-concierge/internal/scheduling"
	"github.com/wolfman30/clinic-concierge/internal/statemachine"
	"github.com/wolfman30/clinic-concierge/internal/storage"
	"github.com/wolfman30/clinic-concierge/pkg/logging"
)

var tracer = otel.Tracer("clinic-concierge/conversation")

const (
	DefaultConfidenceThreshold = 60
	DefaultMaxFailedAttempts   = 3
	DefaultConversationWindow  = 24 * time.Hour

	historyLimit = 6
)

// Generator is the AI responder collaborator.
type Generator interface {
	Generate(ctx context.Context, prompt string) (string, error)
}

// Notifier alerts the clinic team.
type Notifier interface {
	NotifyHandoff(ctx context.Context, h notify.Handoff) error
	NotifyBooking(ctx context.Context, b notify.Booking) error
}

// CancellationListener is told about every appointment the engine cancels.
type CancellationListener interface {
	AppointmentCancelled(ctx context.Context, appt storage.Appointment)
}

// Config wires an Engine. Store, Contexts and Settings are required.
type Config struct {
	Store         storage.Store
	Contexts      *convctx.Store
	Settings      clinic.Provider
	Flow          *scheduling.Flow
	Machine       *statemachine.Machine
	Classifier    *classifier.Classifier
	Analyzer      Analyzer
	Responder     Generator
	Notifier      Notifier
	Humanizer     *humanize.Humanizer
	Cancellations CancellationListener
	Metrics       *metrics.EngineMetrics
	Logger        *logging.Logger

	ConfidenceThreshold int
	MaxFailedAttempts   int
	ConversationWindow  time.Duration
	Now                 func() time.Time
}

// Engine runs one conversation turn per inbound message. It holds no per-user state.
type Engine struct {
	store         storage.Store
	contexts      *convctx.Store
	settings      clinic.Provider
	flow          *scheduling.Flow
	machine       *statemachine.Machine
	resolvers     []resolver
	responder     Generator
	notifier      Notifier
	humanizer     *humanize.Humanizer
	cancellations CancellationListener
	metrics       *metrics.EngineMetrics
	logger        *logging.Logger

	threshold int
	maxFailed int
	window    time.Duration
	now       func() time.Time
}

// NewEngine validates cfg and fills defaults.
func NewEngine(cfg Config) (*Engine, error) {
	if cfg.Store == nil {
		return nil, errors.New("conversation: store is required")
	}
	if cfg.Contexts == nil {
		return nil, errors.New("conversation: context store is required")
	}
	if cfg.Settings == nil {
		return nil, errors.New("conversation: settings provider is required")
	}
	if cfg.Logger == nil {
		cfg.Logger = logging.Default()
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.Machine == nil {
		cfg.Machine = statemachine.New(cfg.Logger)
	}
	if cfg.Flow == nil {
		cfg.Flow = scheduling.NewFlow(cfg.Store, cfg.Logger, scheduling.WithClock(cfg.Now))
	}
	if cfg.Classifier == nil {
		cfg.Classifier = classifier.New(cfg.Logger)
	}
	if cfg.ConfidenceThreshold <= 0 {
		cfg.ConfidenceThreshold = DefaultConfidenceThreshold
	}
	if cfg.MaxFailedAttempts <= 0 {
		cfg.MaxFailedAttempts = DefaultMaxFailedAttempts
	}
	if cfg.ConversationWindow <= 0 {
		cfg.ConversationWindow = DefaultConversationWindow
	}
	return &Engine{
		store:    cfg.Store,
		contexts: cfg.Contexts,
		settings: cfg.Settings,
		flow:     cfg.Flow,
		machine:  cfg.Machine,
		resolvers: []resolver{
			reminderResolver{},
			pendingCancelResolver{},
			rulesResolver{},
			smallTalkResolver{},
			keywordResolver{classifier: cfg.Classifier},
			aiResolver{analyzer: cfg.Analyzer},
		},
		responder:     cfg.Responder,
		notifier:      cfg.Notifier,
		humanizer:     cfg.Humanizer,
		cancellations: cfg.Cancellations,
		metrics:       cfg.Metrics,
		logger:        cfg.Logger,
		threshold:     cfg.ConfidenceThreshold,
		maxFailed:     cfg.MaxFailedAttempts,
		window:        cfg.ConversationWindow,
		now:           cfg.Now,
	}, nil
}

// InboundMessage is one customer message.
type InboundMessage struct {
	Phone      string
	Text       string
	MessageID  string
	ReceivedAt time.Time
}

// Reply is the turn result. An empty Text means no response is sent.
type Reply struct {
	Text           string
	Intent         intent.Intent
	Confidence     int
	Resolver       string
	RuleID         string
	Event          statemachine.Event
	State          statemachine.State
	Step           scheduling.StepKind
	FailedAttempts int
	Suppressed     bool
	UserID         uuid.UUID
	ConversationID uuid.UUID
}

// outcome is the decision for a turn; it is applied after resolution.
type outcome struct {
	text          string
	events        []statemachine.Event
	skipHumanize  bool
	handoffReason string
	resolver      string
}

// HandleInbound runs one turn. Failures resolve to an empty reply; a returned
// error is informational and never needs a retry.
func (e *Engine) HandleInbound(ctx context.Context, msg InboundMessage) (reply Reply, err error) {
	ctx, span := tracer.Start(ctx, "conversation.handle_inbound")
	defer span.End()
	began := time.Now()

	defer func() {
		if r := recover(); r != nil {
			e.logger.Error("conversation turn panicked", "panic", fmt.Sprint(r), "phone", msg.Phone)
			span.RecordError(fmt.Errorf("panic: %v", r))
			reply, err = Reply{}, nil
		}
	}()

	reply, err = e.handle(ctx, msg)
	if err != nil {
		span.RecordError(err)
		e.logger.Error("conversation turn failed", "error", err, "phone", msg.Phone)
		return Reply{}, err
	}
	span.SetAttributes(
		attribute.String("conversation.intent", string(reply.Intent)),
		attribute.String("conversation.resolver", reply.Resolver),
		attribute.String("conversation.state", string(reply.State)),
	)
	e.metrics.ObserveTurn(reply.Resolver, string(reply.Intent), time.Since(began).Seconds())
	return reply, nil
}

func (e *Engine) handle(ctx context.Context, msg InboundMessage) (Reply, error) {
	phone := strings.TrimSpace(msg.Phone)
	text := strings.TrimSpace(msg.Text)
	if phone == "" {
		return Reply{}, errors.New("conversation: sender phone is required")
	}

	settings, err := e.settings.Settings(ctx)
	if err != nil {
		return Reply{}, fmt.Errorf("conversation: load settings: %w", err)
	}
	user, err := e.store.FindOrCreateUser(ctx, phone)
	if err != nil {
		return Reply{}, fmt.Errorf("conversation: find user: %w", err)
	}
	conv, err := e.conversationFor(ctx, user.ID)
	if err != nil {
		return Reply{}, err
	}

	key := convctx.Key{UserID: user.ID, ConversationID: conv.ID}
	cc := e.contexts.Get(ctx, key)
	out := Reply{UserID: user.ID, ConversationID: conv.ID, State: conv.State, Resolver: ResolverUnresolved}
	log := e.logger.With("conversation_id", conv.ID, "user_id", user.ID)

	if cc.Processed(msg.MessageID) {
		log.Info("duplicate inbound message ignored", "message_id", msg.MessageID)
		out.Suppressed = true
		return out, nil
	}
	e.appendMessage(ctx, conv.ID, storage.DirectionInbound, text, "", msg.MessageID)
	cc.MarkProcessed(msg.MessageID)

	if user.Blocked || conv.State == statemachine.Blocked {
		out.Suppressed = true
		e.saveContext(ctx, key, cc)
		return out, nil
	}
	if text == "" {
		e.saveContext(ctx, key, cc)
		return out, nil
	}

	if settings.IsAdmin(phone) {
		if answer, ok := e.adminCommand(ctx, settings, text); ok {
			out.Text, out.Intent, out.Resolver, out.Confidence = answer, intent.Admin, ResolverAdmin, 100
			e.appendMessage(ctx, conv.ID, storage.DirectionOutbound, answer, string(intent.Admin), "")
			e.saveContext(ctx, key, cc)
			return out, nil
		}
	}

	if conv.State.SuppressesReplies() {
		log.Info("reply suppressed", "state", conv.State)
		out.Suppressed = true
		e.saveContext(ctx, key, cc)
		return out, nil
	}

	t := &turn{
		text:     text,
		settings: settings,
		rules:    rules.Build(settings),
		state:    conv.State,
		cc:       cc,
		snapshot: func() ai.Snapshot { return e.snapshot(ctx, settings, conv, cc) },
	}
	res, resolved := fold(ctx, e.resolvers, t)
	if res.Err != nil {
		log.Warn("ai classifier failed", "error", res.Err)
	}

	var o outcome
	if t.inFlow() {
		o = e.inFlow(ctx, t, user, res)
	} else {
		o = e.outsideFlow(ctx, t, user, res, resolved)
	}
	if o.resolver == "" {
		o.resolver = res.Resolver
	}

	facts := statemachine.Facts{ServicesConfigured: len(settings.Services) > 0}
	state := conv.State
	var fired statemachine.Event
	for _, ev := range o.events {
		if next, ok := e.machine.NextState(state, ev, facts); ok {
			state, fired = next, ev
		}
	}

	label := string(res.Intent)
	if state == statemachine.HumanHandoff && conv.State != statemachine.HumanHandoff {
		label = string(intent.HumanHandoff)
		e.metrics.ObserveEscalation()
		e.notifyHandoff(ctx, user, text, o.handoffReason)
	}

	replyText := o.text
	if replyText != "" && !o.skipHumanize && e.humanizer != nil {
		replyText = e.humanizer.Vary(replyText, e.now().In(settings.Location()))
		replyText = e.humanizer.Humanize(text, replyText)
	}

	// Write order: outbound message, then conversation state, then context.
	if replyText != "" {
		e.appendMessage(ctx, conv.ID, storage.DirectionOutbound, replyText, label, "")
	}
	if state != conv.State {
		if err := e.store.UpdateConversationState(ctx, conv.ID, state); err != nil {
			log.Error("conversation state update failed", "error", err, "from", conv.State, "to", state)
		}
	}
	e.saveContext(ctx, key, cc)

	log.Info("conversation turn",
		"intent", res.Intent,
		"confidence", res.Confidence,
		"resolver", o.resolver,
		"state", state,
		"event", fired,
	)

	out.Text = replyText
	out.Intent = res.Intent
	out.Confidence = res.Confidence
	out.Resolver = o.resolver
	out.RuleID = res.RuleID
	out.Event = fired
	out.State = state
	out.FailedAttempts = cc.FailedAttempts
	if cc.Booking.Active() {
		out.Step = cc.Booking.Step.Kind()
	}
	return out, nil
}

// inFlow handles a message while a booking is in progress. Detected intents
// only interrupt the flow; they never replace it.
func (e *Engine) inFlow(ctx context.Context, t *turn, user *storage.User, res Resolution) outcome {
	cc := t.cc
	switch scheduling.Interrupt(res.Intent) {
	case scheduling.Escape:
		cc.ResetBooking()
		if res.Intent == intent.HumanHandoff {
			return outcome{text: replyHandoff, events: []statemachine.Event{statemachine.EventRequestHuman}, handoffReason: "pedido do cliente"}
		}
		return outcome{text: replyFlowAborted, events: []statemachine.Event{statemachine.EventCancel}}
	case scheduling.Aside:
		answer := res.Response
		if answer == "" {
			answer = e.openEnded(ctx, t, replyHowCanIHelp)
		}
		if hint := scheduling.ResumeHint(cc.Booking); hint != "" {
			answer += "\n\n" + hint
		}
		return outcome{text: answer, skipHumanize: true}
	}

	result, err := e.flow.Handle(ctx, t.settings, cc.Booking, user.ID, t.text)
	if err != nil {
		e.logger.Error("scheduling step failed", "error", err, "user_id", user.ID)
		return outcome{text: replyAgendaTrouble, resolver: ResolverFlow}
	}
	cc.FailedAttempts = 0
	replaces := ""
	if cc.Booking != nil {
		replaces = cc.Booking.Replaces
	}

	o := outcome{text: result.Reply, resolver: ResolverFlow}
	switch result.Outcome {
	case scheduling.OutcomeContinue:
		cc.Booking = result.State
		return o
	case scheduling.OutcomeBooked:
		cc.ResetBooking()
		e.afterBooking(ctx, user, result.Appointment, replaces)
		o.events = []statemachine.Event{statemachine.EventCompleteFlow}
	case scheduling.OutcomeWaitlisted:
		cc.ResetBooking()
		o.events = []statemachine.Event{statemachine.EventCompleteFlow}
	case scheduling.OutcomeDeclined:
		cc.ResetBooking()
		o.events = []statemachine.Event{statemachine.EventCancel}
	}
	e.metrics.ObserveBooking(string(result.Outcome))
	return o
}

func (e *Engine) outsideFlow(ctx context.Context, t *turn, user *storage.User, res Resolution, resolved bool) outcome {
	cc := t.cc
	if !resolved || e.lowConfidence(res) {
		return e.failedAttempt(cc, res)
	}
	cc.FailedAttempts = 0

	var events []statemachine.Event
	if res.Resolver != ResolverReminder {
		cc.ReminderPending = ""
	}
	if res.Resolver != ResolverPending && cc.PendingCancel != "" {
		cc.PendingCancel = ""
		events = append(events, statemachine.EventReject)
	}

	o := e.decide(ctx, t, user, res)
	o.events = append(events, o.events...)
	return o
}

func (e *Engine) decide(ctx context.Context, t *turn, user *storage.User, res Resolution) outcome {
	cc := t.cc
	switch res.Resolver {
	case ResolverReminder:
		id := cc.ReminderPending
		cc.ReminderPending = ""
		if res.Intent == intent.ConfirmYes {
			if apptID, err := uuid.Parse(id); err == nil {
				if err := e.store.MarkReminder(ctx, apptID, true, true); err != nil {
					e.logger.Error("reminder confirmation not saved", "error", err, "appointment_id", id)
				}
			}
			return outcome{text: replyReminderYes, events: []statemachine.Event{statemachine.EventAttend}}
		}
		e.cancelAppointment(ctx, user, id)
		return outcome{text: replyReminderNo, events: []statemachine.Event{statemachine.EventAttend}}
	case ResolverPending:
		id := cc.PendingCancel
		cc.PendingCancel = ""
		if res.Intent == intent.ConfirmYes {
			e.cancelAppointment(ctx, user, id)
			return outcome{text: replyCancelDone, events: []statemachine.Event{res.Event}}
		}
		return outcome{text: replyCancelKept, events: []statemachine.Event{res.Event}}
	}

	switch res.Intent {
	case intent.ScheduleNew, intent.Reschedule:
		return e.startScheduling(ctx, t, user, res)
	case intent.Cancel:
		return e.requestCancel(ctx, t, user)
	case intent.HumanHandoff:
		return outcome{text: replyHandoff, events: []statemachine.Event{statemachine.EventRequestHuman}, handoffReason: "pedido do cliente"}
	case intent.MyAppointments:
		appts := e.upcoming(ctx, user.ID)
		if len(appts) == 0 {
			return outcome{text: replyNoAppointments, events: []statemachine.Event{statemachine.EventAttend}}
		}
		return outcome{text: appointmentList(appts, t.settings), events: []statemachine.Event{statemachine.EventAttend}, skipHumanize: true}
	case intent.SmallTalk:
		return outcome{text: e.openEnded(ctx, t, replySmallTalk), events: []statemachine.Event{statemachine.EventAttend}}
	case intent.ConfirmYes, intent.ConfirmNo:
		return outcome{text: replyHowCanIHelp}
	}

	o := outcome{text: res.Response, skipHumanize: structured(res.Intent)}
	if res.Event != statemachine.EventNone {
		o.events = []statemachine.Event{res.Event}
	}
	if o.text == "" {
		o.text = e.openEnded(ctx, t, replyHowCanIHelp)
		if res.Intent == intent.FAQ && res.Event == statemachine.EventNone {
			o.events = []statemachine.Event{statemachine.EventAnswerFAQ}
		}
	}
	return o
}

// lowConfidence reports whether an AI verdict must go through the failed-attempt gate.
func (e *Engine) lowConfidence(res Resolution) bool {
	if res.Resolver != ResolverAI {
		return false
	}
	return res.Err != nil || res.Intent == intent.Unknown || res.Confidence < e.threshold
}

func (e *Engine) failedAttempt(cc *convctx.Context, res Resolution) outcome {
	cc.FailedAttempts++
	e.metrics.ObserveFailedAttempt()
	e.logger.Info("low confidence turn", "failed_attempts", cc.FailedAttempts, "confidence", res.Confidence, "resolver", res.Resolver)
	if cc.FailedAttempts >= e.maxFailed {
		cc.FailedAttempts = 0
		return outcome{
			text:          replyEscalate,
			events:        []statemachine.Event{statemachine.EventEscalate},
			handoffReason: fmt.Sprintf("%d mensagens seguidas sem entendimento", e.maxFailed),
		}
	}
	return outcome{text: replyClarify}
}

func (e *Engine) startScheduling(ctx context.Context, t *turn, user *storage.User, res Resolution) outcome {
	s := t.settings
	facts := statemachine.Facts{ServicesConfigured: len(s.Services) > 0}
	if _, ok := e.machine.NextState(t.state, statemachine.EventStartScheduling, facts); !ok {
		if !facts.ServicesConfigured {
			return outcome{text: replyNoServices}
		}
		return outcome{text: replyHowCanIHelp}
	}

	t.cc.ResetBooking()
	prefill := scheduling.Prefill{Text: t.text}
	if res.Entities.Service != "" {
		if svc, ok := s.FindService(res.Entities.Service); ok {
			prefill.Service = svc.Name
		}
	}
	if res.Entities.Date != "" {
		prefill.Text += " " + res.Entities.Date
	}
	found := classifier.ExtractEntities(t.text, s)
	if prefill.Service == "" {
		prefill.Service = found.Service
	}
	prefill.Time = found.Time
	if res.Entities.Time != "" {
		prefill.Time = res.Entities.Time
	}
	if found.PartOfDay != "" {
		t.cc.SetPreference(convctx.PreferencePartOfDay, found.PartOfDay)
	}
	prefill.PartOfDay = t.cc.Preferences[convctx.PreferencePartOfDay]
	lead := ""
	if res.Intent == intent.Reschedule {
		if appts := e.upcoming(ctx, user.ID); len(appts) > 0 {
			current := appts[0]
			prefill.Replaces = current.ID.String()
			if prefill.Service == "" {
				prefill.Service = current.Service
			}
			lead = fmt.Sprintf("Vamos remarcar o seu %s de %s. ", current.Service, appointmentWhen(current, s))
		}
	}

	result, err := e.flow.Start(ctx, s, prefill)
	if err != nil {
		e.logger.Error("scheduling start failed", "error", err, "user_id", user.ID)
		return outcome{text: replyAgendaTrouble}
	}
	t.cc.Booking = result.State
	return outcome{text: lead + result.Reply, events: []statemachine.Event{statemachine.EventStartScheduling}}
}

func (e *Engine) requestCancel(ctx context.Context, t *turn, user *storage.User) outcome {
	appts := e.upcoming(ctx, user.ID)
	if len(appts) == 0 {
		return outcome{text: replyNothingToCancel}
	}
	t.cc.PendingCancel = appts[0].ID.String()
	return outcome{
		text:   cancelQuestion(appts[0], t.settings),
		events: []statemachine.Event{statemachine.EventRequestConfirmation},
	}
}

// upcoming returns the user's active appointments from now on, soonest first.
func (e *Engine) upcoming(ctx context.Context, userID uuid.UUID) []storage.Appointment {
	appts, err := e.store.ListUserAppointments(ctx, userID, e.now())
	if err != nil {
		e.logger.Error("list user appointments failed", "error", err, "user_id", userID)
		return nil
	}
	out := appts[:0:0]
	for _, a := range appts {
		if a.Active() {
			out = append(out, a)
		}
	}
	return out
}

func (e *Engine) cancelAppointment(ctx context.Context, user *storage.User, id string) {
	apptID, err := uuid.Parse(id)
	if err != nil {
		return
	}
	appt, err := e.store.GetAppointment(ctx, apptID)
	if err != nil {
		e.logger.Error("appointment lookup failed", "error", err, "appointment_id", id)
		return
	}
	if err := e.store.UpdateAppointmentStatus(ctx, apptID, storage.AppointmentCancelled); err != nil {
		e.logger.Error("appointment cancellation failed", "error", err, "appointment_id", id)
		return
	}
	appt.Status = storage.AppointmentCancelled
	e.announceCancellation(ctx, user, *appt)
}

func (e *Engine) announceCancellation(ctx context.Context, user *storage.User, appt storage.Appointment) {
	if e.notifier != nil {
		if err := e.notifier.NotifyBooking(ctx, notify.Booking{
			CustomerPhone: user.Phone,
			Service:       appt.Service,
			StartsAt:      appt.StartsAt,
			Cancelled:     true,
		}); err != nil {
			e.logger.Warn("cancellation notification failed", "error", err, "appointment_id", appt.ID)
		}
	}
	if e.cancellations != nil {
		e.cancellations.AppointmentCancelled(ctx, appt)
	}
}

func (e *Engine) afterBooking(ctx context.Context, user *storage.User, appt *storage.Appointment, replaced string) {
	if appt != nil && e.notifier != nil {
		if err := e.notifier.NotifyBooking(ctx, notify.Booking{
			CustomerPhone: user.Phone,
			Service:       appt.Service,
			StartsAt:      appt.StartsAt,
		}); err != nil {
			e.logger.Warn("booking notification failed", "error", err, "appointment_id", appt.ID)
		}
	}
	if replaced == "" {
		return
	}
	oldID, err := uuid.Parse(replaced)
	if err != nil {
		return
	}
	// The flow already cancelled the replaced appointment.
	old, err := e.store.GetAppointment(ctx, oldID)
	if err != nil {
		e.logger.Warn("replaced appointment lookup failed", "error", err, "appointment_id", replaced)
		return
	}
	e.announceCancellation(ctx, user, *old)
}

func (e *Engine) notifyHandoff(ctx context.Context, user *storage.User, text, reason string) {
	if e.notifier == nil {
		return
	}
	err := e.notifier.NotifyHandoff(ctx, notify.Handoff{
		CustomerPhone: user.Phone,
		CustomerName:  user.Name,
		Message:       text,
		Reason:        reason,
		At:            e.now(),
	})
	if err != nil {
		e.logger.Warn("handoff notification failed", "error", err, "user_id", user.ID)
	}
}

// openEnded asks the responder for a free-text answer, falling back to a fixed reply.
func (e *Engine) openEnded(ctx context.Context, t *turn, fallback string) string {
	if e.responder == nil {
		return fallback
	}
	prompt := fmt.Sprintf("Serviços da clínica: %s\nMensagem do cliente: %s", strings.Join(serviceNames(t.settings), ", "), t.text)
	text, err := e.responder.Generate(ctx, prompt)
	if err != nil {
		e.logger.Warn("ai responder failed", "error", err)
		return fallback
	}
	return text
}

func (e *Engine) snapshot(ctx context.Context, s *clinic.Settings, conv *storage.Conversation, cc *convctx.Context) ai.Snapshot {
	snap := ai.Snapshot{
		ClinicName: s.Name,
		Services:   serviceNames(s),
		State:      string(conv.State),
	}
	if cc.Booking.Active() {
		snap.Step = string(cc.Booking.Step.Kind())
	}
	msgs, err := e.store.ListMessages(ctx, conv.ID, historyLimit+1)
	if err != nil {
		e.logger.Warn("history lookup failed", "error", err, "conversation_id", conv.ID)
		return snap
	}
	// The newest message is the one being classified.
	if n := len(msgs); n > 0 && msgs[n-1].Direction == storage.DirectionInbound {
		msgs = msgs[:n-1]
	}
	for _, m := range msgs {
		role := ai.RoleUser
		if m.Direction == storage.DirectionOutbound {
			role = ai.RoleAssistant
		}
		snap.History = append(snap.History, ai.Message{Role: role, Content: m.Text})
	}
	return snap
}

func (e *Engine) conversationFor(ctx context.Context, userID uuid.UUID) (*storage.Conversation, error) {
	conv, err := e.store.ActiveConversation(ctx, userID, e.now().Add(-e.window))
	if err == nil {
		return conv, nil
	}
	if !errors.Is(err, storage.ErrNotFound) {
		return nil, fmt.Errorf("conversation: load active conversation: %w", err)
	}
	conv, err = e.store.CreateConversation(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("conversation: create conversation: %w", err)
	}
	e.logger.Info("conversation started", "conversation_id", conv.ID, "user_id", userID)
	return conv, nil
}

func (e *Engine) appendMessage(ctx context.Context, convID uuid.UUID, dir storage.Direction, text, label, externalID string) {
	msg := &storage.Message{
		ConversationID: convID,
		Direction:      dir,
		Text:           text,
		Intent:         label,
		ExternalID:     externalID,
	}
	if err := e.store.AppendMessage(ctx, msg); err != nil {
		e.logger.Error("message not persisted", "error", err, "conversation_id", convID, "direction", dir)
	}
}

func (e *Engine) saveContext(ctx context.Context, key convctx.Key, cc *convctx.Context) {
	if err := e.contexts.Put(ctx, key, cc); err != nil {
		e.logger.Error("context not saved", "error", err, "conversation_id", key.ConversationID)
	}
}

// structured intents already carry their own framing.
func structured(in intent.Intent) bool {
	switch in {
	case intent.Menu, intent.Prices, intent.Services, intent.Hours, intent.MyAppointments, intent.Admin:
		return true
	}
	return false
}

func serviceNames(s *clinic.Settings) []string {
	names := make([]string, len(s.Services))
	for i, svc := range s.Services {
		names[i] = svc.Name
	}
	return names
}
