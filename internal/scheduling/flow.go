// Package scheduling drives the booking sub-flow that runs while a conversation
// is in SCHEDULING_FLOW.
package scheduling

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strconv"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/wolfman30/clinic-concierge/internal/classifier"
	"github.com/wolfman30/clinic-concierge/internal/clinic"
	"github.com/wolfman30/clinic-concierge/internal/storage"
	"github.com/wolfman30/clinic-concierge/internal/textutil"
	"github.com/wolfman30/clinic-concierge/pkg/logging"
)

var tracer = otel.Tracer("clinic-concierge/scheduling")

// Store is the storage the booking flow reads and writes.
type Store interface {
	CalendarReader
	CreateAppointment(ctx context.Context, appt *storage.Appointment) error
	UpdateAppointmentStatus(ctx context.Context, id uuid.UUID, status storage.AppointmentStatus) error
	CreateWaitlistEntry(ctx context.Context, entry *storage.WaitlistEntry) error
}

// Outcome tells the caller how a turn left the flow.
type Outcome string

const (
	OutcomeContinue   Outcome = "CONTINUE"
	OutcomeBooked     Outcome = "BOOKED"
	OutcomeWaitlisted Outcome = "WAITLISTED"
	OutcomeDeclined   Outcome = "DECLINED"
)

// Finished reports whether the booking ended this turn.
func (o Outcome) Finished() bool { return o != OutcomeContinue }

// Result is the outcome of one booking turn. State is nil once the flow finished.
type Result struct {
	Reply       string
	State       *State
	Outcome     Outcome
	Appointment *storage.Appointment
}

// Prefill seeds a new booking from the message that opened it. Time (HH:MM)
// and PartOfDay (manha, tarde or noite) steer the first slot offered.
type Prefill struct {
	Service   string
	Text      string
	Time      string
	PartOfDay string
	Replaces  string
}

// Flow executes scheduling steps.
type Flow struct {
	store  Store
	now    func() time.Time
	logger *logging.Logger
}

// Option customizes a Flow.
type Option func(*Flow)

// WithClock overrides the clock used for relative dates and past-slot checks.
func WithClock(now func() time.Time) Option {
	return func(f *Flow) { f.now = now }
}

// NewFlow creates a booking flow over store.
func NewFlow(store Store, logger *logging.Logger, opts ...Option) *Flow {
	if logger == nil {
		logger = logging.Default()
	}
	f := &Flow{store: store, now: time.Now, logger: logger}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// Start opens a booking. A resolvable service skips SELECT_SERVICE, and a date
// in the opening message is applied right away.
func (f *Flow) Start(ctx context.Context, s *clinic.Settings, p Prefill) (Result, error) {
	ctx, span := tracer.Start(ctx, "scheduling.start")
	defer span.End()

	svc, ok := s.ServiceByName(p.Service)
	if !ok && p.Text != "" {
		svc, ok = s.FindService(p.Text)
	}
	if !ok {
		return f.keep(State{Step: SelectService{}, Replaces: p.Replaces}, servicePrompt(s)), nil
	}
	choice := choiceOf(svc)
	if day, hasDate := ParseDate(p.Text, f.now(), s.Location()); hasDate {
		return f.openDay(ctx, s, choice, day, p)
	}
	return f.keep(State{Step: SelectDate{Service: choice}, Replaces: p.Replaces}, datePrompt(choice)), nil
}

// openDay honors the time or period named in the opening message before
// falling back to the earliest slot of day.
func (f *Flow) openDay(ctx context.Context, s *clinic.Settings, choice ServiceChoice, day time.Time, p Prefill) (Result, error) {
	now := f.now()
	today, _ := storage.DayBounds(now, s.Location())
	if (p.Time == "" && p.PartOfDay == "") || day.Before(today) || !s.IsWorkingDay(day) {
		return f.offerDay(ctx, s, choice, day, p.Replaces)
	}
	slots, err := AvailableSlots(ctx, f.store, s, day, nil, now)
	if err != nil {
		return Result{}, err
	}
	if p.Time != "" {
		if slices.Contains(slots, p.Time) {
			return f.toConfirm(s, choice, DateKey(day), p.Time, nil, p.Replaces), nil
		}
		res, err := f.offerDay(ctx, s, choice, day, p.Replaces)
		if err == nil {
			res.Reply = fmt.Sprintf("O horário das %s não está disponível. ", p.Time) + res.Reply
		}
		return res, err
	}
	if slot, ok := inPeriod(slots, p.PartOfDay); ok {
		step := SelectTime{Service: choice, Date: DateKey(day), Suggested: slot}
		return f.keep(State{Step: step, Replaces: p.Replaces}, slotOffer(day, slot)), nil
	}
	return f.offerDay(ctx, s, choice, day, p.Replaces)
}

// Handle feeds one user message to the current step.
func (f *Flow) Handle(ctx context.Context, s *clinic.Settings, st *State, userID uuid.UUID, text string) (Result, error) {
	if !st.Active() {
		return f.Start(ctx, s, Prefill{Text: text})
	}
	ctx, span := tracer.Start(ctx, "scheduling.handle")
	defer span.End()
	span.SetAttributes(attribute.String("scheduling.step", string(st.Step.Kind())))

	var (
		res Result
		err error
	)
	switch step := st.Step.(type) {
	case SelectService:
		res, err = f.handleService(ctx, s, st.Replaces, text)
	case SelectDate:
		res, err = f.handleDate(ctx, s, st.Replaces, step, text)
	case SelectTime:
		res, err = f.handleTime(ctx, s, st.Replaces, step, text)
	case Confirm:
		res, err = f.handleConfirm(ctx, s, st.Replaces, step, userID, text)
	case WaitlistOffer:
		res, err = f.handleWaitlist(ctx, s, st.Replaces, step, userID, text)
	default:
		return Result{}, fmt.Errorf("scheduling: unsupported step %T", st.Step)
	}
	if err != nil {
		span.RecordError(err)
	}
	return res, err
}

func (f *Flow) handleService(ctx context.Context, s *clinic.Settings, replaces, text string) (Result, error) {
	normalized := textutil.Normalize(text)
	if _, generic := genericTokens[normalized]; generic || normalized == "" {
		return f.keep(State{Step: SelectService{}, Replaces: replaces}, servicePrompt(s)), nil
	}
	svc, ok := matchService(s, normalized, text)
	if !ok {
		return f.keep(State{Step: SelectService{}, Replaces: replaces}, "Não encontrei esse procedimento. "+servicePrompt(s)), nil
	}
	choice := choiceOf(svc)
	if day, hasDate := ParseDate(text, f.now(), s.Location()); hasDate {
		return f.offerDay(ctx, s, choice, day, replaces)
	}
	return f.keep(State{Step: SelectDate{Service: choice}, Replaces: replaces}, datePrompt(choice)), nil
}

func matchService(s *clinic.Settings, normalized, raw string) (clinic.Service, bool) {
	if n, err := strconv.Atoi(normalized); err == nil {
		if n >= 1 && n <= len(s.Services) {
			return s.Services[n-1], true
		}
		return clinic.Service{}, false
	}
	if svc, ok := s.FindService(raw); ok {
		return svc, true
	}
	// Partial names such as "limp" or "peel" match when unambiguous enough.
	if len(normalized) >= 4 {
		for _, svc := range s.Services {
			if textutil.ContainsAny(textutil.Normalize(svc.Name), normalized) {
				return svc, true
			}
		}
	}
	return clinic.Service{}, false
}

func (f *Flow) handleDate(ctx context.Context, s *clinic.Settings, replaces string, step SelectDate, text string) (Result, error) {
	loc := s.Location()
	if step.PendingDate != "" && IsAffirmative(text) {
		day, err := ParseDateKey(step.PendingDate, loc)
		if err != nil {
			return Result{}, err
		}
		return f.offerDay(ctx, s, step.Service, day, replaces)
	}
	day, ok := ParseDate(text, f.now(), loc)
	if !ok {
		if step.PendingDate != "" && IsNegative(text) {
			return f.keep(State{Step: SelectDate{Service: step.Service}, Replaces: replaces}, "Tudo bem! Qual outra data você prefere?"), nil
		}
		return f.keep(State{Step: step, Replaces: replaces}, dateFormatHint), nil
	}
	return f.offerDay(ctx, s, step.Service, day, replaces)
}

// offerDay validates a requested day and proposes its earliest free slot.
func (f *Flow) offerDay(ctx context.Context, s *clinic.Settings, service ServiceChoice, day time.Time, replaces string) (Result, error) {
	now := f.now()
	today, _ := storage.DayBounds(now, s.Location())
	if day.Before(today) {
		return f.keep(State{Step: SelectDate{Service: service}, Replaces: replaces},
			"Essa data já passou. Pode escolher uma data a partir de hoje?"), nil
	}
	if !s.IsWorkingDay(day) {
		next, ok := s.NextWorkingDay(day)
		if !ok {
			return f.keep(State{Step: SelectDate{Service: service}, Replaces: replaces},
				"No momento não temos dias de atendimento disponíveis. Posso te passar para um atendente?"), nil
		}
		reply := fmt.Sprintf("Não atendemos em %s. O próximo dia de atendimento é %s. Posso verificar os horários nesse dia? Responda sim ou envie outra data.",
			DisplayDate(day), DisplayDate(next))
		return f.keep(State{Step: SelectDate{Service: service, PendingDate: DateKey(next)}, Replaces: replaces}, reply), nil
	}

	slot, ok, err := NextAvailable(ctx, f.store, s, day, nil, now)
	if err != nil {
		return Result{}, err
	}
	if !ok {
		reply := fmt.Sprintf("Infelizmente não há horários livres em %s. Quer entrar na lista de espera para esse dia? Se preferir, envie outra data.", DisplayDate(day))
		return f.keep(State{Step: WaitlistOffer{Service: service, Date: DateKey(day)}, Replaces: replaces}, reply), nil
	}
	return f.keep(State{Step: SelectTime{Service: service, Date: DateKey(day), Suggested: slot}, Replaces: replaces}, slotOffer(day, slot)), nil
}

func slotOffer(day time.Time, slot string) string {
	return fmt.Sprintf("Para %s tenho horário às %s. Pode ser? Se preferir, me diga outro horário.", DisplayDate(day), slot)
}

func (f *Flow) handleTime(ctx context.Context, s *clinic.Settings, replaces string, step SelectTime, text string) (Result, error) {
	loc := s.Location()
	now := f.now()
	day, err := ParseDateKey(step.Date, loc)
	if err != nil {
		return Result{}, err
	}

	requested, hasTime := classifier.ParseTime(text)

	if other, ok := ParseDate(text, now, loc); ok && DateKey(other) != step.Date {
		if hasTime && s.IsWorkingDay(other) {
			free, err := IsFree(ctx, f.store, s, other, requested, now)
			if err != nil {
				return Result{}, err
			}
			if free {
				return f.toConfirm(s, step.Service, DateKey(other), requested, nil, replaces), nil
			}
		}
		return f.offerDay(ctx, s, step.Service, other, replaces)
	}

	if hasTime {
		// A time the user names is checked against the calendar only, even if
		// they declined it earlier; the bot itself never re-suggests it.
		free, err := IsFree(ctx, f.store, s, day, requested, now)
		if err != nil {
			return Result{}, err
		}
		if free {
			return f.toConfirm(s, step.Service, step.Date, requested, step.Rejected, replaces), nil
		}
		reply := fmt.Sprintf("O horário das %s não está disponível em %s. Posso manter às %s?", requested, DisplayDate(day), step.Suggested)
		return f.keep(State{Step: step, Replaces: replaces}, reply), nil
	}

	if IsNegative(text) {
		rejected := appendUnique(step.Rejected, step.Suggested)
		next, ok, err := NextAvailable(ctx, f.store, s, day, rejected, now)
		if err != nil {
			return Result{}, err
		}
		if !ok {
			reply := fmt.Sprintf("Não tenho outros horários livres em %s. Quer entrar na lista de espera para esse dia ou prefere outra data?", DisplayDate(day))
			return f.keep(State{Step: WaitlistOffer{Service: step.Service, Date: step.Date}, Replaces: replaces}, reply), nil
		}
		retry := SelectTime{Service: step.Service, Date: step.Date, Suggested: next, Rejected: rejected}
		return f.keep(State{Step: retry, Replaces: replaces}, fmt.Sprintf("Sem problemas. Que tal às %s?", next)), nil
	}

	if IsAffirmative(text) {
		return f.toConfirm(s, step.Service, step.Date, step.Suggested, step.Rejected, replaces), nil
	}

	reply := fmt.Sprintf("Pode ser às %s? Responda sim, não ou me diga outro horário.", step.Suggested)
	return f.keep(State{Step: step, Replaces: replaces}, reply), nil
}

func (f *Flow) toConfirm(s *clinic.Settings, service ServiceChoice, date, slot string, rejected []string, replaces string) Result {
	day, _ := ParseDateKey(date, s.Location())
	reply := fmt.Sprintf("Confirmando: %s em %s às %s, valor %s. Posso confirmar? (sim/não)",
		service.Name, DisplayDate(day), slot, clinic.FormatPrice(service.PriceCents))
	step := Confirm{Service: service, Date: date, Time: slot, Rejected: rejected}
	return f.keep(State{Step: step, Replaces: replaces}, reply)
}

func (f *Flow) handleConfirm(ctx context.Context, s *clinic.Settings, replaces string, step Confirm, userID uuid.UUID, text string) (Result, error) {
	if IsNegative(text) {
		return Result{
			Reply:   "Tudo bem, não confirmei o agendamento. Se quiser escolher outro horário, é só me chamar.",
			Outcome: OutcomeDeclined,
		}, nil
	}
	if !IsAffirmative(text) {
		return f.keep(State{Step: step, Replaces: replaces}, "Por favor, responda sim para confirmar ou não para cancelar o agendamento."), nil
	}

	loc := s.Location()
	now := f.now()
	day, err := ParseDateKey(step.Date, loc)
	if err != nil {
		return Result{}, err
	}
	appt, err := f.book(ctx, s, step, userID, day, now)
	if errors.Is(err, ErrSlotTaken) {
		return f.slotTaken(ctx, s, step, day, now, replaces)
	}
	if err != nil {
		return Result{}, err
	}

	if replaces != "" {
		if oldID, parseErr := uuid.Parse(replaces); parseErr == nil {
			if err := f.store.UpdateAppointmentStatus(ctx, oldID, storage.AppointmentCancelled); err != nil {
				f.logger.Error("failed to cancel rescheduled appointment", "appointment_id", replaces, "error", err)
			}
		}
	}

	reply := fmt.Sprintf("Agendamento confirmado! %s em %s às %s. Enviaremos um lembrete na véspera. Até lá!",
		step.Service.Name, DisplayDate(day), step.Time)
	return Result{Reply: reply, Outcome: OutcomeBooked, Appointment: appt}, nil
}

func (f *Flow) book(ctx context.Context, s *clinic.Settings, step Confirm, userID uuid.UUID, day, now time.Time) (*storage.Appointment, error) {
	free, err := IsFree(ctx, f.store, s, day, step.Time, now)
	if err != nil {
		return nil, err
	}
	if !free {
		return nil, ErrSlotTaken
	}
	startsAt, err := SlotTime(day, step.Time, s.Location())
	if err != nil {
		return nil, err
	}
	appt := &storage.Appointment{
		ID:              uuid.New(),
		UserID:          userID,
		Service:         step.Service.Name,
		PriceCents:      step.Service.PriceCents,
		DurationMinutes: step.Service.DurationMinutes,
		StartsAt:        startsAt,
		Status:          storage.AppointmentConfirmed,
		CreatedAt:       now,
	}
	if err := f.store.CreateAppointment(ctx, appt); err != nil {
		return nil, fmt.Errorf("scheduling: create appointment: %w", err)
	}
	f.logger.Info("appointment booked", "appointment_id", appt.ID, "service", appt.Service, "starts_at", appt.StartsAt)
	return appt, nil
}

func (f *Flow) slotTaken(ctx context.Context, s *clinic.Settings, step Confirm, day, now time.Time, replaces string) (Result, error) {
	next, ok, err := NextAvailable(ctx, f.store, s, day, step.Rejected, now)
	if err != nil {
		return Result{}, err
	}
	if !ok {
		reply := fmt.Sprintf("Poxa, o horário das %s acabou de ser ocupado e não há outros livres em %s. Quer entrar na lista de espera?", step.Time, DisplayDate(day))
		return f.keep(State{Step: WaitlistOffer{Service: step.Service, Date: step.Date}, Replaces: replaces}, reply), nil
	}
	reply := fmt.Sprintf("Poxa, o horário das %s acabou de ser ocupado. Tenho às %s, pode ser?", step.Time, next)
	retry := SelectTime{Service: step.Service, Date: step.Date, Suggested: next, Rejected: step.Rejected}
	return f.keep(State{Step: retry, Replaces: replaces}, reply), nil
}

func (f *Flow) handleWaitlist(ctx context.Context, s *clinic.Settings, replaces string, step WaitlistOffer, userID uuid.UUID, text string) (Result, error) {
	loc := s.Location()
	day, err := ParseDateKey(step.Date, loc)
	if err != nil {
		return Result{}, err
	}
	if IsAffirmative(text) {
		entry := &storage.WaitlistEntry{
			ID:            uuid.New(),
			UserID:        userID,
			Service:       step.Service.Name,
			PreferredDate: day,
			Status:        storage.WaitlistWaiting,
			CreatedAt:     f.now(),
		}
		if err := f.store.CreateWaitlistEntry(ctx, entry); err != nil {
			return Result{}, fmt.Errorf("scheduling: create waitlist entry: %w", err)
		}
		reply := fmt.Sprintf("Pronto! Você está na lista de espera para %s. Avisaremos se abrir uma vaga. Se quiser, também pode tentar outra data.", DisplayDate(day))
		return Result{Reply: reply, Outcome: OutcomeWaitlisted}, nil
	}
	if other, ok := ParseDate(text, f.now(), loc); ok {
		return f.offerDay(ctx, s, step.Service, other, replaces)
	}
	return f.keep(State{Step: SelectDate{Service: step.Service}, Replaces: replaces}, "Sem problemas. Qual outra data você prefere?"), nil
}

func (f *Flow) keep(st State, reply string) Result {
	return Result{Reply: reply, State: &st, Outcome: OutcomeContinue}
}

func choiceOf(svc clinic.Service) ServiceChoice {
	return ServiceChoice{Name: svc.Name, PriceCents: svc.PriceCents, DurationMinutes: svc.DurationMinutes}
}

// inPeriod returns the first slot that falls in period: manha before noon,
// tarde until 18:00, noite after.
func inPeriod(slots []string, period string) (string, bool) {
	for _, slot := range slots {
		at, err := time.Parse("15:04", slot)
		if err != nil {
			continue
		}
		var p string
		switch hour := at.Hour(); {
		case hour < 12:
			p = "manha"
		case hour < 18:
			p = "tarde"
		default:
			p = "noite"
		}
		if p == period {
			return slot, true
		}
	}
	return "", false
}

func appendUnique(list []string, v string) []string {
	for _, existing := range list {
		if existing == v {
			return append([]string(nil), list...)
		}
	}
	out := append([]string(nil), list...)
	return append(out, v)
}
