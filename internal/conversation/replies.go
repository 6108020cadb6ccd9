package conversation

import (
	"fmt"
	"strings"

	"github.com/wolfman30/clinic-concierge/internal/clinic"
	"github.com/wolfman30/clinic-concierge/internal/scheduling"
	"github.com/wolfman30/clinic-concierge/internal/storage"
)

const (
	replyClarify         = "Desculpe, não entendi muito bem. Pode explicar de outra forma? Se preferir, digite \"menu\" para ver as opções."
	replyEscalate        = "Desculpe, não estou conseguindo te ajudar como deveria. Vou chamar alguém da nossa equipe para continuar o atendimento, tudo bem? Em breve alguém fala com você."
	replyHandoff         = "Claro! Vou te transferir para alguém da nossa equipe. Em breve você será atendido(a)."
	replySmallTalk       = "Tudo ótimo por aqui, obrigada por perguntar! Sou a assistente virtual da clínica. Posso te ajudar com agendamentos, preços ou dúvidas."
	replyFlowAborted     = "Tudo bem, interrompi o agendamento. Se quiser retomar depois, é só me chamar."
	replyAgendaTrouble   = "Tive um problema ao consultar a agenda. Pode tentar novamente em instantes?"
	replyNoServices      = "No momento não temos procedimentos disponíveis para agendamento online. Posso te passar para um atendente?"
	replyNothingToCancel = "Você não tem nenhum agendamento futuro para cancelar. Posso ajudar com outra coisa?"
	replyCancelDone      = "Pronto, seu agendamento foi cancelado. Se quiser marcar outro dia, é só me chamar."
	replyCancelKept      = "Combinado! Mantive o seu agendamento. Até lá!"
	replyReminderYes     = "Obrigada por confirmar! Te esperamos."
	replyReminderNo      = "Tudo bem, cancelei o seu horário. Quer remarcar para outro dia? É só dizer \"remarcar\"."
	replyNoAppointments  = "Você não tem agendamentos futuros. Quer marcar um horário?"
	replyHowCanIHelp     = "Como posso te ajudar? Digite \"menu\" para ver as opções."
)

func cancelQuestion(appt storage.Appointment, s *clinic.Settings) string {
	return fmt.Sprintf("Você tem %s em %s. Confirma o cancelamento? (sim/não)", appt.Service, appointmentWhen(appt, s))
}

func appointmentWhen(appt storage.Appointment, s *clinic.Settings) string {
	local := appt.StartsAt.In(s.Location())
	return fmt.Sprintf("%s às %s", scheduling.DisplayDate(local), local.Format("15:04"))
}

func appointmentList(appts []storage.Appointment, s *clinic.Settings) string {
	var b strings.Builder
	b.WriteString("Seus próximos agendamentos:")
	for _, a := range appts {
		fmt.Fprintf(&b, "\n- %s em %s", a.Service, appointmentWhen(a, s))
	}
	return b.String()
}
