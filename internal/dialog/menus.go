package dialog

import (
	"fmt"
	"strings"

	"github.com/spec-kit/intake-pipeline/internal/domain"
)

// Sectors and request types offered by the intake script. Menu choices are
// matched by 1-based position.
var Sectors = []string{
	"Administrativo",
	"Financeiro",
	"Produção",
	"Comercial",
	"TI",
}

var RequestTypes = []string{
	"Computador / Notebook",
	"Impressora",
	"Rede / Internet",
	"Sistema / Software",
	"Outro",
}

// cancelKeywords end the dialog from any step.
var cancelKeywords = map[string]bool{
	"cancelar": true,
	"sair":     true,
	"voltar":   true,
	"0":        true,
}

func isCancel(text string) bool {
	return cancelKeywords[strings.ToLower(strings.TrimSpace(text))]
}

func numberedMenu(title string, options []string) string {
	var b strings.Builder
	b.WriteString(title)
	b.WriteString("\n")
	for i, opt := range options {
		fmt.Fprintf(&b, "%d - %s\n", i+1, opt)
	}
	b.WriteString("\nDigite 0 para cancelar.")
	return b.String()
}

func greeting(name string) string {
	if name != "" {
		return fmt.Sprintf("Olá, %s! Sou o assistente de suporte técnico.\n\n%s",
			name, sectorMenu())
	}
	return "Olá! Sou o assistente de suporte técnico.\n\n" + sectorMenu()
}

func sectorMenu() string {
	return numberedMenu("Qual o seu setor?", Sectors)
}

func typeMenu() string {
	return numberedMenu("Qual o tipo de problema?", RequestTypes)
}

const (
	promptLocation  = "Informe o local onde você está (sala, andar ou prédio):"
	promptEquipment = "Qual equipamento apresenta o problema?"
	promptAssetTag  = "Informe o número de patrimônio do equipamento (ou - se não houver):"
	promptProblem   = "Descreva o problema com detalhes:"

	replyInvalidOption = "Opção inválida."
	replyTooShort      = "A descrição está muito curta. Por favor, detalhe um pouco mais."
	replyCancelled     = "Atendimento cancelado. Quando precisar, é só chamar de novo."
	replyPublishFailed = "Não consegui registrar o chamado agora. Por favor, envie 1 novamente em instantes."
)

func confirmSummary(sess *domain.ConversationSession) string {
	return fmt.Sprintf(
		"Confira os dados do chamado:\n\nSetor: %s\nTipo: %s\nLocal: %s\nEquipamento: %s\nPatrimônio: %s\nProblema: %s\n\n1 - Confirmar e abrir chamado\n2 - Recomeçar\n0 - Cancelar",
		sess.Sector, sess.RequestType, sess.Location, sess.Equipment, sess.AssetTag, sess.ProblemDesc)
}

func ticketOpened(ticketID string) string {
	return fmt.Sprintf(
		"Chamado aberto com sucesso! Protocolo: %s\nUm técnico entrará em contato em breve.", ticketID)
}

func activeTicketStatus(ticket *domain.Ticket) string {
	return fmt.Sprintf(
		"Você já possui um chamado em andamento (protocolo %s, situação: %s). Aguarde o atendimento ou responda aqui para falar com o técnico.",
		ticket.ID, ticket.Status)
}
