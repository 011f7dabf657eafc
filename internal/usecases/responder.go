package usecases

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"project_associa/internal/entities"
	"project_associa/internal/interfaces"
)

const (
	defaultWelcome = "Olá! Sou o assistente virtual da %s. Como posso ajudar?"
	defaultHandoff = "Certo! Vou transferir você para um de nossos atendentes. Aguarde um momento, por favor."
	defaultSuspend = "O atendimento desta associação está temporariamente suspenso."
)

// RuleResponder answers while a conversation is com_ia.
// Priority: 1. Greeting → 2. Help/menu → 3. Default
type RuleResponder struct {
	configs interfaces.ConfigStore
	logger  *slog.Logger
}

func NewRuleResponder(configs interfaces.ConfigStore, logger *slog.Logger) *RuleResponder {
	return &RuleResponder{configs: configs, logger: logger}
}

func (r *RuleResponder) Reply(ctx context.Context, rc interfaces.ReplyContext) (string, error) {
	content := foldText(strings.TrimSpace(rc.Text))

	// 1. GREETING
	if isGreeting(content) {
		return r.greeting(ctx, rc), nil
	}

	// 2. HELP / MENU
	if isMenuCommand(content) {
		return menuText(), nil
	}

	// 3. DEFAULT
	return defaultResponse(rc), nil
}

func (r *RuleResponder) greeting(ctx context.Context, rc interfaces.ReplyContext) string {
	welcome := ConfigOrDefault(ctx, r.configs, r.logger, rc.Association, entities.ConfigWelcomeMessage)

	var b strings.Builder
	if name := firstName(rc.Interlocutor.Name); name != "" {
		fmt.Fprintf(&b, "Olá, %s! ", name)
	}
	if rc.Interlocutor.IsResponsible && rc.Patient != nil && rc.Patient.Name != "" {
		fmt.Fprintf(&b, "Vejo que você é responsável por %s. ", rc.Patient.Name)
	}
	b.WriteString(welcome)
	return b.String()
}

// ConfigOrDefault reads a bot config key of the association, falling back to the built-in text.
func ConfigOrDefault(ctx context.Context, configs interfaces.ConfigStore, logger *slog.Logger, a *entities.Association, key string) string {
	if configs != nil && a != nil {
		val, err := configs.GetConfig(ctx, a.ID, key)
		if err != nil {
			logger.Warn("bot config read failed", "association_id", a.ID, "key", key, "error", err)
		} else if strings.TrimSpace(val) != "" {
			return val
		}
	}
	switch key {
	case entities.ConfigWelcomeMessage:
		name := "associação"
		if a != nil && a.Name != "" {
			name = a.Name
		}
		return fmt.Sprintf(defaultWelcome, name)
	case entities.ConfigHandoffMessage:
		return defaultHandoff
	case entities.ConfigSuspendedMessage:
		return defaultSuspend
	}
	return ""
}

func isGreeting(content string) bool {
	greetings := []string{"oi", "ola", "bom dia", "boa tarde", "boa noite", "hello", "hi", "e ai"}
	for _, g := range greetings {
		if content == g || strings.HasPrefix(content, g+" ") || strings.HasPrefix(content, g+"!") || strings.HasPrefix(content, g+",") {
			return true
		}
	}
	return false
}

func isMenuCommand(content string) bool {
	switch content {
	case "menu", "ajuda", "help", "opcoes", "?":
		return true
	}
	return false
}

func menuText() string {
	return "📋 *Como posso ajudar:*\n\n" +
		"• Tire dúvidas sobre cadastro e documentação\n" +
		"• Informe-se sobre consultas e produtos\n" +
		"• Digite *atendente* para falar com uma pessoa da equipe"
}

func defaultResponse(rc interfaces.ReplyContext) string {
	if name := firstName(rc.Interlocutor.Name); name != "" {
		return fmt.Sprintf("Obrigado pela mensagem, %s! Digite *menu* para ver as opções ou *atendente* para falar com nossa equipe.", name)
	}
	return "Obrigado pela mensagem! Digite *menu* para ver as opções ou *atendente* para falar com nossa equipe."
}

func firstName(full string) string {
	fields := strings.Fields(full)
	if len(fields) == 0 {
		return ""
	}
	return fields[0]
}
