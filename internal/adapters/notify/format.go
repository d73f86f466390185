package notify

import (
	"fmt"
	"html"
	"strings"

	"feedback-bot/internal/domain"
)

// FormatNotification собирает HTML-текст уведомления для чата администраторов.
func FormatNotification(n domain.AdminNotification) string {
	var b strings.Builder
	b.WriteString("📝 <b>Новое обращение</b>\n\n")
	fmt.Fprintf(&b, "🏢 <b>Филиал:</b> %s\n", orDefault(n.Branch, "❌ Не указан"))
	fmt.Fprintf(&b, "👤 <b>От:</b> %s\n", orDefault(n.Name, "🔒 Анонимно"))
	fmt.Fprintf(&b, "📞 <b>Телефон:</b> %s\n\n", orDefault(n.Phone, "❌ Не указан"))
	b.WriteString("💬 <b>Сообщение:</b>\n")
	b.WriteString(html.EscapeString(n.Text))
	b.WriteString("\n\n")
	if len(n.Attachments) > 0 {
		fmt.Fprintf(&b, "📎 Файлов: %d\n", len(n.Attachments))
	}
	fmt.Fprintf(&b, "🆔 ID: #%d\n", n.FeedbackID)
	if !n.CreatedAt.IsZero() {
		fmt.Fprintf(&b, "📅 %s", n.CreatedAt.Local().Format("02.01.2006 15:04"))
	}
	return b.String()
}

func orDefault(value, fallback string) string {
	value = strings.TrimSpace(value)
	if value == "" {
		return fallback
	}
	return html.EscapeString(value)
}
