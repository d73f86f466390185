package conversation

import (
	"context"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"
)

// Option — кнопка под сообщением.
type Option struct {
	Label string
	Data  string
}

// Prompt — сообщение, которое транспорт должен показать пользователю.
type Prompt struct {
	Text    string
	Options [][]Option
	// RequestContact просит показать кнопку отправки номера телефона.
	RequestContact bool
	// RemoveKeyboard убирает ранее показанную клавиатуру ответа.
	RemoveKeyboard bool
}

// Replier доставляет подсказки, появившиеся вне обработки входящего события.
type Replier interface {
	Reply(ctx context.Context, chatID int64, p Prompt)
}

func choiceOption(label string, c Choice) Option {
	return Option{Label: label, Data: c.Data()}
}

func branchPrompt(branches []string, greet bool) Prompt {
	var b strings.Builder
	if greet {
		b.WriteString("👋 Здравствуйте! Здесь можно оставить отзыв или предложение.\n")
		b.WriteString("Вы сами решите, оставаться ли анонимным.\n\n")
	}
	b.WriteString("🏢 Выберите филиал:")
	rows := make([][]Option, 0, (len(branches)+1)/2)
	for i := 0; i < len(branches); i += 2 {
		row := []Option{choiceOption(branches[i], Choice{Action: ActionBranch, Value: strconv.Itoa(i)})}
		if i+1 < len(branches) {
			row = append(row, choiceOption(branches[i+1], Choice{Action: ActionBranch, Value: strconv.Itoa(i + 1)}))
		}
		rows = append(rows, row)
	}
	return Prompt{Text: b.String(), Options: rows}
}

func rateLimitedPrompt(wait time.Duration) Prompt {
	seconds := int(math.Ceil(wait.Seconds()))
	if seconds < 1 {
		seconds = 1
	}
	return Prompt{Text: fmt.Sprintf("⏳ Вы недавно отправляли обращение. Повторите через %d сек.", seconds)}
}

func feedbackTextPrompt(branch string) Prompt {
	return Prompt{Text: fmt.Sprintf("🏢 Филиал: %s\n\n✍️ Напишите ваше сообщение:", branch)}
}

func feedbackTextInvalidPrompt() Prompt {
	return Prompt{Text: "⚠️ Сообщение не может быть пустым или командой. Напишите текст отзыва:"}
}

func attachDecisionPrompt(key FeedbackKey) Prompt {
	return Prompt{
		Text: "📎 Хотите прикрепить фото или документы?",
		Options: [][]Option{{
			choiceOption("✅ Да", Choice{Action: ActionAttach, Value: ValueYes, Key: key}),
			choiceOption("➡️ Нет", Choice{Action: ActionAttach, Value: ValueNo, Key: key}),
		}},
	}
}

func awaitAttachmentsPrompt(key FeedbackKey) Prompt {
	return Prompt{
		Text: "📤 Отправьте фото или документы. Можно несколько сразу.",
		Options: [][]Option{{
			choiceOption("✅ Готово", Choice{Action: ActionFiles, Value: ValueDone, Key: key}),
		}},
	}
}

func filesReceivedPrompt(key FeedbackKey, total int) Prompt {
	return Prompt{
		Text: fmt.Sprintf("📎 Получено файлов: %d. Отправьте ещё или нажмите «Готово».", total),
		Options: [][]Option{{
			choiceOption("✅ Готово", Choice{Action: ActionFiles, Value: ValueDone, Key: key}),
			choiceOption("➕ Добавить ещё", Choice{Action: ActionFiles, Value: ValueMore, Key: key}),
		}},
	}
}

func attachmentFailedPrompt(key FeedbackKey) Prompt {
	return Prompt{
		Text: "⚠️ Не удалось сохранить файл. Попробуйте отправить его ещё раз.",
		Options: [][]Option{{
			choiceOption("✅ Готово", Choice{Action: ActionFiles, Value: ValueDone, Key: key}),
		}},
	}
}

func identityPrompt(key FeedbackKey) Prompt {
	return Prompt{
		Text: "🔒 Остаться анонимным или указать контактные данные?",
		Options: [][]Option{{
			choiceOption("🔒 Анонимно", Choice{Action: ActionIdentity, Value: ValueAnon, Key: key}),
			choiceOption("👤 Указать данные", Choice{Action: ActionIdentity, Value: ValueDetails, Key: key}),
		}},
	}
}

func namePrompt() Prompt {
	return Prompt{Text: "👤 Как к вам обращаться?"}
}

func nameInvalidPrompt() Prompt {
	return Prompt{Text: "⚠️ Укажите имя текстом:"}
}

func phonePrompt() Prompt {
	return Prompt{Text: "📞 Укажите номер телефона или нажмите кнопку ниже:", RequestContact: true}
}

func phoneInvalidPrompt() Prompt {
	return Prompt{Text: "⚠️ Номер выглядит некорректно. Пример: +998901234567", RequestContact: true}
}

func thanksPrompt(id int64) Prompt {
	return Prompt{
		Text:           fmt.Sprintf("✅ Спасибо! Ваше обращение #%d принято.\n\nЧтобы отправить ещё одно, используйте /new", id),
		RemoveKeyboard: true,
	}
}

func saveFailedPrompt(key FeedbackKey) Prompt {
	return Prompt{
		Text: "❌ Не удалось сохранить обращение. Попробуйте ещё раз.",
		Options: [][]Option{{
			choiceOption("🔁 Повторить", Choice{Action: ActionRetry, Value: ValueSubmit, Key: key}),
		}},
	}
}

func notFoundPrompt() Prompt {
	return Prompt{Text: "⚠️ Обращение не найдено. Пожалуйста, отправьте его заново: /new", RemoveKeyboard: true}
}

func cancelledPrompt() Prompt {
	return Prompt{Text: "Обращение отменено. Чтобы начать заново, используйте /new", RemoveKeyboard: true}
}
