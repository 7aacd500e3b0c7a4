package bot

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/korjavin/leadbot/config"
	"github.com/korjavin/leadbot/database"
	"github.com/korjavin/leadbot/logx"
	"github.com/korjavin/leadbot/models"
	"github.com/korjavin/leadbot/report"
	"github.com/korjavin/leadbot/session"
	"github.com/korjavin/leadbot/survey"
	"github.com/korjavin/leadbot/utm"
)

const (
	cmdStart   = "start"
	cmdRestart = "restart"
	cmdHelp    = "help"
	cmdStat    = "stat"
	cmdPrereg  = "prereg"
	cmdMyPrice = "my_price"

	callbackAnswer  = "answer:"
	callbackNext    = "next:"
	callbackWelcome = "welcome:"
	callbackFinal   = "final:"

	preregTariff = "Pro 2 990 ₽"

	reporterTimeout = 2 * time.Minute
)

// StatsReader reads lead counters back from the tabular store.
type StatsReader interface {
	Stats(ctx context.Context) (total, today int, err error)
}

// Bot wires the Telegram transport to the survey engine. Updates are
// handled one at a time in arrival order, so a single user's events are
// strictly sequential; only the completion sinks run in the background.
type Bot struct {
	api       *tgbotapi.BotAPI
	cfg       *config.Config
	engine    *survey.Engine
	sessions  *session.Registry
	reminders *session.Reminders
	reporter  *report.Reporter
	db        *database.DB
	stats     StatsReader
}

// New creates a new bot instance. sink and stats may be nil when the sheet
// integration is disabled.
func New(cfg *config.Config, engine *survey.Engine, db *database.DB, sink report.Appender, stats StatsReader) (*Bot, error) {
	botAPI, err := tgbotapi.NewBotAPI(cfg.BotToken)
	if err != nil {
		return nil, fmt.Errorf("failed to create bot API: %w", err)
	}

	botAPI.Debug = cfg.Debug

	notifier := &channelNotifier{api: botAPI, chatID: cfg.ChannelID}
	reporter := report.New(engine.Catalog(), sink, notifier, db)

	return &Bot{
		api:       botAPI,
		cfg:       cfg,
		engine:    engine,
		sessions:  session.NewRegistry(),
		reminders: session.NewReminders(),
		reporter:  reporter,
		db:        db,
		stats:     stats,
	}, nil
}

// Reporter exposes the reporter for the -setup-headers run.
func (b *Bot) Reporter() *report.Reporter {
	return b.reporter
}

// Start starts the bot and listens for updates
func (b *Bot) Start() {
	logx.Infof("Starting bot polling...")

	u := tgbotapi.NewUpdate(0)
	u.Timeout = 60

	updates := b.api.GetUpdatesChan(u)

	for update := range updates {
		if update.CallbackQuery != nil {
			b.handleCallback(update.CallbackQuery)
		} else if update.Message != nil {
			b.handleMessage(update.Message)
		}
	}
}

// Stop cancels pending reminders and shuts the update channel down.
func (b *Bot) Stop() {
	b.reminders.StopAll()
	b.api.StopReceivingUpdates()
}

// handleMessage processes incoming messages
func (b *Bot) handleMessage(message *tgbotapi.Message) {
	userID := message.From.ID
	logx.Debugf("Received message from %s (ID: %d): %s", message.From.UserName, userID, message.Text)

	if !message.IsCommand() {
		b.sendMessage(message.Chat.ID, "👋 Привет! Нажмите /start чтобы начать заполнение анкеты или /help для справки.")
		return
	}

	switch message.Command() {
	case cmdStart:
		b.handleStartCommand(message)
	case cmdRestart:
		b.handleRestartCommand(message)
	case cmdHelp:
		b.handleHelpCommand(message)
	case cmdStat:
		b.handleStatCommand(message)
	case cmdPrereg:
		b.handlePreregCommand(message)
	case cmdMyPrice:
		b.handleMyPriceCommand(message)
	default:
		b.sendMessage(message.Chat.ID, "Неизвестная команда. Используйте /start для начала анкеты или /help для справки.")
	}
}

// handleStartCommand starts a fresh survey, replacing any session in
// progress. The deep-link payload, if any, carries attribution tags.
func (b *Bot) handleStartCommand(message *tgbotapi.Message) {
	userID := message.From.ID
	tags := utm.Parse(message.CommandArguments())
	if len(tags) > 0 {
		logx.Infof("UTM tags for user %d: %v", userID, tags)
	}

	b.reminders.Cancel(userID)

	s := b.sessions.Reset(userID)
	b.engine.Start(s, message.From.UserName, tags)

	if err := b.db.LogEvent(userID, "survey_start", s.LeadID); err != nil {
		logx.Warnf("Failed to log survey_start for user %d: %v", userID, err)
	}

	welcome := b.engine.Catalog().Welcome
	keyboard := tgbotapi.NewInlineKeyboardMarkup(
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData(welcome.StartButton, callbackWelcome+"0"),
		),
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData(welcome.LaterButton, callbackWelcome+"1"),
		),
	)

	msg := tgbotapi.NewMessage(message.Chat.ID, welcome.Title)
	msg.ReplyMarkup = keyboard
	if _, err := b.api.Send(msg); err != nil {
		logx.Errorf("Error sending welcome message: %v", err)
	}
}

func (b *Bot) handleRestartCommand(message *tgbotapi.Message) {
	b.handleStartCommand(message)
}

// handleHelpCommand handles the /help command
func (b *Bot) handleHelpCommand(message *tgbotapi.Message) {
	helpText := `🤖 Доступные команды:

📝 Анкета:
/start — Начать заполнение анкеты
/restart — Перезапустить анкету

💰 Предзапись:
/prereg — Создать предзапись
/my_price — Показать ваш код цены

❓ Справка:
/stat — Статистика лидов
/help — Показать эту справку`

	b.sendMessage(message.Chat.ID, helpText)
}

// handleStatCommand reports lead counters from the sheet plus local state.
func (b *Bot) handleStatCommand(message *tgbotapi.Message) {
	total, today := 0, 0
	if b.stats != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		var err error
		total, today, err = b.stats.Stats(ctx)
		if err != nil {
			logx.Errorf("Error reading lead stats: %v", err)
			b.sendMessage(message.Chat.ID, "Не удалось получить статистику, попробуйте позже.")
			return
		}
	}

	backlog, err := b.db.BackupCount()
	if err != nil {
		logx.Warnf("Failed to count backed up leads: %v", err)
	}

	b.sendMessage(message.Chat.ID, fmt.Sprintf(
		"📊 Статистика:\n\nВсего лидов: %d\nСегодня: %d\nВ локальном бэкапе: %d\nАктивных анкет: %d",
		total, today, backlog, b.sessions.Len()))
}

// handlePreregCommand creates or refreshes the user's price-lock code.
func (b *Bot) handlePreregCommand(message *tgbotapi.Message) {
	userID := message.From.ID
	p, err := b.db.UpsertPrereg(userID, preregTariff)
	if err != nil {
		logx.Errorf("Error creating prereg for user %d: %v", userID, err)
		b.sendMessage(message.Chat.ID, "❌ Ошибка создания предзаписи. Попробуйте позже.")
		return
	}

	if err := b.db.LogEvent(userID, "prereg_lock", p.Code); err != nil {
		logx.Warnf("Failed to log prereg_lock for user %d: %v", userID, err)
	}

	b.sendMessage(message.Chat.ID, fmt.Sprintf(
		"✅ Предзапись закреплена!\nКод цены: %s\nТариф: %s\nДействует до: %s\nВаш номер в очереди: №%d",
		p.Code, p.Tariff, p.ValidTo.Format("02.01.2006"), p.Place))
}

// handleMyPriceCommand shows the user's stored price-lock code.
func (b *Bot) handleMyPriceCommand(message *tgbotapi.Message) {
	p, err := b.db.GetPrereg(message.From.ID)
	if err != nil {
		logx.Errorf("Error reading prereg for user %d: %v", message.From.ID, err)
		b.sendMessage(message.Chat.ID, "❌ Ошибка получения кода цены.")
		return
	}
	if p == nil {
		b.sendMessage(message.Chat.ID, "❌ Предзапись не найдена\n💡 Используйте /prereg для создания предзаписи")
		return
	}

	b.sendMessage(message.Chat.ID, fmt.Sprintf(
		"💳 Ваш код цены\n\nКод: %s\nТариф: %s\nДействует до: %s",
		p.Code, p.Tariff, p.ValidTo.Format("02.01.2006")))
}

// handleCallback processes callback queries from inline buttons
func (b *Bot) handleCallback(callback *tgbotapi.CallbackQuery) {
	userID := callback.From.ID
	data := callback.Data
	logx.Debugf("Handling callback from user %s (ID: %d) with data: %s", callback.From.UserName, userID, data)

	switch {
	case strings.HasPrefix(data, callbackWelcome):
		b.handleWelcomeCallback(callback)
	case strings.HasPrefix(data, callbackAnswer):
		b.handleAnswerCallback(callback)
	case strings.HasPrefix(data, callbackNext):
		b.handleConfirmCallback(callback)
	case strings.HasPrefix(data, callbackFinal):
		b.handleFinalCallback(callback)
	default:
		logx.Warnf("Unknown callback data from user %d: %s", userID, data)
		b.ackCallback(callback.ID, "")
	}
}

// handleWelcomeCallback reacts to the welcome-screen buttons: begin the
// survey, or postpone it and schedule a reminder.
func (b *Bot) handleWelcomeCallback(callback *tgbotapi.CallbackQuery) {
	userID := callback.From.ID
	chatID := callback.Message.Chat.ID

	s, ok := b.sessions.Get(userID)
	if !ok || s.Cursor != session.CursorWelcome {
		b.ackCallback(callback.ID, "")
		b.sendMessage(chatID, "Нажмите /start чтобы начать заполнение анкеты.")
		return
	}

	if strings.TrimPrefix(callback.Data, callbackWelcome) == "0" {
		b.ackCallback(callback.ID, "")
		q := b.engine.Begin(s)
		if q != nil {
			b.renderQuestion(chatID, s, q)
		}
		return
	}

	// "Later": drop the session and come back on the reminder.
	b.ackCallback(callback.ID, "Хорошо, возвращайтесь когда будете готовы! 👋")
	b.sessions.Close(userID)
	b.scheduleReminder(userID, chatID)
	b.editMessage(chatID, callback.Message.MessageID, "Хорошо, возвращайтесь когда будете готовы! 👋")
}

// handleAnswerCallback applies an option selection to the survey engine.
func (b *Bot) handleAnswerCallback(callback *tgbotapi.CallbackQuery) {
	userID := callback.From.ID
	chatID := callback.Message.Chat.ID

	questionID, optionIdx, err := parseAnswerData(callback.Data)
	if err != nil {
		logx.Warnf("Malformed answer callback from user %d: %s", userID, callback.Data)
		b.ackCallback(callback.ID, "")
		return
	}

	s, ok := b.sessions.Get(userID)
	if !ok {
		b.ackCallback(callback.ID, "")
		b.sendMessage(chatID, "Анкета не начата. Нажмите /start чтобы начать.")
		return
	}

	action, err := b.engine.Apply(s, questionID, optionIdx)
	switch {
	case errors.Is(err, survey.ErrInvalidState):
		// Stale button from a previous question; re-render the current one.
		b.ackCallback(callback.ID, "Давайте по порядку 🙂")
		b.renderCurrent(chatID, s)
		return
	case errors.Is(err, survey.ErrInvalidInput):
		b.ackCallback(callback.ID, "Некорректный вариант ответа")
		return
	case err != nil:
		logx.Errorf("Error applying answer for user %d: %v", userID, err)
		b.ackCallback(callback.ID, "")
		return
	}

	b.ackCallback(callback.ID, "")
	b.dispatch(chatID, userID, s, callback.Message.MessageID, action)
}

// handleConfirmCallback finishes a multi-select question.
func (b *Bot) handleConfirmCallback(callback *tgbotapi.CallbackQuery) {
	userID := callback.From.ID
	chatID := callback.Message.Chat.ID
	questionID := strings.TrimPrefix(callback.Data, callbackNext)

	s, ok := b.sessions.Get(userID)
	if !ok {
		b.ackCallback(callback.ID, "")
		b.sendMessage(chatID, "Анкета не начата. Нажмите /start чтобы начать.")
		return
	}

	action, err := b.engine.Confirm(s, questionID)
	switch {
	case errors.Is(err, survey.ErrInvalidState):
		b.ackCallback(callback.ID, "Давайте по порядку 🙂")
		b.renderCurrent(chatID, s)
		return
	case errors.Is(err, survey.ErrInvalidInput):
		b.ackCallback(callback.ID, "Пожалуйста, выберите хотя бы один вариант")
		return
	case err != nil:
		logx.Errorf("Error confirming question for user %d: %v", userID, err)
		b.ackCallback(callback.ID, "")
		return
	}

	b.ackCallback(callback.ID, "")
	b.dispatch(chatID, userID, s, callback.Message.MessageID, action)
}

// handleFinalCallback reacts to the post-completion buttons.
func (b *Bot) handleFinalCallback(callback *tgbotapi.CallbackQuery) {
	userID := callback.From.ID
	chatID := callback.Message.Chat.ID

	if strings.TrimPrefix(callback.Data, callbackFinal) == "0" {
		b.ackCallback(callback.ID, "🔒 Создаю предзапись...")
		p, err := b.db.UpsertPrereg(userID, preregTariff)
		if err != nil {
			logx.Errorf("Error creating prereg for user %d: %v", userID, err)
			b.sendMessage(chatID, "❌ Ошибка создания предзаписи. Попробуйте позже.")
			return
		}
		if err := b.db.LogEvent(userID, "prereg_lock", p.Code); err != nil {
			logx.Warnf("Failed to log prereg_lock for user %d: %v", userID, err)
		}
		b.sendMessage(chatID, fmt.Sprintf(
			"✅ Готово! Вы в приоритете.\nКод цены: %s\nЦена фиксирована до %s.\nВаш номер в очереди: №%d",
			p.Code, p.ValidTo.Format("02.01.2006"), p.Place))
		return
	}

	b.ackCallback(callback.ID, "Спасибо за участие!")
	b.editMessage(chatID, callback.Message.MessageID, "👋 Спасибо за участие в опросе!")
}

// dispatch reacts to the engine's verdict on an applied event.
func (b *Bot) dispatch(chatID, userID int64, s *session.Session, messageID int, action survey.Action) {
	switch action.Kind {
	case survey.ActionAwaitConfirm:
		// Same question, updated selection marks.
		b.editKeyboard(chatID, messageID, b.questionKeyboard(s, action.Question))
	case survey.ActionRender:
		b.renderQuestion(chatID, s, action.Question)
	case survey.ActionComplete:
		b.completeSurvey(chatID, userID, action.Record)
	}
}

// completeSurvey acknowledges completion to the user, tears the session
// down and hands the record to the sinks in the background. The user sees
// "complete" regardless of sink outcomes.
func (b *Bot) completeSurvey(chatID, userID int64, record *models.Lead) {
	if err := b.checkFormatting(record); err != nil {
		// The session stays alive so the user can be told to start over.
		logx.Errorf("Lead %s formatting failed: %v", record.LeadID, err)
		b.sendMessage(chatID, "Что-то пошло не так при обработке анкеты 😔 Нажмите /restart чтобы пройти её заново.")
		return
	}

	if err := b.db.LogEvent(userID, "survey_complete", record.LeadID); err != nil {
		logx.Warnf("Failed to log survey_complete for user %d: %v", userID, err)
	}

	b.sessions.Close(userID)

	final := b.engine.Catalog().Final
	keyboard := tgbotapi.NewInlineKeyboardMarkup(
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData(final.PreregButton, callbackFinal+"0"),
		),
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData(final.DoneButton, callbackFinal+"1"),
		),
	)
	msg := tgbotapi.NewMessage(chatID, final.Title)
	msg.ReplyMarkup = keyboard
	if _, err := b.api.Send(msg); err != nil {
		logx.Errorf("Error sending final message: %v", err)
	}

	go func() {
		defer func() {
			if r := recover(); r != nil {
				logx.Errorf("Recovered from panic while reporting lead %s: %v", record.LeadID, r)
			}
		}()
		ctx, cancel := context.WithTimeout(context.Background(), reporterTimeout)
		defer cancel()
		b.reporter.Report(ctx, record)
	}()
}

// checkFormatting runs the row and summary formatting once up front, so a
// broken record aborts completion before the session is torn down.
func (b *Bot) checkFormatting(record *models.Lead) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("formatting panicked: %v", r)
		}
	}()
	b.reporter.Row(record)
	b.reporter.Summary(record, true)
	return nil
}

// scheduleReminder installs the come-back-later nudge, replacing any
// pending one for the user.
func (b *Bot) scheduleReminder(userID, chatID int64) {
	b.reminders.Schedule(userID, b.cfg.ReminderDelay, func() {
		b.sendMessage(chatID,
			"🔔 Напоминание! Не забудьте пройти анкету для получения персонального предложения.\n\nНажмите /start чтобы начать.")
		if err := b.db.LogEvent(userID, "reminder_sent", ""); err != nil {
			logx.Warnf("Failed to log reminder_sent for user %d: %v", userID, err)
		}
	})
	if err := b.db.LogEvent(userID, "reminder_scheduled", b.cfg.ReminderDelay.String()); err != nil {
		logx.Warnf("Failed to log reminder_scheduled for user %d: %v", userID, err)
	}
	logx.Infof("Scheduled reminder for user %d in %s", userID, b.cfg.ReminderDelay)
}

// renderCurrent re-renders whatever question the cursor points at.
func (b *Bot) renderCurrent(chatID int64, s *session.Session) {
	q, ok := b.engine.Catalog().ByID(s.Cursor)
	if !ok {
		b.sendMessage(chatID, "Нажмите /start чтобы начать заполнение анкеты.")
		return
	}
	b.renderQuestion(chatID, s, q)
}

// renderQuestion sends the question prompt with its option keyboard.
func (b *Bot) renderQuestion(chatID int64, s *session.Session, q *models.Question) {
	msg := tgbotapi.NewMessage(chatID, q.Prompt)
	msg.ReplyMarkup = b.questionKeyboard(s, q)
	if _, err := b.api.Send(msg); err != nil {
		logx.Errorf("Error sending question %s: %v", q.ID, err)
	}
}

// questionKeyboard builds the option keyboard. Multi-select questions get
// check marks on selected options and a confirmation button; options are
// addressed by index, never by label.
func (b *Bot) questionKeyboard(s *session.Session, q *models.Question) tgbotapi.InlineKeyboardMarkup {
	var rows [][]tgbotapi.InlineKeyboardButton
	for i, option := range q.Options {
		label := option
		if q.Mode == models.ModeMulti {
			mark := "⬜"
			if b.engine.Selected(s, q.ID, option) {
				mark = "✅"
			}
			label = mark + " " + option
		}
		data := fmt.Sprintf("%s%s:%d", callbackAnswer, q.ID, i)
		rows = append(rows, tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData(label, data)))
	}
	if q.Mode == models.ModeMulti {
		rows = append(rows, tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("➡️ Далее", callbackNext+q.ID)))
	}
	return tgbotapi.NewInlineKeyboardMarkup(rows...)
}

// parseAnswerData splits "answer:<question_id>:<option_index>".
func parseAnswerData(data string) (questionID string, optionIdx int, err error) {
	parts := strings.Split(strings.TrimPrefix(data, callbackAnswer), ":")
	if len(parts) != 2 {
		return "", 0, fmt.Errorf("malformed answer callback: %s", data)
	}
	idx, err := strconv.Atoi(parts[1])
	if err != nil {
		return "", 0, fmt.Errorf("malformed option index in %q: %w", data, err)
	}
	return parts[0], idx, nil
}

// sendMessage sends a text message
func (b *Bot) sendMessage(chatID int64, text string) {
	msg := tgbotapi.NewMessage(chatID, text)
	if _, err := b.api.Send(msg); err != nil {
		logx.Errorf("Error sending message: %v", err)
	}
}

// editMessage edits an existing message
func (b *Bot) editMessage(chatID int64, messageID int, newText string) {
	edit := tgbotapi.NewEditMessageText(chatID, messageID, newText)
	if _, err := b.api.Send(edit); err != nil {
		logx.Errorf("Error editing message: %v", err)
	}
}

// editKeyboard replaces the inline keyboard of an existing message.
func (b *Bot) editKeyboard(chatID int64, messageID int, keyboard tgbotapi.InlineKeyboardMarkup) {
	edit := tgbotapi.NewEditMessageReplyMarkup(chatID, messageID, keyboard)
	if _, err := b.api.Send(edit); err != nil {
		logx.Errorf("Error updating keyboard: %v", err)
	}
}

// ackCallback sends a response to a callback query
func (b *Bot) ackCallback(callbackID, text string) {
	callback := tgbotapi.NewCallback(callbackID, text)
	if _, err := b.api.Request(callback); err != nil {
		logx.Errorf("Error sending callback response: %v", err)
	}
}

// channelNotifier delivers lead summaries to the private admin channel.
type channelNotifier struct {
	api    *tgbotapi.BotAPI
	chatID int64
}

func (n *channelNotifier) Notify(text string) error {
	_, err := n.api.Send(tgbotapi.NewMessage(n.chatID, text))
	return err
}
