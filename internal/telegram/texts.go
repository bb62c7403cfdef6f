package telegram

const (
	channelButtonText = "🔗 Перейти в канал"
	payButtonText     = "💳 Оплатить"
	accountButtonText = "👤 Личный кабинет"
	cancelButtonText  = "🚫 Отключить автоплатёж"
	subscribeText     = "Оформить подписку"
)

// данные callback-кнопок
const (
	callbackPay     = "pay"
	callbackAccount = "account"
	callbackCancel  = "cancel"
)

const (
	welcomeText = "Добро пожаловать!\nЗакрытый канал по подписке. Автопродление каждый месяц, отписаться можно в любой момент."

	paymentText      = "Нажмите «Оплатить», чтобы оформить доступ. Автопродление каждый месяц."
	paymentErrorText = "Не удалось создать ссылку на оплату. Попробуйте позже или напишите администратору."

	accountHeader = "👤 Личный кабинет\n\n"
	noSubText     = "❌ У тебя нет активной подписки."

	questionSavedText = "Спасибо! Вопрос передан, ответим в ближайшее время.\n\nГотов оформить подписку?"

	joinDeclinedText = "Доступ к каналу открывается после оплаты подписки 👇"

	adminOnlyText      = "Команда доступна только администратору."
	confirmUsageText   = "Использование: /confirm_payment <user_id> <inv_id>"
	checkStartedText   = "🔍 Запускаю проверку подписок..."
	checkDoneText      = "✅ Проверка завершена!"
	checkBusyText      = "⏳ Проверка уже идет, итог придет отдельным сообщением."
	internalErrorText  = "Произошла ошибка, попробуйте позже."
	unknownCommandText = "Неизвестная команда."
)

const (
	helpText = `📋 Доступные команды:

/start - главное меню
/subscribe - оформить подписку
/check - статус подписки
/account - личный кабинет
/unsubscribe - отключить автоплатёж
/help - эта справка`

	adminHelpText = `👑 Команды администратора:

/stats - статистика
/confirm_payment <user_id> <inv_id> - подтвердить платеж вручную
/check_subs - проверить истекающие подписки`
)
