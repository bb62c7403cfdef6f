package service

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/Dhoini/paywall-bot/internal/domain"
)

const dateLayout = "02.01.2006 15:04"

const (
	payButtonText   = "Оплатить"
	renewButtonText = "🔄 Продлить подписку"
)

func formatDate(t time.Time, loc *time.Location) string {
	return t.In(loc).Format(dateLayout)
}

func formatPrice(price float64) string {
	return strconv.FormatFloat(price, 'f', -1, 64)
}

func accessGrantedText(expiresAt time.Time, loc *time.Location) string {
	return fmt.Sprintf("Оплата прошла успешно ✅\nДоступ к каналу открыт до %s.\n\n🔗 Ссылка на канал ниже 👇",
		formatDate(expiresAt, loc))
}

func chargeFailedText() string {
	return "❌ Не удалось отправить запрос на автосписание.\nПопробуйте оплатить вручную через кнопку ниже."
}

func chargeFailedOperatorText(userID int64, err error) string {
	return fmt.Sprintf("❌ Автосписание не удалось: user=%d, err=%v", userID, err)
}

func expiryWarningText(price float64, currency string, expiresAt time.Time, loc *time.Location) string {
	return fmt.Sprintf("Напоминание: через 3 дня (%s) произойдёт автоматическое списание %s %s за доступ к каналу.",
		formatDate(expiresAt, loc), formatPrice(price), currency)
}

func expiredText() string {
	return "❌ Ваша подписка истекла.\n\nДоступ к закрытому каналу приостановлен.\n\nЧтобы вернуться, продлите подписку 👇"
}

func expiryReportText(r ExpiryReport) string {
	return fmt.Sprintf("📊 Ежедневная проверка подписок:\n\n⚠️ Предупреждений отправлено: %d\n🚫 Пользователей удалено: %d\n❗ Ошибок: %d",
		r.Warned, r.Revoked, r.Failed)
}

func revokeFailedText(userID int64, err error) string {
	return fmt.Sprintf("❗ Подписка user=%d истекла, но удалить из канала не удалось: %v\nУдалите вручную: kick-user", userID, err)
}

func expirySweepFailedText(err error) string {
	return fmt.Sprintf("❌ Ошибка при проверке подписок:\n%v", err)
}

// CancelText ответ на отказ от автопродления
func CancelText(sub domain.Subscription, alreadyCancelled bool, loc *time.Location) string {
	if alreadyCancelled {
		return fmt.Sprintf("🔕 Автоплатёж уже отключён.\nДоступ действует до: %s.", formatDate(sub.ExpiresAt, loc))
	}
	return fmt.Sprintf("🔕 Автоплатёж отключён.\nДоступ к каналу сохранится до: %s.", formatDate(sub.ExpiresAt, loc))
}

// SummaryText описание подписки для личного кабинета
func SummaryText(s domain.SubscriptionSummary, now time.Time, loc *time.Location) string {
	if !s.Active {
		return "У тебя нет активной подписки."
	}
	if !s.ExpiresAt.After(now) {
		return fmt.Sprintf("❌ Твоя подписка истекла %s\n\nНажми кнопку ниже, чтобы продлить 👇", formatDate(s.ExpiresAt, loc))
	}
	if s.CancelRequested {
		return fmt.Sprintf("🔕 Автоплатеж отключён\n📅 Доступ до: %s", formatDate(s.ExpiresAt, loc))
	}
	return fmt.Sprintf("✅ У тебя есть активная подписка\n\n📅 Действует до: %s", formatDate(s.ExpiresAt, loc))
}

// StatsText сводка для операторов
func StatsText(st domain.Stats, testMode bool) string {
	mode := "боевой"
	if testMode {
		mode = "тестовый"
	}
	var b strings.Builder
	fmt.Fprintf(&b, "📊 Статистика бота:\n\n")
	fmt.Fprintf(&b, "👥 Всего пользователей: %d\n", st.TotalUsers)
	fmt.Fprintf(&b, "✅ Активных подписок: %d\n", st.ActiveSubscriptions)
	fmt.Fprintf(&b, "❌ Истекших подписок: %d\n", st.ExpiredActive)
	fmt.Fprintf(&b, "💰 Всего платежей: %d\n\n", st.TotalPayments)
	fmt.Fprintf(&b, "📈 Воронка продаж:\n")
	for _, state := range []string{domain.StateStart, domain.StateWant, domain.StatePayment, domain.StatePaid} {
		fmt.Fprintf(&b, "• %s: %d\n", state, st.Funnel[state])
	}
	fmt.Fprintf(&b, "\nРежим Robokassa: %s", mode)
	return b.String()
}

// ManualConfirmText ответ оператору после ручного подтверждения
func ManualConfirmText(userID, invID int64, res ConfirmResult, loc *time.Location) string {
	if res.Duplicate {
		return fmt.Sprintf("ℹ️ Заказ #%d уже был подтвержден ранее.", invID)
	}
	return fmt.Sprintf("✅ Оплата подтверждена!\n\n👤 Пользователь: %d\n🧾 Заказ: #%d\n📅 Подписка до: %s",
		userID, invID, formatDate(res.Subscription.ExpiresAt, loc))
}
