package robokassa

import (
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"github.com/Dhoini/paywall-bot/internal/domain"
	"github.com/Dhoini/paywall-bot/pkg/req"
)

// Notification уведомление ResultURL в том виде, в котором оно пришло
type Notification struct {
	OutSum         string `form:"OutSum" validate:"required"`
	InvID          string `form:"InvId" validate:"required"`
	SignatureValue string `form:"SignatureValue" validate:"required"`
	UserID         string `form:"Shp_user_id" validate:"required"`
	Interface      string `form:"Shp_interface" validate:"required"`

	// Raw все поля формы, сохраняются в журнал платежей
	Raw map[string]string `form:"-"`
}

// ConfirmedPayment разобранное и проверенное уведомление
type ConfirmedPayment struct {
	UserID int64
	InvID  int64
	// RawInvID InvId как пришел, эхо в ответе OK<InvId>
	RawInvID string
	Amount   float64
	Raw      map[string]string
}

// MissingFieldsError в уведомлении нет обязательных полей
type MissingFieldsError struct {
	Fields []string
}

func (e *MissingFieldsError) Error() string {
	return "missing fields: " + strings.Join(e.Fields, ", ")
}

// ErrBadInterface Shp_interface не совпадает с InterfaceTag
var ErrBadInterface = fmt.Errorf("bad Shp_interface: %w", domain.ErrInvalidInput)

// NotificationFromForm собирает Notification из полей формы
func NotificationFromForm(form url.Values) Notification {
	raw := make(map[string]string, len(form))
	for k := range form {
		raw[k] = form.Get(k)
	}
	return Notification{
		OutSum:         form.Get("OutSum"),
		InvID:          form.Get("InvId"),
		SignatureValue: form.Get("SignatureValue"),
		UserID:         form.Get(shpUserID),
		Interface:      form.Get(shpInterface),
		Raw:            raw,
	}
}

// Validate проверяет наличие полей и тег маршрутизации
func (n Notification) Validate() error {
	if err := req.IsValid(n); err != nil {
		if fields := req.FailedFields(err, "required"); len(fields) > 0 {
			return &MissingFieldsError{Fields: fields}
		}
		return fmt.Errorf("invalid notification: %w", err)
	}
	if n.Interface != InterfaceTag {
		return ErrBadInterface
	}
	return nil
}

// Parse переводит числовые поля. Запятая в OutSum допускается как десятичный разделитель.
func (n Notification) Parse() (ConfirmedPayment, error) {
	var errs domain.ValidationErrors

	invID, err := strconv.ParseInt(strings.TrimSpace(n.InvID), 10, 64)
	if err != nil || invID <= 0 {
		errs.Add("InvId", "must be a positive integer")
	}
	userID, err := strconv.ParseInt(strings.TrimSpace(n.UserID), 10, 64)
	if err != nil {
		errs.Add(shpUserID, "must be an integer")
	}
	amount, err := ParseAmount(n.OutSum)
	if err != nil {
		errs.Add("OutSum", "must be a decimal number")
	}
	if errs.HasErrors() {
		return ConfirmedPayment{}, errs
	}

	return ConfirmedPayment{
		UserID:   userID,
		InvID:    invID,
		RawInvID: n.InvID,
		Amount:   amount,
		Raw:      n.Raw,
	}, nil
}

// ParseAmount разбирает сумму вида "20000.000000" или "20000,00"
func ParseAmount(s string) (float64, error) {
	s = strings.ReplaceAll(strings.TrimSpace(s), ",", ".")
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid amount %q: %w", s, err)
	}
	if v < 0 {
		return 0, fmt.Errorf("invalid amount %q: negative", s)
	}
	return v, nil
}
