package robokassa

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/Dhoini/paywall-bot/internal/domain"
	"github.com/Dhoini/paywall-bot/pkg/logger"
)

const (
	// DefaultRecurringURL адрес для дочерних рекуррентных платежей
	DefaultRecurringURL = "https://auth.robokassa.kz/Merchant/Recurring"

	// DefaultRecurringTimeout общий таймаут запроса списания
	DefaultRecurringTimeout = 20 * time.Second

	serviceName = "robokassa"
)

// ChargeRequest дочернее списание по первичному счету
type ChargeRequest struct {
	UserID        int64
	InvID         int64
	PreviousInvID int64
	Amount        float64
	Description   string
}

// RecurringClient отправляет рекуррентные списания.
// Ответ OK означает, что операция создана; факт оплаты приходит на ResultURL.
type RecurringClient struct {
	signer     *Signer
	endpoint   string
	httpClient *http.Client
	log        *logger.Logger
}

// NewRecurringClient создает клиента. Пустой endpoint заменяется на DefaultRecurringURL,
// нулевой timeout на DefaultRecurringTimeout.
func NewRecurringClient(signer *Signer, endpoint string, timeout time.Duration, log *logger.Logger) *RecurringClient {
	if endpoint == "" {
		endpoint = DefaultRecurringURL
	}
	if timeout <= 0 {
		timeout = DefaultRecurringTimeout
	}
	return &RecurringClient{
		signer:     signer,
		endpoint:   endpoint,
		httpClient: &http.Client{Timeout: timeout},
		log:        log,
	}
}

// Charge отправляет запрос списания. Любой ответ кроме 200 с телом "OK..."
// возвращается как *domain.ExternalServiceError.
func (c *RecurringClient) Charge(ctx context.Context, r ChargeRequest) error {
	outSum := FormatOutSum(r.Amount)
	signature := c.signer.Sign(outSum, r.InvID, UserTags(r.UserID))

	form := url.Values{}
	form.Set("MerchantLogin", c.signer.MerchantLogin())
	form.Set("InvoiceID", strconv.FormatInt(r.InvID, 10))
	form.Set("PreviousInvoiceID", strconv.FormatInt(r.PreviousInvID, 10))
	form.Set("OutSum", outSum)
	form.Set("Description", r.Description)
	form.Set("SignatureValue", signature)
	form.Set(shpInterface, InterfaceTag)
	form.Set(shpUserID, strconv.FormatInt(r.UserID, 10))

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return fmt.Errorf("failed to build recurring request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return domain.NewExternalServiceError(serviceName, "request_failed", "recurring request failed", 0, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	if err != nil {
		return domain.NewExternalServiceError(serviceName, "read_failed", "failed to read recurring response", resp.StatusCode, err)
	}
	text := strings.TrimSpace(string(body))

	if resp.StatusCode != http.StatusOK || !strings.HasPrefix(text, "OK") {
		return domain.NewExternalServiceError(serviceName, "rejected",
			fmt.Sprintf("recurring rejected: %d %s", resp.StatusCode, text), resp.StatusCode, nil)
	}

	c.log.Infow("Recurring charge accepted", "userID", r.UserID, "invID", r.InvID, "anchor", r.PreviousInvID)
	return nil
}
