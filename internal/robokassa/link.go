package robokassa

import (
	"net/url"
	"strconv"
	"strings"
)

// DefaultPaymentURL страница оплаты (казахстанский хост)
const DefaultPaymentURL = "https://auth.robokassa.kz/Merchant/Index.aspx"

// LinkRequest параметры ссылки на оплату
type LinkRequest struct {
	InvID       int64
	Amount      float64
	Description string
	UserID      int64
	// Recurring разрешает последующие списания по этому счету
	Recurring bool
	// PreviousInvID передается вместе с Recurring, 0 если не нужен
	PreviousInvID int64
}

// LinkBuilder собирает подписанные ссылки на оплату
type LinkBuilder struct {
	signer   *Signer
	baseURL  string
	testMode bool
}

// NewLinkBuilder создает LinkBuilder. Пустой baseURL заменяется на DefaultPaymentURL.
func NewLinkBuilder(signer *Signer, baseURL string, testMode bool) *LinkBuilder {
	if baseURL == "" {
		baseURL = DefaultPaymentURL
	}
	return &LinkBuilder{signer: signer, baseURL: baseURL, testMode: testMode}
}

// Build возвращает ссылку на оплату
func (b *LinkBuilder) Build(r LinkRequest) string {
	outSum := FormatOutSum(r.Amount)
	invID := strconv.FormatInt(r.InvID, 10)
	userID := strconv.FormatInt(r.UserID, 10)
	signature := b.signer.Sign(outSum, r.InvID, UserTags(r.UserID))

	params := []string{
		"MerchantLogin=" + url.QueryEscape(b.signer.MerchantLogin()),
		"OutSum=" + outSum,
		"InvId=" + invID,
		"Description=" + url.QueryEscape(r.Description),
		"SignatureValue=" + signature,
		"Culture=ru",
		"Encoding=utf-8",
		shpInterface + "=" + InterfaceTag,
		shpUserID + "=" + userID,
	}
	if r.Recurring {
		params = append(params, "Recurring=true")
		if r.PreviousInvID > 0 {
			params = append(params, "PreviousInvoiceID="+strconv.FormatInt(r.PreviousInvID, 10))
		}
	}
	if b.testMode {
		params = append(params, "IsTest=1")
	}

	return b.baseURL + "?" + strings.Join(params, "&")
}
