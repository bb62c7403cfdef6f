package robokassa

import (
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"sort"
	"strconv"
	"strings"
)

const (
	// InterfaceTag значение Shp_interface для платежей через ссылку бота
	InterfaceTag = "link"

	shpInterface = "Shp_interface"
	shpUserID    = "Shp_user_id"
)

// Signer считает MD5-подписи протокола Robokassa
type Signer struct {
	merchantLogin string
	password1     string
	password2     string
}

// NewSigner создает Signer из учетных данных магазина
func NewSigner(merchantLogin, password1, password2 string) *Signer {
	return &Signer{
		merchantLogin: merchantLogin,
		password1:     password1,
		password2:     password2,
	}
}

// MerchantLogin логин магазина
func (s *Signer) MerchantLogin() string {
	return s.merchantLogin
}

// FormatOutSum форматирует сумму с шестью знаками после запятой
func FormatOutSum(amount float64) string {
	return strconv.FormatFloat(amount, 'f', 6, 64)
}

// UserTags Shp-параметры, которыми помечается каждый счет
func UserTags(userID int64) map[string]string {
	return map[string]string{
		shpInterface: InterfaceTag,
		shpUserID:    strconv.FormatInt(userID, 10),
	}
}

// Sign подпись исходящего запроса: MerchantLogin:OutSum:InvId:Password1[:Shp_k=v...]
func (s *Signer) Sign(outSum string, invID int64, shp map[string]string) string {
	base := fmt.Sprintf("%s:%s:%d:%s", s.merchantLogin, outSum, invID, s.password1)
	return md5Hex(appendShp(base, shp))
}

// ResultSignature ожидаемая подпись уведомления ResultURL: OutSum:InvId:Password2[:Shp_k=v...]
func (s *Signer) ResultSignature(outSum, invID string, shp map[string]string) string {
	base := fmt.Sprintf("%s:%s:%s", outSum, invID, s.password2)
	return md5Hex(appendShp(base, shp))
}

// Verify проверяет подпись уведомления. OutSum и InvId берутся ровно в том
// виде, в котором пришли. Пустое обязательное поле дает false.
func (s *Signer) Verify(outSum, invID, signature, userID string) bool {
	if outSum == "" || invID == "" || signature == "" || userID == "" {
		return false
	}
	expected := s.ResultSignature(outSum, invID, map[string]string{
		shpInterface: InterfaceTag,
		shpUserID:    userID,
	})
	return strings.EqualFold(signature, expected)
}

// Shp-параметры добавляются в алфавитном порядке ключей
func appendShp(base string, shp map[string]string) string {
	if len(shp) == 0 {
		return base
	}
	keys := make([]string, 0, len(shp))
	for k := range shp {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	b.WriteString(base)
	for _, k := range keys {
		b.WriteString(":")
		b.WriteString(k)
		b.WriteString("=")
		b.WriteString(shp[k])
	}
	return b.String()
}

func md5Hex(s string) string {
	sum := md5.Sum([]byte(s))
	return hex.EncodeToString(sum[:])
}
