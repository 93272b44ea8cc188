package lazada

import (
	"strings"

	"github.com/hitoshi/shopsync/internal/model"
)

// Country はLazadaの対応国を表す。
type Country string

const (
	CountrySingapore   Country = "sg"
	CountryIndonesia   Country = "id"
	CountryMalaysia    Country = "my"
	CountryPhilippines Country = "ph"
	CountryVietnam     Country = "vn"
	CountryThailand    Country = "th"
)

// countryGateways は国ごとのAPIゲートウェイURL。
var countryGateways = map[Country]string{
	CountrySingapore:   "https://api.lazada.sg/rest",
	CountryIndonesia:   "https://api.lazada.co.id/rest",
	CountryMalaysia:    "https://api.lazada.com.my/rest",
	CountryPhilippines: "https://api.lazada.com.ph/rest",
	CountryVietnam:     "https://api.lazada.vn/rest",
	CountryThailand:    "https://api.lazada.co.th/rest",
}

// CountryFromRegion は国・地域コードをCountryに変換する。
// 未対応のコードは不定のゲートウェイに落とさず、必ずエラーを返す。
func CountryFromRegion(region string) (Country, error) {
	c := Country(strings.ToLower(region))
	if _, ok := countryGateways[c]; !ok {
		return "", model.NewUnsupportedRegionError(region)
	}
	return c, nil
}

// GatewayURL は国のAPIゲートウェイURLを返す。
func (c Country) GatewayURL() string {
	return countryGateways[c]
}
