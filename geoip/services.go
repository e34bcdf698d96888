package geoip

import (
	"fmt"
	"strings"

	"funnelpulse/api/models"
)

// Service is one external IP-lookup vendor. Each vendor returns the same
// facts under different field names, so a Service pairs the endpoint
// template with a mapper from the decoded JSON to our descriptor.
type Service struct {
	Name     string
	Endpoint string // fmt template with one %s for the IP
	Map      func(raw map[string]interface{}) models.Geolocation
}

func (s Service) URLFor(ip string) string {
	return fmt.Sprintf(s.Endpoint, ip)
}

// DefaultServices returns the ordered vendor list. First acceptable
// result wins; the order reflects observed reliability.
func DefaultServices() []Service {
	return []Service{
		{
			Name:     "ipwhois",
			Endpoint: "https://ipwhois.app/json/%s",
			Map: func(raw map[string]interface{}) models.Geolocation {
				return models.Geolocation{
					IP:          strField(raw, "ip"),
					CountryCode: codeField(raw, "country_code"),
					CountryName: strField(raw, "country"),
					City:        strField(raw, "city"),
					Region:      strField(raw, "region"),
				}
			},
		},
		{
			Name:     "ipinfo",
			Endpoint: "https://ipinfo.io/%s/json",
			Map: func(raw map[string]interface{}) models.Geolocation {
				// ipinfo only returns the ISO code; reuse it as the name
				// when the built-in table has no entry.
				code := codeField(raw, "country")
				name := CountryNameFromCode(code)
				if name == "Unknown" && code != "XX" {
					name = code
				}
				return models.Geolocation{
					IP:          strField(raw, "ip"),
					CountryCode: code,
					CountryName: name,
					City:        strField(raw, "city"),
					Region:      strField(raw, "region"),
				}
			},
		},
		{
			Name:     "ipapi",
			Endpoint: "https://ipapi.co/%s/json/",
			Map: func(raw map[string]interface{}) models.Geolocation {
				return models.Geolocation{
					IP:          strField(raw, "ip"),
					CountryCode: codeField(raw, "country_code"),
					CountryName: strField(raw, "country_name"),
					City:        strField(raw, "city"),
					Region:      strField(raw, "region"),
				}
			},
		},
	}
}

func strField(raw map[string]interface{}, key string) string {
	if v, ok := raw[key].(string); ok && v != "" {
		return v
	}
	return "Unknown"
}

func codeField(raw map[string]interface{}, key string) string {
	if v, ok := raw[key].(string); ok && v != "" {
		return strings.ToUpper(v)
	}
	return "XX"
}

var countryNames = map[string]string{
	"BR": "Brazil",
	"US": "United States",
	"PT": "Portugal",
	"ES": "Spain",
	"AR": "Argentina",
	"MX": "Mexico",
	"CA": "Canada",
	"GB": "United Kingdom",
	"FR": "France",
	"DE": "Germany",
	"IT": "Italy",
	"JP": "Japan",
	"CN": "China",
	"IN": "India",
	"AU": "Australia",
	"RU": "Russia",
	"KR": "South Korea",
	"NL": "Netherlands",
}

// CountryNameFromCode maps an ISO 3166-1 alpha-2 code to a display name
// for the locale fallback path. Codes outside the table yield "Unknown".
func CountryNameFromCode(code string) string {
	if name, ok := countryNames[strings.ToUpper(code)]; ok {
		return name
	}
	return "Unknown"
}
