package localize

import (
	"encoding/json"
	"regexp"

	"github.com/PuerkitoBio/goquery"
)

// HostValues are the values the storefront localizes into the page for the
// price script. Its ajax_url is not read: fetches always go to the configured
// endpoint.
type HostValues struct {
	UserCurrency string
	Nonce        string
}

var localizedObject = regexp.MustCompile(`(?s)var\s+pricePrefetch\s*=\s*(\{.*?\})\s*;`)

// ExtractHostValues reads the pricePrefetch object from the page scripts.
// A page without one yields zero values.
func ExtractHostValues(doc *goquery.Document) HostValues {
	var hv HostValues
	doc.Find("script").EachWithBreak(func(_ int, s *goquery.Selection) bool {
		m := localizedObject.FindStringSubmatch(s.Text())
		if m == nil {
			return true
		}
		var raw map[string]any
		if err := json.Unmarshal([]byte(m[1]), &raw); err != nil {
			return true
		}
		hv.UserCurrency, _ = raw["user_currency"].(string)
		hv.Nonce, _ = raw["nonce"].(string)
		return false
	})
	return hv
}
