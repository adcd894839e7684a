package feed

import (
	"net/url"
	"strings"
)

var trackingParams = map[string]bool{
	"fbclid":      true,
	"gclid":       true,
	"dclid":       true,
	"msclkid":     true,
	"yclid":       true,
	"igshid":      true,
	"mkt_tok":     true,
	"ref_src":     true,
	"spm":         true,
	"ncid":        true,
	"cmpid":       true,
	"wt.mc_id":    true,
	"wt_mc_id":    true,
	"at_medium":   true,
	"at_campaign": true,
}

var trackingPrefixes = []string{"utm_", "mc_", "_hs", "pk_", "mtm_"}

// CanonicalURL returns the identity key of a link. Two links are the same resource exactly when
// their keys are equal. Links that are not absolute http(s) URLs keep their raw text behind a
// "raw:" marker so they only ever equal an identical link.
func CanonicalURL(link string) string {
	link = strings.TrimSpace(link)
	if link == "" {
		return ""
	}
	if key, ok := canonicalKey(link); ok {
		return key
	}
	// identical malformed links compare equal so a feed cannot store the same one twice
	return "raw:" + link
}

// URLsMatch reports whether a and b identify the same resource. Scheme, a leading "www.",
// default ports, trailing slashes, fragments, query order and tracking parameters are ignored.
func URLsMatch(a, b string) bool {
	ca := CanonicalURL(a)
	return ca != "" && ca == CanonicalURL(b)
}

func canonicalKey(link string) (string, bool) {
	u, err := url.Parse(link)
	if err != nil {
		return "", false
	}

	scheme := strings.ToLower(u.Scheme)
	if scheme != "http" && scheme != "https" {
		return "", false
	}

	host := strings.TrimSuffix(strings.ToLower(u.Hostname()), ".")
	if host == "" {
		return "", false
	}
	host = strings.TrimPrefix(host, "www.")
	if port := u.Port(); port != "" && port != "80" && port != "443" {
		host += ":" + port
	}

	query, err := url.ParseQuery(u.RawQuery)
	if err != nil {
		return "", false
	}
	for key := range query {
		if isTrackingParam(key) {
			delete(query, key)
		}
	}

	key := host + strings.TrimRight(u.EscapedPath(), "/")
	if encoded := query.Encode(); encoded != "" {
		key += "?" + encoded
	}
	return key, true
}

func isTrackingParam(key string) bool {
	key = strings.ToLower(key)
	if trackingParams[key] {
		return true
	}
	for _, prefix := range trackingPrefixes {
		if strings.HasPrefix(key, prefix) {
			return true
		}
	}
	return false
}
