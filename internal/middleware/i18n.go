package middleware

import (
	"context"
	"net"
	"net/http"
	"strings"

	"golang.org/x/text/language"
)

type localeContextKey struct{}
type countryContextKey struct{}

var (
	LocaleKey  = localeContextKey{}
	CountryKey = countryContextKey{}
)

// Locales the UI ships translations for. English is the fallback and must
// stay first: the matcher returns it when nothing else fits.
var supportedLocales = []language.Tag{
	language.English,
	language.Chinese,
	language.Japanese,
	language.Korean,
}

var localeMatcher = language.NewMatcher(supportedLocales)

// CountryLookup resolves ISO country codes for an IP address.
type CountryLookup func(ip string) (string, error)

// I18N stores the request's locale and country in the context. The explicit
// X-Locale header wins, then Accept-Language, then a country-based guess.
func I18N(defaultLocale string, lookup CountryLookup) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			country := ResolveCountry(r, lookup)
			locale := detectLocale(r, defaultLocale, country)
			ctx := context.WithValue(r.Context(), LocaleKey, locale)
			if country != "" {
				ctx = context.WithValue(ctx, CountryKey, strings.ToUpper(country))
			}
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func detectLocale(r *http.Request, fallback, country string) string {
	if v := r.Header.Get("X-Locale"); v != "" {
		return normalizeLocale(v)
	}
	if header := r.Header.Get("Accept-Language"); header != "" {
		if tags, _, err := language.ParseAcceptLanguage(header); err == nil && len(tags) > 0 {
			if tag, _, conf := localeMatcher.Match(tags...); conf > language.No {
				return baseLang(tag)
			}
		}
	}
	if locale := countryLocale(country); locale != "" {
		return locale
	}
	if fallback != "" {
		return normalizeLocale(fallback)
	}
	return "en"
}

func normalizeLocale(v string) string {
	tag, err := language.Parse(strings.TrimSpace(v))
	if err != nil {
		return "en"
	}
	matched, _, _ := localeMatcher.Match(tag)
	return baseLang(matched)
}

func baseLang(tag language.Tag) string {
	base, _ := tag.Base()
	return base.String()
}

func countryLocale(country string) string {
	switch strings.ToUpper(country) {
	case "CN", "TW", "HK", "MO":
		return "zh"
	case "JP":
		return "ja"
	case "KR":
		return "ko"
	default:
		return ""
	}
}

// ClientIP returns the best-effort client IP address for the request.
func ClientIP(r *http.Request) string {
	if r == nil {
		return ""
	}
	if xf := r.Header.Get("X-Forwarded-For"); xf != "" {
		parts := strings.Split(xf, ",")
		if len(parts) > 0 {
			return strings.TrimSpace(parts[0])
		}
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

func LocaleFromContext(ctx context.Context) string {
	if v, ok := ctx.Value(LocaleKey).(string); ok {
		return v
	}
	return "en"
}

// CountryFromContext returns the ISO country code stored in the request context.
func CountryFromContext(ctx context.Context) string {
	if v, ok := ctx.Value(CountryKey).(string); ok {
		return v
	}
	return ""
}

// ResolveCountry resolves a best-effort ISO country code for the given
// request: proxy headers first, then the locale's region, then GeoIP.
func ResolveCountry(r *http.Request, lookup CountryLookup) string {
	if r == nil {
		return ""
	}
	headerHints := []string{"X-Country-Code", "X-IP-Country", "CF-IPCountry", "X-Appengine-Country"}
	for _, key := range headerHints {
		if val := strings.TrimSpace(r.Header.Get(key)); val != "" {
			return strings.ToUpper(val)
		}
	}
	if region := localeRegion(r.Header.Get("X-Locale")); region != "" {
		return region
	}
	if region := localeRegion(r.Header.Get("Accept-Language")); region != "" {
		return region
	}
	if lookup != nil {
		if ip := ClientIP(r); ip != "" {
			if country, err := lookup(ip); err == nil && country != "" {
				return strings.ToUpper(country)
			}
		}
	}
	return ""
}

// localeRegion pulls an explicit region subtag, e.g. "zh-CN" -> "CN".
func localeRegion(accept string) string {
	for _, part := range strings.Split(accept, ",") {
		token := strings.TrimSpace(strings.Split(part, ";")[0])
		if token == "" {
			continue
		}
		tag, err := language.Parse(token)
		if err != nil {
			continue
		}
		if region, conf := tag.Region(); conf >= language.High && region.IsCountry() {
			return region.String()
		}
	}
	return ""
}
