package httputil

import (
	"net/http"
	"net/url"
	"time"

	"lead_engine/config"
)

const UserAgent = "Mozilla/5.0 (compatible; LeadBot/1.0; +https://example.com/bot)"

type Clients struct {
	Scraping  *http.Client // optional proxy, for target sites
	Inference *http.Client // no client timeout; callers bound each attempt with a context
	API       *http.Client // direct, for Apify and cloud providers
}

func NewClients(proxyCfg *config.ProxyConfig) *Clients {
	transport := http.DefaultTransport.(*http.Transport).Clone()
	if proxyCfg != nil && proxyCfg.URL != "" {
		if proxyURL, err := url.Parse(proxyCfg.URL); err == nil {
			transport.Proxy = http.ProxyURL(proxyURL)
		}
	}

	scraping := &http.Client{
		Timeout:   30 * time.Second,
		Transport: transport,
		CheckRedirect: func(req *http.Request, via []*http.Request) error {
			if len(via) >= 5 {
				return http.ErrUseLastResponse
			}
			return nil
		},
	}

	return &Clients{
		Scraping:  scraping,
		Inference: &http.Client{},
		API:       &http.Client{Timeout: 60 * time.Second},
	}
}
