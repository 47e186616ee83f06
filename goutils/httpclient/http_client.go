package httpclient

import (
	"context"
	"net"
	"net/http"
	"time"

	"github.com/hashicorp/go-retryablehttp"
	"github.com/rs/dnscache"

	"storage-dashboard/goutils/settings"
)

var dnsResolver *dnscache.Resolver

func init() {
	dnsResolver = &dnscache.Resolver{}

	go func() {
		clearUnused := true
		t := time.NewTicker(5 * time.Minute)
		defer t.Stop()
		for range t.C {
			dnsResolver.Refresh(clearUnused)
		}
	}()
}

// GetDefaultHTTPClient returns a retryablehttp.Client with default values
// use this method for default http client needs for specific settings create custom method
func GetDefaultHTTPClient(settingsObj *settings.SettingsObj) *retryablehttp.Client {
	return newClient(settingsObj.HttpClient, 5)
}

// GetPollHTTPClient is used for the periodic snapshot poll. A failed poll is retried
// on the next tick, so the number of in-request retries comes from settings and can be zero.
func GetPollHTTPClient(settingsObj *settings.SettingsObj) *retryablehttp.Client {
	retryMax := 0
	if settingsObj.Reconciler != nil {
		retryMax = settingsObj.Reconciler.PollRetryMax
	}

	return newClient(settingsObj.HttpClient, retryMax)
}

func newClient(config *settings.HTTPClient, retryMax int) *retryablehttp.Client {
	if config == nil {
		config = new(settings.HTTPClient)
	}

	transport := &http.Transport{
		DialContext: func(ctx context.Context, network string, addr string) (conn net.Conn, err error) {
			host, port, err := net.SplitHostPort(addr)
			if err != nil {
				return nil, err
			}

			ips, err := dnsResolver.LookupHost(ctx, host)
			if err != nil {
				return nil, err
			}

			for _, ip := range ips {
				var dialer net.Dialer
				conn, err = dialer.DialContext(ctx, network, net.JoinHostPort(ip, port))
				if err == nil {
					break
				}
			}

			return
		},
		MaxIdleConns:        config.MaxIdleConns,
		MaxConnsPerHost:     config.MaxConnsPerHost,
		MaxIdleConnsPerHost: config.MaxIdleConnsPerHost,
		IdleConnTimeout:     time.Duration(config.IdleConnTimeout) * time.Second,
	}

	rawHTTPClient := &http.Client{
		Transport: transport,
		Timeout:   time.Duration(config.ConnectionTimeout) * time.Second,
	}

	retryableHTTPClient := retryablehttp.NewClient()
	retryableHTTPClient.RetryMax = retryMax
	retryableHTTPClient.RetryWaitMin = 100 * time.Millisecond
	retryableHTTPClient.RetryWaitMax = 2 * time.Second
	retryableHTTPClient.HTTPClient = rawHTTPClient
	retryableHTTPClient.Logger = nil

	return retryableHTTPClient
}
