package provider

import (
	"context"
	"encoding/base64"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/SunnyC0d3/booking-system-sub009/core/errors"
	"github.com/SunnyC0d3/booking-system-sub009/core/logger"
	"github.com/SunnyC0d3/booking-system-sub009/core/retry"
)

const maxFeedBytes = 10 << 20

// errFeedTooLarge marks a feed cut off at maxFeedBytes. A partial feed must
// never be parsed: events past the cut would look deleted.
var errFeedTooLarge = errors.New("calendar feed exceeds size limit")

// feedFetcher downloads iCal feeds with a per-attempt timeout and bounded retries.
type feedFetcher struct {
	client  *http.Client
	timeout time.Duration
	retry   retry.Config
	// maxBytes overrides maxFeedBytes when positive.
	maxBytes int64
}

func (f *feedFetcher) limit() int64 {
	if f.maxBytes > 0 {
		return f.maxBytes
	}
	return maxFeedBytes
}

func (f *feedFetcher) fetch(ctx context.Context, feedURL string) (string, error) {
	var body string
	err := retry.Do(ctx, f.retry, "ical.fetch", func() error {
		attemptCtx, cancel := context.WithTimeout(ctx, f.timeout)
		defer cancel()

		req, err := http.NewRequestWithContext(attemptCtx, http.MethodGet, feedURL, nil)
		if err != nil {
			return retry.Permanent(errors.NewAppError(errors.ErrInvalidInput, "invalid calendar feed url", err))
		}
		req.Header.Set("Accept", "text/calendar, text/plain;q=0.9, */*;q=0.5")

		resp, err := f.client.Do(req)
		if err != nil {
			return err
		}
		defer resp.Body.Close()

		switch {
		case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500:
			return fmt.Errorf("feed responded with status %d", resp.StatusCode)
		case resp.StatusCode >= 400:
			return retry.Permanent(errors.NewAppError(errors.ErrProviderUnavailable,
				fmt.Sprintf("calendar feed responded with status %d", resp.StatusCode), nil))
		}

		data, err := io.ReadAll(io.LimitReader(resp.Body, f.limit()+1))
		if err != nil {
			return err
		}
		if int64(len(data)) > f.limit() {
			return retry.Permanent(errors.NewAppError(errors.ErrProviderUnavailable,
				fmt.Sprintf("calendar feed is larger than %d bytes", f.limit()), errFeedTooLarge))
		}
		body = string(data)
		return nil
	})
	if err != nil {
		if errors.CodeOf(err) != "" {
			return "", err
		}
		logger.Warn("Provider:ICal:FetchFailed", "host", feedHost(feedURL), "error", err)
		return "", errors.NewAppError(errors.ErrProviderUnavailable, "calendar feed could not be downloaded", err)
	}
	return body, nil
}

// NormalizeFeedURL accepts http, https and webcal urls; webcal is fetched over https.
func NormalizeFeedURL(raw string) (string, error) {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil || u.Host == "" {
		return "", errors.NewAppError(errors.ErrInvalidInput, "calendar feed url is not valid", err)
	}
	switch strings.ToLower(u.Scheme) {
	case "http", "https":
	case "webcal", "webcals":
		u.Scheme = "https"
	default:
		return "", errors.NewAppError(errors.ErrInvalidInput, "calendar feed url must use http, https or webcal", nil)
	}
	return u.String(), nil
}

func looksLikeCalendar(body string) bool {
	head := body
	if len(head) > 4096 {
		head = head[:4096]
	}
	return strings.Contains(strings.ToUpper(head), "BEGIN:VCALENDAR")
}

// EncodeFeedToken turns a feed url into the opaque value stored as the access token.
func EncodeFeedToken(feedURL string) string {
	return base64.RawURLEncoding.EncodeToString([]byte(feedURL))
}

func DecodeFeedToken(token string) (string, error) {
	b, err := base64.RawURLEncoding.DecodeString(token)
	if err != nil {
		return "", errors.NewAppError(errors.ErrConfiguration, "stored feed credential is corrupt", err)
	}
	return string(b), nil
}

// feedHost is the only part of a feed url that may be logged.
func feedHost(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return ""
	}
	return u.Host
}
