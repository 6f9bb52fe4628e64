package channel

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"unicode/utf8"

	"notifyhub/internal/domain/notify"
)

const userAgent = "NotifyHub"

// maxResponseBytes caps how much of a provider response is read.
const maxResponseBytes = 1 << 20

// defaultClient has no timeout of its own; every request carries the
// per-attempt deadline in its context.
var defaultClient = &http.Client{}

func clientOrDefault(c *http.Client) *http.Client {
	if c == nil {
		return defaultClient
	}
	return c
}

// doJSON sends payload as JSON and returns the response body. Transport
// failures and non-2xx statuses come back as *notify.DeliveryError.
func doJSON(ctx context.Context, client *http.Client, provider, method, target string, payload any, header http.Header) ([]byte, error) {
	var body io.Reader
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return nil, notify.NewDeliveryError(provider, notify.KindInvalidPayload, "encoding payload: %v", err)
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, target, body)
	if err != nil {
		return nil, notify.NewDeliveryError(provider, notify.KindInvalidPayload, "building request: %v", err)
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("User-Agent", userAgent)
	for k, vs := range header {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}

	resp, err := client.Do(req)
	if err != nil {
		return nil, notify.TransportError(provider, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, notify.TransportError(provider, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return respBody, notify.StatusError(provider, resp, errorMessage(respBody))
	}
	return respBody, nil
}

// errorMessage pulls a human-readable message out of an error response.
func errorMessage(body []byte) string {
	var fields map[string]any
	if err := json.Unmarshal(body, &fields); err == nil {
		for _, key := range []string{"message", "errmsg", "description", "error"} {
			if s, ok := fields[key].(string); ok && s != "" {
				return s
			}
		}
	}
	return truncateBytes(strings.TrimSpace(string(body)), 200)
}

// requireKeys reports the first missing or blank config key.
func requireKeys(cfg map[string]string, keys ...string) error {
	for _, k := range keys {
		if strings.TrimSpace(cfg[k]) == "" {
			return fmt.Errorf("missing required config key %q", k)
		}
	}
	return nil
}

// optional returns cfg[key] or def when unset.
func optional(cfg map[string]string, key, def string) string {
	if v := strings.TrimSpace(cfg[key]); v != "" {
		return v
	}
	return def
}

// validateURL checks that key, when set, holds an absolute http(s) URL.
func validateURL(cfg map[string]string, key string) error {
	v := strings.TrimSpace(cfg[key])
	if v == "" {
		return nil
	}
	u, err := url.Parse(v)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("config key %q must be an http(s) URL", key)
	}
	return nil
}

// truncateBytes cuts s to at most limit bytes without splitting a rune.
func truncateBytes(s string, limit int) string {
	if len(s) <= limit {
		return s
	}
	cut := limit
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut]
}

// sentenceEnds are the punctuation marks a long message may be cut after.
const sentenceEnds = "。！？；.!?;\n"

// truncateSentence cuts s to at most limit bytes, preferring to end after the
// last sentence punctuation inside the limit.
func truncateSentence(s string, limit int) string {
	if len(s) <= limit {
		return s
	}
	cut := truncateBytes(s, limit)
	if i := strings.LastIndexAny(cut, sentenceEnds); i > 0 {
		_, size := utf8.DecodeRuneInString(cut[i:])
		return cut[:i+size]
	}
	return cut
}

// joinTitleBody formats a plain-text message.
func joinTitleBody(title, body string) string {
	switch {
	case title == "":
		return body
	case body == "":
		return title
	}
	return title + "\n\n" + body
}
