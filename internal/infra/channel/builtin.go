package channel

import (
	"net/http"

	"notifyhub/internal/domain/notify"
)

// Builtins returns every built-in adapter sharing one HTTP client.
func Builtins(client *http.Client, tokens TokenCache) []notify.ChannelAdapter {
	return []notify.ChannelAdapter{
		NewTelegram(client),
		NewBark(client),
		NewDiscord(client),
		NewWeCom(client, tokens),
		NewWeComBot(client),
		NewDingTalk(client),
		NewSMTP(),
		NewResend(client),
	}
}
