package relay

import (
	"context"
	"net/http"
	"strings"

	"github.com/dyluth/swarm/pkg/blackboard"
	"github.com/slack-go/slack"
)

// DefaultSlackAPIURL is Slack's public Web API base.
const DefaultSlackAPIURL = "https://slack.com/api"

// SlackSink posts broadcasts to a Slack channel with a bot token.
type SlackSink struct {
	api     *slack.Client
	channel string
}

// NewSlackSink creates a Slack sink. An empty apiURL uses DefaultSlackAPIURL
// and a nil httpClient uses http.DefaultClient.
func NewSlackSink(token, channel, apiURL string, httpClient *http.Client) *SlackSink {
	base := strings.TrimSpace(apiURL)
	if base == "" {
		base = DefaultSlackAPIURL
	}
	base = strings.TrimRight(base, "/") + "/"
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &SlackSink{
		api:     slack.New(strings.TrimSpace(token), slack.OptionHTTPClient(httpClient), slack.OptionAPIURL(base)),
		channel: channel,
	}
}

func (s *SlackSink) Name() string { return "slack" }

func (s *SlackSink) Send(ctx context.Context, ev *blackboard.BroadcastEvent) error {
	_, _, err := s.api.PostMessageContext(ctx, s.channel, slack.MsgOptionText(FormatBroadcast(ev), false))
	return err
}

func (s *SlackSink) Close() error { return nil }
