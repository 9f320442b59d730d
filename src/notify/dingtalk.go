package notify

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
)

var ErrDingTalk = errors.New("dingtalk rejected message")

type dingTalkMarkdown struct {
	Title string `json:"title"`
	Text  string `json:"text"`
}

type dingTalkMessage struct {
	MsgType  string           `json:"msgtype"`
	Markdown dingTalkMarkdown `json:"markdown"`
}

type dingTalkResponse struct {
	ErrCode int    `json:"errcode"`
	ErrMsg  string `json:"errmsg"`
}

// DingTalk posts markdown messages to a group robot webhook. Robots with a
// keyword filter drop messages that carry none of the keywords, so the first
// one is appended when missing.
type DingTalk struct {
	webhook  string
	keywords []string
	http     *resty.Client
}

func NewDingTalk(webhook string, keywords []string) *DingTalk {
	return &DingTalk{
		webhook:  webhook,
		keywords: keywords,
		http: resty.New().
			SetTimeout(10 * time.Second).
			SetRetryCount(2).
			SetRetryWaitTime(time.Second),
	}
}

func (d *DingTalk) withKeyword(text string) string {
	if len(d.keywords) == 0 {
		return text
	}
	for _, k := range d.keywords {
		if strings.Contains(text, k) {
			return text
		}
	}
	return text + "\n\n" + d.keywords[0]
}

func (d *DingTalk) Notify(ctx context.Context, e Event) error {
	msg := dingTalkMessage{
		MsgType:  "markdown",
		Markdown: dingTalkMarkdown{Title: e.heading(), Text: d.withKeyword(e.Markdown())},
	}

	var out dingTalkResponse
	resp, err := d.http.R().
		SetContext(ctx).
		SetHeader("Content-Type", "application/json").
		SetBody(msg).
		SetResult(&out).
		Post(d.webhook)
	if err != nil {
		return fmt.Errorf("dingtalk post: %w", err)
	}
	if resp.IsError() {
		return fmt.Errorf("%w: HTTP %d", ErrDingTalk, resp.StatusCode())
	}
	if out.ErrCode != 0 {
		return fmt.Errorf("%w: errcode=%d errmsg=%s", ErrDingTalk, out.ErrCode, out.ErrMsg)
	}
	return nil
}
