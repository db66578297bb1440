package comm

import (
	"context"
	"strings"

	"github.com/HildaM/logs/slog"
	"github.com/cloudwego/eino/schema"
)

// TruncateMessages 单条消息超过 maxLimit 时保留后半段最新内容，返回副本，不修改入参
func TruncateMessages(ctx context.Context, inputList []*schema.Message, maxLimit int) []*schema.Message {
	out := make([]*schema.Message, 0, len(inputList))
	sum := 0
	for _, input := range inputList {
		if input == nil {
			slog.Debug("TruncateMessages debug, input is nil")
			continue
		}

		msg := *input
		if maxLimit > 0 {
			runes := []rune(msg.Content)
			if len(runes) >= maxLimit {
				slog.Debug("TruncateMessages debug, input content length is %d, max limit token is %d", len(runes), maxLimit)
				msg.Content = string(runes[len(runes)-maxLimit:])
			}
		}
		sum += len(msg.Content)
		out = append(out, &msg)
	}

	slog.Debug("TruncateMessages debug, input content sum length is %d", sum)
	return out
}

// MessageText 消息文本，多模态消息拼接其中的文本片段
func MessageText(msg *schema.Message) string {
	if msg == nil {
		return ""
	}
	if len(msg.MultiContent) == 0 {
		return msg.Content
	}
	parts := make([]string, 0, len(msg.MultiContent))
	if msg.Content != "" {
		parts = append(parts, msg.Content)
	}
	for _, p := range msg.MultiContent {
		if p.Type == schema.ChatMessagePartTypeText && p.Text != "" {
			parts = append(parts, p.Text)
		}
	}
	return strings.Join(parts, "\n")
}

// MessageImage 消息中的第一张图片地址
func MessageImage(msg *schema.Message) string {
	if msg == nil {
		return ""
	}
	for _, p := range msg.MultiContent {
		if p.Type == schema.ChatMessagePartTypeImageURL && p.ImageURL != nil && p.ImageURL.URL != "" {
			return p.ImageURL.URL
		}
	}
	return ""
}
