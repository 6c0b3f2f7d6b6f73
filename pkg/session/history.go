// Copyright 2026 © The vxagent Authors
// SPDX-License-Identifier: Apache-2.0

package session

import (
	"github.com/jchavezar/vertex-ai-samples-sub001/pkg/llm"
)

// HistoryStrategy shapes the history sent to the model.
type HistoryStrategy interface {
	Truncate(messages []Message) []Message
}

// WindowStrategy keeps only the last MaxMessages messages. A non-positive
// MaxMessages keeps everything.
type WindowStrategy struct {
	MaxMessages int
	// KeepSystemMessages preserves system messages regardless of window.
	KeepSystemMessages bool
}

// Truncate implements HistoryStrategy.
func (w WindowStrategy) Truncate(messages []Message) []Message {
	if w.MaxMessages <= 0 || len(messages) <= w.MaxMessages {
		return messages
	}
	if !w.KeepSystemMessages {
		return messages[len(messages)-w.MaxMessages:]
	}

	system, other := splitSystem(messages)
	available := max(w.MaxMessages-len(system), 0)
	if len(other) > available {
		other = other[len(other)-available:]
	}
	return append(system, other...)
}

// TokenStrategy keeps the most recent messages that fit within MaxTokens.
type TokenStrategy struct {
	MaxTokens int
	// TokenCounter estimates tokens for a message; defaults to len/4.
	TokenCounter func(Message) int
	// KeepSystemMessages preserves system messages regardless of budget.
	KeepSystemMessages bool
}

// Truncate implements HistoryStrategy.
func (t TokenStrategy) Truncate(messages []Message) []Message {
	if t.MaxTokens <= 0 {
		return messages
	}
	count := t.TokenCounter
	if count == nil {
		count = func(m Message) int { return len(m.Content) / 4 }
	}

	total := 0
	for _, m := range messages {
		total += count(m)
	}
	if total <= t.MaxTokens {
		return messages
	}

	var system, other []Message
	if t.KeepSystemMessages {
		system, other = splitSystem(messages)
	} else {
		other = messages
	}
	budget := t.MaxTokens
	for _, m := range system {
		budget -= count(m)
	}

	start := len(other)
	used := 0
	for i := len(other) - 1; i >= 0; i-- {
		n := count(other[i])
		if used+n > budget {
			break
		}
		used += n
		start = i
	}
	return append(system, other[start:]...)
}

// Chain applies strategies in order.
type Chain []HistoryStrategy

// Truncate implements HistoryStrategy.
func (c Chain) Truncate(messages []Message) []Message {
	for _, s := range c {
		messages = s.Truncate(messages)
	}
	return messages
}

func splitSystem(messages []Message) (system, other []Message) {
	for _, m := range messages {
		if m.Role == llm.RoleSystem {
			system = append(system, m)
		} else {
			other = append(other, m)
		}
	}
	return system, other
}

// ToLLM converts history entries into model messages.
func ToLLM(messages []Message) []llm.Message {
	out := make([]llm.Message, 0, len(messages))
	for _, m := range messages {
		out = append(out, llm.Message{
			Role:       m.Role,
			Content:    m.Content,
			ToolCallID: m.ToolCallID,
		})
	}
	return out
}
