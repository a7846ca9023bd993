/*
 * Copyright (C) 2025-2026, Advanced Micro Devices, Inc. All rights reserved.
 * See LICENSE for license information.
 */

package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	openai "github.com/sashabaranov/go-openai"

	"github.com/AMD-AIG-AIMA/bin2nlp/pkg/common/common"
	commonerrors "github.com/AMD-AIG-AIMA/bin2nlp/pkg/common/errors"
)

const (
	// rough chars-per-token plus headroom for the completion
	estimateCharsPerToken   = 4
	estimateCompletionExtra = 256

	systemPrompt = "You are a reverse-engineering assistant. Explain binary artifacts in plain language. Reply in compact JSON when asked to."

	defaultOllamaEndpoint = "http://127.0.0.1:11434/v1"
)

// Translator issues a prompt to an LLM provider and returns the completion
// together with the provider-reported total token usage.
type Translator interface {
	Translate(ctx context.Context, prompt string) (string, int64, error)
	Model() string
}

// TranslatorFactory builds a Translator for a provider binding; swapped out
// in tests.
type TranslatorFactory func(kind, endpoint, apiKey, model string) (Translator, error)

type openAITranslator struct {
	client *openai.Client
	model  string
}

// NewTranslator binds a provider. Every recognized kind speaks the
// chat-completions wire protocol; hosted kinds need an API key, self-hosted
// kinds need an endpoint.
func NewTranslator(kind, endpoint, apiKey, model string) (Translator, error) {
	switch kind {
	case common.ProviderKindOpenAI:
		if apiKey == "" {
			return nil, commonerrors.NewCredentialUnavailable("the provider requires an API key")
		}
	case common.ProviderKindAnthropic, common.ProviderKindGemini:
		if apiKey == "" {
			return nil, commonerrors.NewCredentialUnavailable("the provider requires an API key")
		}
		if endpoint == "" {
			return nil, commonerrors.NewProviderUnavailable(fmt.Sprintf("the %s provider requires a compatible endpoint", kind))
		}
	case common.ProviderKindOllama:
		if endpoint == "" {
			endpoint = defaultOllamaEndpoint
		}
		if apiKey == "" {
			apiKey = "ollama"
		}
	default:
		return nil, commonerrors.NewProviderUnavailable(fmt.Sprintf("unknown provider kind %q", kind))
	}
	cfg := openai.DefaultConfig(apiKey)
	if endpoint != "" {
		cfg.BaseURL = endpoint
	}
	return &openAITranslator{
		client: openai.NewClientWithConfig(cfg),
		model:  model,
	}, nil
}

func (t *openAITranslator) Model() string {
	return t.model
}

func (t *openAITranslator) Translate(ctx context.Context, prompt string) (string, int64, error) {
	resp, err := t.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: t.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: systemPrompt},
			{Role: openai.ChatMessageRoleUser, Content: prompt},
		},
	})
	if err != nil {
		return "", 0, commonerrors.NewProviderUnavailable("the provider call failed")
	}
	if len(resp.Choices) == 0 {
		return "", int64(resp.Usage.TotalTokens), commonerrors.NewProviderUnavailable("the provider returned no completion")
	}
	return resp.Choices[0].Message.Content, int64(resp.Usage.TotalTokens), nil
}

// EstimateTokens approximates the token cost of a call before it is made:
// prompt length over the chars-per-token ratio plus expected completion.
func EstimateTokens(prompt string) int64 {
	return int64(len(prompt)/estimateCharsPerToken) + estimateCompletionExtra
}

func buildFunctionPrompt(fn *Function) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Translate this decompiled function to natural language.\n")
	fmt.Fprintf(&b, "Name: %s\nEntry: %s\nSize: %d bytes\n", fn.Name, fn.EntryAddress, fn.Size)
	if len(fn.CallTargets) > 0 {
		fmt.Fprintf(&b, "Calls: %s\n", strings.Join(fn.CallTargets, ", "))
	}
	fmt.Fprintf(&b, "Disassembly:\n%s\n", fn.Disassembly)
	b.WriteString(`Reply as JSON: {"natural_language":"...","purpose":"...","parameters":"...","return_value":"..."}`)
	return b.String()
}

func buildImportPrompt(imp *Import) string {
	return fmt.Sprintf(
		"Explain the purpose of the imported symbol %s from library %s in one or two sentences.",
		imp.Symbol, imp.Library)
}

func buildStringPrompt(s *StringItem) string {
	return fmt.Sprintf(
		"This %s string was extracted from a binary at %s: %q. Briefly explain its likely usage.",
		s.Encoding, s.Address, s.Content)
}

func buildSummaryPrompt(dec *Decompilation, translations *LLMTranslations) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Summarize the overall behavior of a %s binary for %s with %d functions and %d imports.\n",
		dec.Metadata.Format, dec.Metadata.Architecture, len(dec.Functions), len(dec.Imports))
	b.WriteString("Function purposes observed so far:\n")
	for _, fn := range translations.Functions {
		if fn.Purpose != "" {
			fmt.Fprintf(&b, "- %s: %s\n", fn.Name, fn.Purpose)
		}
	}
	b.WriteString("Reply with a short paragraph.")
	return b.String()
}

// parseFunctionReply accepts either the requested JSON shape or free text.
func parseFunctionReply(fn *Function, reply string) FunctionTranslation {
	out := FunctionTranslation{
		Name:    fn.Name,
		Address: fn.EntryAddress,
	}
	trimmed := strings.TrimSpace(reply)
	trimmed = strings.TrimPrefix(trimmed, "```json")
	trimmed = strings.TrimPrefix(trimmed, "```")
	trimmed = strings.TrimSuffix(trimmed, "```")
	var parsed struct {
		NaturalLanguage string `json:"natural_language"`
		Purpose         string `json:"purpose"`
		Parameters      string `json:"parameters"`
		ReturnValue     string `json:"return_value"`
	}
	if err := json.Unmarshal([]byte(trimmed), &parsed); err == nil && parsed.NaturalLanguage != "" {
		out.NaturalLanguage = parsed.NaturalLanguage
		out.Purpose = parsed.Purpose
		out.Parameters = parsed.Parameters
		out.ReturnValue = parsed.ReturnValue
		return out
	}
	out.NaturalLanguage = strings.TrimSpace(reply)
	return out
}
