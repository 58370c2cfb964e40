// Package provider talks to an OpenAI-compatible API for frame descriptions
// and speech synthesis.
package provider

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	openai "github.com/sashabaranov/go-openai"

	"github.com/ivlev/videonarrator/internal/script"
	"github.com/ivlev/videonarrator/internal/speech"
	"github.com/ivlev/videonarrator/internal/vision"
)

var (
	ErrNoAPIKey = errors.New("provider: api key is empty")
	// ErrNoChoices is returned when a chat completion comes back without any choice.
	ErrNoChoices = errors.New("provider: response has no choices")
)

type Options struct {
	APIKey      string
	BaseURL     string
	VisionModel string
	SpeechModel string
	// ImageDetail is passed through as the image_url detail hint.
	ImageDetail string
}

type OpenAI struct {
	client      *openai.Client
	visionModel string
	speechModel openai.SpeechModel
	imageDetail openai.ImageURLDetail
}

var (
	_ vision.Describer = (*OpenAI)(nil)
	_ speech.Speaker   = (*OpenAI)(nil)
)

func NewOpenAI(opts Options) (*OpenAI, error) {
	if strings.TrimSpace(opts.APIKey) == "" {
		return nil, ErrNoAPIKey
	}

	cfg := openai.DefaultConfig(opts.APIKey)
	if opts.BaseURL != "" {
		cfg.BaseURL = strings.TrimRight(opts.BaseURL, "/")
	}

	o := &OpenAI{
		client:      openai.NewClientWithConfig(cfg),
		visionModel: opts.VisionModel,
		speechModel: openai.SpeechModel(opts.SpeechModel),
		imageDetail: openai.ImageURLDetail(opts.ImageDetail),
	}
	if o.visionModel == "" {
		o.visionModel = openai.GPT4o
	}
	if o.speechModel == "" {
		o.speechModel = openai.TTSModel1
	}
	if o.imageDetail == "" {
		o.imageDetail = openai.ImageURLDetailAuto
	}
	return o, nil
}

// Describe sends the persona, the earlier descriptions and one frame, and
// returns the assistant's reply.
func (o *OpenAI) Describe(ctx context.Context, req vision.Request) (string, error) {
	resp, err := o.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:     o.visionModel,
		MaxTokens: req.MaxTokens,
		Messages:  o.messages(req),
	})
	if err != nil {
		return "", fmt.Errorf("chat completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", ErrNoChoices
	}
	return resp.Choices[0].Message.Content, nil
}

func (o *OpenAI) messages(req vision.Request) []openai.ChatCompletionMessage {
	msgs := make([]openai.ChatCompletionMessage, 0, req.History.Len()+2)
	if req.Persona != "" {
		msgs = append(msgs, openai.ChatCompletionMessage{
			Role:    openai.ChatMessageRoleSystem,
			Content: req.Persona,
		})
	}

	for _, t := range req.History.Turns() {
		msgs = append(msgs, o.message(t))
	}

	return append(msgs, o.message(script.Turn{
		Role:     script.RoleUser,
		Text:     req.Instruction,
		ImageURL: script.ImageDataURI(req.ImageBase64),
	}))
}

func (o *OpenAI) message(t script.Turn) openai.ChatCompletionMessage {
	if t.ImageURL == "" {
		return openai.ChatCompletionMessage{Role: string(t.Role), Content: t.Text}
	}

	var parts []openai.ChatMessagePart
	if t.Text != "" {
		parts = append(parts, openai.ChatMessagePart{
			Type: openai.ChatMessagePartTypeText,
			Text: t.Text,
		})
	}
	parts = append(parts, openai.ChatMessagePart{
		Type: openai.ChatMessagePartTypeImageURL,
		ImageURL: &openai.ChatMessageImageURL{
			URL:    t.ImageURL,
			Detail: o.imageDetail,
		},
	})
	return openai.ChatCompletionMessage{Role: string(t.Role), MultiContent: parts}
}

// Speak returns mp3 audio for text.
func (o *OpenAI) Speak(ctx context.Context, text string, voice speech.Voice) ([]byte, error) {
	resp, err := o.client.CreateSpeech(ctx, openai.CreateSpeechRequest{
		Model:          o.speechModel,
		Input:          text,
		Voice:          openai.SpeechVoice(voice),
		ResponseFormat: openai.SpeechResponseFormatMp3,
	})
	if err != nil {
		return nil, fmt.Errorf("create speech: %w", err)
	}
	defer resp.Close()

	audio, err := io.ReadAll(resp)
	if err != nil {
		return nil, fmt.Errorf("read speech audio: %w", err)
	}
	return audio, nil
}
