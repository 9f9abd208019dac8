package service

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/digkill/PromptForge/internal/metrics"
	"github.com/digkill/PromptForge/internal/models"
)

// GenerationPrice is the credit cost of one generated prompt.
const GenerationPrice = 60

// PromptGenerator is the generative-text provider.
type PromptGenerator interface {
	Generate(ctx context.Context, instruction string) (string, error)
}

type GenerationService struct {
	log      *slog.Logger
	credits  *CreditService
	provider PromptGenerator
	metrics  *metrics.Metrics
	timeout  time.Duration
}

type GenerationResult struct {
	GeneratedPrompt string
	Credits         int
	Prompt          *models.Prompt
}

func NewGenerationService(log *slog.Logger, credits *CreditService, provider PromptGenerator, m *metrics.Metrics, timeout time.Duration) *GenerationService {
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	return &GenerationService{
		log:      log,
		credits:  credits,
		provider: provider,
		metrics:  m,
		timeout:  timeout,
	}
}

const baseInstruction = `You are an AI assistant that generates creative prompts.
Your task is to take a user's idea and expand it into a single, detailed prompt.
YOUR RESPONSE MUST BE ONLY THE PROMPT TEXT ITSELF.
DO NOT include any introductory phrases, explanations, or conversational text like "Here is your prompt:".`

// BuildInstruction renders the provider instruction for text in category.
func BuildInstruction(category models.PromptType, text string) (string, error) {
	var suffix string
	switch category {
	case models.PromptTypeImage:
		suffix = fmt.Sprintf("The prompt should be for an AI image generator. The user's idea is: %q", text)
	case models.PromptTypeText:
		suffix = fmt.Sprintf("The prompt should be a story starter for an AI text generator. The user's idea is: %q", text)
	case models.PromptTypeVideo:
		suffix = fmt.Sprintf("The prompt should be a scene description for an AI video generator. The user's idea is: %q", text)
	case models.PromptTypeWebsite:
		suffix = fmt.Sprintf("The prompt should describe the UI/UX for a website landing page for a generative UI tool. The user's idea is: %q", "A landing page for "+text)
	case models.PromptTypeCode:
		suffix = fmt.Sprintf("The prompt should be a clear instruction for a code generation tool. The user's idea is: %q", "A function that "+text)
	default:
		return "", ErrInvalidCategory
	}
	return baseInstruction + "\n" + suffix, nil
}

// Generate charges GenerationPrice for one prompt. Nothing is charged or
// recorded unless the provider returns text.
func (s *GenerationService) Generate(ctx context.Context, accountID int64, text string, category models.PromptType) (*GenerationResult, error) {
	text = strings.TrimSpace(text)
	if text == "" || category == "" {
		return nil, validationError("text input and a generator type are required")
	}
	instruction, err := BuildInstruction(category, text)
	if err != nil {
		return nil, err
	}

	user, err := s.credits.Account(ctx, accountID)
	if err != nil {
		return nil, err
	}
	if user.Credits < GenerationPrice {
		s.metrics.GenerationsTotal.WithLabelValues(string(category), "insufficient").Inc()
		return nil, ErrInsufficientCredits
	}

	pctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.timeout)
	generated, err := s.provider.Generate(pctx, instruction)
	cancel()
	generated = strings.TrimSpace(generated)
	if err != nil || generated == "" {
		s.metrics.GenerationsTotal.WithLabelValues(string(category), "failed").Inc()
		s.log.Error("provider generation failed", "user_id", accountID, "category", category, "err", err)
		return nil, ErrGenerationFailed
	}

	record := &models.Prompt{
		OriginalText:    text,
		GeneratedPrompt: generated,
		PromptType:      category,
	}
	user, record, err = s.credits.Charge(ctx, accountID, GenerationPrice, record)
	if err != nil {
		s.metrics.GenerationsTotal.WithLabelValues(string(category), "rejected").Inc()
		return nil, err
	}

	s.metrics.GenerationsTotal.WithLabelValues(string(category), "ok").Inc()
	return &GenerationResult{
		GeneratedPrompt: generated,
		Credits:         user.Credits,
		Prompt:          record,
	}, nil
}
