package analysis

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	sdk "github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/slabworks/gradepipe/internal/resilience"
)

const defaultModel = "claude-sonnet-4-5-20250929"

// Option configures the SDK-backed client.
type Option func(*sdkService)

// WithModel overrides the default model.
func WithModel(model string) Option {
	return func(s *sdkService) {
		if model != "" {
			s.model = model
		}
	}
}

// WithRateLimit caps requests per second against the service.
func WithRateLimit(rps float64) Option {
	return func(s *sdkService) {
		if rps > 0 {
			s.limiter = rate.NewLimiter(rate.Limit(rps), 1)
		}
	}
}

// sdkService implements Service using the official anthropic-sdk-go.
type sdkService struct {
	client  sdk.Client
	model   string
	limiter *rate.Limiter
}

// NewService creates an analysis client backed by the SDK.
func NewService(apiKey string, opts ...Option) Service {
	s := &sdkService{
		client: sdk.NewClient(option.WithAPIKey(apiKey)),
		model:  defaultModel,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *sdkService) GradeCard(ctx context.Context, req GradeRequest) (*GradeResult, error) {
	blocks, err := imageBlocks(req.FrontImage, req.BackImage)
	if err != nil {
		return nil, err
	}
	blocks = append(blocks, sdk.NewTextBlock(gradePrompt))

	var out GradeResult
	if err := s.ask(ctx, "grade", blocks, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (s *sdkService) ChallengeGrade(ctx context.Context, req ChallengeRequest) (*GradeResult, error) {
	blocks, err := imageBlocks(req.FrontImage, req.BackImage)
	if err != nil {
		return nil, err
	}
	blocks = append(blocks, sdk.NewTextBlock(challengePrompt(req)))

	var out GradeResult
	if err := s.ask(ctx, "challenge", blocks, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (s *sdkService) Summarize(ctx context.Context, req SummarizeRequest) (*SummaryResult, error) {
	blocks := []sdk.ContentBlockParamUnion{sdk.NewTextBlock(summarizePrompt(req.Facts))}

	var out SummaryResult
	if err := s.ask(ctx, "summarize", blocks, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (s *sdkService) JustifyGrade(ctx context.Context, req JustifyRequest) (*SummaryResult, error) {
	blocks := []sdk.ContentBlockParamUnion{sdk.NewTextBlock(justifyPrompt(req))}

	var out SummaryResult
	if err := s.ask(ctx, "justify", blocks, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (s *sdkService) Valuate(ctx context.Context, req ValuateRequest) (*ValuationResult, error) {
	blocks := []sdk.ContentBlockParamUnion{sdk.NewTextBlock(valuatePrompt(req.Facts))}

	var out ValuationResult
	if err := s.ask(ctx, "valuate", blocks, &out); err != nil {
		return nil, err
	}
	if out.Source == "" {
		out.Source = "model estimate"
	}
	return &out, nil
}

// ask sends one user message and decodes the JSON object in the reply into out.
func (s *sdkService) ask(ctx context.Context, op string, blocks []sdk.ContentBlockParamUnion, out any) error {
	if s.limiter != nil {
		if err := s.limiter.Wait(ctx); err != nil {
			return eris.Wrapf(err, "analysis: %s rate wait", op)
		}
	}

	msg, err := s.client.Messages.New(ctx, sdk.MessageNewParams{
		Model:     sdk.Model(s.model),
		MaxTokens: 2048,
		System:    []sdk.TextBlockParam{{Text: systemPrompt}},
		Messages:  []sdk.MessageParam{sdk.NewUserMessage(blocks...)},
	})
	if err != nil {
		return classifySDKError(op, err)
	}

	text := responseText(msg)
	zap.L().Debug("analysis response",
		zap.String("operation", op),
		zap.Int("chars", len(text)),
	)

	if err := decodeJSONObject(text, out); err != nil {
		return resilience.NewMalformedResponseError(
			eris.Wrapf(err, "analysis: %s response", op))
	}
	return nil
}

// classifySDKError maps SDK failures onto the retry taxonomy: auth problems
// are credential-fatal, server-side trouble is transient, the rest is fatal.
func classifySDKError(op string, err error) error {
	var apiErr *sdk.Error
	if errors.As(err, &apiErr) {
		wrapped := eris.Wrapf(err, "analysis: %s", op)
		switch {
		case apiErr.StatusCode == 401 || apiErr.StatusCode == 403:
			return resilience.NewCredentialError(wrapped)
		case apiErr.StatusCode == 529 || resilience.IsTransientHTTPStatus(apiErr.StatusCode):
			return resilience.NewTransientError(wrapped, apiErr.StatusCode)
		default:
			return wrapped
		}
	}
	// No HTTP status to go on; the network heuristics decide.
	return eris.Wrapf(err, "analysis: %s", op)
}

func responseText(msg *sdk.Message) string {
	var b strings.Builder
	for _, block := range msg.Content {
		if block.Type == "text" {
			b.WriteString(block.Text)
		}
	}
	return b.String()
}

// decodeJSONObject finds the outermost JSON object in text and unmarshals it.
// Models occasionally wrap the object in prose or fences.
func decodeJSONObject(text string, out any) error {
	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")
	if start < 0 || end <= start {
		return fmt.Errorf("no JSON object in response")
	}
	return json.Unmarshal([]byte(text[start:end+1]), out)
}

func imageBlocks(paths ...string) ([]sdk.ContentBlockParamUnion, error) {
	blocks := make([]sdk.ContentBlockParamUnion, 0, len(paths)+1)
	for _, path := range paths {
		if path == "" {
			continue
		}
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, eris.Wrapf(err, "analysis: read image %s", path)
		}
		blocks = append(blocks, sdk.NewImageBlockBase64(
			imageMediaType(path),
			base64.StdEncoding.EncodeToString(data),
		))
	}
	if len(blocks) == 0 {
		return nil, eris.New("analysis: no images supplied")
	}
	return blocks, nil
}

func imageMediaType(path string) string {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".png":
		return "image/png"
	case ".webp":
		return "image/webp"
	case ".gif":
		return "image/gif"
	default:
		return "image/jpeg"
	}
}
