package analysis

import (
	"fmt"
	"strings"
)

const systemPrompt = `You are a professional trading card authenticator and grader.
You always answer with a single JSON object and no other text.`

const gradePrompt = `These two images are the front and back of one trading card.
Identify the card and grade its condition on the standard 1-10 scale with half-point precision.

Respond with JSON:
{
  "player_name": "", "year": "", "set_name": "", "card_number": "", "brand": "", "variant": "",
  "centering": 0, "corners": 0, "edges": 0, "surface": 0, "eye_appeal": 0,
  "overall": 0, "label": "", "confidence": "high|medium|low"
}`

func challengePrompt(req ChallengeRequest) string {
	return fmt.Sprintf(`These two images are the front and back of one trading card, previously graded %.1f (%s).
The owner believes that grade is too %s. Re-examine the card from scratch, paying particular
attention to evidence that would move the grade %s. Keep the identification consistent with:
%s

Respond with the same JSON schema as a fresh grading:
{
  "player_name": "", "year": "", "set_name": "", "card_number": "", "brand": "", "variant": "",
  "centering": 0, "corners": 0, "edges": 0, "surface": 0, "eye_appeal": 0,
  "overall": 0, "label": "", "confidence": "high|medium|low"
}`,
		req.Facts.Grade, req.Facts.GradeLabel,
		oppositeOf(req.Direction), req.Direction,
		factsBlock(req.Facts))
}

func summarizePrompt(facts CardFacts) string {
	return fmt.Sprintf(`Write a collector-facing summary (3-5 sentences) of this card and its condition:
%s

Respond with JSON: {"summary": ""}`, factsBlock(facts))
}

func justifyPrompt(req JustifyRequest) string {
	return fmt.Sprintf(`The owner of this card has set its grade to %.1f (%s) from personal inspection:
%s

Write a collector-facing summary (3-5 sentences) describing the card and the condition
that a %.1f grade implies. Do not dispute the grade.

Respond with JSON: {"summary": ""}`,
		req.OverrideGrade, req.OverrideLabel, factsBlock(req.Facts), req.OverrideGrade)
}

func valuatePrompt(facts CardFacts) string {
	return fmt.Sprintf(`Estimate the current market value in USD of this graded trading card:
%s

Give a conservative range based on recent comparable sales.
Respond with JSON: {"low_usd": 0, "mid_usd": 0, "high_usd": 0, "source": ""}`, factsBlock(facts))
}

func factsBlock(facts CardFacts) string {
	lines := []string{
		"player: " + facts.PlayerName,
		"year: " + facts.Year,
		"set: " + facts.SetName,
		"number: " + facts.CardNumber,
	}
	if facts.Brand != "" {
		lines = append(lines, "brand: "+facts.Brand)
	}
	if facts.Variant != "" {
		lines = append(lines, "variant: "+facts.Variant)
	}
	if facts.Grade > 0 {
		lines = append(lines, fmt.Sprintf("grade: %.1f (%s)", facts.Grade, facts.GradeLabel))
	}
	if facts.Summary != "" {
		lines = append(lines, "summary: "+facts.Summary)
	}
	return strings.Join(lines, "\n")
}

func oppositeOf(direction string) string {
	if direction == "higher" {
		return "low"
	}
	return "high"
}
