// Package extractor turns raw document text into person candidates using
// Claude. Each document is prompted independently so a hallucinated
// answer can only poison one source.
package extractor

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/edulead/leadgen-cli/internal/model"
	"github.com/edulead/leadgen-cli/pkg/anthropic"
)

const systemPrompt = `You are an expert data extraction assistant specializing in the Indonesian education sector. Your task is to extract KEY STAKEHOLDERS as INDIVIDUAL PEOPLE, not general school contacts.

For each person extract:
- Full name (not abbreviations)
- Exact title, preferably in Bahasa Indonesia (e.g. "Ketua Yayasan", "Kepala Sekolah")
- Their DIRECT contact: WhatsApp number or email tied to THEM, not the school switchboard
- LinkedIn URL if present

Role hierarchy, most valuable first:
1. Ketua Yayasan / Pembina / Pendiri (foundation chairman, founder)
2. Direktur / Direktur Pendidikan (operational director)
3. Kepala Sekolah (principal)
4. Wakil Kepala Sekolah (vice principal)
5. Operator Sekolah / Koordinator IT / Koordinator Kurikulum
6. Bendahara / Sekretaris (treasurer, secretary)

Indonesian contact patterns to look for:
- "Nomor HP: 08xxx", "HP: 08xxx", "WA: 08xxx", "WhatsApp: +62 8xxx"
- wa.me/62xxx or api.whatsapp.com links near a person's name
- Personal emails like nama@sekolah.sch.id; general emails like info@ or admin@ belong to the school, not a person

Rules:
1. Each person appears once per response, with their most complete info.
2. Only attach a contact to a person when the text ties them together.
3. Rate confidence 0.0-1.0 for each person based on how explicit the text is.
4. Skip entries where no personal name is given.

Respond with ONLY a JSON object of the form:
{"people": [{"name": "...", "role": "...", "phone": "...", "email": "...", "linkedin": "...", "confidence": 0.0}]}
Omit fields you did not find. Return {"people": []} when the text names nobody.`

// rawPerson mirrors the JSON shape the model is asked for.
type rawPerson struct {
	Name       string  `json:"name"`
	Role       string  `json:"role"`
	Phone      string  `json:"phone,omitempty"`
	Email      string  `json:"email,omitempty"`
	LinkedIn   string  `json:"linkedin,omitempty"`
	Confidence float64 `json:"confidence"`
}

type rawResponse struct {
	People []rawPerson `json:"people"`
}

// Option configures the extractor.
type Option func(*Extractor)

// WithModel overrides the model ID.
func WithModel(model string) Option {
	return func(e *Extractor) {
		e.model = model
	}
}

// WithMaxTokens overrides the response token cap.
func WithMaxTokens(n int64) Option {
	return func(e *Extractor) {
		e.maxTokens = n
	}
}

// WithChunkSize overrides how many runes of document text go into a
// single request.
func WithChunkSize(n int) Option {
	return func(e *Extractor) {
		e.chunkSize = n
	}
}

// Extractor extracts person candidates from documents via the Anthropic API.
type Extractor struct {
	client    anthropic.Client
	model     string
	maxTokens int64
	chunkSize int
	system    []anthropic.SystemBlock
}

// New creates an Extractor backed by the given client.
func New(client anthropic.Client, opts ...Option) *Extractor {
	e := &Extractor{
		client:    client,
		model:     "claude-haiku-4-5-20251001",
		maxTokens: 4096,
		chunkSize: 6000,
		system:    anthropic.BuildCachedSystemBlocks(systemPrompt),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Extract pulls person candidates out of one document. Long documents are
// split into chunks and each chunk prompted separately; the merge stage
// downstream deduplicates people that straddle a boundary.
func (e *Extractor) Extract(ctx context.Context, school model.School, doc model.Document) ([]model.RawCandidate, error) {
	var out []model.RawCandidate
	for i, chunk := range splitChunks(doc.Text, e.chunkSize) {
		people, usage, err := e.extractChunk(ctx, school, chunk)
		if err != nil {
			return nil, eris.Wrapf(err, "extractor: %s chunk %d", doc.URL, i)
		}
		usage.LogCost(e.model, "extraction")

		for _, p := range people {
			if strings.TrimSpace(p.Name) == "" {
				continue
			}
			conf := p.Confidence
			if conf <= 0 || conf > 1 {
				conf = doc.Confidence
			}
			out = append(out, model.RawCandidate{
				Name:             strings.TrimSpace(p.Name),
				RoleText:         strings.TrimSpace(p.Role),
				PhoneRaw:         strings.TrimSpace(p.Phone),
				EmailRaw:         strings.TrimSpace(p.Email),
				LinkedInRaw:      strings.TrimSpace(p.LinkedIn),
				SourceURL:        doc.URL,
				SourceConfidence: min(conf, doc.Confidence),
			})
		}
	}

	zap.L().Debug("document extracted",
		zap.String("url", doc.URL),
		zap.Int("candidates", len(out)),
	)
	return out, nil
}

func (e *Extractor) extractChunk(ctx context.Context, school model.School, text string) ([]rawPerson, anthropic.TokenUsage, error) {
	resp, err := e.client.CreateMessage(ctx, anthropic.MessageRequest{
		Model:     e.model,
		MaxTokens: e.maxTokens,
		System:    e.system,
		Messages: []anthropic.Message{
			{Role: "user", Content: buildUserPrompt(school, text)},
		},
	})
	if err != nil {
		return nil, anthropic.TokenUsage{}, err
	}

	parsed, err := parseResponse(resp.Text())
	if err != nil {
		return nil, resp.Usage, err
	}
	return parsed.People, resp.Usage, nil
}

func buildUserPrompt(school model.School, text string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "School: %s\n", school.Name)
	if school.Type != "" {
		fmt.Fprintf(&b, "Type: %s\n", school.Type)
	}
	if school.Location != "" {
		fmt.Fprintf(&b, "Location: %s\n", school.Location)
	}
	b.WriteString("\nExtract every named stakeholder from the following text.\n\n---\n\n")
	b.WriteString(text)
	return b.String()
}

// parseResponse decodes the model output, tolerating markdown fences.
func parseResponse(text string) (*rawResponse, error) {
	cleaned := stripFences(strings.TrimSpace(text))

	var resp rawResponse
	if err := json.Unmarshal([]byte(cleaned), &resp); err != nil {
		// Some responses wrap the object in prose. Take the outermost
		// braces and try once more.
		start := strings.IndexByte(cleaned, '{')
		end := strings.LastIndexByte(cleaned, '}')
		if start >= 0 && end > start {
			if err2 := json.Unmarshal([]byte(cleaned[start:end+1]), &resp); err2 == nil {
				return &resp, nil
			}
		}
		return nil, eris.Wrap(err, "extractor: unmarshal response")
	}
	return &resp, nil
}

func stripFences(text string) string {
	if strings.HasPrefix(text, "```json") {
		text = strings.TrimPrefix(text, "```json")
		if idx := strings.LastIndex(text, "```"); idx >= 0 {
			text = text[:idx]
		}
	} else if strings.HasPrefix(text, "```") {
		text = strings.TrimPrefix(text, "```")
		if idx := strings.LastIndex(text, "```"); idx >= 0 {
			text = text[:idx]
		}
	}
	return strings.TrimSpace(text)
}

// splitChunks cuts text into rune-safe pieces of at most size runes,
// preferring to break on paragraph boundaries.
func splitChunks(text string, size int) []string {
	runes := []rune(text)
	if len(runes) <= size {
		return []string{text}
	}

	var chunks []string
	for len(runes) > 0 {
		if len(runes) <= size {
			chunks = append(chunks, string(runes))
			break
		}
		cut := size
		// Look backwards for a paragraph or line break to cut on.
		for i := size; i > size/2; i-- {
			if runes[i-1] == '\n' {
				cut = i
				break
			}
		}
		chunks = append(chunks, string(runes[:cut]))
		runes = runes[cut:]
	}
	return chunks
}
