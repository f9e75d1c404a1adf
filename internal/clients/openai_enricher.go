package clients

import (
	"bytes"
	"compress/gzip"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"math"
	"net/http"
	"regexp"
	"strconv"
	"strings"
	"time"

	"coursecatalog/internal/models"

	"github.com/andybalholm/brotli"
	"golang.org/x/net/html"
	"golang.org/x/time/rate"
)

const maxPageBytes = 2 << 20

// Tracks is the fixed vocabulary the enricher may assign.
var Tracks = []string{
	"AI Literacy", "Prompt Engineering", "Python Development", "RAG",
	"Responsible AI", "Machine Learning", "Data Science", "MLOps", "Technical Skills",
}

// EvidenceFallback is recorded when no official proof of completion exists.
const EvidenceFallback = "100% progress screenshot + 150-200 word reflection; " +
	"optionally include a small project artifact (GitHub/HF/PartyRock)."

var systemPrompt = `You are a meticulous researcher filling metadata on AI training courses.

Rules:
- Use the provided page text and link. If the page requires login, rely on what is public.
- Extract real details where possible; otherwise return "Unknown" or "0 Hours".
- Summary must be at most 256 characters.
- Track: choose the best 1-3 from this fixed list: ` + strings.Join(Tracks, ", ") + ` (never invent new labels).
- Platform: list the specific tools, software, platforms or libraries that will be learned. Do not put the hosting site name here.
- Length: integer hours rounded from durations.
- Hands On: "Yes" if labs, projects, notebooks or exercises are included; "No" if lecture-only; else "Unknown".
- Difficulty: Low / Medium / High / Unknown.
- Skill Level: Novice / Intermediate / Expert / Master / Unknown.
- Evidence of Completion: prefer official verifiables (badges, transcripts, certificates).
Return a single JSON object with the keys: Provider, Link, Course Name, Summary, Track, Platform, Hands On, Skill Level, Difficulty, Length, Evidence of Completion.`

type OpenAIConfig struct {
	APIKey         string
	Model          string
	BaseURL        string
	RequestTimeout time.Duration
	ContextChars   int
	RequestsPerMin int
}

// OpenAIEnricher fetches a course page and asks a chat-completions model
// to fill the course metadata.
type OpenAIEnricher struct {
	config  OpenAIConfig
	client  *http.Client
	limiter *rate.Limiter
}

func NewOpenAIEnricher(config OpenAIConfig) *OpenAIEnricher {
	if config.RequestTimeout <= 0 {
		config.RequestTimeout = 60 * time.Second
	}
	if config.BaseURL == "" {
		config.BaseURL = "https://api.openai.com/v1"
	}
	config.BaseURL = strings.TrimRight(config.BaseURL, "/")

	limit := rate.Inf
	if config.RequestsPerMin > 0 {
		limit = rate.Every(time.Minute / time.Duration(config.RequestsPerMin))
	}

	return &OpenAIEnricher{
		config: config,
		client: &http.Client{
			Timeout: config.RequestTimeout,
			Transport: &http.Transport{
				MaxIdleConns:    10,
				IdleConnTimeout: 30 * time.Second,
			},
		},
		limiter: rate.NewLimiter(limit, 1),
	}
}

func (e *OpenAIEnricher) Enrich(ctx context.Context, link, provider, courseName string) (models.CoursePatch, error) {
	if e.config.APIKey == "" {
		return models.CoursePatch{}, fmt.Errorf("%w: OPENAI_API_KEY is not configured", models.ErrEnrichment)
	}
	if err := e.limiter.Wait(ctx); err != nil {
		return models.CoursePatch{}, fmt.Errorf("%w: rate limiter: %v", models.ErrEnrichment, err)
	}

	pageText, err := e.fetchPageText(ctx, link)
	if err != nil {
		log.Printf("Enricher: failed to fetch %s, continuing without page text: %v", link, err)
	}

	content, err := e.complete(ctx, userPrompt(link, provider, courseName, pageText))
	if err != nil {
		return models.CoursePatch{}, fmt.Errorf("%w: %v", models.ErrEnrichment, err)
	}

	raw, err := parseLooseJSON(content)
	if err != nil {
		return models.CoursePatch{}, fmt.Errorf("%w: %v", models.ErrEnrichment, err)
	}

	fields := Canonicalize(raw, provider, link)
	if fields.CourseName == models.DefaultCourseName && strings.TrimSpace(courseName) != "" {
		fields.CourseName = strings.TrimSpace(courseName)
	}
	return models.PatchFromFields(fields), nil
}

func userPrompt(link, provider, courseName, pageText string) string {
	var b strings.Builder
	b.WriteString("Fill the metadata for this course.\n\n")
	fmt.Fprintf(&b, "Provider: %s\nLink: %s\n", provider, link)
	if courseName != "" {
		fmt.Fprintf(&b, "Course Name: %s\n", courseName)
	}
	if pageText != "" {
		fmt.Fprintf(&b, "\nPage text:\n%s\n", pageText)
	}
	b.WriteString("\nReturn ONLY the JSON object.")
	return b.String()
}

func (e *OpenAIEnricher) fetchPageText(ctx context.Context, link string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, link, nil)
	if err != nil {
		return "", fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("User-Agent", "CourseCatalog/1.0")
	req.Header.Set("Accept", "text/html,application/xhtml+xml")
	req.Header.Set("Accept-Encoding", "br, gzip")

	resp, err := e.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("execute request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("page returned status %d", resp.StatusCode)
	}

	body, err := decodeBody(resp)
	if err != nil {
		return "", err
	}
	if c, ok := body.(io.Closer); ok {
		defer c.Close()
	}

	text, err := ExtractText(io.LimitReader(body, maxPageBytes))
	if err != nil {
		return "", fmt.Errorf("parse html: %w", err)
	}
	return truncate(text, e.config.ContextChars), nil
}

func decodeBody(resp *http.Response) (io.Reader, error) {
	switch strings.ToLower(strings.TrimSpace(resp.Header.Get("Content-Encoding"))) {
	case "br":
		return brotli.NewReader(resp.Body), nil
	case "gzip":
		zr, err := gzip.NewReader(resp.Body)
		if err != nil {
			return nil, fmt.Errorf("gzip: %w", err)
		}
		return zr, nil
	case "", "identity":
		return resp.Body, nil
	default:
		return nil, fmt.Errorf("unsupported content encoding %q", resp.Header.Get("Content-Encoding"))
	}
}

// ExtractText returns the visible text of an HTML document with
// whitespace collapsed. Script, style and noscript content is skipped.
func ExtractText(r io.Reader) (string, error) {
	z := html.NewTokenizer(r)
	var parts []string
	skip := 0

	for {
		switch z.Next() {
		case html.ErrorToken:
			if z.Err() == io.EOF {
				return strings.Join(parts, " "), nil
			}
			return strings.Join(parts, " "), z.Err()
		case html.StartTagToken:
			if name, _ := z.TagName(); skippedTag(string(name)) {
				skip++
			}
		case html.EndTagToken:
			if name, _ := z.TagName(); skippedTag(string(name)) && skip > 0 {
				skip--
			}
		case html.TextToken:
			if skip > 0 {
				continue
			}
			if text := collapseSpaces(string(z.Text())); text != "" {
				parts = append(parts, text)
			}
		}
	}
}

func skippedTag(name string) bool {
	switch name {
	case "script", "style", "noscript", "svg", "template":
		return true
	}
	return false
}

func truncate(s string, limit int) string {
	if limit <= 0 {
		return s
	}
	runes := []rune(s)
	if len(runes) <= limit {
		return s
	}
	return string(runes[:limit])
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model          string            `json:"model"`
	Messages       []chatMessage     `json:"messages"`
	Temperature    float64           `json:"temperature"`
	ResponseFormat map[string]string `json:"response_format"`
}

type chatResponse struct {
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error"`
}

func (e *OpenAIEnricher) complete(ctx context.Context, prompt string) (string, error) {
	payload, err := json.Marshal(chatRequest{
		Model: e.config.Model,
		Messages: []chatMessage{
			{Role: "system", Content: systemPrompt},
			{Role: "user", Content: prompt},
		},
		Temperature:    0.2,
		ResponseFormat: map[string]string{"type": "json_object"},
	})
	if err != nil {
		return "", fmt.Errorf("encode request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.config.BaseURL+"/chat/completions", bytes.NewReader(payload))
	if err != nil {
		return "", fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+e.config.APIKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := e.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("execute request: %w", err)
	}
	defer resp.Body.Close()

	var result chatResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return "", fmt.Errorf("decode JSON (status %d): %w", resp.StatusCode, err)
	}
	if resp.StatusCode != http.StatusOK {
		if result.Error != nil && result.Error.Message != "" {
			return "", fmt.Errorf("API returned status %d: %s", resp.StatusCode, result.Error.Message)
		}
		return "", fmt.Errorf("API returned status %d", resp.StatusCode)
	}
	if len(result.Choices) == 0 || strings.TrimSpace(result.Choices[0].Message.Content) == "" {
		return "", fmt.Errorf("API returned no content")
	}
	return result.Choices[0].Message.Content, nil
}

// parseLooseJSON accepts a bare object, a fenced code block or an object
// embedded in surrounding text.
func parseLooseJSON(s string) (map[string]interface{}, error) {
	s = strings.TrimSpace(s)
	if strings.HasPrefix(s, "```") {
		lines := strings.Split(s, "\n")
		lines = lines[1:]
		if n := len(lines); n > 0 && strings.HasPrefix(strings.TrimSpace(lines[n-1]), "```") {
			lines = lines[:n-1]
		}
		s = strings.TrimSpace(strings.Join(lines, "\n"))
	}

	var out map[string]interface{}
	if err := json.Unmarshal([]byte(s), &out); err == nil {
		return out, nil
	}

	start, end := strings.Index(s, "{"), strings.LastIndex(s, "}")
	if start != -1 && end > start {
		if err := json.Unmarshal([]byte(s[start:end+1]), &out); err == nil {
			return out, nil
		}
	}
	return nil, fmt.Errorf("could not parse model response into a JSON object")
}

var (
	nonAlnum   = regexp.MustCompile(`[^a-z0-9]+`)
	firstDigit = regexp.MustCompile(`\d+`)
)

var keyAliases = map[string]string{
	"provider":               "provider",
	"link":                   "link",
	"course_name":            "course_name",
	"course_title":           "course_name",
	"coursetitle":            "course_name",
	"title":                  "course_name",
	"name":                   "course_name",
	"summary":                "summary",
	"track":                  "track",
	"tracks":                 "track",
	"platform":               "platform",
	"platform_name":          "platform",
	"hands_on":               "hands_on",
	"hands":                  "hands_on",
	"handson":                "hands_on",
	"skill_level":            "skill_level",
	"skilllevel":             "skill_level",
	"difficulty":             "difficulty",
	"length":                 "length",
	"length_hours":           "length",
	"lengthhours":            "length",
	"evidence_of_completion": "evidence",
	"evidence":               "evidence",
	"evidenceofcompletion":   "evidence",
	"proof_of_completion":    "evidence",
	"completion_proof":       "evidence",
	"completion_certificate": "evidence",
	"certificate":            "evidence",
	"certification":          "evidence",
	"badge":                  "evidence",
	"digital_badge":          "evidence",
	"shareable_certificate":  "evidence",
	"transcript":             "evidence",
	"credential":             "evidence",
}

var choiceSynonyms = map[string]string{
	"beginner":     "Novice",
	"novice":       "Novice",
	"intermediate": "Intermediate",
	"advanced":     "Expert",
	"expert":       "Expert",
	"master":       "Master",
	"easy":         "Low",
	"low":          "Low",
	"medium":       "Medium",
	"moderate":     "Medium",
	"hard":         "High",
	"high":         "High",
}

var (
	skillLevels  = []string{"Novice", "Intermediate", "Expert", "Master"}
	difficulties = []string{"Low", "Medium", "High"}
)

// Canonicalize maps a loosely keyed model answer onto course fields,
// coercing each value into the catalog vocabulary.
func Canonicalize(raw map[string]interface{}, provider, link string) models.CourseFields {
	fields := models.DefaultCourseFields()
	fields.Provider = provider
	fields.Link = link

	evidence := ""
	for key, value := range raw {
		switch keyAliases[strings.Trim(nonAlnum.ReplaceAllString(strings.ToLower(strings.TrimSpace(key)), "_"), "_")] {
		case "provider":
			if s := stringValue(value); s != "" {
				fields.Provider = s
			}
		case "link":
			if s := stringValue(value); s != "" && link == "" {
				fields.Link = s
			}
		case "course_name":
			fields.CourseName = stringValue(value)
		case "summary":
			fields.Summary = stringValue(value)
		case "track":
			fields.Track = coerceTrack(value)
		case "platform":
			fields.Platform = coercePlatform(value)
		case "hands_on":
			fields.HandsOn = coerceHandsOn(value)
		case "skill_level":
			fields.SkillLevel = coerceChoice(value, skillLevels)
		case "difficulty":
			fields.Difficulty = coerceChoice(value, difficulties)
		case "length":
			fields.Length = coerceLength(value)
		case "evidence":
			evidence = listValue(value)
		}
	}

	if evidence != "" && !strings.EqualFold(evidence, models.DefaultEvidenceOfCompletion) {
		fields.EvidenceOfCompletion = coerceEvidence(evidence)
	} else {
		fields.EvidenceOfCompletion = EvidenceFallback
	}

	fields.Normalize()
	return fields
}

func collapseSpaces(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

func stringValue(v interface{}) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return collapseSpaces(t)
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(t)
	case []interface{}:
		return listValue(t)
	default:
		return collapseSpaces(fmt.Sprint(t))
	}
}

// splitList accepts a JSON array or a string delimited by commas or
// semicolons.
func splitList(v interface{}) []string {
	var items []string
	switch t := v.(type) {
	case []interface{}:
		for _, item := range t {
			if s := stringValue(item); s != "" {
				items = append(items, s)
			}
		}
	default:
		for _, part := range strings.Split(strings.ReplaceAll(stringValue(v), ";", ","), ",") {
			if s := strings.TrimSpace(part); s != "" {
				items = append(items, s)
			}
		}
	}
	return items
}

func listValue(v interface{}) string {
	if items, ok := v.([]interface{}); ok {
		var parts []string
		for _, item := range items {
			if s := stringValue(item); s != "" {
				parts = append(parts, s)
			}
		}
		return strings.Join(parts, "; ")
	}
	return stringValue(v)
}

func coerceTrack(v interface{}) string {
	allowed := make(map[string]string, len(Tracks))
	for _, t := range Tracks {
		allowed[strings.ToLower(t)] = t
	}

	var out []string
	for _, item := range splitList(v) {
		if t, ok := allowed[strings.ToLower(item)]; ok {
			out = append(out, t)
		}
		if len(out) == 3 {
			break
		}
	}
	return strings.Join(out, "; ")
}

func coercePlatform(v interface{}) string {
	seen := make(map[string]bool)
	var out []string
	for _, item := range splitList(v) {
		low := strings.ToLower(item)
		if !seen[low] {
			seen[low] = true
			out = append(out, item)
		}
	}
	return strings.Join(out, "; ")
}

func coerceHandsOn(v interface{}) string {
	if b, ok := v.(bool); ok {
		if b {
			return "Yes"
		}
		return "No"
	}
	switch strings.ToLower(stringValue(v)) {
	case "yes", "y", "true", "1":
		return "Yes"
	case "no", "n", "false", "0":
		return "No"
	}
	return models.DefaultHandsOn
}

func coerceChoice(v interface{}, choices []string) string {
	s := strings.ToLower(stringValue(v))
	if mapped, ok := choiceSynonyms[s]; ok {
		for _, c := range choices {
			if c == mapped {
				return c
			}
		}
	}
	for _, c := range choices {
		if strings.ToLower(c) == s {
			return c
		}
	}
	return "Unknown"
}

func coerceLength(v interface{}) string {
	if f, ok := v.(float64); ok {
		return fmt.Sprintf("%d Hours", int(math.Max(0, math.Round(f))))
	}
	if digits := firstDigit.FindString(stringValue(v)); digits != "" {
		if n, err := strconv.Atoi(digits); err == nil {
			return fmt.Sprintf("%d Hours", n)
		}
	}
	return models.DefaultLength
}

func coerceEvidence(s string) string {
	low := strings.ToLower(s)
	switch {
	case strings.Contains(low, "badge"):
		return "Digital Badge"
	case strings.Contains(low, "certificate"), strings.Contains(low, "certification"):
		return "Certificate"
	case strings.Contains(low, "transcript"):
		return "Transcript"
	}
	switch low {
	case "yes", "true", "available":
		return "Certificate"
	case "no", "none", "n/a", "na", "not available":
		return models.DefaultEvidenceOfCompletion
	}
	return s
}
