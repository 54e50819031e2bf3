package provider

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"regexp"
	"strings"

	"github.com/yuin/goldmark"

	"github.com/HanTheDev/content-gateway/internal/models"
)

const (
	readingWordsPerMinute  = 200
	speakingWordsPerMinute = 150
)

var (
	titleRe = regexp.MustCompile(`(?m)^#\s+(.+)$`)
	fenceRe = regexp.MustCompile("(?s)^```[a-zA-Z]*\\s*(.*?)\\s*```$")
)

type blogPayload struct {
	Title       string   `json:"title"`
	Body        string   `json:"body"`
	Tags        []string `json:"tags"`
	SEOKeywords []string `json:"seo_keywords"`
}

// ParseBlog accepts either the JSON object the prompt asks for or bare Markdown.
func ParseBlog(raw string) (*models.BlogArtifact, error) {
	text := strings.TrimSpace(raw)
	if m := fenceRe.FindStringSubmatch(text); len(m) == 2 {
		text = strings.TrimSpace(m[1])
	}
	if text == "" {
		return nil, fmt.Errorf("%w: empty blog body", ErrInvalidResponse)
	}

	var p blogPayload
	if strings.HasPrefix(text, "{") && json.Unmarshal([]byte(text), &p) == nil && p.Body != "" {
		return FinishBlog(p.Title, p.Body, p.Tags, p.SEOKeywords)
	}
	return FinishBlog("", text, nil, nil)
}

// FinishBlog fills title, reading time, keywords and the rendered HTML.
func FinishBlog(title, body string, tags, keywords []string) (*models.BlogArtifact, error) {
	body = strings.TrimSpace(body)
	if title == "" {
		if m := titleRe.FindStringSubmatch(body); len(m) == 2 {
			title = strings.TrimSpace(m[1])
		}
	}
	if title == "" {
		return nil, fmt.Errorf("%w: blog has no title", ErrInvalidResponse)
	}

	var html bytes.Buffer
	if err := goldmark.Convert([]byte(body), &html); err != nil {
		return nil, fmt.Errorf("render blog markdown: %w", err)
	}

	if tags == nil {
		tags = []string{}
	}
	if len(keywords) == 0 {
		keywords = append([]string(nil), tags...)
	}

	return &models.BlogArtifact{
		Title:              title,
		Body:               body,
		HTML:               html.String(),
		Tags:               tags,
		SEOKeywords:        keywords,
		ReadingTimeMinutes: minutesFor(body, readingWordsPerMinute),
	}, nil
}

// FinishPodcast estimates spoken duration for a script.
func FinishPodcast(script, audioURL, description string) (*models.PodcastArtifact, error) {
	script = strings.TrimSpace(script)
	if script == "" {
		return nil, fmt.Errorf("%w: empty podcast script", ErrInvalidResponse)
	}
	return &models.PodcastArtifact{
		Script:          script,
		AudioURL:        audioURL,
		DurationSeconds: minutesFor(script, speakingWordsPerMinute) * 60,
		Description:     description,
	}, nil
}

func minutesFor(text string, wpm int) int {
	words := len(strings.Fields(text))
	m := int(math.Ceil(float64(words) / float64(wpm)))
	if m < 1 {
		m = 1
	}
	return m
}

func summarize(text string, limit int) string {
	runes := []rune(strings.Join(strings.Fields(text), " "))
	if len(runes) <= limit {
		return string(runes)
	}
	cut := string(runes[:limit])
	if i := strings.LastIndex(cut, " "); i > len(cut)/2 {
		cut = cut[:i]
	}
	return cut + "..."
}
