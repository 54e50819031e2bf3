package provider

import (
	"fmt"
	"strings"

	"github.com/HanTheDev/content-gateway/internal/models"
)

// Prompt is the text sent to a language or media model.
type Prompt struct {
	System string
	User   string
}

// BuildPrompt renders the instruction for one content type.
func BuildPrompt(sub models.SubRequest) Prompt {
	lang := sub.Options.Language
	if lang == "" {
		lang = "en"
	}

	var sb strings.Builder
	switch sub.ContentType {
	case models.ContentBlog:
		sb.WriteString("Write a marketing blog article in Markdown for the product below.\n")
		sb.WriteString("- Start with a level-one heading as the title.\n")
		sb.WriteString("- 400 to 700 words, short paragraphs, one bulleted feature list.\n")
		sb.WriteString("- Answer with a JSON object: {\"title\", \"body\", \"tags\", \"seo_keywords\"}.\n")
	case models.ContentImage:
		sb.WriteString("A product hero photograph, clean background, studio lighting")
		if sub.Options.ImageStyle != "" {
			sb.WriteString(fmt.Sprintf(", in a %s style", sub.Options.ImageStyle))
		}
		sb.WriteString(". Product: ")
	case models.ContentVideo:
		sb.WriteString(fmt.Sprintf("A %d second promotional video showcasing the product. Product: ", videoDuration(sub.Options)))
	case models.ContentPodcast:
		sb.WriteString("Write a two-host podcast script introducing the product below.\n")
		if sub.Options.VoiceStyle != "" {
			sb.WriteString(fmt.Sprintf("- Voice style: %s.\n", sub.Options.VoiceStyle))
		}
		sb.WriteString("- About 300 words, label each line with HOST A: or HOST B:.\n")
	}

	system := fmt.Sprintf("You are a product marketing writer. Write in language %q. Output only the requested content.", lang)

	user := sb.String()
	if sub.ContentType == models.ContentBlog || sub.ContentType == models.ContentPodcast {
		user += "\nProduct description:\n" + sub.Prompt
	} else {
		user += sub.Prompt
	}

	return Prompt{System: system, User: user}
}

func videoDuration(o models.Options) int {
	if o.VideoDurationSeconds == 0 {
		return 30
	}
	return o.VideoDurationSeconds
}
