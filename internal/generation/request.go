package generation

import (
	"errors"
	"fmt"
	"reflect"
	"sort"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/HanTheDev/content-gateway/internal/cache"
	"github.com/HanTheDev/content-gateway/internal/config"
	"github.com/HanTheDev/content-gateway/internal/models"
)

const (
	maxDescriptionChars  = 1000
	defaultVideoDuration = 30
	defaultLanguage      = "en"
)

// ValidationError rejects a malformed request before any sub-request starts. It is the only
// error Generate returns.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

func IsValidationError(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// normalize validates req and fills defaults. The returned request is not modified afterwards.
func normalize(req models.GenerationRequest, now time.Time) (models.GenerationRequest, error) {
	req.ProductDescription = strings.TrimSpace(req.ProductDescription)
	req.RequesterID = strings.TrimSpace(req.RequesterID)

	if req.ProductDescription == "" {
		return req, &ValidationError{Field: "product_description", Reason: "must not be empty"}
	}
	if n := utf8.RuneCountInString(req.ProductDescription); n > maxDescriptionChars {
		return req, &ValidationError{
			Field:  "product_description",
			Reason: fmt.Sprintf("must be at most %d characters, got %d", maxDescriptionChars, n),
		}
	}

	if err := validate.Struct(req); err != nil {
		var fieldErrs validator.ValidationErrors
		if errors.As(err, &fieldErrs) && len(fieldErrs) > 0 {
			fe := fieldErrs[0]
			return req, &ValidationError{Field: fieldPath(fe), Reason: describeTag(fe)}
		}
		return req, &ValidationError{Field: "request", Reason: err.Error()}
	}

	if req.ID == "" {
		req.ID = uuid.NewString()
	}
	if req.SubmittedAt.IsZero() {
		req.SubmittedAt = now
	}
	if req.PlanTier == "" {
		req.PlanTier = config.DefaultPlan
	}
	if req.Options.VideoDurationSeconds == 0 {
		req.Options.VideoDurationSeconds = defaultVideoDuration
	}
	if req.Options.Language == "" {
		req.Options.Language = defaultLanguage
	}
	req.ContentTypes = orderedTypes(req.ContentTypes)
	return req, nil
}

// fieldPath drops the struct name from the namespace: options.video_duration_seconds.
func fieldPath(fe validator.FieldError) string {
	ns := fe.Namespace()
	if i := strings.Index(ns, "."); i >= 0 {
		return ns[i+1:]
	}
	return ns
}

func describeTag(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "max":
		return "must be at most " + fe.Param()
	case "min":
		return "must be at least " + fe.Param()
	case "oneof":
		return "must be one of " + fe.Param()
	case "unique":
		return "must not contain duplicates"
	}
	return fmt.Sprintf("failed %q validation", fe.Tag())
}

// orderedTypes returns the requested types in AllContentTypes order; empty means all.
func orderedTypes(requested []models.ContentType) []models.ContentType {
	if len(requested) == 0 {
		return append([]models.ContentType(nil), models.AllContentTypes...)
	}
	rank := make(map[models.ContentType]int, len(models.AllContentTypes))
	for i, c := range models.AllContentTypes {
		rank[c] = i
	}
	out := append([]models.ContentType(nil), requested...)
	sort.Slice(out, func(i, j int) bool { return rank[out[i]] < rank[out[j]] })
	return out
}

// subRequests derives one SubRequest per content type. Deadlines never exceed overall.
func (c *Coordinator) subRequests(req models.GenerationRequest, plan config.PlanSpec, start, overall time.Time) []models.SubRequest {
	subs := make([]models.SubRequest, 0, len(req.ContentTypes))
	for _, ct := range req.ContentTypes {
		deadline := start.Add(c.timeoutFor(ct))
		if deadline.After(overall) {
			deadline = overall
		}
		subs = append(subs, models.SubRequest{
			RequestID:     req.ID,
			RequesterID:   req.RequesterID,
			ContentType:   ct,
			Fingerprint:   cache.Fingerprint(ct, req.ProductDescription, req.Options),
			Prompt:        req.ProductDescription,
			Options:       req.Options,
			QualityTier:   plan.QualityTier,
			BudgetCeiling: plan.BudgetCeiling,
			Urgency:       plan.Urgency,
			Deadline:      deadline,
		})
	}
	return subs
}

func (c *Coordinator) timeoutFor(ct models.ContentType) time.Duration {
	if ct == models.ContentVideo {
		return c.settings.VideoTimeout
	}
	return c.settings.SubRequestTimeout
}
