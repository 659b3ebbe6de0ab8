// Package content provides the post-writing capability: generating a post
// body, persisting it, and attaching generated images. The post row is the
// primary artifact; once it exists, downstream failures degrade the result
// to partial instead of discarding the work.
package content

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/parlancehq/parlance/pkg/action"
	"github.com/parlancehq/parlance/pkg/capability"
	"github.com/parlancehq/parlance/pkg/command"
	"github.com/parlancehq/parlance/pkg/logging"
	"github.com/parlancehq/parlance/pkg/storage"
)

// FlagName is the feature flag gating this capability.
const FlagName = "content"

// PermissionPublish guards both content actions.
const PermissionPublish = "content.publish"

const defaultImageTimeout = 60 * time.Second

// Generator produces post bodies and SEO copy.
type Generator interface {
	Generate(ctx context.Context, system, prompt string) (string, error)
}

// ImageGenerator renders one image and returns its URL.
type ImageGenerator interface {
	Generate(ctx context.Context, prompt string) (string, error)
}

// Config wires the content actions to their collaborators. Images may be
// nil when no image service is configured; image requests then degrade the
// result to partial.
type Config struct {
	Store     *storage.Store
	Generator Generator
	Images    ImageGenerator

	// ImageTimeout bounds each image generation call individually, so one
	// slow render cannot stall the whole command.
	ImageTimeout time.Duration

	Logger *logging.Logger
}

// Capability bundles the content actions behind the given enable predicate.
func Capability(cfg Config, enabled func() (bool, error)) capability.Capability {
	return capability.New(FlagName, enabled, CreatePost(cfg), GenerateSEO(cfg))
}

const bodySystemPrompt = `You write blog posts. Reply with the post body only, no title, no preamble.`

// CreatePost builds the content.create_post action.
func CreatePost(cfg Config) action.Action {
	imageTimeout := cfg.ImageTimeout
	if imageTimeout <= 0 {
		imageTimeout = defaultImageTimeout
	}

	return action.MustNew(action.Definition{
		Name:        "content.create_post",
		Description: "Write a blog post about a topic and optionally attach generated images",
		Permission:  PermissionPublish,
		Schema: action.NewSchema([]action.Field{
			action.StringField("topic", "What the post is about"),
			action.IntField("image_count", "How many images to generate").WithDefault(0).WithRange(0, 4),
			action.EnumField("tone", "Writing tone", "casual", "formal").WithDefault("casual"),
		}, "topic"),
		Handler: func(ctx context.Context, payload action.Payload, sink action.Sink) (*action.Result, error) {
			topic := payload["topic"].(string)
			imageCount := payload["image_count"].(int)
			tone := payload["tone"].(string)

			sink.Emit(action.Step{Label: "content", Status: action.StepInProgress})
			body, err := cfg.Generator.Generate(ctx, bodySystemPrompt, bodyPrompt(topic, tone))
			if err != nil {
				logError(cfg.Logger, "generate_body_failed", err)
				sink.Emit(action.Step{Label: "content", Status: action.StepFailed})
				return action.Fail("could not generate post content"), nil
			}
			sink.Emit(action.Step{Label: "content", Status: action.StepCompleted})

			sink.Emit(action.Step{Label: "post", Status: action.StepInProgress})
			post := &storage.Post{Title: topic, Body: body}
			if err := cfg.Store.CreatePost(post); err != nil {
				logError(cfg.Logger, "save_post_failed", err)
				sink.Emit(action.Step{Label: "post", Status: action.StepFailed})
				return action.Fail("could not save post"), nil
			}
			sink.Emit(action.Step{
				Label:  "post",
				Status: action.StepCompleted,
				Data:   map[string]any{"post_id": post.ID},
			})

			result := action.Success("post created").
				WithData("post_id", post.ID).
				WithAction("view", "/posts/"+post.ID)

			if imageCount == 0 {
				return result, nil
			}

			// The post row exists from here on: image trouble makes the
			// result partial, never failed.
			sink.Emit(action.Step{Label: "images", Status: action.StepInProgress})
			attached := attachImages(ctx, cfg, post, topic, imageCount, imageTimeout)
			switch {
			case attached == imageCount:
				sink.Emit(action.Step{
					Label:  "images",
					Status: action.StepCompleted,
					Data:   map[string]any{"attached": attached},
				})
				return result.WithData("images_attached", attached), nil
			case attached > 0:
				sink.Emit(action.Step{
					Label:  "images",
					Status: action.StepCompleted,
					Data:   map[string]any{"attached": attached, "requested": imageCount},
				})
				partial := action.Partial(fmt.Sprintf("post created, %d of %d images attached", attached, imageCount))
				partial.Data = result.Data
				partial.Actions = result.Actions
				return partial.WithData("images_attached", attached), nil
			default:
				sink.Emit(action.Step{Label: "images", Status: action.StepFailed})
				partial := action.Partial("post created, image generation failed")
				partial.Data = result.Data
				partial.Actions = result.Actions
				return partial.WithData("images_attached", 0), nil
			}
		},
	})
}

// attachImages generates up to count images, each under its own deadline,
// and attaches the first successful one to the post. It returns how many
// were generated.
func attachImages(ctx context.Context, cfg Config, post *storage.Post, topic string, count int, timeout time.Duration) int {
	if cfg.Images == nil {
		logError(cfg.Logger, "images_unconfigured", fmt.Errorf("no image service"))
		return 0
	}

	attached := 0
	for i := 0; i < count; i++ {
		imgCtx, cancel := context.WithTimeout(ctx, timeout)
		url, err := cfg.Images.Generate(imgCtx, imagePrompt(topic, i))
		cancel()
		if err != nil {
			logError(cfg.Logger, "generate_image_failed", err)
			continue
		}
		if attached == 0 {
			if err := cfg.Store.SetPostImage(post.ID, url); err != nil {
				logError(cfg.Logger, "attach_image_failed", err)
				continue
			}
		}
		attached++
	}
	return attached
}

func bodyPrompt(topic, tone string) string {
	return fmt.Sprintf("Write a %s blog post about: %s", tone, topic)
}

func imagePrompt(topic string, index int) string {
	if index == 0 {
		return "Illustration for a blog post about " + topic
	}
	return fmt.Sprintf("Illustration %d for a blog post about %s", index+1, topic)
}

func logError(logger *logging.Logger, eventType string, err error) {
	if logger == nil {
		return
	}
	logger.Warn(logging.CategoryDispatch, eventType, err.Error(), nil)
}

// Rules returns the pattern rules for the content actions, in registration
// order. The post rule accepts "write a post about X" with an optional
// "with N images" suffix.
func Rules() []command.Rule {
	return []command.Rule{
		command.MustRule(
			"content.create_post",
			`(?i)^write a post about (.+?)(?:\s+with\s+(\d+)\s+images?)?$`,
			func(m []string) (action.Payload, error) {
				payload := action.Payload{"topic": strings.TrimSpace(m[1])}
				if m[2] != "" {
					count, err := strconv.Atoi(m[2])
					if err != nil {
						return nil, err
					}
					payload["image_count"] = count
				}
				return payload, nil
			},
		),
	}
}
