package content

import (
	"context"
	"errors"
	"fmt"

	"github.com/parlancehq/parlance/pkg/action"
	"github.com/parlancehq/parlance/pkg/storage"
)

const seoSystemPrompt = `You write SEO meta descriptions. Reply with one plain sentence under 160 characters, no quotes.`

const maxSEOTitleLen = 60

// GenerateSEO builds the content.generate_seo action: it writes a meta
// description for an existing post and stores it on the row.
func GenerateSEO(cfg Config) action.Action {
	return action.MustNew(action.Definition{
		Name:        "content.generate_seo",
		Description: "Generate and store an SEO meta description for an existing post",
		Permission:  PermissionPublish,
		Schema: action.NewSchema([]action.Field{
			action.StringField("post_id", "ID of the post to optimize"),
		}, "post_id"),
		Handler: func(ctx context.Context, payload action.Payload, sink action.Sink) (*action.Result, error) {
			postID := payload["post_id"].(string)

			sink.Emit(action.Step{Label: "seo", Status: action.StepInProgress})

			post, err := cfg.Store.GetPost(postID)
			if err != nil {
				sink.Emit(action.Step{Label: "seo", Status: action.StepFailed})
				if errors.Is(err, storage.ErrNotFound) {
					return action.Fail("post not found"), nil
				}
				logError(cfg.Logger, "load_post_failed", err)
				return action.Fail("could not load post"), nil
			}

			description, err := cfg.Generator.Generate(ctx, seoSystemPrompt, seoPrompt(post))
			if err != nil {
				logError(cfg.Logger, "generate_seo_failed", err)
				sink.Emit(action.Step{Label: "seo", Status: action.StepFailed})
				return action.Fail("could not generate description"), nil
			}

			if err := cfg.Store.UpdatePostSEO(post.ID, seoTitle(post.Title), description); err != nil {
				logError(cfg.Logger, "save_seo_failed", err)
				sink.Emit(action.Step{Label: "seo", Status: action.StepFailed})
				return action.Fail("could not save description"), nil
			}

			sink.Emit(action.Step{Label: "seo", Status: action.StepCompleted})
			return action.Success("seo description updated").
				WithData("post_id", post.ID).
				WithAction("view", "/posts/"+post.ID), nil
		},
	})
}

func seoPrompt(post *storage.Post) string {
	body := post.Body
	if len(body) > 1000 {
		body = body[:1000]
	}
	return fmt.Sprintf("Title: %s\n\n%s", post.Title, body)
}

// seoTitle trims the post title to the length search engines display.
func seoTitle(title string) string {
	if len(title) <= maxSEOTitleLen {
		return title
	}
	return title[:maxSEOTitleLen-3] + "..."
}
