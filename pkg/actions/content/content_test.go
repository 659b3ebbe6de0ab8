package content

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync/atomic"
	"testing"

	"github.com/parlancehq/parlance/pkg/action"
	"github.com/parlancehq/parlance/pkg/storage"
)

type generatorFunc func(ctx context.Context, system, prompt string) (string, error)

func (f generatorFunc) Generate(ctx context.Context, system, prompt string) (string, error) {
	return f(ctx, system, prompt)
}

type imageFunc func(ctx context.Context, prompt string) (string, error)

func (f imageFunc) Generate(ctx context.Context, prompt string) (string, error) {
	return f(ctx, prompt)
}

func newTestStore(t *testing.T) *storage.Store {
	t.Helper()
	store, err := storage.New(filepath.Join(t.TempDir(), "parlance.db"))
	if err != nil {
		t.Fatalf("failed to init store: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func staticGenerator(text string) Generator {
	return generatorFunc(func(ctx context.Context, system, prompt string) (string, error) {
		return text, nil
	})
}

func stepStatuses(steps []action.Step, label string) []action.StepStatus {
	var out []action.StepStatus
	for _, s := range steps {
		if s.Label == label {
			out = append(out, s.Status)
		}
	}
	return out
}

func TestCreatePostSuccessWithoutImages(t *testing.T) {
	store := newTestStore(t)
	cfg := Config{Store: store, Generator: staticGenerator("Body text.")}

	sink := &action.BufferSink{}
	result, err := CreatePost(cfg).HandleWithProgress(context.Background(),
		action.Payload{"topic": "lighthouses", "image_count": 0, "tone": "casual"}, sink)
	if err != nil {
		t.Fatalf("handler error: %v", err)
	}

	if result.Status != action.StatusSuccess {
		t.Fatalf("status = %s, want success", result.Status)
	}
	postID, ok := result.Data["post_id"].(string)
	if !ok || postID == "" {
		t.Fatalf("post_id missing from result data: %v", result.Data)
	}
	if result.Actions["view"] != "/posts/"+postID {
		t.Errorf("view action = %q", result.Actions["view"])
	}

	post, err := store.GetPost(postID)
	if err != nil {
		t.Fatalf("post row missing: %v", err)
	}
	if post.Title != "lighthouses" || post.Body != "Body text." {
		t.Errorf("post = %+v", post)
	}

	// Phase order: content before post, each in_progress before completed.
	steps := sink.Steps()
	if got := stepStatuses(steps, "content"); len(got) != 2 || got[0] != action.StepInProgress || got[1] != action.StepCompleted {
		t.Errorf("content steps = %v", got)
	}
	if got := stepStatuses(steps, "post"); len(got) != 2 || got[1] != action.StepCompleted {
		t.Errorf("post steps = %v", got)
	}
	if len(stepStatuses(steps, "images")) != 0 {
		t.Error("no images requested, no images step expected")
	}
}

func TestCreatePostGenerationFailureIsFailed(t *testing.T) {
	store := newTestStore(t)
	cfg := Config{
		Store: store,
		Generator: generatorFunc(func(ctx context.Context, system, prompt string) (string, error) {
			return "", errors.New("model offline")
		}),
	}

	sink := &action.BufferSink{}
	result, err := CreatePost(cfg).HandleWithProgress(context.Background(),
		action.Payload{"topic": "x", "image_count": 0, "tone": "casual"}, sink)
	if err != nil {
		t.Fatalf("handler error: %v", err)
	}

	if result.Status != action.StatusFailed {
		t.Fatalf("status = %s, want failed (nothing was persisted)", result.Status)
	}
	if _, ok := result.Data["post_id"]; ok {
		t.Error("no post row exists, result must not reference one")
	}
	if result.Message == "model offline" {
		t.Error("internal error detail must not leak into the message")
	}

	posts, err := store.ListPosts(10)
	if err != nil {
		t.Fatal(err)
	}
	if len(posts) != 0 {
		t.Errorf("expected no persisted posts, found %d", len(posts))
	}
}

func TestCreatePostImageFailureIsPartial(t *testing.T) {
	store := newTestStore(t)
	cfg := Config{
		Store:     store,
		Generator: staticGenerator("Body."),
		Images: imageFunc(func(ctx context.Context, prompt string) (string, error) {
			return "", errors.New("render farm down")
		}),
	}

	sink := &action.BufferSink{}
	result, err := CreatePost(cfg).HandleWithProgress(context.Background(),
		action.Payload{"topic": "storms", "image_count": 2, "tone": "formal"}, sink)
	if err != nil {
		t.Fatalf("handler error: %v", err)
	}

	if result.Status != action.StatusPartial {
		t.Fatalf("status = %s, want partial: the post row exists", result.Status)
	}
	postID, _ := result.Data["post_id"].(string)
	if postID == "" {
		t.Fatal("partial result must still carry post_id")
	}
	if _, err := store.GetPost(postID); err != nil {
		t.Fatalf("primary artifact must survive: %v", err)
	}
	if got := stepStatuses(sink.Steps(), "images"); len(got) != 2 || got[1] != action.StepFailed {
		t.Errorf("images steps = %v", got)
	}
}

func TestCreatePostSomeImagesAttachedIsPartial(t *testing.T) {
	store := newTestStore(t)
	var calls atomic.Int32
	cfg := Config{
		Store:     store,
		Generator: staticGenerator("Body."),
		Images: imageFunc(func(ctx context.Context, prompt string) (string, error) {
			if calls.Add(1) == 1 {
				return "https://cdn.example.com/1.png", nil
			}
			return "", errors.New("quota exceeded")
		}),
	}

	result, err := CreatePost(cfg).HandleWithProgress(context.Background(),
		action.Payload{"topic": "tides", "image_count": 3, "tone": "casual"}, &action.BufferSink{})
	if err != nil {
		t.Fatal(err)
	}

	if result.Status != action.StatusPartial {
		t.Fatalf("status = %s, want partial", result.Status)
	}
	if got := result.Data["images_attached"]; got != 1 {
		t.Errorf("images_attached = %v, want 1", got)
	}

	post, err := store.GetPost(result.Data["post_id"].(string))
	if err != nil {
		t.Fatal(err)
	}
	if post.ImageURL != "https://cdn.example.com/1.png" {
		t.Errorf("first successful image should be attached, got %q", post.ImageURL)
	}
}

func TestCreatePostAllImagesSucceed(t *testing.T) {
	store := newTestStore(t)
	var calls atomic.Int32
	cfg := Config{
		Store:     store,
		Generator: staticGenerator("Body."),
		Images: imageFunc(func(ctx context.Context, prompt string) (string, error) {
			return fmt.Sprintf("https://cdn.example.com/%d.png", calls.Add(1)), nil
		}),
	}

	result, err := CreatePost(cfg).HandleWithProgress(context.Background(),
		action.Payload{"topic": "dunes", "image_count": 2, "tone": "casual"}, &action.BufferSink{})
	if err != nil {
		t.Fatal(err)
	}

	if result.Status != action.StatusSuccess {
		t.Fatalf("status = %s, want success", result.Status)
	}
	if got := result.Data["images_attached"]; got != 2 {
		t.Errorf("images_attached = %v, want 2", got)
	}
}

func TestCreatePostNoImageServiceIsPartial(t *testing.T) {
	store := newTestStore(t)
	cfg := Config{Store: store, Generator: staticGenerator("Body.")}

	result, err := CreatePost(cfg).HandleWithProgress(context.Background(),
		action.Payload{"topic": "reefs", "image_count": 1, "tone": "casual"}, &action.BufferSink{})
	if err != nil {
		t.Fatal(err)
	}

	if result.Status != action.StatusPartial {
		t.Fatalf("status = %s, want partial when images are requested but unconfigured", result.Status)
	}
}

func TestContentRuleExtractsTopicAndCount(t *testing.T) {
	rules := Rules()
	if len(rules) != 1 {
		t.Fatalf("expected 1 rule, got %d", len(rules))
	}

	schema := CreatePost(Config{Generator: staticGenerator("")}).Schema()

	for _, tt := range []struct {
		command string
		topic   string
		images  int
	}{
		{"write a post about coffee", "coffee", 0},
		{"Write a post about cold brew with 2 images", "cold brew", 2},
		{"write a post about oat milk with 1 image", "oat milk", 1},
	} {
		payload, ok, err := rules[0].Match(tt.command)
		if err != nil || !ok {
			t.Fatalf("rule did not match %q: ok=%v err=%v", tt.command, ok, err)
		}
		validated, err := schema.Validate(payload)
		if err != nil {
			t.Fatalf("extracted payload failed validation: %v", err)
		}
		if validated["topic"] != tt.topic {
			t.Errorf("topic = %v, want %q", validated["topic"], tt.topic)
		}
		if validated["image_count"] != tt.images {
			t.Errorf("image_count = %v, want %d", validated["image_count"], tt.images)
		}
	}
}
