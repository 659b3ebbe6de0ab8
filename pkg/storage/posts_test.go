package storage

import (
	"testing"
)

func TestPostLifecycle(t *testing.T) {
	store := newTestStore(t)

	post := &Post{Title: "Launch week", Body: "We shipped."}
	if err := store.CreatePost(post); err != nil {
		t.Fatalf("create: %v", err)
	}
	if post.ID == "" {
		t.Fatal("expected minted ID")
	}
	if post.Status != PostStatusDraft {
		t.Errorf("status = %q, want draft", post.Status)
	}

	if err := store.UpdatePostSEO(post.ID, "Launch Week Recap", "Everything we shipped."); err != nil {
		t.Fatalf("update seo: %v", err)
	}
	if err := store.SetPostImage(post.ID, "https://img.example/p.png"); err != nil {
		t.Fatalf("set image: %v", err)
	}

	got, err := store.GetPost(post.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.SEOTitle != "Launch Week Recap" || got.ImageURL != "https://img.example/p.png" {
		t.Errorf("post = %+v", got)
	}

	posts, err := store.ListPosts(10)
	if err != nil {
		t.Fatal(err)
	}
	if len(posts) != 1 {
		t.Errorf("list len = %d", len(posts))
	}
}

func TestPostNotFound(t *testing.T) {
	store := newTestStore(t)

	if _, err := store.GetPost("nope"); err != ErrNotFound {
		t.Errorf("get err = %v, want ErrNotFound", err)
	}
	if err := store.UpdatePostSEO("nope", "t", "d"); err != ErrNotFound {
		t.Errorf("update err = %v, want ErrNotFound", err)
	}
	if err := store.SetPostImage("nope", "u"); err != ErrNotFound {
		t.Errorf("set image err = %v, want ErrNotFound", err)
	}
}
