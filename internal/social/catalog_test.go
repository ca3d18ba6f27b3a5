package social_test

import (
	"context"
	"testing"

	"OpenAgent-Sim/internal/action"
	"OpenAgent-Sim/internal/actionlog"
	"OpenAgent-Sim/internal/social"
	"OpenAgent-Sim/internal/social/memory"
)

func TestCatalogOrderAndReferences(t *testing.T) {
	catalog, err := social.NewCatalog(memory.New())
	if err != nil {
		t.Fatalf("new catalog: %v", err)
	}
	want := []string{"post", "reply", "like", "boost", "delete_post", "follow", "unfollow"}
	list := catalog.List()
	if len(list) != len(want) {
		t.Fatalf("unexpected catalog size %d", len(list))
	}
	for i, desc := range list {
		if desc.Name != want[i] {
			t.Fatalf("position %d: %s, want %s", i, desc.Name, want[i])
		}
		_, hasRef := desc.ReferenceParameter()
		wantRef := desc.Name == "reply" || desc.Name == "like" || desc.Name == "boost" || desc.Name == "delete_post"
		if hasRef != wantRef {
			t.Fatalf("%s: reference parameter %v, want %v", desc.Name, hasRef, wantRef)
		}
	}
}

func TestCatalogHandlersReachAdapter(t *testing.T) {
	network := memory.New()
	network.AddAccount("alice")
	catalog, err := social.NewCatalog(network)
	if err != nil {
		t.Fatalf("new catalog: %v", err)
	}
	log := actionlog.NewMemorySink()
	dispatcher := action.NewDispatcher(catalog, log)

	desc, _ := catalog.Describe(social.ActionPost)
	args, err := action.Parse(desc, "status: first post\nmedia: a.png, b.png")
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	result := dispatcher.Invoke(context.Background(), action.Invocation{Agent: "alice"}, desc, args)
	if !result.OK() {
		t.Fatalf("dispatch failed: %s", result.Message)
	}
	post := result.Value.(social.Post)
	if post.Author != "alice" || len(post.Media) != 2 || post.Visibility != "public" {
		t.Fatalf("unexpected post %+v", post)
	}
	if records := log.Records(); len(records) != 1 || records[0].Action != "post" {
		t.Fatalf("unexpected records %+v", records)
	}
}
