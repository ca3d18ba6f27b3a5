package action

import (
	"context"
	"errors"
	"testing"

	xerrors "OpenAgent-Sim/internal/errors"
)

func noop(context.Context, Invocation, Arguments) (any, error) { return nil, nil }

func TestCatalogListKeepsRegistrationOrder(t *testing.T) {
	catalog := NewCatalog()
	names := []string{"post", "reply", "like", "boost", "follow"}
	for _, name := range names {
		if err := catalog.Register(Define(name, name+" something").Descriptor(), noop); err != nil {
			t.Fatalf("register %s: %v", name, err)
		}
	}

	for round := 0; round < 3; round++ {
		list := catalog.List()
		if len(list) != len(names) {
			t.Fatalf("unexpected length %d", len(list))
		}
		for i, desc := range list {
			if desc.Name != names[i] {
				t.Fatalf("round %d: position %d is %s, want %s", round, i, desc.Name, names[i])
			}
		}
	}
}

func TestCatalogRejectsDuplicates(t *testing.T) {
	catalog := NewCatalog()
	desc := Define("like", "Like a post").Reference("target_id", "post to like", true).Descriptor()
	if err := catalog.Register(desc, noop); err != nil {
		t.Fatalf("first register: %v", err)
	}

	err := catalog.Register(desc, noop)
	var dup *DuplicateActionError
	if !errors.As(err, &dup) || dup.Name != "like" {
		t.Fatalf("expected DuplicateActionError, got %v", err)
	}
	if !errors.Is(err, ErrDuplicateAction) {
		t.Fatalf("duplicate error should match sentinel")
	}
	if catalog.Len() != 1 {
		t.Fatalf("duplicate must not be added")
	}
}

func TestCatalogDescribeUnknown(t *testing.T) {
	_, err := NewCatalog().Describe("dance")
	var unknown *UnknownActionError
	if !errors.As(err, &unknown) || unknown.Name != "dance" {
		t.Fatalf("expected UnknownActionError, got %v", err)
	}
	if xerrors.CategoryOf(err) != xerrors.CategoryResolution {
		t.Fatalf("unexpected category %s", xerrors.CategoryOf(err))
	}
}

func TestCatalogDescriptorsAreImmutable(t *testing.T) {
	catalog := NewCatalog()
	catalog.MustRegister(Define("post", "Publish a status").Param("status", String(), "text").Descriptor(), noop)

	desc, err := catalog.Describe("post")
	if err != nil {
		t.Fatalf("describe: %v", err)
	}
	desc.Parameters[0].Name = "mutated"

	again, _ := catalog.Describe("post")
	if again.Parameters[0].Name != "status" {
		t.Fatalf("catalog descriptor was mutated through a returned copy")
	}
}

func TestCatalogValidatesDescriptors(t *testing.T) {
	cases := map[string]Descriptor{
		"empty name":     Define("", "x").Descriptor(),
		"space in name":  Define("two words", "x").Descriptor(),
		"duplicate":      Define("a", "x").Param("p", String(), "").Param("p", Integer(), "").Descriptor(),
		"empty enum":     Define("a", "x").Param("v", Enum(), "").Descriptor(),
		"nested list":    Define("a", "x").Param("v", ListOf(ListOf(String())), "").Descriptor(),
		"colon in param": Define("a", "x").Param("a:b", String(), "").Descriptor(),
	}
	for name, desc := range cases {
		t.Run(name, func(t *testing.T) {
			err := NewCatalog().Register(desc, noop)
			if !errors.Is(err, ErrInvalidDescriptor) {
				t.Fatalf("expected invalid descriptor error, got %v", err)
			}
		})
	}

	if err := NewCatalog().Register(Define("ok", "x").Descriptor(), nil); !errors.Is(err, ErrInvalidDescriptor) {
		t.Fatalf("nil handler should be rejected, got %v", err)
	}
}

func TestBuilderOptionality(t *testing.T) {
	desc := Define("post", "Publish").
		Param("status", String(), "text").
		Param("media", OptionalOf(ListOf(String())), "attachments").
		Optional("visibility", Enum("public", "private"), "who sees it").
		Reference("in_reply_to", "parent post", false).
		Descriptor()

	want := map[string]bool{"status": true, "media": false, "visibility": false, "in_reply_to": false}
	for _, p := range desc.Parameters {
		if p.Required != want[p.Name] {
			t.Fatalf("%s: required=%v", p.Name, p.Required)
		}
	}
	ref, ok := desc.ReferenceParameter()
	if !ok || ref.Name != "in_reply_to" {
		t.Fatalf("reference parameter not found: %+v", ref)
	}
}
