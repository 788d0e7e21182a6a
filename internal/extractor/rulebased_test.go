package extractor

import (
	"context"
	"testing"

	"github.com/MrWong99/glyphoxa/pkg/memory"
)

func TestRuleBased_DetectsEmotionKeyword(t *testing.T) {
	ex := NewRuleBased()
	got, err := ex.Extract(context.Background(), "today I feel stressed about work", nil, "2026-07-30")
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}
	found := false
	for _, e := range got.Entities {
		if e.Type == memory.EntityEmotion && e.Name == "stressed" {
			found = true
		}
	}
	if !found {
		t.Errorf("expected stressed emotion entity, got %+v", got.Entities)
	}
}

func TestRuleBased_DetectsCapitalizedPerson(t *testing.T) {
	ex := NewRuleBased()
	got, err := ex.Extract(context.Background(), "Hùng gave a talk today", nil, "2026-07-30")
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}
	found := false
	for _, e := range got.Entities {
		if e.Type == memory.EntityPerson && e.Name == "Hùng" {
			found = true
		}
	}
	if !found {
		t.Errorf("expected Hùng person entity, got %+v", got.Entities)
	}
}

func TestRuleBased_SkipsStopwordCapitalizedWord(t *testing.T) {
	ex := NewRuleBased()
	got, err := ex.Extract(context.Background(), "Hôm nay trời đẹp", nil, "2026-07-30")
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}
	for _, e := range got.Entities {
		if e.Name == "Hôm" {
			t.Errorf("expected Hôm to be filtered as stopword, got %+v", got.Entities)
		}
	}
}

func TestRuleBased_BuildsEmotionalRelationshipBetweenPersonAndEmotion(t *testing.T) {
	ex := NewRuleBased()
	got, err := ex.Extract(context.Background(), "Hùng feels stressed lately", nil, "2026-07-30")
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}
	if len(got.Relationships) != 1 {
		t.Fatalf("got %d relationships, want 1: %+v", len(got.Relationships), got.Relationships)
	}
	r := got.Relationships[0]
	if r.SourceName != "Hùng" || r.TargetName != "stressed" || r.RelType != memory.RelEmotion {
		t.Errorf("relationship = %+v", r)
	}
}

func TestRuleBased_NoEntitiesProducesNoRelationships(t *testing.T) {
	ex := NewRuleBased()
	got, err := ex.Extract(context.Background(), "a quiet day with nothing much", nil, "2026-07-30")
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}
	if len(got.Relationships) != 0 {
		t.Errorf("want no relationships, got %+v", got.Relationships)
	}
}
