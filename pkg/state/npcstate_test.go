package state

import (
	"encoding/json"
	"testing"
)

func testProfile() *Profile {
	return &Profile{
		Name:          "Gerald",
		Template:      Template{"race": "Dwarf"},
		DialogueStyle: []string{"Aye."},
	}
}

func TestNewNPCState(t *testing.T) {
	s := NewNPCState("npc-gerald")
	if s.Phase != PhaseUninitialized {
		t.Errorf("Expected uninitialized phase, got %s", s.Phase)
	}
	if s.IsReady() {
		t.Error("New state should not be ready")
	}
	if s.CreatedAt.IsZero() || s.UpdatedAt.IsZero() {
		t.Error("Expected timestamps to be set")
	}
}

func TestApplySetup_Overwrites(t *testing.T) {
	s := NewNPCState("npc-gerald")
	s.ApplySetup(testProfile(), "player-1")
	if !s.IsReady() {
		t.Fatal("Expected ready after setup")
	}

	second := &Profile{Name: "Mira", Template: Template{"race": "Halfling"}, DialogueStyle: []string{"Hi!"}}
	s.ApplySetup(second, "player-2")

	if s.Profile.Name != "Mira" || s.Profile.Template["race"] != "Halfling" {
		t.Errorf("Expected profile to be replaced, got %+v", s.Profile)
	}
	if s.PlayerAddress != "player-2" {
		t.Errorf("Expected player-2, got %s", s.PlayerAddress)
	}
}

func TestIsReady_RequiresValidProfile(t *testing.T) {
	s := NewNPCState("npc")
	s.Phase = PhaseReady
	if s.IsReady() {
		t.Error("Ready phase without a profile should not count as ready")
	}
	var nilState *NPCState
	if nilState.IsReady() {
		t.Error("nil state should not be ready")
	}
}

func TestProfile_Valid(t *testing.T) {
	var nilProfile *Profile
	if nilProfile.Valid() {
		t.Error("nil profile should be invalid")
	}
	if (&Profile{Name: "x"}).Valid() {
		t.Error("profile without template should be invalid")
	}
	if !testProfile().Valid() {
		t.Error("expected valid profile")
	}
}

func TestTemplate_Clone(t *testing.T) {
	orig := Template{"race": "Elf"}
	clone := orig.Clone()
	clone["race"] = "Orc"
	if orig["race"] != "Elf" {
		t.Error("Clone should not share storage")
	}
	if Template(nil).Clone() != nil {
		t.Error("Clone of nil should be nil")
	}
}

func TestNPCState_JSONRoundTrip(t *testing.T) {
	s := NewNPCState("npc-gerald")
	s.ApplySetup(testProfile(), "player-1")

	data, err := json.Marshal(s)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var loaded NPCState
	if err := json.Unmarshal(data, &loaded); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if !loaded.IsReady() || loaded.Profile.DialogueStyle[0] != "Aye." {
		t.Errorf("Unexpected state after round trip: %+v", loaded)
	}
}
