package tui

import (
	"strings"
	"testing"

	"github.com/batalabs/finchat/internal/config"
)

func TestConfigPicker_IsActive(t *testing.T) {
	t.Run("nil picker is not active", func(t *testing.T) {
		var p *ConfigPicker
		if p.IsActive() {
			t.Error("expected nil picker to not be active")
		}
	})

	t.Run("new picker is active", func(t *testing.T) {
		p := NewConfigPicker(config.DefaultPreferences())
		if !p.IsActive() {
			t.Error("expected new picker to be active")
		}
	})
}

func TestConfigPicker_Navigation(t *testing.T) {
	p := NewConfigPicker(config.DefaultPreferences())
	if p.mode != configPickerGroups || p.groupIdx != 0 {
		t.Fatalf("mode = %d groupIdx = %d, want groups at 0", p.mode, p.groupIdx)
	}
	if got := p.SelectedKey(); got != "" {
		t.Errorf("SelectedKey in group list = %q", got)
	}

	p.MoveUp()
	if p.groupIdx != 0 {
		t.Errorf("MoveUp at top moved to %d", p.groupIdx)
	}
	for range 10 {
		p.MoveDown()
	}
	if p.groupIdx != len(p.groups)-1 {
		t.Errorf("groupIdx = %d, want clamp at %d", p.groupIdx, len(p.groups)-1)
	}

	if _, err := p.Enter(nil); err != nil {
		t.Fatal(err)
	}
	if p.mode != configPickerKeys {
		t.Fatalf("mode = %d after Enter, want keys", p.mode)
	}
	if got := p.SelectedKey(); got != "chat.collect_fresh" {
		t.Errorf("SelectedKey = %q", got)
	}
	p.MoveDown()
	if got := p.SelectedKey(); got != "chat.suggestions" {
		t.Errorf("SelectedKey after MoveDown = %q", got)
	}
}

func TestConfigPicker_Back(t *testing.T) {
	p := NewConfigPickerAtGroup(config.DefaultPreferences(), "web")
	if p.mode != configPickerKeys {
		t.Fatalf("expected keys mode, got %d", p.mode)
	}
	p.Back()
	if p.mode != configPickerGroups || !p.IsActive() {
		t.Fatal("Back from keys should return to groups")
	}
	p.Back()
	if p.IsActive() {
		t.Error("Back from groups should dismiss")
	}
}

func TestConfigPicker_ToggleBool(t *testing.T) {
	prefs := config.DefaultPreferences()
	p := NewConfigPickerAtGroup(prefs, "chat")

	key, err := p.Enter(&prefs)
	if err != nil {
		t.Fatal(err)
	}
	if key != "chat.collect_fresh" {
		t.Errorf("changed key = %q", key)
	}
	if !prefs.CollectFresh {
		t.Error("collect_fresh not toggled on")
	}
	if p.Editing() {
		t.Error("bool keys should not open the editor")
	}
	if !strings.Contains(p.View(80), "true") {
		t.Error("view not refreshed with the new value")
	}

	if _, err := p.Enter(&prefs); err != nil {
		t.Fatal(err)
	}
	if prefs.CollectFresh {
		t.Error("second Enter should toggle back off")
	}
}

func TestConfigPicker_EditLifecycle(t *testing.T) {
	prefs := config.DefaultPreferences()
	p := NewConfigPickerAtGroup(prefs, "web")
	p.MoveDown() // web.port

	if key, err := p.Enter(&prefs); err != nil || key != "" {
		t.Fatalf("Enter = %q, %v", key, err)
	}
	if !p.Editing() || p.editKey != "web.port" || p.editBuf != "8080" {
		t.Fatalf("editor state = %v %q %q", p.Editing(), p.editKey, p.editBuf)
	}

	t.Run("rejected value keeps editor open", func(t *testing.T) {
		p.AppendEdit('0')
		p.AppendEdit('0')
		if _, err := p.Commit(&prefs); err == nil {
			t.Fatal("expected error for port 808000")
		}
		if !p.Editing() {
			t.Error("editor closed on error")
		}
		if !strings.Contains(p.View(80), "invalid port") {
			t.Error("error not shown in view")
		}
		if prefs.Port != 8080 {
			t.Errorf("port changed to %d", prefs.Port)
		}
	})

	t.Run("valid value is applied", func(t *testing.T) {
		for range 6 {
			p.BackspaceEdit()
		}
		for _, r := range "9090" {
			p.AppendEdit(r)
		}
		key, err := p.Commit(&prefs)
		if err != nil {
			t.Fatal(err)
		}
		if key != "web.port" || prefs.Port != 9090 {
			t.Errorf("Commit = %q, port %d", key, prefs.Port)
		}
		if p.Editing() {
			t.Error("editor still open after commit")
		}
	})

	t.Run("commit outside editor is a no-op", func(t *testing.T) {
		if key, err := p.Commit(&prefs); key != "" || err != nil {
			t.Errorf("Commit = %q, %v", key, err)
		}
	})
}

func TestConfigPicker_EditCancel(t *testing.T) {
	prefs := config.DefaultPreferences()
	p := NewConfigPickerAtGroup(prefs, "backend")
	p.Enter(&prefs)
	p.AppendEdit('x')
	p.Back()
	if p.Editing() || p.editBuf != "" {
		t.Error("Back should discard the edit")
	}
	if prefs.APIURL != config.DefaultAPIURL {
		t.Errorf("APIURL = %q", prefs.APIURL)
	}
}

func TestConfigPicker_FocusGroup(t *testing.T) {
	p := NewConfigPicker(config.DefaultPreferences())
	p.FocusGroup("missing")
	if p.mode != configPickerGroups {
		t.Error("unknown group should leave the picker on the group list")
	}
	p.FocusGroup(" Chat ")
	if p.mode != configPickerKeys || p.groups[p.groupIdx].Name != "chat" {
		t.Errorf("FocusGroup did not enter chat: mode %d idx %d", p.mode, p.groupIdx)
	}
}

func TestConfigPicker_View(t *testing.T) {
	p := NewConfigPicker(config.DefaultPreferences())
	view := p.View(80)
	for _, want := range []string{"Preferences", "backend", "web", "chat"} {
		if !strings.Contains(view, want) {
			t.Errorf("group view missing %q", want)
		}
	}
	p.FocusGroup("backend")
	if !strings.Contains(p.View(80), config.DefaultAPIURL) {
		t.Error("key view missing api url value")
	}
}
