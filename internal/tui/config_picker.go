package tui

import (
	"fmt"
	"strings"

	"github.com/batalabs/finchat/internal/config"
)

type configPickerMode int

const (
	configPickerGroups configPickerMode = iota
	configPickerKeys
	configPickerEdit
)

// boolConfigKeys are toggled in place instead of opening the editor.
var boolConfigKeys = map[string]bool{
	"chat.collect_fresh": true,
}

// ConfigPicker is an overlay for browsing and editing preferences.
type ConfigPicker struct {
	groups   []config.ConfigGroup
	groupIdx int
	keyIdx   int
	mode     configPickerMode
	active   bool

	editKey string
	editBuf string
	err     string // last rejected edit
}

// NewConfigPicker opens the picker on the group list.
func NewConfigPicker(prefs config.Preferences) *ConfigPicker {
	return &ConfigPicker{groups: prefs.Grouped(), active: true}
}

// NewConfigPickerAtGroup opens the picker inside group.
func NewConfigPickerAtGroup(prefs config.Preferences, group string) *ConfigPicker {
	p := NewConfigPicker(prefs)
	p.FocusGroup(group)
	return p
}

func (p *ConfigPicker) IsActive() bool { return p != nil && p.active }
func (p *ConfigPicker) Dismiss()       { p.active = false }

// Refresh reloads the displayed values from prefs.
func (p *ConfigPicker) Refresh(prefs config.Preferences) {
	p.groups = prefs.Grouped()
	if p.groupIdx >= len(p.groups) {
		p.groupIdx = max(0, len(p.groups)-1)
	}
	if g := p.selectedGroup(); g != nil && p.keyIdx >= len(g.Entries) {
		p.keyIdx = max(0, len(g.Entries)-1)
	}
}

// FocusGroup enters the named group if it exists.
func (p *ConfigPicker) FocusGroup(group string) {
	group = strings.ToLower(strings.TrimSpace(group))
	for i, g := range p.groups {
		if g.Name == group {
			p.groupIdx = i
			p.mode = configPickerKeys
			p.keyIdx = 0
			return
		}
	}
}

func (p *ConfigPicker) selectedGroup() *config.ConfigGroup {
	if p.groupIdx < 0 || p.groupIdx >= len(p.groups) {
		return nil
	}
	return &p.groups[p.groupIdx]
}

// SelectedKey returns the highlighted preference key, or "" outside a group.
func (p *ConfigPicker) SelectedKey() string {
	g := p.selectedGroup()
	if p.mode == configPickerGroups || g == nil || p.keyIdx >= len(g.Entries) {
		return ""
	}
	return g.Entries[p.keyIdx].Key
}

func (p *ConfigPicker) MoveUp() {
	switch p.mode {
	case configPickerGroups:
		p.groupIdx = max(0, p.groupIdx-1)
	case configPickerKeys:
		p.keyIdx = max(0, p.keyIdx-1)
	}
}

func (p *ConfigPicker) MoveDown() {
	switch p.mode {
	case configPickerGroups:
		p.groupIdx = min(len(p.groups)-1, p.groupIdx+1)
	case configPickerKeys:
		if g := p.selectedGroup(); g != nil {
			p.keyIdx = min(len(g.Entries)-1, p.keyIdx+1)
		}
	}
}

// Enter descends one level: group list to keys, key to editor. Boolean keys
// are flipped on prefs directly; the changed key is returned in that case.
func (p *ConfigPicker) Enter(prefs *config.Preferences) (changed string, err error) {
	switch p.mode {
	case configPickerGroups:
		p.mode = configPickerKeys
		p.keyIdx = 0
	case configPickerKeys:
		key := p.SelectedKey()
		if key == "" {
			return "", nil
		}
		if boolConfigKeys[key] {
			cur, _ := config.ParseBoolish(prefs.Get(key))
			if err := prefs.Set(key, fmt.Sprint(!cur)); err != nil {
				return "", err
			}
			p.Refresh(*prefs)
			return key, nil
		}
		p.mode = configPickerEdit
		p.editKey = key
		p.editBuf = prefs.Get(key)
		p.err = ""
	}
	return "", nil
}

// Back leaves the editor or the key list.
func (p *ConfigPicker) Back() {
	switch p.mode {
	case configPickerEdit:
		p.mode = configPickerKeys
		p.editKey, p.editBuf, p.err = "", "", ""
	case configPickerKeys:
		p.mode = configPickerGroups
		p.keyIdx = 0
	default:
		p.Dismiss()
	}
}

func (p *ConfigPicker) Editing() bool { return p.mode == configPickerEdit }

func (p *ConfigPicker) AppendEdit(r rune) {
	p.editBuf += string(r)
}

func (p *ConfigPicker) BackspaceEdit() {
	if rs := []rune(p.editBuf); len(rs) > 0 {
		p.editBuf = string(rs[:len(rs)-1])
	}
}

// Commit applies the edited value to prefs. A rejected value keeps the
// editor open with the error shown.
func (p *ConfigPicker) Commit(prefs *config.Preferences) (key string, err error) {
	if p.mode != configPickerEdit {
		return "", nil
	}
	if err := prefs.Set(p.editKey, p.editBuf); err != nil {
		p.err = err.Error()
		return "", err
	}
	key = p.editKey
	p.Back()
	p.Refresh(*prefs)
	return key, nil
}

func (p *ConfigPicker) View(width int) string {
	var b strings.Builder
	b.WriteString(FooterHead.Render("Preferences"))
	b.WriteString("\n")

	switch p.mode {
	case configPickerGroups:
		b.WriteString(FooterMeta.Render("  Enter=open group  Esc=close"))
		b.WriteString("\n\n")
		for i, g := range p.groups {
			if i == p.groupIdx {
				b.WriteString(CompletionSelStyle.Render("> " + g.Name))
			} else {
				b.WriteString(FooterMeta.Render("  " + g.Name))
			}
			b.WriteString("\n")
		}
	case configPickerKeys:
		g := p.selectedGroup()
		if g == nil {
			return b.String()
		}
		b.WriteString(FooterMeta.Render("  " + g.Name + "  Enter=edit/toggle  Esc=back"))
		b.WriteString("\n\n")
		valueWidth := max(10, width-30)
		for i, e := range g.Entries {
			line := fmt.Sprintf("%-24s %s", e.Key, TruncateToWidth(e.Value, valueWidth))
			if i == p.keyIdx {
				b.WriteString(CompletionSelStyle.Render("> " + line))
			} else {
				b.WriteString(FooterMeta.Render("  " + line))
			}
			b.WriteString("\n")
		}
	case configPickerEdit:
		b.WriteString(FooterMeta.Render("  " + p.editKey + "  Enter=save  Esc=cancel"))
		b.WriteString("\n\n")
		b.WriteString(FooterMeta.Render("  Value: " + p.editBuf))
		b.WriteString(CursorStyle.Render("█"))
		b.WriteString("\n")
		if p.err != "" {
			b.WriteString(ErrorLineStyle.Render("  " + p.err))
			b.WriteString("\n")
		}
	}
	return b.String()
}
