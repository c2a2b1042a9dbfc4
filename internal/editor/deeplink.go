// Package editor builds deep links that hand a token to an IDE extension.
package editor

import (
	"fmt"
	"net/url"
	"strings"
)

// Family groups editors sharing a deep-link format.
type Family string

const (
	FamilyVSCode    Family = "vscode"
	FamilyJetBrains Family = "jetbrains"
)

// Editor describes a supported IDE.
type Editor struct {
	ID     string `json:"id"`
	Name   string `json:"name"`
	Icon   string `json:"icon"`
	Family Family `json:"-"`
}

var vscodeEditors = []Editor{
	{ID: "vscode", Name: "VS Code"},
	{ID: "cursor", Name: "Cursor"},
	{ID: "kiro", Name: "Kiro"},
	{ID: "trae", Name: "Trae"},
	{ID: "windsurf", Name: "Windsurf"},
	{ID: "qoder", Name: "Qoder"},
	{ID: "vscodium", Name: "VSCodium"},
	{ID: "codebuddy", Name: "CodeBuddy"},
}

var jetbrainsEditors = []Editor{
	{ID: "idea", Name: "IntelliJ IDEA"},
	{ID: "pycharm", Name: "PyCharm"},
	{ID: "goland", Name: "GoLand"},
	{ID: "rustrover", Name: "RustRover"},
	{ID: "webstorm", Name: "WebStorm"},
	{ID: "phpstorm", Name: "PhpStorm"},
	{ID: "androidstudio", Name: "Android Studio"},
	{ID: "clion", Name: "CLion"},
	{ID: "datagrip", Name: "DataGrip"},
	{ID: "rider", Name: "Rider"},
	{ID: "rubymine", Name: "RubyMine"},
	{ID: "aqua", Name: "Aqua"},
}

var byID = func() map[string]Editor {
	m := make(map[string]Editor, len(vscodeEditors)+len(jetbrainsEditors))
	for i := range vscodeEditors {
		vscodeEditors[i].Family = FamilyVSCode
		vscodeEditors[i].Icon = "/icons/" + vscodeEditors[i].ID + ".svg"
		m[vscodeEditors[i].ID] = vscodeEditors[i]
	}
	for i := range jetbrainsEditors {
		jetbrainsEditors[i].Family = FamilyJetBrains
		jetbrainsEditors[i].Icon = "/icons/" + jetbrainsEditors[i].ID + ".svg"
		m[jetbrainsEditors[i].ID] = jetbrainsEditors[i]
	}
	return m
}()

// UnsupportedEditorError is returned for editor IDs outside both families.
type UnsupportedEditorError struct {
	EditorID string
}

func (e *UnsupportedEditorError) Error() string {
	return fmt.Sprintf("unsupported editor type: %s", e.EditorID)
}

// Supported returns copies of the VSCode-family and JetBrains-family editor lists.
func Supported() (vscode []Editor, jetbrains []Editor) {
	return append([]Editor(nil), vscodeEditors...), append([]Editor(nil), jetbrainsEditors...)
}

// Lookup finds an editor by ID.
func Lookup(id string) (Editor, bool) {
	e, ok := byID[id]
	return e, ok
}

// DeepLink builds the protocol URL that opens editorID with the token
// preloaded. The portal URL is only carried by VSCode-family links.
func DeepLink(editorID, accessToken, tenantURL, portalURL string) (string, error) {
	ed, ok := Lookup(editorID)
	if !ok {
		return "", &UnsupportedEditorError{EditorID: editorID}
	}

	switch ed.Family {
	case FamilyJetBrains:
		return fmt.Sprintf("jetbrains://%s/plugin/Augment.jetbrains-augment/autoAuth?token=%s&url=%s",
			ed.ID, escape(accessToken), escape(tenantURL)), nil
	default:
		return fmt.Sprintf("%s://Augment.vscode-augment/autoAuth?token=%s&url=%s&portal=%s",
			ed.ID, escape(accessToken), escape(tenantURL), escape(portalURL)), nil
	}
}

// escape is url.QueryEscape with spaces encoded as %20.
func escape(s string) string {
	return strings.ReplaceAll(url.QueryEscape(s), "+", "%20")
}
