//go:build darwin

package hotkey

import "golang.design/x/hotkey"

func altModifier() hotkey.Modifier {
	return hotkey.ModOption
}
